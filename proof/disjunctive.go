package proof

import (
	"crypto/rand"
	"fmt"
	"math/big"

	"github.com/amarvote/guardian-engine/group"
)

// branch is one side of a DisjunctiveProof: the commitment/challenge/
// response triple for the statement "this ciphertext encrypts value j",
// i.e. log_g(pad) == log_K(data/g^j).
type branch struct {
	A         group.Element
	B         group.Element
	Challenge group.Scalar
	Response  group.Scalar
}

// DisjunctiveProof proves a ciphertext (pad, data) encrypts 0 or 1 under K,
// without revealing which, via a split Fiat–Shamir challenge: one branch
// is proved honestly, the other is simulated, and the two branch
// challenges are constrained to sum to the overall challenge.
type DisjunctiveProof struct {
	Zero branch
	One  branch
}

// BuildDisjunctive proves that (pad,data) encrypts vote (0 or 1) under K
// with nonce r. vote must be 0 or 1.
func BuildDisjunctive(p group.Params, qbar group.Scalar, k group.Element, pad, data group.Element, r group.Scalar, vote int) (DisjunctiveProof, error) {
	if vote != 0 && vote != 1 {
		return DisjunctiveProof{}, fmt.Errorf("proof: disjunctive: vote must be 0 or 1, got %d", vote)
	}

	// h2 for branch j is data/g^j.
	h2For := func(j int) group.Element {
		if j == 0 {
			return data
		}
		gj := group.GPow(p, group.OneScalar())
		gjInv, _ := group.InvP(p, gj)
		return group.MulP(p, data, gjInv)
	}

	fakeJ := 1 - vote
	realJ := vote

	// Simulate the false branch: pick challenge and response uniformly,
	// then solve for the commitments that make the verification equations
	// hold.
	fakeChallenge, err := group.RandomScalar(p, func(max *big.Int) (*big.Int, error) { return rand.Int(rand.Reader, max) })
	if err != nil {
		return DisjunctiveProof{}, fmt.Errorf("proof: disjunctive: %w", err)
	}
	fakeResponse, err := group.RandomScalar(p, func(max *big.Int) (*big.Int, error) { return rand.Int(rand.Reader, max) })
	if err != nil {
		return DisjunctiveProof{}, fmt.Errorf("proof: disjunctive: %w", err)
	}
	fakeH2 := h2For(fakeJ)
	padInvC, err := group.InvP(p, group.PowP(p, pad, fakeChallenge))
	if err != nil {
		return DisjunctiveProof{}, fmt.Errorf("proof: disjunctive: %w", err)
	}
	fakeA := group.MulP(p, group.GPow(p, fakeResponse), padInvC)
	h2InvC, err := group.InvP(p, group.PowP(p, fakeH2, fakeChallenge))
	if err != nil {
		return DisjunctiveProof{}, fmt.Errorf("proof: disjunctive: %w", err)
	}
	fakeB := group.MulP(p, group.PowP(p, k, fakeResponse), h2InvC)
	fakeBranch := branch{A: fakeA, B: fakeB, Challenge: fakeChallenge, Response: fakeResponse}

	// Honest commitment for the real branch.
	u, err := group.RandomScalar(p, func(max *big.Int) (*big.Int, error) { return rand.Int(rand.Reader, max) })
	if err != nil {
		return DisjunctiveProof{}, fmt.Errorf("proof: disjunctive: %w", err)
	}
	realA := group.GPow(p, u)
	realB := group.PowP(p, k, u)

	// Order the two branches' commitments as (zero,one) for the overall
	// challenge hash, regardless of which is real/simulated.
	var zeroA, zeroB, oneA, oneB group.Element
	if realJ == 0 {
		zeroA, zeroB = realA, realB
		oneA, oneB = fakeBranch.A, fakeBranch.B
	} else {
		zeroA, zeroB = fakeBranch.A, fakeBranch.B
		oneA, oneB = realA, realB
	}

	overall, err := group.H(p, qbar, k, pad, data, zeroA, zeroB, oneA, oneB)
	if err != nil {
		return DisjunctiveProof{}, fmt.Errorf("proof: disjunctive: %w", err)
	}
	realChallenge := group.AddQ(p, overall, group.NegQ(p, fakeChallenge))
	realResponse := group.AddQ(p, u, group.MulQ(p, realChallenge, r))
	realBranch := branch{A: realA, B: realB, Challenge: realChallenge, Response: realResponse}

	if realJ == 0 {
		return DisjunctiveProof{Zero: realBranch, One: fakeBranch}, nil
	}
	return DisjunctiveProof{Zero: fakeBranch, One: realBranch}, nil
}

// Verify checks a disjunctive 0/1 proof against a ciphertext (pad,data)
// claimed to have been encrypted under K: both branch equations must
// check out, and the branch challenges must sum to the recomputed overall
// challenge.
func (pr DisjunctiveProof) Verify(p group.Params, qbar group.Scalar, k group.Element, pad, data group.Element) error {
	if pr.Zero.A.Equal(group.Identity()) || pr.One.A.Equal(group.Identity()) {
		return fmt.Errorf("proof: disjunctive: commitment must not be the identity")
	}
	overall, err := group.H(p, qbar, k, pad, data, pr.Zero.A, pr.Zero.B, pr.One.A, pr.One.B)
	if err != nil {
		return fmt.Errorf("proof: disjunctive: %w", err)
	}
	sum := group.AddQ(p, pr.Zero.Challenge, pr.One.Challenge)
	if !sum.Equal(overall) {
		return ErrInvalid
	}

	one := group.GPow(p, group.OneScalar())
	oneInv, err := group.InvP(p, one)
	if err != nil {
		return fmt.Errorf("proof: disjunctive: %w", err)
	}
	dataOverG := group.MulP(p, data, oneInv)

	if err := verifyBranch(p, k, pad, data, pr.Zero); err != nil {
		return err
	}
	if err := verifyBranch(p, k, pad, dataOverG, pr.One); err != nil {
		return err
	}
	return nil
}

func verifyBranch(p group.Params, k, pad, h2 group.Element, b branch) error {
	lhs1 := group.GPow(p, b.Response)
	rhs1 := group.MulP(p, b.A, group.PowP(p, pad, b.Challenge))
	if !lhs1.Equal(rhs1) {
		return ErrInvalid
	}
	lhs2 := group.PowP(p, k, b.Response)
	rhs2 := group.MulP(p, b.B, group.PowP(p, h2, b.Challenge))
	if !lhs2.Equal(rhs2) {
		return ErrInvalid
	}
	return nil
}
