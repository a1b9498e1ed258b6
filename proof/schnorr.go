// Package proof implements the non-interactive zero-knowledge proofs the
// engine relies on — Schnorr proofs of knowledge, Chaum–Pedersen proofs
// of equality of discrete logs, disjunctive (0/1) proofs, and the
// per-contest range-sum proof built on top of Chaum–Pedersen. Every proof
// is a Fiat–Shamir transform seeded with the extended base hash Qbar.
package proof

import (
	"crypto/rand"
	"fmt"
	"math/big"

	"github.com/amarvote/guardian-engine/group"
)

// SchnorrProof proves knowledge of x such that y = g^x, without revealing
// x. Used by package sharing for each polynomial coefficient commitment.
type SchnorrProof struct {
	Commitment group.Element // h = g^u
	Challenge  group.Scalar  // c = H(Qbar, y, h)
	Response   group.Scalar  // v = u + c*x mod q
}

// BuildSchnorr proves knowledge of the discrete log x of y = g^x.
func BuildSchnorr(p group.Params, qbar group.Scalar, y group.Element, x group.Scalar) (SchnorrProof, error) {
	u, err := group.RandomScalar(p, func(max *big.Int) (*big.Int, error) { return rand.Int(rand.Reader, max) })
	if err != nil {
		return SchnorrProof{}, fmt.Errorf("proof: schnorr: %w", err)
	}
	h := group.GPow(p, u)
	c, err := group.H(p, qbar, y, h)
	if err != nil {
		return SchnorrProof{}, fmt.Errorf("proof: schnorr: %w", err)
	}
	v := group.AddQ(p, u, group.MulQ(p, c, x))
	return SchnorrProof{Commitment: h, Challenge: c, Response: v}, nil
}

// Verify checks the Schnorr proof against the claimed public value y. The
// challenge is recomputed rather than trusted.
func (pr SchnorrProof) Verify(p group.Params, qbar group.Scalar, y group.Element) error {
	if pr.Commitment.Equal(group.Identity()) {
		return fmt.Errorf("proof: schnorr: commitment must not be the identity")
	}
	c, err := group.H(p, qbar, y, pr.Commitment)
	if err != nil {
		return fmt.Errorf("proof: schnorr: %w", err)
	}
	if !c.Equal(pr.Challenge) {
		return ErrInvalid
	}
	lhs := group.GPow(p, pr.Response)
	rhs := group.MulP(p, pr.Commitment, group.PowP(p, y, pr.Challenge))
	if !lhs.Equal(rhs) {
		return ErrInvalid
	}
	return nil
}

// ErrInvalid is returned by any proof's Verify when the proof does not
// check out; callers wrap with a statement id.
var ErrInvalid = fmt.Errorf("proof: verification failed")

// ErrGenerationFailed names a proof-building failure. The Build functions
// in this package do not return it: they wrap the underlying randomness or
// hashing error with the proof's name instead.
var ErrGenerationFailed = fmt.Errorf("proof: generation failed")
