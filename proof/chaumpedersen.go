package proof

import (
	"crypto/rand"
	"fmt"
	"math/big"

	"github.com/amarvote/guardian-engine/group"
)

// ChaumPedersenProof proves that two pairs (g, h1) and (base2, h2) share
// the same discrete log w — "equality of discrete logs" — without
// revealing w. This single generic shape serves three statements in the
// engine:
//
//   - ballot-encryption well-formedness (package ballot): base2=K,
//     h1=pad, h2=data/g^m, witness=the encryption nonce r;
//   - contest range-sum (package proof/rangesum.go): same shape, over the
//     homomorphic sum of a contest's selections;
//   - decryption shares (package decryption): base2=the ciphertext's pad
//     A, h1=the trustee's public share key y_i, h2=the decryption share
//     M_i, witness=the trustee's secret share s_i.
type ChaumPedersenProof struct {
	A         group.Element // a = g^u        (commitment wrt base g)
	B         group.Element // b = base2^u    (commitment wrt base2)
	Challenge group.Scalar  // c = H(Qbar, base2, h1, h2, a, b)
	Response  group.Scalar  // z = u + c*w mod q
}

// BuildChaumPedersen proves log_g(h1) == log_base2(h2) == w.
func BuildChaumPedersen(p group.Params, qbar group.Scalar, base2, h1, h2 group.Element, w group.Scalar) (ChaumPedersenProof, error) {
	u, err := group.RandomScalar(p, func(max *big.Int) (*big.Int, error) { return rand.Int(rand.Reader, max) })
	if err != nil {
		return ChaumPedersenProof{}, fmt.Errorf("proof: chaum-pedersen: %w", err)
	}
	a := group.GPow(p, u)
	b := group.PowP(p, base2, u)
	c, err := group.H(p, qbar, base2, h1, h2, a, b)
	if err != nil {
		return ChaumPedersenProof{}, fmt.Errorf("proof: chaum-pedersen: %w", err)
	}
	z := group.AddQ(p, u, group.MulQ(p, c, w))
	return ChaumPedersenProof{A: a, B: b, Challenge: c, Response: z}, nil
}

// Verify checks a Chaum–Pedersen proof for the statement
// log_g(h1) == log_base2(h2).
func (pr ChaumPedersenProof) Verify(p group.Params, qbar group.Scalar, base2, h1, h2 group.Element) error {
	if pr.A.Equal(group.Identity()) || pr.B.Equal(group.Identity()) {
		return fmt.Errorf("proof: chaum-pedersen: commitment must not be the identity")
	}
	c, err := group.H(p, qbar, base2, h1, h2, pr.A, pr.B)
	if err != nil {
		return fmt.Errorf("proof: chaum-pedersen: %w", err)
	}
	if !c.Equal(pr.Challenge) {
		return ErrInvalid
	}
	lhs1 := group.GPow(p, pr.Response)
	rhs1 := group.MulP(p, pr.A, group.PowP(p, h1, pr.Challenge))
	if !lhs1.Equal(rhs1) {
		return ErrInvalid
	}
	lhs2 := group.PowP(p, base2, pr.Response)
	rhs2 := group.MulP(p, pr.B, group.PowP(p, h2, pr.Challenge))
	if !lhs2.Equal(rhs2) {
		return ErrInvalid
	}
	return nil
}
