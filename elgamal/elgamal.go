// Package elgamal implements exponential ElGamal over the subgroup from
// package group, including homomorphic addition: key generation,
// encryption, decryption consulting a discrete-log oracle, and an Add
// for the homomorphic combination package ballotbox relies on.
package elgamal

import (
	"crypto/rand"
	"fmt"
	"math/big"

	"github.com/amarvote/guardian-engine/group"
)

// Ciphertext is the pair (pad, data) = (g^r, K^r * g^m).
type Ciphertext struct {
	Pad  group.Element
	Data group.Element
}

// KeyPair is an ElGamal public/private key pair.
type KeyPair struct {
	PublicKey  group.Element
	PrivateKey group.Scalar
}

// GenerateKey produces a fresh ElGamal key pair: d uniform in [1,Q), K=g^d.
func GenerateKey(p group.Params) (KeyPair, error) {
	d, err := group.RandomScalar(p, func(max *big.Int) (*big.Int, error) { return rand.Int(rand.Reader, max) })
	if err != nil {
		return KeyPair{}, fmt.Errorf("elgamal: failed to generate private key: %w", err)
	}
	return KeyPair{PublicKey: group.GPow(p, d), PrivateKey: d}, nil
}

// Encrypt draws a fresh nonce r and returns Encrypt(m, r, K) = (g^r, K^r*g^m).
// It rejects r=0 by construction (RandomScalar never returns zero).
func Encrypt(p group.Params, publicKey group.Element, m group.Scalar) (Ciphertext, group.Scalar, error) {
	r, err := group.RandomScalar(p, func(max *big.Int) (*big.Int, error) { return rand.Int(rand.Reader, max) })
	if err != nil {
		return Ciphertext{}, group.Scalar{}, fmt.Errorf("elgamal: failed to generate nonce: %w", err)
	}
	return EncryptWithNonce(p, publicKey, m, r), r, nil
}

// EncryptWithNonce encrypts m under publicKey with the caller-supplied
// nonce r. r=0 is rejected.
func EncryptWithNonce(p group.Params, publicKey group.Element, m group.Scalar, r group.Scalar) Ciphertext {
	if r.IsZero() {
		panic("elgamal: nonce r must not be zero")
	}
	pad := group.GPow(p, r)
	kr := group.PowP(p, publicKey, r)
	gm := group.GPow(p, m)
	data := group.MulP(p, kr, gm)
	return Ciphertext{Pad: pad, Data: data}
}

// DiscreteLogSolver maps a group element g^m back to m, for m in
// [0, maxMessage]. Package dlog implements this for the engine; it is
// injected here so package elgamal stays free of dlog's cache/eviction
// concerns.
type DiscreteLogSolver interface {
	Solve(p group.Params, h group.Element) (uint64, error)
}

// DecryptKnownSecret computes M = data * pad^-s (= g^m) and, if solver is
// non-nil, recovers m via solver. It returns M unconditionally so callers
// that only need the plaintext point (e.g. to verify a decryption proof)
// don't pay for a discrete-log search.
func DecryptKnownSecret(p group.Params, ct Ciphertext, s group.Scalar, solver DiscreteLogSolver) (group.Element, *uint64, error) {
	padS := group.PowP(p, ct.Pad, s)
	padSInv, err := group.InvP(p, padS)
	if err != nil {
		return group.Element{}, nil, fmt.Errorf("elgamal: decrypt: %w", err)
	}
	m := group.MulP(p, ct.Data, padSInv)
	if solver == nil {
		return m, nil, nil
	}
	msg, err := solver.Solve(p, m)
	if err != nil {
		return m, nil, err
	}
	return m, &msg, nil
}

// WeightedShare is one trustee's (possibly compensated) decryption share
// M_i together with the Lagrange weight λ_i to apply when combining.
type WeightedShare struct {
	Share  group.Element
	Lambda group.Scalar
}

// DecryptWithShares computes M = data * (prod M_i^λ_i)^-1 and, if solver
// is non-nil, recovers m.
func DecryptWithShares(p group.Params, ct Ciphertext, shares []WeightedShare, solver DiscreteLogSolver) (group.Element, *uint64, error) {
	combined := group.Identity()
	for _, ws := range shares {
		term := group.PowP(p, ws.Share, ws.Lambda)
		combined = group.MulP(p, combined, term)
	}
	combinedInv, err := group.InvP(p, combined)
	if err != nil {
		return group.Element{}, nil, fmt.Errorf("elgamal: combine shares: %w", err)
	}
	m := group.MulP(p, ct.Data, combinedInv)
	if solver == nil {
		return m, nil, nil
	}
	msg, err := solver.Solve(p, m)
	if err != nil {
		return m, nil, err
	}
	return m, &msg, nil
}

// Add homomorphically combines two ciphertexts: componentwise group
// multiplication, whose implicit nonce is the sum of the two nonces —
// exploited by package ballotbox for tallying.
func Add(p group.Params, a, b Ciphertext) Ciphertext {
	return Ciphertext{
		Pad:  group.MulP(p, a.Pad, b.Pad),
		Data: group.MulP(p, a.Data, b.Data),
	}
}

// IdentityCiphertext is the neutral element for Add: encrypting 0 with a
// zero nonce conceptually, used as the running accumulator seed in
// package ballotbox.
func IdentityCiphertext() Ciphertext {
	return Ciphertext{Pad: group.Identity(), Data: group.Identity()}
}
