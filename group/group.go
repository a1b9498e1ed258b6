// Package group implements modular arithmetic in the prime-order subgroup
// used by the engine's ElGamal scheme, plus the Fiat–Shamir hash-to-scalar
// primitive shared by every proof in package proof.
//
// The group is the order-Q subgroup of (Z/PZ)* for a safe prime P = 2Q+1,
// generated by G. This is the classical ElectionGuard/Helios construction:
// messages are encoded as g^m and ciphertexts are pairs of such elements.
// The arithmetic is multiplication mod P, not curve-point addition; the
// API shape (constructors, Equal, a fixed-base exponentiation, a single
// hash-to-scalar helper) mirrors a typical elliptic-curve Point interface
// generalized to a multiplicative group.
package group

import (
	"fmt"
	"math/big"

	"github.com/iden3/go-iden3-crypto/poseidon"
)

// Params describes a prime-order subgroup: the order-Q subgroup of
// (Z/PZ)*, generated by G. P must be a safe prime (P = 2Q+1) and G must
// generate the order-Q subgroup (G != 1, G^Q == 1 mod P).
type Params struct {
	P *big.Int
	Q *big.Int
	G *big.Int
}

// DefaultParams is a 257-bit safe-prime group suitable for production-style
// use (deliberately modest in size — this is a teaching/reference engine,
// not a hardened deployment; a real deployment would swap in the
// standardised ElectionGuard 4096-bit/256-bit parameters without any other
// code change, since every operation in this package is Params-parametric).
var DefaultParams = Params{
	P: mustInt("197667984478343173560375059173831606661054361934087261268369138287185475161359"),
	Q: mustInt("98833992239171586780187529586915803330527180967043630634184569143592737580679"),
	G: big.NewInt(4),
}

// TestParams is a small group kept for fast unit tests (discrete-log
// recovery over this group is feasible for message spaces in the hundreds
// without the discrete-log table growing large).
var TestParams = Params{
	P: big.NewInt(1957547),
	Q: big.NewInt(978773),
	G: big.NewInt(4),
}

func mustInt(s string) *big.Int {
	n, ok := new(big.Int).SetString(s, 10)
	if !ok {
		panic("group: invalid constant " + s)
	}
	return n
}

// Validate checks that P is prime-looking, P = 2Q+1, and G generates the
// order-Q subgroup. It is not meant to be called on every operation — hosts
// call it once when adopting a Params value.
func (p Params) Validate() error {
	if p.P == nil || p.Q == nil || p.G == nil {
		return fmt.Errorf("group: incomplete params")
	}
	twoQPlus1 := new(big.Int).Lsh(p.Q, 1)
	twoQPlus1.Add(twoQPlus1, big.NewInt(1))
	if twoQPlus1.Cmp(p.P) != 0 {
		return fmt.Errorf("group: P must equal 2Q+1")
	}
	if !p.P.ProbablyPrime(40) {
		return fmt.Errorf("group: P is not prime")
	}
	if !p.Q.ProbablyPrime(40) {
		return fmt.Errorf("group: Q is not prime")
	}
	if p.G.Cmp(big.NewInt(1)) <= 0 || p.G.Cmp(p.P) >= 0 {
		return ErrOutOfRange
	}
	gq := new(big.Int).Exp(p.G, p.Q, p.P)
	if gq.Cmp(big.NewInt(1)) != 0 {
		return fmt.Errorf("group: G does not generate the order-Q subgroup")
	}
	return nil
}

// Scalar is an integer in [0, Q). The zero value is not valid; use
// NewScalar / Zero / One / RandomScalar.
type Scalar struct {
	v *big.Int
}

// Element is a member of the order-Q subgroup of (Z/PZ)*: an integer in
// [1, P) such that Element^Q == 1 mod P.
type Element struct {
	v *big.Int
}

// ErrOutOfRange is returned when an operand integer falls outside its
// expected canonical range ([0,Q) for scalars, the subgroup for elements).
var ErrOutOfRange = fmt.Errorf("group: operand out of range")

// ErrInvalidGroupElement is returned when an element is detected, on
// input, not to be a member of the order-Q subgroup.
var ErrInvalidGroupElement = fmt.Errorf("group: value is not a valid subgroup element")

// NewScalar reduces n mod q and wraps it. It never fails.
func NewScalar(p Params, n *big.Int) Scalar {
	return Scalar{v: new(big.Int).Mod(n, p.Q)}
}

// ScalarFromCanonical validates that n already lies in [0,Q) and wraps it,
// rejecting out-of-range encodings rather than silently reducing them.
func ScalarFromCanonical(p Params, n *big.Int) (Scalar, error) {
	if n.Sign() < 0 || n.Cmp(p.Q) >= 0 {
		return Scalar{}, ErrOutOfRange
	}
	return Scalar{v: new(big.Int).Set(n)}, nil
}

// ZeroScalar returns the additive identity.
func ZeroScalar() Scalar { return Scalar{v: big.NewInt(0)} }

// OneScalar returns the multiplicative identity.
func OneScalar() Scalar { return Scalar{v: big.NewInt(1)} }

// Int returns the underlying big.Int. Callers must not mutate it.
func (s Scalar) Int() *big.Int { return s.v }

// IsZero reports whether s is the zero scalar.
func (s Scalar) IsZero() bool { return s.v.Sign() == 0 }

// Equal reports whether s and other represent the same residue.
func (s Scalar) Equal(other Scalar) bool { return s.v.Cmp(other.v) == 0 }

// AddQ returns a+b mod q.
func AddQ(p Params, a, b Scalar) Scalar {
	r := new(big.Int).Add(a.v, b.v)
	r.Mod(r, p.Q)
	return Scalar{v: r}
}

// MulQ returns a*b mod q.
func MulQ(p Params, a, b Scalar) Scalar {
	r := new(big.Int).Mul(a.v, b.v)
	r.Mod(r, p.Q)
	return Scalar{v: r}
}

// NegQ returns -a mod q.
func NegQ(p Params, a Scalar) Scalar {
	r := new(big.Int).Neg(a.v)
	r.Mod(r, p.Q)
	return Scalar{v: r}
}

// InvQ returns the multiplicative inverse of a mod q. a must be non-zero.
func InvQ(p Params, a Scalar) (Scalar, error) {
	if a.IsZero() {
		return Scalar{}, fmt.Errorf("group: cannot invert zero scalar")
	}
	r := new(big.Int).ModInverse(a.v, p.Q)
	if r == nil {
		return Scalar{}, fmt.Errorf("group: no inverse for scalar (q not prime?)")
	}
	return Scalar{v: r}, nil
}

// PowScalar returns x^e mod q, used when exponents of exponents arise
// (e.g. x^i in polynomial evaluation powers).
func PowScalar(p Params, x Scalar, e *big.Int) Scalar {
	r := new(big.Int).Exp(x.v, e, p.Q)
	return Scalar{v: r}
}

// RandomScalar draws a uniformly random scalar in [1, Q) using the
// supplied randomness source (crypto/rand.Reader in production).
func RandomScalar(p Params, randFn func(max *big.Int) (*big.Int, error)) (Scalar, error) {
	n, err := randFn(p.Q)
	if err != nil {
		return Scalar{}, err
	}
	if n.Sign() == 0 {
		n = big.NewInt(1)
	}
	return Scalar{v: n}, nil
}

// Int returns the underlying big.Int. Callers must not mutate it.
func (e Element) Int() *big.Int { return e.v }

// Equal reports whether e and other are the same subgroup element.
func (e Element) Equal(other Element) bool { return e.v.Cmp(other.v) == 0 }

// Identity returns the multiplicative identity element (1).
func Identity() Element { return Element{v: big.NewInt(1)} }

// ElementFromCanonical validates that n is a member of the order-Q
// subgroup mod p and wraps it, failing with ErrInvalidGroupElement
// otherwise.
func ElementFromCanonical(p Params, n *big.Int) (Element, error) {
	if n.Sign() <= 0 || n.Cmp(p.P) >= 0 {
		return Element{}, ErrInvalidGroupElement
	}
	check := new(big.Int).Exp(n, p.Q, p.P)
	if check.Cmp(big.NewInt(1)) != 0 {
		return Element{}, ErrInvalidGroupElement
	}
	return Element{v: new(big.Int).Set(n)}, nil
}

// GPow computes G^e mod P — fixed-base exponentiation, the encoding of a
// plaintext message or the public half of a key pair.
func GPow(p Params, e Scalar) Element {
	r := new(big.Int).Exp(p.G, e.v, p.P)
	return Element{v: r}
}

// PowP computes base^e mod P for an arbitrary base (not necessarily G).
func PowP(p Params, base Element, e Scalar) Element {
	r := new(big.Int).Exp(base.v, e.v, p.P)
	return Element{v: r}
}

// MulP computes a*b mod P — the group operation, and the mechanism by
// which package elgamal implements homomorphic addition of ciphertexts.
func MulP(p Params, a, b Element) Element {
	r := new(big.Int).Mul(a.v, b.v)
	r.Mod(r, p.P)
	return Element{v: r}
}

// InvP computes the multiplicative inverse of a mod P.
func InvP(p Params, a Element) (Element, error) {
	r := new(big.Int).ModInverse(a.v, p.P)
	if r == nil {
		return Element{}, fmt.Errorf("group: no inverse for element (P not prime?)")
	}
	return Element{v: r}, nil
}

// Hashable is implemented by every value package group knows how to
// canonically serialize into the H(...) transcript: Scalar, Element, and
// raw strings (wrapped with Label).
type Hashable interface {
	hashFrame() *big.Int
}

func (s Scalar) hashFrame() *big.Int { return s.v }
func (e Element) hashFrame() *big.Int { return e.v }

// Label wraps a UTF-8 string for inclusion in a hash transcript. It is
// reduced into a field element via its bytes, distinguishing it from
// numeric operands of the same magnitude (domain separation).
type Label string

func (l Label) hashFrame() *big.Int {
	return new(big.Int).SetBytes([]byte(l))
}

// bn254FrModulus is the scalar field modulus of BN254/alt_bn128, the field
// the Poseidon permutation operates over. Operands are reduced into this
// field before hashing; H's own output is reduced again, into [0,Q), so
// this reduction never affects the soundness of the Fiat–Shamir transform,
// only which concrete field Poseidon mixes the bits in.
var bn254FrModulus = mustInt("21888242871839275222246405745257275088548364400416034343698204186575808495617")

// H is the engine's Fiat–Shamir hash: it canonically frames each operand
// (length-delimited via the field reduction itself — every operand becomes
// exactly one field element) and folds them through Poseidon, chunking in
// groups of 16 and recursively hashing the chunk digests, mirroring
// crypto/hash/poseidon.MultiPoseidon. The result is reduced mod Q.
func H(p Params, operands ...Hashable) (Scalar, error) {
	if len(operands) == 0 {
		return Scalar{}, fmt.Errorf("group: H requires at least one operand")
	}
	ints := make([]*big.Int, len(operands))
	for i, op := range operands {
		ints[i] = new(big.Int).Mod(op.hashFrame(), bn254FrModulus)
	}
	digest, err := poseidonFold(ints)
	if err != nil {
		return Scalar{}, fmt.Errorf("group: hash-to-scalar failed: %w", err)
	}
	return NewScalar(p, digest), nil
}

// poseidonFold hashes a slice of field elements in chunks of at most 16
// (Poseidon's native arity limit here), recursively folding chunk digests
// until a single value remains.
func poseidonFold(ints []*big.Int) (*big.Int, error) {
	const maxArity = 16
	if len(ints) <= maxArity {
		return poseidon.Hash(ints)
	}
	chunks := make([]*big.Int, 0, (len(ints)+maxArity-1)/maxArity)
	for i := 0; i < len(ints); i += maxArity {
		end := i + maxArity
		if end > len(ints) {
			end = len(ints)
		}
		h, err := poseidon.Hash(ints[i:end])
		if err != nil {
			return nil, err
		}
		chunks = append(chunks, h)
	}
	if len(chunks) == 1 {
		return chunks[0], nil
	}
	return poseidonFold(chunks)
}
