// Package sharing implements degree-(k−1) Shamir polynomials over
// scalars, per-coefficient commitments with Schnorr proofs, evaluation at
// trustee indices, and encrypted-and-MACed partial key backups between
// trustees, authenticated with an encrypt-then-MAC construction over a
// Diffie–Hellman shared secret.
package sharing

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"fmt"
	"math/big"

	"github.com/amarvote/guardian-engine/group"
	"github.com/amarvote/guardian-engine/proof"
)

// Polynomial is a trustee's secret polynomial of degree quorum-1:
// coefficients a_0..a_{k-1}, each with a public commitment K_l = g^a_l and
// a Schnorr proof of knowledge of a_l.
type Polynomial struct {
	Coefficients []group.Scalar
	Commitments  []group.Element
	Proofs       []proof.SchnorrProof
}

// ErrDegreeMismatch is returned when a polynomial's coefficient count does
// not equal the quorum it was meant to satisfy.
var ErrDegreeMismatch = fmt.Errorf("sharing: coefficient count does not match quorum")

// GeneratePolynomial samples a fresh degree-(quorum-1) polynomial with
// uniformly random coefficients in Z_q and builds the public commitments
// and Schnorr proofs for each. qbar seeds every proof transcript.
func GeneratePolynomial(p group.Params, qbar group.Scalar, quorum int) (Polynomial, error) {
	if quorum < 1 {
		return Polynomial{}, fmt.Errorf("sharing: quorum must be at least 1, got %d", quorum)
	}
	poly := Polynomial{
		Coefficients: make([]group.Scalar, quorum),
		Commitments:  make([]group.Element, quorum),
		Proofs:       make([]proof.SchnorrProof, quorum),
	}
	for l := 0; l < quorum; l++ {
		a, err := group.RandomScalar(p, func(max *big.Int) (*big.Int, error) { return rand.Int(rand.Reader, max) })
		if err != nil {
			return Polynomial{}, fmt.Errorf("sharing: failed to sample coefficient %d: %w", l, err)
		}
		k := group.GPow(p, a)
		pr, err := proof.BuildSchnorr(p, qbar, k, a)
		if err != nil {
			return Polynomial{}, fmt.Errorf("sharing: failed to prove coefficient %d: %w", l, err)
		}
		poly.Coefficients[l] = a
		poly.Commitments[l] = k
		poly.Proofs[l] = pr
	}
	return poly, nil
}

// SecretKey returns the constant term a_0, the trustee's long-term secret.
func (poly Polynomial) SecretKey() group.Scalar { return poly.Coefficients[0] }

// ShareKey returns y = g^{a_0}, the trustee's published share-key.
func (poly Polynomial) ShareKey() group.Element { return poly.Commitments[0] }

// VerifyCommitments checks every coefficient's Schnorr proof against its
// commitment.
func (poly Polynomial) VerifyCommitments(p group.Params, qbar group.Scalar) error {
	if len(poly.Coefficients) != 0 && len(poly.Proofs) != len(poly.Commitments) {
		return fmt.Errorf("sharing: commitment/proof length mismatch")
	}
	for l, pr := range poly.Proofs {
		if err := pr.Verify(p, qbar, poly.Commitments[l]); err != nil {
			return fmt.Errorf("sharing: coefficient %d proof invalid: %w", l, err)
		}
	}
	return nil
}

// Evaluate computes P(x) = sum_l a_l * x^l mod q.
func Evaluate(p group.Params, poly Polynomial, x int) group.Scalar {
	result := group.ZeroScalar()
	xPower := group.OneScalar()
	xs := group.NewScalar(p, big.NewInt(int64(x)))
	for _, a := range poly.Coefficients {
		term := group.MulQ(p, a, xPower)
		result = group.AddQ(p, result, term)
		xPower = group.MulQ(p, xPower, xs)
	}
	return result
}

// ExpectedCommitment computes prod_l K_l^{x^l} mod P, the value a correctly
// evaluated share must equal g^{P(x)} against.
func ExpectedCommitment(p group.Params, commitments []group.Element, x int) group.Element {
	result := group.Identity()
	xPower := group.OneScalar()
	xs := group.NewScalar(p, big.NewInt(int64(x)))
	for _, k := range commitments {
		result = group.MulP(p, result, group.PowP(p, k, xPower))
		xPower = group.MulQ(p, xPower, xs)
	}
	return result
}

// VerifyShare checks g^{value} == ExpectedCommitment(commitments, x):
// every backup a receiving trustee saves must verify before it is relied
// on for later compensation.
func VerifyShare(p group.Params, value group.Scalar, commitments []group.Element, x int) bool {
	lhs := group.GPow(p, value)
	rhs := ExpectedCommitment(p, commitments, x)
	return lhs.Equal(rhs)
}

// Backup is the encrypted-and-MACed coordinate P_i(j) that trustee i sends
// to trustee j, bound to a Diffie–Hellman shared secret between i's secret
// and j's public key.
type Backup struct {
	FromID       int
	ToID         int
	Ciphertext   []byte // P_i(j) XORed with a key-derivation-function stream
	MAC          []byte
	CoeffProofOf int // redundant echo of FromID, kept for self-describing logs
}

// ErrBackupMAC is returned by OpenBackup when the MAC does not authenticate.
var ErrBackupMAC = fmt.Errorf("sharing: backup MAC verification failed")

// SealBackup encrypts P_i(j) for trustee j using a key derived from
// DH(i's secret a_i,0, j's public share-key y_j) = y_j^{a_i,0} = g^{a_i,0 *
// a_j,0}, then MACs the ciphertext under a second derived key.
// fromID/toID are bound into the KDF context so a
// ciphertext cannot be replayed against a different sender/recipient pair.
func SealBackup(p group.Params, fromSecret group.Scalar, toPublic group.Element, fromID, toID int, value group.Scalar) (Backup, error) {
	shared := group.PowP(p, toPublic, fromSecret)
	encKey, macKey := deriveKeys(shared, fromID, toID)

	plaintext := value.Int().Bytes()
	ct := xorStream(encKey, plaintext)
	mac := computeMAC(macKey, fromID, toID, ct)

	return Backup{FromID: fromID, ToID: toID, Ciphertext: ct, MAC: mac, CoeffProofOf: fromID}, nil
}

// OpenBackup recovers P_i(j) for the recipient, authenticating first.
// toSecret is j's secret a_j,0; fromPublic is i's published share-key y_i.
func OpenBackup(p group.Params, toSecret group.Scalar, fromPublic group.Element, b Backup) (group.Scalar, error) {
	shared := group.PowP(p, fromPublic, toSecret)
	encKey, macKey := deriveKeys(shared, b.FromID, b.ToID)

	expectedMAC := computeMAC(macKey, b.FromID, b.ToID, b.Ciphertext)
	if !hmac.Equal(expectedMAC, b.MAC) {
		return group.Scalar{}, ErrBackupMAC
	}
	plaintext := xorStream(encKey, b.Ciphertext)
	return group.NewScalar(p, new(big.Int).SetBytes(plaintext)), nil
}

func deriveKeys(shared group.Element, fromID, toID int) (encKey, macKey []byte) {
	base := sha256.Sum256(append(shared.Int().Bytes(), []byte(fmt.Sprintf("|%d|%d", fromID, toID))...))
	enc := sha256.Sum256(append(base[:], 'e'))
	mac := sha256.Sum256(append(base[:], 'm'))
	return enc[:], mac[:]
}

func xorStream(key, data []byte) []byte {
	out := make([]byte, len(data))
	stream := key
	for len(stream) < len(data) {
		next := sha256.Sum256(stream)
		stream = append(stream, next[:]...)
	}
	for i := range data {
		out[i] = data[i] ^ stream[i]
	}
	return out
}

func computeMAC(macKey []byte, fromID, toID int, ciphertext []byte) []byte {
	mac := hmac.New(sha256.New, macKey)
	fmt.Fprintf(mac, "%d|%d|", fromID, toID)
	mac.Write(ciphertext)
	return mac.Sum(nil)
}

// LagrangeCoefficients computes lambda_i = prod_{j in present, j!=i} j *
// (j-i)^-1 mod q for every i in present, the weights used to combine
// decryption shares at x=0.
func LagrangeCoefficients(p group.Params, present []int) (map[int]group.Scalar, error) {
	coeffs := make(map[int]group.Scalar, len(present))
	for _, i := range present {
		num := group.OneScalar()
		den := group.OneScalar()
		for _, j := range present {
			if j == i {
				continue
			}
			num = group.MulQ(p, num, group.NewScalar(p, big.NewInt(int64(j))))
			diff := group.NewScalar(p, big.NewInt(int64(j-i)))
			den = group.MulQ(p, den, diff)
		}
		denInv, err := group.InvQ(p, den)
		if err != nil {
			return nil, fmt.Errorf("sharing: lagrange coefficient for trustee %d: %w", i, err)
		}
		coeffs[i] = group.MulQ(p, num, denInv)
	}
	return coeffs, nil
}
