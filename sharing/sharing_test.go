package sharing

import (
	"math/big"
	"testing"

	qt "github.com/frankban/quicktest"

	"github.com/amarvote/guardian-engine/group"
)

func testQbar(p group.Params) group.Scalar {
	return group.NewScalar(p, big.NewInt(987654))
}

func TestPolynomialEvaluationMatchesCommitments(t *testing.T) {
	c := qt.New(t)
	p := group.TestParams
	qbar := testQbar(p)

	poly, err := GeneratePolynomial(p, qbar, 3)
	c.Assert(err, qt.IsNil)
	c.Assert(poly.VerifyCommitments(p, qbar), qt.IsNil)

	for _, x := range []int{1, 2, 5} {
		value := Evaluate(p, poly, x)
		c.Assert(VerifyShare(p, value, poly.Commitments, x), qt.IsTrue)
	}
}

func TestVerifyShareRejectsWrongValue(t *testing.T) {
	c := qt.New(t)
	p := group.TestParams
	qbar := testQbar(p)

	poly, err := GeneratePolynomial(p, qbar, 2)
	c.Assert(err, qt.IsNil)

	wrong := group.AddQ(p, Evaluate(p, poly, 3), group.OneScalar())
	c.Assert(VerifyShare(p, wrong, poly.Commitments, 3), qt.IsFalse)
}

func TestBackupSealAndOpenRoundTrip(t *testing.T) {
	c := qt.New(t)
	p := group.TestParams
	qbar := testQbar(p)

	polyI, err := GeneratePolynomial(p, qbar, 2)
	c.Assert(err, qt.IsNil)
	polyJ, err := GeneratePolynomial(p, qbar, 2)
	c.Assert(err, qt.IsNil)

	value := Evaluate(p, polyI, 2) // P_i(j) for j=2

	b, err := SealBackup(p, polyI.SecretKey(), polyJ.ShareKey(), 1, 2, value)
	c.Assert(err, qt.IsNil)

	recovered, err := OpenBackup(p, polyJ.SecretKey(), polyI.ShareKey(), b)
	c.Assert(err, qt.IsNil)
	c.Assert(recovered.Equal(value), qt.IsTrue)

	c.Assert(VerifyShare(p, recovered, polyI.Commitments, 2), qt.IsTrue)
}

func TestBackupOpenRejectsTamperedCiphertext(t *testing.T) {
	c := qt.New(t)
	p := group.TestParams
	qbar := testQbar(p)

	polyI, err := GeneratePolynomial(p, qbar, 2)
	c.Assert(err, qt.IsNil)
	polyJ, err := GeneratePolynomial(p, qbar, 2)
	c.Assert(err, qt.IsNil)

	value := Evaluate(p, polyI, 2)
	b, err := SealBackup(p, polyI.SecretKey(), polyJ.ShareKey(), 1, 2, value)
	c.Assert(err, qt.IsNil)

	b.Ciphertext[0] ^= 0xFF
	_, err = OpenBackup(p, polyJ.SecretKey(), polyI.ShareKey(), b)
	c.Assert(err, qt.Equals, ErrBackupMAC)
}

func TestLagrangeCoefficientsReconstructSecret(t *testing.T) {
	c := qt.New(t)
	p := group.TestParams
	qbar := testQbar(p)

	poly, err := GeneratePolynomial(p, qbar, 3) // degree 2, quorum 3
	c.Assert(err, qt.IsNil)

	present := []int{1, 2, 3}
	shares := make(map[int]group.Scalar)
	for _, x := range present {
		shares[x] = Evaluate(p, poly, x)
	}

	lambdas, err := LagrangeCoefficients(p, present)
	c.Assert(err, qt.IsNil)

	reconstructed := group.ZeroScalar()
	for _, i := range present {
		term := group.MulQ(p, shares[i], lambdas[i])
		reconstructed = group.AddQ(p, reconstructed, term)
	}
	c.Assert(reconstructed.Equal(poly.SecretKey()), qt.IsTrue)
}
