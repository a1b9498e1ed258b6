package decryption

import (
	"math/big"
	"testing"

	qt "github.com/frankban/quicktest"

	"github.com/amarvote/guardian-engine/ceremony"
	"github.com/amarvote/guardian-engine/config"
	"github.com/amarvote/guardian-engine/dlog"
	"github.com/amarvote/guardian-engine/elgamal"
	"github.com/amarvote/guardian-engine/group"
	"github.com/amarvote/guardian-engine/sharing"
)

type ceremonyFixture struct {
	mediator *ceremony.Mediator
	polys    map[int]sharing.Polynomial
	jointKey group.Element
}

func runFullCeremony(c *qt.C, p group.Params, qbar group.Scalar, n, quorum int) ceremonyFixture {
	m := ceremony.NewMediator(p, qbar, n, quorum)
	polys := make(map[int]sharing.Polynomial, n)
	for id := 1; id <= n; id++ {
		poly, err := sharing.GeneratePolynomial(p, qbar, quorum)
		c.Assert(err, qt.IsNil)
		polys[id] = poly
		c.Assert(m.Announce(id, poly), qt.IsNil)
	}
	for i := 1; i <= n; i++ {
		for j := 1; j <= n; j++ {
			if i == j {
				continue
			}
			value := sharing.Evaluate(p, polys[i], j)
			b, err := sharing.SealBackup(p, polys[i].SecretKey(), polys[j].ShareKey(), i, j, value)
			c.Assert(err, qt.IsNil)
			c.Assert(m.SubmitBackup(i, j, b), qt.IsNil)
		}
	}
	for i := 1; i <= n; i++ {
		for j := 1; j <= n; j++ {
			if i == j {
				continue
			}
			b, ok := m.Backup(i, j)
			c.Assert(ok, qt.IsTrue)
			value, err := sharing.OpenBackup(p, polys[j].SecretKey(), polys[i].ShareKey(), b)
			c.Assert(err, qt.IsNil)
			c.Assert(m.ReportVerification(i, j, sharing.VerifyShare(p, value, polys[i].Commitments, j)), qt.IsNil)
		}
	}
	k, _, err := m.Publish()
	c.Assert(err, qt.IsNil)
	return ceremonyFixture{mediator: m, polys: polys, jointKey: k}
}

func testDlog(p group.Params) *dlog.Table {
	tbl, err := dlog.New(p, config.Config{DlogCeiling: 1000, DlogCacheSize: 1000, DlogBatchSize: 100})
	if err != nil {
		panic(err)
	}
	return tbl
}

func TestDecryptWithAllTrusteesPresent(t *testing.T) {
	c := qt.New(t)
	p := group.TestParams
	qbar := group.NewScalar(p, big.NewInt(1234))
	fx := runFullCeremony(c, p, qbar, 3, 3)

	plaintext := 5
	ct, _, err := elgamal.Encrypt(p, fx.jointKey, group.NewScalar(p, big.NewInt(int64(plaintext))))
	c.Assert(err, qt.IsNil)

	shares := make(map[int]group.Element)
	for id := 1; id <= 3; id++ {
		shareKey, err := fx.mediator.ShareKey(id)
		c.Assert(err, qt.IsNil)
		sh, err := PartialShare(p, qbar, ct, id, fx.polys[id].SecretKey(), shareKey)
		c.Assert(err, qt.IsNil)
		c.Assert(VerifyPartialShare(p, qbar, ct, shareKey, sh), qt.IsNil)
		shares[id] = sh.M
	}

	solver := testDlog(p)
	m, err := Decrypt(p, ct, 3, 3, []int{1, 2, 3}, shares, solver)
	c.Assert(err, qt.IsNil)
	c.Assert(m, qt.Equals, uint64(plaintext))
}

func TestDecryptWithCompensationForAbsentTrustee(t *testing.T) {
	c := qt.New(t)
	p := group.TestParams
	qbar := group.NewScalar(p, big.NewInt(5678))
	fx := runFullCeremony(c, p, qbar, 3, 2)

	plaintext := 7
	ct, _, err := elgamal.Encrypt(p, fx.jointKey, group.NewScalar(p, big.NewInt(int64(plaintext))))
	c.Assert(err, qt.IsNil)

	present := []int{1, 2}
	absent := 3

	shares := make(map[int]group.Element)
	for _, id := range present {
		shareKey, err := fx.mediator.ShareKey(id)
		c.Assert(err, qt.IsNil)
		sh, err := PartialShare(p, qbar, ct, id, fx.polys[id].SecretKey(), shareKey)
		c.Assert(err, qt.IsNil)
		shares[id] = sh.M
	}

	absentShareKey, err := fx.mediator.ShareKey(absent)
	c.Assert(err, qt.IsNil)
	var contributions []CompensationContribution
	for _, id := range present {
		contrib, err := ComputeCompensation(p, qbar, ct, fx.mediator, id, absent, fx.polys[id].SecretKey(), absentShareKey)
		c.Assert(err, qt.IsNil)
		contributions = append(contributions, contrib)
	}
	combined, err := CombineCompensation(p, contributions)
	c.Assert(err, qt.IsNil)
	shares[absent] = combined

	solver := testDlog(p)
	m, err := Decrypt(p, ct, 3, 2, present, shares, solver)
	c.Assert(err, qt.IsNil)
	c.Assert(m, qt.Equals, uint64(plaintext))
}

func TestDecryptFailsWhenQuorumNotMet(t *testing.T) {
	c := qt.New(t)
	p := group.TestParams
	qbar := group.NewScalar(p, big.NewInt(9012))
	fx := runFullCeremony(c, p, qbar, 5, 3)

	ct, _, err := elgamal.Encrypt(p, fx.jointKey, group.NewScalar(p, big.NewInt(2)))
	c.Assert(err, qt.IsNil)

	present := []int{1, 2} // below quorum of 3
	shares := make(map[int]group.Element)
	for _, id := range present {
		shareKey, err := fx.mediator.ShareKey(id)
		c.Assert(err, qt.IsNil)
		sh, err := PartialShare(p, qbar, ct, id, fx.polys[id].SecretKey(), shareKey)
		c.Assert(err, qt.IsNil)
		shares[id] = sh.M
	}

	_, err = Combine(p, ct, 5, 3, present, shares)
	c.Assert(err, qt.ErrorIs, ErrQuorumNotMet)
}

// Two different valid quorum subsets of the same N=5,k=3 ceremony, each
// supplying its own shares plus compensation for the two trustees outside
// it, must reconstruct the same plaintext regardless of which trustees
// happened to be present.
func TestQuorumSubsetsAgreeOnTheSamePlaintext(t *testing.T) {
	c := qt.New(t)
	p := group.TestParams
	qbar := group.NewScalar(p, big.NewInt(2468))
	fx := runFullCeremony(c, p, qbar, 5, 3)

	plaintext := 9
	ct, _, err := elgamal.Encrypt(p, fx.jointKey, group.NewScalar(p, big.NewInt(int64(plaintext))))
	c.Assert(err, qt.IsNil)

	sharesFor := func(present []int) map[int]group.Element {
		shares := make(map[int]group.Element)
		isPresent := make(map[int]bool, len(present))
		for _, id := range present {
			isPresent[id] = true
			shareKey, err := fx.mediator.ShareKey(id)
			c.Assert(err, qt.IsNil)
			sh, err := PartialShare(p, qbar, ct, id, fx.polys[id].SecretKey(), shareKey)
			c.Assert(err, qt.IsNil)
			shares[id] = sh.M
		}
		for absent := 1; absent <= 5; absent++ {
			if isPresent[absent] {
				continue
			}
			absentShareKey, err := fx.mediator.ShareKey(absent)
			c.Assert(err, qt.IsNil)
			var contributions []CompensationContribution
			for _, id := range present {
				contrib, err := ComputeCompensation(p, qbar, ct, fx.mediator, id, absent, fx.polys[id].SecretKey(), absentShareKey)
				c.Assert(err, qt.IsNil)
				contributions = append(contributions, contrib)
			}
			combined, err := CombineCompensation(p, contributions)
			c.Assert(err, qt.IsNil)
			shares[absent] = combined
		}
		return shares
	}

	solver := testDlog(p)

	mA, err := Decrypt(p, ct, 5, 3, []int{1, 2, 3}, sharesFor([]int{1, 2, 3}), solver)
	c.Assert(err, qt.IsNil)
	mB, err := Decrypt(p, ct, 5, 3, []int{1, 4, 5}, sharesFor([]int{1, 4, 5}), solver)
	c.Assert(err, qt.IsNil)

	c.Assert(mA, qt.Equals, uint64(plaintext))
	c.Assert(mB, qt.Equals, mA)
}

// A quorum with two absent trustees, each compensated by every present
// trustee, reconstructs the same plaintext as decrypting with all five
// trustees present directly.
func TestQuorumWithTwoAbsentTrusteesCompensatedAgreesWithAllPresent(t *testing.T) {
	c := qt.New(t)
	p := group.TestParams
	qbar := group.NewScalar(p, big.NewInt(13579))
	fx := runFullCeremony(c, p, qbar, 5, 3)

	plaintext := 4
	ct, _, err := elgamal.Encrypt(p, fx.jointKey, group.NewScalar(p, big.NewInt(int64(plaintext))))
	c.Assert(err, qt.IsNil)

	present := []int{1, 2, 3}
	absent := []int{4, 5}

	shares := make(map[int]group.Element)
	for _, id := range present {
		shareKey, err := fx.mediator.ShareKey(id)
		c.Assert(err, qt.IsNil)
		sh, err := PartialShare(p, qbar, ct, id, fx.polys[id].SecretKey(), shareKey)
		c.Assert(err, qt.IsNil)
		shares[id] = sh.M
	}

	for _, a := range absent {
		absentShareKey, err := fx.mediator.ShareKey(a)
		c.Assert(err, qt.IsNil)
		var contributions []CompensationContribution
		for _, id := range present {
			contrib, err := ComputeCompensation(p, qbar, ct, fx.mediator, id, a, fx.polys[id].SecretKey(), absentShareKey)
			c.Assert(err, qt.IsNil)
			contributions = append(contributions, contrib)
		}
		combined, err := CombineCompensation(p, contributions)
		c.Assert(err, qt.IsNil)
		shares[a] = combined
	}

	solver := testDlog(p)
	m, err := Decrypt(p, ct, 5, 3, present, shares, solver)
	c.Assert(err, qt.IsNil)
	c.Assert(m, qt.Equals, uint64(plaintext))

	allShares := make(map[int]group.Element)
	for id := 1; id <= 5; id++ {
		shareKey, err := fx.mediator.ShareKey(id)
		c.Assert(err, qt.IsNil)
		sh, err := PartialShare(p, qbar, ct, id, fx.polys[id].SecretKey(), shareKey)
		c.Assert(err, qt.IsNil)
		allShares[id] = sh.M
	}
	mAll, err := Decrypt(p, ct, 5, 3, []int{1, 2, 3, 4, 5}, allShares, solver)
	c.Assert(err, qt.IsNil)
	c.Assert(mAll, qt.Equals, m)
}

func TestVerifyPartialShareRejectsTamperedProof(t *testing.T) {
	c := qt.New(t)
	p := group.TestParams
	qbar := group.NewScalar(p, big.NewInt(3456))
	fx := runFullCeremony(c, p, qbar, 2, 2)

	ct, _, err := elgamal.Encrypt(p, fx.jointKey, group.NewScalar(p, big.NewInt(1)))
	c.Assert(err, qt.IsNil)

	shareKey, err := fx.mediator.ShareKey(1)
	c.Assert(err, qt.IsNil)
	sh, err := PartialShare(p, qbar, ct, 1, fx.polys[1].SecretKey(), shareKey)
	c.Assert(err, qt.IsNil)
	sh.Proof.Response = group.AddQ(p, sh.Proof.Response, group.OneScalar())

	err = VerifyPartialShare(p, qbar, ct, shareKey, sh)
	c.Assert(err, qt.Not(qt.IsNil))
}
