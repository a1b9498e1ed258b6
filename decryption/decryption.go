// Package decryption implements partial and compensated decryption
// shares, their combination via Lagrange interpolation, and recovery of
// plaintext tallies and spoiled-ballot selections. Trustees below quorum
// are compensated for by present trustees reconstructing their share from
// held backups.
package decryption

import (
	"fmt"

	"github.com/amarvote/guardian-engine/ceremony"
	"github.com/amarvote/guardian-engine/elgamal"
	"github.com/amarvote/guardian-engine/group"
	"github.com/amarvote/guardian-engine/proof"
	"github.com/amarvote/guardian-engine/sharing"
)

// Share is a trustee's decryption share for one ciphertext, with its proof
// of correct computation.
type Share struct {
	TrusteeID int
	M         group.Element
	Proof     proof.ChaumPedersenProof
}

// Sentinel errors returned during decryption.
var (
	ErrQuorumNotMet          = fmt.Errorf("decryption: present trustees do not meet the quorum")
	ErrInvalidDecryptionShare = fmt.Errorf("decryption: a trustee's decryption share failed verification")
	ErrMissingCompensation   = fmt.Errorf("decryption: no present trustee supplied compensation for an absent trustee")
	ErrBackupNotHeld         = fmt.Errorf("decryption: present trustee does not hold a backup for the absent trustee")
)

// PartialShare computes a present trustee's decryption share M_i = A^{s_i}
// for ciphertext ct, with a Chaum–Pedersen proof that log_g(y_i) ==
// log_A(M_i).
func PartialShare(p group.Params, qbar group.Scalar, ct elgamal.Ciphertext, trusteeID int, secret group.Scalar, shareKey group.Element) (Share, error) {
	m := group.PowP(p, ct.Pad, secret)
	pr, err := proof.BuildChaumPedersen(p, qbar, ct.Pad, shareKey, m, secret)
	if err != nil {
		return Share{}, fmt.Errorf("decryption: partial share for trustee %d: %w", trusteeID, err)
	}
	return Share{TrusteeID: trusteeID, M: m, Proof: pr}, nil
}

// VerifyPartialShare checks a partial share's proof against the trustee's
// published share-key.
func VerifyPartialShare(p group.Params, qbar group.Scalar, ct elgamal.Ciphertext, shareKey group.Element, s Share) error {
	if err := s.Proof.Verify(p, qbar, ct.Pad, shareKey, s.M); err != nil {
		return fmt.Errorf("%w: trustee %d: %v", ErrInvalidDecryptionShare, s.TrusteeID, err)
	}
	return nil
}

// CompensationContribution is one present trustee's reconstructed
// coordinate for an absent trustee, before combination across present
// trustees.
type CompensationContribution struct {
	PresentID int
	Share     Share // M_{l,i} = A^{P_l(i)}, with CP proof against g^{P_l(i)}
}

// ComputeCompensation lets presentID stand in for absentID: it opens the
// backup presentID holds from absentID to recover P_absent(present), then
// computes M_{absent,present} = A^{P_absent(present)} with a CP proof
// against g^{P_absent(present)} (recomputable by anyone from absentID's
// published coefficient commitments via sharing.ExpectedCommitment).
func ComputeCompensation(p group.Params, qbar group.Scalar, ct elgamal.Ciphertext, m *ceremony.Mediator, presentID, absentID int, presentSecret group.Scalar, absentShareKey group.Element) (CompensationContribution, error) {
	backup, ok := m.Backup(absentID, presentID)
	if !ok {
		return CompensationContribution{}, fmt.Errorf("%w: trustee %d holds no backup from %d", ErrBackupNotHeld, presentID, absentID)
	}
	coordinate, err := sharing.OpenBackup(p, presentSecret, absentShareKey, backup)
	if err != nil {
		return CompensationContribution{}, fmt.Errorf("decryption: opening backup from %d held by %d: %w", absentID, presentID, err)
	}
	commitments, err := m.Commitments(absentID)
	if err != nil {
		return CompensationContribution{}, fmt.Errorf("decryption: %w", err)
	}
	if !sharing.VerifyShare(p, coordinate, commitments, presentID) {
		return CompensationContribution{}, fmt.Errorf("decryption: backup from %d held by %d does not verify against published commitments", absentID, presentID)
	}

	mShare := group.PowP(p, ct.Pad, coordinate)
	reconstructedKey := sharing.ExpectedCommitment(p, commitments, presentID)
	pr, err := proof.BuildChaumPedersen(p, qbar, ct.Pad, reconstructedKey, mShare, coordinate)
	if err != nil {
		return CompensationContribution{}, fmt.Errorf("decryption: compensation proof: %w", err)
	}
	return CompensationContribution{PresentID: presentID, Share: Share{TrusteeID: presentID, M: mShare, Proof: pr}}, nil
}

// CombineCompensation reconstructs M_absent = A^{s_absent} from the
// contributions of every present trustee holding a backup for absentID,
// weighted by Lagrange coefficients at x=0 over the contributing present
// indices.
func CombineCompensation(p group.Params, contributions []CompensationContribution) (group.Element, error) {
	if len(contributions) == 0 {
		return group.Element{}, fmt.Errorf("%w: no contributions supplied", ErrMissingCompensation)
	}
	present := make([]int, len(contributions))
	for i, c := range contributions {
		present[i] = c.PresentID
	}
	lambdas, err := sharing.LagrangeCoefficients(p, present)
	if err != nil {
		return group.Element{}, fmt.Errorf("decryption: lagrange coefficients: %w", err)
	}
	result := group.Identity()
	for _, c := range contributions {
		term := group.PowP(p, c.Share.M, lambdas[c.PresentID])
		result = group.MulP(p, result, term)
	}
	return result, nil
}

// Combine reconstructs g^m from a ciphertext and every trustee's share
// (direct M_i for present trustees, CombineCompensation's M_l for absent
// ones), one entry per trustee in [1, n]. present must have at least
// quorum entries; every entry in shares not in present is treated as a
// compensated reconstruction.
func Combine(p group.Params, ct elgamal.Ciphertext, n, quorum int, present []int, shares map[int]group.Element) (group.Element, error) {
	if len(present) < quorum {
		return group.Element{}, fmt.Errorf("%w: have %d, need %d", ErrQuorumNotMet, len(present), quorum)
	}
	product := group.Identity()
	for i := 1; i <= n; i++ {
		m, ok := shares[i]
		if !ok {
			return group.Element{}, fmt.Errorf("%w: missing share for trustee %d", ErrMissingCompensation, i)
		}
		product = group.MulP(p, product, m)
	}
	productInv, err := group.InvP(p, product)
	if err != nil {
		return group.Element{}, fmt.Errorf("decryption: combine: %w", err)
	}
	return group.MulP(p, ct.Data, productInv), nil
}

// Solver inverts a recovered g^m group element back to the integer m
// (package dlog implements this).
type Solver interface {
	Solve(p group.Params, h group.Element) (uint64, error)
}

// Decrypt is the end-to-end convenience: Combine followed by a
// discrete-log lookup.
func Decrypt(p group.Params, ct elgamal.Ciphertext, n, quorum int, present []int, shares map[int]group.Element, solver Solver) (uint64, error) {
	gm, err := Combine(p, ct, n, quorum, present, shares)
	if err != nil {
		return 0, err
	}
	m, err := solver.Solve(p, gm)
	if err != nil {
		return 0, fmt.Errorf("decryption: %w", err)
	}
	return m, nil
}
