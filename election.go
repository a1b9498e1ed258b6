// Package guardian is the engine's external façade: the operations a
// host drives an election through, wiring together packages group,
// elgamal, proof, dlog, sharing, ceremony, manifest, ballot, ballotbox,
// and decryption behind setup_trustees, encrypt_ballot, submit,
// append_to_tally, seal, partial_share, compensated_share, and combine.
package guardian

import (
	"fmt"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/amarvote/guardian-engine/ballot"
	"github.com/amarvote/guardian-engine/ballotbox"
	"github.com/amarvote/guardian-engine/ceremony"
	"github.com/amarvote/guardian-engine/config"
	"github.com/amarvote/guardian-engine/decryption"
	"github.com/amarvote/guardian-engine/elgamal"
	"github.com/amarvote/guardian-engine/group"
	"github.com/amarvote/guardian-engine/manifest"
	"github.com/amarvote/guardian-engine/sharing"
)

// TrusteeRecord is a single trustee's durable ceremony state: its secret
// polynomial and any backups it holds from peers.
type TrusteeRecord struct {
	ID         int
	Polynomial sharing.Polynomial
	// HeldBackups maps a peer id to the backup that peer sent this
	// trustee (used later to compensate for that peer if absent).
	HeldBackups map[int]sharing.Backup
}

// Election bundles everything setup_trustees produces: the joint key, the
// ceremony's published commitment hash, the manifest's extended hash, and
// per-trustee records.
type Election struct {
	Params         group.Params
	Manifest       *manifest.Manifest
	N              int
	Quorum         int
	BaseHash       group.Scalar
	ExtendedHash   group.Scalar
	JointKey       group.Element
	CommitmentHash group.Scalar
	Mediator       *ceremony.Mediator
	Trustees       map[int]TrusteeRecord
}

// ErrAlreadySetUp names a repeated setup_trustees call for one election.
// SetupTrustees itself keeps no state between calls and does not return
// it: every call runs a fresh ceremony and returns a new Election.
var ErrAlreadySetUp = fmt.Errorf("guardian: setup_trustees already run for this election")

// SetupTrustees runs the full key ceremony in-process for n trustees
// with the given quorum, against m, and returns the resulting Election
// Each trustee's polynomial is generated locally; a real deployment
// would instead have each trustee generate its own polynomial out of
// process and call the ceremony.Mediator steps directly, which
// SetupTrustees' body shows how to sequence.
func SetupTrustees(p group.Params, m *manifest.Manifest, n, quorum int) (*Election, error) {
	cfg := config.DefaultConfig(n, quorum)
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("guardian: %w", err)
	}

	baseHash, err := m.BaseHash(p)
	if err != nil {
		return nil, fmt.Errorf("guardian: %w", err)
	}
	// The extended hash needs the joint key and commitment hash, which the
	// ceremony itself hasn't produced yet; every proof inside the ceremony
	// is instead seeded with the base hash alone (the ceremony runs before
	// Q̄ can be computed), while every post-ceremony proof (ballots,
	// decryption) uses the full Q̄.
	med := ceremony.NewMediator(p, baseHash, n, quorum)

	trustees := make(map[int]TrusteeRecord, n)
	for id := 1; id <= n; id++ {
		poly, err := sharing.GeneratePolynomial(p, baseHash, quorum)
		if err != nil {
			return nil, fmt.Errorf("guardian: trustee %d: %w", id, err)
		}
		if err := med.Announce(id, poly); err != nil {
			return nil, fmt.Errorf("guardian: trustee %d announce: %w", id, err)
		}
		trustees[id] = TrusteeRecord{ID: id, Polynomial: poly, HeldBackups: make(map[int]sharing.Backup)}
	}

	for i := 1; i <= n; i++ {
		for j := 1; j <= n; j++ {
			if i == j {
				continue
			}
			value := sharing.Evaluate(p, trustees[i].Polynomial, j)
			b, err := sharing.SealBackup(p, trustees[i].Polynomial.SecretKey(), trustees[j].Polynomial.ShareKey(), i, j, value)
			if err != nil {
				return nil, fmt.Errorf("guardian: backup %d->%d: %w", i, j, err)
			}
			if err := med.SubmitBackup(i, j, b); err != nil {
				return nil, fmt.Errorf("guardian: submit backup %d->%d: %w", i, j, err)
			}
			trustees[j].HeldBackups[i] = b
		}
	}

	for i := 1; i <= n; i++ {
		for j := 1; j <= n; j++ {
			if i == j {
				continue
			}
			b, _ := med.Backup(i, j)
			value, err := sharing.OpenBackup(p, trustees[j].Polynomial.SecretKey(), trustees[i].Polynomial.ShareKey(), b)
			ok := err == nil && sharing.VerifyShare(p, value, trustees[i].Polynomial.Commitments, j)
			if err := med.ReportVerification(i, j, ok); err != nil {
				return nil, fmt.Errorf("guardian: verification %d->%d: %w", i, j, err)
			}
		}
	}

	jointKey, commitmentHash, err := med.Publish()
	if err != nil {
		return nil, fmt.Errorf("guardian: publish: %w", err)
	}

	extendedHash, err := manifest.ExtendedHash(p, baseHash, n, quorum, jointKey, commitmentHash)
	if err != nil {
		return nil, fmt.Errorf("guardian: %w", err)
	}

	return &Election{
		Params: p, Manifest: m, N: n, Quorum: quorum,
		BaseHash: baseHash, ExtendedHash: extendedHash,
		JointKey: jointKey, CommitmentHash: commitmentHash,
		Mediator: med, Trustees: trustees,
	}, nil
}

// EncryptBallot encrypts a plaintext ballot against el's style, joint key,
// and extended hash.
func (el *Election) EncryptBallot(pb ballot.PlaintextBallot, deviceCode group.Scalar, previous *group.Scalar, timestamp int64, xi group.Scalar) (ballot.CiphertextBallot, error) {
	return ballot.Encrypt(el.Params, el.ExtendedHash, el.JointKey, el.Manifest, pb, xi, deviceCode, previous, timestamp)
}

// Submit submits a ciphertext ballot to the caller's box as CAST or
// SPOILED; it is a thin wrapper over ballotbox.Box.Submit.
func (el *Election) Submit(box *ballotbox.Box, cb ballot.CiphertextBallot, spoiled bool, submittedAt int64, preVerified bool) (ballotbox.SubmittedBallot, error) {
	return box.Submit(cb, spoiled, submittedAt, preVerified)
}

// AppendToTally appends a submitted ballot to tally.
func (el *Election) AppendToTally(tally *ballotbox.CiphertextTally, sb ballotbox.SubmittedBallot) error {
	return tally.Append(el.Params, sb)
}

// Seal freezes tally against further appends.
func (el *Election) Seal(tally *ballotbox.CiphertextTally) {
	tally.Seal()
}

// PartialShare computes trustee.ID's decryption share for ct.
func (el *Election) PartialShare(ct elgamal.Ciphertext, trustee TrusteeRecord) (decryption.Share, error) {
	return decryption.PartialShare(el.Params, el.ExtendedHash, ct, trustee.ID, trustee.Polynomial.SecretKey(), trustee.Polynomial.ShareKey())
}

// CompensatedShare lets present stand in for absentID on ct, using
// present's held backup from absentID.
func (el *Election) CompensatedShare(ct elgamal.Ciphertext, present TrusteeRecord, absentID int) (decryption.CompensationContribution, error) {
	absentShareKey, err := el.Mediator.ShareKey(absentID)
	if err != nil {
		return decryption.CompensationContribution{}, fmt.Errorf("guardian: %w", err)
	}
	return decryption.ComputeCompensation(el.Params, el.ExtendedHash, ct, el.Mediator, present.ID, absentID, present.Polynomial.SecretKey(), absentShareKey)
}

// Combine reconstructs the plaintext m for ct from the present trustees'
// direct shares and each absent trustee's combined compensation share
// solver performs the final discrete-log lookup (package dlog).
func (el *Election) Combine(ct elgamal.Ciphertext, present []int, presentShares map[int]group.Element, compensatedByAbsent map[int][]decryption.CompensationContribution, solver decryption.Solver) (uint64, error) {
	shares := make(map[int]group.Element, el.N)
	for id, m := range presentShares {
		shares[id] = m
	}
	for absentID, contributions := range compensatedByAbsent {
		combined, err := decryption.CombineCompensation(el.Params, contributions)
		if err != nil {
			return 0, fmt.Errorf("guardian: compensating trustee %d: %w", absentID, err)
		}
		shares[absentID] = combined
	}
	return decryption.Decrypt(el.Params, ct, el.N, el.Quorum, present, shares, solver)
}

// TallyResults maps contest id -> selection id -> decrypted count.
type TallyResults map[string]map[string]uint64

// DecryptTally decrypts every selection accumulated in tally using only
// the given present trustees' own shares — no absent-trustee
// compensation. Each selection's partial-share computation, combination,
// and discrete-log recovery is independent of every other selection's, so
// the work is fanned out across an errgroup keyed by contest/selection.
// A tally with an absent trustee should have that trustee's contribution
// for each affected ciphertext reconstructed via CompensatedShare and
// folded into presentShares before calling Combine directly instead.
func (el *Election) DecryptTally(tally *ballotbox.CiphertextTally, present []int, solver decryption.Solver) (TallyResults, error) {
	if len(present) < el.Quorum {
		return nil, fmt.Errorf("guardian: decrypt tally: %w", decryption.ErrQuorumNotMet)
	}
	presentTrustees := make([]TrusteeRecord, 0, len(present))
	for _, id := range present {
		tr, ok := el.Trustees[id]
		if !ok {
			return nil, fmt.Errorf("guardian: decrypt tally: unknown trustee %d", id)
		}
		presentTrustees = append(presentTrustees, tr)
	}

	results := make(TallyResults, len(tally.Contests()))
	var mu sync.Mutex
	var g errgroup.Group
	for contestID, selections := range tally.Contests() {
		contestID, selections := contestID, selections
		results[contestID] = make(map[string]uint64, len(selections))
		for selectionID, ct := range selections {
			selectionID, ct := selectionID, ct
			g.Go(func() error {
				shares := make(map[int]group.Element, len(presentTrustees))
				for _, tr := range presentTrustees {
					share, err := decryption.PartialShare(el.Params, el.ExtendedHash, ct, tr.ID, tr.Polynomial.SecretKey(), tr.Polynomial.ShareKey())
					if err != nil {
						return fmt.Errorf("guardian: decrypt tally: %s/%s: %w", contestID, selectionID, err)
					}
					shares[tr.ID] = share.M
				}
				count, err := decryption.Decrypt(el.Params, ct, el.N, el.Quorum, present, shares, solver)
				if err != nil {
					return fmt.Errorf("guardian: decrypt tally: %s/%s: %w", contestID, selectionID, err)
				}
				mu.Lock()
				results[contestID][selectionID] = count
				mu.Unlock()
				return nil
			})
		}
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}
