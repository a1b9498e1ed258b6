// Package ballot encrypts a PlaintextBallot under the joint public key,
// attaching a disjunctive zero-knowledge proof to each selection and an
// aggregate range-sum proof to each contest, and computes the ballot's
// crypto hash and tracking code. A device's first ballot chains against
// its own device code rather than a prior ballot hash.
package ballot

import (
	"fmt"
	"math/big"

	"golang.org/x/sync/errgroup"

	"github.com/amarvote/guardian-engine/elgamal"
	"github.com/amarvote/guardian-engine/group"
	"github.com/amarvote/guardian-engine/manifest"
	"github.com/amarvote/guardian-engine/proof"
)

func voteBig(vote int) *big.Int      { return big.NewInt(int64(vote)) }
func timestampBig(ts int64) *big.Int { return big.NewInt(ts) }

// PlaintextSelection is a single 0/1 vote on a plaintext ballot.
type PlaintextSelection struct {
	SelectionID string
	Vote        int
}

// PlaintextContest is the voter's selections within one contest.
type PlaintextContest struct {
	ContestID  string
	Selections []PlaintextSelection
}

// PlaintextBallot is the voter's ballot before encryption.
type PlaintextBallot struct {
	BallotID string
	StyleID  string
	Contests []PlaintextContest
}

// CiphertextSelection is one encrypted selection with its disjunctive
// proof.
type CiphertextSelection struct {
	SelectionID string
	Placeholder bool
	Ciphertext  elgamal.Ciphertext
	Proof       proof.DisjunctiveProof
}

// CiphertextContest is a contest's encrypted selections plus the
// aggregate range-sum proof.
type CiphertextContest struct {
	ContestID  string
	Selections []CiphertextSelection
	Sum        elgamal.Ciphertext
	SumProof   proof.ChaumPedersenProof
}

// TrackingCode is the per-ballot chain link.
type TrackingCode struct {
	DeviceCode     group.Scalar
	Previous       *group.Scalar // nil only for a device's first ballot
	Timestamp      int64
	BallotHash     group.Scalar
	Code           group.Scalar
}

// CiphertextBallot is an encrypted ballot ready for submission.
type CiphertextBallot struct {
	BallotID   string
	StyleID    string
	Contests   []CiphertextContest
	CryptoHash group.Scalar
	Tracking   TrackingCode
}

// Sentinel errors returned while encrypting or verifying a ballot.
var (
	ErrStyleNotFound         = manifest.ErrStyleNotFound
	ErrVoteOutOfRange        = fmt.Errorf("ballot: vote must be 0 or 1")
	ErrSumConstraintViolated = fmt.Errorf("ballot: selection sum does not equal votes_allowed")
	ErrProofGenerationFailed = fmt.Errorf("ballot: proof generation failed")
	ErrContestNotOnStyle     = fmt.Errorf("ballot: contest is not part of the ballot's style")
	ErrUnknownSelection      = fmt.Errorf("ballot: plaintext references unknown selection")
)

// deriveNonce computes a per-selection nonce from (xi, contest_id,
// selection_id).
func deriveNonce(p group.Params, xi group.Scalar, contestID, selectionID string) (group.Scalar, error) {
	n, err := group.H(p, xi, group.Label(contestID), group.Label(selectionID))
	if err != nil {
		return group.Scalar{}, fmt.Errorf("ballot: derive nonce: %w", err)
	}
	return n, nil
}

// Encrypt encrypts a plaintext ballot against m's style in the given
// manifest, under joint key k, using xi as the per-encryption nonce seed.
// deviceCode/previous/timestamp feed the tracking code. Contest encryption
// is fanned out concurrently across an errgroup.
func Encrypt(p group.Params, qbar group.Scalar, k group.Element, m *manifest.Manifest, pb PlaintextBallot, xi group.Scalar, deviceCode group.Scalar, previous *group.Scalar, timestamp int64) (CiphertextBallot, error) {
	style, ok := m.Style(pb.StyleID)
	if !ok {
		return CiphertextBallot{}, ErrStyleNotFound
	}
	allowedContests := make(map[string]bool, len(style.ContestIDs))
	for _, cid := range style.ContestIDs {
		allowedContests[cid] = true
	}

	results := make([]CiphertextContest, len(pb.Contests))
	var g errgroup.Group
	for idx, pc := range pb.Contests {
		idx, pc := idx, pc
		g.Go(func() error {
			if !allowedContests[pc.ContestID] {
				return ErrContestNotOnStyle
			}
			contest, found := m.Contest(pc.ContestID)
			if !found {
				return fmt.Errorf("ballot: unknown contest %s", pc.ContestID)
			}
			encrypted, err := encryptContest(p, qbar, k, contest, pc, xi)
			if err != nil {
				return err
			}
			results[idx] = encrypted
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return CiphertextBallot{}, err
	}

	cryptoHash, err := ballotCryptoHash(p, results)
	if err != nil {
		return CiphertextBallot{}, err
	}

	prevOrDevice := deviceCode
	if previous != nil {
		prevOrDevice = *previous
	}
	code, err := group.H(p, deviceCode, prevOrDevice, group.NewScalar(p, timestampBig(timestamp)), cryptoHash)
	if err != nil {
		return CiphertextBallot{}, fmt.Errorf("ballot: tracking code: %w", err)
	}

	return CiphertextBallot{
		BallotID: pb.BallotID,
		StyleID:  pb.StyleID,
		Contests: results,
		CryptoHash: cryptoHash,
		Tracking: TrackingCode{
			DeviceCode: deviceCode,
			Previous:   previous,
			Timestamp:  timestamp,
			BallotHash: cryptoHash,
			Code:       code,
		},
	}, nil
}

func encryptContest(p group.Params, qbar group.Scalar, k group.Element, contest manifest.Contest, pc PlaintextContest, xi group.Scalar) (CiphertextContest, error) {
	votes := make(map[string]int, len(pc.Selections))
	sum := 0
	for _, sel := range pc.Selections {
		if sel.Vote != 0 && sel.Vote != 1 {
			return CiphertextContest{}, ErrVoteOutOfRange
		}
		votes[sel.SelectionID] = sel.Vote
		sum += sel.Vote
	}
	withPH := contest.WithPlaceholders()
	if sum > contest.VotesAllowed {
		return CiphertextContest{}, ErrSumConstraintViolated
	}
	placeholdersOn := contest.VotesAllowed - sum

	out := CiphertextContest{ContestID: contest.ObjectID}
	sumCt := elgamal.IdentityCiphertext()
	rSum := group.ZeroScalar()
	placeholderIdx := 0

	for _, sel := range withPH.Selections {
		var vote int
		if sel.Placeholder {
			if placeholderIdx < placeholdersOn {
				vote = 1
			} else {
				vote = 0
			}
			placeholderIdx++
		} else {
			v, ok := votes[sel.ObjectID]
			if !ok {
				return CiphertextContest{}, ErrUnknownSelection
			}
			vote = v
		}

		r, err := deriveNonce(p, xi, contest.ObjectID, sel.ObjectID)
		if err != nil {
			return CiphertextContest{}, err
		}
		m := group.NewScalar(p, voteBig(vote))
		ct := elgamal.EncryptWithNonce(p, k, m, r)
		pr, err := proof.BuildDisjunctive(p, qbar, k, ct.Pad, ct.Data, r, vote)
		if err != nil {
			return CiphertextContest{}, fmt.Errorf("%w: %v", ErrProofGenerationFailed, err)
		}

		out.Selections = append(out.Selections, CiphertextSelection{
			SelectionID: sel.ObjectID,
			Placeholder: sel.Placeholder,
			Ciphertext:  ct,
			Proof:       pr,
		})
		sumCt = elgamal.Add(p, sumCt, ct)
		rSum = group.AddQ(p, rSum, r)
	}

	sumProof, err := proof.BuildRangeSum(p, qbar, k, sumCt.Pad, sumCt.Data, contest.VotesAllowed, rSum)
	if err != nil {
		return CiphertextContest{}, fmt.Errorf("%w: %v", ErrProofGenerationFailed, err)
	}
	out.Sum = sumCt
	out.SumProof = sumProof
	return out, nil
}

// ballotCryptoHash hashes every contest's selection ciphertexts, proofs,
// and sum proof in a deterministic order, so two callers encrypting the
// same ballot contents always compute the same hash.
func ballotCryptoHash(p group.Params, contests []CiphertextContest) (group.Scalar, error) {
	var operands []group.Hashable
	for _, c := range contests {
		operands = append(operands, group.Label(c.ContestID))
		for _, s := range c.Selections {
			operands = append(operands,
				group.Label(s.SelectionID),
				s.Ciphertext.Pad, s.Ciphertext.Data,
				s.Proof.Zero.A, s.Proof.Zero.B, s.Proof.Zero.Challenge, s.Proof.Zero.Response,
				s.Proof.One.A, s.Proof.One.B, s.Proof.One.Challenge, s.Proof.One.Response,
			)
		}
		operands = append(operands, c.Sum.Pad, c.Sum.Data,
			c.SumProof.A, c.SumProof.B, c.SumProof.Challenge, c.SumProof.Response)
	}
	h, err := group.H(p, operands...)
	if err != nil {
		return group.Scalar{}, fmt.Errorf("ballot: crypto hash: %w", err)
	}
	return h, nil
}

// Verify checks every selection's disjunctive proof. It does not check the
// contests' range-sum proofs; VerifyContestSum checks one contest's sum
// proof against a votesAllowed taken from the manifest.
func Verify(p group.Params, qbar group.Scalar, k group.Element, cb CiphertextBallot) error {
	for _, c := range cb.Contests {
		for _, s := range c.Selections {
			if err := s.Proof.Verify(p, qbar, k, s.Ciphertext.Pad, s.Ciphertext.Data); err != nil {
				return fmt.Errorf("ballot: selection %s: %w", s.SelectionID, err)
			}
		}
	}
	return nil
}

// VerifyContestSum checks a single contest's range-sum proof against the
// votesAllowed budget supplied by the manifest.
func VerifyContestSum(p group.Params, qbar group.Scalar, k group.Element, c CiphertextContest, votesAllowed int) error {
	return proof.VerifyRangeSum(p, qbar, k, c.Sum.Pad, c.Sum.Data, votesAllowed, c.SumProof)
}
