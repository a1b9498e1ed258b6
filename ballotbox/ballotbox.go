// Package ballotbox accepts encrypted ballots as CAST or SPOILED and
// homomorphically accumulates cast selections into a running tally.
// Resubmitting an identical ballot object is idempotent and returns the
// existing record rather than an error.
package ballotbox

import (
	"fmt"

	"github.com/amarvote/guardian-engine/ballot"
	"github.com/amarvote/guardian-engine/elgamal"
	"github.com/amarvote/guardian-engine/group"
	"github.com/amarvote/guardian-engine/internal/log"
)

// State is a submitted ballot's disposition.
type State int

const (
	StateUnknown State = iota
	StateCast
	StateSpoiled
)

func (s State) String() string {
	switch s {
	case StateCast:
		return "CAST"
	case StateSpoiled:
		return "SPOILED"
	default:
		return "UNKNOWN"
	}
}

// SubmittedBallot is a CiphertextBallot plus its immutable disposition and
// submission timestamp.
type SubmittedBallot struct {
	Ballot      ballot.CiphertextBallot
	State       State
	SubmittedAt int64
}

// ErrBallotAlreadySubmitted is returned when a ballot_id is resubmitted
// with a conflicting crypto hash.
var ErrBallotAlreadySubmitted = fmt.Errorf("ballotbox: ballot already submitted with a different crypto hash")

// ErrAppendAfterSeal is returned when append_to_tally is called on a
// sealed tally. The tally is sealed before decryption; appends after
// sealing are forbidden.
var ErrAppendAfterSeal = fmt.Errorf("ballotbox: cannot append to a sealed tally")

// ErrProofInvalid wraps a verification failure on first submission
// on first submission.
var ErrProofInvalid = fmt.Errorf("ballotbox: ballot proofs failed verification")

// Box holds submitted ballots, keyed by ballot id.
type Box struct {
	p      group.Params
	qbar   group.Scalar
	k      group.Element
	ballots map[string]SubmittedBallot
}

// NewBox creates an empty ballot box for the given group/context/joint key.
func NewBox(p group.Params, qbar group.Scalar, k group.Element) *Box {
	return &Box{p: p, qbar: qbar, k: k, ballots: make(map[string]SubmittedBallot)}
}

// Submit records cb as CAST or SPOILED, verifying its selection proofs
// with ballot.Verify unless preVerified is true (the submitter's
// capability asserting prior verification within the same trust
// boundary); contest range-sum proofs are not checked here. Resubmission
// of the same ballot_id with an identical crypto hash returns the existing
// SubmittedBallot unchanged; a conflicting resubmission fails.
func (b *Box) Submit(cb ballot.CiphertextBallot, spoiled bool, submittedAt int64, preVerified bool) (SubmittedBallot, error) {
	if existing, ok := b.ballots[cb.BallotID]; ok {
		if existing.Ballot.CryptoHash.Equal(cb.CryptoHash) {
			return existing, nil
		}
		log.Warnw("ballotbox: rejecting submission", "ballot_id", cb.BallotID, "reason", "conflicting re-submission")
		return SubmittedBallot{}, ErrBallotAlreadySubmitted
	}
	if !preVerified {
		if err := ballot.Verify(b.p, b.qbar, b.k, cb); err != nil {
			log.Warnw("ballotbox: rejecting submission", "ballot_id", cb.BallotID, "reason", "proof verification failed", "err", err)
			return SubmittedBallot{}, fmt.Errorf("%w: %v", ErrProofInvalid, err)
		}
	}
	state := StateCast
	if spoiled {
		state = StateSpoiled
	}
	sb := SubmittedBallot{Ballot: cb, State: state, SubmittedAt: submittedAt}
	b.ballots[cb.BallotID] = sb
	return sb, nil
}

// Get returns a previously submitted ballot by id.
func (b *Box) Get(ballotID string) (SubmittedBallot, bool) {
	sb, ok := b.ballots[ballotID]
	return sb, ok
}

// CiphertextTally accumulates cast ballots' selections homomorphically per
// contest/selection, tracking cast/spoiled ballot ids, and can be sealed
// before decryption.
type CiphertextTally struct {
	contests        map[string]map[string]elgamal.Ciphertext
	castBallotIDs    map[string]bool
	spoiledBallotIDs map[string]bool
	sealed           bool
}

// NewCiphertextTally creates an empty, unsealed tally.
func NewCiphertextTally() *CiphertextTally {
	return &CiphertextTally{
		contests:         make(map[string]map[string]elgamal.Ciphertext),
		castBallotIDs:    make(map[string]bool),
		spoiledBallotIDs: make(map[string]bool),
	}
}

// Append adds sb to the tally: spoiled ballots are only tracked by id; cast
// ballots are homomorphically accumulated into the running per-selection
// ciphertext. Idempotent for a
// ballot id already recorded with the same state; otherwise fails.
func (t *CiphertextTally) Append(p group.Params, sb SubmittedBallot) error {
	if t.sealed {
		log.Warnw("ballotbox: rejecting append", "ballot_id", sb.Ballot.BallotID, "reason", "tally already sealed")
		return ErrAppendAfterSeal
	}
	id := sb.Ballot.BallotID
	if t.castBallotIDs[id] || t.spoiledBallotIDs[id] {
		if (sb.State == StateSpoiled) == t.spoiledBallotIDs[id] {
			return nil // idempotent re-append of the same disposition
		}
		log.Warnw("ballotbox: rejecting append", "ballot_id", id, "reason", "conflicting disposition")
		return ErrBallotAlreadySubmitted
	}

	if sb.State == StateSpoiled {
		t.spoiledBallotIDs[id] = true
		return nil
	}

	for _, c := range sb.Ballot.Contests {
		sel, ok := t.contests[c.ContestID]
		if !ok {
			sel = make(map[string]elgamal.Ciphertext)
			t.contests[c.ContestID] = sel
		}
		for _, s := range c.Selections {
			current, ok := sel[s.SelectionID]
			if !ok {
				current = elgamal.IdentityCiphertext()
			}
			sel[s.SelectionID] = elgamal.Add(p, current, s.Ciphertext)
		}
	}
	t.castBallotIDs[id] = true
	return nil
}

// Seal freezes the tally: no further Append calls succeed.
func (t *CiphertextTally) Seal() {
	t.sealed = true
	log.Infow("ballotbox: tally sealed", "cast", len(t.castBallotIDs), "spoiled", len(t.spoiledBallotIDs))
}

// Sealed reports whether the tally has been sealed.
func (t *CiphertextTally) Sealed() bool { return t.sealed }

// Selection returns the accumulated ciphertext for a contest/selection.
func (t *CiphertextTally) Selection(contestID, selectionID string) (elgamal.Ciphertext, bool) {
	sel, ok := t.contests[contestID]
	if !ok {
		return elgamal.Ciphertext{}, false
	}
	ct, ok := sel[selectionID]
	return ct, ok
}

// Contests returns the set of contest ids accumulated so far.
func (t *CiphertextTally) Contests() map[string]map[string]elgamal.Ciphertext {
	return t.contests
}

// CastBallotIDs returns the set of ballot ids counted as CAST.
func (t *CiphertextTally) CastBallotIDs() map[string]bool { return t.castBallotIDs }

// SpoiledBallotIDs returns the set of ballot ids counted as SPOILED
// A ballot appears in exactly one of the cast or spoiled sets, never both.
func (t *CiphertextTally) SpoiledBallotIDs() map[string]bool { return t.spoiledBallotIDs }
