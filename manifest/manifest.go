// Package manifest describes an election's contests, selections, and
// ballot styles, and derives the base hash Q and extended base hash Qbar
// that seed every proof transcript in package proof. Contests on the
// same ballot style may carry different votes_allowed budgets.
package manifest

import (
	"fmt"
	"math/big"

	"github.com/google/uuid"

	"github.com/amarvote/guardian-engine/group"
)

// VoteVariation is the counting rule for a contest.
type VoteVariation string

const (
	OneOfM   VoteVariation = "one_of_m"
	NOfM     VoteVariation = "n_of_m"
	Approval VoteVariation = "approval"
)

// Selection is one candidate/option within a contest.
type Selection struct {
	ObjectID      string
	SequenceOrder int
	Placeholder   bool // true for the synthetic selections padding the vote count to votes_allowed
}

// Contest is an ordered list of selections under a single vote-variation
// rule with a votes_allowed budget.
type Contest struct {
	ObjectID      string
	SequenceOrder int
	Variation     VoteVariation
	VotesAllowed  int
	NumberElected int
	Selections    []Selection
}

// PlaceholdersNeeded returns the number of placeholder selections this
// contest must carry so every real selection can be counted once and the
// plaintext sum still equals VotesAllowed.
func (c Contest) PlaceholdersNeeded() int {
	return c.VotesAllowed
}

// WithPlaceholders returns a copy of c with VotesAllowed placeholder
// selections appended, sequenced after the real selections.
func (c Contest) WithPlaceholders() Contest {
	out := c
	out.Selections = append([]Selection{}, c.Selections...)
	base := len(c.Selections)
	for i := 0; i < c.PlaceholdersNeeded(); i++ {
		out.Selections = append(out.Selections, Selection{
			ObjectID:      fmt.Sprintf("%s-placeholder-%d", c.ObjectID, i+1),
			SequenceOrder: base + i + 1,
			Placeholder:   true,
		})
	}
	return out
}

// BallotStyle groups the contests a particular class of voter is offered.
type BallotStyle struct {
	ObjectID      string
	ContestIDs    []string
}

// Manifest is the election description.
type Manifest struct {
	ElectionScopeID string
	SpecVersion     string
	Contests        []Contest
	Styles          []BallotStyle
}

// NewManifest builds a manifest, validating that every contest and
// selection object identifier is unique across the whole manifest.
func NewManifest(electionScopeID, specVersion string, contests []Contest, styles []BallotStyle) (*Manifest, error) {
	contestIDs := make(map[string]bool, len(contests))
	selIDs := make(map[string]bool)
	for _, ct := range contests {
		if contestIDs[ct.ObjectID] {
			return nil, fmt.Errorf("manifest: duplicate contest id %q", ct.ObjectID)
		}
		contestIDs[ct.ObjectID] = true
		for _, sel := range ct.Selections {
			if selIDs[sel.ObjectID] {
				return nil, fmt.Errorf("manifest: duplicate selection id %q in contest %q", sel.ObjectID, ct.ObjectID)
			}
			selIDs[sel.ObjectID] = true
		}
	}
	for _, style := range styles {
		for _, cid := range style.ContestIDs {
			if !contestIDs[cid] {
				return nil, fmt.Errorf("manifest: ballot style %q references unknown contest %q", style.ObjectID, cid)
			}
		}
	}
	return &Manifest{
		ElectionScopeID: electionScopeID,
		SpecVersion:     specVersion,
		Contests:        contests,
		Styles:          styles,
	}, nil
}

// Contest looks up a contest by id.
func (m *Manifest) Contest(id string) (Contest, bool) {
	for _, ct := range m.Contests {
		if ct.ObjectID == id {
			return ct, true
		}
	}
	return Contest{}, false
}

// Style looks up a ballot style by id.
func (m *Manifest) Style(id string) (BallotStyle, bool) {
	for _, s := range m.Styles {
		if s.ObjectID == id {
			return s, true
		}
	}
	return BallotStyle{}, false
}

// ErrStyleNotFound is returned when a ballot references an unknown style
// ErrStyleNotFound is returned when a ballot references an unknown style.
var ErrStyleNotFound = fmt.Errorf("manifest: ballot style not found")

// BaseHash computes Q = H(spec_version, election_scope_id).
func (m *Manifest) BaseHash(p group.Params) (group.Scalar, error) {
	q, err := group.H(p, group.Label(m.SpecVersion), group.Label(m.ElectionScopeID))
	if err != nil {
		return group.Scalar{}, fmt.Errorf("manifest: base hash: %w", err)
	}
	return q, nil
}

// ExtendedHash computes Qbar = H(Q, N, k, K, commitment_hash), the
// transcript seed for every proof in the election.
func ExtendedHash(p group.Params, q group.Scalar, n, quorum int, jointKey group.Element, commitmentHash group.Scalar) (group.Scalar, error) {
	qbar, err := group.H(p, q,
		group.NewScalar(p, big.NewInt(int64(n))),
		group.NewScalar(p, big.NewInt(int64(quorum))),
		jointKey,
		commitmentHash,
	)
	if err != nil {
		return group.Scalar{}, fmt.Errorf("manifest: extended hash: %w", err)
	}
	return qbar, nil
}

// NewObjectID mints a fresh unique identifier for callers that don't
// supply their own (e.g. generated ballots).
func NewObjectID() string {
	return uuid.NewString()
}
