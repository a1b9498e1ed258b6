// Package ceremony implements the mediator-coordinated key-ceremony state
// machine that takes N trustees through
// INIT -> KEYS_SHARED -> BACKUPS_SHARED -> BACKUPS_VERIFIED ->
// JOINT_KEY_PUBLISHED and produces the joint election public key K. Any
// failed transition aborts the ceremony fatally; there is no retry.
package ceremony

import (
	"fmt"

	"github.com/amarvote/guardian-engine/group"
	"github.com/amarvote/guardian-engine/internal/log"
	"github.com/amarvote/guardian-engine/sharing"
)

// State is one of the five ceremony states.
type State int

const (
	StateInit State = iota
	StateKeysShared
	StateBackupsShared
	StateBackupsVerified
	StateJointKeyPublished
	StateAborted
)

func (s State) String() string {
	switch s {
	case StateInit:
		return "INIT"
	case StateKeysShared:
		return "KEYS_SHARED"
	case StateBackupsShared:
		return "BACKUPS_SHARED"
	case StateBackupsVerified:
		return "BACKUPS_VERIFIED"
	case StateJointKeyPublished:
		return "JOINT_KEY_PUBLISHED"
	case StateAborted:
		return "ABORTED"
	default:
		return "UNKNOWN"
	}
}

// AbortReason names why a ceremony became StateAborted.
type AbortReason string

const (
	ReasonKeyProofInvalid           AbortReason = "KeyProofInvalid"
	ReasonBackupUndecryptable       AbortReason = "BackupUndecryptable"
	ReasonBackupVerificationFailed  AbortReason = "BackupVerificationFailed"
	ReasonDuplicateTrustee          AbortReason = "DuplicateTrustee"
	ReasonMissingTrustee            AbortReason = "MissingTrustee"
)

// AbortedError is returned by any transition that fails fatally; the
// ceremony does not retry.
type AbortedError struct {
	Reason AbortReason
	Sender int
	Peer   int // recipient, for backup-related failures; 0 if not applicable
	Detail string
}

func (e *AbortedError) Error() string {
	if e.Peer != 0 {
		return fmt.Sprintf("ceremony: aborted (%s) between trustee %d and %d: %s", e.Reason, e.Sender, e.Peer, e.Detail)
	}
	return fmt.Sprintf("ceremony: aborted (%s) at trustee %d: %s", e.Reason, e.Sender, e.Detail)
}

// TrusteeAnnouncement is a trustee's published share-key and coefficient
// commitments with per-coefficient Schnorr proofs.
type TrusteeAnnouncement struct {
	TrusteeID   int
	Commitments []group.Element
	Proofs      []sharing.Polynomial // only .Commitments/.Proofs are set; Announce drops the secret Coefficients
}

// Mediator coordinates the ceremony for N trustees with quorum k. It holds
// no trustee secrets — only what trustees publish.
type Mediator struct {
	params  group.Params
	qbar    group.Scalar
	n       int
	quorum  int
	state   State

	announcements map[int]TrusteeAnnouncement
	backups       map[[2]int]sharing.Backup // [from,to] -> backup
	verifications map[[2]int]bool

	jointKey       group.Element
	commitmentHash group.Scalar
}

// NewMediator starts a ceremony in StateInit for n trustees with the given
// quorum and extended base hash qbar.
func NewMediator(p group.Params, qbar group.Scalar, n, quorum int) *Mediator {
	return &Mediator{
		params:        p,
		qbar:          qbar,
		n:             n,
		quorum:        quorum,
		state:         StateInit,
		announcements: make(map[int]TrusteeAnnouncement),
		backups:       make(map[[2]int]sharing.Backup),
		verifications: make(map[[2]int]bool),
	}
}

// State returns the ceremony's current state.
func (m *Mediator) State() State { return m.state }

// Announce records trustee id's public share-key and coefficient
// commitments, verifying every coefficient proof. Transitions to
// KEYS_SHARED once all n trustees have announced.
func (m *Mediator) Announce(id int, poly sharing.Polynomial) error {
	existing, replayed := m.announcements[id]
	if replayed && m.state != StateAborted && announcementsEqual(existing, poly) {
		return nil // idempotent replay of a byte-identical announcement
	}
	if m.state != StateInit && m.state != StateKeysShared {
		return fmt.Errorf("ceremony: cannot announce in state %s", m.state)
	}
	if replayed {
		m.state = StateAborted
		err := &AbortedError{Reason: ReasonDuplicateTrustee, Sender: id, Detail: "conflicting re-announcement"}
		log.Errorw("ceremony: aborted", "reason", err.Reason, "trustee", id)
		return err
	}
	if err := poly.VerifyCommitments(m.params, m.qbar); err != nil {
		m.state = StateAborted
		aborted := &AbortedError{Reason: ReasonKeyProofInvalid, Sender: id, Detail: err.Error()}
		log.Errorw("ceremony: aborted", "reason", aborted.Reason, "trustee", id)
		return aborted
	}
	m.announcements[id] = TrusteeAnnouncement{TrusteeID: id, Commitments: poly.Commitments, Proofs: []sharing.Polynomial{{Commitments: poly.Commitments, Proofs: poly.Proofs}}}
	if len(m.announcements) == m.n {
		m.state = StateKeysShared
		log.Infow("ceremony: state transition", "state", m.state)
		// A lone trustee (n=1) has no peer to exchange a backup with or
		// verify one from: n*(n-1)==0 ordered pairs are required, which is
		// already satisfied, so skip straight to BACKUPS_VERIFIED instead
		// of waiting on SubmitBackup/ReportVerification calls that will
		// never come.
		if m.n*(m.n-1) == 0 {
			m.state = StateBackupsVerified
			log.Infow("ceremony: state transition", "state", m.state)
		}
	}
	return nil
}

func announcementsEqual(a TrusteeAnnouncement, poly sharing.Polynomial) bool {
	if len(a.Commitments) != len(poly.Commitments) {
		return false
	}
	for i := range a.Commitments {
		if !a.Commitments[i].Equal(poly.Commitments[i]) {
			return false
		}
	}
	return true
}

// SubmitBackup records a backup trustee `from` sends to trustee `to`.
// Transitions to BACKUPS_SHARED once every ordered pair (i != j) among the
// n announced trustees has a backup on file.
func (m *Mediator) SubmitBackup(from, to int, b sharing.Backup) error {
	if m.state != StateKeysShared && m.state != StateBackupsShared {
		return fmt.Errorf("ceremony: cannot submit backup in state %s", m.state)
	}
	key := [2]int{from, to}
	if existing, ok := m.backups[key]; ok {
		if backupsEqual(existing, b) {
			return nil
		}
		m.state = StateAborted
		err := &AbortedError{Reason: ReasonDuplicateTrustee, Sender: from, Peer: to, Detail: "conflicting re-submission of backup"}
		log.Errorw("ceremony: aborted", "reason", err.Reason, "from", from, "to", to)
		return err
	}
	m.backups[key] = b
	if len(m.backups) == m.n*(m.n-1) {
		m.state = StateBackupsShared
		log.Infow("ceremony: state transition", "state", m.state)
	}
	return nil
}

func backupsEqual(a, b sharing.Backup) bool {
	if len(a.Ciphertext) != len(b.Ciphertext) || len(a.MAC) != len(b.MAC) {
		return false
	}
	for i := range a.Ciphertext {
		if a.Ciphertext[i] != b.Ciphertext[i] {
			return false
		}
	}
	for i := range a.MAC {
		if a.MAC[i] != b.MAC[i] {
			return false
		}
	}
	return true
}

// ReportVerification records trustee `to`'s verdict on the backup it
// received from `from`. A false verdict aborts
// the ceremony immediately, fatally, naming the offending pair.
func (m *Mediator) ReportVerification(from, to int, ok bool) error {
	if m.state != StateBackupsShared && m.state != StateBackupsVerified {
		return fmt.Errorf("ceremony: cannot report verification in state %s", m.state)
	}
	if !ok {
		m.state = StateAborted
		err := &AbortedError{Reason: ReasonBackupVerificationFailed, Sender: from, Peer: to, Detail: "recipient reported verification failure"}
		log.Errorw("ceremony: aborted", "reason", err.Reason, "from", from, "to", to)
		return err
	}
	m.verifications[[2]int{from, to}] = true
	if len(m.verifications) == m.n*(m.n-1) {
		m.state = StateBackupsVerified
		log.Infow("ceremony: state transition", "state", m.state)
	}
	return nil
}

// Publish computes the joint key K = prod y_i and the commitment hash
// H(Qbar, all K_{i,l}), transitioning to JOINT_KEY_PUBLISHED. Only
// callable once BACKUPS_VERIFIED has been reached.
func (m *Mediator) Publish() (group.Element, group.Scalar, error) {
	if m.state != StateBackupsVerified {
		return group.Element{}, group.Scalar{}, fmt.Errorf("ceremony: cannot publish in state %s", m.state)
	}
	if len(m.announcements) != m.n {
		err := &AbortedError{Reason: ReasonMissingTrustee, Detail: "not all trustees announced"}
		log.Errorw("ceremony: aborted", "reason", err.Reason)
		return group.Element{}, group.Scalar{}, err
	}

	k := group.Identity()
	operands := []group.Hashable{m.qbar}
	for id := 1; id <= m.n; id++ {
		a, ok := m.announcements[id]
		if !ok {
			err := &AbortedError{Reason: ReasonMissingTrustee, Sender: id, Detail: "trustee id missing from announcements"}
			log.Errorw("ceremony: aborted", "reason", err.Reason, "trustee", id)
			return group.Element{}, group.Scalar{}, err
		}
		k = group.MulP(m.params, k, a.Commitments[0])
		for _, c := range a.Commitments {
			operands = append(operands, c)
		}
	}
	commitmentHash, err := group.H(m.params, operands...)
	if err != nil {
		return group.Element{}, group.Scalar{}, fmt.Errorf("ceremony: commitment hash: %w", err)
	}

	m.jointKey = k
	m.commitmentHash = commitmentHash
	m.state = StateJointKeyPublished
	log.Infow("ceremony: state transition", "state", m.state)
	return k, commitmentHash, nil
}

// JointKey returns the published joint key; only valid once State() is
// StateJointKeyPublished.
func (m *Mediator) JointKey() group.Element { return m.jointKey }

// CommitmentHash returns the published commitment hash.
func (m *Mediator) CommitmentHash() group.Scalar { return m.commitmentHash }

// ShareKey returns the announced public share-key for a trustee, used by
// decryption-share verification.
func (m *Mediator) ShareKey(id int) (group.Element, error) {
	a, ok := m.announcements[id]
	if !ok {
		return group.Element{}, fmt.Errorf("ceremony: no announcement for trustee %d", id)
	}
	return a.Commitments[0], nil
}

// Commitments returns the coefficient commitments a trustee announced,
// used to recompute an absent trustee's backup-verification equation
// during compensated decryption.
func (m *Mediator) Commitments(id int) ([]group.Element, error) {
	a, ok := m.announcements[id]
	if !ok {
		return nil, fmt.Errorf("ceremony: no announcement for trustee %d", id)
	}
	return a.Commitments, nil
}

// Backup returns the recorded backup from `from` to `to`, if any, used by a
// present trustee standing in for an absent one during compensation.
func (m *Mediator) Backup(from, to int) (sharing.Backup, bool) {
	b, ok := m.backups[[2]int{from, to}]
	return b, ok
}
