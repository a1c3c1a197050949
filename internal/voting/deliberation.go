package voting

import (
	"fmt"
	"sync"
	"time"

	"github.com/conclave-sh/conclave/internal/errors"
	"github.com/conclave-sh/conclave/internal/event"
	"github.com/conclave-sh/conclave/internal/identity"
)

// Kind distinguishes ordinary deliberations from constitutional
// amendment votes. Both share the same engine.
type Kind string

const (
	// KindDeliberation is a vote on a proposed action or task.
	KindDeliberation Kind = "deliberation"

	// KindAmendment is a vote on changing the active policy document.
	KindAmendment Kind = "amendment"
)

// Status represents the current state of a deliberation.
type Status string

const (
	// StatusOpen indicates voting is in progress.
	StatusOpen Status = "open"

	// StatusPassed indicates the measure passed.
	StatusPassed Status = "passed"

	// StatusRejected indicates the measure failed or expired.
	StatusRejected Status = "rejected"
)

// Choice is a single ballot's value.
type Choice string

const (
	ChoiceFor     Choice = "for"
	ChoiceAgainst Choice = "against"
	ChoiceAbstain Choice = "abstain"
)

// Valid reports whether the choice is one of the three ballot values.
func (c Choice) Valid() bool {
	return c == ChoiceFor || c == ChoiceAgainst || c == ChoiceAbstain
}

// Tally is a snapshot of vote counts, delegated ballots included.
type Tally struct {
	For     int
	Against int
	Abstain int
}

// Participation returns the number of ballots counted.
func (t Tally) Participation() int {
	return t.For + t.Against + t.Abstain
}

// Override records a Head-tier override. It is stored alongside the
// tally and never overwrites it.
type Override struct {
	HeadID   string    `json:"head_id"`
	Verdict  Status    `json:"verdict"`
	Reason   string    `json:"reason"`
	Recorded time.Time `json:"recorded"`
}

// Deliberation manages one collective vote among an eligible set.
// All methods are safe for concurrent use via an internal mutex.
type Deliberation struct {
	mu          sync.Mutex
	id          string
	kind        Kind
	topic       string
	eligible    map[string]bool
	votes       map[string]Choice // direct ballots by voter id
	delegations map[string]string // voter -> delegate
	deadline    time.Time
	status      Status
	expired     bool
	override    *Override
	bus         *event.Bus
}

// NewDeliberation creates an open deliberation among the eligible voters.
func NewDeliberation(id string, kind Kind, topic string, eligibleVoters []string, deadline time.Time, bus *event.Bus) *Deliberation {
	eligible := make(map[string]bool, len(eligibleVoters))
	for _, v := range eligibleVoters {
		eligible[v] = true
	}
	return &Deliberation{
		id:          id,
		kind:        kind,
		topic:       topic,
		eligible:    eligible,
		votes:       make(map[string]Choice),
		delegations: make(map[string]string),
		deadline:    deadline,
		status:      StatusOpen,
		bus:         bus,
	}
}

// ID returns the deliberation identifier.
func (d *Deliberation) ID() string { return d.id }

// Kind returns whether this is a deliberation or an amendment vote.
func (d *Deliberation) Kind() Kind { return d.kind }

// Topic returns the measure under vote.
func (d *Deliberation) Topic() string { return d.topic }

// Status returns the current deliberation status.
func (d *Deliberation) Status() Status {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.status
}

// Expired reports whether the deliberation concluded by deadline expiry.
func (d *Deliberation) Expired() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.expired
}

// IsExpired reports whether the deadline has passed at the given instant.
// The comparison is strictly after: a deliberation exactly at its
// deadline is not yet expired.
func (d *Deliberation) IsExpired(now time.Time) bool {
	return now.After(d.deadline)
}

// Delegate records that a voter hands their ballot to another eligible
// voter. A voter names at most one delegate; re-delegating replaces the
// previous edge. The resulting chain is resolved eagerly so a loop is
// rejected at registration rather than discovered at tally time.
func (d *Deliberation) Delegate(voter, delegate string) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.status != StatusOpen {
		return errors.Wrap(errors.ErrVoteClosed, "delegate")
	}
	if !d.eligible[voter] {
		return errors.Wrapf(errors.ErrNotEligible, "voter %s", voter)
	}
	if !d.eligible[delegate] {
		return errors.Wrapf(errors.ErrNotEligible, "delegate %s", delegate)
	}
	if _, voted := d.votes[voter]; voted {
		return fmt.Errorf("voter %s already cast a direct ballot", voter)
	}

	trial := make(map[string]string, len(d.delegations)+1)
	for k, v := range d.delegations {
		trial[k] = v
	}
	trial[voter] = delegate
	if _, err := ResolveDelegate(voter, trial); err != nil {
		return err
	}

	d.delegations[voter] = delegate
	return nil
}

// CastVote records a direct ballot. The voter must be eligible, must not
// have delegated their ballot, and may vote only once.
func (d *Deliberation) CastVote(voter string, choice Choice) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.status != StatusOpen {
		return errors.Wrap(errors.ErrVoteClosed, "cast vote")
	}
	if !choice.Valid() {
		return errors.NewValidationError("unknown ballot choice").
			WithField("choice").WithValue(string(choice))
	}
	if !d.eligible[voter] {
		return errors.Wrapf(errors.ErrNotEligible, "voter %s", voter)
	}
	if _, ok := d.delegations[voter]; ok {
		return fmt.Errorf("voter %s has delegated their ballot", voter)
	}
	if _, ok := d.votes[voter]; ok {
		return fmt.Errorf("voter %s already voted", voter)
	}

	d.votes[voter] = choice
	return nil
}

// Tally returns the current counts. Each eligible voter contributes at
// most one ballot: their own direct vote, or their terminal delegate's
// vote when they delegated and the delegate has voted.
func (d *Deliberation) Tally() Tally {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.tallyLocked()
}

func (d *Deliberation) tallyLocked() Tally {
	var t Tally
	for voter := range d.eligible {
		choice, ok := d.effectiveChoice(voter)
		if !ok {
			continue
		}
		switch choice {
		case ChoiceFor:
			t.For++
		case ChoiceAgainst:
			t.Against++
		case ChoiceAbstain:
			t.Abstain++
		}
	}
	return t
}

// effectiveChoice resolves a voter's ballot through any delegation.
// Loops cannot occur here: Delegate rejects them at registration.
func (d *Deliberation) effectiveChoice(voter string) (Choice, bool) {
	holder, err := ResolveDelegate(voter, d.delegations)
	if err != nil {
		return "", false
	}
	choice, ok := d.votes[holder]
	return choice, ok
}

// QuorumMet reports whether participation has reached quorum.
// Abstentions count toward participation.
func (d *Deliberation) QuorumMet() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.tallyLocked().Participation() >= Quorum(len(d.eligible))
}

// Conclude resolves the deliberation at the given instant and returns
// the final status. Past the deadline with no terminal verdict the
// measure auto-concludes Rejected. Otherwise it passes iff quorum is met
// and the non-abstaining ballots reach supermajority.
func (d *Deliberation) Conclude(now time.Time) (Status, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.status != StatusOpen {
		return d.status, errors.Wrap(errors.ErrVoteClosed, "conclude")
	}

	tally := d.tallyLocked()

	if now.After(d.deadline) {
		d.status = StatusRejected
		d.expired = true
		d.publishConcluded("expired", tally)
		return d.status, nil
	}

	if tally.Participation() < Quorum(len(d.eligible)) {
		return StatusOpen, fmt.Errorf("quorum not met: %d of %d required ballots",
			tally.Participation(), Quorum(len(d.eligible)))
	}

	if SupermajorityPassed(tally.For, tally.Against) {
		d.status = StatusPassed
	} else {
		d.status = StatusRejected
	}
	d.publishConcluded(string(d.status), tally)
	return d.status, nil
}

// RecordOverride records a Head-tier override with a mandatory reason.
// The override is stored alongside the tally; the tally and the
// concluded status it produced are never rewritten.
func (d *Deliberation) RecordOverride(head identity.AgentID, verdict Status, reason string) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if !head.IsHead() {
		return errors.Wrapf(errors.ErrNotHead, "agent %s", head)
	}
	if reason == "" {
		return errors.Wrap(errors.ErrOverrideReasonRequired, "record override")
	}
	if verdict != StatusPassed && verdict != StatusRejected {
		return errors.NewValidationError("override verdict must be passed or rejected").
			WithField("verdict").WithValue(string(verdict))
	}

	d.override = &Override{
		HeadID:   head.String(),
		Verdict:  verdict,
		Reason:   reason,
		Recorded: time.Now(),
	}
	return nil
}

// GetOverride returns the recorded override, or nil.
func (d *Deliberation) GetOverride() *Override {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.override == nil {
		return nil
	}
	cp := *d.override
	return &cp
}

// FinalVerdict returns the effective outcome: the override's verdict
// when one is recorded, otherwise the concluded status.
func (d *Deliberation) FinalVerdict() Status {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.override != nil {
		return d.override.Verdict
	}
	return d.status
}

// publishConcluded emits a conclusion event. Callers must hold d.mu.
func (d *Deliberation) publishConcluded(outcome string, tally Tally) {
	if d.bus == nil {
		return
	}
	d.bus.Publish(event.NewDeliberationConcludedEvent(d.id, outcome, tally.For, tally.Against, tally.Abstain))
}
