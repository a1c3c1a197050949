// Package message defines the inter-agent message model for Conclave.
//
// Messages are created per intent and are immutable once dispatched: the
// bus appends them to per-recipient delivery logs and never mutates a
// dispatched entry. Hop accounting, visibility patterns, and context
// scopes travel with the message so that routing legality and observer
// filtering can be decided without extra lookups.
package message

import (
	"time"

	"github.com/google/uuid"

	"github.com/conclave-sh/conclave/internal/errors"
	"github.com/conclave-sh/conclave/internal/hierarchy"
	"github.com/conclave-sh/conclave/internal/identity"
)

// DefaultMaxHops is the hop budget every message starts with.
const DefaultMaxHops = 5

// Type identifies the kind of inter-agent message. The enumeration is
// closed; the bus rejects unknown types at publish.
type Type string

const (
	// TypeIntent carries an agent's proposed course of action upward.
	TypeIntent Type = "intent"

	// TypeDelegation assigns work one tier down.
	TypeDelegation Type = "delegation"

	// TypePlan carries a structured plan between planners.
	TypePlan Type = "plan"

	// TypeExecution reports execution progress or output.
	TypeExecution Type = "execution"

	// TypeCritique requests review of execution output.
	TypeCritique Type = "critique"

	// TypeCritiqueResult returns a critic's findings.
	TypeCritiqueResult Type = "critique_result"

	// TypeVoteProposal opens a deliberation among planners.
	TypeVoteProposal Type = "vote_proposal"

	// TypeVoteCast records a single vote.
	TypeVoteCast Type = "vote_cast"

	// TypeEscalation raises an issue one tier up.
	TypeEscalation Type = "escalation"

	// TypeViolation reports a policy violation.
	TypeViolation Type = "violation"

	// TypeNotification is a general informational message.
	TypeNotification Type = "notification"

	// TypeHeartbeat is a liveness signal.
	TypeHeartbeat Type = "heartbeat"
)

// validTypes is the closed set accepted by the bus.
var validTypes = map[Type]bool{
	TypeIntent:         true,
	TypeDelegation:     true,
	TypePlan:           true,
	TypeExecution:      true,
	TypeCritique:       true,
	TypeCritiqueResult: true,
	TypeVoteProposal:   true,
	TypeVoteCast:       true,
	TypeEscalation:     true,
	TypeViolation:      true,
	TypeNotification:   true,
	TypeHeartbeat:      true,
}

// ValidType returns true if the given type is a known message type.
func ValidType(t Type) bool {
	return validTypes[t]
}

// Scope controls how much of a message's content an observer receives.
type Scope string

const (
	// ScopeFull delivers the message unchanged.
	ScopeFull Scope = "full"

	// ScopeSummary truncates content to 200 characters.
	ScopeSummary Scope = "summary"

	// ScopeSchemaOnly clears content and replaces payload values with
	// their type names.
	ScopeSchemaOnly Scope = "schema_only"
)

// Priority orders messages of equal arrival within tooling; delivery
// order itself stays FIFO per recipient.
type Priority int

const (
	PriorityLow Priority = iota
	PriorityNormal
	PriorityHigh
	PriorityCritical
)

// Message represents a single inter-agent communication.
type Message struct {
	ID            string              `json:"id"`
	From          string              `json:"from"`
	To            string              `json:"to"`
	Direction     hierarchy.Direction `json:"direction"`
	Type          Type                `json:"type"`
	Content       string              `json:"content"`
	Payload       map[string]any      `json:"payload,omitempty"`
	VisibleTo     []string            `json:"visible_to,omitempty"`
	Scope         Scope               `json:"scope,omitempty"`
	Priority      Priority            `json:"priority"`
	TTL           time.Duration       `json:"ttl,omitempty"`
	HopCount      int                 `json:"hop_count"`
	MaxHops       int                 `json:"max_hops"`
	CorrelationID string              `json:"correlation_id,omitempty"`
	Citations     []string            `json:"citations,omitempty"`
	Timestamp     time.Time           `json:"timestamp"`
}

// New creates a message with generated ID, current timestamp, default
// hop budget, and full scope.
func New(from, to string, direction hierarchy.Direction, msgType Type, content string) Message {
	return Message{
		ID:        uuid.NewString(),
		From:      from,
		To:        to,
		Direction: direction,
		Type:      msgType,
		Content:   content,
		VisibleTo: []string{"*"},
		Scope:     ScopeFull,
		Priority:  PriorityNormal,
		MaxHops:   DefaultMaxHops,
		Timestamp: time.Now(),
	}
}

// IsBroadcast returns true if the message is addressed to all agents.
func (m Message) IsBroadcast() bool {
	return m.To == identity.BroadcastMarker
}

// Expired reports whether the message's time-to-live has elapsed at the
// given instant. Messages without a TTL never expire.
func (m Message) Expired(now time.Time) bool {
	if m.TTL <= 0 {
		return false
	}
	return now.After(m.Timestamp.Add(m.TTL))
}

// Validate checks the message's structural invariants: required fields,
// a known type, a known direction, and the hop budget.
func (m Message) Validate() error {
	if m.From == "" {
		return errors.NewValidationError("message From field is required").WithField("from")
	}
	if m.To == "" {
		return errors.NewValidationError("message To field is required").WithField("to")
	}
	if !ValidType(m.Type) {
		return errors.NewValidationError("unknown message type").
			WithField("type").WithValue(string(m.Type))
	}
	if !m.Direction.Valid() {
		return errors.NewValidationError("unknown message direction").
			WithField("direction").WithValue(string(m.Direction))
	}
	maxHops := m.MaxHops
	if maxHops == 0 {
		maxHops = DefaultMaxHops
	}
	if m.HopCount > maxHops {
		return errors.Wrapf(errors.ErrHopLimitExceeded, "hop %d of %d", m.HopCount, maxHops)
	}
	return nil
}

// NextHop returns a copy of the message with the hop count advanced.
// It fails when the hop budget is exhausted; the original is untouched.
func (m Message) NextHop() (Message, error) {
	maxHops := m.MaxHops
	if maxHops == 0 {
		maxHops = DefaultMaxHops
	}
	if m.HopCount+1 > maxHops {
		return Message{}, errors.Wrapf(errors.ErrHopLimitExceeded, "message %s at hop %d", m.ID, m.HopCount)
	}
	next := m
	next.HopCount++
	return next, nil
}

// Clone returns a deep copy of the message. The bus hands clones to
// observers so scope application never mutates the stored entry.
func (m Message) Clone() Message {
	cp := m
	if m.Payload != nil {
		cp.Payload = make(map[string]any, len(m.Payload))
		for k, v := range m.Payload {
			cp.Payload[k] = v
		}
	}
	if m.VisibleTo != nil {
		cp.VisibleTo = append([]string(nil), m.VisibleTo...)
	}
	if m.Citations != nil {
		cp.Citations = append([]string(nil), m.Citations...)
	}
	return cp
}
