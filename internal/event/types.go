// Package event defines event types for decoupling components in Conclave.
// These events enable communication between the bus, guard, state machine,
// and orchestrator without requiring direct dependencies.
package event

import "time"

// Type identifies an event kind on the bus. The closed set below is
// the full vocabulary; subscribing to anything else never fires.
type Type string

// Type follows "category.action".
const (
	TypeMessagePublished      Type = "message.published"
	TypeMessageRejected       Type = "message.rejected"
	TypeDecisionRecorded      Type = "decision.recorded"
	TypeViolationRecorded     Type = "violation.recorded"
	TypeTaskTransitioned      Type = "task.transitioned"
	TypeIdleAssigned          Type = "idle.assigned"
	TypeDeliberationConcluded Type = "deliberation.concluded"
	TypeBreakerStateChanged   Type = "breaker.state_changed"

	// TypeAll is the wildcard used by SubscribeAll.
	TypeAll Type = "*"
)

// Event is the interface that all events must implement.
type Event interface {
	// EventType identifies the event kind.
	EventType() Type

	// Timestamp returns when the event occurred.
	Timestamp() time.Time
}

// baseEvent provides common fields for all events.
// Embed this in concrete event types to satisfy the Event interface.
type baseEvent struct {
	eventType Type
	timestamp time.Time
}

func (e baseEvent) EventType() Type      { return e.eventType }
func (e baseEvent) Timestamp() time.Time { return e.timestamp }

// newBaseEvent creates a baseEvent with the current time.
func newBaseEvent(eventType Type) baseEvent {
	return baseEvent{
		eventType: eventType,
		timestamp: time.Now(),
	}
}

// -----------------------------------------------------------------------------
// Message Delivery Events
// -----------------------------------------------------------------------------

// MessagePublishedEvent is emitted after a message is durably enqueued.
// It is the best-effort wake signal for consumers: its loss never loses
// the underlying durable entry.
type MessagePublishedEvent struct {
	baseEvent
	MessageID   string // Unique identifier of the message
	Recipient   string // Recipient agent id (or broadcast marker)
	MessageType string // Closed-enumeration message type
}

// NewMessagePublishedEvent creates a MessagePublishedEvent.
func NewMessagePublishedEvent(messageID, recipient, messageType string) MessagePublishedEvent {
	return MessagePublishedEvent{
		baseEvent:   newBaseEvent(TypeMessagePublished),
		MessageID:   messageID,
		Recipient:   recipient,
		MessageType: messageType,
	}
}

// MessageRejectedEvent is emitted when a publish is refused before delivery
// (routing violation or rate limit). The message was never enqueued.
type MessageRejectedEvent struct {
	baseEvent
	Sender    string // Sender agent id
	Recipient string // Intended recipient
	Reason    string // Why the publish was refused
}

// NewMessageRejectedEvent creates a MessageRejectedEvent.
func NewMessageRejectedEvent(sender, recipient, reason string) MessageRejectedEvent {
	return MessageRejectedEvent{
		baseEvent: newBaseEvent(TypeMessageRejected),
		Sender:    sender,
		Recipient: recipient,
		Reason:    reason,
	}
}

// -----------------------------------------------------------------------------
// Policy Events
// -----------------------------------------------------------------------------

// DecisionRecordedEvent is emitted for every constitutional check.
type DecisionRecordedEvent struct {
	baseEvent
	DecisionID string // Unique identifier of the decision
	AgentID    string // Agent whose action was checked
	Action     string // The checked action
	Verdict    string // allow, vote_required, or block
	Severity   string // low, medium, high, critical
}

// NewDecisionRecordedEvent creates a DecisionRecordedEvent.
func NewDecisionRecordedEvent(decisionID, agentID, action, verdict, severity string) DecisionRecordedEvent {
	return DecisionRecordedEvent{
		baseEvent:  newBaseEvent(TypeDecisionRecorded),
		DecisionID: decisionID,
		AgentID:    agentID,
		Action:     action,
		Verdict:    verdict,
		Severity:   severity,
	}
}

// ViolationRecordedEvent is emitted when a non-Allow verdict creates a
// policy violation record.
type ViolationRecordedEvent struct {
	baseEvent
	AgentID  string // Agent that triggered the violation
	Action   string // The offending action
	Severity string // Severity of the violation
}

// NewViolationRecordedEvent creates a ViolationRecordedEvent.
func NewViolationRecordedEvent(agentID, action, severity string) ViolationRecordedEvent {
	return ViolationRecordedEvent{
		baseEvent: newBaseEvent(TypeViolationRecorded),
		AgentID:   agentID,
		Action:    action,
		Severity:  severity,
	}
}

// -----------------------------------------------------------------------------
// Task Lifecycle Events
// -----------------------------------------------------------------------------

// TaskTransitionedEvent is emitted when a task passes the state machine.
type TaskTransitionedEvent struct {
	baseEvent
	TaskID string // Task that transitioned
	From   string // Previous status
	To     string // New status
}

// NewTaskTransitionedEvent creates a TaskTransitionedEvent.
func NewTaskTransitionedEvent(taskID, from, to string) TaskTransitionedEvent {
	return TaskTransitionedEvent{
		baseEvent: newBaseEvent(TypeTaskTransitioned),
		TaskID:    taskID,
		From:      from,
		To:        to,
	}
}

// IdleAssignedEvent is emitted when the idle governor assigns idle work.
type IdleAssignedEvent struct {
	baseEvent
	TaskID  string // Idle task that was assigned
	AgentID string // Agent receiving the idle work
}

// NewIdleAssignedEvent creates an IdleAssignedEvent.
func NewIdleAssignedEvent(taskID, agentID string) IdleAssignedEvent {
	return IdleAssignedEvent{
		baseEvent: newBaseEvent(TypeIdleAssigned),
		TaskID:    taskID,
		AgentID:   agentID,
	}
}

// -----------------------------------------------------------------------------
// Voting Events
// -----------------------------------------------------------------------------

// DeliberationConcludedEvent is emitted when a deliberation reaches a
// terminal verdict (passed, rejected, or expired).
type DeliberationConcludedEvent struct {
	baseEvent
	DeliberationID string // Deliberation that concluded
	Outcome        string // passed, rejected, or expired
	VotesFor       int    // Final for count
	VotesAgainst   int    // Final against count
	Abstentions    int    // Final abstain count
}

// NewDeliberationConcludedEvent creates a DeliberationConcludedEvent.
func NewDeliberationConcludedEvent(deliberationID, outcome string, votesFor, votesAgainst, abstentions int) DeliberationConcludedEvent {
	return DeliberationConcludedEvent{
		baseEvent:      newBaseEvent(TypeDeliberationConcluded),
		DeliberationID: deliberationID,
		Outcome:        outcome,
		VotesFor:       votesFor,
		VotesAgainst:   votesAgainst,
		Abstentions:    abstentions,
	}
}

// -----------------------------------------------------------------------------
// Circuit Breaker Events
// -----------------------------------------------------------------------------

// BreakerStateChangedEvent is emitted when a recipient's circuit breaker
// changes state.
type BreakerStateChangedEvent struct {
	baseEvent
	Recipient string // Recipient the breaker guards
	From      string // Previous breaker state
	To        string // New breaker state
}

// NewBreakerStateChangedEvent creates a BreakerStateChangedEvent.
func NewBreakerStateChangedEvent(recipient, from, to string) BreakerStateChangedEvent {
	return BreakerStateChangedEvent{
		baseEvent: newBaseEvent(TypeBreakerStateChanged),
		Recipient: recipient,
		From:      from,
		To:        to,
	}
}
