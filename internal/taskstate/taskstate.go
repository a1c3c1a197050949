// Package taskstate enforces legal lifecycle transitions for work items.
//
// A fixed adjacency table enumerates the legal next-states for every
// status; [Validate] is the sole gate for task status mutation. No caller
// may write a new status without passing through it, which is what keeps
// illegal task states out of the system entirely.
package taskstate

import (
	"time"

	"github.com/conclave-sh/conclave/internal/errors"
)

// Status represents the current state of a task.
type Status string

const (
	// StatusPending indicates the task is waiting to enter deliberation
	// or assignment.
	StatusPending Status = "pending"

	// StatusDeliberating indicates the task is under collective vote.
	StatusDeliberating Status = "deliberating"

	// StatusApproved indicates deliberation passed.
	StatusApproved Status = "approved"

	// StatusRejected indicates deliberation failed. Terminal.
	StatusRejected Status = "rejected"

	// StatusDelegating indicates the task is being handed down a tier.
	StatusDelegating Status = "delegating"

	// StatusAssigned indicates an agent has accepted the task.
	StatusAssigned Status = "assigned"

	// StatusInProgress indicates the task is actively being executed.
	StatusInProgress Status = "in_progress"

	// StatusReview indicates execution output is under critic review.
	StatusReview Status = "review"

	// StatusCompleted indicates the task finished successfully. Terminal.
	StatusCompleted Status = "completed"

	// StatusCancelled indicates the task was cancelled. Terminal.
	StatusCancelled Status = "cancelled"

	// StatusFailed indicates the most recent attempt failed.
	StatusFailed Status = "failed"

	// StatusRetrying indicates a failed task is being retried.
	StatusRetrying Status = "retrying"

	// StatusEscalated indicates the task was raised to a higher tier.
	StatusEscalated Status = "escalated"

	// StatusStopped indicates the task was halted by governance. Terminal.
	StatusStopped Status = "stopped"

	// StatusIdlePending indicates queued idle work awaiting assignment.
	StatusIdlePending Status = "idle_pending"

	// StatusIdleRunning indicates idle work in progress.
	StatusIdleRunning Status = "idle_running"

	// StatusIdlePaused indicates idle work preempted by real work.
	StatusIdlePaused Status = "idle_paused"

	// StatusIdleCompleted indicates idle work finished. Terminal.
	StatusIdleCompleted Status = "idle_completed"
)

// String returns the string representation of the status.
func (s Status) String() string {
	return string(s)
}

// transitions is the fixed adjacency table. A status absent from the
// table, or mapped to an empty set, is terminal.
var transitions = map[Status][]Status{
	StatusPending:      {StatusDeliberating, StatusDelegating, StatusAssigned, StatusCancelled},
	StatusDeliberating: {StatusApproved, StatusRejected, StatusCancelled},
	StatusApproved:     {StatusDelegating, StatusAssigned, StatusCancelled},
	StatusRejected:     {},
	StatusDelegating:   {StatusAssigned, StatusEscalated, StatusCancelled},
	StatusAssigned:     {StatusInProgress, StatusCancelled, StatusEscalated},
	StatusInProgress:   {StatusReview, StatusCompleted, StatusFailed, StatusRetrying, StatusStopped},
	StatusReview:       {StatusCompleted, StatusInProgress, StatusFailed, StatusEscalated},
	StatusCompleted:    {},
	StatusCancelled:    {},
	StatusFailed:       {StatusRetrying},
	StatusRetrying:     {StatusInProgress, StatusFailed, StatusEscalated},
	StatusEscalated:    {StatusInProgress, StatusCancelled, StatusFailed},
	StatusStopped:      {},

	StatusIdlePending:   {StatusIdleRunning, StatusCancelled},
	StatusIdleRunning:   {StatusIdlePaused, StatusIdleCompleted},
	StatusIdlePaused:    {StatusIdleRunning},
	StatusIdleCompleted: {},
}

// Known reports whether the status is part of the enumeration.
func Known(s Status) bool {
	_, ok := transitions[s]
	return ok
}

// Allowed returns the legal next-states for a status. The returned slice
// is a copy; mutating it does not affect the table.
func Allowed(current Status) []Status {
	next, ok := transitions[current]
	if !ok {
		return nil
	}
	return append([]Status(nil), next...)
}

// Validate reports whether a transition from current to proposed is
// legal. Identity transitions are always legal. Any transition absent
// from the adjacency table fails with a TransitionError naming the
// allowed set.
func Validate(current, proposed Status) error {
	if current == proposed {
		return nil
	}

	next, ok := transitions[current]
	if !ok {
		return errors.NewValidationError("unknown task status").
			WithField("current").WithValue(string(current))
	}
	if !Known(proposed) {
		return errors.NewValidationError("unknown task status").
			WithField("proposed").WithValue(string(proposed))
	}

	for _, s := range next {
		if s == proposed {
			return nil
		}
	}

	allowed := make([]string, len(next))
	for i, s := range next {
		allowed[i] = string(s)
	}
	return errors.NewTransitionError(string(current), string(proposed), allowed)
}

// IsTerminal reports whether the status has an empty adjacency set.
func IsTerminal(s Status) bool {
	return len(transitions[s]) == 0 && Known(s)
}

// IsIdle reports whether the status belongs to the idle sub-lifecycle.
func IsIdle(s Status) bool {
	switch s {
	case StatusIdlePending, StatusIdleRunning, StatusIdlePaused, StatusIdleCompleted:
		return true
	}
	return false
}

// HistoryEntry records one transition in a task's append-only history.
type HistoryEntry struct {
	From      Status    `json:"from"`
	To        Status    `json:"to"`
	Actor     string    `json:"actor,omitempty"`
	Note      string    `json:"note,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// Task is a long-lived work item. Its status is mutated only through
// Transition, never directly.
type Task struct {
	ID         string         `json:"id"`
	Title      string         `json:"title,omitempty"`
	Status     Status         `json:"status"`
	AssignedTo string         `json:"assigned_to,omitempty"`
	RetryCount int            `json:"retry_count"`
	MaxRetries int            `json:"max_retries"`
	ErrorCount int            `json:"error_count"`
	IsIdle     bool           `json:"is_idle"`
	History    []HistoryEntry `json:"history,omitempty"`
	CreatedAt  time.Time      `json:"created_at"`
	UpdatedAt  time.Time      `json:"updated_at"`
}

// DefaultMaxRetries is the retry budget new tasks start with.
const DefaultMaxRetries = 3

// NewTask creates a task in the Pending state (IdlePending when idle).
func NewTask(id, title string, idle bool) *Task {
	now := time.Now()
	status := StatusPending
	if idle {
		status = StatusIdlePending
	}
	return &Task{
		ID:         id,
		Title:      title,
		Status:     status,
		MaxRetries: DefaultMaxRetries,
		IsIdle:     idle,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
}

// Transition moves the task to a new status after validating the change,
// appending a history entry. Identity transitions append no history.
func (t *Task) Transition(proposed Status, actor, note string) error {
	if err := Validate(t.Status, proposed); err != nil {
		var tErr *errors.TransitionError
		if errors.As(err, &tErr) {
			return tErr.WithTaskID(t.ID)
		}
		return err
	}
	if t.Status == proposed {
		return nil
	}

	now := time.Now()
	t.History = append(t.History, HistoryEntry{
		From:      t.Status,
		To:        proposed,
		Actor:     actor,
		Note:      note,
		Timestamp: now,
	})

	switch proposed {
	case StatusRetrying:
		t.RetryCount++
	case StatusFailed:
		t.ErrorCount++
	}

	t.Status = proposed
	t.UpdatedAt = now
	return nil
}

// CanRetry reports whether the task has retry budget remaining.
func (t *Task) CanRetry() bool {
	return t.RetryCount < t.MaxRetries
}

// Terminal reports whether the task has reached a terminal status.
func (t *Task) Terminal() bool {
	return IsTerminal(t.Status)
}
