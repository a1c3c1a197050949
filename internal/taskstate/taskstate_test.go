package taskstate

import (
	"testing"

	"github.com/conclave-sh/conclave/internal/errors"
)

func TestValidate_LegalTransitions(t *testing.T) {
	tests := []struct {
		from Status
		to   Status
	}{
		{StatusPending, StatusDeliberating},
		{StatusDeliberating, StatusApproved},
		{StatusDeliberating, StatusRejected},
		{StatusApproved, StatusAssigned},
		{StatusAssigned, StatusInProgress},
		{StatusInProgress, StatusReview},
		{StatusInProgress, StatusCompleted},
		{StatusInProgress, StatusFailed},
		{StatusInProgress, StatusRetrying},
		{StatusInProgress, StatusStopped},
		{StatusReview, StatusCompleted},
		{StatusFailed, StatusRetrying},
		{StatusRetrying, StatusInProgress},
		{StatusEscalated, StatusInProgress},
		{StatusEscalated, StatusCancelled},
		{StatusEscalated, StatusFailed},
		{StatusIdlePending, StatusIdleRunning},
		{StatusIdleRunning, StatusIdlePaused},
		{StatusIdlePaused, StatusIdleRunning},
		{StatusIdleRunning, StatusIdleCompleted},
	}

	for _, tt := range tests {
		if err := Validate(tt.from, tt.to); err != nil {
			t.Errorf("Validate(%s, %s) = %v, want legal", tt.from, tt.to, err)
		}
	}
}

func TestValidate_IllegalTransitions(t *testing.T) {
	tests := []struct {
		from Status
		to   Status
	}{
		{StatusCompleted, StatusInProgress},
		{StatusRejected, StatusPending},
		{StatusCancelled, StatusAssigned},
		{StatusStopped, StatusInProgress},
		{StatusFailed, StatusCompleted},
		{StatusFailed, StatusInProgress},
		{StatusPending, StatusCompleted},
		{StatusIdleCompleted, StatusIdleRunning},
		{StatusIdlePaused, StatusIdleCompleted},
		{StatusIdleRunning, StatusInProgress},
	}

	for _, tt := range tests {
		err := Validate(tt.from, tt.to)
		if err == nil {
			t.Errorf("Validate(%s, %s) should be illegal", tt.from, tt.to)
			continue
		}
		if !errors.Is(err, errors.ErrIllegalTransition) {
			t.Errorf("Validate(%s, %s) error should match ErrIllegalTransition, got %v", tt.from, tt.to, err)
		}
	}
}

func TestValidate_IdentityAlwaysLegal(t *testing.T) {
	for status := range map[Status]bool{
		StatusPending: true, StatusDeliberating: true, StatusCompleted: true,
		StatusRejected: true, StatusFailed: true, StatusIdleCompleted: true,
	} {
		if err := Validate(status, status); err != nil {
			t.Errorf("Validate(%s, %s) identity should be legal, got %v", status, status, err)
		}
	}
}

func TestValidate_NamesAllowedSet(t *testing.T) {
	err := Validate(StatusFailed, StatusCompleted)
	var tErr *errors.TransitionError
	if !errors.As(err, &tErr) {
		t.Fatalf("expected *TransitionError, got %T", err)
	}
	if len(tErr.Allowed) != 1 || tErr.Allowed[0] != "retrying" {
		t.Errorf("Allowed = %v, want [retrying]", tErr.Allowed)
	}
}

func TestValidate_UnknownStatus(t *testing.T) {
	if err := Validate(Status("bogus"), StatusPending); err == nil {
		t.Error("unknown current status should be rejected")
	}
	if err := Validate(StatusPending, Status("bogus")); err == nil {
		t.Error("unknown proposed status should be rejected")
	}
}

func TestIsTerminal(t *testing.T) {
	terminal := []Status{StatusRejected, StatusCompleted, StatusCancelled, StatusStopped, StatusIdleCompleted}
	for _, s := range terminal {
		if !IsTerminal(s) {
			t.Errorf("%s should be terminal", s)
		}
	}

	nonTerminal := []Status{
		StatusPending, StatusDeliberating, StatusApproved, StatusDelegating,
		StatusAssigned, StatusInProgress, StatusReview, StatusFailed,
		StatusRetrying, StatusEscalated, StatusIdlePending, StatusIdleRunning,
		StatusIdlePaused,
	}
	for _, s := range nonTerminal {
		if IsTerminal(s) {
			t.Errorf("%s should not be terminal", s)
		}
	}

	if IsTerminal(Status("bogus")) {
		t.Error("unknown status should not report terminal")
	}
}

func TestIsIdle(t *testing.T) {
	for _, s := range []Status{StatusIdlePending, StatusIdleRunning, StatusIdlePaused, StatusIdleCompleted} {
		if !IsIdle(s) {
			t.Errorf("%s should be idle", s)
		}
	}
	if IsIdle(StatusInProgress) {
		t.Error("in_progress is not an idle status")
	}
}

func TestTask_Transition(t *testing.T) {
	task := NewTask("task-1", "index the archive", false)

	steps := []Status{StatusDeliberating, StatusApproved, StatusAssigned, StatusInProgress, StatusCompleted}
	for _, s := range steps {
		if err := task.Transition(s, "10001", ""); err != nil {
			t.Fatalf("Transition(%s) error = %v", s, err)
		}
	}

	if task.Status != StatusCompleted {
		t.Errorf("Status = %s, want completed", task.Status)
	}
	if len(task.History) != len(steps) {
		t.Errorf("History has %d entries, want %d", len(task.History), len(steps))
	}
	if !task.Terminal() {
		t.Error("completed task should be terminal")
	}

	// Terminal state rejects further movement and names the task.
	err := task.Transition(StatusInProgress, "10001", "")
	var tErr *errors.TransitionError
	if !errors.As(err, &tErr) {
		t.Fatalf("expected *TransitionError, got %v", err)
	}
	if tErr.TaskID != "task-1" {
		t.Errorf("TaskID = %q, want task-1", tErr.TaskID)
	}
}

func TestTask_Transition_IdentityAddsNoHistory(t *testing.T) {
	task := NewTask("task-1", "", false)
	if err := task.Transition(StatusPending, "", ""); err != nil {
		t.Fatalf("identity transition error = %v", err)
	}
	if len(task.History) != 0 {
		t.Errorf("identity transition should append no history, got %d entries", len(task.History))
	}
}

func TestTask_RetryAndErrorCounters(t *testing.T) {
	task := NewTask("task-1", "", false)
	for _, s := range []Status{StatusAssigned, StatusInProgress, StatusFailed} {
		if err := task.Transition(s, "", ""); err != nil {
			t.Fatalf("Transition(%s) error = %v", s, err)
		}
	}

	if task.ErrorCount != 1 {
		t.Errorf("ErrorCount = %d, want 1", task.ErrorCount)
	}
	if !task.CanRetry() {
		t.Fatal("task should have retry budget")
	}

	if err := task.Transition(StatusRetrying, "", ""); err != nil {
		t.Fatalf("Transition(retrying) error = %v", err)
	}
	if task.RetryCount != 1 {
		t.Errorf("RetryCount = %d, want 1", task.RetryCount)
	}
}

func TestNewTask_Idle(t *testing.T) {
	task := NewTask("idle-1", "garbage collection", true)
	if task.Status != StatusIdlePending {
		t.Errorf("Status = %s, want idle_pending", task.Status)
	}
	if !task.IsIdle {
		t.Error("IsIdle should be true")
	}
}
