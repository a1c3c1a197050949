package taskstate

import (
	"sync"

	"github.com/conclave-sh/conclave/internal/errors"
	"github.com/conclave-sh/conclave/internal/event"
)

// Registry holds the live task table. All status changes go through
// Transition so the state machine gates every mutation. Methods are
// safe for concurrent use via an internal mutex; returned tasks are
// copies.
type Registry struct {
	mu    sync.Mutex
	tasks map[string]*Task
	order []string
	bus   *event.Bus
}

// NewRegistry creates an empty task registry. The event bus may be nil.
func NewRegistry(bus *event.Bus) *Registry {
	return &Registry{
		tasks: make(map[string]*Task),
		bus:   bus,
	}
}

// Add registers a task. Duplicate ids are rejected.
func (r *Registry) Add(task *Task) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.tasks[task.ID]; exists {
		return errors.Wrapf(errors.ErrInvalidInput, "task %s already registered", task.ID)
	}
	r.tasks[task.ID] = task
	r.order = append(r.order, task.ID)
	return nil
}

// Get returns a copy of the task, or ErrTaskNotFound.
func (r *Registry) Get(id string) (*Task, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	task, ok := r.tasks[id]
	if !ok {
		return nil, errors.Wrapf(errors.ErrTaskNotFound, "task %s", id)
	}
	cp := *task
	cp.History = append([]HistoryEntry(nil), task.History...)
	return &cp, nil
}

// Transition moves a task through the state machine and announces the
// change. Illegal transitions surface unchanged from the machine.
func (r *Registry) Transition(id string, proposed Status, actor, note string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	task, ok := r.tasks[id]
	if !ok {
		return errors.Wrapf(errors.ErrTaskNotFound, "task %s", id)
	}

	from := task.Status
	if err := task.Transition(proposed, actor, note); err != nil {
		return err
	}

	if r.bus != nil && from != proposed {
		r.bus.Publish(event.NewTaskTransitionedEvent(id, string(from), string(proposed)))
	}
	return nil
}

// Assign sets the task's assignee without changing its status.
func (r *Registry) Assign(id, agentID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	task, ok := r.tasks[id]
	if !ok {
		return errors.Wrapf(errors.ErrTaskNotFound, "task %s", id)
	}
	task.AssignedTo = agentID
	return nil
}

// ActiveWork returns copies of non-idle tasks that have not reached a
// terminal status, in registration order.
func (r *Registry) ActiveWork() []*Task {
	r.mu.Lock()
	defer r.mu.Unlock()

	var active []*Task
	for _, id := range r.order {
		task := r.tasks[id]
		if !task.IsIdle && !IsTerminal(task.Status) {
			cp := *task
			active = append(active, &cp)
		}
	}
	return active
}

// IdlePending returns copies of idle tasks awaiting assignment, in
// registration order.
func (r *Registry) IdlePending() []*Task {
	r.mu.Lock()
	defer r.mu.Unlock()

	var pending []*Task
	for _, id := range r.order {
		task := r.tasks[id]
		if task.Status == StatusIdlePending {
			cp := *task
			pending = append(pending, &cp)
		}
	}
	return pending
}

// Len returns the number of registered tasks.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.tasks)
}
