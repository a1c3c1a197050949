// Package breaker provides per-recipient failure isolation for message
// delivery.
//
// Each recipient gets an independent circuit breaker: consecutive delivery
// failures open the circuit, a cooldown later the breaker admits exactly
// one probe (half-open), and the probe's outcome decides between closing
// and reopening immediately. State per recipient is updated atomically
// under a per-breaker mutex; contention across distinct recipients is
// always disjoint.
package breaker

import (
	"sync"
	"time"

	"github.com/conclave-sh/conclave/internal/event"
)

// State is the circuit breaker state.
type State int

const (
	// StateClosed admits all deliveries.
	StateClosed State = iota

	// StateOpen rejects all deliveries until the cooldown elapses.
	StateOpen

	// StateHalfOpen admits exactly one probe delivery.
	StateHalfOpen
)

// String returns the string representation of the breaker state.
func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half_open"
	default:
		return "unknown"
	}
}

// Default breaker tuning.
const (
	DefaultFailureThreshold = 5
	DefaultCooldown         = 30 * time.Second
)

// breaker is the per-recipient state.
type breaker struct {
	mu       sync.Mutex
	state    State
	failures int
	openedAt time.Time
	probing  bool
}

// Metrics is a snapshot of one recipient's delivery counters.
type Metrics struct {
	Delivered int64
	Failed    int64
	Rejected  int64
	State     string
}

// metrics holds the live counters for one recipient.
type metrics struct {
	delivered int64
	failed    int64
	rejected  int64
}

// Registry manages circuit breakers and routing metrics keyed by
// recipient id. All methods are safe for concurrent use.
type Registry struct {
	mu        sync.Mutex
	breakers  map[string]*breaker
	counters  map[string]*metrics
	threshold int
	cooldown  time.Duration
	bus       *event.Bus
	now       func() time.Time
}

// Option configures a Registry.
type Option func(*Registry)

// WithFailureThreshold sets the consecutive-failure count that opens a
// breaker. Zero or negative values are ignored.
func WithFailureThreshold(n int) Option {
	return func(r *Registry) {
		if n > 0 {
			r.threshold = n
		}
	}
}

// WithCooldown sets how long an open breaker waits before admitting a
// probe. Zero or negative values are ignored.
func WithCooldown(d time.Duration) Option {
	return func(r *Registry) {
		if d > 0 {
			r.cooldown = d
		}
	}
}

// WithEventBus attaches an event bus for breaker state-change events.
func WithEventBus(bus *event.Bus) Option {
	return func(r *Registry) {
		r.bus = bus
	}
}

// withClock overrides the time source. Used by tests.
func withClock(now func() time.Time) Option {
	return func(r *Registry) {
		r.now = now
	}
}

// NewRegistry creates a Registry with default tuning.
func NewRegistry(opts ...Option) *Registry {
	r := &Registry{
		breakers:  make(map[string]*breaker),
		counters:  make(map[string]*metrics),
		threshold: DefaultFailureThreshold,
		cooldown:  DefaultCooldown,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// forRecipient returns (creating if needed) the breaker and counters for
// a recipient.
func (r *Registry) forRecipient(recipient string) (*breaker, *metrics) {
	r.mu.Lock()
	defer r.mu.Unlock()

	b, ok := r.breakers[recipient]
	if !ok {
		b = &breaker{state: StateClosed}
		r.breakers[recipient] = b
	}
	c, ok := r.counters[recipient]
	if !ok {
		c = &metrics{}
		r.counters[recipient] = c
	}
	return b, c
}

// Allow reports whether a delivery to the recipient may proceed.
// An open breaker transitions to half-open once the cooldown has elapsed
// and then admits exactly one probe; concurrent callers during half-open
// are rejected until the probe's outcome is recorded.
func (r *Registry) Allow(recipient string) bool {
	b, c := r.forRecipient(recipient)

	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case StateClosed:
		return true
	case StateOpen:
		if r.now().Sub(b.openedAt) >= r.cooldown {
			r.transition(b, recipient, StateHalfOpen)
			b.probing = true
			return true
		}
		c.rejected++
		return false
	case StateHalfOpen:
		if b.probing {
			c.rejected++
			return false
		}
		b.probing = true
		return true
	default:
		return false
	}
}

// RecordSuccess records a successful delivery. A successful half-open
// probe closes the breaker and resets the failure count.
func (r *Registry) RecordSuccess(recipient string) {
	b, c := r.forRecipient(recipient)

	b.mu.Lock()
	defer b.mu.Unlock()

	c.delivered++
	b.failures = 0
	b.probing = false
	if b.state != StateClosed {
		r.transition(b, recipient, StateClosed)
	}
}

// RecordFailure records a failed delivery. Reaching the threshold opens
// the breaker; a failed half-open probe reopens it immediately.
func (r *Registry) RecordFailure(recipient string) {
	b, c := r.forRecipient(recipient)

	b.mu.Lock()
	defer b.mu.Unlock()

	c.failed++
	b.probing = false

	switch b.state {
	case StateHalfOpen:
		b.openedAt = r.now()
		r.transition(b, recipient, StateOpen)
	case StateClosed:
		b.failures++
		if b.failures >= r.threshold {
			b.openedAt = r.now()
			r.transition(b, recipient, StateOpen)
		}
	}
}

// RecordRejected counts a message refused before any delivery attempt,
// such as a routing or rate-limit rejection. It never moves the breaker.
func (r *Registry) RecordRejected(recipient string) {
	b, c := r.forRecipient(recipient)
	b.mu.Lock()
	defer b.mu.Unlock()
	c.rejected++
}

// State returns the current breaker state for a recipient.
// Recipients never seen before report closed.
func (r *Registry) State(recipient string) State {
	b, _ := r.forRecipient(recipient)
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// Snapshot returns the delivery counters for a recipient.
func (r *Registry) Snapshot(recipient string) Metrics {
	b, c := r.forRecipient(recipient)
	b.mu.Lock()
	defer b.mu.Unlock()
	return Metrics{
		Delivered: c.delivered,
		Failed:    c.failed,
		Rejected:  c.rejected,
		State:     b.state.String(),
	}
}

// SnapshotAll returns delivery counters for every recipient seen so far.
func (r *Registry) SnapshotAll() map[string]Metrics {
	r.mu.Lock()
	recipients := make([]string, 0, len(r.counters))
	for id := range r.counters {
		recipients = append(recipients, id)
	}
	r.mu.Unlock()

	out := make(map[string]Metrics, len(recipients))
	for _, id := range recipients {
		out[id] = r.Snapshot(id)
	}
	return out
}

// transition updates a breaker's state and publishes a state-change event.
// Callers must hold b.mu.
func (r *Registry) transition(b *breaker, recipient string, to State) {
	from := b.state
	if from == to {
		return
	}
	b.state = to
	if r.bus != nil {
		r.bus.Publish(event.NewBreakerStateChangedEvent(recipient, from.String(), to.String()))
	}
}
