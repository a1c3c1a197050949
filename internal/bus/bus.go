// Package bus implements the governed message bus: hierarchy-validated
// routing, per-tier rate limiting, durable per-recipient queues, and
// ray-traced consumption.
package bus

import (
	"context"
	"encoding/json"
	"strconv"
	"sync"
	"time"

	"github.com/conclave-sh/conclave/internal/breaker"
	"github.com/conclave-sh/conclave/internal/errors"
	"github.com/conclave-sh/conclave/internal/event"
	"github.com/conclave-sh/conclave/internal/hierarchy"
	"github.com/conclave-sh/conclave/internal/identity"
	"github.com/conclave-sh/conclave/internal/logging"
	"github.com/conclave-sh/conclave/internal/message"
	"github.com/conclave-sh/conclave/internal/policy"
	"github.com/conclave-sh/conclave/internal/raytracer"
	"github.com/conclave-sh/conclave/internal/store"
)

// tierRates is the per-tier publish budget in messages per second. A
// sender may publish at most once per 1/rate window; there is no burst
// allowance.
var tierRates = map[identity.Tier]int{
	identity.TierHead:            100,
	identity.TierCouncil:         20,
	identity.TierLead:            10,
	identity.TierTask:            5,
	identity.TierCriticQuality:   5,
	identity.TierCriticSafety:    5,
	identity.TierCriticAlignment: 5,
}

// Queue is the durable transport the bus writes to and reads from.
// *store.Store satisfies it.
type Queue interface {
	Enqueue(ctx context.Context, queue string, payload []byte) (int64, error)
	ReadNew(ctx context.Context, queue, consumer string, limit int) ([]store.QueueEntry, error)
	Acknowledge(ctx context.Context, queue, consumer string, seq int64) error
}

// Directory resolves the agent registry. *store.Store satisfies it.
type Directory interface {
	ParentOf(ctx context.Context, agentID string) (string, error)
}

// PolicySource loads the active policy document for citation
// enrichment on escalations.
type PolicySource interface {
	ActivePolicy(ctx context.Context) (*policy.Document, error)
}

// Bus is one explicit bus state object per service: rate-limit state,
// breaker registry, and queue handles live here, never in globals.
type Bus struct {
	queue    Queue
	dir      Directory
	policies PolicySource
	breakers *breaker.Registry
	tracer   *raytracer.RayTracer
	events   *event.Bus
	logger   *logging.Logger

	mu          sync.Mutex
	rates       map[identity.Tier]int
	lastPublish map[string]time.Time
	now         func() time.Time
}

// Option configures a Bus.
type Option func(*Bus)

// WithDirectory sets the agent registry used for parent resolution.
func WithDirectory(dir Directory) Option {
	return func(b *Bus) { b.dir = dir }
}

// WithPolicySource sets the policy source for citation enrichment.
func WithPolicySource(p PolicySource) Option {
	return func(b *Bus) { b.policies = p }
}

// WithEventBus sets the in-process event bus used as the best-effort
// wake notifier.
func WithEventBus(events *event.Bus) Option {
	return func(b *Bus) { b.events = events }
}

// WithBreakers sets the circuit breaker registry. A fresh registry is
// created when unset.
func WithBreakers(r *breaker.Registry) Option {
	return func(b *Bus) { b.breakers = r }
}

// withClock overrides the clock. Tests only.
func withClock(now func() time.Time) Option {
	return func(b *Bus) { b.now = now }
}

// New creates a Bus over the durable queue.
func New(queue Queue, logger *logging.Logger, opts ...Option) *Bus {
	if logger == nil {
		logger = logging.NopLogger()
	}

	b := &Bus{
		queue:       queue,
		tracer:      raytracer.New(),
		logger:      logger.WithComponent("bus"),
		rates:       make(map[identity.Tier]int, len(tierRates)),
		lastPublish: make(map[string]time.Time),
		now:         time.Now,
	}
	for tier, rate := range tierRates {
		b.rates[tier] = rate
	}
	for _, opt := range opts {
		opt(b)
	}
	if b.breakers == nil {
		b.breakers = breaker.NewRegistry(breaker.WithEventBus(b.events))
	}
	return b
}

// Metrics exposes the per-recipient routing counters.
func (b *Bus) Metrics() map[string]breaker.Metrics {
	return b.breakers.SnapshotAll()
}

// BreakerState reports the delivery breaker state for a recipient.
func (b *Bus) BreakerState(recipient string) breaker.State {
	return b.breakers.State(recipient)
}

// SetRates overrides per-tier publish budgets at runtime. Tiers absent
// from the override keep their current rate; non-positive rates are
// ignored. Used by the config hot reload path.
func (b *Bus) SetRates(rates map[identity.Tier]int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for tier, rate := range rates {
		if rate <= 0 {
			continue
		}
		if _, ok := b.rates[tier]; ok {
			b.rates[tier] = rate
		}
	}
}

// Publish validates and durably enqueues a message. Routing violations
// and rate-limit rejections return explicit errors; the message is
// never silently dropped. Broadcast messages fan out per subordinate
// tier.
func (b *Bus) Publish(ctx context.Context, msg message.Message) error {
	if err := msg.Validate(); err != nil {
		return err
	}

	if msg.IsBroadcast() {
		return b.broadcast(ctx, msg)
	}

	if !hierarchy.CanRoute(msg.From, msg.To, msg.Direction) {
		b.reject(msg.From, msg.To, "routing violation")
		return errors.NewRoutingError("illegal route", errors.ErrRoutingViolation).
			WithEdge(msg.From, msg.To).
			WithDirection(string(msg.Direction))
	}

	if err := b.allowPublish(msg.From); err != nil {
		b.reject(msg.From, msg.To, "rate limit")
		return err
	}

	return b.deliver(ctx, msg.To, msg)
}

// broadcast fans a Head message out to one shared queue per
// subordinate tier. The fan-out counts as a single publish against the
// Head's rate budget; the copies are internal.
func (b *Bus) broadcast(ctx context.Context, msg message.Message) error {
	if !hierarchy.CanRoute(msg.From, identity.BroadcastMarker, hierarchy.DirectionBroadcast) {
		b.reject(msg.From, identity.BroadcastMarker, "broadcast from non-head tier")
		return errors.NewRoutingError("broadcast is reserved for the head tier", errors.ErrRoutingViolation).
			WithEdge(msg.From, identity.BroadcastMarker).
			WithDirection(string(hierarchy.DirectionBroadcast))
	}

	if err := b.allowPublish(msg.From); err != nil {
		b.reject(msg.From, identity.BroadcastMarker, "rate limit")
		return err
	}

	for tier := identity.TierCouncil; tier <= identity.TierCriticAlignment; tier++ {
		fanout := msg.Clone()
		fanout.Direction = hierarchy.DirectionBroadcast
		if err := b.deliver(ctx, broadcastQueue(tier), fanout); err != nil {
			return errors.Wrapf(err, "broadcast to tier %d", tier)
		}
	}
	return nil
}

// deliver enqueues through the recipient's circuit breaker.
func (b *Bus) deliver(ctx context.Context, queueName string, msg message.Message) error {
	if !b.breakers.Allow(queueName) {
		return errors.NewTransportError("delivery suspended", errors.ErrCircuitOpen).
			WithRecipient(queueName)
	}

	payload, err := json.Marshal(msg)
	if err != nil {
		return errors.Wrapf(err, "encode message %s", msg.ID)
	}

	if _, err := b.queue.Enqueue(ctx, queueName, payload); err != nil {
		b.breakers.RecordFailure(queueName)
		return errors.NewTransportError("enqueue failed", err).WithRecipient(queueName)
	}
	b.breakers.RecordSuccess(queueName)

	if b.events != nil {
		b.events.Publish(event.NewMessagePublishedEvent(msg.ID, queueName, string(msg.Type)))
	}
	b.logger.Debug("message published",
		"message_id", msg.ID, "from", msg.From, "to", queueName, "type", string(msg.Type))
	return nil
}

// allowPublish enforces the per-sender window. A publish within
// 1/rate of the sender's previous publish is rejected, never queued.
func (b *Bus) allowPublish(sender string) error {
	tier := hierarchy.TierOf(sender)

	b.mu.Lock()
	defer b.mu.Unlock()

	rate, ok := b.rates[tier]
	if !ok {
		return errors.Wrapf(errors.ErrInvalidIdentity, "sender %s", sender)
	}
	window := time.Second / time.Duration(rate)

	now := b.now()
	if last, seen := b.lastPublish[sender]; seen && now.Sub(last) < window {
		return errors.Wrapf(errors.ErrRateLimitExceeded,
			"sender %s exceeds %d/s", sender, rate)
	}
	b.lastPublish[sender] = now
	return nil
}

func (b *Bus) reject(sender, recipient, reason string) {
	b.breakers.RecordRejected(recipient)
	if b.events != nil {
		b.events.Publish(event.NewMessageRejectedEvent(sender, recipient, reason))
	}
}

// broadcastQueue names the shared queue for one tier's broadcasts.
func broadcastQueue(tier identity.Tier) string {
	return "tier:" + strconv.Itoa(int(tier))
}
