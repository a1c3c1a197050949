package bus

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/conclave-sh/conclave/internal/breaker"
	"github.com/conclave-sh/conclave/internal/errors"
	"github.com/conclave-sh/conclave/internal/hierarchy"
	"github.com/conclave-sh/conclave/internal/identity"
	"github.com/conclave-sh/conclave/internal/message"
	"github.com/conclave-sh/conclave/internal/policy"
	"github.com/conclave-sh/conclave/internal/store"
)

func newTestBus(t *testing.T, opts ...Option) (*Bus, *store.Store) {
	t.Helper()
	s, err := store.Open(filepath.Join(t.TempDir(), "bus.db"), nil)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return New(s, nil, opts...), s
}

// manualClock steps time only when told to.
type manualClock struct {
	t time.Time
}

func (c *manualClock) now() time.Time          { return c.t }
func (c *manualClock) advance(d time.Duration) { c.t = c.t.Add(d) }

func TestPublish_DeliversOneHopDown(t *testing.T) {
	b, _ := newTestBus(t)
	ctx := context.Background()

	msg := message.New("20001", "30001", hierarchy.DirectionDown, message.TypeDelegation, "implement the parser")
	if err := b.Publish(ctx, msg); err != nil {
		t.Fatalf("Publish() error = %v", err)
	}

	got, err := b.Consume(ctx, identity.MustParse("30001"), 10)
	if err != nil {
		t.Fatalf("Consume() error = %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("consumed %d messages, want 1", len(got))
	}
	if got[0].Message.Content != "implement the parser" {
		t.Errorf("content = %q", got[0].Message.Content)
	}

	if err := b.Acknowledge(ctx, identity.MustParse("30001"), got[0]); err != nil {
		t.Errorf("Acknowledge() error = %v", err)
	}
}

func TestPublish_RejectsTierSkip(t *testing.T) {
	b, _ := newTestBus(t)

	msg := message.New("30001", "10001", hierarchy.DirectionUp, message.TypeEscalation, "skip two tiers")
	err := b.Publish(context.Background(), msg)
	if !errors.Is(err, errors.ErrRoutingViolation) {
		t.Fatalf("Publish() error = %v, want routing violation", err)
	}

	// Rejections are counted, not delivered.
	if m := b.Metrics()["10001"]; m.Rejected != 1 {
		t.Errorf("rejected = %d, want 1", m.Rejected)
	}
}

func TestPublish_RateLimitWindow(t *testing.T) {
	clock := &manualClock{t: time.Now()}
	b, _ := newTestBus(t, withClock(clock.now))
	ctx := context.Background()

	msg := message.New("30001", "20001", hierarchy.DirectionUp, message.TypeExecution, "report")
	if err := b.Publish(ctx, msg); err != nil {
		t.Fatalf("first publish: %v", err)
	}

	// Task tier allows 5/s: a second publish inside 200ms is rejected.
	clock.advance(150 * time.Millisecond)
	err := b.Publish(ctx, message.New("30001", "20001", hierarchy.DirectionUp, message.TypeExecution, "again"))
	if !errors.Is(err, errors.ErrRateLimitExceeded) {
		t.Fatalf("publish inside window: error = %v, want rate limit", err)
	}

	clock.advance(60 * time.Millisecond)
	if err := b.Publish(ctx, message.New("30001", "20001", hierarchy.DirectionUp, message.TypeExecution, "later")); err != nil {
		t.Fatalf("publish past window: %v", err)
	}

	// Other senders have their own window.
	if err := b.Publish(ctx, message.New("30002", "20001", hierarchy.DirectionUp, message.TypeExecution, "peer")); err != nil {
		t.Fatalf("peer publish: %v", err)
	}
}

func TestBroadcast_FansOutToEveryTier(t *testing.T) {
	b, _ := newTestBus(t)
	ctx := context.Background()

	if err := b.BroadcastFromHead(ctx, identity.MustParse("00001"), message.TypeNotification, "all hands"); err != nil {
		t.Fatalf("BroadcastFromHead() error = %v", err)
	}

	for _, agent := range []string{"10001", "20009", "34567", "40001", "50001", "60001"} {
		got, err := b.Consume(ctx, identity.MustParse(agent), 10)
		if err != nil {
			t.Fatalf("Consume(%s) error = %v", agent, err)
		}
		if len(got) != 1 {
			t.Errorf("agent %s consumed %d broadcast messages, want 1", agent, len(got))
		}
	}
}

func TestBroadcast_RejectedFromNonHead(t *testing.T) {
	b, _ := newTestBus(t)

	err := b.BroadcastFromHead(context.Background(), identity.MustParse("10001"), message.TypeNotification, "mutiny")
	if !errors.Is(err, errors.ErrRoutingViolation) {
		t.Fatalf("error = %v, want routing violation", err)
	}

	msg := message.New("10001", identity.BroadcastMarker, hierarchy.DirectionBroadcast, message.TypeNotification, "mutiny")
	if err := b.Publish(context.Background(), msg); !errors.Is(err, errors.ErrRoutingViolation) {
		t.Fatalf("direct publish error = %v, want routing violation", err)
	}
}

func TestRouteUp_ResolvesParentFromRegistry(t *testing.T) {
	b, s := newTestBus(t, withDirectoryFromStore())
	ctx := context.Background()

	if err := s.RegisterAgent(ctx, identity.MustParse("30001"), "20042"); err != nil {
		t.Fatalf("RegisterAgent: %v", err)
	}

	msg := message.New("30001", "", hierarchy.DirectionUp, message.TypeExecution, "done")
	sent, err := b.RouteUp(ctx, msg)
	if err != nil {
		t.Fatalf("RouteUp() error = %v", err)
	}
	if sent.To != "20042" {
		t.Errorf("To = %q, want registered parent 20042", sent.To)
	}
	if sent.HopCount != 1 {
		t.Errorf("HopCount = %d, want 1", sent.HopCount)
	}

	got, err := b.Consume(ctx, identity.MustParse("20042"), 10)
	if err != nil {
		t.Fatalf("Consume() error = %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("parent consumed %d messages, want 1", len(got))
	}
}

func TestRouteUp_FallsBackToTierPattern(t *testing.T) {
	b, _ := newTestBus(t, withDirectoryFromStore())

	msg := message.New("30001", "", hierarchy.DirectionUp, message.TypeExecution, "done")
	sent, err := b.RouteUp(context.Background(), msg)
	if err != nil {
		t.Fatalf("RouteUp() error = %v", err)
	}
	if sent.To != "2****" {
		t.Errorf("To = %q, want tier pattern 2****", sent.To)
	}
}

func TestRouteUp_EnrichesEscalationCitations(t *testing.T) {
	b, s := newTestBus(t)
	b.policies = s
	ctx := context.Background()

	if err := s.SavePolicy(ctx, policy.Default(), true); err != nil {
		t.Fatalf("SavePolicy: %v", err)
	}

	msg := message.New("30001", "20001", hierarchy.DirectionUp, message.TypeEscalation, "guard blocked my action")
	sent, err := b.RouteUp(ctx, msg)
	if err != nil {
		t.Fatalf("RouteUp() error = %v", err)
	}
	if len(sent.Citations) == 0 {
		t.Fatal("escalation should carry policy citations")
	}
	if sent.Citations[0] != "constitution/v1" {
		t.Errorf("citation = %q", sent.Citations[0])
	}

	// Non-escalation traffic is not enriched. A different sender keeps
	// this clear of the first sender's rate window.
	plain := message.New("30002", "20001", hierarchy.DirectionUp, message.TypeExecution, "done")
	sent, err = b.RouteUp(ctx, plain)
	if err != nil {
		t.Fatalf("RouteUp() error = %v", err)
	}
	if len(sent.Citations) != 0 {
		t.Error("execution report should not be enriched")
	}
}

func TestRouteDown_ExhaustsHopBudget(t *testing.T) {
	b, _ := newTestBus(t)

	msg := message.New("20001", "30001", hierarchy.DirectionDown, message.TypeDelegation, "work")
	msg.HopCount = message.DefaultMaxHops
	_, err := b.RouteDown(context.Background(), msg)
	if !errors.Is(err, errors.ErrHopLimitExceeded) {
		t.Fatalf("error = %v, want hop limit exceeded", err)
	}
}

func TestConsume_SweepsExpiredMessages(t *testing.T) {
	clock := &manualClock{t: time.Now()}
	b, _ := newTestBus(t, withClock(clock.now))
	ctx := context.Background()

	msg := message.New("20001", "30001", hierarchy.DirectionDown, message.TypeDelegation, "stale work")
	msg.TTL = time.Minute
	if err := b.Publish(ctx, msg); err != nil {
		t.Fatalf("Publish() error = %v", err)
	}

	clock.advance(2 * time.Minute)
	got, err := b.Consume(ctx, identity.MustParse("30001"), 10)
	if err != nil {
		t.Fatalf("Consume() error = %v", err)
	}
	if len(got) != 0 {
		t.Errorf("consumed %d messages, want 0 after TTL sweep", len(got))
	}
}

func TestConsume_RayTracesByRole(t *testing.T) {
	b, _ := newTestBus(t)
	ctx := context.Background()

	// Executors never see vote traffic even when addressed directly.
	vote := message.New("20001", "30001", hierarchy.DirectionDown, message.TypeVoteProposal, "vote on this")
	if err := b.Publish(ctx, vote); err != nil {
		t.Fatalf("Publish() error = %v", err)
	}
	got, err := b.Consume(ctx, identity.MustParse("30001"), 10)
	if err != nil {
		t.Fatalf("Consume() error = %v", err)
	}
	if len(got) != 0 {
		t.Errorf("executor consumed %d vote messages, want 0", len(got))
	}

	// Summary scope truncates what a permitted observer receives. A
	// second sender keeps this clear of the first's rate window.
	long := message.New("20002", "30001", hierarchy.DirectionDown, message.TypeDelegation, makeLongContent())
	long.Scope = message.ScopeSummary
	if err := b.Publish(ctx, long); err != nil {
		t.Fatalf("Publish() error = %v", err)
	}
	got, err = b.Consume(ctx, identity.MustParse("30001"), 10)
	if err != nil {
		t.Fatalf("Consume() error = %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("consumed %d messages, want 1", len(got))
	}
	if len(got[0].Message.Content) > 200 {
		t.Errorf("summary content is %d chars, want <= 200", len(got[0].Message.Content))
	}
}

func TestConsumeRaw_SkipsRayTracing(t *testing.T) {
	b, _ := newTestBus(t)
	ctx := context.Background()

	// Vote traffic an executor's role would hide, plus a summary-scoped
	// message its role would truncate.
	vote := message.New("20001", "30001", hierarchy.DirectionDown, message.TypeVoteProposal, "vote on this")
	if err := b.Publish(ctx, vote); err != nil {
		t.Fatalf("Publish() error = %v", err)
	}
	long := message.New("20002", "30001", hierarchy.DirectionDown, message.TypeDelegation, makeLongContent())
	long.Scope = message.ScopeSummary
	if err := b.Publish(ctx, long); err != nil {
		t.Fatalf("Publish() error = %v", err)
	}

	got, err := b.ConsumeRaw(ctx, identity.MustParse("30001"), 10)
	if err != nil {
		t.Fatalf("ConsumeRaw() error = %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("consumed %d messages raw, want 2", len(got))
	}
	byID := map[string]message.Message{}
	for _, d := range got {
		byID[d.Message.ID] = d.Message
	}
	if _, ok := byID[vote.ID]; !ok {
		t.Error("raw consume should return role-hidden vote traffic")
	}
	if m, ok := byID[long.ID]; !ok || m.Content != long.Content {
		t.Error("raw consume should return summary-scoped content untruncated")
	}
}

// failingQueue always fails to enqueue.
type failingQueue struct{}

func (failingQueue) Enqueue(ctx context.Context, queue string, payload []byte) (int64, error) {
	return 0, fmt.Errorf("disk full")
}

func (failingQueue) ReadNew(ctx context.Context, queue, consumer string, limit int) ([]store.QueueEntry, error) {
	return nil, nil
}

func (failingQueue) Acknowledge(ctx context.Context, queue, consumer string, seq int64) error {
	return nil
}

func TestPublish_TransportFailureOpensBreaker(t *testing.T) {
	clock := &manualClock{t: time.Now()}
	b := New(failingQueue{}, nil,
		WithBreakers(breaker.NewRegistry(breaker.WithFailureThreshold(2))),
		withClock(clock.now))
	ctx := context.Background()

	send := func() error {
		clock.advance(time.Second)
		return b.Publish(ctx, message.New("20001", "30001", hierarchy.DirectionDown, message.TypeDelegation, "w"))
	}

	for i := 0; i < 2; i++ {
		if err := send(); !errors.Is(err, errors.ErrTransportUnavailable) {
			t.Fatalf("publish %d: error = %v, want transport unavailable", i, err)
		}
	}

	// Threshold reached: the breaker now rejects before the transport.
	err := send()
	if !errors.Is(err, errors.ErrCircuitOpen) {
		t.Fatalf("error = %v, want circuit open", err)
	}
	if b.BreakerState("30001") != breaker.StateOpen {
		t.Errorf("breaker state = %s, want open", b.BreakerState("30001"))
	}
}

func makeLongContent() string {
	content := ""
	for i := 0; i < 30; i++ {
		content += "all work and no play makes a dull agent "
	}
	return content
}

// withDirectoryFromStore wires the bus's own store as its directory
// after construction; newTestBus creates the store first.
func withDirectoryFromStore() Option {
	return func(b *Bus) {
		if s, ok := b.queue.(*store.Store); ok {
			b.dir = s
		}
	}
}

func TestSetRates_TightensWindow(t *testing.T) {
	clock := &manualClock{t: time.Now()}
	b, _ := newTestBus(t, withClock(clock.now))
	ctx := context.Background()

	b.SetRates(map[identity.Tier]int{identity.TierTask: 1})

	if err := b.Publish(ctx, message.New("30001", "20001", hierarchy.DirectionUp, message.TypeExecution, "report")); err != nil {
		t.Fatalf("first publish: %v", err)
	}

	// At 1/s the old 200ms gap is no longer enough.
	clock.advance(500 * time.Millisecond)
	err := b.Publish(ctx, message.New("30001", "20001", hierarchy.DirectionUp, message.TypeExecution, "again"))
	if !errors.Is(err, errors.ErrRateLimitExceeded) {
		t.Fatalf("publish inside widened window: error = %v, want rate limit", err)
	}

	clock.advance(600 * time.Millisecond)
	if err := b.Publish(ctx, message.New("30001", "20001", hierarchy.DirectionUp, message.TypeExecution, "later")); err != nil {
		t.Fatalf("publish past window: %v", err)
	}
}

func TestSetRates_IgnoresInvalidEntries(t *testing.T) {
	clock := &manualClock{t: time.Now()}
	b, _ := newTestBus(t, withClock(clock.now))
	ctx := context.Background()

	b.SetRates(map[identity.Tier]int{
		identity.TierTask: 0,
		identity.Tier(9):  50,
	})

	// The Task tier keeps its default 5/s window.
	if err := b.Publish(ctx, message.New("30001", "20001", hierarchy.DirectionUp, message.TypeExecution, "report")); err != nil {
		t.Fatalf("first publish: %v", err)
	}
	clock.advance(250 * time.Millisecond)
	if err := b.Publish(ctx, message.New("30001", "20001", hierarchy.DirectionUp, message.TypeExecution, "again")); err != nil {
		t.Fatalf("publish past default window: %v", err)
	}
}
