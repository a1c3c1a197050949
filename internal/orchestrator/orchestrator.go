// Package orchestrator composes the governance core: every inbound
// agent intent is screened by the guard, opened for deliberation when
// required, and tracked through the task state machine. The bus, idle
// governor, and policy hot reload run under one serve loop.
package orchestrator

import (
	"context"
	"sync"
	"time"

	"github.com/conclave-sh/conclave/internal/bus"
	"github.com/conclave-sh/conclave/internal/config"
	"github.com/conclave-sh/conclave/internal/errors"
	"github.com/conclave-sh/conclave/internal/event"
	"github.com/conclave-sh/conclave/internal/guard"
	"github.com/conclave-sh/conclave/internal/identity"
	"github.com/conclave-sh/conclave/internal/idle"
	"github.com/conclave-sh/conclave/internal/logging"
	"github.com/conclave-sh/conclave/internal/policy"
	"github.com/conclave-sh/conclave/internal/store"
	"github.com/conclave-sh/conclave/internal/taskstate"
	"github.com/conclave-sh/conclave/internal/vector"
	"github.com/conclave-sh/conclave/internal/voting"
)

// deliberationState tracks one open or concluded deliberation along
// with what it decides: a task, a policy amendment, or both.
type deliberationState struct {
	delib     *voting.Deliberation
	taskID    string
	amendment *policy.Document
	activated bool
	recorded  bool
}

// Orchestrator wires the governance components together. One
// Orchestrator is constructed per service and passed by handle.
type Orchestrator struct {
	cfg      *config.Config
	store    *store.Store
	events   *event.Bus
	index    vector.Index
	guard    *guard.Guard
	bus      *bus.Bus
	tasks    *taskstate.Registry
	governor *idle.Governor
	logger   *logging.Logger

	mu            sync.Mutex
	deliberations map[string]*deliberationState
	now           func() time.Time
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithIndex overrides the similarity index backend.
func WithIndex(index vector.Index) Option {
	return func(o *Orchestrator) { o.index = index }
}

// withClock overrides the clock. Tests only.
func withClock(now func() time.Time) Option {
	return func(o *Orchestrator) { o.now = now }
}

// New constructs the full governance stack over an open store. The
// active policy document is loaded (seeding the default constitution
// when none exists) and indexed for semantic screening before New
// returns.
func New(ctx context.Context, cfg *config.Config, st *store.Store, logger *logging.Logger, opts ...Option) (*Orchestrator, error) {
	if cfg == nil {
		cfg = config.Default()
	}
	if logger == nil {
		logger = logging.NopLogger()
	}

	o := &Orchestrator{
		cfg:           cfg,
		store:         st,
		events:        event.NewBus(),
		logger:        logger.WithComponent("orchestrator"),
		deliberations: make(map[string]*deliberationState),
		now:           time.Now,
	}
	for _, opt := range opts {
		opt(o)
	}
	if o.index == nil {
		o.index = vector.NewMemoryIndex(vector.NewHashEmbedder())
	}

	o.guard = guard.New(st, o.index, logger,
		guard.WithAuditSink(st),
		guard.WithEventBus(o.events))
	o.guard.SetThresholds(cfg.Guard.BlockThreshold, cfg.Guard.VoteThreshold)

	o.bus = bus.New(st, logger,
		bus.WithDirectory(st),
		bus.WithPolicySource(st),
		bus.WithEventBus(o.events))
	o.bus.SetRates(cfg.Bus.Rates.TierRates())

	o.tasks = taskstate.NewRegistry(o.events)
	o.governor = idle.New(o.tasks, logger,
		idle.WithInterval(cfg.Idle.Interval()),
		idle.WithEventBus(o.events))

	if err := o.bootstrapPolicy(ctx); err != nil {
		return nil, err
	}
	return o, nil
}

// Guard returns the constitutional guard.
func (o *Orchestrator) Guard() *guard.Guard { return o.guard }

// Bus returns the message bus.
func (o *Orchestrator) Bus() *bus.Bus { return o.bus }

// Tasks returns the task registry.
func (o *Orchestrator) Tasks() *taskstate.Registry { return o.tasks }

// Events returns the in-process event bus.
func (o *Orchestrator) Events() *event.Bus { return o.events }

// Store returns the backing repository.
func (o *Orchestrator) Store() *store.Store { return o.store }

// bootstrapPolicy ensures an active policy document exists and is
// indexed. A configured policy file wins over whatever the store holds.
func (o *Orchestrator) bootstrapPolicy(ctx context.Context) error {
	if o.cfg.Policy.File != "" {
		return o.ReloadPolicyFile(ctx, o.cfg.Policy.File)
	}

	doc, err := o.store.ActivePolicy(ctx)
	if errors.Is(err, errors.ErrPolicyUnavailable) {
		doc = policy.Default()
		if err := o.store.SavePolicy(ctx, doc, true); err != nil {
			return err
		}
		o.logger.Info("seeded default constitution", "version", doc.Version)
	} else if err != nil {
		return err
	}
	return o.reindex(ctx, doc)
}

// ReloadPolicyFile loads, activates, and reindexes a policy document
// from disk. Invoked at startup and by the file watcher.
func (o *Orchestrator) ReloadPolicyFile(ctx context.Context, path string) error {
	doc, err := policy.LoadFile(path)
	if err != nil {
		return err
	}
	if err := o.store.SavePolicy(ctx, doc, true); err != nil {
		return err
	}
	if err := o.reindex(ctx, doc); err != nil {
		return err
	}
	o.guard.InvalidatePolicy()
	o.logger.Info("policy document reloaded",
		"path", path, "version", doc.Version, "articles", len(doc.Articles))
	return nil
}

// ApplyConfig applies the hot-reloadable parts of a new configuration:
// publish budgets and semantic thresholds. Structural settings (store
// path, vector backend) require a restart and are ignored here.
func (o *Orchestrator) ApplyConfig(cfg *config.Config) {
	if cfg == nil {
		return
	}
	o.bus.SetRates(cfg.Bus.Rates.TierRates())
	o.guard.SetThresholds(cfg.Guard.BlockThreshold, cfg.Guard.VoteThreshold)

	o.mu.Lock()
	o.cfg = cfg
	o.mu.Unlock()
	o.logger.Info("configuration reapplied")
}

// reindex rebuilds the similarity corpus from doc. Backends that cannot
// reset keep superseded versions in the corpus; their ids still name
// the version they came from.
func (o *Orchestrator) reindex(ctx context.Context, doc *policy.Document) error {
	if r, ok := o.index.(interface{ Reset() }); ok {
		r.Reset()
	}
	return guard.IndexPolicy(ctx, o.index, doc)
}

// deadline returns the deliberation deadline from now.
func (o *Orchestrator) deadline() time.Time {
	o.mu.Lock()
	d := o.cfg.Voting.Deadline()
	o.mu.Unlock()
	return o.now().Add(d)
}

// councilVoters returns the registered Council-tier agent ids.
func (o *Orchestrator) councilVoters(ctx context.Context) ([]string, error) {
	voters, err := o.store.AgentsInTier(ctx, identity.TierCouncil)
	if err != nil {
		return nil, err
	}
	if len(voters) == 0 {
		return nil, errors.NewValidationError("no council agents registered to deliberate")
	}
	return voters, nil
}
