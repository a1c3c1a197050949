// Package idle runs the idle governance loop: a cooperative poller
// that assigns queued idle work only when no real work is pending.
package idle

import (
	"context"
	"time"

	"github.com/conclave-sh/conclave/internal/event"
	"github.com/conclave-sh/conclave/internal/logging"
	"github.com/conclave-sh/conclave/internal/taskstate"
)

// defaultInterval is the pause between governor cycles.
const defaultInterval = 2 * time.Second

// governorActor names the governor in task history entries.
const governorActor = "idle-governor"

// Governor polls the task registry and starts idle work during quiet
// periods. It is cooperative: cancellation lands at iteration
// boundaries, and an idle task already running is simply revisited the
// next cycle, never orphaned.
type Governor struct {
	tasks    *taskstate.Registry
	bus      *event.Bus
	logger   *logging.Logger
	interval time.Duration
}

// Option configures a Governor.
type Option func(*Governor)

// WithInterval sets the pause between cycles. Non-positive values are
// ignored.
func WithInterval(d time.Duration) Option {
	return func(g *Governor) {
		if d > 0 {
			g.interval = d
		}
	}
}

// WithEventBus sets the bus idle assignments are announced on.
func WithEventBus(bus *event.Bus) Option {
	return func(g *Governor) { g.bus = bus }
}

// New creates a Governor over the task registry.
func New(tasks *taskstate.Registry, logger *logging.Logger, opts ...Option) *Governor {
	if logger == nil {
		logger = logging.NopLogger()
	}
	g := &Governor{
		tasks:    tasks,
		logger:   logger.WithComponent("idle"),
		interval: defaultInterval,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Run cycles until the context is cancelled. It always returns nil on
// cancellation; the governor stopping is not an error.
func (g *Governor) Run(ctx context.Context) error {
	g.logger.Info("idle governor started", "interval", g.interval.String())
	for {
		g.cycle()

		select {
		case <-ctx.Done():
			g.logger.Info("idle governor stopped")
			return nil
		case <-time.After(g.interval):
		}
	}
}

// cycle runs one governance pass: real work suppresses idle
// assignment entirely.
func (g *Governor) cycle() {
	if active := g.tasks.ActiveWork(); len(active) > 0 {
		g.logger.Debug("real work pending, idle assignment skipped", "active", len(active))
		return
	}

	for _, task := range g.tasks.IdlePending() {
		if err := g.tasks.Transition(task.ID, taskstate.StatusIdleRunning, governorActor, "assigned during quiet period"); err != nil {
			g.logger.Warn("idle assignment failed", "task_id", task.ID, "error", err)
			continue
		}
		g.logger.Info("idle task assigned", "task_id", task.ID, "agent_id", task.AssignedTo)
		if g.bus != nil {
			g.bus.Publish(event.NewIdleAssignedEvent(task.ID, task.AssignedTo))
		}
	}
}

// RunOnce executes a single governance pass. Exposed for the CLI and
// tests; Run is the long-lived form.
func (g *Governor) RunOnce() {
	g.cycle()
}
