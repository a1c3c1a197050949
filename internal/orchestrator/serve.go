package orchestrator

import (
	"context"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/conclave-sh/conclave/internal/config"
)

// sweepInterval is how often open deliberations are checked for expiry.
const sweepInterval = 15 * time.Second

// Serve runs the background machinery until ctx is cancelled: the idle
// governor, the deliberation expiry sweeper, and the policy file
// watcher when one is configured. Returns nil on clean shutdown.
func (o *Orchestrator) Serve(ctx context.Context) error {
	o.mu.Lock()
	cfg := o.cfg
	o.mu.Unlock()

	g, ctx := errgroup.WithContext(ctx)

	if cfg.Idle.Enabled {
		g.Go(func() error { return o.governor.Run(ctx) })
	}

	g.Go(func() error { return o.sweepLoop(ctx) })

	if cfg.Policy.File != "" && cfg.Policy.Watch {
		w, err := config.NewWatcher(cfg.Policy.File, o.logger, func(path string) {
			if err := o.ReloadPolicyFile(context.Background(), path); err != nil {
				o.logger.Warn("policy hot reload failed", "path", path, "error", err)
			}
		})
		if err != nil {
			return err
		}
		w.Start()
		g.Go(func() error {
			<-ctx.Done()
			w.Stop()
			return nil
		})
	}

	o.logger.Info("governance core serving",
		"idle_governor", cfg.Idle.Enabled, "policy_file", cfg.Policy.File)
	return g.Wait()
}

func (o *Orchestrator) sweepLoop(ctx context.Context) error {
	ticker := time.NewTicker(sweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			o.sweepExpired(ctx)
		}
	}
}
