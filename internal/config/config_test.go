package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/conclave-sh/conclave/internal/identity"
	"github.com/conclave-sh/conclave/internal/logging"
)

func TestDefault(t *testing.T) {
	cfg := Default()

	if cfg == nil {
		t.Fatal("Default() returned nil")
	}

	// Verify default logging config
	if cfg.Logging.Level != "info" {
		t.Errorf("Logging.Level = %q, want %q", cfg.Logging.Level, "info")
	}
	if cfg.Logging.Format != "json" {
		t.Errorf("Logging.Format = %q, want %q", cfg.Logging.Format, "json")
	}

	// Verify default store config
	if cfg.Store.Path != "conclave.db" {
		t.Errorf("Store.Path = %q, want %q", cfg.Store.Path, "conclave.db")
	}

	// Verify default publish budgets
	if cfg.Bus.Rates.Head != 100 {
		t.Errorf("Bus.Rates.Head = %d, want 100", cfg.Bus.Rates.Head)
	}
	if cfg.Bus.Rates.Council != 20 {
		t.Errorf("Bus.Rates.Council = %d, want 20", cfg.Bus.Rates.Council)
	}
	if cfg.Bus.Rates.Lead != 10 {
		t.Errorf("Bus.Rates.Lead = %d, want 10", cfg.Bus.Rates.Lead)
	}
	if cfg.Bus.Rates.Task != 5 {
		t.Errorf("Bus.Rates.Task = %d, want 5", cfg.Bus.Rates.Task)
	}
	if cfg.Bus.Rates.Critic != 5 {
		t.Errorf("Bus.Rates.Critic = %d, want 5", cfg.Bus.Rates.Critic)
	}

	// Verify default guard thresholds
	if cfg.Guard.BlockThreshold != 0.70 {
		t.Errorf("Guard.BlockThreshold = %f, want 0.70", cfg.Guard.BlockThreshold)
	}
	if cfg.Guard.VoteThreshold != 0.40 {
		t.Errorf("Guard.VoteThreshold = %f, want 0.40", cfg.Guard.VoteThreshold)
	}

	// Verify default idle config
	if !cfg.Idle.Enabled {
		t.Error("Idle.Enabled should be true by default")
	}
	if cfg.Idle.IntervalSeconds != 2 {
		t.Errorf("Idle.IntervalSeconds = %d, want 2", cfg.Idle.IntervalSeconds)
	}

	// Verify default policy config
	if cfg.Policy.File != "" {
		t.Errorf("Policy.File = %q, want empty", cfg.Policy.File)
	}
	if !cfg.Policy.Watch {
		t.Error("Policy.Watch should be true by default")
	}

	if cfg.Vector.Backend != "memory" {
		t.Errorf("Vector.Backend = %q, want %q", cfg.Vector.Backend, "memory")
	}
}

func TestRateConfig_TierRates(t *testing.T) {
	rates := RateConfig{Head: 100, Council: 20, Lead: 10, Task: 5, Critic: 3}
	byTier := rates.TierRates()

	want := map[identity.Tier]int{
		identity.TierHead:            100,
		identity.TierCouncil:         20,
		identity.TierLead:            10,
		identity.TierTask:            5,
		identity.TierCriticQuality:   3,
		identity.TierCriticSafety:    3,
		identity.TierCriticAlignment: 3,
	}
	if len(byTier) != len(want) {
		t.Fatalf("TierRates() has %d entries, want %d", len(byTier), len(want))
	}
	for tier, rate := range want {
		if byTier[tier] != rate {
			t.Errorf("TierRates()[%v] = %d, want %d", tier, byTier[tier], rate)
		}
	}
}

func TestDurationAccessors(t *testing.T) {
	idle := IdleConfig{IntervalSeconds: 5}
	if idle.Interval() != 5*time.Second {
		t.Errorf("Interval() = %v, want 5s", idle.Interval())
	}

	voting := VotingConfig{DeadlineMinutes: 90}
	if voting.Deadline() != 90*time.Minute {
		t.Errorf("Deadline() = %v, want 90m", voting.Deadline())
	}
}

func TestConfigDir(t *testing.T) {
	t.Run("respects XDG_CONFIG_HOME", func(t *testing.T) {
		dir := t.TempDir()
		t.Setenv("XDG_CONFIG_HOME", dir)

		got := ConfigDir()
		want := filepath.Join(dir, "conclave")
		if got != want {
			t.Errorf("ConfigDir() = %q, want %q", got, want)
		}
	})

	t.Run("falls back to home config", func(t *testing.T) {
		t.Setenv("XDG_CONFIG_HOME", "")

		home, err := os.UserHomeDir()
		if err != nil {
			t.Skipf("no home directory: %v", err)
		}
		got := ConfigDir()
		want := filepath.Join(home, ".config", "conclave")
		if got != want {
			t.Errorf("ConfigDir() = %q, want %q", got, want)
		}
	})
}

func TestWatcher_NotifiesOnWrite(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "constitution.json")
	if err := os.WriteFile(path, []byte(`{"version":1}`), 0o644); err != nil {
		t.Fatal(err)
	}

	changed := make(chan string, 1)
	w, err := NewWatcher(path, logging.NopLogger(), func(p string) {
		select {
		case changed <- p:
		default:
		}
	})
	if err != nil {
		t.Fatalf("NewWatcher() error = %v", err)
	}
	defer w.Stop()
	w.Start()

	if err := os.WriteFile(path, []byte(`{"version":2}`), 0o644); err != nil {
		t.Fatal(err)
	}

	select {
	case p := <-changed:
		if p != path {
			t.Errorf("callback path = %q, want %q", p, path)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("watcher did not report the write")
	}
}

func TestWatcher_IgnoresSiblingFiles(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "constitution.json")
	if err := os.WriteFile(path, []byte(`{}`), 0o644); err != nil {
		t.Fatal(err)
	}

	changed := make(chan string, 4)
	w, err := NewWatcher(path, logging.NopLogger(), func(p string) {
		changed <- p
	})
	if err != nil {
		t.Fatalf("NewWatcher() error = %v", err)
	}
	defer w.Stop()
	w.Start()

	sibling := filepath.Join(dir, "unrelated.txt")
	if err := os.WriteFile(sibling, []byte("noise"), 0o644); err != nil {
		t.Fatal(err)
	}

	select {
	case p := <-changed:
		t.Errorf("unexpected callback for %q", p)
	case <-time.After(300 * time.Millisecond):
	}
}
