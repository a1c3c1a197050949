package config

import (
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/viper"

	"github.com/conclave-sh/conclave/internal/identity"
)

// Config represents the complete Conclave configuration
type Config struct {
	Logging LoggingConfig `mapstructure:"logging"`
	Store   StoreConfig   `mapstructure:"store"`
	Bus     BusConfig     `mapstructure:"bus"`
	Guard   GuardConfig   `mapstructure:"guard"`
	Voting  VotingConfig  `mapstructure:"voting"`
	Idle    IdleConfig    `mapstructure:"idle"`
	Policy  PolicyConfig  `mapstructure:"policy"`
	Vector  VectorConfig  `mapstructure:"vector"`
}

// LoggingConfig controls structured logging output
type LoggingConfig struct {
	// Level is the log level: "debug", "info", "warn", "error" (default: "info")
	Level string `mapstructure:"level"`
	// Format is the output encoding: "json" or "text" (default: "json")
	Format string `mapstructure:"format"`
}

// StoreConfig controls where Conclave persists its state
type StoreConfig struct {
	// Path is the sqlite database file. Use ":memory:" for an ephemeral store.
	Path string `mapstructure:"path"`
}

// BusConfig controls message bus behavior
type BusConfig struct {
	// Rates are the per-tier publish budgets in messages per second
	Rates RateConfig `mapstructure:"rates"`
	// ConsumeBatch is the maximum number of messages returned per consume call
	ConsumeBatch int `mapstructure:"consume_batch"`
}

// RateConfig holds per-tier publish budgets in messages per second.
// The three critic tiers share one budget.
type RateConfig struct {
	Head    int `mapstructure:"head"`
	Council int `mapstructure:"council"`
	Lead    int `mapstructure:"lead"`
	Task    int `mapstructure:"task"`
	Critic  int `mapstructure:"critic"`
}

// GuardConfig controls the semantic screening thresholds
type GuardConfig struct {
	// BlockThreshold is the similarity score at or above which an action
	// is blocked outright (default: 0.70)
	BlockThreshold float64 `mapstructure:"block_threshold"`
	// VoteThreshold is the lower bound of the grey band; scores in
	// [vote_threshold, block_threshold) require a deliberation (default: 0.40)
	VoteThreshold float64 `mapstructure:"vote_threshold"`
}

// VotingConfig controls deliberation behavior
type VotingConfig struct {
	// DeadlineMinutes is the default deliberation window (default: 60)
	DeadlineMinutes int `mapstructure:"deadline_minutes"`
}

// IdleConfig controls the idle governance poller
type IdleConfig struct {
	// Enabled controls whether the idle governor runs at all (default: true)
	Enabled bool `mapstructure:"enabled"`
	// IntervalSeconds is the poll interval (default: 2)
	IntervalSeconds int `mapstructure:"interval_seconds"`
}

// PolicyConfig controls the constitution document source
type PolicyConfig struct {
	// File is a path to a policy document to load and activate on start.
	// Empty means the built-in seed constitution is used.
	File string `mapstructure:"file"`
	// Watch hot-reloads the policy file on change (default: true)
	Watch bool `mapstructure:"watch"`
}

// VectorConfig controls the similarity index backend
type VectorConfig struct {
	// Backend is the index implementation: "memory" or "sqlite" (default: "memory").
	// The sqlite backend requires a binary built with the sqlite_vec tag.
	Backend string `mapstructure:"backend"`
}

// TierRates expands the five configured budgets into the per-tier map
// the bus consumes. The critic budget covers all three critic tiers.
func (r RateConfig) TierRates() map[identity.Tier]int {
	return map[identity.Tier]int{
		identity.TierHead:            r.Head,
		identity.TierCouncil:         r.Council,
		identity.TierLead:            r.Lead,
		identity.TierTask:            r.Task,
		identity.TierCriticQuality:   r.Critic,
		identity.TierCriticSafety:    r.Critic,
		identity.TierCriticAlignment: r.Critic,
	}
}

// Interval returns the idle poll interval as a time.Duration
func (c IdleConfig) Interval() time.Duration {
	return time.Duration(c.IntervalSeconds) * time.Second
}

// Deadline returns the default deliberation window as a time.Duration
func (c VotingConfig) Deadline() time.Duration {
	return time.Duration(c.DeadlineMinutes) * time.Minute
}

// Default returns a Config with sensible default values
func Default() *Config {
	return &Config{
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		Store: StoreConfig{
			Path: "conclave.db",
		},
		Bus: BusConfig{
			Rates: RateConfig{
				Head:    100,
				Council: 20,
				Lead:    10,
				Task:    5,
				Critic:  5,
			},
			ConsumeBatch: 32,
		},
		Guard: GuardConfig{
			BlockThreshold: 0.70,
			VoteThreshold:  0.40,
		},
		Voting: VotingConfig{
			DeadlineMinutes: 60,
		},
		Idle: IdleConfig{
			Enabled:         true,
			IntervalSeconds: 2,
		},
		Policy: PolicyConfig{
			File:  "", // Empty means use the built-in seed constitution
			Watch: true,
		},
		Vector: VectorConfig{
			Backend: "memory",
		},
	}
}

// SetDefaults registers default values with viper
func SetDefaults() {
	defaults := Default()

	// Logging defaults
	viper.SetDefault("logging.level", defaults.Logging.Level)
	viper.SetDefault("logging.format", defaults.Logging.Format)

	// Store defaults
	viper.SetDefault("store.path", defaults.Store.Path)

	// Bus defaults
	viper.SetDefault("bus.rates.head", defaults.Bus.Rates.Head)
	viper.SetDefault("bus.rates.council", defaults.Bus.Rates.Council)
	viper.SetDefault("bus.rates.lead", defaults.Bus.Rates.Lead)
	viper.SetDefault("bus.rates.task", defaults.Bus.Rates.Task)
	viper.SetDefault("bus.rates.critic", defaults.Bus.Rates.Critic)
	viper.SetDefault("bus.consume_batch", defaults.Bus.ConsumeBatch)

	// Guard defaults
	viper.SetDefault("guard.block_threshold", defaults.Guard.BlockThreshold)
	viper.SetDefault("guard.vote_threshold", defaults.Guard.VoteThreshold)

	// Voting defaults
	viper.SetDefault("voting.deadline_minutes", defaults.Voting.DeadlineMinutes)

	// Idle defaults
	viper.SetDefault("idle.enabled", defaults.Idle.Enabled)
	viper.SetDefault("idle.interval_seconds", defaults.Idle.IntervalSeconds)

	// Policy defaults
	viper.SetDefault("policy.file", defaults.Policy.File)
	viper.SetDefault("policy.watch", defaults.Policy.Watch)

	// Vector defaults
	viper.SetDefault("vector.backend", defaults.Vector.Backend)
}

// Load reads the configuration from viper into a Config struct and validates it
func Load() (*Config, error) {
	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	// Validate the configuration
	if errs := cfg.Validate(); len(errs) > 0 {
		return nil, ValidationErrors(errs)
	}

	return &cfg, nil
}

// Get returns the current configuration (convenience function)
func Get() *Config {
	cfg, err := Load()
	if err != nil {
		// Fall back to defaults if unmarshaling fails
		return Default()
	}
	return cfg
}

// ConfigDir returns the path to the user's config directory
func ConfigDir() string {
	// Check XDG_CONFIG_HOME first
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "conclave")
	}
	// Fall back to ~/.config/conclave
	home, err := os.UserHomeDir()
	if err != nil {
		return ".conclave"
	}
	return filepath.Join(home, ".config", "conclave")
}

// ConfigFile returns the path to the config file
func ConfigFile() string {
	return filepath.Join(ConfigDir(), "config.yaml")
}
