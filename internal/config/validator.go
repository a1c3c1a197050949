package config

import (
	"fmt"
	"slices"
	"strings"
)

// ValidationError represents a single validation failure
type ValidationError struct {
	Field   string // The config field path (e.g., "bus.rates.head")
	Value   any    // The invalid value
	Message string // Human-readable error description
}

// Error implements the error interface for ValidationError
func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s (got: %v)", e.Field, e.Message, e.Value)
}

// ValidationErrors is a collection of validation errors
type ValidationErrors []ValidationError

// Error implements the error interface for ValidationErrors
func (e ValidationErrors) Error() string {
	if len(e) == 0 {
		return ""
	}
	if len(e) == 1 {
		return e[0].Error()
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("%d validation errors:\n", len(e)))
	for i, err := range e {
		sb.WriteString(fmt.Sprintf("  %d. %s\n", i+1, err.Error()))
	}
	return sb.String()
}

// ValidLogLevels returns the list of valid log levels
func ValidLogLevels() []string {
	return []string{"debug", "info", "warn", "error"}
}

// ValidLogFormats returns the list of valid log output formats
func ValidLogFormats() []string {
	return []string{"json", "text"}
}

// ValidVectorBackends returns the list of valid similarity index backends
func ValidVectorBackends() []string {
	return []string{"memory", "sqlite"}
}

// Validate checks the Config for invalid values and returns all validation errors found
func (c *Config) Validate() []ValidationError {
	var errors []ValidationError

	errors = append(errors, c.validateLogging()...)
	errors = append(errors, c.validateStore()...)
	errors = append(errors, c.validateBus()...)
	errors = append(errors, c.validateGuard()...)
	errors = append(errors, c.validateVoting()...)
	errors = append(errors, c.validateIdle()...)
	errors = append(errors, c.validateVector()...)

	return errors
}

// validateLogging validates the LoggingConfig
func (c *Config) validateLogging() []ValidationError {
	var errors []ValidationError

	if !slices.Contains(ValidLogLevels(), c.Logging.Level) {
		errors = append(errors, ValidationError{
			Field:   "logging.level",
			Value:   c.Logging.Level,
			Message: fmt.Sprintf("must be one of: %s", strings.Join(ValidLogLevels(), ", ")),
		})
	}

	if !slices.Contains(ValidLogFormats(), c.Logging.Format) {
		errors = append(errors, ValidationError{
			Field:   "logging.format",
			Value:   c.Logging.Format,
			Message: fmt.Sprintf("must be one of: %s", strings.Join(ValidLogFormats(), ", ")),
		})
	}

	return errors
}

// validateStore validates the StoreConfig
func (c *Config) validateStore() []ValidationError {
	var errors []ValidationError

	if c.Store.Path == "" {
		errors = append(errors, ValidationError{
			Field:   "store.path",
			Value:   c.Store.Path,
			Message: "must not be empty",
		})
	}

	return errors
}

// validateBus validates the BusConfig
func (c *Config) validateBus() []ValidationError {
	var errors []ValidationError

	rates := []struct {
		field string
		value int
	}{
		{"bus.rates.head", c.Bus.Rates.Head},
		{"bus.rates.council", c.Bus.Rates.Council},
		{"bus.rates.lead", c.Bus.Rates.Lead},
		{"bus.rates.task", c.Bus.Rates.Task},
		{"bus.rates.critic", c.Bus.Rates.Critic},
	}
	for _, r := range rates {
		if r.value < 1 {
			errors = append(errors, ValidationError{
				Field:   r.field,
				Value:   r.value,
				Message: "must be at least 1 message per second",
			})
		}
	}

	if c.Bus.ConsumeBatch < 1 {
		errors = append(errors, ValidationError{
			Field:   "bus.consume_batch",
			Value:   c.Bus.ConsumeBatch,
			Message: "must be at least 1",
		})
	}

	return errors
}

// validateGuard validates the GuardConfig
func (c *Config) validateGuard() []ValidationError {
	var errors []ValidationError

	if c.Guard.BlockThreshold <= 0 || c.Guard.BlockThreshold > 1 {
		errors = append(errors, ValidationError{
			Field:   "guard.block_threshold",
			Value:   c.Guard.BlockThreshold,
			Message: "must be in (0, 1]",
		})
	}

	if c.Guard.VoteThreshold < 0 || c.Guard.VoteThreshold > 1 {
		errors = append(errors, ValidationError{
			Field:   "guard.vote_threshold",
			Value:   c.Guard.VoteThreshold,
			Message: "must be in [0, 1]",
		})
	}

	if c.Guard.VoteThreshold >= c.Guard.BlockThreshold {
		errors = append(errors, ValidationError{
			Field:   "guard.vote_threshold",
			Value:   c.Guard.VoteThreshold,
			Message: "must be below guard.block_threshold",
		})
	}

	return errors
}

// validateVoting validates the VotingConfig
func (c *Config) validateVoting() []ValidationError {
	var errors []ValidationError

	if c.Voting.DeadlineMinutes < 1 {
		errors = append(errors, ValidationError{
			Field:   "voting.deadline_minutes",
			Value:   c.Voting.DeadlineMinutes,
			Message: "must be at least 1",
		})
	}

	return errors
}

// validateIdle validates the IdleConfig
func (c *Config) validateIdle() []ValidationError {
	var errors []ValidationError

	if c.Idle.IntervalSeconds < 1 {
		errors = append(errors, ValidationError{
			Field:   "idle.interval_seconds",
			Value:   c.Idle.IntervalSeconds,
			Message: "must be at least 1",
		})
	}

	return errors
}

// validateVector validates the VectorConfig
func (c *Config) validateVector() []ValidationError {
	var errors []ValidationError

	if !slices.Contains(ValidVectorBackends(), c.Vector.Backend) {
		errors = append(errors, ValidationError{
			Field:   "vector.backend",
			Value:   c.Vector.Backend,
			Message: fmt.Sprintf("must be one of: %s", strings.Join(ValidVectorBackends(), ", ")),
		})
	}

	return errors
}
