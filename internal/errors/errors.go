// Package errors provides centralized error definitions and error handling
// utilities for the Conclave codebase. It defines domain-specific errors,
// semantic error types, error constructors with context wrapping, and error
// classification helpers.
//
// # Error Types
//
// The package provides two categories of errors:
//
// Domain-specific errors represent errors from specific subsystems:
//   - RoutingError: a message attempted an illegal hierarchy edge
//   - TransitionError: a task status change violated the state machine
//   - DelegationError: vote delegation resolution failed (loop or missing voter)
//   - TransportError: the durable queue or repository was unavailable
//
// Semantic errors represent common error conditions:
//   - NotFoundError: resource not found
//   - ValidationError: invalid input or state
//   - TimeoutError: operation timed out
//
// # Usage
//
// Creating errors:
//
//	err := errors.NewRoutingError("up hop skips a tier", errors.ErrRoutingViolation).
//		WithEdge("30001", "10001")
//
// Checking errors:
//
//	if errors.Is(err, errors.ErrRoutingViolation) { ... }
//
//	var tErr *errors.TransitionError
//	if errors.As(err, &tErr) { ... }
//
// Policy outcomes (Block, VoteRequired) are first-class decision values in
// the guard package, not errors; nothing here models them.
package errors

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Re-export standard library functions for convenience.
// This allows callers to import only this package for all error handling.
var (
	Is     = errors.Is
	As     = errors.As
	Unwrap = errors.Unwrap
	New    = errors.New
	Join   = errors.Join
)

// Severity represents the severity level of an error.
type Severity int

const (
	// SeverityDebug is for errors that are useful for debugging but not critical.
	SeverityDebug Severity = iota
	// SeverityInfo is for informational errors that don't indicate a problem.
	SeverityInfo
	// SeverityWarning is for errors that might indicate a problem but aren't critical.
	SeverityWarning
	// SeverityError is for errors that indicate a real problem.
	SeverityError
	// SeverityCritical is for errors that require immediate attention.
	SeverityCritical
)

// String returns the string representation of the severity level.
func (s Severity) String() string {
	switch s {
	case SeverityDebug:
		return "debug"
	case SeverityInfo:
		return "info"
	case SeverityWarning:
		return "warning"
	case SeverityError:
		return "error"
	case SeverityCritical:
		return "critical"
	default:
		return "unknown"
	}
}

// -----------------------------------------------------------------------------
// Sentinel Errors
// -----------------------------------------------------------------------------

// Routing and delivery sentinel errors
var (
	// ErrRoutingViolation indicates a message attempted an illegal hierarchy edge.
	ErrRoutingViolation = New("routing violation")
	// ErrRateLimitExceeded indicates a sender published faster than its tier allows.
	ErrRateLimitExceeded = New("rate limit exceeded")
	// ErrTransportUnavailable indicates the durable queue could not be reached.
	ErrTransportUnavailable = New("transport unavailable")
	// ErrCircuitOpen indicates the recipient's circuit breaker is rejecting deliveries.
	ErrCircuitOpen = New("circuit breaker open")
	// ErrMessageExpired indicates a message exceeded its time-to-live.
	ErrMessageExpired = New("message expired")
	// ErrHopLimitExceeded indicates a message exceeded its maximum hop count.
	ErrHopLimitExceeded = New("hop limit exceeded")
)

// Identity and hierarchy sentinel errors
var (
	// ErrInvalidIdentity indicates an agent identity failed boundary validation.
	ErrInvalidIdentity = New("invalid agent identity")
	// ErrAgentNotFound indicates an agent could not be found in the hierarchy.
	ErrAgentNotFound = New("agent not found")
)

// Task state machine sentinel errors
var (
	// ErrIllegalTransition indicates a task status change not in the transition table.
	ErrIllegalTransition = New("illegal status transition")
	// ErrTaskNotFound indicates a task could not be found.
	ErrTaskNotFound = New("task not found")
)

// Voting sentinel errors
var (
	// ErrDelegationLoop indicates a cycle in a vote delegation chain.
	ErrDelegationLoop = New("delegation loop detected")
	// ErrNotEligible indicates a voter is not in the deliberation's eligible set.
	ErrNotEligible = New("voter not eligible")
	// ErrVoteClosed indicates a vote was cast after the deliberation concluded.
	ErrVoteClosed = New("deliberation already concluded")
	// ErrOverrideReasonRequired indicates a Head override was recorded without a reason.
	ErrOverrideReasonRequired = New("override reason is required")
	// ErrNotHead indicates an override was attempted by a non-Head identity.
	ErrNotHead = New("only a Head-tier identity may override")
)

// Policy sentinel errors
var (
	// ErrPolicyUnavailable indicates no active policy document could be loaded.
	ErrPolicyUnavailable = New("active policy document unavailable")
)

// General sentinel errors
var (
	// ErrTimeout indicates that an operation timed out.
	ErrTimeout = New("operation timed out")
	// ErrCanceled indicates that an operation was canceled.
	ErrCanceled = New("operation canceled")
	// ErrInvalidInput indicates that input validation failed.
	ErrInvalidInput = New("invalid input")
)

// -----------------------------------------------------------------------------
// Base Error Interface
// -----------------------------------------------------------------------------

// ConclaveError is the base interface for all Conclave errors.
// It extends the standard error interface with additional methods for
// error handling and classification.
type ConclaveError interface {
	error

	// Unwrap returns the underlying error, if any.
	Unwrap() error

	// Is reports whether this error matches the target error.
	Is(target error) bool

	// Severity returns the severity level of this error.
	Severity() Severity

	// IsRetryable returns true if the error is transient and the operation
	// may succeed on retry.
	IsRetryable() bool
}

// baseError provides common functionality for all error types.
type baseError struct {
	message   string
	cause     error
	severity  Severity
	retryable bool
}

// Error returns the error message.
func (e *baseError) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %v", e.message, e.cause)
	}
	return e.message
}

// Unwrap returns the underlying error.
func (e *baseError) Unwrap() error {
	return e.cause
}

// Is checks if this error matches the target.
func (e *baseError) Is(target error) bool {
	if e.cause != nil {
		return errors.Is(e.cause, target)
	}
	return false
}

// Severity returns the error severity.
func (e *baseError) Severity() Severity {
	return e.severity
}

// IsRetryable returns whether the error is retryable.
func (e *baseError) IsRetryable() bool {
	return e.retryable
}

// -----------------------------------------------------------------------------
// Domain-Specific Errors
// -----------------------------------------------------------------------------

// RoutingError represents a message that attempted an illegal hierarchy edge.
//
// Example:
//
//	err := errors.NewRoutingError("up hop skips a tier", errors.ErrRoutingViolation)
//	err = err.WithEdge("30001", "10001").WithDirection("up")
type RoutingError struct {
	baseError
	From      string
	To        string
	Direction string
}

// NewRoutingError creates a new RoutingError.
func NewRoutingError(message string, cause error) *RoutingError {
	return &RoutingError{
		baseError: baseError{
			message:  message,
			cause:    cause,
			severity: SeverityError,
		},
	}
}

// WithEdge adds the sender and recipient ids to the error context.
func (e *RoutingError) WithEdge(from, to string) *RoutingError {
	e.From = from
	e.To = to
	return e
}

// WithDirection adds the attempted direction to the error context.
func (e *RoutingError) WithDirection(direction string) *RoutingError {
	e.Direction = direction
	return e
}

// Error returns the formatted error message.
func (e *RoutingError) Error() string {
	var parts []string
	if e.From != "" {
		parts = append(parts, fmt.Sprintf("from=%s", e.From))
	}
	if e.To != "" {
		parts = append(parts, fmt.Sprintf("to=%s", e.To))
	}
	if e.Direction != "" {
		parts = append(parts, fmt.Sprintf("direction=%s", e.Direction))
	}

	prefix := "routing error"
	if len(parts) > 0 {
		prefix = fmt.Sprintf("routing error [%s]", strings.Join(parts, ", "))
	}

	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", prefix, e.message, e.cause)
	}
	return fmt.Sprintf("%s: %s", prefix, e.message)
}

// Is checks if this error matches the target.
func (e *RoutingError) Is(target error) bool {
	if _, ok := target.(*RoutingError); ok {
		return true
	}
	return e.baseError.Is(target)
}

// TransitionError represents a task status change that violated the
// state machine's transition table.
//
// Example:
//
//	err := errors.NewTransitionError("completed", "in_progress", nil)
//	fmt.Println(err) // "transition error: completed -> in_progress not permitted (allowed: none)"
type TransitionError struct {
	baseError
	Current  string
	Proposed string
	Allowed  []string
	TaskID   string
}

// NewTransitionError creates a new TransitionError naming the allowed set.
func NewTransitionError(current, proposed string, allowed []string) *TransitionError {
	return &TransitionError{
		baseError: baseError{
			message:  fmt.Sprintf("%s -> %s not permitted", current, proposed),
			cause:    ErrIllegalTransition,
			severity: SeverityError,
		},
		Current:  current,
		Proposed: proposed,
		Allowed:  allowed,
	}
}

// WithTaskID adds the offending task's id to the error context.
func (e *TransitionError) WithTaskID(id string) *TransitionError {
	e.TaskID = id
	return e
}

// Error returns the formatted error message.
func (e *TransitionError) Error() string {
	allowed := "none"
	if len(e.Allowed) > 0 {
		allowed = strings.Join(e.Allowed, ", ")
	}

	prefix := "transition error"
	if e.TaskID != "" {
		prefix = fmt.Sprintf("transition error [task=%s]", e.TaskID)
	}
	return fmt.Sprintf("%s: %s (allowed: %s)", prefix, e.message, allowed)
}

// Is checks if this error matches the target.
func (e *TransitionError) Is(target error) bool {
	if _, ok := target.(*TransitionError); ok {
		return true
	}
	return e.baseError.Is(target)
}

// DelegationError represents a failed vote-delegation resolution.
//
// Example:
//
//	err := errors.NewDelegationError("chain revisits a voter", errors.ErrDelegationLoop).
//		WithChain([]string{"10001", "10002", "10001"})
type DelegationError struct {
	baseError
	Chain []string
}

// NewDelegationError creates a new DelegationError.
func NewDelegationError(message string, cause error) *DelegationError {
	return &DelegationError{
		baseError: baseError{
			message:  message,
			cause:    cause,
			severity: SeverityError,
		},
	}
}

// WithChain records the delegation chain walked before the failure.
func (e *DelegationError) WithChain(chain []string) *DelegationError {
	e.Chain = chain
	return e
}

// Error returns the formatted error message.
func (e *DelegationError) Error() string {
	prefix := "delegation error"
	if len(e.Chain) > 0 {
		prefix = fmt.Sprintf("delegation error [chain=%s]", strings.Join(e.Chain, "->"))
	}
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", prefix, e.message, e.cause)
	}
	return fmt.Sprintf("%s: %s", prefix, e.message)
}

// Is checks if this error matches the target.
func (e *DelegationError) Is(target error) bool {
	if _, ok := target.(*DelegationError); ok {
		return true
	}
	return e.baseError.Is(target)
}

// TransportError represents a durable queue or repository failure.
// Transport errors are retryable by the caller; the core never retries
// internally because masking delivery failure as success is never acceptable.
type TransportError struct {
	baseError
	Op        string
	Recipient string
}

// NewTransportError creates a new TransportError.
func NewTransportError(op string, cause error) *TransportError {
	return &TransportError{
		baseError: baseError{
			message:   op,
			cause:     cause,
			severity:  SeverityError,
			retryable: true,
		},
		Op: op,
	}
}

// WithRecipient adds the recipient whose queue was involved.
func (e *TransportError) WithRecipient(id string) *TransportError {
	e.Recipient = id
	return e
}

// Error returns the formatted error message.
func (e *TransportError) Error() string {
	prefix := "transport error"
	if e.Recipient != "" {
		prefix = fmt.Sprintf("transport error [recipient=%s]", e.Recipient)
	}
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", prefix, e.Op, e.cause)
	}
	return fmt.Sprintf("%s: %s", prefix, e.Op)
}

// Is checks if this error matches the target.
func (e *TransportError) Is(target error) bool {
	if _, ok := target.(*TransportError); ok {
		return true
	}
	if errors.Is(target, ErrTransportUnavailable) {
		return true
	}
	return e.baseError.Is(target)
}

// -----------------------------------------------------------------------------
// Semantic Errors
// -----------------------------------------------------------------------------

// NotFoundError represents a resource that could not be found.
//
// Example:
//
//	err := errors.NewNotFoundError("task", "task-42")
//	fmt.Println(err) // "task not found: task-42"
type NotFoundError struct {
	baseError
	ResourceType string
	ResourceID   string
}

// NewNotFoundError creates a new NotFoundError.
func NewNotFoundError(resourceType, resourceID string) *NotFoundError {
	return &NotFoundError{
		baseError: baseError{
			message:  fmt.Sprintf("%s not found", resourceType),
			severity: SeverityWarning,
		},
		ResourceType: resourceType,
		ResourceID:   resourceID,
	}
}

// Error returns the formatted error message.
func (e *NotFoundError) Error() string {
	if e.ResourceID != "" {
		return fmt.Sprintf("%s not found: %s", e.ResourceType, e.ResourceID)
	}
	return fmt.Sprintf("%s not found", e.ResourceType)
}

// Is checks if this error matches the target.
func (e *NotFoundError) Is(target error) bool {
	if _, ok := target.(*NotFoundError); ok {
		return true
	}
	return e.baseError.Is(target)
}

// ValidationError represents invalid input or state.
//
// Example:
//
//	err := errors.NewValidationError("agent id must be 5 characters").
//		WithField("agentID").WithValue("301")
type ValidationError struct {
	baseError
	Field string
	Value any
}

// NewValidationError creates a new ValidationError.
func NewValidationError(message string) *ValidationError {
	return &ValidationError{
		baseError: baseError{
			message:  message,
			severity: SeverityWarning,
		},
	}
}

// WithField adds a field name to the error context.
func (e *ValidationError) WithField(field string) *ValidationError {
	e.Field = field
	return e
}

// WithValue adds the invalid value to the error context.
func (e *ValidationError) WithValue(value any) *ValidationError {
	e.Value = value
	return e
}

// WithCause adds a cause to the error.
func (e *ValidationError) WithCause(cause error) *ValidationError {
	e.cause = cause
	return e
}

// Error returns the formatted error message.
func (e *ValidationError) Error() string {
	var parts []string
	if e.Field != "" {
		parts = append(parts, fmt.Sprintf("field=%s", e.Field))
	}
	if e.Value != nil {
		parts = append(parts, fmt.Sprintf("value=%v", e.Value))
	}

	prefix := "validation error"
	if len(parts) > 0 {
		prefix = fmt.Sprintf("validation error [%s]", strings.Join(parts, ", "))
	}

	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", prefix, e.message, e.cause)
	}
	return fmt.Sprintf("%s: %s", prefix, e.message)
}

// Is checks if this error matches the target.
func (e *ValidationError) Is(target error) bool {
	if _, ok := target.(*ValidationError); ok {
		return true
	}
	if errors.Is(target, ErrInvalidInput) {
		return true
	}
	return e.baseError.Is(target)
}

// TimeoutError represents an operation that timed out.
type TimeoutError struct {
	baseError
	Operation string
	Duration  time.Duration
}

// NewTimeoutError creates a new TimeoutError.
func NewTimeoutError(operation string, duration time.Duration) *TimeoutError {
	return &TimeoutError{
		baseError: baseError{
			message:   operation,
			severity:  SeverityWarning,
			retryable: true,
		},
		Operation: operation,
		Duration:  duration,
	}
}

// Error returns the formatted error message.
func (e *TimeoutError) Error() string {
	return fmt.Sprintf("timeout error: %s (timeout: %s)", e.Operation, e.Duration)
}

// Is checks if this error matches the target.
func (e *TimeoutError) Is(target error) bool {
	if _, ok := target.(*TimeoutError); ok {
		return true
	}
	if errors.Is(target, ErrTimeout) {
		return true
	}
	return e.baseError.Is(target)
}

// -----------------------------------------------------------------------------
// Error Classification Helpers
// -----------------------------------------------------------------------------

// IsRetryable returns true if the error represents a transient condition
// that may succeed on retry: transport errors, timeouts, and any
// ConclaveError reporting itself retryable. Routing violations, rate
// limits, and state machine violations are never retryable as-is.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}

	var cErr ConclaveError
	if As(err, &cErr) {
		return cErr.IsRetryable()
	}

	return Is(err, ErrTimeout) || Is(err, ErrTransportUnavailable)
}

// GetSeverity returns the severity level of the error.
// Returns SeverityError for errors that don't implement ConclaveError.
func GetSeverity(err error) Severity {
	if err == nil {
		return SeverityDebug
	}

	var cErr ConclaveError
	if As(err, &cErr) {
		return cErr.Severity()
	}

	return SeverityError
}

// IsSafetyViolation returns true for errors that represent the system's
// core safety property being exercised: illegal routing and illegal
// state transitions. These must always be surfaced to the caller.
func IsSafetyViolation(err error) bool {
	if err == nil {
		return false
	}
	return Is(err, ErrRoutingViolation) || Is(err, ErrIllegalTransition)
}

// -----------------------------------------------------------------------------
// Convenience Constructors
// -----------------------------------------------------------------------------

// Wrap wraps an error with additional context message.
func Wrap(err error, message string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", message, err)
}

// Wrapf wraps an error with a formatted context message.
func Wrapf(err error, format string, args ...any) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), err)
}
