// Package errors provides centralized error definitions and error handling
// utilities for the sessionpool codebase. It defines domain-specific errors
// for the pool core (instance initialization, health probes, routing,
// scaling), error constructors with context wrapping, and classification
// helpers.
//
// Probe timeouts and probe errors are deliberately the same kind of failure:
// both produce a ProbeError and the same unhealthy transition. Only the
// message differs.
//
// Bootstrap failure is the single fatal condition in the core: a pool that
// comes up with zero instances cannot serve and must surface the error to
// whatever started it.
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

// Instance-related sentinel errors
var (
	// ErrInstanceNotFound indicates that an instance could not be found.
	ErrInstanceNotFound = New("instance not found")
	// ErrInstanceNotReady indicates that an instance cannot accept work in its current state.
	ErrInstanceNotReady = New("instance not ready")
	// ErrInstanceRemoved indicates that an instance has been cleaned up.
	ErrInstanceRemoved = New("instance removed")
	// ErrSessionExpired indicates that an instance's session exceeded its lifetime or request budget.
	ErrSessionExpired = New("session expired")
)

// Pool-related sentinel errors
var (
	// ErrPoolAtCapacity indicates that creating an instance would exceed max_instances.
	ErrPoolAtCapacity = New("pool at maximum capacity")
	// ErrPoolAtFloor indicates that removing a healthy instance would violate min_instances.
	ErrPoolAtFloor = New("pool at minimum healthy instances")
	// ErrInstanceBusy indicates that an instance still has active requests bound to it.
	ErrInstanceBusy = New("instance has active requests")
	// ErrNoHealthyInstances indicates that the healthy membership set is empty.
	ErrNoHealthyInstances = New("no healthy instances available")
)

// General sentinel errors
var (
	// ErrProbeTimeout indicates that a health probe did not complete within its deadline.
	ErrProbeTimeout = New("health probe timed out")
	// ErrUnknownStrategy indicates that a strategy name does not match the closed set.
	ErrUnknownStrategy = New("unknown balancing strategy")
	// ErrCanceled indicates that an operation was canceled.
	ErrCanceled = New("operation canceled")
)

// -----------------------------------------------------------------------------
// Base Error Interface
// -----------------------------------------------------------------------------

// PoolError is the base interface for all sessionpool errors.
// It extends the standard error interface with classification methods.
type PoolError interface {
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

	// IsUserFacing returns true if the error message is safe to surface
	// to request callers.
	IsUserFacing() bool
}

// baseError provides common functionality for all error types.
type baseError struct {
	message    string
	cause      error
	severity   Severity
	retryable  bool
	userFacing bool
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

// IsUserFacing returns whether the error is safe to show callers.
func (e *baseError) IsUserFacing() bool {
	return e.userFacing
}

// -----------------------------------------------------------------------------
// Domain-Specific Errors
// -----------------------------------------------------------------------------

// InitializationError represents an instance that could not reach a ready state.
//
// Example:
//
//	err := errors.NewInitializationError("session setup failed", cause).WithInstanceID("inst-1")
type InitializationError struct {
	baseError
	InstanceID string
}

// NewInitializationError creates a new InitializationError.
func NewInitializationError(message string, cause error) *InitializationError {
	return &InitializationError{
		baseError: baseError{
			message:    message,
			cause:      cause,
			severity:   SeverityError,
			retryable:  true,
			userFacing: false,
		},
	}
}

// WithInstanceID adds an instance ID to the error context.
func (e *InitializationError) WithInstanceID(id string) *InitializationError {
	e.InstanceID = id
	return e
}

// Error returns the formatted error message.
func (e *InitializationError) Error() string {
	prefix := "initialization error"
	if e.InstanceID != "" {
		prefix = fmt.Sprintf("initialization error [instance=%s]", e.InstanceID)
	}
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", prefix, e.message, e.cause)
	}
	return fmt.Sprintf("%s: %s", prefix, e.message)
}

// Is checks if this error matches the target.
func (e *InitializationError) Is(target error) bool {
	if _, ok := target.(*InitializationError); ok {
		return true
	}
	return e.baseError.Is(target)
}

// ProbeError represents a failed health probe. A probe that exceeds its
// timeout and a probe that returns an error are treated identically; the
// Timeout flag exists only for history and alert payloads.
type ProbeError struct {
	baseError
	InstanceID string
	Timeout    bool
	Elapsed    time.Duration
}

// NewProbeError creates a ProbeError for a probe that returned an error.
func NewProbeError(instanceID string, cause error) *ProbeError {
	return &ProbeError{
		baseError: baseError{
			message:    "health probe failed",
			cause:      cause,
			severity:   SeverityWarning,
			retryable:  true,
			userFacing: false,
		},
		InstanceID: instanceID,
	}
}

// NewProbeTimeoutError creates a ProbeError for a probe that exceeded its deadline.
func NewProbeTimeoutError(instanceID string, elapsed time.Duration) *ProbeError {
	return &ProbeError{
		baseError: baseError{
			message:    "health probe timed out",
			cause:      ErrProbeTimeout,
			severity:   SeverityWarning,
			retryable:  true,
			userFacing: false,
		},
		InstanceID: instanceID,
		Timeout:    true,
		Elapsed:    elapsed,
	}
}

// Error returns the formatted error message.
func (e *ProbeError) Error() string {
	prefix := "probe error"
	if e.InstanceID != "" {
		prefix = fmt.Sprintf("probe error [instance=%s]", e.InstanceID)
	}
	if e.Timeout {
		return fmt.Sprintf("%s: %s (after %s)", prefix, e.message, e.Elapsed)
	}
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", prefix, e.message, e.cause)
	}
	return fmt.Sprintf("%s: %s", prefix, e.message)
}

// Is checks if this error matches the target.
func (e *ProbeError) Is(target error) bool {
	if _, ok := target.(*ProbeError); ok {
		return true
	}
	return e.baseError.Is(target)
}

// RoutingError represents a request that could not be routed after
// exhausting all retry attempts. It is user-facing: callers get a
// best-effort explanation of why no instance was available.
type RoutingError struct {
	baseError
	RequestID string
	Attempts  int
}

// NewRoutingError creates a new RoutingError.
func NewRoutingError(requestID string, attempts int, cause error) *RoutingError {
	return &RoutingError{
		baseError: baseError{
			message:    "no instance available",
			cause:      cause,
			severity:   SeverityWarning,
			retryable:  true,
			userFacing: true,
		},
		RequestID: requestID,
		Attempts:  attempts,
	}
}

// Error returns the formatted error message.
func (e *RoutingError) Error() string {
	prefix := "routing error"
	if e.RequestID != "" {
		prefix = fmt.Sprintf("routing error [request=%s]", e.RequestID)
	}
	msg := fmt.Sprintf("%s: %s after %d attempts", prefix, e.message, e.Attempts)
	if e.cause != nil {
		return fmt.Sprintf("%s: %v", msg, e.cause)
	}
	return msg
}

// Is checks if this error matches the target.
func (e *RoutingError) Is(target error) bool {
	if _, ok := target.(*RoutingError); ok {
		return true
	}
	return e.baseError.Is(target)
}

// ValidationError represents an instance that passed selection but was no
// longer eligible when revalidated (membership or status changed underneath
// the strategy).
type ValidationError struct {
	baseError
	InstanceID string
	Reason     string
}

// NewValidationError creates a new ValidationError.
func NewValidationError(instanceID, reason string) *ValidationError {
	return &ValidationError{
		baseError: baseError{
			message:    reason,
			severity:   SeverityInfo,
			retryable:  true,
			userFacing: false,
		},
		InstanceID: instanceID,
		Reason:     reason,
	}
}

// Error returns the formatted error message.
func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error [instance=%s]: %s", e.InstanceID, e.Reason)
}

// Is checks if this error matches the target.
func (e *ValidationError) Is(target error) bool {
	if _, ok := target.(*ValidationError); ok {
		return true
	}
	return e.baseError.Is(target)
}

// ScalingError represents a failed scale-up or scale-down action. These are
// recovered locally: the next evaluation cycle retries.
type ScalingError struct {
	baseError
	Action string
}

// NewScalingError creates a new ScalingError.
func NewScalingError(action string, cause error) *ScalingError {
	return &ScalingError{
		baseError: baseError{
			message:    fmt.Sprintf("%s failed", action),
			cause:      cause,
			severity:   SeverityWarning,
			retryable:  true,
			userFacing: false,
		},
		Action: action,
	}
}

// Error returns the formatted error message.
func (e *ScalingError) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("scaling error: %s: %v", e.message, e.cause)
	}
	return fmt.Sprintf("scaling error: %s", e.message)
}

// Is checks if this error matches the target.
func (e *ScalingError) Is(target error) bool {
	if _, ok := target.(*ScalingError); ok {
		return true
	}
	return e.baseError.Is(target)
}

// BootstrapError represents a pool that started with zero usable instances.
// This is the only fatal condition in the core.
type BootstrapError struct {
	baseError
	Requested int
	Failures  []error
}

// NewBootstrapError creates a new BootstrapError.
func NewBootstrapError(requested int, failures []error) *BootstrapError {
	return &BootstrapError{
		baseError: baseError{
			message:    "no instances could be created at startup",
			cause:      Join(failures...),
			severity:   SeverityCritical,
			retryable:  false,
			userFacing: true,
		},
		Requested: requested,
		Failures:  failures,
	}
}

// Error returns the formatted error message.
func (e *BootstrapError) Error() string {
	var parts []string
	parts = append(parts, fmt.Sprintf("requested=%d", e.Requested))
	parts = append(parts, fmt.Sprintf("failures=%d", len(e.Failures)))
	prefix := fmt.Sprintf("bootstrap error [%s]", strings.Join(parts, ", "))
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", prefix, e.message, e.cause)
	}
	return fmt.Sprintf("%s: %s", prefix, e.message)
}

// Is checks if this error matches the target.
func (e *BootstrapError) Is(target error) bool {
	if _, ok := target.(*BootstrapError); ok {
		return true
	}
	return e.baseError.Is(target)
}

// -----------------------------------------------------------------------------
// Error Classification Helpers
// -----------------------------------------------------------------------------

// IsRetryable returns true if the error represents a transient condition
// that may succeed on retry.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}

	var poolErr PoolError
	if As(err, &poolErr) {
		return poolErr.IsRetryable()
	}

	if Is(err, ErrProbeTimeout) || Is(err, ErrNoHealthyInstances) {
		return true
	}

	return false
}

// IsUserFacing returns true if the error message is safe to surface to
// request callers.
func IsUserFacing(err error) bool {
	if err == nil {
		return false
	}

	var poolErr PoolError
	if As(err, &poolErr) {
		return poolErr.IsUserFacing()
	}

	return false
}

// IsFatal returns true if the error means the pool cannot serve at all.
// Only bootstrap failure qualifies.
func IsFatal(err error) bool {
	if err == nil {
		return false
	}
	var bootErr *BootstrapError
	return As(err, &bootErr)
}

// GetSeverity returns the severity level of the error.
// Returns SeverityError for errors that don't implement PoolError.
func GetSeverity(err error) Severity {
	if err == nil {
		return SeverityDebug
	}

	var poolErr PoolError
	if As(err, &poolErr) {
		return poolErr.Severity()
	}

	return SeverityError
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
