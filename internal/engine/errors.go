// Package engine implements the entitlement and abuse-prevention core:
// the signup rate limiter, the free-trial eligibility guard, the loan
// manager and the device registry.  Components are plain structs holding
// a database handle and repositories; they keep no process-local mutable
// state, so any number of stateless server instances can run them
// concurrently against the same database.
package engine

import (
    "errors"
    "fmt"
    "time"
)

// Trial conflict categories.  Responses expose only the single violated
// category, never the matched value, so a retrying fraudster learns at
// most which signal class tripped.
const (
    ConflictEmail  = "email"
    ConflictIP     = "ip"
    ConflictDevice = "device"
    ConflictDomain = "domain"
)

// ErrNotFound is returned when a resource does not exist or is not owned
// by the requesting user.  The two cases are deliberately
// indistinguishable.
var ErrNotFound = errors.New("not found")

// ErrInvalidLoanState is returned when a loan transition is attempted on
// a loan that is not active.  Returning or revoking twice is a caller
// logic error, not a no-op.
var ErrInvalidLoanState = errors.New("invalid loan state")

// ErrInvalidDeviceState is returned when an operation requires an active
// device but the registration has been deactivated.
var ErrInvalidDeviceState = errors.New("invalid device state")

// ErrNotEntitled is returned when a user without an active subscription
// or open trial window attempts to borrow.
var ErrNotEntitled = errors.New("no active subscription or trial")

// ErrPersistenceUnavailable marks database failures inside cap and limit
// checks.  Every such failure denies the request (fail closed); nothing
// in this package allows an action because the store was unreachable.
// Match with errors.Is.
var ErrPersistenceUnavailable = errors.New("persistence unavailable")

// RateLimitedError reports a blocked registration attempt and how long
// the client must wait before retrying.
type RateLimitedError struct {
    Reason     string
    RetryAfter time.Duration
}

func (e *RateLimitedError) Error() string {
    return fmt.Sprintf("rate limited: %s (retry after %s)", e.Reason, e.RetryAfter)
}

// TrialIneligibleError reports a failed trial eligibility check.  It is
// terminal for that identity combination, not retryable.
type TrialIneligibleError struct {
    ConflictType string
    Reason       string
}

func (e *TrialIneligibleError) Error() string {
    return fmt.Sprintf("trial ineligible: %s conflict", e.ConflictType)
}

// LoanLimitExceededError reports a borrow rejected at the concurrent
// loan cap.  Retryable once the user frees a slot.
type LoanLimitExceededError struct {
    Active int
    Max    int
}

func (e *LoanLimitExceededError) Error() string {
    return fmt.Sprintf("loan limit exceeded: %d of %d active", e.Active, e.Max)
}

// DeviceLimitExceededError reports a device registration rejected at the
// active device cap.  Retryable once the user deactivates a device.
type DeviceLimitExceededError struct {
    Active int
    Max    int
}

func (e *DeviceLimitExceededError) Error() string {
    return fmt.Sprintf("device limit exceeded: %d of %d active", e.Active, e.Max)
}

// persistence wraps a database error so callers can match it with
// errors.Is(err, ErrPersistenceUnavailable) while the underlying cause
// stays unwrap-able for logs.
func persistence(op string, err error) error {
    return fmt.Errorf("%w: %s: %v", ErrPersistenceUnavailable, op, err)
}
