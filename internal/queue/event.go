// Package queue defines message payloads exchanged over the message broker.
package queue

// Queue names.  Both queues are declared durable by publishers and
// consumers alike so declaration stays idempotent.
const (
    DeviceDeactivatedQueue = "device.deactivated"
    TrialStartedQueue      = "trial.started"
)

// DeviceDeactivatedEvent is published the moment a device registration is
// deactivated.  It is the cascading license-revocation signal: the
// license issuer consumes it and invalidates every outstanding offline
// content license bound to the device's fingerprint, including licenses
// issued before deactivation.
type DeviceDeactivatedEvent struct {
    DeviceID      uint64 `json:"device_id"`
    UserID        uint64 `json:"user_id"`
    Name          string `json:"name"`
    Fingerprint   string `json:"fingerprint"`
    DeactivatedAt string `json:"deactivated_at"`
}

// TrialStartedEvent is published after a free trial has been granted.
// Downstream consumers use it for welcome emails and analytics without
// querying the primary database.
type TrialStartedEvent struct {
    UserID         uint64 `json:"user_id"`
    Email          string `json:"email"`
    TrialStartedAt string `json:"trial_started_at"`
    TrialEndsAt    string `json:"trial_ends_at"`
}
