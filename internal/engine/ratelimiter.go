package engine

import (
    "context"
    "time"

    "github.com/inkstream/inkstream-server/internal/model"
    "github.com/inkstream/inkstream-server/internal/repository"
)

// Registration rate-limit windows.  Both are rolling windows computed
// relative to "now" at query time, not aligned to calendar boundaries.
const (
    hourlyWindow   = time.Hour
    hourlyMax      = 3
    hourlyBlockFor = time.Hour

    dailyWindow   = 24 * time.Hour
    dailyMax      = 5
    dailyBlockFor = 24 * time.Hour
)

// RateLimiter decides whether a registration attempt from an IP is
// permitted, based on rolling window counts over the signup attempt
// ledger.  Tripping a limit writes a block row into the same ledger;
// until its block_until elapses every further attempt from that IP is
// rejected outright.
//
// All decisions fail closed: if the ledger cannot be read or written the
// attempt is denied with ErrPersistenceUnavailable.
type RateLimiter struct {
    Attempts *repository.AttemptRepo

    now func() time.Time
}

// NewRateLimiter constructs a RateLimiter over the given attempt ledger.
func NewRateLimiter(attempts *repository.AttemptRepo) *RateLimiter {
    return &RateLimiter{Attempts: attempts, now: func() time.Time { return time.Now().UTC() }}
}

// CheckAndRecordAttempt returns nil when a registration attempt from the
// IP may proceed.  When a limit trips it records the block row and
// returns a RateLimitedError carrying the retry delay.  The caller is
// responsible for recording the eventual outcome of an allowed attempt
// via RecordOutcome so future window counts stay accurate.
func (rl *RateLimiter) CheckAndRecordAttempt(ctx context.Context, ip string) error {
    now := rl.now()

    // An unexpired block row short-circuits everything else.
    until, err := rl.Attempts.ActiveBlock(ctx, ip, now)
    if err != nil {
        return persistence("rate limiter: active block lookup", err)
    }
    if until != nil {
        return &RateLimitedError{Reason: "temporarily blocked", RetryAfter: until.Sub(now)}
    }

    hourly, err := rl.Attempts.CountSince(ctx, ip, now.Add(-hourlyWindow))
    if err != nil {
        return persistence("rate limiter: hourly count", err)
    }
    if hourly >= hourlyMax {
        if err := rl.Attempts.InsertBlock(ctx, ip, now, now.Add(hourlyBlockFor)); err != nil {
            return persistence("rate limiter: insert hourly block", err)
        }
        return &RateLimitedError{Reason: "too many attempts", RetryAfter: hourlyBlockFor}
    }

    daily, err := rl.Attempts.CountSince(ctx, ip, now.Add(-dailyWindow))
    if err != nil {
        return persistence("rate limiter: daily count", err)
    }
    if daily >= dailyMax {
        if err := rl.Attempts.InsertBlock(ctx, ip, now, now.Add(dailyBlockFor)); err != nil {
            return persistence("rate limiter: insert daily block", err)
        }
        return &RateLimitedError{Reason: "daily limit reached", RetryAfter: dailyBlockFor}
    }

    return nil
}

// RecordOutcome appends the attempt row for a registration that got past
// the limiter.  Email and fingerprint may be empty.
func (rl *RateLimiter) RecordOutcome(ctx context.Context, email, ip, fingerprint string, successful bool) error {
    a := model.SignupAttempt{
        IP:          ip,
        AttemptedAt: rl.now(),
        Successful:  successful,
    }
    if email != "" {
        a.Email = &email
    }
    if fingerprint != "" {
        a.DeviceFingerprint = &fingerprint
    }
    if err := rl.Attempts.Insert(ctx, a); err != nil {
        return persistence("rate limiter: record outcome", err)
    }
    return nil
}
