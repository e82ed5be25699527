package model

import "time"

// SignupAttempt is one append-only row in the registration attempt ledger.
// Every registration request that reaches the rate limiter eventually
// produces a row; block rows are also stored here, distinguished by a
// future BlockUntil.  Rows are never updated or deleted; all limit
// decisions are window counts over this ledger.  This struct corresponds
// to a row in the `signup_attempts` table.
//
// Fields:
//  ID                – primary key identifier.
//  Email             – email supplied with the attempt (nil before the form is parsed, e.g. block rows).
//  IP                – remote address the attempt came from.
//  DeviceFingerprint – SHA-256 device digest when the client supplied one.
//  AttemptedAt       – when the attempt was recorded.
//  Successful        – whether the registration went through.
//  BlockUntil        – when set and in the future, the IP is blocked until this instant.
type SignupAttempt struct {
    ID                uint64     // signup_attempts.id
    Email             *string    // signup_attempts.email (nullable)
    IP                string     // signup_attempts.ip
    DeviceFingerprint *string    // signup_attempts.device_fingerprint (nullable)
    AttemptedAt       time.Time  // signup_attempts.attempted_at
    Successful        bool       // signup_attempts.successful
    BlockUntil        *time.Time // signup_attempts.block_until (nullable)
}
