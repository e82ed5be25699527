package model

import "time"

// FreeTrialRecord captures one successful free-trial start.  At most one
// row may ever exist per email; the guard also reasons over IP, device
// fingerprint and email domain independently of the email, which is why
// uniqueness is checked in the guard rather than relying on a DB
// constraint alone.  The row references a user once the trial succeeds
// but must be creatable before the user row exists in some flows, hence
// the nullable UserID.  This struct corresponds to a row in the
// `free_trial_records` table.
//
// Fields:
//  ID                – primary key identifier.
//  Email             – lowercased email that started the trial.
//  EmailDomain       – domain part of the email, used for saturation checks.
//  IP                – remote address at trial start.
//  DeviceFingerprint – SHA-256 device digest when supplied.
//  UserID            – user granted the trial (nullable until fulfilled).
//  TrialStartedAt    – trial start instant.
//  TrialEndedAt      – trial end instant (start + trial window).
type FreeTrialRecord struct {
    ID                uint64     // free_trial_records.id
    Email             string     // free_trial_records.email
    EmailDomain       string     // free_trial_records.email_domain
    IP                string     // free_trial_records.ip
    DeviceFingerprint *string    // free_trial_records.device_fingerprint (nullable)
    UserID            *uint64    // free_trial_records.user_id (nullable)
    TrialStartedAt    time.Time  // free_trial_records.trial_started_at
    TrialEndedAt      time.Time  // free_trial_records.trial_ended_at
}
