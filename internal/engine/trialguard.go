package engine

import (
    "context"
    "database/sql"
    "strings"
    "time"

    "github.com/inkstream/inkstream-server/internal/model"
    "github.com/inkstream/inkstream-server/internal/repository"
)

// Trial policy knobs.
const (
    // TrialDuration is how long a free trial entitles the user.
    TrialDuration = 7 * 24 * time.Hour
    // trialReuseWindow bounds the IP, device and domain reuse checks.
    // Email reuse is checked over all time.
    trialReuseWindow = 30 * 24 * time.Hour
    // domainTrialMax tolerates this many trials per email domain per
    // window before the domain counts as saturated.  Two keeps family
    // and shared-domain use working while blocking disposable-domain
    // farming.
    domainTrialMax = 2
)

// TrialGuard decides whether an (email, IP, device fingerprint) triple
// may start a free trial, and records trial starts atomically with the
// user's entitlement update.  Checks run in a fixed order and stop at
// the first conflict.
type TrialGuard struct {
    DB       *sql.DB
    Trials   *repository.TrialRepo
    Users    *repository.UserRepo
    Attempts *repository.AttemptRepo

    now func() time.Time
}

// NewTrialGuard constructs a TrialGuard over the given database handle
// and repositories.
func NewTrialGuard(db *sql.DB, trials *repository.TrialRepo, users *repository.UserRepo, attempts *repository.AttemptRepo) *TrialGuard {
    return &TrialGuard{
        DB:       db,
        Trials:   trials,
        Users:    users,
        Attempts: attempts,
        now:      func() time.Time { return time.Now().UTC() },
    }
}

// CheckEligibility returns nil when the identity triple may start a
// trial, or a TrialIneligibleError naming the first violated signal:
// email reuse, then IP reuse, then device reuse (only when a fingerprint
// was supplied), then domain saturation.  Database failures deny the
// trial with ErrPersistenceUnavailable.
func (g *TrialGuard) CheckEligibility(ctx context.Context, email, ip, fingerprint string) error {
    email = strings.ToLower(strings.TrimSpace(email))
    since := g.now().Add(-trialReuseWindow)

    used, err := g.Trials.ExistsByEmail(ctx, email)
    if err != nil {
        return persistence("trial guard: email check", err)
    }
    if used {
        return &TrialIneligibleError{ConflictType: ConflictEmail, Reason: "a trial has already been started for this account"}
    }

    used, err = g.Trials.ExistsByIPSince(ctx, ip, since)
    if err != nil {
        return persistence("trial guard: ip check", err)
    }
    if used {
        return &TrialIneligibleError{ConflictType: ConflictIP, Reason: "a trial was recently started from this network"}
    }

    if fingerprint != "" {
        used, err = g.Trials.ExistsByFingerprintSince(ctx, fingerprint, since)
        if err != nil {
            return persistence("trial guard: device check", err)
        }
        if used {
            return &TrialIneligibleError{ConflictType: ConflictDevice, Reason: "a trial was recently started from this device"}
        }
    }

    n, err := g.Trials.CountByDomainSince(ctx, emailDomain(email), since)
    if err != nil {
        return persistence("trial guard: domain check", err)
    }
    if n >= domainTrialMax {
        return &TrialIneligibleError{ConflictType: ConflictDomain, Reason: "too many recent trials for this email domain"}
    }

    return nil
}

// RecordTrialStart grants the trial in one transaction: it inserts the
// free trial record, flips the user's entitlement fields and appends a
// successful signup attempt row.  Either all three land or none do; a
// trial record without the entitlement update would leave the user
// permanently ineligible without ever receiving the trial, and the
// reverse would let them retry eligibility forever.  Returns the trial
// end time on success.
func (g *TrialGuard) RecordTrialStart(ctx context.Context, userID uint64, email, ip, fingerprint string) (time.Time, error) {
    email = strings.ToLower(strings.TrimSpace(email))
    now := g.now()
    endsAt := now.Add(TrialDuration)

    tx, err := g.DB.BeginTx(ctx, nil)
    if err != nil {
        return time.Time{}, persistence("trial guard: begin", err)
    }
    committed := false
    defer func() {
        if !committed {
            _ = tx.Rollback()
        }
    }()

    rec := &model.FreeTrialRecord{
        Email:          email,
        EmailDomain:    emailDomain(email),
        IP:             ip,
        UserID:         &userID,
        TrialStartedAt: now,
        TrialEndedAt:   endsAt,
    }
    if fingerprint != "" {
        rec.DeviceFingerprint = &fingerprint
    }
    if err := g.Trials.CreateTx(ctx, tx, rec); err != nil {
        if err == repository.ErrConflict {
            // Lost a race with another trial start for the same email.
            return time.Time{}, &TrialIneligibleError{ConflictType: ConflictEmail, Reason: "a trial has already been started for this account"}
        }
        return time.Time{}, persistence("trial guard: create record", err)
    }
    if err := g.Users.ActivateTrialTx(ctx, tx, userID, now, endsAt); err != nil {
        if err == sql.ErrNoRows {
            return time.Time{}, ErrNotFound
        }
        return time.Time{}, persistence("trial guard: activate entitlement", err)
    }
    attempt := model.SignupAttempt{
        Email:       &email,
        IP:          ip,
        AttemptedAt: now,
        Successful:  true,
    }
    if fingerprint != "" {
        attempt.DeviceFingerprint = &fingerprint
    }
    if err := g.Attempts.InsertTx(ctx, tx, attempt); err != nil {
        return time.Time{}, persistence("trial guard: record attempt", err)
    }

    if err := tx.Commit(); err != nil {
        return time.Time{}, persistence("trial guard: commit", err)
    }
    committed = true
    return endsAt, nil
}

// emailDomain returns the lowercased part after the last '@', or the
// whole input when no '@' is present (malformed emails are still
// counted under some bucket rather than escaping the domain check).
func emailDomain(email string) string {
    at := strings.LastIndexByte(email, '@')
    if at < 0 || at == len(email)-1 {
        return strings.ToLower(email)
    }
    return strings.ToLower(email[at+1:])
}
