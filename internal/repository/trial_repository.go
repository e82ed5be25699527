package repository

import (
    "context"
    "database/sql"
    "strings"
    "time"

    "github.com/inkstream/inkstream-server/internal/model"
)

// TrialRepo provides data access to the free_trial_records table.  One
// row is inserted per successful trial start; the eligibility checks in
// the trial guard are existence and count queries over the four signals
// (email, IP, device fingerprint, email domain).  All timestamps are
// stored and compared in UTC.
type TrialRepo struct {
    db *sql.DB
}

// NewTrialRepo returns a new TrialRepo bound to the given database.
func NewTrialRepo(db *sql.DB) *TrialRepo { return &TrialRepo{db: db} }

// ExistsByEmail reports whether any trial record exists for the exact
// lowercased email, regardless of age.  An email gets one trial ever.
func (r *TrialRepo) ExistsByEmail(ctx context.Context, email string) (bool, error) {
    const q = `SELECT 1 FROM free_trial_records WHERE email = ? LIMIT 1`
    return r.exists(ctx, q, strings.ToLower(strings.TrimSpace(email)))
}

// ExistsByIPSince reports whether any trial started from this IP at or
// after the given instant.
func (r *TrialRepo) ExistsByIPSince(ctx context.Context, ip string, since time.Time) (bool, error) {
    const q = `SELECT 1 FROM free_trial_records WHERE ip = ? AND trial_started_at >= ? LIMIT 1`
    return r.exists(ctx, q, ip, since.UTC())
}

// ExistsByFingerprintSince reports whether any trial started from a
// device with this fingerprint at or after the given instant.
func (r *TrialRepo) ExistsByFingerprintSince(ctx context.Context, fingerprint string, since time.Time) (bool, error) {
    const q = `SELECT 1 FROM free_trial_records WHERE device_fingerprint = ? AND trial_started_at >= ? LIMIT 1`
    return r.exists(ctx, q, fingerprint, since.UTC())
}

// CountByDomainSince counts trials started under the email domain at or
// after the given instant.
func (r *TrialRepo) CountByDomainSince(ctx context.Context, domain string, since time.Time) (int, error) {
    const q = `SELECT COUNT(*) FROM free_trial_records WHERE email_domain = ? AND trial_started_at >= ?`
    var n int
    if err := r.db.QueryRowContext(ctx, q, strings.ToLower(domain), since.UTC()).Scan(&n); err != nil {
        return 0, err
    }
    return n, nil
}

// CreateTx inserts a new trial record within the scope of an existing
// transaction and populates the generated ID on the provided record.
// The caller must commit or rollback the transaction; the companion
// entitlement update belongs in the same transaction.
func (r *TrialRepo) CreateTx(ctx context.Context, tx *sql.Tx, rec *model.FreeTrialRecord) error {
    const q = `INSERT INTO free_trial_records
               (email, email_domain, ip, device_fingerprint, user_id, trial_started_at, trial_ended_at)
               VALUES (?, ?, ?, ?, ?, ?, ?)`
    res, err := tx.ExecContext(ctx, q,
        strings.ToLower(rec.Email), strings.ToLower(rec.EmailDomain), rec.IP,
        rec.DeviceFingerprint, rec.UserID, rec.TrialStartedAt.UTC(), rec.TrialEndedAt.UTC())
    if err != nil {
        if strings.Contains(strings.ToLower(err.Error()), "1062") {
            return ErrConflict
        }
        return err
    }
    id, err := res.LastInsertId()
    if err != nil {
        return err
    }
    rec.ID = uint64(id)
    return nil
}

// exists runs a LIMIT 1 existence query and folds sql.ErrNoRows into a
// plain false.
func (r *TrialRepo) exists(ctx context.Context, q string, args ...interface{}) (bool, error) {
    var one int
    err := r.db.QueryRowContext(ctx, q, args...).Scan(&one)
    if err == sql.ErrNoRows {
        return false, nil
    }
    if err != nil {
        return false, err
    }
    return true, nil
}
