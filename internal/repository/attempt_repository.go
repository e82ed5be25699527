package repository

import (
    "context"
    "database/sql"
    "time"

    "github.com/inkstream/inkstream-server/internal/model"
)

// AttemptRepo provides data access to the signup_attempts ledger.  The
// ledger is append-only: attempts and blocks are inserted, never updated,
// and every rate-limit decision is a window count over it.  All
// timestamp comparisons are performed in UTC; callers pass the current
// instant explicitly so decisions stay reproducible under a test clock.
type AttemptRepo struct {
    db *sql.DB
}

// NewAttemptRepo returns a new AttemptRepo bound to the given database.
func NewAttemptRepo(db *sql.DB) *AttemptRepo { return &AttemptRepo{db: db} }

// ActiveBlock returns the block_until of the furthest-reaching active
// block for the IP, or nil when the IP is not currently blocked.  A block
// is active while its block_until lies after the supplied instant.
func (r *AttemptRepo) ActiveBlock(ctx context.Context, ip string, now time.Time) (*time.Time, error) {
    const q = `SELECT block_until FROM signup_attempts
               WHERE ip = ? AND block_until IS NOT NULL AND block_until > ?
               ORDER BY block_until DESC LIMIT 1`
    var until time.Time
    err := r.db.QueryRowContext(ctx, q, ip, now.UTC()).Scan(&until)
    if err == sql.ErrNoRows {
        return nil, nil
    }
    if err != nil {
        return nil, err
    }
    return &until, nil
}

// CountSince counts ledger rows for the IP recorded at or after the
// given instant.  Block rows count too; they represent the attempt that
// tripped the limit.
func (r *AttemptRepo) CountSince(ctx context.Context, ip string, since time.Time) (int, error) {
    const q = `SELECT COUNT(*) FROM signup_attempts WHERE ip = ? AND attempted_at >= ?`
    var n int
    if err := r.db.QueryRowContext(ctx, q, ip, since.UTC()).Scan(&n); err != nil {
        return 0, err
    }
    return n, nil
}

// Insert appends one attempt row.  Email and fingerprint may be nil when
// the attempt was rejected before the form was parsed.
func (r *AttemptRepo) Insert(ctx context.Context, a model.SignupAttempt) error {
    const q = `INSERT INTO signup_attempts
               (email, ip, device_fingerprint, attempted_at, successful, block_until)
               VALUES (?, ?, ?, ?, ?, ?)`
    _, err := r.db.ExecContext(ctx, q,
        a.Email, a.IP, a.DeviceFingerprint, a.AttemptedAt.UTC(), a.Successful, nullableUTC(a.BlockUntil))
    return err
}

// InsertTx appends one attempt row within an existing transaction.  Used
// by the trial guard so the successful attempt lands atomically with the
// trial record and the entitlement update.
func (r *AttemptRepo) InsertTx(ctx context.Context, tx *sql.Tx, a model.SignupAttempt) error {
    const q = `INSERT INTO signup_attempts
               (email, ip, device_fingerprint, attempted_at, successful, block_until)
               VALUES (?, ?, ?, ?, ?, ?)`
    _, err := tx.ExecContext(ctx, q,
        a.Email, a.IP, a.DeviceFingerprint, a.AttemptedAt.UTC(), a.Successful, nullableUTC(a.BlockUntil))
    return err
}

// InsertBlock appends a block row for the IP.  The block row doubles as
// the record of the attempt that tripped the limit (successful = false),
// distinct from the rows recording earlier individual attempts.
func (r *AttemptRepo) InsertBlock(ctx context.Context, ip string, attemptedAt, blockUntil time.Time) error {
    const q = `INSERT INTO signup_attempts (ip, attempted_at, successful, block_until)
               VALUES (?, ?, 0, ?)`
    _, err := r.db.ExecContext(ctx, q, ip, attemptedAt.UTC(), blockUntil.UTC())
    return err
}

// nullableUTC converts an optional timestamp to UTC for storage.
func nullableUTC(t *time.Time) interface{} {
    if t == nil {
        return nil
    }
    return t.UTC()
}
