package repository

import (
    "context"
    "database/sql"
    "time"

    "github.com/inkstream/inkstream-server/internal/model"
)

// loanColumns is the column list shared by every loans SELECT.
const loanColumns = `id, user_id, book_id, status, loan_type, started_at,
       returned_at, revoked_at, revoke_reason`

// LoanRepo provides data access to the loans table.  Loans are created
// in the active status and transition exactly once to returned or
// revoked.  Cap enforcement pairs CountActiveTx with CreateTx inside a
// transaction that holds the owning user's row lock.
type LoanRepo struct {
    db *sql.DB
}

// NewLoanRepo returns a new LoanRepo bound to the given database.
func NewLoanRepo(db *sql.DB) *LoanRepo { return &LoanRepo{db: db} }

// CountActiveTx counts the user's active loans within the transaction.
// The caller must already hold the user row lock so the count cannot be
// invalidated by a concurrent borrow before the matching insert commits.
func (r *LoanRepo) CountActiveTx(ctx context.Context, tx *sql.Tx, userID uint64) (int, error) {
    const q = `SELECT COUNT(*) FROM loans WHERE user_id = ? AND status = ?`
    var n int
    if err := tx.QueryRowContext(ctx, q, userID, model.LoanActive).Scan(&n); err != nil {
        return 0, err
    }
    return n, nil
}

// CountActive counts the user's active loans outside a transaction, for
// read-only summaries.
func (r *LoanRepo) CountActive(ctx context.Context, userID uint64) (int, error) {
    const q = `SELECT COUNT(*) FROM loans WHERE user_id = ? AND status = ?`
    var n int
    if err := r.db.QueryRowContext(ctx, q, userID, model.LoanActive).Scan(&n); err != nil {
        return 0, err
    }
    return n, nil
}

// CreateTx inserts a new active loan within the provided transaction and
// populates the generated ID and start time on the given record.  The
// caller must commit or rollback.
func (r *LoanRepo) CreateTx(ctx context.Context, tx *sql.Tx, loan *model.Loan) error {
    const q = `INSERT INTO loans (user_id, book_id, status, loan_type, started_at)
               VALUES (?, ?, ?, ?, ?)`
    res, err := tx.ExecContext(ctx, q,
        loan.UserID, loan.BookID, loan.Status, loan.LoanType, loan.StartedAt.UTC())
    if err != nil {
        return err
    }
    id, err := res.LastInsertId()
    if err != nil {
        return err
    }
    loan.ID = uint64(id)
    return nil
}

// GetForUserTx reads a loan owned by the given user inside the
// transaction while taking a row lock on it, so a status transition
// cannot race another transition of the same loan.  Returns
// sql.ErrNoRows when the loan does not exist or belongs to someone else;
// callers must not distinguish the two cases.
func (r *LoanRepo) GetForUserTx(ctx context.Context, tx *sql.Tx, loanID, userID uint64) (model.Loan, error) {
    const q = `SELECT ` + loanColumns + ` FROM loans WHERE id = ? AND user_id = ? FOR UPDATE`
    return scanLoan(tx.QueryRowContext(ctx, q, loanID, userID))
}

// GetByIDTx reads any loan by ID with a row lock.  Used by the
// system-initiated revoke path, which is not scoped to a requesting
// user.
func (r *LoanRepo) GetByIDTx(ctx context.Context, tx *sql.Tx, loanID uint64) (model.Loan, error) {
    const q = `SELECT ` + loanColumns + ` FROM loans WHERE id = ? FOR UPDATE`
    return scanLoan(tx.QueryRowContext(ctx, q, loanID))
}

// MarkReturnedTx moves an active loan to returned.  The status guard in
// the WHERE clause is belt and braces on top of the engine's check; zero
// rows affected means the loan was not active.
func (r *LoanRepo) MarkReturnedTx(ctx context.Context, tx *sql.Tx, loanID uint64, at time.Time) error {
    return r.transition(ctx, tx,
        `UPDATE loans SET status = ?, returned_at = ? WHERE id = ? AND status = ?`,
        model.LoanReturned, at.UTC(), loanID, model.LoanActive)
}

// MarkRevokedTx moves an active loan to revoked with a reason.
func (r *LoanRepo) MarkRevokedTx(ctx context.Context, tx *sql.Tx, loanID uint64, reason string, at time.Time) error {
    return r.transition(ctx, tx,
        `UPDATE loans SET status = ?, revoked_at = ?, revoke_reason = ? WHERE id = ? AND status = ?`,
        model.LoanRevoked, at.UTC(), reason, loanID, model.LoanActive)
}

// ListByUser returns the user's loans ordered newest first, optionally
// filtered by status.  An empty status returns every loan.
func (r *LoanRepo) ListByUser(ctx context.Context, userID uint64, status string) ([]model.Loan, error) {
    q := `SELECT ` + loanColumns + ` FROM loans WHERE user_id = ?`
    args := []interface{}{userID}
    if status != "" {
        q += ` AND status = ?`
        args = append(args, status)
    }
    q += ` ORDER BY started_at DESC, id DESC`
    rows, err := r.db.QueryContext(ctx, q, args...)
    if err != nil {
        return nil, err
    }
    defer rows.Close()
    loans := make([]model.Loan, 0)
    for rows.Next() {
        l, err := scanLoanRows(rows)
        if err != nil {
            return nil, err
        }
        loans = append(loans, l)
    }
    if err := rows.Err(); err != nil {
        return nil, err
    }
    return loans, nil
}

func (r *LoanRepo) transition(ctx context.Context, tx *sql.Tx, q string, args ...interface{}) error {
    res, err := tx.ExecContext(ctx, q, args...)
    if err != nil {
        return err
    }
    n, err := res.RowsAffected()
    if err != nil {
        return err
    }
    if n == 0 {
        return ErrConflict
    }
    return nil
}

func scanLoan(row *sql.Row) (model.Loan, error) {
    var l model.Loan
    var returnedAt, revokedAt sql.NullTime
    var reason sql.NullString
    err := row.Scan(&l.ID, &l.UserID, &l.BookID, &l.Status, &l.LoanType, &l.StartedAt,
        &returnedAt, &revokedAt, &reason)
    if err != nil {
        return model.Loan{}, err
    }
    applyLoanNullables(&l, returnedAt, revokedAt, reason)
    return l, nil
}

func scanLoanRows(rows *sql.Rows) (model.Loan, error) {
    var l model.Loan
    var returnedAt, revokedAt sql.NullTime
    var reason sql.NullString
    err := rows.Scan(&l.ID, &l.UserID, &l.BookID, &l.Status, &l.LoanType, &l.StartedAt,
        &returnedAt, &revokedAt, &reason)
    if err != nil {
        return model.Loan{}, err
    }
    applyLoanNullables(&l, returnedAt, revokedAt, reason)
    return l, nil
}

func applyLoanNullables(l *model.Loan, returnedAt, revokedAt sql.NullTime, reason sql.NullString) {
    if returnedAt.Valid {
        t := returnedAt.Time
        l.ReturnedAt = &t
    }
    if revokedAt.Valid {
        t := revokedAt.Time
        l.RevokedAt = &t
    }
    if reason.Valid {
        s := reason.String
        l.RevokeReason = &s
    }
}
