package engine

import (
    "context"
    "database/sql"
    "time"

    "github.com/inkstream/inkstream-server/internal/model"
    "github.com/inkstream/inkstream-server/internal/repository"
)

// LoanManager manages the book loan lifecycle: borrow, return, revoke.
// Borrowing is a check-then-write sequence run inside a transaction that
// holds the user's row lock, so two concurrent borrows for the same user
// serialize and the active-loan cap can never be exceeded by a race.
type LoanManager struct {
    DB       *sql.DB
    Users    *repository.UserRepo
    Loans    *repository.LoanRepo
    MaxLoans int

    now func() time.Time
}

// LoanSummary describes a user's position against the loan cap.
type LoanSummary struct {
    ActiveLoans int  `json:"active_loans"`
    MaxLoans    int  `json:"max_loans"`
    CanBorrow   bool `json:"can_borrow"`
}

// NewLoanManager constructs a LoanManager enforcing the given cap.
func NewLoanManager(db *sql.DB, users *repository.UserRepo, loans *repository.LoanRepo, maxLoans int) *LoanManager {
    return &LoanManager{
        DB:       db,
        Users:    users,
        Loans:    loans,
        MaxLoans: maxLoans,
        now:      func() time.Time { return time.Now().UTC() },
    }
}

// Borrow creates an active loan for the user, provided they hold a live
// entitlement and have a free slot under the cap.  The loan type records
// which entitlement it was issued under: trial for free-tier users,
// subscription otherwise.
func (m *LoanManager) Borrow(ctx context.Context, userID, bookID uint64) (*model.Loan, error) {
    now := m.now()

    tx, err := m.DB.BeginTx(ctx, nil)
    if err != nil {
        return nil, persistence("loan manager: begin", err)
    }
    committed := false
    defer func() {
        if !committed {
            _ = tx.Rollback()
        }
    }()

    u, err := m.Users.LockForUpdateTx(ctx, tx, userID)
    if err != nil {
        if err == sql.ErrNoRows {
            return nil, ErrNotFound
        }
        return nil, persistence("loan manager: lock user", err)
    }
    if !u.Entitled(now) {
        return nil, ErrNotEntitled
    }

    active, err := m.Loans.CountActiveTx(ctx, tx, userID)
    if err != nil {
        return nil, persistence("loan manager: count active", err)
    }
    if active >= m.MaxLoans {
        return nil, &LoanLimitExceededError{Active: active, Max: m.MaxLoans}
    }

    loanType := model.LoanTypeSubscription
    if u.SubscriptionTier == model.TierFree {
        loanType = model.LoanTypeTrial
    }
    loan := &model.Loan{
        UserID:    userID,
        BookID:    bookID,
        Status:    model.LoanActive,
        LoanType:  loanType,
        StartedAt: now,
    }
    if err := m.Loans.CreateTx(ctx, tx, loan); err != nil {
        return nil, persistence("loan manager: create loan", err)
    }

    if err := tx.Commit(); err != nil {
        return nil, persistence("loan manager: commit", err)
    }
    committed = true
    return loan, nil
}

// Return moves the user's active loan to returned.  Returning a loan
// that is not active fails with ErrInvalidLoanState: the second return
// of the same loan is an error, not a silent success.
func (m *LoanManager) Return(ctx context.Context, loanID, userID uint64) (*model.Loan, error) {
    now := m.now()
    var out model.Loan
    err := m.withTx(ctx, "loan manager: return", func(tx *sql.Tx) error {
        loan, err := m.Loans.GetForUserTx(ctx, tx, loanID, userID)
        if err != nil {
            if err == sql.ErrNoRows {
                return ErrNotFound
            }
            return persistence("loan manager: load loan", err)
        }
        if loan.Status != model.LoanActive {
            return ErrInvalidLoanState
        }
        if err := m.Loans.MarkReturnedTx(ctx, tx, loanID, now); err != nil {
            return persistence("loan manager: mark returned", err)
        }
        loan.Status = model.LoanReturned
        loan.ReturnedAt = &now
        out = loan
        return nil
    })
    if err != nil {
        return nil, err
    }
    return &out, nil
}

// Revoke moves an active loan to revoked with a reason.  This is the
// system-initiated path (subscription lapse, abuse takedown) and is not
// scoped to a requesting user.
func (m *LoanManager) Revoke(ctx context.Context, loanID uint64, reason string) (*model.Loan, error) {
    now := m.now()
    var out model.Loan
    err := m.withTx(ctx, "loan manager: revoke", func(tx *sql.Tx) error {
        loan, err := m.Loans.GetByIDTx(ctx, tx, loanID)
        if err != nil {
            if err == sql.ErrNoRows {
                return ErrNotFound
            }
            return persistence("loan manager: load loan", err)
        }
        if loan.Status != model.LoanActive {
            return ErrInvalidLoanState
        }
        if err := m.Loans.MarkRevokedTx(ctx, tx, loanID, reason, now); err != nil {
            return persistence("loan manager: mark revoked", err)
        }
        loan.Status = model.LoanRevoked
        loan.RevokedAt = &now
        loan.RevokeReason = &reason
        out = loan
        return nil
    })
    if err != nil {
        return nil, err
    }
    return &out, nil
}

// List returns the user's loans, optionally filtered by status.
func (m *LoanManager) List(ctx context.Context, userID uint64, status string) ([]model.Loan, error) {
    switch status {
    case "", model.LoanActive, model.LoanReturned, model.LoanRevoked:
    default:
        return nil, ErrInvalidLoanState
    }
    loans, err := m.Loans.ListByUser(ctx, userID, status)
    if err != nil {
        return nil, persistence("loan manager: list", err)
    }
    return loans, nil
}

// Summary reports the user's active loan count against the cap.
func (m *LoanManager) Summary(ctx context.Context, userID uint64) (LoanSummary, error) {
    active, err := m.Loans.CountActive(ctx, userID)
    if err != nil {
        return LoanSummary{}, persistence("loan manager: summary", err)
    }
    return LoanSummary{
        ActiveLoans: active,
        MaxLoans:    m.MaxLoans,
        CanBorrow:   active < m.MaxLoans,
    }, nil
}

// withTx runs fn inside a transaction, rolling back unless fn succeeds
// and the commit goes through.
func (m *LoanManager) withTx(ctx context.Context, op string, fn func(tx *sql.Tx) error) error {
    tx, err := m.DB.BeginTx(ctx, nil)
    if err != nil {
        return persistence(op+": begin", err)
    }
    committed := false
    defer func() {
        if !committed {
            _ = tx.Rollback()
        }
    }()
    if err := fn(tx); err != nil {
        return err
    }
    if err := tx.Commit(); err != nil {
        return persistence(op+": commit", err)
    }
    committed = true
    return nil
}
