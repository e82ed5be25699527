package engine

import (
    "context"
    "database/sql"
    "errors"
    "sync"
    "testing"
    "time"

    "github.com/DATA-DOG/go-sqlmock"
    "github.com/stretchr/testify/assert"
    "github.com/stretchr/testify/require"

    "github.com/inkstream/inkstream-server/internal/model"
    "github.com/inkstream/inkstream-server/internal/repository"
)

// Query fragments matched against the loan SQL.
const (
    qLockUser     = `SELECT (.+) FROM users WHERE id = \? FOR UPDATE`
    qCountLoans   = `SELECT COUNT\(\*\) FROM loans`
    qInsertLoan   = `INSERT INTO loans`
    qLoanForUser  = `FROM loans WHERE id = \? AND user_id = \? FOR UPDATE`
    qLoanByID     = `FROM loans WHERE id = \? FOR UPDATE`
    qMarkReturned = `UPDATE loans SET status = \?, returned_at = \?`
    qMarkRevoked  = `UPDATE loans SET status = \?, revoked_at = \?`
    qListLoans    = `FROM loans WHERE user_id = \?`
)

const testMaxLoans = 20

func newLoanManager(t *testing.T) (*LoanManager, sqlmock.Sqlmock) {
    db, mock := newMockDB(t)
    m := NewLoanManager(db, repository.NewUserRepo(db), repository.NewLoanRepo(db), testMaxLoans)
    m.now = fixedClock()
    return m, mock
}

func TestLoanManagerBorrow(t *testing.T) {
    m, mock := newLoanManager(t)

    mock.ExpectBegin()
    mock.ExpectQuery(qLockUser).WithArgs(uint64(1)).WillReturnRows(premiumUserRow(1))
    mock.ExpectQuery(qCountLoans).WithArgs(uint64(1), model.LoanActive).WillReturnRows(countRow(3))
    mock.ExpectExec(qInsertLoan).
        WithArgs(uint64(1), uint64(99), model.LoanActive, model.LoanTypeSubscription, testNow).
        WillReturnResult(sqlmock.NewResult(11, 1))
    mock.ExpectCommit()

    loan, err := m.Borrow(context.Background(), 1, 99)
    require.NoError(t, err)
    assert.Equal(t, uint64(11), loan.ID)
    assert.Equal(t, model.LoanActive, loan.Status)
    assert.Equal(t, model.LoanTypeSubscription, loan.LoanType)
    assert.Equal(t, testNow, loan.StartedAt)
}

func TestLoanManagerBorrowTrialUserGetsTrialLoan(t *testing.T) {
    m, mock := newLoanManager(t)

    mock.ExpectBegin()
    mock.ExpectQuery(qLockUser).WillReturnRows(trialUserRow(1, testNow.Add(48*time.Hour)))
    mock.ExpectQuery(qCountLoans).WillReturnRows(countRow(0))
    mock.ExpectExec(qInsertLoan).
        WithArgs(uint64(1), uint64(99), model.LoanActive, model.LoanTypeTrial, testNow).
        WillReturnResult(sqlmock.NewResult(12, 1))
    mock.ExpectCommit()

    loan, err := m.Borrow(context.Background(), 1, 99)
    require.NoError(t, err)
    assert.Equal(t, model.LoanTypeTrial, loan.LoanType)
}

func TestLoanManagerBorrowRejectsExpiredTrial(t *testing.T) {
    m, mock := newLoanManager(t)

    mock.ExpectBegin()
    mock.ExpectQuery(qLockUser).WillReturnRows(trialUserRow(1, testNow.Add(-time.Minute)))
    mock.ExpectRollback()

    _, err := m.Borrow(context.Background(), 1, 99)
    assert.ErrorIs(t, err, ErrNotEntitled)
}

func TestLoanManagerBorrowRejectsLapsedSubscription(t *testing.T) {
    m, mock := newLoanManager(t)

    mock.ExpectBegin()
    mock.ExpectQuery(qLockUser).WillReturnRows(lapsedUserRow(1))
    mock.ExpectRollback()

    _, err := m.Borrow(context.Background(), 1, 99)
    assert.ErrorIs(t, err, ErrNotEntitled)
}

func TestLoanManagerBorrowAtCap(t *testing.T) {
    m, mock := newLoanManager(t)

    mock.ExpectBegin()
    mock.ExpectQuery(qLockUser).WillReturnRows(premiumUserRow(1))
    mock.ExpectQuery(qCountLoans).WillReturnRows(countRow(testMaxLoans))
    mock.ExpectRollback()

    _, err := m.Borrow(context.Background(), 1, 99)
    var ll *LoanLimitExceededError
    require.ErrorAs(t, err, &ll)
    assert.Equal(t, testMaxLoans, ll.Max)
    assert.Equal(t, testMaxLoans, ll.Active)
}

func TestLoanManagerBorrowUnknownUser(t *testing.T) {
    m, mock := newLoanManager(t)

    mock.ExpectBegin()
    mock.ExpectQuery(qLockUser).WillReturnError(sql.ErrNoRows)
    mock.ExpectRollback()

    _, err := m.Borrow(context.Background(), 1, 99)
    assert.ErrorIs(t, err, ErrNotFound)
}

func TestLoanManagerBorrowFailsClosedOnCountError(t *testing.T) {
    m, mock := newLoanManager(t)

    mock.ExpectBegin()
    mock.ExpectQuery(qLockUser).WillReturnRows(premiumUserRow(1))
    mock.ExpectQuery(qCountLoans).WillReturnError(errors.New("gone away"))
    mock.ExpectRollback()

    _, err := m.Borrow(context.Background(), 1, 99)
    assert.ErrorIs(t, err, ErrPersistenceUnavailable)
}

// Ten concurrent borrows against one free slot: exactly one succeeds,
// the rest hit the cap.  The user row lock serializes the transactions,
// which the mock mimics by handing out a single count below the cap.
func TestLoanManagerBorrowConcurrent(t *testing.T) {
    m, mock := newLoanManager(t)
    mock.MatchExpectationsInOrder(false)

    const workers = 10
    for i := 0; i < workers; i++ {
        mock.ExpectBegin()
        mock.ExpectQuery(qLockUser).WillReturnRows(premiumUserRow(1))
    }
    mock.ExpectQuery(qCountLoans).WillReturnRows(countRow(testMaxLoans - 1))
    mock.ExpectExec(qInsertLoan).WillReturnResult(sqlmock.NewResult(21, 1))
    mock.ExpectCommit()
    for i := 0; i < workers-1; i++ {
        mock.ExpectQuery(qCountLoans).WillReturnRows(countRow(testMaxLoans))
        mock.ExpectRollback()
    }

    var wg sync.WaitGroup
    results := make(chan error, workers)
    for i := 0; i < workers; i++ {
        wg.Add(1)
        go func() {
            defer wg.Done()
            _, err := m.Borrow(context.Background(), 1, 99)
            results <- err
        }()
    }
    wg.Wait()
    close(results)

    succeeded, capped := 0, 0
    for err := range results {
        switch {
        case err == nil:
            succeeded++
        default:
            var ll *LoanLimitExceededError
            require.ErrorAs(t, err, &ll)
            capped++
        }
    }
    assert.Equal(t, 1, succeeded)
    assert.Equal(t, workers-1, capped)
}

func TestLoanManagerReturn(t *testing.T) {
    m, mock := newLoanManager(t)

    mock.ExpectBegin()
    mock.ExpectQuery(qLoanForUser).WithArgs(uint64(11), uint64(1)).
        WillReturnRows(loanRow(11, 1, 99, model.LoanActive))
    mock.ExpectExec(qMarkReturned).
        WithArgs(model.LoanReturned, testNow, uint64(11), model.LoanActive).
        WillReturnResult(sqlmock.NewResult(0, 1))
    mock.ExpectCommit()

    loan, err := m.Return(context.Background(), 11, 1)
    require.NoError(t, err)
    assert.Equal(t, model.LoanReturned, loan.Status)
    require.NotNil(t, loan.ReturnedAt)
    assert.Equal(t, testNow, *loan.ReturnedAt)
}

func TestLoanManagerReturnTwice(t *testing.T) {
    m, mock := newLoanManager(t)

    mock.ExpectBegin()
    mock.ExpectQuery(qLoanForUser).
        WillReturnRows(loanRow(11, 1, 99, model.LoanReturned))
    mock.ExpectRollback()

    _, err := m.Return(context.Background(), 11, 1)
    assert.ErrorIs(t, err, ErrInvalidLoanState)
}

func TestLoanManagerReturnForeignLoan(t *testing.T) {
    m, mock := newLoanManager(t)

    mock.ExpectBegin()
    mock.ExpectQuery(qLoanForUser).WillReturnError(sql.ErrNoRows)
    mock.ExpectRollback()

    _, err := m.Return(context.Background(), 11, 2)
    assert.ErrorIs(t, err, ErrNotFound)
}

func TestLoanManagerRevoke(t *testing.T) {
    m, mock := newLoanManager(t)

    mock.ExpectBegin()
    mock.ExpectQuery(qLoanByID).WithArgs(uint64(11)).
        WillReturnRows(loanRow(11, 1, 99, model.LoanActive))
    mock.ExpectExec(qMarkRevoked).
        WithArgs(model.LoanRevoked, testNow, "subscription lapsed", uint64(11), model.LoanActive).
        WillReturnResult(sqlmock.NewResult(0, 1))
    mock.ExpectCommit()

    loan, err := m.Revoke(context.Background(), 11, "subscription lapsed")
    require.NoError(t, err)
    assert.Equal(t, model.LoanRevoked, loan.Status)
    require.NotNil(t, loan.RevokeReason)
    assert.Equal(t, "subscription lapsed", *loan.RevokeReason)
}

func TestLoanManagerRevokeNonActive(t *testing.T) {
    m, mock := newLoanManager(t)

    mock.ExpectBegin()
    mock.ExpectQuery(qLoanByID).WillReturnRows(loanRow(11, 1, 99, model.LoanRevoked))
    mock.ExpectRollback()

    _, err := m.Revoke(context.Background(), 11, "again")
    assert.ErrorIs(t, err, ErrInvalidLoanState)
}

func TestLoanManagerList(t *testing.T) {
    m, mock := newLoanManager(t)

    rows := sqlmock.NewRows(loanTestColumns).
        AddRow(12, 1, 100, model.LoanActive, model.LoanTypeSubscription, testNow, nil, nil, nil).
        AddRow(11, 1, 99, model.LoanReturned, model.LoanTypeSubscription, testNow.Add(-time.Hour), testNow, nil, nil)
    mock.ExpectQuery(qListLoans).WithArgs(uint64(1)).WillReturnRows(rows)

    loans, err := m.List(context.Background(), 1, "")
    require.NoError(t, err)
    require.Len(t, loans, 2)
    assert.Equal(t, uint64(12), loans[0].ID)
    require.NotNil(t, loans[1].ReturnedAt)
}

func TestLoanManagerListRejectsUnknownStatus(t *testing.T) {
    m, _ := newLoanManager(t)

    _, err := m.List(context.Background(), 1, "overdue")
    assert.ErrorIs(t, err, ErrInvalidLoanState)
}

func TestLoanManagerSummary(t *testing.T) {
    m, mock := newLoanManager(t)

    mock.ExpectQuery(qCountLoans).WithArgs(uint64(1), model.LoanActive).WillReturnRows(countRow(18))

    sum, err := m.Summary(context.Background(), 1)
    require.NoError(t, err)
    assert.Equal(t, LoanSummary{ActiveLoans: 18, MaxLoans: testMaxLoans, CanBorrow: true}, sum)
}

func TestLoanManagerSummaryAtCap(t *testing.T) {
    m, mock := newLoanManager(t)

    mock.ExpectQuery(qCountLoans).WillReturnRows(countRow(testMaxLoans))

    sum, err := m.Summary(context.Background(), 1)
    require.NoError(t, err)
    assert.False(t, sum.CanBorrow)
}
