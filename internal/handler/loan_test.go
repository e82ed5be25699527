package handler

import (
    "errors"
    "net/http"
    "net/http/httptest"
    "strings"
    "testing"
    "time"

    "github.com/DATA-DOG/go-sqlmock"
    "github.com/labstack/echo/v4"
    "github.com/stretchr/testify/assert"
    "github.com/stretchr/testify/require"

    "github.com/inkstream/inkstream-server/internal/engine"
    "github.com/inkstream/inkstream-server/internal/repository"
)

var fixedTime = time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)

var userCols = []string{
    "id", "email", "password_hash", "role", "is_active",
    "free_trial_used", "free_trial_started_at", "free_trial_ended_at",
    "subscription_tier", "subscription_status", "created_at", "updated_at",
}

func newLoanHandlerTest(t *testing.T) (*LoanHandler, sqlmock.Sqlmock) {
    t.Helper()
    db, mock, err := sqlmock.New()
    require.NoError(t, err)
    t.Cleanup(func() {
        require.NoError(t, mock.ExpectationsWereMet())
        _ = db.Close()
    })
    m := engine.NewLoanManager(db, repository.NewUserRepo(db), repository.NewLoanRepo(db), 20)
    return NewLoanHandler(m), mock
}

func borrowRequest(t *testing.T, h *LoanHandler, body string) *httptest.ResponseRecorder {
    t.Helper()
    e := echo.New()
    req := httptest.NewRequest(http.MethodPost, "/v1/loans", strings.NewReader(body))
    req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
    rec := httptest.NewRecorder()
    c := e.NewContext(req, rec)
    c.Set("user_id", float64(1)) // as JWTAuth leaves it

    require.NoError(t, h.Borrow(c))
    return rec
}

func TestLoanHandlerBorrow(t *testing.T) {
    h, mock := newLoanHandlerTest(t)

    now := sqlmock.AnyArg()
    mock.ExpectBegin()
    mock.ExpectQuery(`FROM users WHERE id = \? FOR UPDATE`).
        WillReturnRows(sqlmock.NewRows(userCols).AddRow(
            1, "r@example.com", "x", "READER", true,
            false, nil, nil, "premium", "active", fixedTime, fixedTime))
    mock.ExpectQuery(`SELECT COUNT\(\*\) FROM loans`).
        WillReturnRows(sqlmock.NewRows([]string{"COUNT(*)"}).AddRow(0))
    mock.ExpectExec(`INSERT INTO loans`).
        WithArgs(uint64(1), uint64(99), "active", "subscription", now).
        WillReturnResult(sqlmock.NewResult(1, 1))
    mock.ExpectCommit()

    rec := borrowRequest(t, h, `{"book_id":99}`)
    assert.Equal(t, http.StatusCreated, rec.Code)
    assert.Contains(t, rec.Body.String(), `"status":"active"`)
    assert.Contains(t, rec.Body.String(), `"loan_type":"subscription"`)
}

func TestLoanHandlerBorrowAtCap(t *testing.T) {
    h, mock := newLoanHandlerTest(t)

    mock.ExpectBegin()
    mock.ExpectQuery(`FROM users WHERE id = \? FOR UPDATE`).
        WillReturnRows(sqlmock.NewRows(userCols).AddRow(
            1, "r@example.com", "x", "READER", true,
            false, nil, nil, "premium", "active", fixedTime, fixedTime))
    mock.ExpectQuery(`SELECT COUNT\(\*\) FROM loans`).
        WillReturnRows(sqlmock.NewRows([]string{"COUNT(*)"}).AddRow(20))
    mock.ExpectRollback()

    rec := borrowRequest(t, h, `{"book_id":99}`)
    assert.Equal(t, http.StatusConflict, rec.Code)
    assert.Contains(t, rec.Body.String(), `"error":"loan_limit_exceeded"`)
    assert.Contains(t, rec.Body.String(), `"max_loans":20`)
}

func TestLoanHandlerBorrowRejectsMissingBookID(t *testing.T) {
    h, _ := newLoanHandlerTest(t)

    rec := borrowRequest(t, h, `{}`)
    assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestLoanHandlerBorrowStoreDown(t *testing.T) {
    h, mock := newLoanHandlerTest(t)

    mock.ExpectBegin().WillReturnError(errors.New("store down"))

    rec := borrowRequest(t, h, `{"book_id":99}`)
    assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}
