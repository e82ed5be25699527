package handler

import (
    "context"
    "database/sql"
    "net/http"
    "net/http/httptest"
    "testing"

    "github.com/DATA-DOG/go-sqlmock"
    "github.com/labstack/echo/v4"
    "github.com/stretchr/testify/assert"
    "github.com/stretchr/testify/require"

    "github.com/inkstream/inkstream-server/internal/engine"
    "github.com/inkstream/inkstream-server/internal/queue"
    "github.com/inkstream/inkstream-server/internal/repository"
)

func newSubscriptionHandlerTest(t *testing.T) (*SubscriptionHandler, sqlmock.Sqlmock) {
    t.Helper()
    db, mock, err := sqlmock.New()
    require.NoError(t, err)
    t.Cleanup(func() {
        require.NoError(t, mock.ExpectationsWereMet())
        _ = db.Close()
    })
    users := repository.NewUserRepo(db)
    guard := engine.NewTrialGuard(db, repository.NewTrialRepo(db), users, repository.NewAttemptRepo(db))
    return NewSubscriptionHandler(users, guard), mock
}

func trialRequest(t *testing.T, h *SubscriptionHandler) *httptest.ResponseRecorder {
    t.Helper()
    e := echo.New()
    req := httptest.NewRequest(http.MethodPost, "/v1/subscription/trial", nil)
    rec := httptest.NewRecorder()
    c := e.NewContext(req, rec)
    c.Set("user_id", float64(42))

    require.NoError(t, h.StartTrial(c))
    return rec
}

func freshUserRow() *sqlmock.Rows {
    return sqlmock.NewRows(userCols).AddRow(
        42, "new@example.com", "x", "READER", true,
        false, nil, nil, "free", "inactive", fixedTime, fixedTime)
}

func TestSubscriptionHandlerStartTrial(t *testing.T) {
    h, mock := newSubscriptionHandlerTest(t)

    var published []queue.TrialStartedEvent
    h.PublishTrialStarted = func(_ context.Context, ev queue.TrialStartedEvent) error {
        published = append(published, ev)
        return nil
    }

    mock.ExpectQuery(`FROM users WHERE id = \?`).WillReturnRows(freshUserRow())

    // Eligibility: all four signals clean.
    mock.ExpectQuery(`SELECT 1 FROM free_trial_records WHERE email = \?`).WillReturnError(sql.ErrNoRows)
    mock.ExpectQuery(`SELECT 1 FROM free_trial_records WHERE ip = \?`).WillReturnError(sql.ErrNoRows)
    mock.ExpectQuery(`SELECT COUNT\(\*\) FROM free_trial_records WHERE email_domain = \?`).
        WillReturnRows(sqlmock.NewRows([]string{"COUNT(*)"}).AddRow(0))

    // Atomic grant.
    mock.ExpectBegin()
    mock.ExpectExec(`INSERT INTO free_trial_records`).WillReturnResult(sqlmock.NewResult(1, 1))
    mock.ExpectExec(`UPDATE users`).WillReturnResult(sqlmock.NewResult(0, 1))
    mock.ExpectExec(`INSERT INTO signup_attempts`).WillReturnResult(sqlmock.NewResult(2, 1))
    mock.ExpectCommit()

    rec := trialRequest(t, h)
    assert.Equal(t, http.StatusOK, rec.Code)
    assert.Contains(t, rec.Body.String(), `"ok":true`)
    assert.Contains(t, rec.Body.String(), `"trial_ends_at"`)

    require.Len(t, published, 1)
    assert.Equal(t, uint64(42), published[0].UserID)
    assert.Equal(t, "new@example.com", published[0].Email)
}

func TestSubscriptionHandlerStartTrialEmailConflict(t *testing.T) {
    h, mock := newSubscriptionHandlerTest(t)

    mock.ExpectQuery(`FROM users WHERE id = \?`).WillReturnRows(freshUserRow())
    mock.ExpectQuery(`SELECT 1 FROM free_trial_records WHERE email = \?`).
        WillReturnRows(sqlmock.NewRows([]string{"1"}).AddRow(1))

    rec := trialRequest(t, h)
    assert.Equal(t, http.StatusForbidden, rec.Code)
    assert.Contains(t, rec.Body.String(), `"ok":false`)
    assert.Contains(t, rec.Body.String(), `"conflict_type":"email"`)
    // The response must not leak the matched email.
    assert.NotContains(t, rec.Body.String(), "new@example.com")
}

func TestSubscriptionHandlerStartTrialStoreDown(t *testing.T) {
    h, mock := newSubscriptionHandlerTest(t)

    mock.ExpectQuery(`FROM users WHERE id = \?`).WillReturnRows(freshUserRow())
    mock.ExpectQuery(`SELECT 1 FROM free_trial_records WHERE email = \?`).
        WillReturnError(sql.ErrConnDone)

    rec := trialRequest(t, h)
    assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestSubscriptionHandlerSnapshot(t *testing.T) {
    h, mock := newSubscriptionHandlerTest(t)

    started := fixedTime
    ends := fixedTime.AddDate(0, 0, 7)
    mock.ExpectQuery(`FROM users WHERE id = \?`).
        WillReturnRows(sqlmock.NewRows(userCols).AddRow(
            42, "t@example.com", "x", "READER", true,
            true, started, ends, "free", "active", fixedTime, fixedTime))

    e := echo.New()
    req := httptest.NewRequest(http.MethodGet, "/v1/subscription", nil)
    rec := httptest.NewRecorder()
    c := e.NewContext(req, rec)
    c.Set("user_id", float64(42))

    require.NoError(t, h.Snapshot(c))
    assert.Equal(t, http.StatusOK, rec.Code)
    assert.Contains(t, rec.Body.String(), `"subscription_tier":"free"`)
    assert.Contains(t, rec.Body.String(), `"free_trial_used":true`)
    assert.Contains(t, rec.Body.String(), `"free_trial_ended_at"`)
}
