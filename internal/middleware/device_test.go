package middleware

import (
    "errors"
    "net/http"
    "net/http/httptest"
    "testing"

    "github.com/DATA-DOG/go-sqlmock"
    "github.com/labstack/echo/v4"
    "github.com/stretchr/testify/assert"
    "github.com/stretchr/testify/require"

    "github.com/inkstream/inkstream-server/internal/engine"
    "github.com/inkstream/inkstream-server/internal/repository"
)

func newTouchRegistry(t *testing.T) (*engine.DeviceRegistry, sqlmock.Sqlmock) {
    t.Helper()
    db, mock, err := sqlmock.New()
    require.NoError(t, err)
    t.Cleanup(func() {
        require.NoError(t, mock.ExpectationsWereMet())
        _ = db.Close()
    })
    return engine.NewDeviceRegistry(db, repository.NewUserRepo(db), repository.NewDeviceRepo(db), 5), mock
}

func runDeviceTouch(t *testing.T, registry *engine.DeviceRegistry, fingerprint string, userID interface{}) (*httptest.ResponseRecorder, bool) {
    t.Helper()
    e := echo.New()
    req := httptest.NewRequest(http.MethodGet, "/v1/loans", nil)
    if fingerprint != "" {
        req.Header.Set(FingerprintHeader, fingerprint)
    }
    rec := httptest.NewRecorder()
    c := e.NewContext(req, rec)
    if userID != nil {
        c.Set("user_id", userID)
    }

    nextCalled := false
    h := DeviceTouch(registry)(func(c echo.Context) error {
        nextCalled = true
        return c.NoContent(http.StatusOK)
    })
    require.NoError(t, h(c))
    return rec, nextCalled
}

func TestDeviceTouchRefreshesLastActive(t *testing.T) {
    registry, mock := newTouchRegistry(t)

    mock.ExpectExec(`UPDATE devices SET last_active_at = \?`).
        WithArgs(sqlmock.AnyArg(), uint64(7), engine.Fingerprint("kobo traits")).
        WillReturnResult(sqlmock.NewResult(0, 1))

    rec, nextCalled := runDeviceTouch(t, registry, "kobo traits", float64(7))
    assert.True(t, nextCalled)
    assert.Equal(t, http.StatusOK, rec.Code)
}

func TestDeviceTouchSkipsWithoutHeader(t *testing.T) {
    registry, _ := newTouchRegistry(t)
    // No expectations: no header means no store access.
    _, nextCalled := runDeviceTouch(t, registry, "", float64(7))
    assert.True(t, nextCalled)
}

func TestDeviceTouchSkipsWithoutUser(t *testing.T) {
    registry, _ := newTouchRegistry(t)
    _, nextCalled := runDeviceTouch(t, registry, "kobo traits", nil)
    assert.True(t, nextCalled)
}

func TestDeviceTouchStoreErrorDoesNotBlockRequest(t *testing.T) {
    registry, mock := newTouchRegistry(t)

    mock.ExpectExec(`UPDATE devices SET last_active_at = \?`).
        WillReturnError(errors.New("gone away"))

    rec, nextCalled := runDeviceTouch(t, registry, "kobo traits", float64(7))
    assert.True(t, nextCalled)
    assert.Equal(t, http.StatusOK, rec.Code)
}
