package handler // handler defines http handlers

import (
    "errors"
    "math"
    "net/http"
    "strconv"

    "github.com/labstack/echo/v4"

    "github.com/inkstream/inkstream-server/internal/engine"
)

// getUserID extracts the user_id from echo.Context and converts it to uint64.
// JWT numeric claims decode as float64, so several encodings are tolerated.
func getUserID(c echo.Context) (uint64, error) {
    v := c.Get("user_id")
    switch t := v.(type) {
    case uint64:
        return t, nil
    case int:
        return uint64(t), nil
    case int64:
        return uint64(t), nil
    case float64:
        return uint64(t), nil
    case string:
        if n, err := strconv.ParseUint(t, 10, 64); err == nil {
            return n, nil
        }
    }
    return 0, errors.New("invalid user_id in context")
}

// clientFingerprint returns the raw device traits header, if supplied.
func clientFingerprint(c echo.Context) string {
    return c.Request().Header.Get("X-Device-Fingerprint")
}

// engineError translates engine errors into HTTP responses.  The mapping
// is shared by every entitlement endpoint so a given failure always
// looks the same on the wire:
//
//	rate limited            -> 429 with Retry-After
//	trial ineligible        -> 403 with conflict_type
//	loan/device cap reached -> 409 with the cap
//	invalid state           -> 400
//	not found               -> 404
//	store unreachable       -> 503 (fail closed)
func engineError(c echo.Context, err error) error {
    var rl *engine.RateLimitedError
    if errors.As(err, &rl) {
        secs := int(math.Ceil(rl.RetryAfter.Seconds()))
        if secs < 0 {
            secs = 0
        }
        c.Response().Header().Set("Retry-After", strconv.Itoa(secs))
        return c.JSON(http.StatusTooManyRequests, echo.Map{
            "error":               "too_many_requests",
            "message":             rl.Reason,
            "retry_after_seconds": secs,
        })
    }
    var ti *engine.TrialIneligibleError
    if errors.As(err, &ti) {
        return c.JSON(http.StatusForbidden, echo.Map{
            "ok":            false,
            "conflict_type": ti.ConflictType,
            "reason":        ti.Reason,
        })
    }
    var ll *engine.LoanLimitExceededError
    if errors.As(err, &ll) {
        return c.JSON(http.StatusConflict, echo.Map{
            "error":     "loan_limit_exceeded",
            "max_loans": ll.Max,
        })
    }
    var dl *engine.DeviceLimitExceededError
    if errors.As(err, &dl) {
        return c.JSON(http.StatusConflict, echo.Map{
            "error":       "device_limit_exceeded",
            "max_devices": dl.Max,
        })
    }
    switch {
    case errors.Is(err, engine.ErrNotFound):
        return c.JSON(http.StatusNotFound, echo.Map{"error": "not found"})
    case errors.Is(err, engine.ErrInvalidLoanState):
        return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid loan state"})
    case errors.Is(err, engine.ErrInvalidDeviceState):
        return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid device state"})
    case errors.Is(err, engine.ErrNotEntitled):
        return c.JSON(http.StatusForbidden, echo.Map{"error": "no active subscription or trial"})
    case errors.Is(err, engine.ErrPersistenceUnavailable):
        return c.JSON(http.StatusServiceUnavailable, echo.Map{"error": "service unavailable"})
    }
    return c.JSON(http.StatusInternalServerError, echo.Map{"error": "internal error"})
}
