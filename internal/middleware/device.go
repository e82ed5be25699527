package middleware

// device.go tracks device liveness.  Authenticated requests may carry an
// X-Device-Fingerprint header with the client's raw device traits; when
// present, the matching active device registration gets its
// last_active_at refreshed.  The touch is best effort and never changes
// the outcome of the request it rides on.

import (
    "log"

    "github.com/labstack/echo/v4"

    "github.com/inkstream/inkstream-server/internal/engine"
)

// FingerprintHeader is the request header carrying raw device traits.
const FingerprintHeader = "X-Device-Fingerprint"

// DeviceTouch returns a middleware that refreshes last_active_at for the
// authenticated user's device named by the fingerprint header.  It must
// run after JWTAuth so the user ID is in context.  The raw header value
// is also stashed under "device_fingerprint" for handlers that need it.
func DeviceTouch(registry *engine.DeviceRegistry) echo.MiddlewareFunc {
    return func(next echo.HandlerFunc) echo.HandlerFunc {
        return func(c echo.Context) error {
            raw := c.Request().Header.Get(FingerprintHeader)
            if raw == "" {
                return next(c)
            }
            c.Set("device_fingerprint", raw)
            if uid, ok := contextUserID(c); ok {
                if err := registry.TouchByFingerprint(c.Request().Context(), uid, raw); err != nil {
                    log.Printf("device touch failed for user %d: %v", uid, err)
                }
            }
            return next(c)
        }
    }
}

// contextUserID reads the user ID set by JWTAuth.  JWT numeric claims
// decode as float64; tolerate the integer types too.
func contextUserID(c echo.Context) (uint64, bool) {
    switch t := c.Get("user_id").(type) {
    case uint64:
        return t, true
    case int64:
        return uint64(t), true
    case int:
        return uint64(t), true
    case float64:
        return uint64(t), true
    }
    return 0, false
}
