package router // package router defines how HTTP routes are registered for the API

import (
    "github.com/labstack/echo/v4"

    "github.com/inkstream/inkstream-server/internal/engine"
    "github.com/inkstream/inkstream-server/internal/handler"
    "github.com/inkstream/inkstream-server/internal/middleware"
)

// RegisterRoutes registers routes that do not require authentication on
// the provided Echo instance.  Currently it exposes only a health check.
func RegisterRoutes(e *echo.Echo) {
    e.GET("/healthz", handler.Health)
}

// RegisterAuth registers all authentication-related routes.
// Unauthenticated operations live under /v1/auth; registration runs
// through the signup rate limiter inside the handler, not as middleware,
// because the limiter records outcomes as well as checking counts.
func RegisterAuth(e *echo.Echo, a *handler.AuthHandler) {
    g := e.Group("/v1/auth")
    g.POST("/register", a.Register)
    g.POST("/login", a.Login)
    g.POST("/refresh", a.Refresh)
    g.POST("/logout", a.Logout)
    // Logout is also reachable outside the auth prefix so clients can
    // call it with only a refresh token in the body.
    e.POST("/v1/logout", a.Logout)
}

// RegisterEntitlements registers the protected entitlement surface:
// subscription/trial, loans and devices.  Every route requires a valid
// access token and a known role; the device-touch middleware refreshes
// last_active_at for requests carrying a fingerprint header.
func RegisterEntitlements(
    e *echo.Echo,
    jwtSecret string,
    registry *engine.DeviceRegistry,
    a *handler.AuthHandler,
    s *handler.SubscriptionHandler,
    l *handler.LoanHandler,
    d *handler.DeviceHandler,
) {
    auth := e.Group("/v1")
    auth.Use(middleware.JWTAuth(jwtSecret))
    auth.Use(middleware.RequireRole("READER", "ADMIN"))
    auth.Use(middleware.DeviceTouch(registry))

    auth.GET("/me", a.Me)

    auth.GET("/subscription", s.Snapshot)
    auth.POST("/subscription/trial", s.StartTrial)

    auth.POST("/loans", l.Borrow)
    auth.GET("/loans", l.List)
    auth.GET("/loans/summary", l.Summary)
    auth.POST("/loans/:id/return", l.Return)

    auth.GET("/devices", d.List)
    auth.POST("/devices", d.Register)
    auth.DELETE("/devices/:id", d.Deactivate)
    auth.GET("/devices/:id/license", d.License)

    // Revocation is an operator action.
    admin := e.Group("/v1/admin")
    admin.Use(middleware.JWTAuth(jwtSecret))
    admin.Use(middleware.RequireRole("ADMIN"))
    admin.POST("/loans/:id/revoke", l.Revoke)
}
