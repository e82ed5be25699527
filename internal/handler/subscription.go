package handler

import (
    "context"
    "database/sql"
    "log"
    "net/http"
    "time"

    "github.com/labstack/echo/v4"

    "github.com/inkstream/inkstream-server/internal/engine"
    "github.com/inkstream/inkstream-server/internal/queue"
    "github.com/inkstream/inkstream-server/internal/repository"
)

// SubscriptionHandler exposes the free-trial flow and the entitlement
// snapshot for the authenticated user.
type SubscriptionHandler struct {
    Users *repository.UserRepo
    Guard *engine.TrialGuard

    // PublishTrialStarted, when set, emits the welcome/analytics event
    // after a trial is granted.  Best effort.
    PublishTrialStarted func(ctx context.Context, ev queue.TrialStartedEvent) error
}

func NewSubscriptionHandler(users *repository.UserRepo, guard *engine.TrialGuard) *SubscriptionHandler {
    return &SubscriptionHandler{Users: users, Guard: guard}
}

// StartTrial grants the authenticated user a free trial when every
// eligibility signal passes.  On conflict the response names only the
// violated category (email, ip, device, domain), never the matched value.
func (h *SubscriptionHandler) StartTrial(c echo.Context) error {
    uid, err := getUserID(c)
    if err != nil {
        return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
    }

    ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
    defer cancel()

    u, err := h.Users.GetByID(ctx, uid)
    if err != nil {
        if err == sql.ErrNoRows {
            return c.JSON(http.StatusNotFound, echo.Map{"error": "not found"})
        }
        return c.JSON(http.StatusInternalServerError, echo.Map{"error": "load user failed"})
    }

    ip := c.RealIP()
    fingerprint := engine.Fingerprint(clientFingerprint(c))

    if err := h.Guard.CheckEligibility(ctx, u.Email, ip, fingerprint); err != nil {
        return engineError(c, err)
    }
    endsAt, err := h.Guard.RecordTrialStart(ctx, uid, u.Email, ip, fingerprint)
    if err != nil {
        return engineError(c, err)
    }

    if h.PublishTrialStarted != nil {
        ev := queue.TrialStartedEvent{
            UserID:         uid,
            Email:          u.Email,
            TrialStartedAt: endsAt.Add(-engine.TrialDuration).Format(time.RFC3339),
            TrialEndsAt:    endsAt.Format(time.RFC3339),
        }
        if err := h.PublishTrialStarted(ctx, ev); err != nil {
            log.Printf("subscription: publish trial.started failed: %v", err)
        }
    }

    return c.JSON(http.StatusOK, echo.Map{
        "ok":            true,
        "trial_ends_at": endsAt,
    })
}

// Snapshot returns the authenticated user's entitlement state: tier,
// status, trial window and whether they may borrow right now.
func (h *SubscriptionHandler) Snapshot(c echo.Context) error {
    uid, err := getUserID(c)
    if err != nil {
        return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
    }

    ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
    defer cancel()

    u, err := h.Users.GetByID(ctx, uid)
    if err != nil {
        if err == sql.ErrNoRows {
            return c.JSON(http.StatusNotFound, echo.Map{"error": "not found"})
        }
        return c.JSON(http.StatusInternalServerError, echo.Map{"error": "load user failed"})
    }

    now := time.Now().UTC()
    resp := echo.Map{
        "subscription_tier":   u.SubscriptionTier,
        "subscription_status": u.SubscriptionStatus,
        "free_trial_used":     u.FreeTrialUsed,
        "entitled":            u.Entitled(now),
    }
    if u.FreeTrialStartedAt != nil {
        resp["free_trial_started_at"] = u.FreeTrialStartedAt
    }
    if u.FreeTrialEndedAt != nil {
        resp["free_trial_ended_at"] = u.FreeTrialEndedAt
    }
    return c.JSON(http.StatusOK, resp)
}
