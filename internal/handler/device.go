package handler

import (
    "context"
    "net/http"
    "strconv"
    "strings"
    "time"

    "github.com/labstack/echo/v4"

    "github.com/inkstream/inkstream-server/internal/engine"
)

// DeviceHandler exposes device registration, deactivation and the
// offline-license validity check.
type DeviceHandler struct {
    Registry *engine.DeviceRegistry
}

func NewDeviceHandler(r *engine.DeviceRegistry) *DeviceHandler {
    return &DeviceHandler{Registry: r}
}

type registerDeviceReq struct {
    Name        string `json:"name"`
    PublicKey   string `json:"public_key"`
    Fingerprint string `json:"fingerprint"` // raw device traits, digested server-side
}

// Register creates an active device for the authenticated user.  The raw
// fingerprint material from the body (or the fingerprint header as a
// fallback) is digested before it is stored; the server never keeps raw
// device traits.
func (h *DeviceHandler) Register(c echo.Context) error {
    uid, err := getUserID(c)
    if err != nil {
        return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
    }
    var req registerDeviceReq
    if err := c.Bind(&req); err != nil {
        return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid body"})
    }
    req.Name = strings.TrimSpace(req.Name)
    if req.Name == "" || strings.TrimSpace(req.PublicKey) == "" {
        return c.JSON(http.StatusBadRequest, echo.Map{"error": "name/public_key required"})
    }
    raw := req.Fingerprint
    if raw == "" {
        raw = clientFingerprint(c)
    }
    fingerprint := engine.Fingerprint(raw)
    if fingerprint == "" {
        return c.JSON(http.StatusBadRequest, echo.Map{"error": "fingerprint required"})
    }

    ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
    defer cancel()

    d, err := h.Registry.Register(ctx, uid, req.Name, req.PublicKey, fingerprint)
    if err != nil {
        return engineError(c, err)
    }
    return c.JSON(http.StatusCreated, d)
}

// Deactivate terminally deactivates the caller's device.  204 on
// success; an unknown, foreign or already inactive device is a 404.
func (h *DeviceHandler) Deactivate(c echo.Context) error {
    uid, err := getUserID(c)
    if err != nil {
        return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
    }
    deviceID, err := strconv.ParseUint(c.Param("id"), 10, 64)
    if err != nil || deviceID == 0 {
        return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid device id"})
    }

    ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
    defer cancel()

    if err := h.Registry.Deactivate(ctx, deviceID, uid); err != nil {
        return engineError(c, err)
    }
    return c.NoContent(http.StatusNoContent)
}

// List returns all of the caller's device registrations, active and not.
func (h *DeviceHandler) List(c echo.Context) error {
    uid, err := getUserID(c)
    if err != nil {
        return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
    }

    ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
    defer cancel()

    devices, err := h.Registry.List(ctx, uid)
    if err != nil {
        return engineError(c, err)
    }
    return c.JSON(http.StatusOK, echo.Map{"devices": devices})
}

// License answers whether offline licenses for the device are valid and
// until when.  A deactivated device always reports invalid.
func (h *DeviceHandler) License(c echo.Context) error {
    uid, err := getUserID(c)
    if err != nil {
        return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
    }
    deviceID, err := strconv.ParseUint(c.Param("id"), 10, 64)
    if err != nil || deviceID == 0 {
        return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid device id"})
    }

    ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
    defer cancel()

    v, err := h.Registry.CheckLicenseValidity(ctx, deviceID, uid)
    if err != nil {
        return engineError(c, err)
    }
    return c.JSON(http.StatusOK, v)
}
