package engine

import (
    "context"
    "database/sql"
    "log"
    "time"

    "github.com/inkstream/inkstream-server/internal/model"
    "github.com/inkstream/inkstream-server/internal/queue"
    "github.com/inkstream/inkstream-server/internal/repository"
)

// DeviceRegistry manages per-user device registrations for offline
// reading.  Registration is capped like borrowing: count-then-insert
// under the user's row lock.  Deactivation is terminal and immediately
// invalidates every offline license bound to the device: the registry
// publishes the revocation signal and refuses license validity from the
// instant is_active flips.
type DeviceRegistry struct {
    DB         *sql.DB
    Users      *repository.UserRepo
    Devices    *repository.DeviceRepo
    MaxDevices int

    // PublishDeactivated, when set, emits the license-revocation signal
    // after a successful deactivation.  Publishing is best effort: the
    // database is the source of truth and validity checks re-read it,
    // so a lost event degrades freshness, not correctness.
    PublishDeactivated func(ctx context.Context, ev queue.DeviceDeactivatedEvent) error

    now func() time.Time
}

// LicenseValidity reports whether a device may hold offline licenses and
// until when a freshly issued license would be valid.
type LicenseValidity struct {
    Valid      bool       `json:"valid"`
    ValidUntil *time.Time `json:"valid_until,omitempty"`
}

// NewDeviceRegistry constructs a DeviceRegistry enforcing the given cap.
func NewDeviceRegistry(db *sql.DB, users *repository.UserRepo, devices *repository.DeviceRepo, maxDevices int) *DeviceRegistry {
    return &DeviceRegistry{
        DB:         db,
        Users:      users,
        Devices:    devices,
        MaxDevices: maxDevices,
        now:        func() time.Time { return time.Now().UTC() },
    }
}

// Register creates an active device for the user, provided they have a
// free slot under the cap.  The fingerprint must already be digested via
// Fingerprint.
func (r *DeviceRegistry) Register(ctx context.Context, userID uint64, name, publicKey, fingerprint string) (*model.Device, error) {
    now := r.now()

    tx, err := r.DB.BeginTx(ctx, nil)
    if err != nil {
        return nil, persistence("device registry: begin", err)
    }
    committed := false
    defer func() {
        if !committed {
            _ = tx.Rollback()
        }
    }()

    if _, err := r.Users.LockForUpdateTx(ctx, tx, userID); err != nil {
        if err == sql.ErrNoRows {
            return nil, ErrNotFound
        }
        return nil, persistence("device registry: lock user", err)
    }

    active, err := r.Devices.CountActiveTx(ctx, tx, userID)
    if err != nil {
        return nil, persistence("device registry: count active", err)
    }
    if active >= r.MaxDevices {
        return nil, &DeviceLimitExceededError{Active: active, Max: r.MaxDevices}
    }

    d := &model.Device{
        UserID:            userID,
        Name:              name,
        DeviceFingerprint: fingerprint,
        PublicKey:         publicKey,
        IsActive:          true,
        LastActiveAt:      now,
        CreatedAt:         now,
    }
    if err := r.Devices.CreateTx(ctx, tx, d); err != nil {
        return nil, persistence("device registry: create device", err)
    }

    if err := tx.Commit(); err != nil {
        return nil, persistence("device registry: commit", err)
    }
    committed = true
    return d, nil
}

// Deactivate terminally deactivates the user's device.  Devices that do
// not exist, belong to someone else or are already inactive all report
// ErrNotFound; there is nothing re-doable about a deactivation.  On
// success the revocation signal is published for the license issuer.
func (r *DeviceRegistry) Deactivate(ctx context.Context, deviceID, userID uint64) error {
    now := r.now()

    tx, err := r.DB.BeginTx(ctx, nil)
    if err != nil {
        return persistence("device registry: begin", err)
    }
    committed := false
    defer func() {
        if !committed {
            _ = tx.Rollback()
        }
    }()

    d, err := r.Devices.GetForUserTx(ctx, tx, deviceID, userID)
    if err != nil {
        if err == sql.ErrNoRows {
            return ErrNotFound
        }
        return persistence("device registry: load device", err)
    }
    if !d.IsActive {
        return ErrNotFound
    }
    if err := r.Devices.DeactivateTx(ctx, tx, deviceID); err != nil {
        if err == repository.ErrConflict {
            return ErrNotFound
        }
        return persistence("device registry: deactivate", err)
    }
    if err := tx.Commit(); err != nil {
        return persistence("device registry: commit", err)
    }
    committed = true

    if r.PublishDeactivated != nil {
        ev := queue.DeviceDeactivatedEvent{
            DeviceID:      d.ID,
            UserID:        d.UserID,
            Name:          d.Name,
            Fingerprint:   d.DeviceFingerprint,
            DeactivatedAt: now.Format(time.RFC3339),
        }
        if err := r.PublishDeactivated(ctx, ev); err != nil {
            log.Printf("device registry: publish deactivation event failed: %v", err)
        }
    }
    return nil
}

// TouchByFingerprint refreshes last_active_at for the user's active
// device matching the raw fingerprint material.  Unknown fingerprints
// are ignored; the header is client-controlled.
func (r *DeviceRegistry) TouchByFingerprint(ctx context.Context, userID uint64, rawFingerprint string) error {
    fp := Fingerprint(rawFingerprint)
    if fp == "" {
        return nil
    }
    if _, err := r.Devices.TouchByFingerprint(ctx, userID, fp, r.now()); err != nil {
        return persistence("device registry: touch", err)
    }
    return nil
}

// TouchLastActive refreshes last_active_at for one device by ID.
// Touching an inactive registration is a caller logic error.
func (r *DeviceRegistry) TouchLastActive(ctx context.Context, deviceID, userID uint64) error {
    n, err := r.Devices.TouchLastActive(ctx, deviceID, userID, r.now())
    if err != nil {
        return persistence("device registry: touch", err)
    }
    if n == 0 {
        if _, err := r.Devices.GetForUser(ctx, deviceID, userID); err != nil {
            if err == sql.ErrNoRows {
                return ErrNotFound
            }
            return persistence("device registry: load device", err)
        }
        return ErrInvalidDeviceState
    }
    return nil
}

// CheckLicenseValidity answers the contract the license issuer depends
// on: is this device active for this user, and if so until when is a
// freshly issued offline license valid.  A deactivated device reports
// invalid for every license, including ones issued before deactivation.
func (r *DeviceRegistry) CheckLicenseValidity(ctx context.Context, deviceID, userID uint64) (LicenseValidity, error) {
    d, err := r.Devices.GetForUser(ctx, deviceID, userID)
    if err != nil {
        if err == sql.ErrNoRows {
            return LicenseValidity{}, ErrNotFound
        }
        return LicenseValidity{}, persistence("device registry: load device", err)
    }
    if !d.IsActive {
        return LicenseValidity{Valid: false}, nil
    }
    until := r.now().Add(model.OfflineLicenseWindow)
    return LicenseValidity{Valid: true, ValidUntil: &until}, nil
}

// List returns all of the user's device registrations.
func (r *DeviceRegistry) List(ctx context.Context, userID uint64) ([]model.Device, error) {
    devices, err := r.Devices.ListByUser(ctx, userID)
    if err != nil {
        return nil, persistence("device registry: list", err)
    }
    return devices, nil
}
