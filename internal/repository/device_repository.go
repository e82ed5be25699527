package repository

import (
    "context"
    "database/sql"
    "time"

    "github.com/inkstream/inkstream-server/internal/model"
)

// deviceColumns is the column list shared by every devices SELECT.
const deviceColumns = `id, user_id, name, device_fingerprint, public_key,
       is_active, last_active_at, created_at`

// DeviceRepo provides data access to the devices table.  Device rows are
// created active and deactivated exactly once; deactivation is terminal
// for the registration.  Cap enforcement pairs CountActiveTx with
// CreateTx under the owning user's row lock, mirroring the loan path.
type DeviceRepo struct {
    db *sql.DB
}

// NewDeviceRepo returns a new DeviceRepo bound to the given database.
func NewDeviceRepo(db *sql.DB) *DeviceRepo { return &DeviceRepo{db: db} }

// CountActiveTx counts the user's active devices within the transaction.
func (r *DeviceRepo) CountActiveTx(ctx context.Context, tx *sql.Tx, userID uint64) (int, error) {
    const q = `SELECT COUNT(*) FROM devices WHERE user_id = ? AND is_active = 1`
    var n int
    if err := tx.QueryRowContext(ctx, q, userID).Scan(&n); err != nil {
        return 0, err
    }
    return n, nil
}

// CreateTx inserts a new active device within the provided transaction
// and populates the generated ID on the given record.
func (r *DeviceRepo) CreateTx(ctx context.Context, tx *sql.Tx, d *model.Device) error {
    const q = `INSERT INTO devices
               (user_id, name, device_fingerprint, public_key, is_active, last_active_at)
               VALUES (?, ?, ?, ?, 1, ?)`
    res, err := tx.ExecContext(ctx, q,
        d.UserID, d.Name, d.DeviceFingerprint, d.PublicKey, d.LastActiveAt.UTC())
    if err != nil {
        return err
    }
    id, err := res.LastInsertId()
    if err != nil {
        return err
    }
    d.ID = uint64(id)
    return nil
}

// GetForUserTx reads a device owned by the given user inside the
// transaction while taking a row lock on it.  Returns sql.ErrNoRows when
// the device does not exist or belongs to someone else.
func (r *DeviceRepo) GetForUserTx(ctx context.Context, tx *sql.Tx, deviceID, userID uint64) (model.Device, error) {
    const q = `SELECT ` + deviceColumns + ` FROM devices WHERE id = ? AND user_id = ? FOR UPDATE`
    return scanDevice(tx.QueryRowContext(ctx, q, deviceID, userID))
}

// GetForUser reads a device owned by the given user without locking, for
// read-only license validity checks.
func (r *DeviceRepo) GetForUser(ctx context.Context, deviceID, userID uint64) (model.Device, error) {
    const q = `SELECT ` + deviceColumns + ` FROM devices WHERE id = ? AND user_id = ? LIMIT 1`
    return scanDevice(r.db.QueryRowContext(ctx, q, deviceID, userID))
}

// DeactivateTx flips is_active off for an active device.  Zero rows
// affected means the device was already inactive.
func (r *DeviceRepo) DeactivateTx(ctx context.Context, tx *sql.Tx, deviceID uint64) error {
    res, err := tx.ExecContext(ctx,
        `UPDATE devices SET is_active = 0 WHERE id = ? AND is_active = 1`, deviceID)
    if err != nil {
        return err
    }
    n, err := res.RowsAffected()
    if err != nil {
        return err
    }
    if n == 0 {
        return ErrConflict
    }
    return nil
}

// TouchByFingerprint refreshes last_active_at for the user's active
// device carrying the fingerprint.  Returns the number of rows updated;
// zero is not an error because the header is client-controlled and may
// not correspond to any registration.
func (r *DeviceRepo) TouchByFingerprint(ctx context.Context, userID uint64, fingerprint string, at time.Time) (int64, error) {
    res, err := r.db.ExecContext(ctx,
        `UPDATE devices SET last_active_at = ? WHERE user_id = ? AND device_fingerprint = ? AND is_active = 1`,
        at.UTC(), userID, fingerprint)
    if err != nil {
        return 0, err
    }
    return res.RowsAffected()
}

// TouchLastActive refreshes last_active_at for one of the user's active
// devices by ID.  The user_id filter keeps the update from touching a
// device registered to someone else.
func (r *DeviceRepo) TouchLastActive(ctx context.Context, deviceID, userID uint64, at time.Time) (int64, error) {
    res, err := r.db.ExecContext(ctx,
        `UPDATE devices SET last_active_at = ? WHERE id = ? AND user_id = ? AND is_active = 1`,
        at.UTC(), deviceID, userID)
    if err != nil {
        return 0, err
    }
    return res.RowsAffected()
}

// ListByUser returns all of the user's device registrations, newest
// first, including deactivated ones so clients can show history.
func (r *DeviceRepo) ListByUser(ctx context.Context, userID uint64) ([]model.Device, error) {
    const q = `SELECT ` + deviceColumns + ` FROM devices WHERE user_id = ? ORDER BY created_at DESC, id DESC`
    rows, err := r.db.QueryContext(ctx, q, userID)
    if err != nil {
        return nil, err
    }
    defer rows.Close()
    devices := make([]model.Device, 0)
    for rows.Next() {
        var d model.Device
        if err := rows.Scan(&d.ID, &d.UserID, &d.Name, &d.DeviceFingerprint, &d.PublicKey,
            &d.IsActive, &d.LastActiveAt, &d.CreatedAt); err != nil {
            return nil, err
        }
        devices = append(devices, d)
    }
    if err := rows.Err(); err != nil {
        return nil, err
    }
    return devices, nil
}

func scanDevice(row *sql.Row) (model.Device, error) {
    var d model.Device
    err := row.Scan(&d.ID, &d.UserID, &d.Name, &d.DeviceFingerprint, &d.PublicKey,
        &d.IsActive, &d.LastActiveAt, &d.CreatedAt)
    if err != nil {
        return model.Device{}, err
    }
    return d, nil
}
