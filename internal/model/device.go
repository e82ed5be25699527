package model

import "time"

// OfflineLicenseWindow is how long a freshly issued offline content
// license stays valid.  Licenses must be explicitly renewed afterwards.
const OfflineLicenseWindow = 30 * 24 * time.Hour

// Device represents a reader device registered for offline reading.
// A user may hold a limited number of devices with IsActive true.
// Deactivation is terminal for the registration: the row is never
// reactivated, and a new registration must be created to re-add the same
// physical device.  This struct corresponds to a row in the `devices`
// table.
//
// Fields:
//  ID                – primary key identifier.
//  UserID            – owning user.
//  Name              – user-chosen label ("Kobo living room").
//  DeviceFingerprint – SHA-256 digest of client-reported device traits.
//  PublicKey         – key the device presents when requesting licenses.
//  IsActive          – whether the device may be issued offline licenses.
//  LastActiveAt      – last authenticated request seen from this device.
//  CreatedAt         – registration timestamp.
type Device struct {
    ID                uint64    `json:"id"`                 // devices.id
    UserID            uint64    `json:"user_id"`            // devices.user_id
    Name              string    `json:"name"`               // devices.name
    DeviceFingerprint string    `json:"device_fingerprint"` // devices.device_fingerprint
    PublicKey         string    `json:"-"`                  // devices.public_key
    IsActive          bool      `json:"is_active"`          // devices.is_active
    LastActiveAt      time.Time `json:"last_active_at"`     // devices.last_active_at
    CreatedAt         time.Time `json:"created_at"`         // devices.created_at
}
