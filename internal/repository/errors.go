// Package repository defines error types that are reused across multiple
// repositories. These sentinel values allow higher layers such as the
// entitlement engine to distinguish between different failure scenarios.
package repository

import "errors"

// ErrConflict is returned when an insert or update cannot be performed
// because of conflicting state, such as a duplicate trial record for an
// email or a state transition whose guard matched no rows. Higher layers
// translate this into their own domain errors.
var ErrConflict = errors.New("conflict")
