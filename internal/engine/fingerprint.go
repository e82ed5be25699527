package engine

import (
    "crypto/sha256"
    "encoding/hex"
    "strings"
)

// Fingerprint digests client-reported device traits (user agent,
// platform, resolution, timezone and anything else the client sends)
// into a stable hex identifier.  SHA-256 replaces the old 32-bit rolling
// hash, which collided far too easily to serve as a uniqueness signal.
// The inputs remain client-suppliable and unauthenticated, so any
// abuse-prevention decision resting on a fingerprint stays soft: the
// guards treat a missing fingerprint as "skip the device check", never
// as a conflict.
//
// Empty input yields an empty fingerprint so callers can store NULL
// instead of a digest of nothing.
func Fingerprint(parts ...string) string {
    joined := strings.TrimSpace(strings.Join(parts, "\n"))
    if joined == "" {
        return ""
    }
    sum := sha256.Sum256([]byte(joined))
    return hex.EncodeToString(sum[:])
}
