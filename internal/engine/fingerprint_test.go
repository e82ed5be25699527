package engine

import (
    "testing"

    "github.com/stretchr/testify/assert"
)

func TestFingerprint(t *testing.T) {
    t.Run("deterministic", func(t *testing.T) {
        a := Fingerprint("Mozilla/5.0", "linux", "1920x1080", "Europe/Berlin")
        b := Fingerprint("Mozilla/5.0", "linux", "1920x1080", "Europe/Berlin")
        assert.Equal(t, a, b)
        assert.Len(t, a, 64) // sha256 hex
    })

    t.Run("order sensitive", func(t *testing.T) {
        a := Fingerprint("linux", "Mozilla/5.0")
        b := Fingerprint("Mozilla/5.0", "linux")
        assert.NotEqual(t, a, b)
    })

    t.Run("distinct traits produce distinct digests", func(t *testing.T) {
        a := Fingerprint("Mozilla/5.0", "linux")
        b := Fingerprint("Mozilla/5.0", "darwin")
        assert.NotEqual(t, a, b)
    })

    t.Run("empty input yields empty fingerprint", func(t *testing.T) {
        assert.Equal(t, "", Fingerprint())
        assert.Equal(t, "", Fingerprint(""))
        assert.Equal(t, "", Fingerprint("  "))
    })

    t.Run("single part differs from joined parts with separator collision", func(t *testing.T) {
        // "a\nb" as one part and ("a", "b") as two parts join to the
        // same bytes; both sides are client-controlled so the digest
        // only needs stability, not injectivity.
        assert.Equal(t, Fingerprint("a\nb"), Fingerprint("a", "b"))
    })
}
