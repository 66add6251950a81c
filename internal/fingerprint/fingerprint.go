// Package fingerprint computes content digests used as description cache keys.
package fingerprint

import (
	"crypto/sha256"
	"encoding/hex"
)

// Fingerprint is a fixed-length digest of raw media bytes. Identical byte
// sequences always produce identical fingerprints, independent of process
// identity, so cached descriptions survive restarts of the callers.
type Fingerprint [sha256.Size]byte

// Sum computes the fingerprint of data. Empty input yields the digest of
// the empty sequence, not an error.
func Sum(data []byte) Fingerprint {
	return sha256.Sum256(data)
}

// String returns the hex form, suitable for logs and storage keys.
func (f Fingerprint) String() string {
	return hex.EncodeToString(f[:])
}
