// Package sha256 fingerprints page documents for the snapshot archive.
package sha256

import (
	"crypto/sha256"
	"encoding/hex"
)

// Hasher implements tour.Hasher.
type Hasher struct {
	// Length truncates digests when positive.
	Length int
}

// New returns a hasher producing full 64-character digests.
func New() *Hasher {
	return &Hasher{}
}

// Hash returns the hex digest of data.
func (h *Hasher) Hash(data []byte) (string, error) {
	sum := sha256.Sum256(data)
	digest := hex.EncodeToString(sum[:])
	if h != nil && h.Length > 0 && h.Length < len(digest) {
		digest = digest[:h.Length]
	}
	return digest, nil
}
