// Package sha256 provides SHA-256 content addressing for stored artifacts.
package sha256

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

const nameDigestLen = 16

// Hasher implements portal.Hasher using SHA-256.
type Hasher struct{}

// New returns a SHA-256 hasher.
func New() *Hasher {
	return &Hasher{}
}

// Hash hashes the input and returns a hex digest.
func (h *Hasher) Hash(data []byte) (string, error) {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:]), nil
}

// Name returns a short content-addressed file name such as "3f2a...c1.png".
func (h *Hasher) Name(data []byte, ext string) string {
	digest, _ := h.Hash(data)
	name := digest[:nameDigestLen]
	ext = strings.TrimPrefix(ext, ".")
	if ext == "" {
		return name
	}
	return name + "." + ext
}
