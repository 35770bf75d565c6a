package util

import (
	"crypto/rand"
	"encoding/hex"
)

// NewID returns a fresh random identifier like "pap_59d1...". The prefix
// names the record kind so IDs stay recognizable in logs and URLs; an empty
// prefix yields bare hex.
func NewID(prefix string) string {
	buf := make([]byte, 16)
	_, _ = rand.Read(buf)
	id := hex.EncodeToString(buf)
	if prefix == "" {
		return id
	}
	return prefix + "_" + id
}
