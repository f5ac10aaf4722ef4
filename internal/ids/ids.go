// Package ids generates prefixed random identifiers for engine entities.
package ids

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
)

// New returns an identifier of the form "<prefix>_<hex>" backed by 12 random
// bytes from crypto/rand.
func New(prefix string) (string, error) {
	b := make([]byte, 12)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generate id: %w", err)
	}
	return prefix + "_" + hex.EncodeToString(b), nil
}
