// Package idempotency derives the key that lets the Sales API apply a queued
// sale exactly once.
package idempotency

import (
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/blake2b"
)

// KeyLength is the length of a derived key in hex characters.
const KeyLength = blake2b.Size256 * 2

// Identity is the part of a sale that determines its key: the client id minted
// at finalize time and the finalize timestamp.
type Identity struct {
	ClientTempID uuid.UUID
	CreatedAt    time.Time
}

// DeriveKey returns the hex BLAKE2b-256 digest of the client id followed by
// the big-endian UnixNano of CreatedAt. The same identity always yields the
// same key; the payload and the current time play no part.
func DeriveKey(id Identity) string {
	var buf [24]byte
	copy(buf[:16], id.ClientTempID[:])
	binary.BigEndian.PutUint64(buf[16:], uint64(id.CreatedAt.UnixNano()))
	sum := blake2b.Sum256(buf[:])
	return hex.EncodeToString(sum[:])
}

// ValidKey reports whether raw looks like a key produced by DeriveKey.
func ValidKey(raw string) bool {
	if len(raw) != KeyLength || strings.ToLower(raw) != raw {
		return false
	}
	_, err := hex.DecodeString(raw)
	return err == nil
}

// ParseKey returns an error when raw is not a derived key.
func ParseKey(raw string) (string, error) {
	trimmed := strings.TrimSpace(raw)
	if !ValidKey(trimmed) {
		return "", fmt.Errorf("invalid idempotency key %q", raw)
	}
	return trimmed, nil
}
