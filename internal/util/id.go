package util

import (
	"crypto/rand"
	"encoding/hex"
)

func NewID(prefix string) string {
	bytes := make([]byte, 16)
	_, _ = rand.Read(bytes)
	if prefix == "" {
		return hex.EncodeToString(bytes)
	}
	return prefix + "_" + hex.EncodeToString(bytes)
}

// NewEventID returns an identifier for domain events. Events are written in
// bulk, so a shorter id keeps the append index compact.
func NewEventID() string {
	bytes := make([]byte, 12)
	_, _ = rand.Read(bytes)
	return "evt_" + hex.EncodeToString(bytes)
}
