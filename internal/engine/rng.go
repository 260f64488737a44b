package engine

import (
	crand "crypto/rand"
	"encoding/hex"
	"strconv"
)

// NewSeed returns a fresh 8-byte hex game seed from crypto/rand.
func NewSeed() (string, error) {
	var b [8]byte
	if _, err := crand.Read(b[:]); err != nil {
		return "", err
	}
	return hex.EncodeToString(b[:]), nil
}

// hashToFloat maps a string to [0, 1) with a 32-bit FNV-1a mix. Deterministic
// so that any roll can be replayed from the seed and the event count.
func hashToFloat(s string) float64 {
	h := uint32(2166136261)
	for i := 0; i < len(s); i++ {
		h ^= uint32(s[i])
		h *= 16777619
	}
	return float64(h%1_000_000) / 1_000_000
}

// Roll derives a die result from the game seed and the number of events
// logged so far. The event count is rendered in hex, matching the audit
// convention used when replaying games. Pure function, no side effects.
func Roll(seed string, eventCount int64, faces []int) int {
	if len(faces) == 0 {
		return 0
	}
	variant := seed + strconv.FormatInt(eventCount, 16)
	idx := int(hashToFloat(variant) * float64(len(faces)))
	if idx >= len(faces) {
		idx = len(faces) - 1
	}
	return faces[idx]
}
