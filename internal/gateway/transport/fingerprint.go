package transport

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
)

// fingerprintSeparator keeps adjacent fields from colliding when hashed
// (e.g. prompt "ab"+provider "c" vs prompt "a"+provider "bc").
const fingerprintSeparator = "\x1f"

// Fingerprint derives the deterministic cache key for a request from its
// normalized cache-relevant fields: prompt, provider, model, context,
// temperature, and max-tokens. The caller id is deliberately excluded so
// identical requests share one entry across callers.
func Fingerprint(req *Request) string {
	fields := []string{
		strings.TrimSpace(req.Prompt),
		req.Provider,
		req.Model,
		strings.TrimSpace(req.Context),
		fmt.Sprintf("%.4f", req.Temperature),
		fmt.Sprintf("%d", req.MaxTokens),
	}

	sum := sha256.Sum256([]byte(strings.Join(fields, fingerprintSeparator)))
	return hex.EncodeToString(sum[:])
}
