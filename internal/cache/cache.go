// Package cache stores per-day keyword lists so the ledger does not
// re-clean every earlier day of a bucket on each run.
package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// KeyPrefix namespaces keys; bump the version when the cached format changes
const KeyPrefix = "kwharvest:v1:"

// Key hashes the given parts into a namespaced, filesystem-safe key
func Key(parts ...string) string {
	hash := sha256.Sum256([]byte(strings.Join(parts, "\x00")))
	return KeyPrefix + hex.EncodeToString(hash[:])
}
