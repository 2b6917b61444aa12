package util

import (
	"crypto/sha256"
	"encoding/hex"
)

// HashUserKey maps a user ID (which may carry a "provider:subject"
// separator) to a filesystem- and S3-safe hex key.
func HashUserKey(id string) string {
	sum := sha256.Sum256([]byte(id))
	return hex.EncodeToString(sum[:])
}
