// Package checksum fingerprints file contents and credentials.
package checksum

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
)

// Sum returns the hex-encoded SHA-256 digest of data.
func Sum(data []byte) string {
	h := sha256.Sum256(data)
	return hex.EncodeToString(h[:])
}

// SumString is Sum for strings.
func SumString(s string) string {
	return Sum([]byte(s))
}

// Matches reports whether data hashes to sum. An empty sum never matches.
func Matches(data []byte, sum string) bool {
	if sum == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(Sum(data)), []byte(sum)) == 1
}
