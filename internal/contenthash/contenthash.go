// Package contenthash fingerprints managed content.
package contenthash

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// Prefix is prepended to every fingerprint.
const Prefix = "sha256:"

// Length is the number of hex characters kept from the digest.
const Length = 12

// Compute returns "sha256:" followed by the first 12 hex characters of the
// SHA-256 digest of content. The bytes are hashed exactly as given; callers
// strip their own bookkeeping before hashing.
func Compute(content string) string {
	sum := sha256.Sum256([]byte(content))
	return Prefix + hex.EncodeToString(sum[:])[:Length]
}

// Valid reports whether s has the shape of a value returned by Compute.
func Valid(s string) bool {
	digest, ok := strings.CutPrefix(s, Prefix)
	if !ok || len(digest) != Length {
		return false
	}
	for _, c := range digest {
		if !(c >= '0' && c <= '9' || c >= 'a' && c <= 'f') {
			return false
		}
	}
	return true
}
