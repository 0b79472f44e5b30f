package utils

import (
	"crypto/rand"
	"encoding/hex"
	"strings"

	"github.com/ethereum/go-ethereum/common"
)

// GenerateID generates a random hex ID
func GenerateID() (string, error) {
	bytes := make([]byte, 16)
	if _, err := rand.Read(bytes); err != nil {
		return "", err
	}
	return hex.EncodeToString(bytes), nil
}

// IsValidAddress checks if a string is a valid account address
func IsValidAddress(address string) bool {
	return common.IsHexAddress(address)
}

// NormalizeDigest lowercases a hex digest and strips a leading 0x prefix
func NormalizeDigest(digest string) string {
	digest = strings.TrimSpace(digest)
	digest = strings.TrimPrefix(digest, "0x")
	return strings.ToLower(digest)
}

// IsValidDigest reports whether s is a 64-character SHA-256 hex digest
func IsValidDigest(s string) bool {
	s = NormalizeDigest(s)
	if len(s) != 64 {
		return false
	}
	_, err := hex.DecodeString(s)
	return err == nil
}

// DigestsEqual compares two hex digests ignoring case and 0x prefixes
func DigestsEqual(a, b string) bool {
	return NormalizeDigest(a) == NormalizeDigest(b)
}
