package utils

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// HashIdentity creates a SHA-256 hash of a normalised identity (trimmed,
// lowercased) so the same email always maps to the same CRM key
func HashIdentity(input string) string {
	h := sha256.New()
	h.Write([]byte(strings.ToLower(strings.TrimSpace(input))))
	return hex.EncodeToString(h.Sum(nil))
}

// DigitsOnly strips everything but digits from a phone number
func DigitsOnly(phone string) string {
	var b strings.Builder
	for _, r := range phone {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}
