package checksum

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"strings"
)

// Sum returns the lower-case hex SHA-256 digest of data.
func Sum(data []byte) string {
	h := sha256.Sum256(data)
	return hex.EncodeToString(h[:])
}

// SumFields hashes the fields joined by '|'. Callers own field order.
func SumFields(fields ...string) string {
	return Sum([]byte(strings.Join(fields, "|")))
}

// ContentHasher verifies uploaded bytes against a digest recorded earlier.
type ContentHasher struct {
	expected string
}

func NewContentHasher(expected string) *ContentHasher {
	return &ContentHasher{expected: strings.ToLower(strings.TrimSpace(expected))}
}

// Match reports whether data hashes to the expected digest.
func (h *ContentHasher) Match(data []byte) (bool, error) {
	if h.expected == "" {
		return false, errors.New("expected checksum is not set")
	}
	return Sum(data) == h.expected, nil
}
