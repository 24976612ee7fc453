package util

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"
)

const tokenBytes = 32

// GenerateToken returns a 256-bit random value encoded with the unpadded
// URL-safe base64 alphabet, so it can be embedded in URLs and compared
// case-sensitively. It fails rather than falling back to a weaker source
// when the system entropy pool is unavailable.
func GenerateToken() (string, error) {
	bytes := make([]byte, tokenBytes)
	if _, err := rand.Read(bytes); err != nil {
		return "", fmt.Errorf("read entropy source: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(bytes), nil
}

// MaskCode redacts a polling or login code for logging.
func MaskCode(code string) string {
	if len(code) <= 4 {
		return "****"
	}
	return code[:4] + "-****"
}
