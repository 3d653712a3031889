package utils

import (
	"crypto/rand"
	"strings"
)

// CodeLength is the length of customer-facing queue codes.
const CodeLength = 6

// GenerateDigitCode returns a random code of length digits, leading
// zeros included. Uniqueness is the caller's problem.
func GenerateDigitCode(length int) (string, error) {
	const charset = "0123456789"

	// Make a slice of length random bytes.
	code := make([]byte, length)

	// Read into the slice.
	if _, err := rand.Read(code); err != nil {
		return "", err
	}

	// Convert bytes to string.
	for i := 0; i < length; i++ {
		code[i] = charset[int(code[i])%len(charset)]
	}

	return string(code), nil
}

// IsExpoPushToken reports whether token looks like an Expo push token.
// Malformed tokens are skipped silently by the push path.
func IsExpoPushToken(token string) bool {
	if token == "" {
		return false
	}
	return (strings.HasPrefix(token, "ExponentPushToken[") ||
		strings.HasPrefix(token, "ExpoPushToken[")) &&
		strings.HasSuffix(token, "]")
}
