package utils

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
)

// jwtSecretBytes is the entropy per signing secret (256-bit).
const jwtSecretBytes = 32

// GenerateSecret returns n random bytes as a hex string.
func GenerateSecret(n int) (string, error) {
	buf := make([]byte, n)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("failed to read random bytes: %w", err)
	}
	return hex.EncodeToString(buf), nil
}

// GenerateJWTSecrets produces a pair of independent signing secrets for
// the admin access and refresh token keys.
func GenerateJWTSecrets() (accessSecret, refreshSecret string, err error) {
	accessSecret, err = GenerateSecret(jwtSecretBytes)
	if err != nil {
		return "", "", fmt.Errorf("failed to generate access secret: %w", err)
	}

	refreshSecret, err = GenerateSecret(jwtSecretBytes)
	if err != nil {
		return "", "", fmt.Errorf("failed to generate refresh secret: %w", err)
	}

	return accessSecret, refreshSecret, nil
}
