package util

import (
	"crypto/rand"
	"encoding/hex"
)

// RandomToken : generates a random hex token of length characters
func RandomToken(length int) (string, error) {
	byteLength := (length + 1) / 2 // hex encodes one byte as two characters
	bytes := make([]byte, byteLength)

	_, err := rand.Read(bytes)
	if err != nil {
		return "", LogError("[util] token generation failed", err)
	}

	return hex.EncodeToString(bytes)[:length], nil
}
