package security

import (
	"crypto/md5"
	"crypto/sha256"
	"crypto/sha512"
	"crypto/subtle"
	"encoding/hex"
	"fmt"
	"hash"
	"media-gateway/internal/util"
	"strings"

	"golang.org/x/crypto/bcrypt"
)

const saltLength = 8

// CheckPassword : compares input against a stored password specification.
//
// Stored values use the tagged form $T$hash$ or $T$salt8chr$hash$ where T is
// 1 (md5), 5 (sha256) or 6 (sha512); a salt is mixed as input+salt+input.
// bcrypt hashes ($2a$, $2b$, $2y$) are accepted too. Any other value is
// compared as is. Empty and "-" never match.
func CheckPassword(stored, input string) bool {
	if stored == "" || stored == "-" {
		return false
	}

	if isBcrypt(stored) {
		return bcrypt.CompareHashAndPassword([]byte(stored), []byte(input)) == nil
	}

	if len(stored) > saltLength && stored[0] == '$' && stored[2] == '$' && strings.HasSuffix(stored, "$") {
		tag := stored[1]
		expected := stored[3 : len(stored)-1]
		if len(expected) > saltLength && expected[saltLength] == '$' {
			salt := expected[:saltLength]
			expected = expected[saltLength+1:]
			input = input + salt + input
		}
		if h := digestFor(tag); h != nil {
			h.Write([]byte(input))
			input = hex.EncodeToString(h.Sum(nil))
		}
		return subtle.ConstantTimeCompare([]byte(expected), []byte(input)) == 1
	}

	return subtle.ConstantTimeCompare([]byte(stored), []byte(input)) == 1
}

// HashPassword : produces a salted tagged specification for static configuration.
func HashPassword(tag byte, password string) (string, error) {
	h := digestFor(tag)
	if h == nil {
		return "", fmt.Errorf("unsupported password tag %q", tag)
	}

	salt, err := util.RandomToken(saltLength)
	if err != nil {
		return "", err
	}

	h.Write([]byte(password + salt + password))
	return fmt.Sprintf("$%c$%s$%s$", tag, salt, hex.EncodeToString(h.Sum(nil))), nil
}

func digestFor(tag byte) hash.Hash {
	switch tag {
	case '1':
		return md5.New()
	case '5':
		return sha256.New()
	case '6':
		return sha512.New()
	default:
		return nil
	}
}

func isBcrypt(stored string) bool {
	return strings.HasPrefix(stored, "$2a$") || strings.HasPrefix(stored, "$2b$") || strings.HasPrefix(stored, "$2y$")
}
