package internal

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"math/big"
	"strings"
)

// SessionID is the raw form of a user session identifier.
type SessionID [16]byte

const (
	tokenIDSize           = 16
	refreshSecretSize     = 32
	registrationTokenSize = 32
)

func NewSessionID() (SessionID, error) {
	var sid SessionID
	_, err := rand.Read(sid[:])
	return sid, err
}

func (s SessionID) String() string {
	// base64url, no padding, compact
	return base64.RawURLEncoding.EncodeToString(s[:])
}

func ParseSessionID(sessionID string) (SessionID, error) {
	var sid SessionID

	raw, err := base64.RawURLEncoding.DecodeString(sessionID)
	if err != nil {
		return sid, err
	}
	if len(raw) != len(sid) {
		return sid, errors.New("invalid session id size")
	}

	copy(sid[:], raw)
	return sid, nil
}

// NewTokenID returns a random identifier used as the jti of access tokens.
func NewTokenID() (string, error) {
	return randomString(tokenIDSize)
}

// NewRefreshSecret returns the random secret carried by a refresh token.
// Only its hash is ever persisted.
func NewRefreshSecret() (string, error) {
	return randomString(refreshSecretSize)
}

// NewRegistrationToken returns an opaque registration session token.
func NewRegistrationToken() (string, error) {
	return randomString(registrationTokenSize)
}

// HashSecret returns the hex sha256 of a secret for storage.
func HashSecret(secret string) string {
	sum := sha256.Sum256([]byte(secret))
	return hex.EncodeToString(sum[:])
}

// EqualHash compares two hex hashes in constant time.
func EqualHash(a, b string) bool {
	if len(a) != len(b) {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}

// NewNumericCode returns a uniformly random decimal code of the given length.
func NewNumericCode(digits int) (string, error) {
	if digits < 4 || digits > 10 {
		return "", errors.New("invalid code digits")
	}

	var b strings.Builder
	b.Grow(digits)

	max := big.NewInt(10)
	for i := 0; i < digits; i++ {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", err
		}
		b.WriteByte(byte('0' + n.Int64()))
	}

	code := b.String()
	if len(code) != digits {
		return "", fmt.Errorf("invalid code generation length")
	}
	return code, nil
}

func randomString(size int) (string, error) {
	buf := make([]byte, size)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}
