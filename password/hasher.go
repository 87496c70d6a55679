package password

import (
	"errors"
	"strings"
)

const (
	// DefaultMinPasswordBytes is the shortest password any hasher here accepts.
	DefaultMinPasswordBytes = 8
	// DefaultMaxPasswordBytes bounds Argon2 input when Config.MaxPasswordBytes is zero.
	DefaultMaxPasswordBytes = 1024
)

var (
	// ErrPasswordTooShort is returned by Hash for passwords under the minimum length.
	ErrPasswordTooShort = errors.New("password too short")
	// ErrPasswordTooLong is returned when the password exceeds the hasher's input bound.
	ErrPasswordTooLong = errors.New("password too long")
	// ErrUnsupportedHash is returned when an encoded hash matches no known scheme.
	ErrUnsupportedHash = errors.New("unsupported password hash")
)

// Hasher hashes new passwords and verifies stored encodings.
type Hasher interface {
	Hash(password string) (string, error)
	Verify(password, encodedHash string) (bool, error)
}

// Scheme reports which algorithm produced encodedHash: "argon2id", "bcrypt" or "".
func Scheme(encodedHash string) string {
	switch {
	case strings.HasPrefix(encodedHash, "$"+algorithmID+"$"):
		return algorithmID
	case strings.HasPrefix(encodedHash, "$2a$"),
		strings.HasPrefix(encodedHash, "$2b$"),
		strings.HasPrefix(encodedHash, "$2y$"):
		return "bcrypt"
	default:
		return ""
	}
}

// Multi hashes with a primary Hasher and verifies any encoding one of its
// hashers understands. It lets stored bcrypt and Argon2id hashes coexist.
type Multi struct {
	primary Hasher
	argon   *Argon2
	bcrypt  *Bcrypt
}

// NewMulti builds a Multi. primary is used for Hash; argon and bc may be nil
// when that scheme is not expected in storage.
func NewMulti(primary Hasher, argon *Argon2, bc *Bcrypt) *Multi {
	return &Multi{primary: primary, argon: argon, bcrypt: bc}
}

// Hash delegates to the primary hasher.
func (m *Multi) Hash(password string) (string, error) {
	return m.primary.Hash(password)
}

// Verify routes encodedHash to the hasher for its scheme.
func (m *Multi) Verify(password, encodedHash string) (bool, error) {
	switch Scheme(encodedHash) {
	case algorithmID:
		if m.argon != nil {
			return m.argon.Verify(password, encodedHash)
		}
	case "bcrypt":
		if m.bcrypt != nil {
			return m.bcrypt.Verify(password, encodedHash)
		}
	}
	return false, ErrUnsupportedHash
}
