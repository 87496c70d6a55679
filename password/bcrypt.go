package password

import (
	"errors"
	"fmt"

	"golang.org/x/crypto/bcrypt"
)

// DefaultBcryptCost is used when NewBcrypt receives zero.
const DefaultBcryptCost = 12

// bcrypt ignores input past 72 bytes; reject instead of truncating.
const bcryptMaxPasswordBytes = 72

// Bcrypt is the default Hasher.
type Bcrypt struct {
	cost int
}

// NewBcrypt returns a Bcrypt hasher. A zero cost selects DefaultBcryptCost.
func NewBcrypt(cost int) (*Bcrypt, error) {
	if cost == 0 {
		cost = DefaultBcryptCost
	}
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		return nil, fmt.Errorf("bcrypt cost must be within [%d, %d]", bcrypt.MinCost, bcrypt.MaxCost)
	}
	return &Bcrypt{cost: cost}, nil
}

// Hash returns a bcrypt encoding of password.
func (b *Bcrypt) Hash(password string) (string, error) {
	if len(password) < DefaultMinPasswordBytes {
		return "", ErrPasswordTooShort
	}
	if len(password) > bcryptMaxPasswordBytes {
		return "", ErrPasswordTooLong
	}
	out, err := bcrypt.GenerateFromPassword([]byte(password), b.cost)
	if err != nil {
		return "", err
	}
	return string(out), nil
}

// Verify reports whether password matches encodedHash. A mismatch is
// (false, nil); a malformed hash is an error.
func (b *Bcrypt) Verify(password, encodedHash string) (bool, error) {
	if len(password) > bcryptMaxPasswordBytes {
		return false, ErrPasswordTooLong
	}
	err := bcrypt.CompareHashAndPassword([]byte(encodedHash), []byte(password))
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, bcrypt.ErrMismatchedHashAndPassword):
		return false, nil
	default:
		return false, err
	}
}

// NeedsUpgrade reports whether encodedHash was produced with a lower cost.
func (b *Bcrypt) NeedsUpgrade(encodedHash string) (bool, error) {
	cost, err := bcrypt.Cost([]byte(encodedHash))
	if err != nil {
		return false, err
	}
	return cost < b.cost, nil
}
