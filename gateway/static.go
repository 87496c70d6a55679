package gateway

import (
	"context"
	"crypto/subtle"
	"fmt"
	"sync"

	goEnroll "github.com/MrEthical07/goEnroll"
)

// StaticGateway is an in-memory identity directory. Tokens map to
// identities and canonical refs map to legacy passwords.
type StaticGateway struct {
	mu          sync.RWMutex
	identities  map[string]goEnroll.Identity
	passwords   map[string]string
	unavailable error
}

// NewStaticGateway returns an empty directory.
func NewStaticGateway() *StaticGateway {
	return &StaticGateway{
		identities: make(map[string]goEnroll.Identity),
		passwords:  make(map[string]string),
	}
}

// Add registers identity under token with its legacy password. The ref is
// canonicalized.
func (g *StaticGateway) Add(token string, identity goEnroll.Identity, password string) {
	identity.Ref = goEnroll.CanonicalRef(identity.Ref)
	identity.Email = goEnroll.NormalizeEmail(identity.Email)

	g.mu.Lock()
	defer g.mu.Unlock()
	g.identities[token] = identity
	g.passwords[identity.Ref] = password
}

// Revoke forgets token.
func (g *StaticGateway) Revoke(token string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.identities, token)
}

// SetUnavailable makes every call fail with err wrapped in
// goEnroll.ErrIdentityUnavailable. A nil err restores service.
func (g *StaticGateway) SetUnavailable(err error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.unavailable = err
}

// ValidateToken implements goEnroll.IdentityGateway.
func (g *StaticGateway) ValidateToken(ctx context.Context, token string) (goEnroll.Identity, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	if g.unavailable != nil {
		return goEnroll.Identity{}, unavailable(g.unavailable)
	}
	identity, ok := g.identities[token]
	if !ok {
		return goEnroll.Identity{}, goEnroll.ErrInvalidOrExpiredToken
	}
	return identity, nil
}

// VerifyPassword implements goEnroll.IdentityGateway.
func (g *StaticGateway) VerifyPassword(ctx context.Context, ref, password string) (bool, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	if g.unavailable != nil {
		return false, unavailable(g.unavailable)
	}
	want, ok := g.passwords[goEnroll.CanonicalRef(ref)]
	if !ok {
		return false, nil
	}
	return subtle.ConstantTimeCompare([]byte(want), []byte(password)) == 1, nil
}

func unavailable(err error) error {
	return fmt.Errorf("%w: %w", goEnroll.ErrIdentityUnavailable, err)
}
