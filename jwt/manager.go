package jwt

import (
	"crypto/ed25519"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// SigningMethod selects the JWS algorithm.
type SigningMethod string

const (
	MethodEd25519 SigningMethod = "ed25519"
	MethodHS256   SigningMethod = "hs256"
)

// Kind distinguishes access from refresh tokens.
type Kind string

const (
	KindAccess  Kind = "access"
	KindRefresh Kind = "refresh"
)

// ErrWrongKind is returned when a token of the other kind is presented.
var ErrWrongKind = errors.New("jwt: wrong token kind")

// Config controls signing and validation.
type Config struct {
	AccessTTL     time.Duration
	RefreshTTL    time.Duration
	SigningMethod SigningMethod
	PrivateKey    []byte
	PublicKey     []byte
	// RefreshKey, when set with hs256, signs refresh tokens with a separate
	// secret.
	RefreshKey   []byte
	Issuer       string
	Audience     string
	Leeway       time.Duration
	MaxFutureIAT time.Duration
	KeyID        string
	// Now overrides the validation clock.
	Now func() time.Time
}

// Manager signs and parses tokens.
type Manager struct {
	config Config
}

// Claims is the payload of both token kinds. For refresh tokens ID carries
// the refresh secret, whose hash is stored with the session.
type Claims struct {
	AccountID string `json:"aid"`
	Username  string `json:"usr"`
	Email     string `json:"eml"`
	SessionID string `json:"sid"`
	Kind      Kind   `json:"typ"`
	jwt.RegisteredClaims
}

// Subject identifies who a token is issued for.
type Subject struct {
	AccountID string
	Username  string
	Email     string
	SessionID string
}

// NewManager validates cfg and returns a Manager.
func NewManager(cfg Config) (*Manager, error) {
	if cfg.AccessTTL <= 0 || cfg.RefreshTTL <= 0 {
		return nil, errors.New("invalid TTL configuration")
	}
	if cfg.Leeway < 0 || cfg.Leeway > 2*time.Minute {
		return nil, errors.New("invalid leeway configuration")
	}
	if cfg.MaxFutureIAT == 0 {
		cfg.MaxFutureIAT = 10 * time.Minute
	}
	if cfg.MaxFutureIAT < 0 || cfg.MaxFutureIAT > 24*time.Hour {
		return nil, errors.New("invalid MaxFutureIAT configuration")
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	cfg.KeyID = strings.TrimSpace(cfg.KeyID)

	switch cfg.SigningMethod {
	case MethodHS256:
		if len(cfg.PrivateKey) < 32 {
			return nil, errors.New("hs256 requires a private key of at least 32 bytes")
		}
		if len(cfg.RefreshKey) > 0 && len(cfg.RefreshKey) < 32 {
			return nil, errors.New("hs256 refresh key must be at least 32 bytes")
		}
	case MethodEd25519:
		if _, err := parseEdPrivateKey(cfg.PrivateKey); err != nil {
			return nil, err
		}
		if _, err := parseEdPublicKey(cfg.PublicKey); err != nil {
			return nil, err
		}
		if len(cfg.RefreshKey) > 0 {
			return nil, errors.New("refresh key is only supported with hs256")
		}
	default:
		return nil, errors.New("unsupported signing method")
	}

	return &Manager{config: cfg}, nil
}

// Issue signs a token of kind for sub. id becomes the jti claim.
func (j *Manager) Issue(kind Kind, sub Subject, id string, issuedAt time.Time) (string, time.Time, error) {
	ttl := j.config.AccessTTL
	if kind == KindRefresh {
		ttl = j.config.RefreshTTL
	}
	expiresAt := issuedAt.Add(ttl)

	claims := Claims{
		AccountID: sub.AccountID,
		Username:  sub.Username,
		Email:     sub.Email,
		SessionID: sub.SessionID,
		Kind:      kind,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        id,
			Subject:   sub.AccountID,
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			IssuedAt:  jwt.NewNumericDate(issuedAt),
			Issuer:    j.config.Issuer,
		},
	}
	if j.config.Audience != "" {
		claims.Audience = jwt.ClaimStrings{j.config.Audience}
	}

	token := jwt.NewWithClaims(j.method(), claims)
	if j.config.KeyID != "" {
		token.Header["kid"] = j.config.KeyID
	}

	signKey, err := j.signKey(kind)
	if err != nil {
		return "", time.Time{}, err
	}

	signed, err := token.SignedString(signKey)
	if err != nil {
		return "", time.Time{}, err
	}
	return signed, expiresAt, nil
}

// ParseAccess verifies an access token.
func (j *Manager) ParseAccess(tokenStr string) (*Claims, error) {
	return j.parse(tokenStr, KindAccess)
}

// ParseRefresh verifies a refresh token.
func (j *Manager) ParseRefresh(tokenStr string) (*Claims, error) {
	return j.parse(tokenStr, KindRefresh)
}

func (j *Manager) parse(tokenStr string, kind Kind) (*Claims, error) {
	options := []jwt.ParserOption{
		jwt.WithValidMethods([]string{j.method().Alg()}),
		jwt.WithTimeFunc(j.config.Now),
		jwt.WithExpirationRequired(),
	}
	if j.config.Leeway > 0 {
		options = append(options, jwt.WithLeeway(j.config.Leeway))
	}
	if j.config.Issuer != "" {
		options = append(options, jwt.WithIssuer(j.config.Issuer))
	}
	if j.config.Audience != "" {
		options = append(options, jwt.WithAudience(j.config.Audience))
	}

	parser := jwt.NewParser(options...)
	token, err := parser.ParseWithClaims(tokenStr, &Claims{}, func(t *jwt.Token) (interface{}, error) {
		if t.Method.Alg() != j.method().Alg() {
			return nil, fmt.Errorf("unexpected signing algorithm: %s", t.Method.Alg())
		}
		if j.config.KeyID != "" {
			kid, _ := t.Header["kid"].(string)
			if kid != j.config.KeyID {
				return nil, errors.New("unknown kid")
			}
		}
		return j.verifyKey(kind)
	})
	if err != nil {
		return nil, err
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, jwt.ErrTokenInvalidClaims
	}
	if claims.Kind != kind {
		return nil, ErrWrongKind
	}
	if claims.SessionID == "" || claims.AccountID == "" {
		return nil, jwt.ErrTokenInvalidClaims
	}
	if claims.IssuedAt != nil {
		maxAllowed := j.config.Now().Add(j.config.MaxFutureIAT)
		if claims.IssuedAt.Time.After(maxAllowed) {
			return nil, errors.New("token iat too far in the future")
		}
	}

	return claims, nil
}

func (j *Manager) method() jwt.SigningMethod {
	switch j.config.SigningMethod {
	case MethodHS256:
		return jwt.SigningMethodHS256
	default:
		return jwt.SigningMethodEdDSA
	}
}

func (j *Manager) signKey(kind Kind) (interface{}, error) {
	switch j.config.SigningMethod {
	case MethodHS256:
		if kind == KindRefresh && len(j.config.RefreshKey) > 0 {
			return j.config.RefreshKey, nil
		}
		return j.config.PrivateKey, nil
	default:
		return parseEdPrivateKey(j.config.PrivateKey)
	}
}

func (j *Manager) verifyKey(kind Kind) (interface{}, error) {
	switch j.config.SigningMethod {
	case MethodHS256:
		if kind == KindRefresh && len(j.config.RefreshKey) > 0 {
			return j.config.RefreshKey, nil
		}
		return j.config.PrivateKey, nil
	default:
		return parseEdPublicKey(j.config.PublicKey)
	}
}

func parseEdPrivateKey(key []byte) (ed25519.PrivateKey, error) {
	if len(key) == ed25519.PrivateKeySize {
		return ed25519.PrivateKey(key), nil
	}
	parsed, err := jwt.ParseEdPrivateKeyFromPEM(key)
	if err != nil {
		return nil, errors.New("invalid ed25519 private key")
	}
	edKey, ok := parsed.(ed25519.PrivateKey)
	if !ok {
		return nil, errors.New("invalid ed25519 private key type")
	}
	return edKey, nil
}

func parseEdPublicKey(key []byte) (ed25519.PublicKey, error) {
	if len(key) == ed25519.PublicKeySize {
		return ed25519.PublicKey(key), nil
	}
	parsed, err := jwt.ParseEdPublicKeyFromPEM(key)
	if err != nil {
		return nil, errors.New("invalid ed25519 public key")
	}
	edKey, ok := parsed.(ed25519.PublicKey)
	if !ok {
		return nil, errors.New("invalid ed25519 public key type")
	}
	return edKey, nil
}
