package jwt

import (
	"crypto/ed25519"
	"crypto/rand"
	"errors"
	"testing"
	"time"

	gjwt "github.com/golang-jwt/jwt/v5"
)

type fakeClock struct{ now time.Time }

func (c *fakeClock) Now() time.Time { return c.now }

func newHSManager(t *testing.T, clock *fakeClock) *Manager {
	t.Helper()
	m, err := NewManager(Config{
		AccessTTL:     24 * time.Hour,
		RefreshTTL:    7 * 24 * time.Hour,
		SigningMethod: MethodHS256,
		PrivateKey:    []byte("0123456789abcdef0123456789abcdef"),
		RefreshKey:    []byte("fedcba9876543210fedcba9876543210"),
		Issuer:        "goenroll",
		Now:           clock.Now,
	})
	if err != nil {
		t.Fatalf("new manager: %v", err)
	}
	return m
}

var testSubject = Subject{AccountID: "acc-1", Username: "alice", Email: "a@x.com", SessionID: "sid-1"}

func TestIssueAndParseCarriesSubject(t *testing.T) {
	clock := &fakeClock{now: time.Now()}
	m := newHSManager(t, clock)

	access, exp, err := m.Issue(KindAccess, testSubject, "jti-1", clock.now)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	if !exp.Equal(clock.now.Add(24 * time.Hour)) {
		t.Fatalf("unexpected expiry %v", exp)
	}

	claims, err := m.ParseAccess(access)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if claims.AccountID != "acc-1" || claims.Username != "alice" || claims.Email != "a@x.com" || claims.SessionID != "sid-1" || claims.ID != "jti-1" {
		t.Fatalf("unexpected claims %+v", claims)
	}
}

func TestKindsAreNotInterchangeable(t *testing.T) {
	clock := &fakeClock{now: time.Now()}
	m := newHSManager(t, clock)

	refresh, _, err := m.Issue(KindRefresh, testSubject, "secret", clock.now)
	if err != nil {
		t.Fatalf("issue refresh: %v", err)
	}
	if _, err := m.ParseAccess(refresh); err == nil {
		t.Fatal("expected refresh token to be rejected as access token")
	}
	if _, err := m.ParseRefresh(refresh); err != nil {
		t.Fatalf("parse refresh: %v", err)
	}
}

func TestExpiryFollowsConfiguredClock(t *testing.T) {
	clock := &fakeClock{now: time.Now()}
	m := newHSManager(t, clock)

	access, _, _ := m.Issue(KindAccess, testSubject, "jti", clock.now)
	clock.now = clock.now.Add(24*time.Hour + time.Second)

	if _, err := m.ParseAccess(access); !errors.Is(err, gjwt.ErrTokenExpired) {
		t.Fatalf("expected ErrTokenExpired, got %v", err)
	}
}

func TestParseRejectsWrongAlgorithm(t *testing.T) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	m, err := NewManager(Config{
		AccessTTL:     time.Minute,
		RefreshTTL:    time.Hour,
		SigningMethod: MethodEd25519,
		PrivateKey:    priv,
		PublicKey:     pub,
	})
	if err != nil {
		t.Fatalf("new manager: %v", err)
	}

	claims := Claims{SessionID: "s1", AccountID: "a", Kind: KindAccess, RegisteredClaims: gjwt.RegisteredClaims{ExpiresAt: gjwt.NewNumericDate(time.Now().Add(time.Minute))}}
	forged, err := gjwt.NewWithClaims(gjwt.SigningMethodHS256, claims).SignedString([]byte("secret-secret-secret-secret-1234"))
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	if _, err := m.ParseAccess(forged); err == nil {
		t.Fatal("expected wrong algorithm to be rejected")
	}

	good, _, err := m.Issue(KindAccess, testSubject, "jti", time.Now())
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	if _, err := m.ParseAccess(good); err != nil {
		t.Fatalf("expected ed25519 token to parse: %v", err)
	}
}

func TestNewManagerValidation(t *testing.T) {
	cases := []Config{
		{RefreshTTL: time.Hour, SigningMethod: MethodHS256, PrivateKey: make([]byte, 32)},
		{AccessTTL: time.Hour, RefreshTTL: time.Hour, SigningMethod: MethodHS256, PrivateKey: []byte("short")},
		{AccessTTL: time.Hour, RefreshTTL: time.Hour, SigningMethod: "rs512", PrivateKey: make([]byte, 32)},
		{AccessTTL: time.Hour, RefreshTTL: time.Hour, SigningMethod: MethodEd25519},
	}
	for i, cfg := range cases {
		if _, err := NewManager(cfg); err == nil {
			t.Fatalf("case %d: expected validation error", i)
		}
	}
}
