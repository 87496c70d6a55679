package password

import (
	"errors"
	"testing"

	"golang.org/x/crypto/bcrypt"
)

func TestMultiVerifiesBothSchemes(t *testing.T) {
	a, err := NewArgon2(argonTestConfig())
	if err != nil {
		t.Fatalf("NewArgon2 error: %v", err)
	}
	b, err := NewBcrypt(bcrypt.MinCost)
	if err != nil {
		t.Fatalf("NewBcrypt error: %v", err)
	}
	m := NewMulti(b, a, b)

	argonHash, err := a.Hash("shared-secret")
	if err != nil {
		t.Fatalf("argon Hash error: %v", err)
	}
	bcryptHash, err := m.Hash("shared-secret")
	if err != nil {
		t.Fatalf("multi Hash error: %v", err)
	}
	if Scheme(bcryptHash) != "bcrypt" {
		t.Fatalf("primary should be bcrypt, got %q", bcryptHash)
	}

	for _, h := range []string{argonHash, bcryptHash} {
		ok, err := m.Verify("shared-secret", h)
		if err != nil || !ok {
			t.Fatalf("Verify(%s): ok=%v err=%v", Scheme(h), ok, err)
		}
	}
}

func TestMultiRejectsUnknownScheme(t *testing.T) {
	b, _ := NewBcrypt(bcrypt.MinCost)
	m := NewMulti(b, nil, b)

	if _, err := m.Verify("anything1", "plain:text"); !errors.Is(err, ErrUnsupportedHash) {
		t.Fatalf("expected ErrUnsupportedHash, got %v", err)
	}
	if _, err := m.Verify("anything1", "$argon2id$v=19$m=65536,t=3,p=2$c2FsdA$aGFzaA"); !errors.Is(err, ErrUnsupportedHash) {
		t.Fatalf("argon disabled: expected ErrUnsupportedHash, got %v", err)
	}
}

func TestScheme(t *testing.T) {
	cases := map[string]string{
		"$argon2id$v=19$m=1,t=1,p=1$a$b": "argon2id",
		"$2b$10$abcdef":                  "bcrypt",
		"$2y$10$abcdef":                  "bcrypt",
		"plaintext":                      "",
	}
	for in, want := range cases {
		if got := Scheme(in); got != want {
			t.Errorf("Scheme(%q) = %q, want %q", in, got, want)
		}
	}
}
