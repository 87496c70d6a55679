package internal

import (
	"strings"
	"testing"
)

func TestSessionIDRoundTrip(t *testing.T) {
	sid, err := NewSessionID()
	if err != nil {
		t.Fatalf("NewSessionID failed: %v", err)
	}
	parsed, err := ParseSessionID(sid.String())
	if err != nil {
		t.Fatalf("ParseSessionID failed: %v", err)
	}
	if parsed != sid {
		t.Fatal("expected parsed session id to match original")
	}
}

func TestNewNumericCodeDigitsOnly(t *testing.T) {
	for i := 0; i < 50; i++ {
		code, err := NewNumericCode(6)
		if err != nil {
			t.Fatalf("NewNumericCode failed: %v", err)
		}
		if len(code) != 6 {
			t.Fatalf("expected 6 digits, got %q", code)
		}
		if strings.Trim(code, "0123456789") != "" {
			t.Fatalf("expected numeric code, got %q", code)
		}
	}
}

func TestNewNumericCodeRejectsBadLength(t *testing.T) {
	if _, err := NewNumericCode(2); err == nil {
		t.Fatal("expected error for 2 digits")
	}
	if _, err := NewNumericCode(11); err == nil {
		t.Fatal("expected error for 11 digits")
	}
}

func TestHashSecretStableAndCompared(t *testing.T) {
	secret, err := NewRefreshSecret()
	if err != nil {
		t.Fatalf("NewRefreshSecret failed: %v", err)
	}
	a := HashSecret(secret)
	b := HashSecret(secret)
	if !EqualHash(a, b) {
		t.Fatal("expected equal hashes for the same secret")
	}
	if EqualHash(a, HashSecret(secret+"x")) {
		t.Fatal("expected different hashes for different secrets")
	}
	if EqualHash(a, a[:10]) {
		t.Fatal("expected length mismatch to compare unequal")
	}
}

// FuzzParseSessionID exercises session id parsing with arbitrary strings.
func FuzzParseSessionID(f *testing.F) {
	f.Add("")
	f.Add("abc")
	f.Add("!!!not-base64!!!")
	if sid, err := NewSessionID(); err == nil {
		f.Add(sid.String())
	}

	f.Fuzz(func(t *testing.T, input string) {
		sid, err := ParseSessionID(input)
		if err != nil {
			return
		}
		again, err := ParseSessionID(sid.String())
		if err != nil || again != sid {
			t.Fatalf("round trip mismatch for %q", input)
		}
	})
}
