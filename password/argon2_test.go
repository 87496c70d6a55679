package password

import (
	"errors"
	"fmt"
	"strings"
	"testing"

	"golang.org/x/crypto/bcrypt"
)

// argonTestConfig is the cheapest configuration NewArgon2 accepts.
func argonTestConfig() Config {
	return Config{
		Memory:      8 * 1024,
		Time:        1,
		Parallelism: 1,
		SaltLength:  16,
		KeyLength:   32,
	}
}

func mustArgon2(t *testing.T, cfg Config) *Argon2 {
	t.Helper()
	a, err := NewArgon2(cfg)
	if err != nil {
		t.Fatalf("NewArgon2 error: %v", err)
	}
	return a
}

func TestArgon2EnrollmentPasswords(t *testing.T) {
	a := mustArgon2(t, argonTestConfig())
	wantPrefix := fmt.Sprintf("$argon2id$v=19$m=%d,t=%d,p=%d$", 8*1024, 1, 1)

	for _, pwd := range []string{"new-password-1", "pässwörd-ünïcode", strings.Repeat("z", 200)} {
		hash, err := a.Hash(pwd)
		if err != nil {
			t.Fatalf("Hash(%d bytes) error: %v", len(pwd), err)
		}
		if !strings.HasPrefix(hash, wantPrefix) || Scheme(hash) != "argon2id" {
			t.Fatalf("unexpected encoding %q", hash)
		}

		ok, err := a.Verify(pwd, hash)
		if err != nil || !ok {
			t.Fatalf("Verify(%d bytes): ok=%v err=%v", len(pwd), ok, err)
		}
		ok, err = a.Verify(pwd+"x", hash)
		if err != nil || ok {
			t.Fatalf("Verify(altered): ok=%v err=%v", ok, err)
		}
	}
}

func TestArgon2SaltsEveryHash(t *testing.T) {
	a := mustArgon2(t, argonTestConfig())
	first, err := a.Hash("same-password")
	if err != nil {
		t.Fatalf("Hash error: %v", err)
	}
	second, err := a.Hash("same-password")
	if err != nil {
		t.Fatalf("Hash error: %v", err)
	}
	if first == second {
		t.Fatal("two hashes of one password must differ")
	}
}

func TestArgon2PasswordLengthBounds(t *testing.T) {
	tests := []struct {
		name      string
		maxBytes  int
		password  string
		hashErr   error
		verifyErr error
	}{
		{name: "empty", password: "", hashErr: ErrPasswordTooShort},
		{name: "below minimum", password: "seven77", hashErr: ErrPasswordTooShort},
		{name: "at minimum", password: strings.Repeat("m", DefaultMinPasswordBytes)},
		{name: "default bound", password: strings.Repeat("d", DefaultMaxPasswordBytes)},
		{name: "past default bound", password: strings.Repeat("d", DefaultMaxPasswordBytes+1), hashErr: ErrPasswordTooLong, verifyErr: ErrPasswordTooLong},
		{name: "configured bound", maxBytes: 64, password: strings.Repeat("c", 64)},
		{name: "past configured bound", maxBytes: 64, password: strings.Repeat("c", 65), hashErr: ErrPasswordTooLong, verifyErr: ErrPasswordTooLong},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			cfg := argonTestConfig()
			cfg.MaxPasswordBytes = tc.maxBytes
			a := mustArgon2(t, cfg)

			hash, err := a.Hash(tc.password)
			if tc.hashErr != nil {
				if !errors.Is(err, tc.hashErr) {
					t.Fatalf("Hash: expected %v, got %v", tc.hashErr, err)
				}
			} else if err != nil {
				t.Fatalf("Hash error: %v", err)
			}

			if hash == "" {
				if hash, err = a.Hash("valid-password-1"); err != nil {
					t.Fatalf("Hash error: %v", err)
				}
			}
			_, err = a.Verify(tc.password, hash)
			if tc.verifyErr != nil {
				if !errors.Is(err, tc.verifyErr) {
					t.Fatalf("Verify: expected %v, got %v", tc.verifyErr, err)
				}
			} else if err != nil {
				t.Fatalf("Verify error: %v", err)
			}
		})
	}
}

func TestNewArgon2RejectsWeakConfig(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"memory", func(c *Config) { c.Memory = 4096 }},
		{"time", func(c *Config) { c.Time = 0 }},
		{"parallelism", func(c *Config) { c.Parallelism = 0 }},
		{"salt", func(c *Config) { c.SaltLength = 8 }},
		{"key", func(c *Config) { c.KeyLength = 8 }},
		{"max bytes", func(c *Config) { c.MaxPasswordBytes = -1 }},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			cfg := argonTestConfig()
			tc.mutate(&cfg)
			if _, err := NewArgon2(cfg); err == nil {
				t.Fatal("expected config to be rejected")
			}
		})
	}
}

func TestArgon2NeedsUpgrade(t *testing.T) {
	stored, err := mustArgon2(t, argonTestConfig()).Hash("stored-password")
	if err != nil {
		t.Fatalf("Hash error: %v", err)
	}

	tests := []struct {
		name   string
		mutate func(*Config)
		want   bool
	}{
		{"same parameters", func(*Config) {}, false},
		{"more memory", func(c *Config) { c.Memory = 16 * 1024 }, true},
		{"more passes", func(c *Config) { c.Time = 2 }, true},
		{"more lanes", func(c *Config) { c.Parallelism = 2 }, true},
		{"other key length", func(c *Config) { c.KeyLength = 16 }, true},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			cfg := argonTestConfig()
			tc.mutate(&cfg)
			got, err := mustArgon2(t, cfg).NeedsUpgrade(stored)
			if err != nil {
				t.Fatalf("NeedsUpgrade error: %v", err)
			}
			if got != tc.want {
				t.Fatalf("NeedsUpgrade = %v, want %v", got, tc.want)
			}
		})
	}
}

func TestArgon2MalformedHashes(t *testing.T) {
	a := mustArgon2(t, argonTestConfig())
	good, err := a.Hash("stored-password")
	if err != nil {
		t.Fatalf("Hash error: %v", err)
	}
	parts := strings.Split(good, "$")

	tests := map[string]string{
		"not phc":        "not-a-phc-hash",
		"old version":    strings.Replace(good, "$v=19$", "$v=16$", 1),
		"weak memory":    strings.Replace(good, "m=8192", "m=1024", 1),
		"missing param":  strings.Replace(good, ",p=1", "", 1),
		"salt encoding":  strings.Join([]string{"", parts[1], parts[2], parts[3], "!!!", parts[5]}, "$"),
		"short salt":     strings.Join([]string{"", parts[1], parts[2], parts[3], "c2FsdA==", parts[5]}, "$"),
		"empty digest":   strings.Join([]string{"", parts[1], parts[2], parts[3], parts[4], ""}, "$"),
		"bcrypt digests": "$2a$04$abcdefghijklmnopqrstuu",
	}
	for name, hash := range tests {
		if _, err := a.Verify("stored-password", hash); err == nil {
			t.Errorf("%s: expected Verify to fail", name)
		}
	}

	other := strings.Replace(good, "$argon2id$", "$argon2i$", 1)
	if _, err := a.Verify("stored-password", other); !errors.Is(err, ErrUnsupportedHash) {
		t.Fatalf("argon2i: expected ErrUnsupportedHash, got %v", err)
	}
}

func TestMultiArgonPrimaryKeepsBcryptAccounts(t *testing.T) {
	a := mustArgon2(t, argonTestConfig())
	b, err := NewBcrypt(bcrypt.MinCost)
	if err != nil {
		t.Fatalf("NewBcrypt error: %v", err)
	}
	legacy, err := b.Hash("registered-2023")
	if err != nil {
		t.Fatalf("bcrypt Hash error: %v", err)
	}

	m := NewMulti(a, a, b)
	fresh, err := m.Hash("registered-today")
	if err != nil {
		t.Fatalf("Multi Hash error: %v", err)
	}
	if Scheme(fresh) != "argon2id" {
		t.Fatalf("new hashes should use the primary, got %q", fresh)
	}

	for pwd, hash := range map[string]string{"registered-2023": legacy, "registered-today": fresh} {
		ok, err := m.Verify(pwd, hash)
		if err != nil || !ok {
			t.Fatalf("Verify(%s): ok=%v err=%v", Scheme(hash), ok, err)
		}
	}

	// Input bounds follow the scheme of the stored hash.
	long := strings.Repeat("l", 100)
	longHash, err := m.Hash(long)
	if err != nil {
		t.Fatalf("argon2 should accept %d bytes: %v", len(long), err)
	}
	if ok, err := m.Verify(long, longHash); err != nil || !ok {
		t.Fatalf("Verify(long argon2): ok=%v err=%v", ok, err)
	}
	if _, err := m.Verify(long, legacy); !errors.Is(err, ErrPasswordTooLong) {
		t.Fatalf("bcrypt bound: expected ErrPasswordTooLong, got %v", err)
	}

	argonOnly := NewMulti(a, a, nil)
	if _, err := argonOnly.Verify("registered-2023", legacy); !errors.Is(err, ErrUnsupportedHash) {
		t.Fatalf("bcrypt disabled: expected ErrUnsupportedHash, got %v", err)
	}
}
