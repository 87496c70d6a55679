package goEnroll

import (
	"errors"
	"fmt"
	"testing"
)

func TestReason(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{nil, ""},
		{ErrInvalidPayload, "invalid_payload"},
		{ErrAlreadyRegistered, "already_registered"},
		{ErrSessionExpired, "session_expired"},
		{ErrSessionExpiredAfterLogout, "session_expired_after_logout"},
		{ErrReauthRequired, "reauth_required"},
		{fmt.Errorf("%w: dial tcp", ErrIdentityUnavailable), "identity_unavailable"},
		{fmt.Errorf("%w: redis down", ErrStoreUnavailable), "store_unavailable"},
		{withHint(ErrReauthRequired, "jdoe", "jdoe@example.com"), "reauth_required"},
		{errors.New("boom"), "internal_error"},
	}
	for _, tc := range tests {
		if got := Reason(tc.err); got != tc.want {
			t.Fatalf("Reason(%v) = %q, want %q", tc.err, got, tc.want)
		}
	}
}

func TestReasonsAreUnique(t *testing.T) {
	seen := make(map[string]bool, len(reasons))
	for _, r := range reasons {
		if seen[r.reason] {
			t.Fatalf("duplicate reason %q", r.reason)
		}
		seen[r.reason] = true
	}
}

func TestIdentityHintError(t *testing.T) {
	err := fmt.Errorf("quick login: %w", withHint(ErrSessionExpiredAfterLogout, "jdoe", "jdoe@example.com"))

	if !errors.Is(err, ErrSessionExpiredAfterLogout) {
		t.Fatalf("hint must unwrap to its kind")
	}
	if errors.Is(err, ErrSessionExpired) {
		t.Fatalf("hint must not match a different kind")
	}
	var hint *IdentityHintError
	if !errors.As(err, &hint) {
		t.Fatalf("expected IdentityHintError")
	}
	if hint.Username != "jdoe" || hint.Email != "jdoe@example.com" {
		t.Fatalf("unexpected hint %+v", hint)
	}
	if hint.Error() != ErrSessionExpiredAfterLogout.Error() {
		t.Fatalf("unexpected message %q", hint.Error())
	}
}

func TestCanonicalRef(t *testing.T) {
	for _, in := range []string{"EMP0042", "emp-0042", "Emp 0042", " emp_0042 "} {
		if got := CanonicalRef(in); got != "EMP0042" {
			t.Fatalf("CanonicalRef(%q) = %q", in, got)
		}
	}
	if got := CanonicalRef("--"); got != "" {
		t.Fatalf("expected empty ref, got %q", got)
	}
}

func TestNormalizeEmail(t *testing.T) {
	if got := NormalizeEmail("  JDoe@Example.COM "); got != "jdoe@example.com" {
		t.Fatalf("unexpected email %q", got)
	}
}
