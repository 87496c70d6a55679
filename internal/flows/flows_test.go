package flows

import (
	"testing"
	"time"
)

func TestDecideScanTable(t *testing.T) {
	cases := []struct {
		name  string
		state AccountState
		want  ScanOutcome
	}{
		{"no account", AccountState{}, ScanFresh},
		{"claimed", AccountState{Exists: true, IsRegistered: true}, ScanClaimed},
		{"logged out", AccountState{Exists: true, IsRegistered: true, IsLoggedOut: true}, ScanReset},
		{"reset pending", AccountState{Exists: true, IsLoggedOut: true}, ScanReset},
		{"unregistered", AccountState{Exists: true}, ScanResume},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := DecideScan(tc.state); got != tc.want {
				t.Fatalf("DecideScan(%+v) = %s, want %s", tc.state, got, tc.want)
			}
		})
	}
	if ScanClaimed.Proceeds() || !ScanReset.Proceeds() {
		t.Fatal("unexpected Proceeds result")
	}
}

func TestReauthWindowBoundaryIsInclusive(t *testing.T) {
	now := time.Date(2026, 1, 2, 12, 0, 0, 0, time.UTC)
	window := 24 * time.Hour

	justInside := now.Add(-window + time.Nanosecond)
	exact := now.Add(-window)

	if ReauthDue(&justInside, now, window) {
		t.Fatal("expected no reauth just inside the window")
	}
	if !ReauthDue(&exact, now, window) {
		t.Fatal("expected reauth exactly at the window boundary")
	}
	if !ReauthDue(nil, now, window) {
		t.Fatal("expected reauth when never logged in")
	}
}

func TestDecideQuickLoginOrder(t *testing.T) {
	now := time.Now()
	recent := now.Add(-time.Hour)
	stale := now.Add(-25 * time.Hour)
	window := 24 * time.Hour

	cases := []struct {
		name  string
		state QuickLoginState
		want  QuickLoginDecision
	}{
		{"missing", QuickLoginState{}, QuickLoginAccountNotFound},
		{"inactive", QuickLoginState{AccountFound: true, IsRegistered: true}, QuickLoginAccountInactive},
		{"after logout", QuickLoginState{AccountFound: true, IsActive: true, IsRegistered: true, IsLoggedOut: true}, QuickLoginExpiredAfterLogout},
		{"no session", QuickLoginState{AccountFound: true, IsActive: true, IsRegistered: true}, QuickLoginNoActiveSession},
		{"stale login", QuickLoginState{AccountFound: true, IsActive: true, IsRegistered: true, HasQualifyingSession: true, LastLoginAt: &stale}, QuickLoginReauthRequired},
		{"allowed", QuickLoginState{AccountFound: true, IsActive: true, IsRegistered: true, HasQualifyingSession: true, LastLoginAt: &recent}, QuickLoginAllowed},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := DecideQuickLogin(tc.state, now, window); got != tc.want {
				t.Fatalf("got %d, want %d", got, tc.want)
			}
		})
	}
}

func TestPickQuickLoginSessionPrefersDevice(t *testing.T) {
	now := time.Now()
	sessions := []SessionView{
		{ID: "old-phone", DeviceID: "phone", Active: true, QuickLoginEnabled: true, QuickLoginExpiresAt: now.Add(time.Hour), LastActivityAt: now.Add(-2 * time.Hour)},
		{ID: "tablet", DeviceID: "tablet", Active: true, QuickLoginEnabled: true, QuickLoginExpiresAt: now.Add(time.Hour), LastActivityAt: now.Add(-time.Minute)},
		{ID: "expired", DeviceID: "phone", Active: true, QuickLoginEnabled: true, QuickLoginExpiresAt: now.Add(-time.Second), LastActivityAt: now},
		{ID: "inactive", DeviceID: "phone", QuickLoginEnabled: true, QuickLoginExpiresAt: now.Add(time.Hour), LastActivityAt: now},
	}

	got, ok := PickQuickLoginSession(sessions, "phone", now)
	if !ok || got.ID != "old-phone" {
		t.Fatalf("expected device session, got %+v ok=%v", got, ok)
	}
	got, ok = PickQuickLoginSession(sessions, "laptop", now)
	if !ok || got.ID != "tablet" {
		t.Fatalf("expected most recent session, got %+v ok=%v", got, ok)
	}
	if HasQualifying(sessions[2:], now) {
		t.Fatal("expected no qualifying session among expired and inactive")
	}
}

func TestDecideRecovery(t *testing.T) {
	if p := DecideRecovery(RecoveryState{}); p.Action != ActionQRRegistrationRequired {
		t.Fatalf("missing account: got %+v", p)
	}
	if p := DecideRecovery(RecoveryState{Found: true}); p.Action != ActionQRRegistrationRequired || p.Repair {
		t.Fatalf("no password: got %+v", p)
	}
	p := DecideRecovery(RecoveryState{Found: true, HasPassword: true, HasActiveSession: true})
	if p.Action != ActionRetryQuickLogin || !p.Repair {
		t.Fatalf("repair with session: got %+v", p)
	}
	p = DecideRecovery(RecoveryState{Found: true, HasPassword: true, IsActive: true, IsRegistered: true})
	if p.Action != ActionPasswordLoginRequired || p.Repair {
		t.Fatalf("healthy without session: got %+v", p)
	}
}
