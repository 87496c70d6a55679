package goEnroll_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	goEnroll "github.com/MrEthical07/goEnroll"
)

func TestLoginIssuesSessionAndBinding(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()
	reg := h.enroll(t)
	now := h.clock.Now()

	bundle, err := h.engine.Login(ctx, "JDoe", testNewPassword, goEnroll.DeviceInfo{DeviceID: " device-1 ", Platform: "android"})
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	if bundle.User.ID != reg.Account.ID || bundle.User.Email != testEmail {
		t.Fatalf("unexpected user %+v", bundle.User)
	}
	if bundle.Tokens.AccessToken == "" || bundle.Tokens.RefreshToken == "" {
		t.Fatalf("missing tokens")
	}
	if bundle.Tokens.ExpiresIn != int64((24 * time.Hour).Seconds()) {
		t.Fatalf("unexpected expiresIn %d", bundle.Tokens.ExpiresIn)
	}
	if !bundle.Session.QuickLoginEnabled || !bundle.Session.QuickLoginExpiresAt.Equal(now.Add(30*24*time.Hour)) {
		t.Fatalf("unexpected session descriptor %+v", bundle.Session)
	}
	if !bundle.Device.Attempted || !bundle.Device.Succeeded {
		t.Fatalf("expected device binding, got %+v", bundle.Device)
	}

	p, err := h.engine.ValidateAccess(ctx, bundle.Tokens.AccessToken)
	if err != nil {
		t.Fatalf("validate: %v", err)
	}
	if p.AccountID != reg.Account.ID || p.SessionID != bundle.Session.SessionID || p.DeviceID != "device-1" {
		t.Fatalf("unexpected principal %+v", p)
	}

	a := h.account(t, reg.Account.ID)
	if a.LastLoginAt == nil || !a.LastLoginAt.Equal(now) || a.LastPasswordCheck == nil {
		t.Fatalf("login not recorded: %+v", a)
	}
}

func TestLoginFailures(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()
	h.enroll(t)

	tests := []struct {
		name     string
		username string
		password string
		want     error
	}{
		{name: "unknown user", username: "nobody", password: testNewPassword, want: goEnroll.ErrInvalidCredentials},
		{name: "wrong password", username: testUsername, password: "wrong-password", want: goEnroll.ErrInvalidCredentials},
		{name: "empty username", username: " ", password: testNewPassword, want: goEnroll.ErrInvalidInput},
		{name: "empty password", username: testUsername, password: "", want: goEnroll.ErrInvalidInput},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := h.engine.Login(ctx, tc.username, tc.password, goEnroll.DeviceInfo{})
			requireErr(t, err, tc.want)
		})
	}
}

func TestLoginInactiveAccountRejected(t *testing.T) {
	h := newHarness(t, nil)
	reg := h.enroll(t)
	if err := h.accounts.SetActive(reg.Account.ID, false); err != nil {
		t.Fatalf("deactivate: %v", err)
	}

	_, err := h.engine.Login(context.Background(), testUsername, testNewPassword, goEnroll.DeviceInfo{})
	requireErr(t, err, goEnroll.ErrInvalidCredentials)
}

func TestLoginPasswordAuthority(t *testing.T) {
	t.Run("local then legacy", func(t *testing.T) {
		h := newHarness(t, nil)
		h.enroll(t)
		if _, err := h.engine.Login(context.Background(), testUsername, testLegacyPass, goEnroll.DeviceInfo{}); err != nil {
			t.Fatalf("legacy fallback login: %v", err)
		}
	})

	t.Run("local only", func(t *testing.T) {
		h := newHarness(t, func(cfg *goEnroll.Config) {
			cfg.Password.Authority = goEnroll.AuthorityLocal
		})
		h.enroll(t)
		_, err := h.engine.Login(context.Background(), testUsername, testLegacyPass, goEnroll.DeviceInfo{})
		requireErr(t, err, goEnroll.ErrInvalidCredentials)
	})

	t.Run("legacy only", func(t *testing.T) {
		h := newHarness(t, func(cfg *goEnroll.Config) {
			cfg.Password.Authority = goEnroll.AuthorityLegacy
		})
		h.enroll(t)
		_, err := h.engine.Login(context.Background(), testUsername, testNewPassword, goEnroll.DeviceInfo{})
		requireErr(t, err, goEnroll.ErrInvalidCredentials)
		if _, err := h.engine.Login(context.Background(), testUsername, testLegacyPass, goEnroll.DeviceInfo{}); err != nil {
			t.Fatalf("legacy login: %v", err)
		}
	})

	t.Run("gateway down", func(t *testing.T) {
		h := newHarness(t, nil)
		h.enroll(t)
		h.gateway.SetUnavailable(errors.New("timeout"))
		_, err := h.engine.Login(context.Background(), testUsername, "not-the-password", goEnroll.DeviceInfo{})
		requireErr(t, err, goEnroll.ErrIdentityUnavailable)
	})
}

func TestLoginRateLimited(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()
	h.enroll(t)

	for i := 0; i < 5; i++ {
		_, err := h.engine.Login(ctx, testUsername, "wrong-password", goEnroll.DeviceInfo{})
		requireErr(t, err, goEnroll.ErrInvalidCredentials)
	}
	_, err := h.engine.Login(ctx, testUsername, testNewPassword, goEnroll.DeviceInfo{})
	requireErr(t, err, goEnroll.ErrRateLimited)

	if got := h.engine.MetricsSnapshot().Counters[goEnroll.MetricLoginRateLimited]; got != 1 {
		t.Fatalf("expected one rate-limited login, got %d", got)
	}
}

func TestQuickLoginWithinWindowReusesDeviceSession(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()
	reg := h.enroll(t)
	first := h.login(t, "device-1")

	h.clock.Advance(time.Hour)
	bundle, err := h.engine.QuickLogin(ctx, reg.Account.ID, goEnroll.DeviceInfo{DeviceID: "device-1"})
	if err != nil {
		t.Fatalf("quick login: %v", err)
	}
	if bundle.Session.SessionID != first.Session.SessionID {
		t.Fatalf("expected session reuse, got %s want %s", bundle.Session.SessionID, first.Session.SessionID)
	}
	if bundle.Tokens.AccessToken == first.Tokens.AccessToken {
		t.Fatalf("quick login must mint new tokens")
	}

	if _, err := h.engine.ValidateAccess(ctx, first.Tokens.AccessToken); !errors.Is(err, goEnroll.ErrUnauthenticated) {
		t.Fatalf("expected superseded access token to fail, got %v", err)
	}
	if _, err := h.engine.ValidateAccess(ctx, bundle.Tokens.AccessToken); err != nil {
		t.Fatalf("validate new token: %v", err)
	}
	if _, err := h.engine.Refresh(ctx, first.Tokens.RefreshToken); !errors.Is(err, goEnroll.ErrInvalidRefreshToken) {
		t.Fatalf("expected superseded refresh token to fail, got %v", err)
	}

	a := h.account(t, reg.Account.ID)
	if !a.LastLoginAt.Equal(h.clock.Now()) {
		t.Fatalf("quick login did not move lastLoginAt: %v", a.LastLoginAt)
	}
}

func TestQuickLoginOtherDeviceGetsOwnSession(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()
	reg := h.enroll(t)
	first := h.login(t, "device-1")

	bundle, err := h.engine.QuickLogin(ctx, reg.Account.ID, goEnroll.DeviceInfo{DeviceID: "device-2"})
	if err != nil {
		t.Fatalf("quick login: %v", err)
	}
	if bundle.Session.SessionID == first.Session.SessionID {
		t.Fatalf("expected a new session for device-2")
	}
	if _, err := h.engine.ValidateAccess(ctx, first.Tokens.AccessToken); err != nil {
		t.Fatalf("device-1 session should stay valid: %v", err)
	}
	p, err := h.engine.ValidateAccess(ctx, bundle.Tokens.AccessToken)
	if err != nil {
		t.Fatalf("validate device-2 token: %v", err)
	}
	if p.DeviceID != "device-2" {
		t.Fatalf("unexpected device %q", p.DeviceID)
	}
}

func TestQuickLoginWithoutDeviceKeepsStoredDevice(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()
	reg := h.enroll(t)
	phone := goEnroll.DeviceInfo{DeviceID: "device-1", Name: "Jane's phone", Platform: "android", Model: "Pixel 8"}
	first, err := h.engine.Login(ctx, testUsername, testNewPassword, phone)
	if err != nil {
		t.Fatalf("login: %v", err)
	}

	bundle, err := h.engine.QuickLogin(ctx, reg.Account.ID, goEnroll.DeviceInfo{})
	if err != nil {
		t.Fatalf("quick login: %v", err)
	}
	if bundle.Session.SessionID != first.Session.SessionID {
		t.Fatalf("expected session reuse")
	}
	p, err := h.engine.ValidateAccess(ctx, bundle.Tokens.AccessToken)
	if err != nil {
		t.Fatalf("validate: %v", err)
	}
	if p.DeviceID != "device-1" {
		t.Fatalf("unexpected device %q", p.DeviceID)
	}

	devices, err := h.engine.DevicesForAccount(ctx, reg.Account.ID)
	if err != nil {
		t.Fatalf("devices: %v", err)
	}
	if len(devices) != 1 || devices[0].Device != phone {
		t.Fatalf("device details lost: %+v", devices)
	}
}

func TestQuickLoginReauthBoundary(t *testing.T) {
	t.Run("just inside window", func(t *testing.T) {
		h := newHarness(t, nil)
		reg := h.enroll(t)
		h.login(t, "device-1")

		h.clock.Advance(24*time.Hour - time.Second)
		if _, err := h.engine.QuickLogin(context.Background(), reg.Account.ID, goEnroll.DeviceInfo{DeviceID: "device-1"}); err != nil {
			t.Fatalf("quick login: %v", err)
		}
	})

	t.Run("exactly at window", func(t *testing.T) {
		h := newHarness(t, nil)
		ctx := context.Background()
		reg := h.enroll(t)
		h.login(t, "device-1")

		h.clock.Advance(24 * time.Hour)
		_, err := h.engine.QuickLogin(ctx, reg.Account.ID, goEnroll.DeviceInfo{DeviceID: "device-1"})
		requireHint(t, err, goEnroll.ErrReauthRequired)
		if !h.account(t, reg.Account.ID).RequiresReauth {
			t.Fatalf("expected requiresReauth to be set")
		}

		h.login(t, "device-1")
		if h.account(t, reg.Account.ID).RequiresReauth {
			t.Fatalf("password login should clear requiresReauth")
		}
		if _, err := h.engine.QuickLogin(ctx, reg.Account.ID, goEnroll.DeviceInfo{DeviceID: "device-1"}); err != nil {
			t.Fatalf("quick login after reauth: %v", err)
		}
	})
}

func TestQuickLoginAfterLogout(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()
	reg := h.enroll(t)
	bundle := h.login(t, "device-1")
	h.login(t, "device-2")

	if _, err := h.engine.Logout(ctx, reg.Account.ID, bundle.Session.SessionID); err != nil {
		t.Fatalf("logout: %v", err)
	}
	for _, device := range []string{"device-1", "device-2", ""} {
		_, err := h.engine.QuickLogin(ctx, reg.Account.ID, goEnroll.DeviceInfo{DeviceID: device})
		requireHint(t, err, goEnroll.ErrSessionExpiredAfterLogout)
	}
	_, err := h.engine.QuickLogin(ctx, reg.Account.ID, goEnroll.DeviceInfo{})
	if got := goEnroll.Reason(err); got != "session_expired_after_logout" {
		t.Fatalf("unexpected reason %q", got)
	}
}

func TestQuickLoginRejections(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()
	reg := h.enroll(t)

	_, err := h.engine.QuickLogin(ctx, reg.Account.ID, goEnroll.DeviceInfo{DeviceID: "device-1"})
	requireErr(t, err, goEnroll.ErrNoActiveSession)

	_, err = h.engine.QuickLogin(ctx, "missing-account", goEnroll.DeviceInfo{})
	requireErr(t, err, goEnroll.ErrAccountNotFound)

	_, err = h.engine.QuickLogin(ctx, " ", goEnroll.DeviceInfo{})
	requireErr(t, err, goEnroll.ErrInvalidInput)

	h.login(t, "device-1")
	if err := h.accounts.SetActive(reg.Account.ID, false); err != nil {
		t.Fatalf("deactivate: %v", err)
	}
	_, err = h.engine.QuickLogin(ctx, reg.Account.ID, goEnroll.DeviceInfo{DeviceID: "device-1"})
	requireErr(t, err, goEnroll.ErrAccountInactive)
}

func TestQuickLoginDisabledSessions(t *testing.T) {
	h := newHarness(t, func(cfg *goEnroll.Config) {
		cfg.Session.QuickLoginEnabled = false
	})
	reg := h.enroll(t)
	bundle := h.login(t, "device-1")
	if bundle.Session.QuickLoginEnabled {
		t.Fatalf("quick login should be disabled on new sessions")
	}

	_, err := h.engine.QuickLogin(context.Background(), reg.Account.ID, goEnroll.DeviceInfo{DeviceID: "device-1"})
	requireErr(t, err, goEnroll.ErrNoActiveSession)
}

func TestRefreshRotatesTokens(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()
	h.enroll(t)
	first := h.login(t, "device-1")

	h.clock.Advance(time.Minute)
	next, err := h.engine.Refresh(ctx, first.Tokens.RefreshToken)
	if err != nil {
		t.Fatalf("refresh: %v", err)
	}
	if next.Session.SessionID != first.Session.SessionID {
		t.Fatalf("refresh must stay on the same session")
	}
	if next.Tokens.RefreshToken == first.Tokens.RefreshToken || next.Tokens.AccessToken == first.Tokens.AccessToken {
		t.Fatalf("refresh must mint new tokens")
	}

	_, err = h.engine.Refresh(ctx, first.Tokens.RefreshToken)
	requireErr(t, err, goEnroll.ErrInvalidRefreshToken)

	if _, err := h.engine.ValidateAccess(ctx, first.Tokens.AccessToken); !errors.Is(err, goEnroll.ErrUnauthenticated) {
		t.Fatalf("expected old access token to fail, got %v", err)
	}
	if _, err := h.engine.ValidateAccess(ctx, next.Tokens.AccessToken); err != nil {
		t.Fatalf("validate refreshed token: %v", err)
	}
	if _, err := h.engine.Refresh(ctx, next.Tokens.RefreshToken); err != nil {
		t.Fatalf("second rotation: %v", err)
	}
}

func TestRefreshConcurrentSingleWinner(t *testing.T) {
	h := newHarness(t, nil)
	h.enroll(t)
	bundle := h.login(t, "device-1")

	const workers = 16
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		success int
		other   []error
	)
	start := make(chan struct{})
	wg.Add(workers)
	for i := 0; i < workers; i++ {
		go func() {
			defer wg.Done()
			<-start
			_, err := h.engine.Refresh(context.Background(), bundle.Tokens.RefreshToken)
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				success++
			case !errors.Is(err, goEnroll.ErrInvalidRefreshToken):
				other = append(other, err)
			}
		}()
	}
	close(start)
	wg.Wait()

	if success != 1 {
		t.Fatalf("expected exactly one successful refresh, got %d", success)
	}
	if len(other) != 0 {
		t.Fatalf("unexpected errors: %v", other)
	}
}

func TestRefreshRejections(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()
	reg := h.enroll(t)
	bundle := h.login(t, "device-1")

	for _, tok := range []string{"", "garbage", bundle.Tokens.AccessToken} {
		_, err := h.engine.Refresh(ctx, tok)
		requireErr(t, err, goEnroll.ErrInvalidRefreshToken)
	}

	if err := h.accounts.SetActive(reg.Account.ID, false); err != nil {
		t.Fatalf("deactivate: %v", err)
	}
	_, err := h.engine.Refresh(ctx, bundle.Tokens.RefreshToken)
	requireErr(t, err, goEnroll.ErrInvalidRefreshToken)
}

func TestRefreshTokenExpires(t *testing.T) {
	h := newHarness(t, nil)
	h.enroll(t)
	bundle := h.login(t, "device-1")

	h.clock.Advance(7*24*time.Hour + time.Minute)
	_, err := h.engine.Refresh(context.Background(), bundle.Tokens.RefreshToken)
	requireErr(t, err, goEnroll.ErrInvalidRefreshToken)
}

func TestValidateAccessRejections(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()
	reg := h.enroll(t)
	bundle := h.login(t, "device-1")

	for _, tok := range []string{"", "garbage", bundle.Tokens.RefreshToken} {
		_, err := h.engine.ValidateAccess(ctx, tok)
		requireErr(t, err, goEnroll.ErrUnauthenticated)
	}

	h.clock.Advance(24*time.Hour + time.Minute)
	_, err := h.engine.ValidateAccess(ctx, bundle.Tokens.AccessToken)
	requireErr(t, err, goEnroll.ErrUnauthenticated)

	fresh := h.login(t, "device-1")
	if err := h.accounts.SetActive(reg.Account.ID, false); err != nil {
		t.Fatalf("deactivate: %v", err)
	}
	_, err = h.engine.ValidateAccess(ctx, fresh.Tokens.AccessToken)
	requireErr(t, err, goEnroll.ErrUnauthenticated)
}

func TestLogoutGlobalRevokesEverything(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()
	reg := h.enroll(t)
	one := h.login(t, "device-1")
	two := h.login(t, "device-2")

	res, err := h.engine.Logout(ctx, reg.Account.ID, one.Session.SessionID)
	if err != nil {
		t.Fatalf("logout: %v", err)
	}
	if res.Scope != goEnroll.LogoutGlobal || res.SessionsRevoked != 2 || res.BindingsRemoved != 2 {
		t.Fatalf("unexpected logout result %+v", res)
	}
	if !res.Account.Succeeded || !res.Sessions.Succeeded || !res.Bindings.Succeeded {
		t.Fatalf("expected all cleanup steps to succeed: %+v", res)
	}

	for _, b := range []*goEnroll.TokenBundle{one, two} {
		if _, err := h.engine.ValidateAccess(ctx, b.Tokens.AccessToken); !errors.Is(err, goEnroll.ErrUnauthenticated) {
			t.Fatalf("expected revoked access token, got %v", err)
		}
		if _, err := h.engine.Refresh(ctx, b.Tokens.RefreshToken); !errors.Is(err, goEnroll.ErrInvalidRefreshToken) {
			t.Fatalf("expected revoked refresh token, got %v", err)
		}
	}

	a := h.account(t, reg.Account.ID)
	if !a.IsLoggedOut || a.LastLogoutAt == nil {
		t.Fatalf("account not marked logged out: %+v", a)
	}

	saved, err := h.engine.SavedAccounts(ctx, "device-1")
	if err != nil {
		t.Fatalf("saved accounts: %v", err)
	}
	if len(saved) != 0 {
		t.Fatalf("expected no saved accounts after logout, got %d", len(saved))
	}

	again, err := h.engine.Logout(ctx, reg.Account.ID, "")
	if err != nil {
		t.Fatalf("repeat logout: %v", err)
	}
	if again.SessionsRevoked != 0 || again.BindingsRemoved != 0 {
		t.Fatalf("repeat logout should be a no-op: %+v", again)
	}
}

func TestLogoutSessionScope(t *testing.T) {
	h := newHarness(t, func(cfg *goEnroll.Config) {
		cfg.Logout.Scope = goEnroll.LogoutSession
	})
	ctx := context.Background()
	reg := h.enroll(t)
	one := h.login(t, "device-1")
	two := h.login(t, "device-2")

	res, err := h.engine.Logout(ctx, reg.Account.ID, one.Session.SessionID)
	if err != nil {
		t.Fatalf("logout: %v", err)
	}
	if res.Scope != goEnroll.LogoutSession || res.SessionsRevoked != 1 || res.BindingsRemoved != 1 {
		t.Fatalf("unexpected logout result %+v", res)
	}
	if _, err := h.engine.ValidateAccess(ctx, one.Tokens.AccessToken); !errors.Is(err, goEnroll.ErrUnauthenticated) {
		t.Fatalf("expected revoked session, got %v", err)
	}
	if _, err := h.engine.ValidateAccess(ctx, two.Tokens.AccessToken); err != nil {
		t.Fatalf("other session should survive: %v", err)
	}

	// Without a session id the scope widens to global.
	res, err = h.engine.Logout(ctx, reg.Account.ID, "")
	if err != nil {
		t.Fatalf("logout: %v", err)
	}
	if res.Scope != goEnroll.LogoutGlobal || res.SessionsRevoked != 1 {
		t.Fatalf("unexpected logout result %+v", res)
	}
}

func TestRescanAfterSessionLogoutRevokesRemainingSessions(t *testing.T) {
	h := newHarness(t, func(cfg *goEnroll.Config) {
		cfg.Logout.Scope = goEnroll.LogoutSession
	})
	ctx := context.Background()
	reg := h.enroll(t)
	one := h.login(t, "device-1")
	two := h.login(t, "device-2")

	if _, err := h.engine.Logout(ctx, reg.Account.ID, one.Session.SessionID); err != nil {
		t.Fatalf("logout: %v", err)
	}
	scan, err := h.engine.ScanEntry(ctx, testToken)
	if err != nil {
		t.Fatalf("rescan: %v", err)
	}
	if scan.Outcome != goEnroll.ScanReset {
		t.Fatalf("expected reset, got %v", scan.Outcome)
	}

	_, err = h.engine.ValidateAccess(ctx, two.Tokens.AccessToken)
	requireErr(t, err, goEnroll.ErrUnauthenticated)
	_, err = h.engine.Refresh(ctx, two.Tokens.RefreshToken)
	requireErr(t, err, goEnroll.ErrInvalidRefreshToken)
	if got := h.engine.MetricsSnapshot().Counters[goEnroll.MetricSessionInvalidated]; got != 2 {
		t.Fatalf("expected two invalidated sessions, got %d", got)
	}

	// Completing enrollment again does not bring the old session back.
	h.finishEnrollment(t)
	_, err = h.engine.ValidateAccess(ctx, two.Tokens.AccessToken)
	requireErr(t, err, goEnroll.ErrUnauthenticated)
}

func TestLogoutInvalidInput(t *testing.T) {
	h := newHarness(t, nil)
	_, err := h.engine.Logout(context.Background(), "  ", "")
	requireErr(t, err, goEnroll.ErrInvalidInput)

	if _, err := h.engine.Logout(context.Background(), "unknown-account", ""); err != nil {
		t.Fatalf("logout of unknown account should succeed: %v", err)
	}
}

func TestRecoverSession(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()

	res, err := h.engine.RecoverSession(ctx, testEmail)
	if err != nil {
		t.Fatalf("recover: %v", err)
	}
	if res.Action != goEnroll.ActionQRRegistrationRequired {
		t.Fatalf("unknown email: got %q", res.Action)
	}

	reg := h.enroll(t)
	res, err = h.engine.RecoverSession(ctx, testEmail)
	if err != nil {
		t.Fatalf("recover: %v", err)
	}
	if res.Action != goEnroll.ActionPasswordLoginRequired || res.Repaired {
		t.Fatalf("no session: got %+v", res)
	}

	bundle := h.login(t, "device-1")
	res, err = h.engine.RecoverSession(ctx, "JDOE@example.com")
	if err != nil {
		t.Fatalf("recover: %v", err)
	}
	if res.Action != goEnroll.ActionRetryQuickLogin {
		t.Fatalf("live session: got %q", res.Action)
	}

	if err := h.accounts.SetActive(reg.Account.ID, false); err != nil {
		t.Fatalf("deactivate: %v", err)
	}
	res, err = h.engine.RecoverSession(ctx, testEmail)
	if err != nil {
		t.Fatalf("recover: %v", err)
	}
	if !res.Repaired || res.Action != goEnroll.ActionRetryQuickLogin {
		t.Fatalf("half-active account: got %+v", res)
	}
	if !h.account(t, reg.Account.ID).IsActive {
		t.Fatalf("account not repaired")
	}

	if _, err := h.engine.Logout(ctx, reg.Account.ID, bundle.Session.SessionID); err != nil {
		t.Fatalf("logout: %v", err)
	}
	if _, err := h.engine.ScanEntry(ctx, testToken); err != nil {
		t.Fatalf("rescan: %v", err)
	}
	res, err = h.engine.RecoverSession(ctx, testEmail)
	if err != nil {
		t.Fatalf("recover: %v", err)
	}
	if res.Action != goEnroll.ActionQRRegistrationRequired {
		t.Fatalf("reset account: got %q", res.Action)
	}

	_, err = h.engine.RecoverSession(ctx, "")
	requireErr(t, err, goEnroll.ErrInvalidInput)
}

func TestAuditTrailForFullLifecycle(t *testing.T) {
	h := newHarness(t, nil)
	ctx := goEnroll.WithClientIP(context.Background(), "198.51.100.4")
	reg := h.enroll(t)

	bundle, err := h.engine.Login(ctx, testUsername, testNewPassword, goEnroll.DeviceInfo{DeviceID: "device-1"})
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	if _, err := h.engine.Logout(ctx, reg.Account.ID, bundle.Session.SessionID); err != nil {
		t.Fatalf("logout: %v", err)
	}

	events := h.drainAudit()
	seen := make(map[string]goEnroll.AuditEvent)
	for _, ev := range events {
		if !ev.Success {
			t.Fatalf("unexpected failed event %+v", ev)
		}
		seen[ev.EventType] = ev
	}
	for _, typ := range []string{
		"scan_entry",
		"code_issued",
		"code_verify",
		"legacy_password_verify",
		"registration_complete",
		"login",
		"logout",
	} {
		if _, ok := seen[typ]; !ok {
			t.Fatalf("missing audit event %q in %d events", typ, len(events))
		}
	}

	login := seen["login"]
	if login.AccountID != reg.Account.ID || login.DeviceID != "device-1" || login.SessionID != bundle.Session.SessionID {
		t.Fatalf("unexpected login event %+v", login)
	}
	if login.IP != "198.51.100.4" {
		t.Fatalf("expected client ip on event, got %q", login.IP)
	}
	if seen["logout"].Metadata["scope"] != "global" {
		t.Fatalf("unexpected logout metadata %v", seen["logout"].Metadata)
	}
	if seen["registration_complete"].Email != testEmail {
		t.Fatalf("unexpected registration event %+v", seen["registration_complete"])
	}
}

func TestAuditRecordsFailureReason(t *testing.T) {
	h := newHarness(t, nil)
	h.enroll(t)
	_, _ = h.engine.Login(context.Background(), testUsername, "wrong-password", goEnroll.DeviceInfo{})

	var failed *goEnroll.AuditEvent
	for _, ev := range h.drainAudit() {
		if ev.EventType == "login" && !ev.Success {
			ev := ev
			failed = &ev
		}
	}
	if failed == nil {
		t.Fatalf("missing failed login event")
	}
	if failed.Error != "invalid_credentials" || failed.Metadata["identifier"] != testUsername {
		t.Fatalf("unexpected failed login event %+v", failed)
	}
}
