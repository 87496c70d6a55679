package goEnroll

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/MrEthical07/goEnroll/internal"
	"github.com/MrEthical07/goEnroll/internal/flows"
	"github.com/MrEthical07/goEnroll/internal/rate"
	"github.com/MrEthical07/goEnroll/jwt"
	"github.com/MrEthical07/goEnroll/session"
)

// Login authenticates with username and password, opens a new session on
// the device and records the device binding best-effort.
//
// Unknown usernames, inactive or unregistered accounts and wrong passwords
// all fail with ErrInvalidCredentials.
func (e *Engine) Login(ctx context.Context, username, password string, device DeviceInfo) (*TokenBundle, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	username = strings.TrimSpace(username)
	if username == "" || password == "" {
		return nil, ErrInvalidInput
	}
	device = normalizeDevice(device)
	ip := clientIPFromContext(ctx)
	rec := auditRecord{deviceID: device.DeviceID}

	if err := e.allow(ctx, "login", rec, func(l *rate.Limiter) error {
		return l.CheckLogin(ctx, username, ip)
	}); err != nil {
		e.metricInc(MetricLoginRateLimited)
		return nil, err
	}

	account, err := e.accounts.GetByUsername(ctx, username)
	if err != nil && !errors.Is(err, ErrAccountNotFound) {
		return nil, storeError(err)
	}
	if account == nil || !account.IsActive || !account.IsRegistered {
		return nil, e.loginFailed(ctx, username, ip, rec)
	}
	rec.accountID = account.ID
	rec.email = account.Email

	ok, err := e.checkPassword(ctx, account, password)
	if err != nil {
		e.metricInc(MetricLoginFailure)
		e.emitAudit(ctx, auditEventLogin, false, rec, err, nil)
		return nil, err
	}
	if !ok {
		return nil, e.loginFailed(ctx, username, ip, rec)
	}

	now := e.now()
	if err := e.accounts.RecordLogin(ctx, account.ID, now, true); err != nil {
		return nil, storeError(err)
	}
	account.LastLoginAt = &now
	account.IsLoggedOut = false
	account.RequiresReauth = false

	if e.limiter != nil {
		if err := e.limiter.ResetLogin(ctx, username, ip); err != nil {
			e.logger.Warn("goEnroll: login counter reset failed", "account_id", account.ID, "error", err)
		}
	}

	bundle, sess, err := e.issueTokens(ctx, account, device, nil, now)
	if err != nil {
		e.metricInc(MetricLoginFailure)
		e.emitAudit(ctx, auditEventLogin, false, rec, err, nil)
		return nil, err
	}
	bundle.Device = e.recordDevice(ctx, account.ID, device, now)

	e.metricInc(MetricLoginSuccess)
	rec.sessionID = sess.SessionID
	e.emitAudit(ctx, auditEventLogin, true, rec, nil, nil)
	return bundle, nil
}

func (e *Engine) loginFailed(ctx context.Context, username, ip string, rec auditRecord) error {
	if e.limiter != nil {
		if err := e.limiter.IncrementLogin(ctx, username, ip); err != nil && !errors.Is(err, rate.ErrRateLimited) {
			e.logger.Warn("goEnroll: login counter increment failed", "error", err)
		}
	}
	e.metricInc(MetricLoginFailure)
	e.emitAudit(ctx, auditEventLogin, false, rec, ErrInvalidCredentials, func() map[string]string {
		return map[string]string{"identifier": username}
	})
	return ErrInvalidCredentials
}

// checkPassword applies the configured password authority. A gateway
// transport failure is returned as ErrIdentityUnavailable; every other
// failure is a plain mismatch.
func (e *Engine) checkPassword(ctx context.Context, account *Account, password string) (bool, error) {
	authority := e.config.Password.Authority

	if authority != AuthorityLegacy && account.PasswordHash != "" {
		ok, err := e.hasher.Verify(password, account.PasswordHash)
		if err != nil {
			e.logger.Warn("goEnroll: stored password hash unreadable", "account_id", account.ID, "error", err)
		}
		if ok {
			return true, nil
		}
	}
	if authority == AuthorityLocal || account.ExternalRef == "" {
		return false, nil
	}

	gctx, cancel := e.gatewayContext(ctx)
	defer cancel()
	ok, err := e.gateway.VerifyPassword(gctx, account.ExternalRef, password)
	if err != nil {
		return false, e.gatewayError(err)
	}
	return ok, nil
}

// QuickLogin re-enters an account without a password while it holds a
// qualifying quick-login session and the last login is within the
// re-authentication window. It always mints new tokens.
func (e *Engine) QuickLogin(ctx context.Context, accountID string, device DeviceInfo) (*TokenBundle, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	accountID = strings.TrimSpace(accountID)
	if accountID == "" {
		return nil, ErrInvalidInput
	}
	device = normalizeDevice(device)
	rec := auditRecord{accountID: accountID, deviceID: device.DeviceID}
	now := e.now()

	account, err := e.accounts.GetByID(ctx, accountID)
	if err != nil && !errors.Is(err, ErrAccountNotFound) {
		return nil, storeError(err)
	}

	state := flows.QuickLoginState{AccountFound: account != nil}
	var (
		picked *session.Session
		found  bool
	)
	if account != nil {
		state.IsActive = account.IsActive
		state.IsRegistered = account.IsRegistered
		state.IsLoggedOut = account.IsLoggedOut
		state.LastLoginAt = account.LastLoginAt

		sessions, err := e.sessions.ListForAccount(ctx, accountID)
		if err != nil {
			return nil, storeError(err)
		}
		picked, found = pickQuickLoginSession(sessions, device.DeviceID, now)
		state.HasQualifyingSession = found
	}

	switch flows.DecideQuickLogin(state, now, e.config.Session.ReauthWindow) {
	case flows.QuickLoginAccountNotFound:
		return nil, e.quickLoginFailed(ctx, rec, ErrAccountNotFound)
	case flows.QuickLoginAccountInactive:
		return nil, e.quickLoginFailed(ctx, rec, ErrAccountInactive)
	case flows.QuickLoginExpiredAfterLogout:
		return nil, e.quickLoginFailed(ctx, rec, withHint(ErrSessionExpiredAfterLogout, account.Username, account.Email))
	case flows.QuickLoginNoActiveSession:
		return nil, e.quickLoginFailed(ctx, rec, ErrNoActiveSession)
	case flows.QuickLoginReauthRequired:
		if err := e.accounts.SetRequiresReauth(ctx, accountID, true); err != nil {
			return nil, storeError(err)
		}
		e.metricInc(MetricReauthRequired)
		return nil, e.quickLoginFailed(ctx, rec, withHint(ErrReauthRequired, account.Username, account.Email))
	}

	if err := e.accounts.RecordLogin(ctx, accountID, now, false); err != nil {
		return nil, storeError(err)
	}
	account.LastLoginAt = &now
	account.RequiresReauth = false

	// The picked session is reissued in place when it lives on the
	// requesting device; otherwise the device gets its own session.
	var reuse *session.Session
	if device.DeviceID == "" || picked.DeviceID == device.DeviceID {
		reuse = picked
		if !describesDevice(device) {
			device = decodeDevice(picked.DeviceInfo, picked.DeviceID)
		}
	}

	bundle, sess, err := e.issueTokens(ctx, account, device, reuse, now)
	if err != nil {
		return nil, e.quickLoginFailed(ctx, rec, err)
	}
	bundle.Device = e.recordDevice(ctx, accountID, device, now)

	e.metricInc(MetricQuickLoginSuccess)
	rec.sessionID = sess.SessionID
	rec.email = account.Email
	e.emitAudit(ctx, auditEventQuickLogin, true, rec, nil, nil)
	return bundle, nil
}

func (e *Engine) quickLoginFailed(ctx context.Context, rec auditRecord, err error) error {
	e.metricInc(MetricQuickLoginFailure)
	e.emitAudit(ctx, auditEventQuickLogin, false, rec, err, nil)
	return err
}

func sessionView(s *session.Session) flows.SessionView {
	return flows.SessionView{
		ID:                  s.SessionID,
		DeviceID:            s.DeviceID,
		Active:              s.Active,
		QuickLoginEnabled:   s.QuickLoginEnabled,
		QuickLoginExpiresAt: s.QuickLoginExpiresAt,
		LastActivityAt:      s.LastActivityAt,
	}
}

func pickQuickLoginSession(sessions []*session.Session, deviceID string, now time.Time) (*session.Session, bool) {
	views := make([]flows.SessionView, 0, len(sessions))
	byID := make(map[string]*session.Session, len(sessions))
	for _, s := range sessions {
		views = append(views, sessionView(s))
		byID[s.SessionID] = s
	}
	view, ok := flows.PickQuickLoginSession(views, deviceID, now)
	if !ok {
		return nil, false
	}
	return byID[view.ID], true
}

// issueTokens mints an access and refresh token pair and persists the
// session. A non-nil existing session is overwritten in place, which also
// retires its previous access and refresh tokens.
func (e *Engine) issueTokens(
	ctx context.Context,
	account *Account,
	device DeviceInfo,
	existing *session.Session,
	now time.Time,
) (*TokenBundle, *session.Session, error) {
	sessionID := ""
	createdAt := now
	if existing != nil {
		sessionID = existing.SessionID
		createdAt = existing.CreatedAt
	} else {
		sid, err := internal.NewSessionID()
		if err != nil {
			return nil, nil, err
		}
		sessionID = sid.String()
	}

	access, refresh, err := e.mintPair(account, sessionID, now)
	if err != nil {
		return nil, nil, err
	}

	sess := &session.Session{
		SessionID:           sessionID,
		AccountID:           account.ID,
		DeviceID:            device.DeviceID,
		DeviceInfo:          encodeDevice(device),
		AccessTokenID:       access.id,
		Active:              true,
		QuickLoginEnabled:   e.config.Session.QuickLoginEnabled,
		CreatedAt:           createdAt,
		LastActivityAt:      now,
		ExpiresAt:           access.expiresAt,
		QuickLoginExpiresAt: e.quickLoginDeadline(now),
		RefreshHash:         internal.HashSecret(refresh.id),
		RefreshExpiresAt:    refresh.expiresAt,
	}
	if err := e.sessions.Save(ctx, sess, now); err != nil {
		return nil, nil, storeError(err)
	}
	if existing == nil {
		e.metricInc(MetricSessionCreated)
	}

	return e.bundle(account, sess, access, refresh, now), sess, nil
}

type signedToken struct {
	token     string
	id        string
	expiresAt time.Time
}

func (e *Engine) mintPair(account *Account, sessionID string, now time.Time) (signedToken, signedToken, error) {
	sub := jwt.Subject{
		AccountID: account.ID,
		Username:  account.Username,
		Email:     account.Email,
		SessionID: sessionID,
	}

	accessID, err := internal.NewTokenID()
	if err != nil {
		return signedToken{}, signedToken{}, err
	}
	refreshSecret, err := internal.NewRefreshSecret()
	if err != nil {
		return signedToken{}, signedToken{}, err
	}

	access := signedToken{id: accessID}
	access.token, access.expiresAt, err = e.jwtManager.Issue(jwt.KindAccess, sub, accessID, now)
	if err != nil {
		return signedToken{}, signedToken{}, err
	}
	refresh := signedToken{id: refreshSecret}
	refresh.token, refresh.expiresAt, err = e.jwtManager.Issue(jwt.KindRefresh, sub, refreshSecret, now)
	if err != nil {
		return signedToken{}, signedToken{}, err
	}
	return access, refresh, nil
}

func (e *Engine) quickLoginDeadline(now time.Time) time.Time {
	if !e.config.Session.QuickLoginEnabled {
		return now
	}
	return now.Add(e.config.Session.QuickLoginTTL)
}

func (e *Engine) bundle(account *Account, sess *session.Session, access, refresh signedToken, now time.Time) *TokenBundle {
	return &TokenBundle{
		User: account.Summary(),
		Tokens: TokenPair{
			AccessToken:  access.token,
			RefreshToken: refresh.token,
			ExpiresIn:    int64(access.expiresAt.Sub(now) / time.Second),
		},
		Session: SessionDescriptor{
			SessionID:           sess.SessionID,
			ExpiresAt:           sess.ExpiresAt,
			QuickLoginEnabled:   sess.QuickLoginEnabled,
			QuickLoginExpiresAt: sess.QuickLoginExpiresAt,
		},
	}
}

// recordDevice upserts the device binding. It never fails the caller.
func (e *Engine) recordDevice(ctx context.Context, accountID string, device DeviceInfo, at time.Time) SideEffect {
	if device.DeviceID == "" {
		return SideEffect{}
	}
	err := e.devices.RecordUsage(ctx, accountID, device, nil, at)
	if err != nil {
		e.metricInc(MetricDeviceRecordFailure)
		e.logger.Warn("goEnroll: device usage not recorded",
			"account_id", accountID,
			"device_id", device.DeviceID,
			"error", err,
		)
	} else {
		e.metricInc(MetricDeviceRecorded)
	}
	return attempted(err)
}
