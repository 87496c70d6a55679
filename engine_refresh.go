package goEnroll

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/MrEthical07/goEnroll/internal"
	"github.com/MrEthical07/goEnroll/session"
)

// Refresh exchanges a refresh token for a new token pair on the same
// session. The presented refresh secret is retired atomically; replaying
// it fails with ErrInvalidRefreshToken.
func (e *Engine) Refresh(ctx context.Context, refreshToken string) (*TokenBundle, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	refreshToken = strings.TrimSpace(refreshToken)
	if refreshToken == "" {
		return nil, e.refreshFailed(ctx, auditRecord{}, ErrInvalidRefreshToken)
	}

	claims, err := e.jwtManager.ParseRefresh(refreshToken)
	if err != nil {
		return nil, e.refreshFailed(ctx, auditRecord{}, ErrInvalidRefreshToken)
	}
	rec := auditRecord{accountID: claims.AccountID, sessionID: claims.SessionID}

	sess, err := e.sessions.Get(ctx, claims.SessionID)
	if err != nil {
		return nil, e.refreshFailed(ctx, rec, sessionError(err))
	}
	if sess.AccountID != claims.AccountID {
		return nil, e.refreshFailed(ctx, rec, ErrInvalidRefreshToken)
	}
	rec.deviceID = sess.DeviceID

	account, err := e.accounts.GetByID(ctx, claims.AccountID)
	if err != nil {
		if errors.Is(err, ErrAccountNotFound) {
			return nil, e.refreshFailed(ctx, rec, ErrInvalidRefreshToken)
		}
		return nil, e.refreshFailed(ctx, rec, storeError(err))
	}
	if !account.IsActive || !account.IsRegistered {
		return nil, e.refreshFailed(ctx, rec, ErrInvalidRefreshToken)
	}

	now := e.now()
	access, refresh, err := e.mintPair(account, sess.SessionID, now)
	if err != nil {
		return nil, e.refreshFailed(ctx, rec, err)
	}

	quickLoginExpiresAt := sess.QuickLoginExpiresAt
	if sess.QuickLoginEnabled {
		quickLoginExpiresAt = e.quickLoginDeadline(now)
	}

	err = e.sessions.Rotate(ctx, sess.SessionID, internal.HashSecret(claims.ID), session.Rotation{
		RefreshHash:         internal.HashSecret(refresh.id),
		RefreshExpiresAt:    refresh.expiresAt,
		AccessTokenID:       access.id,
		ExpiresAt:           access.expiresAt,
		QuickLoginExpiresAt: quickLoginExpiresAt,
	}, now)
	if err != nil {
		return nil, e.refreshFailed(ctx, rec, sessionError(err))
	}

	sess.AccessTokenID = access.id
	sess.ExpiresAt = access.expiresAt
	sess.QuickLoginExpiresAt = quickLoginExpiresAt
	sess.RefreshExpiresAt = refresh.expiresAt

	e.metricInc(MetricRefreshSuccess)
	rec.email = account.Email
	e.emitAudit(ctx, auditEventRefresh, true, rec, nil, nil)
	return e.bundle(account, sess, access, refresh, now), nil
}

func (e *Engine) refreshFailed(ctx context.Context, rec auditRecord, err error) error {
	e.metricInc(MetricRefreshFailure)
	e.emitAudit(ctx, auditEventRefresh, false, rec, err, nil)
	return err
}

// sessionError maps session store failures for the refresh path.
func sessionError(err error) error {
	switch {
	case errors.Is(err, session.ErrSessionNotFound),
		errors.Is(err, session.ErrSessionInactive),
		errors.Is(err, session.ErrRefreshExpired),
		errors.Is(err, session.ErrRefreshHashMismatch):
		return ErrInvalidRefreshToken
	default:
		return storeError(err)
	}
}

// ValidateAccess verifies an access token and resolves the caller. The
// token must be the latest one issued for its session, the session must
// be active and the account must still be active and registered. Every
// failure is reported as ErrUnauthenticated.
func (e *Engine) ValidateAccess(ctx context.Context, accessToken string) (*Principal, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	if e.metrics.LatencyEnabled() {
		start := time.Now()
		defer func() {
			e.metrics.Observe(MetricValidateLatency, time.Since(start))
		}()
	}

	accessToken = strings.TrimSpace(accessToken)
	if accessToken == "" {
		return nil, ErrUnauthenticated
	}
	claims, err := e.jwtManager.ParseAccess(accessToken)
	if err != nil {
		return nil, ErrUnauthenticated
	}

	sess, err := e.sessions.Get(ctx, claims.SessionID)
	if err != nil {
		if !errors.Is(err, session.ErrSessionNotFound) {
			e.logger.Warn("goEnroll: session lookup failed", "session_id", claims.SessionID, "error", err)
		}
		return nil, ErrUnauthenticated
	}

	now := e.now()
	if !sess.AccessValid(now) ||
		sess.AccountID != claims.AccountID ||
		!internal.EqualHash(sess.AccessTokenID, claims.ID) {
		return nil, ErrUnauthenticated
	}

	account, err := e.accounts.GetByID(ctx, claims.AccountID)
	if err != nil || !account.IsActive || !account.IsRegistered {
		return nil, ErrUnauthenticated
	}

	if err := e.sessions.Touch(ctx, sess.SessionID, now); err != nil {
		e.logger.Warn("goEnroll: session touch failed", "session_id", sess.SessionID, "error", err)
	}

	return &Principal{
		AccountID: account.ID,
		Username:  account.Username,
		Email:     account.Email,
		SessionID: sess.SessionID,
		DeviceID:  sess.DeviceID,
	}, nil
}
