package goEnroll

import (
	"context"
	"errors"
	"strconv"
	"strings"

	"github.com/MrEthical07/goEnroll/internal/flows"
	"github.com/MrEthical07/goEnroll/session"
)

// Logout ends the account's sessions and saved-account bindings. With the
// global scope every session and binding of the account goes; with the
// session scope only sessionID and its device binding do. In both scopes
// the account is marked logged out, so the next QR scan resets it.
//
// Logout is idempotent. Individual cleanup steps that fail are logged and
// reported in the result; the call itself only fails on invalid input.
func (e *Engine) Logout(ctx context.Context, accountID, sessionID string) (*LogoutResult, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	accountID = strings.TrimSpace(accountID)
	if accountID == "" {
		return nil, ErrInvalidInput
	}
	sessionID = strings.TrimSpace(sessionID)

	scope := e.config.Logout.Scope
	if scope == LogoutSession && sessionID == "" {
		scope = LogoutGlobal
	}

	now := e.now()
	rec := auditRecord{accountID: accountID, sessionID: sessionID}
	res := &LogoutResult{Scope: scope}

	err := e.accounts.MarkLoggedOut(ctx, accountID, now)
	if errors.Is(err, ErrAccountNotFound) {
		err = nil
	}
	res.Account = attempted(err)
	e.warnStep("mark logged out", accountID, err)

	if scope == LogoutGlobal {
		n, err := e.sessions.DeleteAllForAccount(ctx, accountID)
		res.Sessions = attempted(err)
		res.SessionsRevoked = n
		e.warnStep("delete sessions", accountID, err)

		m, err := e.devices.DeactivateAccount(ctx, accountID, now)
		res.Bindings = attempted(err)
		res.BindingsRemoved = m
		e.warnStep("deactivate bindings", accountID, err)
	} else {
		deviceID := ""
		sess, err := e.sessions.Get(ctx, sessionID)
		switch {
		case err == nil && sess.AccountID == accountID:
			deviceID = sess.DeviceID
		case err != nil && !errors.Is(err, session.ErrSessionNotFound):
			e.warnStep("load session", accountID, err)
		}

		if err == nil && sess.AccountID != accountID {
			res.Sessions = SideEffect{Attempted: true, Succeeded: true}
		} else {
			deleted, err := e.sessions.Delete(ctx, accountID, sessionID)
			res.Sessions = attempted(err)
			if deleted {
				res.SessionsRevoked = 1
			}
			e.warnStep("delete session", accountID, err)
		}

		if deviceID != "" {
			ok, err := e.devices.Deactivate(ctx, accountID, deviceID, now)
			res.Bindings = attempted(err)
			if ok {
				res.BindingsRemoved = 1
			}
			e.warnStep("deactivate binding", accountID, err)
		}
	}

	if e.metrics != nil {
		e.metrics.Add(MetricSessionInvalidated, uint64(res.SessionsRevoked))
	}
	e.metricInc(MetricLogout)
	e.emitAudit(ctx, auditEventLogout, true, rec, nil, func() map[string]string {
		return map[string]string{
			"scope":            string(scope),
			"sessions_revoked": strconv.Itoa(res.SessionsRevoked),
			"bindings_removed": strconv.Itoa(res.BindingsRemoved),
		}
	})
	return res, nil
}

func (e *Engine) warnStep(step, accountID string, err error) {
	if err == nil {
		return
	}
	e.logger.Warn("goEnroll: logout step failed", "step", step, "account_id", accountID, "error", err)
}

// RecoverSession tells a client that lost its tokens which path to take
// for the account registered under email. Accounts left half-active by an
// interrupted flow are repaired when they hold a password.
func (e *Engine) RecoverSession(ctx context.Context, email string) (*RecoverResult, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	email = NormalizeEmail(email)
	if email == "" {
		return nil, ErrInvalidInput
	}
	rec := auditRecord{email: email}

	account, err := e.accounts.GetByEmail(ctx, email)
	if err != nil && !errors.Is(err, ErrAccountNotFound) {
		return nil, storeError(err)
	}

	state := flows.RecoveryState{Found: account != nil}
	if account != nil {
		rec.accountID = account.ID
		state.IsActive = account.IsActive
		state.IsRegistered = account.IsRegistered
		state.HasPassword = account.PasswordHash != ""

		sessions, err := e.sessions.ListForAccount(ctx, account.ID)
		if err != nil {
			return nil, storeError(err)
		}
		views := make([]flows.SessionView, 0, len(sessions))
		for _, s := range sessions {
			views = append(views, sessionView(s))
		}
		state.HasActiveSession = flows.HasQualifying(views, e.now())
	}

	plan := flows.DecideRecovery(state)
	if plan.Repair {
		if err := e.accounts.Repair(ctx, account.ID); err != nil {
			return nil, storeError(err)
		}
	}

	e.metricInc(MetricRecoverSession)
	e.emitAudit(ctx, auditEventRecoverSession, true, rec, nil, func() map[string]string {
		return map[string]string{
			"action":   string(plan.Action),
			"repaired": strconv.FormatBool(plan.Repair),
		}
	})
	return &RecoverResult{Action: plan.Action, Repaired: plan.Repair}, nil
}
