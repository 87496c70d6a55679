package goEnroll

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/MrEthical07/goEnroll/internal"
	"github.com/MrEthical07/goEnroll/internal/qr"
	"github.com/MrEthical07/goEnroll/internal/rate"
	"github.com/MrEthical07/goEnroll/internal/stores"
)

// ScanEntry starts or restarts enrollment from a scanned QR payload.
//
// The identity behind the payload is resolved through the gateway and the
// scan decision table is applied atomically by the AccountStore. A claimed
// account fails with an IdentityHintError wrapping ErrAlreadyRegistered. A
// logged-out account is reset, its remaining sessions are revoked and
// enrollment continues. On success a fresh verification code replaces any
// earlier one for the email, a registration session is opened and the code
// is dispatched best-effort.
func (e *Engine) ScanEntry(ctx context.Context, qrPayload string) (*ScanResult, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	ip := clientIPFromContext(ctx)
	if err := e.allow(ctx, "scan", auditRecord{}, func(l *rate.Limiter) error {
		return l.AllowScan(ctx, ip)
	}); err != nil {
		return nil, err
	}

	payload, err := qr.Decode(qrPayload)
	if err != nil {
		e.metricInc(MetricScanFailure)
		return nil, ErrInvalidPayload
	}

	identity, err := e.resolveIdentity(ctx, payload)
	if err != nil {
		e.metricInc(MetricScanFailure)
		e.emitAudit(ctx, auditEventScan, false, auditRecord{email: NormalizeEmail(payload.Email)}, err, nil)
		return nil, err
	}
	rec := auditRecord{email: identity.Email}

	now := e.now()
	outcome, account, err := e.accounts.BeginScan(ctx, identity, now)
	if err != nil {
		e.metricInc(MetricScanFailure)
		err = storeError(err)
		e.emitAudit(ctx, auditEventScan, false, rec, err, nil)
		return nil, err
	}
	if account != nil {
		rec.accountID = account.ID
	}
	if outcome == ScanClaimed {
		e.metricInc(MetricScanAlreadyRegistered)
		username, email := identity.Username, identity.Email
		if account != nil {
			username, email = account.Username, account.Email
		}
		err := withHint(ErrAlreadyRegistered, username, email)
		e.emitAudit(ctx, auditEventScan, false, rec, err, nil)
		return nil, err
	}
	if outcome == ScanReset {
		e.metricInc(MetricReRegistration)
	}
	if account != nil {
		// An unregistered account holds no usable sessions, including
		// ones left behind by a session-scoped logout.
		n, err := e.sessions.DeleteAllForAccount(ctx, account.ID)
		if err != nil {
			e.metricInc(MetricScanFailure)
			err = storeError(err)
			e.emitAudit(ctx, auditEventScan, false, rec, err, nil)
			return nil, err
		}
		if n > 0 && e.metrics != nil {
			e.metrics.Add(MetricSessionInvalidated, uint64(n))
		}
	}

	expires, code, err := e.issueCode(ctx, identity.Email, now)
	if err != nil {
		e.metricInc(MetricScanFailure)
		e.emitAudit(ctx, auditEventScan, false, rec, err, nil)
		return nil, err
	}

	token, err := internal.NewRegistrationToken()
	if err != nil {
		return nil, err
	}
	err = e.registrations.Create(ctx, stores.RegistrationRecord{
		Token:       token,
		IdentityRef: identity.Ref,
		Username:    identity.Username,
		Email:       identity.Email,
		Name:        identity.Name,
		Phone:       identity.Phone,
		CreatedAt:   now,
		ExpiresAt:   now.Add(e.config.Enrollment.RegistrationTTL),
	}, e.config.Enrollment.RegistrationTTL)
	if err != nil {
		e.metricInc(MetricScanFailure)
		err = storeError(err)
		e.emitAudit(ctx, auditEventScan, false, rec, err, nil)
		return nil, err
	}

	notification := e.dispatchCode(ctx, identity.Email, code, identity.Name)

	e.metricInc(MetricScanSuccess)
	e.emitAudit(ctx, auditEventScan, true, rec, nil, func() map[string]string {
		return map[string]string{"outcome": outcome.String()}
	})

	return &ScanResult{
		NextStep:     NextEmailVerification,
		Email:        identity.Email,
		Name:         identity.Name,
		Username:     identity.Username,
		Outcome:      outcome,
		CodeExpires:  expires,
		Notification: notification,
	}, nil
}

// resolveIdentity validates the QR token with the gateway and checks it
// against the hints embedded in the payload.
func (e *Engine) resolveIdentity(ctx context.Context, payload qr.Payload) (Identity, error) {
	gctx, cancel := e.gatewayContext(ctx)
	defer cancel()

	identity, err := e.gateway.ValidateToken(gctx, payload.Token)
	if err != nil {
		return Identity{}, e.gatewayError(err)
	}

	identity.Ref = CanonicalRef(identity.Ref)
	identity.Email = NormalizeEmail(identity.Email)
	identity.Username = strings.TrimSpace(identity.Username)
	if identity.Ref == "" || identity.Email == "" {
		e.metricInc(MetricGatewayFailure)
		return Identity{}, ErrIdentityUnavailable
	}
	if payload.Ref != "" && CanonicalRef(payload.Ref) != identity.Ref {
		return Identity{}, ErrInvalidOrExpiredToken
	}
	if !identity.Active {
		return Identity{}, ErrAccountInactive
	}
	return identity, nil
}

// issueCode stores a fresh code for email, replacing the previous one.
func (e *Engine) issueCode(ctx context.Context, email string, now time.Time) (time.Time, string, error) {
	code, err := internal.NewNumericCode(e.config.Enrollment.CodeDigits)
	if err != nil {
		return time.Time{}, "", err
	}
	expires := now.Add(e.config.Enrollment.CodeTTL)
	err = e.codes.Issue(ctx, stores.CodeRecord{
		Email:       email,
		CodeHash:    internal.HashSecret(code),
		MaxAttempts: e.config.Enrollment.CodeMaxAttempts,
		ExpiresAt:   expires,
	}, e.config.Enrollment.CodeTTL)
	if err != nil {
		return time.Time{}, "", storeError(err)
	}

	e.metricInc(MetricCodeIssued)
	e.emitAudit(ctx, auditEventCodeIssued, true, auditRecord{email: email}, nil, nil)
	return expires, code, nil
}

// dispatchCode sends code best-effort. A failure is logged and reported
// on the result; the code stays valid and can be resent.
func (e *Engine) dispatchCode(ctx context.Context, email, code, name string) SideEffect {
	if e.notifier == nil {
		return SideEffect{}
	}
	err := e.notifier.SendCode(ctx, email, code, name)
	if err != nil {
		e.metricInc(MetricNotificationFailure)
		e.logger.Warn("goEnroll: verification code dispatch failed", "email", email, "error", err)
	}
	return attempted(err)
}

// ResendCode issues a new code for an email with a live registration
// session. The previous code stops verifying immediately.
func (e *Engine) ResendCode(ctx context.Context, email string) (*ResendResult, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	email = NormalizeEmail(email)
	if email == "" {
		return nil, ErrInvalidInput
	}
	rec := auditRecord{email: email}
	if err := e.allow(ctx, "resend", rec, func(l *rate.Limiter) error {
		return l.AllowResend(ctx, email)
	}); err != nil {
		return nil, err
	}

	now := e.now()
	reg, err := e.registrations.Lookup(ctx, email, now)
	if err != nil {
		if errors.Is(err, stores.ErrRegistrationNotFound) {
			return nil, ErrSessionExpired
		}
		return nil, storeError(err)
	}

	expires, code, err := e.issueCode(ctx, email, now)
	if err != nil {
		return nil, err
	}

	return &ResendResult{
		CodeExpires:  expires,
		Notification: e.dispatchCode(ctx, email, code, reg.Name),
	}, nil
}

// VerifyCode consumes the verification code for email. A used code never
// verifies again; a wrong code counts against the attempt budget.
func (e *Engine) VerifyCode(ctx context.Context, email, code string) (*StepResult, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	email = NormalizeEmail(email)
	code = strings.TrimSpace(code)
	if email == "" || code == "" {
		return nil, ErrInvalidInput
	}
	rec := auditRecord{email: email}

	now := e.now()
	err := e.codes.Consume(ctx, email, internal.HashSecret(code), now)
	switch {
	case err == nil:
	case errors.Is(err, stores.ErrCodeNotFound), errors.Is(err, stores.ErrCodeMismatch):
		e.metricInc(MetricCodeRejected)
		e.emitAudit(ctx, auditEventCodeVerify, false, rec, ErrInvalidOrExpiredCode, nil)
		return nil, ErrInvalidOrExpiredCode
	case errors.Is(err, stores.ErrCodeAttemptsExceeded):
		e.metricInc(MetricCodeAttemptsExceeded)
		e.emitAudit(ctx, auditEventCodeVerify, false, rec, ErrTooManyAttempts, nil)
		return nil, ErrTooManyAttempts
	default:
		return nil, storeError(err)
	}

	if err := e.registrations.MarkEmailVerified(ctx, email, now); err != nil {
		if !errors.Is(err, stores.ErrRegistrationNotFound) {
			return nil, storeError(err)
		}
		// The code outlived the registration session; the next step
		// reports SessionExpired.
		e.logger.Info("goEnroll: code verified without live registration session", "email", email)
	}

	e.metricInc(MetricCodeVerified)
	e.emitAudit(ctx, auditEventCodeVerify, true, rec, nil, nil)
	return &StepResult{NextStep: NextPasswordVerification}, nil
}

// VerifyLegacyPassword checks the password the person uses in the legacy
// system and marks the registration session as legacy-verified. Accounts
// are not touched.
func (e *Engine) VerifyLegacyPassword(ctx context.Context, email, password string) (*StepResult, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	email = NormalizeEmail(email)
	if email == "" || password == "" {
		return nil, ErrInvalidInput
	}
	rec := auditRecord{email: email}

	reg, err := e.registrations.Lookup(ctx, email, e.now())
	if err != nil {
		if errors.Is(err, stores.ErrRegistrationNotFound) {
			return nil, ErrSessionExpired
		}
		return nil, storeError(err)
	}

	gctx, cancel := e.gatewayContext(ctx)
	defer cancel()
	ok, err := e.gateway.VerifyPassword(gctx, reg.IdentityRef, password)
	if err != nil {
		err = e.gatewayError(err)
		e.emitAudit(ctx, auditEventLegacyPassword, false, rec, err, nil)
		return nil, err
	}
	if !ok {
		e.metricInc(MetricLegacyPasswordFailure)
		e.emitAudit(ctx, auditEventLegacyPassword, false, rec, ErrInvalidCredentials, nil)
		return nil, ErrInvalidCredentials
	}

	if err := e.registrations.MarkLegacyVerified(ctx, email, e.now()); err != nil {
		if errors.Is(err, stores.ErrRegistrationNotFound) {
			return nil, ErrSessionExpired
		}
		return nil, storeError(err)
	}

	e.emitAudit(ctx, auditEventLegacyPassword, true, rec, nil, nil)
	return &StepResult{NextStep: NextPasswordSetup}, nil
}

// CompleteRegistration sets the local password and creates or re-activates
// the account. The registration session is consumed exactly once.
func (e *Engine) CompleteRegistration(ctx context.Context, email, newPassword, confirmPassword string) (*RegistrationResult, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	email = NormalizeEmail(email)
	if email == "" {
		return nil, ErrInvalidInput
	}
	if newPassword != confirmPassword {
		return nil, ErrPasswordMismatch
	}
	if len(newPassword) < e.config.Password.MinLength {
		return nil, ErrWeakPassword
	}
	rec := auditRecord{email: email}

	hash, err := e.hasher.Hash(newPassword)
	if err != nil {
		return nil, ErrWeakPassword
	}

	now := e.now()
	reg, err := e.registrations.Consume(ctx, email, now, stores.ConsumeRequirements{
		EmailVerified:  e.config.Enrollment.RequireVerifiedEmail,
		LegacyVerified: e.config.Enrollment.RequireLegacyPassword,
	})
	if err != nil {
		if errors.Is(err, stores.ErrRegistrationNotFound) || errors.Is(err, stores.ErrRegistrationUnverified) {
			e.emitAudit(ctx, auditEventRegistrationComplete, false, rec, ErrSessionExpired, nil)
			return nil, ErrSessionExpired
		}
		return nil, storeError(err)
	}

	identity := Identity{
		Ref:      reg.IdentityRef,
		Username: reg.Username,
		Email:    reg.Email,
		Name:     reg.Name,
		Phone:    reg.Phone,
		Active:   true,
	}
	account, err := e.accounts.CompleteRegistration(ctx, identity, hash, now)
	if err != nil {
		if errors.Is(err, ErrAlreadyRegistered) {
			err = withHint(ErrAlreadyRegistered, identity.Username, identity.Email)
		} else {
			err = storeError(err)
		}
		e.emitAudit(ctx, auditEventRegistrationComplete, false, rec, err, nil)
		return nil, err
	}

	e.metricInc(MetricRegistrationCompleted)
	rec.accountID = account.ID
	e.emitAudit(ctx, auditEventRegistrationComplete, true, rec, nil, nil)

	return &RegistrationResult{
		Account:  account.Summary(),
		NextStep: NextLogin,
	}, nil
}
