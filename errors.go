package goEnroll

import "errors"

var (
	// ErrInvalidPayload is returned when a QR payload cannot be decoded.
	ErrInvalidPayload = errors.New("invalid payload")
	// ErrIdentityUnavailable is returned when the identity gateway cannot be reached or times out.
	ErrIdentityUnavailable = errors.New("identity gateway unavailable")
	// ErrInvalidOrExpiredToken is returned when the gateway rejects a QR token.
	ErrInvalidOrExpiredToken = errors.New("invalid or expired token")
	// ErrAlreadyRegistered is returned when a scanned identity is already claimed.
	ErrAlreadyRegistered = errors.New("already registered")
	// ErrInvalidOrExpiredCode is returned for unknown, expired, used or wrong verification codes.
	ErrInvalidOrExpiredCode = errors.New("invalid or expired verification code")
	// ErrTooManyAttempts is returned when a verification code exhausted its attempts.
	ErrTooManyAttempts = errors.New("too many attempts")
	// ErrSessionExpired is returned when no live registration session exists for the email.
	ErrSessionExpired = errors.New("registration session expired")
	// ErrInvalidCredentials is returned for any failed password check.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrPasswordMismatch is returned when the new password and its confirmation differ.
	ErrPasswordMismatch = errors.New("passwords do not match")
	// ErrAccountNotFound is returned when no account matches the lookup.
	ErrAccountNotFound = errors.New("account not found")
	// ErrAccountInactive is returned for inactive or unregistered accounts.
	ErrAccountInactive = errors.New("account inactive")
	// ErrSessionExpiredAfterLogout is returned by quick login after the account logged out.
	ErrSessionExpiredAfterLogout = errors.New("session expired after logout")
	// ErrNoActiveSession is returned by quick login when no qualifying session exists.
	ErrNoActiveSession = errors.New("no active session")
	// ErrReauthRequired is returned when the re-authentication window has elapsed.
	ErrReauthRequired = errors.New("reauthentication required")
	// ErrInvalidRefreshToken is returned for unknown, rotated or expired refresh tokens.
	ErrInvalidRefreshToken = errors.New("invalid refresh token")
	// ErrUnauthenticated is returned by ValidateAccess for any failure.
	ErrUnauthenticated = errors.New("unauthenticated")

	// ErrRateLimited is returned when a login, scan or resend budget is exhausted.
	ErrRateLimited = errors.New("rate limited")
	// ErrWeakPassword is returned when a new password violates the password policy.
	ErrWeakPassword = errors.New("password does not meet policy")
	// ErrInvalidInput is returned for empty or malformed arguments.
	ErrInvalidInput = errors.New("invalid input")
	// ErrStoreUnavailable wraps storage failures during core state changes.
	ErrStoreUnavailable = errors.New("store unavailable")
	// ErrEngineNotReady is returned when the engine is used without its dependencies.
	ErrEngineNotReady = errors.New("engine not ready")
	// ErrInvalidConfig is returned by Config.Validate.
	ErrInvalidConfig = errors.New("invalid config")
)

var reasons = []struct {
	err    error
	reason string
}{
	{ErrInvalidPayload, "invalid_payload"},
	{ErrIdentityUnavailable, "identity_unavailable"},
	{ErrInvalidOrExpiredToken, "invalid_or_expired_token"},
	{ErrAlreadyRegistered, "already_registered"},
	{ErrInvalidOrExpiredCode, "invalid_or_expired_code"},
	{ErrTooManyAttempts, "too_many_attempts"},
	{ErrSessionExpiredAfterLogout, "session_expired_after_logout"},
	{ErrSessionExpired, "session_expired"},
	{ErrInvalidCredentials, "invalid_credentials"},
	{ErrPasswordMismatch, "password_mismatch"},
	{ErrAccountNotFound, "account_not_found"},
	{ErrAccountInactive, "account_inactive"},
	{ErrNoActiveSession, "no_active_session"},
	{ErrReauthRequired, "reauth_required"},
	{ErrInvalidRefreshToken, "invalid_refresh_token"},
	{ErrUnauthenticated, "unauthenticated"},
	{ErrRateLimited, "rate_limited"},
	{ErrWeakPassword, "weak_password"},
	{ErrInvalidInput, "invalid_input"},
	{ErrStoreUnavailable, "store_unavailable"},
	{ErrEngineNotReady, "engine_not_ready"},
	{ErrInvalidConfig, "invalid_config"},
}

// Reason returns the stable snake_case reason clients map to UI copy.
// Unknown errors yield "internal_error" and nil yields "".
func Reason(err error) string {
	if err == nil {
		return ""
	}
	for _, r := range reasons {
		if errors.Is(err, r.err) {
			return r.reason
		}
	}
	return "internal_error"
}

// IdentityHintError carries the identity a client needs to pre-fill a
// password login after AlreadyRegistered, ReauthRequired or
// SessionExpiredAfterLogout.
type IdentityHintError struct {
	Kind     error
	Username string
	Email    string
}

func (e *IdentityHintError) Error() string {
	return e.Kind.Error()
}

func (e *IdentityHintError) Unwrap() error {
	return e.Kind
}

func withHint(kind error, username, email string) error {
	return &IdentityHintError{Kind: kind, Username: username, Email: email}
}
