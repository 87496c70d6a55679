package goEnroll

import (
	"context"
	"strings"
	"time"
	"unicode"

	"github.com/MrEthical07/goEnroll/internal/flows"
)

// NextStep tells the client which screen follows a successful step.
type NextStep string

const (
	NextEmailVerification    NextStep = "email_verification"
	NextPasswordVerification NextStep = "password_verification"
	NextPasswordSetup        NextStep = "password_setup"
	NextLogin                NextStep = "login"
)

// ScanOutcome is the decision an AccountStore applied for a QR scan.
type ScanOutcome = flows.ScanOutcome

const (
	ScanFresh   = flows.ScanFresh
	ScanResume  = flows.ScanResume
	ScanReset   = flows.ScanReset
	ScanClaimed = flows.ScanClaimed
)

// RecoveryAction is the path RecoverSession sends the client down.
type RecoveryAction = flows.RecoveryAction

const (
	ActionQRRegistrationRequired = flows.ActionQRRegistrationRequired
	ActionRetryQuickLogin        = flows.ActionRetryQuickLogin
	ActionPasswordLoginRequired  = flows.ActionPasswordLoginRequired
)

// Identity is the authoritative person record returned by the legacy
// identity gateway. Ref is always canonical (see CanonicalRef).
type Identity struct {
	Ref      string
	Username string
	Email    string
	Name     string
	Phone    string
	Active   bool
}

// Account is the durable per-person record.
//
// An account with IsRegistered set and IsLoggedOut clear is claimed: no
// further QR enrollment is accepted for its identity until it logs out.
type Account struct {
	ID           string
	ExternalRef  string
	Username     string
	Email        string
	Name         string
	Phone        string
	PasswordHash string

	EmailVerified    bool
	PasswordVerified bool
	IsRegistered     bool
	IsActive         bool
	IsLoggedOut      bool
	RequiresReauth   bool

	LastLoginAt       *time.Time
	LastLogoutAt      *time.Time
	LastPasswordCheck *time.Time
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// Claimed reports whether the account blocks a new enrollment.
func (a *Account) Claimed() bool {
	return a.IsRegistered && !a.IsLoggedOut
}

// Summary returns the public view of the account.
func (a *Account) Summary() AccountSummary {
	return AccountSummary{ID: a.ID, Username: a.Username, Email: a.Email, Name: a.Name}
}

// AccountSummary is the account shape returned to clients.
type AccountSummary struct {
	ID       string `json:"id"`
	Username string `json:"username"`
	Email    string `json:"email"`
	Name     string `json:"name"`
}

// DeviceInfo describes the physical device a client runs on. DeviceID is
// the only field the engine keys on.
type DeviceInfo struct {
	DeviceID   string `json:"deviceId"`
	Name       string `json:"deviceName,omitempty"`
	Platform   string `json:"platform,omitempty"`
	Model      string `json:"model,omitempty"`
	OSVersion  string `json:"osVersion,omitempty"`
	AppVersion string `json:"appVersion,omitempty"`
}

// DeviceSettings are per (account, device) preferences.
type DeviceSettings struct {
	BiometricEnabled  bool `json:"biometricEnabled"`
	QuickLoginEnabled bool `json:"quickLoginEnabled"`
}

// DefaultDeviceSettings is applied when a binding is first created.
func DefaultDeviceSettings() DeviceSettings {
	return DeviceSettings{QuickLoginEnabled: true}
}

// SavedAccount is one (account, device) binding.
type SavedAccount struct {
	AccountID      string         `json:"accountId"`
	DeviceID       string         `json:"deviceId"`
	Device         DeviceInfo     `json:"device"`
	Settings       DeviceSettings `json:"settings"`
	AccessCount    int            `json:"accessCount"`
	FirstSavedAt   time.Time      `json:"firstSavedAt"`
	LastAccessedAt time.Time      `json:"lastAccessedAt"`
	IsActive       bool           `json:"isActive"`
	DeactivatedAt  *time.Time     `json:"deactivatedAt,omitempty"`
}

// SavedAccountView is an entry of the account switcher for one device.
type SavedAccountView struct {
	ID             string         `json:"id"`
	Username       string         `json:"username"`
	Email          string         `json:"email"`
	Name           string         `json:"name"`
	HasQuickAccess bool           `json:"hasQuickAccess"`
	LastLoginAt    *time.Time     `json:"lastLoginAt"`
	Settings       DeviceSettings `json:"settings"`
}

// SideEffect reports a best-effort action that does not fail its parent
// operation.
type SideEffect struct {
	Attempted bool
	Succeeded bool
	Err       error
}

func attempted(err error) SideEffect {
	return SideEffect{Attempted: true, Succeeded: err == nil, Err: err}
}

// TokenPair is the credential half of a TokenBundle.
type TokenPair struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
	ExpiresIn    int64  `json:"expiresIn"`
}

// SessionDescriptor describes the session a TokenBundle belongs to.
type SessionDescriptor struct {
	SessionID           string    `json:"sessionId"`
	ExpiresAt           time.Time `json:"expiresAt"`
	QuickLoginEnabled   bool      `json:"quickLoginEnabled"`
	QuickLoginExpiresAt time.Time `json:"quickLoginExpiresAt"`
}

// TokenBundle is returned by Login, QuickLogin and Refresh.
type TokenBundle struct {
	User    AccountSummary    `json:"user"`
	Tokens  TokenPair         `json:"tokens"`
	Session SessionDescriptor `json:"session"`
	// Device reports the device registry write. It is not part of the
	// client payload.
	Device SideEffect `json:"-"`
}

// ScanResult is returned by ScanEntry.
type ScanResult struct {
	NextStep     NextStep
	Email        string
	Name         string
	Username     string
	Outcome      ScanOutcome
	CodeExpires  time.Time
	Notification SideEffect
}

// ResendResult is returned by ResendCode.
type ResendResult struct {
	CodeExpires  time.Time
	Notification SideEffect
}

// StepResult is returned by the intermediate enrollment steps.
type StepResult struct {
	NextStep NextStep
}

// RegistrationResult is returned by CompleteRegistration.
type RegistrationResult struct {
	Account  AccountSummary
	NextStep NextStep
}

// LogoutResult reports what logout cleaned up. Logout itself never fails
// once its input is valid.
type LogoutResult struct {
	Scope           LogoutScope
	SessionsRevoked int
	BindingsRemoved int
	Account         SideEffect
	Sessions        SideEffect
	Bindings        SideEffect
}

// RecoverResult is returned by RecoverSession.
type RecoverResult struct {
	Action   RecoveryAction
	Repaired bool
}

// Principal is the authenticated caller resolved by ValidateAccess.
type Principal struct {
	AccountID string
	Username  string
	Email     string
	SessionID string
	DeviceID  string
}

// IdentityGateway is the legacy identity authority. Implementations map
// an unknown or expired token to ErrInvalidOrExpiredToken and transport
// failures to ErrIdentityUnavailable.
type IdentityGateway interface {
	ValidateToken(ctx context.Context, token string) (Identity, error)
	VerifyPassword(ctx context.Context, ref, password string) (bool, error)
}

// Notifier delivers verification codes.
type Notifier interface {
	SendCode(ctx context.Context, email, code, name string) error
}

// PasswordHasher hashes and compares local passwords.
type PasswordHasher interface {
	Hash(password string) (string, error)
	Verify(password, encodedHash string) (bool, error)
}

// Clock supplies the time used for every expiry decision.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

// AccountStore persists accounts. Lookups return ErrAccountNotFound when
// nothing matches; other failures wrap ErrStoreUnavailable.
type AccountStore interface {
	// BeginScan applies the scan decision table for identity atomically and
	// resets a logged-out account to the pre-registration state. The
	// account is nil for ScanFresh.
	BeginScan(ctx context.Context, identity Identity, now time.Time) (ScanOutcome, *Account, error)
	// CompleteRegistration creates or re-activates the account bound to
	// identity.Ref. It returns ErrAlreadyRegistered when the account is
	// claimed.
	CompleteRegistration(ctx context.Context, identity Identity, passwordHash string, now time.Time) (*Account, error)
	GetByID(ctx context.Context, id string) (*Account, error)
	GetByUsername(ctx context.Context, username string) (*Account, error)
	GetByEmail(ctx context.Context, email string) (*Account, error)
	// RecordLogin stamps lastLoginAt, clears isLoggedOut and requiresReauth
	// and marks the account active. passwordChecked also stamps
	// lastPasswordCheck.
	RecordLogin(ctx context.Context, id string, at time.Time, passwordChecked bool) error
	SetRequiresReauth(ctx context.Context, id string, required bool) error
	MarkLoggedOut(ctx context.Context, id string, at time.Time) error
	// Repair forces isActive and isRegistered back to true.
	Repair(ctx context.Context, id string) error
}

// DeviceRegistry tracks which accounts were used on which devices. Soft
// deletes report counts and never fail for "nothing matched".
type DeviceRegistry interface {
	RecordUsage(ctx context.Context, accountID string, device DeviceInfo, settings *DeviceSettings, at time.Time) error
	// ListForDevice returns active bindings ordered by lastAccessedAt desc.
	ListForDevice(ctx context.Context, deviceID string) ([]SavedAccount, error)
	ListForAccount(ctx context.Context, accountID string) ([]SavedAccount, error)
	Deactivate(ctx context.Context, accountID, deviceID string, at time.Time) (bool, error)
	DeactivateDevice(ctx context.Context, deviceID string, at time.Time) (int, error)
	DeactivateAccount(ctx context.Context, accountID string, at time.Time) (int, error)
	UpdateSettings(ctx context.Context, accountID, deviceID string, settings DeviceSettings) (bool, error)
	// PurgeInactive hard-deletes inactive bindings deactivated before the
	// cutoff.
	PurgeInactive(ctx context.Context, before time.Time) (int, error)
}

// CanonicalRef normalizes an external identity reference: letters and
// digits only, upper case. Upstream systems format the same id as
// "emp-0042", "EMP0042" or "Emp 0042"; all map to "EMP0042".
func CanonicalRef(ref string) string {
	var b strings.Builder
	b.Grow(len(ref))
	for _, r := range ref {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(unicode.ToUpper(r))
		}
	}
	return b.String()
}

// NormalizeEmail lower-cases and trims an email for lookups and keys.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
