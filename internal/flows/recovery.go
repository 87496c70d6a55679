package flows

// RecoveryAction tells the client which path to take after a failed quick
// login.
type RecoveryAction string

const (
	ActionQRRegistrationRequired RecoveryAction = "qr_registration_required"
	ActionRetryQuickLogin        RecoveryAction = "retry_quick_login"
	ActionPasswordLoginRequired  RecoveryAction = "password_login_required"
)

// RecoveryState is the account snapshot recovery is decided on.
type RecoveryState struct {
	Found            bool
	IsActive         bool
	IsRegistered     bool
	HasPassword      bool
	HasActiveSession bool
}

// RecoveryPlan is the recovery decision. Repair asks the caller to force
// isActive and isRegistered back to true before answering.
type RecoveryPlan struct {
	Action RecoveryAction
	Repair bool
}

// DecideRecovery maps an account snapshot to a recovery action. Accounts
// without a password hash cannot be repaired into a loginable state and
// are sent back through QR registration.
func DecideRecovery(s RecoveryState) RecoveryPlan {
	if !s.Found || !s.HasPassword {
		return RecoveryPlan{Action: ActionQRRegistrationRequired}
	}

	plan := RecoveryPlan{Repair: !s.IsActive || !s.IsRegistered}
	if s.HasActiveSession {
		plan.Action = ActionRetryQuickLogin
	} else {
		plan.Action = ActionPasswordLoginRequired
	}
	return plan
}
