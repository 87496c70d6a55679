package flows

// ScanOutcome is the decision for a QR scan against the current account
// state of an identity.
type ScanOutcome int

const (
	// ScanFresh means no account exists yet.
	ScanFresh ScanOutcome = iota
	// ScanResume means an account exists but is not registered, e.g. after an
	// earlier reset. Enrollment continues without touching the row.
	ScanResume
	// ScanReset means the account is logged out. It is reset to the
	// pre-registration state and enrollment continues.
	ScanReset
	// ScanClaimed means the account is registered and not logged out.
	ScanClaimed
)

func (o ScanOutcome) String() string {
	switch o {
	case ScanFresh:
		return "fresh"
	case ScanResume:
		return "resume"
	case ScanReset:
		return "reset"
	case ScanClaimed:
		return "claimed"
	default:
		return "unknown"
	}
}

// Proceeds reports whether enrollment may continue.
func (o ScanOutcome) Proceeds() bool {
	return o != ScanClaimed
}

// AccountState is the subset of account flags the scan decision reads.
type AccountState struct {
	Exists       bool
	IsRegistered bool
	IsLoggedOut  bool
}

// DecideScan applies the scan decision table. Logout revokes the
// registration claim, so a logged-out account is always re-enrollable.
func DecideScan(s AccountState) ScanOutcome {
	switch {
	case !s.Exists:
		return ScanFresh
	case s.IsLoggedOut:
		return ScanReset
	case s.IsRegistered:
		return ScanClaimed
	default:
		return ScanResume
	}
}
