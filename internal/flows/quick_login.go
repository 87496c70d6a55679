package flows

import (
	"sort"
	"time"
)

// QuickLoginDecision is the outcome of quick-login eligibility.
type QuickLoginDecision int

const (
	QuickLoginAllowed QuickLoginDecision = iota
	QuickLoginAccountNotFound
	QuickLoginAccountInactive
	QuickLoginExpiredAfterLogout
	QuickLoginNoActiveSession
	QuickLoginReauthRequired
)

// QuickLoginState is the snapshot quick login is decided on.
type QuickLoginState struct {
	AccountFound         bool
	IsActive             bool
	IsRegistered         bool
	IsLoggedOut          bool
	HasQualifyingSession bool
	LastLoginAt          *time.Time
}

// DecideQuickLogin evaluates, in order: account presence, account status,
// a qualifying session, then the re-authentication window.
func DecideQuickLogin(s QuickLoginState, now time.Time, window time.Duration) QuickLoginDecision {
	if !s.AccountFound {
		return QuickLoginAccountNotFound
	}
	if !s.IsActive || !s.IsRegistered {
		return QuickLoginAccountInactive
	}
	if !s.HasQualifyingSession {
		if s.IsLoggedOut {
			return QuickLoginExpiredAfterLogout
		}
		return QuickLoginNoActiveSession
	}
	if ReauthDue(s.LastLoginAt, now, window) {
		return QuickLoginReauthRequired
	}
	return QuickLoginAllowed
}

// ReauthDue reports whether a password login is required. The window is
// inclusive: exactly window after the last login already requires reauth.
func ReauthDue(lastLoginAt *time.Time, now time.Time, window time.Duration) bool {
	if lastLoginAt == nil || lastLoginAt.IsZero() {
		return true
	}
	return now.Sub(*lastLoginAt) >= window
}

// SessionView is the subset of a user session quick login selects on.
type SessionView struct {
	ID                  string
	DeviceID            string
	Active              bool
	QuickLoginEnabled   bool
	QuickLoginExpiresAt time.Time
	LastActivityAt      time.Time
}

// Qualifies reports whether the session can back a quick login at now.
func (s SessionView) Qualifies(now time.Time) bool {
	return s.Active && s.QuickLoginEnabled && now.Before(s.QuickLoginExpiresAt)
}

// PickQuickLoginSession returns the qualifying session to reuse. A session
// on deviceID wins; otherwise the most recently active one.
func PickQuickLoginSession(sessions []SessionView, deviceID string, now time.Time) (SessionView, bool) {
	candidates := make([]SessionView, 0, len(sessions))
	for _, s := range sessions {
		if s.Qualifies(now) {
			candidates = append(candidates, s)
		}
	}
	if len(candidates) == 0 {
		return SessionView{}, false
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].LastActivityAt.After(candidates[j].LastActivityAt)
	})

	if deviceID != "" {
		for _, s := range candidates {
			if s.DeviceID == deviceID {
				return s, true
			}
		}
	}
	return candidates[0], true
}

// HasQualifying reports whether any session can back a quick login.
func HasQualifying(sessions []SessionView, now time.Time) bool {
	_, ok := PickQuickLoginSession(sessions, "", now)
	return ok
}
