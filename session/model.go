package session

import (
	"strconv"
	"time"
)

// Session is one device-bound login of an account.
type Session struct {
	SessionID           string
	AccountID           string
	DeviceID            string
	DeviceInfo          string
	AccessTokenID       string
	Active              bool
	QuickLoginEnabled   bool
	CreatedAt           time.Time
	LastActivityAt      time.Time
	ExpiresAt           time.Time
	QuickLoginExpiresAt time.Time
	RefreshHash         string
	RefreshExpiresAt    time.Time
}

// Rotation carries the values written by a successful refresh rotation.
type Rotation struct {
	RefreshHash         string
	RefreshExpiresAt    time.Time
	AccessTokenID       string
	ExpiresAt           time.Time
	QuickLoginExpiresAt time.Time
}

// RetainUntil is the latest deadline that still needs the record.
func (s *Session) RetainUntil() time.Time {
	until := s.RefreshExpiresAt
	if s.QuickLoginExpiresAt.After(until) {
		until = s.QuickLoginExpiresAt
	}
	if s.ExpiresAt.After(until) {
		until = s.ExpiresAt
	}
	return until
}

// AccessValid reports whether an access token of this session may be used
// at now.
func (s *Session) AccessValid(now time.Time) bool {
	return s.Active && now.Before(s.ExpiresAt)
}

func (s *Session) fields() []any {
	return []any{
		"account_id", s.AccountID,
		"device_id", s.DeviceID,
		"device_info", s.DeviceInfo,
		"access_jti", s.AccessTokenID,
		"active", boolField(s.Active),
		"quick_login_enabled", boolField(s.QuickLoginEnabled),
		"created_at", s.CreatedAt.UnixMilli(),
		"last_activity_at", s.LastActivityAt.UnixMilli(),
		"expires_at", s.ExpiresAt.UnixMilli(),
		"quick_login_expires_at", s.QuickLoginExpiresAt.UnixMilli(),
		"refresh_hash", s.RefreshHash,
		"refresh_expires_at", s.RefreshExpiresAt.UnixMilli(),
	}
}

func decodeSession(sessionID string, v map[string]string) *Session {
	return &Session{
		SessionID:           sessionID,
		AccountID:           v["account_id"],
		DeviceID:            v["device_id"],
		DeviceInfo:          v["device_info"],
		AccessTokenID:       v["access_jti"],
		Active:              v["active"] == "1",
		QuickLoginEnabled:   v["quick_login_enabled"] == "1",
		CreatedAt:           millis(v["created_at"]),
		LastActivityAt:      millis(v["last_activity_at"]),
		ExpiresAt:           millis(v["expires_at"]),
		QuickLoginExpiresAt: millis(v["quick_login_expires_at"]),
		RefreshHash:         v["refresh_hash"],
		RefreshExpiresAt:    millis(v["refresh_expires_at"]),
	}
}

func millis(raw string) time.Time {
	ms, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || ms == 0 {
		return time.Time{}
	}
	return time.UnixMilli(ms)
}

func boolField(v bool) string {
	if v {
		return "1"
	}
	return "0"
}
