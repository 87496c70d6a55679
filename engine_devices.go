package goEnroll

import (
	"context"
	"errors"
	"strconv"
	"strings"

	"github.com/MrEthical07/goEnroll/internal/flows"
)

// SavedAccounts lists the accounts used on deviceID, most recent first.
// Bindings whose account no longer exists are skipped.
func (e *Engine) SavedAccounts(ctx context.Context, deviceID string) ([]SavedAccountView, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	deviceID = strings.TrimSpace(deviceID)
	if deviceID == "" {
		return nil, ErrInvalidInput
	}

	bindings, err := e.devices.ListForDevice(ctx, deviceID)
	if err != nil {
		return nil, storeError(err)
	}

	now := e.now()
	out := make([]SavedAccountView, 0, len(bindings))
	for _, b := range bindings {
		account, err := e.accounts.GetByID(ctx, b.AccountID)
		if errors.Is(err, ErrAccountNotFound) {
			continue
		}
		if err != nil {
			return nil, storeError(err)
		}

		quick := false
		if b.Settings.QuickLoginEnabled && account.IsActive && account.IsRegistered && !account.IsLoggedOut {
			sessions, err := e.sessions.ListForAccount(ctx, account.ID)
			if err != nil {
				return nil, storeError(err)
			}
			views := make([]flows.SessionView, 0, len(sessions))
			for _, s := range sessions {
				views = append(views, sessionView(s))
			}
			quick = flows.HasQualifying(views, now)
		}

		out = append(out, SavedAccountView{
			ID:             account.ID,
			Username:       account.Username,
			Email:          account.Email,
			Name:           account.Name,
			HasQuickAccess: quick,
			LastLoginAt:    account.LastLoginAt,
			Settings:       b.Settings,
		})
	}
	return out, nil
}

// DevicesForAccount lists the active device bindings of an account.
func (e *Engine) DevicesForAccount(ctx context.Context, accountID string) ([]SavedAccount, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	accountID = strings.TrimSpace(accountID)
	if accountID == "" {
		return nil, ErrInvalidInput
	}
	bindings, err := e.devices.ListForAccount(ctx, accountID)
	if err != nil {
		return nil, storeError(err)
	}
	return bindings, nil
}

// RemoveSavedAccount soft-deletes one binding. It reports whether an active
// binding was found.
func (e *Engine) RemoveSavedAccount(ctx context.Context, accountID, deviceID string) (bool, error) {
	if err := e.ready(); err != nil {
		return false, err
	}
	accountID = strings.TrimSpace(accountID)
	deviceID = strings.TrimSpace(deviceID)
	if accountID == "" || deviceID == "" {
		return false, ErrInvalidInput
	}

	removed, err := e.devices.Deactivate(ctx, accountID, deviceID, e.now())
	if err != nil {
		return false, storeError(err)
	}
	e.emitAudit(ctx, auditEventDeviceRemove, true, auditRecord{accountID: accountID, deviceID: deviceID}, nil, func() map[string]string {
		return map[string]string{"removed": strconv.FormatBool(removed)}
	})
	return removed, nil
}

// ClearDevice soft-deletes every binding on deviceID and returns how many
// were active.
func (e *Engine) ClearDevice(ctx context.Context, deviceID string) (int, error) {
	if err := e.ready(); err != nil {
		return 0, err
	}
	deviceID = strings.TrimSpace(deviceID)
	if deviceID == "" {
		return 0, ErrInvalidInput
	}

	n, err := e.devices.DeactivateDevice(ctx, deviceID, e.now())
	if err != nil {
		return 0, storeError(err)
	}
	e.emitAudit(ctx, auditEventDeviceClear, true, auditRecord{deviceID: deviceID}, nil, func() map[string]string {
		return map[string]string{"removed": strconv.Itoa(n)}
	})
	return n, nil
}

// UpdateDeviceSettings replaces the settings of an active binding.
func (e *Engine) UpdateDeviceSettings(ctx context.Context, accountID, deviceID string, settings DeviceSettings) (bool, error) {
	if err := e.ready(); err != nil {
		return false, err
	}
	accountID = strings.TrimSpace(accountID)
	deviceID = strings.TrimSpace(deviceID)
	if accountID == "" || deviceID == "" {
		return false, ErrInvalidInput
	}

	updated, err := e.devices.UpdateSettings(ctx, accountID, deviceID, settings)
	if err != nil {
		return false, storeError(err)
	}
	e.emitAudit(ctx, auditEventDeviceSettings, updated, auditRecord{accountID: accountID, deviceID: deviceID}, nil, func() map[string]string {
		return map[string]string{
			"biometric_enabled":   strconv.FormatBool(settings.BiometricEnabled),
			"quick_login_enabled": strconv.FormatBool(settings.QuickLoginEnabled),
		}
	})
	return updated, nil
}

// PurgeStale hard-deletes bindings that have been inactive for more than
// maxAgeDays days.
func (e *Engine) PurgeStale(ctx context.Context, maxAgeDays int) (int, error) {
	if err := e.ready(); err != nil {
		return 0, err
	}
	if maxAgeDays <= 0 {
		return 0, ErrInvalidInput
	}

	before := e.now().AddDate(0, 0, -maxAgeDays)
	n, err := e.devices.PurgeInactive(ctx, before)
	if err != nil {
		return 0, storeError(err)
	}
	if n > 0 && e.metrics != nil {
		e.metrics.Add(MetricBindingsPurged, uint64(n))
	}
	e.emitAudit(ctx, auditEventBindingsPurged, true, auditRecord{}, nil, func() map[string]string {
		return map[string]string{
			"max_age_days": strconv.Itoa(maxAgeDays),
			"purged":       strconv.Itoa(n),
		}
	})
	return n, nil
}
