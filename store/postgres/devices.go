package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	goEnroll "github.com/MrEthical07/goEnroll"
)

const bindingColumns = `account_id, device_id, device_name, platform, model, os_version, app_version,
	biometric_enabled, quick_login_enabled, access_count, first_saved_at, last_accessed_at,
	is_active, deactivated_at`

// DeviceRegistry implements goEnroll.DeviceRegistry on the saved_accounts
// table.
type DeviceRegistry struct {
	db DB
}

// NewDeviceRegistry returns a registry over db.
func NewDeviceRegistry(db DB) *DeviceRegistry {
	return &DeviceRegistry{db: db}
}

// RecordUsage upserts the (account, device) row. Settings are only written
// when given; a new row otherwise gets the defaults.
func (r *DeviceRegistry) RecordUsage(ctx context.Context, accountID string, device goEnroll.DeviceInfo, settings *goEnroll.DeviceSettings, at time.Time) error {
	s := goEnroll.DefaultDeviceSettings()
	if settings != nil {
		s = *settings
	}

	_, err := r.db.Exec(ctx, `
		INSERT INTO saved_accounts (
			account_id, device_id, device_name, platform, model, os_version, app_version,
			biometric_enabled, quick_login_enabled, access_count, first_saved_at, last_accessed_at, is_active
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9, 1, $10, $10, TRUE
		)
		ON CONFLICT (account_id, device_id) DO UPDATE SET
			device_name = EXCLUDED.device_name,
			platform = EXCLUDED.platform,
			model = EXCLUDED.model,
			os_version = EXCLUDED.os_version,
			app_version = EXCLUDED.app_version,
			biometric_enabled = CASE WHEN $11 THEN EXCLUDED.biometric_enabled ELSE saved_accounts.biometric_enabled END,
			quick_login_enabled = CASE WHEN $11 THEN EXCLUDED.quick_login_enabled ELSE saved_accounts.quick_login_enabled END,
			access_count = saved_accounts.access_count + 1,
			last_accessed_at = EXCLUDED.last_accessed_at,
			is_active = TRUE,
			deactivated_at = NULL`,
		accountID, device.DeviceID, device.Name, device.Platform, device.Model, device.OSVersion, device.AppVersion,
		s.BiometricEnabled, s.QuickLoginEnabled, at, settings != nil,
	)
	if err != nil {
		return fmt.Errorf("postgres: record device usage: %w", err)
	}
	return nil
}

// ListForDevice implements goEnroll.DeviceRegistry.
func (r *DeviceRegistry) ListForDevice(ctx context.Context, deviceID string) ([]goEnroll.SavedAccount, error) {
	return r.list(ctx, `SELECT `+bindingColumns+` FROM saved_accounts
		WHERE device_id = $1 AND is_active ORDER BY last_accessed_at DESC`, deviceID)
}

// ListForAccount implements goEnroll.DeviceRegistry.
func (r *DeviceRegistry) ListForAccount(ctx context.Context, accountID string) ([]goEnroll.SavedAccount, error) {
	return r.list(ctx, `SELECT `+bindingColumns+` FROM saved_accounts
		WHERE account_id = $1 AND is_active ORDER BY last_accessed_at DESC`, accountID)
}

func (r *DeviceRegistry) list(ctx context.Context, query, arg string) ([]goEnroll.SavedAccount, error) {
	rows, err := r.db.Query(ctx, query, arg)
	if err != nil {
		return nil, fmt.Errorf("postgres: list bindings: %w", err)
	}
	out, err := pgx.CollectRows(rows, scanBinding)
	if err != nil {
		return nil, fmt.Errorf("postgres: list bindings: %w", err)
	}
	return out, nil
}

// Deactivate implements goEnroll.DeviceRegistry.
func (r *DeviceRegistry) Deactivate(ctx context.Context, accountID, deviceID string, at time.Time) (bool, error) {
	n, err := r.deactivate(ctx, `UPDATE saved_accounts SET is_active = FALSE, deactivated_at = $3
		WHERE account_id = $1 AND device_id = $2 AND is_active`, accountID, deviceID, at)
	return n == 1, err
}

// DeactivateDevice implements goEnroll.DeviceRegistry.
func (r *DeviceRegistry) DeactivateDevice(ctx context.Context, deviceID string, at time.Time) (int, error) {
	return r.deactivate(ctx, `UPDATE saved_accounts SET is_active = FALSE, deactivated_at = $2
		WHERE device_id = $1 AND is_active`, deviceID, at)
}

// DeactivateAccount implements goEnroll.DeviceRegistry.
func (r *DeviceRegistry) DeactivateAccount(ctx context.Context, accountID string, at time.Time) (int, error) {
	return r.deactivate(ctx, `UPDATE saved_accounts SET is_active = FALSE, deactivated_at = $2
		WHERE account_id = $1 AND is_active`, accountID, at)
}

func (r *DeviceRegistry) deactivate(ctx context.Context, query string, args ...any) (int, error) {
	tag, err := r.db.Exec(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("postgres: deactivate bindings: %w", err)
	}
	return int(tag.RowsAffected()), nil
}

// UpdateSettings implements goEnroll.DeviceRegistry.
func (r *DeviceRegistry) UpdateSettings(ctx context.Context, accountID, deviceID string, settings goEnroll.DeviceSettings) (bool, error) {
	tag, err := r.db.Exec(ctx, `UPDATE saved_accounts SET biometric_enabled = $3, quick_login_enabled = $4
		WHERE account_id = $1 AND device_id = $2 AND is_active`,
		accountID, deviceID, settings.BiometricEnabled, settings.QuickLoginEnabled)
	if err != nil {
		return false, fmt.Errorf("postgres: update device settings: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

// PurgeInactive implements goEnroll.DeviceRegistry.
func (r *DeviceRegistry) PurgeInactive(ctx context.Context, before time.Time) (int, error) {
	tag, err := r.db.Exec(ctx, `DELETE FROM saved_accounts WHERE NOT is_active AND deactivated_at < $1`, before)
	if err != nil {
		return 0, fmt.Errorf("postgres: purge bindings: %w", err)
	}
	return int(tag.RowsAffected()), nil
}

func scanBinding(row pgx.CollectableRow) (goEnroll.SavedAccount, error) {
	var b goEnroll.SavedAccount
	err := row.Scan(
		&b.AccountID, &b.DeviceID,
		&b.Device.Name, &b.Device.Platform, &b.Device.Model, &b.Device.OSVersion, &b.Device.AppVersion,
		&b.Settings.BiometricEnabled, &b.Settings.QuickLoginEnabled,
		&b.AccessCount, &b.FirstSavedAt, &b.LastAccessedAt, &b.IsActive, &b.DeactivatedAt,
	)
	b.Device.DeviceID = b.DeviceID
	return b, err
}
