package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	goEnroll "github.com/MrEthical07/goEnroll"
)

type bindingKey struct {
	accountID string
	deviceID  string
}

// DeviceRegistry keeps saved-account bindings keyed by (account, device).
type DeviceRegistry struct {
	mu       sync.Mutex
	bindings map[bindingKey]*goEnroll.SavedAccount
}

// NewDeviceRegistry returns an empty registry.
func NewDeviceRegistry() *DeviceRegistry {
	return &DeviceRegistry{bindings: make(map[bindingKey]*goEnroll.SavedAccount)}
}

// RecordUsage implements goEnroll.DeviceRegistry. A deactivated binding is
// reactivated with its access count kept.
func (r *DeviceRegistry) RecordUsage(ctx context.Context, accountID string, device goEnroll.DeviceInfo, settings *goEnroll.DeviceSettings, at time.Time) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	key := bindingKey{accountID: accountID, deviceID: device.DeviceID}
	b, ok := r.bindings[key]
	if !ok {
		b = &goEnroll.SavedAccount{
			AccountID:    accountID,
			DeviceID:     device.DeviceID,
			Settings:     goEnroll.DefaultDeviceSettings(),
			FirstSavedAt: at,
		}
		r.bindings[key] = b
	}
	b.Device = device
	b.AccessCount++
	b.LastAccessedAt = at
	b.IsActive = true
	b.DeactivatedAt = nil
	if settings != nil {
		b.Settings = *settings
	}
	return nil
}

// ListForDevice implements goEnroll.DeviceRegistry.
func (r *DeviceRegistry) ListForDevice(ctx context.Context, deviceID string) ([]goEnroll.SavedAccount, error) {
	return r.list(func(k bindingKey) bool { return k.deviceID == deviceID }), nil
}

// ListForAccount implements goEnroll.DeviceRegistry.
func (r *DeviceRegistry) ListForAccount(ctx context.Context, accountID string) ([]goEnroll.SavedAccount, error) {
	return r.list(func(k bindingKey) bool { return k.accountID == accountID }), nil
}

// Deactivate implements goEnroll.DeviceRegistry.
func (r *DeviceRegistry) Deactivate(ctx context.Context, accountID, deviceID string, at time.Time) (bool, error) {
	n := r.deactivate(at, func(k bindingKey) bool {
		return k.accountID == accountID && k.deviceID == deviceID
	})
	return n == 1, nil
}

// DeactivateDevice implements goEnroll.DeviceRegistry.
func (r *DeviceRegistry) DeactivateDevice(ctx context.Context, deviceID string, at time.Time) (int, error) {
	return r.deactivate(at, func(k bindingKey) bool { return k.deviceID == deviceID }), nil
}

// DeactivateAccount implements goEnroll.DeviceRegistry.
func (r *DeviceRegistry) DeactivateAccount(ctx context.Context, accountID string, at time.Time) (int, error) {
	return r.deactivate(at, func(k bindingKey) bool { return k.accountID == accountID }), nil
}

// UpdateSettings implements goEnroll.DeviceRegistry.
func (r *DeviceRegistry) UpdateSettings(ctx context.Context, accountID, deviceID string, settings goEnroll.DeviceSettings) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	b, ok := r.bindings[bindingKey{accountID: accountID, deviceID: deviceID}]
	if !ok || !b.IsActive {
		return false, nil
	}
	b.Settings = settings
	return true, nil
}

// PurgeInactive implements goEnroll.DeviceRegistry.
func (r *DeviceRegistry) PurgeInactive(ctx context.Context, before time.Time) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for k, b := range r.bindings {
		if b.IsActive || b.DeactivatedAt == nil || !b.DeactivatedAt.Before(before) {
			continue
		}
		delete(r.bindings, k)
		n++
	}
	return n, nil
}

func (r *DeviceRegistry) list(match func(bindingKey) bool) []goEnroll.SavedAccount {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]goEnroll.SavedAccount, 0)
	for k, b := range r.bindings {
		if !b.IsActive || !match(k) {
			continue
		}
		c := *b
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].LastAccessedAt.After(out[j].LastAccessedAt)
	})
	return out
}

func (r *DeviceRegistry) deactivate(at time.Time, match func(bindingKey) bool) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for k, b := range r.bindings {
		if !b.IsActive || !match(k) {
			continue
		}
		b.IsActive = false
		b.DeactivatedAt = timePtr(at)
		n++
	}
	return n
}
