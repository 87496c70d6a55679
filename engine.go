package goEnroll

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/MrEthical07/goEnroll/internal/audit"
	"github.com/MrEthical07/goEnroll/internal/rate"
	"github.com/MrEthical07/goEnroll/internal/stores"
	"github.com/MrEthical07/goEnroll/jwt"
	"github.com/MrEthical07/goEnroll/session"
)

// Engine is the enrollment and session-lifecycle orchestrator. It is safe
// for concurrent use once built.
type Engine struct {
	config Config
	clock  Clock
	logger *slog.Logger

	accounts AccountStore
	devices  DeviceRegistry
	gateway  IdentityGateway
	notifier Notifier
	hasher   PasswordHasher

	sessions      *session.Store
	codes         *stores.VerificationCodeStore
	registrations *stores.RegistrationSessionStore
	limiter       *rate.Limiter
	jwtManager    *jwt.Manager

	audit   *audit.Dispatcher
	metrics *Metrics
}

// Close flushes pending audit events and stops the dispatcher.
func (e *Engine) Close() {
	if e == nil {
		return
	}
	if e.audit != nil {
		e.audit.Close()
	}
}

// AuditDropped reports audit events dropped because the buffer was full.
func (e *Engine) AuditDropped() uint64 {
	if e == nil || e.audit == nil {
		return 0
	}
	return e.audit.Dropped()
}

// MetricsSnapshot returns a copy of the engine counters.
func (e *Engine) MetricsSnapshot() MetricsSnapshot {
	if e == nil || e.metrics == nil {
		return MetricsSnapshot{
			Counters:   map[MetricID]uint64{},
			Histograms: map[MetricID][]uint64{},
		}
	}
	return e.metrics.Snapshot()
}

// Ping reports whether the Redis backend is reachable.
func (e *Engine) Ping(ctx context.Context) error {
	if e == nil || e.sessions == nil {
		return ErrEngineNotReady
	}
	if err := e.sessions.Ping(ctx); err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return nil
}

// Config returns a copy of the engine configuration.
func (e *Engine) Config() Config {
	return cloneConfig(e.config)
}

func (e *Engine) metricInc(id MetricID) {
	if e == nil || e.metrics == nil {
		return
	}
	e.metrics.Inc(id)
}

func (e *Engine) now() time.Time {
	return e.clock.Now()
}

func (e *Engine) ready() error {
	if e == nil || e.accounts == nil || e.devices == nil || e.gateway == nil ||
		e.sessions == nil || e.codes == nil || e.registrations == nil ||
		e.jwtManager == nil || e.hasher == nil {
		return ErrEngineNotReady
	}
	return nil
}

// gatewayContext bounds a gateway call by the configured timeout.
func (e *Engine) gatewayContext(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, e.config.Gateway.Timeout)
}

// gatewayError maps gateway failures onto the engine taxonomy. Anything
// that is not a token rejection becomes ErrIdentityUnavailable.
func (e *Engine) gatewayError(err error) error {
	if errors.Is(err, ErrInvalidOrExpiredToken) {
		return ErrInvalidOrExpiredToken
	}
	e.metricInc(MetricGatewayFailure)
	if errors.Is(err, ErrIdentityUnavailable) {
		return err
	}
	return fmt.Errorf("%w: %v", ErrIdentityUnavailable, err)
}

// storeError passes engine sentinels through and wraps anything else as
// ErrStoreUnavailable.
func storeError(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, ErrStoreUnavailable),
		errors.Is(err, ErrAccountNotFound),
		errors.Is(err, ErrAlreadyRegistered):
		return err
	default:
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
}

// allow runs a rate check. Limiter backend failures do not block the
// caller; they are logged.
func (e *Engine) allow(ctx context.Context, scope string, rec auditRecord, check func(*rate.Limiter) error) error {
	if e.limiter == nil {
		return nil
	}
	err := check(e.limiter)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, rate.ErrRateLimited):
		e.emitRateLimit(ctx, scope, rec)
		return ErrRateLimited
	default:
		e.logger.Warn("goEnroll: rate limiter unavailable", "scope", scope, "error", err)
		return nil
	}
}

func normalizeDevice(d DeviceInfo) DeviceInfo {
	d.DeviceID = strings.TrimSpace(d.DeviceID)
	return d
}

// describesDevice reports whether d carries anything beyond the device id.
func describesDevice(d DeviceInfo) bool {
	return d.Name != "" || d.Platform != "" || d.Model != "" || d.OSVersion != "" || d.AppVersion != ""
}

// decodeDevice restores the device info stored on a session. Unreadable
// values fall back to the bare device id.
func decodeDevice(raw, deviceID string) DeviceInfo {
	var d DeviceInfo
	if raw != "" {
		if err := json.Unmarshal([]byte(raw), &d); err != nil {
			d = DeviceInfo{}
		}
	}
	if d.DeviceID == "" {
		d.DeviceID = deviceID
	}
	return d
}

func encodeDevice(d DeviceInfo) string {
	if d.DeviceID == "" && d.Name == "" && d.Platform == "" && d.Model == "" {
		return ""
	}
	raw, err := json.Marshal(d)
	if err != nil {
		return ""
	}
	return string(raw)
}
