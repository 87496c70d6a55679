package goEnroll

import (
	"context"

	"github.com/MrEthical07/goEnroll/internal/audit"
)

const (
	auditEventScan                 = "scan_entry"
	auditEventCodeIssued           = "code_issued"
	auditEventCodeVerify           = "code_verify"
	auditEventLegacyPassword       = "legacy_password_verify"
	auditEventRegistrationComplete = "registration_complete"
	auditEventLogin                = "login"
	auditEventQuickLogin           = "quick_login"
	auditEventRefresh              = "refresh"
	auditEventLogout               = "logout"
	auditEventRecoverSession       = "recover_session"
	auditEventDeviceRemove         = "device_remove"
	auditEventDeviceClear          = "device_clear"
	auditEventDeviceSettings       = "device_settings"
	auditEventBindingsPurged       = "bindings_purged"
	auditEventRateLimitTriggered   = "rate_limit_triggered"
)

// auditRecord is the subject of one audit event. Empty fields are omitted.
type auditRecord struct {
	accountID string
	sessionID string
	deviceID  string
	email     string
}

func (e *Engine) emitAudit(
	ctx context.Context,
	eventType string,
	success bool,
	rec auditRecord,
	err error,
	metadataBuilder func() map[string]string,
) {
	if e == nil || e.audit == nil {
		return
	}

	var metadata map[string]string
	if metadataBuilder != nil {
		metadata = metadataBuilder()
	}
	if ua := userAgentFromContext(ctx); ua != "" {
		if metadata == nil {
			metadata = map[string]string{}
		}
		metadata["user_agent"] = ua
	}

	event := audit.Event{
		Timestamp: e.now().UTC(),
		EventType: eventType,
		AccountID: rec.accountID,
		SessionID: rec.sessionID,
		DeviceID:  rec.deviceID,
		Email:     rec.email,
		IP:        clientIPFromContext(ctx),
		Success:   success,
		Metadata:  metadata,
	}
	if err != nil {
		event.Error = Reason(err)
	}

	e.audit.Emit(ctx, event)
}

func (e *Engine) emitRateLimit(ctx context.Context, scope string, rec auditRecord) {
	e.metricInc(MetricRateLimitHit)
	e.emitAudit(ctx, auditEventRateLimitTriggered, false, rec, ErrRateLimited, func() map[string]string {
		return map[string]string{"scope": scope}
	})
}
