package internaldefs

import (
	goEnroll "github.com/MrEthical07/goEnroll"
)

// Label is one key/value pair attached to a series.
type Label struct {
	Key   string
	Value string
}

// Series binds one engine counter to its labels within a family.
type Series struct {
	ID     goEnroll.MetricID
	Labels []Label
}

// Family groups the counters that describe one flow. Name is the
// Prometheus family name, Instrument the OTel instrument name.
type Family struct {
	Name       string
	Instrument string
	Help       string
	Series     []Series
}

func step(id goEnroll.MetricID, stepName, outcome string) Series {
	return Series{ID: id, Labels: []Label{{"step", stepName}, {"outcome", outcome}}}
}

func login(id goEnroll.MetricID, method, outcome string) Series {
	return Series{ID: id, Labels: []Label{{"method", method}, {"outcome", outcome}}}
}

func event(id goEnroll.MetricID, name string) Series {
	return Series{ID: id, Labels: []Label{{"event", name}}}
}

// Families lists every exported counter. Each MetricID except the
// latency histogram appears exactly once.
var Families = []Family{
	{
		Name:       "goenroll_enrollment_events_total",
		Instrument: "goenroll.enrollment.events",
		Help:       "Enrollment steps by step and outcome.",
		Series: []Series{
			step(goEnroll.MetricScanSuccess, "scan", "success"),
			step(goEnroll.MetricScanAlreadyRegistered, "scan", "already_registered"),
			step(goEnroll.MetricScanFailure, "scan", "failure"),
			step(goEnroll.MetricReRegistration, "scan", "reset"),
			step(goEnroll.MetricCodeIssued, "code", "issued"),
			step(goEnroll.MetricCodeVerified, "code", "verified"),
			step(goEnroll.MetricCodeRejected, "code", "rejected"),
			step(goEnroll.MetricCodeAttemptsExceeded, "code", "attempts_exceeded"),
			step(goEnroll.MetricNotificationFailure, "notification", "failure"),
			step(goEnroll.MetricLegacyPasswordFailure, "legacy_password", "failure"),
			step(goEnroll.MetricRegistrationCompleted, "registration", "completed"),
		},
	},
	{
		Name:       "goenroll_login_events_total",
		Instrument: "goenroll.login.events",
		Help:       "Token issuance attempts by method and outcome.",
		Series: []Series{
			login(goEnroll.MetricLoginSuccess, "password", "success"),
			login(goEnroll.MetricLoginFailure, "password", "failure"),
			login(goEnroll.MetricLoginRateLimited, "password", "rate_limited"),
			login(goEnroll.MetricQuickLoginSuccess, "quick", "success"),
			login(goEnroll.MetricQuickLoginFailure, "quick", "failure"),
			login(goEnroll.MetricReauthRequired, "quick", "reauth_required"),
			login(goEnroll.MetricRefreshSuccess, "refresh", "success"),
			login(goEnroll.MetricRefreshFailure, "refresh", "failure"),
		},
	},
	{
		Name:       "goenroll_session_events_total",
		Instrument: "goenroll.session.events",
		Help:       "Session lifecycle events.",
		Series: []Series{
			event(goEnroll.MetricSessionCreated, "created"),
			event(goEnroll.MetricSessionInvalidated, "invalidated"),
			event(goEnroll.MetricLogout, "logout"),
			event(goEnroll.MetricRecoverSession, "recover"),
		},
	},
	{
		Name:       "goenroll_device_events_total",
		Instrument: "goenroll.device.events",
		Help:       "Saved-account registry events.",
		Series: []Series{
			event(goEnroll.MetricDeviceRecorded, "recorded"),
			event(goEnroll.MetricDeviceRecordFailure, "record_failure"),
			event(goEnroll.MetricBindingsPurged, "purged"),
		},
	},
	{
		Name:       "goenroll_guard_events_total",
		Instrument: "goenroll.guard.events",
		Help:       "Requests stopped by the identity gateway or the rate limiter.",
		Series: []Series{
			event(goEnroll.MetricGatewayFailure, "gateway_failure"),
			event(goEnroll.MetricRateLimitHit, "rate_limited"),
		},
	},
}

// ValidateLatency describes the access-token validation histogram.
var ValidateLatency = struct {
	ID         goEnroll.MetricID
	Name       string
	Instrument string
	Help       string
}{
	ID:         goEnroll.MetricValidateLatency,
	Name:       "goenroll_validate_latency_seconds",
	Instrument: "goenroll.validate.latency",
	Help:       "Access token validation latency.",
}

// AuditDropped names the dropped audit event counter.
const (
	AuditDroppedName       = "goenroll_audit_dropped_total"
	AuditDroppedInstrument = "goenroll.audit.dropped"
	AuditDroppedHelp       = "Audit events dropped because the dispatcher buffer was full."
)

// LatencyBounds are the upper bounds of the latency buckets in seconds.
var LatencyBounds = [8]string{"0.005", "0.01", "0.025", "0.05", "0.1", "0.25", "0.5", "+Inf"}

// CumulativeBuckets pads raw to the bucket count and converts per-bucket
// counts to running totals.
func CumulativeBuckets(raw []uint64) [8]uint64 {
	var out [8]uint64
	var running uint64
	for i := 0; i < len(out); i++ {
		if i < len(raw) {
			running += raw[i]
		}
		out[i] = running
	}
	return out
}
