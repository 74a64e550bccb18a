package internaldefs

import (
	goIdentity "github.com/MrEthical07/goIdentity"
)

// CounterDef maps a counter to its exported name.
type CounterDef struct {
	ID   goIdentity.MetricID
	Name string
	Help string
}

// HistogramDef maps a histogram to its exported name.
type HistogramDef struct {
	ID   goIdentity.MetricID
	Name string
	Help string
}

// CounterDefs lists every engine counter in export order.
var CounterDefs = []CounterDef{
	{ID: goIdentity.MetricRegisterSuccess, Name: "goidentity_register_success_total", Help: "Completed registrations."},
	{ID: goIdentity.MetricRegisterDuplicate, Name: "goidentity_register_duplicate_total", Help: "Registrations rejected as duplicates."},
	{ID: goIdentity.MetricRegisterCompensationFailed, Name: "goidentity_register_compensation_failed_total", Help: "Registrations that left an orphaned provider identity."},
	{ID: goIdentity.MetricRegisterAutoLoginFailed, Name: "goidentity_register_auto_login_failed_total", Help: "Registrations completed without a session."},
	{ID: goIdentity.MetricLoginSuccess, Name: "goidentity_login_success_total", Help: "Successful logins."},
	{ID: goIdentity.MetricLoginFailure, Name: "goidentity_login_failure_total", Help: "Failed logins."},
	{ID: goIdentity.MetricLoginRateLimited, Name: "goidentity_login_rate_limited_total", Help: "Logins rejected by the login limiter."},
	{ID: goIdentity.MetricLoginAccountIncomplete, Name: "goidentity_login_account_incomplete_total", Help: "Authenticated identities without a profile."},
	{ID: goIdentity.MetricRefreshSuccess, Name: "goidentity_refresh_success_total", Help: "Successful refresh rotations."},
	{ID: goIdentity.MetricRefreshFailure, Name: "goidentity_refresh_failure_total", Help: "Rejected refresh attempts."},
	{ID: goIdentity.MetricEmailChangeInitiated, Name: "goidentity_email_change_initiated_total", Help: "Accepted email change requests."},
	{ID: goIdentity.MetricEmailChangeCompleted, Name: "goidentity_email_change_completed_total", Help: "Committed email changes."},
	{ID: goIdentity.MetricEmailChangeInvalidToken, Name: "goidentity_email_change_invalid_token_total", Help: "Email change verifications with a wrong code."},
	{ID: goIdentity.MetricEmailChangeExpired, Name: "goidentity_email_change_expired_total", Help: "Email change verifications after expiry."},
	{ID: goIdentity.MetricEmailChangeRateLimited, Name: "goidentity_email_change_rate_limited_total", Help: "Email change attempts rejected by the limiter."},
	{ID: goIdentity.MetricEmailChangeCancelled, Name: "goidentity_email_change_cancelled_total", Help: "Cancelled email changes."},
	{ID: goIdentity.MetricEmailVerificationSent, Name: "goidentity_email_verification_sent_total", Help: "Queued email verification links."},
	{ID: goIdentity.MetricPasswordResetRequested, Name: "goidentity_password_reset_requested_total", Help: "Password reset requests."},
	{ID: goIdentity.MetricLogout, Name: "goidentity_logout_total", Help: "Logouts."},
	{ID: goIdentity.MetricAuthenticateFailure, Name: "goidentity_authenticate_failure_total", Help: "Rejected bearer tokens."},
	{ID: goIdentity.MetricNotificationFailed, Name: "goidentity_notification_failed_total", Help: "Failed notifier deliveries."},
	{ID: goIdentity.MetricErrorReported, Name: "goidentity_error_reported_total", Help: "Errors forwarded to the error reporter."},
}

// HistogramDefs lists every engine histogram.
var HistogramDefs = []HistogramDef{
	{ID: goIdentity.MetricAuthenticateLatency, Name: "goidentity_authenticate_latency_seconds", Help: "Bearer token validation latency."},
}

// Names of the counters read from the engine's async queues.
const (
	AuditDroppedName         = "goidentity_audit_dropped_total"
	AuditDroppedHelp         = "Audit events dropped under backpressure."
	NotificationsDroppedName = "goidentity_notifications_dropped_total"
	NotificationsDroppedHelp = "Notifications dropped under backpressure."
)

// HistogramBounds are the upper bounds in seconds of the first seven
// buckets. The eighth bucket is +Inf.
var HistogramBounds = []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5}

// HistogramBoundSuffix names each bucket for exporters without native
// histogram bounds.
var HistogramBoundSuffix = []string{
	"0_005",
	"0_01",
	"0_025",
	"0_05",
	"0_1",
	"0_25",
	"0_5",
	"inf",
}

// NormalizeBuckets copies raw into a fixed eight-bucket array.
func NormalizeBuckets(raw []uint64) [8]uint64 {
	var out [8]uint64
	for i := 0; i < len(out) && i < len(raw); i++ {
		out[i] = raw[i]
	}
	return out
}

// CumulativeBuckets turns per-bucket counts into running totals.
func CumulativeBuckets(raw [8]uint64) [8]uint64 {
	var out [8]uint64
	var running uint64
	for i := 0; i < len(raw); i++ {
		running += raw[i]
		out[i] = running
	}
	return out
}
