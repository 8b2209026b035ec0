package internaldefs

import (
	"github.com/umarmf343/veaauth"
)

// Prefix starts every exported series name.
const Prefix = "vea_auth_"

type CounterDef struct {
	ID   veaauth.MetricID
	Name string
	Help string
}

type HistogramDef struct {
	ID   veaauth.MetricID
	Name string
	Help string
}

var CounterDefs = []CounterDef{
	{ID: veaauth.MetricLoginSuccess, Name: Prefix + "login_success_total", Help: "Successful logins."},
	{ID: veaauth.MetricLoginFailure, Name: Prefix + "login_failure_total", Help: "Logins rejected for bad credentials."},
	{ID: veaauth.MetricLoginLocked, Name: Prefix + "login_locked_total", Help: "Logins rejected by the lockout."},
	{ID: veaauth.MetricLoginInactive, Name: Prefix + "login_inactive_total", Help: "Logins rejected for inactive accounts."},
	{ID: veaauth.MetricRefreshSuccess, Name: Prefix + "refresh_success_total", Help: "Successful refresh rotations."},
	{ID: veaauth.MetricRefreshFailure, Name: Prefix + "refresh_failure_total", Help: "Failed refresh attempts."},
	{ID: veaauth.MetricRefreshReuseDetected, Name: Prefix + "refresh_reuse_detected_total", Help: "Refresh tokens presented after consumption."},
	{ID: veaauth.MetricRefreshExpired, Name: Prefix + "refresh_expired_total", Help: "Expired refresh tokens presented."},
	{ID: veaauth.MetricLogout, Name: Prefix + "logout_total", Help: "Logouts."},
	{ID: veaauth.MetricSessionsRevoked, Name: Prefix + "sessions_revoked_total", Help: "Administrative session revocations."},
	{ID: veaauth.MetricAccountRegistered, Name: Prefix + "account_registered_total", Help: "Registered accounts."},
	{ID: veaauth.MetricAccountDuplicate, Name: Prefix + "account_duplicate_total", Help: "Registrations rejected as duplicate."},
	{ID: veaauth.MetricPasswordChanged, Name: Prefix + "password_changed_total", Help: "Successful password changes."},
	{ID: veaauth.MetricPasswordChangeInvalidOld, Name: Prefix + "password_change_invalid_old_total", Help: "Password changes with a wrong current password."},
	{ID: veaauth.MetricPasswordRehashed, Name: Prefix + "password_rehashed_total", Help: "Password hashes upgraded on login."},
	{ID: veaauth.MetricAccessTokenRejected, Name: Prefix + "access_token_rejected_total", Help: "Access tokens that failed verification."},
	{ID: veaauth.MetricAccountUnlocked, Name: Prefix + "account_unlocked_total", Help: "Operator unlocks."},
	{ID: veaauth.MetricBackendUnavailable, Name: Prefix + "backend_unavailable_total", Help: "Operations failed by an unavailable store."},
}

var HistogramDefs = []HistogramDef{
	{ID: veaauth.MetricLoginLatency, Name: Prefix + "login_latency_seconds", Help: "Login latency."},
	{ID: veaauth.MetricRefreshLatency, Name: Prefix + "refresh_latency_seconds", Help: "Refresh latency."},
}

// HistogramBounds are the upper bounds of the engine's latency buckets.
var HistogramBounds = []string{"0.005", "0.01", "0.025", "0.05", "0.1", "0.25", "0.5", "+Inf"}

// HistogramBoundSuffix names each bound in instrument names.
var HistogramBoundSuffix = []string{"0_005", "0_01", "0_025", "0_05", "0_1", "0_25", "0_5", "inf"}

// AuditDroppedName is the series for audit events lost to backpressure.
const AuditDroppedName = Prefix + "audit_dropped_total"

// CumulativeBuckets turns per-bucket counts into cumulative counts sized to
// HistogramBounds. Missing buckets count as zero.
func CumulativeBuckets(raw []uint64) []uint64 {
	out := make([]uint64, len(HistogramBounds))
	var running uint64
	for i := range out {
		if i < len(raw) {
			running += raw[i]
		}
		out[i] = running
	}
	return out
}
