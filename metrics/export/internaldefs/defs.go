package internaldefs

import (
	"github.com/keygatelabs/keygate"
)

// CounterDef binds one engine counter to its stable exported name.
type CounterDef struct {
	ID   keygate.MetricID
	Name string
	Help string
}

// CounterDefs lists every engine counter in export order.
var CounterDefs = []CounterDef{
	{ID: keygate.MetricChallengeIssued, Name: "keygate_challenge_issued_total", Help: "Challenges created."},
	{ID: keygate.MetricChallengeDeliveryFailed, Name: "keygate_challenge_delivery_failed_total", Help: "Challenge codes the notifier failed to deliver."},
	{ID: keygate.MetricChallengeVerified, Name: "keygate_challenge_verified_total", Help: "Successfully verified challenges."},
	{ID: keygate.MetricChallengeFailed, Name: "keygate_challenge_failed_total", Help: "Failed challenge verifications."},
	{ID: keygate.MetricChallengeRateLimited, Name: "keygate_challenge_rate_limited_total", Help: "Rate-limited challenge requests."},
	{ID: keygate.MetricLockoutTriggered, Name: "keygate_lockout_triggered_total", Help: "Accounts locked by consecutive failures."},
	{ID: keygate.MetricLoginLockedRejected, Name: "keygate_login_locked_rejected_total", Help: "Operations rejected because the account is locked."},
	{ID: keygate.MetricTokenIssued, Name: "keygate_token_issued_total", Help: "Session tokens issued."},
	{ID: keygate.MetricTokenRefreshed, Name: "keygate_token_refreshed_total", Help: "Session tokens refreshed."},
	{ID: keygate.MetricTokenRejected, Name: "keygate_token_rejected_total", Help: "Session tokens rejected on verification."},
	{ID: keygate.MetricKeyCreated, Name: "keygate_key_created_total", Help: "Keys registered."},
	{ID: keygate.MetricKeyAssigned, Name: "keygate_key_assigned_total", Help: "Key assignments."},
	{ID: keygate.MetricKeyReturned, Name: "keygate_key_returned_total", Help: "Key returns."},
	{ID: keygate.MetricKeyMaintenance, Name: "keygate_key_maintenance_total", Help: "Keys pulled for maintenance."},
	{ID: keygate.MetricKeyConflict, Name: "keygate_key_conflict_total", Help: "Key transitions lost to a state conflict or race."},
	{ID: keygate.MetricPermissionDenied, Name: "keygate_permission_denied_total", Help: "Operations denied by the permission hierarchy."},
}

// AuditDroppedName is the exported counter for audit dispatcher overflow.
const AuditDroppedName = "keygate_audit_dropped_total"

// AuditDroppedHelp documents the audit overflow counter.
const AuditDroppedHelp = "Dropped audit events due to dispatcher backpressure."
