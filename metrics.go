package keygate

import "sync/atomic"

// MetricID identifies one engine counter.
type MetricID uint16

const (
	MetricChallengeIssued MetricID = iota
	MetricChallengeDeliveryFailed
	MetricChallengeVerified
	MetricChallengeFailed
	MetricChallengeRateLimited
	MetricLockoutTriggered
	MetricLoginLockedRejected
	MetricTokenIssued
	MetricTokenRefreshed
	MetricTokenRejected
	MetricKeyCreated
	MetricKeyAssigned
	MetricKeyReturned
	MetricKeyMaintenance
	MetricKeyConflict
	MetricPermissionDenied

	metricCount // keep last
)

var metricNames = map[MetricID]string{
	MetricChallengeIssued:         "challenge_issued",
	MetricChallengeDeliveryFailed: "challenge_delivery_failed",
	MetricChallengeVerified:       "challenge_verified",
	MetricChallengeFailed:         "challenge_failed",
	MetricChallengeRateLimited:    "challenge_rate_limited",
	MetricLockoutTriggered:        "lockout_triggered",
	MetricLoginLockedRejected:     "login_locked_rejected",
	MetricTokenIssued:             "token_issued",
	MetricTokenRefreshed:          "token_refreshed",
	MetricTokenRejected:           "token_rejected",
	MetricKeyCreated:              "key_created",
	MetricKeyAssigned:             "key_assigned",
	MetricKeyReturned:             "key_returned",
	MetricKeyMaintenance:          "key_maintenance",
	MetricKeyConflict:             "key_conflict",
	MetricPermissionDenied:        "permission_denied",
}

func (id MetricID) String() string {
	if name, ok := metricNames[id]; ok {
		return name
	}
	return "unknown"
}

// Metrics is a fixed table of atomic counters. All methods are safe for
// concurrent use and are no-ops on a nil or disabled receiver.
type Metrics struct {
	enabled  bool
	counters [metricCount]atomic.Uint64
}

func newMetrics(cfg MetricsConfig) *Metrics {
	if !cfg.Enabled {
		return nil
	}
	return &Metrics{enabled: true}
}

// Inc increments one counter.
func (m *Metrics) Inc(id MetricID) {
	if m == nil || !m.enabled || id >= metricCount {
		return
	}
	m.counters[id].Add(1)
}

// MetricsSnapshot is a point-in-time copy of every counter.
type MetricsSnapshot struct {
	Counters map[MetricID]uint64
}

// Snapshot copies the current counter values.
func (m *Metrics) Snapshot() MetricsSnapshot {
	snap := MetricsSnapshot{Counters: make(map[MetricID]uint64, int(metricCount))}
	if m == nil || !m.enabled {
		return snap
	}
	for id := MetricID(0); id < metricCount; id++ {
		snap.Counters[id] = m.counters[id].Load()
	}
	return snap
}
