package goIdentity

import (
	"sync/atomic"
	"time"
)

// MetricID identifies a counter or histogram in the in-process metrics
// system. Exporters in metrics/export map each ID to a stable name.
type MetricID uint16

const (
	// MetricRegisterSuccess counts completed registrations.
	MetricRegisterSuccess MetricID = iota
	// MetricRegisterDuplicate counts registrations rejected as duplicates.
	MetricRegisterDuplicate
	// MetricRegisterCompensationFailed counts registrations whose compensating
	// identity delete failed, leaving an orphaned identity.
	MetricRegisterCompensationFailed
	// MetricRegisterAutoLoginFailed counts registrations that succeeded
	// without a session because the token exchange failed.
	MetricRegisterAutoLoginFailed
	// MetricLoginSuccess counts successful logins.
	MetricLoginSuccess
	// MetricLoginFailure counts failed logins of any class.
	MetricLoginFailure
	// MetricLoginRateLimited counts logins rejected by the login limiter.
	MetricLoginRateLimited
	// MetricLoginAccountIncomplete counts authenticated identities with no
	// local profile.
	MetricLoginAccountIncomplete
	// MetricRefreshSuccess counts successful refresh rotations.
	MetricRefreshSuccess
	// MetricRefreshFailure counts rejected refresh attempts.
	MetricRefreshFailure
	// MetricEmailChangeInitiated counts accepted email change requests.
	MetricEmailChangeInitiated
	// MetricEmailChangeCompleted counts committed email changes.
	MetricEmailChangeCompleted
	// MetricEmailChangeInvalidToken counts email change verifications with a
	// wrong code.
	MetricEmailChangeInvalidToken
	// MetricEmailChangeExpired counts email change verifications after the
	// verification window.
	MetricEmailChangeExpired
	// MetricEmailChangeRateLimited counts email change attempts rejected by
	// the per-user limiter.
	MetricEmailChangeRateLimited
	// MetricEmailChangeCancelled counts explicit cancellations.
	MetricEmailChangeCancelled
	// MetricEmailVerificationSent counts queued verification links.
	MetricEmailVerificationSent
	// MetricPasswordResetRequested counts password reset requests.
	MetricPasswordResetRequested
	// MetricLogout counts logouts.
	MetricLogout
	// MetricAuthenticateFailure counts rejected bearer tokens.
	MetricAuthenticateFailure
	// MetricNotificationFailed counts notifier failures.
	MetricNotificationFailed
	// MetricErrorReported counts errors forwarded to the error reporter.
	MetricErrorReported
	// MetricAuthenticateLatency is the bearer validation latency histogram.
	MetricAuthenticateLatency
	metricIDCount
)

const (
	histBucketCount = 8
	cacheLineSize   = 64
)

type metricHistogram struct {
	buckets [histBucketCount]uint64
}

type paddedCounter struct {
	value uint64
	_     [cacheLineSize - 8]byte
}

// Metrics holds atomic counters and an optional latency histogram. A nil or
// disabled Metrics is a no-op.
type Metrics struct {
	enabled       bool
	enableLatency bool
	counters      [metricIDCount]paddedCounter
	histograms    [metricIDCount]metricHistogram
}

// MetricsSnapshot is a point-in-time copy of all metrics.
type MetricsSnapshot struct {
	Counters   map[MetricID]uint64
	Histograms map[MetricID][]uint64
}

// NewMetrics creates a [Metrics] configured by cfg.
func NewMetrics(cfg MetricsConfig) *Metrics {
	return &Metrics{
		enabled:       cfg.Enabled,
		enableLatency: cfg.Enabled && cfg.EnableLatencyHistograms,
	}
}

// Enabled reports whether counters are recorded.
func (m *Metrics) Enabled() bool {
	return m != nil && m.enabled
}

// LatencyEnabled reports whether the latency histogram is recorded.
func (m *Metrics) LatencyEnabled() bool {
	return m != nil && m.enableLatency
}

// Inc increments the counter for id.
func (m *Metrics) Inc(id MetricID) {
	if m == nil || !m.enabled || id >= metricIDCount {
		return
	}
	atomic.AddUint64(&m.counters[id].value, 1)
}

// Observe records d in the histogram for id. Only
// [MetricAuthenticateLatency] carries a histogram.
func (m *Metrics) Observe(id MetricID, d time.Duration) {
	if m == nil || !m.enabled || !m.enableLatency || id >= metricIDCount {
		return
	}
	if id != MetricAuthenticateLatency {
		return
	}

	b := bucketIndex(d)
	atomic.AddUint64(&m.histograms[id].buckets[b], 1)
}

// Value returns the current counter value for id.
func (m *Metrics) Value(id MetricID) uint64 {
	if m == nil || id >= metricIDCount {
		return 0
	}
	return atomic.LoadUint64(&m.counters[id].value)
}

// Snapshot copies all counters and histograms.
func (m *Metrics) Snapshot() MetricsSnapshot {
	if m == nil || !m.enabled {
		return MetricsSnapshot{
			Counters:   map[MetricID]uint64{},
			Histograms: map[MetricID][]uint64{},
		}
	}

	s := MetricsSnapshot{
		Counters:   make(map[MetricID]uint64, int(metricIDCount)),
		Histograms: make(map[MetricID][]uint64, 1),
	}

	for id := MetricID(0); id < metricIDCount; id++ {
		if id == MetricAuthenticateLatency {
			continue
		}
		s.Counters[id] = atomic.LoadUint64(&m.counters[id].value)
	}

	if m.enableLatency {
		buckets := make([]uint64, histBucketCount)
		for i := 0; i < histBucketCount; i++ {
			buckets[i] = atomic.LoadUint64(&m.histograms[MetricAuthenticateLatency].buckets[i])
		}
		s.Histograms[MetricAuthenticateLatency] = buckets
	}

	return s
}

func bucketIndex(d time.Duration) int {
	ms := d.Milliseconds()

	switch {
	case ms <= 5:
		return 0
	case ms <= 10:
		return 1
	case ms <= 25:
		return 2
	case ms <= 50:
		return 3
	case ms <= 100:
		return 4
	case ms <= 250:
		return 5
	case ms <= 500:
		return 6
	default:
		return 7
	}
}
