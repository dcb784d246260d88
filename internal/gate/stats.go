package gate

import (
	"sync"
	"time"

	"github.com/fairyhunter13/llm-answer-gate/internal/domain"
)

// latencyWindowCap bounds the rolling latency history per provider.
const latencyWindowCap = 100

// UsageRecorder tracks running totals and a bounded latency window for
// one provider. Safe for concurrent use; reset only on process restart.
type UsageRecorder struct {
	mu        sync.Mutex
	total     int64
	failed    int64
	latencies []time.Duration
}

// NewUsageRecorder creates an empty recorder.
func NewUsageRecorder() *UsageRecorder {
	return &UsageRecorder{latencies: make([]time.Duration, 0, latencyWindowCap)}
}

// Record adds one request outcome. Failed requests (including
// empty-response retries) count toward the failure total; latency is
// kept for every completed call, capped to the most recent window.
func (u *UsageRecorder) Record(latency time.Duration, ok bool) {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.total++
	if !ok {
		u.failed++
	}
	if len(u.latencies) >= latencyWindowCap {
		u.latencies = u.latencies[1:]
	}
	u.latencies = append(u.latencies, latency)
}

// Snapshot returns the current counters.
func (u *UsageRecorder) Snapshot() domain.ProviderStats {
	u.mu.Lock()
	defer u.mu.Unlock()

	st := domain.ProviderStats{
		Enabled:          true,
		TotalRequests:    u.total,
		FailedRequests:   u.failed,
		RecentSampleSize: len(u.latencies),
	}
	if u.total > 0 {
		st.SuccessRate = float64(u.total-u.failed) / float64(u.total)
	}
	if len(u.latencies) > 0 {
		var sum time.Duration
		st.MinLatency = u.latencies[0]
		st.MaxLatency = u.latencies[0]
		for _, d := range u.latencies {
			sum += d
			if d < st.MinLatency {
				st.MinLatency = d
			}
			if d > st.MaxLatency {
				st.MaxLatency = d
			}
		}
		st.AvgLatency = sum / time.Duration(len(u.latencies))
	}
	return st
}
