package gate

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestUsageRecorder_Snapshot(t *testing.T) {
	t.Parallel()

	rec := NewUsageRecorder()

	empty := rec.Snapshot()
	assert.Zero(t, empty.TotalRequests)
	assert.Zero(t, empty.SuccessRate)
	assert.Zero(t, empty.RecentSampleSize)

	rec.Record(100*time.Millisecond, true)
	rec.Record(300*time.Millisecond, true)
	rec.Record(200*time.Millisecond, false)

	st := rec.Snapshot()
	assert.Equal(t, int64(3), st.TotalRequests)
	assert.Equal(t, int64(1), st.FailedRequests)
	assert.InDelta(t, 2.0/3.0, st.SuccessRate, 1e-9)
	assert.Equal(t, 3, st.RecentSampleSize)
	assert.Equal(t, 100*time.Millisecond, st.MinLatency)
	assert.Equal(t, 300*time.Millisecond, st.MaxLatency)
	assert.Equal(t, 200*time.Millisecond, st.AvgLatency)
}

func TestUsageRecorder_WindowSlides(t *testing.T) {
	t.Parallel()

	rec := NewUsageRecorder()
	for i := 0; i < latencyWindowCap+50; i++ {
		rec.Record(time.Duration(i)*time.Millisecond, true)
	}

	st := rec.Snapshot()
	assert.Equal(t, int64(latencyWindowCap+50), st.TotalRequests)
	assert.Equal(t, latencyWindowCap, st.RecentSampleSize)
	// The oldest 50 samples fell out of the window.
	assert.Equal(t, 50*time.Millisecond, st.MinLatency)
}
