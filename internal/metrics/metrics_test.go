package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func value(t *testing.T, m prometheus.Metric) float64 {
	t.Helper()
	var out dto.Metric
	require.NoError(t, m.Write(&out))
	if out.Counter != nil {
		return out.Counter.GetValue()
	}
	return out.Gauge.GetValue()
}

func TestMetrics(t *testing.T) {
	// Register should be safe to call multiple times
	Register()
	Register()

	assert.NotPanics(t, func() {
		IncHTTP("test_endpoint")
	})
}

func TestSyncCounters(t *testing.T) {
	written := operationsCommitted.WithLabelValues("booking", "written")
	before := value(t, written)
	AddCommitted("booking", "written", 3)
	AddCommitted("booking", "written", 0)
	assert.Equal(t, before+3, value(t, written))

	SetQueueLength(7)
	assert.Equal(t, float64(7), value(t, queueLength))

	SetOnline(true)
	assert.Equal(t, float64(1), value(t, online))
	SetOnline(false)
	assert.Equal(t, float64(0), value(t, online))

	exhausted := value(t, retriesExhausted)
	IncRetriesExhausted()
	assert.Equal(t, exhausted+1, value(t, retriesExhausted))
}
