package metrics

import (
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/itohio/ledavg/pkg/sample"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetrics_NilIsNoop(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.Enqueued(sample.TagA, 1)
		m.Dropped(sample.TagB)
		m.Consumed(sample.TagA, 0, 10)
		m.Pressed("S1")
	})
}

func TestMetrics_Counters(t *testing.T) {
	m := New()

	m.Enqueued(sample.TagA, 1)
	m.Enqueued(sample.TagA, 2)
	m.Dropped(sample.TagB)
	m.Consumed(sample.TagA, 1, 115)
	m.Pressed("S2")

	assert.Equal(t, float64(2), testutil.ToFloat64(m.SamplesEnqueued.WithLabelValues("A")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.SamplesDropped.WithLabelValues("B")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.SamplesConsumed.WithLabelValues("A")))
	assert.Equal(t, float64(115), testutil.ToFloat64(m.Average.WithLabelValues("A")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.QueueDepth))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.Presses.WithLabelValues("S2")))
}

func TestMetrics_Handler(t *testing.T) {
	m := New()
	m.Dropped(sample.TagA)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	require.Equal(t, 200, rec.Code)
	assert.True(t, strings.Contains(rec.Body.String(), `ledavg_samples_dropped_total{channel="A"} 1`))
}
