package metrics

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/itohio/ledavg/pkg/sample"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// Metrics holds the pipeline counters. A nil *Metrics is valid and records
// nothing, so components can be built without instrumentation.
type Metrics struct {
	Registry *prometheus.Registry

	SamplesEnqueued *prometheus.CounterVec
	SamplesDropped  *prometheus.CounterVec
	SamplesConsumed *prometheus.CounterVec
	Presses         *prometheus.CounterVec
	QueueDepth      prometheus.Gauge
	Average         *prometheus.GaugeVec
}

// New creates the metrics on a private registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	f := promauto.With(reg)

	return &Metrics{
		Registry: reg,
		SamplesEnqueued: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ledavg_samples_enqueued_total",
				Help: "Conversion results pushed onto the shared sample queue",
			},
			[]string{"channel"},
		),
		SamplesDropped: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ledavg_samples_dropped_total",
				Help: "Conversion results lost because the sample queue was full",
			},
			[]string{"channel"},
		),
		SamplesConsumed: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ledavg_samples_consumed_total",
				Help: "Samples removed from the queue by a channel averager",
			},
			[]string{"channel"},
		),
		Presses: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ledavg_button_presses_total",
				Help: "Press edges detected by the display selector",
			},
			[]string{"button"},
		),
		QueueDepth: f.NewGauge(prometheus.GaugeOpts{
			Name: "ledavg_queue_depth",
			Help: "Samples waiting in the shared queue",
		}),
		Average: f.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "ledavg_average",
				Help: "Latest published moving average per channel (raw ADC counts)",
			},
			[]string{"channel"},
		),
	}
}

// Enqueued counts a sample accepted by the queue and records the new depth.
func (m *Metrics) Enqueued(tag sample.Tag, depth int) {
	if m == nil {
		return
	}
	m.SamplesEnqueued.WithLabelValues(tag.String()).Inc()
	m.QueueDepth.Set(float64(depth))
}

// Dropped counts a sample lost to a full queue.
func (m *Metrics) Dropped(tag sample.Tag) {
	if m == nil {
		return
	}
	m.SamplesDropped.WithLabelValues(tag.String()).Inc()
}

// Consumed counts a sample taken by an averager and records the queue depth
// and the published average.
func (m *Metrics) Consumed(tag sample.Tag, depth int, average uint16) {
	if m == nil {
		return
	}
	m.SamplesConsumed.WithLabelValues(tag.String()).Inc()
	m.QueueDepth.Set(float64(depth))
	m.Average.WithLabelValues(tag.String()).Set(float64(average))
}

// Pressed counts a press event of the named button.
func (m *Metrics) Pressed(button string) {
	if m == nil {
		return
	}
	m.Presses.WithLabelValues(button).Inc()
}

// Handler exposes the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{})
}

// Serve exposes /metrics on addr until ctx is done.
func (m *Metrics) Serve(ctx context.Context, addr string, log *zap.Logger) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())
	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("metrics listening", zap.String("addr", addr))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}
