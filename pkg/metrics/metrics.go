// Package metrics exposes the daemon's request counters on a
// Prometheus endpoint.
package metrics

import (
	"context"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	log "github.com/sirupsen/logrus"
)

// Request outcomes. Dropped covers every request that got no reply.
const (
	OutcomeOK      = "ok"
	OutcomeErr     = "err"
	OutcomeDropped = "dropped"
)

// Recorder is the narrow surface the dispatcher records into.
type Recorder interface {
	ObserveRequest(op, outcome string, duration time.Duration)
	SetDisksEnumerated(count int)
}

// Exporter implements Recorder on a private Prometheus registry.
type Exporter struct {
	registry *prometheus.Registry
	requests *prometheus.CounterVec
	duration *prometheus.HistogramVec
	disks    prometheus.Gauge
}

func NewExporter() *Exporter {
	e := &Exporter{
		registry: prometheus.NewRegistry(),
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "diskwarden_requests_total",
			Help: "Requests processed, by operation and outcome.",
		}, []string{"op", "outcome"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "diskwarden_request_duration_seconds",
			Help:    "Wall time spent handling one request.",
			Buckets: prometheus.DefBuckets,
		}, []string{"op"}),
		disks: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "diskwarden_disks_last_enumerated",
			Help: "Disk count of the most recent list operation.",
		}),
	}
	e.registry.MustRegister(e.requests, e.duration, e.disks)
	return e
}

func (e *Exporter) ObserveRequest(op, outcome string, duration time.Duration) {
	e.requests.WithLabelValues(op, outcome).Inc()
	e.duration.WithLabelValues(op).Observe(duration.Seconds())
}

func (e *Exporter) SetDisksEnumerated(count int) {
	e.disks.Set(float64(count))
}

// MustRegister adds extra collectors to the endpoint's registry.
func (e *Exporter) MustRegister(cs ...prometheus.Collector) {
	e.registry.MustRegister(cs...)
}

// Handler serves the registry in the standard exposition format.
func (e *Exporter) Handler() http.Handler {
	return promhttp.HandlerFor(e.registry, promhttp.HandlerOpts{})
}

// Serve runs the metrics endpoint until the context ends.
func (e *Exporter) Serve(ctx context.Context, addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", e.Handler())
	server := &http.Server{Addr: addr, Handler: mux}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			log.WithError(err).Warn("Metrics server shutdown")
		}
	}()

	log.WithField("addr", addr).Info("Serving metrics")
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Nop is the Recorder used when the metrics endpoint is disabled.
type Nop struct{}

func (Nop) ObserveRequest(string, string, time.Duration) {}
func (Nop) SetDisksEnumerated(int)                       {}
