package metrics

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics groups the gateway's Prometheus collectors. A nil *Metrics is a
// valid no-op recorder.
type Metrics struct {
	registry *prometheus.Registry

	httpRequests *prometheus.CounterVec
	httpLatency  *prometheus.HistogramVec
	actions      *prometheus.CounterVec
	relayLatency *prometheus.HistogramVec
	viewLookups  *prometheus.CounterVec
}

// New registers every collector on registry. A nil registry gets a fresh one
// with the Go and process collectors attached.
func New(registry *prometheus.Registry) *Metrics {
	if registry == nil {
		registry = prometheus.NewRegistry()
		registry.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
	}
	factory := promauto.With(registry)
	return &Metrics{
		registry: registry,
		httpRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "parryqv_http_requests_total",
			Help: "Total number of HTTP requests by handler, method and status code",
		}, []string{"handler", "method", "code"}),
		httpLatency: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "parryqv_http_request_duration_seconds",
			Help:    "HTTP request latency",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		}, []string{"handler", "method"}),
		actions: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "parryqv_actions_total",
			Help: "Finished mutation actions by kind, outcome and error code",
		}, []string{"kind", "status", "code"}),
		relayLatency: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "parryqv_relay_request_duration_seconds",
			Help:    "Latency of meta-transaction relayer requests",
			Buckets: prometheus.DefBuckets,
		}, []string{"family", "code"}),
		viewLookups: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "parryqv_view_lookups_total",
			Help: "View cache lookups by view and result",
		}, []string{"view", "result"}),
	}
}

// Registry exposes the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// ObserveHTTPRequest records metrics about an HTTP request lifecycle.
func (m *Metrics) ObserveHTTPRequest(handler, method string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	m.httpRequests.WithLabelValues(handler, method, strconv.Itoa(status)).Inc()
	m.httpLatency.WithLabelValues(handler, method).Observe(duration.Seconds())
}

// ObserveAction counts a finished action. code is empty for confirmed actions.
func (m *Metrics) ObserveAction(kind, status, code string) {
	if m == nil {
		return
	}
	m.actions.WithLabelValues(kind, status, code).Inc()
}

// ObserveRelay records one relayer round trip. status is 0 when no response
// was received.
func (m *Metrics) ObserveRelay(family string, status int, elapsed time.Duration, _ error) {
	if m == nil {
		return
	}
	m.relayLatency.WithLabelValues(family, strconv.Itoa(status)).Observe(elapsed.Seconds())
}

// ObserveView records a view cache hit or miss.
func (m *Metrics) ObserveView(view string, hit bool) {
	if m == nil {
		return
	}
	result := "miss"
	if hit {
		result = "hit"
	}
	m.viewLookups.WithLabelValues(view, result).Inc()
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// StartServer launches a standalone HTTP server exposing the /metrics endpoint.
func (m *Metrics) StartServer(ctx context.Context, addr string) error {
	if addr == "" {
		return errors.New("metrics address is empty")
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())

	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	errCh := make(chan error, 1)
	go func() {
		defer close(errCh)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		return ctx.Err()
	case err, ok := <-errCh:
		if !ok {
			return nil
		}
		return err
	}
}
