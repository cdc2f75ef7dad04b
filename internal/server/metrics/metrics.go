// Package metrics exposes relay counters in the Prometheus text format.
package metrics

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/dmitrijs2005/securechat/internal/logging"
	"github.com/dmitrijs2005/securechat/internal/protocol"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const (
	namespace = "securechat"
	subsystem = "relay"
)

// Metrics owns a private registry so several relays (or tests) in one
// process do not collide on registration.
type Metrics struct {
	registry     *prometheus.Registry
	authAttempts *prometheus.CounterVec
	envelopes    *prometheus.CounterVec
	deliveries   prometheus.Counter
}

func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		authAttempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "auth_attempts_total",
			Help:      "Credential checks, by result.",
		}, []string{"result"}),
		envelopes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "envelopes_received_total",
			Help:      "Envelopes received from active sessions, by kind.",
		}, []string{"kind"}),
		deliveries: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "chat_deliveries_total",
			Help:      "Sealed chat envelopes delivered to recipients.",
		}),
	}
	m.registry.MustRegister(m.authAttempts, m.envelopes, m.deliveries)
	return m
}

// Gauge registers a gauge whose value is read from f at scrape time.
func (m *Metrics) Gauge(name, help string, f func() float64) {
	m.registry.MustRegister(prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: subsystem,
		Name:      name,
		Help:      help,
	}, f))
}

func (m *Metrics) AuthAttempt(ok bool) {
	result := "failure"
	if ok {
		result = "success"
	}
	m.authAttempts.WithLabelValues(result).Inc()
}

func (m *Metrics) Received(kind protocol.Kind) {
	m.envelopes.WithLabelValues(string(kind)).Inc()
}

func (m *Metrics) Delivered(n int) {
	if n > 0 {
		m.deliveries.Add(float64(n))
	}
}

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Serve exposes /metrics on addr until ctx is cancelled.
func (m *Metrics) Serve(ctx context.Context, addr string, logger logging.Logger) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	logger.Info(ctx, "Starting metrics endpoint", "address", addr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
