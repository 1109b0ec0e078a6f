// Package observability exposes Prometheus metrics for cycles and the
// HTTP read surface.
package observability

import (
	"bufio"
	"errors"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/quentinrf/tank-monitor/internal/domain"
	"github.com/quentinrf/tank-monitor/internal/ports"
)

// Cycle outcomes used as the outcome label
const (
	OutcomeOK                = "ok"
	OutcomeEmpty             = "empty"
	OutcomeSourceUnavailable = "source_unavailable"
	OutcomeSerialization     = "serialization"
	OutcomeDelivery          = "delivery"
	OutcomeError             = "error"
)

type Metrics struct {
	registry          *prometheus.Registry
	cyclesTotal       *prometheus.CounterVec
	cycleDuration     prometheus.Histogram
	lastSuccess       prometheus.Gauge
	tankLevel         prometheus.Gauge
	netPumped         *prometheus.GaugeVec
	activeAlerts      prometheus.Gauge
	httpRequestsTotal *prometheus.CounterVec
	httpDuration      *prometheus.HistogramVec
}

// NewMetrics registers every collector on a fresh registry along with the
// Go runtime and process collectors.
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		registry: reg,
		cyclesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "tank_cycles_total",
			Help: "Total pipeline cycles by outcome.",
		}, []string{"outcome"}),
		cycleDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "tank_cycle_duration_seconds",
			Help:    "Histogram of pipeline cycle durations.",
			Buckets: prometheus.DefBuckets,
		}),
		lastSuccess: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "tank_last_success_timestamp_seconds",
			Help: "Unix time of the last cycle that completed without error.",
		}),
		tankLevel: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "tank_level_meters",
			Help: "Most recent tank level reading.",
		}),
		netPumped: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "tank_net_pumped_cubic_meters",
			Help: "Net pumped volume of the last report by period.",
		}, []string{"period"}),
		activeAlerts: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "tank_active_alerts",
			Help: "Number of alerts in the last report.",
		}),
		httpRequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total count of HTTP requests processed by route and status.",
		}, []string{"route", "status"}),
		httpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Histogram of HTTP request durations by route.",
			Buckets: prometheus.DefBuckets,
		}, []string{"route"}),
	}

	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.cyclesTotal,
		m.cycleDuration,
		m.lastSuccess,
		m.tankLevel,
		m.netPumped,
		m.activeAlerts,
		m.httpRequestsTotal,
		m.httpDuration,
	)
	return m
}

// ObserveCycle implements ports.Observer
func (m *Metrics) ObserveCycle(cycle ports.Cycle, err error) {
	if m == nil {
		return
	}
	outcome := Outcome(err)
	m.cyclesTotal.WithLabelValues(outcome).Inc()
	if cycle.Duration > 0 {
		m.cycleDuration.Observe(cycle.Duration.Seconds())
	}
	if err == nil {
		m.lastSuccess.Set(float64(cycle.StartedAt.Add(cycle.Duration).Unix()))
	}
	if cycle.Latest != nil {
		m.tankLevel.Set(cycle.Latest.Level)
	}
	if r := cycle.Report; r != nil {
		m.activeAlerts.Set(float64(len(r.Alerts())))
		if r.Day != nil {
			m.netPumped.WithLabelValues("day").Set(r.Day.NetPumped)
		}
		if r.Night != nil {
			m.netPumped.WithLabelValues("night").Set(r.Night.NetPumped)
		}
		if r.Window != nil && r.Window.NetPumped != nil {
			m.netPumped.WithLabelValues("window").Set(*r.Window.NetPumped)
		}
	}
}

// Outcome classifies a cycle error for the outcome label
func Outcome(err error) string {
	switch {
	case err == nil:
		return OutcomeOK
	case errors.Is(err, domain.ErrEmptyResult):
		return OutcomeEmpty
	case errors.Is(err, domain.ErrSourceUnavailable):
		return OutcomeSourceUnavailable
	case errors.Is(err, domain.ErrSerialization):
		return OutcomeSerialization
	case errors.Is(err, domain.ErrPublish), errors.Is(err, domain.ErrBroadcast):
		return OutcomeDelivery
	default:
		return OutcomeError
	}
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (s *statusRecorder) WriteHeader(status int) {
	s.status = status
	s.ResponseWriter.WriteHeader(status)
}

// Hijack lets websocket upgrades pass through the recorder
func (s *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	h, ok := s.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, errors.New("response writer does not support hijacking")
	}
	s.status = http.StatusSwitchingProtocols
	return h.Hijack()
}

func (s *statusRecorder) Flush() {
	if f, ok := s.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

// Middleware records request counts and durations labelled by chi route pattern
func (m *Metrics) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		recorder := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		start := time.Now()

		next.ServeHTTP(recorder, r)

		route := "unmatched"
		if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
			route = rctx.RoutePattern()
		}
		m.httpRequestsTotal.WithLabelValues(route, strconv.Itoa(recorder.status)).Inc()
		m.httpDuration.WithLabelValues(route).Observe(time.Since(start).Seconds())
	})
}

// Handler serves the registry in the Prometheus exposition format
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}
