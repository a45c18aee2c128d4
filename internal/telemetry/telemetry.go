// Package telemetry exposes guardrail outcomes as Prometheus metrics on a
// dedicated scrape endpoint.
package telemetry

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"strconv"
	"strings"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/promptcraft-lab/promptops/internal/redact"
)

const (
	EnvMetricsEnabled = "PROM_METRICS_ENABLED"
	EnvMetricsPort    = "PROM_METRICS_PORT"
	EnvMetricsBind    = "PROM_METRICS_BIND"

	defaultMetricsPort = 9108
)

var (
	registerOnce sync.Once

	requestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "promptops_chat_requests_total",
		Help: "Total chat requests processed",
	}, []string{"model", "action", "is_in_scope", "is_attack", "blocked_category"})

	blockedAttackTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "promptops_chat_blocked_attack_total",
		Help: "Total requests blocked due to attack detection",
	}, []string{"model"})

	blockedScopeTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "promptops_chat_blocked_scope_total",
		Help: "Total requests blocked due to out-of-scope policy",
	}, []string{"model", "blocked_category"})

	errorsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "promptops_chat_errors_total",
		Help: "Total chat processing errors",
	}, []string{"model", "action"})

	latencyMS = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "promptops_chat_latency_ms",
		Help:    "Chat response latency in milliseconds",
		Buckets: []float64{100, 250, 500, 1000, 2000, 5000, 10000, 20000, 60000},
	}, []string{"model", "action"})
)

func register() {
	registerOnce.Do(func() {
		prometheus.MustRegister(
			requestsTotal,
			blockedAttackTotal,
			blockedScopeTotal,
			errorsTotal,
			latencyMS,
		)
	})
}

// Event is the telemetry view of one chat turn.
type Event struct {
	Model           string
	Action          string
	IsInScope       bool
	IsAttack        bool
	BlockedCategory string
	LatencyMS       float64
	Error           bool
}

// RecordEvent updates the chat metrics for one turn. Labels never carry
// user text; the action and blocked category come from a fixed vocabulary.
func RecordEvent(ev Event) {
	register()

	blocked := ev.BlockedCategory
	if blocked == "" {
		blocked = "none"
	}

	requestsTotal.WithLabelValues(
		ev.Model, ev.Action, boolLabel(ev.IsInScope), boolLabel(ev.IsAttack), blocked,
	).Inc()

	if ev.Action == "blocked_attack_precheck" {
		blockedAttackTotal.WithLabelValues(ev.Model).Inc()
	}

	if ev.Action == "blocked_out_of_scope" {
		blockedScopeTotal.WithLabelValues(ev.Model, blocked).Inc()
	}

	if ev.Error {
		errorsTotal.WithLabelValues(ev.Model, ev.Action).Inc()
	}

	if ev.LatencyMS > 0 {
		latencyMS.WithLabelValues(ev.Model, ev.Action).Observe(ev.LatencyMS)
	}
}

func boolLabel(v bool) string {
	if v {
		return "true"
	}
	return "false"
}

// Server serves the Prometheus scrape endpoint.
type Server struct {
	srv  *http.Server
	addr string
}

// StartFromEnv starts the scrape endpoint if PROM_METRICS_ENABLED allows it
// (default on). Returns nil with no error when metrics are disabled.
func StartFromEnv() (*Server, error) {
	if !enabledFromEnv() {
		return nil, nil
	}

	port := defaultMetricsPort
	if v := strings.TrimSpace(os.Getenv(EnvMetricsPort)); v != "" {
		parsed, err := strconv.Atoi(v)
		if err != nil {
			return nil, fmt.Errorf("parse %s: %w", EnvMetricsPort, err)
		}
		port = parsed
	}
	bind := strings.TrimSpace(os.Getenv(EnvMetricsBind))

	return Start(fmt.Sprintf("%s:%d", bind, port))
}

// Start serves /metrics on addr.
func Start(addr string) (*Server, error) {
	register()

	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("listen on %s: %w", addr, err)
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	srv := &http.Server{Handler: mux}
	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			redact.Logf("metrics server error: %v", err)
		}
	}()

	return &Server{srv: srv, addr: ln.Addr().String()}, nil
}

// Addr returns the bound address.
func (s *Server) Addr() string {
	if s == nil {
		return ""
	}
	return s.addr
}

// Shutdown stops the scrape endpoint.
func (s *Server) Shutdown(ctx context.Context) error {
	if s == nil {
		return nil
	}
	return s.srv.Shutdown(ctx)
}

func enabledFromEnv() bool {
	v, ok := os.LookupEnv(EnvMetricsEnabled)
	if !ok {
		return true
	}
	return strings.ToLower(strings.TrimSpace(v)) == "true"
}
