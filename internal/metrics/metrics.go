package metrics

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Strategy attempt outcomes.
const (
	OutcomeSuccess = "success"
	OutcomeEmpty   = "empty"
	OutcomeError   = "error"
)

var (
	SearchesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "websearch_searches_total",
			Help: "Total number of search executions, by the strategy that produced the results",
		},
		[]string{"strategy", "failed"},
	)

	SearchDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "websearch_search_duration_seconds",
			Help:    "End to end duration of search executions in seconds",
			Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30},
		},
	)

	StrategyAttemptsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "websearch_strategy_attempts_total",
			Help: "Total number of strategy attempts, by outcome",
		},
		[]string{"strategy", "outcome"},
	)

	StrategyDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "websearch_strategy_duration_seconds",
			Help:    "Duration of single strategy attempts in seconds",
			Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 15},
		},
		[]string{"strategy"},
	)

	FallbacksTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "websearch_fallbacks_total",
			Help: "Total number of times a strategy handed over to its fallback",
		},
		[]string{"from", "to"},
	)

	BreakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "websearch_breaker_state",
			Help: "Circuit breaker state per strategy (0 closed, 1 half-open, 2 open)",
		},
		[]string{"strategy"},
	)

	FetchRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "websearch_fetch_requests_total",
			Help: "Total number of outbound page fetches",
		},
		[]string{"host", "status", "detected", "detection_src"},
	)

	FetchDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "websearch_fetch_duration_seconds",
			Help:    "Duration of outbound page fetches in seconds",
			Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30},
		},
		[]string{"host"},
	)

	FetchBytesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "websearch_fetch_bytes_total",
			Help: "Total bytes downloaded across all fetches",
		},
		[]string{"host"},
	)

	ProxyFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "websearch_proxy_failures_total",
			Help: "Total number of proxy failures during fetches",
		},
		[]string{"proxy_url"},
	)
)

// RecordSearch counts one finished execution. strategy is empty when nothing
// produced results.
func RecordSearch(strategy string, failed bool, d time.Duration) {
	if strategy == "" {
		strategy = "none"
	}
	SearchesTotal.WithLabelValues(strategy, strconv.FormatBool(failed)).Inc()
	SearchDuration.Observe(d.Seconds())
}

// RecordStrategy counts one strategy attempt.
func RecordStrategy(strategy, outcome string, d time.Duration) {
	StrategyAttemptsTotal.WithLabelValues(strategy, outcome).Inc()
	StrategyDuration.WithLabelValues(strategy).Observe(d.Seconds())
}

// RecordFallback counts a hand-over between strategies.
func RecordFallback(from, to string) {
	FallbacksTotal.WithLabelValues(from, to).Inc()
}

// FetchSample describes one outbound fetch.
type FetchSample struct {
	Host         string
	StatusCode   int
	Err          error
	DetectionSrc string
	Bytes        int
	Duration     time.Duration
}

// RecordFetch updates the fetch metrics from s.
func RecordFetch(s FetchSample) {
	status := strconv.Itoa(s.StatusCode)
	if s.Err != nil {
		status = "error"
	}
	detected := strconv.FormatBool(s.DetectionSrc != "")

	FetchRequestsTotal.WithLabelValues(s.Host, status, detected, s.DetectionSrc).Inc()
	FetchDuration.WithLabelValues(s.Host).Observe(s.Duration.Seconds())
	FetchBytesTotal.WithLabelValues(s.Host).Add(float64(s.Bytes))
}

// Handler exposes the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Server encapsulates an HTTP server for Prometheus metrics.
type Server struct {
	srv    *http.Server
	logger *slog.Logger
}

// NewServer prepares a metrics listener on addr serving /metrics.
func NewServer(addr string, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", Handler())

	return &Server{
		srv: &http.Server{
			Addr:              addr,
			Handler:           mux,
			ReadHeaderTimeout: 5 * time.Second,
		},
		logger: logger,
	}
}

// ListenAndServe blocks until the server stops. A graceful Stop is not an error.
func (s *Server) ListenAndServe() error {
	s.logger.Info("metrics listening", "addr", s.srv.Addr)
	if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Start runs the server in the background.
func Start(addr string, logger *slog.Logger) *Server {
	s := NewServer(addr, logger)
	go func() {
		if err := s.ListenAndServe(); err != nil {
			s.logger.Error("metrics server failed", "err", err)
		}
	}()
	return s
}

// Stop gracefully shuts down the metrics server.
func (s *Server) Stop(ctx context.Context) error {
	if s == nil || s.srv == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	return s.srv.Shutdown(ctx)
}
