// Package metrics provides Prometheus instrumentation for the
// simulation engine and the dashboard.
package metrics

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/agenttycoon/sim-engine/internal/events"
)

var (
	// TicksTotal counts simulation ticks across all episodes.
	TicksTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "sim_ticks_total",
		Help: "Total simulation ticks processed",
	})

	// ShocksTotal counts market shocks by type.
	ShocksTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "sim_shocks_total",
		Help: "Total market shocks applied",
	}, []string{"type"})

	// ProjectCompletionsTotal counts project settlements by outcome.
	ProjectCompletionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "sim_project_completions_total",
		Help: "Total project completions",
	}, []string{"outcome"})

	// AllocationFailuresTotal counts allocations rejected mid-episode.
	AllocationFailuresTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "sim_allocation_failures_total",
		Help: "Total failed allocations",
	})

	// TradesTotal counts executed allocations by asset class.
	TradesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "sim_trades_total",
		Help: "Total executed allocations",
	}, []string{"asset_class"})

	// EpisodesTotal counts finished episodes by terminal status.
	EpisodesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "sim_episodes_total",
		Help: "Total episodes run",
	}, []string{"status"})

	// ActiveEpisodes tracks episodes currently stepping.
	ActiveEpisodes = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "sim_active_episodes",
		Help: "Number of episodes currently running",
	})

	// TickReward is the distribution of per-tick rewards.
	TickReward = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "sim_tick_reward",
		Help:    "Per-tick reward distribution",
		Buckets: []float64{-5000, -2000, -1000, -500, -100, 0, 100, 500, 1000, 2000, 5000},
	})

	// NAV tracks the most recent portfolio net asset value.
	NAV = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "sim_nav",
		Help: "Latest net asset value observed",
	})

	// WebSocketClients tracks connected WebSocket clients.
	WebSocketClients = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "sim_websocket_clients",
		Help: "Number of connected WebSocket clients",
	})

	// HTTPRequestsTotal counts HTTP requests by method, path, and status.
	HTTPRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "sim_http_requests_total",
		Help: "Total HTTP requests",
	}, []string{"method", "path", "status"})

	// HTTPRequestDuration tracks request duration by method and path.
	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "sim_http_request_duration_seconds",
		Help:    "HTTP request duration in seconds",
		Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0},
	}, []string{"method", "path"})
)

// Handler returns the Prometheus metrics HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Middleware returns an HTTP middleware that records request metrics.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		wrapped := &statusWriter{ResponseWriter: w, status: 200}
		next.ServeHTTP(wrapped, r)
		duration := time.Since(start).Seconds()

		// Use the route pattern for path label to avoid high cardinality.
		path := r.URL.Path
		if rctx := chi.RouteContext(r.Context()); rctx != nil {
			if pattern := rctx.RoutePattern(); pattern != "" {
				path = pattern
			}
		}
		HTTPRequestsTotal.WithLabelValues(r.Method, path, strconv.Itoa(wrapped.status)).Inc()
		HTTPRequestDuration.WithLabelValues(r.Method, path).Observe(duration)
	})
}

// statusWriter wraps http.ResponseWriter to capture the status code.
type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

// EventSink is an events.Sink that turns the simulation event stream
// into metrics. Wire it through events.MultiSink next to a collector.
type EventSink struct{}

// Publish implements events.Sink.
func (EventSink) Publish(e events.Event) {
	switch e.Type {
	case events.TypeSimulationTick:
		TicksTotal.Inc()
	case events.TypeMarketShock:
		if t, ok := e.Data["shock_type"].(string); ok {
			ShocksTotal.WithLabelValues(t).Inc()
		}
	case events.TypeProjectCompleted:
		ProjectCompletionsTotal.WithLabelValues(completionOutcome(e)).Inc()
	case events.TypeTradeExecuted:
		if class, ok := e.Data["asset_class"].(string); ok {
			TradesTotal.WithLabelValues(class).Inc()
		}
	case events.TypeRewardCalculated:
		if s, ok := e.Data["reward"].(string); ok {
			if v, err := strconv.ParseFloat(s, 64); err == nil {
				TickReward.Observe(v)
			}
		}
	case events.TypePortfolioUpdate:
		if s, ok := e.Data["nav"].(string); ok {
			if v, err := strconv.ParseFloat(s, 64); err == nil {
				NAV.Set(v)
			}
		}
	}
}

// completionOutcome derives the settlement outcome from the completion
// message ("succeeded!" vs "failed.").
func completionOutcome(e events.Event) string {
	desc, _ := e.Data["description"].(string)
	if strings.Contains(desc, "succeeded") {
		return "success"
	}
	return "failure"
}
