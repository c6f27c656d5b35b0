// Package dashboard provides the HTTP handlers for launching episodes,
// watching them run, and querying the leaderboard.
//
// All monetary values use shopspring/decimal — never float64 for money.
package dashboard

import (
	"encoding/json"
	"log/slog"
	"net"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/agenttycoon/sim-engine/internal/config"
	"github.com/agenttycoon/sim-engine/internal/events"
	"github.com/agenttycoon/sim-engine/internal/metrics"
	"github.com/agenttycoon/sim-engine/internal/model"
	"github.com/agenttycoon/sim-engine/internal/policy"
	"github.com/agenttycoon/sim-engine/internal/sim"
	"github.com/agenttycoon/sim-engine/internal/store"
	"github.com/agenttycoon/sim-engine/internal/throttle"
)

// Service handles episode operations. Each episode runs in its own
// goroutine; the runners map is the registry handlers read from.
type Service struct {
	store   store.Store
	cfg     *config.Config
	limiter *throttle.StartLimiter
	hub     *Hub

	mu      sync.RWMutex
	runners map[string]*runner
}

// NewService creates a dashboard service. cfg may be nil for the built-in
// market catalogue, limiter nil to allow unthrottled starts, and hub nil
// if WebSocket broadcasting is not needed.
func NewService(st store.Store, cfg *config.Config, limiter *throttle.StartLimiter, hub *Hub) *Service {
	return &Service{
		store:   st,
		cfg:     cfg,
		limiter: limiter,
		hub:     hub,
		runners: make(map[string]*runner),
	}
}

// Routes assembles the service router. The caller mounts it at the
// server root.
func (s *Service) Routes() chi.Router {
	r := chi.NewRouter()
	r.Get("/healthz", s.Healthz)
	r.Route("/api", func(r chi.Router) {
		r.Post("/episodes", s.CreateEpisode)
		r.Get("/episodes", s.ListEpisodes)
		r.Get("/episodes/{episodeID}", s.GetEpisode)
		r.Get("/episodes/{episodeID}/events", s.GetEpisodeEvents)
		r.Get("/episodes/{episodeID}/report", s.GetEpisodeReport)
		r.Get("/leaderboard", s.Leaderboard)
	})
	if s.hub != nil {
		r.Get("/ws", s.hub.HandleWS)
	}
	return r
}

// --- Request/Response types ---

// CreateEpisodeRequest is the JSON body for episode creation. Zero
// values select the defaults: a time-based seed, the engine tick budget,
// and the standard initial cash.
type CreateEpisodeRequest struct {
	Seed        int64           `json:"seed"`
	Ticks       int             `json:"ticks"`
	InitialCash decimal.Decimal `json:"initial_cash"`
	Policy      string          `json:"policy"`
	Compare     bool            `json:"compare"`
}

// EpisodeSnapshot is the live view of one episode. Summary is present
// once the episode has completed.
type EpisodeSnapshot struct {
	ID          string          `json:"id"`
	Status      string          `json:"status"`
	Policy      string          `json:"policy"`
	Seed        int64           `json:"seed"`
	Compare     bool            `json:"compare"`
	Tick        int             `json:"tick"`
	Cash        decimal.Decimal `json:"cash"`
	NAV         decimal.Decimal `json:"nav"`
	TotalReward decimal.Decimal `json:"total_reward"`
	CreatedAt   time.Time       `json:"created_at"`
	Error       string          `json:"error,omitempty"`
	Summary     *sim.RunSummary `json:"summary,omitempty"`
}

// --- HTTP Handlers ---

// Healthz handles GET /healthz
func (s *Service) Healthz(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

// CreateEpisode handles POST /api/episodes
// Builds a simulation, starts it in a goroutine, and returns 202 with
// the initial snapshot.
func (s *Service) CreateEpisode(w http.ResponseWriter, r *http.Request) {
	var req CreateEpisodeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}

	// --- Input validation ---
	if req.InitialCash.IsNegative() {
		writeError(w, "initial_cash must be non-negative", http.StatusBadRequest)
		return
	}
	if req.Ticks < 0 {
		writeError(w, "ticks must be non-negative", http.StatusBadRequest)
		return
	}
	name := req.Policy
	if name == "" {
		name = policy.NameNoop
	}

	id := uuid.New().String()
	collector := events.NewCollector(0)
	sinks := events.MultiSink{collector, metrics.EventSink{}}
	if s.hub != nil {
		sinks = append(sinks, wsSink{episodeID: id, hub: s.hub})
	}

	simulation, err := sim.New(sim.Options{
		Config:      s.cfg,
		Seed:        req.Seed,
		InitialCash: req.InitialCash,
		TickBudget:  req.Ticks,
		Compare:     req.Compare,
		Sink:        sinks,
	})
	if err != nil {
		writeError(w, err.Error(), http.StatusInternalServerError)
		return
	}

	p, err := policy.New(name, simulation.Tickers(), simulation.Rand())
	if err != nil {
		writeError(w, err.Error(), http.StatusBadRequest)
		return
	}

	if s.limiter != nil {
		if err := s.limiter.Allow(clientIP(r)); err != nil {
			writeError(w, err.Error(), http.StatusTooManyRequests)
			return
		}
	}

	run := newRunner(id, simulation, p, req.Ticks, req.Compare, collector)
	s.mu.Lock()
	s.runners[id] = run
	s.mu.Unlock()

	go run.run(s.store)

	slog.Info("episode started",
		"id", id,
		"policy", p.Name(),
		"seed", simulation.Seed(),
		"ticks", req.Ticks,
		"compare", req.Compare,
	)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusAccepted)
	json.NewEncoder(w).Encode(run.snapshot())
}

// ListEpisodes handles GET /api/episodes
// Returns every known episode, newest first.
func (s *Service) ListEpisodes(w http.ResponseWriter, r *http.Request) {
	s.mu.RLock()
	snapshots := make([]EpisodeSnapshot, 0, len(s.runners))
	for _, run := range s.runners {
		snapshots = append(snapshots, run.snapshot())
	}
	s.mu.RUnlock()

	sort.Slice(snapshots, func(i, j int) bool {
		if !snapshots[i].CreatedAt.Equal(snapshots[j].CreatedAt) {
			return snapshots[i].CreatedAt.After(snapshots[j].CreatedAt)
		}
		return snapshots[i].ID < snapshots[j].ID
	})

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(snapshots)
}

// GetEpisode handles GET /api/episodes/{episodeID}
func (s *Service) GetEpisode(w http.ResponseWriter, r *http.Request) {
	run, ok := s.lookup(chi.URLParam(r, "episodeID"))
	if !ok {
		writeError(w, "episode not found", http.StatusNotFound)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(run.snapshot())
}

// GetEpisodeEvents handles GET /api/episodes/{episodeID}/events
// Optional query parameters: type (comma-separated), start_tick,
// end_tick, limit. Events come back oldest first; page forward by
// raising start_tick.
func (s *Service) GetEpisodeEvents(w http.ResponseWriter, r *http.Request) {
	run, ok := s.lookup(chi.URLParam(r, "episodeID"))
	if !ok {
		writeError(w, "episode not found", http.StatusNotFound)
		return
	}

	var f events.Filter
	q := r.URL.Query()
	if raw := q.Get("type"); raw != "" {
		for _, t := range strings.Split(raw, ",") {
			if t = strings.TrimSpace(t); t != "" {
				f.Types = append(f.Types, t)
			}
		}
	}
	var err error
	if f.MinTick, err = intParam(q.Get("start_tick")); err != nil {
		writeError(w, "invalid start_tick", http.StatusBadRequest)
		return
	}
	if f.MaxTick, err = intParam(q.Get("end_tick")); err != nil {
		writeError(w, "invalid end_tick", http.StatusBadRequest)
		return
	}
	limit, err := intParam(q.Get("limit"))
	if err != nil {
		writeError(w, "invalid limit", http.StatusBadRequest)
		return
	}

	evs := run.collector.Events(f)
	if limit > 0 && len(evs) > limit {
		evs = evs[:limit]
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(evs)
}

// GetEpisodeReport handles GET /api/episodes/{episodeID}/report
// The adaptability report exists only for completed episodes that ran
// with compare enabled.
func (s *Service) GetEpisodeReport(w http.ResponseWriter, r *http.Request) {
	run, ok := s.lookup(chi.URLParam(r, "episodeID"))
	if !ok {
		writeError(w, "episode not found", http.StatusNotFound)
		return
	}

	report, status := run.reportAndStatus()
	switch {
	case status == StatusRunning:
		writeError(w, "episode still running", http.StatusConflict)
	case status == StatusFailed:
		writeError(w, "episode failed", http.StatusConflict)
	case report == nil:
		writeError(w, "baseline comparison disabled for this episode", http.StatusConflict)
	default:
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(report)
	}
}

// Leaderboard handles GET /api/leaderboard
// Returns saved episode results ordered by mean reward, best first.
// Optional ?limit= caps the rows.
func (s *Service) Leaderboard(w http.ResponseWriter, r *http.Request) {
	limit, err := intParam(r.URL.Query().Get("limit"))
	if err != nil {
		writeError(w, "invalid limit", http.StatusBadRequest)
		return
	}

	results, err := s.store.Leaderboard(r.Context(), limit)
	if err != nil {
		writeError(w, "failed to load leaderboard", http.StatusInternalServerError)
		return
	}
	if results == nil {
		results = []model.EpisodeResult{}
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(results)
}

func (s *Service) lookup(id string) (*runner, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	run, ok := s.runners[id]
	return run, ok
}

// clientIP keys the start limiter. Behind the RealIP middleware the
// RemoteAddr already carries the client address.
func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func intParam(raw string) (int, error) {
	if raw == "" {
		return 0, nil
	}
	return strconv.Atoi(raw)
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, message string, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": message})
}
