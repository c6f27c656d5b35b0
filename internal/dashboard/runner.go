package dashboard

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/agenttycoon/sim-engine/internal/engine"
	"github.com/agenttycoon/sim-engine/internal/events"
	"github.com/agenttycoon/sim-engine/internal/metrics"
	"github.com/agenttycoon/sim-engine/internal/model"
	"github.com/agenttycoon/sim-engine/internal/policy"
	"github.com/agenttycoon/sim-engine/internal/sim"
	"github.com/agenttycoon/sim-engine/internal/store"
)

// Episode lifecycle statuses.
const (
	StatusRunning   = "running"
	StatusCompleted = "completed"
	StatusFailed    = "failed"
)

const saveTimeout = 5 * time.Second

// runner owns one episode: the simulation, its event history, and the
// latest snapshot. run executes in its own goroutine; everything under
// mu is what handlers may read while the episode is still stepping.
type runner struct {
	id         string
	sim        *sim.Simulation
	policy     policy.Policy
	policyName string
	ticks      int
	compare    bool
	collector  *events.Collector
	createdAt  time.Time

	mu      sync.RWMutex
	status  string
	tick    int
	cash    decimal.Decimal
	nav     decimal.Decimal
	reward  decimal.Decimal
	summary *sim.RunSummary
	report  *model.AdaptabilityReport
	failure string
}

func newRunner(id string, s *sim.Simulation, p policy.Policy, ticks int, compare bool, collector *events.Collector) *runner {
	led := s.Engine().Ledger()
	return &runner{
		id:         id,
		sim:        s,
		policy:     p,
		policyName: p.Name(),
		ticks:      ticks,
		compare:    compare,
		collector:  collector,
		createdAt:  time.Now().UTC(),
		status:     StatusRunning,
		cash:       led.Cash(),
		nav:        led.NAV(),
	}
}

// run executes the episode to completion and records the result. A panic
// anywhere in the simulation marks the episode failed instead of taking
// the server down.
func (r *runner) run(st store.Store) {
	metrics.ActiveEpisodes.Inc()
	defer metrics.ActiveEpisodes.Dec()

	defer func() {
		if rec := recover(); rec != nil {
			r.mu.Lock()
			r.status = StatusFailed
			r.failure = fmt.Sprintf("%v", rec)
			r.mu.Unlock()
			metrics.EpisodesTotal.WithLabelValues(StatusFailed).Inc()
			slog.Error("episode panicked", "id", r.id, "err", rec)
		}
	}()

	summary := r.sim.Run(r.policy, r.ticks, r.observe)

	var report *model.AdaptabilityReport
	if r.compare {
		if rep, err := r.sim.Engine().AdaptabilityReport(); err == nil {
			report = &rep
		}
	}

	result := &model.EpisodeResult{
		ID:         r.id,
		AgentName:  r.policyName,
		Episodes:   1,
		MeanReward: summary.MeanReward,
		StdReward:  summary.StdReward,
		FinalNAV:   summary.FinalNAV,
		Notes:      fmt.Sprintf("seed=%d ticks=%d", r.sim.Seed(), summary.Ticks),
	}
	if report != nil {
		result.AdaptabilityScore = report.Score
	}

	ctx, cancel := context.WithTimeout(context.Background(), saveTimeout)
	defer cancel()
	if err := st.SaveResult(ctx, result); err != nil {
		slog.Error("failed to save episode result", "id", r.id, "err", err)
	}

	// Status flips only after the result is recorded, so a completed
	// episode always has its leaderboard row.
	r.mu.Lock()
	r.status = StatusCompleted
	r.summary = &summary
	r.report = report
	r.mu.Unlock()

	metrics.EpisodesTotal.WithLabelValues(StatusCompleted).Inc()

	slog.Info("episode completed",
		"id", r.id,
		"policy", r.policyName,
		"ticks", summary.Ticks,
		"mean_reward", summary.MeanReward.String(),
		"final_nav", summary.FinalNAV.String(),
	)
}

// observe updates the live snapshot after every step.
func (r *runner) observe(step engine.StepResult) {
	if n := len(step.Failed); n > 0 {
		metrics.AllocationFailuresTotal.Add(float64(n))
	}
	r.mu.Lock()
	r.tick = step.Observation.Tick
	r.cash = step.Observation.Cash
	r.nav = step.Observation.NAV
	r.reward = r.reward.Add(step.Reward)
	r.mu.Unlock()
}

func (r *runner) reportAndStatus() (*model.AdaptabilityReport, string) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.report, r.status
}

func (r *runner) snapshot() EpisodeSnapshot {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return EpisodeSnapshot{
		ID:          r.id,
		Status:      r.status,
		Policy:      r.policyName,
		Seed:        r.sim.Seed(),
		Compare:     r.compare,
		Tick:        r.tick,
		Cash:        r.cash,
		NAV:         r.nav,
		TotalReward: r.reward,
		CreatedAt:   r.createdAt,
		Error:       r.failure,
		Summary:     r.summary,
	}
}
