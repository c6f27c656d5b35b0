// Package engine implements the discrete-time simulation loop: market
// shocks, project settlement, action execution, reward computation, and
// the optional passive-baseline comparison.
//
// All monetary values use shopspring/decimal — never float64 for money.
// float64 appears only in sampling and volatility statistics.
package engine

import (
	"errors"
	"log/slog"
	"math"
	"math/rand"
	"time"

	"github.com/shopspring/decimal"

	"github.com/agenttycoon/sim-engine/internal/events"
	"github.com/agenttycoon/sim-engine/internal/ledger"
	"github.com/agenttycoon/sim-engine/internal/market"
	"github.com/agenttycoon/sim-engine/internal/model"
	"github.com/agenttycoon/sim-engine/internal/router"
)

// ErrComparisonDisabled is returned by AdaptabilityReport when the engine
// was built without a baseline.
var ErrComparisonDisabled = errors.New("engine: baseline comparison disabled")

// Default parameter values.
const (
	DefaultTickBudget    = 100
	DefaultNAVWindow     = 10
	DefaultShockCooldown = 5
)

// Params holds the reward and shock knobs. Start from DefaultParams and
// override fields; New normalizes non-positive integer knobs but takes
// the decimal rates as given.
type Params struct {
	TickBudget        int
	RiskFreeRate      decimal.Decimal // per tick
	TargetVolatility  decimal.Decimal
	VolatilityPenalty decimal.Decimal
	CognitionRate     decimal.Decimal
	MemoryRate        decimal.Decimal
	NAVWindow         int
	ShockProbability  float64
	ShockCooldown     int
	DisableShocks     bool
}

// DefaultParams returns the standard simulation parameters.
func DefaultParams() Params {
	return Params{
		TickBudget:        DefaultTickBudget,
		RiskFreeRate:      decimal.NewFromFloat(0.01),
		TargetVolatility:  decimal.NewFromFloat(0.02),
		VolatilityPenalty: decimal.NewFromInt(1),
		CognitionRate:     decimal.NewFromFloat(0.01),
		MemoryRate:        decimal.NewFromFloat(0.001),
		NAVWindow:         DefaultNAVWindow,
		ShockProbability:  0.05,
		ShockCooldown:     DefaultShockCooldown,
	}
}

// Decider chooses the baseline's next action from the primary
// observation. policy.HODLBot satisfies it.
type Decider interface {
	Decide(obs model.Observation) *model.Action
}

// BaselineConfig enables the passive-baseline comparison. The baseline
// engine shares the primary's equity and bond backends but owns its own
// ledger, router, and project backend, and never triggers shocks.
type BaselineConfig struct {
	NewBot      func() Decider   // built fresh on construction and Reset
	Projects    []market.Project // seeds the baseline's own project backend
	InitialCash decimal.Decimal
}

// Config wires an engine. Ledger, Router, and the three backends are
// required. Sink defaults to NopSink, Logger to slog.Default, Rand to a
// time-seeded source.
type Config struct {
	Params   Params
	Ledger   *ledger.Ledger
	Router   *router.Router
	Equity   *market.EquityBackend
	Bonds    *market.BondBackend
	Projects *market.ProjectBackend
	Quotes   ledger.PriceSource
	Sink     events.Sink
	Logger   *slog.Logger
	Rand     *rand.Rand
	Baseline *BaselineConfig // nil disables the comparison
}

// StepResult is everything one tick produces. Truncated is reserved and
// always false; episodes end only by exhausting the tick budget.
type StepResult struct {
	Observation model.Observation
	Reward      decimal.Decimal
	Terminated  bool
	Truncated   bool
	Failed      []model.FailedAllocation
}

// Engine advances the simulation one tick at a time. It is not safe for
// concurrent use; a tick always runs to completion.
type Engine struct {
	params   Params
	ledger   *ledger.Ledger
	router   *router.Router
	equity   *market.EquityBackend
	bonds    *market.BondBackend
	projects *market.ProjectBackend
	quotes   ledger.PriceSource
	rng      *rand.Rand
	sink     events.Sink
	log      *slog.Logger

	tick          int
	lastShockTick int
	navHistory    []decimal.Decimal

	baselineCfg *BaselineConfig
	baseline    *baselineState
}

type baselineState struct {
	engine   *Engine
	bot      Decider
	measurer *AdaptabilityMeasurer
}

// New creates an engine and publishes a simulation_start event.
func New(cfg Config) *Engine {
	p := cfg.Params
	if p.TickBudget <= 0 {
		p.TickBudget = DefaultTickBudget
	}
	if p.NAVWindow <= 0 {
		p.NAVWindow = DefaultNAVWindow
	}
	if p.ShockCooldown <= 0 {
		p.ShockCooldown = DefaultShockCooldown
	}

	log := cfg.Logger
	if log == nil {
		log = slog.Default()
	}
	sink := cfg.Sink
	if sink == nil {
		sink = events.NopSink{}
	}
	rng := cfg.Rand
	if rng == nil {
		rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}

	e := &Engine{
		params:      p,
		ledger:      cfg.Ledger,
		router:      cfg.Router,
		equity:      cfg.Equity,
		bonds:       cfg.Bonds,
		projects:    cfg.Projects,
		quotes:      cfg.Quotes,
		rng:         rng,
		sink:        sink,
		log:         log,
		baselineCfg: cfg.Baseline,
	}
	if e.baselineCfg != nil {
		e.buildBaseline()
	}
	e.publish(events.TypeSimulationStart, map[string]any{
		"initial_cash": e.ledger.Cash().String(),
	})
	return e
}

// buildBaseline constructs the sibling engine, bot, and measurer. The
// baseline shares the primary rng; it never draws from it on its own
// (shocks disabled, no project investments), so primary reproducibility
// is unaffected.
func (e *Engine) buildBaseline() {
	cfg := e.baselineCfg
	params := e.params
	params.DisableShocks = true

	led := ledger.New(cfg.InitialCash, e.quotes, e.log)
	projects := market.NewProjectBackend(cfg.Projects, e.rng)
	rt := router.New(led, e.equity, e.bonds, projects)

	e.baseline = &baselineState{
		engine: &Engine{
			params:   params,
			ledger:   led,
			router:   rt,
			equity:   e.equity,
			bonds:    e.bonds,
			projects: projects,
			quotes:   e.quotes,
			rng:      e.rng,
			sink:     events.NopSink{},
			log:      e.log,
		},
		bot:      cfg.NewBot(),
		measurer: NewAdaptabilityMeasurer(0),
	}
}

// CurrentTick returns the number of completed ticks.
func (e *Engine) CurrentTick() int { return e.tick }

// Ledger returns the primary portfolio ledger.
func (e *Engine) Ledger() *ledger.Ledger { return e.ledger }

// Reset starts a new episode: tick 0, a fresh ledger on the same price
// source, cleared reward history and shock cooldown, and a rebuilt
// baseline. Market state persists: prices, rates, project funding, and
// outstanding commitment records are untouched. The returned observation
// reports no projects and no news.
func (e *Engine) Reset(initialCash decimal.Decimal) model.Observation {
	e.tick = 0
	e.lastShockTick = 0
	e.navHistory = nil
	e.ledger = ledger.New(initialCash, e.quotes, e.log)
	e.router = router.New(e.ledger, e.equity, e.bonds, e.projects)
	if e.baselineCfg != nil {
		e.buildBaseline()
	}

	e.publish(events.TypeSimulationStart, map[string]any{
		"initial_cash": initialCash.String(),
	})
	return model.Observation{
		Tick: 0,
		Cash: e.ledger.Cash(),
		NAV:  e.ledger.NAV(),
	}
}

// Tick advances the simulation by one step: shock, project settlement,
// action execution, reward, observation, baseline. action may be nil to
// hold. Failed allocations are reported in the result, never as an error;
// cash and NAV always reflect exactly what executed.
func (e *Engine) Tick(action *model.Action) StepResult {
	e.tick++
	e.publish(events.TypeSimulationTick, map[string]any{"tick": e.tick})

	var news []model.NewsEvent
	if shock := e.maybeShock(); shock != nil {
		news = append(news, *shock)
	}

	for _, msg := range e.projects.Tick(e.ledger) {
		news = append(news, model.NewsEvent{
			Type:        model.NewsProjectCompletion,
			Description: msg,
			Impact:      map[string]any{},
		})
		e.publish(events.TypeProjectCompleted, map[string]any{"description": msg})
	}

	var failed []model.FailedAllocation
	cognition := decimal.Zero
	if action != nil {
		cognition = action.CognitionCost
		e.publish(events.TypeAgentDecision, map[string]any{
			"comment":        action.Comment,
			"allocations":    len(action.Allocations),
			"cognition_cost": action.CognitionCost.String(),
		})
		failed = e.router.ExecuteAction(*action)
		e.publishTrades(*action, failed)
	}

	nav := e.ledger.NAV()
	reward := e.computeReward(nav, cognition)
	e.navHistory = append(e.navHistory, nav)
	if len(e.navHistory) > e.params.NAVWindow {
		e.navHistory = e.navHistory[1:]
	}

	obs := model.Observation{
		Tick:              e.tick,
		Cash:              e.ledger.Cash(),
		NAV:               nav,
		Portfolio:         e.ledger.Holdings(),
		ProjectsAvailable: e.projects.AvailableProjects(),
		News:              news,
	}

	e.publish(events.TypePortfolioUpdate, map[string]any{
		"cash":     obs.Cash.String(),
		"nav":      obs.NAV.String(),
		"holdings": len(obs.Portfolio),
	})
	e.publish(events.TypeRewardCalculated, map[string]any{
		"reward": reward.String(),
		"nav":    nav.String(),
	})

	if e.baseline != nil {
		e.stepBaseline(obs)
	}

	return StepResult{
		Observation: obs,
		Reward:      reward,
		Terminated:  e.tick >= e.params.TickBudget,
		Failed:      failed,
	}
}

// computeReward applies the reward shape:
//
//	Δnav_adj = (nav − nav_prev) − nav_prev × riskFreeRate
//	reward   = Δnav_adj − λ×excessVol − κ_cost×cognition − κ_mem×memory
//
// On the first tick there is no history and Δnav_adj is exactly zero.
func (e *Engine) computeReward(nav, cognition decimal.Decimal) decimal.Decimal {
	deltaAdj := decimal.Zero
	if n := len(e.navHistory); n > 0 {
		prev := e.navHistory[n-1]
		deltaAdj = nav.Sub(prev).Sub(prev.Mul(e.params.RiskFreeRate))
	}

	// Memory cost is reserved; agents do not yet report a memory budget.
	memory := decimal.Zero

	return deltaAdj.
		Sub(e.params.VolatilityPenalty.Mul(e.excessVolatility(nav))).
		Sub(e.params.CognitionRate.Mul(cognition)).
		Sub(e.params.MemoryRate.Mul(memory))
}

// excessVolatility is the sample standard deviation of simple returns
// over the retained NAV window plus the current NAV, less the target,
// floored at zero. Volatility is a statistic, not money, so it is
// computed in float64 and converted back. Fewer than two returns means
// zero.
func (e *Engine) excessVolatility(nav decimal.Decimal) decimal.Decimal {
	points := make([]float64, 0, len(e.navHistory)+1)
	for _, v := range e.navHistory {
		points = append(points, v.InexactFloat64())
	}
	points = append(points, nav.InexactFloat64())

	returns := make([]float64, 0, len(points))
	for i := 1; i < len(points); i++ {
		if points[i-1] == 0 {
			continue
		}
		returns = append(returns, points[i]/points[i-1]-1)
	}
	if len(returns) < 2 {
		return decimal.Zero
	}

	var mean float64
	for _, r := range returns {
		mean += r
	}
	mean /= float64(len(returns))

	var variance float64
	for _, r := range returns {
		diff := r - mean
		variance += diff * diff
	}
	variance /= float64(len(returns) - 1)

	stdev := math.Sqrt(variance)
	target := e.params.TargetVolatility.InexactFloat64()
	if stdev <= target {
		return decimal.Zero
	}
	return decimal.NewFromFloat(stdev - target)
}

// stepBaseline advances the comparison after the primary tick settles.
// Both NAVs are sampled before the baseline's own step, then the bot
// decides from the primary observation and the baseline engine ticks.
// Nothing here mutates primary state.
func (e *Engine) stepBaseline(obs model.Observation) {
	b := e.baseline
	agentNAV := obs.NAV
	baselineNAV := b.engine.ledger.NAV()

	for _, n := range obs.News {
		if n.Type == model.NewsRateShock || n.Type == model.NewsMarketVolatility {
			b.measurer.RecordShock(e.tick, n.Type, agentNAV, baselineNAV)
		}
	}
	b.measurer.Update(e.tick, agentNAV, baselineNAV)

	b.engine.Tick(b.bot.Decide(obs))

	e.publish(events.TypeHODLComparison, map[string]any{
		"agent_nav":    agentNAV.String(),
		"baseline_nav": baselineNAV.String(),
	})
}

// AdaptabilityReport scores the agent against the baseline over the
// completed post-shock windows. ErrComparisonDisabled when the engine was
// built without a baseline.
func (e *Engine) AdaptabilityReport() (model.AdaptabilityReport, error) {
	if e.baseline == nil {
		return model.AdaptabilityReport{}, ErrComparisonDisabled
	}
	return e.baseline.measurer.Report(e.ledger.NAV(), e.baseline.engine.ledger.NAV()), nil
}

// publishTrades emits one trade_executed event per allocation that was
// not reported failed. Cash allocations never trade.
func (e *Engine) publishTrades(action model.Action, failed []model.FailedAllocation) {
	failCount := make(map[string]int, len(failed))
	for _, f := range failed {
		failCount[allocKey(f.Allocation)]++
	}
	for _, a := range action.Allocations {
		if a.Class == model.AssetCash {
			continue
		}
		key := allocKey(a)
		if failCount[key] > 0 {
			failCount[key]--
			continue
		}
		e.publish(events.TypeTradeExecuted, map[string]any{
			"asset_class": string(a.Class),
			"instrument":  a.Instrument,
			"usd":         a.USD.String(),
		})
	}
}

func allocKey(a model.Allocation) string {
	return string(a.Class) + "|" + a.Instrument + "|" + a.USD.String()
}

func (e *Engine) publish(eventType string, data map[string]any) {
	e.sink.Publish(events.New(eventType, e.tick, data))
}
