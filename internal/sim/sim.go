// Package sim is the composition root: it assembles backends, ledger,
// router, and engine from a catalogue and runs whole episodes.
package sim

import (
	"fmt"
	"log/slog"
	"math"
	"math/rand"
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"github.com/agenttycoon/sim-engine/internal/config"
	"github.com/agenttycoon/sim-engine/internal/engine"
	"github.com/agenttycoon/sim-engine/internal/events"
	"github.com/agenttycoon/sim-engine/internal/ledger"
	"github.com/agenttycoon/sim-engine/internal/market"
	"github.com/agenttycoon/sim-engine/internal/model"
	"github.com/agenttycoon/sim-engine/internal/policy"
	"github.com/agenttycoon/sim-engine/internal/router"
)

// DefaultInitialCash is the starting bankroll when Options leaves it
// unset.
var DefaultInitialCash = decimal.NewFromInt(100000)

// Options configures one simulation. Zero values mean: default
// catalogue, time-based seed, $100k cash, default tick budget, no
// baseline, no event sink.
type Options struct {
	Config      *config.Config
	Seed        int64
	InitialCash decimal.Decimal
	TickBudget  int
	Compare     bool
	Sink        events.Sink
	Logger      *slog.Logger
}

// Simulation owns one assembled engine plus the catalogue-derived
// context it was built from.
type Simulation struct {
	engine  *engine.Engine
	tickers []string
	rng     *rand.Rand
	seed    int64
	log     *slog.Logger
}

// New assembles a simulation: catalogue → backends → quotes → ledger →
// router → engine. The one rng seeds every stochastic path, so a seed
// fully determines an episode.
func New(opts Options) (*Simulation, error) {
	cfg := opts.Config
	if cfg == nil {
		cfg = config.Default()
	}
	cat, err := cfg.Catalogue()
	if err != nil {
		return nil, fmt.Errorf("sim: %w", err)
	}

	log := opts.Logger
	if log == nil {
		log = slog.Default()
	}
	seed := opts.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	rng := rand.New(rand.NewSource(seed))

	cash := opts.InitialCash
	if cash.IsZero() {
		cash = DefaultInitialCash
	}

	tickers := make([]string, 0, len(cat.Stocks))
	for t := range cat.Stocks {
		tickers = append(tickers, t)
	}
	sort.Strings(tickers)

	equity := market.NewEquityBackend(cat.Stocks)
	bonds := market.NewBondBackend(cat.Bonds, cat.BaseRate)
	projects := market.NewProjectBackend(cat.Projects, rng)
	quotes := market.NewQuotes(equity, bonds)
	led := ledger.New(cash, quotes, log)
	rt := router.New(led, equity, bonds, projects)

	params := engine.DefaultParams()
	if opts.TickBudget > 0 {
		params.TickBudget = opts.TickBudget
	}

	var baseline *engine.BaselineConfig
	if opts.Compare {
		if len(tickers) == 0 {
			return nil, fmt.Errorf("sim: baseline comparison requires at least one equity")
		}
		// A fresh bot per episode: Reset rebuilds the baseline and must
		// not inherit a frozen or already-invested bot.
		primary := tickers[0]
		baseline = &engine.BaselineConfig{
			NewBot:      func() engine.Decider { return policy.NewHODLBot(primary) },
			Projects:    cat.Projects,
			InitialCash: cash,
		}
	}

	e := engine.New(engine.Config{
		Params:   params,
		Ledger:   led,
		Router:   rt,
		Equity:   equity,
		Bonds:    bonds,
		Projects: projects,
		Quotes:   quotes,
		Sink:     opts.Sink,
		Logger:   log,
		Rand:     rng,
		Baseline: baseline,
	})

	return &Simulation{
		engine:  e,
		tickers: tickers,
		rng:     rng,
		seed:    seed,
		log:     log,
	}, nil
}

// Engine exposes the underlying engine for direct stepping.
func (s *Simulation) Engine() *engine.Engine { return s.engine }

// Seed returns the seed the simulation was built with.
func (s *Simulation) Seed() int64 { return s.seed }

// Tickers returns the catalogue's equity tickers, sorted.
func (s *Simulation) Tickers() []string { return s.tickers }

// Rand returns the simulation's random source, for wiring policies that
// should share the episode's seed.
func (s *Simulation) Rand() *rand.Rand { return s.rng }

// Step advances one tick.
func (s *Simulation) Step(action *model.Action) engine.StepResult {
	return s.engine.Tick(action)
}

// RunSummary aggregates one finished episode.
type RunSummary struct {
	Ticks       int             `json:"ticks"`
	TotalReward decimal.Decimal `json:"total_reward"`
	MeanReward  decimal.Decimal `json:"mean_reward"`
	StdReward   decimal.Decimal `json:"std_reward"`
	FinalNAV    decimal.Decimal `json:"final_nav"`
	FinalCash   decimal.Decimal `json:"final_cash"`
	Failures    int             `json:"failures"`
}

// Run steps the engine with the policy until the episode terminates, or
// for at most maxTicks when positive. The per-tick rewards feed the
// summary statistics. Observers see every step result as it happens.
func (s *Simulation) Run(p policy.Policy, maxTicks int, observers ...func(engine.StepResult)) RunSummary {
	var (
		rewards  []decimal.Decimal
		total    decimal.Decimal
		failures int
		last     engine.StepResult
	)

	for tick := 0; maxTicks <= 0 || tick < maxTicks; tick++ {
		var action *model.Action
		if p != nil {
			action = p.Decide(s.observe(last))
		}
		last = s.engine.Tick(action)
		for _, fn := range observers {
			fn(last)
		}
		rewards = append(rewards, last.Reward)
		total = total.Add(last.Reward)
		failures += len(last.Failed)
		if last.Terminated {
			break
		}
	}

	summary := RunSummary{
		Ticks:       len(rewards),
		TotalReward: total,
		FinalNAV:    last.Observation.NAV,
		FinalCash:   last.Observation.Cash,
		Failures:    failures,
	}
	if len(rewards) > 0 {
		summary.MeanReward = total.Div(decimal.NewFromInt(int64(len(rewards)))).Round(6)
		summary.StdReward = stdDev(rewards).Round(6)
	}
	return summary
}

// observe returns the policy's view for the tick about to run. The
// content is the previous tick's observation; Tick is restamped to the
// upcoming tick, so policies gate on the tick their action executes in.
// Before the first tick the view is the initial ledger.
func (s *Simulation) observe(last engine.StepResult) model.Observation {
	obs := last.Observation
	if obs.Tick == 0 {
		led := s.engine.Ledger()
		obs = model.Observation{Cash: led.Cash(), NAV: led.NAV()}
	}
	obs.Tick = s.engine.CurrentTick() + 1
	return obs
}

// stdDev is the sample standard deviation of the rewards. A statistic,
// not money, so float64 is fine.
func stdDev(rewards []decimal.Decimal) decimal.Decimal {
	if len(rewards) < 2 {
		return decimal.Zero
	}
	var mean float64
	for _, r := range rewards {
		mean += r.InexactFloat64()
	}
	mean /= float64(len(rewards))

	var variance float64
	for _, r := range rewards {
		diff := r.InexactFloat64() - mean
		variance += diff * diff
	}
	variance /= float64(len(rewards) - 1)
	return decimal.NewFromFloat(math.Sqrt(variance))
}
