package engine

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"math/rand"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/agenttycoon/sim-engine/internal/events"
	"github.com/agenttycoon/sim-engine/internal/ledger"
	"github.com/agenttycoon/sim-engine/internal/market"
	"github.com/agenttycoon/sim-engine/internal/model"
	"github.com/agenttycoon/sim-engine/internal/router"
)

// d is a test helper for creating decimals from float64.
func d(f float64) decimal.Decimal {
	return decimal.NewFromFloat(f)
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type testEnv struct {
	engine    *Engine
	equity    *market.EquityBackend
	bonds     *market.BondBackend
	projects  *market.ProjectBackend
	collector *events.Collector
}

// newTestEnv builds an engine over a small catalogue with $100k cash.
// The engine and the project backend share one seeded rng.
func newTestEnv(t *testing.T, params Params, seed int64, baseline *BaselineConfig) *testEnv {
	t.Helper()
	rng := rand.New(rand.NewSource(seed))
	eq := market.NewEquityBackend(map[string]decimal.Decimal{
		"AAPL":  d(100),
		"GOOGL": d(2500),
	})
	bonds := market.NewBondBackend([]market.Bond{
		{BondID: "BOND-001", Name: "US Treasury 10Y", FaceValue: d(1000), CouponRate: d(0.025), MaturityYears: 10, Price: d(980)},
	}, d(0.03))
	projects := market.NewProjectBackend([]market.Project{
		{ProjectID: "P-001", Name: "Tech Startup Alpha", RequiredInvestment: d(50000), ExpectedReturnPct: d(0.25), RiskLevel: "HIGH", WeeksToCompletion: 4, SuccessProbability: 0},
	}, rng)
	quotes := market.NewQuotes(eq, bonds)
	led := ledger.New(d(100000), quotes, testLogger())
	rt := router.New(led, eq, bonds, projects)
	collector := events.NewCollector(0)

	e := New(Config{
		Params:   params,
		Ledger:   led,
		Router:   rt,
		Equity:   eq,
		Bonds:    bonds,
		Projects: projects,
		Quotes:   quotes,
		Sink:     collector,
		Logger:   testLogger(),
		Rand:     rng,
		Baseline: baseline,
	})
	return &testEnv{engine: e, equity: eq, bonds: bonds, projects: projects, collector: collector}
}

// quietParams returns the default knobs with shocks turned off, for
// tests that need a still market.
func quietParams() Params {
	p := DefaultParams()
	p.DisableShocks = true
	return p
}

func act(t *testing.T, cognition float64, allocs ...model.Allocation) *model.Action {
	t.Helper()
	a := &model.Action{Allocations: allocs, CognitionCost: d(cognition)}
	if err := a.Validate(); err != nil {
		t.Fatalf("invalid test action: %v", err)
	}
	return a
}

func eqAlloc(t *testing.T, ticker string, usd float64) model.Allocation {
	t.Helper()
	a, err := model.NewEquityAlloc(ticker, d(usd))
	if err != nil {
		t.Fatalf("invalid equity allocation: %v", err)
	}
	return a
}

func projAlloc(t *testing.T, id string, usd float64) model.Allocation {
	t.Helper()
	a, err := model.NewProjectAlloc(id, d(usd))
	if err != nil {
		t.Fatalf("invalid project allocation: %v", err)
	}
	return a
}

// --- Reward ---

func TestTick_FirstTickRewardZeroWithoutAction(t *testing.T) {
	env := newTestEnv(t, quietParams(), 1, nil)

	res := env.engine.Tick(nil)
	if !res.Reward.IsZero() {
		t.Errorf("first tick with no action must reward exactly 0, got %s", res.Reward)
	}
	if res.Observation.Tick != 1 {
		t.Errorf("expected tick 1, got %d", res.Observation.Tick)
	}
	if res.Terminated || res.Truncated {
		t.Error("first tick must not terminate")
	}
}

func TestTick_FirstTickChargesCognition(t *testing.T) {
	env := newTestEnv(t, quietParams(), 1, nil)

	res := env.engine.Tick(act(t, 10))
	if !res.Reward.Equal(d(-0.10)) {
		t.Errorf("cognition 10 on the first tick must cost exactly -0.10, got %s", res.Reward)
	}
}

func TestTick_GainPaysAboveRiskFreeHurdle(t *testing.T) {
	env := newTestEnv(t, quietParams(), 1, nil)

	// Tick 1: all cash into 1000 AAPL shares at $100. NAV stays 100000.
	res := env.engine.Tick(act(t, 0, eqAlloc(t, "AAPL", 100000)))
	if len(res.Failed) != 0 {
		t.Fatalf("buy failed: %v", res.Failed)
	}
	if !res.Observation.NAV.Equal(d(100000)) {
		t.Fatalf("expected NAV 100000 after buy, got %s", res.Observation.NAV)
	}

	// Tick 2: +2% market move, NAV 102000. Hurdle is 1% of 100000.
	env.equity.UpdatePrices(map[string]decimal.Decimal{"AAPL": d(102)})
	res = env.engine.Tick(nil)
	if !res.Reward.Equal(d(1000)) {
		t.Errorf("expected reward 2000 - 1000 = 1000, got %s", res.Reward)
	}
}

func TestTick_LossPenalizedBelowHurdle(t *testing.T) {
	env := newTestEnv(t, quietParams(), 1, nil)

	env.engine.Tick(act(t, 0, eqAlloc(t, "AAPL", 100000)))

	// NAV drops 1000; adjusted delta is -1000 - 1000 = -2000.
	env.equity.UpdatePrices(map[string]decimal.Decimal{"AAPL": d(99)})
	res := env.engine.Tick(nil)
	if !res.Reward.Equal(d(-2000)) {
		t.Errorf("expected reward -2000, got %s", res.Reward)
	}
}

func TestTick_CognitionScalesLinearly(t *testing.T) {
	env := newTestEnv(t, quietParams(), 1, nil)

	env.engine.Tick(act(t, 0, eqAlloc(t, "AAPL", 100000)))

	env.equity.UpdatePrices(map[string]decimal.Decimal{"AAPL": d(102)})
	res := env.engine.Tick(act(t, 50))
	if !res.Reward.Equal(d(999.5)) {
		t.Errorf("expected 1000 - 0.01*50 = 999.5, got %s", res.Reward)
	}
}

func TestTick_ExcessVolatilityPenalized(t *testing.T) {
	env := newTestEnv(t, quietParams(), 1, nil)

	env.engine.Tick(act(t, 0, eqAlloc(t, "AAPL", 100000)))

	env.equity.UpdatePrices(map[string]decimal.Decimal{"AAPL": d(110)})
	env.engine.Tick(nil) // NAV 110000, one return, no vol penalty yet

	env.equity.UpdatePrices(map[string]decimal.Decimal{"AAPL": d(99)})
	res := env.engine.Tick(nil) // NAV 99000, two returns

	// Mirror the float64 statistics path exactly.
	r1 := 110000.0/100000.0 - 1
	r2 := 99000.0/110000.0 - 1
	mean := (r1 + r2) / 2
	variance := (r1-mean)*(r1-mean) + (r2-mean)*(r2-mean) // n-1 == 1
	excess := math.Sqrt(variance) - 0.02

	expected := d(-11000).Sub(d(1100)).Sub(decimal.NewFromFloat(excess))
	if !res.Reward.Equal(expected) {
		t.Errorf("expected reward %s, got %s", expected, res.Reward)
	}
}

func TestTick_NAVHistoryBounded(t *testing.T) {
	p := quietParams()
	p.NAVWindow = 3
	env := newTestEnv(t, p, 1, nil)

	for i := 0; i < 8; i++ {
		env.engine.Tick(nil)
	}
	if got := len(env.engine.navHistory); got != 3 {
		t.Errorf("expected history capped at 3, got %d", got)
	}
}

// --- Termination ---

func TestTick_TerminatesAtBudget(t *testing.T) {
	p := quietParams()
	p.TickBudget = 10
	env := newTestEnv(t, p, 1, nil)

	for i := 1; i <= 9; i++ {
		if res := env.engine.Tick(nil); res.Terminated {
			t.Fatalf("terminated early at tick %d", i)
		}
	}
	if res := env.engine.Tick(nil); !res.Terminated {
		t.Error("expected termination at the tick budget")
	}
	if res := env.engine.Tick(nil); !res.Terminated {
		t.Error("ticks past the budget must stay terminated")
	}
}

// --- Shocks ---

func TestTick_ShocksRespectCooldown(t *testing.T) {
	p := DefaultParams()
	p.ShockProbability = 1.0
	env := newTestEnv(t, p, 42, nil)

	var shockTicks []int
	for i := 1; i <= 20; i++ {
		res := env.engine.Tick(nil)
		for _, n := range res.Observation.News {
			if n.Type == model.NewsRateShock || n.Type == model.NewsMarketVolatility {
				shockTicks = append(shockTicks, res.Observation.Tick)
			}
		}
	}

	want := []int{5, 10, 15, 20}
	if fmt.Sprint(shockTicks) != fmt.Sprint(want) {
		t.Errorf("with certain shocks and cooldown 5, expected shocks at %v, got %v", want, shockTicks)
	}
}

func TestTick_RateShockMovesBonds(t *testing.T) {
	p := DefaultParams()
	p.ShockProbability = 1.0
	env := newTestEnv(t, p, 7, nil)

	priceBefore, _ := env.bonds.Price("BOND-001")
	equityBefore, _ := env.equity.Price("AAPL")

	var shock model.NewsEvent
	for i := 1; i <= 5; i++ {
		res := env.engine.Tick(nil)
		for _, n := range res.Observation.News {
			if n.Type != model.NewsProjectCompletion {
				shock = n
			}
		}
	}
	if shock.Type == "" {
		t.Fatal("expected a shock within 5 ticks at probability 1")
	}

	priceAfter, _ := env.bonds.Price("BOND-001")
	equityAfter, _ := env.equity.Price("AAPL")
	switch shock.Type {
	case model.NewsRateShock:
		if priceAfter.Equal(priceBefore) {
			t.Error("rate shock must reprice bonds")
		}
		bps, ok := shock.Impact["rate_change_bps"].(int)
		if !ok || bps == 0 || bps > 75 || bps < -75 || (bps > -25 && bps < 25) {
			t.Errorf("rate change %v outside |25..75| bps", shock.Impact["rate_change_bps"])
		}
	case model.NewsMarketVolatility:
		if equityAfter.Equal(equityBefore) {
			t.Error("volatility shock must move equity prices")
		}
		if shock.Impact["volatility_level"] != "HIGH" {
			t.Errorf("unexpected impact %v", shock.Impact)
		}
	}
}

func TestTick_VolatilityFloorsPricesAtOneDollar(t *testing.T) {
	env := newTestEnv(t, quietParams(), 1, nil)
	env.equity.UpdatePrices(map[string]decimal.Decimal{"AAPL": d(1.05)})

	// Drive the volatility path directly many times; the floor must hold.
	for i := 0; i < 50; i++ {
		env.engine.applyVolatility()
	}
	p, _ := env.equity.Price("AAPL")
	if p.LessThan(d(1)) {
		t.Errorf("price %s fell through the $1.00 floor", p)
	}
}

// --- Determinism ---

func TestTick_DeterministicGivenSeed(t *testing.T) {
	script := func(env *testEnv) []string {
		var trace []string
		for i := 1; i <= 30; i++ {
			var action *model.Action
			switch i {
			case 2:
				action = act(t, 5, eqAlloc(t, "AAPL", 20000))
			case 3:
				action = act(t, 10, projAlloc(t, "P-001", 15000))
			case 9:
				action = act(t, 5, eqAlloc(t, "AAPL", -5000))
			}
			res := env.engine.Tick(action)
			trace = append(trace, fmt.Sprintf("%d|%s|%s|%d",
				res.Observation.Tick, res.Observation.NAV, res.Reward, len(res.Observation.News)))
		}
		return trace
	}

	p := DefaultParams()
	p.ShockProbability = 0.5
	first := script(newTestEnv(t, p, 1234, nil))
	second := script(newTestEnv(t, p, 1234, nil))

	if fmt.Sprint(first) != fmt.Sprint(second) {
		t.Error("identically seeded engines must replay identical episodes")
	}
}

// --- Project flow ---

func TestTick_ProjectCompletionArrivesAsNews(t *testing.T) {
	env := newTestEnv(t, quietParams(), 9, nil)

	res := env.engine.Tick(act(t, 10, projAlloc(t, "P-001", 25000)))
	if len(res.Failed) != 0 {
		t.Fatalf("invest failed: %v", res.Failed)
	}
	if !res.Observation.Cash.Equal(d(75000)) {
		t.Fatalf("expected cash 75000, got %s", res.Observation.Cash)
	}

	var completion *model.NewsEvent
	completedAt := 0
	for i := 2; i <= 6; i++ {
		res = env.engine.Tick(nil)
		for _, n := range res.Observation.News {
			if n.Type == model.NewsProjectCompletion {
				n := n
				completion = &n
				completedAt = res.Observation.Tick
			}
		}
	}
	if completion == nil {
		t.Fatal("expected the 4-week project to complete")
	}
	if completedAt != 5 {
		t.Errorf("4-week project invested on tick 1 must complete on tick 5, got %d", completedAt)
	}
	if env.collector.Events(events.Filter{Types: []string{events.TypeProjectCompleted}}) == nil {
		t.Error("expected a project_completed event")
	}
	if got := len(env.engine.Ledger().Holdings()); got != 0 {
		t.Errorf("settled project must release its position, got %d holdings", got)
	}
}

// --- Reset ---

func TestReset_FreshEpisodeSameMarket(t *testing.T) {
	env := newTestEnv(t, quietParams(), 3, nil)

	env.engine.Tick(act(t, 5, eqAlloc(t, "AAPL", 10000)))
	env.engine.Tick(act(t, 10, projAlloc(t, "P-001", 20000)))
	env.equity.UpdatePrices(map[string]decimal.Decimal{"AAPL": d(140)})

	obs := env.engine.Reset(d(50000))

	if obs.Tick != 0 {
		t.Errorf("expected tick 0, got %d", obs.Tick)
	}
	if !obs.Cash.Equal(d(50000)) || !obs.NAV.Equal(d(50000)) {
		t.Errorf("expected fresh 50000 cash ledger, got cash %s nav %s", obs.Cash, obs.NAV)
	}
	if len(obs.Portfolio) != 0 || len(obs.ProjectsAvailable) != 0 || len(obs.News) != 0 {
		t.Error("reset observation must carry no holdings, projects, or news")
	}
	if env.engine.CurrentTick() != 0 {
		t.Errorf("tick counter must reset, got %d", env.engine.CurrentTick())
	}
	if env.engine.navHistory != nil {
		t.Error("reward history must clear on reset")
	}

	// Market state persists: the moved price and consumed funding remain.
	if p, _ := env.equity.Price("AAPL"); !p.Equal(d(140)) {
		t.Errorf("reset must not touch market prices, got %s", p)
	}
	res := env.engine.Tick(nil)
	if got := res.Observation.ProjectsAvailable[0].RequiredInvestment; !got.Equal(d(30000)) {
		t.Errorf("project funding must persist across reset, got remaining %s", got)
	}
}

func TestReset_OrphanedCommitmentSettlesWithoutCredit(t *testing.T) {
	env := newTestEnv(t, quietParams(), 3, nil)

	env.engine.Tick(act(t, 10, projAlloc(t, "P-001", 20000)))
	env.engine.Reset(d(100000))

	// The old commitment still counts down but redeems against a ledger
	// that never held it: news fires, cash does not move.
	var sawCompletion bool
	for i := 0; i < 4; i++ {
		res := env.engine.Tick(nil)
		for _, n := range res.Observation.News {
			if n.Type == model.NewsProjectCompletion {
				sawCompletion = true
			}
		}
	}
	if !sawCompletion {
		t.Error("outstanding commitment must still complete after reset")
	}
	if !env.engine.Ledger().Cash().Equal(d(100000)) {
		t.Errorf("orphaned settlement must not credit the new ledger, got %s", env.engine.Ledger().Cash())
	}
}

// --- Events ---

func TestTick_EventStream(t *testing.T) {
	env := newTestEnv(t, quietParams(), 1, nil)

	env.engine.Tick(act(t, 5, eqAlloc(t, "AAPL", 1000), eqAlloc(t, "FAKE", 1000)))

	if got := env.collector.Events(events.Filter{Types: []string{events.TypeSimulationStart}}); len(got) != 1 {
		t.Errorf("expected 1 simulation_start, got %d", len(got))
	}
	if got := env.collector.Events(events.Filter{Types: []string{events.TypeAgentDecision}}); len(got) != 1 {
		t.Errorf("expected 1 agent_decision, got %d", len(got))
	}

	trades := env.collector.Events(events.Filter{Types: []string{events.TypeTradeExecuted}})
	if len(trades) != 1 {
		t.Fatalf("expected only the surviving allocation to trade, got %d", len(trades))
	}
	if trades[0].Data["instrument"] != "AAPL" {
		t.Errorf("unexpected trade %v", trades[0].Data)
	}

	for _, typ := range []string{events.TypeSimulationTick, events.TypePortfolioUpdate, events.TypeRewardCalculated} {
		if got := env.collector.Events(events.Filter{Types: []string{typ}}); len(got) != 1 {
			t.Errorf("expected 1 %s event, got %d", typ, len(got))
		}
	}
}

// --- Baseline comparison ---

// stubBot is a scripted baseline policy that records the observations
// it was handed.
type stubBot struct {
	observed []model.Observation
	action   *model.Action
}

func (s *stubBot) Decide(obs model.Observation) *model.Action {
	s.observed = append(s.observed, obs)
	return s.action
}

func baselineConfig(bot *stubBot) *BaselineConfig {
	return &BaselineConfig{
		NewBot: func() Decider { return bot },
		Projects: []market.Project{
			{ProjectID: "P-001", Name: "Tech Startup Alpha", RequiredInvestment: d(50000), ExpectedReturnPct: d(0.25), RiskLevel: "HIGH", WeeksToCompletion: 4, SuccessProbability: 0},
		},
		InitialCash: d(100000),
	}
}

func TestAdaptabilityReport_DisabledWithoutBaseline(t *testing.T) {
	env := newTestEnv(t, quietParams(), 1, nil)
	if _, err := env.engine.AdaptabilityReport(); !errors.Is(err, ErrComparisonDisabled) {
		t.Errorf("expected ErrComparisonDisabled, got %v", err)
	}
}

func TestBaseline_BotReadsPrimaryObservation(t *testing.T) {
	bot := &stubBot{}
	env := newTestEnv(t, quietParams(), 1, baselineConfig(bot))

	env.engine.Tick(act(t, 0, eqAlloc(t, "AAPL", 50000)))
	env.engine.Tick(nil)

	if len(bot.observed) != 2 {
		t.Fatalf("bot must be consulted every tick, saw %d observations", len(bot.observed))
	}
	// The bot sees the agent's portfolio, not its own.
	if len(bot.observed[0].Portfolio) != 1 {
		t.Errorf("expected the primary portfolio in the bot's view, got %+v", bot.observed[0].Portfolio)
	}
	if !bot.observed[0].Cash.Equal(d(50000)) {
		t.Errorf("expected primary cash 50000 in the bot's view, got %s", bot.observed[0].Cash)
	}
}

func TestBaseline_ComparisonTracksBothNAVs(t *testing.T) {
	bot := &stubBot{} // pure hold: baseline NAV stays at initial cash
	p := DefaultParams()
	p.ShockProbability = 1.0
	env := newTestEnv(t, p, 42, baselineConfig(bot))

	env.engine.Tick(act(t, 0, eqAlloc(t, "AAPL", 100000)))
	for i := 2; i <= 12; i++ {
		env.engine.Tick(nil)
	}

	report, err := env.engine.AdaptabilityReport()
	if err != nil {
		t.Fatalf("report failed: %v", err)
	}
	if report.ShockCount != 2 {
		t.Errorf("shocks at ticks 5 and 10 expected, got %d windows", report.ShockCount)
	}
	if !report.FinalBaselineNAV.Equal(d(100000)) {
		t.Errorf("holding baseline must end at its initial cash, got %s", report.FinalBaselineNAV)
	}
	wantDelta := report.FinalAgentNAV.Sub(d(100000))
	if !report.TotalOutperformance.Equal(wantDelta) {
		t.Errorf("outperformance %s != agent NAV delta %s", report.TotalOutperformance, wantDelta)
	}

	comparisons := env.collector.Events(events.Filter{Types: []string{events.TypeHODLComparison}})
	if len(comparisons) != 12 {
		t.Errorf("expected one hodl_comparison per tick, got %d", len(comparisons))
	}
}

func TestBaseline_ActionsStayOffPrimaryLedger(t *testing.T) {
	bot := &stubBot{}
	env := newTestEnv(t, quietParams(), 1, baselineConfig(bot))
	bot.action = act(t, 0.5, eqAlloc(t, "AAPL", 20000))

	env.engine.Tick(nil)

	if !env.engine.Ledger().Cash().Equal(d(100000)) {
		t.Errorf("baseline buys must not touch the primary ledger, got %s", env.engine.Ledger().Cash())
	}
	if !env.engine.baseline.engine.Ledger().Cash().Equal(d(80000)) {
		t.Errorf("baseline ledger must record its own buy, got %s", env.engine.baseline.engine.Ledger().Cash())
	}
}
