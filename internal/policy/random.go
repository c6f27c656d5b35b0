package policy

import (
	"fmt"
	"math/rand"

	"github.com/shopspring/decimal"

	"github.com/agenttycoon/sim-engine/internal/model"
)

// Random policy behavior knobs.
const (
	randomActEvery    = 3
	randomActChance   = 0.7
	randomProjectBias = 0.5
	equityBuyMin      = 1000
	equityBuyMax      = 5000
)

var (
	projectCashFraction = decimal.NewFromFloat(0.30)
	projectMinTicket    = decimal.NewFromInt(1000)
	randomEquityCost    = decimal.NewFromInt(5)
	randomProjectCost   = decimal.NewFromInt(10)
)

// RandomPolicy places occasional random orders. Every third tick it acts
// with 70% probability, splitting between a project investment (30% of
// cash, capped at the funding gap, skipped under $1,000) and an equity
// buy of $1,000-$5,000 in a random ticker. Useful for demos and for
// exercising the full allocation path in smoke runs.
type RandomPolicy struct {
	tickers []string
	rng     *rand.Rand
}

// NewRandomPolicy creates a policy over the given ticker universe.
func NewRandomPolicy(tickers []string, rng *rand.Rand) *RandomPolicy {
	return &RandomPolicy{tickers: tickers, rng: rng}
}

// Name implements Policy.
func (p *RandomPolicy) Name() string { return NameRandom }

// Decide implements Policy.
func (p *RandomPolicy) Decide(obs model.Observation) *model.Action {
	if obs.Tick%randomActEvery != 0 {
		return nil
	}
	if p.rng.Float64() > randomActChance {
		return nil
	}

	if len(obs.ProjectsAvailable) > 0 && p.rng.Float64() < randomProjectBias {
		return p.projectAction(obs)
	}
	return p.equityAction(obs)
}

func (p *RandomPolicy) projectAction(obs model.Observation) *model.Action {
	info := obs.ProjectsAvailable[p.rng.Intn(len(obs.ProjectsAvailable))]
	amount := decimal.Min(info.RequiredInvestment, obs.Cash.Mul(projectCashFraction)).Round(2)
	if amount.LessThanOrEqual(projectMinTicket) {
		return nil
	}
	alloc, err := model.NewProjectAlloc(info.ProjectID, amount)
	if err != nil {
		return nil
	}
	return &model.Action{
		Comment:       fmt.Sprintf("speculative stake in %s", info.ProjectID),
		Allocations:   []model.Allocation{alloc},
		CognitionCost: randomProjectCost,
	}
}

func (p *RandomPolicy) equityAction(obs model.Observation) *model.Action {
	if len(p.tickers) == 0 {
		return nil
	}
	ticker := p.tickers[p.rng.Intn(len(p.tickers))]
	usd := decimal.NewFromFloat(equityBuyMin + p.rng.Float64()*(equityBuyMax-equityBuyMin)).Round(2)
	if obs.Cash.LessThan(usd) {
		return nil
	}
	alloc, err := model.NewEquityAlloc(ticker, usd)
	if err != nil {
		return nil
	}
	return &model.Action{
		Comment:       fmt.Sprintf("momentum punt on %s", ticker),
		Allocations:   []model.Allocation{alloc},
		CognitionCost: randomEquityCost,
	}
}
