// Package model defines the core domain types shared across the simulator.
// All monetary values use shopspring/decimal, never float64 for money.
package model

import (
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// AssetClass discriminates the four kinds of capital allocation.
type AssetClass string

const (
	AssetCash    AssetClass = "CASH"
	AssetEquity  AssetClass = "EQUITY"
	AssetBond    AssetClass = "BOND"
	AssetProject AssetClass = "PROJECT"
)

// Stable news event type tags. External observers pattern-match on these,
// so the values must not change across releases.
const (
	NewsRateShock         = "RATE_SHOCK"
	NewsMarketVolatility  = "MARKET_VOLATILITY"
	NewsProjectCompletion = "PROJECT_COMPLETION"
)

// ErrInvalidAllocation is returned when an allocation fails construction
// validation (bad class, missing instrument, sub-cent amount, negative
// project investment).
var ErrInvalidAllocation = errors.New("model: invalid allocation")

// Allocation is one entry of a capital-allocation batch: a tagged variant
// over the four asset classes. USD is signed: positive buys/invests,
// negative sells. Project allocations are buy-only.
type Allocation struct {
	Class      AssetClass      `json:"asset_class"`
	Instrument string          `json:"instrument,omitempty"` // ticker, bond id, or project id
	USD        decimal.Decimal `json:"usd"`
}

// NewEquityAlloc builds a validated equity allocation.
func NewEquityAlloc(ticker string, usd decimal.Decimal) (Allocation, error) {
	a := Allocation{Class: AssetEquity, Instrument: ticker, USD: usd}
	return a, a.Validate()
}

// NewBondAlloc builds a validated bond allocation.
func NewBondAlloc(bondID string, usd decimal.Decimal) (Allocation, error) {
	a := Allocation{Class: AssetBond, Instrument: bondID, USD: usd}
	return a, a.Validate()
}

// NewProjectAlloc builds a validated project allocation. Project capital is
// committed, not traded, so the amount must be non-negative.
func NewProjectAlloc(projectID string, usd decimal.Decimal) (Allocation, error) {
	a := Allocation{Class: AssetProject, Instrument: projectID, USD: usd}
	return a, a.Validate()
}

// NewCashAlloc builds a validated cash allocation.
func NewCashAlloc(usd decimal.Decimal) (Allocation, error) {
	a := Allocation{Class: AssetCash, USD: usd}
	return a, a.Validate()
}

// Validate checks the allocation invariants: a known class, an instrument id
// for every non-cash class, an amount with at most 2 fraction digits, and a
// non-negative amount for projects.
func (a Allocation) Validate() error {
	switch a.Class {
	case AssetCash:
	case AssetEquity, AssetBond, AssetProject:
		if a.Instrument == "" {
			return fmt.Errorf("%w: %s allocation requires an instrument id", ErrInvalidAllocation, a.Class)
		}
	default:
		return fmt.Errorf("%w: unknown asset class %q", ErrInvalidAllocation, a.Class)
	}
	if !a.USD.Equal(a.USD.Truncate(2)) {
		return fmt.Errorf("%w: amount %s has sub-cent precision", ErrInvalidAllocation, a.USD)
	}
	if a.Class == AssetProject && a.USD.IsNegative() {
		return fmt.Errorf("%w: project investment must be non-negative, got %s", ErrInvalidAllocation, a.USD)
	}
	return nil
}

// Action is one agent decision: a batch of allocations plus the cognition
// cost the agent spent producing it.
type Action struct {
	Comment       string          `json:"comment"`
	Allocations   []Allocation    `json:"allocations"`
	CognitionCost decimal.Decimal `json:"cognition_cost"`
}

// Validate checks the action and every allocation in its batch.
func (a *Action) Validate() error {
	if a.CognitionCost.IsNegative() {
		return fmt.Errorf("%w: cognition cost must be non-negative, got %s", ErrInvalidAllocation, a.CognitionCost)
	}
	for _, alloc := range a.Allocations {
		if err := alloc.Validate(); err != nil {
			return err
		}
	}
	return nil
}

// Holding is one portfolio entry as reported to the agent: quantity to 6
// fraction digits, value to 2.
type Holding struct {
	Class      AssetClass      `json:"asset_class"`
	Instrument string          `json:"instrument"`
	Quantity   decimal.Decimal `json:"quantity"`
	Value      decimal.Decimal `json:"value"`
}

// ProjectInfo describes a project still open for investment.
// RequiredInvestment reports the remaining funding gap, not the original
// target, so agents see how much capital the project can still absorb.
type ProjectInfo struct {
	ProjectID          string          `json:"project_id"`
	Name               string          `json:"name"`
	RequiredInvestment decimal.Decimal `json:"required_investment"`
	ExpectedReturnPct  decimal.Decimal `json:"expected_return_pct"`
	RiskLevel          string          `json:"risk_level"`
	WeeksToCompletion  int             `json:"weeks_to_completion"`
}

// NewsEvent is a simulation-generated market event delivered with the
// observation. Type is one of the stable News* tags.
type NewsEvent struct {
	Type        string         `json:"event_type"`
	Description string         `json:"description"`
	Impact      map[string]any `json:"impact_data"`
}

// Observation is the immutable per-tick snapshot handed to the agent.
type Observation struct {
	Tick              int             `json:"tick"`
	Cash              decimal.Decimal `json:"cash"`
	NAV               decimal.Decimal `json:"nav"`
	Portfolio         []Holding       `json:"portfolio"`
	ProjectsAvailable []ProjectInfo   `json:"projects_available"`
	News              []NewsEvent     `json:"news"`
}

// FailedAllocation reports one allocation that did not execute and why.
// Partial batch success is accepted behavior: the caller inspects this list
// to learn what did not happen.
type FailedAllocation struct {
	Allocation Allocation `json:"allocation"`
	Reason     string     `json:"reason"`
}

// AdaptabilityReport summarizes how the agent performed relative to the
// passive baseline across post-shock measurement windows.
type AdaptabilityReport struct {
	Score                  float64         `json:"adaptability_score"`
	ShockCount             int             `json:"shock_count"`
	OutperformedCount      int             `json:"outperformed_count"`
	AvgRelativePerformance float64         `json:"avg_relative_performance"`
	ConsistencyRatio       float64         `json:"consistency_ratio"`
	FinalAgentNAV          decimal.Decimal `json:"final_agent_nav"`
	FinalBaselineNAV       decimal.Decimal `json:"final_baseline_nav"`
	TotalOutperformance    decimal.Decimal `json:"total_outperformance"`
	TotalOutperformancePct float64         `json:"total_outperformance_pct"`
}

// EpisodeResult is one completed run as recorded on the leaderboard.
type EpisodeResult struct {
	ID                string          `json:"id" db:"id"`
	AgentName         string          `json:"agent_name" db:"agent_name"`
	Episodes          int             `json:"episodes" db:"episodes"`
	MeanReward        decimal.Decimal `json:"mean_reward" db:"mean_reward"`
	StdReward         decimal.Decimal `json:"std_reward" db:"std_reward"`
	FinalNAV          decimal.Decimal `json:"final_nav" db:"final_nav"`
	AdaptabilityScore float64         `json:"adaptability_score" db:"adaptability_score"`
	Notes             string          `json:"notes" db:"notes"`
	CreatedAt         time.Time       `json:"created_at" db:"created_at"`
}
