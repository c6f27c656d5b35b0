package engine

import (
	"fmt"
	"sort"

	"github.com/shopspring/decimal"

	"github.com/agenttycoon/sim-engine/internal/events"
	"github.com/agenttycoon/sim-engine/internal/model"
)

// Shock magnitudes. Rate shocks draw a uniform integer basis-point move;
// volatility shocks move every equity by a uniform factor.
const (
	rateShockMinBps = 25
	rateShockMaxBps = 75
	volatilityRange = 0.15
)

// Equity prices never drop below one dollar under a volatility shock.
var volatilityFloor = decimal.NewFromInt(1)

// maybeShock rolls for at most one market shock this tick. The cooldown
// gates the roll itself: a shock can fire only when tick − lastShockTick
// >= cooldown. Returns the news event for the observation, or nil.
func (e *Engine) maybeShock() *model.NewsEvent {
	if e.params.DisableShocks {
		return nil
	}
	if e.tick-e.lastShockTick < e.params.ShockCooldown {
		return nil
	}
	if e.rng.Float64() >= e.params.ShockProbability {
		return nil
	}
	e.lastShockTick = e.tick

	var ev model.NewsEvent
	switch e.rng.Intn(3) {
	case 0:
		bps := rateShockMinBps + e.rng.Intn(rateShockMaxBps-rateShockMinBps+1)
		e.bonds.ApplyRateShock(bps)
		ev = model.NewsEvent{
			Type:        model.NewsRateShock,
			Description: fmt.Sprintf("Interest rate hike of %d basis points", bps),
			Impact:      map[string]any{"rate_change_bps": bps},
		}
	case 1:
		bps := rateShockMinBps + e.rng.Intn(rateShockMaxBps-rateShockMinBps+1)
		e.bonds.ApplyRateShock(-bps)
		ev = model.NewsEvent{
			Type:        model.NewsRateShock,
			Description: fmt.Sprintf("Interest rate cut of %d basis points", bps),
			Impact:      map[string]any{"rate_change_bps": -bps},
		}
	default:
		e.applyVolatility()
		ev = model.NewsEvent{
			Type:        model.NewsMarketVolatility,
			Description: "Market volatility event: significant price movements across equities",
			Impact:      map[string]any{"volatility_level": "HIGH"},
		}
	}

	e.log.Info("market shock",
		"tick", e.tick,
		"type", ev.Type,
		"description", ev.Description,
	)
	e.publish(events.TypeMarketShock, map[string]any{
		"shock_type":  ev.Type,
		"description": ev.Description,
	})
	return &ev
}

// applyVolatility moves every equity price by a uniform factor in
// [1−range, 1+range], floored at $1.00. Tickers are visited in sorted
// order so a seeded run replays the same draws.
func (e *Engine) applyVolatility() {
	prices := e.equity.Prices()
	tickers := make([]string, 0, len(prices))
	for t := range prices {
		tickers = append(tickers, t)
	}
	sort.Strings(tickers)

	changes := make(map[string]decimal.Decimal, len(tickers))
	for _, t := range tickers {
		u := -volatilityRange + e.rng.Float64()*(2*volatilityRange)
		next := prices[t].Mul(decimal.NewFromFloat(1 + u)).Round(2)
		if next.LessThan(volatilityFloor) {
			next = volatilityFloor
		}
		changes[t] = next
	}
	e.equity.UpdatePrices(changes)
}
