// Package ledger implements portfolio accounting for a single simulated
// agent: a cash balance plus consolidated positions keyed by (asset class,
// instrument id). Cash is quantized to 2 fraction digits after every
// mutation so cent-level drift cannot accumulate across thousands of ticks.
package ledger

import (
	"fmt"
	"log/slog"

	"github.com/shopspring/decimal"

	"github.com/agenttycoon/sim-engine/internal/model"
)

// PriceSource resolves live market quotes for valuation. Quote reports
// ok=false when no live price exists for the instrument (project positions,
// unknown tickers); the ledger then falls back to cost basis or excludes
// the position from NAV.
type PriceSource interface {
	Quote(class model.AssetClass, instrument string) (decimal.Decimal, bool)
}

// residualEpsilon is the quantity below which a position is considered
// fully closed and removed.
var residualEpsilon = decimal.New(1, -6)

type position struct {
	class      model.AssetClass
	instrument string
	quantity   decimal.Decimal
	costBasis  decimal.Decimal // total USD paid, reduced proportionally on sale
}

// Ledger owns one agent's cash and positions. It is not safe for concurrent
// use; a simulation steps on a single goroutine.
type Ledger struct {
	cash      decimal.Decimal
	positions []*position
	prices    PriceSource
	log       *slog.Logger
}

// New creates a ledger with an initial cash endowment. prices may be nil,
// in which case all valuation falls back to cost basis.
func New(initialCash decimal.Decimal, prices PriceSource, logger *slog.Logger) *Ledger {
	if logger == nil {
		logger = slog.Default()
	}
	return &Ledger{
		cash:   initialCash.Round(2),
		prices: prices,
		log:    logger,
	}
}

// Cash returns the cash balance, always quantized to 2 fraction digits.
func (l *Ledger) Cash() decimal.Decimal {
	return l.cash
}

// AddPosition buys quantity units for totalCost. It fails without mutation
// when totalCost exceeds available cash. An existing (class, instrument)
// position merges additively: quantities and cost bases sum.
func (l *Ledger) AddPosition(class model.AssetClass, instrument string, quantity, totalCost decimal.Decimal) bool {
	mustKnownClass(class)
	if totalCost.GreaterThan(l.cash) {
		return false
	}
	l.cash = l.cash.Sub(totalCost).Round(2)

	if p := l.find(class, instrument); p != nil {
		p.quantity = p.quantity.Add(quantity)
		p.costBasis = p.costBasis.Add(totalCost)
		return true
	}
	l.positions = append(l.positions, &position{
		class:      class,
		instrument: instrument,
		quantity:   quantity,
		costBasis:  totalCost,
	})
	return true
}

// RemovePosition sells quantity units, crediting cash with proceeds at the
// live market price when one resolves, else at average cost basis per unit.
// Cost basis is reduced proportionally to the fraction sold, preserving the
// average cost of any remainder. Fails without mutation when the position
// is missing or holds fewer units than requested.
func (l *Ledger) RemovePosition(class model.AssetClass, instrument string, quantity decimal.Decimal) (decimal.Decimal, bool) {
	p := l.find(class, instrument)
	if p == nil || p.quantity.LessThan(quantity) {
		return decimal.Zero, false
	}

	basisPerUnit := decimal.Zero
	if p.quantity.IsPositive() {
		basisPerUnit = p.costBasis.Div(p.quantity)
	}
	unitPrice := basisPerUnit
	if q, ok := l.quote(p); ok {
		unitPrice = q
	}
	proceeds := unitPrice.Mul(quantity)

	p.quantity = p.quantity.Sub(quantity)
	p.costBasis = p.costBasis.Sub(basisPerUnit.Mul(quantity))
	if p.quantity.LessThanOrEqual(residualEpsilon) {
		l.drop(p)
	}

	l.cash = l.cash.Add(proceeds).Round(2)
	return proceeds, true
}

// Redeem settles quantity units of a position at an externally determined
// price: exactly costBasis leaves the position's basis (no proportional
// math) and exactly proceeds is credited to cash. Project completions use
// this so the cash delta of a completion is the payout, no more, no less,
// regardless of how many sibling commitments remain outstanding.
func (l *Ledger) Redeem(class model.AssetClass, instrument string, quantity, costBasis, proceeds decimal.Decimal) bool {
	p := l.find(class, instrument)
	if p == nil || p.quantity.LessThan(quantity) {
		return false
	}

	p.quantity = p.quantity.Sub(quantity)
	p.costBasis = p.costBasis.Sub(costBasis)
	if p.costBasis.IsNegative() {
		p.costBasis = decimal.Zero
	}
	if p.quantity.LessThanOrEqual(residualEpsilon) {
		l.drop(p)
	}

	l.cash = l.cash.Add(proceeds).Round(2)
	return true
}

// NAV returns cash plus the mark-to-market value of every position with a
// resolvable quote. Positions without one are excluded with a warning; NAV
// never fails to compute.
func (l *Ledger) NAV() decimal.Decimal {
	value := decimal.Zero
	for _, p := range l.positions {
		q, ok := l.quote(p)
		if !ok {
			l.log.Warn("no live quote for position, excluded from NAV",
				"class", p.class, "instrument", p.instrument)
			continue
		}
		value = value.Add(p.quantity.Mul(q))
	}
	return l.cash.Add(value).Round(2)
}

// Holdings reports the portfolio: quantity to 6 fraction digits, value to
// 2, marked to market when a quote resolves and at cost basis otherwise.
func (l *Ledger) Holdings() []model.Holding {
	out := make([]model.Holding, 0, len(l.positions))
	for _, p := range l.positions {
		value := p.costBasis
		if q, ok := l.quote(p); ok {
			value = p.quantity.Mul(q)
		}
		out = append(out, model.Holding{
			Class:      p.class,
			Instrument: p.instrument,
			Quantity:   p.quantity.Round(6),
			Value:      value.Round(2),
		})
	}
	return out
}

func (l *Ledger) quote(p *position) (decimal.Decimal, bool) {
	if l.prices == nil {
		return decimal.Zero, false
	}
	return l.prices.Quote(p.class, p.instrument)
}

func (l *Ledger) find(class model.AssetClass, instrument string) *position {
	for _, p := range l.positions {
		if p.class == class && p.instrument == instrument {
			return p
		}
	}
	return nil
}

func (l *Ledger) drop(target *position) {
	for i, p := range l.positions {
		if p == target {
			l.positions = append(l.positions[:i], l.positions[i+1:]...)
			return
		}
	}
}

// mustKnownClass guards against catalogue/configuration mismatches. An
// unrecognized class reaching the ledger is a programming error with no
// meaningful recovery.
func mustKnownClass(class model.AssetClass) {
	switch class {
	case model.AssetCash, model.AssetEquity, model.AssetBond, model.AssetProject:
	default:
		panic(fmt.Sprintf("ledger: unknown asset class %q", class))
	}
}
