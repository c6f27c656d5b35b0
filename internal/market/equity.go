package market

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/agenttycoon/sim-engine/internal/ledger"
	"github.com/agenttycoon/sim-engine/internal/model"
)

// EquityBackend quotes and executes stock allocations against a fixed
// ticker catalogue. Prices move only through UpdatePrices.
type EquityBackend struct {
	prices map[string]decimal.Decimal
}

// NewEquityBackend creates a backend over the given ticker catalogue.
func NewEquityBackend(prices map[string]decimal.Decimal) *EquityBackend {
	cp := make(map[string]decimal.Decimal, len(prices))
	for ticker, price := range prices {
		cp[ticker] = price
	}
	return &EquityBackend{prices: cp}
}

// Price returns the current quote for ticker.
func (e *EquityBackend) Price(ticker string) (decimal.Decimal, bool) {
	price, ok := e.prices[ticker]
	return price, ok
}

// Prices returns a copy of the full catalogue.
func (e *EquityBackend) Prices() map[string]decimal.Decimal {
	cp := make(map[string]decimal.Decimal, len(e.prices))
	for ticker, price := range e.prices {
		cp[ticker] = price
	}
	return cp
}

// UpdatePrices overwrites quotes for known tickers. Unknown tickers are
// ignored; the catalogue never grows after construction.
func (e *EquityBackend) UpdatePrices(changes map[string]decimal.Decimal) {
	for ticker, price := range changes {
		if _, ok := e.prices[ticker]; ok {
			e.prices[ticker] = price
		}
	}
}

// ExecuteAllocation applies an equity buy (positive USD) or sell (negative
// USD) to the ledger. Share quantities are rounded to 6 decimal places.
// A zero-USD allocation is a successful no-op.
func (e *EquityBackend) ExecuteAllocation(a model.Allocation, led *ledger.Ledger) error {
	price, ok := e.prices[a.Instrument]
	if !ok {
		return fmt.Errorf("%w: equity %q", ErrUnknownInstrument, a.Instrument)
	}

	switch {
	case a.USD.IsPositive():
		shares := a.USD.Div(price).Round(6)
		if !led.AddPosition(model.AssetEquity, a.Instrument, shares, a.USD) {
			return fmt.Errorf("%w: buy %s of %s", ErrInsufficientCash, a.USD.StringFixed(2), a.Instrument)
		}
	case a.USD.IsNegative():
		shares := a.USD.Abs().Div(price).Round(6)
		if _, ok := led.RemovePosition(model.AssetEquity, a.Instrument, shares); !ok {
			return fmt.Errorf("%w: sell %s shares of %s", ErrInsufficientHoldings, shares, a.Instrument)
		}
	}
	return nil
}
