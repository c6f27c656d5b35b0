package market

import (
	"github.com/shopspring/decimal"

	"github.com/agenttycoon/sim-engine/internal/model"
)

// Quotes aggregates the equity and bond catalogues into a single price
// source for ledger valuation. PROJECT and CASH never quote, so project
// positions fall back to cost-basis handling in the ledger.
type Quotes struct {
	equity *EquityBackend
	bond   *BondBackend
}

// NewQuotes creates a price source over the given backends. Either may be
// nil, in which case its asset class never quotes.
func NewQuotes(equity *EquityBackend, bond *BondBackend) *Quotes {
	return &Quotes{equity: equity, bond: bond}
}

// Quote returns the live price for an instrument, if its class quotes.
func (q *Quotes) Quote(class model.AssetClass, instrument string) (decimal.Decimal, bool) {
	switch class {
	case model.AssetEquity:
		if q.equity != nil {
			return q.equity.Price(instrument)
		}
	case model.AssetBond:
		if q.bond != nil {
			return q.bond.Price(instrument)
		}
	}
	return decimal.Decimal{}, false
}
