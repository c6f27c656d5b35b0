package market

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/agenttycoon/sim-engine/internal/ledger"
	"github.com/agenttycoon/sim-engine/internal/model"
)

// Bond prices stay within [10%, 200%] of face value under repricing.
var (
	bondPriceFloor = decimal.NewFromFloat(0.10)
	bondPriceCeil  = decimal.NewFromInt(2)
)

// Bond is one fixed-income instrument in the catalogue. Price and YTM are
// live values, updated whenever the base rate moves.
type Bond struct {
	BondID        string          `json:"bond_id"`
	Name          string          `json:"name"`
	FaceValue     decimal.Decimal `json:"face_value"`
	CouponRate    decimal.Decimal `json:"coupon_rate"`
	MaturityYears int             `json:"maturity_years"`
	Price         decimal.Decimal `json:"current_price"`
	YTM           decimal.Decimal `json:"ytm"`
}

// BondBackend quotes and executes bond allocations and reprices the
// catalogue when interest rates move.
type BondBackend struct {
	bonds    []*Bond
	byID     map[string]*Bond
	baseRate decimal.Decimal
}

// NewBondBackend creates a backend over the given catalogue. baseRate is
// the prevailing interest rate as a fraction (0.03 = 3%). Yields are
// computed immediately from the catalogue prices.
func NewBondBackend(bonds []Bond, baseRate decimal.Decimal) *BondBackend {
	b := &BondBackend{
		byID:     make(map[string]*Bond, len(bonds)),
		baseRate: baseRate,
	}
	for i := range bonds {
		bd := bonds[i]
		bd.YTM = computeYTM(&bd)
		b.bonds = append(b.bonds, &bd)
		b.byID[bd.BondID] = &bd
	}
	return b
}

// computeYTM approximates yield to maturity as coupon income plus the
// annualized pull to par:
//
//	ytm = (face×coupon + (face − price)/maturity) / price
//
// rounded to 4 decimal places. Zero when the price is not positive.
func computeYTM(b *Bond) decimal.Decimal {
	if !b.Price.IsPositive() {
		return decimal.Zero
	}
	annualCoupon := b.FaceValue.Mul(b.CouponRate)
	pullToPar := b.FaceValue.Sub(b.Price).Div(decimal.NewFromInt(int64(b.MaturityYears)))
	return annualCoupon.Add(pullToPar).Div(b.Price).Round(4)
}

// Price returns the current quote for bondID.
func (b *BondBackend) Price(bondID string) (decimal.Decimal, bool) {
	bd, ok := b.byID[bondID]
	if !ok {
		return decimal.Decimal{}, false
	}
	return bd.Price, true
}

// Bonds returns the live catalogue. Callers must not mutate the entries.
func (b *BondBackend) Bonds() []*Bond {
	return b.bonds
}

// BaseRate returns the prevailing interest rate as a fraction.
func (b *BondBackend) BaseRate() decimal.Decimal {
	return b.baseRate
}

// ExecuteAllocation applies a bond buy (positive USD) or sell (negative
// USD) to the ledger. Units are fractional and unquantized. A zero-USD
// allocation is a successful no-op.
func (b *BondBackend) ExecuteAllocation(a model.Allocation, led *ledger.Ledger) error {
	bd, ok := b.byID[a.Instrument]
	if !ok {
		return fmt.Errorf("%w: bond %q", ErrUnknownInstrument, a.Instrument)
	}

	switch {
	case a.USD.IsPositive():
		units := a.USD.Div(bd.Price)
		if !led.AddPosition(model.AssetBond, a.Instrument, units, a.USD) {
			return fmt.Errorf("%w: buy %s of %s", ErrInsufficientCash, a.USD.StringFixed(2), a.Instrument)
		}
	case a.USD.IsNegative():
		units := a.USD.Abs().Div(bd.Price)
		if _, ok := led.RemovePosition(model.AssetBond, a.Instrument, units); !ok {
			return fmt.Errorf("%w: sell %s units of %s", ErrInsufficientHoldings, units, a.Instrument)
		}
	}
	return nil
}

// UpdateInterestRates moves the base rate to ratePct, given as a
// percentage (3.5 means 3.5%), and reprices the catalogue. A nil ratePct
// means no rate data this tick and leaves everything unchanged.
func (b *BondBackend) UpdateInterestRates(ratePct *decimal.Decimal) {
	if ratePct == nil {
		return
	}
	newRate := ratePct.Div(decimal.NewFromInt(100))
	delta := newRate.Sub(b.baseRate)
	b.baseRate = newRate
	b.reprice(delta)
}

// ApplyRateShock moves the base rate by bps basis points (positive =
// hike, negative = cut) and reprices the catalogue.
func (b *BondBackend) ApplyRateShock(bps int) {
	delta := decimal.NewFromInt(int64(bps)).Div(decimal.NewFromInt(10000))
	b.baseRate = b.baseRate.Add(delta)
	b.reprice(delta)
}

// reprice moves every bond by a duration approximation:
//
//	price' = price × (1 − maturity_years × Δrate)
//
// clamped to [10%, 200%] of face value, rounded to cents, with YTM
// recomputed from the new price.
func (b *BondBackend) reprice(delta decimal.Decimal) {
	one := decimal.NewFromInt(1)
	for _, bd := range b.bonds {
		factor := one.Sub(decimal.NewFromInt(int64(bd.MaturityYears)).Mul(delta))
		price := bd.Price.Mul(factor)

		floor := bd.FaceValue.Mul(bondPriceFloor)
		ceil := bd.FaceValue.Mul(bondPriceCeil)
		if price.LessThan(floor) {
			price = floor
		} else if price.GreaterThan(ceil) {
			price = ceil
		}

		bd.Price = price.Round(2)
		bd.YTM = computeYTM(bd)
	}
}
