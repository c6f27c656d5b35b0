package ledger

import (
	"testing"

	"github.com/shopspring/decimal"

	"github.com/agenttycoon/sim-engine/internal/model"
)

// d is a test helper for creating decimals from float64.
func d(f float64) decimal.Decimal {
	return decimal.NewFromFloat(f)
}

// stubPrices resolves quotes from a fixed map keyed by instrument id.
type stubPrices struct {
	quotes map[string]decimal.Decimal
}

func (s stubPrices) Quote(_ model.AssetClass, instrument string) (decimal.Decimal, bool) {
	q, ok := s.quotes[instrument]
	return q, ok
}

func marketPrices() stubPrices {
	return stubPrices{quotes: map[string]decimal.Decimal{
		"AAPL":     d(150),
		"GOOGL":    d(2500),
		"BOND-001": d(980),
	}}
}

// --- Construction ---

func TestNew_InitialState(t *testing.T) {
	l := New(d(100000), nil, nil)
	if !l.Cash().Equal(d(100000)) {
		t.Errorf("expected cash 100000, got %s", l.Cash())
	}
	if !l.NAV().Equal(d(100000)) {
		t.Errorf("NAV of a fresh ledger should equal cash, got %s", l.NAV())
	}
	if len(l.Holdings()) != 0 {
		t.Errorf("expected no holdings, got %d", len(l.Holdings()))
	}
}

// --- AddPosition ---

func TestAddPosition_Success(t *testing.T) {
	l := New(d(100000), marketPrices(), nil)
	if !l.AddPosition(model.AssetEquity, "AAPL", d(10), d(1500)) {
		t.Fatal("expected add to succeed")
	}
	if !l.Cash().Equal(d(98500)) {
		t.Errorf("expected cash 98500, got %s", l.Cash())
	}
	h := l.Holdings()
	if len(h) != 1 {
		t.Fatalf("expected 1 holding, got %d", len(h))
	}
	if !h[0].Quantity.Equal(d(10)) {
		t.Errorf("expected quantity 10, got %s", h[0].Quantity)
	}
}

func TestAddPosition_InsufficientCash(t *testing.T) {
	l := New(d(1000), nil, nil)
	if l.AddPosition(model.AssetEquity, "AAPL", d(10), d(1500)) {
		t.Fatal("expected add to fail")
	}
	if !l.Cash().Equal(d(1000)) {
		t.Errorf("failed add must not touch cash, got %s", l.Cash())
	}
	if len(l.Holdings()) != 0 {
		t.Error("failed add must not create a position")
	}
}

func TestAddPosition_MergesSameInstrument(t *testing.T) {
	l := New(d(100000), nil, nil)
	l.AddPosition(model.AssetEquity, "AAPL", d(10), d(1500))
	l.AddPosition(model.AssetEquity, "AAPL", d(5), d(800))

	h := l.Holdings()
	if len(h) != 1 {
		t.Fatalf("expected one consolidated position, got %d", len(h))
	}
	if !h[0].Quantity.Equal(d(15)) {
		t.Errorf("expected merged quantity 15, got %s", h[0].Quantity)
	}
	// No price source: value falls back to the summed cost basis.
	if !h[0].Value.Equal(d(2300)) {
		t.Errorf("expected merged cost basis 2300, got %s", h[0].Value)
	}
}

func TestAddPosition_MergeOrderDoesNotMatter(t *testing.T) {
	a := New(d(100000), nil, nil)
	a.AddPosition(model.AssetEquity, "AAPL", d(10), d(1500))
	a.AddPosition(model.AssetEquity, "AAPL", d(5), d(800))

	b := New(d(100000), nil, nil)
	b.AddPosition(model.AssetEquity, "AAPL", d(5), d(800))
	b.AddPosition(model.AssetEquity, "AAPL", d(10), d(1500))

	ha, hb := a.Holdings()[0], b.Holdings()[0]
	if !ha.Quantity.Equal(hb.Quantity) || !ha.Value.Equal(hb.Value) {
		t.Errorf("merge should commute: %+v vs %+v", ha, hb)
	}
	if !a.Cash().Equal(b.Cash()) {
		t.Errorf("cash should match: %s vs %s", a.Cash(), b.Cash())
	}
}

func TestAddPosition_UnknownClassPanics(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatal("expected panic for unrecognized asset class")
		}
	}()
	l := New(d(1000), nil, nil)
	l.AddPosition("FUTURES", "ES", d(1), d(10))
}

// --- RemovePosition ---

func TestRemovePosition_AtMarketPrice(t *testing.T) {
	l := New(d(100000), marketPrices(), nil)
	l.AddPosition(model.AssetEquity, "AAPL", d(10), d(1000)) // cost basis 100/share

	proceeds, ok := l.RemovePosition(model.AssetEquity, "AAPL", d(4))
	if !ok {
		t.Fatal("expected sale to succeed")
	}
	// Proceeds at the 150 market price, not the 100 cost basis.
	if !proceeds.Equal(d(600)) {
		t.Errorf("expected proceeds 600, got %s", proceeds)
	}
	if !l.Cash().Equal(d(99600)) {
		t.Errorf("expected cash 99600, got %s", l.Cash())
	}
	// Remainder keeps its average cost: 6 shares at 100 = 600 basis.
	h := l.Holdings()[0]
	if !h.Quantity.Equal(d(6)) {
		t.Errorf("expected 6 shares left, got %s", h.Quantity)
	}
}

func TestRemovePosition_CostBasisFallback(t *testing.T) {
	l := New(d(100000), nil, nil)
	l.AddPosition(model.AssetProject, "P-001", d(2), d(50000))

	proceeds, ok := l.RemovePosition(model.AssetProject, "P-001", d(1))
	if !ok {
		t.Fatal("expected removal to succeed")
	}
	if !proceeds.Equal(d(25000)) {
		t.Errorf("expected average-cost proceeds 25000, got %s", proceeds)
	}
}

func TestRemovePosition_InsufficientQuantity(t *testing.T) {
	l := New(d(100000), marketPrices(), nil)
	l.AddPosition(model.AssetEquity, "AAPL", d(5), d(750))

	cashBefore := l.Cash()
	if _, ok := l.RemovePosition(model.AssetEquity, "AAPL", d(10)); ok {
		t.Fatal("expected oversell to fail")
	}
	if !l.Cash().Equal(cashBefore) {
		t.Error("failed removal must not touch cash")
	}
	if !l.Holdings()[0].Quantity.Equal(d(5)) {
		t.Error("failed removal must not touch the position")
	}
}

func TestRemovePosition_MissingPosition(t *testing.T) {
	l := New(d(100000), marketPrices(), nil)
	if _, ok := l.RemovePosition(model.AssetEquity, "TSLA", d(1)); ok {
		t.Fatal("expected removal of unheld position to fail")
	}
}

func TestRemovePosition_DropsDust(t *testing.T) {
	l := New(d(100000), marketPrices(), nil)
	l.AddPosition(model.AssetEquity, "AAPL", d(10), d(1500))
	l.RemovePosition(model.AssetEquity, "AAPL", d(10))

	if len(l.Holdings()) != 0 {
		t.Errorf("fully sold position should be deleted, got %d holdings", len(l.Holdings()))
	}
}

// --- Conservation and round trips ---

func TestRoundTrip_RestoresCash(t *testing.T) {
	l := New(d(100000), marketPrices(), nil)
	l.AddPosition(model.AssetEquity, "AAPL", d(10), d(1500))
	l.RemovePosition(model.AssetEquity, "AAPL", d(10))

	if !l.Cash().Equal(d(100000)) {
		t.Errorf("buy then sell at unchanged price should restore cash, got %s", l.Cash())
	}
}

func TestConservation_BuySellSequence(t *testing.T) {
	l := New(d(100000), marketPrices(), nil)

	// Buys: -1500, -2000. Sell 4 AAPL at 150: +600.
	l.AddPosition(model.AssetEquity, "AAPL", d(10), d(1500))
	l.AddPosition(model.AssetEquity, "GOOGL", d(0.8), d(2000))
	l.RemovePosition(model.AssetEquity, "AAPL", d(4))

	want := d(100000).Sub(d(1500)).Sub(d(2000)).Add(d(600))
	if !l.Cash().Equal(want) {
		t.Errorf("expected cash %s, got %s", want, l.Cash())
	}
}

// --- Valuation ---

func TestNAV_WithMarketPrices(t *testing.T) {
	l := New(d(100000), marketPrices(), nil)
	l.AddPosition(model.AssetEquity, "AAPL", d(10), d(1000))

	// 99000 cash + 10 * 150 market.
	if !l.NAV().Equal(d(100500)) {
		t.Errorf("expected NAV 100500, got %s", l.NAV())
	}
}

func TestNAV_ExcludesUnpricedPositions(t *testing.T) {
	l := New(d(100000), marketPrices(), nil)
	l.AddPosition(model.AssetEquity, "AAPL", d(10), d(1500))
	l.AddPosition(model.AssetProject, "P-001", d(1), d(25000))

	// 73500 cash + 1500 equity; the project carries no quote and is excluded.
	if !l.NAV().Equal(d(75000)) {
		t.Errorf("expected NAV 75000, got %s", l.NAV())
	}
}

func TestHoldings_MarketAndCostValues(t *testing.T) {
	l := New(d(100000), marketPrices(), nil)
	l.AddPosition(model.AssetEquity, "AAPL", d(10), d(1000))
	l.AddPosition(model.AssetProject, "P-001", d(1), d(25000))

	h := l.Holdings()
	if len(h) != 2 {
		t.Fatalf("expected 2 holdings, got %d", len(h))
	}
	if !h[0].Value.Equal(d(1500)) {
		t.Errorf("equity valued at market: expected 1500, got %s", h[0].Value)
	}
	if !h[1].Value.Equal(d(25000)) {
		t.Errorf("project valued at cost: expected 25000, got %s", h[1].Value)
	}
}

// --- Redeem ---

func TestRedeem_ExactBasisAndProceeds(t *testing.T) {
	l := New(d(100000), nil, nil)
	l.AddPosition(model.AssetProject, "P-001", d(1), d(25000))
	cashBefore := l.Cash()

	if !l.Redeem(model.AssetProject, "P-001", d(1), d(25000), d(31250.50)) {
		t.Fatal("expected redeem to succeed")
	}
	if got := l.Cash().Sub(cashBefore); !got.Equal(d(31250.50)) {
		t.Errorf("cash delta must equal proceeds exactly, got %s", got)
	}
	if len(l.Holdings()) != 0 {
		t.Error("redeemed position should be deleted")
	}
}

func TestRedeem_OutOfOrderCompletions(t *testing.T) {
	l := New(d(100000), nil, nil)
	l.AddPosition(model.AssetProject, "P-001", d(1), d(25000))
	l.AddPosition(model.AssetProject, "P-001", d(1), d(10000))

	// The second, smaller commitment completes first.
	if !l.Redeem(model.AssetProject, "P-001", d(1), d(10000), d(3000)) {
		t.Fatal("first redeem failed")
	}
	h := l.Holdings()
	if len(h) != 1 || !h[0].Quantity.Equal(d(1)) {
		t.Fatalf("expected one unit outstanding, got %+v", h)
	}
	if !h[0].Value.Equal(d(25000)) {
		t.Errorf("remaining basis should be the 25000 commitment, got %s", h[0].Value)
	}

	if !l.Redeem(model.AssetProject, "P-001", d(1), d(25000), d(40000)) {
		t.Fatal("second redeem failed")
	}
	if len(l.Holdings()) != 0 {
		t.Error("all units redeemed, position should be gone")
	}
}

func TestRedeem_MissingPosition(t *testing.T) {
	l := New(d(100000), nil, nil)
	if l.Redeem(model.AssetProject, "P-404", d(1), d(100), d(50)) {
		t.Fatal("expected redeem of unheld position to fail")
	}
	if !l.Cash().Equal(d(100000)) {
		t.Error("failed redeem must not touch cash")
	}
}
