package policy

import (
	"github.com/shopspring/decimal"

	"github.com/agenttycoon/sim-engine/internal/model"
)

// HODL bot behavior knobs.
var (
	hodlBuyThreshold = decimal.NewFromInt(10000)
	hodlBuyFraction  = decimal.NewFromFloat(0.20)
	hodlCognition    = decimal.NewFromFloat(0.50)
)

// HODLBot is the passive buy-and-hold baseline. On the first tick it puts
// 20% of its cash into one ticker, then holds. The first market shock it
// observes freezes the strategy permanently.
type HODLBot struct {
	ticker string
	frozen bool
}

// NewHODLBot creates a bot that buys the given ticker.
func NewHODLBot(ticker string) *HODLBot {
	return &HODLBot{ticker: ticker}
}

// Name implements Policy.
func (b *HODLBot) Name() string { return NameHODL }

// Frozen reports whether a shock has permanently frozen the strategy.
func (b *HODLBot) Frozen() bool { return b.frozen }

// Decide implements Policy. Shock news is checked before anything else,
// so a shock on the very first tick freezes the bot before it ever buys.
func (b *HODLBot) Decide(obs model.Observation) *model.Action {
	if b.frozen {
		return nil
	}
	for _, n := range obs.News {
		if n.Type == model.NewsRateShock || n.Type == model.NewsMarketVolatility {
			b.frozen = true
			return nil
		}
	}

	if obs.Tick == 1 && obs.Cash.GreaterThan(hodlBuyThreshold) {
		amount := obs.Cash.Mul(hodlBuyFraction).Round(2)
		alloc, err := model.NewEquityAlloc(b.ticker, amount)
		if err != nil {
			return nil
		}
		return &model.Action{
			Comment:       "buy and hold " + b.ticker,
			Allocations:   []model.Allocation{alloc},
			CognitionCost: hodlCognition,
		}
	}
	return nil
}
