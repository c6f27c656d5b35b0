// Package events defines the simulation event stream: typed, timestamped
// records published once per notable state change. The engine publishes
// through a Sink and runs correctly with a NopSink; collection, fan-out,
// and delivery are strictly observers.
package events

import "time"

// Stable event type tags. External consumers key off these strings, so
// they never change meaning.
const (
	TypeSimulationStart  = "simulation_start"
	TypeSimulationTick   = "simulation_tick"
	TypeAgentDecision    = "agent_decision"
	TypeTradeExecuted    = "trade_executed"
	TypeProjectCompleted = "project_completed"
	TypeMarketShock      = "market_shock"
	TypePortfolioUpdate  = "portfolio_update"
	TypeRewardCalculated = "reward_calculated"
	TypeHODLComparison   = "hodl_comparison"
)

// Event is one simulation occurrence. Data carries type-specific fields
// and is never mutated after publication.
type Event struct {
	Type      string         `json:"type"`
	Timestamp time.Time      `json:"timestamp"`
	Tick      int            `json:"tick"`
	Data      map[string]any `json:"data"`
}

// New creates an event stamped with the current UTC time.
func New(eventType string, tick int, data map[string]any) Event {
	return Event{
		Type:      eventType,
		Timestamp: time.Now().UTC(),
		Tick:      tick,
		Data:      data,
	}
}

// Sink receives published events. Publish must not block the simulation;
// implementations that deliver elsewhere buffer or drop.
type Sink interface {
	Publish(e Event)
}

// NopSink discards every event.
type NopSink struct{}

// Publish implements Sink.
func (NopSink) Publish(Event) {}

// MultiSink fans every event out to each sink in order.
type MultiSink []Sink

// Publish implements Sink.
func (m MultiSink) Publish(e Event) {
	for _, s := range m {
		s.Publish(e)
	}
}
