package engine

import (
	"github.com/shopspring/decimal"

	"github.com/agenttycoon/sim-engine/internal/model"
)

// DefaultShockWindowTicks is how many post-shock ticks a measurement
// window spans.
const DefaultShockWindowTicks = 5

// consistencyWeight is the score bonus per unit of outperformed fraction.
const consistencyWeight = 0.1

// shockWindow tracks agent and baseline NAV from a shock until the
// window completes.
type shockWindow struct {
	tick       int
	shockType  string
	agentStart decimal.Decimal
	baseStart  decimal.Decimal
	agentEnd   decimal.Decimal
	baseEnd    decimal.Decimal
	samples    int
	complete   bool
}

// AdaptabilityMeasurer scores how the agent recovers from shocks relative
// to the passive baseline. Each shock opens a window; the window absorbs
// the next few ticks of NAV pairs and then completes.
type AdaptabilityMeasurer struct {
	windowTicks int
	windows     []*shockWindow
}

// NewAdaptabilityMeasurer creates a measurer. A non-positive windowTicks
// selects DefaultShockWindowTicks.
func NewAdaptabilityMeasurer(windowTicks int) *AdaptabilityMeasurer {
	if windowTicks <= 0 {
		windowTicks = DefaultShockWindowTicks
	}
	return &AdaptabilityMeasurer{windowTicks: windowTicks}
}

// RecordShock opens a measurement window at the shocked tick.
func (m *AdaptabilityMeasurer) RecordShock(tick int, shockType string, agentNAV, baselineNAV decimal.Decimal) {
	m.windows = append(m.windows, &shockWindow{
		tick:       tick,
		shockType:  shockType,
		agentStart: agentNAV,
		baseStart:  baselineNAV,
	})
}

// Update feeds the per-tick NAV pair to every open window. A window
// absorbs ticks 1..windowTicks after its shock and then completes; the
// shocked tick itself contributes nothing.
func (m *AdaptabilityMeasurer) Update(tick int, agentNAV, baselineNAV decimal.Decimal) {
	for _, w := range m.windows {
		if w.complete {
			continue
		}
		offset := tick - w.tick
		if offset < 1 {
			continue
		}
		w.agentEnd = agentNAV
		w.baseEnd = baselineNAV
		w.samples++
		if offset >= m.windowTicks {
			w.complete = true
		}
	}
}

// ShockCount reports how many windows have been opened.
func (m *AdaptabilityMeasurer) ShockCount() int {
	return len(m.windows)
}

// Report scores the completed windows. Per window the relative
// performance is the agent's simple return minus the baseline's over the
// window span; the score adds a consistency bonus for the fraction of
// windows the agent won:
//
//	score = mean(agentReturn − baselineReturn) + 0.1 × outperformedFraction
//
// Returns are float64 statistics; the final NAV figures stay decimal.
func (m *AdaptabilityMeasurer) Report(finalAgentNAV, finalBaselineNAV decimal.Decimal) model.AdaptabilityReport {
	var completed, outperformed int
	var sumRelative float64

	for _, w := range m.windows {
		if !w.complete || w.samples == 0 {
			continue
		}
		if w.agentStart.IsZero() || w.baseStart.IsZero() {
			continue
		}
		agentReturn := w.agentEnd.Div(w.agentStart).InexactFloat64() - 1
		baseReturn := w.baseEnd.Div(w.baseStart).InexactFloat64() - 1
		relative := agentReturn - baseReturn

		completed++
		sumRelative += relative
		if relative > 0 {
			outperformed++
		}
	}

	report := model.AdaptabilityReport{
		ShockCount:          len(m.windows),
		OutperformedCount:   outperformed,
		FinalAgentNAV:       finalAgentNAV,
		FinalBaselineNAV:    finalBaselineNAV,
		TotalOutperformance: finalAgentNAV.Sub(finalBaselineNAV),
	}
	if completed > 0 {
		report.AvgRelativePerformance = sumRelative / float64(completed)
		report.ConsistencyRatio = float64(outperformed) / float64(completed)
		report.Score = report.AvgRelativePerformance + consistencyWeight*report.ConsistencyRatio
	}
	if !finalBaselineNAV.IsZero() {
		report.TotalOutperformancePct = report.TotalOutperformance.Div(finalBaselineNAV).InexactFloat64() * 100
	}
	return report
}
