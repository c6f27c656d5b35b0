// Package market implements the instrument backends the allocation router
// dispatches to: equities quoted from a catalogue, bonds repriced through a
// duration approximation, and fixed-duration project investments with a
// binary outcome at completion.
//
// All monetary values use shopspring/decimal — never float64 for money.
// Binary floating point appears only in payout sampling and is converted
// back to decimal immediately.
package market

import "errors"

// Sentinel errors returned by ExecuteAllocation. The router records them
// verbatim as failed-allocation reasons; callers match with errors.Is.
var (
	ErrUnknownInstrument    = errors.New("market: unknown instrument")
	ErrInsufficientCash     = errors.New("market: insufficient cash")
	ErrInsufficientHoldings = errors.New("market: insufficient holdings")
	ErrProjectFullyFunded   = errors.New("market: project fully funded")
)
