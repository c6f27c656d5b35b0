// Package policy provides the built-in decision policies used by the CLI
// and the dashboard runners. A policy inspects the latest observation and
// returns the next action, or nil to hold.
package policy

import (
	"errors"
	"fmt"
	"math/rand"

	"github.com/agenttycoon/sim-engine/internal/model"
)

// ErrUnknownPolicy is returned by New for an unrecognized policy name.
var ErrUnknownPolicy = errors.New("policy: unknown policy")

// Built-in policy names accepted by New.
const (
	NameNoop   = "noop"
	NameRandom = "random"
	NameHODL   = "hodl"
)

// Policy chooses the next action from an observation. Implementations may
// keep internal state across calls; they are not safe for concurrent use.
type Policy interface {
	Name() string
	Decide(obs model.Observation) *model.Action
}

// New returns the named built-in policy: "noop", "random", or "hodl".
// tickers is the equity catalogue in configuration order; rng drives the
// random policy and may be nil for the others.
func New(name string, tickers []string, rng *rand.Rand) (Policy, error) {
	switch name {
	case NameNoop:
		return NoopPolicy{}, nil
	case NameRandom:
		if rng == nil {
			return nil, fmt.Errorf("policy: random policy requires an rng")
		}
		return NewRandomPolicy(tickers, rng), nil
	case NameHODL:
		if len(tickers) == 0 {
			return nil, fmt.Errorf("policy: hodl policy requires at least one ticker")
		}
		return NewHODLBot(tickers[0]), nil
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownPolicy, name)
}

// NoopPolicy never acts. It is the do-nothing baseline for reward
// sanity checks.
type NoopPolicy struct{}

// Name implements Policy.
func (NoopPolicy) Name() string { return NameNoop }

// Decide implements Policy.
func (NoopPolicy) Decide(model.Observation) *model.Action { return nil }
