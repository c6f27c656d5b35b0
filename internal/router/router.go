// Package router dispatches allocation batches to the instrument
// backends that own each asset class.
package router

import (
	"fmt"

	"github.com/agenttycoon/sim-engine/internal/ledger"
	"github.com/agenttycoon/sim-engine/internal/model"
)

// Executor executes a single allocation against the ledger. The three
// market backends implement it.
type Executor interface {
	ExecuteAllocation(a model.Allocation, led *ledger.Ledger) error
}

// Router partitions an action's allocations by asset class and routes
// each partition to its backend. Wiring is one-directional: backends
// never reference the router.
type Router struct {
	ledger  *ledger.Ledger
	equity  Executor
	bond    Executor
	project Executor
}

// New creates a router over the ledger and the three class backends.
func New(led *ledger.Ledger, equity, bond, project Executor) *Router {
	return &Router{ledger: led, equity: equity, bond: bond, project: project}
}

// ExecuteAction runs every allocation in the batch and reports the ones
// that failed. Invalid allocations are rejected before reaching any
// backend. Valid partitions run equity first, then projects, then bonds;
// cash allocations are accepted and deliberately not executed. A failed
// allocation never aborts the rest of the batch; there is no netting and
// no rollback, so partial success is normal and visible only through the
// returned list.
func (r *Router) ExecuteAction(action model.Action) []model.FailedAllocation {
	var failed []model.FailedAllocation

	valid := make([]model.Allocation, 0, len(action.Allocations))
	for _, a := range action.Allocations {
		if err := a.Validate(); err != nil {
			failed = append(failed, model.FailedAllocation{Allocation: a, Reason: err.Error()})
			continue
		}
		valid = append(valid, a)
	}

	route := func(class model.AssetClass, ex Executor) {
		for _, a := range valid {
			if a.Class != class {
				continue
			}
			if err := r.execute(a, ex); err != nil {
				failed = append(failed, model.FailedAllocation{Allocation: a, Reason: err.Error()})
			}
		}
	}

	route(model.AssetEquity, r.equity)
	route(model.AssetProject, r.project)
	route(model.AssetBond, r.bond)

	return failed
}

// execute runs one allocation, converting a backend panic into an error
// so a single item can never abort its siblings.
func (r *Router) execute(a model.Allocation, ex Executor) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("router: %s allocation for %q panicked: %v", a.Class, a.Instrument, rec)
		}
	}()
	return ex.ExecuteAllocation(a, r.ledger)
}
