package market

import (
	"fmt"
	"math"
	"math/rand"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/agenttycoon/sim-engine/internal/ledger"
	"github.com/agenttycoon/sim-engine/internal/model"
)

// Payout sampling parameters. A successful project pays a lognormal
// multiple of the invested amount; a failed one salvages a uniform
// fraction of it.
const (
	payoutSigma = 0.2
	salvageMin  = 0.10
	salvageMax  = 0.30
)

// Each funding commitment books 1.0 abstract units of the project, so a
// position's quantity counts its outstanding commitments.
var oneUnit = decimal.NewFromInt(1)

// Project is a fixed-duration investment opportunity with a capped
// funding pool and a binary outcome at completion.
type Project struct {
	ProjectID          string          `json:"project_id"`
	Name               string          `json:"name"`
	RequiredInvestment decimal.Decimal `json:"required_investment"`
	RemainingFunding   decimal.Decimal `json:"remaining_funding"`
	ExpectedReturnPct  decimal.Decimal `json:"expected_return_pct"`
	RiskLevel          string          `json:"risk_level"`
	WeeksToCompletion  int             `json:"weeks_to_completion"`
	SuccessProbability float64         `json:"success_probability"`
}

// Investment is one outstanding capital commitment to a project. Every
// commitment keeps its own countdown; commitments are never merged, so
// two investments in the same project pay out independently.
type Investment struct {
	RecordID       string          `json:"record_id"`
	ProjectID      string          `json:"project_id"`
	Amount         decimal.Decimal `json:"amount"`
	WeeksRemaining int             `json:"weeks_remaining"`
}

// ProjectBackend tracks project funding and outstanding commitments, and
// settles completed projects against the ledger.
type ProjectBackend struct {
	projects    []*Project
	byID        map[string]*Project
	investments []*Investment
	rng         *rand.Rand
}

// NewProjectBackend creates a backend over the given project catalogue.
// rng drives payout sampling; pass a seeded source for reproducible runs.
func NewProjectBackend(projects []Project, rng *rand.Rand) *ProjectBackend {
	p := &ProjectBackend{
		byID: make(map[string]*Project, len(projects)),
		rng:  rng,
	}
	for i := range projects {
		pr := projects[i]
		if pr.RemainingFunding.IsZero() {
			pr.RemainingFunding = pr.RequiredInvestment
		}
		p.projects = append(p.projects, &pr)
		p.byID[pr.ProjectID] = &pr
	}
	return p
}

// AvailableProjects lists projects that can still absorb capital, in
// catalogue order. RequiredInvestment reports the remaining funding gap.
func (p *ProjectBackend) AvailableProjects() []model.ProjectInfo {
	var out []model.ProjectInfo
	for _, pr := range p.projects {
		if !pr.RemainingFunding.IsPositive() {
			continue
		}
		out = append(out, model.ProjectInfo{
			ProjectID:          pr.ProjectID,
			Name:               pr.Name,
			RequiredInvestment: pr.RemainingFunding,
			ExpectedReturnPct:  pr.ExpectedReturnPct,
			RiskLevel:          pr.RiskLevel,
			WeeksToCompletion:  pr.WeeksToCompletion,
		})
	}
	return out
}

// Projects returns the live catalogue. Callers must not mutate the entries.
func (p *ProjectBackend) Projects() []*Project {
	return p.projects
}

// Investments returns a snapshot of the outstanding commitments.
func (p *ProjectBackend) Investments() []Investment {
	out := make([]Investment, 0, len(p.investments))
	for _, inv := range p.investments {
		out = append(out, *inv)
	}
	return out
}

// ExecuteAllocation commits capital to a project. The amount is capped at
// the project's remaining funding gap; the capped amount is what is
// deducted from cash. Each commitment books 1.0 units against the ledger
// and opens its own completion countdown. A zero-USD allocation is a
// successful no-op.
func (p *ProjectBackend) ExecuteAllocation(a model.Allocation, led *ledger.Ledger) error {
	pr, ok := p.byID[a.Instrument]
	if !ok {
		return fmt.Errorf("%w: project %q", ErrUnknownInstrument, a.Instrument)
	}
	if a.USD.IsZero() {
		return nil
	}
	if !pr.RemainingFunding.IsPositive() {
		return fmt.Errorf("%w: %s", ErrProjectFullyFunded, pr.ProjectID)
	}

	amount := decimal.Min(a.USD, pr.RemainingFunding)
	if !led.AddPosition(model.AssetProject, pr.ProjectID, oneUnit, amount) {
		return fmt.Errorf("%w: invest %s in %s", ErrInsufficientCash, amount.StringFixed(2), pr.ProjectID)
	}

	pr.RemainingFunding = pr.RemainingFunding.Sub(amount)
	p.investments = append(p.investments, &Investment{
		RecordID:       uuid.New().String(),
		ProjectID:      pr.ProjectID,
		Amount:         amount,
		WeeksRemaining: pr.WeeksToCompletion,
	})
	return nil
}

// Tick advances every outstanding commitment by one week and settles the
// ones that complete. Settlement redeems exactly the record's invested
// amount from the position and credits exactly the sampled payout, so the
// cash delta of a completion equals its payout. Returns one news line per
// completion, in commitment order.
func (p *ProjectBackend) Tick(led *ledger.Ledger) []string {
	var news []string
	remaining := p.investments[:0]
	for _, inv := range p.investments {
		inv.WeeksRemaining--
		if inv.WeeksRemaining > 0 {
			remaining = append(remaining, inv)
			continue
		}

		pr := p.byID[inv.ProjectID]
		payout, succeeded := p.samplePayout(pr, inv.Amount)
		// Settlement redeems against the caller's ledger. A record
		// orphaned by a ledger swap settles without a cash credit.
		led.Redeem(model.AssetProject, pr.ProjectID, oneUnit, inv.Amount, payout)

		if succeeded {
			news = append(news, fmt.Sprintf("Project %s succeeded! Payout: $%s", pr.Name, payout.StringFixed(2)))
		} else {
			news = append(news, fmt.Sprintf("Project %s failed. Salvage: $%s", pr.Name, payout.StringFixed(2)))
		}
	}
	p.investments = remaining
	return news
}

// samplePayout draws the settlement value for one completed commitment.
// Success (probability success_probability) pays a lognormal multiple of
// the invested amount with mean ln(1+expected_return) and sigma 0.2;
// failure salvages a uniform fraction in [0.10, 0.30]. Rounded to cents.
func (p *ProjectBackend) samplePayout(pr *Project, invested decimal.Decimal) (decimal.Decimal, bool) {
	if p.rng.Float64() < pr.SuccessProbability {
		mean := math.Log(oneUnit.Add(pr.ExpectedReturnPct).InexactFloat64())
		multiplier := math.Exp(mean + payoutSigma*p.rng.NormFloat64())
		return invested.Mul(decimal.NewFromFloat(multiplier)).Round(2), true
	}
	fraction := salvageMin + p.rng.Float64()*(salvageMax-salvageMin)
	return invested.Mul(decimal.NewFromFloat(fraction)).Round(2), false
}
