package budget

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/b0ase/path402/pkg/domain"
	"github.com/b0ase/path402/pkg/economics"
	"github.com/b0ase/path402/pkg/policy"
	"github.com/b0ase/path402/pkg/protocol"
)

// Evaluator turns terms, a ceiling and a wallet into a Decision.
type Evaluator struct {
	// Guard is an optional acquisition rule checked after the ceiling.
	Guard policy.Guard
	// Participation feeds the expected-ROI projection.
	Participation float64

	clock func() time.Time
}

// NewEvaluator creates an evaluator with an optional guard.
func NewEvaluator(guard policy.Guard) *Evaluator {
	return &Evaluator{
		Guard:         guard,
		Participation: economics.DefaultParticipation,
		clock:         time.Now,
	}
}

// WithClock overrides the receipt clock for testing.
func (e *Evaluator) WithClock(clock func() time.Time) *Evaluator {
	e.clock = clock
	return e
}

// Evaluate recommends what to do with t. Ownership is checked first, then
// affordability, then the ceiling, then the guard.
func (e *Evaluator) Evaluate(ctx context.Context, t protocol.Terms, ceiling int64, acct Account) (*Decision, error) {
	const op = "budget.Evaluate"
	if err := t.Validate(); err != nil {
		return nil, err
	}
	if ceiling < 0 {
		return nil, domain.Errorf(domain.KindInvalidParameter, op, "ceiling %d is negative", ceiling).WithAddress(t.Address)
	}

	balance := acct.Balance()
	d := &Decision{
		Address:         t.Address,
		CurrentPrice:    t.CurrentPrice,
		BudgetRemaining: balance - t.CurrentPrice,
	}

	var reason string
	switch {
	case acct.Holds(t.Address):
		d.Recommendation = AlreadyOwned
		d.Reasoning = fmt.Sprintf("A token for %s is already held; buying again would add nothing.", t.Address)
		reason = "already_owned"

	case t.CurrentPrice > balance:
		d.Recommendation = InsufficientFunds
		d.Reasoning = fmt.Sprintf("Price %d sats exceeds the wallet balance of %d sats.", t.CurrentPrice, balance)
		reason = "insufficient_funds"

	case t.CurrentPrice > ceiling:
		d.Recommendation = Skip
		d.Reasoning = fmt.Sprintf("Price %d sats exceeds the ceiling of %d sats. Price rises as supply grows, so waiting will not make it cheaper.",
			t.CurrentPrice, ceiling)
		reason = "over_ceiling"

	default:
		d.Recommendation, d.Reasoning, reason = e.guarded(ctx, acct.ID(), t, ceiling, balance)
		if d.Recommendation == Acquire {
			d.ExpectedROI = e.expectedROI(t)
		}
	}

	d.Receipt = &Receipt{
		ID:             uuid.New().String(),
		AgentID:        acct.ID(),
		Address:        t.Address,
		Recommendation: d.Recommendation,
		Price:          t.CurrentPrice,
		Ceiling:        ceiling,
		Balance:        balance,
		Reason:         reason,
		Timestamp:      e.clock().UTC(),
	}
	return d, nil
}

// guarded applies the optional policy rule. A rule that cannot be evaluated
// blocks the acquisition.
func (e *Evaluator) guarded(ctx context.Context, agentID string, t protocol.Terms, ceiling, balance int64) (Recommendation, string, string) {
	if e.Guard != nil {
		ok, err := e.Guard.Permit(ctx, policy.Input{
			AgentID:     agentID,
			Address:     t.Address,
			Price:       t.CurrentPrice,
			Supply:      t.CurrentSupply,
			Balance:     balance,
			Ceiling:     ceiling,
			IssuerShare: t.Revenue.IssuerShare,
		})
		if err != nil {
			slog.WarnContext(ctx, "policy evaluation failed", "component", "budget", "agent_id", agentID, "address", t.Address, "error", err)
			return Skip, fmt.Sprintf("Acquisition policy could not be evaluated: %v", err), "policy_error"
		}
		if !ok {
			return Skip, "Acquisition policy rejected this purchase.", "policy_rejected"
		}
	}
	return Acquire, fmt.Sprintf("Price %d sats is within the ceiling of %d sats; %d sats remain after purchase.",
		t.CurrentPrice, ceiling, balance-t.CurrentPrice), "ok"
}

// expectedROI projects to 10x current supply, or DefaultProjectedSupply if larger.
func (e *Evaluator) expectedROI(t protocol.Terms) *float64 {
	projected := t.CurrentSupply * 10
	if projected < economics.DefaultProjectedSupply {
		projected = economics.DefaultProjectedSupply
	}
	participation := e.Participation
	if participation == 0 {
		participation = economics.DefaultParticipation
	}
	a := economics.Analyzer{
		Pricing:       t.Pricing,
		Revenue:       t.Revenue,
		BuyerPosition: t.CurrentSupply + 1,
		Participation: participation,
	}
	roi, err := a.ROI(t.CurrentPrice, projected)
	if err != nil {
		return nil
	}
	return &roi
}
