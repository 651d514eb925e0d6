package engine

import (
	"context"
	"errors"

	"github.com/b0ase/path402/pkg/acquisition"
	"github.com/b0ase/path402/pkg/budget"
	"github.com/b0ase/path402/pkg/discovery"
	"github.com/b0ase/path402/pkg/domain"
	"github.com/b0ase/path402/pkg/economics"
	"github.com/b0ase/path402/pkg/ledger"
	"github.com/b0ase/path402/pkg/observability"
	"github.com/b0ase/path402/pkg/pricing"
	"github.com/b0ase/path402/pkg/protocol"
	"github.com/b0ase/path402/pkg/serving"
	"github.com/b0ase/path402/pkg/wallet"
)

// Schedule is the price of an address at a list of supplies.
type Schedule struct {
	Address       string          `json:"dollarAddress"`
	Model         pricing.Model   `json:"pricing"`
	CurrentSupply int64           `json:"currentSupply"`
	CurrentPrice  int64           `json:"currentPrice"`
	Points        []pricing.Point `json:"schedule"`
}

// Audit is the verified journal of one wallet.
type Audit struct {
	AgentID string         `json:"agentId"`
	Length  int            `json:"length"`
	Head    string         `json:"head"`
	Valid   bool           `json:"valid"`
	Problem string         `json:"problem,omitempty"`
	Entries []ledger.Entry `json:"entries"`
}

// Discover returns the current terms of address.
func (e *Engine) Discover(ctx context.Context, address string) (terms *protocol.Terms, err error) {
	ctx, done := e.telemetry.TrackOperation(ctx, "path402.discover", observability.AttrAddress.String(address))
	defer func() { done(err) }()
	return e.orchestrator.Discover(ctx, address)
}

// BatchDiscover discovers several addresses at once, cheapest first.
func (e *Engine) BatchDiscover(ctx context.Context, addresses []string) (res *discovery.BatchResult, err error) {
	ctx, done := e.telemetry.TrackOperation(ctx, "path402.batch_discover")
	defer func() { done(err) }()
	return discovery.BatchDiscover(ctx, e.orchestrator, addresses)
}

// Evaluate advises agent on buying address. A zero ceiling means the agent's
// configured ceiling.
func (e *Engine) Evaluate(ctx context.Context, agent, address string, ceiling int64) (d *budget.Decision, err error) {
	agent = e.agentOrDefault(agent)
	ctx, done := e.telemetry.TrackOperation(ctx, "path402.evaluate", observability.AgentOperation(agent, address)...)
	defer func() { done(err) }()

	w, err := e.wallet(ctx, agent)
	if err != nil {
		return nil, err
	}
	terms, err := e.orchestrator.Discover(ctx, address)
	if err != nil {
		return nil, err
	}
	return e.evaluator.Evaluate(ctx, *terms, e.ceilingFor(agent, ceiling), w)
}

// Acquire buys address for agent when the evaluation allows it.
func (e *Engine) Acquire(ctx context.Context, agent, address string, ceiling int64) (res *acquisition.Result, err error) {
	agent = e.agentOrDefault(agent)
	ctx, done := e.telemetry.TrackOperation(ctx, "path402.acquire", observability.AgentOperation(agent, address)...)
	defer func() { done(err) }()

	w, err := e.wallet(ctx, agent)
	if err != nil {
		return nil, err
	}
	res, err = e.orchestrator.Acquire(ctx, w, address, e.ceilingFor(agent, ceiling))
	e.recordAcquisition(res, err)

	var derr *acquisition.DeliveryError
	if err == nil && !res.AlreadyOwned || errors.As(err, &derr) {
		e.persist(ctx, w)
	}
	return res, err
}

func (e *Engine) recordAcquisition(res *acquisition.Result, err error) {
	var derr *acquisition.DeliveryError
	switch {
	case err == nil && res.AlreadyOwned:
		e.metrics.RecordAcquisition(observability.OutcomeAlreadyOwned, 0)
	case err == nil:
		e.metrics.RecordAcquisition(observability.OutcomeAcquired, res.TotalCost)
	case errors.As(err, &derr):
		e.metrics.RecordAcquisition(observability.OutcomeDeliveryError, derr.Charged)
	case domain.KindOf(err) == domain.KindInsufficientFunds:
		e.metrics.RecordAcquisition(observability.OutcomeInsufficient, 0)
	case domain.KindOf(err) == domain.KindPriceExceedsCeiling:
		e.metrics.RecordAcquisition(observability.OutcomeSkipped, 0)
	default:
		e.metrics.RecordAcquisition(observability.OutcomeError, 0)
	}
}

// Redeliver returns content for a token agent already holds. It never debits.
func (e *Engine) Redeliver(ctx context.Context, agent, address string) (res *acquisition.Result, err error) {
	agent = e.agentOrDefault(agent)
	ctx, done := e.telemetry.TrackOperation(ctx, "path402.redeliver", observability.AgentOperation(agent, address)...)
	defer func() { done(err) }()

	w, err := e.wallet(ctx, agent)
	if err != nil {
		return nil, err
	}
	res, err = e.orchestrator.Redeliver(ctx, w, address)
	if err != nil {
		return nil, err
	}
	entry := map[string]any{
		"address":       res.Address,
		"tokenId":       res.Token.ID,
		"contentDigest": res.ContentDigest,
	}
	if _, jerr := e.book.Journal(agent).Append(ledger.EntryRedeliver, agent, entry); jerr != nil {
		e.logger.ErrorContext(ctx, "journal append failed", "agent_id", agent, "type", ledger.EntryRedeliver, "error", jerr)
	}
	return res, nil
}

// Wallet returns a snapshot of agent's wallet.
func (e *Engine) Wallet(ctx context.Context, agent string) (wallet.Snapshot, error) {
	w, err := e.wallet(ctx, e.agentOrDefault(agent))
	if err != nil {
		return wallet.Snapshot{}, err
	}
	return w.Snapshot(), nil
}

// Holds reports whether agent holds a token for address.
func (e *Engine) Holds(ctx context.Context, agent, address string) (bool, error) {
	w, err := e.wallet(ctx, e.agentOrDefault(agent))
	if err != nil {
		return false, err
	}
	return w.Holds(protocol.NormalizeAddress(address)), nil
}

// SetBudget resets agent's wallet to balance, discarding tokens and history.
func (e *Engine) SetBudget(ctx context.Context, agent string, balance int64) (wallet.Snapshot, error) {
	agent = e.agentOrDefault(agent)
	w, err := e.wallet(ctx, agent)
	if err != nil {
		return wallet.Snapshot{}, err
	}
	if err := w.Reset(balance); err != nil {
		return wallet.Snapshot{}, err
	}
	e.persist(ctx, w)
	return w.Snapshot(), nil
}

// Serve credits agent for serving address to requester.
func (e *Engine) Serve(ctx context.Context, agent, address, requester string) (res *serving.Result, err error) {
	agent = e.agentOrDefault(agent)
	ctx, done := e.telemetry.TrackOperation(ctx, "path402.serve", observability.AgentOperation(agent, address)...)
	defer func() { done(err) }()

	w, err := e.wallet(ctx, agent)
	if err != nil {
		return nil, err
	}
	res, err = e.distributor.Serve(ctx, w, address, requester)
	if err != nil {
		return nil, err
	}
	e.metrics.RecordServe(res.Event.Revenue)
	e.persist(ctx, w)
	return res, nil
}

// Servable lists the tokens agent may serve with their returns.
func (e *Engine) Servable(ctx context.Context, agent string) ([]serving.ServableToken, error) {
	w, err := e.wallet(ctx, e.agentOrDefault(agent))
	if err != nil {
		return nil, err
	}
	return serving.Servable(w), nil
}

// PriceSchedule prices address at points. With no points the default
// supplies up to the address's capacity are used.
func (e *Engine) PriceSchedule(ctx context.Context, address string, points []int64) (s *Schedule, err error) {
	ctx, done := e.telemetry.TrackOperation(ctx, "path402.price_schedule", observability.AttrAddress.String(address))
	defer func() { done(err) }()

	terms, err := e.orchestrator.Discover(ctx, address)
	if err != nil {
		return nil, err
	}
	if len(points) == 0 {
		points = defaultPoints(terms.Pricing.Capacity)
	}
	sched, err := pricing.Schedule(terms.Pricing, points)
	if err != nil {
		return nil, err
	}
	return &Schedule{
		Address:       terms.Address,
		Model:         terms.Pricing,
		CurrentSupply: terms.CurrentSupply,
		CurrentPrice:  terms.CurrentPrice,
		Points:        sched,
	}, nil
}

func defaultPoints(capacity *int64) []int64 {
	out := make([]int64, 0, len(DefaultSchedulePoints))
	for _, p := range DefaultSchedulePoints {
		if capacity != nil && p > *capacity {
			continue
		}
		out = append(out, p)
	}
	return out
}

// Economics reports the returns of buying address now. Zero projected
// supply or participation select the defaults.
func (e *Engine) Economics(ctx context.Context, address string, projectedSupply int64, participation float64) (r *economics.Report, err error) {
	ctx, done := e.telemetry.TrackOperation(ctx, "path402.economics", observability.AttrAddress.String(address))
	defer func() { done(err) }()

	if projectedSupply < 0 {
		return nil, invalid("engine.Economics", "projected supply %d is negative", projectedSupply)
	}
	if participation == 0 {
		participation = e.participation
	}
	terms, err := e.orchestrator.Discover(ctx, address)
	if err != nil {
		return nil, err
	}
	return economics.Analyze(*terms, projectedSupply, participation)
}

// Audit verifies and returns agent's journal.
func (e *Engine) Audit(ctx context.Context, agent string) (*Audit, error) {
	agent = e.agentOrDefault(agent)
	if _, err := e.wallet(ctx, agent); err != nil {
		return nil, err
	}
	j := e.book.Journal(agent)
	ok, problem := j.Verify()
	return &Audit{
		AgentID: agent,
		Length:  j.Length(),
		Head:    j.Head(),
		Valid:   ok,
		Problem: problem,
		Entries: j.Entries(),
	}, nil
}
