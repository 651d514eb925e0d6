// Package acquisition runs the discover, evaluate, pay, deliver pipeline for
// one agent and one $address.
//
// The only funds-moving step is wallet.RecordAcquisition. It happens after
// every network read that can change the decision and before the one network
// call that can fail after payment, the content fetch. A failed fetch leaves
// the token held and returns a DeliveryError.
package acquisition

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/b0ase/path402/pkg/artifacts"
	"github.com/b0ase/path402/pkg/budget"
	"github.com/b0ase/path402/pkg/domain"
	"github.com/b0ase/path402/pkg/protocol"
	"github.com/b0ase/path402/pkg/wallet"
)

// Result is the outcome of Acquire or Redeliver.
type Result struct {
	Address       string           `json:"dollarAddress"`
	Token         wallet.Token     `json:"token"`
	AlreadyOwned  bool             `json:"alreadyOwned"`
	Redelivered   bool             `json:"redelivered,omitempty"`
	Content       []byte           `json:"content,omitempty"`
	ContentType   string           `json:"contentType,omitempty"`
	ContentDigest string           `json:"contentDigest,omitempty"`
	TotalCost     int64            `json:"totalCost"`
	NewBalance    int64            `json:"newBalance"`
	Decision      *budget.Decision `json:"decision,omitempty"`

	proof string
}

type delivery struct {
	digest      string
	contentType string
}

// Orchestrator acquires tokens on behalf of wallets.
type Orchestrator struct {
	discoverer Discoverer
	fetcher    ContentFetcher
	evaluator  *budget.Evaluator
	prover     Prover
	content    artifacts.Store

	mu        sync.RWMutex
	delivered map[string]delivery

	logger *slog.Logger
}

// NewOrchestrator wires the collaborators. A nil store keeps delivered
// content in memory.
func NewOrchestrator(d Discoverer, f ContentFetcher, e *budget.Evaluator, p Prover, store artifacts.Store) *Orchestrator {
	if store == nil {
		store = artifacts.NewMemoryStore()
	}
	if e == nil {
		e = budget.NewEvaluator(nil)
	}
	return &Orchestrator{
		discoverer: d,
		fetcher:    f,
		evaluator:  e,
		prover:     p,
		content:    store,
		delivered:  make(map[string]delivery),
		logger:     slog.Default().With("component", "acquisition"),
	}
}

func deliveryKey(walletID, address string) string {
	return walletID + "\x00" + address
}

// Discover fetches fresh terms. Every failure is DiscoveryUnavailable.
func (o *Orchestrator) Discover(ctx context.Context, address string) (*protocol.Terms, error) {
	const op = "acquisition.Discover"
	addr := protocol.NormalizeAddress(address)
	if addr == "" {
		return nil, domain.Errorf(domain.KindInvalidParameter, op, "address is required")
	}
	t, err := o.discoverer.Discover(ctx, addr)
	if err != nil {
		if domain.KindOf(err) == domain.KindDiscoveryUnavailable {
			return nil, err
		}
		return nil, domain.Wrap(domain.KindDiscoveryUnavailable, op, err).WithAddress(addr)
	}
	if t == nil {
		return nil, domain.Errorf(domain.KindDiscoveryUnavailable, op, "no terms returned").WithAddress(addr)
	}
	terms := *t
	if terms.Address == "" {
		terms.Address = addr
	} else {
		terms.Address = protocol.NormalizeAddress(terms.Address)
	}
	if err := terms.Validate(); err != nil {
		return nil, domain.Wrap(domain.KindDiscoveryUnavailable, op, err).WithAddress(addr)
	}
	return &terms, nil
}

// Acquire buys address for w if it is affordable and within ceiling.
func (o *Orchestrator) Acquire(ctx context.Context, w *wallet.Wallet, address string, ceiling int64) (*Result, error) {
	const op = "acquisition.Acquire"

	terms, err := o.Discover(ctx, address)
	if err != nil {
		return nil, err
	}
	addr := terms.Address

	if tok, held := w.Token(addr); held {
		return &Result{Address: addr, Token: tok, AlreadyOwned: true, NewBalance: w.Balance()}, nil
	}
	if terms.SoldOut() {
		return nil, domain.Errorf(domain.KindInvalidSupply, op, "sold out: all %d tokens issued", *terms.Pricing.Capacity).WithAddress(addr)
	}

	decision, err := o.evaluator.Evaluate(ctx, *terms, ceiling, w)
	if err != nil {
		return nil, err
	}
	switch decision.Recommendation {
	case budget.InsufficientFunds:
		return nil, domain.Errorf(domain.KindInsufficientFunds, op, "%s", decision.Reasoning).WithAddress(addr)
	case budget.Skip:
		return nil, domain.Errorf(domain.KindPriceExceedsCeiling, op, "%s", decision.Reasoning).WithAddress(addr)
	case budget.AlreadyOwned:
		tok, _ := w.Token(addr)
		return &Result{Address: addr, Token: tok, AlreadyOwned: true, NewBalance: w.Balance(), Decision: decision}, nil
	}

	tok, err := w.RecordAcquisition(addr, terms.CurrentPrice, terms.CurrentSupply)
	if err != nil {
		if errors.Is(err, domain.ErrAlreadyOwned) {
			return &Result{Address: addr, Token: tok, AlreadyOwned: true, NewBalance: w.Balance(), Decision: decision}, nil
		}
		return nil, err
	}
	o.logger.InfoContext(ctx, "token acquired",
		"wallet_id", w.ID(), "address", addr, "token_id", tok.ID, "price", tok.PricePaid, "supply", tok.SupplyAtAcquisition)

	res := &Result{
		Address:    addr,
		Token:      tok,
		TotalCost:  tok.PricePaid,
		NewBalance: w.Balance(),
		Decision:   decision,
	}
	if err := o.deliver(ctx, w.ID(), tok, res); err != nil {
		derr := &DeliveryError{Address: addr, TokenID: tok.ID, Charged: tok.PricePaid, Proof: res.proof, Err: err}
		o.logger.WarnContext(ctx, "content delivery failed after payment",
			"wallet_id", w.ID(), "address", addr, "token_id", tok.ID, "charged", tok.PricePaid, "error", err)
		return nil, derr
	}
	return res, nil
}

type proofError struct{ err error }

func (e *proofError) Error() string { return "issue payment proof: " + e.err.Error() }
func (e *proofError) Unwrap() error { return e.err }

// deliver issues a proof, fetches content and stores it.
func (o *Orchestrator) deliver(ctx context.Context, walletID string, tok wallet.Token, res *Result) error {
	proof, err := o.prover.Issue(walletID, tok.Address, tok.ID, tok.PricePaid)
	if err != nil {
		return &proofError{err: err}
	}
	res.proof = proof

	c, err := o.fetcher.FetchContent(ctx, tok.Address, proof)
	if err != nil {
		return err
	}
	if c == nil {
		return fmt.Errorf("content server returned no content")
	}
	res.Content = c.Body
	res.ContentType = c.ContentType

	digest, err := o.content.Store(ctx, c.Body)
	if err != nil {
		o.logger.WarnContext(ctx, "content store write failed", "address", tok.Address, "error", err)
		return nil
	}
	res.ContentDigest = digest
	o.mu.Lock()
	o.delivered[deliveryKey(walletID, tok.Address)] = delivery{digest: digest, contentType: c.ContentType}
	o.mu.Unlock()
	return nil
}

// Redeliver returns content for a token w already holds, without a debit.
// Stored content is served first; otherwise the content server is asked
// again with a fresh proof.
func (o *Orchestrator) Redeliver(ctx context.Context, w *wallet.Wallet, address string) (*Result, error) {
	const op = "acquisition.Redeliver"
	addr := protocol.NormalizeAddress(address)
	tok, held := w.Token(addr)
	if !held {
		return nil, domain.Errorf(domain.KindNotHeld, op, "no token held").WithAddress(addr)
	}
	res := &Result{Address: addr, Token: tok, AlreadyOwned: true, Redelivered: true, NewBalance: w.Balance()}

	o.mu.RLock()
	d, ok := o.delivered[deliveryKey(w.ID(), addr)]
	o.mu.RUnlock()
	if ok {
		body, err := o.content.Get(ctx, d.digest)
		if err == nil {
			res.Content, res.ContentType, res.ContentDigest = body, d.contentType, d.digest
			return res, nil
		}
		o.logger.WarnContext(ctx, "stored content unavailable, refetching", "address", addr, "digest", d.digest, "error", err)
	}

	if err := o.deliver(ctx, w.ID(), tok, res); err != nil {
		return nil, &DeliveryError{Address: addr, TokenID: tok.ID, Charged: 0, Proof: res.proof, Err: err}
	}
	return res, nil
}
