// Package wallet implements the per-agent funds and holdings ledger.
//
// A Wallet is single-writer: every mutation runs under the wallet's mutex so
// a check-then-debit sequence cannot race a concurrent acquisition. Tokens and
// serve events are insert-only; only the balance changes in place.
package wallet

import (
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/b0ase/path402/pkg/domain"
)

// Token is a held claim on a $address.
type Token struct {
	ID                  string    `json:"id"`
	Address             string    `json:"address"`
	PricePaid           int64     `json:"pricePaid"`
	SupplyAtAcquisition int64     `json:"supplyAtAcquisition"`
	AcquiredAt          time.Time `json:"acquiredAt"`
	ServingRights       bool      `json:"servingRights"`
}

// ServeEvent records one use of a held token to satisfy a requester.
type ServeEvent struct {
	ID        string    `json:"id"`
	Address   string    `json:"address"`
	TokenID   string    `json:"tokenId"`
	Revenue   int64     `json:"revenueEarned"`
	Requester string    `json:"requester,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// Stats aggregates serve history for one token.
type Stats struct {
	ServeCount   int   `json:"serveCount"`
	TotalRevenue int64 `json:"totalRevenue"`
}

// Snapshot is a read-only copy of a wallet.
type Snapshot struct {
	WalletID    string  `json:"walletId"`
	Balance     int64   `json:"balance"`
	TotalTokens int     `json:"totalTokens"`
	TotalSpent  int64   `json:"totalSpent"`
	TotalEarned int64   `json:"totalEarned"`
	NetPosition int64   `json:"netPosition"`
	Tokens      []Token `json:"tokens"`
}

// Wallet is one agent's ledger.
type Wallet struct {
	mu sync.Mutex

	id          string
	balance     int64
	initial     int64
	adjustments int64
	tokens      map[string]Token
	history     []ServeEvent
	totalSpent  int64
	totalEarned int64

	clock     func() time.Time
	newID     func() string
	observers []Observer
	logger    *slog.Logger
}

// New creates a wallet holding balance satoshis.
func New(id string, balance int64) (*Wallet, error) {
	if balance < 0 {
		return nil, domain.Errorf(domain.KindInvalidParameter, "wallet.New", "initial balance %d is negative", balance)
	}
	return &Wallet{
		id:      id,
		balance: balance,
		initial: balance,
		tokens:  make(map[string]Token),
		clock:   time.Now,
		newID:   uuid.NewString,
		logger:  slog.Default().With("component", "wallet", "wallet_id", id),
	}, nil
}

// WithClock overrides the clock for testing.
func (w *Wallet) WithClock(clock func() time.Time) *Wallet {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.clock = clock
	return w
}

// WithIDs overrides the id generator for testing.
func (w *Wallet) WithIDs(newID func() string) *Wallet {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.newID = newID
	return w
}

// ID returns the owning agent's id.
func (w *Wallet) ID() string { return w.id }

// Balance returns the current balance.
func (w *Wallet) Balance() int64 {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.balance
}

// Debit removes amount from the balance.
func (w *Wallet) Debit(amount int64) (int64, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if err := w.debitLocked("wallet.Debit", amount); err != nil {
		return w.balance, err
	}
	w.adjustments -= amount
	w.emitLocked(Mutation{Type: MutationDebit, Amount: amount})
	return w.balance, nil
}

// Credit adds amount to the balance. Receiving funds never fails; a
// negative amount is a caller bug and is rejected without mutation.
func (w *Wallet) Credit(amount int64) (int64, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if amount < 0 {
		return w.balance, domain.Errorf(domain.KindInvalidParameter, "wallet.Credit", "amount %d is negative", amount)
	}
	w.balance += amount
	w.adjustments += amount
	w.emitLocked(Mutation{Type: MutationCredit, Amount: amount})
	return w.balance, nil
}

func (w *Wallet) debitLocked(op string, amount int64) *domain.Error {
	if amount < 0 {
		return domain.Errorf(domain.KindInvalidParameter, op, "amount %d is negative", amount)
	}
	if amount > w.balance {
		return domain.Errorf(domain.KindInsufficientFunds, op, "need %d sats, balance is %d", amount, w.balance)
	}
	w.balance -= amount
	return nil
}

// RecordAcquisition debits price and stores a new Token for address.
func (w *Wallet) RecordAcquisition(address string, price, supplyAtPurchase int64) (Token, error) {
	const op = "wallet.RecordAcquisition"
	w.mu.Lock()
	defer w.mu.Unlock()

	if address == "" {
		return Token{}, domain.Errorf(domain.KindInvalidParameter, op, "address is required")
	}
	if price <= 0 {
		return Token{}, domain.Errorf(domain.KindInvalidParameter, op, "price %d must be positive", price).WithAddress(address)
	}
	if supplyAtPurchase < 0 {
		return Token{}, domain.Errorf(domain.KindInvalidSupply, op, "supply %d is negative", supplyAtPurchase).WithAddress(address)
	}
	if existing, held := w.tokens[address]; held {
		return existing, domain.Errorf(domain.KindAlreadyOwned, op, "token %s already held", existing.ID).WithAddress(address)
	}
	if err := w.debitLocked(op, price); err != nil {
		return Token{}, err.WithAddress(address)
	}

	tok := Token{
		ID:                  w.newID(),
		Address:             address,
		PricePaid:           price,
		SupplyAtAcquisition: supplyAtPurchase,
		AcquiredAt:          w.clock().UTC(),
		ServingRights:       true,
	}
	w.tokens[address] = tok
	w.totalSpent += price
	w.emitLocked(Mutation{Type: MutationAcquire, Address: address, Amount: price, Token: &tok})
	return tok, nil
}

// CanServe reports why the wallet cannot serve address, or nil if it can.
func (w *Wallet) CanServe(address string) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	_, err := w.servableLocked("wallet.CanServe", address)
	return err
}

func (w *Wallet) servableLocked(op, address string) (Token, error) {
	tok, held := w.tokens[address]
	if !held {
		return Token{}, domain.Errorf(domain.KindNotHeld, op, "no token held").WithAddress(address)
	}
	if !tok.ServingRights {
		return Token{}, domain.Errorf(domain.KindNoServingRights, op, "token %s has no serving rights", tok.ID).WithAddress(address)
	}
	return tok, nil
}

// RecordServe credits revenue for serving address and appends a ServeEvent.
func (w *Wallet) RecordServe(address string, revenue int64, requester string) (ServeEvent, error) {
	const op = "wallet.RecordServe"
	w.mu.Lock()
	defer w.mu.Unlock()

	tok, err := w.servableLocked(op, address)
	if err != nil {
		return ServeEvent{}, err
	}
	if revenue < 0 {
		return ServeEvent{}, domain.Errorf(domain.KindInvalidParameter, op, "revenue %d is negative", revenue).WithAddress(address)
	}

	ev := ServeEvent{
		ID:        w.newID(),
		Address:   address,
		TokenID:   tok.ID,
		Revenue:   revenue,
		Requester: requester,
		Timestamp: w.clock().UTC(),
	}
	w.balance += revenue
	w.totalEarned += revenue
	w.history = append(w.history, ev)
	w.emitLocked(Mutation{Type: MutationServe, Address: address, Amount: revenue, Serve: &ev})
	return ev, nil
}

// Holds reports whether a token for address is held.
func (w *Wallet) Holds(address string) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	_, ok := w.tokens[address]
	return ok
}

// Token returns the held token for address.
func (w *Wallet) Token(address string) (Token, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	tok, ok := w.tokens[address]
	return tok, ok
}

// History returns a copy of the serve history in append order.
func (w *Wallet) History() []ServeEvent {
	w.mu.Lock()
	defer w.mu.Unlock()
	out := make([]ServeEvent, len(w.history))
	copy(out, w.history)
	return out
}

// TokenStats aggregates the serve history of one token.
func (w *Wallet) TokenStats(tokenID string) Stats {
	w.mu.Lock()
	defer w.mu.Unlock()
	return statsLocked(w.history, tokenID)
}

func statsLocked(history []ServeEvent, tokenID string) Stats {
	var s Stats
	for _, ev := range history {
		if ev.TokenID == tokenID {
			s.ServeCount++
			s.TotalRevenue += ev.Revenue
		}
	}
	return s
}

// Snapshot returns a read-only view; tokens are ordered by acquisition time.
func (w *Wallet) Snapshot() Snapshot {
	w.mu.Lock()
	defer w.mu.Unlock()
	return Snapshot{
		WalletID:    w.id,
		Balance:     w.balance,
		TotalTokens: len(w.tokens),
		TotalSpent:  w.totalSpent,
		TotalEarned: w.totalEarned,
		NetPosition: w.totalEarned - w.totalSpent,
		Tokens:      w.sortedTokensLocked(),
	}
}

func (w *Wallet) sortedTokensLocked() []Token {
	out := make([]Token, 0, len(w.tokens))
	for _, t := range w.tokens {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].AcquiredAt.Equal(out[j].AcquiredAt) {
			return out[i].AcquiredAt.Before(out[j].AcquiredAt)
		}
		return out[i].Address < out[j].Address
	})
	return out
}

// Conserved checks balance == initial + adjustments - spent + earned.
func (w *Wallet) Conserved() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.balance == w.initial+w.adjustments-w.totalSpent+w.totalEarned
}

// Reset discards all tokens and history and starts over at balance.
// It is a configuration action and is always logged at WARN.
func (w *Wallet) Reset(balance int64) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if balance < 0 {
		return domain.Errorf(domain.KindInvalidParameter, "wallet.Reset", "balance %d is negative", balance)
	}
	prev := Snapshot{
		Balance:     w.balance,
		TotalTokens: len(w.tokens),
		TotalSpent:  w.totalSpent,
		TotalEarned: w.totalEarned,
	}
	w.logger.Warn("wallet reset",
		"previous_balance", prev.Balance,
		"discarded_tokens", prev.TotalTokens,
		"discarded_serves", len(w.history),
		"new_balance", balance,
	)

	w.balance = balance
	w.initial = balance
	w.adjustments = 0
	w.tokens = make(map[string]Token)
	w.history = nil
	w.totalSpent = 0
	w.totalEarned = 0
	w.emitLocked(Mutation{Type: MutationReset, Amount: balance, Previous: &prev})
	return nil
}
