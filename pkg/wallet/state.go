package wallet

import (
	"github.com/b0ase/path402/pkg/domain"
)

// State is the persisted form of a wallet.
type State struct {
	ID          string       `json:"id"`
	Balance     int64        `json:"balance"`
	Initial     int64        `json:"initial"`
	Adjustments int64        `json:"adjustments"`
	TotalSpent  int64        `json:"totalSpent"`
	TotalEarned int64        `json:"totalEarned"`
	Tokens      []Token      `json:"tokens"`
	History     []ServeEvent `json:"history"`
}

// State exports the wallet for persistence.
func (w *Wallet) State() State {
	w.mu.Lock()
	defer w.mu.Unlock()
	history := make([]ServeEvent, len(w.history))
	copy(history, w.history)
	return State{
		ID:          w.id,
		Balance:     w.balance,
		Initial:     w.initial,
		Adjustments: w.adjustments,
		TotalSpent:  w.totalSpent,
		TotalEarned: w.totalEarned,
		Tokens:      w.sortedTokensLocked(),
		History:     history,
	}
}

// Restore rebuilds a wallet from persisted state. State that breaks the
// ledger invariants is rejected rather than repaired.
func Restore(s State) (*Wallet, error) {
	const op = "wallet.Restore"
	w, err := New(s.ID, s.Balance)
	if err != nil {
		return nil, err
	}

	var spent int64
	ids := make(map[string]string, len(s.Tokens))
	for _, t := range s.Tokens {
		if _, dup := w.tokens[t.Address]; dup {
			return nil, domain.Errorf(domain.KindInvalidParameter, op, "duplicate token").WithAddress(t.Address)
		}
		w.tokens[t.Address] = t
		ids[t.ID] = t.Address
		spent += t.PricePaid
	}

	var earned int64
	for _, ev := range s.History {
		if addr, ok := ids[ev.TokenID]; !ok || addr != ev.Address {
			return nil, domain.Errorf(domain.KindNotHeld, op, "serve event %s references unknown token %s", ev.ID, ev.TokenID).WithAddress(ev.Address)
		}
		earned += ev.Revenue
	}
	if spent != s.TotalSpent || earned != s.TotalEarned {
		return nil, domain.Errorf(domain.KindInvalidParameter, op,
			"totals mismatch: spent %d/%d earned %d/%d", spent, s.TotalSpent, earned, s.TotalEarned)
	}

	w.initial = s.Initial
	w.adjustments = s.Adjustments
	w.totalSpent = s.TotalSpent
	w.totalEarned = s.TotalEarned
	w.history = append(w.history, s.History...)
	if w.balance != w.initial+w.adjustments-w.totalSpent+w.totalEarned {
		return nil, domain.Errorf(domain.KindInvalidParameter, op, "balance %d does not reconcile", w.balance)
	}
	return w, nil
}
