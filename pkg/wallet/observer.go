package wallet

import "time"

// MutationType names a change to a wallet.
type MutationType string

const (
	MutationAcquire MutationType = "ACQUIRE"
	MutationServe   MutationType = "SERVE"
	MutationDebit   MutationType = "DEBIT"
	MutationCredit  MutationType = "CREDIT"
	MutationReset   MutationType = "RESET"
)

// Mutation describes one committed change, delivered to observers in commit order.
type Mutation struct {
	Type         MutationType `json:"type"`
	WalletID     string       `json:"walletId"`
	Address      string       `json:"address,omitempty"`
	Amount       int64        `json:"amount"`
	BalanceAfter int64        `json:"balanceAfter"`
	Token        *Token       `json:"token,omitempty"`
	Serve        *ServeEvent  `json:"serve,omitempty"`
	Previous     *Snapshot    `json:"previous,omitempty"`
	At           time.Time    `json:"at"`
}

// Observer receives committed mutations. It runs under the wallet lock and
// must not call back into the wallet.
type Observer func(Mutation)

// Observe registers o for every later mutation.
func (w *Wallet) Observe(o Observer) *Wallet {
	if o == nil {
		return w
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	w.observers = append(w.observers, o)
	return w
}

func (w *Wallet) emitLocked(m Mutation) {
	if len(w.observers) == 0 {
		return
	}
	m.WalletID = w.id
	m.BalanceAfter = w.balance
	m.At = w.clock().UTC()
	for _, o := range w.observers {
		o(m)
	}
}
