package ledger

import (
	"log/slog"
	"sort"
	"sync"

	"github.com/b0ase/path402/pkg/wallet"
)

// Book holds one journal per wallet and records wallet mutations into them.
type Book struct {
	mu       sync.RWMutex
	journals map[string]*Journal
	logger   *slog.Logger
}

func NewBook() *Book {
	return &Book{
		journals: make(map[string]*Journal),
		logger:   slog.Default().With("component", "ledger"),
	}
}

// Journal returns owner's journal, creating it on first use.
func (b *Book) Journal(owner string) *Journal {
	b.mu.RLock()
	j, ok := b.journals[owner]
	b.mu.RUnlock()
	if ok {
		return j
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if j, ok := b.journals[owner]; ok {
		return j
	}
	j = NewJournal(owner)
	b.journals[owner] = j
	return j
}

// Owners lists the wallets with a journal.
func (b *Book) Owners() []string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make([]string, 0, len(b.journals))
	for k := range b.journals {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// Record is a wallet.Observer. Journal failures are logged, never propagated
// into the wallet.
func (b *Book) Record(m wallet.Mutation) {
	if _, err := b.Journal(m.WalletID).Append(string(m.Type), m.WalletID, m); err != nil {
		b.logger.Error("journal append failed", "wallet_id", m.WalletID, "type", m.Type, "error", err)
	}
}
