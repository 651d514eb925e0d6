package wallet

import (
	"sort"
	"sync"
)

// Registry holds one wallet per agent, creating wallets lazily.
type Registry struct {
	mu        sync.RWMutex
	wallets   map[string]*Wallet
	initial   func(agentID string) int64
	observers []Observer
}

// NewRegistry creates a registry. initial decides the opening balance of a
// newly seen agent; observers are attached to every wallet it creates or adopts.
func NewRegistry(initial func(agentID string) int64, observers ...Observer) *Registry {
	if initial == nil {
		initial = func(string) int64 { return 0 }
	}
	return &Registry{
		wallets:   make(map[string]*Wallet),
		initial:   initial,
		observers: observers,
	}
}

// Get returns the agent's wallet, creating it on first use.
func (r *Registry) Get(agentID string) (*Wallet, error) {
	r.mu.RLock()
	w, ok := r.wallets[agentID]
	r.mu.RUnlock()
	if ok {
		return w, nil
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if w, ok := r.wallets[agentID]; ok {
		return w, nil
	}
	w, err := New(agentID, r.initial(agentID))
	if err != nil {
		return nil, err
	}
	r.attach(w)
	r.wallets[agentID] = w
	return w, nil
}

// Lookup returns the agent's wallet without creating one.
func (r *Registry) Lookup(agentID string) (*Wallet, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	w, ok := r.wallets[agentID]
	return w, ok
}

// Put adopts an existing wallet, e.g. one restored from storage. An
// already registered wallet for the same agent is kept.
func (r *Registry) Put(w *Wallet) *Wallet {
	r.mu.Lock()
	defer r.mu.Unlock()
	if existing, ok := r.wallets[w.ID()]; ok {
		return existing
	}
	r.attach(w)
	r.wallets[w.ID()] = w
	return w
}

func (r *Registry) attach(w *Wallet) {
	for _, o := range r.observers {
		w.Observe(o)
	}
}

// Agents lists known agent ids in order.
func (r *Registry) Agents() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.wallets))
	for id := range r.wallets {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}
