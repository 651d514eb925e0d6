// Package store persists wallet state so balances and holdings survive a
// restart.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/b0ase/path402/pkg/wallet"
)

var ErrNotFound = errors.New("wallet not found")

// WalletStore loads and saves whole wallet states keyed by agent.
type WalletStore interface {
	Load(ctx context.Context, agentID string) (*wallet.State, error)
	Save(ctx context.Context, agentID string, st wallet.State) error
	Agents(ctx context.Context) ([]string, error)
}

// MemoryStore keeps serialized states in process.
type MemoryStore struct {
	mu     sync.RWMutex
	states map[string][]byte
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{states: make(map[string][]byte)}
}

func (s *MemoryStore) Load(_ context.Context, agentID string) (*wallet.State, error) {
	s.mu.RLock()
	raw, ok := s.states[agentID]
	s.mu.RUnlock()
	if !ok {
		return nil, ErrNotFound
	}
	var st wallet.State
	if err := json.Unmarshal(raw, &st); err != nil {
		return nil, fmt.Errorf("decode wallet %s: %w", agentID, err)
	}
	return &st, nil
}

func (s *MemoryStore) Save(_ context.Context, agentID string, st wallet.State) error {
	raw, err := json.Marshal(st)
	if err != nil {
		return fmt.Errorf("encode wallet %s: %w", agentID, err)
	}
	s.mu.Lock()
	s.states[agentID] = raw
	s.mu.Unlock()
	return nil
}

func (s *MemoryStore) Agents(context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]string, 0, len(s.states))
	for id := range s.states {
		out = append(out, id)
	}
	sort.Strings(out)
	return out, nil
}
