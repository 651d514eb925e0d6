package serving

import (
	"context"
	"math"
	"math/rand"
	"sync"

	"github.com/b0ase/path402/pkg/wallet"
)

// Settlement decides the revenue credited for one serve.
type Settlement interface {
	Revenue(ctx context.Context, tok wallet.Token, requester string) (int64, error)
}

// SettlementFunc adapts a function to Settlement.
type SettlementFunc func(ctx context.Context, tok wallet.Token, requester string) (int64, error)

func (f SettlementFunc) Revenue(ctx context.Context, tok wallet.Token, requester string) (int64, error) {
	return f(ctx, tok, requester)
}

// FixedSettlement credits the same amount for every serve.
type FixedSettlement int64

func (s FixedSettlement) Revenue(context.Context, wallet.Token, string) (int64, error) {
	return int64(s), nil
}

// SimulatedSettlement approximates a development network: each serve earns
// round(pricePaid * 0.1 * r + 10) sats with r uniform in [0,1).
type SimulatedSettlement struct {
	mu  sync.Mutex
	rng *rand.Rand
}

// NewSimulatedSettlement seeds the simulation.
func NewSimulatedSettlement(seed int64) *SimulatedSettlement {
	//nolint:gosec // simulation only
	return &SimulatedSettlement{rng: rand.New(rand.NewSource(seed))}
}

func (s *SimulatedSettlement) Revenue(_ context.Context, tok wallet.Token, _ string) (int64, error) {
	s.mu.Lock()
	r := s.rng.Float64()
	s.mu.Unlock()
	return int64(math.Round(float64(tok.PricePaid)*0.1*r + 10)), nil
}
