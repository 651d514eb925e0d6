// Package pricing maps a supply level to a price in satoshis.
//
// Curves are an open enumeration: each Kind registers a Factory and callers
// only rely on two guarantees every curve keeps:
//   - price is non-decreasing as supply increases
//   - price is strictly positive for every valid supply
package pricing

import (
	"fmt"
	"math"
	"sort"
	"sync"

	"github.com/b0ase/path402/pkg/domain"
)

// Kind names a curve shape.
type Kind string

const (
	KindSqrtDecay   Kind = "sqrt_decay"
	KindFixed       Kind = "fixed"
	KindLinear      Kind = "linear"
	KindExponential Kind = "exponential"
	KindWASM        Kind = "wasm"
)

// Model is the pricing model attached to a $address. It is supplied by the
// network through discovery and never created locally.
type Model struct {
	Kind      Kind   `json:"model" yaml:"model"`
	BasePrice int64  `json:"basePrice" yaml:"base_price"`
	Capacity  *int64 `json:"maxSupply,omitempty" yaml:"max_supply,omitempty"`
	// MaxPrice bounds the linear and exponential curves at Capacity.
	MaxPrice *int64 `json:"maxPrice,omitempty" yaml:"max_price,omitempty"`
	// Module holds the WebAssembly binary for KindWASM.
	Module []byte `json:"module,omitempty" yaml:"-"`
}

// Curve prices a single supply level.
type Curve interface {
	Kind() Kind
	Price(supply int64) (int64, error)
}

// Factory builds a Curve from a validated Model.
type Factory func(m Model) (Curve, error)

// Point is one entry of a price schedule.
type Point struct {
	Supply int64 `json:"supply"`
	Price  int64 `json:"price"`
}

var (
	registryMu sync.RWMutex
	registry   = map[Kind]Factory{}
)

func init() {
	mustRegister(KindSqrtDecay, newSqrtDecay)
	mustRegister(KindFixed, newFixed)
	mustRegister(KindLinear, newLinear)
	mustRegister(KindExponential, newExponential)
	mustRegister(KindWASM, newWASMCurve)
}

func mustRegister(kind Kind, f Factory) {
	if err := Register(kind, f); err != nil {
		panic(err)
	}
}

// Register adds a curve shape. Registering a Kind twice is an error.
func Register(kind Kind, f Factory) error {
	if kind == "" || f == nil {
		return fmt.Errorf("pricing: kind and factory are required")
	}
	registryMu.Lock()
	defer registryMu.Unlock()
	if _, exists := registry[kind]; exists {
		return fmt.Errorf("pricing: kind %q already registered", kind)
	}
	registry[kind] = f
	return nil
}

// Kinds lists the registered curve shapes in name order.
func Kinds() []Kind {
	registryMu.RLock()
	defer registryMu.RUnlock()
	kinds := make([]Kind, 0, len(registry))
	for k := range registry {
		kinds = append(kinds, k)
	}
	sort.Slice(kinds, func(i, j int) bool { return kinds[i] < kinds[j] })
	return kinds
}

// New validates m and builds its Curve.
func New(m Model) (Curve, error) {
	if m.BasePrice <= 0 {
		return nil, domain.Errorf(domain.KindInvalidModel, "pricing.New", "base price must be positive, got %d", m.BasePrice)
	}
	if m.Capacity != nil && *m.Capacity < 0 {
		return nil, domain.Errorf(domain.KindInvalidModel, "pricing.New", "capacity must not be negative, got %d", *m.Capacity)
	}
	registryMu.RLock()
	f, ok := registry[m.Kind]
	registryMu.RUnlock()
	if !ok {
		return nil, domain.Errorf(domain.KindInvalidModel, "pricing.New", "unknown pricing model %q", m.Kind)
	}
	return f(m)
}

// Price evaluates m at supply.
func Price(m Model, supply int64) (int64, error) {
	c, err := New(m)
	if err != nil {
		return 0, err
	}
	return c.Price(supply)
}

// Schedule evaluates m at every point, preserving the caller's order.
func Schedule(m Model, points []int64) ([]Point, error) {
	c, err := New(m)
	if err != nil {
		return nil, err
	}
	out := make([]Point, 0, len(points))
	for _, s := range points {
		p, err := c.Price(s)
		if err != nil {
			return nil, err
		}
		out = append(out, Point{Supply: s, Price: p})
	}
	return out, nil
}

// CheckSupply rejects supply outside [0, capacity].
func CheckSupply(supply int64, capacity *int64) error {
	if supply < 0 {
		return domain.Errorf(domain.KindInvalidSupply, "pricing.Price", "supply %d is negative", supply)
	}
	if capacity != nil && supply > *capacity {
		return domain.Errorf(domain.KindInvalidSupply, "pricing.Price", "supply %d exceeds capacity %d", supply, *capacity)
	}
	return nil
}

// toSats rounds a raw price to whole satoshis, never below one.
func toSats(p float64) int64 {
	r := math.Round(p)
	if math.IsNaN(r) || r < 1 {
		return 1
	}
	if r >= math.MaxInt64 {
		return math.MaxInt64
	}
	return int64(r)
}
