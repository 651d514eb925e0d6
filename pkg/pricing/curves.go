package pricing

import (
	"math"

	"github.com/b0ase/path402/pkg/domain"
)

// sqrtDecay is the reference $402 curve. Early tokens are cheap; the price
// climbs toward BasePrice as the remaining supply runs out.
//
//	price = BasePrice / sqrt(capacity - supply + 1)
//
// Without a capacity there is no asymptote and the curve grows with
// sqrt(supply + 1) from BasePrice.
type sqrtDecay struct {
	base     int64
	capacity *int64
}

func newSqrtDecay(m Model) (Curve, error) {
	return sqrtDecay{base: m.BasePrice, capacity: m.Capacity}, nil
}

func (c sqrtDecay) Kind() Kind { return KindSqrtDecay }

func (c sqrtDecay) Price(supply int64) (int64, error) {
	if err := CheckSupply(supply, c.capacity); err != nil {
		return 0, err
	}
	if c.capacity == nil {
		return toSats(float64(c.base) * math.Sqrt(float64(supply)+1)), nil
	}
	remaining := *c.capacity - supply
	return toSats(float64(c.base) / math.Sqrt(float64(remaining)+1)), nil
}

type fixed struct {
	base     int64
	capacity *int64
}

func newFixed(m Model) (Curve, error) {
	return fixed{base: m.BasePrice, capacity: m.Capacity}, nil
}

func (c fixed) Kind() Kind { return KindFixed }

func (c fixed) Price(supply int64) (int64, error) {
	if err := CheckSupply(supply, c.capacity); err != nil {
		return 0, err
	}
	return c.base, nil
}

// interpolated covers the linear and exponential bonding curves: both run
// from BasePrice at supply 0 to MaxPrice at Capacity.
type interpolated struct {
	kind     Kind
	min, max float64
	capacity int64
}

func newLinear(m Model) (Curve, error) {
	return newInterpolated(KindLinear, m)
}

func newExponential(m Model) (Curve, error) {
	return newInterpolated(KindExponential, m)
}

func newInterpolated(kind Kind, m Model) (Curve, error) {
	if m.Capacity == nil {
		return nil, domain.Errorf(domain.KindInvalidModel, "pricing.New", "%s curve requires a capacity", kind)
	}
	if m.MaxPrice == nil || *m.MaxPrice < m.BasePrice {
		return nil, domain.Errorf(domain.KindInvalidModel, "pricing.New", "%s curve requires max_price >= base_price", kind)
	}
	return interpolated{
		kind:     kind,
		min:      float64(m.BasePrice),
		max:      float64(*m.MaxPrice),
		capacity: *m.Capacity,
	}, nil
}

func (c interpolated) Kind() Kind { return c.kind }

func (c interpolated) Price(supply int64) (int64, error) {
	if err := CheckSupply(supply, &c.capacity); err != nil {
		return 0, err
	}
	if c.capacity == 0 {
		return toSats(c.min), nil
	}
	frac := float64(supply) / float64(c.capacity)
	if c.kind == KindExponential {
		lo, hi := math.Log(c.min), math.Log(c.max)
		return toSats(math.Exp(lo + (hi-lo)*frac)), nil
	}
	return toSats(c.min + (c.max-c.min)*frac), nil
}
