// Package economics projects what a token purchase earns back through
// serving. Everything here is pure and safe for concurrent use.
package economics

import (
	"math"

	"github.com/b0ase/path402/pkg/domain"
	"github.com/b0ase/path402/pkg/pricing"
	"github.com/b0ase/path402/pkg/protocol"
)

const (
	// MaxBreakevenHorizon bounds the breakeven search, in sales after the buyer.
	MaxBreakevenHorizon int64 = 100_000
	// ExactProjectionSpan is how many sales after the buyer a projection sums
	// one by one. Sales beyond it are summed in projectionBlocks blocks, each
	// weighted by the value at its midpoint.
	ExactProjectionSpan int64 = 250_000
	projectionBlocks    int64 = 4096
	// DefaultProjectedSupply is the default supply used for forward projections.
	DefaultProjectedSupply int64 = 1000
	// DefaultParticipation is the default fraction of holders actively serving.
	DefaultParticipation = 0.5
)

// Revenue is the split of all sales over a supply range.
type Revenue struct {
	Gross   int64 `json:"totalRevenue"`
	Issuer  int64 `json:"issuerRevenue"`
	Network int64 `json:"networkRevenue"`
}

// Breakeven is the first supply at which a holder has earned back their price.
type Breakeven struct {
	Supply       int64 `json:"supplyAtBreakeven"`
	BuyersNeeded int64 `json:"buyersNeeded"`
	Achievable   bool  `json:"achievable"`
	Horizon      int64 `json:"horizon"`
}

// Analyzer evaluates one holder's position on one address.
type Analyzer struct {
	Pricing pricing.Model
	Revenue protocol.RevenueModel
	// BuyerPosition is the supply level of the holder's own purchase.
	BuyerPosition int64
	// Participation is the fraction of holders actively serving, in (0,1].
	Participation float64
}

func (a Analyzer) validate(op string) error {
	if math.IsNaN(a.Participation) || a.Participation <= 0 || a.Participation > 1 {
		return domain.Errorf(domain.KindInvalidParameter, op, "participation %v outside (0,1]", a.Participation)
	}
	if err := a.Revenue.Validate(); err != nil {
		return err
	}
	if a.BuyerPosition < 0 {
		return domain.Errorf(domain.KindInvalidParameter, op, "buyer position %d is negative", a.BuyerPosition)
	}
	return nil
}

// span returns the inclusive sales range (BuyerPosition, atSupply] clamped to
// capacity. An empty range has last < first.
func (a Analyzer) span(op string, atSupply int64) (first, last int64, err error) {
	if atSupply < 0 {
		return 0, 0, domain.Errorf(domain.KindInvalidSupply, op, "supply %d is negative", atSupply)
	}
	first, last = a.BuyerPosition+1, atSupply
	if a.Pricing.Capacity != nil && last > *a.Pricing.Capacity {
		last = *a.Pricing.Capacity
	}
	return first, last, nil
}

// walk calls fn with each sale's supply and price over the span, stopping
// early when fn returns false.
func (a Analyzer) walk(op string, atSupply int64, fn func(s, price int64) bool) error {
	if err := a.validate(op); err != nil {
		return err
	}
	first, last, err := a.span(op, atSupply)
	if err != nil || last < first {
		return err
	}
	curve, err := pricing.New(a.Pricing)
	if err != nil {
		return err
	}
	for s := first; s <= last; s++ {
		p, err := curve.Price(s)
		if err != nil {
			return err
		}
		if !fn(s, p) {
			return nil
		}
	}
	return nil
}

// sum adds term over every sale in the span. The first ExactProjectionSpan
// sales are summed exactly; the rest by blocks, so the cost is bounded for
// any supply.
func (a Analyzer) sum(op string, atSupply int64, term func(s, price int64) float64) (float64, error) {
	if err := a.validate(op); err != nil {
		return 0, err
	}
	first, last, err := a.span(op, atSupply)
	if err != nil || last < first {
		return 0, err
	}
	curve, err := pricing.New(a.Pricing)
	if err != nil {
		return 0, err
	}

	var total float64
	exactLast := min(last, first+ExactProjectionSpan-1)
	for s := first; s <= exactLast; s++ {
		p, err := curve.Price(s)
		if err != nil {
			return 0, err
		}
		total += term(s, p)
	}

	rest := last - exactLast
	if rest <= 0 {
		return total, nil
	}
	size := (rest + projectionBlocks - 1) / projectionBlocks
	for lo := exactLast + 1; lo <= last; lo += size {
		hi := min(lo+size-1, last)
		mid := lo + (hi-lo)/2
		p, err := curve.Price(mid)
		if err != nil {
			return 0, err
		}
		total += float64(hi-lo+1) * term(mid, p)
	}
	return total, nil
}

// increment is one sale's contribution to a single holder's share.
func (a Analyzer) increment(s, price int64) float64 {
	holders := math.Floor(float64(s) * a.Participation)
	if holders < 1 {
		holders = 1
	}
	return float64(price) * a.Revenue.NetworkShare() / holders
}

// TotalRevenue sums all sales after the buyer up to atSupply.
func (a Analyzer) TotalRevenue(atSupply int64) (Revenue, error) {
	g, err := a.sum("economics.TotalRevenue", atSupply, func(_, price int64) float64 {
		return float64(price)
	})
	if err != nil {
		return Revenue{}, err
	}
	gross := int64(math.Round(g))
	issuer := min(int64(math.Round(float64(gross)*a.Revenue.IssuerShare)), gross)
	return Revenue{Gross: gross, Issuer: issuer, Network: gross - issuer}, nil
}

// ExpectedPerHolderShare is the network revenue one serving holder expects
// to have earned once supply reaches atSupply.
func (a Analyzer) ExpectedPerHolderShare(atSupply int64) (float64, error) {
	return a.sum("economics.ExpectedPerHolderShare", atSupply, a.increment)
}

// ROI is (share - pricePaid) / pricePaid at atSupply.
func (a Analyzer) ROI(pricePaid, atSupply int64) (float64, error) {
	if pricePaid <= 0 {
		return 0, domain.Errorf(domain.KindInvalidParameter, "economics.ROI", "price paid %d must be positive", pricePaid)
	}
	share, err := a.ExpectedPerHolderShare(atSupply)
	if err != nil {
		return 0, err
	}
	return (share - float64(pricePaid)) / float64(pricePaid), nil
}

// Breakeven finds the smallest supply whose expected share covers pricePaid.
// The search stops at MaxBreakevenHorizon sales past the buyer or at capacity.
func (a Analyzer) Breakeven(pricePaid int64) (Breakeven, error) {
	const op = "economics.Breakeven"
	if pricePaid <= 0 {
		return Breakeven{}, domain.Errorf(domain.KindInvalidParameter, op, "price paid %d must be positive", pricePaid)
	}
	horizon := a.BuyerPosition + MaxBreakevenHorizon
	if a.Pricing.Capacity != nil && horizon > *a.Pricing.Capacity {
		horizon = *a.Pricing.Capacity
	}

	out := Breakeven{Horizon: horizon}
	target := float64(pricePaid)
	var share float64
	err := a.walk(op, horizon, func(s, price int64) bool {
		share += a.increment(s, price)
		if share >= target {
			out.Supply = s
			out.BuyersNeeded = s - a.BuyerPosition
			out.Achievable = true
			return false
		}
		return true
	})
	if err != nil {
		return Breakeven{}, err
	}
	return out, nil
}
