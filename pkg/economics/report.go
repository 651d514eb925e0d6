package economics

import (
	"fmt"
	"math"
	"strings"

	"github.com/b0ase/path402/pkg/protocol"
)

// Probability grades how likely breakeven is.
type Probability string

const (
	ProbabilityHigh   Probability = "high"
	ProbabilityMedium Probability = "medium"
	ProbabilityLow    Probability = "low"
	ProbabilityNone   Probability = "unreachable"
)

// Grade maps the number of buyers still needed to a Probability.
func Grade(b Breakeven) Probability {
	switch {
	case !b.Achievable:
		return ProbabilityNone
	case b.BuyersNeeded < 50:
		return ProbabilityHigh
	case b.BuyersNeeded < 200:
		return ProbabilityMedium
	default:
		return ProbabilityLow
	}
}

// Report is the full economics view of buying an address now.
type Report struct {
	Address         string      `json:"dollarAddress"`
	CurrentSupply   int64       `json:"currentSupply"`
	CurrentPrice    int64       `json:"currentPrice"`
	BuyerPosition   int64       `json:"buyerPosition"`
	Participation   float64     `json:"servingParticipation"`
	ProjectedSupply int64       `json:"projectedSupply"`
	Breakeven       Breakeven   `json:"breakeven"`
	Probability     Probability `json:"probability"`
	ROIAt2x         float64     `json:"roiAt2x"`
	ROIAt10x        float64     `json:"roiAt10x"`
	ROIAtProjected  float64     `json:"roiAtProjected"`
	Projection      Revenue     `json:"revenueProjection"`
	YourShare       int64       `json:"yourShare"`
	Explanation     string      `json:"explanation"`
}

// Analyze builds a Report for buying at the terms' current price and supply.
func Analyze(t protocol.Terms, projectedSupply int64, participation float64) (*Report, error) {
	if projectedSupply <= 0 {
		projectedSupply = DefaultProjectedSupply
	}
	if participation == 0 {
		participation = DefaultParticipation
	}
	if err := t.Validate(); err != nil {
		return nil, err
	}

	a := Analyzer{
		Pricing:       t.Pricing,
		Revenue:       t.Revenue,
		BuyerPosition: t.CurrentSupply + 1,
		Participation: participation,
	}
	r := &Report{
		Address:         t.Address,
		CurrentSupply:   t.CurrentSupply,
		CurrentPrice:    t.CurrentPrice,
		BuyerPosition:   a.BuyerPosition,
		Participation:   participation,
		ProjectedSupply: projectedSupply,
	}

	var err error
	if r.Breakeven, err = a.Breakeven(t.CurrentPrice); err != nil {
		return nil, err
	}
	r.Probability = Grade(r.Breakeven)
	if r.ROIAt2x, err = a.ROI(t.CurrentPrice, t.CurrentSupply*2); err != nil {
		return nil, err
	}
	if r.ROIAt10x, err = a.ROI(t.CurrentPrice, t.CurrentSupply*10); err != nil {
		return nil, err
	}
	if r.ROIAtProjected, err = a.ROI(t.CurrentPrice, projectedSupply); err != nil {
		return nil, err
	}
	if r.Projection, err = a.TotalRevenue(projectedSupply); err != nil {
		return nil, err
	}

	avgHolders := float64(a.BuyerPosition+projectedSupply) / 2
	r.YourShare = int64(math.Round(float64(r.Projection.Network) / avgHolders))
	r.Explanation = explain(t, r)
	return r, nil
}

func explain(t protocol.Terms, r *Report) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Pricing model %s with base price %d sats", t.Pricing.Kind, t.Pricing.BasePrice)
	if t.Pricing.Capacity != nil {
		fmt.Fprintf(&b, " and capacity %d (%d remaining).\n", *t.Pricing.Capacity, t.Remaining())
	} else {
		b.WriteString(" and no capacity limit.\n")
	}
	fmt.Fprintf(&b, "You would be buyer #%d at %d sats. ", r.BuyerPosition, r.CurrentPrice)
	fmt.Fprintf(&b, "Each later sale pays %.0f%% to the issuer and %.0f%% to serving holders, ",
		t.Revenue.IssuerShare*100, t.Revenue.NetworkShare()*100)
	fmt.Fprintf(&b, "shared across roughly %.0f%% of holders.\n", r.Participation*100)
	if r.Breakeven.Achievable {
		fmt.Fprintf(&b, "Breakeven arrives after %d more buyers (supply %d).", r.Breakeven.BuyersNeeded, r.Breakeven.Supply)
	} else {
		fmt.Fprintf(&b, "Breakeven is not reached by supply %d.", r.Breakeven.Horizon)
	}
	return b.String()
}
