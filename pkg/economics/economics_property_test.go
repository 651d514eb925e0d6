//go:build property

package economics_test

import (
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"

	"github.com/b0ase/path402/pkg/economics"
	"github.com/b0ase/path402/pkg/pricing"
	"github.com/b0ase/path402/pkg/protocol"
)

func analyzer(base, capacity, position int64, issuer, participation float64) economics.Analyzer {
	return economics.Analyzer{
		Pricing:       pricing.Model{Kind: pricing.KindSqrtDecay, BasePrice: base, Capacity: &capacity},
		Revenue:       protocol.RevenueModel{IssuerShare: issuer},
		BuyerPosition: position,
		Participation: participation,
	}
}

func TestProp_BreakevenConsistency(t *testing.T) {
	params := gopter.DefaultTestParameters()
	params.MinSuccessfulTests = 50
	properties := gopter.NewProperties(params)

	properties.Property("ROI crosses zero exactly at breakeven", prop.ForAll(
		func(base, position, paid int64, issuer, participation float64) bool {
			a := analyzer(base, 1_000_000, position, issuer, participation)
			b, err := a.Breakeven(paid)
			if err != nil {
				return false
			}
			if !b.Achievable {
				roi, err := a.ROI(paid, b.Horizon)
				return err == nil && roi < 0
			}
			at, err := a.ROI(paid, b.Supply)
			if err != nil || at < 0 {
				return false
			}
			before, err := a.ROI(paid, b.Supply-1)
			return err == nil && before < 0
		},
		gen.Int64Range(1_000, 1_000_000),
		gen.Int64Range(0, 500),
		gen.Int64Range(1, 200),
		gen.Float64Range(0, 0.9),
		gen.Float64Range(0.05, 1),
	))

	properties.Property("ROI is non-decreasing in supply", prop.ForAll(
		func(s1, s2 int64) bool {
			if s1 > s2 {
				s1, s2 = s2, s1
			}
			a := analyzer(223610, 500_000_000, 1, 0.5, 0.5)
			r1, err1 := a.ROI(10, s1)
			r2, err2 := a.ROI(10, s2)
			return err1 == nil && err2 == nil && r1 <= r2
		},
		gen.Int64Range(0, 3000),
		gen.Int64Range(0, 3000),
	))

	properties.Property("issuer plus network equals gross", prop.ForAll(
		func(issuer float64, at int64) bool {
			a := analyzer(223610, 500_000_000, 1, issuer, 0.5)
			rev, err := a.TotalRevenue(at)
			return err == nil && rev.Issuer+rev.Network == rev.Gross && rev.Network >= 0
		},
		gen.Float64Range(0, 1),
		gen.Int64Range(0, 2000),
	))

	properties.TestingRun(t)
}
