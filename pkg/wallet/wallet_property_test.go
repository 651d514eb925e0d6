//go:build property

package wallet_test

import (
	"fmt"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"

	"github.com/b0ase/path402/pkg/wallet"
)

// op encodes one step: kind 0 acquires, kind 1 serves, kind 2 debits, kind 3 credits.
type op struct {
	Kind   int
	Target int
	Amount int64
}

func genOp() gopter.Gen {
	return gopter.CombineGens(
		gen.IntRange(0, 3),
		gen.IntRange(0, 9),
		gen.Int64Range(0, 500),
	).Map(func(vals []interface{}) op {
		return op{Kind: vals[0].(int), Target: vals[1].(int), Amount: vals[2].(int64)}
	})
}

func TestProp_BalanceConservation(t *testing.T) {
	params := gopter.DefaultTestParameters()
	params.MinSuccessfulTests = 200
	properties := gopter.NewProperties(params)

	properties.Property("balance == initial - spent + earned + adjustments", prop.ForAll(
		func(initial int64, ops []op) bool {
			w, err := wallet.New("prop", initial)
			if err != nil {
				return false
			}
			for _, o := range ops {
				addr := fmt.Sprintf("$site%d.com", o.Target)
				switch o.Kind {
				case 0:
					_, _ = w.RecordAcquisition(addr, o.Amount+1, 0)
				case 1:
					_, _ = w.RecordServe(addr, o.Amount, "peer")
				case 2:
					_, _ = w.Debit(o.Amount)
				case 3:
					_, _ = w.Credit(o.Amount)
				}
				if w.Balance() < 0 || !w.Conserved() {
					return false
				}
			}
			snap := w.Snapshot()
			return snap.NetPosition == snap.TotalEarned-snap.TotalSpent
		},
		gen.Int64Range(0, 5000),
		gen.SliceOf(genOp()),
	))

	properties.Property("at most one token per address", prop.ForAll(
		func(ops []op) bool {
			w, _ := wallet.New("prop", 1_000_000)
			for _, o := range ops {
				_, _ = w.RecordAcquisition(fmt.Sprintf("$site%d.com", o.Target), o.Amount+1, 0)
			}
			seen := map[string]bool{}
			for _, tok := range w.Snapshot().Tokens {
				if seen[tok.Address] {
					return false
				}
				seen[tok.Address] = true
			}
			return true
		},
		gen.SliceOf(genOp()),
	))

	properties.TestingRun(t)
}
