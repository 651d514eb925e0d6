package discovery

import (
	"context"
	"sort"
	"sync"

	"github.com/b0ase/path402/pkg/acquisition"
	"github.com/b0ase/path402/pkg/domain"
	"github.com/b0ase/path402/pkg/protocol"
)

// MaxBatch bounds the number of addresses in one BatchDiscover call.
const MaxBatch = 10

// Failure is one address that could not be discovered.
type Failure struct {
	Address string `json:"address"`
	Error   string `json:"error"`
}

// BatchResult lists successes cheapest first, then failures in input order.
type BatchResult struct {
	Terms    []*protocol.Terms `json:"results"`
	Failures []Failure         `json:"failures"`
}

// BatchDiscover discovers up to MaxBatch addresses concurrently.
func BatchDiscover(ctx context.Context, d acquisition.Discoverer, addresses []string) (*BatchResult, error) {
	const op = "discovery.BatchDiscover"
	if len(addresses) == 0 {
		return nil, domain.Errorf(domain.KindInvalidParameter, op, "at least one address is required")
	}
	if len(addresses) > MaxBatch {
		return nil, domain.Errorf(domain.KindInvalidParameter, op, "at most %d addresses per batch, got %d", MaxBatch, len(addresses))
	}

	terms := make([]*protocol.Terms, len(addresses))
	errs := make([]error, len(addresses))
	var wg sync.WaitGroup
	for i, addr := range addresses {
		wg.Add(1)
		go func(i int, addr string) {
			defer wg.Done()
			terms[i], errs[i] = d.Discover(ctx, addr)
		}(i, addr)
	}
	wg.Wait()

	out := &BatchResult{Terms: []*protocol.Terms{}, Failures: []Failure{}}
	for i, t := range terms {
		if errs[i] != nil {
			out.Failures = append(out.Failures, Failure{Address: addresses[i], Error: errs[i].Error()})
			continue
		}
		out.Terms = append(out.Terms, t)
	}
	sort.SliceStable(out.Terms, func(a, b int) bool {
		return out.Terms[a].CurrentPrice < out.Terms[b].CurrentPrice
	})
	return out, nil
}
