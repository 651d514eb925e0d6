package acquisition

import (
	"context"

	"github.com/b0ase/path402/pkg/protocol"
)

// Discoverer fetches the current terms for an address.
type Discoverer interface {
	Discover(ctx context.Context, address string) (*protocol.Terms, error)
}

// Content is a delivered payload.
type Content struct {
	Body        []byte
	ContentType string
}

// ContentFetcher retrieves paid content given a payment proof.
type ContentFetcher interface {
	FetchContent(ctx context.Context, address, proof string) (*Content, error)
}

// Prover issues the payment proof presented to the content server.
type Prover interface {
	Issue(agentID, address, tokenID string, amount int64) (string, error)
}

// DiscoverFunc adapts a function to Discoverer.
type DiscoverFunc func(ctx context.Context, address string) (*protocol.Terms, error)

func (f DiscoverFunc) Discover(ctx context.Context, address string) (*protocol.Terms, error) {
	return f(ctx, address)
}

// ContentFunc adapts a function to ContentFetcher.
type ContentFunc func(ctx context.Context, address, proof string) (*Content, error)

func (f ContentFunc) FetchContent(ctx context.Context, address, proof string) (*Content, error) {
	return f(ctx, address, proof)
}
