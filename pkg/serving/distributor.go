// Package serving credits revenue to holders that serve content they own.
package serving

import (
	"context"
	"log/slog"

	"github.com/b0ase/path402/pkg/domain"
	"github.com/b0ase/path402/pkg/protocol"
	"github.com/b0ase/path402/pkg/wallet"
)

// Result is the outcome of one serve.
type Result struct {
	Event      wallet.ServeEvent `json:"serveEvent"`
	Stats      wallet.Stats      `json:"tokenStats"`
	NewBalance int64             `json:"newBalance"`
}

// Distributor records serves against wallets.
type Distributor struct {
	settlement Settlement
	logger     *slog.Logger
}

// NewDistributor uses settlement to price each serve.
func NewDistributor(settlement Settlement) *Distributor {
	return &Distributor{
		settlement: settlement,
		logger:     slog.Default().With("component", "serving"),
	}
}

// Serve credits w for serving address to requester. Holding is checked
// before settlement is consulted.
func (d *Distributor) Serve(ctx context.Context, w *wallet.Wallet, address, requester string) (*Result, error) {
	const op = "serving.Serve"
	addr := protocol.NormalizeAddress(address)
	if err := w.CanServe(addr); err != nil {
		return nil, err
	}
	tok, _ := w.Token(addr)

	revenue, err := d.settlement.Revenue(ctx, tok, requester)
	if err != nil {
		return nil, domain.Wrap(domain.KindInvalidParameter, op, err).WithAddress(addr)
	}
	if revenue < 0 {
		return nil, domain.Errorf(domain.KindInvalidParameter, op, "settlement returned negative revenue %d", revenue).WithAddress(addr)
	}

	ev, err := w.RecordServe(addr, revenue, requester)
	if err != nil {
		return nil, err
	}
	d.logger.InfoContext(ctx, "content served",
		"wallet_id", w.ID(), "address", addr, "token_id", ev.TokenID, "revenue", revenue, "requester", requester)
	return &Result{
		Event:      ev,
		Stats:      w.TokenStats(ev.TokenID),
		NewBalance: w.Balance(),
	}, nil
}
