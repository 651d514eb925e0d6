package serving

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/b0ase/path402/pkg/domain"
	"github.com/b0ase/path402/pkg/wallet"
)

func heldWallet(t *testing.T, address string, price int64) *wallet.Wallet {
	t.Helper()
	w, err := wallet.New("agent-1", 100)
	require.NoError(t, err)
	_, err = w.RecordAcquisition(address, price, 9)
	require.NoError(t, err)
	return w
}

func TestServeTwice(t *testing.T) {
	w := heldWallet(t, "$example.com", 80)
	d := NewDistributor(FixedSettlement(15))

	var res *Result
	var err error
	for i := 0; i < 2; i++ {
		res, err = d.Serve(context.Background(), w, "$example.com", "peer-b")
		require.NoError(t, err)
	}
	assert.Equal(t, 2, res.Stats.ServeCount)
	assert.Equal(t, int64(30), res.Stats.TotalRevenue)
	assert.Equal(t, int64(50), res.NewBalance)
	assert.Equal(t, "peer-b", res.Event.Requester)

	snap := w.Snapshot()
	assert.Equal(t, int64(30), snap.TotalEarned)
	assert.Equal(t, snap.TotalEarned-snap.TotalSpent, snap.NetPosition)
	assert.Len(t, w.History(), 2)
}

func TestServeNotHeldSkipsSettlement(t *testing.T) {
	w, err := wallet.New("agent-1", 100)
	require.NoError(t, err)
	called := false
	d := NewDistributor(SettlementFunc(func(context.Context, wallet.Token, string) (int64, error) {
		called = true
		return 1, nil
	}))

	_, err = d.Serve(context.Background(), w, "$example.com", "")
	assert.True(t, errors.Is(err, domain.ErrNotHeld))
	assert.False(t, called)
	assert.Empty(t, w.History())
}

func TestServeRejectsBadSettlement(t *testing.T) {
	w := heldWallet(t, "$example.com", 80)

	neg := NewDistributor(FixedSettlement(-1))
	_, err := neg.Serve(context.Background(), w, "$example.com", "")
	assert.True(t, errors.Is(err, domain.ErrInvalidParameter))

	failing := NewDistributor(SettlementFunc(func(context.Context, wallet.Token, string) (int64, error) {
		return 0, errors.New("settlement offline")
	}))
	_, err = failing.Serve(context.Background(), w, "$example.com", "")
	assert.Error(t, err)
	assert.Empty(t, w.History())
	assert.Equal(t, int64(20), w.Balance())
}

func TestSimulatedSettlementRange(t *testing.T) {
	s := NewSimulatedSettlement(42)
	tok := wallet.Token{PricePaid: 1000}
	for i := 0; i < 100; i++ {
		r, err := s.Revenue(context.Background(), tok, "")
		require.NoError(t, err)
		assert.GreaterOrEqual(t, r, int64(10))
		assert.LessOrEqual(t, r, int64(110))
	}
}

func TestServable(t *testing.T) {
	w := heldWallet(t, "$a.com", 40)
	_, err := w.RecordAcquisition("$b.com", 20, 0)
	require.NoError(t, err)
	_, err = w.RecordServe("$a.com", 50, "")
	require.NoError(t, err)

	list := Servable(w)
	require.Len(t, list, 2)

	assert.Equal(t, "$a.com", list[0].Address)
	assert.Equal(t, int64(10), list[0].Position)
	assert.Equal(t, 1, list[0].ServeCount)
	assert.InDelta(t, 25.0, list[0].ROIPercent, 1e-9)

	assert.Equal(t, "$b.com", list[1].Address)
	assert.Equal(t, -100.0, list[1].ROIPercent)
}
