package budget

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/b0ase/path402/pkg/domain"
	"github.com/b0ase/path402/pkg/policy"
	"github.com/b0ase/path402/pkg/pricing"
	"github.com/b0ase/path402/pkg/protocol"
	"github.com/b0ase/path402/pkg/wallet"
)

func terms(price, supply int64) protocol.Terms {
	capacity := int64(500_000_000)
	return protocol.Terms{
		Address:       "$example.com/$blog",
		CurrentPrice:  price,
		CurrentSupply: supply,
		Pricing:       pricing.Model{Kind: pricing.KindSqrtDecay, BasePrice: 223610, Capacity: &capacity},
		Revenue:       protocol.RevenueModel{IssuerShare: 0.5},
	}
}

func newWallet(t *testing.T, balance int64) *wallet.Wallet {
	t.Helper()
	w, err := wallet.New("agent-1", balance)
	require.NoError(t, err)
	return w
}

type guardFunc func(context.Context, policy.Input) (bool, error)

func (f guardFunc) Permit(ctx context.Context, in policy.Input) (bool, error) { return f(ctx, in) }

func TestEvaluateSkipOverCeiling(t *testing.T) {
	e := NewEvaluator(nil)
	w := newWallet(t, 100)

	d, err := e.Evaluate(context.Background(), terms(80, 0), 50, w)
	require.NoError(t, err)
	assert.Equal(t, Skip, d.Recommendation)
	assert.Equal(t, int64(20), d.BudgetRemaining)
	assert.Contains(t, d.Reasoning, "ceiling")
	assert.Nil(t, d.ExpectedROI)

	d, err = e.Evaluate(context.Background(), terms(80, 0), 100, w)
	require.NoError(t, err)
	assert.Equal(t, Acquire, d.Recommendation)
	assert.Equal(t, int64(20), d.BudgetRemaining)
	require.NotNil(t, d.ExpectedROI)
}

func TestEvaluateExpectedROIAtLargeSupply(t *testing.T) {
	e := NewEvaluator(nil)
	d, err := e.Evaluate(context.Background(), terms(11, 3_000_000), 100, newWallet(t, 100))
	require.NoError(t, err)
	assert.Equal(t, Acquire, d.Recommendation)
	require.NotNil(t, d.ExpectedROI)
	assert.Greater(t, *d.ExpectedROI, -1.0)
}

func TestEvaluateInsufficientFunds(t *testing.T) {
	e := NewEvaluator(nil)
	w := newWallet(t, 50)

	for _, ceiling := range []int64{0, 50, 80, 10_000} {
		d, err := e.Evaluate(context.Background(), terms(80, 0), ceiling, w)
		require.NoError(t, err)
		assert.Equal(t, InsufficientFunds, d.Recommendation, "ceiling %d", ceiling)
		assert.Equal(t, int64(-30), d.BudgetRemaining)
	}
}

func TestEvaluateAlreadyOwnedTakesPrecedence(t *testing.T) {
	e := NewEvaluator(nil)
	w := newWallet(t, 100)
	_, err := w.RecordAcquisition("$example.com/$blog", 90, 0)
	require.NoError(t, err)

	d, err := e.Evaluate(context.Background(), terms(80, 1), 10, w)
	require.NoError(t, err)
	assert.Equal(t, AlreadyOwned, d.Recommendation)
	assert.Equal(t, int64(-70), d.BudgetRemaining)
}

func TestEvaluateDoesNotMutateWallet(t *testing.T) {
	e := NewEvaluator(nil)
	w := newWallet(t, 100)
	before := w.Snapshot()

	_, err := e.Evaluate(context.Background(), terms(80, 0), 100, w)
	require.NoError(t, err)
	assert.Equal(t, before, w.Snapshot())
}

func TestEvaluateGuard(t *testing.T) {
	var seen policy.Input
	reject := guardFunc(func(_ context.Context, in policy.Input) (bool, error) {
		seen = in
		return false, nil
	})
	e := NewEvaluator(reject)
	w := newWallet(t, 100)

	d, err := e.Evaluate(context.Background(), terms(80, 7), 100, w)
	require.NoError(t, err)
	assert.Equal(t, Skip, d.Recommendation)
	assert.Equal(t, "policy_rejected", d.Receipt.Reason)
	assert.Equal(t, policy.Input{AgentID: "agent-1", Address: "$example.com/$blog", Price: 80, Supply: 7, Balance: 100, Ceiling: 100, IssuerShare: 0.5}, seen)

	e.Guard = guardFunc(func(context.Context, policy.Input) (bool, error) {
		return false, errors.New("boom")
	})
	d, err = e.Evaluate(context.Background(), terms(80, 7), 100, w)
	require.NoError(t, err)
	assert.Equal(t, Skip, d.Recommendation)
	assert.Equal(t, "policy_error", d.Receipt.Reason)
}

func TestEvaluateGuardNotConsultedWhenUnaffordable(t *testing.T) {
	called := false
	e := NewEvaluator(guardFunc(func(context.Context, policy.Input) (bool, error) {
		called = true
		return true, nil
	}))
	w := newWallet(t, 10)

	d, err := e.Evaluate(context.Background(), terms(80, 0), 100, w)
	require.NoError(t, err)
	assert.Equal(t, InsufficientFunds, d.Recommendation)
	assert.False(t, called)
}

func TestEvaluateCELRule(t *testing.T) {
	engine, err := policy.NewEngine()
	require.NoError(t, err)
	rule, err := engine.Rule(`!input.address.startsWith("$example.com")`)
	require.NoError(t, err)

	d, err := NewEvaluator(rule).Evaluate(context.Background(), terms(10, 0), 100, newWallet(t, 100))
	require.NoError(t, err)
	assert.Equal(t, Skip, d.Recommendation)
}

func TestEvaluateReceipt(t *testing.T) {
	at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	e := NewEvaluator(nil).WithClock(func() time.Time { return at })

	d, err := e.Evaluate(context.Background(), terms(80, 0), 100, newWallet(t, 100))
	require.NoError(t, err)
	require.NotNil(t, d.Receipt)
	assert.NotEmpty(t, d.Receipt.ID)
	assert.Equal(t, "agent-1", d.Receipt.AgentID)
	assert.Equal(t, Acquire, d.Receipt.Recommendation)
	assert.Equal(t, int64(100), d.Receipt.Balance)
	assert.Equal(t, at, d.Receipt.Timestamp)
}

func TestEvaluateValidation(t *testing.T) {
	e := NewEvaluator(nil)
	w := newWallet(t, 100)

	_, err := e.Evaluate(context.Background(), terms(80, 0), -1, w)
	assert.True(t, errors.Is(err, domain.ErrInvalidParameter))

	_, err = e.Evaluate(context.Background(), terms(0, 0), 100, w)
	assert.Error(t, err)
}
