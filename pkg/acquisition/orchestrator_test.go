package acquisition

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/b0ase/path402/pkg/artifacts"
	"github.com/b0ase/path402/pkg/domain"
	"github.com/b0ase/path402/pkg/pricing"
	"github.com/b0ase/path402/pkg/proof"
	"github.com/b0ase/path402/pkg/protocol"
	"github.com/b0ase/path402/pkg/wallet"
)

const blog = "$example.com/$blog"

func staticTerms(price, supply int64) DiscoverFunc {
	return func(_ context.Context, address string) (*protocol.Terms, error) {
		return &protocol.Terms{
			Address:       address,
			CurrentPrice:  price,
			CurrentSupply: supply,
			Pricing:       pricing.Model{Kind: pricing.KindSqrtDecay, BasePrice: 223610},
			Revenue:       protocol.RevenueModel{IssuerShare: 0.5},
		}, nil
	}
}

type fetchRecorder struct {
	calls  atomic.Int32
	proofs []string
	mu     sync.Mutex
	fail   error
}

func (f *fetchRecorder) FetchContent(_ context.Context, address, p string) (*Content, error) {
	f.calls.Add(1)
	f.mu.Lock()
	f.proofs = append(f.proofs, p)
	f.mu.Unlock()
	if f.fail != nil {
		return nil, f.fail
	}
	return &Content{Body: []byte("paid content for " + address), ContentType: "text/markdown"}, nil
}

func newSigner(t *testing.T) *proof.Signer {
	t.Helper()
	s, err := proof.NewSigner([]byte("test-seed"))
	require.NoError(t, err)
	return s
}

func newWallet(t *testing.T, balance int64) *wallet.Wallet {
	t.Helper()
	w, err := wallet.New("agent-1", balance)
	require.NoError(t, err)
	return w
}

func TestAcquireSuccessThenAlreadyOwned(t *testing.T) {
	fetch := &fetchRecorder{}
	signer := newSigner(t)
	o := NewOrchestrator(staticTerms(80, 4), fetch, nil, signer, nil)
	w := newWallet(t, 100)

	res, err := o.Acquire(context.Background(), w, "https://Example.com/$blog", 100)
	require.NoError(t, err)
	assert.Equal(t, blog, res.Address)
	assert.False(t, res.AlreadyOwned)
	assert.Equal(t, int64(80), res.TotalCost)
	assert.Equal(t, int64(20), res.NewBalance)
	assert.Equal(t, int64(4), res.Token.SupplyAtAcquisition)
	assert.Equal(t, "text/markdown", res.ContentType)
	assert.Equal(t, artifacts.Digest(res.Content), res.ContentDigest)
	require.NotNil(t, res.Decision)

	require.Len(t, fetch.proofs, 1)
	claims, err := signer.Verify("agent-1", blog, fetch.proofs[0])
	require.NoError(t, err)
	assert.Equal(t, res.Token.ID, claims.TokenID)
	assert.Equal(t, int64(80), claims.Amount)

	again, err := o.Acquire(context.Background(), w, blog, 100)
	require.NoError(t, err)
	assert.True(t, again.AlreadyOwned)
	assert.Equal(t, res.Token.ID, again.Token.ID)
	assert.Equal(t, int64(20), w.Balance())
	assert.Equal(t, int32(1), fetch.calls.Load())
}

func TestAcquireRefusals(t *testing.T) {
	tests := []struct {
		name    string
		balance int64
		ceiling int64
		want    error
	}{
		{"unaffordable", 50, 10_000, domain.ErrInsufficientFunds},
		{"over ceiling", 100, 50, domain.ErrPriceExceedsCeiling},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fetch := &fetchRecorder{}
			o := NewOrchestrator(staticTerms(80, 0), fetch, nil, newSigner(t), nil)
			w := newWallet(t, tt.balance)

			_, err := o.Acquire(context.Background(), w, blog, tt.ceiling)
			assert.True(t, errors.Is(err, tt.want), "got %v", err)
			assert.Equal(t, tt.balance, w.Balance())
			assert.False(t, w.Holds(blog))
			assert.Zero(t, fetch.calls.Load())
		})
	}
}

func TestAcquireDiscoveryFailure(t *testing.T) {
	failing := DiscoverFunc(func(context.Context, string) (*protocol.Terms, error) {
		return nil, errors.New("connection refused")
	})
	o := NewOrchestrator(failing, &fetchRecorder{}, nil, newSigner(t), nil)
	w := newWallet(t, 100)

	_, err := o.Acquire(context.Background(), w, blog, 100)
	assert.True(t, errors.Is(err, domain.ErrDiscoveryUnavailable))
	assert.Equal(t, int64(100), w.Balance())
}

func TestAcquireCapacity(t *testing.T) {
	withCapacity := func(supply, capacity int64) DiscoverFunc {
		return func(ctx context.Context, address string) (*protocol.Terms, error) {
			terms, _ := staticTerms(80, supply)(ctx, address)
			terms.Pricing.Capacity = &capacity
			return terms, nil
		}
	}

	t.Run("sold out", func(t *testing.T) {
		fetch := &fetchRecorder{}
		o := NewOrchestrator(withCapacity(10, 10), fetch, nil, newSigner(t), nil)
		w := newWallet(t, 100)

		_, err := o.Acquire(context.Background(), w, blog, 100)
		assert.True(t, errors.Is(err, domain.ErrInvalidSupply), "got %v", err)
		assert.Equal(t, int64(100), w.Balance())
		assert.False(t, w.Holds(blog))
		assert.Zero(t, fetch.calls.Load())
	})

	t.Run("supply past capacity", func(t *testing.T) {
		o := NewOrchestrator(withCapacity(11, 10), &fetchRecorder{}, nil, newSigner(t), nil)
		w := newWallet(t, 100)
		_, err := o.Acquire(context.Background(), w, blog, 100)
		assert.Error(t, err)
		assert.Equal(t, int64(100), w.Balance())
	})

	t.Run("last token", func(t *testing.T) {
		o := NewOrchestrator(withCapacity(9, 10), &fetchRecorder{}, nil, newSigner(t), nil)
		res, err := o.Acquire(context.Background(), newWallet(t, 100), blog, 100)
		require.NoError(t, err)
		assert.Equal(t, int64(9), res.Token.SupplyAtAcquisition)
	})
}

func TestAcquireRejectsInvalidTerms(t *testing.T) {
	o := NewOrchestrator(staticTerms(0, 0), &fetchRecorder{}, nil, newSigner(t), nil)
	_, err := o.Acquire(context.Background(), newWallet(t, 100), blog, 100)
	assert.True(t, errors.Is(err, domain.ErrDiscoveryUnavailable))
}

func TestAcquireDeliveryFailureKeepsDebit(t *testing.T) {
	fetch := &fetchRecorder{fail: errors.New("502 bad gateway")}
	o := NewOrchestrator(staticTerms(80, 0), fetch, nil, newSigner(t), nil)
	w := newWallet(t, 100)

	_, err := o.Acquire(context.Background(), w, blog, 100)
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrContentDeliveryFailed))
	assert.Equal(t, domain.KindContentDeliveryFailed, domain.KindOf(err))

	var derr *DeliveryError
	require.True(t, errors.As(err, &derr))
	assert.Equal(t, int64(80), derr.Charged)
	assert.NotEmpty(t, derr.Proof)
	tok, held := w.Token(blog)
	require.True(t, held)
	assert.Equal(t, tok.ID, derr.TokenID)
	assert.Equal(t, int64(20), w.Balance())

	fetch.fail = nil
	res, err := o.Redeliver(context.Background(), w, blog)
	require.NoError(t, err)
	assert.True(t, res.Redelivered)
	assert.NotEmpty(t, res.Content)
	assert.Equal(t, int64(20), w.Balance(), "redelivery never debits")
}

func TestRedeliverServesFromStore(t *testing.T) {
	fetch := &fetchRecorder{}
	o := NewOrchestrator(staticTerms(10, 0), fetch, nil, newSigner(t), artifacts.NewMemoryStore())
	w := newWallet(t, 100)

	first, err := o.Acquire(context.Background(), w, blog, 100)
	require.NoError(t, err)

	res, err := o.Redeliver(context.Background(), w, blog)
	require.NoError(t, err)
	assert.Equal(t, first.Content, res.Content)
	assert.Equal(t, first.ContentDigest, res.ContentDigest)
	assert.Equal(t, int32(1), fetch.calls.Load())
}

func TestRedeliverRequiresToken(t *testing.T) {
	o := NewOrchestrator(staticTerms(10, 0), &fetchRecorder{}, nil, newSigner(t), nil)
	_, err := o.Redeliver(context.Background(), newWallet(t, 100), blog)
	assert.True(t, errors.Is(err, domain.ErrNotHeld))
}

func TestConcurrentAcquireSameAddress(t *testing.T) {
	fetch := &fetchRecorder{}
	o := NewOrchestrator(staticTerms(10, 0), fetch, nil, newSigner(t), nil)
	w := newWallet(t, 1000)

	var wg sync.WaitGroup
	var owned atomic.Int32
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := o.Acquire(context.Background(), w, blog, 100)
			if assert.NoError(t, err) && res.AlreadyOwned {
				owned.Add(1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(9), owned.Load())
	assert.Equal(t, int64(990), w.Balance())
	assert.Equal(t, int32(1), fetch.calls.Load())
}
