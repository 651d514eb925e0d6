package resiliency

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCircuitBreakerTransitions(t *testing.T) {
	now := time.Unix(1000, 0)
	cb := NewCircuitBreaker("host", 2, time.Minute)
	cb.clock = func() time.Time { return now }

	assert.True(t, cb.Allow())
	cb.Failure()
	assert.Equal(t, "CLOSED", cb.State())
	cb.Failure()
	assert.Equal(t, "OPEN", cb.State())
	assert.False(t, cb.Allow())

	now = now.Add(2 * time.Minute)
	assert.True(t, cb.Allow())
	assert.Equal(t, "HALF_OPEN", cb.State())

	cb.Failure()
	assert.Equal(t, "OPEN", cb.State())

	now = now.Add(2 * time.Minute)
	require.True(t, cb.Allow())
	cb.Success()
	assert.Equal(t, "CLOSED", cb.State())
}

func TestDoRetriesThenSucceeds(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.NotEmpty(t, r.Header.Get("User-Agent"))
		if hits.Add(1) == 1 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	c := NewEnhancedClient(WithBaseBackoff(0))
	req, err := http.NewRequest(http.MethodGet, srv.URL, nil)
	require.NoError(t, err)
	resp, err := c.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	assert.Equal(t, int32(2), hits.Load())
}

func TestDoClientErrorsAreNotRetried(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusPaymentRequired)
	}))
	defer srv.Close()

	c := NewEnhancedClient(WithBaseBackoff(0))
	req, _ := http.NewRequest(http.MethodGet, srv.URL, nil)
	resp, err := c.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusPaymentRequired, resp.StatusCode)
	assert.Equal(t, int32(1), hits.Load())
}

func TestDoHonoursCancellation(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	c := NewEnhancedClient(WithBaseBackoff(time.Hour))
	req, _ := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL, nil)
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()
	_, err := c.Do(req)
	assert.True(t, errors.Is(err, context.Canceled))
}

func TestBreakerPerHost(t *testing.T) {
	c := NewEnhancedClient(WithBreaker(1, time.Hour))
	c.Breaker("a:1").Failure()
	assert.Equal(t, "OPEN", c.Breaker("a:1").State())
	assert.Equal(t, "CLOSED", c.Breaker("b:1").State())
}
