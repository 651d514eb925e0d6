// Package resiliency wraps outbound HTTP with retries and per-host circuit
// breaking.
package resiliency

import (
	"context"
	"crypto/rand"
	"fmt"
	"io"
	"math"
	"math/big"
	"net/http"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
)

// ErrCircuitOpen is returned while a host's breaker is open.
type ErrCircuitOpen struct{ Host string }

func (e *ErrCircuitOpen) Error() string { return "circuit breaker open for " + e.Host }

// EnhancedClient wraps http.Client with resilience patterns:
//   - Exponential backoff with jitter, cancelled by the request context
//   - One circuit breaker per host
//   - W3C trace context propagation
type EnhancedClient struct {
	client      *http.Client
	maxRetries  int
	baseBackoff time.Duration
	threshold   int
	reset       time.Duration

	mu       sync.Mutex
	breakers map[string]*CircuitBreaker
}

// Option configures an EnhancedClient.
type Option func(*EnhancedClient)

func WithTimeout(d time.Duration) Option { return func(c *EnhancedClient) { c.client.Timeout = d } }

func WithMaxRetries(n int) Option { return func(c *EnhancedClient) { c.maxRetries = n } }

// WithBaseBackoff sets the first retry delay; later delays double.
func WithBaseBackoff(d time.Duration) Option { return func(c *EnhancedClient) { c.baseBackoff = d } }

func WithTransport(rt http.RoundTripper) Option {
	return func(c *EnhancedClient) { c.client.Transport = rt }
}

// WithBreaker sets the failure threshold and open duration of every breaker.
func WithBreaker(threshold int, reset time.Duration) Option {
	return func(c *EnhancedClient) { c.threshold, c.reset = threshold, reset }
}

func NewEnhancedClient(opts ...Option) *EnhancedClient {
	c := &EnhancedClient{
		client:      &http.Client{Timeout: 30 * time.Second},
		maxRetries:  3,
		baseBackoff: 100 * time.Millisecond,
		threshold:   5,
		reset:       10 * time.Second,
		breakers:    make(map[string]*CircuitBreaker),
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Breaker returns the circuit breaker for host.
func (c *EnhancedClient) Breaker(host string) *CircuitBreaker {
	c.mu.Lock()
	defer c.mu.Unlock()
	b, ok := c.breakers[host]
	if !ok {
		b = NewCircuitBreaker(host, c.threshold, c.reset)
		c.breakers[host] = b
	}
	return b
}

// Do executes a body-less request with retries. Responses below 500 are
// returned as-is; the caller owns the body.
func (c *EnhancedClient) Do(req *http.Request) (*http.Response, error) {
	if req.Body != nil && req.Body != http.NoBody && req.GetBody == nil {
		return nil, fmt.Errorf("resiliency: request body is not replayable")
	}
	ctx := req.Context()
	otel.GetTextMapPropagator().Inject(ctx, propagation.HeaderCarrier(req.Header))

	breaker := c.Breaker(req.URL.Host)
	if !breaker.Allow() {
		return nil, &ErrCircuitOpen{Host: req.URL.Host}
	}

	var resp *http.Response
	var err error
	for i := 0; i <= c.maxRetries; i++ {
		attempt := req
		if i > 0 && req.GetBody != nil {
			attempt = req.Clone(ctx)
			if attempt.Body, err = req.GetBody(); err != nil {
				return nil, err
			}
		}
		resp, err = c.client.Do(attempt)
		if err == nil && resp.StatusCode < 500 {
			breaker.Success()
			return resp, nil
		}
		if i == c.maxRetries {
			break
		}
		if resp != nil {
			_, _ = io.Copy(io.Discard, resp.Body)
			_ = resp.Body.Close()
		}
		if werr := sleep(ctx, c.backoff(i)); werr != nil {
			breaker.Failure()
			return nil, werr
		}
	}

	breaker.Failure()
	return resp, err
}

// backoff is base * 2^i plus up to 50ms of jitter.
func (c *EnhancedClient) backoff(i int) time.Duration {
	d := time.Duration(math.Pow(2, float64(i))) * c.baseBackoff
	if n, err := rand.Int(rand.Reader, big.NewInt(50)); err == nil && c.baseBackoff > 0 {
		d += time.Duration(n.Int64()) * time.Millisecond
	}
	return d
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// CircuitBreaker implements a simple state machine for failure detection.
type CircuitBreaker struct {
	mu           sync.Mutex
	name         string
	failureCount int
	threshold    int
	lastFailure  time.Time
	resetTimeout time.Duration
	state        string // "CLOSED", "OPEN", "HALF_OPEN"
	clock        func() time.Time
}

func NewCircuitBreaker(name string, threshold int, timeout time.Duration) *CircuitBreaker {
	return &CircuitBreaker{
		name:         name,
		threshold:    threshold,
		resetTimeout: timeout,
		state:        "CLOSED",
		clock:        time.Now,
	}
}

// State reports the breaker state.
func (cb *CircuitBreaker) State() string {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state
}

func (cb *CircuitBreaker) Allow() bool {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	if cb.state == "OPEN" {
		if cb.clock().Sub(cb.lastFailure) > cb.resetTimeout {
			cb.state = "HALF_OPEN"
			return true
		}
		return false
	}
	return true
}

func (cb *CircuitBreaker) Success() {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.state = "CLOSED"
	cb.failureCount = 0
}

func (cb *CircuitBreaker) Failure() {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.failureCount++
	cb.lastFailure = cb.clock()
	if cb.failureCount >= cb.threshold || cb.state == "HALF_OPEN" {
		cb.state = "OPEN"
	}
}
