// Package ratelimit throttles engine calls per agent with a token bucket,
// either in process or shared through Redis.
package ratelimit

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Policy defines limits.
type Policy struct {
	RPM   int
	Burst int
}

// perSecond converts RPM, falling back to one token per second.
func (p Policy) perSecond() float64 {
	r := float64(p.RPM) / 60.0
	if r <= 0 {
		r = 1
	}
	return r
}

func (p Policy) burst() int {
	if p.Burst <= 0 {
		return 1
	}
	return p.Burst
}

// Store abstracts the storage for rate limiting buckets.
type Store interface {
	// Allow reports whether key may perform an action costing cost tokens.
	Allow(ctx context.Context, key string, policy Policy, cost int) (bool, error)
}

// ErrLimited is returned by Check when the bucket is empty.
type ErrLimited struct{ Key string }

func (e *ErrLimited) Error() string { return "rate limit exceeded for " + e.Key }

// Check consumes one token for key. A nil store fails closed.
func Check(ctx context.Context, store Store, key string, policy Policy) error {
	if store == nil {
		return fmt.Errorf("ratelimit: no limiter store configured")
	}
	allowed, err := store.Allow(ctx, key, policy, 1)
	if err != nil {
		return fmt.Errorf("ratelimit check failed: %w", err)
	}
	if !allowed {
		return &ErrLimited{Key: key}
	}
	return nil
}

// MemoryStore keeps one x/time/rate limiter per key for single-instance
// deployments.
type MemoryStore struct {
	mu       sync.Mutex
	visitors map[string]*visitor
	clock    func() time.Time
}

type visitor struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{visitors: make(map[string]*visitor), clock: time.Now}
}

func (s *MemoryStore) Allow(_ context.Context, key string, policy Policy, cost int) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.clock()
	v, ok := s.visitors[key]
	if !ok {
		v = &visitor{limiter: rate.NewLimiter(rate.Limit(policy.perSecond()), policy.burst())}
		s.visitors[key] = v
	}
	v.lastSeen = now
	return v.limiter.AllowN(now, cost), nil
}

// Sweep drops buckets idle for longer than idle and returns how many went.
func (s *MemoryStore) Sweep(idle time.Duration) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	cutoff := s.clock().Add(-idle)
	n := 0
	for k, v := range s.visitors {
		if v.lastSeen.Before(cutoff) {
			delete(s.visitors, k)
			n++
		}
	}
	return n
}

// RunSweeper sweeps every interval until ctx is done.
func (s *MemoryStore) RunSweeper(ctx context.Context, interval, idle time.Duration) {
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			s.Sweep(idle)
		}
	}
}
