package api

import (
	"errors"
	"log/slog"
	"math"
	"net"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/b0ase/path402/pkg/ratelimit"
)

const (
	// HeaderAgent names the agent a request acts for.
	HeaderAgent = "X-Path402-Agent"
	// HeaderRequestID carries the request correlation ID.
	HeaderRequestID = "X-Request-ID"
)

// RequestID echoes X-Request-ID, minting one when the client sent none.
func RequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(HeaderRequestID)
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set(HeaderRequestID, id)
		next.ServeHTTP(w, r)
	})
}

// RateLimiter throttles requests per agent, or per client IP for
// anonymous requests.
type RateLimiter struct {
	store  ratelimit.Store
	policy ratelimit.Policy
}

// NewRateLimiter creates a limiter backed by store.
func NewRateLimiter(store ratelimit.Store, policy ratelimit.Policy) *RateLimiter {
	return &RateLimiter{store: store, policy: policy}
}

// Middleware returns a Handler that enforces rate limits. Limiter store
// failures reject the request.
func (rl *RateLimiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		err := ratelimit.Check(r.Context(), rl.store, limitKey(r), rl.policy)
		if err == nil {
			next.ServeHTTP(w, r)
			return
		}
		var limited *ratelimit.ErrLimited
		if errors.As(err, &limited) {
			WriteTooManyRequests(w, r, rl.retryAfter())
			return
		}
		slog.ErrorContext(r.Context(), "rate limiter unavailable", "component", "api", "error", err)
		WriteProblem(w, r, http.StatusServiceUnavailable, "rate limiter unavailable")
	})
}

// retryAfter is the time for one token to refill, in whole seconds.
func (rl *RateLimiter) retryAfter() int {
	if rl.policy.RPM <= 0 {
		return 1
	}
	return int(math.Ceil(60 / float64(rl.policy.RPM)))
}

func limitKey(r *http.Request) string {
	if agent := r.Header.Get(HeaderAgent); agent != "" {
		return "agent:" + agent
	}
	ip, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		ip = strings.TrimSuffix(strings.TrimPrefix(r.RemoteAddr, "["), "]")
	}
	return "ip:" + ip
}
