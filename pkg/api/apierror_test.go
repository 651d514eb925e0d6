package api_test

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/b0ase/path402/pkg/api"
	"github.com/b0ase/path402/pkg/domain"
)

func decodeProblem(t *testing.T, w *httptest.ResponseRecorder) api.ProblemDetail {
	t.Helper()
	assert.Equal(t, "application/problem+json", w.Header().Get("Content-Type"))
	var p api.ProblemDetail
	require.NoError(t, json.NewDecoder(w.Body).Decode(&p))
	assert.Equal(t, w.Code, p.Status)
	return p
}

func TestWriteProblem(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/v1/price-schedule", nil)
	w := httptest.NewRecorder()
	w.Header().Set(api.HeaderRequestID, "req-7")

	api.WriteProblem(w, r, http.StatusBadRequest, "address is required")

	require.Equal(t, http.StatusBadRequest, w.Code)
	p := decodeProblem(t, w)
	assert.Equal(t, "Bad Request", p.Title)
	assert.Equal(t, "address is required", p.Detail)
	assert.Equal(t, "/v1/price-schedule", p.Instance)
	assert.Equal(t, "req-7", p.TraceID)
	assert.Equal(t, "https://path402.com/errors/400", p.Type)
	assert.Empty(t, p.Kind)
}

func TestWriteProblem_NilRequest(t *testing.T) {
	w := httptest.NewRecorder()
	api.WriteProblem(w, nil, http.StatusServiceUnavailable, "down")
	p := decodeProblem(t, w)
	assert.Empty(t, p.Instance)
}

func TestWriteInternal_HidesCause(t *testing.T) {
	w := httptest.NewRecorder()
	api.WriteInternal(w, httptest.NewRequest(http.MethodGet, "/v1/agents", nil),
		errors.New("pq: connection refused host=10.0.0.1"))

	require.Equal(t, http.StatusInternalServerError, w.Code)
	p := decodeProblem(t, w)
	assert.NotContains(t, p.Detail, "10.0.0.1")
}

func TestWriteTooManyRequests(t *testing.T) {
	w := httptest.NewRecorder()
	api.WriteTooManyRequests(w, nil, 30)
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, "30", w.Header().Get("Retry-After"))
}

func TestStatusFor(t *testing.T) {
	cases := []struct {
		kind domain.Kind
		want int
	}{
		{domain.KindInsufficientFunds, http.StatusPaymentRequired},
		{domain.KindAlreadyOwned, http.StatusConflict},
		{domain.KindNoServingRights, http.StatusForbidden},
		{domain.KindNotHeld, http.StatusNotFound},
		{domain.KindInvalidSupply, http.StatusUnprocessableEntity},
		{domain.KindInvalidParameter, http.StatusUnprocessableEntity},
		{domain.KindInvalidModel, http.StatusUnprocessableEntity},
		{domain.KindPriceExceedsCeiling, http.StatusUnprocessableEntity},
		{domain.KindDiscoveryUnavailable, http.StatusBadGateway},
		{domain.KindContentDeliveryFailed, http.StatusBadGateway},
		{"", 0},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, api.StatusFor(tc.kind), "kind %q", tc.kind)
	}
}

func TestWriteDomainError(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/v1/agents/alice/servable", nil)

	t.Run("wrapped kind", func(t *testing.T) {
		w := httptest.NewRecorder()
		err := fmt.Errorf("serve: %w", domain.Errorf(domain.KindNotHeld, "serve", "no token for %s", "$a.com"))
		api.WriteDomainError(w, r, err)

		require.Equal(t, http.StatusNotFound, w.Code)
		p := decodeProblem(t, w)
		assert.Equal(t, "NotHeld", p.Kind)
		assert.Contains(t, p.Detail, "$a.com")
	})

	t.Run("no kind", func(t *testing.T) {
		w := httptest.NewRecorder()
		api.WriteDomainError(w, r, errors.New("disk full"))
		require.Equal(t, http.StatusInternalServerError, w.Code)
		assert.Empty(t, decodeProblem(t, w).Kind)
	})
}
