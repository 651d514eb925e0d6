// Package api serves read-only REST views over the path402 engine. Errors
// are RFC 7807 Problem Details.
package api

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/b0ase/path402/pkg/domain"
)

const problemContentType = "application/problem+json"

// ProblemDetail is the RFC 7807 body of every non-2xx response. Kind carries
// the engine error kind so agents can branch without parsing Detail.
type ProblemDetail struct {
	Type     string `json:"type"`
	Title    string `json:"title"`
	Status   int    `json:"status"`
	Detail   string `json:"detail,omitempty"`
	Instance string `json:"instance,omitempty"`
	TraceID  string `json:"trace_id,omitempty"`
	Kind     string `json:"kind,omitempty"`
}

func (p *ProblemDetail) Error() string {
	return p.Title + ": " + p.Detail
}

func newProblem(w http.ResponseWriter, r *http.Request, status int, detail string) *ProblemDetail {
	p := &ProblemDetail{
		Type:    fmt.Sprintf("https://path402.com/errors/%d", status),
		Title:   http.StatusText(status),
		Status:  status,
		Detail:  detail,
		TraceID: w.Header().Get(HeaderRequestID),
	}
	if r != nil {
		p.Instance = r.URL.Path
	}
	return p
}

func (p *ProblemDetail) write(w http.ResponseWriter) {
	w.Header().Set("Content-Type", problemContentType)
	w.WriteHeader(p.Status)
	_ = json.NewEncoder(w).Encode(p)
}

// WriteProblem answers r with status. The request may be nil when the
// caller has none.
func WriteProblem(w http.ResponseWriter, r *http.Request, status int, detail string) {
	newProblem(w, r, status, detail).write(w)
}

// WriteTooManyRequests sets Retry-After in whole seconds.
func WriteTooManyRequests(w http.ResponseWriter, r *http.Request, retryAfter int) {
	w.Header().Set("Retry-After", strconv.Itoa(retryAfter))
	WriteProblem(w, r, http.StatusTooManyRequests, "rate limit exceeded")
}

// WriteInternal logs err and answers with a generic 500. err never reaches
// the client.
func WriteInternal(w http.ResponseWriter, r *http.Request, err error) {
	logger := slog.Default().With("component", "api")
	if r != nil {
		logger.ErrorContext(r.Context(), "request failed", "path", r.URL.Path, "error", err)
	} else {
		logger.Error("request failed", "error", err)
	}
	WriteProblem(w, r, http.StatusInternalServerError, "the engine could not complete the request")
}

// StatusFor maps an engine error kind to an HTTP status, or 0 for errors
// that carry no kind.
func StatusFor(kind domain.Kind) int {
	switch kind {
	case domain.KindInsufficientFunds:
		return http.StatusPaymentRequired
	case domain.KindAlreadyOwned:
		return http.StatusConflict
	case domain.KindNoServingRights:
		return http.StatusForbidden
	case domain.KindNotHeld:
		return http.StatusNotFound
	case domain.KindInvalidSupply, domain.KindInvalidParameter, domain.KindPriceExceedsCeiling, domain.KindInvalidModel:
		return http.StatusUnprocessableEntity
	case domain.KindDiscoveryUnavailable, domain.KindContentDeliveryFailed:
		return http.StatusBadGateway
	default:
		return 0
	}
}

// WriteDomainError answers with the status of err's kind. Unclassified
// errors are internal.
func WriteDomainError(w http.ResponseWriter, r *http.Request, err error) {
	kind := domain.KindOf(err)
	status := StatusFor(kind)
	if status == 0 {
		WriteInternal(w, r, err)
		return
	}
	p := newProblem(w, r, status, err.Error())
	p.Kind = string(kind)
	p.write(w)
}
