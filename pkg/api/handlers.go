package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/b0ase/path402/pkg/engine"
	"github.com/b0ase/path402/pkg/protocol"
)

// maxSchedulePoints bounds the points query parameter.
const maxSchedulePoints = 64

// Handler serves the read views of an engine.
type Handler struct {
	engine *engine.Engine
}

// NewHandler creates a new REST handler.
func NewHandler(e *engine.Engine) *Handler {
	return &Handler{engine: e}
}

// RegisterRoutes registers the REST routes on mux.
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /health", h.handleHealth)
	mux.Handle("GET /metrics", h.engine.Metrics().Handler())
	mux.HandleFunc("GET /v1/agents", h.handleAgents)
	mux.HandleFunc("GET /v1/agents/{agent}/wallet", h.handleWallet)
	mux.HandleFunc("GET /v1/agents/{agent}/servable", h.handleServable)
	mux.HandleFunc("GET /v1/agents/{agent}/audit", h.handleAudit)
	mux.HandleFunc("GET /v1/price-schedule", h.handlePriceSchedule)
}

// Health is the /health payload.
type Health struct {
	Status   string `json:"status"`
	Protocol string `json:"protocol"`
	Version  string `json:"version"`
}

func (h *Handler) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, Health{Status: "ok", Protocol: protocol.Name, Version: protocol.Version})
}

func (h *Handler) handleAgents(w http.ResponseWriter, r *http.Request) {
	agents, err := h.engine.Agents(r.Context())
	if err != nil {
		WriteDomainError(w, r, err)
		return
	}
	writeJSON(w, map[string]any{"agents": agents})
}

func (h *Handler) handleWallet(w http.ResponseWriter, r *http.Request) {
	snap, err := h.engine.Wallet(r.Context(), r.PathValue("agent"))
	if err != nil {
		WriteDomainError(w, r, err)
		return
	}
	writeJSON(w, snap)
}

func (h *Handler) handleServable(w http.ResponseWriter, r *http.Request) {
	tokens, err := h.engine.Servable(r.Context(), r.PathValue("agent"))
	if err != nil {
		WriteDomainError(w, r, err)
		return
	}
	writeJSON(w, map[string]any{"tokens": tokens})
}

func (h *Handler) handleAudit(w http.ResponseWriter, r *http.Request) {
	audit, err := h.engine.Audit(r.Context(), r.PathValue("agent"))
	if err != nil {
		WriteDomainError(w, r, err)
		return
	}
	writeJSON(w, audit)
}

func (h *Handler) handlePriceSchedule(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	address := q.Get("address")
	if address == "" {
		WriteProblem(w, r, http.StatusBadRequest, "address is required")
		return
	}
	points, err := parsePoints(q.Get("points"))
	if err != nil {
		WriteProblem(w, r, http.StatusBadRequest, err.Error())
		return
	}
	sched, err := h.engine.PriceSchedule(r.Context(), address, points)
	if err != nil {
		WriteDomainError(w, r, err)
		return
	}
	writeJSON(w, sched)
}

// parsePoints reads a comma separated supply list. Empty means the
// engine default.
func parsePoints(raw string) ([]int64, error) {
	if raw == "" {
		return nil, nil
	}
	parts := strings.Split(raw, ",")
	if len(parts) > maxSchedulePoints {
		return nil, fmt.Errorf("at most %d supply points", maxSchedulePoints)
	}
	out := make([]int64, 0, len(parts))
	for _, p := range parts {
		n, err := strconv.ParseInt(strings.TrimSpace(p), 10, 64)
		if err != nil {
			return nil, fmt.Errorf("supply %q is not an integer", p)
		}
		out = append(out, n)
	}
	return out, nil
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(v)
}
