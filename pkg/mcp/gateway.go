package mcp

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/b0ase/path402/pkg/domain"
	"github.com/b0ase/path402/pkg/firewall"
	"github.com/b0ase/path402/pkg/protocol"
)

// HeaderAgent names the agent a gateway call acts for.
const HeaderAgent = "X-Path402-Agent"

const maxRequestBytes = 1 << 20

// Gateway exposes a Server over HTTP.
type Gateway struct {
	server *Server
}

// NewGateway creates a new MCP gateway.
func NewGateway(server *Server) *Gateway {
	return &Gateway{server: server}
}

// ToolCallRequest is the wire format for a tool call.
type ToolCallRequest struct {
	Method    string         `json:"method"`
	Params    map[string]any `json:"params,omitempty"`
	AgentID   string         `json:"agent_id,omitempty"`
	SessionID string         `json:"session_id,omitempty"`
}

// ToolCallResponse is the wire format for a tool result.
type ToolCallResponse struct {
	Result *Result `json:"result,omitempty"`
	Error  string  `json:"error,omitempty"`
	Kind   string  `json:"kind,omitempty"`
}

// CapabilityManifest describes the tools this server exposes.
type CapabilityManifest struct {
	ServerName   string    `json:"server_name"`
	Version      string    `json:"version"`
	Protocol     string    `json:"protocol"`
	Capabilities []ToolRef `json:"capabilities"`
}

// RegisterRoutes registers MCP gateway HTTP routes.
func (g *Gateway) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/mcp/v1/capabilities", g.handleCapabilities)
	mux.HandleFunc("/mcp/v1/execute", g.handleExecute)
}

func (g *Gateway) handleCapabilities(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	tools, err := g.server.Catalog().Search(r.Context(), "")
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, ToolCallResponse{Error: "catalog unavailable"})
		return
	}
	writeJSON(w, http.StatusOK, CapabilityManifest{
		ServerName:   "path402-mcp-server",
		Version:      protocol.Version,
		Protocol:     protocol.Name,
		Capabilities: tools,
	})
}

func (g *Gateway) handleExecute(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	var req ToolCallRequest
	dec := json.NewDecoder(io.LimitReader(r.Body, maxRequestBytes))
	dec.UseNumber()
	if err := dec.Decode(&req); err != nil || req.Method == "" {
		writeJSON(w, http.StatusBadRequest, ToolCallResponse{Error: "invalid request body"})
		return
	}

	caller := firewall.Caller{AgentID: req.AgentID, SessionID: req.SessionID}
	if caller.AgentID == "" {
		caller.AgentID = r.Header.Get(HeaderAgent)
	}

	res, err := g.server.Call(r.Context(), caller, req.Method, req.Params)
	if err == nil {
		writeJSON(w, http.StatusOK, ToolCallResponse{Result: res})
		return
	}

	var blocked *firewall.BlockedError
	if errors.As(err, &blocked) {
		status := http.StatusBadRequest
		if !g.server.firewall.Allowed(req.Method) {
			status = http.StatusNotFound
		}
		writeJSON(w, status, ToolCallResponse{Error: blocked.Error(), Kind: "Blocked"})
		return
	}

	// Tool failures are results, so the calling agent reads the reason.
	failed := ErrorResult(req.Method, err)
	writeJSON(w, http.StatusOK, ToolCallResponse{
		Result: failed,
		Error:  failed.Text,
		Kind:   string(domain.KindOf(err)),
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
