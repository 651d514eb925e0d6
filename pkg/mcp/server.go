package mcp

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/b0ase/path402/pkg/acquisition"
	"github.com/b0ase/path402/pkg/domain"
	"github.com/b0ase/path402/pkg/engine"
	"github.com/b0ase/path402/pkg/firewall"
	"github.com/b0ase/path402/pkg/observability"
)

// Server executes tool calls against an Engine. Every call passes the
// firewall, which checks the allowlist and validates arguments, before it
// reaches a handler.
type Server struct {
	engine   *engine.Engine
	tools    map[string]Tool
	catalog  *ToolCatalog
	firewall *firewall.PolicyFirewall
	metrics  *observability.Metrics
	logger   *slog.Logger
}

// NewServer registers every tool in Tools.
func NewServer(e *engine.Engine) (*Server, error) {
	s := &Server{
		engine:  e,
		tools:   make(map[string]Tool),
		catalog: NewToolCatalog(),
		metrics: e.Metrics(),
		logger:  slog.Default().With("component", "mcp"),
	}
	s.firewall = firewall.NewPolicyFirewall(firewall.DispatcherFunc(s.dispatch))

	ctx := context.Background()
	for _, t := range Tools() {
		if err := s.catalog.Register(ctx, t.Ref()); err != nil {
			return nil, err
		}
		if err := s.firewall.AllowTool(t.Name, t.Schema); err != nil {
			return nil, fmt.Errorf("mcp: tool %s: %w", t.Name, err)
		}
		s.tools[t.Name] = t
	}
	return s, nil
}

// Catalog exposes the registered tools.
func (s *Server) Catalog() Catalog { return s.catalog }

// Call runs tool for caller. Firewall refusals are returned as
// *firewall.BlockedError; engine failures keep their domain kind.
func (s *Server) Call(ctx context.Context, caller firewall.Caller, tool string, args map[string]any) (*Result, error) {
	if args == nil {
		args = map[string]any{}
	}
	out, err := s.firewall.CallTool(ctx, caller, tool, args)
	s.metrics.RecordToolCall(tool, err == nil)
	if err != nil {
		var blocked *firewall.BlockedError
		if !errors.As(err, &blocked) {
			s.logger.InfoContext(ctx, "tool call failed",
				"tool", tool, "agent_id", caller.AgentID, "session_id", caller.SessionID, "error", err)
		}
		return nil, err
	}
	res, _ := out.(*Result)

	rec, recErr := s.catalog.Record(tool, caller.AgentID, args, res)
	if recErr != nil {
		s.logger.ErrorContext(ctx, "tool call not recorded", "tool", tool, "error", recErr)
	} else {
		s.logger.InfoContext(ctx, "tool call",
			"call_id", rec.ID, "tool", tool, "agent_id", caller.AgentID, "session_id", caller.SessionID,
			"input_digest", rec.InputDigest)
	}
	return res, nil
}

func (s *Server) dispatch(ctx context.Context, caller firewall.Caller, tool string, args map[string]any) (any, error) {
	t, ok := s.tools[tool]
	if !ok {
		return nil, fmt.Errorf("mcp: tool %q has no handler", tool)
	}
	ctx, done := s.engine.Telemetry().TrackOperation(ctx, "mcp."+tool, observability.AttrTool.String(tool))
	res, err := t.handle(ctx, s.engine, caller.AgentID, params(args))
	done(err)
	return res, err
}

// ErrorResult renders err the way a tool result reports failure, so agents
// see the reason and the recovery path.
func ErrorResult(tool string, err error) *Result {
	var derr *acquisition.DeliveryError
	if errors.As(err, &derr) {
		return &Result{
			Text: fmt.Sprintf("Paid %d SAT for %s but content delivery failed: %v. The token is held; call path402_redeliver to retry.",
				derr.Charged, derr.Address, derr.Err),
			Data:    derr,
			IsError: true,
		}
	}
	msg := "internal error"
	if k := domain.KindOf(err); k != "" {
		msg = err.Error()
	}
	return &Result{Text: fmt.Sprintf("%s failed: %s", tool, msg), IsError: true}
}
