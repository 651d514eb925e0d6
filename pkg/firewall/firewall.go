// Package firewall gates tool calls behind an allowlist and per-tool JSON
// Schema validation of their parameters.
package firewall

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// Dispatcher executes the actual tool logic.
type Dispatcher interface {
	Dispatch(ctx context.Context, caller Caller, toolName string, params map[string]any) (any, error)
}

// DispatcherFunc adapts a function to Dispatcher.
type DispatcherFunc func(ctx context.Context, caller Caller, toolName string, params map[string]any) (any, error)

func (f DispatcherFunc) Dispatch(ctx context.Context, caller Caller, toolName string, params map[string]any) (any, error) {
	return f(ctx, caller, toolName, params)
}

// Caller identifies who is invoking a tool.
type Caller struct {
	AgentID   string
	SessionID string
}

// BlockedError reports a call the firewall refused before dispatch.
type BlockedError struct {
	Tool   string
	Reason string
	Err    error
}

func (e *BlockedError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("firewall blocked tool %q: %s: %v", e.Tool, e.Reason, e.Err)
	}
	return fmt.Sprintf("firewall blocked tool %q: %s", e.Tool, e.Reason)
}

func (e *BlockedError) Unwrap() error { return e.Err }

// PolicyFirewall dispatches only allowlisted tools, and only with
// parameters that satisfy the tool's schema. A tool present in rules with a
// nil schema is allowed without parameter checks.
type PolicyFirewall struct {
	mu    sync.RWMutex
	rules map[string]*jsonschema.Schema
	next  Dispatcher
	log   *slog.Logger
}

func NewPolicyFirewall(next Dispatcher) *PolicyFirewall {
	return &PolicyFirewall{
		rules: map[string]*jsonschema.Schema{},
		next:  next,
		log:   slog.Default().With("component", "firewall"),
	}
}

func compileSchema(tool, src string) (*jsonschema.Schema, error) {
	if src == "" {
		return nil, nil
	}
	c := jsonschema.NewCompiler()
	c.Draft = jsonschema.Draft2020
	url := "mem://path402/tools/" + tool + ".json"
	if err := c.AddResource(url, strings.NewReader(src)); err != nil {
		return nil, fmt.Errorf("firewall: %s schema: %w", tool, err)
	}
	schema, err := c.Compile(url)
	if err != nil {
		return nil, fmt.Errorf("firewall: %s schema: %w", tool, err)
	}
	return schema, nil
}

// AllowTool allowlists name, replacing any earlier schema. A schema that
// does not compile leaves the allowlist untouched.
func (f *PolicyFirewall) AllowTool(name string, schema string) error {
	compiled, err := compileSchema(name, schema)
	if err != nil {
		return err
	}
	f.mu.Lock()
	f.rules[name] = compiled
	f.mu.Unlock()
	return nil
}

func (f *PolicyFirewall) Allowed(name string) bool {
	f.mu.RLock()
	defer f.mu.RUnlock()
	_, ok := f.rules[name]
	return ok
}

// CallTool checks the allowlist and schema, then hands the call to the
// dispatcher. Without a dispatcher every call fails.
func (f *PolicyFirewall) CallTool(ctx context.Context, caller Caller, toolName string, params map[string]any) (any, error) {
	f.mu.RLock()
	schema, allowed := f.rules[toolName]
	f.mu.RUnlock()

	switch {
	case !allowed:
		return nil, f.refuse(ctx, caller, toolName, "not in allowlist", nil)
	case schema == nil:
	case params == nil:
		return nil, f.refuse(ctx, caller, toolName, "missing parameters", nil)
	default:
		doc, err := asJSON(params)
		if err == nil {
			err = schema.Validate(doc)
		}
		if err != nil {
			return nil, f.refuse(ctx, caller, toolName, "schema validation failed", err)
		}
	}

	if f.next == nil {
		return nil, fmt.Errorf("firewall: no dispatcher for %s", toolName)
	}
	return f.next.Dispatch(ctx, caller, toolName, params)
}

// asJSON gives the validator the value a JSON decoder would produce, so
// Go ints and float64s from different callers validate the same way.
func asJSON(params map[string]any) (any, error) {
	raw, err := json.Marshal(params)
	if err != nil {
		return nil, err
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var doc any
	if err := dec.Decode(&doc); err != nil {
		return nil, err
	}
	return doc, nil
}

func (f *PolicyFirewall) refuse(ctx context.Context, caller Caller, tool, reason string, cause error) error {
	f.log.WarnContext(ctx, "tool call blocked", "tool", tool, "agent_id", caller.AgentID, "reason", reason)
	return &BlockedError{Tool: tool, Reason: reason, Err: cause}
}
