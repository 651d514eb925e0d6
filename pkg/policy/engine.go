// Package policy evaluates per-agent acquisition rules written in CEL.
package policy

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/cel-go/cel"
)

// Input is what an acquisition rule can see, exposed to CEL as "input".
type Input struct {
	AgentID     string
	Address     string
	Price       int64
	Supply      int64
	Balance     int64
	Ceiling     int64
	IssuerShare float64
}

func (in Input) activation() map[string]interface{} {
	return map[string]interface{}{
		"input": map[string]interface{}{
			"agent":        in.AgentID,
			"address":      in.Address,
			"price":        in.Price,
			"supply":       in.Supply,
			"balance":      in.Balance,
			"ceiling":      in.Ceiling,
			"issuer_share": in.IssuerShare,
		},
	}
}

// Guard decides whether an otherwise affordable acquisition may proceed.
type Guard interface {
	Permit(ctx context.Context, in Input) (bool, error)
}

// Engine compiles and caches CEL programs.
type Engine struct {
	env      *cel.Env
	prgCache map[string]cel.Program
	mu       sync.RWMutex
}

func NewEngine() (*Engine, error) {
	env, err := cel.NewEnv(
		cel.Variable("input", cel.MapType(cel.StringType, cel.DynType)),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create CEL env: %w", err)
	}
	return &Engine{
		env:      env,
		prgCache: make(map[string]cel.Program),
	}, nil
}

// Compile checks expression and caches its program.
func (e *Engine) Compile(expression string) error {
	_, err := e.program(expression)
	return err
}

func (e *Engine) program(expression string) (cel.Program, error) {
	e.mu.RLock()
	prg, hit := e.prgCache[expression]
	e.mu.RUnlock()
	if hit {
		return prg, nil
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if prg, hit = e.prgCache[expression]; hit {
		return prg, nil
	}
	ast, issues := e.env.Compile(expression)
	if issues != nil && issues.Err() != nil {
		return nil, fmt.Errorf("CEL compile error: %w", issues.Err())
	}
	if !ast.OutputType().IsExactType(cel.BoolType) && !ast.OutputType().IsExactType(cel.DynType) {
		return nil, fmt.Errorf("CEL expression must return bool, got %s", ast.OutputType())
	}
	p, err := e.env.Program(ast)
	if err != nil {
		return nil, fmt.Errorf("CEL program error: %w", err)
	}
	e.prgCache[expression] = p
	return p, nil
}

// Evaluate runs expression against in.
func (e *Engine) Evaluate(ctx context.Context, expression string, in Input) (bool, error) {
	prg, err := e.program(expression)
	if err != nil {
		return false, err
	}
	out, _, err := prg.ContextEval(ctx, in.activation())
	if err != nil {
		return false, fmt.Errorf("CEL eval error: %w", err)
	}
	allowed, ok := out.Value().(bool)
	if !ok {
		return false, fmt.Errorf("result not boolean")
	}
	return allowed, nil
}

// Rule binds one expression to an Engine.
type Rule struct {
	engine     *Engine
	Expression string
}

// Rule compiles expression and returns it as a Guard.
func (e *Engine) Rule(expression string) (*Rule, error) {
	if err := e.Compile(expression); err != nil {
		return nil, err
	}
	return &Rule{engine: e, Expression: expression}, nil
}

// Permit implements Guard.
func (r *Rule) Permit(ctx context.Context, in Input) (bool, error) {
	return r.engine.Evaluate(ctx, r.Expression, in)
}

// Rules selects a Rule by the acquiring agent. Agents without a rule are
// permitted.
type Rules struct {
	mu    sync.RWMutex
	rules map[string]*Rule
}

func NewRules() *Rules {
	return &Rules{rules: make(map[string]*Rule)}
}

// Set installs r for agentID. A nil r removes the agent's rule.
func (rs *Rules) Set(agentID string, r *Rule) {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	if r == nil {
		delete(rs.rules, agentID)
		return
	}
	rs.rules[agentID] = r
}

// Permit implements Guard.
func (rs *Rules) Permit(ctx context.Context, in Input) (bool, error) {
	rs.mu.RLock()
	r, ok := rs.rules[in.AgentID]
	rs.mu.RUnlock()
	if !ok {
		return true, nil
	}
	return r.Permit(ctx, in)
}
