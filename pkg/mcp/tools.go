package mcp

import (
	"context"
	"encoding/json"

	"github.com/b0ase/path402/pkg/domain"
	"github.com/b0ase/path402/pkg/engine"
	"github.com/b0ase/path402/pkg/protocol"
)

// Result is what a tool returns: a markdown rendering for the agent and the
// structured payload behind it.
type Result struct {
	Text    string `json:"text"`
	Data    any    `json:"structuredContent,omitempty"`
	IsError bool   `json:"isError,omitempty"`
}

type handler func(ctx context.Context, e *engine.Engine, agent string, p params) (*Result, error)

// Tool is one callable operation.
type Tool struct {
	Name        string
	Title       string
	Description string
	Schema      string
	handle      handler
}

// Ref returns the catalog entry for t.
func (t Tool) Ref() ToolRef {
	return ToolRef{Name: t.Name, Title: t.Title, Description: t.Description, Schema: json.RawMessage(t.Schema)}
}

const (
	urlSchema    = `{"type": "string", "minLength": 1, "maxLength": 2048}`
	formatSchema = `{"type": "string", "enum": ["markdown", "json"]}`
)

func object(required, properties string) string {
	return `{"$schema": "https://json-schema.org/draft/2020-12/schema", "type": "object", "required": [` + required +
		`], "properties": {` + properties + `}, "additionalProperties": false}`
}

// Tools lists every tool the gateway exposes.
func Tools() []Tool {
	return []Tool{
		{
			Name:        "path402_discover",
			Title:       "Discover $402 Content",
			Description: "Probe a $address to discover its $402 pricing terms, revenue model, current supply, and any nested $addresses below it.",
			Schema:      object(`"url"`, `"url": `+urlSchema),
			handle:      discoverTool,
		},
		{
			Name:        "path402_evaluate",
			Title:       "Evaluate Acquisition",
			Description: "Evaluate whether to acquire a $402 token. Checks budget, estimates ROI, and returns a recommendation.",
			Schema:      object(`"url"`, `"url": `+urlSchema+`, "max_price": {"type": "integer", "minimum": 0}`),
			handle:      evaluateTool,
		},
		{
			Name:        "path402_acquire",
			Title:       "Acquire $402 Token",
			Description: "Pay for and acquire a $402 token. This debits the agent's balance, stores the token with serving rights, and returns the gated content.",
			Schema:      object(`"url"`, `"url": `+urlSchema+`, "max_price": {"type": "integer", "minimum": 0}`),
			handle:      acquireTool,
		},
		{
			Name:        "path402_wallet",
			Title:       "Wallet Status",
			Description: "View the agent's $402 wallet: balance, tokens held, total spent and earned, and net position.",
			Schema:      object(``, `"response_format": `+formatSchema),
			handle:      walletTool,
		},
		{
			Name:        "path402_price_schedule",
			Title:       "Price Schedule",
			Description: "Show how the price of a $402 endpoint changes as supply grows.",
			Schema: object(`"url"`, `"url": `+urlSchema+
				`, "supply_points": {"type": "array", "items": {"type": "integer", "minimum": 0}, "maxItems": 100}`),
			handle: priceScheduleTool,
		},
		{
			Name:        "path402_set_budget",
			Title:       "Set Budget",
			Description: "Set or reset the agent's wallet balance. This discards held tokens and serve history.",
			Schema:      object(`"balance"`, `"balance": {"type": "integer", "minimum": 0}`),
			handle:      setBudgetTool,
		},
		{
			Name:        "path402_serve",
			Title:       "Serve Content",
			Description: "Serve content for a $address you hold a token for and earn revenue.",
			Schema:      object(`"url"`, `"url": `+urlSchema+`, "requester": {"type": "string", "maxLength": 256}`),
			handle:      serveTool,
		},
		{
			Name:        "path402_economics",
			Title:       "Token Economics",
			Description: "Breakeven analysis and ROI projections for buying a $402 token now.",
			Schema: object(`"url"`, `"url": `+urlSchema+
				`, "projected_supply": {"type": "integer", "minimum": 1}`+
				`, "serving_participation": {"type": "number", "exclusiveMinimum": 0, "maximum": 1}`),
			handle: economicsTool,
		},
		{
			Name:        "path402_batch_discover",
			Title:       "Batch Discover",
			Description: "Discover up to ten $addresses at once, cheapest first.",
			Schema:      object(`"urls"`, `"urls": {"type": "array", "items": `+urlSchema+`, "minItems": 1, "maxItems": 10}`),
			handle:      batchDiscoverTool,
		},
		{
			Name:        "path402_servable",
			Title:       "Servable Tokens",
			Description: "List all $addresses the agent can serve, with serve history and revenue earned per token.",
			Schema:      object(``, `"response_format": `+formatSchema),
			handle:      servableTool,
		},
		{
			Name:        "path402_redeliver",
			Title:       "Redeliver Content",
			Description: "Return the content of a token the agent already holds without paying again.",
			Schema:      object(`"url"`, `"url": `+urlSchema),
			handle:      redeliverTool,
		},
	}
}

type discoverOutput struct {
	Protocol string `json:"protocol"`
	*protocol.Terms
	AlreadyOwned bool `json:"alreadyOwned"`
}

func discoverTool(ctx context.Context, e *engine.Engine, agent string, p params) (*Result, error) {
	terms, err := e.Discover(ctx, p.String("url"))
	if err != nil {
		return nil, err
	}
	owned, err := e.Holds(ctx, agent, terms.Address)
	if err != nil {
		return nil, err
	}
	return &Result{Text: renderTerms(terms, owned), Data: discoverOutput{Protocol: protocol.Name, Terms: terms, AlreadyOwned: owned}}, nil
}

func evaluateTool(ctx context.Context, e *engine.Engine, agent string, p params) (*Result, error) {
	ceiling, err := p.Int("max_price")
	if err != nil {
		return nil, err
	}
	d, err := e.Evaluate(ctx, agent, p.String("url"), ceiling)
	if err != nil {
		return nil, err
	}
	return &Result{Text: renderDecision(d), Data: d}, nil
}

func acquireTool(ctx context.Context, e *engine.Engine, agent string, p params) (*Result, error) {
	ceiling, err := p.Int("max_price")
	if err != nil {
		return nil, err
	}
	res, err := e.Acquire(ctx, agent, p.String("url"), ceiling)
	if err != nil {
		return nil, err
	}
	return &Result{Text: renderAcquisition(res), Data: res}, nil
}

func walletTool(ctx context.Context, e *engine.Engine, agent string, p params) (*Result, error) {
	snap, err := e.Wallet(ctx, agent)
	if err != nil {
		return nil, err
	}
	if p.String("response_format") == "json" {
		return jsonResult(snap)
	}
	return &Result{Text: renderWallet(snap), Data: snap}, nil
}

func priceScheduleTool(ctx context.Context, e *engine.Engine, _ string, p params) (*Result, error) {
	points, err := p.Ints("supply_points")
	if err != nil {
		return nil, err
	}
	s, err := e.PriceSchedule(ctx, p.String("url"), points)
	if err != nil {
		return nil, err
	}
	return &Result{Text: renderSchedule(s), Data: s}, nil
}

func setBudgetTool(ctx context.Context, e *engine.Engine, agent string, p params) (*Result, error) {
	if _, ok := p["balance"]; !ok {
		return nil, domain.Errorf(domain.KindInvalidParameter, "mcp.set_budget", "balance is required")
	}
	balance, err := p.Int("balance")
	if err != nil {
		return nil, err
	}
	snap, err := e.SetBudget(ctx, agent, balance)
	if err != nil {
		return nil, err
	}
	return &Result{Text: renderReset(snap), Data: snap}, nil
}

func serveTool(ctx context.Context, e *engine.Engine, agent string, p params) (*Result, error) {
	requester := p.String("requester")
	if requester == "" {
		requester = "anonymous"
	}
	res, err := e.Serve(ctx, agent, p.String("url"), requester)
	if err != nil {
		return nil, err
	}
	return &Result{Text: renderServe(res), Data: res}, nil
}

func economicsTool(ctx context.Context, e *engine.Engine, _ string, p params) (*Result, error) {
	projected, err := p.Int("projected_supply")
	if err != nil {
		return nil, err
	}
	participation, err := p.Float("serving_participation")
	if err != nil {
		return nil, err
	}
	r, err := e.Economics(ctx, p.String("url"), projected, participation)
	if err != nil {
		return nil, err
	}
	return &Result{Text: renderEconomics(r), Data: r}, nil
}

func batchDiscoverTool(ctx context.Context, e *engine.Engine, _ string, p params) (*Result, error) {
	res, err := e.BatchDiscover(ctx, p.Strings("urls"))
	if err != nil {
		return nil, err
	}
	return &Result{Text: renderBatch(res), Data: res}, nil
}

func servableTool(ctx context.Context, e *engine.Engine, agent string, p params) (*Result, error) {
	tokens, err := e.Servable(ctx, agent)
	if err != nil {
		return nil, err
	}
	if p.String("response_format") == "json" {
		return jsonResult(tokens)
	}
	return &Result{Text: renderServable(tokens), Data: tokens}, nil
}

func redeliverTool(ctx context.Context, e *engine.Engine, agent string, p params) (*Result, error) {
	res, err := e.Redeliver(ctx, agent, p.String("url"))
	if err != nil {
		return nil, err
	}
	return &Result{Text: renderRedelivery(res), Data: res}, nil
}

func jsonResult(v any) (*Result, error) {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, err
	}
	return &Result{Text: string(b), Data: v}, nil
}
