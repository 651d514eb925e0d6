// Package engine is the process-wide entry point of the $402 client. It owns
// the wallet registry and wires discovery, evaluation, acquisition, serving
// and economics behind one method per tool.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/b0ase/path402/pkg/acquisition"
	"github.com/b0ase/path402/pkg/artifacts"
	"github.com/b0ase/path402/pkg/budget"
	"github.com/b0ase/path402/pkg/config"
	"github.com/b0ase/path402/pkg/domain"
	"github.com/b0ase/path402/pkg/economics"
	"github.com/b0ase/path402/pkg/ledger"
	"github.com/b0ase/path402/pkg/observability"
	"github.com/b0ase/path402/pkg/policy"
	"github.com/b0ase/path402/pkg/proof"
	"github.com/b0ase/path402/pkg/serving"
	"github.com/b0ase/path402/pkg/store"
	"github.com/b0ase/path402/pkg/wallet"
)

// Defaults applied when a caller leaves a parameter unset.
const (
	DefaultCeiling        int64 = 10000
	DefaultInitialBalance int64 = 100000
	DefaultAgent                = "default"
)

// DefaultSchedulePoints are the supplies priced by PriceSchedule when the
// caller names none.
var DefaultSchedulePoints = []int64{1, 5, 10, 50, 100, 500, 1000}

// Engine serves every agent of one process.
type Engine struct {
	orchestrator *acquisition.Orchestrator
	evaluator    *budget.Evaluator
	distributor  *serving.Distributor
	registry     *wallet.Registry
	book         *ledger.Book
	wallets      store.WalletStore
	content      artifacts.Store
	policies     *config.PolicyFile
	rules        *policy.Rules
	metrics      *observability.Metrics
	telemetry    *observability.Provider

	defaultAgent   string
	initialBalance int64
	ceiling        int64
	participation  float64

	loadMu sync.Mutex
	saveMu sync.Map // agent ID -> *sync.Mutex
	logger *slog.Logger
}

// Option configures an Engine.
type Option func(*options)

type options struct {
	settlement     serving.Settlement
	wallets        store.WalletStore
	content        artifacts.Store
	signer         *proof.Signer
	policies       *config.PolicyFile
	metrics        *observability.Metrics
	telemetry      *observability.Provider
	defaultAgent   string
	initialBalance int64
	ceiling        int64
	participation  float64
}

// WithSettlement prices serves. The default is a fixed 0 sats per serve.
func WithSettlement(s serving.Settlement) Option {
	return func(o *options) { o.settlement = s }
}

// WithWalletStore persists wallets after every mutation.
func WithWalletStore(s store.WalletStore) Option {
	return func(o *options) { o.wallets = s }
}

// WithContentStore keeps delivered content for redelivery.
func WithContentStore(s artifacts.Store) Option {
	return func(o *options) { o.content = s }
}

// WithSigner issues payment proofs. The default signs with a random seed.
func WithSigner(s *proof.Signer) Option {
	return func(o *options) { o.signer = s }
}

// WithPolicies applies per-agent balances, ceilings and CEL rules.
func WithPolicies(pf *config.PolicyFile) Option {
	return func(o *options) { o.policies = pf }
}

// WithMetrics records business metrics into m.
func WithMetrics(m *observability.Metrics) Option {
	return func(o *options) { o.metrics = m }
}

// WithTelemetry traces every operation through p.
func WithTelemetry(p *observability.Provider) Option {
	return func(o *options) { o.telemetry = p }
}

// WithDefaults overrides the process defaults. Zero values keep the
// built-in defaults.
func WithDefaults(agent string, initialBalance, ceiling int64, participation float64) Option {
	return func(o *options) {
		if agent != "" {
			o.defaultAgent = agent
		}
		if initialBalance > 0 {
			o.initialBalance = initialBalance
		}
		if ceiling > 0 {
			o.ceiling = ceiling
		}
		if participation > 0 {
			o.participation = participation
		}
	}
}

// FromConfig maps the process configuration onto engine options.
func FromConfig(cfg *config.Config) Option {
	return WithDefaults(cfg.Agent, cfg.InitialBalance, cfg.DefaultCeiling, cfg.Participation)
}

// New wires an Engine around a discovery source and a content source.
func New(ctx context.Context, d acquisition.Discoverer, f acquisition.ContentFetcher, opts ...Option) (*Engine, error) {
	if d == nil || f == nil {
		return nil, fmt.Errorf("engine: discoverer and content fetcher are required")
	}
	o := options{
		settlement:     serving.FixedSettlement(0),
		defaultAgent:   DefaultAgent,
		initialBalance: DefaultInitialBalance,
		ceiling:        DefaultCeiling,
		participation:  economics.DefaultParticipation,
	}
	for _, opt := range opts {
		opt(&o)
	}

	if o.signer == nil {
		s, err := proof.NewSigner(nil)
		if err != nil {
			return nil, fmt.Errorf("engine: proof signer: %w", err)
		}
		o.signer = s
	}
	if o.content == nil {
		o.content = artifacts.NewMemoryStore()
	}
	if o.metrics == nil {
		o.metrics = observability.NewMetrics()
	}
	if o.telemetry == nil {
		p, err := observability.New(ctx, nil)
		if err != nil {
			return nil, fmt.Errorf("engine: telemetry: %w", err)
		}
		o.telemetry = p
	}

	rules, err := compileRules(o.policies)
	if err != nil {
		return nil, err
	}

	e := &Engine{
		book:           ledger.NewBook(),
		wallets:        o.wallets,
		content:        o.content,
		policies:       o.policies,
		rules:          rules,
		metrics:        o.metrics,
		telemetry:      o.telemetry,
		defaultAgent:   o.defaultAgent,
		initialBalance: o.initialBalance,
		ceiling:        o.ceiling,
		participation:  o.participation,
		logger:         slog.Default().With("component", "engine"),
	}
	e.registry = wallet.NewRegistry(func(agent string) int64 {
		return e.policies.InitialBalance(agent, e.initialBalance)
	}, e.book.Record)
	e.evaluator = budget.NewEvaluator(rules)
	e.evaluator.Participation = o.participation
	e.orchestrator = acquisition.NewOrchestrator(d, f, e.evaluator, o.signer, o.content)
	e.distributor = serving.NewDistributor(o.settlement)
	return e, nil
}

func compileRules(pf *config.PolicyFile) (*policy.Rules, error) {
	rules := policy.NewRules()
	if pf == nil {
		return rules, nil
	}
	cel, err := policy.NewEngine()
	if err != nil {
		return nil, fmt.Errorf("engine: %w", err)
	}
	for _, agent := range pf.AgentIDs() {
		ap, _ := pf.For(agent)
		if ap.Policy == "" {
			continue
		}
		r, err := cel.Rule(ap.Policy)
		if err != nil {
			return nil, fmt.Errorf("engine: policy for agent %q: %w", agent, err)
		}
		rules.Set(agent, r)
	}
	return rules, nil
}

// Metrics exposes the engine's Prometheus metrics.
func (e *Engine) Metrics() *observability.Metrics { return e.metrics }

// Telemetry exposes the tracing provider.
func (e *Engine) Telemetry() *observability.Provider { return e.telemetry }

// DefaultAgent is the agent used when a caller names none.
func (e *Engine) DefaultAgent() string { return e.defaultAgent }

func (e *Engine) agentOrDefault(agent string) string {
	if agent == "" {
		return e.defaultAgent
	}
	return agent
}

func (e *Engine) ceilingFor(agent string, ceiling int64) int64 {
	if ceiling != 0 {
		return ceiling
	}
	return e.policies.Ceiling(agent, e.ceiling)
}

// wallet returns the agent's wallet, loading it from the store on first use.
func (e *Engine) wallet(ctx context.Context, agent string) (*wallet.Wallet, error) {
	if w, ok := e.registry.Lookup(agent); ok {
		return w, nil
	}
	if e.wallets == nil {
		return e.registry.Get(agent)
	}

	e.loadMu.Lock()
	defer e.loadMu.Unlock()
	if w, ok := e.registry.Lookup(agent); ok {
		return w, nil
	}
	st, err := e.wallets.Load(ctx, agent)
	if errors.Is(err, store.ErrNotFound) {
		w, err := e.registry.Get(agent)
		if err != nil {
			return nil, err
		}
		e.persist(ctx, w)
		return w, nil
	}
	if err != nil {
		return nil, fmt.Errorf("engine: load wallet %q: %w", agent, err)
	}
	w, err := wallet.Restore(*st)
	if err != nil {
		return nil, fmt.Errorf("engine: restore wallet %q: %w", agent, err)
	}
	e.logger.InfoContext(ctx, "wallet loaded", "agent_id", agent, "balance", w.Balance())
	return e.registry.Put(w), nil
}

// persist writes w through to the store. Failures are logged; the in-memory
// wallet stays authoritative.
//
// Saves of one wallet are serialized and the state is captured under the
// same lock, so a later save never carries an older state than the one
// before it.
func (e *Engine) persist(ctx context.Context, w *wallet.Wallet) {
	if e.wallets == nil {
		return
	}
	mu, _ := e.saveMu.LoadOrStore(w.ID(), new(sync.Mutex))
	mu.(*sync.Mutex).Lock()
	defer mu.(*sync.Mutex).Unlock()
	if err := e.wallets.Save(ctx, w.ID(), w.State()); err != nil {
		e.logger.ErrorContext(ctx, "wallet save failed", "agent_id", w.ID(), "error", err)
	}
}

// Agents lists every agent known in memory or in the store.
func (e *Engine) Agents(ctx context.Context) ([]string, error) {
	seen := make(map[string]bool)
	for _, a := range e.registry.Agents() {
		seen[a] = true
	}
	if e.wallets != nil {
		stored, err := e.wallets.Agents(ctx)
		if err != nil {
			return nil, fmt.Errorf("engine: list agents: %w", err)
		}
		for _, a := range stored {
			seen[a] = true
		}
	}
	out := make([]string, 0, len(seen))
	for a := range seen {
		out = append(out, a)
	}
	sort.Strings(out)
	return out, nil
}

func invalid(op, format string, args ...any) error {
	return domain.Errorf(domain.KindInvalidParameter, op, format, args...)
}
