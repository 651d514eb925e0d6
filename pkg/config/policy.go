package config

import (
	"fmt"
	"os"
	"sort"

	"gopkg.in/yaml.v3"
)

// AgentPolicy overrides engine defaults for one agent.
type AgentPolicy struct {
	InitialBalance *int64   `yaml:"initial_balance,omitempty" json:"initial_balance,omitempty"`
	Ceiling        *int64   `yaml:"ceiling,omitempty" json:"ceiling,omitempty"`
	Participation  *float64 `yaml:"participation,omitempty" json:"participation,omitempty"`
	// Policy is a CEL expression over input.{address, price, supply,
	// balance, ceiling, issuer_share} that must hold before acquiring.
	Policy string `yaml:"policy,omitempty" json:"policy,omitempty"`
}

// PolicyFile is the YAML document named by PATH402_POLICY_FILE.
type PolicyFile struct {
	Agents map[string]AgentPolicy `yaml:"agents" json:"agents"`
}

// LoadPolicy reads and validates a policy file.
func LoadPolicy(path string) (*PolicyFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("load policy %q: %w", path, err)
	}
	var pf PolicyFile
	if err := yaml.Unmarshal(data, &pf); err != nil {
		return nil, fmt.Errorf("parse policy %q: %w", path, err)
	}
	if pf.Agents == nil {
		pf.Agents = map[string]AgentPolicy{}
	}
	for _, id := range pf.AgentIDs() {
		if err := pf.Agents[id].validate(); err != nil {
			return nil, fmt.Errorf("policy %q agent %q: %w", path, id, err)
		}
	}
	return &pf, nil
}

func (p AgentPolicy) validate() error {
	if p.InitialBalance != nil && *p.InitialBalance < 0 {
		return fmt.Errorf("initial_balance must be >= 0")
	}
	if p.Ceiling != nil && *p.Ceiling < 0 {
		return fmt.Errorf("ceiling must be >= 0")
	}
	if p.Participation != nil && (*p.Participation <= 0 || *p.Participation > 1) {
		return fmt.Errorf("participation must be in (0,1]")
	}
	return nil
}

// AgentIDs lists configured agents in sorted order.
func (p *PolicyFile) AgentIDs() []string {
	ids := make([]string, 0, len(p.Agents))
	for id := range p.Agents {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// For returns the agent's policy, if any. A nil file has none.
func (p *PolicyFile) For(agentID string) (AgentPolicy, bool) {
	if p == nil {
		return AgentPolicy{}, false
	}
	ap, ok := p.Agents[agentID]
	return ap, ok
}

// InitialBalance resolves the agent's starting balance against def.
func (p *PolicyFile) InitialBalance(agentID string, def int64) int64 {
	if ap, ok := p.For(agentID); ok && ap.InitialBalance != nil {
		return *ap.InitialBalance
	}
	return def
}

// Ceiling resolves the agent's default price ceiling against def.
func (p *PolicyFile) Ceiling(agentID string, def int64) int64 {
	if ap, ok := p.For(agentID); ok && ap.Ceiling != nil {
		return *ap.Ceiling
	}
	return def
}

// Participation resolves the agent's assumed serving participation against def.
func (p *PolicyFile) Participation(agentID string, def float64) float64 {
	if ap, ok := p.For(agentID); ok && ap.Participation != nil {
		return *ap.Participation
	}
	return def
}
