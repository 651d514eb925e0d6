package mcp

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gowebpki/jcs"
)

// Catalog lists the tools a gateway advertises.
type Catalog interface {
	Search(ctx context.Context, query string) ([]ToolRef, error)
	Register(ctx context.Context, ref ToolRef) error
}

// ToolRef is one entry of the capability manifest.
type ToolRef struct {
	Name        string          `json:"name"`
	Title       string          `json:"title,omitempty"`
	Description string          `json:"description"`
	Schema      json.RawMessage `json:"inputSchema,omitempty"`
}

var errUnnamedTool = errors.New("tool name is required")

func (r ToolRef) Validate() error {
	if strings.TrimSpace(r.Name) == "" {
		return errUnnamedTool
	}
	if len(r.Schema) > 0 && !json.Valid(r.Schema) {
		return fmt.Errorf("tool %s: input schema is not JSON", r.Name)
	}
	return nil
}

func (r ToolRef) matches(terms []string) bool {
	haystack := strings.ToLower(r.Name + " " + r.Title + " " + r.Description)
	for _, t := range terms {
		if !strings.Contains(haystack, t) {
			return false
		}
	}
	return true
}

// ToolCatalog keeps tools in registration order. Registering a name twice
// replaces the earlier entry in place.
type ToolCatalog struct {
	mu    sync.RWMutex
	order []string
	refs  map[string]ToolRef
	now   func() time.Time
}

func NewToolCatalog() *ToolCatalog {
	return &ToolCatalog{refs: map[string]ToolRef{}, now: time.Now}
}

func (c *ToolCatalog) Register(_ context.Context, ref ToolRef) error {
	if err := ref.Validate(); err != nil {
		return fmt.Errorf("mcp: register: %w", err)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, seen := c.refs[ref.Name]; !seen {
		c.order = append(c.order, ref.Name)
	}
	c.refs[ref.Name] = ref
	return nil
}

// Search returns tools whose name, title or description contain every
// whitespace separated term of query, ignoring case. An empty query lists
// the whole catalog.
func (c *ToolCatalog) Search(_ context.Context, query string) ([]ToolRef, error) {
	terms := strings.Fields(strings.ToLower(query))
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]ToolRef, 0, len(c.order))
	for _, name := range c.order {
		if ref := c.refs[name]; ref.matches(terms) {
			out = append(out, ref)
		}
	}
	return out, nil
}

// CallRecord identifies one completed tool call. Arguments and results are
// kept only as digests of their canonical JSON so wallet contents never
// reach the log.
type CallRecord struct {
	ID           string    `json:"id"`
	Tool         string    `json:"tool"`
	AgentID      string    `json:"agent_id"`
	InputDigest  string    `json:"input_digest"`
	OutputDigest string    `json:"output_digest"`
	At           time.Time `json:"at"`
}

// Record digests a finished call.
func (c *ToolCatalog) Record(tool, agentID string, args map[string]any, result any) (CallRecord, error) {
	in, err := digest(args)
	if err != nil {
		return CallRecord{}, fmt.Errorf("mcp: digest %s arguments: %w", tool, err)
	}
	out, err := digest(result)
	if err != nil {
		return CallRecord{}, fmt.Errorf("mcp: digest %s result: %w", tool, err)
	}
	return CallRecord{
		ID:           uuid.NewString(),
		Tool:         tool,
		AgentID:      agentID,
		InputDigest:  in,
		OutputDigest: out,
		At:           c.now().UTC(),
	}, nil
}

func digest(v any) (string, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	canonical, err := jcs.Transform(raw)
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(canonical)
	return "sha256:" + hex.EncodeToString(sum[:]), nil
}
