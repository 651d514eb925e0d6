package firewall

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var echo = DispatcherFunc(func(_ context.Context, caller Caller, toolName string, params map[string]any) (any, error) {
	return map[string]any{"tool": toolName, "agent": caller.AgentID, "params": params}, nil
})

const discoverSchema = `{
	"type": "object",
	"properties": {
		"address": {"type": "string", "minLength": 1},
		"max_price": {"type": "integer", "minimum": 0}
	},
	"required": ["address"],
	"additionalProperties": false
}`

func TestPolicyFirewall_BlockUnknown(t *testing.T) {
	fw := NewPolicyFirewall(echo)
	require.NoError(t, fw.AllowTool("path402_wallet", ""))

	_, err := fw.CallTool(context.Background(), Caller{}, "path402_drain", nil)
	var blocked *BlockedError
	require.True(t, errors.As(err, &blocked))
	assert.Equal(t, "not in allowlist", blocked.Reason)
	assert.False(t, fw.Allowed("path402_drain"))
}

func TestPolicyFirewall_AllowKnown(t *testing.T) {
	fw := NewPolicyFirewall(echo)
	require.NoError(t, fw.AllowTool("path402_discover", discoverSchema))

	res, err := fw.CallTool(context.Background(), Caller{AgentID: "agent-1"}, "path402_discover", map[string]any{"address": "$example.com"})
	require.NoError(t, err)
	out := res.(map[string]any)
	assert.Equal(t, "path402_discover", out["tool"])
	assert.Equal(t, "agent-1", out["agent"])
}

func TestPolicyFirewall_NilDispatcher(t *testing.T) {
	fw := NewPolicyFirewall(nil)
	require.NoError(t, fw.AllowTool("tool", ""))
	_, err := fw.CallTool(context.Background(), Caller{}, "tool", nil)
	assert.Error(t, err)
}

func TestPolicyFirewall_SchemaRejects(t *testing.T) {
	fw := NewPolicyFirewall(echo)
	require.NoError(t, fw.AllowTool("path402_discover", discoverSchema))

	cases := map[string]map[string]any{
		"missing params":   nil,
		"missing address":  {"max_price": 10},
		"empty address":    {"address": ""},
		"wrong type":       {"address": 402},
		"negative price":   {"address": "$a.com", "max_price": -1},
		"unknown property": {"address": "$a.com", "drain": true},
	}
	for name, params := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := fw.CallTool(context.Background(), Caller{}, "path402_discover", params)
			var blocked *BlockedError
			assert.True(t, errors.As(err, &blocked), "got %v", err)
		})
	}
}

func TestPolicyFirewall_SchemaCompileError(t *testing.T) {
	fw := NewPolicyFirewall(echo)
	assert.Error(t, fw.AllowTool("bad_json", `{not valid json`))
	assert.False(t, fw.Allowed("bad_json"))
}

func TestPolicyFirewall_ReplaceSchema(t *testing.T) {
	fw := NewPolicyFirewall(echo)
	require.NoError(t, fw.AllowTool("tool", `{"type":"object","required":["x"]}`))
	_, err := fw.CallTool(context.Background(), Caller{}, "tool", map[string]any{})
	assert.Error(t, err)

	require.NoError(t, fw.AllowTool("tool", ""))
	_, err = fw.CallTool(context.Background(), Caller{}, "tool", map[string]any{})
	assert.NoError(t, err)
}

func TestPolicyFirewall_ConcurrentAccess(t *testing.T) {
	fw := NewPolicyFirewall(echo)
	require.NoError(t, fw.AllowTool("concurrent_tool", ""))

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			_, _ = fw.CallTool(context.Background(), Caller{AgentID: "agent-1"}, "concurrent_tool", map[string]any{"i": 1})
		}()
		go func() {
			defer wg.Done()
			_ = fw.AllowTool("other_tool", "")
		}()
	}
	wg.Wait()
}
