package mcp

import (
	"encoding/json"
	"fmt"
	"math"

	"github.com/b0ase/path402/pkg/domain"
)

// params are decoded tool arguments. Numbers arrive as json.Number from the
// gateway and as float64 or ints from in-process callers.
type params map[string]any

func (p params) String(key string) string {
	s, _ := p[key].(string)
	return s
}

func (p params) Int(key string) (int64, error) {
	v, ok := p[key]
	if !ok || v == nil {
		return 0, nil
	}
	n, err := toInt64(v)
	if err != nil {
		return 0, domain.Errorf(domain.KindInvalidParameter, "mcp.params", "%s: %v", key, err)
	}
	return n, nil
}

func (p params) Float(key string) (float64, error) {
	switch v := p[key].(type) {
	case nil:
		return 0, nil
	case json.Number:
		f, err := v.Float64()
		if err != nil {
			return 0, domain.Errorf(domain.KindInvalidParameter, "mcp.params", "%s: %v", key, err)
		}
		return f, nil
	case float64:
		return v, nil
	case int:
		return float64(v), nil
	case int64:
		return float64(v), nil
	default:
		return 0, domain.Errorf(domain.KindInvalidParameter, "mcp.params", "%s: expected a number, got %T", key, v)
	}
}

func (p params) Strings(key string) []string {
	switch v := p[key].(type) {
	case []string:
		return v
	case []any:
		out := make([]string, 0, len(v))
		for _, s := range v {
			if str, ok := s.(string); ok {
				out = append(out, str)
			}
		}
		return out
	}
	return nil
}

func (p params) Ints(key string) ([]int64, error) {
	var raw []any
	switch v := p[key].(type) {
	case nil:
		return nil, nil
	case []int64:
		return v, nil
	case []any:
		raw = v
	default:
		return nil, domain.Errorf(domain.KindInvalidParameter, "mcp.params", "%s: expected an array, got %T", key, v)
	}
	out := make([]int64, 0, len(raw))
	for _, x := range raw {
		n, err := toInt64(x)
		if err != nil {
			return nil, domain.Errorf(domain.KindInvalidParameter, "mcp.params", "%s: %v", key, err)
		}
		out = append(out, n)
	}
	return out, nil
}

func toInt64(v any) (int64, error) {
	switch n := v.(type) {
	case json.Number:
		return n.Int64()
	case float64:
		if n != math.Trunc(n) || math.Abs(n) > 1<<53 {
			return 0, fmt.Errorf("%v is not an integer", n)
		}
		return int64(n), nil
	case int:
		return int64(n), nil
	case int64:
		return n, nil
	default:
		return 0, fmt.Errorf("expected an integer, got %T", v)
	}
}
