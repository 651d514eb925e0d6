package pricing

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sync"

	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"

	"github.com/b0ase/path402/pkg/domain"
)

// WASMExport is the function a custom curve module must export:
// price(supply i64) -> i64.
const WASMExport = "price"

const (
	wasmMemoryPages   = 16 // 1 MiB
	wasmSamplePoints  = 64
	wasmOpenHorizon   = int64(1) << 20
	wasmCacheCapacity = 32
)

// wasmCurve runs a custom curve in a wazero runtime with no host imports:
// no WASI, no filesystem, no network, no clock.
type wasmCurve struct {
	mu       sync.Mutex
	runtime  wazero.Runtime
	fn       api.Function
	capacity *int64
}

var (
	wasmCacheMu sync.Mutex
	wasmCache   = map[string]*wasmCurve{}
)

func newWASMCurve(m Model) (Curve, error) {
	if len(m.Module) == 0 {
		return nil, domain.Errorf(domain.KindInvalidModel, "pricing.New", "wasm curve requires a module")
	}
	key := wasmCacheKey(m)

	wasmCacheMu.Lock()
	defer wasmCacheMu.Unlock()
	if c, ok := wasmCache[key]; ok {
		return c, nil
	}

	c, err := compileWASMCurve(context.Background(), m)
	if err != nil {
		return nil, err
	}
	// Evicted curves may still be held by callers, so they are dropped
	// rather than closed and their runtime goes with the last reference.
	if len(wasmCache) >= wasmCacheCapacity {
		for k := range wasmCache {
			delete(wasmCache, k)
			break
		}
	}
	wasmCache[key] = c
	return c, nil
}

func wasmCacheKey(m Model) string {
	h := sha256.New()
	h.Write(m.Module)
	if m.Capacity != nil {
		fmt.Fprintf(h, "|cap=%d", *m.Capacity)
	}
	return hex.EncodeToString(h.Sum(nil))
}

func compileWASMCurve(ctx context.Context, m Model) (*wasmCurve, error) {
	r := wazero.NewRuntimeWithConfig(ctx, wazero.NewRuntimeConfig().WithMemoryLimitPages(wasmMemoryPages))

	mod, err := r.Instantiate(ctx, m.Module)
	if err != nil {
		_ = r.Close(ctx)
		return nil, domain.Wrap(domain.KindInvalidModel, "pricing.New", fmt.Errorf("wasm instantiate: %w", err))
	}

	fn := mod.ExportedFunction(WASMExport)
	if fn == nil {
		_ = r.Close(ctx)
		return nil, domain.Errorf(domain.KindInvalidModel, "pricing.New", "wasm module does not export %q", WASMExport)
	}
	def := fn.Definition()
	if !isI64Sig(def.ParamTypes()) || !isI64Sig(def.ResultTypes()) {
		_ = r.Close(ctx)
		return nil, domain.Errorf(domain.KindInvalidModel, "pricing.New", "wasm export %q must be (i64) -> i64", WASMExport)
	}

	c := &wasmCurve{runtime: r, fn: fn, capacity: m.Capacity}
	if err := c.verify(); err != nil {
		_ = r.Close(ctx)
		return nil, err
	}
	return c, nil
}

func isI64Sig(types []api.ValueType) bool {
	return len(types) == 1 && types[0] == api.ValueTypeI64
}

// verify samples the curve and rejects modules that break monotonicity or
// positivity on the sampled points.
func (c *wasmCurve) verify() error {
	upper := wasmOpenHorizon
	if c.capacity != nil {
		upper = *c.capacity
	}
	var prev int64
	for i := 0; i <= wasmSamplePoints; i++ {
		s := upper * int64(i) / wasmSamplePoints
		p, err := c.call(s)
		if err != nil {
			return err
		}
		if p < 1 {
			return domain.Errorf(domain.KindInvalidModel, "pricing.New", "wasm curve returned non-positive price %d at supply %d", p, s)
		}
		if p < prev {
			return domain.Errorf(domain.KindInvalidModel, "pricing.New", "wasm curve decreases at supply %d (%d < %d)", s, p, prev)
		}
		prev = p
	}
	return nil
}

func (c *wasmCurve) Kind() Kind { return KindWASM }

func (c *wasmCurve) Price(supply int64) (int64, error) {
	if err := CheckSupply(supply, c.capacity); err != nil {
		return 0, err
	}
	p, err := c.call(supply)
	if err != nil {
		return 0, err
	}
	if p < 1 {
		return 0, domain.Errorf(domain.KindInvalidModel, "pricing.Price", "wasm curve returned non-positive price %d at supply %d", p, supply)
	}
	return p, nil
}

// call serialises access; api.Function is not safe for concurrent use.
func (c *wasmCurve) call(supply int64) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	results, err := c.fn.Call(context.Background(), api.EncodeI64(supply))
	if err != nil {
		return 0, domain.Wrap(domain.KindInvalidModel, "pricing.Price", fmt.Errorf("wasm call: %w", err))
	}
	return int64(results[0]), nil
}
