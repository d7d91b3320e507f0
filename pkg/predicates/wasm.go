package predicates

import (
	"context"
	"fmt"
	"sync"

	"github.com/rs/zerolog"
	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"
	"github.com/tetratelabs/wazero/imports/wasi_snapshot_preview1"
)

// WASMConfig contains configuration for WASM predicates.
type WASMConfig struct {
	// MemoryLimitPages is the maximum memory limit in pages (64KB each).
	MemoryLimitPages uint32
}

// WASMPredicate runs a WASM module exporting
//
//	malloc(size i32) -> ptr i32
//	free(ptr i32)
//	check(ptr i32, len i32) -> i32
//
// check receives the subset as a JSON array of names and returns 1 when the
// predicate holds and 0 when it does not.
type WASMPredicate struct {
	runtime wazero.Runtime
	module  api.Module
	memory  api.Memory
	malloc  api.Function
	free    api.Function
	check   api.Function

	// module instances are not safe for concurrent calls
	mu     sync.Mutex
	logger zerolog.Logger
}

var _ Adapter = (*WASMPredicate)(nil)

// NewWASMPredicate compiles and instantiates wasmModule.
func NewWASMPredicate(ctx context.Context, wasmModule []byte, cfg WASMConfig, logger zerolog.Logger) (*WASMPredicate, error) {
	if cfg.MemoryLimitPages == 0 {
		cfg.MemoryLimitPages = 256 // 16MB
	}

	runtimeConfig := wazero.NewRuntimeConfig().
		WithMemoryLimitPages(cfg.MemoryLimitPages).
		WithCloseOnContextDone(true)

	runtime := wazero.NewRuntimeWithConfig(ctx, runtimeConfig)

	// Modules built for WASI targets import it even when unused.
	if _, err := wasi_snapshot_preview1.Instantiate(ctx, runtime); err != nil {
		runtime.Close(ctx)
		return nil, loadError(fmt.Errorf("failed to instantiate WASI: %w", err))
	}

	moduleConfig := wazero.NewModuleConfig().
		WithName("predicate").
		WithStartFunctions("_initialize")

	module, err := runtime.InstantiateWithConfig(ctx, wasmModule, moduleConfig)
	if err != nil {
		runtime.Close(ctx)
		return nil, loadError(fmt.Errorf("failed to instantiate WASM module: %w", err))
	}

	p := &WASMPredicate{
		runtime: runtime,
		module:  module,
		memory:  module.Memory(),
		malloc:  module.ExportedFunction("malloc"),
		free:    module.ExportedFunction("free"),
		check:   module.ExportedFunction("check"),
		logger:  logger.With().Str("component", "wasm-predicate").Logger(),
	}

	var missing string
	switch {
	case p.memory == nil:
		missing = "memory"
	case p.malloc == nil:
		missing = "malloc function"
	case p.free == nil:
		missing = "free function"
	case p.check == nil:
		missing = "check function"
	}
	if missing != "" {
		runtime.Close(ctx)
		return nil, loadError(fmt.Errorf("WASM module does not export %s", missing))
	}

	return p, nil
}

func loadError(err error) error {
	return &AdapterError{Adapter: "wasm", Op: "load", ExitCode: -1, Err: err}
}

// Kind implements Adapter.
func (p *WASMPredicate) Kind() string { return "wasm" }

// Check writes the JSON subset into module memory and calls check.
func (p *WASMPredicate) Check(ctx context.Context, subset []string) (bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	input := encodeSubset(subset)

	ptr, err := p.allocate(ctx, uint32(len(input)))
	if err != nil {
		return false, p.checkError(ctx, err)
	}
	defer p.deallocate(ctx, ptr)

	if !p.memory.Write(ptr, input) {
		return false, p.checkError(ctx, fmt.Errorf("failed to write input to WASM memory"))
	}

	results, err := p.check.Call(ctx, uint64(ptr), uint64(len(input)))
	if err != nil {
		return false, p.checkError(ctx, fmt.Errorf("WASM function call failed: %w", err))
	}
	if len(results) == 0 {
		return false, p.checkError(ctx, fmt.Errorf("WASM function returned no results"))
	}

	switch v := api.DecodeI32(results[0]); v {
	case 0:
		return false, nil
	case 1:
		return true, nil
	default:
		return false, p.checkError(ctx, fmt.Errorf("check returned %d, want 0 or 1", v))
	}
}

func (p *WASMPredicate) checkError(ctx context.Context, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		err = ctxErr
	}
	return &AdapterError{Adapter: "wasm", Op: "check", ExitCode: -1, Err: err}
}

// allocate allocates memory in WASM and returns the pointer.
func (p *WASMPredicate) allocate(ctx context.Context, size uint32) (uint32, error) {
	results, err := p.malloc.Call(ctx, uint64(size))
	if err != nil {
		return 0, fmt.Errorf("malloc failed: %w", err)
	}
	if len(results) == 0 {
		return 0, fmt.Errorf("malloc returned no results")
	}

	ptr := uint32(results[0])
	if ptr == 0 {
		return 0, fmt.Errorf("malloc returned null pointer")
	}
	return ptr, nil
}

// deallocate frees memory in WASM.
func (p *WASMPredicate) deallocate(ctx context.Context, ptr uint32) {
	if _, err := p.free.Call(ctx, uint64(ptr)); err != nil {
		p.logger.Debug().Err(err).Msg("free failed")
	}
}

// Close closes the module and the runtime.
func (p *WASMPredicate) Close() error {
	ctx := context.Background()
	if err := p.module.Close(ctx); err != nil {
		return fmt.Errorf("failed to close WASM module: %w", err)
	}
	if err := p.runtime.Close(ctx); err != nil {
		return fmt.Errorf("failed to close WASM runtime: %w", err)
	}
	return nil
}
