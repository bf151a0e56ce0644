// Package wasm is the wazero backend: it compiles uploaded programs, runs
// their entry points against the env syscalls and reports which memory pages
// changed.
//
// wazero gives no hook on guest page accesses. Persistent pages are therefore
// read-touched before the entry point runs and modified pages are
// write-touched after it returns. Guest reads of pages that have no
// persistent content are never charged; accesses made through syscalls are
// charged as they happen.
package wasm

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"
	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"

	"github.com/CosmWasm/actorvm/internal/runtime/cache"
	"github.com/CosmWasm/actorvm/internal/runtime/host"
	"github.com/CosmWasm/actorvm/types"
)

// Options configure a VM.
type Options struct {
	// CacheSize is the number of unpinned compiled modules kept in memory.
	CacheSize int
	// MaxPages caps program memory, in pages.
	MaxPages uint32
	// Syscalls are the weights charged by every syscall.
	Syscalls types.SyscallCosts
}

// VM runs programs with wazero. It implements types.Backend and is safe for
// concurrent use.
type VM struct {
	runtime   wazero.Runtime
	envModule api.Module
	cache     *cache.Cache
	opts      Options
	logger    zerolog.Logger
}

var _ types.Backend = (*VM)(nil)

// NewVM creates a wazero runtime with the env module instantiated.
func NewVM(ctx context.Context, opts Options, logger zerolog.Logger) (*VM, error) {
	wasmPages := (opts.MaxPages + types.PagesPerWasmPage - 1) / types.PagesPerWasmPage
	cfg := wazero.NewRuntimeConfig().
		WithCloseOnContextDone(true).
		WithMemoryLimitPages(wasmPages)

	vm := &VM{
		runtime: wazero.NewRuntimeWithConfig(ctx, cfg),
		cache:   cache.New(opts.CacheSize),
		opts:    opts,
		logger:  logger,
	}
	env, err := host.RegisterHostFunctions(ctx, vm.runtime)
	if err != nil {
		_ = vm.runtime.Close(ctx)
		return nil, err
	}
	vm.envModule = env
	logger.Info().
		Int("cache_size", opts.CacheSize).
		Uint32("max_pages", opts.MaxPages).
		Msg("wazero runtime initialized")
	return vm, nil
}

func (vm *VM) compile(code []byte) (wazero.CompiledModule, error) {
	compiled, err := vm.runtime.CompileModule(context.Background(), code)
	if err != nil {
		return nil, fmt.Errorf("compilation failed: %w", err)
	}
	return compiled, nil
}

// Close releases all resources held by the VM
func (vm *VM) Close(ctx context.Context) error {
	if err := vm.cache.Close(ctx); err != nil {
		vm.logger.Error().Err(err).Msg("closing cached modules")
	}
	return vm.runtime.Close(ctx)
}
