package wasm

import (
	"context"
	"errors"
	"fmt"

	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"

	"github.com/CosmWasm/actorvm/internal/runtime/cache"
	"github.com/CosmWasm/actorvm/internal/runtime/host"
	"github.com/CosmWasm/actorvm/types"
)

// ErrInvalidCode is matched by every StoreCode rejection.
var ErrInvalidCode = errors.New("invalid program code")

// StoreCode validates and compiles code and stores it under its id.
func (vm *VM) StoreCode(code []byte) (types.CodeID, error) {
	compiled, err := vm.compile(code)
	if err != nil {
		return types.CodeID{}, fmt.Errorf("%w: %w", ErrInvalidCode, err)
	}
	verr := validate(compiled)
	_ = compiled.Close(context.Background())
	if verr != nil {
		return types.CodeID{}, fmt.Errorf("%w: %w", ErrInvalidCode, verr)
	}

	id := vm.cache.SaveCode(code)
	if _, err := vm.cache.Compiled(id, vm.compile); err != nil {
		return id, err
	}
	vm.logger.Info().
		Str("code_id", id.String()).
		Int("size_bytes", len(code)).
		Msg("stored program code")
	return id, nil
}

// validate checks that every import is a known syscall and that the module
// exports at least one entry point.
func validate(compiled wazero.CompiledModule) error {
	for _, fn := range compiled.ImportedFunctions() {
		module, name, _ := fn.Import()
		if module != host.ModuleName || !host.IsSyscall(name) {
			return fmt.Errorf("unknown import %s.%s", module, name)
		}
	}
	if mems := compiled.ImportedMemories(); len(mems) > 0 {
		module, name, _ := mems[0].Import()
		return fmt.Errorf("memory import %s.%s is not supported", module, name)
	}

	exports := compiled.ExportedFunctions()
	found := false
	for _, ep := range []types.EntryPoint{types.EntryPointInit, types.EntryPointHandle, types.EntryPointReply, types.EntryPointSignal} {
		fn, ok := exports[string(ep)]
		if !ok {
			continue
		}
		if len(fn.ParamTypes()) != 0 || len(fn.ResultTypes()) != 0 {
			return fmt.Errorf("entry point %s must have no params and no results", ep)
		}
		found = true
	}
	if !found {
		return errors.New("no entry point exported")
	}
	return nil
}

// GetCode returns the original Wasm bytes for the given code id.
func (vm *VM) GetCode(id types.CodeID) ([]byte, error) {
	code, ok := vm.cache.LoadCode(id)
	if !ok {
		return nil, cache.ErrCodeNotFound{ID: id}
	}
	return code, nil
}

// RemoveCode removes the Wasm bytes and any cached compiled module.
func (vm *VM) RemoveCode(id types.CodeID) error {
	if !vm.cache.Remove(id) {
		return fmt.Errorf("code %s is pinned", id)
	}
	return nil
}

// Pin keeps the compiled module of id in memory until Unpin.
func (vm *VM) Pin(id types.CodeID) error {
	return vm.cache.Pin(id, vm.compile)
}

// Unpin makes the module of id evictable again.
func (vm *VM) Unpin(id types.CodeID) {
	vm.cache.Unpin(id)
}

// Metrics returns the module cache counters.
func (vm *VM) Metrics() types.Metrics {
	return vm.cache.Metrics()
}

// PinnedMetrics returns the hits and size of every pinned module.
func (vm *VM) PinnedMetrics() types.PinnedMetrics {
	return vm.cache.PinnedMetrics()
}

func exportedEntryPoint(compiled wazero.CompiledModule, ep types.EntryPoint) (api.FunctionDefinition, bool) {
	fn, ok := compiled.ExportedFunctions()[string(ep)]
	return fn, ok
}
