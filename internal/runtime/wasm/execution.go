package wasm

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"

	"github.com/CosmWasm/actorvm/internal/runtime/gas"
	"github.com/CosmWasm/actorvm/internal/runtime/host"
	"github.com/CosmWasm/actorvm/internal/runtime/memory"
	"github.com/CosmWasm/actorvm/types"
)

// snapshot is a copy of linear memory taken at the end of a run.
type snapshot []byte

func (s snapshot) ReadPage(page types.PageNumber) (types.PageBuf, bool) {
	off := uint64(page.Offset())
	if off+types.PageSize > uint64(len(s)) {
		return nil, false
	}
	return types.PageBuf(s[off : off+types.PageSize]), true
}

func copyMemory(mem api.Memory) snapshot {
	data, _ := mem.Read(0, mem.Size())
	return append(snapshot(nil), data...)
}

// Run executes the entry point of inv. Guest code cannot be interrupted on a
// page access, so persistent pages are read-touched before the call and
// modified pages are write-touched after it.
func (vm *VM) Run(ctx context.Context, inv types.Invocation, ext *types.Externalities) (types.BackendReport, error) {
	compiled, err := vm.cache.Compiled(inv.CodeID, vm.compile)
	if err != nil {
		return types.BackendReport{}, fmt.Errorf("loading module: %w", err)
	}
	if _, ok := exportedEntryPoint(compiled, inv.EntryPoint); !ok {
		// Nothing to run is a successful run.
		return types.BackendReport{Termination: types.Success(), Memory: types.PageMap{}}, nil
	}

	st := host.NewState(ext, vm.opts.Syscalls, vm.logger)
	ctx = host.WithState(ctx, st)

	cfg := wazero.NewModuleConfig().WithName("").WithStartFunctions()
	module, err := vm.runtime.InstantiateModule(ctx, compiled, cfg)
	if err != nil {
		return types.BackendReport{}, fmt.Errorf("instantiating module: %w", err)
	}
	defer module.Close(ctx)

	mem := module.Memory()
	var baseline snapshot
	if mem != nil {
		if term, ok := vm.loadPages(mem, inv, ext); !ok {
			return types.BackendReport{Termination: term, Memory: types.PageMap{}}, nil
		}
		baseline = copyMemory(mem)
		st.BindMemory(memory.New(mem, ext.TouchPage))
	}

	_, callErr := module.ExportedFunction(string(inv.EntryPoint)).Call(ctx)
	if ctxErr := ctx.Err(); ctxErr != nil {
		return types.BackendReport{}, fmt.Errorf("calling %s: %w", inv.EntryPoint, ctxErr)
	}
	term := termination(st, callErr)

	if mem == nil {
		return types.BackendReport{Termination: term, Memory: types.PageMap{}}, nil
	}
	final := copyMemory(mem)
	dirty, touchErr := touchModified(baseline, final, ext)
	if touchErr != nil && term.Kind == types.TerminationSuccess {
		term = trapFromError(touchErr)
	}

	vm.logger.Debug().
		Str("program_id", inv.ProgramID.String()).
		Str("entry_point", string(inv.EntryPoint)).
		Stringer("termination", term).
		Int("dirty_pages", len(dirty)).
		Msg("program run finished")
	return types.BackendReport{Termination: term, Memory: final, Initial: baseline, Dirty: dirty}, nil
}

// loadPages fills memory with the persistent pages of the program. A charge
// failure returns the trap to report.
func (vm *VM) loadPages(mem api.Memory, inv types.Invocation, ext *types.Externalities) (types.Termination, bool) {
	if uint64(mem.Size()) > uint64(inv.MemoryPages)*types.PageSize {
		return types.Trap(types.TrapMemoryOverflow, fmt.Sprintf("initial memory of %d bytes exceeds %d pages", mem.Size(), inv.MemoryPages)), false
	}
	for _, p := range inv.PersistentPages {
		buf, err := ext.TouchPage(p, types.AccessRead)
		if err != nil {
			return trapFromError(err), false
		}
		end := uint64(p.Offset()) + types.PageSize
		if end > uint64(mem.Size()) {
			delta := (end - uint64(mem.Size()) + types.WasmPageSize - 1) / types.WasmPageSize
			if _, ok := mem.Grow(uint32(delta)); !ok {
				return types.Trap(types.TrapMemoryOverflow, fmt.Sprintf("cannot grow memory to page %d", p)), false
			}
		}
		if buf != nil && !mem.Write(p.Offset(), buf) {
			return types.Trap(types.TrapBackendError, fmt.Sprintf("cannot load page %d", p)), false
		}
	}
	return types.Termination{}, true
}

// touchModified write-touches every page whose content differs from the
// baseline and returns them in ascending order. It stops at the first charge
// that fails; pages after it are not reported.
func touchModified(baseline, final snapshot, ext *types.Externalities) ([]types.PageNumber, error) {
	var dirty []types.PageNumber
	pages := uint32(len(final) / types.PageSize)
	zero := types.NewPageBuf()
	for i := uint32(0); i < pages; i++ {
		p := types.PageNumber(i)
		after, _ := final.ReadPage(p)
		before, ok := baseline.ReadPage(p)
		if !ok {
			before = zero
		}
		if after.Equal(before) {
			continue
		}
		if _, err := ext.TouchPage(p, types.AccessWrite); err != nil {
			return dirty, err
		}
		dirty = append(dirty, p)
	}
	return dirty, nil
}

// termination maps the end of a call to how the run ended.
func termination(st *host.State, err error) types.Termination {
	if t, ok := st.Termination(); ok {
		return t
	}
	if err == nil {
		return types.Success()
	}
	msg := err.Error()
	switch {
	case strings.Contains(msg, "unreachable"):
		return types.Trap(types.TrapUnreachable, "")
	case strings.Contains(msg, "out of bounds memory access"):
		return types.Trap(types.TrapMemoryOverflow, "")
	case strings.Contains(msg, "stack overflow"), strings.Contains(msg, "call stack exhausted"):
		return types.Trap(types.TrapStackLimitExceeded, "")
	default:
		return types.Trap(types.TrapBackendError, msg)
	}
}

func trapFromError(err error) types.Termination {
	switch {
	case gas.StatusOf(err) != gas.StatusNormal:
		return types.Trap(types.TrapGasLimitExceeded, err.Error())
	case errors.Is(err, types.ErrMemoryOverflow):
		return types.Trap(types.TrapMemoryOverflow, err.Error())
	default:
		return types.Trap(types.TrapBackendError, err.Error())
	}
}
