// Package host implements the "env" module that programs import their
// syscalls from. Every syscall works on the State attached to the call
// context by the backend.
package host

import (
	"context"
	"errors"

	"github.com/rs/zerolog"

	"github.com/CosmWasm/actorvm/internal/runtime/gas"
	"github.com/CosmWasm/actorvm/internal/runtime/memory"
	"github.com/CosmWasm/actorvm/types"
)

// errTerminated unwinds the guest stack after a syscall ended the run.
var errTerminated = errors.New("execution terminated by syscall")

// State is the per-run environment of the syscalls.
type State struct {
	ext    *types.Externalities
	costs  types.SyscallCosts
	logger zerolog.Logger

	mem  *memory.Manager
	term *types.Termination
}

// NewState creates the syscall state of one run.
func NewState(ext *types.Externalities, costs types.SyscallCosts, logger zerolog.Logger) *State {
	return &State{ext: ext, costs: costs, logger: logger}
}

// BindMemory gives the syscalls access to the memory of the running instance.
func (s *State) BindMemory(m *memory.Manager) {
	s.mem = m
}

// Termination returns how a syscall ended the run, if one did.
func (s *State) Termination() (types.Termination, bool) {
	if s.term == nil {
		return types.Termination{}, false
	}
	return *s.term, true
}

type envKey struct{}

// WithState attaches s to ctx.
func WithState(ctx context.Context, s *State) context.Context {
	return context.WithValue(ctx, envKey{}, s)
}

func stateFrom(ctx context.Context) *State {
	s, ok := ctx.Value(envKey{}).(*State)
	if !ok {
		panic("host: syscall invoked without state")
	}
	return s
}

// stop records t and unwinds the guest. It never returns.
func (s *State) stop(t types.Termination) {
	if s.term == nil {
		s.term = &t
	}
	panic(errTerminated)
}

func (s *State) chargeGas(amount types.Gas) {
	if err := s.ext.ChargeGas(amount); err != nil {
		s.stop(types.Trap(types.TrapGasLimitExceeded, err.Error()))
	}
}

// charge takes the weight of a syscall that moves n bytes.
func (s *State) charge(n uint32) {
	s.chargeGas(s.costs.Cost(n))
}

// result turns err into the code returned to the program. Errors that are not
// program mistakes end the run.
func (s *State) result(err error) uint32 {
	if code, ok := types.ErrorCode(err); ok {
		return uint32(code)
	}
	s.fatal(err)
	return 0
}

// must ends the run on any error, including program mistakes.
func (s *State) must(err error) {
	if err == nil {
		return
	}
	if _, ok := types.ErrorCode(err); ok {
		s.stop(types.Trap(types.TrapPanic, err.Error()))
	}
	s.fatal(err)
}

func (s *State) fatal(err error) {
	switch {
	case gas.StatusOf(err) != gas.StatusNormal:
		s.stop(types.Trap(types.TrapGasLimitExceeded, err.Error()))
	case errors.Is(err, types.ErrMemoryOverflow):
		s.stop(types.Trap(types.TrapMemoryOverflow, err.Error()))
	default:
		s.stop(types.Trap(types.TrapBackendError, err.Error()))
	}
}
