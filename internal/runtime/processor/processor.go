// Package processor turns one dispatch into a journal: it runs the program
// through a Backend with fresh gas counters, a page tracker and a message
// context, and records every effect of the run.
package processor

import (
	"context"
	"fmt"
	"slices"

	"github.com/holiman/uint256"
	"github.com/rs/zerolog"

	"github.com/CosmWasm/actorvm/internal/runtime/gas"
	"github.com/CosmWasm/actorvm/internal/runtime/memory"
	"github.com/CosmWasm/actorvm/internal/runtime/message"
	"github.com/CosmWasm/actorvm/types"
)

// Processor runs dispatches. It holds no per-dispatch state and can be used
// from several goroutines at once.
type Processor struct {
	cfg     types.Config
	backend types.Backend
	logger  zerolog.Logger
}

// New creates a processor that executes code through backend.
func New(cfg types.Config, backend types.Backend, logger zerolog.Logger) *Processor {
	return &Processor{
		cfg:     cfg,
		backend: backend,
		logger:  logger,
	}
}

// Process executes d on prog whose persistent memory is pages and returns the
// journal of effects. balance is the free balance of the program; together
// with the value of a first-time dispatch it bounds the value the program can
// send. Program failures are reported in the journal; the error is only set
// when ctx is already done.
func (p *Processor) Process(ctx context.Context, d types.Dispatch, prog types.Program, pages types.PageMap, balance *uint256.Int) (types.Journal, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("process %s: %w", d.ID(), err)
	}

	e := p.newExecution(d, prog, pages, balance)
	journal := e.run(ctx)

	report := e.charger.Report()
	p.logger.Debug().
		Str("message_id", d.ID().String()).
		Str("program_id", prog.ID.String()).
		Str("entry_point", string(d.Message.Kind.EntryPoint())).
		Str("state", e.state.String()).
		Uint64("gas_limit", report.Limit).
		Uint64("gas_burned", report.Burned).
		Uint64("gas_left", report.Remaining).
		Uint64("allowance_left", report.Allowance).
		Int("notes", len(journal)).
		Msg("dispatch processed")
	return journal, nil
}

func (p *Processor) memoryPages(prog types.Program) uint32 {
	if prog.MemoryPages == 0 || prog.MemoryPages > p.cfg.Limits.MaxPages {
		return p.cfg.Limits.MaxPages
	}
	return prog.MemoryPages
}

func (p *Processor) newExecution(d types.Dispatch, prog types.Program, pages types.PageMap, balance *uint256.Int) *execution {
	charger := gas.NewCharger(d.GasLimit, d.GasAllowance)
	owned := new(uint256.Int)
	if balance != nil {
		owned.Set(balance)
	}
	if d.Context == nil {
		owned.Add(owned, &d.Message.Value)
	}
	memoryPages := p.memoryPages(prog)
	settings := message.Settings{
		OutgoingLimit:  p.cfg.Limits.OutgoingLimit,
		MaxPayloadSize: p.cfg.Limits.MaxPayloadSize.Bytes(),
	}
	return &execution{
		cfg:         p.cfg,
		backend:     p.backend,
		logger:      p.logger,
		dispatch:    d,
		program:     prog,
		pages:       pages,
		memoryPages: memoryPages,
		charger:     charger,
		value:       gas.NewValueCounter(owned),
		tracker:     memory.NewTracker(p.cfg.PageCosts, memoryPages, pages, charger),
		msgctx:      message.New(settings, d.Message, prog.ID, d.Context),
	}
}

func (e *execution) run(ctx context.Context) types.Journal {
	d := &e.dispatch
	if d.Message.Destination != e.program.ID || !e.program.Accepts(d.Kind()) {
		return e.nonExecutable()
	}
	if d.GasLimit == 0 && !d.System {
		return e.trapped(nil, types.TrapGasLimitExceeded, "message carries no gas")
	}

	e.transition(stateExecuting)
	inv := types.Invocation{
		EntryPoint:      d.EntryPoint(),
		CodeID:          e.program.CodeID,
		ProgramID:       e.program.ID,
		MemoryPages:     e.memoryPages,
		PersistentPages: persistentPages(e.pages),
	}
	report, err := e.backend.Run(ctx, inv, e.externalities())
	e.tracker.Release()

	// A failed backend run has no memory to report.
	var ran *types.BackendReport
	if err == nil {
		ran = &report
	}
	switch e.charger.Status() {
	case gas.StatusAllowanceExceeded:
		return e.stopped()
	case gas.StatusGasExceeded:
		return e.trapped(ran, types.TrapGasLimitExceeded, report.Termination.Explanation)
	}
	if err != nil {
		e.logger.Debug().Err(err).Str("message_id", d.ID().String()).Msg("backend failed")
		return e.trapped(nil, types.TrapBackendError, err.Error())
	}
	if report.Termination.Kind == types.TerminationTrap {
		return e.trapped(&report, report.Termination.Reason, report.Termination.Explanation)
	}

	switch {
	case e.msgctx.ExitRequested():
		return e.exited(&report)
	case e.msgctx.WaitRequested():
		return e.waiting(&report)
	default:
		return e.concluded(&report)
	}
}

func persistentPages(pages types.PageMap) []types.PageNumber {
	out := make([]types.PageNumber, 0, len(pages))
	for p := range pages {
		out = append(out, p)
	}
	slices.Sort(out)
	return out
}
