package actorvm

import (
	"context"
	"errors"
	"fmt"

	dbm "github.com/cometbft/cometbft-db"
	"github.com/holiman/uint256"
	"github.com/rs/zerolog"

	"github.com/CosmWasm/actorvm/internal/runtime/constants"
	"github.com/CosmWasm/actorvm/internal/runtime/processor"
	"github.com/CosmWasm/actorvm/internal/runtime/wasm"
	"github.com/CosmWasm/actorvm/storage"
	"github.com/CosmWasm/actorvm/types"
)

// Options configure a VM.
type Options struct {
	// Config is the consensus configuration. Block info is set per block by RunBlock.
	Config types.Config
	// CacheSize is the number of unpinned compiled modules kept in memory.
	CacheSize int
	// BlockGasLimit is the gas allowance of one block.
	BlockGasLimit types.Gas
}

// DefaultOptions returns the options used when nothing is overridden.
func DefaultOptions() Options {
	return Options{
		Config:        types.DefaultConfig(),
		CacheSize:     constants.CacheSize,
		BlockGasLimit: constants.BlockGasLimit,
	}
}

// VM is the main entry point to this library.
// It stores program code, queues messages and processes them block by block,
// persisting every journal in the database it was created with.
type VM struct {
	opts    Options
	backend *wasm.VM
	store   *storage.Store
	logger  zerolog.Logger
}

// NewVM creates a VM over db.
func NewVM(ctx context.Context, db dbm.DB, opts Options, logger zerolog.Logger) (*VM, error) {
	backend, err := wasm.NewVM(ctx, wasm.Options{
		CacheSize: opts.CacheSize,
		MaxPages:  opts.Config.Limits.MaxPages,
		Syscalls:  opts.Config.Syscalls,
	}, logger)
	if err != nil {
		return nil, fmt.Errorf("creating backend: %w", err)
	}
	return &VM{
		opts:    opts,
		backend: backend,
		store:   storage.New(db, logger),
		logger:  logger,
	}, nil
}

// Close releases the compiled modules and the wazero runtime.
func (vm *VM) Close(ctx context.Context) error {
	return vm.backend.Close(ctx)
}

// Store gives read access to the persisted state.
func (vm *VM) Store() *storage.Store { return vm.store }

// StoreCode validates and compiles code and returns its id.
func (vm *VM) StoreCode(code []byte) (types.CodeID, error) {
	return vm.backend.StoreCode(code)
}

// GetCode returns the original code stored under id.
func (vm *VM) GetCode(id types.CodeID) ([]byte, error) {
	return vm.backend.GetCode(id)
}

// Pin keeps the compiled module of id in memory.
func (vm *VM) Pin(id types.CodeID) error { return vm.backend.Pin(id) }

// Unpin makes the compiled module of id evictable again.
func (vm *VM) Unpin(id types.CodeID) { vm.backend.Unpin(id) }

// GetMetrics returns the module cache counters.
func (vm *VM) GetMetrics() types.Metrics { return vm.backend.Metrics() }

// GetPinnedMetrics returns per-module counters of the pinned modules.
func (vm *VM) GetPinnedMetrics() types.PinnedMetrics { return vm.backend.PinnedMetrics() }

// Message is a message sent to a program from outside.
type Message struct {
	Source      types.ProgramID
	Destination types.ProgramID
	Payload     []byte
	Value       *uint256.Int
	GasLimit    types.Gas
}

// CreateProgram registers a program running codeID and queues its init
// message. The program id is derived from the code id and salt.
func (vm *VM) CreateProgram(codeID types.CodeID, salt []byte, initMsg Message) (types.ProgramID, types.MessageID, error) {
	if _, err := vm.backend.GetCode(codeID); err != nil {
		return types.ProgramID{}, types.MessageID{}, err
	}
	id := types.NewProgramID(codeID, salt)
	if _, found, err := vm.store.Program(id); err != nil {
		return id, types.MessageID{}, err
	} else if found {
		return id, types.MessageID{}, fmt.Errorf("program %s already exists", id)
	}

	prog := types.Program{ID: id, CodeID: codeID, State: types.ProgramUninitialized, MemoryPages: vm.opts.Config.Limits.MaxPages}
	if err := vm.store.SetProgram(prog); err != nil {
		return id, types.MessageID{}, err
	}
	initMsg.Destination = id
	msgID, err := vm.send(initMsg, types.MessageKindInit)
	return id, msgID, err
}

// Send queues a handle message.
func (vm *VM) Send(msg Message) (types.MessageID, error) {
	return vm.send(msg, types.MessageKindHandle)
}

func (vm *VM) send(msg Message, kind types.MessageKind) (types.MessageID, error) {
	nonce, err := vm.store.NextNonce()
	if err != nil {
		return types.MessageID{}, err
	}
	m := types.Message{
		ID:          types.ExternalMessageID(msg.Source, nonce),
		Source:      msg.Source,
		Destination: msg.Destination,
		Payload:     msg.Payload,
		Kind:        kind,
	}
	if msg.Value != nil {
		if err := types.ValidateValue(msg.Value); err != nil {
			return types.MessageID{}, err
		}
		m.Value = *msg.Value
	}
	if limit := vm.opts.Config.Limits.MaxPayloadSize.Bytes(); uint32(len(m.Payload)) > limit {
		return types.MessageID{}, fmt.Errorf("payload of %d bytes exceeds %d", len(m.Payload), limit)
	}
	if err := vm.store.Enqueue(types.Dispatch{Message: m, GasLimit: msg.GasLimit}); err != nil {
		return types.MessageID{}, err
	}
	return m.ID, nil
}

// BlockResult summarizes one RunBlock call.
type BlockResult struct {
	Height    uint64
	Processed int
	Delivered int
	GasBurned types.Gas
	// Stopped is set when the block allowance ran out before the queue did.
	Stopped bool
	Woken   int
	Expired int
}

// RunBlock advances the waitlist to block and processes queued dispatches
// until the queue is empty or the block allowance is spent. Messages to
// accounts that are not programs are delivered to their mailbox.
func (vm *VM) RunBlock(ctx context.Context, block types.BlockInfo) (BlockResult, error) {
	res := BlockResult{Height: block.Height}
	var err error
	res.Woken, res.Expired, err = vm.store.Advance(block.Height)
	if err != nil {
		return res, err
	}

	cfg := vm.opts.Config
	cfg.Block = block
	proc := processor.New(cfg, vm.backend, vm.logger)
	allowance := vm.opts.BlockGasLimit

	for {
		d, ok, err := vm.store.Next()
		if err != nil {
			return res, err
		}
		if !ok {
			break
		}
		prog, found, err := vm.store.Program(d.Message.Destination)
		if err != nil {
			return res, errors.Join(err, vm.store.Requeue(d))
		}
		if !found {
			if err := vm.store.Deliver(d.Message); err != nil {
				return res, errors.Join(err, vm.store.Requeue(d))
			}
			res.Delivered++
			continue
		}

		pages, err := vm.store.Snapshot(prog.ID)
		if err != nil {
			return res, errors.Join(err, vm.store.Requeue(d))
		}
		balance, err := vm.store.Balance(prog.ID)
		if err != nil {
			return res, errors.Join(err, vm.store.Requeue(d))
		}
		d.GasAllowance = allowance
		j, err := proc.Process(ctx, d, prog, pages, balance)
		if err != nil {
			return res, errors.Join(err, vm.store.Requeue(d))
		}
		if err := vm.store.Apply(j); err != nil {
			return res, errors.Join(err, vm.store.Requeue(d))
		}
		burned, stopped := summarize(j)
		if stopped {
			res.Stopped = true
			break
		}
		res.Processed++
		res.GasBurned += burned
		allowance -= min(burned, allowance)
	}

	vm.logger.Info().
		Uint64("height", res.Height).
		Int("processed", res.Processed).
		Int("delivered", res.Delivered).
		Uint64("gas_burned", res.GasBurned).
		Bool("stopped", res.Stopped).
		Msg("block processed")
	return res, nil
}

// summarize returns the gas a journal burns and whether it stops the block.
func summarize(j types.Journal) (types.Gas, bool) {
	var burned types.Gas
	for _, n := range j {
		switch n := n.(type) {
		case *types.GasBurned:
			burned += n.Amount
		case *types.StopProcessing:
			return burned, true
		}
	}
	return burned, false
}
