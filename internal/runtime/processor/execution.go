package processor

import (
	"fmt"

	"github.com/holiman/uint256"
	"github.com/rs/zerolog"

	rterrors "github.com/CosmWasm/actorvm/internal/runtime/error"
	"github.com/CosmWasm/actorvm/internal/runtime/gas"
	"github.com/CosmWasm/actorvm/internal/runtime/memory"
	"github.com/CosmWasm/actorvm/internal/runtime/message"
	"github.com/CosmWasm/actorvm/types"
)

type state uint8

const (
	stateCreated state = iota
	stateExecuting
	stateConcluded
	stateTrapped
	stateWaiting
	stateExited
	stateStopped
	stateNotExecuted
)

func (s state) String() string {
	switch s {
	case stateCreated:
		return "created"
	case stateExecuting:
		return "executing"
	case stateConcluded:
		return "concluded"
	case stateTrapped:
		return "trapped"
	case stateWaiting:
		return "waiting"
	case stateExited:
		return "exited"
	case stateStopped:
		return "stopped"
	case stateNotExecuted:
		return "not executed"
	default:
		return fmt.Sprintf("state(%d)", uint8(s))
	}
}

func (s state) terminal() bool { return s > stateExecuting }

// execution is the state of one dispatch. It is never shared.
type execution struct {
	cfg     types.Config
	backend types.Backend
	logger  zerolog.Logger

	dispatch    types.Dispatch
	program     types.Program
	pages       types.PageMap
	memoryPages uint32

	charger *gas.Charger
	value   *gas.ValueCounter
	tracker *memory.Tracker
	msgctx  *message.Context

	state     state
	finalized bool
}

func (e *execution) transition(next state) {
	if e.state.terminal() {
		rterrors.Violation("dispatch %s moved from %s to %s", e.dispatch.ID(), e.state, next)
	}
	e.state = next
}

// finalize seals the journal. A dispatch produces exactly one journal.
func (e *execution) finalize(next state, j types.Journal) types.Journal {
	if e.finalized {
		rterrors.Violation("journal of %s finalized twice", e.dispatch.ID())
	}
	e.transition(next)
	e.finalized = true
	return j
}

func (e *execution) externalities() *types.Externalities {
	return &types.Externalities{
		Message:          e.dispatch.Message,
		ProgramID:        e.program.ID,
		Block:            e.cfg.Block,
		ChargeGas:        e.charger.Charge,
		ChargeAllowance:  e.charger.ChargeAllowance,
		GasAvailable:     e.charger.Left,
		TouchPage:        e.tracker.Touch,
		SendInit:         e.sendInit,
		SendPush:         e.msgctx.PushPayload,
		SendCommit:       e.sendCommit,
		ReplyPush:        e.msgctx.ReplyPush,
		ReplyCommit:      e.replyCommit,
		Wait:             e.wait,
		Wake:             e.wake,
		Exit:             e.exit,
		ReserveSystemGas: e.reserveSystemGas,
	}
}

// transfer charges fee and moves gasLimit to an outgoing message. If the
// message gas cannot cover gasLimit the fee is returned and the program gets
// NotEnoughGas.
func (e *execution) transfer(fee, gasLimit types.Gas) error {
	if err := e.charger.Charge(fee); err != nil {
		return err
	}
	if err := e.charger.Reduce(gasLimit); err != nil {
		e.charger.Refund(fee)
		return types.NewMessageError(types.CodeNotEnoughGas, "gas limit %d, %d left", gasLimit, e.charger.Left())
	}
	return nil
}

// sendInit takes the value of the new message from what the program owns.
func (e *execution) sendInit(destination types.ProgramID, value *uint256.Int) (uint32, error) {
	if err := types.ValidateValue(value); err != nil {
		return 0, err
	}
	if err := e.value.Reduce(value); err != nil {
		return 0, err
	}
	handle, err := e.msgctx.InitOutgoing(destination, value)
	if err != nil {
		e.value.Increase(value)
	}
	return handle, err
}

func (e *execution) sendCommit(handle uint32, gasLimit types.Gas) (types.MessageID, error) {
	if err := e.msgctx.CanCommit(handle); err != nil {
		return types.MessageID{}, err
	}
	if err := e.transfer(e.cfg.Fees.Sending, gasLimit); err != nil {
		return types.MessageID{}, err
	}
	return e.msgctx.Commit(handle, gasLimit)
}

func (e *execution) replyCommit(value *uint256.Int, gasLimit types.Gas) (types.MessageID, error) {
	if err := e.msgctx.CanReply(); err != nil {
		return types.MessageID{}, err
	}
	if err := types.ValidateValue(value); err != nil {
		return types.MessageID{}, err
	}
	if err := e.value.Reduce(value); err != nil {
		return types.MessageID{}, err
	}
	if err := e.transfer(e.cfg.Fees.Sending, gasLimit); err != nil {
		e.value.Increase(value)
		return types.MessageID{}, err
	}
	return e.msgctx.ReplyCommit(value, gasLimit)
}

func (e *execution) wait(duration *uint32) error {
	if err := e.msgctx.CanWait(); err != nil {
		return err
	}
	if err := e.charger.Charge(e.cfg.Fees.Waiting); err != nil {
		return err
	}
	return e.msgctx.RequestWait(duration)
}

func (e *execution) wake(id types.MessageID, delay uint32) error {
	if err := e.msgctx.CanWake(id); err != nil {
		return err
	}
	if err := e.charger.Charge(e.cfg.Fees.Waking); err != nil {
		return err
	}
	return e.msgctx.Wake(id, delay)
}

func (e *execution) exit(valueDestination types.ProgramID) error {
	e.msgctx.RequestExit(valueDestination)
	return nil
}

func (e *execution) reserveSystemGas(amount types.Gas) error {
	if err := e.charger.Reduce(amount); err != nil {
		return types.NewMessageError(types.CodeNotEnoughGas, "reserve %d, %d left", amount, e.charger.Left())
	}
	e.msgctx.ReserveSystemGas(amount)
	return nil
}
