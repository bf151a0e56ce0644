package storage

import (
	"fmt"

	"github.com/rs/zerolog"

	"github.com/CosmWasm/actorvm/types"
)

// applier writes the notes of one journal into a transaction.
type applier struct {
	tx     *txn
	logger zerolog.Logger
}

var _ types.JournalHandler = (*applier)(nil)

func (a *applier) GasBurned(n *types.GasBurned) error {
	total, err := a.tx.getUint64(burnedKey(n.MessageID))
	if err != nil {
		return err
	}
	return a.tx.setUint64(burnedKey(n.MessageID), total+n.Amount)
}

func (a *applier) SendMessage(n *types.SendMessage) error {
	return a.enqueue(n.Dispatch)
}

func (a *applier) ReplySent(n *types.ReplySent) error {
	return a.enqueue(n.Dispatch)
}

func (a *applier) SendSignal(n *types.SendSignal) error {
	return a.enqueue(n.Dispatch)
}

// enqueue locks the value of a message sent by a program and queues it.
func (a *applier) enqueue(d types.Dispatch) error {
	if err := lockValue(a.tx, d.Message.Source, &d.Message.Value); err != nil {
		return fmt.Errorf("message %s: %w", d.ID(), err)
	}
	return pushBack(a.tx, d)
}

func (a *applier) WaitDispatch(n *types.WaitDispatch) error {
	id := n.Dispatch.ID()
	if err := a.tx.setValue(waitlistKey(id), n); err != nil {
		return err
	}
	return a.tx.set(expiryKey(n.Expiry, id), []byte{1})
}

// WakeMessage ignores messages that are not waiting on the waking program.
func (a *applier) WakeMessage(n *types.WakeMessage) error {
	var w types.WaitDispatch
	found, err := a.tx.getValue(waitlistKey(n.AwakeningID), &w)
	if err != nil {
		return err
	}
	if !found || w.Dispatch.Message.Destination != n.ProgramID {
		a.logger.Debug().
			Str("message_id", n.AwakeningID.String()).
			Str("program_id", n.ProgramID.String()).
			Msg("wake of a message that is not waiting")
		return nil
	}
	if err := a.tx.delete(waitlistKey(n.AwakeningID)); err != nil {
		return err
	}
	if err := a.tx.delete(expiryKey(w.Expiry, n.AwakeningID)); err != nil {
		return err
	}
	if n.Delay == 0 {
		return pushBack(a.tx, w.Dispatch)
	}
	height, err := a.tx.getUint64(keyHeight)
	if err != nil {
		return err
	}
	return a.tx.setValue(delayedKey(height+uint64(n.Delay), n.AwakeningID), w.Dispatch)
}

func (a *applier) UpdatePage(n *types.UpdatePage) error {
	if err := n.Data.Validate(); err != nil {
		return fmt.Errorf("page %d of %s: %w", n.Page, n.ProgramID, err)
	}
	return a.tx.set(pageKey(n.ProgramID, n.Page), n.Data)
}

// MessageDispatched records the outcome and settles the program state after init.
func (a *applier) MessageDispatched(n *types.MessageDispatched) error {
	if err := a.tx.setValue(outcomeKey(n.MessageID), n); err != nil {
		return err
	}
	var state types.ProgramState
	switch n.Outcome.Kind {
	case types.OutcomeInitSuccess:
		state = types.ProgramActive
	case types.OutcomeInitFailure:
		state = types.ProgramTerminated
	default:
		return nil
	}

	var p types.Program
	found, err := a.tx.getValue(programKey(n.ProgramID), &p)
	if err != nil {
		return err
	}
	if !found {
		return fmt.Errorf("init of %s: %w", n.ProgramID, ErrUnknownProgram)
	}
	p.State = state
	return a.tx.setValue(programKey(p.ID), p)
}

func (a *applier) SystemReserveGas(n *types.SystemReserveGas) error {
	total, err := a.tx.getUint64(reservationKey(n.MessageID))
	if err != nil {
		return err
	}
	return a.tx.setUint64(reservationKey(n.MessageID), total+n.Amount)
}

func (a *applier) SystemUnreserveGas(n *types.SystemUnreserveGas) error {
	return a.tx.delete(reservationKey(n.MessageID))
}

func (a *applier) SendValue(n *types.SendValue) error {
	return transferLocked(a.tx, n.From, n.To, &n.Value)
}

// ExitDispatch marks the program exited, drops its memory and moves its
// balance to the value destination.
func (a *applier) ExitDispatch(n *types.ExitDispatch) error {
	var p types.Program
	found, err := a.tx.getValue(programKey(n.ProgramID), &p)
	if err != nil {
		return err
	}
	if !found {
		return fmt.Errorf("exit of %s: %w", n.ProgramID, ErrUnknownProgram)
	}
	p.State = types.ProgramExited
	if err := a.tx.setValue(programKey(p.ID), p); err != nil {
		return err
	}

	pages, err := a.tx.keys(pagePrefix(n.ProgramID))
	if err != nil {
		return err
	}
	for _, k := range pages {
		if err := a.tx.delete(k); err != nil {
			return err
		}
	}

	balance, err := getAmount(a.tx, balanceKey(n.ProgramID))
	if err != nil {
		return err
	}
	return moveAmount(a.tx, balanceKey(n.ProgramID), balanceKey(n.ValueDestination), balance)
}

// StopProcessing puts the dispatch back at the front of the queue.
func (a *applier) StopProcessing(n *types.StopProcessing) error {
	a.logger.Debug().
		Str("message_id", n.Dispatch.ID().String()).
		Uint64("gas_burned", n.GasBurned).
		Msg("processing stopped, dispatch requeued")
	return pushFront(a.tx, n.Dispatch)
}
