package processor

import (
	rterrors "github.com/CosmWasm/actorvm/internal/runtime/error"
	"github.com/CosmWasm/actorvm/internal/runtime/memory"
	"github.com/CosmWasm/actorvm/internal/runtime/message"
	"github.com/CosmWasm/actorvm/types"
)

func (e *execution) concluded(report *types.BackendReport) types.Journal {
	d := &e.dispatch
	out := e.msgctx.Drain()

	var j types.Journal
	j = e.appendValue(j, e.program.ID)
	j = e.appendCommitted(j, out)
	if !out.ReplySent && (d.Kind() == types.MessageKindInit || d.Kind() == types.MessageKindHandle) {
		j = append(j, e.replyNote(types.ReplySuccessAuto, nil))
	}
	j = e.appendAwakenings(j, out)
	j = append(j, e.pageUpdates(report)...)
	j = e.appendReservation(j, out)
	j = append(j, e.gasBurned())
	if out.Store.SystemReservation > 0 {
		j = append(j, &types.SystemUnreserveGas{MessageID: d.ID()})
	}

	outcome := types.DispatchOutcome{Kind: types.OutcomeSuccess}
	if d.Kind() == types.MessageKindInit {
		outcome.Kind = types.OutcomeInitSuccess
	}
	j = append(j, e.dispatched(outcome))
	return e.finalize(stateConcluded, j)
}

func (e *execution) waiting(report *types.BackendReport) types.Journal {
	d := &e.dispatch
	out := e.msgctx.Drain()

	var j types.Journal
	j = e.appendValue(j, e.program.ID)
	j = e.appendCommitted(j, out)
	j = e.appendAwakenings(j, out)
	j = append(j, e.pageUpdates(report)...)
	j = e.appendReservation(j, out)
	j = append(j, e.gasBurned())

	duration := e.cfg.Limits.MaxWaitDuration
	if out.Wait.Duration != nil && *out.Wait.Duration < duration {
		duration = *out.Wait.Duration
	}
	store := out.Store
	parked := *d
	parked.GasLimit = e.charger.Left()
	parked.GasAllowance = 0
	parked.Context = &store
	j = append(j, &types.WaitDispatch{
		Dispatch: parked,
		Expiry:   e.cfg.Block.Height + uint64(duration),
	})
	return e.finalize(stateWaiting, j)
}

func (e *execution) exited(report *types.BackendReport) types.Journal {
	d := &e.dispatch
	out := e.msgctx.Drain()

	var j types.Journal
	j = e.appendValue(j, e.program.ID)
	j = e.appendCommitted(j, out)
	j = e.appendAwakenings(j, out)
	j = append(j, e.pageUpdates(report)...)
	j = e.appendReservation(j, out)
	j = append(j, e.gasBurned())
	if out.Store.SystemReservation > 0 {
		j = append(j, &types.SystemUnreserveGas{MessageID: d.ID()})
	}
	j = append(j,
		&types.ExitDispatch{ProgramID: e.program.ID, ValueDestination: *out.Exit},
		e.dispatched(types.DispatchOutcome{Kind: types.OutcomeExit}),
	)
	return e.finalize(stateExited, j)
}

// trapped discards every committed message. Page writes that were charged
// persist. report is nil when the backend did not run.
func (e *execution) trapped(report *types.BackendReport, reason types.TrapReason, explanation string) types.Journal {
	d := &e.dispatch
	out := e.msgctx.Drain()
	code := reason.SignalCode()

	var j types.Journal
	if report != nil {
		j = append(j, e.pageUpdates(report)...)
	}
	j = append(j, e.gasBurned())
	j = e.appendValue(j, d.Message.Source)

	j = e.appendReservation(j, out)
	if total := out.Store.SystemReservation; total > 0 {
		if e.signalAllowed() {
			j = append(j, e.signalNote(code, total))
		}
		j = append(j, &types.SystemUnreserveGas{MessageID: d.ID()})
	}
	if e.errorReplyAllowed() {
		j = append(j, e.replyNote(types.ReplyFromSignal(code), []byte(explanation)))
	}

	outcome := types.DispatchOutcome{Kind: types.OutcomeTrap, Code: code, Reason: explanation}
	if d.Kind() == types.MessageKindInit {
		outcome.Kind = types.OutcomeInitFailure
	}
	j = append(j, e.dispatched(outcome))
	return e.finalize(stateTrapped, j)
}

// stopped reports that the block ran out of allowance. The dispatch is kept
// for a later block and its gas is not burned.
func (e *execution) stopped() types.Journal {
	e.msgctx.Drain()
	return e.finalize(stateStopped, types.Journal{
		&types.StopProcessing{Dispatch: e.dispatch, GasBurned: e.charger.Burned()},
	})
}

func (e *execution) nonExecutable() types.Journal {
	d := &e.dispatch
	e.msgctx.Drain()

	var j types.Journal
	j = e.appendValue(j, d.Message.Source)
	if e.errorReplyAllowed() {
		j = append(j, e.replyNote(types.ReplyNonExecutable, nil))
	}
	j = append(j, e.dispatched(types.DispatchOutcome{Kind: types.OutcomeNoExecution}))
	return e.finalize(stateNotExecuted, j)
}

func (e *execution) gasBurned() types.JournalNote {
	return &types.GasBurned{MessageID: e.dispatch.ID(), Amount: e.charger.Burned()}
}

func (e *execution) dispatched(outcome types.DispatchOutcome) types.JournalNote {
	return &types.MessageDispatched{
		MessageID: e.dispatch.ID(),
		Source:    e.dispatch.Message.Source,
		ProgramID: e.dispatch.Message.Destination,
		Outcome:   outcome,
	}
}

// appendValue moves the value attached to the message to to. A dispatch
// that waited before already handed its value to the program.
func (e *execution) appendValue(j types.Journal, to types.ProgramID) types.Journal {
	msg := &e.dispatch.Message
	if msg.Value.IsZero() || e.dispatch.Context != nil {
		return j
	}
	return append(j, &types.SendValue{From: msg.Source, To: to, Value: msg.Value})
}

func (e *execution) appendCommitted(j types.Journal, out message.Outcome) types.Journal {
	origin := e.dispatch.ID()
	for _, c := range out.Committed {
		if c.IsReply {
			j = append(j, &types.ReplySent{Origin: origin, Dispatch: c.Dispatch})
		} else {
			j = append(j, &types.SendMessage{Origin: origin, Dispatch: c.Dispatch})
		}
	}
	return j
}

func (e *execution) appendAwakenings(j types.Journal, out message.Outcome) types.Journal {
	for _, a := range out.Awakenings {
		j = append(j, &types.WakeMessage{
			Origin:      e.dispatch.ID(),
			ProgramID:   e.program.ID,
			AwakeningID: a.ID,
			Delay:       a.Delay,
		})
	}
	return j
}

// appendReservation records the part of the system reservation made by this run.
func (e *execution) appendReservation(j types.Journal, out message.Outcome) types.Journal {
	var before types.Gas
	if e.dispatch.Context != nil {
		before = e.dispatch.Context.SystemReservation
	}
	if added := out.Store.SystemReservation - before; added > 0 {
		j = append(j, &types.SystemReserveGas{MessageID: e.dispatch.ID(), Amount: added})
	}
	return j
}

func (e *execution) signalAllowed() bool {
	d := &e.dispatch
	switch d.Kind() {
	case types.MessageKindSignal, types.MessageKindInit:
		return false
	}
	return !d.Message.IsErrorReply()
}

func (e *execution) errorReplyAllowed() bool {
	d := &e.dispatch
	switch d.Kind() {
	case types.MessageKindReply, types.MessageKindSignal:
		return false
	}
	return d.Context == nil || !d.Context.ReplySent
}

func (e *execution) replyNote(code types.ReplyCode, payload []byte) types.JournalNote {
	d := &e.dispatch
	return &types.ReplySent{
		Origin: d.ID(),
		Dispatch: types.Dispatch{
			Message: types.Message{
				ID:          types.ReplyMessageID(d.ID()),
				Source:      e.program.ID,
				Destination: d.Message.Source,
				Payload:     payload,
				Kind:        types.MessageKindReply,
				Reply:       &types.ReplyDetails{To: d.ID(), Code: code},
			},
		},
	}
}

func (e *execution) signalNote(code types.SignalCode, gasLimit types.Gas) types.JournalNote {
	d := &e.dispatch
	return &types.SendSignal{
		Origin: d.ID(),
		Dispatch: types.Dispatch{
			Message: types.Message{
				ID:          types.SignalMessageID(d.ID()),
				Destination: e.program.ID,
				Kind:        types.MessageKindSignal,
				Signal:      &types.SignalDetails{To: d.ID(), Code: code},
			},
			GasLimit: gasLimit,
			System:   true,
		},
	}
}

// pageUpdates emits the final content of every written page that changed.
// Pages without persistent content are compared with the content the backend
// started the entry point with, or with zeros when it reports none.
func (e *execution) pageUpdates(report *types.BackendReport) types.Journal {
	for _, p := range report.Dirty {
		if e.tracker.State(p) != memory.Written {
			rterrors.Violation("page %d of %s modified without a charged write", p, e.program.ID)
		}
	}

	var j types.Journal
	for _, p := range e.tracker.Written() {
		if report.Memory == nil {
			rterrors.Violation("backend reported no memory for written page %d", p)
		}
		final, ok := report.Memory.ReadPage(p)
		if !ok {
			rterrors.Violation("backend reported no content for written page %d", p)
		}
		if err := final.Validate(); err != nil {
			rterrors.Violation("written page %d: %v", p, err)
		}
		initial, ok := e.pages.ReadPage(p)
		if !ok && report.Initial != nil {
			initial, ok = report.Initial.ReadPage(p)
		}
		if ok && final.Equal(initial) || !ok && final.IsZero() {
			continue
		}
		j = append(j, &types.UpdatePage{
			ProgramID: e.program.ID,
			Page:      p,
			Data:      append(types.PageBuf(nil), final...),
		})
	}
	return j
}
