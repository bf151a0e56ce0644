package types

import (
	"fmt"

	"github.com/holiman/uint256"
)

// NoteKind tags a journal note.
type NoteKind uint8

const (
	NoteGasBurned NoteKind = iota + 1
	NoteSendMessage
	NoteReplySent
	NoteWaitDispatch
	NoteWakeMessage
	NoteUpdatePage
	NoteMessageDispatched
	NoteSystemReserveGas
	NoteSystemUnreserveGas
	NoteSendSignal
	NoteSendValue
	NoteExitDispatch
	NoteStopProcessing
)

var noteKindNames = map[NoteKind]string{
	NoteGasBurned:          "GasBurned",
	NoteSendMessage:        "SendMessage",
	NoteReplySent:          "ReplySent",
	NoteWaitDispatch:       "WaitDispatch",
	NoteWakeMessage:        "WakeMessage",
	NoteUpdatePage:         "UpdatePage",
	NoteMessageDispatched:  "MessageDispatched",
	NoteSystemReserveGas:   "SystemReserveGas",
	NoteSystemUnreserveGas: "SystemUnreserveGas",
	NoteSendSignal:         "SendSignal",
	NoteSendValue:          "SendValue",
	NoteExitDispatch:       "ExitDispatch",
	NoteStopProcessing:     "StopProcessing",
}

func (k NoteKind) String() string {
	if name, ok := noteKindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("NoteKind(%d)", uint8(k))
}

// JournalNote is one side effect of processing a dispatch.
// The set of notes is closed; see the Note* kinds.
type JournalNote interface {
	Kind() NoteKind
	applyTo(h JournalHandler) error
}

// Journal is the ordered list of effects of one dispatch. It is applied in
// order and as a whole.
type Journal []JournalNote

// Kinds lists the kinds of the notes in order.
func (j Journal) Kinds() []NoteKind {
	kinds := make([]NoteKind, len(j))
	for i, n := range j {
		kinds[i] = n.Kind()
	}
	return kinds
}

// Apply feeds every note to h in order and stops at the first error.
func (j Journal) Apply(h JournalHandler) error {
	for i, n := range j {
		if err := n.applyTo(h); err != nil {
			return fmt.Errorf("apply note %d (%s): %w", i, n.Kind(), err)
		}
	}
	return nil
}

// JournalHandler consumes journal notes. Implementations are expected to make
// the effects of one Apply call visible atomically.
type JournalHandler interface {
	GasBurned(n *GasBurned) error
	SendMessage(n *SendMessage) error
	ReplySent(n *ReplySent) error
	WaitDispatch(n *WaitDispatch) error
	WakeMessage(n *WakeMessage) error
	UpdatePage(n *UpdatePage) error
	MessageDispatched(n *MessageDispatched) error
	SystemReserveGas(n *SystemReserveGas) error
	SystemUnreserveGas(n *SystemUnreserveGas) error
	SendSignal(n *SendSignal) error
	SendValue(n *SendValue) error
	ExitDispatch(n *ExitDispatch) error
	StopProcessing(n *StopProcessing) error
}

// GasBurned reports gas permanently consumed by a message.
type GasBurned struct {
	MessageID MessageID `json:"message_id" msgpack:"message_id"`
	Amount    Gas       `json:"amount" msgpack:"amount"`
}

// SendMessage queues a message committed by the program.
type SendMessage struct {
	Origin   MessageID `json:"origin" msgpack:"origin"`
	Dispatch Dispatch  `json:"dispatch" msgpack:"dispatch"`
}

// ReplySent queues the reply to the processed message.
type ReplySent struct {
	Origin   MessageID `json:"origin" msgpack:"origin"`
	Dispatch Dispatch  `json:"dispatch" msgpack:"dispatch"`
}

// WaitDispatch parks the dispatch in the waitlist until woken or expired.
type WaitDispatch struct {
	Dispatch Dispatch `json:"dispatch" msgpack:"dispatch"`
	// Expiry is the block height at which the dispatch is removed from the waitlist.
	Expiry uint64 `json:"expiry" msgpack:"expiry"`
}

// WakeMessage moves a waiting message back to the queue.
type WakeMessage struct {
	Origin      MessageID `json:"origin" msgpack:"origin"`
	ProgramID   ProgramID `json:"program_id" msgpack:"program_id"`
	AwakeningID MessageID `json:"awakening_id" msgpack:"awakening_id"`
	Delay       uint32    `json:"delay" msgpack:"delay"`
}

// UpdatePage persists the final content of a written page.
type UpdatePage struct {
	ProgramID ProgramID  `json:"program_id" msgpack:"program_id"`
	Page      PageNumber `json:"page" msgpack:"page"`
	Data      PageBuf    `json:"data" msgpack:"data"`
}

// MessageDispatched records the final outcome of a dispatch.
type MessageDispatched struct {
	MessageID MessageID `json:"message_id" msgpack:"message_id"`
	Source    ProgramID `json:"source" msgpack:"source"`
	// ProgramID is the program the message was dispatched to.
	ProgramID ProgramID       `json:"program_id" msgpack:"program_id"`
	Outcome   DispatchOutcome `json:"outcome" msgpack:"outcome"`
}

// SystemReserveGas holds gas of the message back for signal delivery.
type SystemReserveGas struct {
	MessageID MessageID `json:"message_id" msgpack:"message_id"`
	Amount    Gas       `json:"amount" msgpack:"amount"`
}

// SystemUnreserveGas releases the system reservation of the message.
type SystemUnreserveGas struct {
	MessageID MessageID `json:"message_id" msgpack:"message_id"`
}

// SendSignal queues a signal dispatch to the program that trapped.
type SendSignal struct {
	Origin   MessageID `json:"origin" msgpack:"origin"`
	Dispatch Dispatch  `json:"dispatch" msgpack:"dispatch"`
}

// SendValue transfers value between accounts.
type SendValue struct {
	From  ProgramID   `json:"from" msgpack:"from"`
	To    ProgramID   `json:"to" msgpack:"to"`
	Value uint256.Int `json:"value" msgpack:"value"`
}

// ExitDispatch removes the program and sends its balance to ValueDestination.
type ExitDispatch struct {
	ProgramID        ProgramID `json:"program_id" msgpack:"program_id"`
	ValueDestination ProgramID `json:"value_destination" msgpack:"value_destination"`
}

// StopProcessing aborts the block. The dispatch must be retried in a later block.
type StopProcessing struct {
	Dispatch  Dispatch `json:"dispatch" msgpack:"dispatch"`
	GasBurned Gas      `json:"gas_burned" msgpack:"gas_burned"`
}

func (*GasBurned) Kind() NoteKind          { return NoteGasBurned }
func (*SendMessage) Kind() NoteKind        { return NoteSendMessage }
func (*ReplySent) Kind() NoteKind          { return NoteReplySent }
func (*WaitDispatch) Kind() NoteKind       { return NoteWaitDispatch }
func (*WakeMessage) Kind() NoteKind        { return NoteWakeMessage }
func (*UpdatePage) Kind() NoteKind         { return NoteUpdatePage }
func (*MessageDispatched) Kind() NoteKind  { return NoteMessageDispatched }
func (*SystemReserveGas) Kind() NoteKind   { return NoteSystemReserveGas }
func (*SystemUnreserveGas) Kind() NoteKind { return NoteSystemUnreserveGas }
func (*SendSignal) Kind() NoteKind         { return NoteSendSignal }
func (*SendValue) Kind() NoteKind          { return NoteSendValue }
func (*ExitDispatch) Kind() NoteKind       { return NoteExitDispatch }
func (*StopProcessing) Kind() NoteKind     { return NoteStopProcessing }

func (n *GasBurned) applyTo(h JournalHandler) error          { return h.GasBurned(n) }
func (n *SendMessage) applyTo(h JournalHandler) error        { return h.SendMessage(n) }
func (n *ReplySent) applyTo(h JournalHandler) error          { return h.ReplySent(n) }
func (n *WaitDispatch) applyTo(h JournalHandler) error       { return h.WaitDispatch(n) }
func (n *WakeMessage) applyTo(h JournalHandler) error        { return h.WakeMessage(n) }
func (n *UpdatePage) applyTo(h JournalHandler) error         { return h.UpdatePage(n) }
func (n *MessageDispatched) applyTo(h JournalHandler) error  { return h.MessageDispatched(n) }
func (n *SystemReserveGas) applyTo(h JournalHandler) error   { return h.SystemReserveGas(n) }
func (n *SystemUnreserveGas) applyTo(h JournalHandler) error { return h.SystemUnreserveGas(n) }
func (n *SendSignal) applyTo(h JournalHandler) error         { return h.SendSignal(n) }
func (n *SendValue) applyTo(h JournalHandler) error          { return h.SendValue(n) }
func (n *ExitDispatch) applyTo(h JournalHandler) error       { return h.ExitDispatch(n) }
func (n *StopProcessing) applyTo(h JournalHandler) error     { return h.StopProcessing(n) }

// OutcomeKind classifies how a dispatch ended.
type OutcomeKind uint8

const (
	OutcomeSuccess OutcomeKind = iota
	OutcomeInitSuccess
	OutcomeInitFailure
	OutcomeTrap
	OutcomeExit
	OutcomeNoExecution
)

func (k OutcomeKind) String() string {
	switch k {
	case OutcomeSuccess:
		return "Success"
	case OutcomeInitSuccess:
		return "InitSuccess"
	case OutcomeInitFailure:
		return "InitFailure"
	case OutcomeTrap:
		return "Trap"
	case OutcomeExit:
		return "Exit"
	case OutcomeNoExecution:
		return "NoExecution"
	default:
		return fmt.Sprintf("OutcomeKind(%d)", uint8(k))
	}
}

// DispatchOutcome is the result recorded by MessageDispatched.
// Code is set for Trap and InitFailure.
type DispatchOutcome struct {
	Kind   OutcomeKind `json:"kind" msgpack:"kind"`
	Code   SignalCode  `json:"code,omitempty" msgpack:"code"`
	Reason string      `json:"reason,omitempty" msgpack:"reason"`
}

func (o DispatchOutcome) String() string {
	switch o.Kind {
	case OutcomeTrap, OutcomeInitFailure:
		return fmt.Sprintf("%s(%s)", o.Kind, o.Code)
	default:
		return o.Kind.String()
	}
}
