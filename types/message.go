package types

import (
	"fmt"

	"github.com/holiman/uint256"
)

// MaxValueBits is the width of a message value. Values are u128 on chain.
const MaxValueBits = 128

// MessageKind selects the entry point a message is delivered to.
type MessageKind uint8

const (
	MessageKindInit MessageKind = iota
	MessageKindHandle
	MessageKindReply
	MessageKindSignal
)

func (k MessageKind) String() string {
	switch k {
	case MessageKindInit:
		return "init"
	case MessageKindHandle:
		return "handle"
	case MessageKindReply:
		return "reply"
	case MessageKindSignal:
		return "signal"
	default:
		return fmt.Sprintf("MessageKind(%d)", uint8(k))
	}
}

// EntryPoint is the name of the wasm export invoked for this kind.
func (k MessageKind) EntryPoint() EntryPoint {
	switch k {
	case MessageKindInit:
		return EntryPointInit
	case MessageKindHandle:
		return EntryPointHandle
	case MessageKindReply:
		return EntryPointReply
	case MessageKindSignal:
		return EntryPointSignal
	default:
		panic(fmt.Sprintf("no entry point for %s", k))
	}
}

// EntryPoint is an exported wasm function a dispatch can run.
type EntryPoint string

const (
	EntryPointInit   EntryPoint = "init"
	EntryPointHandle EntryPoint = "handle"
	EntryPointReply  EntryPoint = "handle_reply"
	EntryPointSignal EntryPoint = "handle_signal"
)

// ReplyDetails marks a message as the reply to another one.
type ReplyDetails struct {
	To   MessageID `json:"to" msgpack:"to"`
	Code ReplyCode `json:"code" msgpack:"code"`
}

// IsError reports whether the reply carries an execution error.
func (d *ReplyDetails) IsError() bool {
	return d != nil && d.Code.IsError()
}

// SignalDetails marks a message as a system signal about another message.
type SignalDetails struct {
	To   MessageID  `json:"to" msgpack:"to"`
	Code SignalCode `json:"code" msgpack:"code"`
}

// Message is an immutable unit of communication between programs.
type Message struct {
	ID          MessageID      `json:"id" msgpack:"id"`
	Source      ProgramID      `json:"source" msgpack:"source"`
	Destination ProgramID      `json:"destination" msgpack:"destination"`
	Payload     []byte         `json:"payload" msgpack:"payload"`
	Value       uint256.Int    `json:"value" msgpack:"value"`
	Kind        MessageKind    `json:"kind" msgpack:"kind"`
	Reply       *ReplyDetails  `json:"reply,omitempty" msgpack:"reply"`
	Signal      *SignalDetails `json:"signal,omitempty" msgpack:"signal"`
}

// IsErrorReply reports whether m is a reply carrying an error code.
func (m *Message) IsErrorReply() bool {
	return m.Kind == MessageKindReply && m.Reply.IsError()
}

// ValidateValue checks that v fits into a u128.
func ValidateValue(v *uint256.Int) error {
	if v.BitLen() > MaxValueBits {
		return fmt.Errorf("value %s: %w", v.Dec(), ErrValueOverflow)
	}
	return nil
}
