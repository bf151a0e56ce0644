package types

import "fmt"

// ProgramState is the lifecycle state of a program.
type ProgramState uint8

const (
	ProgramUninitialized ProgramState = iota
	ProgramActive
	ProgramExited
	ProgramTerminated
)

func (s ProgramState) String() string {
	switch s {
	case ProgramUninitialized:
		return "uninitialized"
	case ProgramActive:
		return "active"
	case ProgramExited:
		return "exited"
	case ProgramTerminated:
		return "terminated"
	default:
		return fmt.Sprintf("ProgramState(%d)", uint8(s))
	}
}

// Program is the on-chain description of an actor.
type Program struct {
	ID     ProgramID    `json:"id" msgpack:"id"`
	CodeID CodeID       `json:"code_id" msgpack:"code_id"`
	State  ProgramState `json:"state" msgpack:"state"`
	// MemoryPages is the size of the program's memory in pages.
	MemoryPages uint32 `json:"memory_pages" msgpack:"memory_pages"`
}

// Accepts reports whether a message of kind k can run on the program.
func (p *Program) Accepts(k MessageKind) bool {
	switch p.State {
	case ProgramUninitialized:
		return k == MessageKindInit
	case ProgramActive:
		return k != MessageKindInit
	default:
		return false
	}
}
