package types

import "fmt"

// SignalCode is the stable code reported to programs and in journals when a
// dispatch fails. The numeric values are part of the external ABI.
type SignalCode uint32

const (
	SignalUserspacePanic         SignalCode = 100
	SignalRanOutOfGas            SignalCode = 101
	SignalBackendError           SignalCode = 102
	SignalMemoryOverflow         SignalCode = 103
	SignalUnreachableInstruction SignalCode = 104
	SignalStackLimitExceeded     SignalCode = 105
	SignalRemovedFromWaitlist    SignalCode = 200
)

func (c SignalCode) String() string {
	switch c {
	case SignalUserspacePanic:
		return "UserspacePanic"
	case SignalRanOutOfGas:
		return "RanOutOfGas"
	case SignalBackendError:
		return "BackendError"
	case SignalMemoryOverflow:
		return "MemoryOverflow"
	case SignalUnreachableInstruction:
		return "UnreachableInstruction"
	case SignalStackLimitExceeded:
		return "StackLimitExceeded"
	case SignalRemovedFromWaitlist:
		return "RemovedFromWaitlist"
	default:
		return fmt.Sprintf("SignalCode(%d)", uint32(c))
	}
}

// TrapReason is why an execution trapped, as reported by a backend.
type TrapReason uint8

const (
	TrapPanic TrapReason = iota
	TrapGasLimitExceeded
	TrapBackendError
	TrapMemoryOverflow
	TrapUnreachable
	TrapStackLimitExceeded
)

// TrapReasons lists every trap reason.
var TrapReasons = []TrapReason{
	TrapPanic,
	TrapGasLimitExceeded,
	TrapBackendError,
	TrapMemoryOverflow,
	TrapUnreachable,
	TrapStackLimitExceeded,
}

// SignalCode maps the reason to the code delivered to the program.
func (r TrapReason) SignalCode() SignalCode {
	switch r {
	case TrapPanic:
		return SignalUserspacePanic
	case TrapGasLimitExceeded:
		return SignalRanOutOfGas
	case TrapBackendError:
		return SignalBackendError
	case TrapMemoryOverflow:
		return SignalMemoryOverflow
	case TrapUnreachable:
		return SignalUnreachableInstruction
	case TrapStackLimitExceeded:
		return SignalStackLimitExceeded
	default:
		panic(fmt.Sprintf("unmapped trap reason %d", uint8(r)))
	}
}

func (r TrapReason) String() string { return r.SignalCode().String() }

// ReplyCode describes the result a reply reports to its receiver.
// Error replies caused by a trap carry the trap's SignalCode.
type ReplyCode uint32

const (
	ReplySuccess       ReplyCode = 0
	ReplySuccessAuto   ReplyCode = 1
	ReplyNonExecutable ReplyCode = 2
)

// ReplyFromSignal returns the error reply code for a trap.
func ReplyFromSignal(c SignalCode) ReplyCode { return ReplyCode(c) }

// IsError reports whether the code signals a failed execution.
func (c ReplyCode) IsError() bool {
	return c != ReplySuccess && c != ReplySuccessAuto
}
