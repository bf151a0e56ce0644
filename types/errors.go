package types

import (
	"errors"
	"fmt"
)

var (
	// ErrOutOfGas is matched by every error caused by exhausting the message gas.
	ErrOutOfGas = errors.New("out of gas")
	// ErrAllowanceExceeded is matched by every error caused by exhausting the block allowance.
	ErrAllowanceExceeded = errors.New("block gas allowance exceeded")
	// ErrMemoryOverflow is returned when an access falls outside program memory.
	ErrMemoryOverflow = errors.New("memory overflow")
	// ErrValueOverflow is returned for values wider than 128 bits.
	ErrValueOverflow = errors.New("value exceeds 128 bits")
)

// MessageErrorCode is the stable code written back to the program when a
// message syscall fails. Zero means success.
type MessageErrorCode uint32

const (
	CodeLateAccess        MessageErrorCode = 1
	CodeDuplicateReply    MessageErrorCode = 2
	CodeOutOfHandles      MessageErrorCode = 3
	CodeSizeLimitExceeded MessageErrorCode = 4
	CodeOutOfBounds       MessageErrorCode = 5
	CodeDuplicateWaking   MessageErrorCode = 6
	CodeDuplicateWait     MessageErrorCode = 7
	CodeNotEnoughGas      MessageErrorCode = 8
	CodeValueOverflow     MessageErrorCode = 9
	CodeNotEnoughValue    MessageErrorCode = 10
)

func (c MessageErrorCode) String() string {
	switch c {
	case CodeLateAccess:
		return "late access"
	case CodeDuplicateReply:
		return "duplicate reply"
	case CodeOutOfHandles:
		return "out of handles"
	case CodeSizeLimitExceeded:
		return "size limit exceeded"
	case CodeOutOfBounds:
		return "out of bounds"
	case CodeDuplicateWaking:
		return "duplicate waking"
	case CodeDuplicateWait:
		return "duplicate wait"
	case CodeNotEnoughGas:
		return "not enough gas"
	case CodeValueOverflow:
		return "value overflow"
	case CodeNotEnoughValue:
		return "not enough value"
	default:
		return fmt.Sprintf("MessageErrorCode(%d)", uint32(c))
	}
}

// MessageError is a contract violation by the program. It is reported back to
// the program as an error code and never traps the execution by itself.
type MessageError struct {
	Code MessageErrorCode
	Msg  string
}

var _ error = (*MessageError)(nil)

func (e *MessageError) Error() string {
	if e.Msg == "" {
		return e.Code.String()
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Msg)
}

// Is matches any MessageError with the same code.
func (e *MessageError) Is(target error) bool {
	t, ok := target.(*MessageError)
	return ok && t.Code == e.Code
}

// NewMessageError creates a MessageError with a formatted message.
func NewMessageError(code MessageErrorCode, format string, args ...any) *MessageError {
	return &MessageError{Code: code, Msg: fmt.Sprintf(format, args...)}
}

// Sentinels for errors.Is.
var (
	ErrLateAccess        = &MessageError{Code: CodeLateAccess}
	ErrDuplicateReply    = &MessageError{Code: CodeDuplicateReply}
	ErrOutOfHandles      = &MessageError{Code: CodeOutOfHandles}
	ErrSizeLimitExceeded = &MessageError{Code: CodeSizeLimitExceeded}
	ErrOutOfBounds       = &MessageError{Code: CodeOutOfBounds}
	ErrDuplicateWaking   = &MessageError{Code: CodeDuplicateWaking}
	ErrDuplicateWait     = &MessageError{Code: CodeDuplicateWait}
	ErrNotEnoughGas      = &MessageError{Code: CodeNotEnoughGas}
	ErrNotEnoughValue    = &MessageError{Code: CodeNotEnoughValue}
)

// ErrorCode extracts the syscall code from err. Nil maps to zero.
func ErrorCode(err error) (MessageErrorCode, bool) {
	if err == nil {
		return 0, true
	}
	var me *MessageError
	if errors.As(err, &me) {
		return me.Code, true
	}
	if errors.Is(err, ErrValueOverflow) {
		return CodeValueOverflow, true
	}
	return 0, false
}
