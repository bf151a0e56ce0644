package error

import (
	"fmt"

	"github.com/CosmWasm/actorvm/types"
)

// GasError is returned when the message gas counter cannot cover a charge.
type GasError struct {
	Wanted    uint64
	Available uint64
}

func (e *GasError) Error() string {
	return fmt.Sprintf("insufficient gas: required %d, but only %d available", e.Wanted, e.Available)
}

func (e *GasError) Is(target error) bool { return target == types.ErrOutOfGas }

// AllowanceError is returned when the block allowance cannot cover a charge.
type AllowanceError struct {
	Wanted    uint64
	Available uint64
}

func (e *AllowanceError) Error() string {
	return fmt.Sprintf("insufficient block allowance: required %d, but only %d available", e.Wanted, e.Available)
}

func (e *AllowanceError) Is(target error) bool { return target == types.ErrAllowanceExceeded }

// InvariantViolation is the panic value used when the runtime detects a state
// that correct code can never reach. It is never recovered.
type InvariantViolation struct {
	Msg string
}

func (e *InvariantViolation) Error() string {
	return "invariant violation: " + e.Msg
}

// Violation panics with an InvariantViolation.
func Violation(format string, args ...any) {
	panic(&InvariantViolation{Msg: fmt.Sprintf(format, args...)})
}
