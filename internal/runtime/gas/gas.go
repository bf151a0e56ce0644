package gas

import (
	"errors"
	"fmt"

	"github.com/CosmWasm/actorvm/types"
)

// Status records whether a charge has ever failed during an execution.
type Status uint8

const (
	StatusNormal Status = iota
	StatusGasExceeded
	StatusAllowanceExceeded
)

func (s Status) String() string {
	switch s {
	case StatusNormal:
		return "normal"
	case StatusGasExceeded:
		return "gas limit exceeded"
	case StatusAllowanceExceeded:
		return "allowance exceeded"
	default:
		return fmt.Sprintf("Status(%d)", uint8(s))
	}
}

// Charger charges the message counter and the block allowance together.
// The allowance is checked first; neither counter changes unless both can pay.
type Charger struct {
	counter   *Counter
	allowance *AllowanceCounter
	status    Status
}

// NewCharger creates a charger over fresh counters.
func NewCharger(limit, allowance types.Gas) *Charger {
	return &Charger{
		counter:   NewCounter(limit),
		allowance: NewAllowanceCounter(allowance),
	}
}

// Charge burns amount from both counters.
func (c *Charger) Charge(amount types.Gas) error {
	if amount > c.allowance.Left() {
		c.fail(StatusAllowanceExceeded)
		return c.allowance.Charge(amount)
	}
	if err := c.counter.Charge(amount); err != nil {
		c.fail(StatusGasExceeded)
		return err
	}
	// Cannot fail: checked above.
	_ = c.allowance.Charge(amount)
	return nil
}

// ChargeAllowance burns amount from the block allowance only, for work that
// is not paid for by the message.
func (c *Charger) ChargeAllowance(amount types.Gas) error {
	if err := c.allowance.Charge(amount); err != nil {
		c.fail(StatusAllowanceExceeded)
		return err
	}
	return nil
}

// Reduce transfers amount from the message counter to an outgoing message.
// Transferred gas is not burned and does not touch the allowance.
func (c *Charger) Reduce(amount types.Gas) error {
	return c.counter.Reduce(amount)
}

// Refund returns gas charged earlier by Charge.
func (c *Charger) Refund(amount types.Gas) {
	refunded := c.counter.Refund(amount)
	c.allowance.Refund(refunded)
}

func (c *Charger) fail(s Status) {
	if c.status == StatusNormal {
		c.status = s
	}
}

// Status returns the first charging failure, if any.
func (c *Charger) Status() Status { return c.status }

func (c *Charger) Left() types.Gas      { return c.counter.Left() }
func (c *Charger) Burned() types.Gas    { return c.counter.Burned() }
func (c *Charger) Allowance() types.Gas { return c.allowance.Left() }

// Report summarizes the counters.
func (c *Charger) Report() Report {
	return Report{
		Limit:     c.counter.Limit(),
		Remaining: c.counter.Left(),
		Burned:    c.counter.Burned(),
		Allowance: c.allowance.Left(),
	}
}

// StatusOf classifies a charging error.
func StatusOf(err error) Status {
	switch {
	case err == nil:
		return StatusNormal
	case errors.Is(err, types.ErrAllowanceExceeded):
		return StatusAllowanceExceeded
	case errors.Is(err, types.ErrOutOfGas):
		return StatusGasExceeded
	default:
		return StatusNormal
	}
}
