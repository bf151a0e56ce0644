package gas

import (
	rterrors "github.com/CosmWasm/actorvm/internal/runtime/error"
	"github.com/CosmWasm/actorvm/types"
)

// Counter tracks the gas of one message during one execution.
// burned + transferred == limit - left, where transferred is gas handed to
// outgoing messages through Reduce.
type Counter struct {
	limit  types.Gas
	left   types.Gas
	burned types.Gas
}

// NewCounter creates a new gas counter with the specified limit
func NewCounter(limit types.Gas) *Counter {
	return &Counter{
		limit: limit,
		left:  limit,
	}
}

// Charge burns amount. On failure nothing changes.
func (c *Counter) Charge(amount types.Gas) error {
	if amount > c.left {
		return &rterrors.GasError{
			Wanted:    amount,
			Available: c.left,
		}
	}
	c.left -= amount
	c.burned += amount
	return nil
}

// Reduce moves amount out of the counter without burning it.
func (c *Counter) Reduce(amount types.Gas) error {
	if amount > c.left {
		return &rterrors.GasError{
			Wanted:    amount,
			Available: c.left,
		}
	}
	c.left -= amount
	return nil
}

// Refund returns burned gas to the counter. It never refunds more than was
// burned and reports how much was actually returned.
func (c *Counter) Refund(amount types.Gas) types.Gas {
	if amount > c.burned {
		amount = c.burned
	}
	c.burned -= amount
	c.left += amount
	return amount
}

func (c *Counter) Limit() types.Gas  { return c.limit }
func (c *Counter) Left() types.Gas   { return c.left }
func (c *Counter) Burned() types.Gas { return c.burned }

// AllowanceCounter tracks the block-wide budget available to one execution.
type AllowanceCounter struct {
	left types.Gas
}

func NewAllowanceCounter(allowance types.Gas) *AllowanceCounter {
	return &AllowanceCounter{left: allowance}
}

// Charge consumes amount. On failure nothing changes.
func (a *AllowanceCounter) Charge(amount types.Gas) error {
	if amount > a.left {
		return &rterrors.AllowanceError{
			Wanted:    amount,
			Available: a.left,
		}
	}
	a.left -= amount
	return nil
}

// Refund returns amount to the allowance.
func (a *AllowanceCounter) Refund(amount types.Gas) {
	a.left += amount
}

func (a *AllowanceCounter) Left() types.Gas { return a.left }

// Report contains information about gas usage
type Report struct {
	Limit     types.Gas
	Remaining types.Gas
	Burned    types.Gas
	Allowance types.Gas
}
