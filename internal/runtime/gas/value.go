package gas

import (
	"github.com/holiman/uint256"

	"github.com/CosmWasm/actorvm/types"
)

// ValueCounter tracks the value a program can still attach to outgoing
// messages during one execution.
type ValueCounter struct {
	left uint256.Int
}

// NewValueCounter creates a counter holding v. A nil v is zero.
func NewValueCounter(v *uint256.Int) *ValueCounter {
	c := &ValueCounter{}
	if v != nil {
		c.left.Set(v)
	}
	return c
}

// Reduce takes v from the counter. On failure nothing changes.
func (c *ValueCounter) Reduce(v *uint256.Int) error {
	if c.left.Lt(v) {
		return types.NewMessageError(types.CodeNotEnoughValue, "value %s, %s left", v.Dec(), c.left.Dec())
	}
	c.left.Sub(&c.left, v)
	return nil
}

// Increase returns v taken by an operation that did not complete.
func (c *ValueCounter) Increase(v *uint256.Int) {
	c.left.Add(&c.left, v)
}

func (c *ValueCounter) Left() *uint256.Int { return new(uint256.Int).Set(&c.left) }
