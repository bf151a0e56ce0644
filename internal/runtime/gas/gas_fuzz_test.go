package gas

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/CosmWasm/actorvm/types"
)

// Operation types for gas testing
type gasOperation byte

const (
	opCharge gasOperation = iota
	opReduce
	opRefund
	opCount
)

func FuzzChargerAccounting(f *testing.F) {
	f.Add(uint64(0), uint64(0), []byte{})
	f.Add(uint64(1_000), uint64(1_000), []byte{0, 10, 1, 20, 2, 5})
	f.Add(uint64(100), uint64(10_000), []byte{0, 200, 0, 50, 1, 60})
	f.Add(uint64(10_000), uint64(100), []byte{0, 99, 0, 2, 2, 255})

	f.Fuzz(func(t *testing.T, limit, allowance uint64, ops []byte) {
		c := NewCharger(limit, allowance)
		var transferred types.Gas
		for i := 0; i+1 < len(ops); i += 2 {
			amount := types.Gas(ops[i+1]) * 7
			left, burned, allow := c.Left(), c.Burned(), c.Allowance()

			switch gasOperation(ops[i]) % opCount {
			case opCharge:
				if err := c.Charge(amount); err != nil {
					require.Equal(t, left, c.Left())
					require.Equal(t, burned, c.Burned())
					require.Equal(t, allow, c.Allowance())
					require.NotEqual(t, StatusNormal, c.Status())
				}
			case opReduce:
				if err := c.Reduce(amount); err == nil {
					transferred += amount
				} else {
					require.Equal(t, left, c.Left())
				}
			case opRefund:
				c.Refund(amount)
				require.LessOrEqual(t, c.Left(), limit)
			}

			require.LessOrEqual(t, c.Left(), limit)
			require.Equal(t, limit-c.Left(), c.Burned()+transferred)
		}
	})
}
