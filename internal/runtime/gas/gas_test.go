package gas

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	rterrors "github.com/CosmWasm/actorvm/internal/runtime/error"
	"github.com/CosmWasm/actorvm/types"
)

func TestCounterCharge(t *testing.T) {
	c := NewCounter(1_000)

	require.NoError(t, c.Charge(400))
	assert.Equal(t, types.Gas(600), c.Left())
	assert.Equal(t, types.Gas(400), c.Burned())

	err := c.Charge(601)
	require.ErrorIs(t, err, types.ErrOutOfGas)
	var gasErr *rterrors.GasError
	require.True(t, errors.As(err, &gasErr))
	assert.Equal(t, uint64(601), gasErr.Wanted)
	assert.Equal(t, uint64(600), gasErr.Available)

	// failed charge leaves the counter untouched
	assert.Equal(t, types.Gas(600), c.Left())
	assert.Equal(t, types.Gas(400), c.Burned())

	require.NoError(t, c.Charge(600))
	assert.Equal(t, types.Gas(0), c.Left())
	assert.Equal(t, c.Limit(), c.Burned())
}

func TestCounterSequentialCharges(t *testing.T) {
	c := NewCounter(1_000)
	require.NoError(t, c.Charge(600))
	assert.Equal(t, types.Gas(400), c.Left())

	require.ErrorIs(t, c.Charge(500), types.ErrOutOfGas)
	assert.Equal(t, types.Gas(400), c.Left())
}

func TestCounterReduceAndRefund(t *testing.T) {
	c := NewCounter(1_000)
	require.NoError(t, c.Charge(300))
	require.NoError(t, c.Reduce(200))
	assert.Equal(t, types.Gas(500), c.Left())
	assert.Equal(t, types.Gas(300), c.Burned())
	assert.Equal(t, c.Limit()-c.Left(), c.Burned()+200)

	require.ErrorIs(t, c.Reduce(501), types.ErrOutOfGas)

	assert.Equal(t, types.Gas(100), c.Refund(100))
	assert.Equal(t, types.Gas(600), c.Left())
	assert.Equal(t, types.Gas(200), c.Burned())

	// refund is capped by what was burned
	assert.Equal(t, types.Gas(200), c.Refund(10_000))
	assert.Equal(t, types.Gas(0), c.Burned())
	assert.Equal(t, types.Gas(800), c.Left())
}

func TestAllowanceCounter(t *testing.T) {
	a := NewAllowanceCounter(50)
	require.NoError(t, a.Charge(50))
	err := a.Charge(1)
	require.ErrorIs(t, err, types.ErrAllowanceExceeded)
	require.NotErrorIs(t, err, types.ErrOutOfGas)
	assert.Equal(t, types.Gas(0), a.Left())
}

func TestChargerChecksAllowanceFirst(t *testing.T) {
	specs := map[string]struct {
		limit, allowance, charge types.Gas
		expErr                   error
		expStatus                Status
	}{
		"both sufficient": {
			limit: 100, allowance: 100, charge: 100,
			expStatus: StatusNormal,
		},
		"gas short": {
			limit: 10, allowance: 100, charge: 50,
			expErr: types.ErrOutOfGas, expStatus: StatusGasExceeded,
		},
		"allowance short": {
			limit: 100, allowance: 10, charge: 50,
			expErr: types.ErrAllowanceExceeded, expStatus: StatusAllowanceExceeded,
		},
		"both short": {
			limit: 10, allowance: 10, charge: 50,
			expErr: types.ErrAllowanceExceeded, expStatus: StatusAllowanceExceeded,
		},
	}
	for name, spec := range specs {
		t.Run(name, func(t *testing.T) {
			c := NewCharger(spec.limit, spec.allowance)
			err := c.Charge(spec.charge)
			assert.Equal(t, spec.expStatus, c.Status())
			if spec.expErr == nil {
				require.NoError(t, err)
				assert.Equal(t, spec.limit-spec.charge, c.Left())
				assert.Equal(t, spec.allowance-spec.charge, c.Allowance())
				return
			}
			require.ErrorIs(t, err, spec.expErr)
			assert.Equal(t, spec.expStatus, StatusOf(err))
			assert.Equal(t, spec.limit, c.Left())
			assert.Equal(t, spec.allowance, c.Allowance())
			assert.Equal(t, types.Gas(0), c.Burned())
		})
	}
}

func TestChargerStatusIsSticky(t *testing.T) {
	c := NewCharger(10, 15)
	require.ErrorIs(t, c.Charge(11), types.ErrOutOfGas)
	require.NoError(t, c.Charge(5))
	assert.Equal(t, StatusGasExceeded, c.Status())

	// a later allowance failure does not overwrite the first one
	require.ErrorIs(t, c.Charge(20), types.ErrAllowanceExceeded)
	assert.Equal(t, StatusGasExceeded, c.Status())
}

func TestChargerRefundRestoresAllowance(t *testing.T) {
	c := NewCharger(100, 100)
	require.NoError(t, c.Charge(60))
	c.Refund(20)
	assert.Equal(t, types.Gas(60), c.Left())
	assert.Equal(t, types.Gas(60), c.Allowance())
	assert.Equal(t, types.Gas(40), c.Burned())

	require.NoError(t, c.Reduce(60))
	assert.Equal(t, types.Gas(0), c.Left())
	assert.Equal(t, types.Gas(60), c.Allowance())
	assert.Equal(t, Report{Limit: 100, Remaining: 0, Burned: 40, Allowance: 60}, c.Report())
}

func TestChargerChargeAllowance(t *testing.T) {
	c := NewCharger(1_000, 500)
	require.NoError(t, c.ChargeAllowance(200))
	assert.Equal(t, types.Gas(300), c.Allowance())
	assert.Equal(t, types.Gas(1_000), c.Left())
	assert.Equal(t, StatusNormal, c.Status())

	err := c.ChargeAllowance(301)
	require.ErrorIs(t, err, types.ErrAllowanceExceeded)
	assert.Equal(t, StatusAllowanceExceeded, c.Status())
	assert.Equal(t, StatusAllowanceExceeded, StatusOf(err))
	assert.Equal(t, types.Gas(300), c.Allowance())
}
