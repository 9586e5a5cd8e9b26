package fulfillment

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/redbridge-network/partychain/core/types"
)

func TestCheckDustRejectsBelowLimit(t *testing.T) {
	order := types.Order{ToCurrency: types.Redgold, ExpectedAmount: types.NewAmount(types.Redgold, 500)}
	err := CheckDust(order)
	require.Error(t, err)
}

func TestCheckDustAllowsAtLimit(t *testing.T) {
	order := types.Order{ToCurrency: types.Redgold, ExpectedAmount: types.NewAmount(types.Redgold, 1000)}
	require.NoError(t, CheckDust(order))
}

func TestRateLimiterBoundsPerTick(t *testing.T) {
	rl := NewRateLimiter(2)
	assert.True(t, rl.Allow())
	assert.True(t, rl.Allow())
	assert.False(t, rl.Allow())
	rl.Reset()
	assert.True(t, rl.Allow())
}

func TestZeroFeeStakeConditionRequiresAllThree(t *testing.T) {
	assert.True(t, QualifiesForZeroFeeStake(ZeroFeeStakeMinTotal, 2, 10*time.Minute, time.Minute))
	assert.False(t, QualifiesForZeroFeeStake(ZeroFeeStakeMinTotal-1, 2, 10*time.Minute, time.Minute))
	assert.False(t, QualifiesForZeroFeeStake(ZeroFeeStakeMinTotal, 5, 10*time.Minute, time.Minute))
}
