package pricing

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/redbridge-network/partychain/core/oracle"
	"github.com/redbridge-network/partychain/core/types"
)

func setupModel(t *testing.T) (*Model, int64) {
	t.Helper()
	o := oracle.New()
	now := time.Now()
	o.LoadDailyHistory(types.Bitcoin, []oracle.Point{{TimeMS: now.Add(-time.Hour).UnixMilli(), USD: 60000}})
	o.LoadDailyHistory(types.Redgold, []oracle.Point{{TimeMS: now.Add(-time.Hour).UnixMilli(), USD: 100}})
	m := New(o, DefaultConfig())
	m.SetInventory(types.Redgold, 1_000_000)
	m.SetTarget(types.Redgold, 1.0)
	m.SetExpectedFeeUSD(types.Redgold, 0.01)
	return m, now.UnixMilli()
}

func TestQuoteMidMatchesOracleRatio(t *testing.T) {
	m, now := setupModel(t)
	cp, err := m.Quote(types.Bitcoin, types.Redgold, now)
	require.NoError(t, err)
	assert.InDelta(t, 600.0, cp.Mid, 0.01)
}

func TestQuoteForInsufficientInventoryClampsOrErrors(t *testing.T) {
	m, now := setupModel(t)
	o := oracle.New()
	o.LoadDailyHistory(types.Ethereum, []oracle.Point{{TimeMS: now - 1000, USD: 3000}})
	o.LoadDailyHistory(types.Redgold, []oracle.Point{{TimeMS: now - 1000, USD: 100}})
	m.oracle = o
	m.SetInventory(types.Ethereum, 0)

	_, err := m.QuoteFor(5, types.Redgold, types.Ethereum, now)
	require.Error(t, err)
}
