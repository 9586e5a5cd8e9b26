package oracle

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/redbridge-network/partychain/core/partyerr"
	"github.com/redbridge-network/partychain/core/types"
)

func TestPriceReturnsMostRecentAtOrBefore(t *testing.T) {
	o := New()
	base := time.UnixMilli(1_000_000)
	o.LoadDailyHistory(types.Bitcoin, []Point{
		{TimeMS: base.UnixMilli(), USD: 60000},
		{TimeMS: base.Add(24 * time.Hour).UnixMilli(), USD: 61000},
	})

	p, err := o.Price(types.Bitcoin, base.Add(12*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 60000.0, p)
}

func TestPriceUnavailableBeforeFirstPoint(t *testing.T) {
	o := New()
	base := time.UnixMilli(10_000_000)
	o.LoadDailyHistory(types.Ethereum, []Point{{TimeMS: base.UnixMilli(), USD: 3000}})

	_, err := o.Price(types.Ethereum, base.Add(-time.Hour))
	require.Error(t, err)
	assert.True(t, partyerr.Is(err, partyerr.KindConsensus))
}

func TestPriceUnavailableWhenStale(t *testing.T) {
	o := New()
	base := time.UnixMilli(10_000_000)
	o.LoadDailyHistory(types.Ethereum, []Point{{TimeMS: base.UnixMilli(), USD: 3000}})

	_, err := o.Price(types.Ethereum, base.Add(48*time.Hour))
	require.Error(t, err)
}

func TestLiveTickPreferredWhenFresh(t *testing.T) {
	o := New()
	now := time.Now()
	o.LoadDailyHistory(types.Bitcoin, []Point{{TimeMS: now.Add(-time.Hour).UnixMilli(), USD: 59000}})
	o.RecordLiveTick(types.Bitcoin, 60500, now)

	p, err := o.Price(types.Bitcoin, now)
	require.NoError(t, err)
	assert.Equal(t, 60500.0, p)
}
