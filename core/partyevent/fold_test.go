package partyevent

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/redbridge-network/partychain/core/oracle"
	"github.com/redbridge-network/partychain/core/pricing"
	"github.com/redbridge-network/partychain/core/types"
)

func newTestPricer(t *testing.T, now time.Time) *pricing.Model {
	t.Helper()
	o := oracle.New()
	o.LoadDailyHistory(types.Bitcoin, []oracle.Point{{TimeMS: now.Add(-time.Hour).UnixMilli(), USD: 60000}})
	o.LoadDailyHistory(types.Redgold, []oracle.Point{{TimeMS: now.Add(-time.Hour).UnixMilli(), USD: 100}})
	o.LoadDailyHistory(types.USD, []oracle.Point{{TimeMS: now.Add(-time.Hour).UnixMilli(), USD: 1}})
	m := pricing.New(o, pricing.DefaultConfig())
	m.SetInventory(types.Redgold, 10_000_000)
	m.SetTarget(types.Redgold, 1.0)
	return m
}

func externalEvent(txID string, amountBaseUnits uint64, ts int64) AddressEvent {
	price := 60000.0
	return NewExternal(types.ExternalTimedTransaction{
		TxID:      txID,
		Timestamp: &ts,
		Currency:  types.Bitcoin,
		Amount:    types.NewAmount(types.Bitcoin, amountBaseUnits),
		Incoming:  true,
		PriceUSD:  &price,
	})
}

func TestFoldIsDeterministicAcrossReplays(t *testing.T) {
	now := time.Now()
	pricer := newTestPricer(t, now)
	events := []AddressEvent{
		externalEvent("tx3", 1000, 3000),
		externalEvent("tx1", 1000, 1000),
		externalEvent("tx2", 1000, 2000),
	}

	pe1 := NewPartyEvents()
	pe1.FoldOrdered(events, nil, pricer, now.UnixMilli())

	pe2 := NewPartyEvents()
	// Feed in a different arrival order; the fold must reorder by time.
	shuffled := []AddressEvent{events[1], events[2], events[0]}
	pe2.FoldOrdered(shuffled, nil, pricer, now.UnixMilli())

	require.Equal(t, len(pe1.Ordered), len(pe2.Ordered))
	for i := range pe1.Ordered {
		assert.Equal(t, pe1.Ordered[i].Identifier(), pe2.Ordered[i].Identifier())
	}
	assert.Equal(t, "tx1", pe1.Ordered[0].Identifier())
	assert.Equal(t, "tx3", pe1.Ordered[2].Identifier())
}

func TestFoldDedupesByCurrencyAndTxID(t *testing.T) {
	now := time.Now()
	pricer := newTestPricer(t, now)
	pe := NewPartyEvents()
	ev := externalEvent("tx-dup", 5000, now.UnixMilli())

	pe.FoldOrdered([]AddressEvent{ev}, nil, pricer, now.UnixMilli())
	pe.FoldOrdered([]AddressEvent{ev}, nil, pricer, now.UnixMilli())

	assert.Len(t, pe.Ordered, 1)
}

func TestFoldDefersEventWithUnresolvedTime(t *testing.T) {
	now := time.Now()
	pricer := newTestPricer(t, now)
	pe := NewPartyEvents()

	internalEvent := NewInternal(InternalPayload{
		Tx: types.Transaction{Metadata: types.TxMetadata{Hash: types.HashBytes([]byte("H"))}},
	})

	seeds := []types.PublicKey{{Bytes: []byte("seed-a")}}
	pe.FoldOrdered([]AddressEvent{internalEvent}, seeds, pricer, now.UnixMilli())

	assert.Equal(t, 1, pe.PendingCount())
	assert.Empty(t, pe.Ordered)
}

func TestFoldResolvesDeferredEventOnNextPass(t *testing.T) {
	now := time.Now()
	pricer := newTestPricer(t, now)
	pe := NewPartyEvents()

	seedKey := types.PublicKey{Bytes: []byte("seed-a")}
	txHash := types.HashBytes([]byte("H"))

	unresolved := NewInternal(InternalPayload{
		Tx: types.Transaction{Metadata: types.TxMetadata{Hash: txHash}},
	})
	pe.FoldOrdered([]AddressEvent{unresolved}, []types.PublicKey{seedKey}, pricer, now.UnixMilli())
	require.Equal(t, 1, pe.PendingCount())

	// Next tick: same pending event now carries two accepted+live seed
	// observations at times 1000 and 1002, averaging to 1001.
	resolved := NewInternal(InternalPayload{
		Tx: types.Transaction{Metadata: types.TxMetadata{Hash: txHash}},
		Observations: []types.ObservationProof{
			{Proof: types.Proof{PublicKey: seedKey}, Metadata: types.ObservationMetadata{
				Time: 1000, State: types.StateAccepted, Liveness: types.LivenessLive,
			}},
			{Proof: types.Proof{PublicKey: seedKey}, Metadata: types.ObservationMetadata{
				Time: 1002, State: types.StateAccepted, Liveness: types.LivenessLive,
			}},
		},
	})
	pe.pending = nil // simulate the driver re-submitting the now-richer event
	pe.FoldOrdered([]AddressEvent{resolved}, []types.PublicKey{seedKey}, pricer, now.UnixMilli())

	assert.Equal(t, 0, pe.PendingCount())
	require.Len(t, pe.Ordered, 1)
}

func TestImplicitSwapRequestProducesFulfillment(t *testing.T) {
	now := time.Now()
	o := oracle.New()
	o.LoadDailyHistory(types.Redgold, []oracle.Point{{TimeMS: now.Add(-time.Hour).UnixMilli(), USD: 100}})
	o.LoadDailyHistory(types.Ethereum, []oracle.Point{{TimeMS: now.Add(-time.Hour).UnixMilli(), USD: 2000}})
	o.LoadDailyHistory(types.USD, []oracle.Point{{TimeMS: now.Add(-time.Hour).UnixMilli(), USD: 1}})
	pricer := pricing.New(o, pricing.DefaultConfig())
	pricer.SetInventory(types.Ethereum, 1000)
	pricer.SetTarget(types.Ethereum, 1.0)

	pe := NewPartyEvents()
	price := 100.0
	ethAddr := "0x0000000000000000000000000000000000000001"
	tx := types.Transaction{
		Outputs:  []types.TxOutput{{Amount: types.NewAmount(types.Redgold, 50_000)}},
		Options:  types.TxOptions{Memo: "ETH:" + ethAddr},
		Metadata: types.TxMetadata{Time: now, Hash: types.HashBytes([]byte("implicit-swap"))},
	}
	ev := NewInternal(InternalPayload{Tx: tx, PriceUSD: &price})

	pe.FoldOrdered([]AddressEvent{ev}, nil, pricer, now.UnixMilli())

	require.Len(t, pe.Ordered, 1)
	require.Len(t, pe.LocallyFulfilledOrders, 1)
	of, ok := pe.LocallyFulfilledOrders[ev.Identifier()]
	require.True(t, ok)
	assert.Equal(t, types.Ethereum, of.Order.ToCurrency)
	assert.Equal(t, ethAddr, of.Order.ToAddress.RenderString())
	assert.True(t, of.ExpectedAmount.BaseUnits > 0 || of.ExpectedAmount.Big != nil)
}

func TestOtherSwapAddressStripsCurrencyPrefixForInternalMemo(t *testing.T) {
	ev := NewInternal(InternalPayload{
		Tx: types.Transaction{Options: types.TxOptions{Memo: "BTC:1BoatSLRHtKNngkdXEeobR76b53LETtpyT"}},
	})
	addr, ok := ev.OtherSwapAddress()
	require.True(t, ok)
	assert.Equal(t, "1BoatSLRHtKNngkdXEeobR76b53LETtpyT", addr)
}

func TestSwapRequestDustBelowLimitStillRecordsEvent(t *testing.T) {
	now := time.Now()
	pricer := newTestPricer(t, now)
	pe := NewPartyEvents()

	ev := externalEvent("tx-dust", 500, now.UnixMilli())
	ev.External.Memo = "0a0b0c0d"
	pe.FoldOrdered([]AddressEvent{ev}, nil, pricer, now.UnixMilli())

	require.Len(t, pe.Ordered, 1)
	bal, ok := pe.Balances[types.Bitcoin]
	require.True(t, ok)
	assert.Equal(t, uint64(500), bal.BaseUnits)
}
