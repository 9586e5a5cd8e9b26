package driver

import (
	"context"
	"testing"
	"time"

	"github.com/redbridge-network/partychain/core/escrow"
	"github.com/redbridge-network/partychain/core/fulfillment"
	"github.com/redbridge-network/partychain/core/oracle"
	"github.com/redbridge-network/partychain/core/partyevent"
	"github.com/redbridge-network/partychain/core/pricing"
	"github.com/redbridge-network/partychain/core/types"
	"github.com/redbridge-network/partychain/core/watcher"
)

type fakeChainWatcher struct {
	chain       types.Currency
	sm          *watcher.StateMachine
	backfillTxs []types.ExternalTimedTransaction
	broadcastID string
}

func (f *fakeChainWatcher) Subscribe(ctx context.Context, filter *watcher.AddressFilter) (<-chan types.ExternalTimedTransaction, error) {
	ch := make(chan types.ExternalTimedTransaction)
	close(ch)
	return ch, nil
}

func (f *fakeChainWatcher) Backfill(ctx context.Context, address types.Address, since time.Time) ([]types.ExternalTimedTransaction, error) {
	return f.backfillTxs, nil
}

func (f *fakeChainWatcher) Broadcast(ctx context.Context, signedPayload []byte) (string, error) {
	return f.broadcastID, nil
}

func (f *fakeChainWatcher) SelfBalance(ctx context.Context, address types.Address) (types.Amount, error) {
	return types.NewAmount(f.chain, 0), nil
}

func (f *fakeChainWatcher) Chain() types.Currency { return f.chain }
func (f *fakeChainWatcher) State() watcher.State  { return f.sm.Current() }

type fakeAddrSource struct {
	addrs map[types.Currency][]types.Address
}

func (a fakeAddrSource) WatchedAddresses(chain types.Currency) []types.Address {
	return a.addrs[chain]
}

type fakeSigner struct {
	payload []byte
	err     error
}

func (s fakeSigner) Sign(ctx context.Context, p fulfillment.PreparedPayload) ([]byte, error) {
	return s.payload, s.err
}

func newTestDriver(t *testing.T, ts time.Time) (*Driver, *fakeChainWatcher) {
	t.Helper()
	o := oracle.New()
	o.RecordLiveTick(types.Bitcoin, 50000.0, ts.Add(-time.Minute))
	o.RecordLiveTick(types.Redgold, 1.0, ts.Add(-time.Minute))

	pricer := pricing.New(o, pricing.DefaultConfig())
	pricer.SetInventory(types.Redgold, 1_000_000)

	btc := &fakeChainWatcher{chain: types.Bitcoin, sm: watcher.NewStateMachine()}
	chains := map[types.Currency]watcher.ChainWatcher{types.Bitcoin: btc}

	addr, err := types.ParseAddress(types.Bitcoin, "1BoatSLRHtKNngkdXEeobR76b53LETtpyT")
	if err != nil {
		t.Fatalf("ParseAddress: %v", err)
	}

	d := New(Config{
		Chains:  chains,
		Oracle:  o,
		Pricer:  pricer,
		Fold:    partyevent.NewPartyEvents(),
		Fulfill: fulfillment.NewEngine(10),
		Custody: escrow.New(),
		Signer:  fakeSigner{payload: []byte("signed")},
		Addrs:   fakeAddrSource{addrs: map[types.Currency][]types.Address{types.Bitcoin: {addr}}},
	})
	return d, btc
}

func TestTickWithNoEventsIsNoop(t *testing.T) {
	now := time.Unix(1700000000, 0)
	d, _ := newTestDriver(t, now)
	if err := d.Tick(context.Background(), now); err != nil {
		t.Fatalf("Tick: %v", err)
	}
	if len(d.fold.Ordered) != 0 {
		t.Fatalf("expected no events folded, got %d", len(d.fold.Ordered))
	}
}

func TestTickFoldsBackfilledExternalEvents(t *testing.T) {
	now := time.Unix(1700000000, 0)
	d, btc := newTestDriver(t, now)

	ts := now.Add(-time.Minute).UnixMilli()
	btc.backfillTxs = []types.ExternalTimedTransaction{
		{
			TxID:        "btc-tx-1",
			Timestamp:   &ts,
			SelfAddress: mustAddr(t, types.Bitcoin, "1BoatSLRHtKNngkdXEeobR76b53LETtpyT"),
			Amount:      types.NewAmount(types.Bitcoin, 500000),
			Currency:    types.Bitcoin,
			Incoming:    true,
		},
	}

	if err := d.Tick(context.Background(), now); err != nil {
		t.Fatalf("Tick: %v", err)
	}
	if len(d.fold.Ordered) != 1 {
		t.Fatalf("expected 1 folded event, got %d", len(d.fold.Ordered))
	}
	bal := d.fold.Balances[types.Bitcoin]
	if bal.BaseUnits != 500000 {
		t.Fatalf("expected credited balance 500000, got %v", bal)
	}
}

func mustAddr(t *testing.T, c types.Currency, s string) types.Address {
	t.Helper()
	a, err := types.ParseAddress(c, s)
	if err != nil {
		t.Fatalf("ParseAddress: %v", err)
	}
	return a
}
