package escrow

import (
	"testing"

	"github.com/redbridge-network/partychain/core/partyerr"
	"github.com/redbridge-network/partychain/core/types"
)

func testRequest(id string) types.StakeRequest {
	return types.StakeRequest{
		RequestID:      id,
		ExpectedAmount: types.NewAmount(types.Bitcoin, 100000),
		Currency:       types.Bitcoin,
	}
}

func testUtxo(amount uint64) types.StakeUtxo {
	return types.StakeUtxo{
		RequestID: "req-1",
		Amount:    types.NewAmount(types.Bitcoin, amount),
		Currency:  types.Bitcoin,
	}
}

func TestOpenThenReleaseTransitionsState(t *testing.T) {
	l := New()
	req := testRequest("req-1")
	if err := l.Open(req, testUtxo(100000)); err != nil {
		t.Fatalf("Open: %v", err)
	}
	entry, ok := l.Get("req-1")
	if !ok || entry.State != CustodyHeld {
		t.Fatalf("expected held entry, got %+v ok=%v", entry, ok)
	}
	if err := l.Release("req-1", "txid-out"); err != nil {
		t.Fatalf("Release: %v", err)
	}
	entry, _ = l.Get("req-1")
	if entry.State != CustodyReleased || entry.ReleaseTx != "txid-out" {
		t.Fatalf("expected released entry with release tx, got %+v", entry)
	}
}

func TestReleaseTwiceFails(t *testing.T) {
	l := New()
	req := testRequest("req-1")
	_ = l.Open(req, testUtxo(100000))
	if err := l.Release("req-1", "tx1"); err != nil {
		t.Fatalf("first Release: %v", err)
	}
	err := l.Release("req-1", "tx2")
	if err == nil {
		t.Fatal("expected second Release to fail")
	}
	if !partyerr.Is(err, partyerr.KindFatal) {
		t.Fatalf("expected KindFatal, got %v", err)
	}
}

func TestHeldExcludesReleasedAndCancelled(t *testing.T) {
	l := New()
	_ = l.Open(testRequest("req-1"), testUtxo(100000))
	_ = l.Open(testRequest("req-2"), testUtxo(50000))
	_ = l.Release("req-1", "tx1")
	held := l.Held()
	if len(held) != 1 || held[0].Request.RequestID != "req-2" {
		t.Fatalf("expected only req-2 held, got %+v", held)
	}
}
