package storage

import (
	"context"
	"testing"
	"time"

	"github.com/redbridge-network/partychain/core/types"
)

func sampleTx(t *testing.T) types.Transaction {
	t.Helper()
	addr, err := types.ParseAddress(types.Bitcoin, "1BoatSLRHtKNngkdXEeobR76b53LETtpyT")
	if err != nil {
		t.Fatalf("ParseAddress: %v", err)
	}
	return types.Transaction{
		Outputs: []types.TxOutput{{Address: addr, Amount: types.NewAmount(types.Bitcoin, 1000)}},
	}
}

func TestInsertAndQueryAcceptedTransaction(t *testing.T) {
	ctx := context.Background()
	m := NewMemStore()
	tx := sampleTx(t)
	at := time.Unix(1700000000, 0)

	if _, err := m.InsertTransaction(ctx, tx, at, nil); err != nil {
		t.Fatalf("InsertTransaction: %v", err)
	}

	got, err := m.QueryAcceptedTransaction(ctx, tx.ComputeHash())
	if err != nil {
		t.Fatalf("QueryAcceptedTransaction: %v", err)
	}
	if got == nil {
		t.Fatal("expected transaction to be found")
	}

	n, err := m.CountTotalAcceptedTransactions(ctx)
	if err != nil || n != 1 {
		t.Fatalf("CountTotalAcceptedTransactions: n=%d err=%v", n, err)
	}
}

func TestInsertRejectedTransactionDoesNotCountAsAccepted(t *testing.T) {
	ctx := context.Background()
	m := NewMemStore()
	tx := sampleTx(t)
	reason := RejectionReason("insufficient funds")

	if _, err := m.InsertTransaction(ctx, tx, time.Now(), &reason); err != nil {
		t.Fatalf("InsertTransaction: %v", err)
	}

	accepted, err := m.CountTotalAcceptedTransactions(ctx)
	if err != nil || accepted != 0 {
		t.Fatalf("expected 0 accepted, got %d err=%v", accepted, err)
	}
	rejected, err := m.CountRejected(ctx)
	if err != nil || rejected != 1 {
		t.Fatalf("expected 1 rejected, got %d err=%v", rejected, err)
	}
}

func TestDeleteRejectedBefore(t *testing.T) {
	ctx := context.Background()
	m := NewMemStore()
	reason := RejectionReason("stale")

	old := sampleTx(t)
	old.Metadata.Time = time.Unix(1, 0)
	if _, err := m.InsertTransaction(ctx, old, time.Unix(100, 0), &reason); err != nil {
		t.Fatalf("InsertTransaction: %v", err)
	}

	n, err := m.DeleteRejectedBefore(ctx, time.Unix(200, 0))
	if err != nil {
		t.Fatalf("DeleteRejectedBefore: %v", err)
	}
	if n != 1 {
		t.Fatalf("expected 1 deleted, got %d", n)
	}
	remaining, _ := m.CountRejected(ctx)
	if remaining != 0 {
		t.Fatalf("expected 0 remaining rejected, got %d", remaining)
	}
}

func TestUtxoIDValid(t *testing.T) {
	ctx := context.Background()
	m := NewMemStore()
	tx := sampleTx(t)
	if _, err := m.InsertTransaction(ctx, tx, time.Now(), nil); err != nil {
		t.Fatalf("InsertTransaction: %v", err)
	}

	valid, err := m.UtxoIDValid(ctx, types.UtxoId{TransactionHash: tx.ComputeHash(), OutputIndex: 0})
	if err != nil || !valid {
		t.Fatalf("expected output 0 valid, got valid=%v err=%v", valid, err)
	}

	invalid, err := m.UtxoIDValid(ctx, types.UtxoId{TransactionHash: tx.ComputeHash(), OutputIndex: 5})
	if err != nil || invalid {
		t.Fatalf("expected out-of-range output invalid, got valid=%v err=%v", invalid, err)
	}
}

func TestContractStateLifecycle(t *testing.T) {
	ctx := context.Background()
	m := NewMemStore()
	addr, err := types.ParseAddress(types.Bitcoin, "1BoatSLRHtKNngkdXEeobR76b53LETtpyT")
	if err != nil {
		t.Fatalf("ParseAddress: %v", err)
	}

	for nonce := uint64(0); nonce < 3; nonce++ {
		marker := ContractStateMarker{Address: addr, Selector: "balance", Nonce: nonce, Data: []byte("v")}
		if err := m.InsertState(ctx, marker); err != nil {
			t.Fatalf("InsertState: %v", err)
		}
	}

	recent, err := m.QueryRecentState(ctx, addr, "balance", 2)
	if err != nil {
		t.Fatalf("QueryRecentState: %v", err)
	}
	if len(recent) != 2 {
		t.Fatalf("expected 2 recent states, got %d", len(recent))
	}

	if err := m.CleanUp(ctx, addr, "balance", 1); err != nil {
		t.Fatalf("CleanUp: %v", err)
	}
	remaining, err := m.QueryRecentState(ctx, addr, "balance", 10)
	if err != nil {
		t.Fatalf("QueryRecentState: %v", err)
	}
	if len(remaining) != 1 || remaining[0].Nonce != 2 {
		t.Fatalf("expected only nonce 2 to remain, got %+v", remaining)
	}
}

func TestKeygenRecordRoundTrip(t *testing.T) {
	ctx := context.Background()
	m := NewMemStore()

	if _, _, err := m.LocalShareAndInitiate(ctx, "missing-room"); err == nil {
		t.Fatal("expected error for unknown room")
	}

	if err := m.AddKeygen(ctx, []byte("share"), "room-1", []byte("initiate")); err != nil {
		t.Fatalf("AddKeygen: %v", err)
	}
	share, initiate, err := m.LocalShareAndInitiate(ctx, "room-1")
	if err != nil {
		t.Fatalf("LocalShareAndInitiate: %v", err)
	}
	if string(share) != "share" || string(initiate) != "initiate" {
		t.Fatalf("unexpected round trip: share=%q initiate=%q", share, initiate)
	}
}

func TestAddSigningProofAccumulates(t *testing.T) {
	ctx := context.Background()
	m := NewMemStore()
	proof := types.Proof{SignedHash: types.HashBytes([]byte("msg"))}

	if err := m.AddSigningProof(ctx, "room-1", proof); err != nil {
		t.Fatalf("AddSigningProof: %v", err)
	}
	if err := m.AddSigningProof(ctx, "room-1", proof); err != nil {
		t.Fatalf("AddSigningProof: %v", err)
	}
	if len(m.signingProof["room-1"]) != 2 {
		t.Fatalf("expected 2 accumulated proofs, got %d", len(m.signingProof["room-1"]))
	}
}
