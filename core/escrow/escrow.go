// Package escrow adapts the teacher's core/escrow.go multi-party escrow
// contract into the stake UTXO custody ledger named in spec.md §4.6c: funds
// matched against a StakeRequest are held here until the Threshold Signing
// Coordinator produces a verified release transaction, then marked
// Released. An entry can instead be marked Cancelled; Cancel only records
// that state and neither expires entries on a timeout nor moves or returns
// any funds.
package escrow

import (
	"sync"
	"time"

	"github.com/redbridge-network/partychain/core/partyerr"
	"github.com/redbridge-network/partychain/core/types"
)

// CustodyState mirrors the teacher's released/not-released boolean, widened
// to the three-way lifecycle a stake deposit actually needs.
type CustodyState int

const (
	CustodyHeld CustodyState = iota
	CustodyReleased
	CustodyCancelled
)

// Entry holds one stake request's matched UTXOs in custody.
type Entry struct {
	Request   types.StakeRequest
	Utxos     []types.StakeUtxo
	State     CustodyState
	CreatedAt time.Time
	ReleaseTx string
}

// Balance sums the custody entry's held amount in its deposit currency's
// base units.
func (e Entry) Balance() uint64 {
	var total uint64
	for _, u := range e.Utxos {
		total += u.Amount.BaseUnits
	}
	return total
}

// Ledger is an in-memory custody ledger keyed by stake request id, matching
// the teacher's escrowKey(id)-addressed store generalized from a single
// KV backend to a plain guarded map (spec.md §6 scopes persistent storage
// to TxStore/StateStore/PartyStore; custody bookkeeping is driver-local).
type Ledger struct {
	mu      sync.Mutex
	entries map[string]*Entry
}

// New constructs an empty custody Ledger.
func New() *Ledger {
	return &Ledger{entries: make(map[string]*Entry)}
}

// Open records a new custody entry for req once its deposit address has
// received at least one matching external UTXO.
func (l *Ledger) Open(req types.StakeRequest, utxo types.StakeUtxo) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, exists := l.entries[req.RequestID]; exists {
		return partyerr.New(partyerr.KindFatal, "escrow: request already opened").
			WithDetail("request_id", req.RequestID)
	}
	l.entries[req.RequestID] = &Entry{
		Request:   req,
		Utxos:     []types.StakeUtxo{utxo},
		State:     CustodyHeld,
		CreatedAt: time.Now().UTC(),
	}
	return nil
}

// Deposit appends another matched UTXO to an already-open custody entry,
// used when a stake request is filled across more than one external
// transaction.
func (l *Ledger) Deposit(requestID string, utxo types.StakeUtxo) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	e, ok := l.entries[requestID]
	if !ok {
		return partyerr.New(partyerr.KindFatal, "escrow: request not found").WithDetail("request_id", requestID)
	}
	if e.State != CustodyHeld {
		return partyerr.New(partyerr.KindFatal, "escrow: request not held").WithDetail("request_id", requestID)
	}
	e.Utxos = append(e.Utxos, utxo)
	return nil
}

// Release marks requestID's custody entry Released once the Threshold
// Signing Coordinator's payload broadcasts successfully.
func (l *Ledger) Release(requestID, releaseTxID string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	e, ok := l.entries[requestID]
	if !ok {
		return partyerr.New(partyerr.KindFatal, "escrow: request not found").WithDetail("request_id", requestID)
	}
	if e.State != CustodyHeld {
		return partyerr.New(partyerr.KindFatal, "escrow: request not held").WithDetail("request_id", requestID)
	}
	e.State = CustodyReleased
	e.ReleaseTx = releaseTxID
	return nil
}

// Cancel marks requestID Cancelled, used when a stake request expires
// without a signed release.
func (l *Ledger) Cancel(requestID string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	e, ok := l.entries[requestID]
	if !ok {
		return partyerr.New(partyerr.KindFatal, "escrow: request not found").WithDetail("request_id", requestID)
	}
	if e.State != CustodyHeld {
		return partyerr.New(partyerr.KindFatal, "escrow: request not held").WithDetail("request_id", requestID)
	}
	e.State = CustodyCancelled
	return nil
}

// Get returns a copy of requestID's custody entry.
func (l *Ledger) Get(requestID string) (Entry, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	e, ok := l.entries[requestID]
	if !ok {
		return Entry{}, false
	}
	return *e, true
}

// Held returns every custody entry still awaiting release or cancellation.
func (l *Ledger) Held() []Entry {
	l.mu.Lock()
	defer l.mu.Unlock()
	var out []Entry
	for _, e := range l.entries {
		if e.State == CustodyHeld {
			out = append(out, *e)
		}
	}
	return out
}
