package storage

import (
	"context"
	"sync"
	"time"

	"github.com/redbridge-network/partychain/core/partyerr"
	"github.com/redbridge-network/partychain/core/types"
)

// MemStore is an in-memory Store implementation used by tests and local
// development, matching the teacher's core/cross_chain.go InMemoryStore
// pattern (a single mutex-guarded map standing in for the real engine).
type MemStore struct {
	mu           sync.RWMutex
	accepted     map[types.Hash]storedTx
	rejectedAt   map[types.Hash]time.Time
	states       []ContractStateMarker
	keygens      map[string]keygenRecord
	signingProof map[string][]types.Proof
}

type storedTx struct {
	tx types.Transaction
	at time.Time
}

type keygenRecord struct {
	localShare []byte
	initiate   []byte
}

// NewMemStore constructs an empty MemStore.
func NewMemStore() *MemStore {
	return &MemStore{
		accepted:     make(map[types.Hash]storedTx),
		rejectedAt:   make(map[types.Hash]time.Time),
		keygens:      make(map[string]keygenRecord),
		signingProof: make(map[string][]types.Proof),
	}
}

func (m *MemStore) InsertTransaction(ctx context.Context, tx types.Transaction, at time.Time, rejection *RejectionReason) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	h := tx.ComputeHash()
	if rejection != nil {
		m.rejectedAt[h] = at
		return int64(len(m.rejectedAt)), nil
	}
	m.accepted[h] = storedTx{tx: tx, at: at}
	return int64(len(m.accepted)), nil
}

func (m *MemStore) QueryAcceptedTransaction(ctx context.Context, hash types.Hash) (*types.Transaction, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	st, ok := m.accepted[hash]
	if !ok {
		return nil, nil
	}
	txCopy := st.tx
	return &txCopy, nil
}

func (m *MemStore) QueryTimeTransactionAcceptedOrdered(ctx context.Context, start, end time.Time) ([]types.Transaction, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []types.Transaction
	for _, st := range m.accepted {
		if !st.at.Before(start) && st.at.Before(end) {
			out = append(out, st.tx)
		}
	}
	return out, nil
}

func (m *MemStore) AcceptedTimeTxHashes(ctx context.Context, start, end time.Time) ([]types.Hash, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []types.Hash
	for h, st := range m.accepted {
		if !st.at.Before(start) && st.at.Before(end) {
			out = append(out, h)
		}
	}
	return out, nil
}

func (m *MemStore) CountTotalAcceptedTransactions(ctx context.Context) (int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return int64(len(m.accepted)), nil
}

func (m *MemStore) CountRejected(ctx context.Context) (int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return int64(len(m.rejectedAt)), nil
}

func (m *MemStore) DeleteRejectedBefore(ctx context.Context, before time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for h, at := range m.rejectedAt {
		if at.Before(before) {
			delete(m.rejectedAt, h)
			n++
		}
	}
	return n, nil
}

func (m *MemStore) UtxoIDValid(ctx context.Context, id types.UtxoId) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	st, ok := m.accepted[id.TransactionHash]
	if !ok {
		return false, nil
	}
	return int(id.OutputIndex) < len(st.tx.Outputs), nil
}

func (m *MemStore) InsertState(ctx context.Context, marker ContractStateMarker) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.states = append(m.states, marker)
	return nil
}

func (m *MemStore) QueryRecentState(ctx context.Context, address types.Address, selector string, limit int) ([]ContractStateMarker, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []ContractStateMarker
	for i := len(m.states) - 1; i >= 0 && len(out) < limit; i-- {
		s := m.states[i]
		if s.Address.Equal(address) && (selector == "" || s.Selector == selector) {
			out = append(out, s)
		}
	}
	return out, nil
}

func (m *MemStore) CleanUp(ctx context.Context, address types.Address, selector string, nonce uint64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	kept := m.states[:0]
	for _, s := range m.states {
		if s.Address.Equal(address) && s.Selector == selector && s.Nonce <= nonce {
			continue
		}
		kept = append(kept, s)
	}
	m.states = kept
	return nil
}

func (m *MemStore) AddKeygen(ctx context.Context, localShare []byte, roomID string, initiate []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.keygens[roomID] = keygenRecord{localShare: localShare, initiate: initiate}
	return nil
}

func (m *MemStore) LocalShareAndInitiate(ctx context.Context, roomID string) ([]byte, []byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	rec, ok := m.keygens[roomID]
	if !ok {
		return nil, nil, partyerr.New(partyerr.KindStorage, "no keygen record for room").WithDetail("room_id", roomID)
	}
	return rec.localShare, rec.initiate, nil
}

func (m *MemStore) AddSigningProof(ctx context.Context, roomID string, proof types.Proof) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.signingProof[roomID] = append(m.signingProof[roomID], proof)
	return nil
}
