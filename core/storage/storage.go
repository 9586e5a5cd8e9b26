// Package storage defines the narrow interface the party event engine
// consumes from the ledger storage engine, which spec.md §1 places out of
// scope (treated as an external collaborator). Only the operations named in
// spec.md §6 are declared here. Grounded on the teacher's core/ledger.go for
// the general shape of a storage-facing interface, but intentionally not
// reusing that file's implementation: core/ledger.go couples storage to a
// full VM/Token ledger, which this engine does not own.
package storage

import (
	"context"
	"time"

	"github.com/redbridge-network/partychain/core/types"
)

// RejectionReason names why a transaction was rejected, for
// insert_transaction's optional parameter.
type RejectionReason string

// TxStore is the transaction-facing subset of the storage engine's
// interface.
type TxStore interface {
	InsertTransaction(ctx context.Context, tx types.Transaction, at time.Time, rejection *RejectionReason) (int64, error)
	QueryAcceptedTransaction(ctx context.Context, hash types.Hash) (*types.Transaction, error)
	QueryTimeTransactionAcceptedOrdered(ctx context.Context, start, end time.Time) ([]types.Transaction, error)
	AcceptedTimeTxHashes(ctx context.Context, start, end time.Time) ([]types.Hash, error)
	CountTotalAcceptedTransactions(ctx context.Context) (int64, error)
	CountRejected(ctx context.Context) (int64, error)
	DeleteRejectedBefore(ctx context.Context, before time.Time) (int64, error)
	UtxoIDValid(ctx context.Context, id types.UtxoId) (bool, error)
}

// ContractStateMarker is an opaque state record tracked by the state store.
type ContractStateMarker struct {
	Address  types.Address
	Selector string
	Nonce    uint64
	Data     []byte
}

// StateStore is the contract-state-marker-facing subset of the storage
// engine's interface.
type StateStore interface {
	InsertState(ctx context.Context, marker ContractStateMarker) error
	QueryRecentState(ctx context.Context, address types.Address, selector string, limit int) ([]ContractStateMarker, error)
	CleanUp(ctx context.Context, address types.Address, selector string, nonce uint64) error
}

// PartyStore is the multiparty keygen/signing artifact subset of the
// storage engine's interface.
type PartyStore interface {
	AddKeygen(ctx context.Context, localShare []byte, roomID string, initiate []byte) error
	LocalShareAndInitiate(ctx context.Context, roomID string) ([]byte, []byte, error)
	AddSigningProof(ctx context.Context, roomID string, proof types.Proof) error
}

// Store bundles every storage-engine facet the engine consumes.
type Store interface {
	TxStore
	StateStore
	PartyStore
}
