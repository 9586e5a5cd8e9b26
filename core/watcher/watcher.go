package watcher

import (
	"context"
	"time"

	"github.com/redbridge-network/partychain/core/types"
)

// ChainWatcher is the capability every supported chain implements. The
// driver holds one ChainWatcher per currency and calls it through this
// interface; the Chain enum below lists the supported variants but is not
// used for dispatch.
type ChainWatcher interface {
	// Subscribe starts a live stream of transactions touching any address in
	// the watcher's current AddressFilter, until ctx is cancelled.
	Subscribe(ctx context.Context, filter *AddressFilter) (<-chan types.ExternalTimedTransaction, error)
	// Backfill retrieves historical transactions for address since the
	// given time.
	Backfill(ctx context.Context, address types.Address, since time.Time) ([]types.ExternalTimedTransaction, error)
	// Broadcast submits a signed payload and returns the resulting tx id.
	Broadcast(ctx context.Context, signedPayload []byte) (string, error)
	// SelfBalance returns the current on-chain balance of address.
	SelfBalance(ctx context.Context, address types.Address) (types.Amount, error)
	// Chain identifies which currency this watcher observes.
	Chain() types.Currency
	// State returns the watcher's current lifecycle state.
	State() State
}

// Chain is the fixed, closed enum of supported chain variants.
type Chain int

const (
	ChainBitcoin Chain = iota
	ChainEthereum
	ChainMonero
	ChainSolana
)

// LiveTickInterval and HistoricalTickInterval are the default tick
// cadences named in spec.md §4.3.
const (
	LiveTickInterval       = 60 * time.Second
	HistoricalTickInterval = 600 * time.Second
)

// DustLimits holds the per-chain minimum output amount accepted for
// broadcast (spec.md §4.3, §4.7).
var DustLimits = map[types.Currency]uint64{
	types.Bitcoin: 1000,
	types.Redgold: 1000,
}
