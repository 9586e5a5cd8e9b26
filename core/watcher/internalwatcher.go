package watcher

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/redbridge-network/partychain/core/oracle"
	"github.com/redbridge-network/partychain/core/partyevent"
	"github.com/redbridge-network/partychain/core/storage"
	"github.com/redbridge-network/partychain/core/types"
)

// InternalWatcher tails accepted ledger transactions touching party
// addresses and turns them into AddressEvent::Internal values, per
// spec.md §4.4.
type InternalWatcher struct {
	store  storage.TxStore
	oracle *oracle.Oracle
	log    *logrus.Entry

	seen map[types.Hash]bool
}

// NewInternalWatcher constructs a watcher over store and oracle.
func NewInternalWatcher(store storage.TxStore, o *oracle.Oracle) *InternalWatcher {
	return &InternalWatcher{
		store:  store,
		oracle: o,
		log:    logrus.WithField("component", "internal_watcher"),
		seen:   make(map[types.Hash]bool),
	}
}

// ObservationSource supplies the ObservationProofs known for a transaction
// hash; in production this is backed by the party store, here it is a
// narrow function so tests can inject fixtures without a full store fake.
type ObservationSource func(ctx context.Context, hash types.Hash) ([]types.ObservationProof, error)

// Poll pulls accepted transaction hashes in [start, end), attaches
// observation proofs and the oracle price at the transaction's time, skips
// anything already seen, and returns the resulting AddressEvents.
func (w *InternalWatcher) Poll(ctx context.Context, start, end time.Time, queriedAddress types.Address, observations ObservationSource) ([]partyevent.AddressEvent, error) {
	hashes, err := w.store.AcceptedTimeTxHashes(ctx, start, end)
	if err != nil {
		return nil, err
	}

	var events []partyevent.AddressEvent
	for _, h := range hashes {
		if w.seen[h] {
			continue
		}
		tx, err := w.store.QueryAcceptedTransaction(ctx, h)
		if err != nil {
			w.log.WithError(err).WithField("hash", h.Hex()).Warn("failed to query accepted transaction")
			continue
		}
		if tx == nil {
			continue // rejected or pending: skipped per spec.md §4.4
		}

		obs, err := observations(ctx, h)
		if err != nil {
			w.log.WithError(err).WithField("hash", h.Hex()).Warn("failed to fetch observation proofs")
			obs = nil
		}

		var priceUSD *float64
		if p, err := w.oracle.Price(types.Redgold, tx.Metadata.Time); err == nil {
			priceUSD = &p
		}

		events = append(events, partyevent.NewInternal(partyevent.InternalPayload{
			Tx:             *tx,
			Observations:   obs,
			PriceUSD:       priceUSD,
			QueriedAddress: queriedAddress,
		}))
		w.seen[h] = true
	}
	return events, nil
}
