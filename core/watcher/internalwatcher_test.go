package watcher

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/redbridge-network/partychain/core/oracle"
	"github.com/redbridge-network/partychain/core/storage"
	"github.com/redbridge-network/partychain/core/types"
)

func TestInternalWatcherPollSkipsAlreadySeen(t *testing.T) {
	store := storage.NewMemStore()
	o := oracle.New()
	now := time.Now()
	o.LoadDailyHistory(types.Redgold, []oracle.Point{{TimeMS: now.Add(-time.Hour).UnixMilli(), USD: 100}})

	tx := types.Transaction{Metadata: types.TxMetadata{Time: now}}
	_, err := store.InsertTransaction(context.Background(), tx, now, nil)
	require.NoError(t, err)

	iw := NewInternalWatcher(store, o)
	noObs := func(ctx context.Context, h types.Hash) ([]types.ObservationProof, error) { return nil, nil }

	events, err := iw.Poll(context.Background(), now.Add(-time.Minute), now.Add(time.Minute), types.Address{}, noObs)
	require.NoError(t, err)
	require.Len(t, events, 1)

	events2, err := iw.Poll(context.Background(), now.Add(-time.Minute), now.Add(time.Minute), types.Address{}, noObs)
	require.NoError(t, err)
	assert.Empty(t, events2)
}
