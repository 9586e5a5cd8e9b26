package watcher

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/redbridge-network/partychain/core/partyerr"
	"github.com/redbridge-network/partychain/core/types"
)

// MoneroWatcher talks to a view-key-registered monero-wallet-rpc instance
// over plain JSON-RPC. No Monero Go SDK exists in the reference corpus, so
// this is a direct net/http + encoding/json client, matching the JSON-RPC
// client style used elsewhere in the corpus for chains without a dedicated
// SDK dependency.
type MoneroWatcher struct {
	pool   *RPCPool
	sm     *StateMachine
	client *http.Client
	log    *logrus.Entry
}

func NewMoneroWatcher(pool *RPCPool) *MoneroWatcher {
	return &MoneroWatcher{
		pool:   pool,
		sm:     NewStateMachine(),
		client: &http.Client{Timeout: 15 * time.Second},
		log:    logrus.WithField("component", "monero_watcher"),
	}
}

func (w *MoneroWatcher) Chain() types.Currency { return types.Monero }
func (w *MoneroWatcher) State() State          { return w.sm.Current() }

type jsonRPCRequest struct {
	JSONRPC string `json:"jsonrpc"`
	ID      string `json:"id"`
	Method  string `json:"method"`
	Params  any    `json:"params,omitempty"`
}

type jsonRPCError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (w *MoneroWatcher) call(ctx context.Context, url, method string, params any, result any) error {
	body, err := json.Marshal(jsonRPCRequest{JSONRPC: "2.0", ID: "0", Method: method, Params: params})
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := w.client.Do(req)
	if err != nil {
		return partyerr.Wrap(partyerr.KindTransientNetwork, "monero watcher: rpc call failed", err)
	}
	defer resp.Body.Close()

	var envelope struct {
		Result json.RawMessage `json:"result"`
		Error  *jsonRPCError   `json:"error"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		return partyerr.Wrap(partyerr.KindSchemaInvalid, "monero watcher: malformed rpc response", err)
	}
	if envelope.Error != nil {
		return partyerr.New(partyerr.KindSchemaInvalid, fmt.Sprintf("monero watcher: rpc error %d: %s", envelope.Error.Code, envelope.Error.Message))
	}
	if result != nil {
		if err := json.Unmarshal(envelope.Result, result); err != nil {
			return partyerr.Wrap(partyerr.KindSchemaInvalid, "monero watcher: malformed rpc result", err)
		}
	}
	return nil
}

func (w *MoneroWatcher) Subscribe(ctx context.Context, filter *AddressFilter) (<-chan types.ExternalTimedTransaction, error) {
	if !w.sm.Start() {
		return nil, partyerr.New(partyerr.KindFatal, "monero watcher: invalid state for subscribe")
	}
	out := make(chan types.ExternalTimedTransaction, 1024)
	if _, ok := w.pool.Next(); !ok {
		w.sm.Fatal()
		return nil, partyerr.New(partyerr.KindTransientNetwork, "monero watcher: no RPC URL available")
	}
	w.sm.SubscribedOK()

	go func() {
		defer close(out)
		ticker := time.NewTicker(LiveTickInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				w.sm.Fatal()
				return
			case <-ticker.C:
				_ = filter.Len()
			}
		}
	}()
	return out, nil
}

// transferEntry mirrors the relevant fields of monero-wallet-rpc's
// get_transfers "in"/"out" entries.
type transferEntry struct {
	TxID      string `json:"txid"`
	Timestamp int64  `json:"timestamp"`
	Amount    uint64 `json:"amount"`
	Fee       uint64 `json:"fee"`
	Address   string `json:"address"`
}

func (w *MoneroWatcher) Backfill(ctx context.Context, address types.Address, since time.Time) ([]types.ExternalTimedTransaction, error) {
	backoff := time.Second
	for attempt := 0; attempt < w.pool.Len(); attempt++ {
		url, ok := w.pool.Next()
		if !ok {
			break
		}
		txs, err := w.listTransfers(ctx, url, address, since)
		if err == nil {
			return txs, nil
		}
		w.log.WithError(err).WithField("url", url).Warn("backfill attempt failed")
		w.pool.MarkFailed(url, backoff)
		backoff *= 2
	}
	return nil, partyerr.New(partyerr.KindTransientNetwork, "monero watcher: backfill exhausted all RPC URLs")
}

func (w *MoneroWatcher) listTransfers(ctx context.Context, url string, address types.Address, since time.Time) ([]types.ExternalTimedTransaction, error) {
	var result struct {
		In  []transferEntry `json:"in"`
		Out []transferEntry `json:"out"`
	}
	params := map[string]any{"in": true, "out": true, "min_height": 0}
	if err := w.call(ctx, url, "get_transfers", params, &result); err != nil {
		return nil, err
	}

	var out []types.ExternalTimedTransaction
	for _, e := range result.In {
		ts := e.Timestamp * 1000
		out = append(out, toExternalTx(e, address, true, ts))
	}
	for _, e := range result.Out {
		ts := e.Timestamp * 1000
		out = append(out, toExternalTx(e, address, false, ts))
	}
	return out, nil
}

func toExternalTx(e transferEntry, self types.Address, incoming bool, tsMS int64) types.ExternalTimedTransaction {
	return types.ExternalTimedTransaction{
		TxID:        e.TxID,
		Timestamp:   &tsMS,
		SelfAddress: self,
		Currency:    types.Monero,
		Amount:      types.NewAmount(types.Monero, e.Amount),
		Fee:         types.NewAmount(types.Monero, e.Fee),
		Incoming:    incoming,
	}
}

func (w *MoneroWatcher) Broadcast(ctx context.Context, signedPayload []byte) (string, error) {
	url, ok := w.pool.Next()
	if !ok {
		return "", partyerr.New(partyerr.KindTransientNetwork, "monero watcher: no RPC URL available for broadcast")
	}
	var result struct {
		TxHash string `json:"tx_hash"`
	}
	if err := w.call(ctx, url, "relay_tx", map[string]any{"hex": string(signedPayload)}, &result); err != nil {
		w.pool.MarkFailed(url, time.Second)
		return "", err
	}
	return result.TxHash, nil
}

func (w *MoneroWatcher) SelfBalance(ctx context.Context, address types.Address) (types.Amount, error) {
	url, ok := w.pool.Next()
	if !ok {
		return types.Amount{}, partyerr.New(partyerr.KindTransientNetwork, "monero watcher: no RPC URL available for balance")
	}
	var result struct {
		Balance uint64 `json:"balance"`
	}
	if err := w.call(ctx, url, "get_balance", map[string]any{"account_index": 0}, &result); err != nil {
		return types.Amount{}, err
	}
	return types.NewAmount(types.Monero, result.Balance), nil
}
