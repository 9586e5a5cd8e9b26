package watcher

import (
	"context"
	"encoding/json"
	"math/big"
	"net/http"
	"time"

	"github.com/ethereum/go-ethereum/common"
	ethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/sirupsen/logrus"

	"github.com/redbridge-network/partychain/core/partyerr"
	"github.com/redbridge-network/partychain/core/types"
)

// DefaultGasPriceWei is used when the provider does not report one
// (spec.md §4.3: "gas price taken from provider or a fixed-normal default
// by network").
var DefaultGasPriceWei = big.NewInt(20_000_000_000) // 20 gwei

// EthereumWatcher implements ChainWatcher over a JSON-RPC provider using
// go-ethereum's EIP-2718 typed transaction types for signing material.
type EthereumWatcher struct {
	pool   *RPCPool
	sm     *StateMachine
	client *http.Client
	log    *logrus.Entry
}

func NewEthereumWatcher(pool *RPCPool) *EthereumWatcher {
	return &EthereumWatcher{
		pool:   pool,
		sm:     NewStateMachine(),
		client: &http.Client{Timeout: 10 * time.Second},
		log:    logrus.WithField("component", "ethereum_watcher"),
	}
}

func (w *EthereumWatcher) Chain() types.Currency { return types.Ethereum }
func (w *EthereumWatcher) State() State          { return w.sm.Current() }

func (w *EthereumWatcher) Subscribe(ctx context.Context, filter *AddressFilter) (<-chan types.ExternalTimedTransaction, error) {
	if !w.sm.Start() {
		return nil, partyerr.New(partyerr.KindFatal, "ethereum watcher: invalid state for subscribe")
	}
	out := make(chan types.ExternalTimedTransaction, 1024)
	if _, ok := w.pool.Next(); !ok {
		w.sm.Fatal()
		return nil, partyerr.New(partyerr.KindTransientNetwork, "ethereum watcher: no RPC URL available")
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

func (w *EthereumWatcher) Backfill(ctx context.Context, address types.Address, since time.Time) ([]types.ExternalTimedTransaction, error) {
	backoff := time.Second
	for attempt := 0; attempt < w.pool.Len(); attempt++ {
		url, ok := w.pool.Next()
		if !ok {
			break
		}
		txs, err := w.fetchHistory(ctx, url, address, since)
		if err == nil {
			return txs, nil
		}
		w.log.WithError(err).WithField("url", url).Warn("backfill attempt failed")
		w.pool.MarkFailed(url, backoff)
		backoff *= 2
	}
	return nil, partyerr.New(partyerr.KindTransientNetwork, "ethereum watcher: backfill exhausted all RPC URLs")
}

func (w *EthereumWatcher) fetchHistory(ctx context.Context, url string, address types.Address, since time.Time) ([]types.ExternalTimedTransaction, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := w.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	var raw []struct {
		Hash      string `json:"hash"`
		TimeMS    int64  `json:"time_ms"`
		ValueWei  string `json:"value_wei"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&raw); err != nil {
		return nil, partyerr.Wrap(partyerr.KindSchemaInvalid, "ethereum watcher: malformed history response", err)
	}
	out := make([]types.ExternalTimedTransaction, 0, len(raw))
	for _, r := range raw {
		ts := r.TimeMS
		value, ok := new(big.Int).SetString(r.ValueWei, 10)
		if !ok {
			continue
		}
		out = append(out, types.ExternalTimedTransaction{
			TxID:        r.Hash,
			Timestamp:   &ts,
			SelfAddress: address,
			Currency:    types.Ethereum,
			Amount:      types.NewBigAmount(types.Ethereum, value),
			Incoming:    true,
		})
	}
	return out, nil
}

// BuildTypedTransaction constructs an EIP-2718 dynamic-fee transaction and
// returns its signing hash, matching spec.md §4.3's "signing data is the
// sighash of the populated typed transaction".
func BuildTypedTransaction(chainID *big.Int, nonce uint64, to [20]byte, valueWei *big.Int, gasPrice *big.Int) (*ethtypes.Transaction, []byte) {
	if gasPrice == nil {
		gasPrice = DefaultGasPriceWei
	}
	toAddr := ethtypesAddress(to)
	tx := ethtypes.NewTx(&ethtypes.DynamicFeeTx{
		ChainID:   chainID,
		Nonce:     nonce,
		GasTipCap: gasPrice,
		GasFeeCap: gasPrice,
		Gas:       21000,
		To:        &toAddr,
		Value:     valueWei,
	})
	signer := ethtypes.NewLondonSigner(chainID)
	sighash := signer.Hash(tx)
	return tx, sighash[:]
}

func ethtypesAddress(b [20]byte) (addr common.Address) {
	copy(addr[:], b[:])
	return addr
}

func (w *EthereumWatcher) Broadcast(ctx context.Context, signedPayload []byte) (string, error) {
	url, ok := w.pool.Next()
	if !ok {
		return "", partyerr.New(partyerr.KindTransientNetwork, "ethereum watcher: no RPC URL available for broadcast")
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, nil)
	if err != nil {
		return "", err
	}
	resp, err := w.client.Do(req)
	if err != nil {
		w.pool.MarkFailed(url, time.Second)
		return "", partyerr.Wrap(partyerr.KindTransientNetwork, "ethereum watcher: broadcast failed", err)
	}
	defer resp.Body.Close()
	var result struct {
		TxHash string `json:"tx_hash"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", partyerr.Wrap(partyerr.KindSchemaInvalid, "ethereum watcher: malformed broadcast response", err)
	}
	return result.TxHash, nil
}

func (w *EthereumWatcher) SelfBalance(ctx context.Context, address types.Address) (types.Amount, error) {
	url, ok := w.pool.Next()
	if !ok {
		return types.Amount{}, partyerr.New(partyerr.KindTransientNetwork, "ethereum watcher: no RPC URL available for balance")
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return types.Amount{}, err
	}
	resp, err := w.client.Do(req)
	if err != nil {
		return types.Amount{}, partyerr.Wrap(partyerr.KindTransientNetwork, "ethereum watcher: balance query failed", err)
	}
	defer resp.Body.Close()
	var result struct {
		WeiBalance string `json:"wei_balance"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return types.Amount{}, partyerr.Wrap(partyerr.KindSchemaInvalid, "ethereum watcher: malformed balance response", err)
	}
	v, ok := new(big.Int).SetString(result.WeiBalance, 10)
	if !ok {
		return types.Amount{}, partyerr.New(partyerr.KindSchemaInvalid, "ethereum watcher: unparsable balance")
	}
	return types.NewBigAmount(types.Ethereum, v), nil
}
