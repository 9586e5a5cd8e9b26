// Package driver implements the Party Watcher Driver's cooperative tick
// loop (spec.md §4.9): once per tick it refreshes each chain watcher's
// address filter, runs backfill and the Internal Watcher, folds the
// resulting events, admits fulfillable orders through the Order
// Fulfillment engine, hands them to the Threshold Signing Coordinator, and
// broadcasts on success. Grounded on the teacher's core/network.go
// supervisor-loop shape, generalized from a single peer-gossip loop to a
// multi-chain watcher fan-out.
package driver

import (
	"bytes"
	"context"
	"math/big"
	"time"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/btcsuite/btcd/txscript"
	"github.com/btcsuite/btcd/wire"
	"github.com/sirupsen/logrus"

	"github.com/redbridge-network/partychain/core/escrow"
	"github.com/redbridge-network/partychain/core/fulfillment"
	"github.com/redbridge-network/partychain/core/metrics"
	"github.com/redbridge-network/partychain/core/oracle"
	"github.com/redbridge-network/partychain/core/partyerr"
	"github.com/redbridge-network/partychain/core/partyevent"
	"github.com/redbridge-network/partychain/core/pricing"
	"github.com/redbridge-network/partychain/core/types"
	"github.com/redbridge-network/partychain/core/watcher"
)

// TickInterval is the driver's default cooperative tick cadence (spec.md
// §4.9).
const TickInterval = 60 * time.Second

// minStakeParentDelta is the minDelta argument to
// fulfillment.PrepareRDGFee/QualifiesForZeroFeeStake (spec.md §4.7).
const minStakeParentDelta = 10 * time.Minute

// DefaultEthChainID is the EIP-155 chain ID used to build Ethereum typed
// transactions when Config.EthChainID is unset.
var DefaultEthChainID = big.NewInt(1)

// AddressSource supplies the set of addresses the driver should watch per
// chain this tick, sourced from the party's current deposit key
// allocations.
type AddressSource interface {
	WatchedAddresses(chain types.Currency) []types.Address
}

// SigningCoordinator hands a prepared payload to the Threshold Signing
// Coordinator and returns the final signed broadcast bytes once the
// session reaches Done, or an error if it times out or fails
// verification.
type SigningCoordinator interface {
	Sign(ctx context.Context, payload fulfillment.PreparedPayload) ([]byte, error)
}

// Driver wires every component into the single cooperative loop.
type Driver struct {
	chains   map[types.Currency]watcher.ChainWatcher
	filters  map[types.Currency]*watcher.AddressFilter
	internal *watcher.InternalWatcher
	oracle   *oracle.Oracle
	pricer   *pricing.Model
	fold     *partyevent.PartyEvents
	fulfill  *fulfillment.Engine
	custody  *escrow.Ledger
	signer   SigningCoordinator
	addrs    AddressSource
	seeds    []types.PublicKey
	targets  TargetWeights
	metrics  *metrics.Set
	log      *logrus.Entry

	lastTick           map[types.Currency]time.Time
	ethChainID         *big.Int
	ethNonce           uint64
	lastRDGFulfillment time.Time
}

// Config bundles everything a Driver needs at construction time.
type Config struct {
	Chains     map[types.Currency]watcher.ChainWatcher
	Internal   *watcher.InternalWatcher
	Oracle     *oracle.Oracle
	Pricer     *pricing.Model
	Fold       *partyevent.PartyEvents
	Fulfill    *fulfillment.Engine
	Custody    *escrow.Ledger
	Signer     SigningCoordinator
	Addrs      AddressSource
	Seeds      []types.PublicKey
	Targets    TargetWeights
	Metrics    *metrics.Set
	EthChainID *big.Int
}

// New constructs a Driver from cfg.
func New(cfg Config) *Driver {
	filters := make(map[types.Currency]*watcher.AddressFilter, len(cfg.Chains))
	lastTick := make(map[types.Currency]time.Time, len(cfg.Chains))
	for c := range cfg.Chains {
		filters[c] = watcher.NewAddressFilter()
	}
	chainID := cfg.EthChainID
	if chainID == nil {
		chainID = DefaultEthChainID
	}
	return &Driver{
		chains:     cfg.Chains,
		filters:    filters,
		internal:   cfg.Internal,
		oracle:     cfg.Oracle,
		pricer:     cfg.Pricer,
		fold:       cfg.Fold,
		fulfill:    cfg.Fulfill,
		custody:    cfg.Custody,
		signer:     cfg.Signer,
		addrs:      cfg.Addrs,
		seeds:      cfg.Seeds,
		targets:    cfg.Targets,
		metrics:    cfg.Metrics,
		log:        logrus.WithField("component", "party_watcher_driver"),
		lastTick:   lastTick,
		ethChainID: chainID,
	}
}

// Tick runs a single idempotent pass of the driver loop. Errors from an
// individual chain watcher or from fulfillment of a single order are
// logged and do not abort the tick; a fold invariant violation is logged
// as well, so Tick always returns nil.
func (d *Driver) Tick(ctx context.Context, now time.Time) error {
	start := time.Now()
	defer func() {
		if d.metrics != nil {
			d.metrics.DriverTicks.Inc()
			d.metrics.DriverTickDuration.Observe(time.Since(start).Seconds())
		}
	}()

	d.fulfill.ResetTick()

	events := d.collectExternalEvents(ctx, now)
	events = append(events, d.collectInternalEvents(ctx, now)...)

	if rebalance, ok := checkPortfolioDrift(d.fold, d.targets, now); ok {
		events = append(events, rebalance)
	}

	d.fold.FoldOrdered(events, d.seeds, d.pricer, now.UnixMilli())
	if err := d.fold.CheckInvariants(); err != nil {
		d.log.WithError(err).Error("post-fold invariant check failed")
	}

	d.reconcileCustody()
	d.fulfillPending(ctx, now)
	return nil
}

// reconcileCustody opens a custody entry for every stake UTXO the fold
// matched this tick that the ledger does not already hold, and releases any
// entry whose stake withdrawal has since broadcast (spec.md §4.6c).
func (d *Driver) reconcileCustody() {
	if d.custody == nil {
		return
	}
	for _, utxo := range d.fold.StakeUtxos {
		if _, ok := d.custody.Get(utxo.RequestID); ok {
			continue
		}
		req := types.StakeRequest{RequestID: utxo.RequestID, ExpectedAmount: utxo.Amount, Currency: utxo.Currency}
		if err := d.custody.Open(req, utxo); err != nil {
			d.log.WithError(err).WithField("request_id", utxo.RequestID).Warn("failed to open stake custody entry")
		}
	}
	for _, of := range d.fold.FulfillmentHistory {
		if !of.IsStakeWithdrawal || of.OutgoingTxID == "" {
			continue
		}
		if entry, ok := d.custody.Get(of.MatchedEventID); ok && entry.State == escrow.CustodyHeld {
			if err := d.custody.Release(of.MatchedEventID, of.OutgoingTxID); err != nil {
				d.log.WithError(err).WithField("request_id", of.MatchedEventID).Warn("failed to release stake custody entry")
			}
		}
	}
}

// collectExternalEvents refreshes each chain watcher's address filter and
// runs a backfill pass since the previous tick (or the last 10 minutes on
// the first tick, matching watcher.HistoricalTickInterval).
func (d *Driver) collectExternalEvents(ctx context.Context, now time.Time) []partyevent.AddressEvent {
	var events []partyevent.AddressEvent
	for chain, cw := range d.chains {
		addrs := d.addrs.WatchedAddresses(chain)
		rendered := make([]string, len(addrs))
		for i, a := range addrs {
			rendered[i] = a.RenderString()
		}
		d.filters[chain].Replace(rendered)

		since, ok := d.lastTick[chain]
		if !ok {
			since = now.Add(-watcher.HistoricalTickInterval)
		}
		d.lastTick[chain] = now

		for _, addr := range addrs {
			txs, err := cw.Backfill(ctx, addr, since)
			if err != nil {
				if d.metrics != nil {
					d.metrics.WatcherBackfillErrors.WithLabelValues(chain.String()).Inc()
				}
				d.log.WithError(err).WithField("chain", chain.String()).Warn("backfill failed")
				continue
			}
			for _, tx := range txs {
				events = append(events, partyevent.NewExternal(tx))
			}
		}
	}
	return events
}

// collectInternalEvents runs one Internal Watcher poll over the tick
// window.
func (d *Driver) collectInternalEvents(ctx context.Context, now time.Time) []partyevent.AddressEvent {
	if d.internal == nil {
		return nil
	}
	events, err := d.internal.Poll(ctx, now.Add(-TickInterval), now, types.Address{}, noObservations)
	if err != nil {
		d.log.WithError(err).Warn("internal watcher poll failed")
		return nil
	}
	return events
}

func noObservations(context.Context, types.Hash) ([]types.ObservationProof, error) {
	return nil, nil
}

// fulfillPending admits every order the fold matched this tick through the
// fulfillment engine and, on admission, builds the chain-specific payload
// (spec.md §4.7: BTC PSBT + per-input sighashes, ETH typed-tx + sighash),
// hands it to the Threshold Signing Coordinator for signature, then
// broadcasts the result.
func (d *Driver) fulfillPending(ctx context.Context, now time.Time) {
	for eventID, of := range d.fold.LocallyFulfilledOrders {
		if err := d.fulfill.Admit(of.Order); err != nil {
			d.log.WithError(err).WithField("event_id", eventID).Warn("order not admitted this tick")
			continue
		}

		cw, ok := d.chains[of.Order.ToCurrency]
		if !ok && of.Order.ToCurrency != types.Redgold {
			d.log.WithField("currency", of.Order.ToCurrency.String()).Warn("no chain watcher for fulfillment destination")
			continue
		}

		payload, err := d.buildPayload(of, now)
		if err != nil {
			d.log.WithError(err).WithField("event_id", eventID).Warn("payload construction failed")
			continue
		}
		signed, err := d.signer.Sign(ctx, payload)
		if err != nil {
			d.log.WithError(err).WithField("event_id", eventID).Warn("threshold signing failed")
			if d.metrics != nil {
				d.metrics.SigningSessions.WithLabelValues("Failed").Inc()
			}
			continue
		}
		if d.metrics != nil {
			d.metrics.SigningSessions.WithLabelValues("Done").Inc()
		}

		// A Redgold-denominated payout settles on the internal ledger
		// directly; there is no external chain watcher to broadcast to.
		if cw == nil {
			of.OutgoingTxID = "internal:" + of.MatchedEventID
			d.fold.FulfillmentHistory = append(d.fold.FulfillmentHistory, of)
			delete(d.fold.LocallyFulfilledOrders, eventID)
			if d.metrics != nil {
				d.metrics.FulfillmentsEmitted.WithLabelValues("internal").Inc()
			}
			continue
		}

		txID, err := cw.Broadcast(ctx, signed)
		if err != nil {
			d.log.WithError(err).WithField("event_id", eventID).Warn("broadcast failed")
			continue
		}

		of.OutgoingTxID = txID
		d.fold.FulfillmentHistory = append(d.fold.FulfillmentHistory, of)
		delete(d.fold.LocallyFulfilledOrders, eventID)
		if d.metrics != nil {
			d.metrics.FulfillmentsEmitted.WithLabelValues("broadcast").Inc()
		}
	}
}

// buildPayload constructs the chain-specific prepared payload for of,
// including per-chain payload bytes (spec.md §4.7) and, for a Redgold
// payout, the fee computed by fulfillment.PrepareRDGFee.
func (d *Driver) buildPayload(of types.OrderFulfillment, now time.Time) (fulfillment.PreparedPayload, error) {
	payload := fulfillment.PreparedPayload{
		Chain: of.Order.ToCurrency,
		Validation: fulfillment.PartySigningValidation{
			ExpectedOutput: of.Order.ExpectedAmount,
			Destination:    of.Order.ToAddress,
		},
	}

	switch of.Order.ToCurrency {
	case types.Bitcoin:
		raw, err := d.buildBitcoinPayload(of)
		if err != nil {
			return payload, err
		}
		payload.Payload = raw
	case types.Ethereum:
		raw, sighash, err := d.buildEthereumPayload(of)
		if err != nil {
			return payload, err
		}
		payload.Payload = raw
		payload.Validation.SigningHash = types.HashBytes(sighash)
	case types.Redgold:
		total := of.Order.ExpectedAmount.Int().Uint64()
		sinceParent := now.Sub(d.lastRDGFulfillment)
		payload.FeeBase = fulfillment.PrepareRDGFee(total, 1, sinceParent, minStakeParentDelta)
		d.lastRDGFulfillment = now
	}

	return payload, nil
}

// buildBitcoinPayload builds a PSBT paying of.Order.ExpectedAmount to
// of.Order.ToAddress. Inputs are left for the signer's own coin selection
// against the custody ledger's UTXO set; PreparePSBT's dust check still
// applies to the output.
func (d *Driver) buildBitcoinPayload(of types.OrderFulfillment) ([]byte, error) {
	addr, err := btcutil.DecodeAddress(of.Order.ToAddress.RenderString(), &chaincfg.MainNetParams)
	if err != nil {
		return nil, partyerr.Wrap(partyerr.KindSchemaInvalid, "driver: bitcoin destination undecodable", err)
	}
	script, err := txscript.PayToAddrScript(addr)
	if err != nil {
		return nil, partyerr.Wrap(partyerr.KindSchemaInvalid, "driver: bitcoin output script construction failed", err)
	}
	out := &wire.TxOut{Value: int64(of.Order.ExpectedAmount.Int().Uint64()), PkScript: script}
	packet, err := watcher.PreparePSBT(nil, []*wire.TxOut{out})
	if err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	if err := packet.Serialize(&buf); err != nil {
		return nil, partyerr.Wrap(partyerr.KindSchemaInvalid, "driver: psbt serialization failed", err)
	}
	return buf.Bytes(), nil
}

// buildEthereumPayload builds the typed transaction paying
// of.Order.ExpectedAmount to of.Order.ToAddress and returns its RLP
// encoding alongside the London-signer sighash of that dynamic-fee
// (EIP-1559) transaction, which signers produce proofs over.
func (d *Driver) buildEthereumPayload(of types.OrderFulfillment) ([]byte, []byte, error) {
	if len(of.Order.ToAddress.Bytes) != 20 {
		return nil, nil, partyerr.New(partyerr.KindSchemaInvalid, "driver: ethereum destination is not 20 bytes")
	}
	var to [20]byte
	copy(to[:], of.Order.ToAddress.Bytes)

	nonce := d.ethNonce
	d.ethNonce++
	tx, sighash := watcher.BuildTypedTransaction(d.ethChainID, nonce, to, of.Order.ExpectedAmount.Int(), nil)
	raw, err := tx.MarshalBinary()
	if err != nil {
		return nil, nil, partyerr.Wrap(partyerr.KindSchemaInvalid, "driver: ethereum tx encoding failed", err)
	}
	return raw, sighash, nil
}
