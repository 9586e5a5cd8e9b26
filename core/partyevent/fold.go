package partyevent

import (
	"fmt"
	"math/big"
	"sort"

	"github.com/sirupsen/logrus"

	"github.com/redbridge-network/partychain/core/partyerr"
	"github.com/redbridge-network/partychain/core/pricing"
	"github.com/redbridge-network/partychain/core/types"
)

// TransitionKind names spec.md §4.6's transition cases (a-f) handled by
// apply. apply does not report which case it took; nothing in the module
// uses these constants.
type TransitionKind string

const (
	TransitionSwapRequest         TransitionKind = "swap_request"
	TransitionImplicitSwapRequest TransitionKind = "implicit_swap_request"
	TransitionStakeExternalFill   TransitionKind = "stake_external_fill"
	TransitionSwapFulfillment     TransitionKind = "swap_fulfillment"
	TransitionRebalance           TransitionKind = "rebalance"
	TransitionObservationOnly     TransitionKind = "observation_only"
)

// DeadLetterEntry records an event that failed to parse or classify.
type DeadLetterEntry struct {
	Event  AddressEvent
	Reason string
}

// DustLimitRDG is the minimum output amount, in base units, for an RDG
// output (spec.md §4.7).
const DustLimitRDG = 1000

// PartyEvents is the terminal fold state: the single source of truth
// produced by left-folding an ordered AddressEvent list through Apply.
type PartyEvents struct {
	log *logrus.Entry

	Ordered                []AddressEvent
	Balances               map[types.Currency]types.Amount
	ExternalStakeDeltas    map[types.Currency]types.Amount
	StakeUtxos             []types.StakeUtxo
	PendingStakeRequests   map[string]types.StakeRequest // keyed by deposit address render string
	FulfillmentHistory     []types.OrderFulfillment
	LocallyFulfilledOrders map[string]types.OrderFulfillment // keyed by matched event id, awaiting confirmation
	PortfolioImbalance     map[types.Currency]float64
	RdgAllocations         map[types.Currency]float64
	DeadLetter             []DeadLetterEntry

	appliedExternal map[string]bool // "currency:tx_id"
	appliedInternal map[string]bool // transaction hash hex
	pending         []AddressEvent  // events whose time did not yet resolve
}

// NewPartyEvents constructs empty fold state.
func NewPartyEvents() *PartyEvents {
	return &PartyEvents{
		log:                    logrus.WithField("component", "party_event_stream"),
		Balances:               make(map[types.Currency]types.Amount),
		ExternalStakeDeltas:    make(map[types.Currency]types.Amount),
		PendingStakeRequests:   make(map[string]types.StakeRequest),
		LocallyFulfilledOrders: make(map[string]types.OrderFulfillment),
		PortfolioImbalance:     make(map[types.Currency]float64),
		RdgAllocations:         make(map[types.Currency]float64),
		appliedExternal:        make(map[string]bool),
		appliedInternal:        make(map[string]bool),
	}
}

// RegisterStakeRequest adds a pending stake-deposit request that a future
// external deposit may fulfill (transition case c).
func (pe *PartyEvents) RegisterStakeRequest(req types.StakeRequest) {
	pe.PendingStakeRequests[req.DepositAddress.RenderString()] = req
}

// FoldOrdered is the deterministic left-fold entry point. It resolves each
// event's time against seeds, merges newly resolved events with any
// previously deferred ones, sorts by the (time, currency_ordinal,
// identifier) ordering discipline, and applies them one at a time through
// Apply. Events that remain unresolved are retained in the pending buffer
// for the next call.
func (pe *PartyEvents) FoldOrdered(events []AddressEvent, seeds []types.PublicKey, pricer *pricing.Model, nowMS int64) {
	candidates := append(append([]AddressEvent(nil), pe.pending...), events...)
	pe.pending = nil

	type timed struct {
		event AddressEvent
		t     int64
	}
	var resolved []timed
	for _, e := range candidates {
		t, ok := e.Time(seeds)
		if !ok {
			pe.pending = append(pe.pending, e)
			continue
		}
		resolved = append(resolved, timed{event: e, t: t})
	}

	sort.SliceStable(resolved, func(i, j int) bool {
		if resolved[i].t != resolved[j].t {
			return resolved[i].t < resolved[j].t
		}
		ci, cj := resolved[i].event.Currency().Ordinal(), resolved[j].event.Currency().Ordinal()
		if ci != cj {
			return ci < cj
		}
		return resolved[i].event.Identifier() < resolved[j].event.Identifier()
	})

	for _, r := range resolved {
		pe.apply(r.event, pricer, nowMS)
		if err := pe.checkInvariants(); err != nil {
			pe.log.WithError(err).Error("fold invariant violated")
		}
	}
}

// CheckInvariants exposes the internal invariant check for tests and the
// driver's post-tick verification.
func (pe *PartyEvents) CheckInvariants() error { return pe.checkInvariants() }

// apply is the single transition function required by spec.md §9: every
// state mutation in the fold goes through this one call site.
func (pe *PartyEvents) apply(event AddressEvent, pricer *pricing.Model, nowMS int64) {
	dedupKey, ok := pe.dedupKeyFor(event)
	if !ok {
		pe.deadLetter(event, "malformed event: could not compute dedup key")
		return
	}
	if pe.alreadyApplied(event, dedupKey) {
		return
	}

	pe.Ordered = append(pe.Ordered, event)
	pe.markApplied(event, dedupKey)

	switch event.Kind {
	case KindExternal:
		pe.applyExternal(event, pricer, nowMS)
	case KindInternal:
		pe.applyInternal(event, pricer, nowMS)
	default:
		pe.deadLetter(event, "unknown event kind")
	}
}

func (pe *PartyEvents) dedupKeyFor(event AddressEvent) (string, bool) {
	switch event.Kind {
	case KindExternal:
		if event.External == nil || event.External.TxID == "" {
			return "", false
		}
		return fmt.Sprintf("%d:%s", event.External.Currency.Ordinal(), event.External.TxID), true
	case KindInternal:
		if event.Internal == nil {
			return "", false
		}
		return event.Internal.Tx.Metadata.Hash.Hex(), true
	default:
		return "", false
	}
}

func (pe *PartyEvents) alreadyApplied(event AddressEvent, key string) bool {
	switch event.Kind {
	case KindExternal:
		return pe.appliedExternal[key]
	case KindInternal:
		return pe.appliedInternal[key]
	default:
		return false
	}
}

func (pe *PartyEvents) markApplied(event AddressEvent, key string) {
	switch event.Kind {
	case KindExternal:
		pe.appliedExternal[key] = true
	case KindInternal:
		pe.appliedInternal[key] = true
	}
}

func (pe *PartyEvents) deadLetter(event AddressEvent, reason string) {
	pe.DeadLetter = append(pe.DeadLetter, DeadLetterEntry{Event: event, Reason: reason})
	pe.log.WithField("reason", reason).Warn("event moved to dead-letter")
}

// applyExternal handles transition cases (c), (a), and (d) for an
// externally observed transaction.
func (pe *PartyEvents) applyExternal(event AddressEvent, pricer *pricing.Model, nowMS int64) {
	ext := event.External

	if !ext.Incoming {
		pe.handleOutgoingExternal(event)
		return
	}

	if req, ok := pe.matchStakeRequest(ext); ok {
		pe.handleStakeExternalFill(event, req)
		return
	}

	pe.creditBalance(ext.Currency, ext.Amount, ext.Fee)

	if other, ok := event.OtherSwapAddress(); ok && types.ValidSwapInput(ext.Currency) {
		pe.handleSwapRequest(event, other, pricer, nowMS)
		return
	}
}

// matchStakeRequest finds a pending stake request whose deposit address
// matches the external transaction's self address and whose amount is
// within the chain's tolerance (transition case c, spec.md §4.6c).
func (pe *PartyEvents) matchStakeRequest(ext *types.ExternalTimedTransaction) (types.StakeRequest, bool) {
	req, ok := pe.PendingStakeRequests[ext.SelfAddress.RenderString()]
	if !ok || req.Currency != ext.Currency {
		return types.StakeRequest{}, false
	}
	diff := new(big.Int).Sub(req.ExpectedAmount.Int(), ext.Amount.Int())
	diff.Abs(diff)
	tolerance := new(big.Int).SetUint64(types.StakeTolerance(ext.Currency))
	if diff.Cmp(tolerance) > 0 {
		return types.StakeRequest{}, false
	}
	return req, true
}

func (pe *PartyEvents) handleStakeExternalFill(event AddressEvent, req types.StakeRequest) {
	pe.StakeUtxos = append(pe.StakeUtxos, types.StakeUtxo{
		RequestID: req.RequestID,
		Currency:  event.External.Currency,
		Amount:    event.External.Amount,
	})
	delete(pe.PendingStakeRequests, req.DepositAddress.RenderString())
	if sum, err := pe.ExternalStakeDeltas[event.External.Currency].Add(event.External.Amount); err == nil {
		pe.ExternalStakeDeltas[event.External.Currency] = sum
	} else {
		pe.ExternalStakeDeltas[event.External.Currency] = event.External.Amount
	}
	pe.log.WithField("request_id", req.RequestID).Info("stake external fill recorded")
}

func (pe *PartyEvents) handleSwapRequest(event AddressEvent, returnAddressStr string, pricer *pricing.Model, nowMS int64) {
	ext := event.External
	outputCurrency := types.Redgold

	returnAddr, err := types.ParseAddress(outputCurrency, returnAddressStr)
	if err != nil {
		pe.deadLetter(event, "swap request return address unparsable")
		return
	}

	inputUSD := 0.0
	if ext.PriceUSD != nil {
		inputUSD = *ext.PriceUSD * float64(ext.Amount.BaseUnits)
	}
	outputAmount, err := pricer.QuoteFor(inputUSD, types.USD, outputCurrency, nowMS)
	if err != nil {
		pe.log.WithError(err).Warn("swap request unquotable")
		return
	}

	of := types.OrderFulfillment{
		Order: types.Order{
			FromAddress:    ext.SelfAddress,
			FromAmount:     ext.Amount,
			FromCurrency:   ext.Currency,
			ToAddress:      returnAddr,
			ExpectedAmount: types.NewAmount(outputCurrency, uint64(outputAmount)),
			ToCurrency:     outputCurrency,
		},
		Timestamp:      nowMS,
		MatchedEventID: event.Identifier(),
	}
	pe.LocallyFulfilledOrders[event.Identifier()] = of
}

func (pe *PartyEvents) handleOutgoingExternal(event AddressEvent) {
	ext := event.External
	if of, ok := pe.LocallyFulfilledOrders[event.Identifier()]; ok {
		of.OutgoingTxID = ext.TxID
		pe.FulfillmentHistory = append(pe.FulfillmentHistory, of)
		delete(pe.LocallyFulfilledOrders, event.Identifier())
	} else {
		pe.log.WithField("tx_id", ext.TxID).Warn("outgoing external transaction with no matching locally fulfilled order")
	}
	pe.debitBalance(ext.Currency, ext.Amount, ext.Fee)
}

// applyInternal handles transition cases (b), (e), and (f) for an internal
// ledger transaction.
func (pe *PartyEvents) applyInternal(event AddressEvent, pricer *pricing.Model, nowMS int64) {
	payload := event.Internal

	if outputCurrency, ok := event.ExternalCurrency(); ok && event.Incoming() {
		if memoAddr, ok := event.OtherSwapAddress(); ok {
			pe.handleImplicitSwapRequest(event, outputCurrency, memoAddr, pricer, nowMS)
			return
		}
	}

	if isRebalanceTx(payload.Tx) {
		pe.applyRebalance(payload.Tx)
		return
	}

	// Observation/metadata-only: no state change beyond having been
	// recorded into Ordered above (transition case f).
}

func (pe *PartyEvents) handleImplicitSwapRequest(event AddressEvent, outputCurrency types.Currency, memoAddr string, pricer *pricing.Model, nowMS int64) {
	destAddr, err := types.ParseAddress(outputCurrency, memoAddr)
	if err != nil {
		pe.deadLetter(event, "implicit swap request address unparsable")
		return
	}
	rdgUSD := 0.0
	if event.Internal.PriceUSD != nil {
		rdgUSD = *event.Internal.PriceUSD * float64(event.Internal.Tx.TotalOutput(types.Redgold).BaseUnits)
	}
	outputAmount, err := pricer.QuoteFor(rdgUSD, types.USD, outputCurrency, nowMS)
	if err != nil {
		pe.log.WithError(err).Warn("implicit swap request unquotable")
		return
	}
	of := types.OrderFulfillment{
		Order: types.Order{
			FromCurrency:   types.Redgold,
			ToAddress:      destAddr,
			ToCurrency:     outputCurrency,
			ExpectedAmount: types.NewAmount(outputCurrency, uint64(outputAmount)),
		},
		Timestamp:      nowMS,
		MatchedEventID: event.Identifier(),
	}
	pe.LocallyFulfilledOrders[event.Identifier()] = of
}

// isRebalanceTx recognizes a stake/portfolio-rebalance transaction by memo
// tag, matching the original's fixed-currency-allocation bookkeeping.
func isRebalanceTx(tx types.Transaction) bool {
	return tx.Options.Memo == "rebalance"
}

func (pe *PartyEvents) applyRebalance(tx types.Transaction) {
	total := 0.0
	amounts := make(map[types.Currency]float64)
	for _, o := range tx.Outputs {
		amounts[o.Amount.Currency] += float64(o.Amount.BaseUnits)
		total += float64(o.Amount.BaseUnits)
	}
	if total == 0 {
		return
	}
	for c, amt := range amounts {
		weight := amt / total
		pe.PortfolioImbalance[c] = weight - pe.RdgAllocations[c]
		pe.RdgAllocations[c] = weight
	}
}

// netOfFee returns amt minus fee, matching spec.md §3's "the delta applied
// to the fold state equals the event's signed amount minus fees". A zero fee
// (the common case for chains whose watcher doesn't populate Fee) is a
// no-op; a nonzero fee in a different currency than amt is a malformed event
// and is logged rather than applied, leaving amt unreduced.
func (pe *PartyEvents) netOfFee(amt, fee types.Amount) types.Amount {
	if fee.IsZero() {
		return amt
	}
	net, err := amt.Sub(fee)
	if err != nil {
		pe.log.WithError(err).WithField("currency", amt.Currency.String()).
			Warn("fee could not be applied, crediting/debiting full amount")
		return amt
	}
	return net
}

func (pe *PartyEvents) creditBalance(c types.Currency, amt, fee types.Amount) {
	net := pe.netOfFee(amt, fee)
	if sum, err := pe.Balances[c].Add(net); err == nil {
		pe.Balances[c] = sum
	} else {
		pe.Balances[c] = net
	}
}

func (pe *PartyEvents) debitBalance(c types.Currency, amt, fee types.Amount) {
	net := pe.netOfFee(amt, fee)
	cur, ok := pe.Balances[c]
	if !ok {
		pe.log.WithField("currency", c.String()).Warn("debit against untracked balance")
		return
	}
	if diff, err := cur.Sub(net); err == nil {
		pe.Balances[c] = diff
	} else {
		pe.log.WithError(err).Error("debit exceeds balance, flagging for alert")
	}
}

// PendingCount reports how many events are currently deferred awaiting time
// resolution (used by fold tests to assert the deferred-not-dropped
// invariant from spec.md §3).
func (pe *PartyEvents) PendingCount() int { return len(pe.pending) }

// checkInvariants re-derives balances from Ordered and compares against
// Balances, matching the testable property in spec.md §8 ("the sum of
// per-currency balances equals the sum over all applied events' signed
// amounts, minus recorded fees"). Returns an error describing the first
// violation found, if any.
func (pe *PartyEvents) checkInvariants() error {
	replay := make(map[types.Currency]*big.Int)
	for _, e := range pe.Ordered {
		if e.Kind != KindExternal {
			continue
		}
		ext := e.External
		net := pe.netOfFee(ext.Amount, ext.Fee).Int()

		acc, ok := replay[ext.Currency]
		if !ok {
			acc = new(big.Int)
			replay[ext.Currency] = acc
		}
		if ext.Incoming {
			acc.Add(acc, net)
		} else {
			acc.Sub(acc, net)
		}
	}
	for c, want := range replay {
		got, ok := pe.Balances[c]
		if !ok {
			continue
		}
		if want.Cmp(got.Int()) != 0 {
			return partyerr.New(partyerr.KindArithmetic, "balance replay mismatch").
				WithDetail("currency", c.String())
		}
	}
	return nil
}
