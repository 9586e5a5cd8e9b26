// Package partyevent implements the normalized AddressEvent union and the
// deterministic Party Event Stream fold described by spec.md §4.2 and §4.6.
// Grounded on original_source/src/party/address_event.rs for the event
// union's operations and original_source/src/party/party_stream.rs (via
// TransactionWithObservationsAndPrice) for the internal payload shape.
package partyevent

import (
	"bytes"

	"github.com/redbridge-network/partychain/core/types"
)

// Kind discriminates the two AddressEvent variants. Expressed here as a
// fixed tag plus exactly-one-populated-payload rather than an interface,
// since the set of variants is closed and the fold needs exhaustive
// switches, not extensibility (spec.md §9 redesign flag on Option-soup).
type Kind int

const (
	KindExternal Kind = iota
	KindInternal
)

// InternalPayload mirrors the source's TransactionWithObservationsAndPrice:
// an internal ledger transaction plus the observation proofs and oracle
// price attached by the Internal Watcher.
type InternalPayload struct {
	Tx             types.Transaction
	Observations   []types.ObservationProof
	PriceUSD       *float64
	QueriedAddress types.Address
}

// AddressEvent is the tagged union of an externally observed transaction and
// an internally observed one.
type AddressEvent struct {
	Kind     Kind
	External *types.ExternalTimedTransaction
	Internal *InternalPayload
}

// NewExternal constructs an AddressEvent from an external-chain observation.
func NewExternal(tx types.ExternalTimedTransaction) AddressEvent {
	return AddressEvent{Kind: KindExternal, External: &tx}
}

// NewInternal constructs an AddressEvent from an internal ledger transaction.
func NewInternal(p InternalPayload) AddressEvent {
	return AddressEvent{Kind: KindInternal, Internal: &p}
}

// Incoming reports whether the event represents value moving toward a
// watched address.
func (e AddressEvent) Incoming() bool {
	switch e.Kind {
	case KindExternal:
		return e.External.Incoming
	case KindInternal:
		// An internal transaction is incoming to the queried address when
		// that address appears among its outputs.
		for _, o := range e.Internal.Tx.Outputs {
			if o.Address.Equal(e.Internal.QueriedAddress) {
				return true
			}
		}
		return false
	default:
		return false
	}
}

// Currency returns the currency the event is denominated in from the
// watched address's perspective.
func (e AddressEvent) Currency() types.Currency {
	switch e.Kind {
	case KindExternal:
		return e.External.Currency
	case KindInternal:
		return types.Redgold
	default:
		return types.Redgold
	}
}

// ExternalCurrency returns the external currency involved, including for
// internal transactions that reference an external destination currency via
// their options/memo (an implicit swap request).
func (e AddressEvent) ExternalCurrency() (types.Currency, bool) {
	switch e.Kind {
	case KindExternal:
		return e.External.Currency, true
	case KindInternal:
		if c, ok := externalDestinationCurrency(e.Internal.Tx); ok {
			return c, true
		}
		return 0, false
	default:
		return 0, false
	}
}

// Identifier returns the event's dedup key component: the external tx_id, or
// the internal transaction's hash, hex-encoded.
func (e AddressEvent) Identifier() string {
	switch e.Kind {
	case KindExternal:
		return e.External.TxID
	case KindInternal:
		return e.Internal.Tx.Metadata.Hash.Hex()
	default:
		return ""
	}
}

// UsdEventPrice returns the USD price attached to the event, if any.
func (e AddressEvent) UsdEventPrice() *float64 {
	switch e.Kind {
	case KindExternal:
		return e.External.PriceUSD
	case KindInternal:
		return e.Internal.PriceUSD
	default:
		return nil
	}
}

// OtherSwapAddress returns the counterparty address string when the
// transaction encodes a swap request (external tx with a memo naming a
// return address, or an internal tx whose memo names an external address),
// or false otherwise.
func (e AddressEvent) OtherSwapAddress() (string, bool) {
	switch e.Kind {
	case KindExternal:
		if e.External.Memo != "" {
			return e.External.Memo, true
		}
		return "", false
	case KindInternal:
		if _, addr, ok := splitCurrencyMemo(e.Internal.Tx.Options.Memo); ok {
			return addr, true
		}
		return "", false
	default:
		return "", false
	}
}

// Time resolves the event's deterministic fold-ordering time. If seeds is
// empty, the event's own time metadata is used. Otherwise, for internal
// events, the mean of accepted+live observation times from the given seed
// public keys is used; if the average is zero or no seed observation
// exists, the event is unresolved (deferred, not dropped), per spec.md §4.2.
func (e AddressEvent) Time(seeds []types.PublicKey) (int64, bool) {
	switch e.Kind {
	case KindExternal:
		if e.External.Timestamp == nil {
			return 0, false
		}
		return *e.External.Timestamp, true
	case KindInternal:
		if len(seeds) == 0 {
			return e.Internal.Tx.Metadata.Time.UnixMilli(), true
		}
		var sum int64
		var count int64
		for _, obs := range e.Internal.Observations {
			if !isSeed(obs.Proof.PublicKey, seeds) {
				continue
			}
			if obs.Metadata.Liveness != types.LivenessLive {
				continue
			}
			if obs.Metadata.State != types.StateAccepted {
				continue
			}
			sum += obs.Metadata.Time
			count++
		}
		if count == 0 {
			return 0, false
		}
		avg := sum / count
		if avg == 0 {
			return 0, false
		}
		return avg, true
	default:
		return 0, false
	}
}

func isSeed(pk types.PublicKey, seeds []types.PublicKey) bool {
	for _, s := range seeds {
		if bytes.Equal(s.Bytes, pk.Bytes) {
			return true
		}
	}
	return false
}

// externalDestinationCurrency inspects an internal transaction's memo for an
// encoding of "<currency>:<address>", recognizing an implicit swap request
// (transition case b in spec.md §4.6).
func externalDestinationCurrency(tx types.Transaction) (types.Currency, bool) {
	prefix, _, ok := splitCurrencyMemo(tx.Options.Memo)
	if !ok {
		return 0, false
	}
	switch prefix {
	case "BTC":
		return types.Bitcoin, true
	case "ETH":
		return types.Ethereum, true
	case "XMR":
		return types.Monero, true
	case "SOL":
		return types.Solana, true
	default:
		return 0, false
	}
}

// splitCurrencyMemo splits a "<currency>:<address>" memo into its prefix and
// the remaining address, reporting false if the memo does not use that
// form. Shared by externalDestinationCurrency (which reads the prefix) and
// OtherSwapAddress's internal case (which reads the address).
func splitCurrencyMemo(memo string) (prefix, rest string, ok bool) {
	if memo == "" {
		return "", "", false
	}
	idx := bytes.IndexByte([]byte(memo), ':')
	if idx <= 0 || idx == len(memo)-1 {
		return "", "", false
	}
	return memo[:idx], memo[idx+1:], true
}
