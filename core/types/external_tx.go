package types

// ExternalTimedTransaction is the normalized representation of one
// transaction observed on an external chain, produced by every External
// Watcher regardless of chain. Grounded on
// original_source/src/party/address_event.rs's ExternalTimedTransaction
// (tx_id, timestamp, self/other addresses, amount, currency, price_usd).
type ExternalTimedTransaction struct {
	TxID           string
	Timestamp      *int64 // unix millis; nil if the chain did not report one
	SelfAddress    Address
	OtherAddress   Address
	Amount         Amount
	Currency       Currency
	Block          uint64
	Fee            Amount
	PriceUSD       *float64
	Incoming       bool
	// Memo carries a chain-native memo/OP_RETURN field when present, used to
	// recognize an other-address encoding for implicit swap requests.
	Memo string
}
