package types

// StakeRequest is a pending internal request for a user to deposit
// collateral on an external chain in exchange for a stake_utxo.
type StakeRequest struct {
	RequestID      string
	DepositAddress Address
	ExpectedAmount Amount
	Currency       Currency
}

// StakeUtxo is an on-ledger unspent output representing a user's
// collateralized stake, created once a matching external deposit lands
// (transition case c in spec.md §4.6).
type StakeUtxo struct {
	RequestID string
	Utxo      UtxoId
	Amount    Amount
	Currency  Currency
}

// StakeTolerance returns the amount-mismatch tolerance accepted when
// matching an external deposit against a StakeRequest. Ethereum carries the
// literal 1e15 wei tolerance named in spec.md §4.6c; Bitcoin and Monero
// require an exact match.
func StakeTolerance(c Currency) uint64 {
	switch c {
	case Ethereum:
		return 1_000_000_000_000_000
	default:
		return 0
	}
}
