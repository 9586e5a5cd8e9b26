package partymeta

import (
	"github.com/redbridge-network/partychain/core/partyerr"
	"github.com/redbridge-network/partychain/core/signing"
	"github.com/redbridge-network/partychain/core/types"
)

// DepositKeyAllocation is one deposit key's share of the party's total
// custody, grounded on deposit_key_allocation.rs's DepositKeyAllocation.
// Generalized from the source's hardcoded BTC-only balances to the
// currency-tagged Amount used everywhere else in this module.
type DepositKeyAllocation struct {
	Key       types.PublicKey
	Allocation float64
	Initiate  signing.InitiateMultipartyKeygenRequest
	Balances  []types.Amount
}

// IsSelfInitiated reports whether selfKey is the first (initiating) party
// key in the allocation's keygen identifier.
func (d DepositKeyAllocation) IsSelfInitiated(selfKey types.PublicKey) (bool, error) {
	keys := d.Initiate.Identifier.PartyKeys
	if len(keys) == 0 {
		return false, partyerr.New(partyerr.KindSchemaInvalid, "partymeta: deposit allocation missing party keys")
	}
	return keys[0].Bytes != nil && string(keys[0].Bytes) == string(selfKey.Bytes), nil
}

// Weight returns this allocation's voting/custody weight as
// threshold/num_parties, matching the source's PartyInfo weighting (kept
// commented out in the source; reinstated here since the driver needs it to
// size rebalance shares across deposit keys).
func (d DepositKeyAllocation) Weight() float64 {
	id := d.Initiate.Identifier
	if id.NumParties == 0 {
		return 0
	}
	return float64(id.Threshold) / float64(id.NumParties)
}

// MemberWeight returns the equal per-member weight 1/num_parties.
func (d DepositKeyAllocation) MemberWeight() float64 {
	id := d.Initiate.Identifier
	if id.NumParties == 0 {
		return 0
	}
	return 1.0 / float64(id.NumParties)
}

// TotalBalance sums Balances for the given currency.
func (d DepositKeyAllocation) TotalBalance(c types.Currency) types.Amount {
	total := types.NewAmount(c, 0)
	for _, b := range d.Balances {
		if b.Currency != c {
			continue
		}
		if sum, err := total.Add(b); err == nil {
			total = sum
		}
	}
	return total
}
