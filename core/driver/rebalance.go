package driver

import (
	"time"

	"github.com/redbridge-network/partychain/core/partyevent"
	"github.com/redbridge-network/partychain/core/types"
)

// RebalanceDriftThreshold is how far a currency's actual allocation may
// drift from its configured target weight before a rebalance transaction is
// triggered, matching the "portfolio imbalance" adjustment named in spec.md
// §4.6e. Grounded on original_source/src/party/formation_manager.rs's
// imbalance-triggered re-keygen check, narrowed here to the allocation
// rebalance it was paired with rather than a full re-keygen.
const RebalanceDriftThreshold = 0.05

// TargetWeights gives each currency's configured fixed-allocation weight,
// read from pkg/config's Party.TargetAllocations and normalized to sum to 1.
type TargetWeights map[types.Currency]float64

// checkPortfolioDrift compares the fold's current RdgAllocations against
// targets and, if any currency has drifted beyond RebalanceDriftThreshold,
// returns a synthetic internal rebalance AddressEvent carrying the target
// split as its outputs. The driver folds this event in the same tick,
// exercising the same applyRebalance path a real portfolio-rebalance
// transaction would (spec.md §4.6e).
func checkPortfolioDrift(pe *partyevent.PartyEvents, targets TargetWeights, now time.Time) (partyevent.AddressEvent, bool) {
	if len(targets) == 0 {
		return partyevent.AddressEvent{}, false
	}

	drifted := false
	for c, target := range targets {
		current := pe.RdgAllocations[c]
		delta := target - current
		if delta < 0 {
			delta = -delta
		}
		if delta > RebalanceDriftThreshold {
			drifted = true
			break
		}
	}
	if !drifted {
		return partyevent.AddressEvent{}, false
	}

	const scaleUnits = 1_000_000
	outputs := make([]types.TxOutput, 0, len(targets))
	for c, weight := range targets {
		outputs = append(outputs, types.TxOutput{
			Amount: types.NewAmount(c, uint64(weight*scaleUnits)),
		})
	}

	tx := types.Transaction{
		Outputs: outputs,
		Options: types.TxOptions{Memo: "rebalance"},
		Metadata: types.TxMetadata{
			Time: now,
		},
	}
	tx.Metadata.Hash = tx.ComputeHash()

	return partyevent.NewInternal(partyevent.InternalPayload{Tx: tx}), true
}
