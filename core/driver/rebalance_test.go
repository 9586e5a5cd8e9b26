package driver

import (
	"testing"
	"time"

	"github.com/redbridge-network/partychain/core/partyevent"
	"github.com/redbridge-network/partychain/core/types"
)

func TestCheckPortfolioDriftNoTargetsIsNoop(t *testing.T) {
	pe := partyevent.NewPartyEvents()
	_, ok := checkPortfolioDrift(pe, nil, time.Now())
	if ok {
		t.Fatal("expected no rebalance event with no configured targets")
	}
}

func TestCheckPortfolioDriftBelowThresholdIsNoop(t *testing.T) {
	pe := partyevent.NewPartyEvents()
	pe.RdgAllocations[types.Bitcoin] = 0.5
	targets := TargetWeights{types.Bitcoin: 0.52}

	_, ok := checkPortfolioDrift(pe, targets, time.Now())
	if ok {
		t.Fatal("expected no rebalance event for drift within threshold")
	}
}

func TestCheckPortfolioDriftAboveThresholdTriggersRebalance(t *testing.T) {
	pe := partyevent.NewPartyEvents()
	pe.RdgAllocations[types.Bitcoin] = 0.2
	targets := TargetWeights{types.Bitcoin: 0.8}

	event, ok := checkPortfolioDrift(pe, targets, time.Now())
	if !ok {
		t.Fatal("expected a rebalance event for drift beyond threshold")
	}
	if event.Kind != partyevent.KindInternal {
		t.Fatalf("expected an internal event, got kind %v", event.Kind)
	}
	if event.Internal.Tx.Options.Memo != "rebalance" {
		t.Fatalf("expected memo %q, got %q", "rebalance", event.Internal.Tx.Options.Memo)
	}
}

func TestDriftTriggeredRebalanceFoldsAndUpdatesAllocations(t *testing.T) {
	pe := partyevent.NewPartyEvents()
	pe.RdgAllocations[types.Bitcoin] = 0.2
	targets := TargetWeights{types.Bitcoin: 0.8}
	now := time.Now()

	event, ok := checkPortfolioDrift(pe, targets, now)
	if !ok {
		t.Fatal("expected a rebalance event")
	}

	pe.FoldOrdered([]partyevent.AddressEvent{event}, nil, nil, now.UnixMilli())

	if got := pe.RdgAllocations[types.Bitcoin]; got != 1.0 {
		t.Fatalf("expected allocation 1.0 for the only output currency, got %v", got)
	}
	if got := pe.PortfolioImbalance[types.Bitcoin]; got != 0.8 {
		t.Fatalf("expected imbalance 0.8 (1.0 - 0.2 prior), got %v", got)
	}
}
