package partymeta

import (
	"testing"

	"github.com/redbridge-network/partychain/core/types"
)

func examplePartyInfo() types.PartyInfo {
	return types.PartyInfo{
		Identifier: types.PartyIdentifier{NumParties: 3, Threshold: 2},
		Lifecycle:  types.ActiveLifecycle(),
	}
}

func TestCurrentReturnsLatestActive(t *testing.T) {
	s := NewStore()
	if _, ok := s.Current(); ok {
		t.Fatal("expected no current instance in empty store")
	}
	s.Record(examplePartyInfo())
	cur, ok := s.Current()
	if !ok || cur.Lifecycle.Kind != types.PartyActive {
		t.Fatalf("expected active current instance, got %+v ok=%v", cur, ok)
	}
}

func TestDeprecateThenExpireTransitions(t *testing.T) {
	s := NewStore()
	s.Record(examplePartyInfo())

	successor := types.PublicKey{Bytes: []byte("successor")}
	if err := s.Deprecate(successor); err != nil {
		t.Fatalf("Deprecate: %v", err)
	}
	if _, ok := s.Current(); ok {
		t.Fatal("expected no current Active instance after Deprecate")
	}
	if md := s.Metadata(); md.State != types.PartyMetaDeprecated {
		t.Fatalf("expected PartyMetaDeprecated, got %v", md.State)
	}

	s.Expire(1000)
	if md := s.Metadata(); md.State != types.PartyMetaExpired {
		t.Fatalf("expected PartyMetaExpired, got %v", md.State)
	}
}

func TestDeprecateWithNoActiveInstanceFails(t *testing.T) {
	s := NewStore()
	if err := s.Deprecate(types.PublicKey{}); err == nil {
		t.Fatal("expected error deprecating an empty store")
	}
}
