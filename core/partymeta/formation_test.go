package partymeta

import (
	"context"
	"testing"

	"github.com/redbridge-network/partychain/core/signing"
	"github.com/redbridge-network/partychain/core/trust"
	"github.com/redbridge-network/partychain/core/types"
)

type stubHealth struct{ err error }

func (s stubHealth) CheckHealth(ctx context.Context, peers []types.PublicKey) error { return s.err }

func TestTickSkipsWhenAlreadyActive(t *testing.T) {
	store := NewStore()
	store.Record(examplePartyInfo())
	m := NewManager(store, stubHealth{}, trust.NewManager(), types.PublicKey{Bytes: []byte("self")})

	session, err := m.Tick(context.Background(), nil, 2, 3)
	if err != nil {
		t.Fatalf("Tick: %v", err)
	}
	if session != nil {
		t.Fatal("expected no new keygen session when a party is already active")
	}
}

func TestTickStartsKeygenWhenNoneActive(t *testing.T) {
	store := NewStore()
	self := types.PublicKey{Bytes: []byte("self")}
	peers := []types.PublicKey{self, {Bytes: []byte("peer-2")}, {Bytes: []byte("peer-3")}}
	m := NewManager(store, stubHealth{}, trust.NewManager(), self)

	session, err := m.Tick(context.Background(), peers, 2, 3)
	if err != nil {
		t.Fatalf("Tick: %v", err)
	}
	if session == nil {
		t.Fatal("expected a new keygen session")
	}
	if session.State() != signing.KeygenReady {
		t.Fatalf("expected KeygenReady, got %v", session.State())
	}
}

func TestTickFailsWhenHealthCheckFails(t *testing.T) {
	store := NewStore()
	self := types.PublicKey{Bytes: []byte("self")}
	m := NewManager(store, stubHealth{err: errUnhealthy}, trust.NewManager(), self)

	if _, err := m.Tick(context.Background(), []types.PublicKey{self}, 1, 1); err == nil {
		t.Fatal("expected error when health check fails")
	}
}

var errUnhealthy = errHealthCheck("peer unreachable")

type errHealthCheck string

func (e errHealthCheck) Error() string { return string(e) }
