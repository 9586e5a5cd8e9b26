// Package partymeta manages PartyInfo/PartyMetadata lifecycle transitions,
// deposit-key allocation weighting, and the formation tick that initiates a
// new keygen session when a node has no self-initiated party yet. Grounded
// on the original source's src/party/deposit_key_allocation.rs and
// src/party/formation_manager.rs, expressed with the tagged-variant
// PartyLifecycle from core/types rather than the source's Option-soup
// fields.
package partymeta

import (
	"sync"

	"github.com/redbridge-network/partychain/core/partyerr"
	"github.com/redbridge-network/partychain/core/types"
)

// Store tracks every PartyInfo instance this node knows about, in
// chronological order, and derives the aggregate PartyMetadata.State from
// the most recent instance's lifecycle.
type Store struct {
	mu        sync.Mutex
	instances []types.PartyInfo
}

// NewStore constructs an empty party metadata Store.
func NewStore() *Store {
	return &Store{}
}

// Record appends info as the newest known party instance.
func (s *Store) Record(info types.PartyInfo) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.instances = append(s.instances, info)
}

// Metadata returns the current PartyMetadata snapshot.
func (s *Store) Metadata() types.PartyMetadata {
	s.mu.Lock()
	defer s.mu.Unlock()
	instances := append([]types.PartyInfo(nil), s.instances...)
	return types.PartyMetadata{Instances: instances, State: deriveState(instances)}
}

func deriveState(instances []types.PartyInfo) types.PartyState {
	if len(instances) == 0 {
		return types.PartyMetaExpired
	}
	switch instances[len(instances)-1].Lifecycle.Kind {
	case types.PartyActive:
		return types.PartyMetaActive
	case types.PartyDeprecated:
		return types.PartyMetaDeprecated
	default:
		return types.PartyMetaExpired
	}
}

// Deprecate marks the current Active instance Deprecated in favor of
// successor, the transition taken once a replacement keygen session
// finishes (spec.md §4.8's party rotation).
func (s *Store) Deprecate(successor types.PublicKey) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := len(s.instances) - 1; i >= 0; i-- {
		if s.instances[i].Lifecycle.Kind == types.PartyActive {
			s.instances[i].Lifecycle = types.DeprecatedLifecycle(successor)
			return nil
		}
	}
	return partyerr.New(partyerr.KindFatal, "partymeta: no active party instance to deprecate")
}

// Expire marks every Deprecated instance Expired as of expiredTimeMS, once
// the successor has fully taken over and the predecessor's key material may
// be safely retired.
func (s *Store) Expire(expiredTimeMS int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.instances {
		if s.instances[i].Lifecycle.Kind == types.PartyDeprecated {
			s.instances[i].Lifecycle = types.ExpiredLifecycle(expiredTimeMS)
		}
	}
}

// Current returns the current Active PartyInfo, if any.
func (s *Store) Current() (types.PartyInfo, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := len(s.instances) - 1; i >= 0; i-- {
		if s.instances[i].Lifecycle.Kind == types.PartyActive {
			return s.instances[i], true
		}
	}
	return types.PartyInfo{}, false
}
