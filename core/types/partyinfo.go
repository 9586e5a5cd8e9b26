package types

import "github.com/google/uuid"

// PartyIdentifier names a single keygen/signing room: a uuid plus the fixed
// set of party_keys, threshold, and participant count agreed at session
// start.
type PartyIdentifier struct {
	RoomID      uuid.UUID
	PartyKeys   []PublicKey
	Threshold   int
	NumParties  int
}

// PartyLifecycle is the tagged variant replacing the source's
// PartyInfo{state, successor_key, expired_time} Option-soup (spec.md §9
// redesign flag): each state carries exactly the fields meaningful to it.
type PartyLifecycleKind int

const (
	PartyActive PartyLifecycleKind = iota
	PartyDeprecated
	PartyExpired
)

// PartyLifecycle is a closed tagged union: exactly one of the *Detail fields
// is populated, selected by Kind.
type PartyLifecycle struct {
	Kind             PartyLifecycleKind
	DeprecatedDetail *PartyDeprecatedDetail
	ExpiredDetail    *PartyExpiredDetail
}

type PartyDeprecatedDetail struct {
	SuccessorKey PublicKey
}

type PartyExpiredDetail struct {
	ExpiredTime int64 // unix millis
}

func ActiveLifecycle() PartyLifecycle { return PartyLifecycle{Kind: PartyActive} }

func DeprecatedLifecycle(successor PublicKey) PartyLifecycle {
	return PartyLifecycle{Kind: PartyDeprecated, DeprecatedDetail: &PartyDeprecatedDetail{SuccessorKey: successor}}
}

func ExpiredLifecycle(expiredTime int64) PartyLifecycle {
	return PartyLifecycle{Kind: PartyExpired, ExpiredDetail: &PartyExpiredDetail{ExpiredTime: expiredTime}}
}

// PartyInfo is the completed keygen session's durable record.
type PartyInfo struct {
	Identifier     PartyIdentifier
	LocalKeyShare  []byte
	HostPublicKey  PublicKey
	PartyPublicKey PublicKey
	Lifecycle      PartyLifecycle
}

// PartyState enumerates the coarse operating state of PartyMetadata,
// separate from a single PartyInfo's lifecycle.
type PartyState int

const (
	PartyMetaActive PartyState = iota
	PartyMetaDeprecated
	PartyMetaExpired
)

// PartyMetadata is the set of PartyInstances a node knows about plus the
// aggregate state across them, used for historical reconstruction.
type PartyMetadata struct {
	Instances []PartyInfo
	State     PartyState
}

// Current returns the single PartyInfo currently Active, if any.
func (m PartyMetadata) Current() (PartyInfo, bool) {
	for _, inst := range m.Instances {
		if inst.Lifecycle.Kind == PartyActive {
			return inst, true
		}
	}
	return PartyInfo{}, false
}
