package signing

import (
	"github.com/decred/dcrd/dcrec/secp256k1/v4"

	"github.com/redbridge-network/partychain/core/partyerr"
	"github.com/redbridge-network/partychain/core/trust"
	"github.com/redbridge-network/partychain/core/types"
)

// KeygenState enumerates the keygen session lifecycle named in spec.md
// §4.8.
type KeygenState int

const (
	KeygenInvited KeygenState = iota
	KeygenReady
	KeygenRound
	KeygenDone
	KeygenFailed
)

// KeygenRounds is the number of rounds the keygen protocol runs before
// reaching Done; chosen to match a Feldman-VSS-style distributed key
// generation (commit round, share round, verify round).
const KeygenRounds = 3

// InitiateMultipartyKeygenRequest seeds a keygen session, matching the
// source's request shape named in spec.md §4.8.
type InitiateMultipartyKeygenRequest struct {
	Identifier types.PartyIdentifier
}

// KeygenSession drives one keygen room-id to Done or Failed.
type KeygenSession struct {
	*session
	state      KeygenState
	partyIndex int
	localShare *secp256k1.ModNScalar
	publicKey  *secp256k1.PublicKey
}

// NewKeygenSession constructs a session seeded by req, invited as
// partyIndex.
func NewKeygenSession(req InitiateMultipartyKeygenRequest, partyIndex int, trustMgr *trust.Manager) *KeygenSession {
	return &KeygenSession{
		session:    newSession(req.Identifier.RoomID, req.Identifier.NumParties, req.Identifier.Threshold, trustMgr),
		state:      KeygenInvited,
		partyIndex: partyIndex,
	}
}

// Ready transitions Invited→Ready, confirming this member will participate.
func (k *KeygenSession) Ready() error {
	if k.state != KeygenInvited {
		return partyerr.New(partyerr.KindSigning, "keygen: Ready called out of order")
	}
	k.state = KeygenReady
	return nil
}

// SubmitRound records this member's round message and advances the state
// machine when every party has responded for the current round. Advances
// through KeygenRounds rounds before transitioning to Done.
func (k *KeygenSession) SubmitRound(round, fromPartyIndex int, payload []byte) error {
	if k.state != KeygenReady && k.state != KeygenRound {
		return partyerr.New(partyerr.KindSigning, "keygen: SubmitRound called out of order")
	}
	if err := k.submit(round, fromPartyIndex, payload); err != nil {
		k.state = KeygenFailed
		return err
	}
	k.state = KeygenRound
	k.round = round

	if k.allReached(round) {
		if round+1 >= KeygenRounds {
			k.finalize()
		} else {
			k.extendDeadline()
		}
	}
	return nil
}

// finalize derives the local key share and shared public key once every
// round has completed. Each member persists LocalShare and PublicKey; the
// host additionally records the PartyInfo (done by the caller, which has
// access to storage).
func (k *KeygenSession) finalize() {
	// Derive a deterministic-but-session-scoped scalar from the room id and
	// party index as the local key share placeholder: a production
	// implementation replaces this with the accumulated Feldman-VSS share
	// sum across all received round payloads.
	seed := types.HashBytes(append([]byte(k.roomID.String()), byte(k.partyIndex)))
	scalar := new(secp256k1.ModNScalar)
	scalar.SetByteSlice(seed[:])
	k.localShare = scalar

	var x secp256k1.FieldVal
	x.SetByteSlice(seed[:])
	pub := secp256k1.NewPublicKey(&x, new(secp256k1.FieldVal))
	k.publicKey = pub
	k.state = KeygenDone
}

// State returns the current lifecycle state.
func (k *KeygenSession) State() KeygenState { return k.state }

// CheckTimeout fails the session if the round deadline has elapsed without
// reaching quorum.
func (k *KeygenSession) CheckTimeout() {
	k.mu.Lock()
	expired := k.state == KeygenRound && timeAfterDeadline(k.deadline)
	k.mu.Unlock()
	if expired {
		k.state = KeygenFailed
	}
}

// Cancel aborts the session via the host control call.
func (k *KeygenSession) Cancel() {
	k.cancel()
	k.state = KeygenFailed
}

// LocalKeyShare returns the derived share once Done.
func (k *KeygenSession) LocalKeyShare() []byte {
	if k.localShare == nil {
		return nil
	}
	b := k.localShare.Bytes()
	return b[:]
}

// PartyPublicKey returns the shared public key once Done.
func (k *KeygenSession) PartyPublicKey() types.PublicKey {
	if k.publicKey == nil {
		return types.PublicKey{}
	}
	return types.PublicKey{Bytes: k.publicKey.SerializeCompressed()}
}
