// Package signing implements the Threshold Signing Coordinator: two-phase
// keygen and signing protocols among party members, keyed by room-id
// (spec.md §4.8). The round-coordination state machine is original code —
// no threshold-ECDSA/MPC library exists anywhere in the reference corpus —
// built over decred/dcrd/dcrec/secp256k1/v4 for the underlying elliptic-
// curve primitives, the same library the teacher already depends on.
package signing

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/redbridge-network/partychain/core/partyerr"
	"github.com/redbridge-network/partychain/core/trust"
	"github.com/redbridge-network/partychain/core/types"
)

// RoundDeadline is the default wall-clock deadline per round (spec.md
// §4.8).
const RoundDeadline = 60 * time.Second

// roundMessage is one participant's payload for a given round.
type roundMessage struct {
	partyIndex int
	payload    []byte
	hash       types.Hash // hash of payload, used to detect byzantine deviation
}

// session holds the bookkeeping shared by keygen and signing sessions: the
// room-id, round message buffer, deadline tracking, and cancellation.
type session struct {
	mu         sync.Mutex
	roomID     uuid.UUID
	numParties int
	threshold  int
	round      int
	deadline   time.Time
	received   map[int]map[int]roundMessage // round -> partyIndex -> message
	cancelled  bool
	log        *zap.SugaredLogger
	trust      *trust.Manager
}

func newSession(roomID uuid.UUID, numParties, threshold int, trustMgr *trust.Manager) *session {
	return &session{
		roomID:     roomID,
		numParties: numParties,
		threshold:  threshold,
		received:   make(map[int]map[int]roundMessage),
		deadline:   time.Now().Add(RoundDeadline),
		log:        zap.L().Sugar().With("room_id", roomID.String()),
		trust:      trustMgr,
	}
}

// submit records partyIndex's message for the current round. It returns an
// error classified Signing if the same party has already submitted a
// different payload for this round (byzantine deviation): the session
// aborts and the offender is recorded for trust-score feedback.
func (s *session) submit(round, partyIndex int, payload []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cancelled {
		return partyerr.New(partyerr.KindSigning, "session cancelled")
	}
	if time.Now().After(s.deadline) {
		return partyerr.New(partyerr.KindSigning, "round deadline exceeded").
			WithDetail("room_id", s.roomID.String()).WithDetail("round", round)
	}

	h := types.HashBytes(payload)
	if s.received[round] == nil {
		s.received[round] = make(map[int]roundMessage)
	}
	if existing, ok := s.received[round][partyIndex]; ok && existing.hash != h {
		s.cancelled = true
		if s.trust != nil {
			s.trust.Penalize(partyIndex, "byzantine deviation: inconsistent round message")
		}
		return partyerr.New(partyerr.KindSigning, "byzantine deviation detected").
			WithDetail("party_index", partyIndex).WithDetail("round", round)
	}
	s.received[round][partyIndex] = roundMessage{partyIndex: partyIndex, payload: payload, hash: h}
	return nil
}

// quorumReached reports whether at least threshold distinct parties have
// submitted a message for round.
func (s *session) quorumReached(round int) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.received[round]) >= s.threshold
}

// allReached reports whether every expected party has submitted for round
// (required for keygen, which needs all numParties, not just threshold).
func (s *session) allReached(round int) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.received[round]) >= s.numParties
}

// extendDeadline resets the round deadline, called when a new round begins.
func (s *session) extendDeadline() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.deadline = time.Now().Add(RoundDeadline)
}

// cancel marks the session as explicitly aborted by the host.
func (s *session) cancel() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cancelled = true
}

func (s *session) isCancelled() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cancelled
}

func timeAfterDeadline(deadline time.Time) bool {
	return time.Now().After(deadline)
}
