// Package trust adapts the teacher's core/stake_penalty.go
// StakePenaltyManager into the byzantine-deviation trust-score feedback
// named in spec.md §4.8: a signing participant whose round message
// contradicts its prior submission has its trust score penalized, and
// repeated deviation is visible to the driver when selecting future
// signing subsets.
package trust

import (
	"sync"

	"github.com/sirupsen/logrus"
)

// Manager tracks a per-party-index trust score, starting at 1.0 and
// decremented on byzantine deviation. Grounded on stake_penalty.go's
// AdjustStake/Penalize/PenaltyOf/ResetPenalty shape, generalized from
// ledger-state-key bookkeeping to a plain in-memory map since trust scoring
// does not need to survive a restart the way stake accounting does.
type Manager struct {
	mu        sync.Mutex
	scores    map[int]float64
	penalties map[int][]string
}

// NewManager constructs an empty trust Manager.
func NewManager() *Manager {
	return &Manager{
		scores:    make(map[int]float64),
		penalties: make(map[int][]string),
	}
}

// ScoreOf returns the current trust score for partyIndex, defaulting to 1.0
// if never penalized.
func (m *Manager) ScoreOf(partyIndex int) float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	if s, ok := m.scores[partyIndex]; ok {
		return s
	}
	return 1.0
}

// Penalize reduces partyIndex's trust score by a fixed decrement and
// records the reason.
func (m *Manager) Penalize(partyIndex int, reason string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	score, ok := m.scores[partyIndex]
	if !ok {
		score = 1.0
	}
	score -= 0.25
	if score < 0 {
		score = 0
	}
	m.scores[partyIndex] = score
	m.penalties[partyIndex] = append(m.penalties[partyIndex], reason)
	logrus.WithFields(logrus.Fields{
		"party_index": partyIndex, "score": score, "reason": reason,
	}).Warn("trust: penalty applied")
}

// PenaltiesOf returns the recorded penalty reasons for partyIndex.
func (m *Manager) PenaltiesOf(partyIndex int) []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.penalties[partyIndex]...)
}

// Reset clears all recorded scores and penalties for partyIndex, used when
// a party rejoins under a fresh identity after a successor rotation.
func (m *Manager) Reset(partyIndex int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.scores, partyIndex)
	delete(m.penalties, partyIndex)
}

// EligibleForSigning reports whether partyIndex's trust score is high
// enough to be included in a future signing subset.
func (m *Manager) EligibleForSigning(partyIndex int, minScore float64) bool {
	return m.ScoreOf(partyIndex) >= minScore
}
