package partymeta

import (
	"context"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/redbridge-network/partychain/core/signing"
	"github.com/redbridge-network/partychain/core/trust"
	"github.com/redbridge-network/partychain/core/types"
)

// PeerHealthChecker reports whether every peer in peers is currently
// reachable, the precondition formation_manager.rs checks via
// relay.health_request before starting a keygen round.
type PeerHealthChecker interface {
	CheckHealth(ctx context.Context, peers []types.PublicKey) error
}

// Manager runs the formation tick: if the store holds no Active party
// instance, it starts a fresh keygen session among the configured peer
// set. Grounded on formation_manager.rs's tick_formations/
// initial_formation/form_keygen_group.
type Manager struct {
	store   *Store
	health  PeerHealthChecker
	trust   *trust.Manager
	selfKey types.PublicKey
	log     *logrus.Entry
}

// NewManager constructs a formation Manager over store, using health to
// gate keygen start and trust for the resulting keygen session's
// byzantine-deviation feedback.
func NewManager(store *Store, health PeerHealthChecker, trustMgr *trust.Manager, selfKey types.PublicKey) *Manager {
	return &Manager{
		store:   store,
		health:  health,
		trust:   trustMgr,
		selfKey: selfKey,
		log:     logrus.WithField("component", "partymeta.formation"),
	}
}

// Tick runs one formation pass: starts initial keygen if the store has no
// Active party instance. Any Active instance skips formation; whether it
// was self-initiated is not checked.
func (m *Manager) Tick(ctx context.Context, peers []types.PublicKey, threshold, numParties int) (*signing.KeygenSession, error) {
	if _, ok := m.store.Current(); ok {
		return nil, nil
	}
	m.log.Info("no active party instance, starting initial formation")
	return m.formKeygenGroup(ctx, peers, threshold, numParties)
}

func (m *Manager) formKeygenGroup(ctx context.Context, peers []types.PublicKey, threshold, numParties int) (*signing.KeygenSession, error) {
	if err := m.health.CheckHealth(ctx, peers); err != nil {
		m.log.WithError(err).Error("initial party key formation failed health check")
		return nil, err
	}

	req := signing.InitiateMultipartyKeygenRequest{
		Identifier: types.PartyIdentifier{
			RoomID:     uuid.New(),
			PartyKeys:  peers,
			Threshold:  threshold,
			NumParties: numParties,
		},
	}
	partyIndex := indexOf(peers, m.selfKey)
	session := signing.NewKeygenSession(req, partyIndex, m.trust)
	if err := session.Ready(); err != nil {
		return nil, err
	}
	m.log.Info("initial party key formation started")
	return session, nil
}

func indexOf(peers []types.PublicKey, self types.PublicKey) int {
	for i, p := range peers {
		if string(p.Bytes) == string(self.Bytes) {
			return i
		}
	}
	return -1
}
