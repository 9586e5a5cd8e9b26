package signing

import (
	"testing"

	"github.com/decred/dcrd/dcrec/secp256k1/v4"
	"github.com/decred/dcrd/dcrec/secp256k1/v4/ecdsa"
	"github.com/google/uuid"

	"github.com/redbridge-network/partychain/core/trust"
	"github.com/redbridge-network/partychain/core/types"
)

func TestSigningSucceedsWithExactlyThresholdSigners(t *testing.T) {
	priv, err := secp256k1.GeneratePrivateKey()
	if err != nil {
		t.Fatalf("GeneratePrivateKey: %v", err)
	}
	msgHash := types.HashBytes([]byte("withdrawal payload"))
	sig := ecdsa.Sign(priv, msgHash[:])
	der := sig.Serialize()

	s := NewSigningSession(uuid.New(), msgHash, 3, 2, priv.PubKey(), trust.NewManager())

	for _, p := range []int{0, 1} {
		if err := s.AddSigner(p); err != nil {
			t.Fatalf("AddSigner %d: %v", p, err)
		}
	}
	if s.State() != SigningRound {
		t.Fatalf("expected SigningRound once threshold reached, got %v", s.State())
	}

	for round := 0; round < SigningRounds; round++ {
		for _, p := range []int{0, 1} {
			payload := []byte("nonce-commitment")
			if round == SigningRounds-1 {
				payload = der
			}
			if err := s.SubmitRound(round, p, payload); err != nil {
				t.Fatalf("SubmitRound round %d party %d: %v", round, p, err)
			}
		}
	}

	if s.State() != SigningDone {
		t.Fatalf("expected SigningDone, got %v", s.State())
	}
	if !s.Verify() {
		t.Fatal("expected aggregated signature to verify")
	}
}

func TestSigningBelowThresholdNeverReachesRound(t *testing.T) {
	priv, err := secp256k1.GeneratePrivateKey()
	if err != nil {
		t.Fatalf("GeneratePrivateKey: %v", err)
	}
	msgHash := types.HashBytes([]byte("withdrawal payload"))
	s := NewSigningSession(uuid.New(), msgHash, 3, 2, priv.PubKey(), trust.NewManager())

	if err := s.AddSigner(0); err != nil {
		t.Fatalf("AddSigner: %v", err)
	}
	if s.State() != SigningGatheringSigners {
		t.Fatalf("expected SigningGatheringSigners with 1 of 2 threshold, got %v", s.State())
	}

	if err := s.SubmitRound(0, 0, []byte("nonce")); err == nil {
		t.Fatal("expected SubmitRound to fail before quorum reached")
	}
}

func TestSigningTimesOutAfterDeadlineWithoutQuorum(t *testing.T) {
	priv, err := secp256k1.GeneratePrivateKey()
	if err != nil {
		t.Fatalf("GeneratePrivateKey: %v", err)
	}
	msgHash := types.HashBytes([]byte("withdrawal payload"))
	s := NewSigningSession(uuid.New(), msgHash, 3, 2, priv.PubKey(), trust.NewManager())

	if err := s.AddSigner(0); err != nil {
		t.Fatalf("AddSigner: %v", err)
	}
	if err := s.AddSigner(1); err != nil {
		t.Fatalf("AddSigner: %v", err)
	}
	if err := s.SubmitRound(0, 0, []byte("nonce")); err != nil {
		t.Fatalf("SubmitRound: %v", err)
	}

	s.deadline = s.deadline.Add(-2 * RoundDeadline)
	s.CheckTimeout()
	if s.State() != SigningFailed {
		t.Fatalf("expected SigningFailed after deadline, got %v", s.State())
	}
}
