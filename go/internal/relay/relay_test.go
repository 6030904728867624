package relay

import (
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"

	"github.com/Polimar/BrainBrawler/go/internal/models"
	"github.com/Polimar/BrainBrawler/go/internal/registry"
)

type sent struct {
	sessionID     uuid.UUID
	participantID string
	data          []byte
}

type captureSender struct {
	mu   sync.Mutex
	msgs []sent
}

func (c *captureSender) SendToParticipant(sessionID uuid.UUID, participantID string, data []byte) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.msgs = append(c.msgs, sent{sessionID: sessionID, participantID: participantID, data: data})
	return true
}

func setupRelay(t *testing.T) (*Relay, *captureSender, uuid.UUID) {
	t.Helper()
	reg := registry.New(clockwork.NewFakeClock(), time.Minute)
	sender := &captureSender{}

	snap, err := reg.CreateSession("ABC123", &models.Participant{ID: "alice"}, models.DefaultGameSettings())
	if err != nil {
		t.Fatalf("CreateSession: %v", err)
	}
	if _, _, err := reg.AddParticipant(snap.ID, &models.Participant{ID: "bob"}); err != nil {
		t.Fatalf("AddParticipant: %v", err)
	}
	return New(reg, sender), sender, snap.ID
}

func TestForwardDeliversSignal(t *testing.T) {
	relay, sender, id := setupRelay(t)

	payload := json.RawMessage(`{"sdp":"v=0..."}`)
	relay.Forward(id, "alice", "bob", "offer", payload)

	sender.mu.Lock()
	defer sender.mu.Unlock()
	if len(sender.msgs) != 1 {
		t.Fatalf("expected 1 delivery, got %d", len(sender.msgs))
	}
	msg := sender.msgs[0]
	if msg.participantID != "bob" {
		t.Errorf("expected delivery to bob, got %s", msg.participantID)
	}

	var sig Signal
	if err := json.Unmarshal(msg.data, &sig); err != nil {
		t.Fatalf("unmarshal signal: %v", err)
	}
	if sig.Kind != "offer" || sig.FromID != "alice" {
		t.Errorf("unexpected signal envelope: %+v", sig)
	}
	if string(sig.Payload) != string(payload) {
		t.Error("payload must pass through unmodified")
	}
}

func TestForwardDropsNonMembers(t *testing.T) {
	relay, sender, id := setupRelay(t)

	relay.Forward(id, "alice", "mallory", "offer", nil)
	relay.Forward(id, "mallory", "bob", "offer", nil)
	relay.Forward(uuid.New(), "alice", "bob", "offer", nil)

	sender.mu.Lock()
	defer sender.mu.Unlock()
	if len(sender.msgs) != 0 {
		t.Errorf("expected silent drops, got %d deliveries", len(sender.msgs))
	}
}
