// Package relay forwards opaque peer-connection-negotiation payloads
// between participants of the same session. Pure pass-through: no
// interpretation, no storage, best-effort delivery.
package relay

import (
	"encoding/json"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/Polimar/BrainBrawler/go/internal/registry"
)

// Sender delivers a payload to one participant's live connection.
type Sender interface {
	SendToParticipant(sessionID uuid.UUID, participantID string, data []byte) bool
}

// Signal is the envelope delivered to the target peer. Kind is the
// negotiation step (offer, answer, ice-candidate) and is carried
// opaquely.
type Signal struct {
	Kind    string          `json:"kind"`
	FromID  string          `json:"from_id"`
	Payload json.RawMessage `json:"payload"`
}

// Relay routes signaling blobs between session members.
type Relay struct {
	registry *registry.Registry
	sender   Sender
}

// New creates a relay.
func New(reg *registry.Registry, sender Sender) *Relay {
	return &Relay{registry: reg, sender: sender}
}

// Forward sends payload to toID if both peers are members of the same
// session; anything else is dropped silently per the relay contract.
func (r *Relay) Forward(sessionID uuid.UUID, fromID, toID, kind string, payload json.RawMessage) {
	snap, err := r.registry.GetSession(sessionID)
	if err != nil {
		return
	}
	if snap.Participant(fromID) == nil || snap.Participant(toID) == nil {
		log.Debug().
			Str("session_id", sessionID.String()).
			Str("from_id", fromID).
			Str("to_id", toID).
			Msg("dropping signal between non-members")
		return
	}

	data, err := json.Marshal(Signal{Kind: kind, FromID: fromID, Payload: payload})
	if err != nil {
		return
	}
	if !r.sender.SendToParticipant(sessionID, toID, data) {
		log.Debug().
			Str("session_id", sessionID.String()).
			Str("to_id", toID).
			Msg("signal target has no live connection")
	}
}
