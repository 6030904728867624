// Package events defines the envelope and payloads broadcast to session
// members, plus the JetStream publisher for external consumers.
package events

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// EventType identifies a server-to-client session event.
type EventType string

const (
	EventTypeRosterChanged           EventType = "rosterChanged"
	EventTypeMatchStarted            EventType = "matchStarted"
	EventTypeMatchPaused             EventType = "matchPaused"
	EventTypeMatchResumed            EventType = "matchResumed"
	EventTypeNextRound               EventType = "nextRound"
	EventTypeAnswerTally             EventType = "answerTally"
	EventTypeRoundClosed             EventType = "roundClosed"
	EventTypeHostElectionStarted     EventType = "hostElectionStarted"
	EventTypeHostChanged             EventType = "hostChanged"
	EventTypeMatchCompleted          EventType = "matchCompleted"
	EventTypeParticipantDisconnected EventType = "participantDisconnected"
	EventTypeParticipantReconnected  EventType = "participantReconnected"
	EventTypeSessionCancelled        EventType = "sessionCancelled"
	EventTypeStateSync               EventType = "stateSync"
)

// Event is the wire envelope for every session broadcast.
type Event struct {
	ID        string          `json:"id"`
	SessionID string          `json:"session_id"`
	Type      EventType       `json:"type"`
	Timestamp time.Time       `json:"timestamp"`
	Data      json.RawMessage `json:"data"`
}

// New builds an event envelope around payload.
func New(sessionID uuid.UUID, t EventType, at time.Time, payload any) (Event, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return Event{}, fmt.Errorf("marshal %s payload: %w", t, err)
	}
	return Event{
		ID:        uuid.New().String(),
		SessionID: sessionID.String(),
		Type:      t,
		Timestamp: at,
		Data:      data,
	}, nil
}

// MustNew is New for payloads built from our own structs, where a
// marshal failure is a programming error.
func MustNew(sessionID uuid.UUID, t EventType, at time.Time, payload any) Event {
	ev, err := New(sessionID, t, at, payload)
	if err != nil {
		panic(err)
	}
	return ev
}
