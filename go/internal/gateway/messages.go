package gateway

import (
	"encoding/json"

	"github.com/Polimar/BrainBrawler/go/internal/events"
	"github.com/Polimar/BrainBrawler/go/internal/models"
)

// Client message types.
const (
	MsgJoinSession      = "joinSession"
	MsgLeaveSession     = "leaveSession"
	MsgSetReady         = "setReady"
	MsgStartMatch       = "startMatch"
	MsgAdvanceRound     = "advanceRound"
	MsgPauseMatch       = "pauseMatch"
	MsgResumeMatch      = "resumeMatch"
	MsgSubmitAnswer     = "submitAnswer"
	MsgHeartbeat        = "heartbeat"
	MsgRequestElection  = "requestHostElection"
	MsgCastElectionVote = "castElectionVote"
	MsgRelaySignal      = "relaySignal"
	MsgSyncState        = "syncState"
)

// Server reply types that are not broadcast events.
const (
	ReplyJoined = "joined"
	ReplyError  = "error"
)

// ClientMessage is the envelope for all inbound websocket traffic.
type ClientMessage struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

// JoinSessionPayload joins an existing session by code, or creates one
// when Create is set.
type JoinSessionPayload struct {
	SessionCode string               `json:"sessionCode,omitempty"`
	Create      bool                 `json:"create,omitempty"`
	Settings    *models.GameSettings `json:"settings,omitempty"`
}

// SetReadyPayload toggles the caller's ready flag.
type SetReadyPayload struct {
	Ready bool `json:"ready"`
}

// AdvanceRoundPayload carries the host-supplied question for the next
// round. The payload is opaque to the coordinator.
type AdvanceRoundPayload struct {
	Question json.RawMessage `json:"question"`
}

// SubmitAnswerPayload records the caller's answer for the open round.
type SubmitAnswerPayload struct {
	QuestionIndex int    `json:"questionIndex"`
	Answer        string `json:"answer"`
	ElapsedMs     int    `json:"elapsedMs,omitempty"`
}

// HeartbeatPayload reports connection health.
type HeartbeatPayload struct {
	LatencyMs int `json:"latencyMs"`
}

// CastElectionVotePayload records an advisory vote during an election
// window.
type CastElectionVotePayload struct {
	CandidateID string `json:"candidateId"`
}

// RelaySignalPayload forwards an opaque signal to one session member.
type RelaySignalPayload struct {
	ToID    string          `json:"toId"`
	Kind    string          `json:"kind"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// SyncStatePayload carries a host state snapshot to rebroadcast.
type SyncStatePayload struct {
	State json.RawMessage `json:"state"`
}

// JoinedReply is the direct reply to a successful join. It gives the
// new participant a full snapshot of the session.
type JoinedReply struct {
	Type        string                   `json:"type"`
	SessionID   string                   `json:"sessionId"`
	SessionCode string                   `json:"sessionCode"`
	InviteCode  string                   `json:"inviteCode,omitempty"`
	State       models.SessionState      `json:"state"`
	HostID      string                   `json:"hostId"`
	Settings    models.GameSettings      `json:"settings"`
	Roster      []events.ParticipantInfo `json:"roster"`
}

// ErrorReply is sent only to the offending caller, never broadcast.
type ErrorReply struct {
	Type       string `json:"type"`
	ReasonCode string `json:"reasonCode"`
	Message    string `json:"message"`
	RequestID  string `json:"requestType,omitempty"`
}
