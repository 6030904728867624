package events

import (
	"encoding/json"
	"time"

	"github.com/Polimar/BrainBrawler/go/internal/models"
)

// ParticipantInfo is the roster view shared in broadcasts.
type ParticipantInfo struct {
	ID          string                   `json:"id"`
	DisplayName string                   `json:"display_name"`
	IsHost      bool                     `json:"is_host"`
	IsReady     bool                     `json:"is_ready"`
	IsConnected bool                     `json:"is_connected"`
	Quality     models.ConnectionQuality `json:"connection_quality"`
	LatencyMs   int                      `json:"latency_ms"`
	JoinedAt    time.Time                `json:"joined_at"`
}

// RosterView converts a session roster into broadcast form.
func RosterView(roster []*models.Participant) []ParticipantInfo {
	out := make([]ParticipantInfo, 0, len(roster))
	for _, p := range roster {
		out = append(out, ParticipantInfo{
			ID:          p.ID,
			DisplayName: p.DisplayName,
			IsHost:      p.IsHost,
			IsReady:     p.IsReady,
			IsConnected: p.IsConnected,
			Quality:     p.Quality,
			LatencyMs:   p.LatencyMs,
			JoinedAt:    p.JoinedAt,
		})
	}
	return out
}

// RosterChangedPayload carries the full roster after any membership or
// readiness change.
type RosterChangedPayload struct {
	Roster []ParticipantInfo `json:"roster"`
}

// MatchStartedPayload announces the transition out of the lobby.
type MatchStartedPayload struct {
	StartedAt      time.Time `json:"started_at"`
	TotalQuestions int       `json:"total_questions"`
	HostID         string    `json:"host_id"`
}

// MatchPausedPayload announces a host-initiated pause.
type MatchPausedPayload struct {
	PausedAt time.Time `json:"paused_at"`
}

// MatchResumedPayload announces a resume; Deadline is present when an
// open round was re-armed with its remaining time.
type MatchResumedPayload struct {
	ResumedAt time.Time  `json:"resumed_at"`
	Deadline  *time.Time `json:"deadline,omitempty"`
}

// NextRoundPayload relays the host-supplied question verbatim together
// with the authoritative round deadline.
type NextRoundPayload struct {
	QuestionIndex  int             `json:"question_index"`
	Question       json.RawMessage `json:"question"`
	RoundStartedAt time.Time       `json:"round_started_at"`
	Deadline       time.Time       `json:"deadline"`
	TimeLimitSec   int             `json:"time_limit_sec"`
}

// AnswerTallyPayload reports submission progress for the open round.
type AnswerTallyPayload struct {
	QuestionIndex  int `json:"question_index"`
	CountSubmitted int `json:"count_submitted"`
	CountExpected  int `json:"count_expected"`
}

// RoundClosedPayload carries cumulative scores after a round closes.
type RoundClosedPayload struct {
	QuestionIndex int            `json:"question_index"`
	Scores        map[string]int `json:"scores"`
	ClosedAt      time.Time      `json:"closed_at"`
	Reason        string         `json:"reason"` // "timeout" or "all_answered"
}

// HostElectionStartedPayload announces the ranked candidates and the
// provisional winner of a running election.
type HostElectionStartedPayload struct {
	Candidates          []models.CandidateScore `json:"candidates"`
	ProvisionalWinnerID string                  `json:"provisional_winner_id"`
	Reason              models.ElectionReason   `json:"reason"`
	Deadline            time.Time               `json:"deadline"`
}

// HostChangedPayload announces a committed host transfer.
type HostChangedPayload struct {
	NewHostID      string                `json:"new_host_id"`
	PreviousHostID string                `json:"previous_host_id,omitempty"`
	Reason         models.ElectionReason `json:"reason"`
}

// MatchCompletedPayload carries the final standings.
type MatchCompletedPayload struct {
	SessionID      string                 `json:"session_id"`
	Standings      []models.FinalStanding `json:"final_standings"`
	TotalQuestions int                    `json:"total_questions"`
	CompletedAt    time.Time              `json:"completed_at"`
}

// ParticipantPresencePayload is shared by disconnect/reconnect events.
type ParticipantPresencePayload struct {
	ParticipantID string `json:"participant_id"`
	DisplayName   string `json:"display_name"`
	WasHost       bool   `json:"was_host,omitempty"`
}

// SessionCancelledPayload announces a session-level cancellation.
type SessionCancelledPayload struct {
	Reason string `json:"reason"`
}

// StateSyncPayload relays a host-emitted state snapshot verbatim.
type StateSyncPayload struct {
	HostID string          `json:"host_id"`
	State  json.RawMessage `json:"state"`
}
