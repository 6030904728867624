package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// SessionState defines the lifecycle state of a game session.
type SessionState string

const (
	SessionStateWaiting    SessionState = "WAITING"
	SessionStateStarting   SessionState = "STARTING"
	SessionStateInProgress SessionState = "IN_PROGRESS"
	SessionStatePaused     SessionState = "PAUSED"
	SessionStateCompleted  SessionState = "COMPLETED"
	SessionStateCancelled  SessionState = "CANCELLED"
)

// Terminal reports whether no further transitions are possible.
func (s SessionState) Terminal() bool {
	return s == SessionStateCompleted || s == SessionStateCancelled
}

// Answer is one participant's submission for the current round.
type Answer struct {
	Value       string    `json:"value"`
	ElapsedMs   int       `json:"elapsed_ms"`
	SubmittedAt time.Time `json:"submitted_at"`
}

// Session represents one live match with its roster and round state.
// All mutation goes through the registry; nothing outside it should
// hold a *Session that another goroutine can reach.
type Session struct {
	ID       uuid.UUID    `json:"id"`
	Code     string       `json:"code"`
	State    SessionState `json:"state"`
	HostID   string       `json:"host_id"`
	Settings GameSettings `json:"settings"`

	// InviteCode is a longer secondary code for private invitations.
	InviteCode string `json:"invite_code,omitempty"`

	// Roster preserves insertion order for display. Departed holds
	// participants removed from the roster; their scores still count
	// toward final standings.
	Roster   []*Participant `json:"roster"`
	Departed []*Participant `json:"departed,omitempty"`

	CurrentQuestionIndex int             `json:"current_question_index"`
	CurrentQuestion      json.RawMessage `json:"current_question,omitempty"`
	RoundStartedAt       *time.Time      `json:"round_started_at,omitempty"`
	RoundDeadline        *time.Time      `json:"round_deadline,omitempty"`
	RoundOpen            bool            `json:"round_open"`

	// Answers are for the current round only and are cleared on close.
	Answers map[string]Answer `json:"answers"`
	Scores  map[string]int    `json:"scores"`

	Elections []ElectionRecord `json:"elections,omitempty"`

	CreatedAt   time.Time  `json:"created_at"`
	StartedAt   *time.Time `json:"started_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// Participant returns the roster entry for id, or nil.
func (s *Session) Participant(id string) *Participant {
	for _, p := range s.Roster {
		if p.ID == id {
			return p
		}
	}
	return nil
}

// ConnectedCount returns how many roster members are currently connected.
func (s *Session) ConnectedCount() int {
	n := 0
	for _, p := range s.Roster {
		if p.IsConnected {
			n++
		}
	}
	return n
}

// Clone returns a deep copy safe to hand outside the registry lock.
func (s *Session) Clone() *Session {
	out := *s
	out.Roster = make([]*Participant, len(s.Roster))
	for i, p := range s.Roster {
		cp := *p
		out.Roster[i] = &cp
	}
	out.Departed = make([]*Participant, len(s.Departed))
	for i, p := range s.Departed {
		cp := *p
		out.Departed[i] = &cp
	}
	out.Answers = make(map[string]Answer, len(s.Answers))
	for k, v := range s.Answers {
		out.Answers[k] = v
	}
	out.Scores = make(map[string]int, len(s.Scores))
	for k, v := range s.Scores {
		out.Scores[k] = v
	}
	out.Elections = append([]ElectionRecord(nil), s.Elections...)
	if s.CurrentQuestion != nil {
		out.CurrentQuestion = append(json.RawMessage(nil), s.CurrentQuestion...)
	}
	return &out
}

// FinalStanding is one row of the completed-match ranking.
type FinalStanding struct {
	ParticipantID string     `json:"participant_id"`
	DisplayName   string     `json:"display_name"`
	Score         int        `json:"score"`
	Rank          int        `json:"rank"`
	LastAnswerAt  *time.Time `json:"last_answer_at,omitempty"`
}
