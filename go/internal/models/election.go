package models

import (
	"time"

	"github.com/google/uuid"
)

// ElectionReason defines what triggered a host election.
type ElectionReason string

const (
	ElectionReasonManual           ElectionReason = "manual"
	ElectionReasonHostDisconnected ElectionReason = "host_disconnected"
	ElectionReasonHostTimeout      ElectionReason = "host_timeout"
)

// CandidateScore is one ranked entry of the candidate set an election
// considered.
type CandidateScore struct {
	ParticipantID string `json:"participant_id"`
	DisplayName   string `json:"display_name"`
	Score         int    `json:"score"`
}

// ElectionVote is an advisory vote cast during the election window.
// Votes are recorded for diagnostics but never tallied; the computed
// fitness score decides the winner.
type ElectionVote struct {
	VoterID     string    `json:"voter_id"`
	CandidateID string    `json:"candidate_id"`
	CastAt      time.Time `json:"cast_at"`
}

// ElectionRecord is an append-only audit entry for one host transfer.
type ElectionRecord struct {
	ID             uuid.UUID        `json:"id"`
	PreviousHostID string           `json:"previous_host_id,omitempty"`
	NewHostID      string           `json:"new_host_id"`
	Reason         ElectionReason   `json:"reason"`
	Candidates     []CandidateScore `json:"candidates"`
	Votes          []ElectionVote   `json:"votes,omitempty"`
	OccurredAt     time.Time        `json:"occurred_at"`
}
