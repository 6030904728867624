package models

import "time"

// ConnectionQuality classifies a participant's link from reported latency.
type ConnectionQuality string

const (
	QualityExcellent    ConnectionQuality = "excellent"
	QualityGood         ConnectionQuality = "good"
	QualityPoor         ConnectionQuality = "poor"
	QualityDisconnected ConnectionQuality = "disconnected"
)

// QualityFromLatency maps a reported round-trip latency to a quality bucket.
func QualityFromLatency(latencyMs int) ConnectionQuality {
	switch {
	case latencyMs < 50:
		return QualityExcellent
	case latencyMs < 150:
		return QualityGood
	case latencyMs < 300:
		return QualityPoor
	default:
		return QualityDisconnected
	}
}

// Participant is one peer within a session. Owned exclusively by the
// session it belongs to.
type Participant struct {
	ID          string `json:"id"`
	DisplayName string `json:"display_name"`
	IsHost      bool   `json:"is_host"`
	IsReady     bool   `json:"is_ready"`

	IsConnected bool              `json:"is_connected"`
	Quality     ConnectionQuality `json:"connection_quality"`
	LatencyMs   int               `json:"latency_ms"`

	JoinedAt        time.Time  `json:"joined_at"`
	LastHeartbeatAt time.Time  `json:"last_heartbeat_at"`
	LastAnswerAt    *time.Time `json:"last_answer_at,omitempty"`
}
