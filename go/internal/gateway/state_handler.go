package gateway

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/Polimar/BrainBrawler/go/internal/events"
	"github.com/Polimar/BrainBrawler/go/internal/game"
	"github.com/Polimar/BrainBrawler/go/internal/models"
	"github.com/Polimar/BrainBrawler/go/internal/registry"
)

// SessionStateResponse represents the observable state of a session.
type SessionStateResponse struct {
	SessionID            string                   `json:"session_id"`
	SessionCode          string                   `json:"session_code"`
	State                models.SessionState      `json:"state"`
	HostID               string                   `json:"host_id"`
	Settings             models.GameSettings      `json:"settings"`
	Roster               []events.ParticipantInfo `json:"roster"`
	CurrentQuestionIndex int                      `json:"current_question_index"`
	RoundOpen            bool                     `json:"round_open"`
	TimeRemaining        *int                     `json:"time_remaining_sec,omitempty"`
	CreatedAt            time.Time                `json:"created_at"`
}

// SessionSummary represents one entry in the active session listing.
type SessionSummary struct {
	SessionID    string              `json:"session_id"`
	SessionCode  string              `json:"session_code"`
	State        models.SessionState `json:"state"`
	HostID       string              `json:"host_id"`
	Participants int                 `json:"participants"`
	MaxPlayers   int                 `json:"max_players"`
	CreatedAt    time.Time           `json:"created_at"`
}

// StateHandler serves read-only HTTP views of the session registry.
type StateHandler struct {
	registry *registry.Registry
}

// NewStateHandler creates a new state handler.
func NewStateHandler(reg *registry.Registry) *StateHandler {
	return &StateHandler{registry: reg}
}

func sessionStateView(s *models.Session) SessionStateResponse {
	resp := SessionStateResponse{
		SessionID:            s.ID.String(),
		SessionCode:          s.Code,
		State:                s.State,
		HostID:               s.HostID,
		Settings:             s.Settings,
		Roster:               events.RosterView(s.Roster),
		CurrentQuestionIndex: s.CurrentQuestionIndex,
		RoundOpen:            s.RoundOpen,
		CreatedAt:            s.CreatedAt,
	}
	if s.RoundOpen && s.RoundDeadline != nil {
		remaining := int(time.Until(*s.RoundDeadline).Seconds())
		if remaining > 0 {
			resp.TimeRemaining = &remaining
		}
	}
	return resp
}

// HandleGetSessionState handles GET /api/sessions/{id}/state.
func (h *StateHandler) HandleGetSessionState(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	idStr := extractSessionIDFromPath(r.URL.Path)
	if idStr == "" {
		http.Error(w, "Session ID is required", http.StatusBadRequest)
		return
	}

	sessionID, err := uuid.Parse(idStr)
	if err != nil {
		http.Error(w, "Invalid session ID format", http.StatusBadRequest)
		return
	}

	session, err := h.registry.GetSession(sessionID)
	if err != nil {
		if errors.Is(err, game.ErrSessionNotFound) {
			http.NotFound(w, r)
			return
		}
		log.Error().Err(err).Str("session_id", sessionID.String()).Msg("failed to get session state")
		http.Error(w, "Failed to get session state", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(sessionStateView(session)); err != nil {
		log.Error().Err(err).Msg("failed to encode session state response")
	}
}

// HandleGetActiveSessions handles GET /api/sessions/active.
func (h *StateHandler) HandleGetActiveSessions(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	sessions := h.registry.ActiveSessions()
	summaries := make([]SessionSummary, 0, len(sessions))
	for _, s := range sessions {
		summaries = append(summaries, SessionSummary{
			SessionID:    s.ID.String(),
			SessionCode:  s.Code,
			State:        s.State,
			HostID:       s.HostID,
			Participants: len(s.Roster),
			MaxPlayers:   s.Settings.MaxPlayers,
			CreatedAt:    s.CreatedAt,
		})
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(summaries); err != nil {
		log.Error().Err(err).Msg("failed to encode active sessions response")
	}
}

// RegisterStateRoutes registers state-related HTTP routes.
func (h *StateHandler) RegisterStateRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/api/sessions/active", h.HandleGetActiveSessions)

	mux.HandleFunc("/api/sessions/", func(w http.ResponseWriter, r *http.Request) {
		if strings.HasSuffix(r.URL.Path, "/state") {
			h.HandleGetSessionState(w, r)
			return
		}
		http.NotFound(w, r)
	})
}

// extractSessionIDFromPath pulls the id out of /api/sessions/{id}/state.
func extractSessionIDFromPath(path string) string {
	trimmed := strings.TrimPrefix(path, "/api/sessions/")
	trimmed = strings.TrimSuffix(trimmed, "/state")
	if trimmed == path || strings.Contains(trimmed, "/") {
		return ""
	}
	return trimmed
}
