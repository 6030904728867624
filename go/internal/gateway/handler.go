package gateway

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/rs/zerolog/log"
)

// Authenticator resolves an HTTP request to a participant identity.
type Authenticator interface {
	Authenticate(r *http.Request) (participantID, displayName string, err error)
}

// QueryAuthenticator reads identity from query parameters. It stands
// in for a real token verifier in development.
type QueryAuthenticator struct{}

var errMissingIdentity = errors.New("participant_id is required")

func (QueryAuthenticator) Authenticate(r *http.Request) (string, string, error) {
	participantID := r.URL.Query().Get("participant_id")
	if participantID == "" {
		return "", "", errMissingIdentity
	}
	displayName := r.URL.Query().Get("display_name")
	if displayName == "" {
		displayName = participantID
	}
	return participantID, displayName, nil
}

// WebSocketHandler handles websocket upgrade requests for session
// connections.
type WebSocketHandler struct {
	connectionManager *ConnectionManager
	auth              Authenticator
}

// NewWebSocketHandler creates a new websocket handler.
func NewWebSocketHandler(cm *ConnectionManager, auth Authenticator) *WebSocketHandler {
	return &WebSocketHandler{
		connectionManager: cm,
		auth:              auth,
	}
}

// HandleSessionConnection authenticates the caller and upgrades the
// connection. Session membership is established afterwards by a
// joinSession message.
func (h *WebSocketHandler) HandleSessionConnection(w http.ResponseWriter, r *http.Request) {
	participantID, displayName, err := h.auth.Authenticate(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusUnauthorized)
		return
	}

	if err := h.connectionManager.UpgradeConnection(w, r, participantID, displayName); err != nil {
		log.Error().
			Err(err).
			Str("participant_id", participantID).
			Msg("failed to upgrade websocket connection")
		http.Error(w, "failed to upgrade connection", http.StatusInternalServerError)
		return
	}
}

// HandleConnectionStats returns statistics about active connections.
func (h *WebSocketHandler) HandleConnectionStats(w http.ResponseWriter, r *http.Request) {
	total, sessions := h.connectionManager.Stats()

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]int{
		"total_connections": total,
		"active_sessions":   sessions,
	})
}

// RegisterRoutes registers websocket routes with an HTTP mux.
func (h *WebSocketHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/ws/session", h.HandleSessionConnection)
	mux.HandleFunc("/ws/stats", h.HandleConnectionStats)
}
