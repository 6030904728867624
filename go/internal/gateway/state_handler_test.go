package gateway

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"

	"github.com/Polimar/BrainBrawler/go/internal/models"
	"github.com/Polimar/BrainBrawler/go/internal/registry"
)

func TestExtractSessionIDFromPath(t *testing.T) {
	tests := []struct {
		name string
		path string
		want string
	}{
		{"valid path", "/api/sessions/abc-123/state", "abc-123"},
		{"no state suffix", "/api/sessions/abc-123", "abc-123"},
		{"missing prefix", "/other/abc-123/state", ""},
		{"nested segments", "/api/sessions/a/b/state", ""},
		{"empty id", "/api/sessions//state", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := extractSessionIDFromPath(tt.path); got != tt.want {
				t.Errorf("extractSessionIDFromPath(%q) = %q, want %q", tt.path, got, tt.want)
			}
		})
	}
}

func newStateTestRegistry(t *testing.T) (*registry.Registry, *models.Session) {
	t.Helper()
	reg := registry.New(clockwork.NewFakeClock(), 30*time.Second)
	snap, err := reg.CreateSession("QZ7K2M", &models.Participant{
		ID:          "host-1",
		DisplayName: "Host",
	}, models.DefaultGameSettings())
	if err != nil {
		t.Fatalf("CreateSession: %v", err)
	}
	return reg, snap
}

func TestHandleGetSessionState(t *testing.T) {
	reg, snap := newStateTestRegistry(t)
	h := NewStateHandler(reg)

	mux := http.NewServeMux()
	h.RegisterStateRoutes(mux)

	t.Run("existing session", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/api/sessions/"+snap.ID.String()+"/state", nil)
		rec := httptest.NewRecorder()
		mux.ServeHTTP(rec, req)

		if rec.Code != http.StatusOK {
			t.Fatalf("status = %d, want 200", rec.Code)
		}
		var resp SessionStateResponse
		if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
			t.Fatalf("decode response: %v", err)
		}
		if resp.SessionCode != "QZ7K2M" {
			t.Errorf("session_code = %q, want QZ7K2M", resp.SessionCode)
		}
		if resp.HostID != "host-1" {
			t.Errorf("host_id = %q, want host-1", resp.HostID)
		}
		if resp.State != models.SessionStateWaiting {
			t.Errorf("state = %q, want %q", resp.State, models.SessionStateWaiting)
		}
		if len(resp.Roster) != 1 {
			t.Errorf("roster size = %d, want 1", len(resp.Roster))
		}
	})

	t.Run("unknown session", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/api/sessions/"+uuid.NewString()+"/state", nil)
		rec := httptest.NewRecorder()
		mux.ServeHTTP(rec, req)
		if rec.Code != http.StatusNotFound {
			t.Errorf("status = %d, want 404", rec.Code)
		}
	})

	t.Run("malformed id", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/api/sessions/not-a-uuid/state", nil)
		rec := httptest.NewRecorder()
		mux.ServeHTTP(rec, req)
		if rec.Code != http.StatusBadRequest {
			t.Errorf("status = %d, want 400", rec.Code)
		}
	})

	t.Run("method not allowed", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/api/sessions/"+snap.ID.String()+"/state", nil)
		rec := httptest.NewRecorder()
		mux.ServeHTTP(rec, req)
		if rec.Code != http.StatusMethodNotAllowed {
			t.Errorf("status = %d, want 405", rec.Code)
		}
	})
}

func TestHandleGetActiveSessions(t *testing.T) {
	reg, snap := newStateTestRegistry(t)
	h := NewStateHandler(reg)

	mux := http.NewServeMux()
	h.RegisterStateRoutes(mux)

	req := httptest.NewRequest(http.MethodGet, "/api/sessions/active", nil)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var summaries []SessionSummary
	if err := json.Unmarshal(rec.Body.Bytes(), &summaries); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if len(summaries) != 1 {
		t.Fatalf("summaries = %d, want 1", len(summaries))
	}
	if summaries[0].SessionID != snap.ID.String() {
		t.Errorf("session_id = %q, want %q", summaries[0].SessionID, snap.ID)
	}
	if summaries[0].Participants != 1 {
		t.Errorf("participants = %d, want 1", summaries[0].Participants)
	}
}
