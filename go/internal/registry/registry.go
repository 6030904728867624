// Package registry owns every live session. All roster and state
// mutation funnels through it so the coordinator's invariants are
// enforced at one choke point, and each session's updates are
// linearized behind its own lock.
package registry

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"

	"github.com/Polimar/BrainBrawler/go/internal/game"
	"github.com/Polimar/BrainBrawler/go/internal/models"
)

// DefaultCompletionGrace is how long a completed session stays
// queryable before eviction.
const DefaultCompletionGrace = 30 * time.Second

type record struct {
	mu      sync.Mutex
	session *models.Session
	evict   clockwork.Timer
}

// Registry is the in-memory table of active sessions. Construct one at
// process start and inject it; there is no package-level instance.
type Registry struct {
	clock           clockwork.Clock
	completionGrace time.Duration

	mu       sync.RWMutex
	sessions map[uuid.UUID]*record
	byCode   map[string]uuid.UUID
	byInvite map[string]uuid.UUID
}

// New creates an empty registry.
func New(clock clockwork.Clock, completionGrace time.Duration) *Registry {
	if completionGrace <= 0 {
		completionGrace = DefaultCompletionGrace
	}
	return &Registry{
		clock:           clock,
		completionGrace: completionGrace,
		sessions:        make(map[uuid.UUID]*record),
		byCode:          make(map[string]uuid.UUID),
		byInvite:        make(map[string]uuid.UUID),
	}
}

// CreateSession creates a session in WAITING state. The creator joins
// immediately as host and is considered ready.
func (r *Registry) CreateSession(code string, creator *models.Participant, settings models.GameSettings) (*models.Session, error) {
	if !game.IsValidSessionCode(code) {
		return nil, fmt.Errorf("invalid session code %q", code)
	}
	if err := settings.Validate(); err != nil {
		return nil, err
	}

	now := r.clock.Now()
	host := *creator
	host.IsHost = true
	host.IsReady = true
	host.IsConnected = true
	if host.Quality == "" {
		host.Quality = models.QualityExcellent
	}
	host.JoinedAt = now
	host.LastHeartbeatAt = now

	s := &models.Session{
		ID:         uuid.New(),
		Code:       code,
		InviteCode: game.GenerateInviteCode(),
		State:      models.SessionStateWaiting,
		HostID:     host.ID,
		Settings:   settings,
		Roster:     []*models.Participant{&host},
		Answers:    make(map[string]models.Answer),
		Scores:     map[string]int{host.ID: 0},
		CreatedAt:  now,
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, taken := r.byCode[code]; taken {
		return nil, fmt.Errorf("session code %s already in use", code)
	}
	r.sessions[s.ID] = &record{session: s}
	r.byCode[code] = s.ID
	r.byInvite[s.InviteCode] = s.ID

	log.Info().
		Str("session_id", s.ID.String()).
		Str("code", code).
		Str("host_id", host.ID).
		Msg("session created")

	return s.Clone(), nil
}

func (r *Registry) find(id uuid.UUID) (*record, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	rec, ok := r.sessions[id]
	if !ok {
		return nil, game.ErrSessionNotFound
	}
	return rec, nil
}

// GetSession returns a snapshot of the session.
func (r *Registry) GetSession(id uuid.UUID) (*models.Session, error) {
	rec, err := r.find(id)
	if err != nil {
		return nil, err
	}
	rec.mu.Lock()
	defer rec.mu.Unlock()
	return rec.session.Clone(), nil
}

// GetSessionByCode resolves a join code to a session snapshot.
func (r *Registry) GetSessionByCode(code string) (*models.Session, error) {
	r.mu.RLock()
	id, ok := r.byCode[code]
	r.mu.RUnlock()
	if !ok {
		return nil, game.ErrSessionNotFound
	}
	return r.GetSession(id)
}

// GetSessionByInviteCode resolves a private invite code to a session
// snapshot.
func (r *Registry) GetSessionByInviteCode(code string) (*models.Session, error) {
	r.mu.RLock()
	id, ok := r.byInvite[code]
	r.mu.RUnlock()
	if !ok {
		return nil, game.ErrSessionNotFound
	}
	return r.GetSession(id)
}

// Update runs fn with exclusive access to the session and returns a
// snapshot of the result. This is the single mutation path for every
// component above the registry.
func (r *Registry) Update(id uuid.UUID, fn func(*models.Session) error) (*models.Session, error) {
	rec, err := r.find(id)
	if err != nil {
		return nil, err
	}
	rec.mu.Lock()
	defer rec.mu.Unlock()
	if err := fn(rec.session); err != nil {
		return nil, err
	}
	return rec.session.Clone(), nil
}

// AddParticipant joins p to the session. First-time joins are allowed
// only while the session is WAITING and below capacity; a returning
// roster member may rejoin in any state.
func (r *Registry) AddParticipant(id uuid.UUID, p *models.Participant) (snap *models.Session, rejoined bool, err error) {
	snap, err = r.Update(id, func(s *models.Session) error {
		now := r.clock.Now()
		if existing := s.Participant(p.ID); existing != nil {
			existing.IsConnected = true
			existing.LastHeartbeatAt = now
			if existing.Quality == models.QualityDisconnected {
				existing.Quality = models.QualityGood
			}
			rejoined = true
			return nil
		}
		if s.State != models.SessionStateWaiting {
			return game.ErrAlreadyStarted
		}
		if len(s.Roster) >= s.Settings.MaxPlayers {
			return game.ErrRoomFull
		}

		joined := *p
		joined.IsHost = false
		joined.IsReady = false
		joined.IsConnected = true
		if joined.Quality == "" {
			joined.Quality = models.QualityExcellent
		}
		joined.JoinedAt = now
		joined.LastHeartbeatAt = now
		s.Roster = append(s.Roster, &joined)
		if _, ok := s.Scores[joined.ID]; !ok {
			s.Scores[joined.ID] = 0
		}
		return nil
	})
	return snap, rejoined, err
}

// RemoveParticipant removes a roster member on explicit leave or
// session-level cleanup. Scores survive removal so final standings can
// still rank departed players. Removing the last member evicts the
// session.
func (r *Registry) RemoveParticipant(id uuid.UUID, participantID string) (snap *models.Session, removed *models.Participant, err error) {
	snap, err = r.Update(id, func(s *models.Session) error {
		for i, p := range s.Roster {
			if p.ID != participantID {
				continue
			}
			removed = p
			s.Roster = append(s.Roster[:i], s.Roster[i+1:]...)
			s.Departed = append(s.Departed, p)
			delete(s.Answers, participantID)
			return nil
		}
		return game.ErrNotAParticipant
	})
	if err != nil {
		return nil, nil, err
	}
	if len(snap.Roster) == 0 {
		log.Info().Str("session_id", id.String()).Msg("roster empty, evicting session")
		r.Evict(id)
	}
	return snap, removed, nil
}

// SetReady flips a participant's pre-game readiness flag.
func (r *Registry) SetReady(id uuid.UUID, participantID string, ready bool) (*models.Session, error) {
	return r.Update(id, func(s *models.Session) error {
		if s.State != models.SessionStateWaiting {
			return game.ErrAlreadyStarted
		}
		p := s.Participant(participantID)
		if p == nil {
			return game.ErrNotAParticipant
		}
		p.IsReady = ready
		return nil
	})
}

// RecordHeartbeat applies one heartbeat. The quality bucket is derived
// from the reported latency; a previously disconnected participant is
// restored and reported as reconnected.
func (r *Registry) RecordHeartbeat(id uuid.UUID, participantID string, latencyMs int) (snap *models.Session, reconnected bool, err error) {
	snap, err = r.Update(id, func(s *models.Session) error {
		p := s.Participant(participantID)
		if p == nil {
			return game.ErrNotAParticipant
		}
		reconnected = !p.IsConnected
		p.IsConnected = true
		p.LatencyMs = latencyMs
		p.Quality = models.QualityFromLatency(latencyMs)
		p.LastHeartbeatAt = r.clock.Now()
		return nil
	})
	return snap, reconnected, err
}

// ScheduleEviction arms (or re-arms) the post-completion grace timer.
func (r *Registry) ScheduleEviction(id uuid.UUID) {
	rec, err := r.find(id)
	if err != nil {
		return
	}
	rec.mu.Lock()
	defer rec.mu.Unlock()
	if rec.evict != nil {
		rec.evict.Stop()
	}
	rec.evict = r.clock.AfterFunc(r.completionGrace, func() {
		r.Evict(id)
	})
}

// Evict removes the session from the registry. Subsequent lookups
// return ErrSessionNotFound.
func (r *Registry) Evict(id uuid.UUID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.sessions[id]
	if !ok {
		return
	}
	if rec.evict != nil {
		rec.evict.Stop()
	}
	delete(r.byCode, rec.session.Code)
	delete(r.byInvite, rec.session.InviteCode)
	delete(r.sessions, id)
	log.Info().Str("session_id", id.String()).Msg("session evicted")
}

// ActiveSessions returns snapshots of every live session.
func (r *Registry) ActiveSessions() []*models.Session {
	r.mu.RLock()
	recs := make([]*record, 0, len(r.sessions))
	for _, rec := range r.sessions {
		recs = append(recs, rec)
	}
	r.mu.RUnlock()

	out := make([]*models.Session, 0, len(recs))
	for _, rec := range recs {
		rec.mu.Lock()
		out = append(out, rec.session.Clone())
		rec.mu.Unlock()
	}
	return out
}

// DrainAll evicts every session. Called on shutdown.
func (r *Registry) DrainAll() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for id, rec := range r.sessions {
		if rec.evict != nil {
			rec.evict.Stop()
		}
		delete(r.byCode, rec.session.Code)
		delete(r.byInvite, rec.session.InviteCode)
		delete(r.sessions, id)
	}
}
