package engine

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"

	"github.com/Polimar/BrainBrawler/go/internal/events"
	"github.com/Polimar/BrainBrawler/go/internal/game"
	"github.com/Polimar/BrainBrawler/go/internal/models"
	"github.com/Polimar/BrainBrawler/go/internal/registry"
)

// Dispatcher broadcasts events to a session's members.
type Dispatcher interface {
	Dispatch(sessionID uuid.UUID, evs []events.Event)
}

// StatsSink receives the completion summary for durable persistence.
// Implementations must not block: persistence failures are retried in
// the background and never reach the players.
type StatsSink interface {
	RecordMatchCompletion(sessionID uuid.UUID, completion events.MatchCompletedPayload)
}

type roundState struct {
	index     int
	timer     clockwork.Timer
	deadline  time.Time
	remaining time.Duration // set while paused
}

// Engine drives session lifecycle transitions and owns the
// authoritative round timers. Client-side timers are advisory only.
type Engine struct {
	registry *registry.Registry
	dispatch Dispatcher
	stats    StatsSink
	clock    clockwork.Clock
	score    ScoreFunc

	mu     sync.Mutex
	rounds map[uuid.UUID]*roundState
}

// New creates a game engine. stats may be nil.
func New(reg *registry.Registry, dispatch Dispatcher, stats StatsSink, clock clockwork.Clock, score ScoreFunc) *Engine {
	return &Engine{
		registry: reg,
		dispatch: dispatch,
		stats:    stats,
		clock:    clock,
		score:    score,
		rounds:   make(map[uuid.UUID]*roundState),
	}
}

// StartMatch begins the match. Host-only; requires at least two
// players and every non-host participant ready.
func (e *Engine) StartMatch(sessionID uuid.UUID, actorID string) error {
	now := e.clock.Now()
	var evs []events.Event
	_, err := e.registry.Update(sessionID, func(s *models.Session) error {
		var err error
		evs, err = startMatch(s, actorID, now)
		return err
	})
	if err != nil {
		return err
	}
	log.Info().
		Str("session_id", sessionID.String()).
		Str("host_id", actorID).
		Msg("match started")
	e.dispatch.Dispatch(sessionID, evs)
	return nil
}

// AdvanceRound opens the next answer window with the host-supplied
// question payload, relayed verbatim, and arms the authoritative
// server-side round timer.
func (e *Engine) AdvanceRound(sessionID uuid.UUID, actorID string, question json.RawMessage) error {
	now := e.clock.Now()
	var (
		evs   []events.Event
		index int
		limit time.Duration
	)
	_, err := e.registry.Update(sessionID, func(s *models.Session) error {
		var err error
		evs, err = advanceRound(s, actorID, question, now)
		if err != nil {
			return err
		}
		index = s.CurrentQuestionIndex
		limit = time.Duration(s.Settings.TimePerQuestionSec) * time.Second
		return nil
	})
	if err != nil {
		return err
	}

	e.armRound(sessionID, index, limit)
	e.dispatch.Dispatch(sessionID, evs)
	return nil
}

// SubmitAnswer records one answer for the open round. The round closes
// early once every connected participant has answered.
func (e *Engine) SubmitAnswer(sessionID uuid.UUID, actorID, value string, elapsedMs int) error {
	now := e.clock.Now()
	var (
		evs         []events.Event
		allAnswered bool
	)
	_, err := e.registry.Update(sessionID, func(s *models.Session) error {
		var err error
		evs, allAnswered, err = submitAnswer(s, actorID, value, elapsedMs, now)
		return err
	})
	if err != nil {
		return err
	}
	e.dispatch.Dispatch(sessionID, evs)

	if allAnswered {
		e.closeRound(sessionID, "all_answered")
	}
	return nil
}

// Pause suspends an in-progress match, freezing any open round's
// remaining time.
func (e *Engine) Pause(sessionID uuid.UUID, actorID string) error {
	now := e.clock.Now()
	var evs []events.Event
	_, err := e.registry.Update(sessionID, func(s *models.Session) error {
		var err error
		evs, err = pauseMatch(s, actorID, now)
		return err
	})
	if err != nil {
		return err
	}

	e.mu.Lock()
	if rs, ok := e.rounds[sessionID]; ok && rs.timer != nil {
		rs.timer.Stop()
		rs.timer = nil
		rs.remaining = rs.deadline.Sub(now)
		if rs.remaining < 0 {
			rs.remaining = 0
		}
	}
	e.mu.Unlock()

	e.dispatch.Dispatch(sessionID, evs)
	return nil
}

// Resume continues a paused match, re-arming the open round with the
// time it had left.
func (e *Engine) Resume(sessionID uuid.UUID, actorID string) error {
	now := e.clock.Now()

	e.mu.Lock()
	var deadline *time.Time
	var remaining time.Duration
	if rs, ok := e.rounds[sessionID]; ok && rs.remaining > 0 {
		remaining = rs.remaining
		d := now.Add(remaining)
		deadline = &d
	}
	e.mu.Unlock()

	var evs []events.Event
	var index int
	var roundOpen bool
	_, err := e.registry.Update(sessionID, func(s *models.Session) error {
		var err error
		evs, err = resumeMatch(s, actorID, now, deadline)
		if err != nil {
			return err
		}
		index = s.CurrentQuestionIndex
		roundOpen = s.RoundOpen
		return nil
	})
	if err != nil {
		return err
	}

	e.dispatch.Dispatch(sessionID, evs)
	if deadline != nil {
		e.armRound(sessionID, index, remaining)
	} else if roundOpen {
		// The timer already ran out, either before the pause landed or
		// with nothing left on the clock. Close instead of leaving the
		// round open with a past deadline.
		e.closeRound(sessionID, "timeout")
	}
	return nil
}

// Cancel moves the session to CANCELLED and schedules eviction.
func (e *Engine) Cancel(sessionID uuid.UUID, reason string) error {
	now := e.clock.Now()
	var evs []events.Event
	_, err := e.registry.Update(sessionID, func(s *models.Session) error {
		var err error
		evs, err = cancelSession(s, reason, now)
		return err
	})
	if err != nil {
		return err
	}

	e.dropRound(sessionID)
	log.Info().Str("session_id", sessionID.String()).Str("reason", reason).Msg("session cancelled")
	e.dispatch.Dispatch(sessionID, evs)
	e.registry.ScheduleEviction(sessionID)
	return nil
}

// SyncState relays a host-emitted state snapshot verbatim to the room.
func (e *Engine) SyncState(sessionID uuid.UUID, actorID string, state json.RawMessage) error {
	now := e.clock.Now()
	_, err := e.registry.Update(sessionID, func(s *models.Session) error {
		return requireHost(s, actorID)
	})
	if err != nil {
		return err
	}
	e.dispatch.Dispatch(sessionID, []events.Event{
		events.MustNew(sessionID, events.EventTypeStateSync, now, events.StateSyncPayload{
			HostID: actorID,
			State:  state,
		}),
	})
	return nil
}

// armRound schedules the authoritative round timeout.
func (e *Engine) armRound(sessionID uuid.UUID, index int, d time.Duration) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if rs, ok := e.rounds[sessionID]; ok && rs.timer != nil {
		rs.timer.Stop()
	}
	e.rounds[sessionID] = &roundState{
		index:    index,
		deadline: e.clock.Now().Add(d),
		timer: e.clock.AfterFunc(d, func() {
			e.handleRoundTimeout(sessionID, index)
		}),
	}
}

func (e *Engine) dropRound(sessionID uuid.UUID) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if rs, ok := e.rounds[sessionID]; ok && rs.timer != nil {
		rs.timer.Stop()
	}
	delete(e.rounds, sessionID)
}

// handleRoundTimeout fires when the round timer expires. The index
// guard makes a stale timer for an already-closed round a no-op.
func (e *Engine) handleRoundTimeout(sessionID uuid.UUID, index int) {
	snap, err := e.registry.GetSession(sessionID)
	if err != nil {
		return
	}
	if snap.State != models.SessionStateInProgress || !snap.RoundOpen || snap.CurrentQuestionIndex != index {
		return
	}
	log.Debug().
		Str("session_id", sessionID.String()).
		Int("question_index", index).
		Msg("round timer expired")
	e.closeRound(sessionID, "timeout")
}

// closeRound scores and closes the open round, completing the match
// when it was the last question.
func (e *Engine) closeRound(sessionID uuid.UUID, reason string) {
	now := e.clock.Now()
	var (
		evs        []events.Event
		completed  bool
		completion events.MatchCompletedPayload
	)
	_, err := e.registry.Update(sessionID, func(s *models.Session) error {
		if s.State != models.SessionStateInProgress {
			return game.ErrInvalidTransition
		}
		closed, lastRound := scoreRound(s, e.score, now, reason)
		if closed == nil {
			return game.ErrInvalidTransition
		}
		evs = closed
		if lastRound {
			doneEvs, payload := completeMatch(s, now)
			evs = append(evs, doneEvs...)
			completion = payload
			completed = true
		}
		return nil
	})
	if err != nil {
		return
	}

	e.dropRound(sessionID)
	e.dispatch.Dispatch(sessionID, evs)

	if completed {
		log.Info().
			Str("session_id", sessionID.String()).
			Int("standings", len(completion.Standings)).
			Msg("match completed")
		if e.stats != nil {
			e.stats.RecordMatchCompletion(sessionID, completion)
		}
		e.registry.ScheduleEviction(sessionID)
	}
}
