package election

import (
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

// DefaultVoteWindow is how long an election stays open for advisory
// votes before the provisional winner is committed.
const DefaultVoteWindow = 10 * time.Second

// Dispatcher broadcasts events to a session's members.
type Dispatcher interface {
	Dispatch(sessionID uuid.UUID, evs []events.Event)
}

// AuditSink persists host-transfer audit records; implementations must
// not block.
type AuditSink interface {
	RecordHostTransfer(sessionID uuid.UUID, rec models.ElectionRecord)
}

type pendingElection struct {
	reason      models.ElectionReason
	provisional string
	candidates  []models.CandidateScore
	votes       []models.ElectionVote
	timer       clockwork.Timer
}

// Engine runs host elections. One election at a time per session; a
// host loss during a running election re-arms it after commit.
type Engine struct {
	registry *registry.Registry
	dispatch Dispatcher
	audit    AuditSink
	clock    clockwork.Clock
	window   time.Duration

	mu      sync.Mutex
	pending map[uuid.UUID]*pendingElection
}

// NewEngine creates an election engine. audit may be nil. A window of
// zero commits the provisional winner immediately with no vote phase.
func NewEngine(reg *registry.Registry, dispatch Dispatcher, audit AuditSink, clock clockwork.Clock, window time.Duration) *Engine {
	return &Engine{
		registry: reg,
		dispatch: dispatch,
		audit:    audit,
		clock:    clock,
		window:   window,
		pending:  make(map[uuid.UUID]*pendingElection),
	}
}

// Trigger starts an election for the session. It computes the ranked
// candidate set, announces the provisional winner, and commits it when
// the vote window closes. With no eligible candidates the session is
// cancelled and ErrNoEligibleHost returned.
func (e *Engine) Trigger(sessionID uuid.UUID, reason models.ElectionReason) error {
	e.mu.Lock()
	if _, running := e.pending[sessionID]; running {
		e.mu.Unlock()
		return game.ErrElectionInProgress
	}
	// Reserve the slot before releasing the lock so concurrent
	// triggers for the same session collapse into one election.
	e.pending[sessionID] = &pendingElection{reason: reason}
	e.mu.Unlock()

	snap, err := e.registry.GetSession(sessionID)
	if err != nil {
		e.clearPending(sessionID)
		return err
	}

	now := e.clock.Now()
	ranked := Rank(EligibleCandidates(snap, now), now)
	if len(ranked) == 0 {
		e.clearPending(sessionID)
		log.Warn().
			Str("session_id", sessionID.String()).
			Str("reason", string(reason)).
			Msg("no eligible host candidates, cancelling session")
		e.cancelSession(sessionID, "no eligible host")
		return game.ErrNoEligibleHost
	}

	candidates := make([]models.CandidateScore, len(ranked))
	for i, rc := range ranked {
		candidates[i] = models.CandidateScore{
			ParticipantID: rc.Candidate.ID,
			DisplayName:   rc.Candidate.DisplayName,
			Score:         rc.Score,
		}
	}
	provisional := ranked[0].Candidate.ID
	deadline := now.Add(e.window)

	e.mu.Lock()
	p := e.pending[sessionID]
	if p == nil {
		// Session was torn down while we computed candidates.
		e.mu.Unlock()
		return game.ErrSessionNotFound
	}
	p.provisional = provisional
	p.candidates = candidates
	if e.window > 0 {
		p.timer = e.clock.AfterFunc(e.window, func() {
			e.commit(sessionID)
		})
	}
	e.mu.Unlock()

	log.Info().
		Str("session_id", sessionID.String()).
		Str("reason", string(reason)).
		Str("provisional_winner", provisional).
		Int("candidates", len(candidates)).
		Msg("host election started")

	e.dispatch.Dispatch(sessionID, []events.Event{
		events.MustNew(sessionID, events.EventTypeHostElectionStarted, now, events.HostElectionStartedPayload{
			Candidates:          candidates,
			ProvisionalWinnerID: provisional,
			Reason:              reason,
			Deadline:            deadline,
		}),
	})

	if e.window <= 0 {
		e.commit(sessionID)
	}
	return nil
}

// CastVote records an advisory vote for a running election. Votes are
// kept in the election's audit record but do not influence the outcome.
func (e *Engine) CastVote(sessionID uuid.UUID, voterID, candidateID string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	p, running := e.pending[sessionID]
	if !running {
		return game.ErrNoElectionInProgress
	}
	p.votes = append(p.votes, models.ElectionVote{
		VoterID:     voterID,
		CandidateID: candidateID,
		CastAt:      e.clock.Now(),
	})
	return nil
}

// InProgress reports whether an election is running for the session.
func (e *Engine) InProgress(sessionID uuid.UUID) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	_, running := e.pending[sessionID]
	return running
}

func (e *Engine) clearPending(sessionID uuid.UUID) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if p := e.pending[sessionID]; p != nil && p.timer != nil {
		p.timer.Stop()
	}
	delete(e.pending, sessionID)
}

// commit installs the provisional winner as host. If the winner dropped
// out during the vote window the election is re-run with the same
// trigger reason.
func (e *Engine) commit(sessionID uuid.UUID) {
	e.mu.Lock()
	p, running := e.pending[sessionID]
	if !running {
		e.mu.Unlock()
		return
	}
	if p.timer != nil {
		p.timer.Stop()
	}
	delete(e.pending, sessionID)
	e.mu.Unlock()

	now := e.clock.Now()
	var rec models.ElectionRecord
	rerun := false
	dropped := false

	snap, err := e.registry.Update(sessionID, func(s *models.Session) error {
		// The session may have completed or been cancelled during the
		// vote window; a terminal session gets no new host.
		if s.State.Terminal() {
			dropped = true
			return nil
		}
		winner := s.Participant(p.provisional)
		if winner == nil || !winner.IsConnected || winner.Quality == models.QualityDisconnected {
			rerun = true
			return nil
		}
		rec = models.ElectionRecord{
			ID:             uuid.New(),
			PreviousHostID: s.HostID,
			NewHostID:      winner.ID,
			Reason:         p.reason,
			Candidates:     p.candidates,
			Votes:          p.votes,
			OccurredAt:     now,
		}
		s.HostID = winner.ID
		for _, member := range s.Roster {
			member.IsHost = member.ID == winner.ID
		}
		s.Elections = append(s.Elections, rec)
		return nil
	})
	if err != nil || dropped {
		log.Debug().Err(err).Str("session_id", sessionID.String()).Msg("election commit dropped")
		return
	}
	if rerun {
		log.Info().
			Str("session_id", sessionID.String()).
			Str("provisional_winner", p.provisional).
			Msg("provisional winner became ineligible, re-running election")
		if err := e.Trigger(sessionID, p.reason); err != nil {
			log.Warn().Err(err).Str("session_id", sessionID.String()).Msg("election re-run failed")
		}
		return
	}

	log.Info().
		Str("session_id", sessionID.String()).
		Str("new_host_id", rec.NewHostID).
		Str("previous_host_id", rec.PreviousHostID).
		Str("reason", string(rec.Reason)).
		Msg("host elected")

	e.dispatch.Dispatch(sessionID, []events.Event{
		events.MustNew(sessionID, events.EventTypeHostChanged, now, events.HostChangedPayload{
			NewHostID:      rec.NewHostID,
			PreviousHostID: rec.PreviousHostID,
			Reason:         rec.Reason,
		}),
		events.MustNew(sessionID, events.EventTypeRosterChanged, now, events.RosterChangedPayload{
			Roster: events.RosterView(snap.Roster),
		}),
	})

	if e.audit != nil {
		e.audit.RecordHostTransfer(sessionID, rec)
	}
}

// cancelSession moves a host-less session to CANCELLED and announces it.
func (e *Engine) cancelSession(sessionID uuid.UUID, reason string) {
	now := e.clock.Now()
	_, err := e.registry.Update(sessionID, func(s *models.Session) error {
		if s.State.Terminal() {
			return game.ErrInvalidTransition
		}
		s.State = models.SessionStateCancelled
		s.HostID = ""
		for _, member := range s.Roster {
			member.IsHost = false
		}
		return nil
	})
	if err != nil {
		return
	}
	e.dispatch.Dispatch(sessionID, []events.Event{
		events.MustNew(sessionID, events.EventTypeSessionCancelled, now, events.SessionCancelledPayload{
			Reason: reason,
		}),
	})
	e.registry.ScheduleEviction(sessionID)
}
