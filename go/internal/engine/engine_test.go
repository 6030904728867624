package engine

import (
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"

	"github.com/Polimar/BrainBrawler/go/internal/events"
	"github.com/Polimar/BrainBrawler/go/internal/game"
	"github.com/Polimar/BrainBrawler/go/internal/models"
	"github.com/Polimar/BrainBrawler/go/internal/registry"
)

type captureDispatcher struct {
	mu  sync.Mutex
	evs []events.Event
}

func (d *captureDispatcher) Dispatch(sessionID uuid.UUID, evs []events.Event) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.evs = append(d.evs, evs...)
}

func (d *captureDispatcher) last() (events.Event, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(d.evs) == 0 {
		return events.Event{}, false
	}
	return d.evs[len(d.evs)-1], true
}

func (d *captureDispatcher) has(t events.EventType) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, ev := range d.evs {
		if ev.Type == t {
			return true
		}
	}
	return false
}

type captureStats struct {
	mu          sync.Mutex
	completions []events.MatchCompletedPayload
}

func (c *captureStats) RecordMatchCompletion(sessionID uuid.UUID, completion events.MatchCompletedPayload) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.completions = append(c.completions, completion)
}

type testRig struct {
	reg      *registry.Registry
	eng      *Engine
	dispatch *captureDispatcher
	stats    *captureStats
	clock    *clockwork.FakeClock
	id       uuid.UUID
}

// fixedScore awards ten points per submitted answer regardless of
// content, keeping round math visible in tests.
func fixedScore(questionIndex int, question json.RawMessage, answers map[string]models.Answer) map[string]int {
	out := make(map[string]int, len(answers))
	for id := range answers {
		out[id] = 10
	}
	return out
}

func setupEngine(t *testing.T, settings models.GameSettings) *testRig {
	t.Helper()
	clock := clockwork.NewFakeClock()
	reg := registry.New(clock, time.Minute)
	dispatch := &captureDispatcher{}
	stats := &captureStats{}
	eng := New(reg, dispatch, stats, clock, fixedScore)

	snap, err := reg.CreateSession("ABC123", &models.Participant{ID: "host", DisplayName: "Host"}, settings)
	if err != nil {
		t.Fatalf("CreateSession: %v", err)
	}
	if _, _, err := reg.AddParticipant(snap.ID, &models.Participant{ID: "p2", DisplayName: "P2"}); err != nil {
		t.Fatalf("AddParticipant: %v", err)
	}
	if _, err := reg.SetReady(snap.ID, "p2", true); err != nil {
		t.Fatalf("SetReady: %v", err)
	}

	return &testRig{reg: reg, eng: eng, dispatch: dispatch, stats: stats, clock: clock, id: snap.ID}
}

func smallSettings() models.GameSettings {
	return models.GameSettings{MaxPlayers: 4, TotalQuestions: 5, TimePerQuestionSec: 20}
}

func (r *testRig) state(t *testing.T) *models.Session {
	t.Helper()
	snap, err := r.reg.GetSession(r.id)
	if err != nil {
		t.Fatalf("GetSession: %v", err)
	}
	return snap
}

func TestStartMatch(t *testing.T) {
	rig := setupEngine(t, smallSettings())

	if err := rig.eng.StartMatch(rig.id, "host"); err != nil {
		t.Fatalf("StartMatch: %v", err)
	}
	if got := rig.state(t).State; got != models.SessionStateStarting {
		t.Errorf("expected STARTING, got %s", got)
	}
	if !rig.dispatch.has(events.EventTypeMatchStarted) {
		t.Error("expected matchStarted event")
	}
}

func TestStartMatchValidation(t *testing.T) {
	t.Run("non-host rejected", func(t *testing.T) {
		rig := setupEngine(t, smallSettings())
		if err := rig.eng.StartMatch(rig.id, "p2"); !errors.Is(err, game.ErrNotHost) {
			t.Errorf("expected ErrNotHost, got %v", err)
		}
	})

	t.Run("needs two players", func(t *testing.T) {
		clock := clockwork.NewFakeClock()
		reg := registry.New(clock, time.Minute)
		eng := New(reg, &captureDispatcher{}, nil, clock, nil)
		snap, err := reg.CreateSession("ABC123", &models.Participant{ID: "host"}, smallSettings())
		if err != nil {
			t.Fatalf("CreateSession: %v", err)
		}
		if err := eng.StartMatch(snap.ID, "host"); !errors.Is(err, game.ErrNotEnoughPlayers) {
			t.Errorf("expected ErrNotEnoughPlayers, got %v", err)
		}
	})

	t.Run("needs everyone ready", func(t *testing.T) {
		rig := setupEngine(t, smallSettings())
		if _, err := rig.reg.SetReady(rig.id, "p2", false); err != nil {
			t.Fatalf("SetReady: %v", err)
		}
		if err := rig.eng.StartMatch(rig.id, "host"); !errors.Is(err, game.ErrPlayersNotReady) {
			t.Errorf("expected ErrPlayersNotReady, got %v", err)
		}
	})

	t.Run("double start rejected", func(t *testing.T) {
		rig := setupEngine(t, smallSettings())
		if err := rig.eng.StartMatch(rig.id, "host"); err != nil {
			t.Fatalf("StartMatch: %v", err)
		}
		if err := rig.eng.StartMatch(rig.id, "host"); !errors.Is(err, game.ErrAlreadyStarted) {
			t.Errorf("expected ErrAlreadyStarted, got %v", err)
		}
	})
}

func TestAdvanceRound(t *testing.T) {
	rig := setupEngine(t, smallSettings())
	if err := rig.eng.StartMatch(rig.id, "host"); err != nil {
		t.Fatalf("StartMatch: %v", err)
	}

	question := json.RawMessage(`{"text":"capital of France?","options":["Paris","Rome"]}`)
	if err := rig.eng.AdvanceRound(rig.id, "host", question); err != nil {
		t.Fatalf("AdvanceRound: %v", err)
	}

	snap := rig.state(t)
	if snap.State != models.SessionStateInProgress {
		t.Errorf("expected IN_PROGRESS, got %s", snap.State)
	}
	if snap.CurrentQuestionIndex != 0 || !snap.RoundOpen {
		t.Errorf("expected open round 0, got index=%d open=%v", snap.CurrentQuestionIndex, snap.RoundOpen)
	}
	if string(snap.CurrentQuestion) != string(question) {
		t.Error("question payload must be relayed verbatim")
	}

	// A second advance with the previous round still open is invalid.
	if err := rig.eng.AdvanceRound(rig.id, "host", question); !errors.Is(err, game.ErrInvalidTransition) {
		t.Errorf("expected ErrInvalidTransition, got %v", err)
	}
}

func TestSubmitAnswerClosesRoundWhenAllAnswered(t *testing.T) {
	rig := setupEngine(t, smallSettings())
	if err := rig.eng.StartMatch(rig.id, "host"); err != nil {
		t.Fatalf("StartMatch: %v", err)
	}
	if err := rig.eng.AdvanceRound(rig.id, "host", json.RawMessage(`{}`)); err != nil {
		t.Fatalf("AdvanceRound: %v", err)
	}

	if err := rig.eng.SubmitAnswer(rig.id, "host", "A", 1200); err != nil {
		t.Fatalf("SubmitAnswer(host): %v", err)
	}
	if rig.state(t).RoundOpen != true {
		t.Fatal("round must stay open until everyone answered")
	}

	// The second answer arrives well before the 20s deadline; the round
	// closes early rather than waiting for the timer.
	rig.clock.Advance(8 * time.Second)
	if err := rig.eng.SubmitAnswer(rig.id, "p2", "B", 8000); err != nil {
		t.Fatalf("SubmitAnswer(p2): %v", err)
	}

	snap := rig.state(t)
	if snap.RoundOpen {
		t.Error("expected round closed after all connected answered")
	}
	if snap.Scores["host"] != 10 || snap.Scores["p2"] != 10 {
		t.Errorf("unexpected scores: %v", snap.Scores)
	}
	if !rig.dispatch.has(events.EventTypeRoundClosed) {
		t.Error("expected roundClosed event")
	}
}

func TestSubmitAnswerRejectsDuplicatesAndLate(t *testing.T) {
	rig := setupEngine(t, smallSettings())
	if err := rig.eng.StartMatch(rig.id, "host"); err != nil {
		t.Fatalf("StartMatch: %v", err)
	}
	if err := rig.eng.AdvanceRound(rig.id, "host", json.RawMessage(`{}`)); err != nil {
		t.Fatalf("AdvanceRound: %v", err)
	}

	if err := rig.eng.SubmitAnswer(rig.id, "host", "A", 500); err != nil {
		t.Fatalf("SubmitAnswer: %v", err)
	}
	if err := rig.eng.SubmitAnswer(rig.id, "host", "B", 600); !errors.Is(err, game.ErrAnswerWindowClosed) {
		t.Errorf("duplicate answer: expected ErrAnswerWindowClosed, got %v", err)
	}

	// Past the deadline the window is shut even though the round state
	// has not been swept yet.
	rig.clock.Advance(21 * time.Second)
	if err := rig.eng.SubmitAnswer(rig.id, "p2", "A", 21000); !errors.Is(err, game.ErrAnswerWindowClosed) {
		t.Errorf("late answer: expected ErrAnswerWindowClosed, got %v", err)
	}
}

func TestRoundTimeoutClosesRound(t *testing.T) {
	rig := setupEngine(t, smallSettings())
	if err := rig.eng.StartMatch(rig.id, "host"); err != nil {
		t.Fatalf("StartMatch: %v", err)
	}
	if err := rig.eng.AdvanceRound(rig.id, "host", json.RawMessage(`{}`)); err != nil {
		t.Fatalf("AdvanceRound: %v", err)
	}
	if err := rig.eng.SubmitAnswer(rig.id, "host", "A", 500); err != nil {
		t.Fatalf("SubmitAnswer: %v", err)
	}

	rig.clock.Advance(20 * time.Second)
	rig.eng.handleRoundTimeout(rig.id, 0)

	snap := rig.state(t)
	if snap.RoundOpen {
		t.Error("expected round closed after timeout")
	}
	if snap.Scores["host"] != 10 {
		t.Errorf("answered participant should score, got %v", snap.Scores)
	}
	if snap.Scores["p2"] != 0 {
		t.Errorf("silent participant must not score, got %v", snap.Scores)
	}

	// A stale timer for the closed round is a no-op.
	rig.eng.handleRoundTimeout(rig.id, 0)
}

func TestMatchCompletion(t *testing.T) {
	settings := models.GameSettings{MaxPlayers: 4, TotalQuestions: 5, TimePerQuestionSec: 20}
	rig := setupEngine(t, settings)
	if err := rig.eng.StartMatch(rig.id, "host"); err != nil {
		t.Fatalf("StartMatch: %v", err)
	}

	for round := 0; round < settings.TotalQuestions; round++ {
		if err := rig.eng.AdvanceRound(rig.id, "host", json.RawMessage(`{}`)); err != nil {
			t.Fatalf("AdvanceRound(%d): %v", round, err)
		}
		if err := rig.eng.SubmitAnswer(rig.id, "host", "A", 100); err != nil {
			t.Fatalf("SubmitAnswer(host, %d): %v", round, err)
		}
		rig.clock.Advance(time.Second)
		if round < 3 {
			if err := rig.eng.SubmitAnswer(rig.id, "p2", "A", 1000); err != nil {
				t.Fatalf("SubmitAnswer(p2, %d): %v", round, err)
			}
		} else {
			rig.clock.Advance(20 * time.Second)
			rig.eng.handleRoundTimeout(rig.id, round)
		}
	}

	snap := rig.state(t)
	if snap.State != models.SessionStateCompleted {
		t.Fatalf("expected COMPLETED, got %s", snap.State)
	}

	rig.stats.mu.Lock()
	completions := len(rig.stats.completions)
	var completion events.MatchCompletedPayload
	if completions > 0 {
		completion = rig.stats.completions[0]
	}
	rig.stats.mu.Unlock()
	if completions != 1 {
		t.Fatalf("expected 1 completion record, got %d", completions)
	}

	if len(completion.Standings) != 2 {
		t.Fatalf("expected 2 standings, got %d", len(completion.Standings))
	}
	// Host answered every round (50 points), p2 only three (30).
	if completion.Standings[0].ParticipantID != "host" || completion.Standings[0].Score != 50 || completion.Standings[0].Rank != 1 {
		t.Errorf("unexpected winner: %+v", completion.Standings[0])
	}
	if completion.Standings[1].ParticipantID != "p2" || completion.Standings[1].Score != 30 || completion.Standings[1].Rank != 2 {
		t.Errorf("unexpected runner-up: %+v", completion.Standings[1])
	}

	// No round can be advanced on a completed match.
	if err := rig.eng.AdvanceRound(rig.id, "host", json.RawMessage(`{}`)); !errors.Is(err, game.ErrInvalidTransition) {
		t.Errorf("expected ErrInvalidTransition, got %v", err)
	}
}

func TestDepartedParticipantsKeepStanding(t *testing.T) {
	rig := setupEngine(t, smallSettings())
	if err := rig.eng.StartMatch(rig.id, "host"); err != nil {
		t.Fatalf("StartMatch: %v", err)
	}

	// p2 racks up points then leaves mid-game.
	if _, err := rig.reg.Update(rig.id, func(s *models.Session) error {
		s.Scores["p2"] = 120
		s.Scores["host"] = 40
		return nil
	}); err != nil {
		t.Fatalf("Update: %v", err)
	}
	if _, _, err := rig.reg.RemoveParticipant(rig.id, "p2"); err != nil {
		t.Fatalf("RemoveParticipant: %v", err)
	}

	snap, err := rig.reg.Update(rig.id, func(s *models.Session) error { return nil })
	if err != nil {
		t.Fatalf("Update: %v", err)
	}
	standings := finalStandings(snap)
	if len(standings) != 2 {
		t.Fatalf("expected departed player in standings, got %d entries", len(standings))
	}
	if standings[0].ParticipantID != "p2" || standings[0].Score != 120 {
		t.Errorf("expected departed p2 to lead, got %+v", standings[0])
	}
}

func TestPauseAndResumePreserveRemainingTime(t *testing.T) {
	rig := setupEngine(t, smallSettings())
	if err := rig.eng.StartMatch(rig.id, "host"); err != nil {
		t.Fatalf("StartMatch: %v", err)
	}
	if err := rig.eng.AdvanceRound(rig.id, "host", json.RawMessage(`{}`)); err != nil {
		t.Fatalf("AdvanceRound: %v", err)
	}

	rig.clock.Advance(12 * time.Second)
	if err := rig.eng.Pause(rig.id, "host"); err != nil {
		t.Fatalf("Pause: %v", err)
	}
	if got := rig.state(t).State; got != models.SessionStatePaused {
		t.Fatalf("expected PAUSED, got %s", got)
	}

	// Answer windows are shut while paused.
	if err := rig.eng.SubmitAnswer(rig.id, "p2", "A", 0); !errors.Is(err, game.ErrAnswerWindowClosed) {
		t.Errorf("expected ErrAnswerWindowClosed while paused, got %v", err)
	}

	rig.clock.Advance(time.Hour)
	if err := rig.eng.Resume(rig.id, "host"); err != nil {
		t.Fatalf("Resume: %v", err)
	}

	snap := rig.state(t)
	if snap.State != models.SessionStateInProgress {
		t.Fatalf("expected IN_PROGRESS, got %s", snap.State)
	}
	if snap.RoundDeadline == nil {
		t.Fatal("expected an open round deadline after resume")
	}
	// 12 of 20 seconds were used before the pause; 8 remain.
	remaining := snap.RoundDeadline.Sub(rig.clock.Now())
	if remaining != 8*time.Second {
		t.Errorf("expected 8s remaining, got %s", remaining)
	}
}

func TestResumeClosesExpiredRound(t *testing.T) {
	rig := setupEngine(t, smallSettings())
	if err := rig.eng.StartMatch(rig.id, "host"); err != nil {
		t.Fatalf("StartMatch: %v", err)
	}
	if err := rig.eng.AdvanceRound(rig.id, "host", json.RawMessage(`{}`)); err != nil {
		t.Fatalf("AdvanceRound: %v", err)
	}

	rig.clock.Advance(12 * time.Second)
	if err := rig.eng.Pause(rig.id, "host"); err != nil {
		t.Fatalf("Pause: %v", err)
	}

	// The round timer ran out just as the pause landed, leaving a
	// frozen round with nothing on the clock.
	rig.eng.mu.Lock()
	rig.eng.rounds[rig.id].remaining = 0
	rig.eng.mu.Unlock()

	if err := rig.eng.Resume(rig.id, "host"); err != nil {
		t.Fatalf("Resume: %v", err)
	}

	snap := rig.state(t)
	if snap.State != models.SessionStateInProgress {
		t.Fatalf("expected IN_PROGRESS, got %s", snap.State)
	}
	if snap.RoundOpen {
		t.Error("a round with no time left must close on resume")
	}
	if !rig.dispatch.has(events.EventTypeRoundClosed) {
		t.Error("expected roundClosed event")
	}
}

func TestCancelSession(t *testing.T) {
	rig := setupEngine(t, smallSettings())
	if err := rig.eng.Cancel(rig.id, "host left"); err != nil {
		t.Fatalf("Cancel: %v", err)
	}
	snap := rig.state(t)
	if snap.State != models.SessionStateCancelled {
		t.Errorf("expected CANCELLED, got %s", snap.State)
	}
	if !rig.dispatch.has(events.EventTypeSessionCancelled) {
		t.Error("expected sessionCancelled event")
	}
	if err := rig.eng.Cancel(rig.id, "again"); !errors.Is(err, game.ErrInvalidTransition) {
		t.Errorf("cancel of terminal session: expected ErrInvalidTransition, got %v", err)
	}
}

func TestSyncStateHostOnly(t *testing.T) {
	rig := setupEngine(t, smallSettings())

	if err := rig.eng.SyncState(rig.id, "p2", json.RawMessage(`{"x":1}`)); !errors.Is(err, game.ErrNotHost) {
		t.Errorf("expected ErrNotHost, got %v", err)
	}
	if err := rig.eng.SyncState(rig.id, "host", json.RawMessage(`{"x":1}`)); err != nil {
		t.Fatalf("SyncState: %v", err)
	}
	last, ok := rig.dispatch.last()
	if !ok || last.Type != events.EventTypeStateSync {
		t.Errorf("expected stateSync event, got %+v", last)
	}
}
