// Package engine advances a session through its lifecycle and
// aggregates answers into scores and final standings.
//
// The state machine itself is expressed as transition functions that
// mutate a session under the registry lock and return the events to
// broadcast; the Engine wrapper applies them and hands the events to a
// dispatcher. This keeps every transition testable without a live
// transport.
package engine

import (
	"encoding/json"
	"sort"
	"time"

	"github.com/Polimar/BrainBrawler/go/internal/events"
	"github.com/Polimar/BrainBrawler/go/internal/game"
	"github.com/Polimar/BrainBrawler/go/internal/models"
)

// ScoreFunc grades a closed round. Grading belongs to the question
// collaborator; the engine only aggregates the returned points into
// cumulative scores.
type ScoreFunc func(questionIndex int, question json.RawMessage, answers map[string]models.Answer) map[string]int

func requireHost(s *models.Session, actorID string) error {
	p := s.Participant(actorID)
	if p == nil {
		return game.ErrNotAParticipant
	}
	if s.HostID != actorID {
		return game.ErrNotHost
	}
	return nil
}

// startMatch moves WAITING -> STARTING. Host-only; needs at least two
// players with every non-host participant ready.
func startMatch(s *models.Session, actorID string, now time.Time) ([]events.Event, error) {
	if err := requireHost(s, actorID); err != nil {
		return nil, err
	}
	if s.State != models.SessionStateWaiting {
		return nil, game.ErrAlreadyStarted
	}
	if len(s.Roster) < 2 {
		return nil, game.ErrNotEnoughPlayers
	}
	for _, p := range s.Roster {
		if p.ID != s.HostID && !p.IsReady {
			return nil, game.ErrPlayersNotReady
		}
	}

	s.State = models.SessionStateStarting
	s.StartedAt = &now

	return []events.Event{
		events.MustNew(s.ID, events.EventTypeMatchStarted, now, events.MatchStartedPayload{
			StartedAt:      now,
			TotalQuestions: s.Settings.TotalQuestions,
			HostID:         s.HostID,
		}),
	}, nil
}

// advanceRound opens the next answer window. The host supplies the
// question payload; it is relayed verbatim. The first advance moves
// STARTING -> IN_PROGRESS.
func advanceRound(s *models.Session, actorID string, question json.RawMessage, now time.Time) ([]events.Event, error) {
	if err := requireHost(s, actorID); err != nil {
		return nil, err
	}
	if s.RoundOpen {
		return nil, game.ErrInvalidTransition
	}
	switch s.State {
	case models.SessionStateStarting:
		s.State = models.SessionStateInProgress
		s.CurrentQuestionIndex = 0
	case models.SessionStateInProgress:
		if s.CurrentQuestionIndex+1 >= s.Settings.TotalQuestions {
			return nil, game.ErrInvalidTransition
		}
		s.CurrentQuestionIndex++
	default:
		return nil, game.ErrInvalidTransition
	}

	deadline := now.Add(time.Duration(s.Settings.TimePerQuestionSec) * time.Second)
	s.CurrentQuestion = question
	s.RoundStartedAt = &now
	s.RoundDeadline = &deadline
	s.RoundOpen = true
	s.Answers = make(map[string]models.Answer)

	return []events.Event{
		events.MustNew(s.ID, events.EventTypeNextRound, now, events.NextRoundPayload{
			QuestionIndex:  s.CurrentQuestionIndex,
			Question:       question,
			RoundStartedAt: now,
			Deadline:       deadline,
			TimeLimitSec:   s.Settings.TimePerQuestionSec,
		}),
	}, nil
}

// submitAnswer records at most one answer per participant per round.
// Late or duplicate submissions get ErrAnswerWindowClosed and leave
// state untouched.
func submitAnswer(s *models.Session, actorID, value string, elapsedMs int, now time.Time) (evs []events.Event, allAnswered bool, err error) {
	p := s.Participant(actorID)
	if p == nil {
		return nil, false, game.ErrNotAParticipant
	}
	if s.State != models.SessionStateInProgress || !s.RoundOpen {
		return nil, false, game.ErrAnswerWindowClosed
	}
	if s.RoundDeadline != nil && !now.Before(*s.RoundDeadline) {
		return nil, false, game.ErrAnswerWindowClosed
	}
	if _, dup := s.Answers[actorID]; dup {
		return nil, false, game.ErrAnswerWindowClosed
	}

	s.Answers[actorID] = models.Answer{
		Value:       value,
		ElapsedMs:   elapsedMs,
		SubmittedAt: now,
	}
	p.LastAnswerAt = &now

	expected := s.ConnectedCount()
	evs = []events.Event{
		events.MustNew(s.ID, events.EventTypeAnswerTally, now, events.AnswerTallyPayload{
			QuestionIndex:  s.CurrentQuestionIndex,
			CountSubmitted: len(s.Answers),
			CountExpected:  expected,
		}),
	}
	return evs, len(s.Answers) >= expected, nil
}

// scoreRound scores the round and clears answers. It is a no-op when
// no round is open, which makes the timer path and the all-answered
// path naturally idempotent against each other.
func scoreRound(s *models.Session, score ScoreFunc, now time.Time, reason string) (evs []events.Event, lastRound bool) {
	if !s.RoundOpen {
		return nil, false
	}
	s.RoundOpen = false
	s.RoundDeadline = nil

	if score != nil {
		for id, pts := range score(s.CurrentQuestionIndex, s.CurrentQuestion, s.Answers) {
			// Cumulative scores are monotonically non-decreasing.
			if pts > 0 {
				s.Scores[id] += pts
			}
		}
	}

	scores := make(map[string]int, len(s.Scores))
	for id, v := range s.Scores {
		scores[id] = v
	}
	evs = append(evs, events.MustNew(s.ID, events.EventTypeRoundClosed, now, events.RoundClosedPayload{
		QuestionIndex: s.CurrentQuestionIndex,
		Scores:        scores,
		ClosedAt:      now,
		Reason:        reason,
	}))

	s.Answers = make(map[string]models.Answer)
	return evs, s.CurrentQuestionIndex+1 >= s.Settings.TotalQuestions
}

// completeMatch computes final standings and moves to COMPLETED.
func completeMatch(s *models.Session, now time.Time) ([]events.Event, events.MatchCompletedPayload) {
	s.State = models.SessionStateCompleted
	s.CompletedAt = &now

	payload := events.MatchCompletedPayload{
		SessionID:      s.ID.String(),
		Standings:      finalStandings(s),
		TotalQuestions: s.Settings.TotalQuestions,
		CompletedAt:    now,
	}
	return []events.Event{
		events.MustNew(s.ID, events.EventTypeMatchCompleted, now, payload),
	}, payload
}

// finalStandings ranks everyone who was ever in the roster by strictly
// descending cumulative score; equal scores break by earliest final
// answer so the order is stable and reproducible.
func finalStandings(s *models.Session) []models.FinalStanding {
	all := make([]*models.Participant, 0, len(s.Roster)+len(s.Departed))
	all = append(all, s.Roster...)
	all = append(all, s.Departed...)

	standings := make([]models.FinalStanding, 0, len(all))
	for _, p := range all {
		standings = append(standings, models.FinalStanding{
			ParticipantID: p.ID,
			DisplayName:   p.DisplayName,
			Score:         s.Scores[p.ID],
			LastAnswerAt:  p.LastAnswerAt,
		})
	}
	sort.SliceStable(standings, func(i, j int) bool {
		if standings[i].Score != standings[j].Score {
			return standings[i].Score > standings[j].Score
		}
		a, b := standings[i].LastAnswerAt, standings[j].LastAnswerAt
		switch {
		case a == nil:
			return false
		case b == nil:
			return true
		default:
			return a.Before(*b)
		}
	})
	for i := range standings {
		standings[i].Rank = i + 1
	}
	return standings
}

// pauseMatch moves IN_PROGRESS -> PAUSED. Host-only and reversible.
func pauseMatch(s *models.Session, actorID string, now time.Time) ([]events.Event, error) {
	if err := requireHost(s, actorID); err != nil {
		return nil, err
	}
	if s.State != models.SessionStateInProgress {
		return nil, game.ErrInvalidTransition
	}
	s.State = models.SessionStatePaused
	return []events.Event{
		events.MustNew(s.ID, events.EventTypeMatchPaused, now, events.MatchPausedPayload{PausedAt: now}),
	}, nil
}

// resumeMatch moves PAUSED -> IN_PROGRESS. An open round keeps its
// remaining time; the caller supplies the recomputed deadline.
func resumeMatch(s *models.Session, actorID string, now time.Time, deadline *time.Time) ([]events.Event, error) {
	if err := requireHost(s, actorID); err != nil {
		return nil, err
	}
	if s.State != models.SessionStatePaused {
		return nil, game.ErrInvalidTransition
	}
	s.State = models.SessionStateInProgress
	if s.RoundOpen && deadline != nil {
		s.RoundDeadline = deadline
	}
	return []events.Event{
		events.MustNew(s.ID, events.EventTypeMatchResumed, now, events.MatchResumedPayload{
			ResumedAt: now,
			Deadline:  deadline,
		}),
	}, nil
}

// cancelSession moves any non-terminal state to CANCELLED.
func cancelSession(s *models.Session, reason string, now time.Time) ([]events.Event, error) {
	if s.State.Terminal() {
		return nil, game.ErrInvalidTransition
	}
	s.State = models.SessionStateCancelled
	s.RoundOpen = false
	s.RoundDeadline = nil
	return []events.Event{
		events.MustNew(s.ID, events.EventTypeSessionCancelled, now, events.SessionCancelledPayload{Reason: reason}),
	}, nil
}
