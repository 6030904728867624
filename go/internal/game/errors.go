// Package game holds the error taxonomy and small helpers shared by the
// session coordinator components.
package game

import "errors"

// Client-input errors. Reported back to the originating caller only and
// never broadcast; they do not mutate session state.
var (
	ErrRoomFull           = errors.New("room full")
	ErrAlreadyStarted     = errors.New("match already started")
	ErrNotAParticipant    = errors.New("not a participant of this session")
	ErrNotHost            = errors.New("host-only action")
	ErrAnswerWindowClosed = errors.New("answer window closed")
	ErrNotEnoughPlayers   = errors.New("not enough players to start")
	ErrPlayersNotReady    = errors.New("players not ready")
	ErrInvalidTransition  = errors.New("invalid session state transition")
	ErrSessionNotFound    = errors.New("session not found")
)

// System-detected errors.
var (
	ErrNoEligibleHost         = errors.New("no eligible host candidate")
	ErrElectionInProgress     = errors.New("host election already in progress")
	ErrNoElectionInProgress   = errors.New("no host election in progress")
	ErrPersistenceUnavailable = errors.New("persistence unavailable")
)

// ReasonCode maps a coordinator error to the stable code returned to
// clients, so a rejected action carries a specific reason rather than a
// generic failure.
func ReasonCode(err error) string {
	switch {
	case errors.Is(err, ErrRoomFull):
		return "ROOM_FULL"
	case errors.Is(err, ErrAlreadyStarted):
		return "ALREADY_STARTED"
	case errors.Is(err, ErrNotAParticipant):
		return "NOT_A_PARTICIPANT"
	case errors.Is(err, ErrNotHost):
		return "NOT_HOST"
	case errors.Is(err, ErrAnswerWindowClosed):
		return "ANSWER_WINDOW_CLOSED"
	case errors.Is(err, ErrNotEnoughPlayers):
		return "NOT_ENOUGH_PLAYERS"
	case errors.Is(err, ErrPlayersNotReady):
		return "PLAYERS_NOT_READY"
	case errors.Is(err, ErrInvalidTransition):
		return "INVALID_TRANSITION"
	case errors.Is(err, ErrSessionNotFound):
		return "SESSION_NOT_FOUND"
	case errors.Is(err, ErrNoEligibleHost):
		return "NO_ELIGIBLE_HOST"
	case errors.Is(err, ErrElectionInProgress):
		return "ELECTION_IN_PROGRESS"
	case errors.Is(err, ErrNoElectionInProgress):
		return "NO_ELECTION_IN_PROGRESS"
	case errors.Is(err, ErrPersistenceUnavailable):
		return "PERSISTENCE_UNAVAILABLE"
	default:
		return "INTERNAL"
	}
}
