package models

import "fmt"

// Defaults applied when a session is created without explicit settings.
const (
	DefaultMaxPlayers         = 8
	DefaultTotalQuestions     = 10
	DefaultTimePerQuestionSec = 30
)

// GameSettings holds the per-session match configuration.
type GameSettings struct {
	MaxPlayers         int `json:"max_players" yaml:"max_players"`
	TotalQuestions     int `json:"total_questions" yaml:"total_questions"`
	TimePerQuestionSec int `json:"time_per_question_sec" yaml:"time_per_question_sec"`
}

// DefaultGameSettings returns the standard match configuration.
func DefaultGameSettings() GameSettings {
	return GameSettings{
		MaxPlayers:         DefaultMaxPlayers,
		TotalQuestions:     DefaultTotalQuestions,
		TimePerQuestionSec: DefaultTimePerQuestionSec,
	}
}

// Validate checks settings against the supported bounds.
func (g GameSettings) Validate() error {
	if g.MaxPlayers < 2 || g.MaxPlayers > 20 {
		return fmt.Errorf("max players must be between 2 and 20, got %d", g.MaxPlayers)
	}
	if g.TotalQuestions < 5 || g.TotalQuestions > 100 {
		return fmt.Errorf("total questions must be between 5 and 100, got %d", g.TotalQuestions)
	}
	if g.TimePerQuestionSec < 10 || g.TimePerQuestionSec > 300 {
		return fmt.Errorf("time per question must be between 10 and 300 seconds, got %d", g.TimePerQuestionSec)
	}
	return nil
}
