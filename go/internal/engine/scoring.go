package engine

import (
	"encoding/json"
	"strings"

	"github.com/Polimar/BrainBrawler/go/internal/models"
)

const (
	correctAnswerPoints = 100
	maxSpeedBonus       = 50
	// The speed bonus decays one point per 100ms, so answering after
	// five seconds earns no bonus.
	speedBonusDecayMs = 100
)

type gradedQuestion struct {
	CorrectAnswer string `json:"correctAnswer"`
}

// DefaultScore grades a round against the question's correctAnswer
// field. Correct answers earn a fixed base plus a bonus that decays
// with response time. Questions without a correctAnswer field score
// zero for everyone, leaving grading to the host.
func DefaultScore(questionIndex int, question json.RawMessage, answers map[string]models.Answer) map[string]int {
	var q gradedQuestion
	if err := json.Unmarshal(question, &q); err != nil || q.CorrectAnswer == "" {
		return nil
	}

	scores := make(map[string]int, len(answers))
	for participantID, answer := range answers {
		if !strings.EqualFold(strings.TrimSpace(answer.Value), q.CorrectAnswer) {
			continue
		}
		bonus := maxSpeedBonus - answer.ElapsedMs/speedBonusDecayMs
		if bonus < 0 {
			bonus = 0
		}
		scores[participantID] = correctAnswerPoints + bonus
	}
	return scores
}
