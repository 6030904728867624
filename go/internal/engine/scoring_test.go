package engine

import (
	"encoding/json"
	"testing"

	"github.com/Polimar/BrainBrawler/go/internal/models"
)

func TestDefaultScore(t *testing.T) {
	question := json.RawMessage(`{"text":"2+2?","correctAnswer":"4"}`)
	answers := map[string]models.Answer{
		"fast":  {Value: "4", ElapsedMs: 1000},
		"slow":  {Value: "4", ElapsedMs: 9000},
		"wrong": {Value: "5", ElapsedMs: 500},
		"fuzzy": {Value: " 4 ", ElapsedMs: 2000},
	}

	scores := DefaultScore(0, question, answers)

	if got := scores["fast"]; got != 100+40 {
		t.Errorf("fast answer score = %d, want 140", got)
	}
	if got := scores["slow"]; got != 100 {
		t.Errorf("slow answer score = %d, want 100 (bonus floors at zero)", got)
	}
	if _, ok := scores["wrong"]; ok {
		t.Error("wrong answer must not score")
	}
	if got := scores["fuzzy"]; got != 100+30 {
		t.Errorf("whitespace-padded answer score = %d, want 130", got)
	}
}

func TestDefaultScoreCaseInsensitive(t *testing.T) {
	question := json.RawMessage(`{"correctAnswer":"Paris"}`)
	answers := map[string]models.Answer{
		"p1": {Value: "paris", ElapsedMs: 0},
	}
	scores := DefaultScore(0, question, answers)
	if got := scores["p1"]; got != 150 {
		t.Errorf("case-insensitive match score = %d, want 150", got)
	}
}

func TestDefaultScoreUngradedQuestion(t *testing.T) {
	answers := map[string]models.Answer{"p1": {Value: "x"}}

	if got := DefaultScore(0, json.RawMessage(`{"text":"open question"}`), answers); got != nil {
		t.Errorf("question without correctAnswer should score nil, got %v", got)
	}
	if got := DefaultScore(0, json.RawMessage(`not json`), answers); got != nil {
		t.Errorf("malformed question should score nil, got %v", got)
	}
}
