package models

import "testing"

func TestGameSettingsValidate(t *testing.T) {
	tests := []struct {
		name     string
		settings GameSettings
		wantErr  bool
	}{
		{
			name:     "defaults are valid",
			settings: DefaultGameSettings(),
		},
		{
			name:     "minimum bounds",
			settings: GameSettings{MaxPlayers: 2, TotalQuestions: 5, TimePerQuestionSec: 10},
		},
		{
			name:     "maximum bounds",
			settings: GameSettings{MaxPlayers: 20, TotalQuestions: 100, TimePerQuestionSec: 300},
		},
		{
			name:     "too few players",
			settings: GameSettings{MaxPlayers: 1, TotalQuestions: 10, TimePerQuestionSec: 30},
			wantErr:  true,
		},
		{
			name:     "too many players",
			settings: GameSettings{MaxPlayers: 21, TotalQuestions: 10, TimePerQuestionSec: 30},
			wantErr:  true,
		},
		{
			name:     "too few questions",
			settings: GameSettings{MaxPlayers: 8, TotalQuestions: 4, TimePerQuestionSec: 30},
			wantErr:  true,
		},
		{
			name:     "round time too short",
			settings: GameSettings{MaxPlayers: 8, TotalQuestions: 10, TimePerQuestionSec: 9},
			wantErr:  true,
		},
		{
			name:     "round time too long",
			settings: GameSettings{MaxPlayers: 8, TotalQuestions: 10, TimePerQuestionSec: 301},
			wantErr:  true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.settings.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestQualityFromLatency(t *testing.T) {
	tests := []struct {
		latencyMs int
		want      ConnectionQuality
	}{
		{0, QualityExcellent},
		{49, QualityExcellent},
		{50, QualityGood},
		{149, QualityGood},
		{150, QualityPoor},
		{299, QualityPoor},
		{300, QualityDisconnected},
		{5000, QualityDisconnected},
	}

	for _, tt := range tests {
		if got := QualityFromLatency(tt.latencyMs); got != tt.want {
			t.Errorf("QualityFromLatency(%d) = %v, want %v", tt.latencyMs, got, tt.want)
		}
	}
}
