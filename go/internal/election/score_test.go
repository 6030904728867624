package election

import (
	"testing"
	"time"

	"github.com/Polimar/BrainBrawler/go/internal/models"
)

func TestFitness(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name      string
		candidate Candidate
		want      int
	}{
		{
			name: "excellent incumbent with low latency",
			candidate: Candidate{
				Quality:   models.QualityExcellent,
				LatencyMs: 25,
				Incumbent: true,
				JoinedAt:  now,
			},
			want: 40 + 30 + 20,
		},
		{
			name: "good quality mid latency",
			candidate: Candidate{
				Quality:   models.QualityGood,
				LatencyMs: 60,
				JoinedAt:  now,
			},
			want: 30 + 25,
		},
		{
			name: "good quality fast link beats mid latency",
			candidate: Candidate{
				Quality:   models.QualityGood,
				LatencyMs: 40,
				JoinedAt:  now,
			},
			want: 30 + 30,
		},
		{
			name: "poor quality high latency",
			candidate: Candidate{
				Quality:   models.QualityPoor,
				LatencyMs: 250,
				JoinedAt:  now,
			},
			want: 10 + 15,
		},
		{
			name: "latency floor",
			candidate: Candidate{
				Quality:   models.QualityPoor,
				LatencyMs: 900,
				JoinedAt:  now,
			},
			want: 10 + 5,
		},
		{
			name: "tenure accrues one point per ten minutes",
			candidate: Candidate{
				Quality:   models.QualityExcellent,
				LatencyMs: 20,
				JoinedAt:  now.Add(-35 * time.Minute),
			},
			want: 40 + 30 + 3,
		},
		{
			name: "tenure caps at ten points",
			candidate: Candidate{
				Quality:   models.QualityExcellent,
				LatencyMs: 20,
				JoinedAt:  now.Add(-24 * time.Hour),
			},
			want: 40 + 30 + 10,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Fitness(tt.candidate, now); got != tt.want {
				t.Errorf("Fitness() = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestFitnessIsDeterministic(t *testing.T) {
	now := time.Now()
	c := Candidate{Quality: models.QualityGood, LatencyMs: 80, Incumbent: true, JoinedAt: now.Add(-time.Hour)}
	first := Fitness(c, now)
	for i := 0; i < 10; i++ {
		if got := Fitness(c, now); got != first {
			t.Fatalf("Fitness() not deterministic: got %d then %d", first, got)
		}
	}
}

func TestRankIncumbentRetainsHost(t *testing.T) {
	now := time.Now()
	// The incumbent with an excellent link outranks an equally fast
	// challenger thanks to the stability bonus.
	candidates := []Candidate{
		{ID: "p2", Quality: models.QualityExcellent, LatencyMs: 30, JoinedAt: now.Add(-time.Minute)},
		{ID: "p1", Quality: models.QualityExcellent, LatencyMs: 30, Incumbent: true, JoinedAt: now.Add(-2 * time.Minute)},
	}
	ranked := Rank(candidates, now)
	if ranked[0].Candidate.ID != "p1" {
		t.Errorf("expected incumbent p1 to win, got %s", ranked[0].Candidate.ID)
	}
}

func TestRankTieBreaksByJoinOrder(t *testing.T) {
	now := time.Now()
	candidates := []Candidate{
		{ID: "late", Quality: models.QualityGood, LatencyMs: 60, JoinedAt: now.Add(-time.Minute)},
		{ID: "early", Quality: models.QualityGood, LatencyMs: 60, JoinedAt: now.Add(-5 * time.Minute)},
	}
	ranked := Rank(candidates, now)
	if ranked[0].Candidate.ID != "early" {
		t.Errorf("expected earliest joiner to win the tie, got %s", ranked[0].Candidate.ID)
	}
}

func TestEligibleCandidates(t *testing.T) {
	now := time.Now()
	s := &models.Session{
		HostID: "host",
		Roster: []*models.Participant{
			{ID: "host", IsConnected: true, Quality: models.QualityExcellent},
			{ID: "gone", IsConnected: false, Quality: models.QualityGood},
			{ID: "lagging", IsConnected: true, Quality: models.QualityDisconnected},
			{ID: "ok", IsConnected: true, Quality: models.QualityPoor},
		},
	}

	got := EligibleCandidates(s, now)
	if len(got) != 2 {
		t.Fatalf("expected 2 eligible candidates, got %d", len(got))
	}
	if got[0].ID != "host" || !got[0].Incumbent {
		t.Errorf("expected host to be first and incumbent, got %+v", got[0])
	}
	if got[1].ID != "ok" || got[1].Incumbent {
		t.Errorf("expected ok to be eligible non-incumbent, got %+v", got[1])
	}
}
