// Package election selects which connected participant drives game
// pacing, and re-selects it when connectivity changes.
package election

import (
	"sort"
	"time"

	"github.com/Polimar/BrainBrawler/go/internal/models"
)

// Candidate is the scoring input for one election-eligible participant.
type Candidate struct {
	ID          string
	DisplayName string
	Quality     models.ConnectionQuality
	LatencyMs   int
	Incumbent   bool
	JoinedAt    time.Time
}

// Fitness computes the host-fitness score in [0,100]. It is a pure
// function of its inputs: identical inputs always produce the same
// score.
//
// Connection quality is worth up to 40 points, latency up to 30, the
// incumbent host gets a 20 point stability bonus, and tenure earns one
// point per full ten minutes of membership capped at 10.
func Fitness(c Candidate, now time.Time) int {
	score := 0

	switch c.Quality {
	case models.QualityExcellent:
		score += 40
	case models.QualityGood:
		score += 30
	case models.QualityPoor:
		score += 10
	}

	switch {
	case c.LatencyMs < 50:
		score += 30
	case c.LatencyMs < 100:
		score += 25
	case c.LatencyMs < 200:
		score += 20
	case c.LatencyMs < 300:
		score += 15
	default:
		score += 5
	}

	if c.Incumbent {
		score += 20
	}

	if tenure := now.Sub(c.JoinedAt); tenure > 0 {
		points := int(tenure / (10 * time.Minute))
		if points > 10 {
			points = 10
		}
		score += points
	}

	return score
}

// Ranked is a candidate together with its computed fitness score.
type Ranked struct {
	Candidate Candidate
	Score     int
}

// Rank orders candidates by descending fitness score; ties break by
// earliest JoinedAt so the ordering is reproducible.
func Rank(candidates []Candidate, now time.Time) []Ranked {
	ranked := make([]Ranked, len(candidates))
	for i, c := range candidates {
		ranked[i] = Ranked{Candidate: c, Score: Fitness(c, now)}
	}
	sort.SliceStable(ranked, func(i, j int) bool {
		if ranked[i].Score != ranked[j].Score {
			return ranked[i].Score > ranked[j].Score
		}
		return ranked[i].Candidate.JoinedAt.Before(ranked[j].Candidate.JoinedAt)
	})
	return ranked
}

// EligibleCandidates extracts the candidate set from a session roster:
// connected participants whose link is not classified disconnected.
func EligibleCandidates(s *models.Session, now time.Time) []Candidate {
	var out []Candidate
	for _, p := range s.Roster {
		if !p.IsConnected || p.Quality == models.QualityDisconnected {
			continue
		}
		out = append(out, Candidate{
			ID:          p.ID,
			DisplayName: p.DisplayName,
			Quality:     p.Quality,
			LatencyMs:   p.LatencyMs,
			Incumbent:   p.ID == s.HostID,
			JoinedAt:    p.JoinedAt,
		})
	}
	return out
}
