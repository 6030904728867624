// Package stats persists match outcomes and host-transfer audit
// records. Persistence is best-effort and never blocks gameplay.
package stats

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Polimar/BrainBrawler/go/internal/events"
	"github.com/Polimar/BrainBrawler/go/internal/models"
)

// Repository writes match results and aggregates to Postgres.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a stats repository backed by the given pool.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// ParticipantSummary is the aggregate record kept per participant
// across matches.
type ParticipantSummary struct {
	ParticipantID string    `json:"participant_id"`
	DisplayName   string    `json:"display_name"`
	MatchesPlayed int       `json:"matches_played"`
	Wins          int       `json:"wins"`
	TotalScore    int       `json:"total_score"`
	BestScore     int       `json:"best_score"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// SaveMatchCompletion records a completed match, its per-participant
// results, and bumps each participant's aggregates. Runs in one
// transaction so a partial write never surfaces.
func (r *Repository) SaveMatchCompletion(ctx context.Context, sessionID uuid.UUID, completion events.MatchCompletedPayload) error {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	_, err = tx.Exec(ctx, `
		INSERT INTO matches (id, total_questions, completed_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (id) DO NOTHING`,
		sessionID, completion.TotalQuestions, completion.CompletedAt)
	if err != nil {
		return fmt.Errorf("failed to insert match: %w", err)
	}

	for _, standing := range completion.Standings {
		_, err = tx.Exec(ctx, `
			INSERT INTO match_results (match_id, participant_id, display_name, score, rank, last_answer_at)
			VALUES ($1, $2, $3, $4, $5, $6)
			ON CONFLICT (match_id, participant_id) DO NOTHING`,
			sessionID, standing.ParticipantID, standing.DisplayName,
			standing.Score, standing.Rank, standing.LastAnswerAt)
		if err != nil {
			return fmt.Errorf("failed to insert match result: %w", err)
		}

		win := 0
		if standing.Rank == 1 {
			win = 1
		}
		_, err = tx.Exec(ctx, `
			INSERT INTO participant_stats (participant_id, display_name, matches_played, wins, total_score, best_score, updated_at)
			VALUES ($1, $2, 1, $3, $4, $4, now())
			ON CONFLICT (participant_id) DO UPDATE SET
				display_name   = EXCLUDED.display_name,
				matches_played = participant_stats.matches_played + 1,
				wins           = participant_stats.wins + EXCLUDED.wins,
				total_score    = participant_stats.total_score + EXCLUDED.total_score,
				best_score     = GREATEST(participant_stats.best_score, EXCLUDED.best_score),
				updated_at     = now()`,
			standing.ParticipantID, standing.DisplayName, win, standing.Score)
		if err != nil {
			return fmt.Errorf("failed to upsert participant stats: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit match completion: %w", err)
	}
	return nil
}

// SaveHostTransfer appends one host-transfer audit record.
func (r *Repository) SaveHostTransfer(ctx context.Context, sessionID uuid.UUID, rec models.ElectionRecord) error {
	candidates, err := json.Marshal(rec.Candidates)
	if err != nil {
		return fmt.Errorf("failed to marshal election candidates: %w", err)
	}
	votes, err := json.Marshal(rec.Votes)
	if err != nil {
		return fmt.Errorf("failed to marshal election votes: %w", err)
	}

	_, err = r.pool.Exec(ctx, `
		INSERT INTO host_transfers (id, session_id, previous_host_id, new_host_id, reason, candidates, votes, occurred_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (id) DO NOTHING`,
		rec.ID, sessionID, rec.PreviousHostID, rec.NewHostID,
		string(rec.Reason), candidates, votes, rec.OccurredAt)
	if err != nil {
		return fmt.Errorf("failed to insert host transfer: %w", err)
	}
	return nil
}

// GetParticipantSummary loads one participant's aggregate record.
func (r *Repository) GetParticipantSummary(ctx context.Context, participantID string) (*ParticipantSummary, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT participant_id, display_name, matches_played, wins, total_score, best_score, updated_at
		FROM participant_stats
		WHERE participant_id = $1`, participantID)

	var summary ParticipantSummary
	err := row.Scan(
		&summary.ParticipantID,
		&summary.DisplayName,
		&summary.MatchesPlayed,
		&summary.Wins,
		&summary.TotalScore,
		&summary.BestScore,
		&summary.UpdatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to get participant summary: %w", err)
	}
	return &summary, nil
}
