package stats

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/Polimar/BrainBrawler/go/internal/events"
	"github.com/Polimar/BrainBrawler/go/internal/models"
)

// Store is the persistence surface the recorder needs.
type Store interface {
	SaveMatchCompletion(ctx context.Context, sessionID uuid.UUID, completion events.MatchCompletedPayload) error
	SaveHostTransfer(ctx context.Context, sessionID uuid.UUID, rec models.ElectionRecord) error
}

// RecorderConfig tunes the background retry loop.
type RecorderConfig struct {
	QueueSize  int
	MaxRetries int
	RetryDelay time.Duration
}

// DefaultRecorderConfig returns the standard retry configuration.
func DefaultRecorderConfig() RecorderConfig {
	return RecorderConfig{
		QueueSize:  256,
		MaxRetries: 3,
		RetryDelay: time.Second,
	}
}

type job struct {
	sessionID  uuid.UUID
	completion *events.MatchCompletedPayload
	transfer   *models.ElectionRecord
}

// Recorder accepts persistence work from the game and election engines
// and writes it in the background with retries. It never blocks the
// caller; when the queue is full the record is dropped and logged.
//
// A nil Recorder is a no-op, for runs without a database.
type Recorder struct {
	store  Store
	config RecorderConfig
	queue  chan job
}

// NewRecorder creates a recorder. Call Run to start draining the
// queue.
func NewRecorder(store Store, config RecorderConfig) *Recorder {
	if config.QueueSize <= 0 {
		config = DefaultRecorderConfig()
	}
	return &Recorder{
		store:  store,
		config: config,
		queue:  make(chan job, config.QueueSize),
	}
}

// RecordMatchCompletion queues the final standings for persistence.
func (r *Recorder) RecordMatchCompletion(sessionID uuid.UUID, completion events.MatchCompletedPayload) {
	if r == nil {
		return
	}
	r.enqueue(job{sessionID: sessionID, completion: &completion})
}

// RecordHostTransfer queues one host-transfer audit record.
func (r *Recorder) RecordHostTransfer(sessionID uuid.UUID, rec models.ElectionRecord) {
	if r == nil {
		return
	}
	r.enqueue(job{sessionID: sessionID, transfer: &rec})
}

func (r *Recorder) enqueue(j job) {
	select {
	case r.queue <- j:
	default:
		log.Warn().
			Str("session_id", j.sessionID.String()).
			Msg("stats queue full, dropping record")
	}
}

// Run drains the queue until ctx is cancelled.
func (r *Recorder) Run(ctx context.Context) error {
	if r == nil {
		<-ctx.Done()
		return ctx.Err()
	}
	log.Info().Msg("stats recorder started")

	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("stats recorder shutting down")
			return ctx.Err()
		case j := <-r.queue:
			r.persistWithRetry(ctx, j)
		}
	}
}

func (r *Recorder) persistWithRetry(ctx context.Context, j job) {
	var lastErr error

	for attempt := 0; attempt <= r.config.MaxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return
			case <-time.After(r.config.RetryDelay * time.Duration(attempt)):
			}
		}

		lastErr = r.persist(ctx, j)
		if lastErr == nil {
			return
		}
	}

	log.Error().
		Err(lastErr).
		Str("session_id", j.sessionID.String()).
		Int("attempts", r.config.MaxRetries+1).
		Msg("failed to persist stats record, giving up")
}

func (r *Recorder) persist(ctx context.Context, j job) error {
	switch {
	case j.completion != nil:
		return r.store.SaveMatchCompletion(ctx, j.sessionID, *j.completion)
	case j.transfer != nil:
		return r.store.SaveHostTransfer(ctx, j.sessionID, *j.transfer)
	}
	return nil
}
