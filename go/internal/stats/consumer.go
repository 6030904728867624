package stats

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/rs/zerolog/log"

	"github.com/Polimar/BrainBrawler/go/internal/events"
	"github.com/Polimar/BrainBrawler/go/internal/models"
)

const (
	consumerName       = "stats-recorder"
	consumerMaxDeliver = 5
	consumerAckWait    = 30 * time.Second
)

// Consumer persists match outcomes from the JetStream event mirror.
// It is the multi-instance alternative to the in-process Recorder:
// failed writes are Nak'd and redelivered by the stream.
type Consumer struct {
	nc       *nats.Conn
	js       jetstream.JetStream
	consumer jetstream.Consumer
	store    Store
}

// NewConsumer connects to NATS and sets up the durable consumer on the
// session event stream.
func NewConsumer(ctx context.Context, natsURL, streamName string, store Store) (*Consumer, error) {
	nc, err := nats.Connect(natsURL,
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
		nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
			log.Error().Err(err).Msg("NATS disconnected")
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Info().Str("url", nc.ConnectedUrl()).Msg("NATS reconnected")
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("connect to NATS: %w", err)
	}

	js, err := jetstream.New(nc)
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("create JetStream context: %w", err)
	}

	stream, err := js.Stream(ctx, streamName)
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("get stream: %w", err)
	}

	consumer, err := stream.CreateOrUpdateConsumer(ctx, jetstream.ConsumerConfig{
		Name:          consumerName,
		Durable:       consumerName,
		Description:   "Persists match completions and host transfers",
		FilterSubject: events.SubjectPrefix + ".>",
		DeliverPolicy: jetstream.DeliverAllPolicy,
		AckPolicy:     jetstream.AckExplicitPolicy,
		MaxDeliver:    consumerMaxDeliver,
		AckWait:       consumerAckWait,
	})
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("create consumer: %w", err)
	}

	return &Consumer{nc: nc, js: js, consumer: consumer, store: store}, nil
}

// Run consumes events until ctx is cancelled.
func (c *Consumer) Run(ctx context.Context) error {
	consumeCtx, err := c.consumer.Consume(func(msg jetstream.Msg) {
		if err := c.processMessage(ctx, msg); err != nil {
			log.Error().Err(err).Str("subject", msg.Subject()).Msg("failed to process stats event")
			msg.Nak()
			return
		}
		msg.Ack()
	})
	if err != nil {
		return fmt.Errorf("start JetStream consumer: %w", err)
	}
	defer consumeCtx.Stop()

	log.Info().Str("consumer", consumerName).Msg("stats consumer started")
	<-ctx.Done()
	log.Info().Msg("stats consumer shutting down")
	return ctx.Err()
}

func (c *Consumer) processMessage(ctx context.Context, msg jetstream.Msg) error {
	var ev events.Event
	if err := json.Unmarshal(msg.Data(), &ev); err != nil {
		// Malformed payloads can never succeed; ack them away.
		log.Warn().Str("subject", msg.Subject()).Msg("dropping malformed event")
		return nil
	}

	switch ev.Type {
	case events.EventTypeMatchCompleted:
		var completion events.MatchCompletedPayload
		if err := json.Unmarshal(ev.Data, &completion); err != nil {
			return fmt.Errorf("unmarshal match completion: %w", err)
		}
		sessionID, err := uuid.Parse(completion.SessionID)
		if err != nil {
			return fmt.Errorf("parse session ID: %w", err)
		}
		return c.store.SaveMatchCompletion(ctx, sessionID, completion)

	case events.EventTypeHostChanged:
		var payload events.HostChangedPayload
		if err := json.Unmarshal(ev.Data, &payload); err != nil {
			return fmt.Errorf("unmarshal host change: %w", err)
		}
		sessionID, err := uuid.Parse(ev.SessionID)
		if err != nil {
			return fmt.Errorf("parse session ID: %w", err)
		}
		rec := models.ElectionRecord{
			ID:             uuid.New(),
			PreviousHostID: payload.PreviousHostID,
			NewHostID:      payload.NewHostID,
			Reason:         payload.Reason,
			OccurredAt:     ev.Timestamp,
		}
		return c.store.SaveHostTransfer(ctx, sessionID, rec)
	}

	// Other event types are not persisted here.
	return nil
}

// Close shuts the NATS connection down.
func (c *Consumer) Close() {
	if c == nil || c.nc == nil {
		return
	}
	c.nc.Close()
}
