package events

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/rs/zerolog/log"
)

// DefaultStreamName is the JetStream stream session events land on.
const DefaultStreamName = "SESSION_EVENTS"

// SubjectPrefix namespaces all session event subjects.
const SubjectPrefix = "brainbrawler.sessions"

// Publisher mirrors session events onto JetStream so out-of-process
// consumers (the stats worker) see the same feed websocket clients do.
// A nil Publisher is valid and drops every publish, so the coordinator
// runs unchanged without a broker.
type Publisher struct {
	nc     *nats.Conn
	js     jetstream.JetStream
	stream string
}

// NewPublisher connects to NATS and makes sure the event stream exists.
func NewPublisher(ctx context.Context, url, stream string) (*Publisher, error) {
	nc, err := nats.Connect(url,
		nats.MaxReconnects(-1),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
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

	if _, err := js.CreateOrUpdateStream(ctx, jetstream.StreamConfig{
		Name:     stream,
		Subjects: []string{SubjectPrefix + ".>"},
	}); err != nil {
		nc.Close()
		return nil, fmt.Errorf("ensure stream %s: %w", stream, err)
	}

	return &Publisher{nc: nc, js: js, stream: stream}, nil
}

// Publish mirrors one event onto the stream. Failures are logged, not
// returned: the in-process broadcast to clients has already happened
// and must not be rolled back.
func (p *Publisher) Publish(ctx context.Context, ev Event) {
	if p == nil {
		return
	}

	data, err := json.Marshal(ev)
	if err != nil {
		log.Error().Err(err).Str("event_type", string(ev.Type)).Msg("failed to marshal event")
		return
	}

	subject := fmt.Sprintf("%s.%s.%s", SubjectPrefix, ev.SessionID, ev.Type)
	if _, err := p.js.Publish(ctx, subject, data); err != nil {
		log.Error().
			Err(err).
			Str("subject", subject).
			Str("event_id", ev.ID).
			Msg("failed to publish event to JetStream")
	}
}

// Close shuts the NATS connection down.
func (p *Publisher) Close() {
	if p == nil || p.nc == nil {
		return
	}
	p.nc.Close()
}
