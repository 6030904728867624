package main

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"

	"github.com/Polimar/BrainBrawler/go/internal/election"
	"github.com/Polimar/BrainBrawler/go/internal/engine"
	"github.com/Polimar/BrainBrawler/go/internal/events"
	"github.com/Polimar/BrainBrawler/go/internal/gateway"
	"github.com/Polimar/BrainBrawler/go/internal/health"
	"github.com/Polimar/BrainBrawler/go/internal/registry"
	"github.com/Polimar/BrainBrawler/go/internal/relay"
	"github.com/Polimar/BrainBrawler/go/internal/stats"
)

// Services holds the wired coordinator components.
type Services struct {
	Registry          *registry.Registry
	Elections         *election.Engine
	Engine            *engine.Engine
	Monitor           *health.Monitor
	Relay             *relay.Relay
	ConnectionManager *gateway.ConnectionManager
	Router            *gateway.Router
	WebSocketHandler  *gateway.WebSocketHandler
	StateHandler      *gateway.StateHandler

	Publisher *events.Publisher
	Pool      *pgxpool.Pool
	Recorder  *stats.Recorder
	Consumer  *stats.Consumer
}

func setupServices(ctx context.Context, cfg *Config) (*Services, error) {
	clock := clockwork.NewRealClock()

	var pub *events.Publisher
	if cfg.NATSURL != "" {
		var err error
		pub, err = events.NewPublisher(ctx, cfg.NATSURL, cfg.StreamName)
		if err != nil {
			return nil, fmt.Errorf("failed to connect event publisher: %w", err)
		}
	} else {
		log.Warn().Msg("NATS_URL not set, event stream mirroring disabled")
	}

	var pool *pgxpool.Pool
	if cfg.DatabaseURL != "" {
		var err error
		pool, err = setupDatabase(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, err
		}
	} else {
		log.Warn().Msg("DATABASE_URL not set, stats persistence disabled")
	}

	cm := gateway.NewConnectionManager(gateway.DefaultConnectionConfig())
	dispatcher := gateway.NewEventDispatcher(cm, pub)

	reg := registry.New(clock, cfg.Tuning.CompletionGrace())

	// Stats path: a durable JetStream consumer when both NATS and the
	// database are configured and the consumer is enabled, otherwise
	// an in-process retry queue. No database means no persistence.
	var (
		recorder *stats.Recorder
		consumer *stats.Consumer
	)
	if pool != nil {
		repo := stats.NewRepository(pool)
		if cfg.UseConsumer && pub != nil {
			var err error
			consumer, err = stats.NewConsumer(ctx, cfg.NATSURL, cfg.StreamName, repo)
			if err != nil {
				return nil, fmt.Errorf("failed to set up stats consumer: %w", err)
			}
		} else {
			recorder = stats.NewRecorder(repo, stats.DefaultRecorderConfig())
		}
	}

	elections := election.NewEngine(reg, dispatcher, recorder, clock, cfg.Tuning.ElectionWindow())
	eng := engine.New(reg, dispatcher, recorder, clock, engine.DefaultScore)
	monitor := health.NewMonitor(reg, elections, dispatcher, clock, cfg.Tuning.DisconnectThreshold())
	rel := relay.New(reg, cm)

	router := gateway.NewRouter(reg, eng, elections, monitor, rel, cm, dispatcher, clock)
	cm.SetHandler(router)

	return &Services{
		Registry:          reg,
		Elections:         elections,
		Engine:            eng,
		Monitor:           monitor,
		Relay:             rel,
		ConnectionManager: cm,
		Router:            router,
		WebSocketHandler:  gateway.NewWebSocketHandler(cm, gateway.QueryAuthenticator{}),
		StateHandler:      gateway.NewStateHandler(reg),
		Publisher:         pub,
		Pool:              pool,
		Recorder:          recorder,
		Consumer:          consumer,
	}, nil
}

// StartStats launches whichever stats path was configured.
func (s *Services) StartStats(ctx context.Context) {
	if s.Recorder != nil {
		go func() {
			if err := s.Recorder.Run(ctx); err != nil && err != context.Canceled {
				log.Error().Err(err).Msg("stats recorder stopped")
			}
		}()
	}
	if s.Consumer != nil {
		go func() {
			if err := s.Consumer.Run(ctx); err != nil && err != context.Canceled {
				log.Error().Err(err).Msg("stats consumer stopped")
			}
		}()
	}
}

// Close releases external connections.
func (s *Services) Close() {
	s.Consumer.Close()
	s.Publisher.Close()
	if s.Pool != nil {
		s.Pool.Close()
	}
}
