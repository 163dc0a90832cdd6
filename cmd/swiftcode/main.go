package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/voithos/swiftcode/internal/auth"
	"github.com/voithos/swiftcode/internal/config"
	"github.com/voithos/swiftcode/internal/events"
	"github.com/voithos/swiftcode/internal/exercise"
	"github.com/voithos/swiftcode/internal/gateway"
	"github.com/voithos/swiftcode/internal/match"
	"github.com/voithos/swiftcode/internal/relay"
	"github.com/voithos/swiftcode/internal/scoring"
	"github.com/voithos/swiftcode/internal/store"
)

func main() {
	// Load .env file if it exists
	if err := godotenv.Load(); err != nil {
		log.Debug().Err(err).Msg("could not load .env file")
	}

	// Setup logging
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	zerolog.SetGlobalLevel(zerolog.InfoLevel)

	cfg, err := config.Load(os.Getenv("SWIFTCODE_CONFIG"))
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load configuration")
	}
	if cfg.Auth.Secret == "" {
		log.Fatal().Msg("SWIFTCODE_AUTH_SECRET must be set")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	st := openStore(ctx, cfg)

	// A restart leaves no joinable matches behind: every match that was
	// open when the previous process died is force-completed and marked
	// reset before the server accepts traffic.
	resetCtx, resetCancel := context.WithTimeout(ctx, 10*time.Second)
	n, err := st.ResetOpenMatches(resetCtx)
	resetCancel()
	if err != nil {
		log.Error().Err(err).Msg("failed to reset open matches")
	} else if n > 0 {
		log.Info().Int64("matches", n).Msg("reset stale open matches")
	}

	clock := clockwork.NewRealClock()
	bus := events.NewBus()
	scores := scoring.NewEngine(st)

	local := exercise.NewStatic(seedExercises()...)
	var exercises match.ExerciseProvider = local
	if cfg.Exercises.CatalogURL != "" {
		remote := exercise.NewRemote(cfg.Exercises.CatalogURL, local, catalogSources()...)
		if cfg.Exercises.AuthToken != "" {
			remote.SetAuthToken(cfg.Exercises.AuthToken)
		}
		exercises = remote
		log.Info().Str("catalog", cfg.Exercises.CatalogURL).Msg("remote exercise catalog enabled")
	}

	coord := match.NewCoordinator(cfg.Race, clock, bus, st, scores, exercises)

	scheduler := match.NewScheduler(coord, clock)
	go func() {
		if err := scheduler.Run(ctx); err != nil {
			log.Error().Err(err).Msg("scheduler stopped")
		}
	}()

	if cfg.NATS.Enabled {
		pub, err := relay.NewPublisher(relay.Config{
			URL:           cfg.NATS.URL,
			StreamName:    cfg.NATS.Stream,
			SubjectPrefix: cfg.NATS.Subject,
			MaxReconnects: -1,
			ReconnectWait: 2 * time.Second,
			MaxAge:        24 * time.Hour,
			PublishWait:   5 * time.Second,
		})
		if err != nil {
			log.Error().Err(err).Msg("JetStream relay unavailable, continuing without it")
		} else {
			pub.Attach(ctx, bus)
			defer pub.Close()
		}
	}

	verifier := auth.NewVerifier(cfg.Auth.Secret)
	manager := gateway.NewManager(coord, verifier, clock, gateway.DefaultConnectionConfig())
	detach := manager.AttachFeeds(bus)
	defer detach()
	go manager.Start(ctx)

	server := setupServer(cfg, manager, verifier)

	go func() {
		log.Info().Str("addr", cfg.Addr).Msg("server listening")
		if err := server.ListenAndServe(); err != nil {
			log.Error().Err(err).Msg("server stopped")
			cancel()
		}
	}()

	// Wait for shutdown signal
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	select {
	case sig := <-sigCh:
		log.Info().Str("signal", sig.String()).Msg("shutting down")
	case <-ctx.Done():
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("graceful shutdown failed")
	}
}

// openStore connects to Postgres when configured and falls back to the
// in-memory store otherwise.
func openStore(ctx context.Context, cfg config.Config) store.Store {
	if !cfg.DB.Enabled {
		log.Info().Msg("no database configured, using in-memory store")
		return store.NewMemory()
	}
	pg, err := store.NewPostgres(ctx, cfg.DB.DSN())
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to database")
	}
	log.Info().
		Str("host", cfg.DB.Host).
		Str("database", cfg.DB.Database).
		Msg("connected to database")
	return pg
}
