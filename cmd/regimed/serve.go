package main

import (
	"context"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/breadthlab/regimed/internal/cache"
	"github.com/breadthlab/regimed/internal/classifier"
	"github.com/breadthlab/regimed/internal/feedback"
	"github.com/breadthlab/regimed/internal/feeds"
	httpapi "github.com/breadthlab/regimed/internal/interfaces/http"
	"github.com/breadthlab/regimed/internal/marketdata"
	"github.com/breadthlab/regimed/internal/pipeline"
	"github.com/breadthlab/regimed/internal/scheduler"
	"github.com/breadthlab/regimed/internal/validate"
)

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the classification daemon",
		Long:  "Starts the scheduler, the feedback loop, and the read-only HTTP API.",
		RunE:  runServe,
	}
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	session, err := openSession(cfg)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	repo, db, err := openRepository(ctx, cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	stateCache := cache.New(cfg.Redis)
	defer stateCache.Close()
	if err := stateCache.Ping(ctx); err != nil {
		log.Warn().Err(err).Msg("Redis unreachable, state cache disabled for now")
	}

	cls := classifier.New(cfg.Classify)
	engine := pipeline.NewEngine(cfg, validate.New(cfg.Validator, session), cls, repo, pipeline.Options{
		ScanFeed:    feeds.NewHTTPScanFeed(cfg.Feeds),
		BreadthFeed: feeds.NewHTTPBreadthFeed(cfg.Feeds),
		StateCache:  stateCache,
	})

	broker := marketdata.NewHTTPBroker(cfg.Feeds)
	tracker := feedback.NewTracker(cfg.Feedback, broker, repo)
	retrainer := feedback.NewRetrainer(cfg.Retention.Window(), repo, cls)

	// Best stored model serves from the first cycle; rules cover the gap.
	if err := retrainer.PromoteBest(ctx); err != nil {
		log.Warn().Err(err).Msg("Could not load stored model, starting on rules")
	}

	sched := scheduler.New(cfg.Jobs, session.Location, session, engine, tracker, retrainer)
	if err := sched.Start(ctx); err != nil {
		return err
	}
	defer sched.Stop()

	server := httpapi.NewServer(cfg.HTTP, httpapi.NewHandlers(engine, tracker, repo))
	errCh := make(chan error, 1)
	go func() { errCh <- server.Start() }()

	log.Info().Str("version", version).Msg("regimed started")

	select {
	case <-ctx.Done():
		log.Info().Msg("Shutdown signal received")
	case err := <-errCh:
		if err != nil {
			return err
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}
