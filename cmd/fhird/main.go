package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/openclinic/fhird/internal/api"
	"github.com/openclinic/fhird/internal/config"
	"github.com/openclinic/fhird/internal/export"
	"github.com/openclinic/fhird/internal/index"
	"github.com/openclinic/fhird/internal/search"
	"github.com/openclinic/fhird/internal/store"
	"github.com/openclinic/fhird/internal/worker"
	"github.com/openclinic/fhird/migrations"
)

func main() {
	configPath := flag.String("config", "", "path to TOML config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		bootLogger := zerolog.New(os.Stderr)
		bootLogger.Fatal().Err(err).Msg("load config")
	}

	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = zerolog.InfoLevel
	}
	logger := zerolog.New(os.Stderr).Level(level).With().Timestamp().Logger()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	pool, err := store.NewPool(ctx, cfg.DBDSN)
	if err != nil {
		logger.Fatal().Err(err).Msg("database connection failed")
	}
	defer pool.Close()

	for _, migFile := range []string{"001_init.sql", "002_jobs.sql"} {
		migrationSQL, err := migrations.FS.ReadFile(migFile)
		if err != nil {
			logger.Fatal().Err(err).Str("file", migFile).Msg("read migration file")
		}
		if err := store.RunMigrations(ctx, pool, string(migrationSQL)); err != nil {
			logger.Fatal().Err(err).Str("file", migFile).Msg("migration failed")
		}
		logger.Info().Str("file", migFile).Msg("migration applied")
	}

	resources := store.NewPostgresResourceStore(pool, logger)
	jobs := store.NewPostgresJobStore(pool, logger)

	registry := search.DefaultRegistry()
	parser := search.NewParser(registry, search.NewValueBuilder())
	extractor := index.NewExtractor(registry)

	runners := worker.NewRegistry()
	exporter := export.NewRunner(resources, jobs, cfg.Worker.ExportPageSize, logger)
	runners.Register(export.JobType, exporter.Run)

	w := worker.New(jobs, runners, worker.Config{
		MaxConcurrent:    cfg.Worker.MaxConcurrent,
		PollInterval:     cfg.Worker.PollInterval.Std(),
		HeartbeatTimeout: cfg.Worker.HeartbeatTimeout.Std(),
		DrainTimeout:     cfg.Worker.DrainTimeout.Std(),
	}, logger)

	contributors := []api.CapabilityContributor{
		&api.SearchCapability{Registry: registry},
		&api.JobCapability{Registry: runners},
	}
	router := api.NewRouter(resources, jobs, parser, extractor, contributors, cfg, logger)

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
		MaxHeaderBytes:    1 << 20,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		w.Run(gctx)
		return nil
	})

	g.Go(func() error {
		logger.Info().Str("addr", cfg.HTTPAddr).Msg("server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		logger.Fatal().Err(err).Msg("shutdown")
	}
	logger.Info().Msg("server stopped")
}
