// Package main provides the entry point for the literature mining HTTP server.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/foodmine/literature-mining-service/internal/classifier"
	"github.com/foodmine/literature-mining-service/internal/config"
	"github.com/foodmine/literature-mining-service/internal/database"
	"github.com/foodmine/literature-mining-service/internal/events"
	"github.com/foodmine/literature-mining-service/internal/observability"
	"github.com/foodmine/literature-mining-service/internal/repository"
	"github.com/foodmine/literature-mining-service/internal/scrape"
	"github.com/foodmine/literature-mining-service/internal/scrape/elsevier"
	"github.com/foodmine/literature-mining-service/internal/scrape/pubmed"
	"github.com/foodmine/literature-mining-service/internal/scrape/s2orc"
	"github.com/foodmine/literature-mining-service/internal/scrape/springer"
	httpserver "github.com/foodmine/literature-mining-service/internal/server/http"
	"github.com/foodmine/literature-mining-service/internal/store"
	"github.com/foodmine/literature-mining-service/internal/textproc"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger := observability.NewLogger(observability.LoggingConfig{
		Level:      cfg.Logging.Level,
		Format:     cfg.Logging.Format,
		Output:     cfg.Logging.Output,
		AddSource:  cfg.Logging.AddSource,
		TimeFormat: cfg.Logging.TimeFormat,
	})
	logger = logger.With().Str("component", "server").Logger()
	logger.Info().Msg("literature-mining-service server starting")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := database.New(ctx, &cfg.Database, logger)
	if err != nil {
		return fmt.Errorf("connect to database: %w", err)
	}
	defer db.Close()
	logger.Info().Msg("database connection established")

	if cfg.Database.MigrationAutoRun {
		migrator, err := database.NewMigrator(db, cfg.Database.MigrationPath, logger)
		if err != nil {
			return fmt.Errorf("create migrator: %w", err)
		}
		defer func() {
			if closeErr := migrator.Close(); closeErr != nil {
				logger.Error().Err(closeErr).Msg("failed to close migrator")
			}
		}()

		if err := migrator.Up(); err != nil {
			return fmt.Errorf("run migrations: %w", err)
		}
	}

	metrics := observability.NewMetrics("litmine")
	repo := repository.NewPgArticleRepository(db)
	registry := buildRegistry(cfg)
	classifiers := buildClassifiers(cfg)

	var publisher store.Publisher
	if cfg.Kafka.Enabled {
		kafkaPublisher := events.NewKafkaPublisher(events.Config{
			Brokers:      cfg.Kafka.Brokers,
			Topic:        cfg.Kafka.Topic,
			BatchSize:    cfg.Kafka.BatchSize,
			BatchTimeout: cfg.Kafka.BatchTimeout,
		}, logger, metrics)
		defer func() {
			if closeErr := kafkaPublisher.Close(); closeErr != nil {
				logger.Error().Err(closeErr).Msg("failed to close event publisher")
			}
		}()
		publisher = kafkaPublisher
		logger.Info().Strs("brokers", cfg.Kafka.Brokers).Str("topic", cfg.Kafka.Topic).Msg("event publisher enabled")
	}

	runner := store.NewSessionRunner(
		registry,
		repo,
		classifiers,
		textproc.NewRuleSegmenter(),
		textproc.NewMaterialsProcessor(),
		publisher,
		logger,
		metrics,
	)

	httpCfg := httpserver.Config{
		Address:         cfg.Server.HTTPAddress(),
		ReadTimeout:     cfg.Server.ReadTimeout,
		WriteTimeout:    cfg.Server.WriteTimeout,
		IdleTimeout:     2 * time.Minute,
		ShutdownTimeout: cfg.Server.ShutdownTimeout,
	}
	httpSrv := httpserver.NewServer(httpCfg, runner, repo, db, logger)

	var metricsServer *http.Server
	if cfg.Metrics.Enabled {
		metricsMux := http.NewServeMux()
		metricsMux.Handle(cfg.Metrics.Path, promhttp.Handler())
		metricsServer = &http.Server{
			Addr:         cfg.Server.MetricsAddress(),
			Handler:      metricsMux,
			ReadTimeout:  cfg.Server.ReadTimeout,
			WriteTimeout: cfg.Server.WriteTimeout,
		}
	}

	errCh := make(chan error, 2)

	go func() {
		if err := httpSrv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("HTTP server error: %w", err)
		}
	}()

	if metricsServer != nil {
		go func() {
			logger.Info().Str("address", metricsServer.Addr).Msg("metrics server starting")
			if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				errCh <- fmt.Errorf("metrics server error: %w", err)
			}
		}()
	}

	readyLog := logger.Info().Str("http_address", httpCfg.Address)
	if metricsServer != nil {
		readyLog = readyLog.Str("metrics_address", metricsServer.Addr)
	}
	readyLog.Msg("literature-mining-service is ready")

	select {
	case <-ctx.Done():
		logger.Info().Msg("received shutdown signal")
	case err := <-errCh:
		logger.Error().Err(err).Msg("server error")
		return err
	}

	logger.Info().Msg("shutting down literature-mining-service")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()

	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("HTTP server shutdown error")
	}
	if metricsServer != nil {
		if err := metricsServer.Shutdown(shutdownCtx); err != nil {
			logger.Error().Err(err).Msg("metrics server shutdown error")
		}
	}

	logger.Info().Msg("literature-mining-service shutdown complete")
	return nil
}

// buildRegistry wires every configured source adapter into a registry.
// Disabled sources are registered too; the registry filters at scrape time.
func buildRegistry(cfg *config.Config) *scrape.Registry {
	registry := scrape.NewRegistry()

	registry.Register(springer.New(springer.Config{
		BaseURL:   cfg.Sources.Springer.BaseURL,
		APIKey:    cfg.Sources.Springer.APIKey,
		Timeout:   cfg.Sources.Springer.Timeout,
		RateLimit: cfg.Sources.Springer.RateLimit,
		PageSize:  cfg.Sources.Springer.PageSize,
		ScanCap:   cfg.Scraper.ScanCap,
		Enabled:   cfg.Sources.Springer.Enabled,
	}))

	registry.Register(elsevier.New(elsevier.Config{
		BaseURL:   cfg.Sources.Elsevier.BaseURL,
		APIKey:    cfg.Sources.Elsevier.APIKey,
		Timeout:   cfg.Sources.Elsevier.Timeout,
		RateLimit: cfg.Sources.Elsevier.RateLimit,
		ScanCap:   cfg.Scraper.ScanCap,
		Enabled:   cfg.Sources.Elsevier.Enabled,
	}))

	registry.Register(pubmed.New(pubmed.Config{
		BaseURL:   cfg.Sources.PubMed.BaseURL,
		APIKey:    cfg.Sources.PubMed.APIKey,
		Timeout:   cfg.Sources.PubMed.Timeout,
		RateLimit: cfg.Sources.PubMed.RateLimit,
		PageSize:  cfg.Sources.PubMed.PageSize,
		Enabled:   cfg.Sources.PubMed.Enabled,
	}))

	registry.Register(s2orc.New(s2orc.Config{
		CorpusPath: cfg.Sources.S2ORC.CorpusPath,
		Enabled:    cfg.Sources.S2ORC.Enabled,
	}))

	return registry
}

// buildClassifiers constructs the enabled remote classifiers, each wrapped
// with session counter tracking.
func buildClassifiers(cfg *config.Config) []*classifier.Tracked {
	classifiers := make([]*classifier.Tracked, 0, len(cfg.Classifiers))
	for _, cc := range cfg.Classifiers {
		if !cc.Enabled {
			continue
		}
		remote := classifier.NewRemote(classifier.Config{
			Tag:      cc.Tag,
			BaseURL:  cc.BaseURL,
			APIKey:   cc.APIKey,
			Timeout:  cc.Timeout,
			MaxBatch: cc.MaxBatch,
			Enabled:  cc.Enabled,
		})
		classifiers = append(classifiers, classifier.NewTracked(remote))
	}
	return classifiers
}
