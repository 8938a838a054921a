// Package main provides a CLI for running one scrape session end to end:
// fetch from the configured sources, normalize, classify, and store.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/foodmine/literature-mining-service/internal/classifier"
	"github.com/foodmine/literature-mining-service/internal/config"
	"github.com/foodmine/literature-mining-service/internal/database"
	"github.com/foodmine/literature-mining-service/internal/domain"
	"github.com/foodmine/literature-mining-service/internal/events"
	"github.com/foodmine/literature-mining-service/internal/observability"
	"github.com/foodmine/literature-mining-service/internal/repository"
	"github.com/foodmine/literature-mining-service/internal/scrape"
	"github.com/foodmine/literature-mining-service/internal/scrape/elsevier"
	"github.com/foodmine/literature-mining-service/internal/scrape/pubmed"
	"github.com/foodmine/literature-mining-service/internal/scrape/s2orc"
	"github.com/foodmine/literature-mining-service/internal/scrape/springer"
	"github.com/foodmine/literature-mining-service/internal/store"
	"github.com/foodmine/literature-mining-service/internal/textproc"
)

// scrapeSessionLockKey serializes scrape sessions across process instances.
// Concurrent sessions are safe for correctness (upserts are atomic per row)
// but hammer the same third-party API quotas, so only one runs at a time.
const scrapeSessionLockKey int64 = 7201_4402

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	keyword := flag.String("keyword", "", "Search keyword (required)")
	subject := flag.String("subject", "", "Subject facet override")
	sourcesFlag := flag.String("sources", "", "Comma-separated sources to run (springer,elsevier,pubmed,s2orc); empty runs all enabled")
	maxResults := flag.Int("max-results", 0, "Cap scanned records per source (0 = source default)")
	corpusPath := flag.String("corpus", "", "S2ORC corpus file or directory override")
	saveAll := flag.Bool("save-all", false, "Also tag every scanned record with the general tag")
	generalTag := flag.String("general-tag", "", "Catch-all tag for -save-all (default from config)")
	flag.Parse()

	if strings.TrimSpace(*keyword) == "" {
		flag.Usage()
		return fmt.Errorf("-keyword is required")
	}

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
	logger = logger.With().Str("component", "scraper").Logger()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := database.New(ctx, &cfg.Database, logger)
	if err != nil {
		return fmt.Errorf("connect to database: %w", err)
	}
	defer db.Close()

	sessionLock, err := db.AcquireAdvisoryLock(ctx, scrapeSessionLockKey)
	if err != nil {
		return fmt.Errorf("acquire session lock: %w", err)
	}
	if sessionLock == nil {
		return fmt.Errorf("another scrape session is already running")
	}
	defer func() {
		if releaseErr := sessionLock.Release(context.Background()); releaseErr != nil {
			logger.Error().Err(releaseErr).Msg("failed to release session lock")
		}
	}()

	metrics := observability.NewMetrics("litmine")
	repo := repository.NewPgArticleRepository(db)
	registry := buildRegistry(cfg)
	classifiers := buildClassifiers(cfg)
	if len(classifiers) == 0 && !*saveAll && !cfg.Scraper.SaveAll {
		logger.Warn().Msg("No classifiers enabled and save-all is off; nothing will be stored")
	}

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

	sessionCfg := store.SessionConfig{
		Keyword:    *keyword,
		Subject:    firstNonEmpty(*subject, cfg.Scraper.Subject),
		Sources:    parseSources(*sourcesFlag),
		MaxResults: *maxResults,
		CorpusPath: *corpusPath,
		BatchSize:  cfg.Scraper.BatchSize,
		SaveAll:    *saveAll || cfg.Scraper.SaveAll,
		GeneralTag: firstNonEmpty(*generalTag, cfg.Scraper.GeneralTag),
	}

	start := time.Now()
	report, err := runner.Run(ctx, sessionCfg)
	if err != nil {
		return fmt.Errorf("run scrape session: %w", err)
	}

	for _, src := range report.Sources {
		event := logger.Info()
		if src.Error != "" {
			event = logger.Error().Str("error", src.Error)
		}
		event.
			Str("source", string(src.Source)).
			Int("total", src.Total).
			Int("scanned", src.Scanned).
			Int("unreadable", src.Unreadable).
			Int("no_identity", src.NoIdentity).
			Int("pages_failed", src.PagesFailed).
			Msg("Source result")
	}
	logger.Info().
		Str("session_id", report.SessionID).
		Str("duration", time.Since(start).String()).
		Msg("Scrape session complete")
	return nil
}

func parseSources(raw string) []domain.SourceType {
	if strings.TrimSpace(raw) == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	sources := make([]domain.SourceType, 0, len(parts))
	for _, part := range parts {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			sources = append(sources, domain.SourceType(trimmed))
		}
	}
	return sources
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

// buildRegistry wires every configured source adapter into a registry.
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

// buildClassifiers constructs the enabled remote classifiers, wrapped with
// session counter tracking.
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
