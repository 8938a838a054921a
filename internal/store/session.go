package store

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/foodmine/literature-mining-service/internal/classifier"
	"github.com/foodmine/literature-mining-service/internal/domain"
	"github.com/foodmine/literature-mining-service/internal/observability"
	"github.com/foodmine/literature-mining-service/internal/repository"
	"github.com/foodmine/literature-mining-service/internal/scrape"
	"github.com/foodmine/literature-mining-service/internal/textproc"
)

// Publisher is the full audit-event surface a session uses. The per-batch
// half is consumed by the coordinators, the session summary by the runner.
type Publisher interface {
	EventPublisher
	PublishScrapeFinished(ctx context.Context, event domain.ScrapeFinishedEvent) error
}

// SessionConfig describes one scrape session.
type SessionConfig struct {
	// SessionID labels the session. Generated when empty.
	SessionID string

	// Keyword is the search term sent to every remote source.
	Keyword string

	// Subject is the subject facet for sources that support one.
	Subject string

	// Sources restricts the session to the named source types. Empty means
	// every enabled source.
	Sources []domain.SourceType

	// MaxResults caps scanned records per source. Zero means each source's
	// own ceiling applies.
	MaxResults int

	// CorpusPath points the S2ORC source at a corpus file or directory,
	// overriding its configured path.
	CorpusPath string

	// BatchSize overrides the pipeline flush threshold.
	BatchSize int

	// SaveAll tags every scanned record with GeneralTag.
	SaveAll bool

	// GeneralTag is the catch-all tag used by SaveAll.
	GeneralTag string
}

// SourceReport is the per-source outcome of a session.
type SourceReport struct {
	Source      domain.SourceType `json:"source"`
	Total       int               `json:"total"`
	Scanned     int               `json:"scanned"`
	Unreadable  int               `json:"unreadable"`
	NoIdentity  int               `json:"no_identity"`
	PagesFailed int               `json:"pages_failed"`
	Duration    string            `json:"duration"`
	Error       string            `json:"error,omitempty"`
}

// SessionReport summarizes a completed session across all its sources.
type SessionReport struct {
	SessionID string         `json:"session_id"`
	Keyword   string         `json:"keyword"`
	StartedAt time.Time      `json:"started_at"`
	Duration  string         `json:"duration"`
	Sources   []SourceReport `json:"sources"`
	Summaries []TagSummary   `json:"classifiers,omitempty"`
}

// TagSummary is one classifier's session-wide totals. Relevant counts papers
// the store accepted as new for the tag; repeats land in AlreadyTagged.
type TagSummary struct {
	Tag           string `json:"tag"`
	Total         int64  `json:"total"`
	Relevant      int64  `json:"relevant"`
	Irrelevant    int64  `json:"irrelevant"`
	AlreadyTagged int64  `json:"already_tagged"`
}

// SessionRunner executes scrape sessions: it wires one pipeline and one
// coordinator per source, runs the sources through the registry, flushes
// the remainders, and emits the session summary events.
type SessionRunner struct {
	registry    *scrape.Registry
	repo        repository.ArticleRepository
	classifiers []*classifier.Tracked
	segmenter   textproc.Segmenter
	processor   textproc.Processor
	publisher   Publisher
	logger      zerolog.Logger
	metrics     *observability.Metrics
}

// NewSessionRunner creates a SessionRunner. The publisher may be nil.
func NewSessionRunner(
	registry *scrape.Registry,
	repo repository.ArticleRepository,
	classifiers []*classifier.Tracked,
	segmenter textproc.Segmenter,
	processor textproc.Processor,
	publisher Publisher,
	logger zerolog.Logger,
	metrics *observability.Metrics,
) *SessionRunner {
	return &SessionRunner{
		registry:    registry,
		repo:        repo,
		classifiers: classifiers,
		segmenter:   segmenter,
		processor:   processor,
		publisher:   publisher,
		logger:      logger,
		metrics:     metrics,
	}
}

// Run executes one session to completion and returns its report. Source
// failures are carried in the report, not returned; Run errors only when the
// final pipeline flushes fail or the context is done.
func (r *SessionRunner) Run(ctx context.Context, cfg SessionConfig) (*SessionReport, error) {
	if cfg.SessionID == "" {
		cfg.SessionID = uuid.NewString()
	}
	start := time.Now()
	logger := observability.WithSessionContext(r.logger, cfg.SessionID, cfg.Keyword)
	logger.Info().Strs("sources", sourceNames(cfg.Sources)).Msg("Starting scrape session")

	// The registry builds each source's sink from inside that source's
	// goroutine, so the pipeline map needs guarding.
	var pipelineMu sync.Mutex
	pipelines := make(map[domain.SourceType]*scrape.Pipeline)
	sinks := func(source domain.SourceType) scrape.EmitFunc {
		coordinator := NewCoordinator(Config{
			SessionID:  cfg.SessionID,
			Source:     source,
			SaveAll:    cfg.SaveAll,
			GeneralTag: cfg.GeneralTag,
		}, r.repo, r.classifiers, r.publisher, r.logger, r.metrics)

		pipeline := scrape.NewPipeline(scrape.PipelineConfig{
			Source:    source,
			BatchSize: cfg.BatchSize,
		}, r.segmenter, r.processor, coordinator.StoreBatch, r.logger, r.metrics)
		pipelineMu.Lock()
		pipelines[source] = pipeline
		pipelineMu.Unlock()
		return pipeline.Emit
	}

	params := scrape.ScrapeParams{
		Keyword:    cfg.Keyword,
		Subject:    cfg.Subject,
		MaxResults: cfg.MaxResults,
		CorpusPath: cfg.CorpusPath,
	}
	outcomes := r.registry.ScrapeSources(ctx, params, cfg.Sources, sinks)

	report := &SessionReport{
		SessionID: cfg.SessionID,
		Keyword:   cfg.Keyword,
		StartedAt: start.UTC(),
	}

	for _, outcome := range outcomes {
		sourceReport := SourceReport{Source: outcome.Source}
		if outcome.Stats != nil {
			sourceReport.Total = outcome.Stats.Total
			sourceReport.Scanned = outcome.Stats.Scanned
			sourceReport.PagesFailed = outcome.Stats.PagesFailed
			sourceReport.Duration = outcome.Stats.Duration.String()
		}
		if outcome.Error != nil {
			sourceReport.Error = outcome.Error.Error()
			logger.Error().Err(outcome.Error).Str("source", string(outcome.Source)).Msg("Source scrape failed")
		}

		if pipeline, ok := pipelines[outcome.Source]; ok {
			if err := pipeline.Finish(ctx); err != nil {
				return nil, fmt.Errorf("flushing final batch for %s: %w", outcome.Source, err)
			}
			_, sourceReport.Unreadable, sourceReport.NoIdentity = pipeline.Counts()
		}
		if sourceReport.PagesFailed > 0 {
			logger.Warn().
				Str("source", string(outcome.Source)).
				Int("pages_failed", sourceReport.PagesFailed).
				Msg("Some pages failed after retries and were treated as empty")
		}

		report.Sources = append(report.Sources, sourceReport)
		r.publishScrapeFinished(ctx, cfg.SessionID, sourceReport, logger)
	}

	for _, cls := range r.classifiers {
		cls.LogSummary(logger)
		final := cls.Reset()
		report.Summaries = append(report.Summaries, TagSummary{
			Tag:           cls.Tag(),
			Total:         final.Total,
			Relevant:      final.Relevant,
			Irrelevant:    final.Irrelevant,
			AlreadyTagged: final.AlreadyTagged,
		})
	}

	report.Duration = time.Since(start).String()
	logger.Info().
		Str("duration", report.Duration).
		Int("sources", len(report.Sources)).
		Msg("Scrape session finished")
	return report, ctx.Err()
}

func (r *SessionRunner) publishScrapeFinished(ctx context.Context, sessionID string, sourceReport SourceReport, logger zerolog.Logger) {
	if r.publisher == nil {
		return
	}
	event := domain.ScrapeFinishedEvent{
		SessionID:  sessionID,
		Source:     sourceReport.Source,
		Scanned:    sourceReport.Scanned,
		Unreadable: sourceReport.Unreadable,
		NoIdentity: sourceReport.NoIdentity,
		Duration:   sourceReport.Duration,
		OccurredAt: time.Now().UTC(),
	}
	if err := r.publisher.PublishScrapeFinished(ctx, event); err != nil {
		logger.Warn().Err(err).Str("source", string(sourceReport.Source)).Msg("Failed to publish scrape finished event")
	}
}

func sourceNames(sources []domain.SourceType) []string {
	names := make([]string, len(sources))
	for i, s := range sources {
		names[i] = string(s)
	}
	return names
}
