// Package store coordinates classification and persistence of normalized
// article batches. For every flushed batch it runs each configured classifier
// over the processed abstracts, bulk-upserts the relevant subset under the
// classifier's tag, and optionally upserts the whole batch under a catch-all
// tag. All writes go through the article repository's conditional upsert, so
// re-running a session only accretes tags and never rewrites metadata.
package store

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/foodmine/literature-mining-service/internal/classifier"
	"github.com/foodmine/literature-mining-service/internal/domain"
	"github.com/foodmine/literature-mining-service/internal/observability"
	"github.com/foodmine/literature-mining-service/internal/repository"
)

// DefaultGeneralTag is the catch-all tag applied in save-all mode.
const DefaultGeneralTag = "all"

// EventPublisher emits an audit event after each bulk write. Implementations
// must tolerate being called concurrently with other sessions.
type EventPublisher interface {
	PublishBatchStored(ctx context.Context, event domain.BatchStoredEvent) error
}

// Config holds per-session settings for a Coordinator.
type Config struct {
	// SessionID labels this scrape session in logs and events. Generated
	// when empty.
	SessionID string

	// Source is the adapter feeding this coordinator.
	Source domain.SourceType

	// SaveAll, when set, additionally tags every article in each batch
	// with GeneralTag regardless of classifier verdicts.
	SaveAll bool

	// GeneralTag is the catch-all tag used by SaveAll.
	GeneralTag string
}

func (c *Config) applyDefaults() {
	if c.SessionID == "" {
		c.SessionID = uuid.NewString()
	}
	if c.GeneralTag == "" {
		c.GeneralTag = DefaultGeneralTag
	}
}

// Coordinator drives classification and storage for one source's session.
// It is the FlushFunc target of that source's pipeline.
type Coordinator struct {
	config      Config
	repo        repository.ArticleRepository
	classifiers []*classifier.Tracked
	publisher   EventPublisher
	logger      zerolog.Logger
	metrics     *observability.Metrics
}

// NewCoordinator creates a Coordinator. The publisher may be nil, in which
// case no audit events are emitted. The classifier slice may be empty, which
// only makes sense together with Config.SaveAll.
func NewCoordinator(
	cfg Config,
	repo repository.ArticleRepository,
	classifiers []*classifier.Tracked,
	publisher EventPublisher,
	logger zerolog.Logger,
	metrics *observability.Metrics,
) *Coordinator {
	cfg.applyDefaults()

	return &Coordinator{
		config:      cfg,
		repo:        repo,
		classifiers: classifiers,
		publisher:   publisher,
		logger: logger.With().
			Str("session_id", cfg.SessionID).
			Str("source", string(cfg.Source)).
			Logger(),
		metrics: metrics,
	}
}

// SessionID returns the identifier this coordinator stamps on its events.
func (c *Coordinator) SessionID() string {
	return c.config.SessionID
}

// StoreBatch classifies one flushed batch and persists the relevant articles.
//
// Each classifier predicts once over the whole batch; articles it marks
// relevant are bulk-upserted under its tag. A failing prediction skips that
// classifier for this batch only. With save-all enabled, the entire batch is
// additionally upserted under the general tag. Individual upsert failures
// inside a bulk submission are counted and logged, not retried.
func (c *Coordinator) StoreBatch(ctx context.Context, articles []*domain.Article) error {
	if len(articles) == 0 {
		return nil
	}

	abstracts := make([]string, len(articles))
	for i, article := range articles {
		abstracts[i] = article.ProcessedAbstract
	}

	for _, cls := range c.classifiers {
		if err := c.classifyAndStore(ctx, cls, articles, abstracts); err != nil {
			return err
		}
	}

	if c.config.SaveAll {
		if _, err := c.storeTagged(ctx, articles, c.config.GeneralTag, len(articles)); err != nil {
			return err
		}
	}

	return nil
}

func (c *Coordinator) classifyAndStore(ctx context.Context, cls *classifier.Tracked, articles []*domain.Article, abstracts []string) error {
	start := time.Now()
	labels, err := cls.Predict(ctx, abstracts)
	if err != nil {
		if ctx.Err() != nil {
			return fmt.Errorf("predicting batch for tag %q: %w", cls.Tag(), err)
		}
		if c.metrics != nil {
			c.metrics.RecordClassifierFailure(cls.Tag())
		}
		logger := observability.WithClassifierContext(c.logger, cls.Tag())
		logger.Error().
			Err(err).
			Int("batch_size", len(abstracts)).
			Msg("Classifier batch failed, skipping tag for this batch")
		return nil
	}

	relevant := make([]*domain.Article, 0, len(articles))
	for i, label := range labels {
		if i < len(articles) && label {
			relevant = append(relevant, articles[i])
		}
	}
	if c.metrics != nil {
		c.metrics.RecordClassifierBatch(cls.Tag(), len(relevant), len(articles)-len(relevant), time.Since(start).Seconds())
	}

	if len(relevant) == 0 {
		return nil
	}

	result, err := c.storeTagged(ctx, relevant, cls.Tag(), len(articles))
	if err != nil {
		return err
	}
	// The session counters follow the store's verdict, not the raw
	// predictions: a positively labeled paper that already carried the tag
	// is a repeat, not a new relevant find.
	cls.RecordStored(int64(result.Upserted+result.TagAdded), int64(result.AlreadyTagged))
	return nil
}

// storeTagged bulk-upserts articles under tag and reports the outcome.
// batchSize is the size of the originating batch, carried in the event for
// operators to relate relevance counts to batch volume.
func (c *Coordinator) storeTagged(ctx context.Context, articles []*domain.Article, tag string, batchSize int) (*repository.BulkResult, error) {
	start := time.Now()
	result, err := c.repo.BulkUpsertWithTag(ctx, articles, tag)
	if err != nil {
		return nil, fmt.Errorf("bulk upserting %d articles with tag %q: %w", len(articles), tag, err)
	}

	if c.metrics != nil {
		c.metrics.RecordBulkWrite(result.Upserted, result.TagAdded, result.AlreadyTagged, result.Failed, time.Since(start).Seconds())
	}

	event := c.logger.Info()
	if result.Failed > 0 {
		event = c.logger.Warn()
	}
	event.
		Str("tag", tag).
		Int("upserted", result.Upserted).
		Int("tag_added", result.TagAdded).
		Int("already_tagged", result.AlreadyTagged).
		Int("failed", result.Failed).
		Msg("Stored article batch")

	c.publishBatchStored(ctx, tag, batchSize, result)
	return result, nil
}

func (c *Coordinator) publishBatchStored(ctx context.Context, tag string, batchSize int, result *repository.BulkResult) {
	if c.publisher == nil {
		return
	}

	event := domain.BatchStoredEvent{
		SessionID:     c.config.SessionID,
		Source:        c.config.Source,
		Tag:           tag,
		BatchSize:     batchSize,
		Upserted:      result.Upserted,
		TagAdded:      result.TagAdded,
		AlreadyTagged: result.AlreadyTagged,
		Failed:        result.Failed,
		OccurredAt:    time.Now().UTC(),
	}
	if err := c.publisher.PublishBatchStored(ctx, event); err != nil {
		c.logger.Warn().Err(err).Str("tag", tag).Msg("Failed to publish batch stored event")
	}
}
