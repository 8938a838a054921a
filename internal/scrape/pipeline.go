package scrape

import (
	"context"
	"strings"

	"github.com/rs/zerolog"

	"github.com/foodmine/literature-mining-service/internal/domain"
	"github.com/foodmine/literature-mining-service/internal/observability"
	"github.com/foodmine/literature-mining-service/internal/textproc"
)

// DefaultBatchSize is how many articles a pipeline buffers before flushing.
const DefaultBatchSize = 20000

// FlushFunc receives a full batch of normalized articles for classification
// and storage. The slice is owned by the callee.
type FlushFunc func(ctx context.Context, articles []*domain.Article) error

// PipelineConfig holds settings for a per-source article pipeline.
type PipelineConfig struct {
	Source    domain.SourceType
	BatchSize int
}

func (c *PipelineConfig) applyDefaults() {
	if c.BatchSize <= 0 {
		c.BatchSize = DefaultBatchSize
	}
}

// Pipeline collects articles emitted by one source adapter, normalizes
// their abstracts, and hands full batches to a flush function. It is not
// safe for concurrent use; every source gets its own pipeline.
type Pipeline struct {
	source    domain.SourceType
	batchSize int
	segmenter textproc.Segmenter
	processor textproc.Processor
	flush     FlushFunc
	logger    zerolog.Logger
	metrics   *observability.Metrics

	buf        []*domain.Article
	scanned    int
	unreadable int
	noIdentity int
}

// NewPipeline creates a pipeline for one source.
func NewPipeline(
	cfg PipelineConfig,
	segmenter textproc.Segmenter,
	processor textproc.Processor,
	flush FlushFunc,
	logger zerolog.Logger,
	metrics *observability.Metrics,
) *Pipeline {
	cfg.applyDefaults()
	return &Pipeline{
		source:    cfg.Source,
		batchSize: cfg.BatchSize,
		segmenter: segmenter,
		processor: processor,
		flush:     flush,
		logger:    observability.WithSourceContext(logger, string(cfg.Source)),
		metrics:   metrics,
		buf:       make([]*domain.Article, 0, cfg.BatchSize),
	}
}

// Emit ingests one article. Articles without any identifier are dropped
// and counted, as are articles whose abstract is missing or cannot be
// normalized.
func (p *Pipeline) Emit(ctx context.Context, article *domain.Article) error {
	if article == nil {
		return nil
	}
	p.scanned++
	if p.metrics != nil {
		p.metrics.RecordArticlesScanned(string(p.source), 1)
	}

	if _, _, err := article.Identity.Authoritative(); err != nil {
		p.noIdentity++
		if p.metrics != nil {
			p.metrics.RecordArticleNoIdentity(string(p.source))
		}
		p.logger.Debug().
			Str("title", article.Title).
			Msg("Dropping article without identifier")
		return nil
	}

	processed, err := p.processAbstract(article.Abstract)
	if err != nil || processed == "" {
		p.unreadable++
		if p.metrics != nil {
			p.metrics.RecordArticleUnreadable(string(p.source))
		}
		p.logger.Debug().
			Err(err).
			Str("title", article.Title).
			Msg("Abstract missing or could not be normalized")
		return nil
	}
	article.ProcessedAbstract = processed
	if article.Database == "" {
		article.Database = p.source
	}

	p.buf = append(p.buf, article)
	if len(p.buf) >= p.batchSize {
		return p.flushBuffer(ctx)
	}
	return nil
}

// Finish flushes any buffered articles. It must be called once after the
// source adapter returns.
func (p *Pipeline) Finish(ctx context.Context) error {
	if p.scanned == 0 {
		p.logger.Info().Msg("No abstracts to classify")
		return nil
	}
	if len(p.buf) > 0 {
		return p.flushBuffer(ctx)
	}
	return nil
}

// Counts reports how many articles were seen, how many had unreadable
// abstracts, and how many were dropped for lacking an identifier.
func (p *Pipeline) Counts() (scanned, unreadable, noIdentity int) {
	return p.scanned, p.unreadable, p.noIdentity
}

func (p *Pipeline) flushBuffer(ctx context.Context) error {
	batch := p.buf
	p.buf = make([]*domain.Article, 0, p.batchSize)

	if p.metrics != nil {
		p.metrics.RecordBatchFlushed(len(batch))
	}
	p.logger.Info().
		Int("batch_size", len(batch)).
		Msg("Flushing article batch")

	return p.flush(ctx, batch)
}

// processAbstract segments the abstract and normalizes each sentence.
// Sentences are joined with newlines, tokens within a sentence with spaces.
func (p *Pipeline) processAbstract(abstract string) (string, error) {
	if strings.TrimSpace(abstract) == "" {
		return "", nil
	}

	sentences := p.segmenter.Sentences(abstract)
	lines := make([]string, 0, len(sentences))
	for _, sentence := range sentences {
		tokens, _, err := p.processor.Process(sentence)
		if err != nil {
			return "", err
		}
		if len(tokens) == 0 {
			continue
		}
		lines = append(lines, strings.Join(tokens, " "))
	}
	return strings.Join(lines, "\n"), nil
}
