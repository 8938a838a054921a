package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics contains all Prometheus metrics for the literature mining service.
// Metrics are organized by subsystem: scrapes, pages, articles, classifiers,
// bulk writes, and events. All counters and histograms are registered via
// promauto for automatic registration with the default Prometheus registry.
type Metrics struct {
	// ScrapesStarted counts scraping passes initiated, labeled by source.
	ScrapesStarted *prometheus.CounterVec

	// ScrapesCompleted counts scraping passes that finished successfully, labeled by source.
	ScrapesCompleted *prometheus.CounterVec

	// ScrapesFailed counts scraping passes that ended in failure, labeled by source.
	ScrapesFailed *prometheus.CounterVec

	// ScrapeDuration observes the end-to-end duration of a pass in seconds, labeled by source.
	ScrapeDuration *prometheus.HistogramVec

	// PagesFetched counts result pages fetched successfully, labeled by source.
	PagesFetched *prometheus.CounterVec

	// PagesFailed counts result pages that still failed after retries and
	// were treated as empty, labeled by source.
	PagesFailed *prometheus.CounterVec

	// PageDuration observes page fetch duration in seconds, labeled by source.
	PageDuration *prometheus.HistogramVec

	// ArticlesScanned counts raw records decoded from a source, labeled by source.
	ArticlesScanned *prometheus.CounterVec

	// ArticlesUnreadable counts records dropped because they had no abstract
	// or failed normalization, labeled by source.
	ArticlesUnreadable *prometheus.CounterVec

	// ArticlesNoIdentity counts records dropped for lacking any identity
	// field, labeled by source.
	ArticlesNoIdentity *prometheus.CounterVec

	// BatchesFlushed counts processed-record batches handed to the store.
	BatchesFlushed prometheus.Counter

	// BatchSize observes the distribution of flushed batch sizes.
	BatchSize prometheus.Histogram

	// ClassifierPredictions counts labels produced, labeled by tag and
	// verdict (relevant, irrelevant).
	ClassifierPredictions *prometheus.CounterVec

	// ClassifierFailures counts predict calls that returned an error, labeled by tag.
	ClassifierFailures *prometheus.CounterVec

	// ClassifierDuration observes predict call duration in seconds, labeled by tag.
	ClassifierDuration *prometheus.HistogramVec

	// BulkWriteOutcomes counts per-record bulk write outcomes, labeled by
	// outcome (upserted, tag_added, already_tagged, failed).
	BulkWriteOutcomes *prometheus.CounterVec

	// BulkWriteDuration observes bulk write round-trip duration in seconds.
	BulkWriteDuration prometheus.Histogram

	// EventsPublished counts audit events published to the broker.
	EventsPublished prometheus.Counter

	// EventsFailed counts audit events that could not be published.
	EventsFailed prometheus.Counter
}

// NewMetrics creates a new Metrics instance with all metrics initialized.
// The namespace is used as a prefix for all metric names.
func NewMetrics(namespace string) *Metrics {
	return &Metrics{
		// Scrapes
		ScrapesStarted: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "scrapes_started_total",
			Help:      "Total number of scraping passes started",
		}, []string{"source"}),
		ScrapesCompleted: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "scrapes_completed_total",
			Help:      "Total number of scraping passes completed successfully",
		}, []string{"source"}),
		ScrapesFailed: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "scrapes_failed_total",
			Help:      "Total number of scraping passes that failed",
		}, []string{"source"}),
		ScrapeDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "scrape_duration_seconds",
			Help:      "End-to-end duration of a scraping pass in seconds",
			Buckets:   []float64{1, 10, 60, 300, 900, 1800, 3600, 7200},
		}, []string{"source"}),

		// Pages
		PagesFetched: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "pages_fetched_total",
			Help:      "Total number of result pages fetched successfully",
		}, []string{"source"}),
		PagesFailed: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "pages_failed_total",
			Help:      "Total number of result pages treated as empty after retries",
		}, []string{"source"}),
		PageDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "page_duration_seconds",
			Help:      "Result page fetch duration in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"source"}),

		// Articles
		ArticlesScanned: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "articles_scanned_total",
			Help:      "Total number of raw records decoded from a source",
		}, []string{"source"}),
		ArticlesUnreadable: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "articles_unreadable_total",
			Help:      "Total number of records dropped as unreadable",
		}, []string{"source"}),
		ArticlesNoIdentity: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "articles_no_identity_total",
			Help:      "Total number of records dropped for lacking identity",
		}, []string{"source"}),

		// Batches
		BatchesFlushed: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "batches_flushed_total",
			Help:      "Total number of processed-record batches flushed to the store",
		}),
		BatchSize: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "batch_size_records",
			Help:      "Distribution of flushed batch sizes",
			Buckets:   []float64{1, 10, 100, 1000, 5000, 10000, 20000},
		}),

		// Classifiers
		ClassifierPredictions: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "classifier_predictions_total",
			Help:      "Total number of labels produced by classifiers",
		}, []string{"tag", "verdict"}),
		ClassifierFailures: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "classifier_failures_total",
			Help:      "Total number of failed classifier predict calls",
		}, []string{"tag"}),
		ClassifierDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "classifier_duration_seconds",
			Help:      "Classifier predict call duration in seconds",
			Buckets:   []float64{0.1, 0.5, 1, 5, 15, 60, 300},
		}, []string{"tag"}),

		// Bulk writes
		BulkWriteOutcomes: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "bulk_write_outcomes_total",
			Help:      "Total number of per-record bulk write outcomes",
		}, []string{"outcome"}),
		BulkWriteDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "bulk_write_duration_seconds",
			Help:      "Bulk write round-trip duration in seconds",
			Buckets:   prometheus.DefBuckets,
		}),

		// Events
		EventsPublished: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_published_total",
			Help:      "Total number of audit events published",
		}),
		EventsFailed: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_failed_total",
			Help:      "Total number of audit events that failed to publish",
		}),
	}
}

// Bulk write outcome label values.
const (
	OutcomeUpserted      = "upserted"
	OutcomeTagAdded      = "tag_added"
	OutcomeAlreadyTagged = "already_tagged"
	OutcomeFailed        = "failed"
)

// RecordScrapeStarted records the start of one source's pass.
func (m *Metrics) RecordScrapeStarted(source string) {
	m.ScrapesStarted.WithLabelValues(source).Inc()
}

// RecordScrapeCompleted records a successful pass and its duration.
func (m *Metrics) RecordScrapeCompleted(source string, durationSeconds float64) {
	m.ScrapesCompleted.WithLabelValues(source).Inc()
	m.ScrapeDuration.WithLabelValues(source).Observe(durationSeconds)
}

// RecordScrapeFailed records a failed pass and its duration.
func (m *Metrics) RecordScrapeFailed(source string, durationSeconds float64) {
	m.ScrapesFailed.WithLabelValues(source).Inc()
	m.ScrapeDuration.WithLabelValues(source).Observe(durationSeconds)
}

// RecordPageFetched records a successfully fetched result page.
func (m *Metrics) RecordPageFetched(source string, durationSeconds float64) {
	m.PagesFetched.WithLabelValues(source).Inc()
	m.PageDuration.WithLabelValues(source).Observe(durationSeconds)
}

// RecordPageFailed records a page treated as empty after retries.
func (m *Metrics) RecordPageFailed(source string) {
	m.PagesFailed.WithLabelValues(source).Inc()
}

// RecordArticlesScanned records decoded raw records.
func (m *Metrics) RecordArticlesScanned(source string, count int) {
	m.ArticlesScanned.WithLabelValues(source).Add(float64(count))
}

// RecordArticleUnreadable records a record dropped as unreadable.
func (m *Metrics) RecordArticleUnreadable(source string) {
	m.ArticlesUnreadable.WithLabelValues(source).Inc()
}

// RecordArticleNoIdentity records a record dropped for lacking identity.
func (m *Metrics) RecordArticleNoIdentity(source string) {
	m.ArticlesNoIdentity.WithLabelValues(source).Inc()
}

// RecordBatchFlushed records one batch handed to the store.
func (m *Metrics) RecordBatchFlushed(size int) {
	m.BatchesFlushed.Inc()
	m.BatchSize.Observe(float64(size))
}

// RecordClassifierBatch records the labels and duration of one predict call.
func (m *Metrics) RecordClassifierBatch(tag string, relevant, irrelevant int, durationSeconds float64) {
	m.ClassifierPredictions.WithLabelValues(tag, "relevant").Add(float64(relevant))
	m.ClassifierPredictions.WithLabelValues(tag, "irrelevant").Add(float64(irrelevant))
	m.ClassifierDuration.WithLabelValues(tag).Observe(durationSeconds)
}

// RecordClassifierFailure records a failed predict call.
func (m *Metrics) RecordClassifierFailure(tag string) {
	m.ClassifierFailures.WithLabelValues(tag).Inc()
}

// RecordBulkWrite records the per-record outcomes and duration of one bulk write.
func (m *Metrics) RecordBulkWrite(upserted, tagAdded, alreadyTagged, failed int, durationSeconds float64) {
	m.BulkWriteOutcomes.WithLabelValues(OutcomeUpserted).Add(float64(upserted))
	m.BulkWriteOutcomes.WithLabelValues(OutcomeTagAdded).Add(float64(tagAdded))
	m.BulkWriteOutcomes.WithLabelValues(OutcomeAlreadyTagged).Add(float64(alreadyTagged))
	m.BulkWriteOutcomes.WithLabelValues(OutcomeFailed).Add(float64(failed))
	m.BulkWriteDuration.Observe(durationSeconds)
}

// RecordEventPublished records a published audit event.
func (m *Metrics) RecordEventPublished() {
	m.EventsPublished.Inc()
}

// RecordEventPublishFailed records an audit event that failed to publish.
func (m *Metrics) RecordEventPublishFailed() {
	m.EventsFailed.Inc()
}
