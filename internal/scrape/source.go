package scrape

import (
	"context"
	"time"

	"github.com/foodmine/literature-mining-service/internal/domain"
)

// ScrapeParams defines the parameters for a scraping session against one or
// more bibliographic sources. All fields except Keyword are optional; each
// adapter uses the subset it understands.
type ScrapeParams struct {
	// Keyword is the search term (required for API-backed sources).
	// The exact query syntax is source-specific; adapters build their own
	// query strings from it.
	Keyword string

	// Subject narrows the search to a subject area where the source
	// supports it (Springer's subject facet).
	Subject string

	// MaxResults caps the number of records scanned in this session.
	// A value of 0 applies the source's own ceiling.
	MaxResults int

	// CorpusPath points at a local corpus file for file-backed sources
	// (the S2ORC JSONL dump). Ignored by API-backed sources.
	CorpusPath string
}

// ScrapeStats summarizes one adapter's pass over its source.
type ScrapeStats struct {
	// Total is the result count the source reported for the query,
	// before any caps. May be an estimate, and 0 for file-backed sources.
	Total int

	// Scanned is the number of records the adapter actually decoded
	// and emitted.
	Scanned int

	// Unreadable is the number of records the adapter saw but could not
	// decode into an article at all. Records that decode but later fail
	// normalization are counted downstream, not here.
	Unreadable int

	// PagesFailed is the number of pages that still failed after the
	// client's retries and were treated as empty.
	PagesFailed int

	// Duration is the wall-clock time of the whole pass.
	Duration time.Duration
}

// EmitFunc receives each article an adapter decodes, in source order.
// Returning a non-nil error aborts the scrape; adapters must propagate it.
type EmitFunc func(ctx context.Context, article *domain.Article) error

// Source is the interface every bibliographic source adapter implements.
// Adapters paginate (or stream) their source, map raw records into
// domain.Article with the raw abstract attached, and hand each one to emit.
//
// Implementations should:
//   - Respect context cancellation between pages and records
//   - Apply rate limiting through the shared HTTPClient
//   - Treat a page that still fails after the client's retries as empty
//     and advance their own cursor (never re-request the same page forever)
//   - Wrap errors with source context
type Source interface {
	// Scrape runs one full pass over the source for the given parameters.
	// It returns the pass statistics even when it returns an error, so
	// partial progress is visible to the caller.
	Scrape(ctx context.Context, params ScrapeParams, emit EmitFunc) (*ScrapeStats, error)

	// SourceType returns the type identifier for this source.
	SourceType() domain.SourceType

	// Name returns a human-readable name for logging and metrics.
	Name() string

	// IsEnabled reports whether this source is configured and usable.
	// A source may be disabled by configuration or a missing API key.
	IsEnabled() bool
}
