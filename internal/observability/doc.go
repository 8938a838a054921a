// Package observability provides logging and metrics for the literature
// mining service.
//
// # Overview
//
// The observability package provides:
//
//   - Structured logging with zerolog
//   - Prometheus metrics for scrapes, classification, and bulk writes
//
// # Logging
//
// Create a logger from configuration:
//
//	cfg := observability.LoggingConfig{
//	    Level:     "info",
//	    Format:    "json",
//	    Output:    "stdout",
//	    AddSource: true,
//	}
//
//	logger := observability.NewLogger(cfg)
//	logger.Info().Str("session_id", sessionID).Msg("scrape started")
//
// Add session context to a logger:
//
//	logger = observability.WithSessionContext(logger, sessionID, keyword)
//
// # Metrics
//
// Initialize metrics:
//
//	metrics := observability.NewMetrics("literature_mining")
//
// Record metrics:
//
//	metrics.RecordScrapeStarted("springer")
//	metrics.RecordArticleUnreadable("pubmed")
//
// # Standard Fields
//
// Common fields used across the service:
//
//   - correlation_id: HTTP request identifier
//   - session_id: Scraping session identifier
//   - source: Bibliographic source (springer, elsevier, pubmed, s2orc)
//   - keyword: Search keyword
//   - tag: Classifier tag
//
// # Thread Safety
//
// All components are safe for concurrent use from multiple goroutines.
package observability
