// Package classifier defines the relevance-classification port consumed by
// the store coordinator, together with a metrics-tracking wrapper and an
// HTTP-backed implementation that talks to a served model process.
package classifier

import (
	"context"
	"sync"

	"github.com/rs/zerolog"
)

// Classifier labels a batch of processed abstracts as relevant or not for
// its tag. Implementations must be safe for concurrent use.
type Classifier interface {
	// Tag returns the tag this classifier decides membership for.
	Tag() string

	// Predict returns one label per input, in input order. A non-nil
	// error means no labels were produced for the batch.
	Predict(ctx context.Context, abstracts []string) ([]bool, error)
}

// Metrics is a snapshot of one classifier's running counters. Relevant
// counts only papers the store actually accepted as new for the tag, so a
// paper re-encountered across sessions shows up under AlreadyTagged rather
// than inflating Relevant.
type Metrics struct {
	Total         int64
	Relevant      int64
	Irrelevant    int64
	AlreadyTagged int64
}

// Tracked wraps a Classifier and accumulates session counters across
// batches. Predictions feed Total and Irrelevant; the caller reports store
// outcomes through RecordStored. It is safe for concurrent use.
type Tracked struct {
	inner Classifier

	mu      sync.Mutex
	metrics Metrics
}

// NewTracked wraps inner with counter tracking.
func NewTracked(inner Classifier) *Tracked {
	return &Tracked{inner: inner}
}

// Tag returns the wrapped classifier's tag.
func (t *Tracked) Tag() string {
	return t.inner.Tag()
}

// Predict delegates to the wrapped classifier and, on success, adds the
// batch's labels to Total and Irrelevant. Positive labels stay uncounted
// until the store reports what it did with them.
func (t *Tracked) Predict(ctx context.Context, abstracts []string) ([]bool, error) {
	labels, err := t.inner.Predict(ctx, abstracts)
	if err != nil {
		return nil, err
	}

	t.mu.Lock()
	for _, relevant := range labels {
		t.metrics.Total++
		if !relevant {
			t.metrics.Irrelevant++
		}
	}
	t.mu.Unlock()

	return labels, nil
}

// RecordStored adds the store's verdict on a batch of positively labeled
// papers: relevant is the number newly written or newly tagged, alreadyTagged
// the number the tag had reached in an earlier session.
func (t *Tracked) RecordStored(relevant, alreadyTagged int64) {
	t.mu.Lock()
	t.metrics.Relevant += relevant
	t.metrics.AlreadyTagged += alreadyTagged
	t.mu.Unlock()
}

// Metrics returns a snapshot of the running counters.
func (t *Tracked) Metrics() Metrics {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.metrics
}

// Reset zeroes the running counters and returns the final snapshot.
func (t *Tracked) Reset() Metrics {
	t.mu.Lock()
	defer t.mu.Unlock()
	final := t.metrics
	t.metrics = Metrics{}
	return final
}

// LogSummary writes the current counters to the log. Called at the end of a
// scraping session, usually right before Reset.
func (t *Tracked) LogSummary(logger zerolog.Logger) {
	m := t.Metrics()
	logger.Info().
		Str("tag", t.Tag()).
		Int64("total", m.Total).
		Int64("relevant", m.Relevant).
		Int64("irrelevant", m.Irrelevant).
		Int64("already_tagged", m.AlreadyTagged).
		Msg("classifier session summary")
}
