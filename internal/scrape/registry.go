package scrape

import (
	"context"
	"sync"

	"github.com/foodmine/literature-mining-service/internal/domain"
)

// SourceOutcome holds the outcome of one source's pass in a fan-out scrape.
type SourceOutcome struct {
	// Source identifies which adapter produced this outcome.
	Source domain.SourceType

	// Stats contains the pass statistics. Non-nil even on error, with
	// whatever progress the adapter made before failing.
	Stats *ScrapeStats

	// Error contains the error if the pass failed.
	Error error
}

// Registry manages source adapters and coordinates concurrent scrapes.
// Registration and retrieval are thread-safe.
type Registry struct {
	mu      sync.RWMutex
	sources map[domain.SourceType]Source
}

// NewRegistry creates an empty source registry.
func NewRegistry() *Registry {
	return &Registry{
		sources: make(map[domain.SourceType]Source),
	}
}

// Register adds a source to the registry, replacing any existing source of
// the same type.
func (r *Registry) Register(source Source) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sources[source.SourceType()] = source
}

// Get returns a source by type, or nil if not registered.
func (r *Registry) Get(sourceType domain.SourceType) Source {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.sources[sourceType]
}

// AllSources returns a snapshot of all registered sources.
func (r *Registry) AllSources() []Source {
	r.mu.RLock()
	defer r.mu.RUnlock()

	sources := make([]Source, 0, len(r.sources))
	for _, source := range r.sources {
		sources = append(sources, source)
	}
	return sources
}

// EnabledSources returns a snapshot of the sources whose IsEnabled() is true.
func (r *Registry) EnabledSources() []Source {
	r.mu.RLock()
	defer r.mu.RUnlock()

	sources := make([]Source, 0, len(r.sources))
	for _, source := range r.sources {
		if source.IsEnabled() {
			sources = append(sources, source)
		}
	}
	return sources
}

// SinkFactory builds an independent emit target for one source's pass.
// Each source in a fan-out gets its own sink so their batch buffers and
// counters never interleave.
type SinkFactory func(source domain.SourceType) EmitFunc

// ScrapeAll runs all enabled sources concurrently and collects one outcome
// per source. Errors are not filtered; the caller decides how to handle
// partial failure. Context cancellation interrupts the in-flight passes.
func (r *Registry) ScrapeAll(ctx context.Context, params ScrapeParams, sinks SinkFactory) []SourceOutcome {
	return r.ScrapeSources(ctx, params, nil, sinks)
}

// ScrapeSources runs the named sources concurrently; a nil or empty
// sourceTypes means every enabled source. Unknown source types are skipped.
func (r *Registry) ScrapeSources(ctx context.Context, params ScrapeParams, sourceTypes []domain.SourceType, sinks SinkFactory) []SourceOutcome {
	var sources []Source

	if len(sourceTypes) == 0 {
		sources = r.EnabledSources()
	} else {
		r.mu.RLock()
		sources = make([]Source, 0, len(sourceTypes))
		for _, st := range sourceTypes {
			if source, ok := r.sources[st]; ok {
				sources = append(sources, source)
			}
		}
		r.mu.RUnlock()
	}

	if len(sources) == 0 {
		return nil
	}

	outcomeChan := make(chan SourceOutcome, len(sources))
	var wg sync.WaitGroup

	for _, source := range sources {
		wg.Add(1)
		go func(s Source) {
			defer wg.Done()

			stats, err := s.Scrape(ctx, params, sinks(s.SourceType()))
			outcomeChan <- SourceOutcome{
				Source: s.SourceType(),
				Stats:  stats,
				Error:  err,
			}
		}(source)
	}

	go func() {
		wg.Wait()
		close(outcomeChan)
	}()

	outcomes := make([]SourceOutcome, 0, len(sources))
	for outcome := range outcomeChan {
		outcomes = append(outcomes, outcome)
	}

	return outcomes
}
