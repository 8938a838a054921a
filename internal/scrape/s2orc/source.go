package s2orc

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/foodmine/literature-mining-service/internal/domain"
	"github.com/foodmine/literature-mining-service/internal/scrape"
)

const (
	// maxLineSize bounds a single metadata line. S2ORC lines stay well
	// below this; anything larger is corrupt.
	maxLineSize = 16 << 20

	// sourceName is the human-readable name for this source.
	sourceName = "S2ORC"
)

// Config holds the configuration for the S2ORC corpus source.
type Config struct {
	// CorpusPath is the default corpus location: a .jsonl file or a
	// directory of them. ScrapeParams.CorpusPath overrides it per session.
	CorpusPath string

	// Enabled indicates whether this source is enabled.
	Enabled bool
}

// Source implements the scrape.Source interface over local S2ORC dumps.
type Source struct {
	config Config
}

// Compile-time check that Source implements scrape.Source.
var _ scrape.Source = (*Source)(nil)

// New creates a new S2ORC corpus source.
func New(cfg Config) *Source {
	return &Source{config: cfg}
}

// SourceType returns the source type identifier.
func (s *Source) SourceType() domain.SourceType {
	return domain.SourceTypeS2ORC
}

// Name returns the human-readable name for this source.
func (s *Source) Name() string {
	return sourceName
}

// IsEnabled returns whether the source is enabled and has a corpus path.
func (s *Source) IsEnabled() bool {
	return s.config.Enabled && s.config.CorpusPath != ""
}

// Scrape streams the corpus line by line. Lines that do not decode are
// counted as unreadable and skipped; the keyword parameter is ignored
// because a dump is already topic-filtered at download time.
func (s *Source) Scrape(ctx context.Context, params scrape.ScrapeParams, emit scrape.EmitFunc) (*scrape.ScrapeStats, error) {
	stats := &scrape.ScrapeStats{}

	path := params.CorpusPath
	if path == "" {
		path = s.config.CorpusPath
	}
	if !s.config.Enabled && params.CorpusPath == "" {
		return stats, fmt.Errorf("s2orc: %w", domain.ErrSourceDisabled)
	}
	if path == "" {
		return stats, errors.New("s2orc corpus path is not set")
	}

	startTime := time.Now()
	defer func() { stats.Duration = time.Since(startTime) }()

	files, err := corpusFiles(path)
	if err != nil {
		return stats, err
	}

	for _, file := range files {
		if err := s.scanFile(ctx, file, params.MaxResults, stats, emit); err != nil {
			return stats, err
		}
		if params.MaxResults > 0 && stats.Scanned >= params.MaxResults {
			break
		}
	}

	return stats, nil
}

// corpusFiles resolves the corpus path into the list of .jsonl files to read.
func corpusFiles(path string) ([]string, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("corpus path unavailable: %w", err)
	}

	if !info.IsDir() {
		return []string{path}, nil
	}

	entries, err := os.ReadDir(path)
	if err != nil {
		return nil, fmt.Errorf("failed to list corpus directory: %w", err)
	}

	var files []string
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".jsonl") {
			continue
		}
		files = append(files, filepath.Join(path, entry.Name()))
	}
	sort.Strings(files)

	if len(files) == 0 {
		return nil, fmt.Errorf("no .jsonl files in corpus directory %s", path)
	}
	return files, nil
}

// scanFile streams one metadata file.
func (s *Source) scanFile(ctx context.Context, path string, maxResults int, stats *scrape.ScrapeStats, emit scrape.EmitFunc) error {
	file, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("failed to open corpus file: %w", err)
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 64<<10), maxLineSize)

	for scanner.Scan() {
		if err := ctx.Err(); err != nil {
			return err
		}
		if maxResults > 0 && stats.Scanned >= maxResults {
			return nil
		}

		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		var record Record
		if err := json.Unmarshal([]byte(line), &record); err != nil {
			stats.Unreadable++
			continue
		}

		if err := emit(ctx, recordToArticle(record)); err != nil {
			return err
		}
		stats.Scanned++
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("failed to read corpus file %s: %w", path, err)
	}
	return nil
}

// recordToArticle maps one corpus line onto the domain model. The ":::"
// paragraph separator S2ORC uses inside abstracts becomes a newline so
// sentence segmentation sees paragraph boundaries.
func recordToArticle(record Record) *domain.Article {
	return &domain.Article{
		Identity: domain.Identity{
			DOI:     record.DOI,
			UID:     record.PubmedID,
			PaperID: record.PaperID,
		},
		Title:           record.Title,
		Abstract:        strings.ReplaceAll(record.Abstract, "::: ", "\n"),
		URL:             record.S2URL,
		Creators:        authorNames(record.Authors),
		PublicationName: record.Journal,
		Year:            record.Year,
		Database:        domain.SourceTypeS2ORC,
	}
}

// authorNames flattens structured author names into display strings.
func authorNames(authors []Author) []string {
	if len(authors) == 0 {
		return nil
	}
	names := make([]string, 0, len(authors))
	for _, a := range authors {
		parts := make([]string, 0, 4)
		if a.First != "" {
			parts = append(parts, a.First)
		}
		if middle := strings.Join(a.Middle, " "); middle != "" {
			parts = append(parts, middle)
		}
		if a.Last != "" {
			parts = append(parts, a.Last)
		}
		if a.Suffix != "" {
			parts = append(parts, a.Suffix)
		}
		if len(parts) == 0 {
			continue
		}
		names = append(names, strings.Join(parts, " "))
	}
	return names
}
