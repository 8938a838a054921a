package elsevier

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/foodmine/literature-mining-service/internal/domain"
	"github.com/foodmine/literature-mining-service/internal/scrape"
)

const (
	// DefaultBaseURL is the base URL for the Elsevier APIs.
	DefaultBaseURL = "https://api.elsevier.com"

	// DefaultRateLimit is the default rate limit (5 requests per second).
	DefaultRateLimit = 5.0

	// DefaultBurstSize is the default burst size for rate limiting.
	DefaultBurstSize = 5

	// DefaultTimeout is the default request timeout.
	DefaultTimeout = 30 * time.Second

	// DefaultScanCap bounds the number of DOIs collected per session.
	DefaultScanCap = 5000

	// apiKeyHeader is the header Elsevier expects the API key in.
	apiKeyHeader = "X-ELS-APIKey"

	// sourceName is the human-readable name for this source.
	sourceName = "Elsevier"
)

// Config holds the configuration for the Elsevier client.
type Config struct {
	// BaseURL is the base URL for the ScienceDirect APIs.
	// Defaults to DefaultBaseURL if empty.
	BaseURL string

	// APIKey is the Elsevier API key. Required.
	APIKey string

	// Timeout is the request timeout.
	// Defaults to DefaultTimeout if zero.
	Timeout time.Duration

	// RateLimit is the maximum requests per second.
	// Defaults to DefaultRateLimit if zero.
	RateLimit float64

	// BurstSize is the maximum burst of requests allowed.
	// Defaults to DefaultBurstSize if zero.
	BurstSize int

	// ScanCap bounds the number of DOIs collected in one session.
	// Defaults to DefaultScanCap if zero.
	ScanCap int

	// Enabled indicates whether this source is enabled.
	Enabled bool
}

// applyDefaults applies default values to the config.
func (c *Config) applyDefaults() {
	if c.BaseURL == "" {
		c.BaseURL = DefaultBaseURL
	}
	if c.Timeout == 0 {
		c.Timeout = DefaultTimeout
	}
	if c.RateLimit == 0 {
		c.RateLimit = DefaultRateLimit
	}
	if c.BurstSize == 0 {
		c.BurstSize = DefaultBurstSize
	}
	if c.ScanCap == 0 {
		c.ScanCap = DefaultScanCap
	}
}

// Client implements the scrape.Source interface for Elsevier.
type Client struct {
	config     Config
	httpClient *scrape.HTTPClient
}

// Compile-time check that Client implements Source.
var _ scrape.Source = (*Client)(nil)

// New creates a new Elsevier client with the given configuration.
func New(cfg Config) *Client {
	cfg.applyDefaults()

	httpCfg := scrape.HTTPClientConfig{
		Timeout:      cfg.Timeout,
		RateLimit:    cfg.RateLimit,
		BurstSize:    cfg.BurstSize,
		APIKey:       cfg.APIKey,
		APIKeyHeader: apiKeyHeader,
	}

	return &Client{
		config:     cfg,
		httpClient: scrape.NewHTTPClient(httpCfg),
	}
}

// NewWithHTTPClient creates a new Elsevier client with a custom HTTP client.
// This is useful for testing with mock servers.
func NewWithHTTPClient(cfg Config, httpClient *scrape.HTTPClient) *Client {
	cfg.applyDefaults()
	return &Client{
		config:     cfg,
		httpClient: httpClient,
	}
}

// SourceType returns the source type identifier.
func (c *Client) SourceType() domain.SourceType {
	return domain.SourceTypeElsevier
}

// Name returns the human-readable name for this source.
func (c *Client) Name() string {
	return sourceName
}

// IsEnabled returns whether the source is enabled and has an API key.
func (c *Client) IsEnabled() bool {
	return c.config.Enabled && c.config.APIKey != ""
}

// Scrape first walks the search API's next links collecting DOIs up to the
// scan cap, then retrieves each DOI's metadata. A search page or retrieval
// that fails after retries contributes nothing; the pass continues with
// what it has.
func (c *Client) Scrape(ctx context.Context, params scrape.ScrapeParams, emit scrape.EmitFunc) (*scrape.ScrapeStats, error) {
	stats := &scrape.ScrapeStats{}
	if !c.IsEnabled() {
		return stats, fmt.Errorf("elsevier: %w", domain.ErrSourceDisabled)
	}

	startTime := time.Now()
	defer func() { stats.Duration = time.Since(startTime) }()

	dois, err := c.collectDOIs(ctx, params, stats)
	if err != nil {
		return stats, err
	}

	for _, doi := range dois {
		if err := ctx.Err(); err != nil {
			return stats, err
		}

		article, err := c.retrieve(ctx, doi)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return stats, err
			}
			var decodeErr *json.SyntaxError
			if errors.As(err, &decodeErr) {
				stats.Unreadable++
			} else {
				stats.PagesFailed++
			}
			continue
		}

		if err := emit(ctx, article); err != nil {
			return stats, err
		}
		stats.Scanned++
	}

	return stats, nil
}

// collectDOIs walks the search pagination and returns DOIs up to the cap.
func (c *Client) collectDOIs(ctx context.Context, params scrape.ScrapeParams, stats *scrape.ScrapeStats) ([]string, error) {
	scanCap := c.config.ScanCap
	if params.MaxResults > 0 && params.MaxResults < scanCap {
		scanCap = params.MaxResults
	}

	u, err := url.Parse(c.config.BaseURL + "/content/search/sciencedirect")
	if err != nil {
		return nil, fmt.Errorf("invalid base URL: %w", err)
	}
	q := u.Query()
	q.Set("query", params.Keyword)
	q.Set("httpAccept", "application/json")
	u.RawQuery = q.Encode()

	pageURL := u.String()
	dois := make([]string, 0, scanCap)

	for pageURL != "" && len(dois) < scanCap {
		if err := ctx.Err(); err != nil {
			return dois, err
		}

		page, err := c.fetchSearchPage(ctx, pageURL)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return dois, err
			}
			// Without the page there is no next link either; the search
			// phase ends with the DOIs collected so far.
			stats.PagesFailed++
			break
		}

		if stats.Total == 0 {
			if reported, err := strconv.Atoi(strings.TrimSpace(page.Results.TotalResults)); err == nil {
				stats.Total = reported
			}
		}

		for _, entry := range page.Results.Entries {
			if entry.DOI == "" {
				continue
			}
			dois = append(dois, entry.DOI)
			if len(dois) >= scanCap {
				break
			}
		}

		pageURL = nextLink(page.Results.Links)
	}

	return dois, nil
}

// fetchSearchPage requests one page of search results.
func (c *Client) fetchSearchPage(ctx context.Context, pageURL string) (*SearchResponse, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 10<<20))
		return nil, domain.NewExternalAPIError(sourceName, resp.StatusCode, string(body), nil)
	}

	var page SearchResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, 10<<20)).Decode(&page); err != nil {
		return nil, fmt.Errorf("failed to parse search response: %w", err)
	}

	return &page, nil
}

// retrieve fetches one article's metadata by DOI.
func (c *Client) retrieve(ctx context.Context, doi string) (*domain.Article, error) {
	u, err := url.Parse(c.config.BaseURL + "/content/article/doi/" + doi)
	if err != nil {
		return nil, fmt.Errorf("invalid article URL: %w", err)
	}
	q := u.Query()
	q.Set("httpAccept", "application/json")
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 10<<20))
		return nil, domain.NewExternalAPIError(sourceName, resp.StatusCode, string(body), nil)
	}

	var retrieval RetrievalResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, 10<<20)).Decode(&retrieval); err != nil {
		return nil, fmt.Errorf("failed to parse retrieval response: %w", err)
	}

	return coreDataToArticle(doi, retrieval.FullTextRetrievalResponse.CoreData), nil
}

// nextLink finds the "next" paging link; empty when on the last page.
func nextLink(links []Link) string {
	for _, link := range links {
		if link.Ref == "next" {
			return link.Href
		}
	}
	return ""
}

// coreDataToArticle maps retrieved core data onto the domain model.
// The DOI from the search phase wins over the retrieval payload's.
func coreDataToArticle(doi string, data CoreData) *domain.Article {
	if doi == "" {
		doi = data.DOI
	}
	pubDate := parseDate(data.CoverDate)
	year := 0
	if pubDate != nil {
		year = pubDate.Year()
	}

	return &domain.Article{
		Identity:        domain.Identity{DOI: doi},
		Title:           data.Title,
		Abstract:        data.Description,
		URL:             data.URL,
		Creators:        creatorNames(data.Creators),
		PublicationName: data.PublicationName,
		ISSN:            data.ISSN,
		PublicationDate: pubDate,
		Year:            year,
		Database:        domain.SourceTypeElsevier,
	}
}

// creatorNames flattens the creator wrappers into a name list.
func creatorNames(creators []Creator) []string {
	if len(creators) == 0 {
		return nil
	}
	names := make([]string, 0, len(creators))
	for _, c := range creators {
		if c.Name != "" {
			names = append(names, c.Name)
		}
	}
	return names
}

// parseDate parses the API's YYYY-MM-DD cover date.
func parseDate(date string) *time.Time {
	if date == "" {
		return nil
	}
	t, err := time.Parse("2006-01-02", date)
	if err != nil {
		return nil
	}
	return &t
}
