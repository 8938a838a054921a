package springer

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
	// DefaultBaseURL is the base URL for the Springer Nature Meta API.
	DefaultBaseURL = "https://api.springernature.com"

	// DefaultRateLimit is the default rate limit (5 requests per second).
	DefaultRateLimit = 5.0

	// DefaultBurstSize is the default burst size for rate limiting.
	DefaultBurstSize = 5

	// DefaultTimeout is the default request timeout.
	DefaultTimeout = 30 * time.Second

	// DefaultPageSize is the page size for metadata queries.
	DefaultPageSize = 100

	// DefaultScanCap bounds the number of results scanned per session.
	DefaultScanCap = 5000

	// sourceName is the human-readable name for this source.
	sourceName = "Springer Nature"
)

// Config holds the configuration for the Springer client.
type Config struct {
	// BaseURL is the base URL for the Meta API.
	// Defaults to DefaultBaseURL if empty.
	BaseURL string

	// APIKey is the Springer Nature API key. Required.
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

	// PageSize is how many records to request per page.
	// Defaults to DefaultPageSize if zero.
	PageSize int

	// ScanCap bounds the number of results scanned in one session.
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
	if c.PageSize == 0 {
		c.PageSize = DefaultPageSize
	}
	if c.ScanCap == 0 {
		c.ScanCap = DefaultScanCap
	}
}

// Client implements the scrape.Source interface for Springer Nature.
type Client struct {
	config     Config
	httpClient *scrape.HTTPClient
}

// Compile-time check that Client implements Source.
var _ scrape.Source = (*Client)(nil)

// New creates a new Springer client with the given configuration.
func New(cfg Config) *Client {
	cfg.applyDefaults()

	httpCfg := scrape.HTTPClientConfig{
		Timeout:   cfg.Timeout,
		RateLimit: cfg.RateLimit,
		BurstSize: cfg.BurstSize,
	}

	return &Client{
		config:     cfg,
		httpClient: scrape.NewHTTPClient(httpCfg),
	}
}

// NewWithHTTPClient creates a new Springer client with a custom HTTP client.
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
	return domain.SourceTypeSpringer
}

// Name returns the human-readable name for this source.
func (c *Client) Name() string {
	return sourceName
}

// IsEnabled returns whether the source is enabled and has an API key.
func (c *Client) IsEnabled() bool {
	return c.config.Enabled && c.config.APIKey != ""
}

// Scrape pages through the Meta API results for the keyword and subject.
// The start index is 1-based and advances by the page size; the first
// successful page reports the total result count, which together with the
// scan cap bounds the loop. A page that fails after retries contributes
// nothing but the index still advances.
func (c *Client) Scrape(ctx context.Context, params scrape.ScrapeParams, emit scrape.EmitFunc) (*scrape.ScrapeStats, error) {
	stats := &scrape.ScrapeStats{}
	if !c.IsEnabled() {
		return stats, fmt.Errorf("springer: %w", domain.ErrSourceDisabled)
	}

	startTime := time.Now()
	defer func() { stats.Duration = time.Since(startTime) }()

	scanCap := c.config.ScanCap
	if params.MaxResults > 0 && params.MaxResults < scanCap {
		scanCap = params.MaxResults
	}

	total := scanCap
	sawFirstPage := false

	for start := 1; start <= total; start += c.config.PageSize {
		if err := ctx.Err(); err != nil {
			return stats, err
		}

		page, err := c.fetchPage(ctx, params, start)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return stats, err
			}
			stats.PagesFailed++
			continue
		}

		if !sawFirstPage && len(page.Result) > 0 {
			if reported, err := strconv.Atoi(strings.TrimSpace(page.Result[0].Total)); err == nil {
				stats.Total = reported
				if reported < total {
					total = reported
				}
			}
			sawFirstPage = true
		}

		for _, record := range page.Records {
			if err := emit(ctx, recordToArticle(record)); err != nil {
				return stats, err
			}
			stats.Scanned++
		}
	}

	return stats, nil
}

// fetchPage requests one page of results starting at the given index.
func (c *Client) fetchPage(ctx context.Context, params scrape.ScrapeParams, start int) (*Response, error) {
	u, err := url.Parse(c.config.BaseURL + "/meta/v2/json")
	if err != nil {
		return nil, fmt.Errorf("invalid base URL: %w", err)
	}

	q := u.Query()
	q.Set("q", buildQuery(params))
	q.Set("s", strconv.Itoa(start))
	q.Set("p", strconv.Itoa(c.config.PageSize))
	q.Set("api_key", c.config.APIKey)
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

	var page Response
	if err := json.NewDecoder(io.LimitReader(resp.Body, 10<<20)).Decode(&page); err != nil {
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}

	return &page, nil
}

// buildQuery assembles the constraint query. Journal articles only, with
// optional subject and keyword facets.
func buildQuery(params scrape.ScrapeParams) string {
	query := "type:Journal"
	if params.Subject != "" {
		query += fmt.Sprintf(" subject:%q", params.Subject)
	}
	if params.Keyword != "" {
		query += fmt.Sprintf(" keyword:%q", params.Keyword)
	}
	return query
}

// recordToArticle maps one API record onto the domain model.
func recordToArticle(record Record) *domain.Article {
	pubDate := parseDate(record.PublicationDate)
	year := 0
	if pubDate != nil {
		year = pubDate.Year()
	}

	return &domain.Article{
		Identity:        domain.Identity{DOI: record.DOI},
		Title:           record.Title,
		Abstract:        record.Abstract,
		URL:             pickURL(record.URLs),
		Creators:        creatorNames(record.Creators),
		PublicationName: record.PublicationName,
		ISSN:            record.ISSN,
		EISSN:           record.EISSN,
		PublicationDate: pubDate,
		Year:            year,
		Database:        domain.SourceTypeSpringer,
	}
}

// pickURL prefers the generic link (empty format) over format-specific ones.
func pickURL(urls []URL) string {
	if len(urls) == 0 {
		return ""
	}
	for _, u := range urls {
		if u.Format == "" {
			return u.Value
		}
	}
	return urls[0].Value
}

// creatorNames flattens the creator wrappers into a name list.
func creatorNames(creators []Creator) []string {
	if len(creators) == 0 {
		return nil
	}
	names := make([]string, 0, len(creators))
	for _, c := range creators {
		if c.Creator != "" {
			names = append(names, c.Creator)
		}
	}
	return names
}

// parseDate parses the API's YYYY-MM-DD publication date.
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
