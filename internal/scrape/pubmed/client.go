package pubmed

import (
	"context"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/foodmine/literature-mining-service/internal/domain"
	"github.com/foodmine/literature-mining-service/internal/scrape"
)

const (
	// DefaultBaseURL is the base URL for NCBI E-utilities API.
	DefaultBaseURL = "https://eutils.ncbi.nlm.nih.gov/entrez/eutils"

	// DefaultRateLimit is the rate limit without an API key (3 requests/second).
	// With an API key, the limit increases to 10 requests/second.
	DefaultRateLimit = 3.0

	// DefaultBurstSize is the default burst size for rate limiting.
	DefaultBurstSize = 3

	// DefaultTimeout is the default request timeout.
	DefaultTimeout = 30 * time.Second

	// DefaultPageSize is the number of records fetched per page.
	DefaultPageSize = 10000

	// MaxPageSize is the maximum retmax the API allows per request.
	MaxPageSize = 10000

	// sourceName is the human-readable name for this source.
	sourceName = "PubMed"
)

// Config holds the configuration for the PubMed client.
type Config struct {
	// BaseURL is the base URL for the E-utilities API.
	// Defaults to DefaultBaseURL if empty.
	BaseURL string

	// APIKey is the NCBI API key for higher rate limits.
	// Optional but recommended for production use.
	APIKey string

	// Timeout is the request timeout.
	// Defaults to DefaultTimeout if zero.
	Timeout time.Duration

	// RateLimit is the maximum requests per second.
	// Defaults to DefaultRateLimit (3 req/sec) if zero.
	// With an API key, you can increase this to 10 req/sec.
	RateLimit float64

	// BurstSize is the maximum burst of requests allowed.
	// Defaults to DefaultBurstSize if zero.
	BurstSize int

	// PageSize is how many records to fetch per page.
	// Defaults to DefaultPageSize, capped at MaxPageSize.
	PageSize int

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
	if c.PageSize == 0 || c.PageSize > MaxPageSize {
		c.PageSize = DefaultPageSize
	}
}

// Client implements the scrape.Source interface for PubMed.
type Client struct {
	config     Config
	httpClient *scrape.HTTPClient
}

// Compile-time check that Client implements Source.
var _ scrape.Source = (*Client)(nil)

// New creates a new PubMed client with the given configuration.
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

// NewWithHTTPClient creates a new PubMed client with a custom HTTP client.
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
	return domain.SourceTypePubMed
}

// Name returns the human-readable name for this source.
func (c *Client) Name() string {
	return sourceName
}

// IsEnabled returns whether the source is enabled. PubMed works without an
// API key, only slower.
func (c *Client) IsEnabled() bool {
	return c.config.Enabled
}

// Scrape pages through the term's matches by record offset. Each page is an
// esearch posting the query to the history server followed by an efetch of
// that offset window. Either half failing after retries forfeits the page;
// the offset advances regardless.
func (c *Client) Scrape(ctx context.Context, params scrape.ScrapeParams, emit scrape.EmitFunc) (*scrape.ScrapeStats, error) {
	stats := &scrape.ScrapeStats{}
	if !c.IsEnabled() {
		return stats, fmt.Errorf("pubmed: %w", domain.ErrSourceDisabled)
	}

	startTime := time.Now()
	defer func() { stats.Duration = time.Since(startTime) }()

	retmax := c.config.PageSize
	total := retmax

	for offset := 0; offset < total; offset += retmax {
		if err := ctx.Err(); err != nil {
			return stats, err
		}

		search, err := c.esearch(ctx, params.Keyword, offset, retmax)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return stats, err
			}
			stats.PagesFailed++
			continue
		}

		stats.Total = search.Count
		total = search.Count
		if params.MaxResults > 0 && params.MaxResults < total {
			total = params.MaxResults
		}

		if search.Count == 0 || search.WebEnv == "" {
			break
		}

		set, err := c.efetch(ctx, search.WebEnv, search.QueryKey, offset, retmax)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return stats, err
			}
			stats.PagesFailed++
			continue
		}

		for _, entry := range set.Articles {
			if err := emit(ctx, articleToArticle(entry)); err != nil {
				return stats, err
			}
			stats.Scanned++
		}
	}

	return stats, nil
}

// esearch posts the query to the history server and returns the match
// bookkeeping for one offset window.
func (c *Client) esearch(ctx context.Context, term string, offset, retmax int) (*ESearchResult, error) {
	u, err := url.Parse(c.config.BaseURL + "/esearch.fcgi")
	if err != nil {
		return nil, fmt.Errorf("invalid base URL: %w", err)
	}

	q := u.Query()
	q.Set("db", "pubmed")
	q.Set("term", term)
	q.Set("retmode", "xml")
	q.Set("usehistory", "y")
	q.Set("retstart", strconv.Itoa(offset))
	q.Set("retmax", strconv.Itoa(retmax))
	if c.config.APIKey != "" {
		q.Set("api_key", c.config.APIKey)
	}
	u.RawQuery = q.Encode()

	var result ESearchResult
	if err := c.getXML(ctx, u.String(), &result); err != nil {
		return nil, fmt.Errorf("esearch failed: %w", err)
	}
	return &result, nil
}

// efetch retrieves one offset window of article metadata from the history
// server.
func (c *Client) efetch(ctx context.Context, webEnv, queryKey string, offset, retmax int) (*PubmedArticleSet, error) {
	u, err := url.Parse(c.config.BaseURL + "/efetch.fcgi")
	if err != nil {
		return nil, fmt.Errorf("invalid base URL: %w", err)
	}

	q := u.Query()
	q.Set("db", "pubmed")
	q.Set("WebEnv", webEnv)
	q.Set("query_key", queryKey)
	q.Set("retstart", strconv.Itoa(offset))
	q.Set("retmax", strconv.Itoa(retmax))
	q.Set("retmode", "xml")
	if c.config.APIKey != "" {
		q.Set("api_key", c.config.APIKey)
	}
	u.RawQuery = q.Encode()

	var result PubmedArticleSet
	if err := c.getXML(ctx, u.String(), &result); err != nil {
		return nil, fmt.Errorf("efetch failed: %w", err)
	}
	return &result, nil
}

// getXML executes a GET request and unmarshals the XML response into v.
func (c *Client) getXML(ctx context.Context, reqURL string, v interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 10<<20))
		return domain.NewExternalAPIError(sourceName, resp.StatusCode, string(body), nil)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 10<<20))
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}

	if err := xml.Unmarshal(body, v); err != nil {
		return fmt.Errorf("failed to parse XML response: %w", err)
	}
	return nil
}

// articleToArticle maps one efetch entry onto the domain model.
func articleToArticle(entry PubmedArticle) *domain.Article {
	citation := entry.MedlineCitation
	pubDate, year := extractDate(citation.Article)

	return &domain.Article{
		Identity: domain.Identity{
			DOI: extractDOI(citation.Article, entry.PubmedData),
			UID: citation.PMID.Value,
			PMC: extractPMC(entry.PubmedData),
		},
		Title:           stripHTML(citation.Article.ArticleTitle),
		Abstract:        extractAbstract(citation.Article.Abstract),
		Creators:        extractAuthors(citation.Article.AuthorList),
		PublicationName: stripHTML(citation.Article.Journal.Title),
		ISSN:            findISSN(citation.Article.Journal.ISSNs, "Print"),
		EISSN:           findISSN(citation.Article.Journal.ISSNs, "Electronic"),
		PublicationDate: pubDate,
		Year:            year,
		Database:        domain.SourceTypePubMed,
	}
}

// extractDOI extracts the DOI from article metadata.
// It checks ELocationID first, then ArticleIdList.
func extractDOI(article Article, pubmedData PubmedData) string {
	for _, eloc := range article.ELocationID {
		if eloc.EIdType == "doi" && (eloc.Valid == "" || eloc.Valid == "Y") {
			return eloc.Value
		}
	}
	for _, aid := range pubmedData.ArticleIdList.ArticleIds {
		if aid.IdType == "doi" {
			return aid.Value
		}
	}
	return ""
}

// extractPMC extracts the PubMed Central identifier when present.
func extractPMC(pubmedData PubmedData) string {
	for _, aid := range pubmedData.ArticleIdList.ArticleIds {
		if aid.IdType == "pmc" {
			return aid.Value
		}
	}
	return ""
}

// extractAbstract concatenates the abstract sections, stripping any markup
// PubMed left inside the text.
func extractAbstract(abstract *Abstract) string {
	if abstract == nil || len(abstract.AbstractTexts) == 0 {
		return ""
	}

	parts := make([]string, 0, len(abstract.AbstractTexts))
	for _, at := range abstract.AbstractTexts {
		text := stripHTML(at.Value)
		if text == "" {
			continue
		}
		if at.Label != "" {
			parts = append(parts, at.Label+": "+text)
		} else {
			parts = append(parts, text)
		}
	}
	return strings.Join(parts, " ")
}

// extractAuthors formats authors as "LastName, ForeName".
func extractAuthors(authorList *AuthorList) []string {
	if authorList == nil || len(authorList.Authors) == 0 {
		return nil
	}

	authors := make([]string, 0, len(authorList.Authors))
	for _, a := range authorList.Authors {
		if a.ValidYN == "N" {
			continue
		}
		if a.CollectiveName != "" {
			authors = append(authors, a.CollectiveName)
			continue
		}
		if a.LastName == "" && a.ForeName == "" {
			continue
		}
		authors = append(authors, a.LastName+", "+a.ForeName)
	}
	return authors
}

// extractDate prefers ArticleDate over the journal issue PubDate.
func extractDate(article Article) (*time.Time, int) {
	for _, ad := range article.ArticleDate {
		if t := parseDate(ad.Year, ad.Month, ad.Day); t != nil {
			return t, t.Year()
		}
	}

	pubDate := article.Journal.JournalIssue.PubDate
	if pubDate.MedlineDate != "" {
		if year := yearFromMedlineDate(pubDate.MedlineDate); year > 0 {
			t := time.Date(year, time.January, 1, 0, 0, 0, 0, time.UTC)
			return &t, year
		}
	}
	if t := parseDate(pubDate.Year, pubDate.Month, pubDate.Day); t != nil {
		return t, t.Year()
	}
	return nil, 0
}

// parseDate parses year, month, day strings into a time.Time.
func parseDate(year, month, day string) *time.Time {
	if year == "" {
		return nil
	}
	y, err := strconv.Atoi(year)
	if err != nil {
		return nil
	}

	m := parseMonth(month)
	d := 1
	if day != "" {
		if parsed, err := strconv.Atoi(day); err == nil {
			d = parsed
		}
	}

	t := time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
	return &t
}

// monthNames maps lowercase month name strings to time.Month.
var monthNames = map[string]time.Month{
	"jan": time.January, "january": time.January,
	"feb": time.February, "february": time.February,
	"mar": time.March, "march": time.March,
	"apr": time.April, "april": time.April,
	"may": time.May,
	"jun": time.June, "june": time.June,
	"jul": time.July, "july": time.July,
	"aug": time.August, "august": time.August,
	"sep": time.September, "september": time.September,
	"oct": time.October, "october": time.October,
	"nov": time.November, "november": time.November,
	"dec": time.December, "december": time.December,
}

// parseMonth parses a month string (numeric or name) into time.Month.
func parseMonth(month string) time.Month {
	if month == "" {
		return time.January
	}
	if m, err := strconv.Atoi(month); err == nil && m >= 1 && m <= 12 {
		return time.Month(m)
	}
	if m, ok := monthNames[strings.ToLower(month)]; ok {
		return m
	}
	return time.January
}

// yearFromMedlineDate extracts the year from a MedlineDate string
// ("2020 Jan-Feb", "2020-2021", "2020 Spring").
func yearFromMedlineDate(medlineDate string) int {
	parts := strings.Fields(medlineDate)
	if len(parts) > 0 {
		yearStr := strings.Split(parts[0], "-")[0]
		if year, err := strconv.Atoi(yearStr); err == nil {
			return year
		}
	}
	return 0
}

// findISSN returns the ISSN of the given medium type.
func findISSN(issns []ISSN, issnType string) string {
	for _, issn := range issns {
		if issn.IssnType == issnType {
			return issn.Value
		}
	}
	return ""
}

// htmlTagRe matches residual markup tags inside PubMed text fields.
var htmlTagRe = regexp.MustCompile(`<[^>]*>`)

// stripHTML removes residual markup from a text field.
func stripHTML(s string) string {
	return strings.TrimSpace(htmlTagRe.ReplaceAllString(s, ""))
}
