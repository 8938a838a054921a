package classifier

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/foodmine/literature-mining-service/internal/domain"
	"github.com/foodmine/literature-mining-service/internal/scrape"
)

const (
	// DefaultTimeout is the default request timeout. Model inference on a
	// full batch can be slow, so it is generous.
	DefaultTimeout = 2 * time.Minute

	// DefaultRateLimit is the default rate limit (requests per second).
	DefaultRateLimit = 5.0

	// DefaultBurstSize is the default burst size for rate limiting.
	DefaultBurstSize = 5

	// DefaultMaxBatch is the maximum number of abstracts sent in a single
	// predict request. Larger batches are split transparently.
	DefaultMaxBatch = 1000
)

// Config holds configuration for a remote classifier endpoint.
type Config struct {
	// Tag is the tag this classifier decides membership for (required).
	Tag string

	// BaseURL is the base URL of the model server (required). The predict
	// endpoint is BaseURL + "/predict".
	BaseURL string

	// APIKey optionally authenticates requests via the Authorization header.
	APIKey string

	// Timeout is the request timeout.
	Timeout time.Duration

	// RateLimit is the maximum requests per second.
	RateLimit float64

	// BurstSize is the maximum burst of requests allowed.
	BurstSize int

	// MaxBatch caps the number of abstracts per predict request.
	MaxBatch int

	// Enabled indicates whether this classifier participates in sessions.
	Enabled bool
}

// applyDefaults sets default values for unset configuration fields.
func (c *Config) applyDefaults() {
	if c.Timeout == 0 {
		c.Timeout = DefaultTimeout
	}
	if c.RateLimit == 0 {
		c.RateLimit = DefaultRateLimit
	}
	if c.BurstSize == 0 {
		c.BurstSize = DefaultBurstSize
	}
	if c.MaxBatch == 0 {
		c.MaxBatch = DefaultMaxBatch
	}
}

// Remote is a Classifier backed by an HTTP model server exposing a JSON
// predict endpoint.
type Remote struct {
	config     Config
	httpClient *scrape.HTTPClient
}

// Ensure Remote implements the Classifier interface.
var _ Classifier = (*Remote)(nil)

// NewRemote creates a classifier client for the given endpoint.
func NewRemote(cfg Config) *Remote {
	cfg.applyDefaults()

	httpClient := scrape.NewHTTPClient(scrape.HTTPClientConfig{
		Timeout:      cfg.Timeout,
		RateLimit:    cfg.RateLimit,
		BurstSize:    cfg.BurstSize,
		APIKey:       cfg.APIKey,
		APIKeyHeader: "Authorization",
	})

	return &Remote{
		config:     cfg,
		httpClient: httpClient,
	}
}

// NewRemoteWithHTTPClient creates a classifier client with a custom HTTP
// client. This is useful for testing with mock servers.
func NewRemoteWithHTTPClient(cfg Config, httpClient *scrape.HTTPClient) *Remote {
	cfg.applyDefaults()

	return &Remote{
		config:     cfg,
		httpClient: httpClient,
	}
}

// Tag implements Classifier.
func (r *Remote) Tag() string {
	return r.config.Tag
}

// predictRequest is the wire format of one predict call.
type predictRequest struct {
	Abstracts []string `json:"abstracts"`
}

// predictResponse is the model server's answer. Labels are 0/1 per input.
type predictResponse struct {
	Labels []int `json:"labels"`
}

// Predict implements Classifier. Batches larger than MaxBatch are split
// into consecutive requests; the labels are concatenated in input order.
func (r *Remote) Predict(ctx context.Context, abstracts []string) ([]bool, error) {
	if len(abstracts) == 0 {
		return nil, nil
	}

	labels := make([]bool, 0, len(abstracts))
	for start := 0; start < len(abstracts); start += r.config.MaxBatch {
		end := start + r.config.MaxBatch
		if end > len(abstracts) {
			end = len(abstracts)
		}

		chunk, err := r.predictChunk(ctx, abstracts[start:end])
		if err != nil {
			return nil, err
		}
		labels = append(labels, chunk...)
	}

	return labels, nil
}

func (r *Remote) predictChunk(ctx context.Context, abstracts []string) ([]bool, error) {
	predictURL, err := r.buildPredictURL()
	if err != nil {
		return nil, fmt.Errorf("building predict URL: %w", err)
	}

	payload, err := json.Marshal(predictRequest{Abstracts: abstracts})
	if err != nil {
		return nil, fmt.Errorf("encoding predict request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, predictURL, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := r.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("executing request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
		return nil, domain.NewExternalAPIError(
			fmt.Sprintf("classifier[%s]", r.config.Tag),
			resp.StatusCode,
			string(body),
			nil,
		)
	}

	var predictResp predictResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, 10<<20)).Decode(&predictResp); err != nil {
		return nil, fmt.Errorf("decoding predict response: %w", err)
	}

	if len(predictResp.Labels) != len(abstracts) {
		return nil, fmt.Errorf("classifier %q returned %d labels for %d abstracts", r.config.Tag, len(predictResp.Labels), len(abstracts))
	}

	labels := make([]bool, len(predictResp.Labels))
	for i, l := range predictResp.Labels {
		labels[i] = l != 0
	}
	return labels, nil
}

func (r *Remote) buildPredictURL() (string, error) {
	base, err := url.Parse(r.config.BaseURL)
	if err != nil {
		return "", fmt.Errorf("parsing base URL: %w", err)
	}
	base.Path = strings.TrimRight(base.Path, "/") + "/predict"
	return base.String(), nil
}
