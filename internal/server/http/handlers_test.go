package httpserver

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/foodmine/literature-mining-service/internal/database"
	"github.com/foodmine/literature-mining-service/internal/domain"
	"github.com/foodmine/literature-mining-service/internal/repository"
	"github.com/foodmine/literature-mining-service/internal/store"
)

type stubHealth struct {
	status database.HealthStatus
}

func (s *stubHealth) Health(ctx context.Context) database.HealthStatus {
	return s.status
}

type stubRunner struct {
	mu     sync.Mutex
	config store.SessionConfig
	report *store.SessionReport
	err    error
}

func (s *stubRunner) Run(ctx context.Context, cfg store.SessionConfig) (*store.SessionReport, error) {
	s.mu.Lock()
	s.config = cfg
	s.mu.Unlock()
	if s.err != nil {
		return nil, s.err
	}
	if s.report != nil {
		return s.report, nil
	}
	return &store.SessionReport{SessionID: cfg.SessionID, Keyword: cfg.Keyword}, nil
}

func (s *stubRunner) lastConfig() store.SessionConfig {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.config
}

type stubArticleRepo struct {
	article    *domain.Article
	tagCounts  []repository.TagCount
	tagCount   int64
	retagCount int64
	processed  []processedAbstractRecord
	err        error
}

func (s *stubArticleRepo) UpsertWithTag(ctx context.Context, article *domain.Article, tag string) (repository.UpsertOutcome, error) {
	return repository.OutcomeUpserted, s.err
}

func (s *stubArticleRepo) BulkUpsertWithTag(ctx context.Context, articles []*domain.Article, tag string) (*repository.BulkResult, error) {
	return &repository.BulkResult{}, s.err
}

func (s *stubArticleRepo) GetByIdentity(ctx context.Context, field domain.IdentityField, value string) (*domain.Article, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.article, nil
}

func (s *stubArticleRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.Article, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.article, nil
}

func (s *stubArticleRepo) CountByTag(ctx context.Context) ([]repository.TagCount, error) {
	return s.tagCounts, s.err
}

func (s *stubArticleRepo) CountWithTag(ctx context.Context, tag string) (int64, error) {
	return s.tagCount, s.err
}

func (s *stubArticleRepo) StreamProcessedAbstracts(ctx context.Context, tag string, fn func(id uuid.UUID, processedAbstract string) error) error {
	if s.err != nil {
		return s.err
	}
	for _, record := range s.processed {
		if err := fn(record.ID, record.ProcessedAbstract); err != nil {
			return err
		}
	}
	return nil
}

func (s *stubArticleRepo) RetagArticles(ctx context.Context, fromTag, toTag string) (int64, error) {
	return s.retagCount, s.err
}

func newTestServer(runner ScrapeRunner, repo repository.ArticleRepository, health HealthChecker) *Server {
	if runner == nil {
		runner = &stubRunner{}
	}
	if repo == nil {
		repo = &stubArticleRepo{}
	}
	if health == nil {
		health = &stubHealth{status: database.HealthStatus{Status: "healthy"}}
	}
	return NewServer(Config{Address: "127.0.0.1:0"}, runner, repo, health, zerolog.Nop())
}

func doRequest(t *testing.T, server *Server, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	rec := httptest.NewRecorder()
	server.Router().ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder, dst any) {
	t.Helper()
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), dst))
}

func TestHealthEndpoints(t *testing.T) {
	t.Run("healthy", func(t *testing.T) {
		server := newTestServer(nil, nil, nil)

		rec := doRequest(t, server, http.MethodGet, "/healthz", nil)
		assert.Equal(t, http.StatusOK, rec.Code)

		rec = doRequest(t, server, http.MethodGet, "/readyz", nil)
		assert.Equal(t, http.StatusOK, rec.Code)
	})

	t.Run("unhealthy database", func(t *testing.T) {
		health := &stubHealth{status: database.HealthStatus{Status: "unhealthy", Error: "connection refused"}}
		server := newTestServer(nil, nil, health)

		rec := doRequest(t, server, http.MethodGet, "/healthz", nil)
		assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

		rec = doRequest(t, server, http.MethodGet, "/readyz", nil)
		assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	})
}

func TestStartScrape(t *testing.T) {
	t.Run("accepts a valid request and completes in background", func(t *testing.T) {
		runner := &stubRunner{}
		server := newTestServer(runner, nil, nil)

		rec := doRequest(t, server, http.MethodPost, "/api/v1/scrapes", map[string]any{
			"keyword":     "garlic",
			"subject":     "Food Science",
			"sources":     []string{"pubmed", "springer"},
			"max_results": 500,
			"save_all":    true,
		})
		require.Equal(t, http.StatusAccepted, rec.Code)

		var accepted map[string]string
		decodeBody(t, rec, &accepted)
		sessionID := accepted["session_id"]
		require.NotEmpty(t, sessionID)
		assert.Equal(t, sessionStatusRunning, accepted["status"])

		require.Eventually(t, func() bool {
			state, ok := server.sessions.get(sessionID)
			return ok && state.Status == sessionStatusCompleted
		}, time.Second, 5*time.Millisecond)

		cfg := runner.lastConfig()
		assert.Equal(t, sessionID, cfg.SessionID)
		assert.Equal(t, "garlic", cfg.Keyword)
		assert.Equal(t, "Food Science", cfg.Subject)
		assert.Equal(t, []domain.SourceType{domain.SourceTypePubMed, domain.SourceTypeSpringer}, cfg.Sources)
		assert.Equal(t, 500, cfg.MaxResults)
		assert.True(t, cfg.SaveAll)
	})

	t.Run("records background failure", func(t *testing.T) {
		runner := &stubRunner{err: errors.New("database down")}
		server := newTestServer(runner, nil, nil)

		rec := doRequest(t, server, http.MethodPost, "/api/v1/scrapes", map[string]any{"keyword": "garlic"})
		require.Equal(t, http.StatusAccepted, rec.Code)

		var accepted map[string]string
		decodeBody(t, rec, &accepted)

		require.Eventually(t, func() bool {
			state, ok := server.sessions.get(accepted["session_id"])
			return ok && state.Status == sessionStatusFailed && state.Error != ""
		}, time.Second, 5*time.Millisecond)
	})

	t.Run("rejects missing keyword", func(t *testing.T) {
		server := newTestServer(nil, nil, nil)
		rec := doRequest(t, server, http.MethodPost, "/api/v1/scrapes", map[string]any{"subject": "x"})
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("rejects unknown source", func(t *testing.T) {
		server := newTestServer(nil, nil, nil)
		rec := doRequest(t, server, http.MethodPost, "/api/v1/scrapes", map[string]any{
			"keyword": "garlic",
			"sources": []string{"scopus"},
		})
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("rejects malformed JSON", func(t *testing.T) {
		server := newTestServer(nil, nil, nil)
		req := httptest.NewRequest(http.MethodPost, "/api/v1/scrapes", bytes.NewReader([]byte("{not json")))
		rec := httptest.NewRecorder()
		server.Router().ServeHTTP(rec, req)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}

func TestGetScrapeSession(t *testing.T) {
	server := newTestServer(nil, nil, nil)

	rec := doRequest(t, server, http.MethodGet, "/api/v1/scrapes/nonexistent", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	server.sessions.start("session-1", "garlic")
	rec = doRequest(t, server, http.MethodGet, "/api/v1/scrapes/session-1", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var state sessionState
	decodeBody(t, rec, &state)
	assert.Equal(t, "session-1", state.SessionID)
	assert.Equal(t, sessionStatusRunning, state.Status)
}

func TestTagEndpoints(t *testing.T) {
	t.Run("lists tag counts", func(t *testing.T) {
		repo := &stubArticleRepo{tagCounts: []repository.TagCount{
			{Tag: "all", Count: 120},
			{Tag: "garlic", Count: 42},
		}}
		server := newTestServer(nil, repo, nil)

		rec := doRequest(t, server, http.MethodGet, "/api/v1/tags", nil)
		require.Equal(t, http.StatusOK, rec.Code)

		var resp tagCountsResponse
		decodeBody(t, rec, &resp)
		require.Len(t, resp.Tags, 2)
		assert.Equal(t, int64(42), resp.Tags[1].Count)
	})

	t.Run("counts one tag", func(t *testing.T) {
		server := newTestServer(nil, &stubArticleRepo{tagCount: 7}, nil)

		rec := doRequest(t, server, http.MethodGet, "/api/v1/tags/garlic", nil)
		require.Equal(t, http.StatusOK, rec.Code)

		var resp tagCountResponse
		decodeBody(t, rec, &resp)
		assert.Equal(t, "garlic", resp.Tag)
		assert.Equal(t, int64(7), resp.Count)
	})

	t.Run("retags articles", func(t *testing.T) {
		server := newTestServer(nil, &stubArticleRepo{retagCount: 9}, nil)

		rec := doRequest(t, server, http.MethodPost, "/api/v1/tags/retag", map[string]string{
			"from": "garlic", "to": "allium",
		})
		require.Equal(t, http.StatusOK, rec.Code)

		var resp retagResponse
		decodeBody(t, rec, &resp)
		assert.Equal(t, int64(9), resp.Modified)
	})

	t.Run("rejects retag onto the same tag", func(t *testing.T) {
		server := newTestServer(nil, &stubArticleRepo{}, nil)

		rec := doRequest(t, server, http.MethodPost, "/api/v1/tags/retag", map[string]string{
			"from": "garlic", "to": "garlic",
		})
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("exports processed abstracts as NDJSON", func(t *testing.T) {
		records := []processedAbstractRecord{
			{ID: uuid.New(), ProcessedAbstract: "garlic lowers blood pressure ."},
			{ID: uuid.New(), ProcessedAbstract: "allium compounds were reviewed ."},
		}
		server := newTestServer(nil, &stubArticleRepo{processed: records}, nil)

		rec := doRequest(t, server, http.MethodGet, "/api/v1/tags/garlic/abstracts", nil)
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "application/x-ndjson", rec.Header().Get("Content-Type"))

		lines := strings.Split(strings.TrimSpace(rec.Body.String()), "\n")
		require.Len(t, lines, 2)
		for i, line := range lines {
			var got processedAbstractRecord
			require.NoError(t, json.Unmarshal([]byte(line), &got))
			assert.Equal(t, records[i], got)
		}
	})

	t.Run("export failure before the first record is a server error", func(t *testing.T) {
		server := newTestServer(nil, &stubArticleRepo{err: errors.New("connection lost")}, nil)

		rec := doRequest(t, server, http.MethodGet, "/api/v1/tags/garlic/abstracts", nil)
		assert.Equal(t, http.StatusInternalServerError, rec.Code)
	})
}

func TestArticleEndpoints(t *testing.T) {
	stored := &domain.Article{
		ID:       uuid.New(),
		Identity: domain.Identity{DOI: "10.1234/stored"},
		Title:    "Stored article",
		Database: domain.SourceTypeSpringer,
		Tags:     []string{"garlic"},
	}

	t.Run("fetches by DOI", func(t *testing.T) {
		server := newTestServer(nil, &stubArticleRepo{article: stored}, nil)

		rec := doRequest(t, server, http.MethodGet, "/api/v1/articles?doi=10.1234/stored", nil)
		require.Equal(t, http.StatusOK, rec.Code)

		var resp articleResponse
		decodeBody(t, rec, &resp)
		assert.Equal(t, "10.1234/stored", resp.DOI)
		assert.Equal(t, "Stored article", resp.Title)
		assert.Equal(t, "springer", resp.Source)
	})

	t.Run("requires exactly one identity parameter", func(t *testing.T) {
		server := newTestServer(nil, &stubArticleRepo{article: stored}, nil)

		rec := doRequest(t, server, http.MethodGet, "/api/v1/articles", nil)
		assert.Equal(t, http.StatusBadRequest, rec.Code)

		rec = doRequest(t, server, http.MethodGet, "/api/v1/articles?doi=10.1/x&uid=12345", nil)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("maps not found", func(t *testing.T) {
		server := newTestServer(nil, &stubArticleRepo{err: domain.ErrNotFound}, nil)

		rec := doRequest(t, server, http.MethodGet, "/api/v1/articles?doi=10.1/missing", nil)
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})

	t.Run("fetches by ID", func(t *testing.T) {
		server := newTestServer(nil, &stubArticleRepo{article: stored}, nil)

		rec := doRequest(t, server, http.MethodGet, "/api/v1/articles/"+stored.ID.String(), nil)
		require.Equal(t, http.StatusOK, rec.Code)
	})

	t.Run("rejects malformed ID", func(t *testing.T) {
		server := newTestServer(nil, &stubArticleRepo{article: stored}, nil)

		rec := doRequest(t, server, http.MethodGet, "/api/v1/articles/not-a-uuid", nil)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}

func TestCorrelationIDHeader(t *testing.T) {
	server := newTestServer(nil, nil, nil)

	rec := doRequest(t, server, http.MethodGet, "/healthz", nil)
	assert.NotEmpty(t, rec.Header().Get("X-Correlation-ID"))

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.Header.Set("X-Correlation-ID", "abc-123")
	rec = httptest.NewRecorder()
	server.Router().ServeHTTP(rec, req)
	assert.Equal(t, "abc-123", rec.Header().Get("X-Correlation-ID"))
}
