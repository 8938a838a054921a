package classifier

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/foodmine/literature-mining-service/internal/domain"
	"github.com/foodmine/literature-mining-service/internal/scrape"
)

func newTestClient() *scrape.HTTPClient {
	return scrape.NewHTTPClient(scrape.HTTPClientConfig{
		RateLimit:  1000,
		BurstSize:  1000,
		MaxRetries: 1,
	})
}

func TestRemote_Predict(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/predict", r.URL.Path)

		var req predictRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))

		// Mark abstracts mentioning garlic as relevant.
		labels := make([]int, len(req.Abstracts))
		for i, a := range req.Abstracts {
			if a == "garlic" {
				labels[i] = 1
			}
		}
		json.NewEncoder(w).Encode(predictResponse{Labels: labels})
	}))
	defer server.Close()

	c := NewRemoteWithHTTPClient(Config{Tag: "garlic", BaseURL: server.URL}, newTestClient())

	labels, err := c.Predict(context.Background(), []string{"garlic", "steel", "garlic"})
	require.NoError(t, err)
	assert.Equal(t, []bool{true, false, true}, labels)
	assert.Equal(t, "garlic", c.Tag())
}

func TestRemote_PredictEmptyBatch(t *testing.T) {
	c := NewRemote(Config{Tag: "garlic", BaseURL: "http://localhost:0"})

	labels, err := c.Predict(context.Background(), nil)
	require.NoError(t, err)
	assert.Nil(t, labels)
}

func TestRemote_PredictSplitsLargeBatches(t *testing.T) {
	var requests int
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests++
		var req predictRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		require.LessOrEqual(t, len(req.Abstracts), 2)
		json.NewEncoder(w).Encode(predictResponse{Labels: make([]int, len(req.Abstracts))})
	}))
	defer server.Close()

	c := NewRemoteWithHTTPClient(Config{Tag: "garlic", BaseURL: server.URL, MaxBatch: 2}, newTestClient())

	labels, err := c.Predict(context.Background(), []string{"a", "b", "c", "d", "e"})
	require.NoError(t, err)
	assert.Len(t, labels, 5)
	assert.Equal(t, 3, requests)
}

func TestRemote_PredictServerError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "model not loaded", http.StatusBadRequest)
	}))
	defer server.Close()

	c := NewRemoteWithHTTPClient(Config{Tag: "garlic", BaseURL: server.URL}, newTestClient())

	_, err := c.Predict(context.Background(), []string{"a"})
	require.Error(t, err)

	var apiErr *domain.ExternalAPIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusBadRequest, apiErr.StatusCode)
}

func TestRemote_PredictLabelCountMismatch(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(predictResponse{Labels: []int{1}})
	}))
	defer server.Close()

	c := NewRemoteWithHTTPClient(Config{Tag: "garlic", BaseURL: server.URL}, newTestClient())

	_, err := c.Predict(context.Background(), []string{"a", "b"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "1 labels for 2 abstracts")
}

// stubClassifier returns canned labels for counter tests.
type stubClassifier struct {
	tag    string
	labels []bool
	err    error
}

func (s *stubClassifier) Tag() string { return s.tag }

func (s *stubClassifier) Predict(_ context.Context, abstracts []string) ([]bool, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.labels[:len(abstracts)], nil
}

func TestTracked_Counters(t *testing.T) {
	stub := &stubClassifier{tag: "garlic", labels: []bool{true, false, true, false, false}}
	tracked := NewTracked(stub)

	_, err := tracked.Predict(context.Background(), []string{"a", "b", "c"})
	require.NoError(t, err)
	_, err = tracked.Predict(context.Background(), []string{"a", "b"})
	require.NoError(t, err)

	// Positive labels are not counted as relevant until the store reports
	// them; only totals and negatives come from predictions.
	assert.Equal(t, Metrics{Total: 5, Irrelevant: 2}, tracked.Metrics())

	tracked.RecordStored(2, 1)

	m := tracked.Metrics()
	assert.Equal(t, Metrics{Total: 5, Relevant: 2, Irrelevant: 2, AlreadyTagged: 1}, m)

	final := tracked.Reset()
	assert.Equal(t, m, final)
	assert.Equal(t, Metrics{}, tracked.Metrics())
}

func TestTracked_ErrorDoesNotCount(t *testing.T) {
	stub := &stubClassifier{tag: "garlic", err: errors.New("model down")}
	tracked := NewTracked(stub)

	_, err := tracked.Predict(context.Background(), []string{"a"})
	require.Error(t, err)
	assert.Equal(t, Metrics{}, tracked.Metrics())
}
