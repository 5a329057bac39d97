package retrieval

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type stubLLM struct {
	reply string
	err   error
}

func (s *stubLLM) Generate(context.Context, string, string) (string, error) {
	return s.reply, s.err
}

func TestGoogleSearchClientParsesResults(t *testing.T) {
	var gotQuery, gotKey, gotCx string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		gotQuery = q.Get("q")
		gotKey = q.Get("key")
		gotCx = q.Get("cx")
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"items":[
			{"title":"Go docs","link":"https://go.dev","snippet":"The Go programming language"},
			{"title":"Go blog","link":"https://go.dev/blog","snippet":"News"}
		]}`))
	}))
	defer srv.Close()

	c := &GoogleSearchClient{
		HTTPClient:     srv.Client(),
		BaseURL:        srv.URL,
		APIKey:         "test-key",
		SearchEngineID: "test-cx",
	}
	results, err := c.Search(context.Background(), "golang generics", 5)
	require.NoError(t, err)

	assert.Equal(t, "golang generics", gotQuery)
	assert.Equal(t, "test-key", gotKey)
	assert.Equal(t, "test-cx", gotCx)
	require.Len(t, results, 2)
	assert.Equal(t, "Go docs", results[0].Title)
	assert.Equal(t, "https://go.dev", results[0].Link)
}

func TestGoogleSearchClientRequiresCredentials(t *testing.T) {
	c := &GoogleSearchClient{}
	_, err := c.Search(context.Background(), "anything", 5)
	assert.Error(t, err)
}

func TestGoogleSearchClientErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer srv.Close()

	c := &GoogleSearchClient{HTTPClient: srv.Client(), BaseURL: srv.URL, APIKey: "k", SearchEngineID: "cx"}
	_, err := c.Search(context.Background(), "q", 5)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "403")
}

func TestWebSearcherEnhancesQuery(t *testing.T) {
	var gotQuery string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.Query().Get("q")
		_, _ = w.Write([]byte(`{"items":[{"title":"t","link":"l","snippet":"s"}]}`))
	}))
	defer srv.Close()

	client := &GoogleSearchClient{HTTPClient: srv.Client(), BaseURL: srv.URL, APIKey: "k", SearchEngineID: "cx"}
	ws := NewWebSearcher(client, &stubLLM{reply: `"golang context cancellation"`}, zap.NewNop().Sugar())

	info := ws.Search(context.Background(), "how does context cancellation work in go?")
	require.NotNil(t, info)
	assert.Equal(t, "how does context cancellation work in go?", info.Original)
	assert.Equal(t, "golang context cancellation", info.Enhanced)
	assert.Equal(t, "golang context cancellation", gotQuery)
	assert.Len(t, info.Results, 1)
}

func TestWebSearcherFallsBackToOriginalQuery(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"items":[]}`))
	}))
	defer srv.Close()

	client := &GoogleSearchClient{HTTPClient: srv.Client(), BaseURL: srv.URL, APIKey: "k", SearchEngineID: "cx"}
	ws := NewWebSearcher(client, &stubLLM{err: errors.New("llm down")}, zap.NewNop().Sugar())

	info := ws.Search(context.Background(), "original question")
	require.NotNil(t, info)
	assert.Equal(t, "original question", info.Enhanced)
}

func TestWebSearcherNilOnSearchFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	client := &GoogleSearchClient{HTTPClient: srv.Client(), BaseURL: srv.URL, APIKey: "k", SearchEngineID: "cx"}
	ws := NewWebSearcher(client, &stubLLM{reply: "q"}, zap.NewNop().Sugar())

	assert.Nil(t, ws.Search(context.Background(), "anything"))
}
