package retrieval

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/davidekete/ragdesk/internal/core"
	"github.com/davidekete/ragdesk/internal/models"
)

// GoogleSearchClient wraps the Google Custom Search JSON API. HTTPClient and
// BaseURL are injectable for tests.
type GoogleSearchClient struct {
	HTTPClient     *http.Client
	BaseURL        string
	APIKey         string
	SearchEngineID string
}

func (c *GoogleSearchClient) Search(ctx context.Context, query string, num int) ([]models.SearchResult, error) {
	if c.APIKey == "" || c.SearchEngineID == "" {
		return nil, fmt.Errorf("google custom search api key or engine id not configured")
	}

	baseURL := c.BaseURL
	if baseURL == "" {
		baseURL = "https://www.googleapis.com/customsearch/v1"
	}
	client := c.HTTPClient
	if client == nil {
		client = http.DefaultClient
	}
	if num <= 0 || num > 10 {
		num = 5
	}

	params := url.Values{}
	params.Set("key", c.APIKey)
	params.Set("cx", c.SearchEngineID)
	params.Set("q", query)
	params.Set("num", strconv.Itoa(num))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, baseURL+"?"+params.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("build search request: %w", err)
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("google search request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("google search API returned status %d", resp.StatusCode)
	}

	var parsed struct {
		Items []struct {
			Title   string `json:"title"`
			Link    string `json:"link"`
			Snippet string `json:"snippet"`
		} `json:"items"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("decode search response: %w", err)
	}

	out := make([]models.SearchResult, 0, len(parsed.Items))
	for _, it := range parsed.Items {
		out = append(out, models.SearchResult{Title: it.Title, Link: it.Link, Snippet: it.Snippet})
	}
	return out, nil
}

// WebSearcher runs an optional live web search for a chat turn, rewriting
// the question into a sharper search query first. Everything is best-effort:
// a failed enhancement falls back to the original phrasing and a failed
// search yields a nil SearchInfo.
type WebSearcher struct {
	client *GoogleSearchClient
	llm    core.LLMProvider
	log    *zap.SugaredLogger
}

func NewWebSearcher(client *GoogleSearchClient, llm core.LLMProvider, log *zap.SugaredLogger) *WebSearcher {
	return &WebSearcher{client: client, llm: llm, log: log}
}

func (w *WebSearcher) Search(ctx context.Context, question string) *models.SearchInfo {
	enhanced := w.enhanceQuery(ctx, question)

	results, err := w.client.Search(ctx, enhanced, 5)
	if err != nil {
		w.log.Warnw("web search failed", "error", err)
		return nil
	}
	return &models.SearchInfo{
		Original: question,
		Enhanced: enhanced,
		Results:  results,
	}
}

func (w *WebSearcher) enhanceQuery(ctx context.Context, question string) string {
	if w.llm == nil {
		return question
	}
	prompt := fmt.Sprintf(
		"Rewrite the following question as a concise web search query. Reply with the query only.\n\nQuestion: %s", question)
	rewritten, err := w.llm.Generate(ctx, "", prompt)
	if err != nil {
		w.log.Debugw("query enhancement failed, using original", "error", err)
		return question
	}
	rewritten = strings.TrimSpace(strings.Trim(strings.TrimSpace(rewritten), `"`))
	if rewritten == "" || len(rewritten) > 200 {
		return question
	}
	return rewritten
}
