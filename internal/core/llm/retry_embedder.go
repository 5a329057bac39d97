package llm

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"
	"google.golang.org/api/googleapi"

	"github.com/davidekete/ragdesk/internal/core"
)

// RetryEmbedder wraps an EmbeddingProvider with input truncation and bounded
// exponential backoff. After the last attempt it returns an error wrapping
// core.ErrEmbeddingFailed; the pipeline decides what that means for the
// document instead of this layer silently substituting zero vectors.
type RetryEmbedder struct {
	inner     core.EmbeddingProvider
	attempts  int
	baseDelay time.Duration
	maxChars  int
	log       *zap.SugaredLogger
}

var _ core.EmbeddingProvider = (*RetryEmbedder)(nil)

func NewRetryEmbedder(inner core.EmbeddingProvider, attempts, maxChars int, log *zap.SugaredLogger) *RetryEmbedder {
	if attempts <= 0 {
		attempts = 3
	}
	if maxChars <= 0 {
		maxChars = 8000
	}
	return &RetryEmbedder{
		inner:     inner,
		attempts:  attempts,
		baseDelay: time.Second,
		maxChars:  maxChars,
		log:       log,
	}
}

func (r *RetryEmbedder) Dimension() int {
	return r.inner.Dimension()
}

func (r *RetryEmbedder) EmbedTexts(ctx context.Context, texts []string) ([][]float32, error) {
	truncated := make([]string, len(texts))
	for i, t := range texts {
		truncated[i] = truncate(t, r.maxChars)
	}

	var lastErr error
	for attempt := 0; attempt < r.attempts; attempt++ {
		if attempt > 0 {
			delay := r.baseDelay << (attempt - 1)
			if isRateLimited(lastErr) {
				delay *= 4
			}
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}

		vecs, err := r.inner.EmbedTexts(ctx, truncated)
		if err == nil {
			return vecs, nil
		}
		lastErr = err
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		r.log.Warnw("embedding attempt failed",
			"attempt", attempt+1, "of", r.attempts,
			"rate_limited", isRateLimited(err), "error", err)
	}

	return nil, fmt.Errorf("%w: %v", core.ErrEmbeddingFailed, lastErr)
}

func isRateLimited(err error) bool {
	if err == nil {
		return false
	}
	var gerr *googleapi.Error
	if errors.As(err, &gerr) {
		return gerr.Code == http.StatusTooManyRequests
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "rate limit") || strings.Contains(msg, "429") ||
		strings.Contains(msg, "resource exhausted") || strings.Contains(msg, "quota")
}

func truncate(s string, maxChars int) string {
	runes := []rune(s)
	if len(runes) <= maxChars {
		return s
	}
	return string(runes[:maxChars])
}
