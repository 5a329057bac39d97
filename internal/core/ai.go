package core

import "context"

// EmbeddingProvider turns texts into fixed-length vectors. Dimension reports
// the vector length so the startup check can compare it against the vector
// store's configured dimensionality.
type EmbeddingProvider interface {
	EmbedTexts(ctx context.Context, texts []string) ([][]float32, error)
	Dimension() int
}

type LLMProvider interface {
	Generate(ctx context.Context, systemPrompt string, userPrompt string) (string, error)
}
