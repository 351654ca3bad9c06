// Package provider implements the engine's two external provider
// contracts (spec.md §6): an embedding provider that turns text into
// vectors, and an LLM provider that classifies a prompt into a label.
// Both ship as a Noop variant and an HTTP Remote variant, matching the
// vector store's {Remote, Noop} polymorphism.
package provider

import "context"

// EmbeddingProvider implements spec.md §6's embedding contract:
// embed(texts) -> {vectors}. Vector length is provider-defined and must
// stay consistent across calls within one collection's lifetime.
type EmbeddingProvider interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
	Dimensions() int
	Close() error
}

// LLMResult is the outcome of an LLM classification call, per spec.md
// §6's contract: classify(prompt) -> {label, confidence, rationale?}.
type LLMResult struct {
	Label      string
	Confidence float32
	Rationale  string
}

// LLMProvider implements spec.md §6's LLM classification contract, used
// as the classifier's fallback tier (spec.md §4.4).
type LLMProvider interface {
	Classify(ctx context.Context, prompt string) (LLMResult, error)
	Close() error
}

// NoopEmbeddingProvider is used when no embedding provider is configured.
// The embedder treats its presence as "skip embedding entirely".
type NoopEmbeddingProvider struct{ Dims int }

var _ EmbeddingProvider = NoopEmbeddingProvider{}

func (n NoopEmbeddingProvider) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	return nil, nil
}

func (n NoopEmbeddingProvider) Dimensions() int { return n.Dims }

func (NoopEmbeddingProvider) Close() error { return nil }

// NoopLLMProvider is used when the LLM fallback tier is disabled
// (classification.llm_enabled = false). Classify always reports an
// unknown label at zero confidence so the classifier's acceptance
// threshold rejects it and the file is left unclassified.
type NoopLLMProvider struct{}

var _ LLMProvider = NoopLLMProvider{}

func (NoopLLMProvider) Classify(ctx context.Context, prompt string) (LLMResult, error) {
	return LLMResult{Label: "unknown", Confidence: 0}, nil
}

func (NoopLLMProvider) Close() error { return nil }
