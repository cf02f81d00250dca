// Package ai holds the chat and embedding clients for the supported model
// providers.
package ai

import "context"

// Runtime is a chat backend that supports tool calling.
type Runtime interface {
	Generate(ctx context.Context, req GenerateRequest) (*GenerateResponse, error)
}

// Embedder turns text into vectors.
type Embedder interface {
	Embed(ctx context.Context, model string, inputs []string) ([][]float32, error)
}

// Provider identifiers used across the CLI and API for selection.
const (
	ProviderOpenAI     = "openai"
	ProviderOpenRouter = "openrouter"
	ProviderOllama     = "ollama"
)

// Providers lists the registered provider names.
func Providers() []string { return registeredNames() }

var (
	_ Runtime  = (*Client)(nil)
	_ Runtime  = (*OllamaClient)(nil)
	_ Embedder = (*Client)(nil)
	_ Embedder = (*OllamaEmbClient)(nil)
)
