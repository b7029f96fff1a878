// Package providers defines the LLM provider boundary for the agent and
// ships Anthropic and OpenAI backends.
package providers

import (
	"context"

	"github.com/tlongwell-block/goose/pkg/models"
)

// Usage holds token accounting for one completion.
type Usage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
	TotalTokens  int `json:"total_tokens"`
}

// ModelConfig describes the model a provider is configured to use.
type ModelConfig struct {
	ModelName string
}

// Provider is the LLM back-end consumed by the agent. Complete produces a
// single assistant message for the given system prompt, conversation and
// tool set.
type Provider interface {
	// Name returns the provider identifier ("anthropic", "openai", ...).
	Name() string

	// Complete runs one completion turn.
	Complete(ctx context.Context, system string, messages []models.Message, tools []models.Tool) (models.Message, Usage, error)

	// ModelConfig returns the configured model.
	ModelConfig() ModelConfig
}

// Embedder is implemented by providers that can embed text, used by the
// vector tool router.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}
