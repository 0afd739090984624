package llm

import (
	"context"
)

// Provider defines the interface for text-generation services
type Provider interface {
	// Name returns the provider name
	Name() string

	// Complete sends one system/user prompt pair and returns the assistant text
	Complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error)

	// IsAvailable checks if the provider is properly configured and accessible
	IsAvailable(ctx context.Context) bool
}

// CompletionRequest is a single prompt submitted to a provider
type CompletionRequest struct {
	// System is the system instruction
	System string

	// Prompt is the user message
	Prompt string

	// Model overrides the configured model (provider-specific)
	Model string

	// MaxTokens limits the response length (0 = provider default)
	MaxTokens int

	// JSON asks the service to constrain its output to a JSON object.
	// Each provider maps this to its native hint; it is best-effort.
	JSON bool
}

// CompletionResponse is the assistant's reply
type CompletionResponse struct {
	// Content is the raw assistant message
	Content string

	// Model is the model that generated the response
	Model string

	// TokensUsed tracks token consumption
	TokensUsed int

	// Truncated is set when the service stopped on its token limit
	Truncated bool
}

// Config holds LLM provider configuration
type Config struct {
	// Provider name: "openai", "anthropic", "ollama"
	Provider string

	// Model name (provider-specific)
	Model string

	// APIKey for OpenAI/Anthropic
	APIKey string

	// BaseURL for custom endpoints (e.g., Ollama, OpenAI-compatible proxies)
	BaseURL string

	// Timeout for API requests
	Timeout int // seconds

	// MaxTokens for response generation
	MaxTokens int

	// Proxy settings
	HTTPProxy  string
	HTTPSProxy string
	NoProxy    string
}

// DefaultConfig returns sensible defaults
func DefaultConfig() Config {
	return Config{
		Provider: "openai",
		Model:    "gpt-4o",
		Timeout:  180,
	}
}

// timeoutSeconds returns the configured timeout or fallback
func (c Config) timeoutSeconds(fallback int) int {
	if c.Timeout > 0 {
		return c.Timeout
	}
	return fallback
}
