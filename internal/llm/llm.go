// Package llm provides thin completion clients for the chat models backing
// the assistant endpoints. The assistant only needs prompt-in, text-out; the
// adapters hide each vendor's request shape behind that.
package llm

import (
	"context"
	"time"

	"github.com/pathlight/pathlight/internal/config"
	"go.uber.org/zap"
)

// Client produces a completion for a prompt.
type Client interface {
	Complete(ctx context.Context, system, prompt string) (string, error)
	Model() string
}

// NewFromConfig builds the configured client, or nil when the provider is
// unset. A nil client is valid: assistant responses degrade to canned text.
func NewFromConfig(cfg config.LLMConfig, logger *zap.Logger) Client {
	timeout := time.Duration(cfg.TimeoutMS) * time.Millisecond
	switch cfg.Provider {
	case "openai":
		return NewOpenAIClient(cfg.Endpoint, cfg.APIKey, cfg.Model, timeout, logger)
	case "anthropic":
		return NewAnthropicClient(cfg.Endpoint, cfg.APIKey, cfg.Model, timeout, logger)
	case "ollama":
		return NewOllamaClient(cfg.Endpoint, cfg.Model, timeout, logger)
	default:
		return nil
	}
}
