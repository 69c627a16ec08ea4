package embedding

import (
	"context"
	"errors"
)

// ErrUnavailable indicates no embedding backend is configured or reachable.
// Callers must treat this as a soft failure and degrade to keyword search.
var ErrUnavailable = errors.New("embedding: provider unavailable")

// Provider generates vector embeddings from text.
//
// A provider is deterministic for a fixed model version and input. The
// dimension is fixed for the lifetime of one deployment; changing the model
// invalidates every persisted vector (see vecindex generation stamps).
type Provider interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
	Dimension() int
	Model() string
}

// Config holds embedding provider configuration.
type Config struct {
	Provider  string `json:"provider"` // "api", "local" or "none"
	Endpoint  string `json:"endpoint"`
	Model     string `json:"model"`
	APIKey    string `json:"api_key"`
	Dimension int    `json:"dimension"`
	TimeoutMS int    `json:"timeout_ms"`
}

// New builds a Provider from config. A "none" or empty provider returns nil:
// the memory service treats a nil provider as ErrUnavailable on every call.
func New(cfg Config) Provider {
	switch cfg.Provider {
	case "api":
		return NewAPIProvider(cfg)
	case "local":
		return NewLocalProvider(cfg)
	default:
		return nil
	}
}

// EmbedOne embeds a single text through p and unwraps the first vector.
func EmbedOne(ctx context.Context, p Provider, text string) ([]float32, error) {
	if p == nil {
		return nil, ErrUnavailable
	}
	vecs, err := p.Embed(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	if len(vecs) == 0 || len(vecs[0]) == 0 {
		return nil, ErrUnavailable
	}
	return vecs[0], nil
}
