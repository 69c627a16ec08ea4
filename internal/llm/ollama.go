package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"
)

// OllamaClient talks to a local Ollama server.
type OllamaClient struct {
	endpoint string
	model    string
	client   *http.Client
	logger   *zap.Logger
}

// NewOllamaClient creates a client against endpoint (default
// http://localhost:11434).
func NewOllamaClient(endpoint, model string, timeout time.Duration, logger *zap.Logger) *OllamaClient {
	if endpoint == "" {
		endpoint = "http://localhost:11434"
	}
	if timeout <= 0 {
		timeout = 120 * time.Second
	}
	return &OllamaClient{
		endpoint: endpoint,
		model:    model,
		client:   &http.Client{Timeout: timeout},
		logger:   logger,
	}
}

func (c *OllamaClient) Model() string { return c.model }

type ollamaRequest struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
	System string `json:"system,omitempty"`
	Stream bool   `json:"stream"`
}

type ollamaResponse struct {
	Response string `json:"response"`
}

// Complete sends a non-streaming generate request.
func (c *OllamaClient) Complete(ctx context.Context, system, prompt string) (string, error) {
	body, err := json.Marshal(ollamaRequest{
		Model:  c.model,
		Prompt: prompt,
		System: system,
		Stream: false,
	})
	if err != nil {
		return "", fmt.Errorf("marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.endpoint+"/api/generate", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(httpReq)
	if err != nil {
		c.logger.Warn("ollama request failed", zap.String("model", c.model), zap.Error(err))
		return "", fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		c.logger.Warn("ollama request rejected",
			zap.Int("status", resp.StatusCode), zap.String("model", c.model))
		return "", fmt.Errorf("API error %d: %s", resp.StatusCode, string(respBody))
	}

	var out ollamaResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("decode response: %w", err)
	}
	return out.Response, nil
}
