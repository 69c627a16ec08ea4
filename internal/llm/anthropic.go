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

// AnthropicClient talks to the Claude messages API.
type AnthropicClient struct {
	endpoint string
	apiKey   string
	model    string
	client   *http.Client
	logger   *zap.Logger
}

// NewAnthropicClient creates a client against endpoint (default
// https://api.anthropic.com/v1).
func NewAnthropicClient(endpoint, apiKey, model string, timeout time.Duration, logger *zap.Logger) *AnthropicClient {
	if endpoint == "" {
		endpoint = "https://api.anthropic.com/v1"
	}
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &AnthropicClient{
		endpoint: endpoint,
		apiKey:   apiKey,
		model:    model,
		client:   &http.Client{Timeout: timeout},
		logger:   logger,
	}
}

func (c *AnthropicClient) Model() string { return c.model }

type anthropicMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type anthropicRequest struct {
	Model     string             `json:"model"`
	Messages  []anthropicMessage `json:"messages"`
	System    string             `json:"system,omitempty"`
	MaxTokens int                `json:"max_tokens"`
}

type anthropicResponse struct {
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
}

// Complete sends a non-streaming messages request and concatenates the text
// blocks of the reply.
func (c *AnthropicClient) Complete(ctx context.Context, system, prompt string) (string, error) {
	req := anthropicRequest{
		Model:     c.model,
		System:    system,
		MaxTokens: 1024,
		Messages:  []anthropicMessage{{Role: "user", Content: prompt}},
	}

	body, err := json.Marshal(req)
	if err != nil {
		return "", fmt.Errorf("marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.endpoint+"/messages", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("x-api-key", c.apiKey)
	httpReq.Header.Set("anthropic-version", "2023-06-01")

	resp, err := c.client.Do(httpReq)
	if err != nil {
		c.logger.Warn("anthropic request failed", zap.String("model", c.model), zap.Error(err))
		return "", fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		c.logger.Warn("anthropic request rejected",
			zap.Int("status", resp.StatusCode), zap.String("model", c.model))
		return "", fmt.Errorf("API error %d: %s", resp.StatusCode, string(respBody))
	}

	var out anthropicResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("decode response: %w", err)
	}

	text := ""
	for _, block := range out.Content {
		if block.Type == "text" {
			text += block.Text
		}
	}
	if text == "" {
		return "", fmt.Errorf("empty response from provider")
	}
	return text, nil
}
