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

// OpenAIClient talks to OpenAI-compatible chat completion APIs.
type OpenAIClient struct {
	endpoint string
	apiKey   string
	model    string
	client   *http.Client
	logger   *zap.Logger
}

// NewOpenAIClient creates a client against endpoint (default
// https://api.openai.com/v1).
func NewOpenAIClient(endpoint, apiKey, model string, timeout time.Duration, logger *zap.Logger) *OpenAIClient {
	if endpoint == "" {
		endpoint = "https://api.openai.com/v1"
	}
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &OpenAIClient{
		endpoint: endpoint,
		apiKey:   apiKey,
		model:    model,
		client:   &http.Client{Timeout: timeout},
		logger:   logger,
	}
}

func (c *OpenAIClient) Model() string { return c.model }

type openAIMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type openAIChatRequest struct {
	Model       string          `json:"model"`
	Messages    []openAIMessage `json:"messages"`
	Temperature float64         `json:"temperature,omitempty"`
	MaxTokens   int             `json:"max_tokens,omitempty"`
}

type openAIChatResponse struct {
	Choices []struct {
		Message openAIMessage `json:"message"`
	} `json:"choices"`
}

// Complete sends a non-streaming chat request and returns the first choice.
func (c *OpenAIClient) Complete(ctx context.Context, system, prompt string) (string, error) {
	req := openAIChatRequest{
		Model:       c.model,
		Temperature: 0.7,
		MaxTokens:   1024,
	}
	if system != "" {
		req.Messages = append(req.Messages, openAIMessage{Role: "system", Content: system})
	}
	req.Messages = append(req.Messages, openAIMessage{Role: "user", Content: prompt})

	body, err := json.Marshal(req)
	if err != nil {
		return "", fmt.Errorf("marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.endpoint+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.client.Do(httpReq)
	if err != nil {
		c.logger.Warn("openai request failed", zap.String("model", c.model), zap.Error(err))
		return "", fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		c.logger.Warn("openai request rejected",
			zap.Int("status", resp.StatusCode), zap.String("model", c.model))
		return "", fmt.Errorf("API error %d: %s", resp.StatusCode, string(respBody))
	}

	var out openAIChatResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("decode response: %w", err)
	}
	if len(out.Choices) == 0 {
		return "", fmt.Errorf("empty response from provider")
	}
	return out.Choices[0].Message.Content, nil
}
