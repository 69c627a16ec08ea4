package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/pathlight/pathlight/internal/config"
	"go.uber.org/zap"
)

func TestOpenAIComplete(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/chat/completions", func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "Bearer test-key" {
			t.Errorf("authorization = %q", got)
		}
		var req openAIChatRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		if len(req.Messages) != 2 || req.Messages[0].Role != "system" {
			t.Errorf("messages = %+v", req.Messages)
		}
		json.NewEncoder(w).Encode(map[string]any{
			"choices": []map[string]any{
				{"message": map[string]string{"role": "assistant", "content": "focus on one goal"}},
			},
		})
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	client := NewOpenAIClient(srv.URL, "test-key", "gpt-4o-mini", time.Second, zap.NewNop())
	got, err := client.Complete(context.Background(), "be brief", "what should I do next?")
	if err != nil {
		t.Fatalf("complete: %v", err)
	}
	if got != "focus on one goal" {
		t.Fatalf("completion = %q", got)
	}
}

func TestAnthropicComplete(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/messages", func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("x-api-key"); got != "test-key" {
			t.Errorf("x-api-key = %q", got)
		}
		if got := r.Header.Get("anthropic-version"); got == "" {
			t.Error("missing anthropic-version header")
		}
		var req anthropicRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		if req.System != "be brief" || req.MaxTokens == 0 {
			t.Errorf("request = %+v", req)
		}
		json.NewEncoder(w).Encode(map[string]any{
			"content": []map[string]string{
				{"type": "text", "text": "small steps, "},
				{"type": "text", "text": "daily"},
			},
		})
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	client := NewAnthropicClient(srv.URL, "test-key", "claude-3-5-haiku-20241022", time.Second, zap.NewNop())
	got, err := client.Complete(context.Background(), "be brief", "advice?")
	if err != nil {
		t.Fatalf("complete: %v", err)
	}
	if got != "small steps, daily" {
		t.Fatalf("completion = %q", got)
	}
}

func TestOllamaComplete(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/generate", func(w http.ResponseWriter, r *http.Request) {
		var req ollamaRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		if req.Stream {
			t.Error("stream should be disabled")
		}
		json.NewEncoder(w).Encode(map[string]string{"response": "keep the streak going"})
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	client := NewOllamaClient(srv.URL, "llama3", time.Second, zap.NewNop())
	got, err := client.Complete(context.Background(), "", "motivate me")
	if err != nil {
		t.Fatalf("complete: %v", err)
	}
	if got != "keep the streak going" {
		t.Fatalf("completion = %q", got)
	}
}

func TestCompleteAPIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "rate limited", http.StatusTooManyRequests)
	}))
	defer srv.Close()

	client := NewOpenAIClient(srv.URL, "k", "m", time.Second, zap.NewNop())
	if _, err := client.Complete(context.Background(), "", "hi"); err == nil {
		t.Fatal("expected an error for a non-200 response")
	}
}

func TestNewFromConfig(t *testing.T) {
	logger := zap.NewNop()
	if c := NewFromConfig(config.LLMConfig{Provider: "none"}, logger); c != nil {
		t.Fatal("provider none should yield a nil client")
	}
	if c := NewFromConfig(config.LLMConfig{Provider: "openai", Model: "gpt-4o"}, logger); c == nil || c.Model() != "gpt-4o" {
		t.Fatal("openai client not built")
	}
	if c := NewFromConfig(config.LLMConfig{Provider: "anthropic", Model: "claude"}, logger); c == nil {
		t.Fatal("anthropic client not built")
	}
	if c := NewFromConfig(config.LLMConfig{Provider: "ollama", Model: "llama3"}, logger); c == nil {
		t.Fatal("ollama client not built")
	}
}
