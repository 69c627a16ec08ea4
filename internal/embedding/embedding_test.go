package embedding

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestAPIProviderEmbed(t *testing.T) {
	// Mock OpenAI-compatible embedding server.
	// APIProvider posts to endpoint+"/embeddings", so we use a mux.
	mux := http.NewServeMux()
	mux.HandleFunc("/embeddings", func(w http.ResponseWriter, r *http.Request) {
		resp := apiResponse{
			Data: []apiEmbeddingData{
				{Embedding: []float32{0.1, 0.2, 0.3}},
			},
		}
		json.NewEncoder(w).Encode(resp)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	p := NewAPIProvider(Config{
		Endpoint: srv.URL,
		Model:    "test-model",
	})

	vectors, err := p.Embed(context.Background(), []string{"hello"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(vectors) != 1 {
		t.Fatalf("got %d vectors, want 1", len(vectors))
	}
	if len(vectors[0]) != 3 {
		t.Fatalf("got dimension %d, want 3", len(vectors[0]))
	}
	if p.Dimension() != 3 {
		t.Errorf("got dimension %d, want 3", p.Dimension())
	}
	if p.Model() != "test-model" {
		t.Errorf("got model %q, want test-model", p.Model())
	}
}

func TestAPIProviderEmbed_Empty(t *testing.T) {
	p := NewAPIProvider(Config{
		Endpoint:  "http://unused",
		Model:     "test-model",
		Dimension: 128,
	})

	vectors, err := p.Embed(context.Background(), []string{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if vectors != nil {
		t.Errorf("expected nil for empty input, got %v", vectors)
	}
}

func TestAPIProviderDimension_Fallback(t *testing.T) {
	p := NewAPIProvider(Config{
		Endpoint:  "http://unused",
		Model:     "test-model",
		Dimension: 256,
	})

	// Before any Embed call, Dimension should return the configured default.
	if d := p.Dimension(); d != 256 {
		t.Errorf("got dimension %d, want configured default 256", d)
	}
}

func TestLocalProviderEmbed(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/embeddings", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(localResponse{Embedding: []float32{0.5, 0.5}})
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	p := NewLocalProvider(Config{Endpoint: srv.URL, Model: "all-minilm"})

	vectors, err := p.Embed(context.Background(), []string{"a", "b"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(vectors) != 2 {
		t.Fatalf("got %d vectors, want 2", len(vectors))
	}
	if p.Dimension() != 2 {
		t.Errorf("got dimension %d, want 2", p.Dimension())
	}
}

func TestNew_NoneProvider(t *testing.T) {
	if p := New(Config{Provider: "none"}); p != nil {
		t.Errorf("expected nil provider for none, got %T", p)
	}
	if p := New(Config{}); p != nil {
		t.Errorf("expected nil provider for empty, got %T", p)
	}
}

func TestEmbedOne_NilProvider(t *testing.T) {
	_, err := EmbedOne(context.Background(), nil, "text")
	if err != ErrUnavailable {
		t.Errorf("got %v, want ErrUnavailable", err)
	}
}
