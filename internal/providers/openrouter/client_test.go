package openrouter

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"aigateway/internal/providers"
)

func TestVendorModelStringIdenticalForPrefixedAndBareIDs(t *testing.T) {
	var seen []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var payload struct {
			Model string `json:"model"`
		}
		if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
			t.Errorf("decode request: %v", err)
		}
		seen = append(seen, payload.Model)
		_, _ = w.Write([]byte(`{"choices":[{"message":{"content":"ok"}}]}`))
	}))
	defer srv.Close()

	c := New(Config{APIKey: "sk-or-test", BaseURL: srv.URL})
	messages := []providers.ChatMessage{{Role: providers.RoleUser, Content: "hi"}}

	for _, model := range []string{"openrouter/gpt-4o", "gpt-4o"} {
		if _, err := c.CreateChatCompletion(context.Background(), model, messages, providers.CompletionOptions{}); err != nil {
			t.Fatalf("chat completion for %q: %v", model, err)
		}
	}

	if len(seen) != 2 {
		t.Fatalf("expected 2 vendor calls, got %d", len(seen))
	}
	if seen[0] != seen[1] {
		t.Fatalf("expected identical vendor model strings, got %q and %q", seen[0], seen[1])
	}
	if seen[0] != "gpt-4o" {
		t.Fatalf("expected bare vendor model id, got %q", seen[0])
	}
}

func TestVendorNamespacedModelPreserved(t *testing.T) {
	body, err := buildChatPayload("openai/gpt-4o", []providers.ChatMessage{{Role: providers.RoleUser, Content: "hi"}}, providers.CompletionOptions{})
	if err != nil {
		t.Fatalf("build payload: %v", err)
	}
	var payload map[string]any
	if err := json.Unmarshal(body, &payload); err != nil {
		t.Fatalf("unmarshal payload: %v", err)
	}
	if payload["model"] != "openai/gpt-4o" {
		t.Fatalf("expected vendor namespace preserved, got %#v", payload["model"])
	}
}

func TestRateLimitedError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte(`{"error":{"message":"Rate limit exceeded"}}`))
	}))
	defer srv.Close()

	c := New(Config{APIKey: "sk-or-test", BaseURL: srv.URL})
	_, err := c.CreateChatCompletion(context.Background(), "gpt-4o",
		[]providers.ChatMessage{{Role: providers.RoleUser, Content: "hi"}}, providers.CompletionOptions{})

	var provErr *providers.ProviderError
	if !errors.As(err, &provErr) {
		t.Fatalf("expected ProviderError, got %v", err)
	}
	if provErr.Kind != providers.ErrKindRateLimited {
		t.Fatalf("expected rate limited kind, got %q", provErr.Kind)
	}
}

func TestTestConnectionUsesKeyEndpoint(t *testing.T) {
	var path string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path = r.URL.Path
		_, _ = w.Write([]byte(`{"data":{"label":"test key"}}`))
	}))
	defer srv.Close()

	c := New(Config{APIKey: "sk-or-test", BaseURL: srv.URL})
	status := c.TestConnection(context.Background())
	if !status.OK {
		t.Fatalf("expected ok status, got %+v", status)
	}
	if path != "/key" {
		t.Fatalf("expected /key probe, got %q", path)
	}
}

func TestListModels(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"data":[{"id":"openai/gpt-4o"},{"id":"anthropic/claude-sonnet-4"}]}`))
	}))
	defer srv.Close()

	c := New(Config{APIKey: "sk-or-test", BaseURL: srv.URL})
	models, err := c.ListModels(context.Background())
	if err != nil {
		t.Fatalf("list models: %v", err)
	}
	if len(models) != 2 || models[0] != "openai/gpt-4o" {
		t.Fatalf("unexpected models %v", models)
	}
}
