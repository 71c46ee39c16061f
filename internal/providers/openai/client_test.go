package openai

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"aigateway/internal/providers"
)

func TestBuildChatPayloadStripsOwnPrefix(t *testing.T) {
	messages := []providers.ChatMessage{{Role: providers.RoleUser, Content: "hello"}}

	for _, model := range []string{"openai/gpt-4o", "gpt-4o"} {
		body, err := buildChatPayload(model, messages, providers.CompletionOptions{})
		if err != nil {
			t.Fatalf("build payload for %q: %v", model, err)
		}
		var payload map[string]any
		if err := json.Unmarshal(body, &payload); err != nil {
			t.Fatalf("unmarshal payload: %v", err)
		}
		if payload["model"] != "gpt-4o" {
			t.Fatalf("model %q: expected vendor-facing id gpt-4o, got %#v", model, payload["model"])
		}
	}
}

func TestBuildChatPayloadPreservesMessageOrder(t *testing.T) {
	messages := []providers.ChatMessage{
		{Role: providers.RoleSystem, Content: "be brief"},
		{Role: providers.RoleUser, Content: "first"},
		{Role: providers.RoleAssistant, Content: "reply"},
		{Role: providers.RoleUser, Content: "second"},
	}

	body, err := buildChatPayload("gpt-4o", messages, providers.CompletionOptions{MaxTokens: 256, Temperature: 0.4})
	if err != nil {
		t.Fatalf("build payload: %v", err)
	}

	var payload struct {
		Messages []providers.ChatMessage `json:"messages"`
		Max      int                     `json:"max_tokens"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		t.Fatalf("unmarshal payload: %v", err)
	}
	if len(payload.Messages) != 4 {
		t.Fatalf("expected 4 messages, got %d", len(payload.Messages))
	}
	for i, m := range messages {
		if payload.Messages[i] != m {
			t.Fatalf("message %d changed: expected %+v, got %+v", i, m, payload.Messages[i])
		}
	}
	if payload.Max != 256 {
		t.Fatalf("expected max_tokens 256, got %d", payload.Max)
	}
}

func TestCreateChatCompletion(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat/completions" {
			t.Errorf("unexpected path %q", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer sk-test" {
			t.Errorf("unexpected authorization header %q", got)
		}
		_, _ = w.Write([]byte(`{"model":"gpt-4o","choices":[{"message":{"content":"hi there"}}]}`))
	}))
	defer srv.Close()

	c := New(Config{APIKey: "sk-test", BaseURL: srv.URL})
	result, err := c.CreateChatCompletion(context.Background(), "gpt-4o",
		[]providers.ChatMessage{{Role: providers.RoleUser, Content: "hello"}}, providers.CompletionOptions{})
	if err != nil {
		t.Fatalf("create chat completion: %v", err)
	}
	if result.Content != "hi there" {
		t.Fatalf("expected normalized content, got %q", result.Content)
	}
}

func TestCreateChatCompletionAuthError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"error":{"message":"Incorrect API key provided"}}`))
	}))
	defer srv.Close()

	c := New(Config{APIKey: "bad", BaseURL: srv.URL})
	_, err := c.CreateChatCompletion(context.Background(), "gpt-4o",
		[]providers.ChatMessage{{Role: providers.RoleUser, Content: "hello"}}, providers.CompletionOptions{})

	var provErr *providers.ProviderError
	if !errors.As(err, &provErr) {
		t.Fatalf("expected ProviderError, got %v", err)
	}
	if provErr.Kind != providers.ErrKindAuth {
		t.Fatalf("expected auth kind, got %q", provErr.Kind)
	}
	if provErr.Message != "Incorrect API key provided" {
		t.Fatalf("expected vendor message, got %q", provErr.Message)
	}
}

func TestListModels(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/models" {
			t.Errorf("unexpected path %q", r.URL.Path)
		}
		_, _ = w.Write([]byte(`{"data":[{"id":"gpt-4o"},{"id":"gpt-4o-mini"}]}`))
	}))
	defer srv.Close()

	c := New(Config{APIKey: "sk-test", BaseURL: srv.URL})
	models, err := c.ListModels(context.Background())
	if err != nil {
		t.Fatalf("list models: %v", err)
	}
	if len(models) != 2 || models[0] != "gpt-4o" || models[1] != "gpt-4o-mini" {
		t.Fatalf("unexpected models %v", models)
	}
}

func TestTestConnectionReportsFailureWithoutError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"error":{"message":"Incorrect API key provided"}}`))
	}))
	defer srv.Close()

	c := New(Config{APIKey: "bad", BaseURL: srv.URL})
	status := c.TestConnection(context.Background())
	if status.OK {
		t.Fatalf("expected failed connection status")
	}
	if status.Message == "" {
		t.Fatalf("expected a human-readable failure message")
	}
}
