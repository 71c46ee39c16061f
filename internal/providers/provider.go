package providers

import (
	"context"
	"strings"
)

// Provider identities supported by the gateway. Every identity maps to
// exactly one adapter; unknown identities are rejected by the registry.
const (
	KindOpenAI     = "openai"
	KindAnthropic  = "anthropic"
	KindOpenRouter = "openrouter"
)

type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// ChatMessage is one turn of a conversation. Order is significant and must be
// forwarded to the vendor exactly as received.
type ChatMessage struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

type CompletionOptions struct {
	MaxTokens   int
	Temperature float64
}

// CompletionResult is the normalized output shape every adapter produces,
// regardless of the vendor's native response structure.
type CompletionResult struct {
	Content string
	Model   string
}

type ConnectionStatus struct {
	OK      bool   `json:"ok"`
	Message string `json:"message"`
}

// Client is the capability set common to all provider adapters.
type Client interface {
	// TestConnection issues the cheapest authenticated call the vendor
	// offers. Expected auth and network failures are reported in the
	// status, never returned as errors.
	TestConnection(ctx context.Context) ConnectionStatus

	CreateChatCompletion(ctx context.Context, model string, messages []ChatMessage, opts CompletionOptions) (CompletionResult, error)

	// AnalyzeData runs the shared financial-analysis prompt over a JSON
	// snapshot of caller data and returns the assistant text.
	AnalyzeData(ctx context.Context, model string, data any, query string) (string, error)
}

// ModelLister is an optional capability. Adapters whose vendor exposes no
// model listing simply do not implement it.
type ModelLister interface {
	ListModels(ctx context.Context) ([]string, error)
}

// StripModelPrefix removes a provider namespace ("openrouter/gpt-4o") from a
// model identifier. Bare identifiers pass through unchanged, and only the
// adapter's own namespace is stripped.
func StripModelPrefix(model, kind string) string {
	return strings.TrimPrefix(model, kind+"/")
}
