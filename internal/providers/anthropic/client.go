package anthropic

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"aigateway/internal/providers"
)

const (
	defaultBaseURL = "https://api.anthropic.com/v1"
	apiVersion     = "2023-06-01"

	// Anthropic rejects requests without max_tokens.
	defaultMaxTokens = 1024

	probeModel = "claude-3-5-haiku-latest"
)

type Config struct {
	APIKey     string
	BaseURL    string
	HTTPClient *http.Client
}

// Client speaks the Anthropic Messages API. The vendor exposes no model
// listing here, so the adapter deliberately does not implement
// providers.ModelLister.
type Client struct {
	cfg Config
}

func New(cfg Config) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultBaseURL
	}
	cfg.BaseURL = strings.TrimSuffix(cfg.BaseURL, "/")
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{Timeout: 30 * time.Second}
	}
	return &Client{cfg: cfg}
}

var _ providers.Client = (*Client)(nil)

func (c *Client) CreateChatCompletion(ctx context.Context, model string, messages []providers.ChatMessage, opts providers.CompletionOptions) (providers.CompletionResult, error) {
	body, err := buildMessagesPayload(model, messages, opts)
	if err != nil {
		return providers.CompletionResult{}, err
	}

	respBody, err := c.call(ctx, body)
	if err != nil {
		return providers.CompletionResult{}, err
	}
	return parseMessagesResponse(respBody)
}

func (c *Client) TestConnection(ctx context.Context) providers.ConnectionStatus {
	// Cheapest authenticated call: a one-token completion.
	body, err := buildMessagesPayload(probeModel,
		[]providers.ChatMessage{{Role: providers.RoleUser, Content: "ping"}},
		providers.CompletionOptions{MaxTokens: 1})
	if err != nil {
		return providers.ConnectionStatus{OK: false, Message: err.Error()}
	}
	if _, err := c.call(ctx, body); err != nil {
		return providers.ConnectionStatus{OK: false, Message: err.Error()}
	}
	return providers.ConnectionStatus{OK: true, Message: "Anthropic connection successful"}
}

func (c *Client) AnalyzeData(ctx context.Context, model string, data any, query string) (string, error) {
	return providers.Analyze(ctx, c, model, data, query)
}

func (c *Client) call(ctx context.Context, body []byte) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+"/messages", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-api-key", c.cfg.APIKey)
	req.Header.Set("anthropic-version", apiVersion)

	resp, err := c.cfg.HTTPClient.Do(req)
	if err != nil {
		return nil, providers.TransportError(providers.KindAnthropic, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return nil, fmt.Errorf("read response body: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, providers.StatusError(providers.KindAnthropic, resp.StatusCode, respBody)
	}
	return respBody, nil
}

// buildMessagesPayload maps the gateway message sequence onto the Messages
// API shape: system turns become the top-level system field, user and
// assistant turns keep their relative order.
func buildMessagesPayload(model string, messages []providers.ChatMessage, opts providers.CompletionOptions) ([]byte, error) {
	var system []string
	turns := make([]map[string]string, 0, len(messages))
	for _, m := range messages {
		if m.Role == providers.RoleSystem {
			system = append(system, m.Content)
			continue
		}
		turns = append(turns, map[string]string{"role": string(m.Role), "content": m.Content})
	}
	if len(turns) == 0 {
		return nil, fmt.Errorf("messages must contain at least one user or assistant turn")
	}

	maxTokens := opts.MaxTokens
	if maxTokens <= 0 {
		maxTokens = defaultMaxTokens
	}

	payload := map[string]any{
		"model":      providers.StripModelPrefix(model, providers.KindAnthropic),
		"messages":   turns,
		"max_tokens": maxTokens,
	}
	if len(system) > 0 {
		payload["system"] = strings.Join(system, "\n\n")
	}
	if opts.Temperature > 0 {
		payload["temperature"] = opts.Temperature
	}

	b, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal messages payload: %w", err)
	}
	return b, nil
}

func parseMessagesResponse(body []byte) (providers.CompletionResult, error) {
	var resp struct {
		Model   string `json:"model"`
		Content []struct {
			Type string `json:"type"`
			Text string `json:"text"`
		} `json:"content"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return providers.CompletionResult{}, fmt.Errorf("decode messages response: %w", err)
	}

	parts := make([]string, 0, len(resp.Content))
	for _, block := range resp.Content {
		if block.Type == "text" && block.Text != "" {
			parts = append(parts, block.Text)
		}
	}
	if len(parts) == 0 {
		return providers.CompletionResult{}, fmt.Errorf("missing text content in messages response")
	}
	return providers.CompletionResult{Content: strings.Join(parts, "\n"), Model: resp.Model}, nil
}
