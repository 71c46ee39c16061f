package openrouter

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

const defaultBaseURL = "https://openrouter.ai/api/v1"

type Config struct {
	APIKey     string
	BaseURL    string
	HTTPClient *http.Client

	// Optional attribution headers OpenRouter uses for ranking.
	Referer string
	Title   string
}

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

var (
	_ providers.Client      = (*Client)(nil)
	_ providers.ModelLister = (*Client)(nil)
)

func (c *Client) CreateChatCompletion(ctx context.Context, model string, messages []providers.ChatMessage, opts providers.CompletionOptions) (providers.CompletionResult, error) {
	body, err := buildChatPayload(model, messages, opts)
	if err != nil {
		return providers.CompletionResult{}, err
	}

	respBody, err := c.call(ctx, http.MethodPost, "/chat/completions", body)
	if err != nil {
		return providers.CompletionResult{}, err
	}
	return parseChatCompletion(respBody)
}

func (c *Client) TestConnection(ctx context.Context) providers.ConnectionStatus {
	// GET /key reports the key's limits and is the cheapest authed call.
	if _, err := c.call(ctx, http.MethodGet, "/key", nil); err != nil {
		return providers.ConnectionStatus{OK: false, Message: err.Error()}
	}
	return providers.ConnectionStatus{OK: true, Message: "OpenRouter connection successful"}
}

func (c *Client) ListModels(ctx context.Context) ([]string, error) {
	respBody, err := c.call(ctx, http.MethodGet, "/models", nil)
	if err != nil {
		return nil, err
	}

	var resp struct {
		Data []struct {
			ID string `json:"id"`
		} `json:"data"`
	}
	if err := json.Unmarshal(respBody, &resp); err != nil {
		return nil, fmt.Errorf("decode models response: %w", err)
	}
	models := make([]string, 0, len(resp.Data))
	for _, m := range resp.Data {
		models = append(models, m.ID)
	}
	return models, nil
}

func (c *Client) AnalyzeData(ctx context.Context, model string, data any, query string) (string, error) {
	return providers.Analyze(ctx, c, model, data, query)
}

func (c *Client) call(ctx context.Context, method, path string, body []byte) ([]byte, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.cfg.BaseURL+path, reader)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.cfg.Referer != "" {
		req.Header.Set("HTTP-Referer", c.cfg.Referer)
	}
	if c.cfg.Title != "" {
		req.Header.Set("X-Title", c.cfg.Title)
	}

	resp, err := c.cfg.HTTPClient.Do(req)
	if err != nil {
		return nil, providers.TransportError(providers.KindOpenRouter, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return nil, fmt.Errorf("read response body: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, providers.StatusError(providers.KindOpenRouter, resp.StatusCode, respBody)
	}
	return respBody, nil
}

// buildChatPayload strips only the gateway's "openrouter/" namespace. Model
// ids that are namespaced at the vendor itself ("openai/gpt-4o") pass
// through untouched.
func buildChatPayload(model string, messages []providers.ChatMessage, opts providers.CompletionOptions) ([]byte, error) {
	payload := map[string]any{
		"model":    providers.StripModelPrefix(model, providers.KindOpenRouter),
		"messages": messages,
	}
	if opts.MaxTokens > 0 {
		payload["max_tokens"] = opts.MaxTokens
	}
	if opts.Temperature > 0 {
		payload["temperature"] = opts.Temperature
	}
	b, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal chat completion payload: %w", err)
	}
	return b, nil
}

func parseChatCompletion(body []byte) (providers.CompletionResult, error) {
	var resp struct {
		Model   string `json:"model"`
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return providers.CompletionResult{}, fmt.Errorf("decode chat completion response: %w", err)
	}
	if len(resp.Choices) == 0 {
		return providers.CompletionResult{}, fmt.Errorf("empty choices in chat completion response")
	}
	if strings.TrimSpace(resp.Choices[0].Message.Content) == "" {
		return providers.CompletionResult{}, fmt.Errorf("missing message content in chat completion response")
	}
	return providers.CompletionResult{Content: resp.Choices[0].Message.Content, Model: resp.Model}, nil
}
