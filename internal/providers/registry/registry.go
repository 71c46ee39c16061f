package registry

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"aigateway/internal/providers"
	"aigateway/internal/providers/anthropic"
	"aigateway/internal/providers/openai"
	"aigateway/internal/providers/openrouter"
)

var ErrUnsupportedProvider = errors.New("unsupported provider")

// Decrypter materializes a plaintext credential from its at-rest blob.
// Satisfied by *vault.Vault.
type Decrypter interface {
	Decrypt(blob string) (string, error)
}

type BuildOptions struct {
	Provider        string
	EncryptedAPIKey string
	Vault           Decrypter
	BaseURL         string
	HTTPClient      *http.Client
}

// Build resolves a provider identity and returns an adapter bound to the
// decrypted credential. The identity is checked before any decryption so an
// unknown provider never touches the vault. Every call constructs a fresh
// adapter; credentials can rotate between calls, so instances are never
// cached or reused.
func Build(opts BuildOptions) (providers.Client, error) {
	kind := normalizeKind(opts.Provider)
	switch kind {
	case providers.KindOpenAI, providers.KindAnthropic, providers.KindOpenRouter:
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedProvider, opts.Provider)
	}

	if opts.Vault == nil {
		return nil, fmt.Errorf("vault is required")
	}
	apiKey, err := opts.Vault.Decrypt(opts.EncryptedAPIKey)
	if err != nil {
		return nil, err
	}

	switch kind {
	case providers.KindOpenAI:
		return openai.New(openai.Config{
			APIKey:     apiKey,
			BaseURL:    opts.BaseURL,
			HTTPClient: opts.HTTPClient,
		}), nil
	case providers.KindAnthropic:
		return anthropic.New(anthropic.Config{
			APIKey:     apiKey,
			BaseURL:    opts.BaseURL,
			HTTPClient: opts.HTTPClient,
		}), nil
	default:
		return openrouter.New(openrouter.Config{
			APIKey:     apiKey,
			BaseURL:    opts.BaseURL,
			HTTPClient: opts.HTTPClient,
		}), nil
	}
}

// Supported reports whether a provider identity resolves to an adapter.
func Supported(provider string) bool {
	switch normalizeKind(provider) {
	case providers.KindOpenAI, providers.KindAnthropic, providers.KindOpenRouter:
		return true
	default:
		return false
	}
}

func normalizeKind(provider string) string {
	return strings.ToLower(strings.TrimSpace(provider))
}
