package gateway

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"aigateway/internal/metrics"
	"aigateway/internal/providers"
	"aigateway/internal/providers/registry"
	"aigateway/internal/storage"
	"aigateway/internal/vault"
)

var (
	ErrNoActiveConfiguration   = errors.New("no active ai configuration")
	ErrRateLimited             = errors.New("rate limit exceeded")
	ErrModelListingUnsupported = errors.New("provider does not support model listing")
)

// Service orchestrates chat and analysis calls: it resolves the tenant's
// active configuration, builds a fresh adapter per request through the
// registry, and keeps conversation history ordered and append-only.
type Service struct {
	store         *storage.Store
	vault         *vault.Vault
	conversations *ConversationStore
	limiter       *RateLimiter
	httpClient    *http.Client
	callTimeout   time.Duration
	buildClient   func(opts registry.BuildOptions) (providers.Client, error)
	logger        zerolog.Logger
	metrics       *metrics.Metrics
}

type Config struct {
	Store         *storage.Store
	Vault         *vault.Vault
	Conversations *ConversationStore
	Limiter       *RateLimiter
	HTTPClient    *http.Client
	CallTimeout   time.Duration
	Logger        zerolog.Logger
	Metrics       *metrics.Metrics

	// BuildClient overrides adapter construction in tests.
	BuildClient func(opts registry.BuildOptions) (providers.Client, error)
}

func NewService(cfg Config) *Service {
	m := cfg.Metrics
	if m == nil {
		m = metrics.Global()
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{Timeout: 30 * time.Second}
	}
	if cfg.CallTimeout <= 0 {
		cfg.CallTimeout = 60 * time.Second
	}
	build := cfg.BuildClient
	if build == nil {
		build = registry.Build
	}
	return &Service{
		store:         cfg.Store,
		vault:         cfg.Vault,
		conversations: cfg.Conversations,
		limiter:       cfg.Limiter,
		httpClient:    cfg.HTTPClient,
		callTimeout:   cfg.CallTimeout,
		buildClient:   build,
		logger:        cfg.Logger,
		metrics:       m,
	}
}

type ChatReply struct {
	ConversationID string                `json:"conversation_id"`
	Message        providers.ChatMessage `json:"message"`
}

type Availability struct {
	Available bool   `json:"available"`
	Provider  string `json:"provider,omitempty"`
	ModelID   string `json:"model_id,omitempty"`
}

// Chat runs one conversation turn: append the user message, forward the full
// ordered sequence to the provider, append the assistant reply.
func (s *Service) Chat(ctx context.Context, tenantID, conversationID, userText string) (ChatReply, error) {
	if userText == "" {
		return ChatReply{}, fmt.Errorf("message text is empty")
	}

	cfg, client, err := s.resolveActiveClient(ctx, tenantID)
	if err != nil {
		return ChatReply{}, err
	}

	if err := s.allow(ctx, tenantID); err != nil {
		return ChatReply{}, err
	}

	conv := Conversation{ID: conversationID, TenantID: tenantID}
	if conversationID == "" {
		conv.ID = uuid.NewString()
	} else {
		loaded, found, err := s.conversations.Load(ctx, tenantID, conversationID)
		if err != nil {
			return ChatReply{}, err
		}
		if found {
			conv = loaded
		}
	}

	conv.Messages = append(conv.Messages, providers.ChatMessage{Role: providers.RoleUser, Content: userText})

	callCtx, cancel := context.WithTimeout(ctx, s.callTimeout)
	defer cancel()
	result, err := client.CreateChatCompletion(callCtx, cfg.ModelID, conv.Messages, providers.CompletionOptions{})
	if err != nil {
		s.metrics.CompletionFailures.Inc()
		s.logger.Error().Err(err).Str("tenant_id", tenantID).Str("provider", cfg.Provider).Msg("chat completion failed")
		return ChatReply{}, err
	}
	s.metrics.Completions.Inc()

	reply := providers.ChatMessage{Role: providers.RoleAssistant, Content: result.Content}
	conv.Messages = append(conv.Messages, reply)
	if err := s.conversations.Save(ctx, conv); err != nil {
		return ChatReply{}, err
	}

	return ChatReply{ConversationID: conv.ID, Message: reply}, nil
}

// Analyze is a single-shot financial analysis call; no conversation state.
func (s *Service) Analyze(ctx context.Context, tenantID string, data any, query string) (string, error) {
	if query == "" {
		return "", fmt.Errorf("analysis query is empty")
	}

	cfg, client, err := s.resolveActiveClient(ctx, tenantID)
	if err != nil {
		return "", err
	}

	if err := s.allow(ctx, tenantID); err != nil {
		return "", err
	}

	callCtx, cancel := context.WithTimeout(ctx, s.callTimeout)
	defer cancel()
	answer, err := client.AnalyzeData(callCtx, cfg.ModelID, data, query)
	if err != nil {
		s.metrics.CompletionFailures.Inc()
		s.logger.Error().Err(err).Str("tenant_id", tenantID).Str("provider", cfg.Provider).Msg("analysis failed")
		return "", err
	}
	s.metrics.Analyses.Inc()
	return answer, nil
}

// TestProvider resolves the named (or active, when provider is empty)
// configuration and probes the vendor. Configuration faults are returned as
// errors; vendor faults come back inside the status.
func (s *Service) TestProvider(ctx context.Context, tenantID, provider string) (providers.ConnectionStatus, error) {
	var cfg storage.AIConfiguration
	var err error
	if provider == "" {
		cfg, err = s.store.GetActiveConfiguration(ctx, tenantID)
	} else {
		cfg, err = s.store.GetConfigurationByProvider(ctx, tenantID, provider)
	}
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return providers.ConnectionStatus{}, ErrNoActiveConfiguration
		}
		return providers.ConnectionStatus{}, err
	}

	client, err := s.clientFor(cfg)
	if err != nil {
		return providers.ConnectionStatus{}, err
	}

	callCtx, cancel := context.WithTimeout(ctx, s.callTimeout)
	defer cancel()
	return client.TestConnection(callCtx), nil
}

// ListModels returns the active provider's model identifiers, or
// ErrModelListingUnsupported when the adapter lacks the capability.
func (s *Service) ListModels(ctx context.Context, tenantID string) ([]string, error) {
	_, client, err := s.resolveActiveClient(ctx, tenantID)
	if err != nil {
		return nil, err
	}

	lister, ok := client.(providers.ModelLister)
	if !ok {
		return nil, ErrModelListingUnsupported
	}

	callCtx, cancel := context.WithTimeout(ctx, s.callTimeout)
	defer cancel()
	return lister.ListModels(callCtx)
}

// Availability is a read-only probe of the tenant's configuration: no
// decryption and no vendor call. When nothing is active it still reports
// which provider and model would serve once activated.
func (s *Service) Availability(ctx context.Context, tenantID string) (Availability, error) {
	cfg, err := s.store.GetActiveConfiguration(ctx, tenantID)
	if err == nil {
		return Availability{Available: true, Provider: cfg.Provider, ModelID: cfg.ModelID}, nil
	}
	if !errors.Is(err, storage.ErrNotFound) {
		return Availability{}, err
	}

	configs, err := s.store.ListConfigurations(ctx, tenantID)
	if err != nil {
		return Availability{}, err
	}
	if len(configs) == 0 {
		return Availability{Available: false}, nil
	}
	return Availability{Available: false, Provider: configs[0].Provider, ModelID: configs[0].ModelID}, nil
}

// SaveConfiguration encrypts the plaintext API key and stores the binding.
func (s *Service) SaveConfiguration(ctx context.Context, tenantID, provider, apiKey, modelID string, isActive bool) error {
	if !registry.Supported(provider) {
		return fmt.Errorf("%w: %q", registry.ErrUnsupportedProvider, provider)
	}
	blob, err := s.vault.Encrypt(apiKey)
	if err != nil {
		return err
	}
	return s.store.UpsertConfiguration(ctx, storage.AIConfiguration{
		TenantID:        tenantID,
		Provider:        provider,
		EncryptedAPIKey: blob,
		ModelID:         modelID,
		IsActive:        isActive,
	})
}

func (s *Service) resolveActiveClient(ctx context.Context, tenantID string) (storage.AIConfiguration, providers.Client, error) {
	cfg, err := s.store.GetActiveConfiguration(ctx, tenantID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return storage.AIConfiguration{}, nil, ErrNoActiveConfiguration
		}
		return storage.AIConfiguration{}, nil, err
	}

	client, err := s.clientFor(cfg)
	if err != nil {
		return storage.AIConfiguration{}, nil, err
	}
	return cfg, client, nil
}

func (s *Service) clientFor(cfg storage.AIConfiguration) (providers.Client, error) {
	return s.buildClient(registry.BuildOptions{
		Provider:        cfg.Provider,
		EncryptedAPIKey: cfg.EncryptedAPIKey,
		Vault:           s.vault,
		HTTPClient:      s.httpClient,
	})
}

func (s *Service) allow(ctx context.Context, tenantID string) error {
	if s.limiter == nil {
		return nil
	}
	allowed, used, resetAt, err := s.limiter.Allow(ctx, tenantID, time.Now())
	if err != nil {
		return err
	}
	if !allowed {
		s.metrics.RateLimited.Inc()
		s.logger.Warn().Str("tenant_id", tenantID).Int64("used", used).Time("reset_at", resetAt).Msg("tenant rate limited")
		return ErrRateLimited
	}
	return nil
}
