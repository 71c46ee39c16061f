package httpapi

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"aigateway/internal/gateway"
	"aigateway/internal/providers"
)

// Gateway is the slice of the orchestration service the HTTP surface needs.
type Gateway interface {
	Chat(ctx context.Context, tenantID, conversationID, userText string) (gateway.ChatReply, error)
	Analyze(ctx context.Context, tenantID string, data any, query string) (string, error)
	TestProvider(ctx context.Context, tenantID, provider string) (providers.ConnectionStatus, error)
	ListModels(ctx context.Context, tenantID string) ([]string, error)
	Availability(ctx context.Context, tenantID string) (gateway.Availability, error)
	SaveConfiguration(ctx context.Context, tenantID, provider, apiKey, modelID string, isActive bool) error
}

type Server struct {
	gateway Gateway
	logger  zerolog.Logger
}

func NewServer(gw Gateway, logger zerolog.Logger) *Server {
	return &Server{gateway: gw, logger: logger}
}

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(90 * time.Second))

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	r.Route("/v1", func(r chi.Router) {
		r.Use(requireTenant)
		r.Post("/chat", s.handleChat)
		r.Post("/analyze", s.handleAnalyze)
		r.Post("/providers/test", s.handleTestProvider)
		r.Get("/models", s.handleListModels)
		r.Get("/availability", s.handleAvailability)
		r.Put("/configurations", s.handleSaveConfiguration)
	})

	return r
}
