package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"aigateway/internal/gateway"
	"aigateway/internal/providers"
	"aigateway/internal/providers/registry"
	"aigateway/internal/vault"
)

type contextKey string

const tenantKey contextKey = "tenant"

func contextWithTenant(ctx context.Context, tenantID string) context.Context {
	return context.WithValue(ctx, tenantKey, tenantID)
}

func tenantFrom(r *http.Request) string {
	v, _ := r.Context().Value(tenantKey).(string)
	return v
}

func requireTenant(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		tenantID := r.Header.Get("X-Tenant-ID")
		if tenantID == "" {
			writeError(w, http.StatusBadRequest, "missing_tenant", "X-Tenant-ID header is required")
			return
		}
		ctx := contextWithTenant(r.Context(), tenantID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

type chatRequest struct {
	ConversationID string `json:"conversation_id"`
	Message        string `json:"message"`
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	var req chatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_body", "invalid JSON body")
		return
	}
	if req.Message == "" {
		writeError(w, http.StatusBadRequest, "invalid_body", "message is required")
		return
	}

	reply, err := s.gateway.Chat(r.Context(), tenantFrom(r), req.ConversationID, req.Message)
	if err != nil {
		s.writeGatewayError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, reply)
}

type analyzeRequest struct {
	Data  json.RawMessage `json:"data"`
	Query string          `json:"query"`
}

func (s *Server) handleAnalyze(w http.ResponseWriter, r *http.Request) {
	var req analyzeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_body", "invalid JSON body")
		return
	}
	if req.Query == "" {
		writeError(w, http.StatusBadRequest, "invalid_body", "query is required")
		return
	}

	var data any
	if len(req.Data) > 0 {
		if err := json.Unmarshal(req.Data, &data); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_body", "data must be valid JSON")
			return
		}
	}

	answer, err := s.gateway.Analyze(r.Context(), tenantFrom(r), data, req.Query)
	if err != nil {
		s.writeGatewayError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"content": answer})
}

type testProviderRequest struct {
	Provider string `json:"provider"`
}

func (s *Server) handleTestProvider(w http.ResponseWriter, r *http.Request) {
	var req testProviderRequest
	if r.Body != nil && r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_body", "invalid JSON body")
			return
		}
	}

	status, err := s.gateway.TestProvider(r.Context(), tenantFrom(r), req.Provider)
	if err != nil {
		s.writeGatewayError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, status)
}

func (s *Server) handleListModels(w http.ResponseWriter, r *http.Request) {
	models, err := s.gateway.ListModels(r.Context(), tenantFrom(r))
	if err != nil {
		s.writeGatewayError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string][]string{"models": models})
}

func (s *Server) handleAvailability(w http.ResponseWriter, r *http.Request) {
	availability, err := s.gateway.Availability(r.Context(), tenantFrom(r))
	if err != nil {
		s.writeGatewayError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, availability)
}

type saveConfigurationRequest struct {
	Provider string `json:"provider"`
	APIKey   string `json:"api_key"`
	ModelID  string `json:"model_id"`
	IsActive bool   `json:"is_active"`
}

func (s *Server) handleSaveConfiguration(w http.ResponseWriter, r *http.Request) {
	var req saveConfigurationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_body", "invalid JSON body")
		return
	}
	if req.Provider == "" || req.APIKey == "" || req.ModelID == "" {
		writeError(w, http.StatusBadRequest, "invalid_body", "provider, api_key and model_id are required")
		return
	}

	if err := s.gateway.SaveConfiguration(r.Context(), tenantFrom(r), req.Provider, req.APIKey, req.ModelID, req.IsActive); err != nil {
		s.writeGatewayError(w, r, err)
		return
	}
	writeJSON(w, http.StatusNoContent, nil)
}

// writeGatewayError maps the error taxonomy onto HTTP statuses:
// configuration faults (unsupported provider, corrupt or unauthentic blobs,
// nothing configured) are distinguished from transient vendor faults so the
// caller knows whether to reconfigure or retry.
func (s *Server) writeGatewayError(w http.ResponseWriter, r *http.Request, err error) {
	tenantID := tenantFrom(r)

	var provErr *providers.ProviderError
	switch {
	case errors.Is(err, gateway.ErrNoActiveConfiguration):
		writeError(w, http.StatusConflict, "not_configured", "no active AI configuration for tenant")
	case errors.Is(err, gateway.ErrRateLimited):
		writeError(w, http.StatusTooManyRequests, "rate_limited", "tenant request limit reached")
	case errors.Is(err, gateway.ErrModelListingUnsupported):
		writeError(w, http.StatusNotImplemented, "model_listing_unsupported", "configured provider does not list models")
	case errors.Is(err, registry.ErrUnsupportedProvider),
		errors.Is(err, vault.ErrMalformedBlob),
		errors.Is(err, vault.ErrAuthenticationFailed):
		s.logger.Error().Err(err).Str("tenant_id", tenantID).Msg("configuration fault")
		writeError(w, http.StatusUnprocessableEntity, "configuration_error", "stored AI configuration is invalid; reconfigure the provider")
	case errors.As(err, &provErr):
		s.logger.Error().Err(err).Str("tenant_id", tenantID).Str("provider", provErr.Provider).Msg("vendor fault")
		switch provErr.Kind {
		case providers.ErrKindRateLimited:
			writeError(w, http.StatusTooManyRequests, "vendor_rate_limited", provErr.Message)
		case providers.ErrKindTimeout:
			writeError(w, http.StatusGatewayTimeout, "vendor_timeout", provErr.Message)
		default:
			writeError(w, http.StatusBadGateway, "vendor_error", provErr.Message)
		}
	default:
		s.logger.Error().Err(err).Str("tenant_id", tenantID).Msg("request failed")
		writeError(w, http.StatusInternalServerError, "internal_error", "internal error")
	}
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if body != nil {
		_ = json.NewEncoder(w).Encode(body)
	}
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, map[string]string{"code": code, "message": message})
}
