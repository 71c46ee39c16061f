package providers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
)

type ErrorKind string

const (
	ErrKindAuth         ErrorKind = "auth"
	ErrKindRateLimited  ErrorKind = "rate_limited"
	ErrKindInvalidModel ErrorKind = "invalid_model"
	ErrKindTimeout      ErrorKind = "timeout"
	ErrKindNetwork      ErrorKind = "network"
	ErrKindVendor       ErrorKind = "vendor"
)

// ProviderError is a vendor-reported or transport failure, carrying the
// vendor's own message when one was available.
type ProviderError struct {
	Provider string
	Kind     ErrorKind
	Status   int
	Message  string
}

func (e *ProviderError) Error() string {
	if e.Status > 0 {
		return fmt.Sprintf("%s: %s (status %d): %s", e.Provider, e.Kind, e.Status, e.Message)
	}
	return fmt.Sprintf("%s: %s: %s", e.Provider, e.Kind, e.Message)
}

// TransportError classifies a failed outbound HTTP call as a timeout or a
// generic network failure.
func TransportError(provider string, err error) *ProviderError {
	kind := ErrKindNetwork
	var netErr net.Error
	if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &netErr) && netErr.Timeout()) {
		kind = ErrKindTimeout
	}
	return &ProviderError{Provider: provider, Kind: kind, Message: err.Error()}
}

// StatusError maps a non-2xx vendor response to a ProviderError, preferring
// the vendor's error message over a generic status-derived one.
func StatusError(provider string, status int, body []byte) *ProviderError {
	msg := vendorMessage(body)
	if msg == "" {
		msg = fmt.Sprintf("provider returned status %d", status)
	}

	kind := ErrKindVendor
	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		kind = ErrKindAuth
	case status == http.StatusTooManyRequests:
		kind = ErrKindRateLimited
	case status == http.StatusNotFound:
		kind = ErrKindInvalidModel
	case status == http.StatusBadRequest && strings.Contains(strings.ToLower(msg), "model"):
		kind = ErrKindInvalidModel
	}

	return &ProviderError{Provider: provider, Kind: kind, Status: status, Message: msg}
}

// vendorMessage digs the human-readable message out of the common vendor
// error envelopes: {"error":{"message":...}}, {"error":"..."} and
// {"message":"..."}.
func vendorMessage(body []byte) string {
	var envelope struct {
		Error   json.RawMessage `json:"error"`
		Message string          `json:"message"`
	}
	if err := json.Unmarshal(body, &envelope); err != nil {
		return ""
	}
	if len(envelope.Error) > 0 {
		var nested struct {
			Message string `json:"message"`
		}
		if err := json.Unmarshal(envelope.Error, &nested); err == nil && nested.Message != "" {
			return nested.Message
		}
		var plain string
		if err := json.Unmarshal(envelope.Error, &plain); err == nil {
			return plain
		}
	}
	return envelope.Message
}
