// Package errors defines unified error types for provider dispatch operations.
// All provider-specific failures are mapped to these standard error types, and
// the retry loop branches on them by value rather than by catching panics.
package errors

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// ProviderError represents a standardized error from an upstream provider.
// Retryable marks transient conditions (rate limiting, brief unavailability)
// that the key-rotation loop is allowed to retry; everything else is terminal
// for the attempt.
type ProviderError struct {
	StatusCode int    `json:"status_code"`
	Message    string `json:"message"`
	Type       string `json:"type"`
	Provider   string `json:"provider"`
	Model      string `json:"model"`
	Retryable  bool   `json:"-"`
}

// Error implements the error interface.
func (e *ProviderError) Error() string {
	return fmt.Sprintf("[%s] %s (provider=%s, model=%s, code=%d)",
		e.Type, e.Message, e.Provider, e.Model, e.StatusCode)
}

// Common error types as constants for consistency.
const (
	TypeAuthentication     = "authentication_error"
	TypeRateLimit          = "rate_limit_error"
	TypeInvalidRequest     = "invalid_request_error"
	TypeNotFound           = "not_found_error"
	TypeTimeout            = "timeout_error"
	TypeServiceUnavailable = "service_unavailable_error"
	TypeInternalError      = "internal_error"
)

// NewAuthenticationError creates an authentication error (401).
func NewAuthenticationError(provider, model, message string) *ProviderError {
	return &ProviderError{
		StatusCode: http.StatusUnauthorized,
		Message:    message,
		Type:       TypeAuthentication,
		Provider:   provider,
		Model:      model,
		Retryable:  false,
	}
}

// NewRateLimitError creates a rate limit error (429).
func NewRateLimitError(provider, model, message string) *ProviderError {
	return &ProviderError{
		StatusCode: http.StatusTooManyRequests,
		Message:    message,
		Type:       TypeRateLimit,
		Provider:   provider,
		Model:      model,
		Retryable:  true,
	}
}

// NewInvalidRequestError creates an invalid request error (400).
func NewInvalidRequestError(provider, model, message string) *ProviderError {
	return &ProviderError{
		StatusCode: http.StatusBadRequest,
		Message:    message,
		Type:       TypeInvalidRequest,
		Provider:   provider,
		Model:      model,
		Retryable:  false,
	}
}

// NewNotFoundError creates a not found error (404).
func NewNotFoundError(provider, model, message string) *ProviderError {
	return &ProviderError{
		StatusCode: http.StatusNotFound,
		Message:    message,
		Type:       TypeNotFound,
		Provider:   provider,
		Model:      model,
		Retryable:  false,
	}
}

// NewTimeoutError creates a timeout error (408). Timeouts and dropped
// connections are transient, so the same key may be retried.
func NewTimeoutError(provider, model, message string) *ProviderError {
	return &ProviderError{
		StatusCode: http.StatusRequestTimeout,
		Message:    message,
		Type:       TypeTimeout,
		Provider:   provider,
		Model:      model,
		Retryable:  true,
	}
}

// NewServiceUnavailableError creates a service unavailable error (503).
// Upstreams signal transient overload with 503, so it is retryable.
func NewServiceUnavailableError(provider, model, message string) *ProviderError {
	return &ProviderError{
		StatusCode: http.StatusServiceUnavailable,
		Message:    message,
		Type:       TypeServiceUnavailable,
		Provider:   provider,
		Model:      model,
		Retryable:  true,
	}
}

// NewInternalError creates an internal server error (500).
func NewInternalError(provider, model, message string) *ProviderError {
	return &ProviderError{
		StatusCode: http.StatusInternalServerError,
		Message:    message,
		Type:       TypeInternalError,
		Provider:   provider,
		Model:      model,
		Retryable:  false,
	}
}

// rateLimitSignatures are error-text fragments some upstreams return instead
// of (or wrapped around) a proper 429 status.
var rateLimitSignatures = []string{
	"rate limit",
	"rate_limited",
	"too many requests",
	"429",
}

// IsRateLimit reports whether err is a transient rate-limit signal: either a
// ProviderError with a 429/503 status, or any error whose text matches a known
// rate-limit signature.
func IsRateLimit(err error) bool {
	if err == nil {
		return false
	}
	var pe *ProviderError
	if errors.As(err, &pe) {
		switch pe.StatusCode {
		case http.StatusTooManyRequests, http.StatusServiceUnavailable:
			return true
		}
		return false
	}
	msg := strings.ToLower(err.Error())
	for _, sig := range rateLimitSignatures {
		if strings.Contains(msg, sig) {
			return true
		}
	}
	return false
}

// AsProviderError unwraps err into target if a ProviderError is in the chain.
func AsProviderError(err error, target **ProviderError) bool {
	return errors.As(err, target)
}

// AllKeysExhaustedError is returned by a provider client when every credential
// in its pool is banned or over quota for the duration of the call.
type AllKeysExhaustedError struct {
	Provider string
	KeyCount int
}

// Error implements the error interface.
func (e *AllKeysExhaustedError) Error() string {
	return fmt.Sprintf("%s: all %d keys exhausted or banned", e.Provider, e.KeyCount)
}

// IsAllKeysExhausted reports whether err is an AllKeysExhaustedError.
func IsAllKeysExhausted(err error) bool {
	var e *AllKeysExhaustedError
	return errors.As(err, &e)
}

// ConfigurationError indicates the client cannot be constructed, typically
// because no usable credential was provided. It is fatal: a query-time retry
// can never recover from it.
type ConfigurationError struct {
	Provider string
	Reason   string
}

// Error implements the error interface.
func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Provider, e.Reason)
}

// IsConfiguration reports whether err is a ConfigurationError.
func IsConfiguration(err error) bool {
	var e *ConfigurationError
	return errors.As(err, &e)
}
