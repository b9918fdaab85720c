package models

import (
	"errors"
	"fmt"
)

var (
	// ErrConfiguration marks a provider or store that has not been configured.
	ErrConfiguration = errors.New("configuration error")
	// ErrValidation marks input rejected before any network or database call.
	ErrValidation = errors.New("validation error")
	// ErrUpstream marks a non-success response from a remote provider.
	ErrUpstream = errors.New("upstream error")
)

// ConfigurationError reports missing provider or store settings.
type ConfigurationError struct {
	Message string
}

func NewConfigurationError(msg string) *ConfigurationError {
	return &ConfigurationError{Message: msg}
}

func (e *ConfigurationError) Error() string { return e.Message }

func (e *ConfigurationError) Is(target error) bool { return target == ErrConfiguration }

// ValidationError reports invalid input (empty text, dimension mismatch, missing query).
type ValidationError struct {
	Message string
}

func NewValidationError(msg string) *ValidationError {
	return &ValidationError{Message: msg}
}

func (e *ValidationError) Error() string { return e.Message }

func (e *ValidationError) Is(target error) bool { return target == ErrValidation }

// UpstreamError carries the status and body of a failed provider response.
type UpstreamError struct {
	Provider   string
	StatusCode int
	Body       string
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("%s returned status %d: %s", e.Provider, e.StatusCode, e.Body)
}

func (e *UpstreamError) Is(target error) bool { return target == ErrUpstream }

// ChunkFailure records a chunk that could not be embedded or stored during bulk indexing.
type ChunkFailure struct {
	ChunkIndex int    `json:"chunk_index"`
	Error      string `json:"error"`
}
