package config

import (
	"errors"
	"fmt"
)

var (
	// ErrConfigNotFound indicates a configuration file was not found.
	ErrConfigNotFound = errors.New("configuration file not found")

	// ErrInvalidYAML indicates YAML parsing failed.
	ErrInvalidYAML = errors.New("invalid YAML syntax")

	// ErrValidationFailed indicates configuration validation failed.
	ErrValidationFailed = errors.New("configuration validation failed")

	// ErrTrendNotFound indicates a trend id is not in the registry.
	ErrTrendNotFound = errors.New("trend not found")

	// ErrSourceNotFound indicates a source id is not in the registry.
	ErrSourceNotFound = errors.New("source not found")

	// ErrProviderNotFound indicates an LLM provider is not in the registry.
	ErrProviderNotFound = errors.New("LLM provider not found")

	// ErrMissingSecret indicates a required secret env var is unset.
	ErrMissingSecret = errors.New("missing required secret")
)

// LoadError wraps a file-level load failure with its filename.
type LoadError struct {
	File string
	Err  error
}

// NewLoadError creates a LoadError.
func NewLoadError(file string, err error) *LoadError {
	return &LoadError{File: file, Err: err}
}

func (e *LoadError) Error() string {
	return fmt.Sprintf("loading %s: %v", e.File, e.Err)
}

func (e *LoadError) Unwrap() error { return e.Err }

// ValidationError wraps a validation failure with component context.
type ValidationError struct {
	Component string // trend, source, provider, pricing, budget, ...
	ID        string
	Field     string
	Err       error
}

func (e *ValidationError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("%s %q field %q: %v", e.Component, e.ID, e.Field, e.Err)
	}
	return fmt.Sprintf("%s %q: %v", e.Component, e.ID, e.Err)
}

func (e *ValidationError) Unwrap() error { return e.Err }
