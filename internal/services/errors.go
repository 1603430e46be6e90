package services

import "fmt"

type ValidationError struct{ Message string }

func (e *ValidationError) Error() string { return e.Message }

type NotFoundError struct{ Message string }

func (e *NotFoundError) Error() string { return e.Message }

// UnsupportedProviderError is returned by providers that are configured but not implemented.
type UnsupportedProviderError struct{ Provider string }

func (e *UnsupportedProviderError) Error() string {
	return fmt.Sprintf("LLM provider %q is not supported", e.Provider)
}

// TransportError describes a failed call to the LLM provider. StatusCode is
// zero when no HTTP response was received.
type TransportError struct {
	StatusCode int
	Timeout    bool
	Err        error
}

func (e *TransportError) Error() string {
	switch {
	case e.Timeout:
		return fmt.Sprintf("llm transport timeout: %v", e.Err)
	case e.StatusCode != 0:
		return fmt.Sprintf("llm provider returned status %d: %v", e.StatusCode, e.Err)
	default:
		return fmt.Sprintf("llm transport: %v", e.Err)
	}
}

func (e *TransportError) Unwrap() error { return e.Err }

// ParseError means the provider answered but the reply could not be used.
type ParseError struct{ Err error }

func (e *ParseError) Error() string { return fmt.Sprintf("llm response: %v", e.Err) }

func (e *ParseError) Unwrap() error { return e.Err }
