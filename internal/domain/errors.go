package domain

import (
	"context"
	"errors"
	"fmt"
	"net"
)

// Error types for pipeline errors
type ErrorType string

const (
	ErrorTypeValidation ErrorType = "validation"
	ErrorTypeRender     ErrorType = "render"
	ErrorTypeExtraction ErrorType = "extraction"
	ErrorTypeOracle     ErrorType = "oracle"
	ErrorTypeConfig     ErrorType = "config"
	ErrorTypeIO         ErrorType = "io"
)

// PipelineError represents a pipeline-specific error with context. Transient
// marks failures the rasterizer is allowed to retry.
type PipelineError struct {
	Type      ErrorType
	Message   string
	Err       error
	Transient bool
}

func (e *PipelineError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Type, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Type, e.Message)
}

func (e *PipelineError) Unwrap() error {
	return e.Err
}

// NewError creates a new pipeline error
func NewError(errType ErrorType, message string, err error) *PipelineError {
	return &PipelineError{
		Type:    errType,
		Message: message,
		Err:     err,
	}
}

// Common error constructors
func ValidationError(message string, err error) *PipelineError {
	return NewError(ErrorTypeValidation, message, err)
}

func RenderError(message string, err error) *PipelineError {
	e := NewError(ErrorTypeRender, message, err)
	e.Transient = IsTransient(err)
	return e
}

func ExtractionError(message string, err error) *PipelineError {
	return NewError(ErrorTypeExtraction, message, err)
}

func OracleError(message string, err error) *PipelineError {
	return NewError(ErrorTypeOracle, message, err)
}

func ConfigError(message string, err error) *PipelineError {
	return NewError(ErrorTypeConfig, message, err)
}

func IOError(message string, err error) *PipelineError {
	return NewError(ErrorTypeIO, message, err)
}

// ErrNoCredential is returned before any processing starts when the oracle
// has no API key configured. It must never be downgraded to a partial result.
var ErrNoCredential = ConfigError("extraction oracle credential is not configured", nil)

// IsTransient classifies an error as retryable infrastructure failure:
// timeouts and network blips qualify, everything else fails fast.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	var pe *PipelineError
	if errors.As(err, &pe) && pe.Transient {
		return true
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	var opErr *net.OpError
	return errors.As(err, &opErr)
}
