package rtnn

import (
	"errors"
	"fmt"

	"github.com/hupe1980/rtnn/backend"
	"github.com/hupe1980/rtnn/device"
	"github.com/hupe1980/rtnn/internal/resource"
)

// ConfigurationError reports an invalid or inconsistent configuration. It is
// returned before any device work starts.
type ConfigurationError struct {
	Field  string
	Reason string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("rtnn: invalid configuration: %s: %s", e.Field, e.Reason)
}

func configError(field, format string, args ...any) *ConfigurationError {
	return &ConfigurationError{Field: field, Reason: fmt.Sprintf(format, args...)}
}

// BackendError reports a failed index build or launch.
//
// The original underlying error can be accessed via errors.Unwrap.
type BackendError struct {
	Phase Phase
	Batch int
	cause error
}

func (e *BackendError) Error() string {
	return fmt.Sprintf("rtnn: %s (batch %d): %v", e.Phase, e.Batch, e.cause)
}

func (e *BackendError) Unwrap() error { return e.cause }

// ResourceError reports a failed device allocation or release.
//
// The original underlying error can be accessed via errors.Unwrap.
type ResourceError struct {
	Phase Phase
	Batch int
	cause error
}

func (e *ResourceError) Error() string {
	return fmt.Sprintf("rtnn: %s (batch %d): %v", e.Phase, e.Batch, e.cause)
}

func (e *ResourceError) Unwrap() error { return e.cause }

func translateError(phase Phase, batch int, err error) error {
	if err == nil {
		return nil
	}

	var (
		be *BackendError
		re *ResourceError
		ce *ConfigurationError
	)
	if errors.As(err, &be) || errors.As(err, &re) || errors.As(err, &ce) {
		return err
	}

	switch {
	case errors.Is(err, backend.ErrBuildFailure), errors.Is(err, backend.ErrLaunchFailure):
		return &BackendError{Phase: phase, Batch: batch, cause: err}
	case errors.Is(err, device.ErrOutOfMemory),
		errors.Is(err, device.ErrReleased),
		errors.Is(err, resource.ErrMemoryLimitExceeded):
		return &ResourceError{Phase: phase, Batch: batch, cause: err}
	}
	return fmt.Errorf("rtnn: %s (batch %d): %w", phase, batch, err)
}
