// Package apperr defines the failure kinds a service-area widget can surface.
//
// ConfigurationError disables the widget until it is reconfigured.
// ServiceMetadataError puts it in the error state until the service URL changes.
// SolveError is transient and shown as information; the next qualifying edit
// retries. ErrSuperseded marks work cancelled by newer work and is never shown.
package apperr

import (
	"errors"
	"fmt"
)

// ErrSuperseded is delivered to callers whose request was cancelled by a newer
// request of the same kind or by teardown. Callers drop it silently.
var ErrSuperseded = errors.New("superseded")

// ConfigurationError reports a missing map context or an invalid setting.
type ConfigurationError struct {
	Field  string
	Reason string
}

func (e *ConfigurationError) Error() string {
	if e.Field == "" {
		return e.Reason
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Reason)
}

// ServiceMetadataError reports a failed or rejected metadata fetch.
type ServiceMetadataError struct {
	URL string
	Err error
}

func (e *ServiceMetadataError) Error() string {
	return e.Err.Error()
}

func (e *ServiceMetadataError) Unwrap() error { return e.Err }

// SolveError reports a failed or empty solve.
type SolveError struct {
	Err error
}

func (e *SolveError) Error() string {
	return e.Err.Error()
}

func (e *SolveError) Unwrap() error { return e.Err }

// IsSuperseded reports whether err marks cancelled work.
func IsSuperseded(err error) bool {
	return errors.Is(err, ErrSuperseded)
}

// Message returns the one human-readable line shown for err.
func Message(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
