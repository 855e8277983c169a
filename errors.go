package mandel

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrConfig is matched by every *ConfigError.
	ErrConfig = errors.New("invalid configuration")

	// ErrWorkerTimeout is matched by every *WorkerTimeoutError.
	ErrWorkerTimeout = errors.New("worker timeout")
)

// ConfigError describes a setup parameter that cannot be used.
// Config errors are not recoverable; callers should fail fast.
type ConfigError struct {
	Field  string
	Reason string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

func (e *ConfigError) Is(target error) bool {
	return target == ErrConfig
}

func configErrorf(field, format string, a ...any) error {
	return &ConfigError{Field: field, Reason: fmt.Sprintf(format, a...)}
}

// NewConfigError is used by sub-packages to report their own parameters.
func NewConfigError(field, format string, a ...any) error {
	return configErrorf(field, format, a...)
}

// WorkerTimeoutError reports a render pass whose tiles did not all arrive
// before the deadline.
type WorkerTimeoutError struct {
	Generation uint64
	Completed  int
	Total      int
	Timeout    time.Duration
}

func (e *WorkerTimeoutError) Error() string {
	return fmt.Sprintf("generation %d: %d of %d tiles completed within %s",
		e.Generation, e.Completed, e.Total, e.Timeout)
}

func (e *WorkerTimeoutError) Is(target error) bool {
	return target == ErrWorkerTimeout
}
