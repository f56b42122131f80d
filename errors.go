package flowgate

import (
	"errors"
	"fmt"
	"strings"
)

// Sentinel errors.
var (
	ErrNotImplemented  = errors.New("flowgate: capability not implemented")
	ErrInvalidInput    = errors.New("flowgate: invalid input")
	ErrUpstream        = errors.New("flowgate: upstream error")
	ErrUnknownProvider = errors.New("flowgate: unknown provider")
	ErrUnconfigured    = errors.New("flowgate: provider not configured")
	ErrIdleTimeout     = errors.New("flowgate: stream idle timeout")
	ErrRequestTimeout  = errors.New("flowgate: stream exceeded request timeout")
)

// NotImplemented returns an error naming the backend and the missing capability.
func NotImplemented(backend, capability string) error {
	return fmt.Errorf("%w: %s does not implement %s", ErrNotImplemented, backend, capability)
}

// InvalidInput wraps ErrInvalidInput with a reason.
func InvalidInput(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidInput, fmt.Sprintf(format, args...))
}

// ProviderError wraps an upstream failure with backend context.
type ProviderError struct {
	Provider   string
	Op         string
	StatusCode int
	Body       string
	Err        error
}

func (e *ProviderError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "flowgate: provider=%s op=%s", e.Provider, e.Op)
	if e.StatusCode != 0 {
		fmt.Fprintf(&b, " status=%d", e.StatusCode)
	}
	if e.Body != "" {
		fmt.Fprintf(&b, " body=%s", e.Body)
	}
	if e.Err != nil {
		fmt.Fprintf(&b, ": %v", e.Err)
	}
	return b.String()
}

func (e *ProviderError) Unwrap() error {
	return e.Err
}

// Is lets errors.Is match ErrUpstream for every ProviderError.
func (e *ProviderError) Is(target error) bool {
	return target == ErrUpstream
}

// UnknownProviderError reports an identifier the registry cannot resolve.
type UnknownProviderError struct {
	Input     string
	Supported []string
}

func (e *UnknownProviderError) Error() string {
	return fmt.Sprintf("flowgate: unknown provider %q (supported: %s)", e.Input, strings.Join(e.Supported, ", "))
}

func (e *UnknownProviderError) Is(target error) bool {
	return target == ErrUnknownProvider
}

// IsResolutionError returns true if the error happened while choosing a
// backend, before any connection was attempted.
func IsResolutionError(err error) bool {
	return errors.Is(err, ErrUnknownProvider) || errors.Is(err, ErrUnconfigured)
}
