package resilience

import (
	"errors"
	"fmt"
	"net"
	"strings"
	"syscall"
)

// StatusError attaches an HTTP status code to an upstream failure so that
// retry decisions do not depend on provider-specific error types.
type StatusError struct {
	Err        error
	StatusCode int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("status %d: %v", e.StatusCode, e.Err)
}

func (e *StatusError) Unwrap() error {
	return e.Err
}

// WithStatus wraps err with an HTTP status code. A nil err stays nil.
func WithStatus(err error, statusCode int) error {
	if err == nil {
		return nil
	}
	return &StatusError{Err: err, StatusCode: statusCode}
}

// StatusCode returns the HTTP status carried by err, or 0.
func StatusCode(err error) int {
	var se *StatusError
	if errors.As(err, &se) {
		return se.StatusCode
	}
	return 0
}

// IsRetryable reports whether err looks like a transient upstream failure:
// throttling or server-side status codes, network timeouts, and dropped
// connections. Context cancellation is never retryable.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrCircuitOpen) {
		return false
	}

	if code := StatusCode(err); code != 0 {
		return IsRetryableStatus(code)
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}

	if errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, syscall.ECONNREFUSED) ||
		errors.Is(err, syscall.ECONNABORTED) ||
		errors.Is(err, syscall.EPIPE) {
		return true
	}

	msg := strings.ToLower(err.Error())
	for _, p := range []string{
		"connection reset by peer",
		"broken pipe",
		"tls handshake timeout",
		"i/o timeout",
		"server closed idle connection",
		"unexpected eof",
		"overloaded",
	} {
		if strings.Contains(msg, p) {
			return true
		}
	}

	return false
}

// IsRetryableStatus reports whether an HTTP status is safe to retry.
func IsRetryableStatus(code int) bool {
	switch code {
	case 408, 409, 425, 429, 500, 502, 503, 504, 529:
		return true
	default:
		return false
	}
}
