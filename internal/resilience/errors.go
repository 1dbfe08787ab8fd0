package resilience

import (
	"errors"
	"net"
	"strings"
	"syscall"
)

// TransientError wraps an error that is safe to retry (e.g., 429, 5xx, network timeout).
type TransientError struct {
	Err        error
	StatusCode int
}

func (e *TransientError) Error() string {
	return e.Err.Error()
}

func (e *TransientError) Unwrap() error {
	return e.Err
}

// NewTransientError wraps an error as transient with an optional HTTP status code.
func NewTransientError(err error, statusCode int) *TransientError {
	return &TransientError{Err: err, StatusCode: statusCode}
}

// UnavailableError marks a rejection that will repeat for every request:
// bad credentials, no access, or an unknown model.
type UnavailableError struct {
	Err        error
	StatusCode int
}

func (e *UnavailableError) Error() string {
	return e.Err.Error()
}

func (e *UnavailableError) Unwrap() error {
	return e.Err
}

// ClassifyStatus wraps a provider error according to its HTTP status code.
// Statuses that say nothing about the service are returned unchanged.
func ClassifyStatus(err error, statusCode int) error {
	if err == nil {
		return nil
	}
	switch {
	case IsTransientHTTPStatus(statusCode):
		return NewTransientError(err, statusCode)
	case statusCode == 401, statusCode == 403, statusCode == 404:
		return &UnavailableError{Err: err, StatusCode: statusCode}
	default:
		return err
	}
}

// IsTransient returns true if the error (or any error in its chain) is a
// TransientError, or if it matches common transient error patterns (network
// timeouts, connection resets, DNS failures).
func IsTransient(err error) bool {
	if err == nil {
		return false
	}

	var te *TransientError
	if errors.As(err, &te) {
		return true
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}

	if errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, syscall.ECONNREFUSED) ||
		errors.Is(err, syscall.ECONNABORTED) {
		return true
	}

	// String-based heuristics for wrapped errors from HTTP clients.
	msg := strings.ToLower(err.Error())
	transientPatterns := []string{
		"connection reset by peer",
		"connection refused",
		"broken pipe",
		"temporary failure in name resolution",
		"no such host",
		"tls handshake timeout",
		"i/o timeout",
		"server closed idle connection",
	}
	for _, p := range transientPatterns {
		if strings.Contains(msg, p) {
			return true
		}
	}

	return false
}

// IsUnavailable reports whether err means further requests to the service
// are pointless for now: a rejection that applies to every request, or a
// service that cannot be reached at all. Timeouts, rate limits and 5xx
// responses only affect the request that saw them.
func IsUnavailable(err error) bool {
	if err == nil {
		return false
	}
	var ue *UnavailableError
	if errors.As(err, &ue) {
		return true
	}
	return IsUnreachable(err)
}

// IsUnreachable reports whether err is a connection-level failure: the
// host does not resolve or refuses connections.
func IsUnreachable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, syscall.ECONNREFUSED) {
		return true
	}
	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) && dnsErr.IsNotFound {
		return true
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "connection refused") || strings.Contains(msg, "no such host")
}

// IsTransientHTTPStatus returns true if the HTTP status code indicates a
// transient server-side issue that is safe to retry.
func IsTransientHTTPStatus(statusCode int) bool {
	switch statusCode {
	case 408, // Request Timeout
		429, // Too Many Requests
		500, // Internal Server Error
		502, // Bad Gateway
		503, // Service Unavailable
		504, // Gateway Timeout
		529: // Overloaded
		return true
	default:
		return false
	}
}
