package resilience

import (
	"context"
	"errors"
	"fmt"
	"net"
	"syscall"
	"testing"
)

func TestIsTransient_ExplicitTransientError(t *testing.T) {
	err := NewTransientError(errors.New("server overloaded"), 503)
	if !IsTransient(err) {
		t.Error("expected TransientError to be transient")
	}
}

func TestIsTransient_WrappedTransientError(t *testing.T) {
	inner := NewTransientError(errors.New("rate limited"), 429)
	wrapped := fmt.Errorf("enrich: generate: %w", inner)
	if !IsTransient(wrapped) {
		t.Error("expected wrapped TransientError to be transient")
	}
}

func TestIsTransient_NilError(t *testing.T) {
	if IsTransient(nil) {
		t.Error("nil error should not be transient")
	}
}

func TestIsTransient_RegularError(t *testing.T) {
	if IsTransient(errors.New("invalid request: max_tokens")) {
		t.Error("regular error should not be transient")
	}
}

func TestIsTransient_ConnectionRefused(t *testing.T) {
	err := fmt.Errorf("dial tcp: %w", syscall.ECONNREFUSED)
	if !IsTransient(err) {
		t.Error("ECONNREFUSED should be transient")
	}
}

func TestIsTransient_NetworkTimeout(t *testing.T) {
	err := &net.DNSError{IsTimeout: true, Err: "timeout"}
	if !IsTransient(err) {
		t.Error("network timeout should be transient")
	}
}

func TestIsTransient_StringPatterns(t *testing.T) {
	for _, msg := range []string{
		"Post https://api.anthropic.com: dial tcp: lookup api.anthropic.com: no such host",
		"read: connection reset by peer",
		"net/http: TLS handshake timeout",
	} {
		if !IsTransient(errors.New(msg)) {
			t.Errorf("expected %q to be transient", msg)
		}
	}
}

func TestClassifyStatus(t *testing.T) {
	base := errors.New("api error")

	if !IsTransient(ClassifyStatus(base, 429)) {
		t.Error("429 should be transient")
	}
	if !IsTransient(ClassifyStatus(base, 529)) {
		t.Error("529 should be transient")
	}

	var ue *UnavailableError
	if err := ClassifyStatus(base, 401); !errors.As(err, &ue) || ue.StatusCode != 401 {
		t.Errorf("401 should be unavailable, got %v", err)
	}
	if err := ClassifyStatus(base, 400); err != base {
		t.Errorf("400 should pass through unchanged, got %v", err)
	}
	if ClassifyStatus(nil, 500) != nil {
		t.Error("nil error should stay nil")
	}
}

func TestIsUnavailable(t *testing.T) {
	if !IsUnavailable(ClassifyStatus(errors.New("bad key"), 401)) {
		t.Error("auth failure should make the service unavailable")
	}
	if IsUnavailable(NewTransientError(errors.New("down"), 503)) {
		t.Error("a 5xx response should not make the service unavailable")
	}
	if IsUnavailable(NewTransientError(context.DeadlineExceeded, 0)) {
		t.Error("an attempt timeout should not make the service unavailable")
	}
	if IsUnavailable(ClassifyStatus(errors.New("slow down"), 429)) {
		t.Error("a rate limit should not make the service unavailable")
	}
	if !IsUnavailable(errors.New("dial tcp 127.0.0.1:443: connect: connection refused")) {
		t.Error("connection refused should make the service unavailable")
	}
	if !IsUnavailable(&net.DNSError{Err: "no such host", Name: "api.example.invalid", IsNotFound: true}) {
		t.Error("an unresolvable host should make the service unavailable")
	}
	if IsUnavailable(errors.New("malformed request")) {
		t.Error("request error should not make the service unavailable")
	}
	if IsUnavailable(nil) {
		t.Error("nil is not unavailable")
	}
}

func TestIsTransientHTTPStatus(t *testing.T) {
	for _, code := range []int{408, 429, 500, 502, 503, 504, 529} {
		if !IsTransientHTTPStatus(code) {
			t.Errorf("expected %d to be transient", code)
		}
	}
	for _, code := range []int{200, 400, 401, 403, 404, 422} {
		if IsTransientHTTPStatus(code) {
			t.Errorf("expected %d not to be transient", code)
		}
	}
}
