package resilience

import (
	"errors"
	"fmt"
	"net"
	"syscall"
	"testing"
)

func TestIsTransient_Nil(t *testing.T) {
	if IsTransient(nil) {
		t.Error("nil error must not be transient")
	}
}

func TestIsTransient_MarkedError(t *testing.T) {
	err := MarkTransient(errors.New("rate limited"), 429)
	if !IsTransient(err) {
		t.Error("marked error must be transient")
	}
	if err.StatusCode != 429 {
		t.Errorf("expected status 429, got %d", err.StatusCode)
	}
}

func TestIsTransient_WrappedChain(t *testing.T) {
	inner := MarkTransient(errors.New("backend overloaded"), 503)
	wrapped := fmt.Errorf("query region porto: %w", inner)
	if !IsTransient(wrapped) {
		t.Error("wrapped transient error must still be transient")
	}
}

type timeoutNetErr struct{}

func (timeoutNetErr) Error() string   { return "deadline exceeded" }
func (timeoutNetErr) Timeout() bool   { return true }
func (timeoutNetErr) Temporary() bool { return true }

var _ net.Error = timeoutNetErr{}

func TestIsTransient_NetTimeout(t *testing.T) {
	if !IsTransient(timeoutNetErr{}) {
		t.Error("net timeout must be transient")
	}
}

func TestIsTransient_Syscall(t *testing.T) {
	for _, errno := range []syscall.Errno{syscall.ECONNRESET, syscall.ECONNREFUSED, syscall.ECONNABORTED} {
		if !IsTransient(fmt.Errorf("dial: %w", errno)) {
			t.Errorf("expected %v to be transient", errno)
		}
	}
}

func TestIsTransient_StringHeuristics(t *testing.T) {
	cases := []string{
		"read tcp: connection reset by peer",
		"write: broken pipe",
		"lookup overpass-api.de: temporary failure in name resolution",
		"lookup mirror.example: no such host",
		"net/http: TLS handshake timeout",
		"read: i/o timeout",
	}
	for _, msg := range cases {
		if !IsTransient(errors.New(msg)) {
			t.Errorf("expected %q to be transient", msg)
		}
	}
}

func TestIsTransient_PermanentErrors(t *testing.T) {
	cases := []string{
		"invalid query syntax",
		"unauthorized",
		"region not found",
	}
	for _, msg := range cases {
		if IsTransient(errors.New(msg)) {
			t.Errorf("expected %q to be permanent", msg)
		}
	}
}

func TestIsTransientHTTPStatus(t *testing.T) {
	transient := []int{408, 429, 500, 502, 503, 504}
	for _, code := range transient {
		if !IsTransientHTTPStatus(code) {
			t.Errorf("expected %d transient", code)
		}
	}
	permanent := []int{200, 201, 301, 400, 401, 403, 404, 422}
	for _, code := range permanent {
		if IsTransientHTTPStatus(code) {
			t.Errorf("expected %d permanent", code)
		}
	}
}
