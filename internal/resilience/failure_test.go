package resilience

import (
	"errors"
	"strings"
	"testing"
)

func TestClassifyError(t *testing.T) {
	if got := ClassifyError(MarkTransient(errors.New("overloaded"), 503)); got != "transient" {
		t.Errorf("expected transient, got %q", got)
	}
	if got := ClassifyError(errors.New("malformed region key")); got != "permanent" {
		t.Errorf("expected permanent, got %q", got)
	}
}

func TestNewFailureRecord(t *testing.T) {
	rec := NewFailureRecord("porto", "infrastructure", MarkTransient(errors.New("all mirrors down"), 503), 4)

	if rec.Region != "porto" {
		t.Errorf("expected region porto, got %q", rec.Region)
	}
	if rec.Signal != "infrastructure" {
		t.Errorf("expected infrastructure signal, got %q", rec.Signal)
	}
	if rec.ErrorType != "transient" {
		t.Errorf("expected transient, got %q", rec.ErrorType)
	}
	if rec.Attempts != 4 {
		t.Errorf("expected 4 attempts, got %d", rec.Attempts)
	}
	if rec.FailedAt.IsZero() {
		t.Error("expected FailedAt to be stamped")
	}
}

func TestFailureRecordReason(t *testing.T) {
	withAttempts := NewFailureRecord("porto", "infrastructure", errors.New("no fallback entry"), 4)
	if !strings.Contains(withAttempts.Reason(), "after 4 attempts") {
		t.Errorf("expected attempt count in reason, got %q", withAttempts.Reason())
	}

	noAttempts := NewFailureRecord("porto", "market", errors.New("no provider answered"), 0)
	reason := noAttempts.Reason()
	if strings.Contains(reason, "attempts") {
		t.Errorf("expected no attempt count, got %q", reason)
	}
	if !strings.Contains(reason, "market signal unavailable") {
		t.Errorf("expected signal name in reason, got %q", reason)
	}
}
