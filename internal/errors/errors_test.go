package errors

import (
	"fmt"
	"strings"
	"testing"
)

func TestErrorFormat(t *testing.T) {
	err := New(ErrCodeParamBackendUnknown, "unknown backend: demo").
		WithSuggestion("Check the backend id").
		WithDocs("https://example.com/docs")

	msg := err.Error()

	if !strings.Contains(msg, "[PARAM-001]") {
		t.Errorf("expected error code in message, got %s", msg)
	}
	if !strings.Contains(msg, "unknown backend: demo") {
		t.Errorf("expected message text, got %s", msg)
	}
	if !strings.Contains(msg, "Check the backend id") {
		t.Errorf("expected suggestion, got %s", msg)
	}
	if !strings.Contains(msg, "https://example.com/docs") {
		t.Errorf("expected docs URL, got %s", msg)
	}
}

func TestWrapUnwrap(t *testing.T) {
	cause := fmt.Errorf("connection reset")
	err := Wrap(ErrCodeProviderAPI, "request failed", cause)

	if err.Unwrap() != cause {
		t.Error("expected Unwrap to return the cause")
	}
	if !strings.Contains(err.Error(), "connection reset") {
		t.Errorf("expected cause in message, got %s", err.Error())
	}
}

func TestHasCode(t *testing.T) {
	inner := NewProviderRateLimitError("demo-model", "30s")
	outer := fmt.Errorf("generate attempt 2: %w", inner)

	if !HasCode(outer, ErrCodeProviderRateLimit) {
		t.Error("expected HasCode to find rate limit code through wrapping")
	}
	if HasCode(outer, ErrCodeProviderTimeout) {
		t.Error("did not expect timeout code")
	}
	if HasCode(nil, ErrCodeProviderTimeout) {
		t.Error("nil error should never match")
	}
}

func TestTerminalPhaseErrorMentionsFinalPhase(t *testing.T) {
	err := NewTerminalPhaseError("proj-1")
	if !strings.Contains(err.Error(), "final phase") {
		t.Errorf("expected 'final phase' in message, got %s", err.Error())
	}
}
