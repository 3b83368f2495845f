package errors

import (
	"errors"
	"fmt"
	"strings"
	"testing"
)

func TestMalformedCorpusError(t *testing.T) {
	err := NewMalformedCorpusError("greeting", "intent has no responses")

	if !IsMalformedCorpusError(err) {
		t.Fatal("expected malformed corpus error")
	}
	if err.Code != "MALFORMED_CORPUS" {
		t.Fatalf("unexpected code %q", err.Code)
	}
	if !strings.Contains(err.Error(), `"greeting"`) {
		t.Fatalf("error should name the intent, got %q", err.Error())
	}
}

func TestWrapErrorKeepsType(t *testing.T) {
	base := NewNotFoundError("session not found", nil)
	wrapped := WrapError(base, "load session", ErrorTypeStorage)

	if !IsNotFoundError(wrapped) {
		t.Fatalf("wrapped error lost its type: %v", wrapped)
	}
	if !strings.HasPrefix(wrapped.Error(), "load session: ") {
		t.Fatalf("unexpected message %q", wrapped.Error())
	}
}

func TestWrapErrorPlain(t *testing.T) {
	if WrapError(nil, "noop", ErrorTypeError) != nil {
		t.Fatal("wrapping nil should return nil")
	}

	cause := errors.New("disk full")
	wrapped := WrapError(cause, "save session", ErrorTypeStorage)
	if !IsStorageError(wrapped) {
		t.Fatalf("expected storage error, got %v", wrapped)
	}
	if !errors.Is(wrapped, cause) {
		t.Fatal("wrapped error should unwrap to its cause")
	}
}

func TestTypeOfForeignError(t *testing.T) {
	if got := TypeOf(fmt.Errorf("plain")); got != "" {
		t.Fatalf("expected empty type, got %q", got)
	}
	if IsValidationError(nil) {
		t.Fatal("nil is not a validation error")
	}
}
