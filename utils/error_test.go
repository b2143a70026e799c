package utils

import (
	"errors"
	"fmt"
	"testing"
)

func TestRetryableWrapsAndUnwraps(t *testing.T) {
	base := errors.New("connection reset")
	wrapped := Retryable(base)

	if !IsRetryable(wrapped) {
		t.Fatal("expected wrapped error to be retryable")
	}
	if !errors.Is(wrapped, base) {
		t.Fatal("expected wrapped error to unwrap to the cause")
	}
	if IsRetryable(base) {
		t.Fatal("expected unwrapped error not to be retryable")
	}
	if Retryable(nil) != nil {
		t.Fatal("expected nil to stay nil")
	}
}

func TestIsRetryableThroughWrapping(t *testing.T) {
	err := fmt.Errorf("marking claim: %w", Retryable(errors.New("timeout")))
	if !IsRetryable(err) {
		t.Fatal("expected retryable to survive fmt.Errorf wrapping")
	}
}
