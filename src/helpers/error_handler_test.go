package helpers

import (
	"errors"
	"testing"
	"time"
)

func TestBackoffDelay(t *testing.T) {
	base := 100 * time.Millisecond
	max := time.Second

	tests := []struct {
		attempt int
		want    time.Duration
	}{
		{0, 100 * time.Millisecond},
		{1, 200 * time.Millisecond},
		{2, 400 * time.Millisecond},
		{3, 800 * time.Millisecond},
		{4, time.Second},
		{40, time.Second},
		{-1, 100 * time.Millisecond},
	}

	for _, tt := range tests {
		if got := BackoffDelay(tt.attempt, base, max); got != tt.want {
			t.Errorf("BackoffDelay(%d) = %v, want %v", tt.attempt, got, tt.want)
		}
	}
}

func TestRetryWithBackoff_SucceedsEventually(t *testing.T) {
	calls := 0
	err := RetryWithBackoff(5, time.Millisecond, 2*time.Millisecond, nil, func(attempt int) error {
		calls++
		if attempt < 2 {
			return errors.New("dial refused")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("expected success, got %v", err)
	}
	if calls != 3 {
		t.Errorf("expected 3 calls, got %d", calls)
	}
}

func TestRetryWithBackoff_GivesUp(t *testing.T) {
	sentinel := errors.New("dial refused")
	err := RetryWithBackoff(3, time.Millisecond, time.Millisecond, nil, func(int) error { return sentinel })
	if !errors.Is(err, sentinel) {
		t.Errorf("expected wrapped sentinel, got %v", err)
	}
}

func TestRetryWithBackoff_Stop(t *testing.T) {
	calls := 0
	err := RetryWithBackoff(0, time.Millisecond, time.Millisecond, func() bool { return calls >= 2 }, func(int) error {
		calls++
		return errors.New("nope")
	})
	if err == nil {
		t.Fatal("expected abort error")
	}
	if calls != 2 {
		t.Errorf("expected 2 calls before stop, got %d", calls)
	}
}

func TestErrorTypes(t *testing.T) {
	cause := errors.New("boom")
	err := NewTransportError("dial failed", cause)

	var transportErr *TransportError
	if !errors.As(err, &transportErr) {
		t.Fatal("expected TransportError")
	}
	if !errors.Is(err, cause) {
		t.Error("expected cause to unwrap")
	}
	if err.Error() != "dial failed: boom" {
		t.Errorf("unexpected message %q", err.Error())
	}

	var cfgErr *ConfigurationError
	if errors.As(NewProtocolError("bad frame", nil), &cfgErr) {
		t.Error("protocol error must not match ConfigurationError")
	}
}
