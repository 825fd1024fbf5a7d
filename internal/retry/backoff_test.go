package retry

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"
)

func fastBackoff(attempts int) *Backoff {
	return &Backoff{
		InitialDelay: time.Millisecond,
		MaxDelay:     5 * time.Millisecond,
		Multiplier:   1.5,
		MaxAttempts:  attempts,
	}
}

func TestBackoff_SuccessAfterRetries(t *testing.T) {
	calls := 0
	err := fastBackoff(10).Do(context.Background(), func(attempt int) error {
		calls++
		if attempt < 3 {
			return fmt.Errorf("connection refused")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if calls != 3 {
		t.Errorf("expected 3 calls, got %d", calls)
	}
}

func TestBackoff_SingleAttemptReturnsRawError(t *testing.T) {
	inner := errors.New("connection refused")
	calls := 0
	err := DialBackoff(0).Do(context.Background(), func(_ int) error {
		calls++
		return inner
	})
	if err != inner {
		t.Errorf("err = %v, want the unwrapped dial error", err)
	}
	if calls != 1 {
		t.Errorf("calls = %d, want 1", calls)
	}
}

func TestBackoff_MaxAttempts(t *testing.T) {
	calls := 0
	inner := errors.New("always fails")
	err := fastBackoff(3).Do(context.Background(), func(_ int) error {
		calls++
		return inner
	})
	if calls != 3 {
		t.Errorf("expected 3 calls, got %d", calls)
	}
	if !errors.Is(err, inner) || !strings.Contains(err.Error(), "3 attempts") {
		t.Errorf("err = %v", err)
	}
}

func TestBackoff_PermanentError(t *testing.T) {
	calls := 0
	err := fastBackoff(10).Do(context.Background(), func(_ int) error {
		calls++
		return Permanent(fmt.Errorf("fatal"))
	})
	if err == nil || err.Error() != "fatal" {
		t.Errorf("expected 'fatal', got %v", err)
	}
	if calls != 1 {
		t.Errorf("permanent error should stop after 1 call, got %d", calls)
	}
}

func TestBackoff_ContextCancelled(t *testing.T) {
	b := &Backoff{InitialDelay: 5 * time.Second, MaxAttempts: 100}

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	start := time.Now()
	err := b.Do(ctx, func(_ int) error { return fmt.Errorf("fail") })
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("err = %v, want deadline exceeded", err)
	}
	if time.Since(start) > 2*time.Second {
		t.Error("cancellation did not interrupt the pause")
	}
}

func TestIsPermanent(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"permanent", Permanent(fmt.Errorf("x")), true},
		{"wrapped permanent", fmt.Errorf("dial: %w", Permanent(fmt.Errorf("x"))), true},
		{"not permanent", fmt.Errorf("x"), false},
		{"nil", nil, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsPermanent(tt.err); got != tt.want {
				t.Errorf("IsPermanent() = %v, want %v", got, tt.want)
			}
		})
	}
	if Permanent(nil) != nil {
		t.Error("Permanent(nil) should be nil")
	}
}

func TestJitter_Range(t *testing.T) {
	d := 100 * time.Millisecond
	for i := 0; i < 100; i++ {
		j := addJitter(d)
		if j < 74*time.Millisecond || j > 126*time.Millisecond {
			t.Errorf("jitter %v out of range", j)
		}
	}
}
