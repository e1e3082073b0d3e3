package retry

import (
	"context"
	"errors"
	"fmt"
	"net"
	"syscall"
	"testing"
	"time"
)

type statusError struct{ code int }

func (e *statusError) Error() string   { return fmt.Sprintf("status %d", e.code) }
func (e *statusError) StatusCode() int { return e.code }

// recordSleep records requested delays without waiting.
func recordSleep(delays *[]time.Duration) func(context.Context, time.Duration) error {
	return func(ctx context.Context, d time.Duration) error {
		*delays = append(*delays, d)
		return ctx.Err()
	}
}

func TestDo_ExhaustsAttemptsAndReturnsOriginalError(t *testing.T) {
	orig := &statusError{code: 503}
	var delays []time.Duration
	calls := 0

	p := Policy{MaxAttempts: 4, BaseDelay: 10 * time.Millisecond, Sleep: recordSleep(&delays)}
	_, err := Do(context.Background(), p, func(context.Context) (int, error) {
		calls++
		return 0, orig
	})

	if calls != 4 {
		t.Errorf("calls = %d, want 4", calls)
	}
	if err != orig {
		t.Errorf("err = %v (%T), want the original error value", err, err)
	}

	want := []time.Duration{10 * time.Millisecond, 20 * time.Millisecond, 40 * time.Millisecond}
	if len(delays) != len(want) {
		t.Fatalf("delays = %v, want %v", delays, want)
	}
	for i := range want {
		if delays[i] != want[i] {
			t.Errorf("delay[%d] = %v, want %v", i, delays[i], want[i])
		}
	}
}

func TestDo_NonRetryableFailsImmediately(t *testing.T) {
	orig := errors.New("category not found")
	calls := 0

	p := Policy{MaxAttempts: 5, BaseDelay: time.Millisecond}
	_, err := Do(context.Background(), p, func(context.Context) (string, error) {
		calls++
		return "", orig
	})

	if calls != 1 {
		t.Errorf("calls = %d, want 1", calls)
	}
	if err != orig {
		t.Errorf("err = %v, want %v", err, orig)
	}
}

func TestDo_SucceedsAfterTransientFailures(t *testing.T) {
	var delays []time.Duration
	var retried []int
	calls := 0

	p := Policy{
		MaxAttempts: 3,
		BaseDelay:   time.Second,
		Sleep:       recordSleep(&delays),
		OnRetry: func(attempt int, err error, delay time.Duration) {
			retried = append(retried, attempt)
		},
	}
	got, err := Do(context.Background(), p, func(context.Context) (string, error) {
		calls++
		if calls < 3 {
			return "", &statusError{code: 429}
		}
		return "ok", nil
	})

	if err != nil {
		t.Fatalf("Do() failed: %v", err)
	}
	if got != "ok" {
		t.Errorf("got %q, want ok", got)
	}
	if len(retried) != 2 || retried[0] != 1 || retried[1] != 2 {
		t.Errorf("OnRetry attempts = %v, want [1 2]", retried)
	}
	if len(delays) != 2 || delays[1] != 2*time.Second {
		t.Errorf("delays = %v, want [1s 2s]", delays)
	}
}

func TestDo_CancelledWhileWaiting(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	orig := &statusError{code: 500}
	calls := 0

	p := Policy{
		MaxAttempts: 10,
		BaseDelay:   time.Hour,
		Sleep: func(ctx context.Context, d time.Duration) error {
			cancel()
			return ctx.Err()
		},
	}
	_, err := Do(ctx, p, func(context.Context) (int, error) {
		calls++
		return 0, orig
	})

	if calls != 1 {
		t.Errorf("calls = %d, want 1", calls)
	}
	if err != orig {
		t.Errorf("err = %v, want the last call's error", err)
	}
}

func TestDo_ZeroAttemptsCallsOnce(t *testing.T) {
	calls := 0
	_, _ = Do(context.Background(), Policy{}, func(context.Context) (int, error) {
		calls++
		return 0, &statusError{code: 500}
	})
	if calls != 1 {
		t.Errorf("calls = %d, want 1", calls)
	}
}

func TestDo_CustomPredicate(t *testing.T) {
	busy := errors.New("busy")
	calls := 0
	p := Policy{
		MaxAttempts: 3,
		IsRetryable: Any(IsTransient, func(err error) bool { return errors.Is(err, busy) }),
		Sleep:       func(context.Context, time.Duration) error { return nil },
	}
	_, err := Do(context.Background(), p, func(context.Context) (int, error) {
		calls++
		return 0, fmt.Errorf("exec: %w", busy)
	})
	if calls != 3 {
		t.Errorf("calls = %d, want 3", calls)
	}
	if !errors.Is(err, busy) {
		t.Errorf("err = %v, want busy", err)
	}
}

type timeoutError struct{}

func (timeoutError) Error() string   { return "i/o timeout" }
func (timeoutError) Timeout() bool   { return true }
func (timeoutError) Temporary() bool { return true }

func TestIsTransient(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"plain", errors.New("bad request"), false},
		{"429", &statusError{code: 429}, true},
		{"500", &statusError{code: 500}, true},
		{"503 wrapped", fmt.Errorf("query: %w", &statusError{code: 503}), true},
		{"400", &statusError{code: 400}, false},
		{"404", &statusError{code: 404}, false},
		{"conn reset", &net.OpError{Op: "read", Err: syscall.ECONNRESET}, true},
		{"conn refused", fmt.Errorf("dial: %w", syscall.ECONNREFUSED), true},
		{"net timeout", timeoutError{}, true},
		{"deadline", context.DeadlineExceeded, true},
		{"canceled", context.Canceled, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsTransient(tt.err); got != tt.want {
				t.Errorf("IsTransient(%v) = %v, want %v", tt.err, got, tt.want)
			}
		})
	}
}

func TestPolicy_Delay(t *testing.T) {
	p := Policy{BaseDelay: 100 * time.Millisecond}
	tests := []struct {
		attempt int
		want    time.Duration
	}{
		{0, 100 * time.Millisecond},
		{1, 100 * time.Millisecond},
		{2, 200 * time.Millisecond},
		{3, 400 * time.Millisecond},
		{5, 1600 * time.Millisecond},
	}
	for _, tt := range tests {
		if got := p.Delay(tt.attempt); got != tt.want {
			t.Errorf("Delay(%d) = %v, want %v", tt.attempt, got, tt.want)
		}
	}
}

func TestPacer(t *testing.T) {
	p := NewPacer(30 * time.Millisecond)
	ctx := context.Background()

	start := time.Now()
	for i := 0; i < 3; i++ {
		if err := p.Wait(ctx); err != nil {
			t.Fatalf("Wait() failed: %v", err)
		}
	}
	// The first call passes immediately, the next two wait one spacing each.
	if elapsed := time.Since(start); elapsed < 50*time.Millisecond {
		t.Errorf("three calls took %v, want at least ~60ms", elapsed)
	}
}

func TestPacer_ZeroSpacing(t *testing.T) {
	p := NewPacer(0)
	start := time.Now()
	for i := 0; i < 100; i++ {
		if err := p.Wait(context.Background()); err != nil {
			t.Fatalf("Wait() failed: %v", err)
		}
	}
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Errorf("zero spacing waited %v", elapsed)
	}

	var nilPacer *Pacer
	if err := nilPacer.Wait(context.Background()); err != nil {
		t.Errorf("nil pacer Wait() = %v", err)
	}
}
