package retry

import (
	"context"
	"errors"
	"fmt"
	"net"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
)

func withFakeSleep(t *testing.T) *[]time.Duration {
	t.Helper()
	var slept []time.Duration
	prev := sleep
	sleep = func(ctx context.Context, d time.Duration) error {
		slept = append(slept, d)
		return ctx.Err()
	}
	t.Cleanup(func() { sleep = prev })
	return &slept
}

func TestDefaultConfig_ShouldBeValid(t *testing.T) {
	if err := DefaultConfig().Validate(); err != nil {
		t.Fatalf("default config invalid: %v", err)
	}
}

func TestConfig_Validate_WhenOutOfRange_ShouldReturnError(t *testing.T) {
	tests := map[string]func(*Config){
		"negative retries": func(c *Config) { c.MaxRetries = -1 },
		"zero initial":     func(c *Config) { c.InitialBackoff = 0 },
		"zero max":         func(c *Config) { c.MaxBackoff = 0 },
		"multiplier < 1":   func(c *Config) { c.Multiplier = 0.5 },
	}
	for name, mutate := range tests {
		t.Run(name, func(t *testing.T) {
			cfg := DefaultConfig()
			mutate(&cfg)
			if err := cfg.Validate(); err == nil {
				t.Error("expected error")
			}
		})
	}
}

type timeoutErr struct{}

func (timeoutErr) Error() string   { return "i/o timeout" }
func (timeoutErr) Timeout() bool   { return true }
func (timeoutErr) Temporary() bool { return true }

var _ net.Error = timeoutErr{}

func TestIsRetryable(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"canceled", context.Canceled, false},
		{"wrapped deadline", fmt.Errorf("ping: %w", context.DeadlineExceeded), false},
		{"net timeout", timeoutErr{}, true},
		{"503", errors.New("hrana: unexpected status 503"), true},
		{"refused", errors.New("dial tcp: connection refused"), true},
		{"eof", errors.New("unexpected EOF"), true},
		{"not a directory", errors.New("unable to open database file: not a directory"), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsRetryable(tt.err); got != tt.want {
				t.Errorf("want %v, got %v", tt.want, got)
			}
		})
	}
}

func TestDo_WhenTransientThenSuccess_ShouldRetryWithBackoff(t *testing.T) {
	// Given: an op failing twice with a transient error
	slept := withFakeSleep(t)
	calls := 0
	op := func(context.Context) error {
		calls++
		if calls < 3 {
			return errors.New("connection refused")
		}
		return nil
	}

	// When
	err := Do(context.Background(), Config{MaxRetries: 5, InitialBackoff: 100 * time.Millisecond, MaxBackoff: 150 * time.Millisecond, Multiplier: 2}, op)

	// Then: success after three calls; the second backoff is capped
	if err != nil {
		t.Fatalf("Do: %v", err)
	}
	if calls != 3 {
		t.Errorf("want 3 calls, got %d", calls)
	}
	if diff := cmp.Diff([]time.Duration{100 * time.Millisecond, 150 * time.Millisecond}, *slept); diff != "" {
		t.Errorf("backoff (-want +got):\n%s", diff)
	}
}

func TestDo_WhenNotRetryable_ShouldReturnImmediately(t *testing.T) {
	slept := withFakeSleep(t)
	want := errors.New("syntax error")
	calls := 0
	err := Do(context.Background(), DefaultConfig(), func(context.Context) error {
		calls++
		return want
	})
	if !errors.Is(err, want) || calls != 1 || len(*slept) != 0 {
		t.Errorf("err=%v calls=%d slept=%v", err, calls, *slept)
	}
}

func TestDo_WhenExhausted_ShouldWrapLastError(t *testing.T) {
	withFakeSleep(t)
	last := errors.New("status 502")
	calls := 0
	err := Do(context.Background(), Config{MaxRetries: 2, InitialBackoff: time.Millisecond, MaxBackoff: time.Millisecond, Multiplier: 1}, func(context.Context) error {
		calls++
		return last
	})
	if !errors.Is(err, last) || calls != 3 {
		t.Errorf("err=%v calls=%d", err, calls)
	}
}

func TestDo_WhenContextCancelledDuringBackoff_ShouldStop(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	calls := 0
	err := Do(ctx, DefaultConfig(), func(context.Context) error {
		calls++
		return errors.New("EOF")
	})
	if !errors.Is(err, context.Canceled) || calls != 1 {
		t.Errorf("err=%v calls=%d", err, calls)
	}
}
