package retry

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
)

func TestExponentialBackoffNoJitter(t *testing.T) {
	b := NewExponentialBackoff(5,
		WithInitialDelay(100*time.Millisecond),
		WithMaxDelay(time.Second),
		WithJitter(0),
	)

	tests := []struct {
		attempt int
		want    time.Duration
	}{
		{0, 100 * time.Millisecond},
		{1, 200 * time.Millisecond},
		{2, 400 * time.Millisecond},
		{3, 800 * time.Millisecond},
		{4, time.Second},
		{20, time.Second},
	}
	for _, tt := range tests {
		if got := b.NextDelay(tt.attempt); got != tt.want {
			t.Errorf("NextDelay(%d) = %v, want %v", tt.attempt, got, tt.want)
		}
	}
}

func TestExponentialBackoffJitterBounds(t *testing.T) {
	for _, r := range []float64{0, 0.5, 0.999} {
		b := NewExponentialBackoff(1,
			WithInitialDelay(time.Second),
			WithJitter(0.2),
			WithJitterFunc(func() float64 { return r }),
		)
		d := b.NextDelay(0)
		if d < 800*time.Millisecond || d > 1200*time.Millisecond {
			t.Errorf("jitter %v: delay %v outside ±20%%", r, d)
		}
	}
}

func TestStoreErrorClassifier(t *testing.T) {
	c := StoreErrorClassifier{}

	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"deadlock", &pgconn.PgError{Code: "40P01"}, true},
		{"admin shutdown", fmt.Errorf("write: %w", &pgconn.PgError{Code: "57P01"}), true},
		{"unique violation", &pgconn.PgError{Code: "23505"}, false},
		{"syntax error", &pgconn.PgError{Code: "42601"}, false},
		{"connection reset text", errors.New("read tcp: connection reset by peer"), true},
		{"plain error", errors.New("invalid identifier"), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := c.IsTransient(tt.err); got != tt.want {
				t.Errorf("IsTransient(%v) = %v, want %v", tt.err, got, tt.want)
			}
		})
	}
}

type alwaysTransient struct{}

func (alwaysTransient) IsTransient(err error) bool { return err != nil }

func TestExecutorRetriesTransient(t *testing.T) {
	calls := 0
	retries := 0
	e := NewExecutor(alwaysTransient{}, NewExponentialBackoff(3, WithInitialDelay(time.Millisecond), WithJitter(0))).
		WithOnRetry(func(int, error, time.Duration) { retries++ })

	err := e.Execute(context.Background(), func(context.Context) error {
		calls++
		if calls < 3 {
			return errors.New("flaky")
		}
		return nil
	})

	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if calls != 3 || retries != 2 {
		t.Errorf("calls=%d retries=%d, want 3 and 2", calls, retries)
	}
}

func TestExecutorGivesUp(t *testing.T) {
	calls := 0
	e := NewExecutor(alwaysTransient{}, NewExponentialBackoff(2, WithInitialDelay(time.Millisecond), WithJitter(0)))

	err := e.Execute(context.Background(), func(context.Context) error {
		calls++
		return errors.New("down")
	})

	if err == nil {
		t.Fatal("expected error")
	}
	if calls != 3 {
		t.Errorf("calls = %d, want 3", calls)
	}
}

func TestExecutorZeroBudgetRunsOnce(t *testing.T) {
	calls := 0
	e := NewExecutor(alwaysTransient{}, NewExponentialBackoff(0))

	_ = e.Execute(context.Background(), func(context.Context) error {
		calls++
		return errors.New("down")
	})

	if calls != 1 {
		t.Errorf("calls = %d, want 1", calls)
	}
}

func TestExecutorStopsOnFatal(t *testing.T) {
	calls := 0
	e := NewExecutor(StoreErrorClassifier{}, NewExponentialBackoff(5, WithInitialDelay(time.Millisecond)))

	fatal := &pgconn.PgError{Code: "23505"}
	err := e.Execute(context.Background(), func(context.Context) error {
		calls++
		return fatal
	})

	if !errors.Is(err, fatal) {
		t.Errorf("got %v, want %v", err, fatal)
	}
	if calls != 1 {
		t.Errorf("calls = %d, want 1", calls)
	}
}

func TestExecutorHonorsCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	e := NewExecutor(alwaysTransient{}, NewExponentialBackoff(5, WithInitialDelay(time.Hour), WithJitter(0))).
		WithOnRetry(func(int, error, time.Duration) { cancel() })

	err := e.Execute(ctx, func(context.Context) error { return errors.New("down") })
	if !errors.Is(err, context.Canceled) {
		t.Errorf("got %v, want context.Canceled", err)
	}
}
