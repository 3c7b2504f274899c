package resilience_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/backend-vending/internal/resilience"
)

func TestBreakerTransitions(t *testing.T) {
	breaker := resilience.NewBreaker(2, 0.5, 50*time.Millisecond)
	ctx := context.Background()

	require.True(t, breaker.Allow(ctx))
	breaker.Report(ctx, false)
	require.True(t, breaker.Allow(ctx))
	breaker.Report(ctx, false)

	require.False(t, breaker.Allow(ctx), "breaker should open after threshold exceeded")

	time.Sleep(60 * time.Millisecond)
	require.True(t, breaker.Allow(ctx), "breaker should move to half-open after cool off")
	breaker.Report(ctx, true)
	require.Equal(t, resilience.Closed, breaker.State())
}

func TestBreakerDoAndMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	metrics := resilience.NewMetrics("vending", reg)
	breaker := resilience.NewBreaker(1, 0.5, time.Hour).WithTarget("events").WithMetrics(metrics)
	ctx := context.Background()
	boom := errors.New("stream down")

	require.ErrorIs(t, breaker.Do(ctx, func(context.Context) error { return boom }), boom)
	require.Equal(t, resilience.Open, breaker.State())
	require.ErrorIs(t, breaker.Do(ctx, func(context.Context) error { return nil }), resilience.ErrOpenCircuit)

	require.Equal(t, 1.0, testutil.ToFloat64(metrics.State.WithLabelValues("events")))
	require.Equal(t, 1.0, testutil.ToFloat64(metrics.Transitions.WithLabelValues("events", "closed", "open")))
}

func TestRetryStopsOnSuccess(t *testing.T) {
	calls := 0
	err := resilience.Retry(context.Background(), 3, time.Millisecond, func(context.Context) error {
		calls++
		if calls < 2 {
			return errors.New("transient")
		}
		return nil
	})
	require.NoError(t, err)
	require.Equal(t, 2, calls)
}

func TestRetryStopsOnOpenCircuit(t *testing.T) {
	calls := 0
	err := resilience.Retry(context.Background(), 5, time.Millisecond, func(context.Context) error {
		calls++
		return resilience.ErrOpenCircuit
	})
	require.ErrorIs(t, err, resilience.ErrOpenCircuit)
	require.Equal(t, 1, calls)
}

func TestBackoffWithJitter(t *testing.T) {
	base := 100 * time.Millisecond
	require.Equal(t, base, resilience.Backoff(base, 1, 0))
	require.Equal(t, base*4, resilience.Backoff(base, 3, 0))

	d := resilience.Backoff(base, 2, 0.2)
	require.GreaterOrEqual(t, d, base*2-(base*2/5))
	require.LessOrEqual(t, d, base*2+(base*2/5))
}
