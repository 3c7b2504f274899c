package events_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/noah-isme/backend-vending/internal/events"
	"github.com/noah-isme/backend-vending/internal/resilience"
)

type flakyStore struct {
	failures int
	calls    int
}

func (f *flakyStore) Append(context.Context, events.Event) error {
	f.calls++
	if f.calls <= f.failures {
		return errors.New("stream unavailable")
	}
	return nil
}

func TestGuardedStoreRetries(t *testing.T) {
	next := &flakyStore{failures: 1}
	store := events.GuardedStore{Next: next, Attempts: 3, Backoff: time.Millisecond}
	require.NoError(t, store.Append(context.Background(), events.Event{Topic: events.TopicOrderCollected}))
	require.Equal(t, 2, next.calls)
}

func TestGuardedStoreOpensBreaker(t *testing.T) {
	next := &flakyStore{failures: 100}
	breaker := resilience.NewBreaker(2, 0.5, time.Hour)
	store := events.GuardedStore{Next: next, Breaker: breaker, Attempts: 5, Backoff: time.Millisecond}

	err := store.Append(context.Background(), events.Event{Topic: events.TopicOrderCollected})
	require.ErrorIs(t, err, resilience.ErrOpenCircuit)
	require.Equal(t, 2, next.calls)

	err = store.Append(context.Background(), events.Event{Topic: events.TopicOrderCollected})
	require.ErrorIs(t, err, resilience.ErrOpenCircuit)
	require.Equal(t, 2, next.calls)
}
