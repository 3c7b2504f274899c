package events

import (
	"context"
	"time"

	"github.com/noah-isme/backend-vending/internal/resilience"
)

// GuardedStore wraps an EventStore with a circuit breaker and a short retry
// loop so an unreachable stream cannot stall a purchase.
type GuardedStore struct {
	Next     EventStore
	Breaker  *resilience.Breaker
	Attempts int
	Backoff  time.Duration
}

// Append implements EventStore.
func (g GuardedStore) Append(ctx context.Context, event Event) error {
	call := func(ctx context.Context) error { return g.Next.Append(ctx, event) }
	if g.Breaker != nil {
		inner := call
		call = func(ctx context.Context) error { return g.Breaker.Do(ctx, inner) }
	}
	return resilience.Retry(ctx, g.Attempts, g.Backoff, call)
}
