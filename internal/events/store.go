package events

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// DefaultStream is the Redis stream events are appended to.
const DefaultStream = "vending:events"

// RedisStore appends events to a capped Redis stream.
type RedisStore struct {
	Client *redis.Client
	Stream string
	MaxLen int64
}

// Append implements EventStore.
func (s RedisStore) Append(ctx context.Context, event Event) error {
	if s.Client == nil {
		return errors.New("redis client not configured")
	}
	data, err := json.Marshal(event)
	if err != nil {
		return err
	}
	stream := s.Stream
	if stream == "" {
		stream = DefaultStream
	}
	args := &redis.XAddArgs{
		Stream: stream,
		Values: map[string]any{"topic": event.Topic, "event": string(data)},
	}
	if s.MaxLen > 0 {
		args.MaxLen = s.MaxLen
		args.Approx = true
	}
	return s.Client.XAdd(ctx, args).Err()
}

// LogNotifier writes every event to a structured logger.
type LogNotifier struct {
	Logger zerolog.Logger
}

// Notify implements Notifier.
func (n LogNotifier) Notify(_ context.Context, event Event) error {
	n.Logger.Info().
		Str("event_id", event.ID.String()).
		Str("topic", event.Topic).
		Str("machine_id", event.MachineID).
		RawJSON("payload", event.Payload).
		Msg("domain_event")
	return nil
}
