package health

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"
)

// Checker probes the shared stores a machine depends on.
type Checker interface {
	PingRedis(ctx context.Context, timeout time.Duration) error
}

// ErrDisabled marks a dependency that is not configured. It does not fail
// readiness.
var ErrDisabled = errors.New("disabled")

var ready atomic.Bool

func init() { ready.Store(true) }

// SetReady flips the readiness flag. It is cleared during shutdown so load
// balancers stop routing new customers to the machine.
func SetReady(v bool) { ready.Store(v) }

// RedisChecker pings the Redis instance holding locks, limits and events.
type RedisChecker struct {
	Client *redis.Client
}

// PingRedis reports ErrDisabled when no client is configured.
func (c RedisChecker) PingRedis(ctx context.Context, timeout time.Duration) error {
	if c.Client == nil {
		return ErrDisabled
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	return c.Client.Ping(ctx).Err()
}

// Handler exposes HTTP handlers for health endpoints.
type Handler struct {
	Checker      Checker
	RedisTimeout time.Duration
	// MachineState reports the current transaction phase, when set.
	MachineState func() string
}

// Live reports liveness status.
func (h Handler) Live(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

// Ready reports readiness based on dependency probes.
func (h Handler) Ready(w http.ResponseWriter, r *http.Request) {
	status := map[string]string{}
	healthy := ready.Load()
	if !healthy {
		status["server"] = "shutting down"
	}
	if h.Checker != nil {
		switch err := h.Checker.PingRedis(r.Context(), h.redisTimeout()); {
		case err == nil:
			status["redis"] = "ok"
		case errors.Is(err, ErrDisabled):
			status["redis"] = ErrDisabled.Error()
		default:
			status["redis"] = err.Error()
			healthy = false
		}
	}
	if h.MachineState != nil {
		status["machine"] = h.MachineState()
	}
	w.Header().Set("Content-Type", "application/json")
	if healthy {
		w.WriteHeader(http.StatusOK)
	} else {
		w.WriteHeader(http.StatusServiceUnavailable)
	}
	_ = json.NewEncoder(w).Encode(status)
}

func (h Handler) redisTimeout() time.Duration {
	if h.RedisTimeout <= 0 {
		return 300 * time.Millisecond
	}
	return h.RedisTimeout
}
