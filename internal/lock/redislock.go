package lock

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

var (
	// ErrBusy is returned when another request held the machine for longer
	// than the caller was willing to wait.
	ErrBusy = errors.New("lock: machine busy")
	// ErrLeaseHeld is returned when another process already serves the machine.
	ErrLeaseHeld = errors.New("lock: machine served by another process")
	// ErrLeaseLost is returned when the lease expired and was taken over.
	ErrLeaseLost = errors.New("lock: machine lease lost")
)

// Locker serialises work on a key across the requests of one process.
type Locker interface {
	WithLock(ctx context.Context, key string, ttl time.Duration, fn func(context.Context) error) error
}

// MachineKey returns the key guarding one machine's transaction state.
func MachineKey(machineID string) string {
	return "vending:lock:" + machineID
}

// LeaseKey returns the Redis key naming the process that serves a machine.
func LeaseKey(machineID string) string {
	return "vending:lease:" + machineID
}

// Lease claims a machine id for one process. Transaction state lives in the
// serving process's memory, so a second process started with the same
// MACHINE_ID must refuse to serve instead of running a parallel machine.
type Lease struct {
	R   *redis.Client
	Key string
	TTL time.Duration

	token string
}

// Acquire takes the lease or fails with ErrLeaseHeld.
func (l *Lease) Acquire(ctx context.Context) error {
	if l.R == nil {
		return errors.New("lock: redis client not configured")
	}
	token := uuid.NewString()
	ok, err := l.R.SetNX(ctx, l.Key, token, l.ttl()).Result()
	if err != nil {
		return err
	}
	if !ok {
		return ErrLeaseHeld
	}
	l.token = token
	return nil
}

// Renew extends the lease. ErrLeaseLost means another process owns the key
// now and this one must stop serving.
func (l *Lease) Renew(ctx context.Context) error {
	const script = `if redis.call("get", KEYS[1]) == ARGV[1] then
  return redis.call("pexpire", KEYS[1], ARGV[2])
else
  return 0
end`
	if l.token == "" {
		return ErrLeaseLost
	}
	n, err := l.R.Eval(ctx, script, []string{l.Key}, l.token, l.ttl().Milliseconds()).Int()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrLeaseLost
	}
	return nil
}

// Keep renews the lease every interval until ctx is done. onLost is called
// once if the lease is lost; transient Redis errors are retried on the next
// tick while the lease has not expired.
func (l *Lease) Keep(ctx context.Context, interval time.Duration, onLost func(error)) {
	if interval <= 0 {
		interval = l.ttl() / 3
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	lastRenew := time.Now()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			err := l.Renew(ctx)
			switch {
			case err == nil:
				lastRenew = now
				continue
			case ctx.Err() != nil:
				return
			case !errors.Is(err, ErrLeaseLost) && now.Sub(lastRenew) < l.ttl():
				continue
			}
			if onLost != nil {
				onLost(err)
			}
			return
		}
	}
}

// Release gives the lease up if this process still holds it.
func (l *Lease) Release(ctx context.Context) error {
	const script = `if redis.call("get", KEYS[1]) == ARGV[1] then
  return redis.call("del", KEYS[1])
else
  return 0
end`
	if l.R == nil || l.token == "" {
		return nil
	}
	err := l.R.Eval(ctx, script, []string{l.Key}, l.token).Err()
	if err != nil && strings.Contains(strings.ToLower(err.Error()), "unknown command") {
		err = l.R.Del(ctx, l.Key).Err()
	}
	l.token = ""
	return err
}

func (l *Lease) ttl() time.Duration {
	if l.TTL <= 0 {
		return 15 * time.Second
	}
	return l.TTL
}

// Local serialises the requests and background sweeps of the process that
// holds the machine lease. The ttl is ignored; a crashed holder takes the
// process with it.
type Local struct {
	MaxWait time.Duration

	mu    sync.Mutex
	slots map[string]chan struct{}
}

// WithLock implements Locker.
func (l *Local) WithLock(ctx context.Context, key string, _ time.Duration, fn func(context.Context) error) error {
	if fn == nil {
		return errors.New("lock: callback not provided")
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	slot := l.slot(key)

	waitCtx, cancel := withMaxWait(ctx, l.MaxWait)
	defer cancel()
	select {
	case slot <- struct{}{}:
	case <-waitCtx.Done():
		return acquireErr(ctx, waitCtx.Err())
	}
	defer func() { <-slot }()
	return fn(ctx)
}

func (l *Local) slot(key string) chan struct{} {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.slots == nil {
		l.slots = map[string]chan struct{}{}
	}
	s, ok := l.slots[key]
	if !ok {
		s = make(chan struct{}, 1)
		l.slots[key] = s
	}
	return s
}

func withMaxWait(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, d)
}

// acquireErr keeps the caller's own cancellation visible and reports a
// timed-out wait as ErrBusy.
func acquireErr(parent context.Context, err error) error {
	if parent.Err() != nil {
		return parent.Err()
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return ErrBusy
	}
	return err
}
