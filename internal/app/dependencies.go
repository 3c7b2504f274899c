package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	validator "github.com/go-playground/validator/v10"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/extra/redisotel/v9"
	redis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	limiter "github.com/ulule/limiter/v3"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"

	"github.com/noah-isme/backend-vending/internal/config"
	"github.com/noah-isme/backend-vending/internal/events"
	"github.com/noah-isme/backend-vending/internal/lock"
	"github.com/noah-isme/backend-vending/internal/obs"
	"github.com/noah-isme/backend-vending/internal/ratelimit"
	"github.com/noah-isme/backend-vending/internal/resilience"
	"github.com/noah-isme/backend-vending/internal/vending"
)

// Dependencies holds everything a machine process shares between its HTTP
// surface and its background loops.
type Dependencies struct {
	Config         *config.Config
	Logger         zerolog.Logger
	Redis          *redis.Client
	Validator      *validator.Validate
	InsertLimiter  *limiter.Limiter
	Locker         lock.Locker
	Lease          *lock.Lease
	Bus            *events.Bus
	Registry       prometheus.Registerer
	VendingMetrics *obs.VendingMetrics
	MeterProvider  metric.MeterProvider
	Machine        *vending.Machine
}

// New wires the dependencies described by cfg. Redis is optional: without it
// rate limits stay in process, events are only logged and nothing stops a
// second process from serving the same machine id. With Redis the process
// takes the machine lease first and fails with lock.ErrLeaseHeld when
// another process serves the machine.
func New(ctx context.Context, cfg *config.Config, logger zerolog.Logger, reg prometheus.Registerer) (*Dependencies, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	d := &Dependencies{
		Config:        cfg,
		Logger:        logger,
		Validator:     validator.New(validator.WithRequiredStructEnabled()),
		Registry:      reg,
		MeterProvider: otel.GetMeterProvider(),
	}
	if cfg.MetricsEnabled {
		d.VendingMetrics = obs.NewVendingMetrics(cfg.MetricsNamespace, reg)
	}

	if cfg.RedisURL != "" {
		client, err := OpenRedis(ctx, cfg.RedisURL, d.MeterProvider, cfg.MetricsEnabled)
		if err != nil {
			return nil, err
		}
		d.Redis = client
		d.Lease = &lock.Lease{R: client, Key: lock.LeaseKey(cfg.MachineID), TTL: cfg.LeaseTTL}
		if err := d.Lease.Acquire(ctx); err != nil {
			d.Lease = nil
			d.Close()
			return nil, fmt.Errorf("machine %s: %w", cfg.MachineID, err)
		}
	}
	d.Locker = &lock.Local{MaxWait: cfg.LockWait}

	d.Bus = &events.Bus{Notifiers: []events.Notifier{events.LogNotifier{Logger: logger}}}
	if d.Redis != nil {
		breaker := resilience.NewBreaker(5, 0.5, 30*time.Second).
			WithTarget("event_stream").
			WithLogger(logger)
		if cfg.MetricsEnabled {
			breaker = breaker.WithMetrics(resilience.NewMetrics(cfg.MetricsNamespace, reg))
		}
		d.Bus.Store = events.GuardedStore{
			Next:     events.RedisStore{Client: d.Redis, Stream: cfg.EventStream, MaxLen: cfg.EventStreamMaxLen},
			Breaker:  breaker,
			Attempts: 2,
			Backoff:  25 * time.Millisecond,
		}
	}

	lim, err := ratelimit.New(d.Redis, cfg.InsertRateWindow, cfg.InsertRateLimit)
	if err != nil {
		d.Close()
		return nil, fmt.Errorf("insert limiter: %w", err)
	}
	d.InsertLimiter = lim

	layout, err := config.LoadLayout(cfg.LayoutPath)
	if err != nil {
		d.Close()
		return nil, err
	}
	m, err := BuildMachine(cfg, layout, logger, d.VendingMetrics, d.Bus)
	if err != nil {
		d.Close()
		return nil, err
	}
	d.Machine = m
	return d, nil
}

// OpenRedis connects to url, installs redisotel tracing (and metrics when
// enabled) and checks the connection.
func OpenRedis(ctx context.Context, url string, mp metric.MeterProvider, withMetrics bool) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := redis.NewClient(opts)
	if err := redisotel.InstrumentTracing(client); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("instrument redis tracing: %w", err)
	}
	if withMetrics {
		if err := redisotel.InstrumentMetrics(client, redisotel.WithMeterProvider(mp)); err != nil {
			_ = client.Close()
			return nil, fmt.Errorf("instrument redis metrics: %w", err)
		}
	}
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return client, nil
}

// BuildMachine assembles a machine from a layout.
func BuildMachine(cfg *config.Config, layout *config.Layout, logger zerolog.Logger, metrics *obs.VendingMetrics, emitter vending.Emitter) (*vending.Machine, error) {
	b := vending.NewBuilder().
		WithID(cfg.MachineID).
		WithLogger(logger).
		WithIdleTimeout(cfg.IdleTimeout)
	if metrics != nil {
		b = b.WithMetrics(metrics)
	}
	if emitter != nil {
		b = b.WithEvents(emitter)
	}
	b, err := layout.Apply(b)
	if err != nil {
		return nil, fmt.Errorf("apply layout: %w", err)
	}
	m, err := b.Build()
	if err != nil {
		return nil, fmt.Errorf("build machine: %w", err)
	}
	return m, nil
}

// Handler returns the HTTP handler for the machine.
func (d *Dependencies) Handler() *vending.Handler {
	return &vending.Handler{
		Machine:  d.Machine,
		Locker:   d.Locker,
		LockTTL:  d.Config.LockTTL,
		Validate: d.Validator,
	}
}

// SweepIdle refunds the open transaction when it went idle. It takes the
// machine lock so a sweep never interleaves with a customer request.
func (d *Dependencies) SweepIdle(ctx context.Context, now time.Time) (bool, error) {
	var expired bool
	err := d.Locker.WithLock(ctx, lock.MachineKey(d.Machine.ID()), d.Config.LockTTL, func(ctx context.Context) error {
		change, ok := d.Machine.ExpireIdle(ctx, now)
		if ok {
			d.Logger.Info().Int64("refunded", change.Value()).Msg("idle transaction refunded")
		}
		expired = ok
		return nil
	})
	return expired, err
}

// RunIdleSweeper calls SweepIdle every interval until ctx is done.
func (d *Dependencies) RunIdleSweeper(ctx context.Context, interval time.Duration) {
	if interval <= 0 || d.Config.IdleTimeout <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			if _, err := d.SweepIdle(ctx, now); err != nil && !errors.Is(err, context.Canceled) {
				d.Logger.Error().Err(err).Msg("idle sweep")
			}
		}
	}
}

// Close gives up the machine lease and releases the Redis connection.
func (d *Dependencies) Close() {
	if d.Redis == nil {
		return
	}
	if d.Lease != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		if err := d.Lease.Release(ctx); err != nil {
			d.Logger.Error().Err(err).Msg("release machine lease")
		}
		cancel()
	}
	if err := d.Redis.Close(); err != nil {
		d.Logger.Error().Err(err).Msg("close redis")
	}
}
