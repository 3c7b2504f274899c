package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/v2"
)

// Config holds application configuration loaded from the environment.
type Config struct {
	AppEnv             string
	Port               string
	MachineID          string
	LayoutPath         string
	RedisURL           string
	CORSAllowedOrigins []string
	IdleTimeout        time.Duration
	IdleSweepInterval  time.Duration
	LockTTL            time.Duration
	LockWait           time.Duration
	LeaseTTL           time.Duration
	TerminalIDs        []string
	TrustProxyHeaders  bool
	InsertRateLimit    int64
	InsertRateWindow   time.Duration
	EventStream        string
	EventStreamMaxLen  int64
	LogFormat          string
	LogLevel           string
	MetricsNamespace   string
	MetricsEnabled     bool
	TracingEnabled     bool
	TracingEndpoint    string
	TracingSampling    float64
	PprofEnabled       bool
	PprofUser          string
	PprofPass          string
	ReadyRedisTimeout  time.Duration
	ShutdownTimeout    time.Duration
}

// Load reads configuration from environment variables and optional .env files.
func Load() (*Config, error) {
	_ = godotenv.Load()

	k := koanf.New(".")
	if err := k.Load(env.Provider("", ".", func(s string) string { return s }), nil); err != nil {
		return nil, fmt.Errorf("load env: %w", err)
	}

	cfg := &Config{
		AppEnv:             valueOrDefault(k.String("APP_ENV"), "development"),
		Port:               valueOrDefault(k.String("PORT"), "8080"),
		MachineID:          valueOrDefault(k.String("MACHINE_ID"), "vm-1"),
		LayoutPath:         strings.TrimSpace(k.String("MACHINE_LAYOUT")),
		RedisURL:           strings.TrimSpace(k.String("REDIS_URL")),
		CORSAllowedOrigins: splitAndTrim(k.String("CORS_ALLOWED_ORIGINS")),
		IdleTimeout:        parseDuration(k.String("MACHINE_IDLE_TIMEOUT"), "2m"),
		IdleSweepInterval:  parseDuration(k.String("MACHINE_IDLE_SWEEP_INTERVAL"), "5s"),
		LockTTL:            parseDuration(k.String("MACHINE_LOCK_TTL"), "10s"),
		LockWait:           parseDuration(k.String("MACHINE_LOCK_WAIT"), "3s"),
		LeaseTTL:           parseDuration(k.String("MACHINE_LEASE_TTL"), "15s"),
		TerminalIDs:        splitAndTrim(k.String("TERMINAL_IDS")),
		TrustProxyHeaders:  parseBoolDefault(k.String("TRUST_PROXY_HEADERS"), false),
		InsertRateLimit:    parseInt(k.String("INSERT_RATE_LIMIT"), 60),
		InsertRateWindow:   parseDuration(k.String("INSERT_RATE_WINDOW"), "1m"),
		EventStream:        valueOrDefault(k.String("EVENT_STREAM"), "vending:events"),
		EventStreamMaxLen:  parseInt(k.String("EVENT_STREAM_MAXLEN"), 10000),
		LogFormat:          valueOrDefault(k.String("OBS_LOG_FORMAT"), "json"),
		LogLevel:           valueOrDefault(k.String("OBS_LOG_LEVEL"), "info"),
		MetricsNamespace:   valueOrDefault(k.String("OBS_METRICS_NAMESPACE"), "vending"),
		MetricsEnabled:     parseBoolDefault(k.String("OBS_ENABLE_PROMETHEUS"), true),
		TracingEnabled:     parseBoolDefault(k.String("OBS_ENABLE_TRACING"), false),
		TracingEndpoint:    strings.TrimSpace(k.String("OBS_OTLP_ENDPOINT")),
		TracingSampling:    parseFloat(k.String("OBS_TRACING_SAMPLING_RATIO"), 1),
		PprofEnabled:       parseBoolDefault(k.String("OBS_ENABLE_PPROF"), false),
		PprofUser:          strings.TrimSpace(k.String("SECURE_PPROF_BASIC_AUTH_USER")),
		PprofPass:          strings.TrimSpace(k.String("SECURE_PPROF_BASIC_AUTH_PASS")),
		ReadyRedisTimeout:  parseDuration(k.String("HEALTH_READY_REDIS_TIMEOUT"), "300ms"),
		ShutdownTimeout:    parseDuration(k.String("SHUTDOWN_TIMEOUT"), "10s"),
	}

	if cfg.LayoutPath == "" {
		return nil, errors.New("MACHINE_LAYOUT is required")
	}
	if cfg.LeaseTTL <= 0 {
		return nil, errors.New("MACHINE_LEASE_TTL must be positive")
	}
	if cfg.LockTTL <= 0 {
		return nil, errors.New("MACHINE_LOCK_TTL must be positive")
	}

	return cfg, nil
}

// HTTPAddr returns the address the HTTP server should bind to.
func (c *Config) HTTPAddr() string {
	port := strings.TrimSpace(c.Port)
	if port == "" {
		port = "8080"
	}
	if strings.HasPrefix(port, ":") {
		return port
	}
	return ":" + port
}

func splitAndTrim(value string) []string {
	if value == "" {
		return nil
	}
	parts := strings.Split(value, ",")
	result := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			result = append(result, trimmed)
		}
	}
	return result
}

func valueOrDefault(value, fallback string) string {
	if strings.TrimSpace(value) != "" {
		return strings.TrimSpace(value)
	}
	return fallback
}

func parseDuration(value, fallback string) time.Duration {
	base := strings.TrimSpace(value)
	if base == "" {
		base = fallback
	}
	d, err := time.ParseDuration(base)
	if err != nil {
		d, _ = time.ParseDuration(fallback)
	}
	return d
}

func parseBoolDefault(value string, fallback bool) bool {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	default:
		return fallback
	}
}

func parseInt(value string, fallback int64) int64 {
	v, err := strconv.ParseInt(strings.TrimSpace(value), 10, 64)
	if err != nil {
		return fallback
	}
	return v
}

func parseFloat(value string, fallback float64) float64 {
	v, err := strconv.ParseFloat(strings.TrimSpace(value), 64)
	if err != nil {
		return fallback
	}
	return v
}

// MustLoad behaves like Load but panics on error. Useful for tests and command entrypoints.
func MustLoad() *Config {
	cfg, err := Load()
	if err != nil {
		panic(err)
	}
	return cfg
}

// LoadForTests allows tests to override environment variables without touching the real environment.
func LoadForTests(env map[string]string) (*Config, error) {
	original := make(map[string]string, len(env))
	for key := range env {
		original[key] = os.Getenv(key)
		if err := setEnvVar(key, env[key]); err != nil {
			return nil, err
		}
	}
	cfg, err := Load()
	restoreErr := restoreEnv(original)
	if err != nil {
		return nil, err
	}
	return cfg, restoreErr
}

func setEnvVar(key, value string) error {
	if value == "" {
		return os.Unsetenv(key)
	}
	return os.Setenv(key, value)
}

func restoreEnv(values map[string]string) error {
	var errs []string
	for key, value := range values {
		if err := setEnvVar(key, value); err != nil {
			errs = append(errs, fmt.Sprintf("%s: %v", key, err))
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("restore env: %s", strings.Join(errs, "; "))
	}
	return nil
}
