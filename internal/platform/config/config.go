package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config captures process-level configuration so main stays lean.
type Config struct {
	Addr string

	// Geofence boundary rectangle, inclusive on all edges.
	LatMin float64
	LatMax float64
	LonMin float64
	LonMax float64

	// MaxReportAge bounds how long a location report stays authoritative.
	// Older reports evaluate as unknown and the fail-closed policy applies.
	MaxReportAge time.Duration

	// Event pipeline sizing.
	QueueCapacity   int
	DecisionWorkers int

	// Listener reconnect backoff bounds.
	ReconnectMinBackoff time.Duration
	ReconnectMaxBackoff time.Duration

	// StopGracePeriod bounds how long in-flight decisions may run after a
	// monitoring session is stopped.
	StopGracePeriod time.Duration

	JWTSigningKey string
	AdminUserID   string

	// Telephony platform endpoints and OAuth client for credential refresh.
	XSIActionsURL string
	XSIEventsURL  string
	TokenURL      string
	ClientID      string
	ClientSecret  string

	Redis       RedisConfig
	PostgresDSN string

	KafkaBrokers    []string
	KafkaAuditTopic string
}

// RedisConfig holds connection tuning for the optional Redis stores.
type RedisConfig struct {
	URL          string
	PoolSize     int
	MinIdleConns int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// FromEnv builds a Config from environment variables. Boundary coordinates
// are required; everything else has development defaults.
func FromEnv() (Config, error) {
	cfg := Config{
		Addr:                envOr("CALLFENCE_ADDR", ":8080"),
		MaxReportAge:        envDuration("GEOLOCATION_MAX_AGE", 90*time.Second),
		QueueCapacity:       envInt("EVENT_QUEUE_CAPACITY", 1024),
		DecisionWorkers:     envInt("DECISION_WORKERS", 4),
		ReconnectMinBackoff: envDuration("RECONNECT_MIN_BACKOFF", time.Second),
		ReconnectMaxBackoff: envDuration("RECONNECT_MAX_BACKOFF", time.Minute),
		StopGracePeriod:     envDuration("STOP_GRACE_PERIOD", 5*time.Second),
		JWTSigningKey:       envOr("JWT_SIGNING_KEY", "dev-secret-key-change-in-production"),
		AdminUserID:         os.Getenv("ADMIN_USER_ID"),
		XSIActionsURL:       os.Getenv("XSI_ACTIONS_URL"),
		XSIEventsURL:        os.Getenv("XSI_EVENTS_URL"),
		TokenURL:            os.Getenv("OAUTH_TOKEN_URL"),
		ClientID:            os.Getenv("OAUTH_CLIENT_ID"),
		ClientSecret:        os.Getenv("OAUTH_CLIENT_SECRET"),
		PostgresDSN:         os.Getenv("POSTGRES_DSN"),
		KafkaAuditTopic:     envOr("KAFKA_AUDIT_TOPIC", "callfence.audit"),
		Redis: RedisConfig{
			URL:          os.Getenv("REDIS_URL"),
			PoolSize:     envInt("REDIS_POOL_SIZE", 10),
			MinIdleConns: envInt("REDIS_MIN_IDLE_CONNS", 2),
			DialTimeout:  envDuration("REDIS_DIAL_TIMEOUT", 5*time.Second),
			ReadTimeout:  envDuration("REDIS_READ_TIMEOUT", 3*time.Second),
			WriteTimeout: envDuration("REDIS_WRITE_TIMEOUT", 3*time.Second),
		},
	}

	if brokers := os.Getenv("KAFKA_BROKERS"); brokers != "" {
		cfg.KafkaBrokers = strings.Split(brokers, ",")
	}

	var err error
	if cfg.LatMin, err = envFloat("LAT_MIN"); err != nil {
		return Config{}, err
	}
	if cfg.LatMax, err = envFloat("LAT_MAX"); err != nil {
		return Config{}, err
	}
	if cfg.LonMin, err = envFloat("LON_MIN"); err != nil {
		return Config{}, err
	}
	if cfg.LonMax, err = envFloat("LON_MAX"); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}

func envDuration(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fallback
	}
	return d
}

func envFloat(key string) (float64, error) {
	v := os.Getenv(key)
	if v == "" {
		return 0, fmt.Errorf("%s is required", key)
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, fmt.Errorf("parse %s: %w", key, err)
	}
	return f, nil
}
