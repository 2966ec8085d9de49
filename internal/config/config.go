// Package config loads commutedeck configuration from the environment.
package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all application configuration.
type Config struct {
	// Server
	Port string
	Env  string

	// Telemetry
	OTELEnabled     bool
	OTLPEndpoint    string
	OTELSampleRatio float64

	// Upstreams
	ODPTBaseURL     string
	ODPTConsumerKey string
	ODPTOperators   []string
	OverpassURL     string

	// APIBaseURL is where the terminal client finds the API server.
	APIBaseURL string

	// Caches
	RailwayIndexTTL    time.Duration
	StationCacheTTL    time.Duration
	StatusCacheTTL     time.Duration
	StatusStaleTTL     time.Duration
	IndexBuildTimeout  time.Duration
	SessionPollPeriod  time.Duration
	SessionSideTableSz int

	// HTTP
	CORSAllowedOrigins []string
	RateLimitPerMinute int
	RequireTLS         bool

	// Admin
	JWTSigningKey string
	JWTExpiry     time.Duration

	// Worker
	StatusStoreDriver  string // memory, postgres, sqlite
	SQLitePath         string
	PubSubProjectID    string
	PubSubSubscription string
	MaxDeliveries      int
	WatchInterval      time.Duration
	WatchRailways      []string
	DiscordWebhookURL  string
	AMQPURL            string
	AMQPExchange       string
}

// Load reads .env files when present and then the environment.
// Missing .env files are not an error.
func Load() *Config {
	_ = godotenv.Load()
	_ = godotenv.Overload(".env.local")

	return &Config{
		Port: getEnv("APP_PORT", "8080"),
		Env:  getEnv("APP_ENV", "development"),

		OTELEnabled:     getEnv("OTEL_ENABLED", "") == "true",
		OTLPEndpoint:    getEnv("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4317"),
		OTELSampleRatio: getFloat("OTEL_TRACES_SAMPLER_ARG", 1),

		ODPTBaseURL:     getEnv("ODPT_BASE_URL", "https://api.odpt.org/api/v4"),
		ODPTConsumerKey: getEnv("ODPT_CONSUMER_KEY", ""),
		ODPTOperators:   getList("ODPT_OPERATORS", nil),
		OverpassURL:     getEnv("OVERPASS_URL", "https://overpass-api.de/api/interpreter"),
		APIBaseURL:      getEnv("COMMUTEDECK_API_URL", "http://localhost:8080"),

		RailwayIndexTTL:    getDuration("RAILWAY_INDEX_TTL", 24*time.Hour),
		StationCacheTTL:    getDuration("STATION_CACHE_TTL", 10*time.Minute),
		StatusCacheTTL:     getDuration("STATUS_CACHE_TTL", time.Minute),
		StatusStaleTTL:     getDuration("STATUS_STALE_TTL", 10*time.Minute),
		IndexBuildTimeout:  getDuration("RAILWAY_INDEX_BUILD_TIMEOUT", 30*time.Second),
		SessionPollPeriod:  getDuration("SESSION_POLL_INTERVAL", 3*time.Minute),
		SessionSideTableSz: getEnvInt("SESSION_SIDE_TABLE_SIZE", 64),

		CORSAllowedOrigins: getList("CORS_ALLOWED_ORIGINS", []string{"*"}),
		RateLimitPerMinute: getEnvInt("RATE_LIMIT_PER_MINUTE", 120),
		RequireTLS:         getEnv("REQUIRE_TLS", "") == "true",

		JWTSigningKey: getEnv("JWT_SIGNING_KEY", ""),
		JWTExpiry:     getDuration("JWT_EXPIRY", time.Hour),

		StatusStoreDriver:  getEnv("STATUS_STORE", "memory"),
		SQLitePath:         getEnv("SQLITE_DATABASE", "commutedeck.db"),
		PubSubProjectID:    getEnv("PUBSUB_PROJECT_ID", ""),
		PubSubSubscription: getEnv("PUBSUB_SUBSCRIPTION", "commutedeck-worker"),
		MaxDeliveries:      getEnvInt("WORKER_MAX_DELIVERY_ATTEMPTS", 5),
		WatchInterval:      getDuration("WATCH_INTERVAL", 3*time.Minute),
		WatchRailways:      getList("WATCH_RAILWAYS", nil),
		DiscordWebhookURL:  getEnv("DISCORD_WEBHOOK_URL", ""),
		AMQPURL:            getEnv("AMQP_URL", ""),
		AMQPExchange:       getEnv("AMQP_EXCHANGE", "transit.status"),
	}
}

// IsDevelopment returns true if running in development mode.
func (c *Config) IsDevelopment() bool {
	return c.Env == "development"
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

// getDuration accepts Go duration strings ("90s") or plain seconds ("90").
func getDuration(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	if d, err := time.ParseDuration(value); err == nil {
		return d
	}
	if seconds, err := strconv.Atoi(value); err == nil {
		return time.Duration(seconds) * time.Second
	}
	return defaultValue
}

func getList(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
