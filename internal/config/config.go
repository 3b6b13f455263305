package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Store backends for the local submission records.
const (
	StoreMemory   = "memory"
	StoreRedis    = "redis"
	StorePostgres = "postgres"
)

// Public TaxBandits endpoints.
const (
	DefaultSandboxOAuthURL    = "https://testoauth.expressauth.net/v2/tbsauth"
	DefaultSandboxAPIURL      = "https://testsandbox.taxbandits.com/v1.7.3"
	DefaultProductionOAuthURL = "https://oauth.expressauth.net/v2/tbsauth"
	DefaultProductionAPIURL   = "https://api.taxbandits.com/v1.7.3"
)

// Config contains runtime configuration values.
type Config struct {
	Environment string
	HTTPPort    string
	ServiceName string

	ClientID           string
	ClientSecret       string
	UserToken          string
	Sandbox            bool
	SandboxOAuthURL    string
	SandboxAPIURL      string
	ProductionOAuthURL string
	ProductionAPIURL   string
	HTTPTimeout        time.Duration

	PollInitialInterval time.Duration
	PollLongInterval    time.Duration
	PollSwitchAfter     time.Duration
	PollMaxDuration     time.Duration

	StoreBackend  string
	DatabaseURL   string
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	SubmissionTTL time.Duration

	APIKeyHashes         []string
	RateLimitRPM         int
	TelemetryEndpoint    string
	TelemetryInsecure    bool
	TelemetrySampleRatio float64
	CORSAllowedOrigins   []string
	CORSAllowedMethods   []string
	CORSAllowedHeaders   []string
	CORSAllowCredentials bool
}

// Load reads configuration from environment variables with sane defaults.
func Load() (Config, error) {
	_ = godotenv.Load()

	cfg := Config{
		Environment: getEnv("APP_ENV", "development"),
		HTTPPort:    getEnv("HTTP_PORT", "8080"),
		ServiceName: getEnv("SERVICE_NAME", "valora-filing"),

		ClientID:           strings.TrimSpace(os.Getenv("TAXBANDITS_CLIENT_ID")),
		ClientSecret:       strings.TrimSpace(os.Getenv("TAXBANDITS_CLIENT_SECRET")),
		UserToken:          strings.TrimSpace(os.Getenv("TAXBANDITS_USER_TOKEN")),
		Sandbox:            getBool("TAXBANDITS_SANDBOX", true),
		SandboxOAuthURL:    getEnv("TAXBANDITS_SANDBOX_OAUTH_URL", DefaultSandboxOAuthURL),
		SandboxAPIURL:      getEnv("TAXBANDITS_SANDBOX_API_URL", DefaultSandboxAPIURL),
		ProductionOAuthURL: getEnv("TAXBANDITS_OAUTH_URL", DefaultProductionOAuthURL),
		ProductionAPIURL:   getEnv("TAXBANDITS_API_URL", DefaultProductionAPIURL),
		HTTPTimeout:        getDuration("TAXBANDITS_HTTP_TIMEOUT", 30*time.Second),

		PollInitialInterval: getDuration("POLL_INITIAL_INTERVAL", 10*time.Second),
		PollLongInterval:    getDuration("POLL_LONG_INTERVAL", time.Minute),
		PollSwitchAfter:     getDuration("POLL_SWITCH_AFTER", 5*time.Minute),
		PollMaxDuration:     getDuration("POLL_MAX_DURATION", time.Hour),

		StoreBackend:  strings.ToLower(getEnv("STORE_BACKEND", StoreMemory)),
		DatabaseURL:   os.Getenv("DATABASE_URL"),
		RedisAddr:     getEnv("REDIS_ADDR", "127.0.0.1:6379"),
		RedisPassword: os.Getenv("REDIS_PASSWORD"),
		RedisDB:       getInt("REDIS_DB", 0),
		SubmissionTTL: getDuration("SUBMISSION_TTL", 30*24*time.Hour),

		APIKeyHashes:         getList("API_KEY_HASHES", nil),
		RateLimitRPM:         getInt("RATE_LIMIT_RPM", 600),
		TelemetryEndpoint:    os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"),
		TelemetryInsecure:    getBool("OTEL_EXPORTER_OTLP_INSECURE", true),
		TelemetrySampleRatio: getFloat("OTEL_TRACES_SAMPLE_RATIO", 1),
		CORSAllowedOrigins:   getList("CORS_ALLOWED_ORIGINS", []string{"*"}),
		CORSAllowedMethods:   getList("CORS_ALLOWED_METHODS", []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"}),
		CORSAllowedHeaders:   getList("CORS_ALLOWED_HEADERS", []string{"Authorization", "Content-Type", "X-API-Key"}),
		CORSAllowCredentials: getBool("CORS_ALLOW_CREDENTIALS", false),
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks required values and cross-field constraints.
func (c Config) Validate() error {
	if c.ClientID == "" {
		return fmt.Errorf("TAXBANDITS_CLIENT_ID is required")
	}
	if c.ClientSecret == "" {
		return fmt.Errorf("TAXBANDITS_CLIENT_SECRET is required")
	}
	if c.UserToken == "" {
		return fmt.Errorf("TAXBANDITS_USER_TOKEN is required")
	}
	switch c.StoreBackend {
	case StoreMemory:
	case StoreRedis:
		if strings.TrimSpace(c.RedisAddr) == "" {
			return fmt.Errorf("REDIS_ADDR is required for the redis store")
		}
	case StorePostgres:
		if strings.TrimSpace(c.DatabaseURL) == "" {
			return fmt.Errorf("DATABASE_URL is required for the postgres store")
		}
	default:
		return fmt.Errorf("STORE_BACKEND must be one of memory, redis, postgres")
	}
	if c.PollInitialInterval <= 0 || c.PollLongInterval <= 0 {
		return fmt.Errorf("poll intervals must be positive")
	}
	return nil
}

func getEnv(key, def string) string {
	if v, ok := os.LookupEnv(key); ok {
		return v
	}
	return def
}

func getDuration(key string, def time.Duration) time.Duration {
	if v, ok := os.LookupEnv(key); ok {
		d, err := time.ParseDuration(v)
		if err == nil {
			return d
		}
	}
	return def
}

func getInt(key string, def int) int {
	if v, ok := os.LookupEnv(key); ok {
		n, err := strconv.Atoi(v)
		if err == nil {
			return n
		}
	}
	return def
}

func getFloat(key string, def float64) float64 {
	if v, ok := os.LookupEnv(key); ok {
		f, err := strconv.ParseFloat(v, 64)
		if err == nil {
			return f
		}
	}
	return def
}

func getBool(key string, def bool) bool {
	if v, ok := os.LookupEnv(key); ok {
		switch strings.ToLower(v) {
		case "1", "true", "t", "yes", "y", "on":
			return true
		case "0", "false", "f", "no", "n", "off":
			return false
		}
	}
	return def
}

func getList(key string, def []string) []string {
	if v, ok := os.LookupEnv(key); ok {
		parts := strings.Split(v, ",")
		var cleaned []string
		for _, p := range parts {
			trimmed := strings.TrimSpace(p)
			if trimmed != "" {
				cleaned = append(cleaned, trimmed)
			}
		}
		if len(cleaned) > 0 {
			return cleaned
		}
	}
	return def
}
