package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config centralizes runtime settings for the gateway, search and video
// services. All values come from the environment with sane defaults so a
// bare `go run` works against the in-memory backends.
type Config struct {
	Port string

	// AuthTokens maps bearer tokens to principal ids for local and test
	// deployments ("token1=user1,token2=user2"). AuthVerifyURL, when set,
	// delegates verification to the auth service instead.
	AuthTokens    map[string]string
	AuthVerifyURL string

	DatabaseURL string

	RedisAddr     string
	RedisPassword string
	RedisDB       int
	RedisStream   string
	RedisGroup    string
	RedisConsumer string

	BreakerFailureThreshold int
	BreakerResetTimeout     time.Duration
	GatewayCallTimeout      time.Duration

	WorkerPollInterval time.Duration
	WorkerCount        int

	AuthServiceURL      string
	VideoServiceURL     string
	SearchServiceURL    string
	AnalyticsServiceURL string

	RateLimitRPS   float64
	RateLimitBurst int

	CORSAllowedOrigins []string
}

func Load() Config {
	return Config{
		Port: getEnv("PORT", "8080"),

		AuthTokens:    parseTokenPairs(getEnv("AUTH_TOKENS", "")),
		AuthVerifyURL: getEnv("AUTH_VERIFY_URL", ""),

		DatabaseURL: getEnv("DATABASE_URL", ""),

		RedisAddr:     getEnv("REDIS_ADDR", ""),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisDB:       getEnvInt("REDIS_DB", 0),
		RedisStream:   getEnv("REDIS_STREAM", "search_jobs"),
		RedisGroup:    getEnv("REDIS_GROUP", "search_workers"),
		RedisConsumer: getEnv("REDIS_CONSUMER", "worker-1"),

		BreakerFailureThreshold: getEnvInt("BREAKER_FAILURE_THRESHOLD", 5),
		BreakerResetTimeout:     getEnvDurationMS("BREAKER_RESET_TIMEOUT_MS", 30*time.Second),
		GatewayCallTimeout:      getEnvDurationMS("GATEWAY_CALL_TIMEOUT_MS", 3*time.Second),

		WorkerPollInterval: getEnvDurationMS("WORKER_POLL_INTERVAL_MS", 500*time.Millisecond),
		WorkerCount:        getEnvInt("WORKER_COUNT", 1),

		AuthServiceURL:      getEnv("AUTH_SERVICE_URL", "http://localhost:5002"),
		VideoServiceURL:     getEnv("VIDEO_SERVICE_URL", "http://localhost:5003"),
		SearchServiceURL:    getEnv("SEARCH_SERVICE_URL", "http://localhost:5001"),
		AnalyticsServiceURL: getEnv("ANALYTICS_SERVICE_URL", "http://localhost:5004"),

		RateLimitRPS:   getEnvFloat("RATE_LIMIT_RPS", 20),
		RateLimitBurst: getEnvInt("RATE_LIMIT_BURST", 40),

		CORSAllowedOrigins: splitList(getEnv("CORS_ALLOWED_ORIGINS", "")),
	}
}

func getEnv(key, fallback string) string {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	return value
}

func getEnvInt(key string, fallback int) int {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvFloat(key string, fallback float64) float64 {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvDurationMS(key string, fallback time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil || parsed <= 0 {
		return fallback
	}
	return time.Duration(parsed) * time.Millisecond
}

func splitList(value string) []string {
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

func parseTokenPairs(value string) map[string]string {
	pairs := make(map[string]string)
	for _, part := range strings.Split(value, ",") {
		token, user, ok := strings.Cut(strings.TrimSpace(part), "=")
		if !ok {
			continue
		}
		token = strings.TrimSpace(token)
		user = strings.TrimSpace(user)
		if token != "" && user != "" {
			pairs[token] = user
		}
	}
	return pairs
}
