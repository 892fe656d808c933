package config

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Fallback signing key used when JWT_SECRET is absent. Deliberately weak;
// Load flags it so main can log one warning at startup instead of crashing.
const insecureFallbackSecret = "super-secret-finance-tracker-key"

type Config struct {
	Env  string
	Port int

	DBURL string

	JWTSecret  string
	AccessTTL  time.Duration
	RefreshTTL time.Duration
	// true when JWTSecret is the insecure built-in fallback
	UsingFallbackSecret bool

	RedisAddr         string
	RedisPassword     string
	RedisDB           int
	AnalyticsCacheTTL time.Duration

	AllowedOrigins []string

	OTLPEndpoint string
}

func Load() Config {
	// .env is optional; real environment variables win either way
	_ = godotenv.Load()

	env := getEnv("APP_ENV", "dev")
	port := getEnvInt("PORT", 8080)
	dbURL := buildDBURL()

	secret := os.Getenv("JWT_SECRET")
	usingFallback := secret == ""

	if usingFallback {
		secret = insecureFallbackSecret
	}

	return Config{
		Env:   env,
		Port:  port,
		DBURL: dbURL,

		JWTSecret:           secret,
		AccessTTL:           getEnvDuration("JWT_ACCESS_TTL", 60*time.Minute),
		RefreshTTL:          getEnvDuration("JWT_REFRESH_TTL", 24*time.Hour),
		UsingFallbackSecret: usingFallback,

		RedisAddr:         getEnv("REDIS_ADDR", ""),
		RedisPassword:     getEnv("REDIS_PASSWORD", ""),
		RedisDB:           getEnvInt("REDIS_DB", 0),
		AnalyticsCacheTTL: getEnvDuration("ANALYTICS_CACHE_TTL", 30*time.Second),

		AllowedOrigins: splitList(getEnv("CORS_ALLOWED_ORIGINS", "http://localhost:5173")),

		OTLPEndpoint: getEnv("OTEL_EXPORTER_OTLP_ENDPOINT", ""),
	}
}

func buildDBURL() string {
	host := getEnv("DB_HOST", "127.0.0.1")
	port := getEnv("DB_PORT", "5432")
	user := getEnv("DB_USER", "fintrack")
	pass := getEnv("DB_PASSWORD", "fintrack")
	name := getEnv("DB_NAME", "fintrack")
	ssl := getEnv("DB_SSLMODE", "disable")

	return "postgres://" + user + ":" + pass + "@" + host + ":" + port + "/" + name + "?sslmode=" + ssl
}

func WithTimeout(duration time.Duration) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), duration)
}

func splitList(v string) []string {
	parts := strings.Split(v, ",")

	out := make([]string, 0, len(parts))

	for _, p := range parts {
		p = strings.TrimSpace(p)

		if p != "" {
			out = append(out, p)
		}
	}

	return out
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}

	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		num, err := strconv.Atoi(v)

		if err != nil {
			fmt.Println(err)
			return fallback
		}

		return num
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		d, err := time.ParseDuration(v)

		if err != nil {
			fmt.Println(err)
			return fallback
		}

		return d
	}
	return fallback
}
