package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Server captures process level configuration.
type Server struct {
	Addr         string
	DatabaseURL  string
	KafkaBrokers []string

	JWTSigningKey string
	JWTIssuer     string
	JWTAudience   string

	ReservationTTL       time.Duration
	AIRateLimitPerMinute int
	AIMaxInputLength     int

	Redis RedisConfig
}

// RedisConfig captures Redis client settings.
type RedisConfig struct {
	URL          string
	PoolSize     int
	MinIdleConns int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// FromEnv builds a Server config from environment variables so main stays lean.
func FromEnv() Server {
	addr := os.Getenv("SHAHIN_ADDR")
	if addr == "" {
		addr = ":8080"
	}

	jwtSigningKey := os.Getenv("JWT_SIGNING_KEY")
	if jwtSigningKey == "" {
		// Use a default for development - should be overridden in production
		jwtSigningKey = "dev-secret-key-change-in-production"
	}

	var brokers []string
	if raw := os.Getenv("KAFKA_BROKERS"); raw != "" {
		for _, broker := range strings.Split(raw, ",") {
			if broker = strings.TrimSpace(broker); broker != "" {
				brokers = append(brokers, broker)
			}
		}
	}

	return Server{
		Addr:                 addr,
		DatabaseURL:          os.Getenv("DATABASE_URL"),
		KafkaBrokers:         brokers,
		JWTSigningKey:        jwtSigningKey,
		JWTIssuer:            envOr("JWT_ISSUER", "shahin"),
		JWTAudience:          envOr("JWT_AUDIENCE", "shahin-api"),
		ReservationTTL:       envDuration("RESERVATION_TTL", 30*time.Minute),
		AIRateLimitPerMinute: envInt("AI_RATE_LIMIT_PER_MINUTE", 60),
		AIMaxInputLength:     envInt("AI_MAX_INPUT_LENGTH", 10000),
		Redis: RedisConfig{
			URL:          os.Getenv("REDIS_URL"),
			PoolSize:     envInt("REDIS_POOL_SIZE", 10),
			MinIdleConns: envInt("REDIS_MIN_IDLE_CONNS", 2),
			DialTimeout:  envDuration("REDIS_DIAL_TIMEOUT", 5*time.Second),
			ReadTimeout:  envDuration("REDIS_READ_TIMEOUT", 3*time.Second),
			WriteTimeout: envDuration("REDIS_WRITE_TIMEOUT", 3*time.Second),
		},
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			return n
		}
	}
	return fallback
}

func envDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil && d > 0 {
			return d
		}
	}
	return fallback
}
