package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	defaultAddr             = ":8080"
	defaultJWTSigningKey    = "dev-secret-key-change-in-production"
	defaultMaxDocumentBytes = 10 << 20
)

// Server captures process level configuration.
type Server struct {
	Addr          string
	Environment   string
	LogLevel      string
	LedgerAdmin   string
	OperatorToken string

	JWTSigningKey string
	JWTIssuer     string
	JWTAudience   string
	TokenTTL      time.Duration

	Database  DatabaseConfig
	Redis     RedisConfig
	Kafka     KafkaConfig
	IPFS      IPFSConfig
	RateLimit RateLimitConfig

	MaxDocumentBytes  int64
	VerifyTimeout     time.Duration
	IdempotencyTTL    time.Duration
	IndexCacheTTL     time.Duration
	IndexWriteRetries int
	ReconcileSchedule string
	ReconcileBatch    int
}

// DatabaseConfig configures the Postgres pool. An empty URL selects in-memory stores.
type DatabaseConfig struct {
	URL             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// RedisConfig configures the Redis client. An empty URL disables caching.
type RedisConfig struct {
	URL          string
	PoolSize     int
	MinIdleConns int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// KafkaConfig configures the ledger effect stream. Empty brokers disables it.
type KafkaConfig struct {
	Brokers      string
	EffectsTopic string
	GroupID      string
	Acks         string
	Retries      int
	PollInterval time.Duration
}

// IPFSConfig configures the document store. An empty API URL selects the in-memory store.
type IPFSConfig struct {
	APIURL        string
	GatewayURL    string
	ProjectID     string
	ProjectSecret string
	Timeout       time.Duration
}

// RateLimitConfig sets per-window request budgets. A zero budget disables
// limiting for that class.
type RateLimitConfig struct {
	Disabled     bool
	PublicPerMin int
	AdminPerMin  int
}

// IsProduction reports whether insecure development defaults must be refused.
func (s Server) IsProduction() bool {
	return s.Environment == "production"
}

// Validate rejects configurations the service cannot run with.
func (s Server) Validate() error {
	if strings.TrimSpace(s.LedgerAdmin) == "" {
		return fmt.Errorf("LEDGER_ADMIN is required")
	}
	if s.IsProduction() && s.JWTSigningKey == defaultJWTSigningKey {
		return fmt.Errorf("JWT_SIGNING_KEY must be set in production")
	}
	if s.MaxDocumentBytes <= 0 {
		return fmt.Errorf("MAX_DOCUMENT_BYTES must be positive")
	}
	return nil
}

// FromEnv builds a Server config from environment variables so main stays lean.
// A .env file in the working directory is loaded first when present; real
// environment variables take precedence over it.
func FromEnv() Server {
	_ = godotenv.Load()

	return Server{
		Addr:          getString("SHIKKHA_ADDR", defaultAddr),
		Environment:   getString("SHIKKHA_ENV", "development"),
		LogLevel:      getString("LOG_LEVEL", "info"),
		LedgerAdmin:   os.Getenv("LEDGER_ADMIN"),
		OperatorToken: os.Getenv("OPERATOR_TOKEN"),

		JWTSigningKey: getString("JWT_SIGNING_KEY", defaultJWTSigningKey),
		JWTIssuer:     getString("JWT_ISSUER", "shikkha"),
		JWTAudience:   getString("JWT_AUDIENCE", "shikkha-admin"),
		TokenTTL:      getDuration("JWT_TTL", 12*time.Hour),

		Database: DatabaseConfig{
			URL:             os.Getenv("DATABASE_URL"),
			MaxOpenConns:    getInt("DATABASE_MAX_OPEN_CONNS", 25),
			MaxIdleConns:    getInt("DATABASE_MAX_IDLE_CONNS", 5),
			ConnMaxLifetime: getDuration("DATABASE_CONN_MAX_LIFETIME", 5*time.Minute),
		},
		Redis: RedisConfig{
			URL:          os.Getenv("REDIS_URL"),
			PoolSize:     getInt("REDIS_POOL_SIZE", 10),
			MinIdleConns: getInt("REDIS_MIN_IDLE_CONNS", 2),
			DialTimeout:  getDuration("REDIS_DIAL_TIMEOUT", 5*time.Second),
			ReadTimeout:  getDuration("REDIS_READ_TIMEOUT", 3*time.Second),
			WriteTimeout: getDuration("REDIS_WRITE_TIMEOUT", 3*time.Second),
		},
		Kafka: KafkaConfig{
			Brokers:      os.Getenv("KAFKA_BROKERS"),
			EffectsTopic: getString("KAFKA_EFFECTS_TOPIC", "shikkha.ledger.effects"),
			GroupID:      getString("KAFKA_GROUP_ID", "shikkha-index-projector"),
			Acks:         getString("KAFKA_ACKS", "all"),
			Retries:      getInt("KAFKA_RETRIES", 3),
			PollInterval: getDuration("KAFKA_RELAY_INTERVAL", time.Second),
		},
		IPFS: IPFSConfig{
			APIURL:        os.Getenv("IPFS_API_URL"),
			GatewayURL:    getString("IPFS_GATEWAY", "https://ipfs.io/ipfs/"),
			ProjectID:     os.Getenv("IPFS_PROJECT_ID"),
			ProjectSecret: os.Getenv("IPFS_PROJECT_SECRET"),
			Timeout:       getDuration("IPFS_TIMEOUT", 30*time.Second),
		},
		RateLimit: RateLimitConfig{
			Disabled:     getBool("RATE_LIMIT_DISABLED", false),
			PublicPerMin: getInt("RATE_LIMIT_PUBLIC_PER_MIN", 120),
			AdminPerMin:  getInt("RATE_LIMIT_ADMIN_PER_MIN", 30),
		},

		MaxDocumentBytes:  int64(getInt("MAX_DOCUMENT_BYTES", defaultMaxDocumentBytes)),
		VerifyTimeout:     getDuration("VERIFY_TIMEOUT", 5*time.Second),
		IdempotencyTTL:    getDuration("IDEMPOTENCY_TTL", 24*time.Hour),
		IndexCacheTTL:     getDuration("INDEX_CACHE_TTL", 5*time.Minute),
		IndexWriteRetries: getInt("INDEX_WRITE_RETRIES", 5),
		ReconcileSchedule: getString("RECONCILE_SCHEDULE", "@every 1m"),
		ReconcileBatch:    getInt("RECONCILE_BATCH", 200),
	}
}

func getString(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func getBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}

func getDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}
