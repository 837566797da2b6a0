// Package config handles application configuration.
package config

import (
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"golang.org/x/crypto/hkdf"
)

// Config holds all application configuration.
type Config struct {
	// Server settings
	Port    int
	BaseURL string
	Env     string // "development" or "production"

	// Database
	DatabaseURL string

	// Dashboard authentication
	JWTSecret string
	JWTExpiry time.Duration

	// Encryption key for webhook secrets at rest (AES-256-GCM)
	EncryptionKey []byte

	// Stripe (plan sync)
	StripeSecretKey     string
	StripeWebhookSecret string

	// CORS origins for the merchant dashboard
	CORSOrigins []string

	// Object storage for try-on result images (S3-compatible)
	StorageEnabled   bool
	StorageEndpoint  string
	StorageAccessKey string
	StorageSecretKey string
	StorageBucket    string
	StorageRegion    string
	StoragePublicURL string // CDN/public base URL for stored objects

	// Webhook dispatch
	WebhookQueueSize   int
	WebhookConcurrency int

	// Try-on provider
	ProviderBaseURL string
	ProviderAPIKey  string
	ProviderTimeout time.Duration

	// Built widget bundle directory, served under /widget/assets/
	WidgetAssetsDir string
}

// Load reads configuration from the environment. A .env file is loaded
// first when present (development convenience, ignored in production
// images where it doesn't exist).
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		Port:        getEnvInt("PORT", 8080),
		BaseURL:     getEnv("BASE_URL", "http://localhost:8080"),
		Env:         getEnv("APP_ENV", "development"),
		DatabaseURL: getEnv("DATABASE_URL", "file:stylemirror.db?_journal=WAL&_timeout=5000"),

		JWTSecret: getEnv("JWT_SECRET", ""),
		JWTExpiry: getEnvDuration("JWT_EXPIRY", 24*time.Hour),

		StripeSecretKey:     getEnv("STRIPE_SECRET_KEY", ""),
		StripeWebhookSecret: getEnv("STRIPE_WEBHOOK_SECRET", ""),

		CORSOrigins: getEnvSlice("CORS_ORIGINS", []string{"http://localhost:3000"}),

		StorageEndpoint:  getEnv("AWS_ENDPOINT_URL_S3", ""),
		StorageAccessKey: getEnv("AWS_ACCESS_KEY_ID", ""),
		StorageSecretKey: getEnv("AWS_SECRET_ACCESS_KEY", ""),
		StorageBucket:    getEnv("STORAGE_BUCKET", ""),
		StorageRegion:    getEnv("AWS_REGION", "auto"),
		StoragePublicURL: getEnv("STORAGE_PUBLIC_URL", ""),

		WebhookQueueSize:   getEnvInt("WEBHOOK_QUEUE_SIZE", 256),
		WebhookConcurrency: getEnvInt("WEBHOOK_CONCURRENCY", 4),

		ProviderBaseURL: getEnv("PROVIDER_BASE_URL", ""),
		ProviderAPIKey:  getEnv("PROVIDER_API_KEY", ""),
		ProviderTimeout: getEnvDuration("PROVIDER_TIMEOUT", 30*time.Second),

		WidgetAssetsDir: getEnv("WIDGET_ASSETS_DIR", "./widget/dist"),
	}

	cfg.StorageEnabled = cfg.StorageBucket != "" && cfg.StorageEndpoint != ""

	if cfg.JWTSecret == "" {
		if cfg.IsProduction() {
			return nil, fmt.Errorf("JWT_SECRET is required in production")
		}
		cfg.JWTSecret = "dev-secret-change-me"
	}

	// Encryption key: explicit base64 key, or derived from the JWT secret.
	if encKeyStr := getEnv("ENCRYPTION_KEY", ""); encKeyStr != "" {
		decoded, err := base64.StdEncoding.DecodeString(encKeyStr)
		if err != nil || len(decoded) != 32 {
			return nil, fmt.Errorf("ENCRYPTION_KEY must be a base64-encoded 32-byte key")
		}
		cfg.EncryptionKey = decoded
	} else {
		cfg.EncryptionKey = deriveEncryptionKey(cfg.JWTSecret)
	}

	return cfg, nil
}

// IsProduction returns true when running with production settings.
func (c *Config) IsProduction() bool {
	return c.Env == "production"
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

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

func getEnvSlice(key string, defaultValue []string) []string {
	if value := os.Getenv(key); value != "" {
		return strings.Split(value, ",")
	}
	return defaultValue
}

// deriveEncryptionKey creates a 32-byte AES-256 key from a secret string
// using HKDF-SHA256. Appropriate for high-entropy secrets; low-entropy
// passwords would need Argon2 instead.
func deriveEncryptionKey(secret string) []byte {
	salt := []byte("stylemirror-api-encryption-key-v1")
	info := []byte("aes-256-gcm-encryption")

	hkdfReader := hkdf.New(sha256.New, []byte(secret), salt, info)

	key := make([]byte, 32)
	if _, err := io.ReadFull(hkdfReader, key); err != nil {
		panic("hkdf: failed to derive key: " + err.Error())
	}
	return key
}
