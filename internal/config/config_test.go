package config

import (
	"encoding/base64"
	"testing"
	"time"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Port != 8080 {
		t.Errorf("Port = %d, want 8080", cfg.Port)
	}
	if cfg.IsProduction() {
		t.Error("default env should not be production")
	}
	if cfg.WebhookConcurrency != 4 {
		t.Errorf("WebhookConcurrency = %d, want 4", cfg.WebhookConcurrency)
	}
	if cfg.ProviderTimeout != 30*time.Second {
		t.Errorf("ProviderTimeout = %v, want 30s", cfg.ProviderTimeout)
	}
	if cfg.StorageEnabled {
		t.Error("storage should be disabled without bucket+endpoint")
	}
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("PORT", "9090")
	t.Setenv("JWT_EXPIRY", "2h")
	t.Setenv("CORS_ORIGINS", "https://a.example,https://b.example")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Port != 9090 {
		t.Errorf("Port = %d, want 9090", cfg.Port)
	}
	if cfg.JWTExpiry != 2*time.Hour {
		t.Errorf("JWTExpiry = %v, want 2h", cfg.JWTExpiry)
	}
	if len(cfg.CORSOrigins) != 2 || cfg.CORSOrigins[1] != "https://b.example" {
		t.Errorf("CORSOrigins = %v", cfg.CORSOrigins)
	}
}

func TestLoad_ProductionRequiresJWTSecret(t *testing.T) {
	t.Setenv("APP_ENV", "production")
	t.Setenv("JWT_SECRET", "")

	if _, err := Load(); err == nil {
		t.Error("Load() in production without JWT_SECRET should fail")
	}
}

func TestLoad_ExplicitEncryptionKey(t *testing.T) {
	key := make([]byte, 32)
	for i := range key {
		key[i] = byte(i)
	}
	t.Setenv("ENCRYPTION_KEY", base64.StdEncoding.EncodeToString(key))

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if len(cfg.EncryptionKey) != 32 || cfg.EncryptionKey[5] != 5 {
		t.Errorf("EncryptionKey not decoded from env")
	}
}

func TestLoad_BadEncryptionKey(t *testing.T) {
	t.Setenv("ENCRYPTION_KEY", "not-base64-or-wrong-size")
	if _, err := Load(); err == nil {
		t.Error("Load() with malformed ENCRYPTION_KEY should fail")
	}
}

func TestDeriveEncryptionKey_Deterministic(t *testing.T) {
	a := deriveEncryptionKey("secret")
	b := deriveEncryptionKey("secret")
	c := deriveEncryptionKey("other")

	if len(a) != 32 {
		t.Fatalf("derived key length = %d, want 32", len(a))
	}
	if string(a) != string(b) {
		t.Error("same secret must derive same key")
	}
	if string(a) == string(c) {
		t.Error("different secrets must derive different keys")
	}
}
