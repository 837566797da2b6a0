// Package apikey generates and validates StyleMirror credential strings
// and computes webhook payload signatures.
package apikey

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"
	"time"
)

const (
	// LivePrefix marks keys valid for production traffic.
	LivePrefix = "mk_live_"
	// TestPrefix marks keys that relax domain checks for local development.
	TestPrefix = "mk_test_"
	// SecretPrefix marks webhook signing secrets.
	SecretPrefix = "whsec_"
	// SessionPrefix marks widget session tokens.
	SessionPrefix = "ses_"
)

// DefaultTolerance is the maximum accepted clock skew when verifying
// signed payloads.
const DefaultTolerance = 5 * time.Minute

// GenerateKey returns prefix + 24 random bytes, URL-safe base64 encoded.
// 192 bits of entropy makes collisions a non-concern in practice.
func GenerateKey(prefix string) (string, error) {
	buf := make([]byte, 24)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("failed to generate key: %w", err)
	}
	return prefix + base64.RawURLEncoding.EncodeToString(buf), nil
}

// AccountKeys holds the live/test key pair issued to a new account.
type AccountKeys struct {
	LiveKey string
	TestKey string
}

// GenerateAccountKeys issues a fresh live/test key pair.
func GenerateAccountKeys() (AccountKeys, error) {
	live, err := GenerateKey(LivePrefix)
	if err != nil {
		return AccountKeys{}, err
	}
	test, err := GenerateKey(TestPrefix)
	if err != nil {
		return AccountKeys{}, err
	}
	return AccountKeys{LiveKey: live, TestKey: test}, nil
}

// GenerateWebhookSecret issues a webhook signing secret.
func GenerateWebhookSecret() (string, error) {
	return GenerateKey(SecretPrefix)
}

// GenerateSessionID returns "ses_" + base36 millis + 12 random bytes.
// The time prefix keeps IDs lexicographically sortable by creation time;
// the random suffix makes collisions negligible.
func GenerateSessionID() (string, error) {
	buf := make([]byte, 12)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("failed to generate session id: %w", err)
	}
	millis := strconv.FormatInt(time.Now().UnixMilli(), 36)
	return SessionPrefix + millis + base64.RawURLEncoding.EncodeToString(buf), nil
}

// IsTestKey reports whether key carries the test prefix.
func IsTestKey(key string) bool {
	return strings.HasPrefix(key, TestPrefix)
}

// IsLiveKey reports whether key carries the live prefix.
func IsLiveKey(key string) bool {
	return strings.HasPrefix(key, LivePrefix)
}

// IsValidFormat reports whether key carries either merchant key prefix.
func IsValidFormat(key string) bool {
	return IsLiveKey(key) || IsTestKey(key)
}

// SignPayload computes the webhook signature for a serialized payload.
// Signature format: "sha256=" + hex(HMAC-SHA256(secret, "<ts>.<payload>"))
func SignPayload(payload, secret string, timestamp int64) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(strconv.FormatInt(timestamp, 10)))
	mac.Write([]byte("."))
	mac.Write([]byte(payload))
	return "sha256=" + hex.EncodeToString(mac.Sum(nil))
}

// VerifySignature checks a webhook signature against the payload and
// secret. Signatures older (or newer) than tolerance are rejected before
// any comparison; the comparison itself is constant-time.
func VerifySignature(payload, signature, secret string, timestamp int64, tolerance time.Duration) bool {
	if tolerance <= 0 {
		tolerance = DefaultTolerance
	}
	skew := time.Since(time.Unix(timestamp, 0))
	if skew < 0 {
		skew = -skew
	}
	if skew > tolerance {
		return false
	}
	expected := SignPayload(payload, secret, timestamp)
	return hmac.Equal([]byte(signature), []byte(expected))
}
