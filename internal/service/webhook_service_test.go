package service

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stylemirror/tryon-api/internal/apikey"
	"github.com/stylemirror/tryon-api/internal/models"
)

func newTestWebhookService(t *testing.T, accounts *fakeAccounts) *WebhookService {
	t.Helper()
	svc := NewWebhookService(accounts, nil, 16, 2, nil)
	svc.delays = []time.Duration{time.Millisecond, time.Millisecond}
	svc.Start(context.Background())
	t.Cleanup(svc.Stop)
	return svc
}

func webhookAccount(url, secret string) *models.Account {
	return &models.Account{
		ID:            "acct_1",
		Status:        models.AccountActive,
		WebhookURL:    url,
		WebhookSecret: secret,
	}
}

// ---------------------------------------------------------------------------
// Trigger preconditions
// ---------------------------------------------------------------------------

func TestTriggerNoWebhookURL(t *testing.T) {
	accounts := newFakeAccounts(webhookAccount("", ""))
	svc := newTestWebhookService(t, accounts)

	res := svc.Trigger(context.Background(), "acct_1", models.EventSessionCreated, EventData{SessionID: "ses_1"})
	if res.Sent {
		t.Error("Sent = true, want false")
	}
	if res.Error != "No webhook URL configured" {
		t.Errorf("Error = %q", res.Error)
	}
}

func TestTriggerNoSecret(t *testing.T) {
	accounts := newFakeAccounts(webhookAccount("https://example.com/hook", ""))
	svc := newTestWebhookService(t, accounts)

	res := svc.Trigger(context.Background(), "acct_1", models.EventSessionCreated, EventData{SessionID: "ses_1"})
	if res.Sent {
		t.Error("Sent = true, want false")
	}
	if res.Error != "No webhook secret configured" {
		t.Errorf("Error = %q", res.Error)
	}
}

func TestTriggerUnknownAccount(t *testing.T) {
	svc := newTestWebhookService(t, newFakeAccounts())

	res := svc.Trigger(context.Background(), "acct_missing", models.EventSessionCreated, EventData{})
	if res.Sent || res.Error != "account not found" {
		t.Errorf("result = %+v", res)
	}
}

// ---------------------------------------------------------------------------
// Delivery
// ---------------------------------------------------------------------------

func TestTriggerDeliversSignedPayload(t *testing.T) {
	secret := "whsec_testsecret"
	received := make(chan *http.Request, 1)
	bodies := make(chan []byte, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		bodies <- body
		received <- r
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	accounts := newFakeAccounts(webhookAccount(srv.URL, secret))
	svc := newTestWebhookService(t, accounts)

	res := svc.Trigger(context.Background(), "acct_1", models.EventTryOnCompleted, EventData{
		SessionID: "ses_1",
		Result:    &EventResult{Image: "https://cdn.example.com/r.jpg", ProcessingTimeMs: 1200},
	})
	if !res.Sent {
		t.Fatalf("Sent = false: %s", res.Error)
	}

	select {
	case r := <-received:
		body := <-bodies

		if got := r.Header.Get("User-Agent"); got != "StyleMirror-Webhook/1.0" {
			t.Errorf("User-Agent = %q", got)
		}
		if got := r.Header.Get(EventHeader); got != models.EventTryOnCompleted {
			t.Errorf("event header = %q", got)
		}

		ts, err := strconv.ParseInt(r.Header.Get(TimestampHeader), 10, 64)
		if err != nil {
			t.Fatalf("timestamp header: %v", err)
		}
		sig := r.Header.Get(SignatureHeader)
		if !apikey.VerifySignature(string(body), sig, secret, ts, 0) {
			t.Error("signature does not verify against the raw body")
		}

		var payload struct {
			Event     string    `json:"event"`
			Timestamp time.Time `json:"timestamp"`
			Data      EventData `json:"data"`
		}
		if err := json.Unmarshal(body, &payload); err != nil {
			t.Fatalf("payload: %v", err)
		}
		if payload.Event != models.EventTryOnCompleted || payload.Data.SessionID != "ses_1" {
			t.Errorf("payload = %+v", payload)
		}
		if payload.Data.Result == nil || payload.Data.Result.ProcessingTimeMs != 1200 {
			t.Errorf("result = %+v", payload.Data.Result)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("no delivery received")
	}
}

func TestDeliveryRetriesThenGivesUp(t *testing.T) {
	var attempts atomic.Int32
	done := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if attempts.Add(1) == 3 {
			defer close(done)
		}
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	accounts := newFakeAccounts(webhookAccount(srv.URL, "whsec_s"))
	svc := newTestWebhookService(t, accounts)

	res := svc.Trigger(context.Background(), "acct_1", models.EventTryOnFailed, EventData{SessionID: "ses_1"})
	if !res.Sent {
		t.Fatalf("Sent = false: %s", res.Error)
	}

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatalf("attempts = %d, want 3", attempts.Load())
	}

	// Give the worker a moment to confirm no fourth attempt arrives.
	time.Sleep(50 * time.Millisecond)
	if got := attempts.Load(); got != 3 {
		t.Errorf("attempts = %d, want exactly 3", got)
	}
}

func TestDeliveryFreshSignaturePerAttempt(t *testing.T) {
	sigs := make(chan string, 2)
	var n atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sigs <- r.Header.Get(TimestampHeader) + "|" + r.Header.Get(SignatureHeader)
		if n.Add(1) == 1 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	accounts := newFakeAccounts(webhookAccount(srv.URL, "whsec_s"))
	svc := NewWebhookService(accounts, nil, 16, 1, nil)
	// A full second between attempts forces a different unix timestamp.
	svc.delays = []time.Duration{1100 * time.Millisecond, time.Millisecond}
	svc.Start(context.Background())
	defer svc.Stop()

	svc.Trigger(context.Background(), "acct_1", models.EventSessionCreated, EventData{SessionID: "ses_1"})

	var first, second string
	select {
	case first = <-sigs:
	case <-time.After(5 * time.Second):
		t.Fatal("first attempt missing")
	}
	select {
	case second = <-sigs:
	case <-time.After(5 * time.Second):
		t.Fatal("second attempt missing")
	}
	if first == second {
		t.Error("retry reused the stale timestamp/signature")
	}
}

// ---------------------------------------------------------------------------
// Lifecycle
// ---------------------------------------------------------------------------

func TestTriggerAfterStopDropsEvent(t *testing.T) {
	accounts := newFakeAccounts(webhookAccount("https://example.com/hook", "whsec_s"))
	svc := NewWebhookService(accounts, nil, 16, 1, nil)
	svc.Start(context.Background())
	svc.Stop()

	// Detached session goroutines can outlive the shutdown sequence, so a
	// late Trigger must be dropped cleanly.
	res := svc.Trigger(context.Background(), "acct_1", models.EventSessionCreated, EventData{SessionID: "ses_1"})
	if res.Sent {
		t.Error("Sent = true after Stop, want false")
	}
	if res.Error != "dispatcher not running" {
		t.Errorf("Error = %q", res.Error)
	}
}

func TestTriggerBeforeStartDropsEvent(t *testing.T) {
	accounts := newFakeAccounts(webhookAccount("https://example.com/hook", "whsec_s"))
	svc := NewWebhookService(accounts, nil, 16, 1, nil)

	res := svc.Trigger(context.Background(), "acct_1", models.EventSessionCreated, EventData{SessionID: "ses_1"})
	if res.Sent || res.Error != "dispatcher not running" {
		t.Errorf("result = %+v", res)
	}
}

func TestStopIsIdempotent(t *testing.T) {
	svc := NewWebhookService(newFakeAccounts(), nil, 16, 1, nil)
	svc.Start(context.Background())
	svc.Stop()
	svc.Stop()
}

// ---------------------------------------------------------------------------
// Test webhook
// ---------------------------------------------------------------------------

func TestSendTestSynchronous(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	accounts := newFakeAccounts(webhookAccount(srv.URL, "whsec_s"))
	svc := NewWebhookService(accounts, nil, 16, 1, nil)

	res := svc.SendTest(context.Background(), "acct_1")
	if !res.Success || res.StatusCode != http.StatusNoContent {
		t.Errorf("result = %+v", res)
	}
}

func TestSendTestNoRetries(t *testing.T) {
	var attempts atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts.Add(1)
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	accounts := newFakeAccounts(webhookAccount(srv.URL, "whsec_s"))
	svc := NewWebhookService(accounts, nil, 16, 1, nil)

	res := svc.SendTest(context.Background(), "acct_1")
	if res.Success {
		t.Error("Success = true, want false")
	}
	if res.StatusCode != http.StatusBadGateway {
		t.Errorf("StatusCode = %d", res.StatusCode)
	}
	if attempts.Load() != 1 {
		t.Errorf("attempts = %d, want 1", attempts.Load())
	}
}
