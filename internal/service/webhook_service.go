// Package service contains the business logic layer.
package service

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/stylemirror/tryon-api/internal/apikey"
	"github.com/stylemirror/tryon-api/internal/crypto"
	"github.com/stylemirror/tryon-api/internal/models"
	"github.com/stylemirror/tryon-api/internal/repository"
)

// Webhook request headers. Receivers recompute
// HMAC-SHA256(secret, "<timestamp>.<raw body>") and compare.
const (
	SignatureHeader = "X-StyleMirror-Signature"
	TimestampHeader = "X-StyleMirror-Timestamp"
	EventHeader     = "X-StyleMirror-Event"

	webhookUserAgent      = "StyleMirror-Webhook/1.0"
	webhookAttemptLimit   = 3
	webhookAttemptTimeout = 10 * time.Second
)

// EventProduct is the product snapshot in a webhook payload.
type EventProduct struct {
	Name     string  `json:"name,omitempty"`
	ID       string  `json:"id,omitempty"`
	Category string  `json:"category,omitempty"`
	Price    float64 `json:"price,omitempty"`
	Currency string  `json:"currency,omitempty"`
	URL      string  `json:"url,omitempty"`
	Image    string  `json:"image,omitempty"`
}

// EventUser identifies the shopper in a webhook payload.
type EventUser struct {
	ExternalUserID string `json:"externalUserId,omitempty"`
}

// EventResult carries the try-on outcome in a webhook payload.
type EventResult struct {
	Image            string `json:"image,omitempty"`
	Thumbnail        string `json:"thumbnail,omitempty"`
	ProcessingTimeMs int64  `json:"processingTimeMs,omitempty"`
}

// EventError carries failure details in a webhook payload.
type EventError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// EventData is the data object of a webhook payload.
type EventData struct {
	SessionID string        `json:"sessionId"`
	Product   *EventProduct `json:"product,omitempty"`
	User      *EventUser    `json:"user,omitempty"`
	Result    *EventResult  `json:"result,omitempty"`
	Error     *EventError   `json:"error,omitempty"`
}

// SessionEventData builds the webhook data object from a session snapshot.
func SessionEventData(session *models.WidgetSession) EventData {
	data := EventData{SessionID: session.ID}
	if session.ProductImage != "" || session.ProductName != "" || session.ProductID != "" {
		data.Product = &EventProduct{
			Name:     session.ProductName,
			ID:       session.ProductID,
			Category: session.ProductCategory,
			Price:    session.ProductPrice,
			Currency: session.ProductCurrency,
			URL:      session.ProductURL,
			Image:    session.ProductImage,
		}
	}
	if session.ExternalUserID != "" {
		data.User = &EventUser{ExternalUserID: session.ExternalUserID}
	}
	if session.ResultImage != "" {
		data.Result = &EventResult{
			Image:            session.ResultImage,
			Thumbnail:        session.ResultThumbnail,
			ProcessingTimeMs: session.ProcessingTimeMs,
		}
	}
	if session.ErrorCode != "" {
		data.Error = &EventError{Code: session.ErrorCode, Message: session.ErrorMessage}
	}
	return data
}

type webhookPayload struct {
	Event     string    `json:"event"`
	Timestamp time.Time `json:"timestamp"`
	Data      EventData `json:"data"`
}

// TriggerResult reports whether a webhook was scheduled for delivery.
type TriggerResult struct {
	Sent  bool   `json:"sent"`
	Error string `json:"error,omitempty"`
}

// TestResult is the synchronous outcome of a test delivery.
type TestResult struct {
	Success    bool   `json:"success"`
	StatusCode int    `json:"status_code,omitempty"`
	Error      string `json:"error,omitempty"`
}

type deliveryJob struct {
	url       string
	secret    string
	eventType string
	payload   []byte
}

// WebhookService delivers signed session lifecycle events to merchant
// endpoints. Delivery runs on a bounded queue with a small worker pool so
// event bursts cannot open unbounded outbound connections, and a slow
// merchant endpoint never adds latency to the try-on response.
type WebhookService struct {
	accounts  repository.AccountRepository
	encryptor *crypto.Encryptor
	client    *http.Client
	logger    *slog.Logger

	queue       chan deliveryJob
	concurrency int
	delays      []time.Duration

	mu      sync.Mutex
	cancel  context.CancelFunc
	running bool
	wg      sync.WaitGroup
}

// NewWebhookService creates the dispatcher. Call Start to run the worker
// pool; Trigger before Start drops events.
func NewWebhookService(accounts repository.AccountRepository, encryptor *crypto.Encryptor, queueSize, concurrency int, logger *slog.Logger) *WebhookService {
	if queueSize <= 0 {
		queueSize = 256
	}
	if concurrency <= 0 {
		concurrency = 4
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &WebhookService{
		accounts:    accounts,
		encryptor:   encryptor,
		client:      &http.Client{Timeout: webhookAttemptTimeout},
		logger:      logger.With("component", "webhook"),
		queue:       make(chan deliveryJob, queueSize),
		concurrency: concurrency,
		delays:      []time.Duration{time.Second, 5 * time.Second, 30 * time.Second},
	}
}

// Start launches the delivery workers. Starting twice is a no-op.
func (s *WebhookService) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return
	}
	ctx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.running = true

	s.logger.Info("starting", "concurrency", s.concurrency)
	for i := 0; i < s.concurrency; i++ {
		s.wg.Add(1)
		go s.runWorker(ctx)
	}
}

// Stop halts the workers after a final delivery pass over the queue.
// The queue channel stays open: detached session goroutines may still
// call Trigger after shutdown, and those late events must be dropped,
// not panic the process.
func (s *WebhookService) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	cancel := s.cancel
	s.cancel = nil
	s.mu.Unlock()

	s.logger.Info("stopping")
	cancel()
	s.wg.Wait()
	s.logger.Info("stopped")
}

func (s *WebhookService) runWorker(ctx context.Context) {
	defer s.wg.Done()
	for {
		select {
		case <-ctx.Done():
			s.drainQueue()
			return
		case job := <-s.queue:
			s.deliverWithRetries(ctx, job)
		}
	}
}

// drainQueue gives deliveries already queued at shutdown one attempt
// each. Retrying here would hold up process exit.
func (s *WebhookService) drainQueue() {
	ctx, cancel := context.WithTimeout(context.Background(), webhookAttemptTimeout)
	defer cancel()
	for {
		select {
		case job := <-s.queue:
			if _, err := s.attempt(ctx, job); err != nil {
				s.logger.Warn("shutdown delivery failed", "url", job.url,
					"event", job.eventType, "error", err)
			}
		default:
			return
		}
	}
}

// Trigger schedules a signed event delivery for the account. It returns
// once the delivery is queued, not once delivered; delivery failures are
// contained here and only visible in logs.
func (s *WebhookService) Trigger(ctx context.Context, accountID, eventType string, data EventData) TriggerResult {
	s.mu.Lock()
	running := s.running
	s.mu.Unlock()
	if !running {
		return TriggerResult{Sent: false, Error: "dispatcher not running"}
	}

	account, err := s.accounts.GetByID(ctx, accountID)
	if err != nil {
		s.logger.Error("account lookup failed", "account_id", accountID, "error", err)
		return TriggerResult{Sent: false, Error: "account lookup failed"}
	}
	if account == nil {
		return TriggerResult{Sent: false, Error: "account not found"}
	}
	if account.WebhookURL == "" {
		return TriggerResult{Sent: false, Error: "No webhook URL configured"}
	}
	if account.WebhookSecret == "" {
		return TriggerResult{Sent: false, Error: "No webhook secret configured"}
	}

	secret, err := s.decryptSecret(account.WebhookSecret)
	if err != nil {
		s.logger.Error("webhook secret decrypt failed", "account_id", accountID, "error", err)
		return TriggerResult{Sent: false, Error: "webhook secret unavailable"}
	}

	body, err := json.Marshal(webhookPayload{
		Event:     eventType,
		Timestamp: time.Now().UTC(),
		Data:      data,
	})
	if err != nil {
		return TriggerResult{Sent: false, Error: "failed to serialize payload"}
	}

	job := deliveryJob{url: account.WebhookURL, secret: secret, eventType: eventType, payload: body}
	select {
	case s.queue <- job:
		return TriggerResult{Sent: true}
	default:
		s.logger.Warn("delivery queue full, dropping event",
			"account_id", accountID, "event", eventType)
		return TriggerResult{Sent: false, Error: "delivery queue full"}
	}
}

// deliverWithRetries posts the payload with bounded retries and backoff.
// Each attempt signs with a fresh timestamp so receivers' skew checks see
// the actual send time.
func (s *WebhookService) deliverWithRetries(ctx context.Context, job deliveryJob) {
	var lastErr error
	for attempt := 1; attempt <= webhookAttemptLimit; attempt++ {
		if attempt > 1 {
			select {
			case <-ctx.Done():
				return
			case <-time.After(s.delays[attempt-2]):
			}
		}

		status, err := s.attempt(ctx, job)
		if err == nil {
			s.logger.Info("delivered", "url", job.url, "event", job.eventType,
				"status", status, "attempt", attempt)
			return
		}
		lastErr = err
		s.logger.Warn("delivery attempt failed", "url", job.url,
			"event", job.eventType, "attempt", attempt, "error", err)
	}
	s.logger.Error("delivery failed after retries", "url", job.url,
		"event", job.eventType, "error", lastErr)
}

func (s *WebhookService) attempt(ctx context.Context, job deliveryJob) (int, error) {
	ctx, cancel := context.WithTimeout(ctx, webhookAttemptTimeout)
	defer cancel()

	timestamp := time.Now().Unix()
	signature := apikey.SignPayload(string(job.payload), job.secret, timestamp)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, job.url, bytes.NewReader(job.payload))
	if err != nil {
		return 0, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", webhookUserAgent)
	req.Header.Set(SignatureHeader, signature)
	req.Header.Set(TimestampHeader, fmt.Sprintf("%d", timestamp))
	req.Header.Set(EventHeader, job.eventType)

	resp, err := s.client.Do(req)
	if err != nil {
		return 0, err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return resp.StatusCode, fmt.Errorf("endpoint returned %d", resp.StatusCode)
	}
	return resp.StatusCode, nil
}

// SendTest makes a single synchronous delivery of a synthetic payload,
// returning the outcome to the caller. Used by the dashboard's "send test
// webhook" action.
func (s *WebhookService) SendTest(ctx context.Context, accountID string) TestResult {
	account, err := s.accounts.GetByID(ctx, accountID)
	if err != nil || account == nil {
		return TestResult{Success: false, Error: "account not found"}
	}
	if account.WebhookURL == "" {
		return TestResult{Success: false, Error: "No webhook URL configured"}
	}
	if account.WebhookSecret == "" {
		return TestResult{Success: false, Error: "No webhook secret configured"}
	}
	secret, err := s.decryptSecret(account.WebhookSecret)
	if err != nil {
		return TestResult{Success: false, Error: "webhook secret unavailable"}
	}

	body, _ := json.Marshal(webhookPayload{
		Event:     "webhook.test",
		Timestamp: time.Now().UTC(),
		Data:      EventData{SessionID: "ses_test"},
	})

	status, err := s.attempt(ctx, deliveryJob{
		url: account.WebhookURL, secret: secret, eventType: "webhook.test", payload: body,
	})
	if err != nil {
		return TestResult{Success: false, StatusCode: status, Error: err.Error()}
	}
	return TestResult{Success: true, StatusCode: status}
}

func (s *WebhookService) decryptSecret(stored string) (string, error) {
	if s.encryptor == nil {
		return stored, nil
	}
	return s.encryptor.Decrypt(stored)
}
