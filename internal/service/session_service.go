package service

import (
	"context"
	"log/slog"
	"time"

	"github.com/stylemirror/tryon-api/internal/apikey"
	"github.com/stylemirror/tryon-api/internal/models"
	"github.com/stylemirror/tryon-api/internal/repository"
)

// TryOnRequest is the input handed to the image-generation provider.
type TryOnRequest struct {
	PersonImage  string // URL or data URI supplied by the embedding site
	GarmentImage string
	Category     string
}

// TryOnOutput is the provider's generated composite.
type TryOnOutput struct {
	Image       []byte
	ContentType string
}

// TryOnProvider generates the try-on composite. Implementations wrap
// third-party generative-image APIs and are injected at wiring time.
type TryOnProvider interface {
	GenerateTryOn(ctx context.Context, req TryOnRequest) (*TryOnOutput, error)
}

// CreateSessionInput is the product snapshot from the embedding site.
type CreateSessionInput struct {
	ProductImage    string
	ProductName     string
	ProductID       string
	ProductCategory string
	ProductPrice    float64
	ProductCurrency string
	ProductURL      string
	ExternalUserID  string
}

// Provenance records where the creating request came from.
type Provenance struct {
	OriginDomain string
	UserAgent    string
	IPAddress    string
}

// SubmitTryOnInput is the shopper's photo for an existing session.
type SubmitTryOnInput struct {
	UserImage      string
	ExternalUserID string
}

// SessionService drives the widget session lifecycle: create at pending,
// a single submission transitions through processing to a terminal
// state, expiry is a read-time check.
type SessionService struct {
	sessions  repository.SessionRepository
	accounts  repository.AccountRepository
	analytics repository.AnalyticsRepository
	webhooks  *WebhookService
	storage   *StorageService
	provider  TryOnProvider

	providerTimeout time.Duration
	logger          *slog.Logger
}

// NewSessionService creates the session service.
func NewSessionService(
	repos *repository.Repositories,
	webhooks *WebhookService,
	storage *StorageService,
	provider TryOnProvider,
	providerTimeout time.Duration,
	logger *slog.Logger,
) *SessionService {
	if providerTimeout <= 0 {
		providerTimeout = 30 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &SessionService{
		sessions:        repos.Session,
		accounts:        repos.Account,
		analytics:       repos.Analytics,
		webhooks:        webhooks,
		storage:         storage,
		provider:        provider,
		providerTimeout: providerTimeout,
		logger:          logger.With("component", "sessions"),
	}
}

// Create opens a new pending session for the account.
func (s *SessionService) Create(ctx context.Context, account *models.Account, input CreateSessionInput, prov Provenance) (*models.WidgetSession, error) {
	if input.ProductImage == "" {
		return nil, ValidationError("product_image is required")
	}

	id, err := apikey.GenerateSessionID()
	if err != nil {
		return nil, err
	}

	session := &models.WidgetSession{
		ID:              id,
		AccountID:       account.ID,
		Status:          models.SessionPending,
		ProductImage:    input.ProductImage,
		ProductName:     input.ProductName,
		ProductID:       input.ProductID,
		ProductCategory: input.ProductCategory,
		ProductPrice:    input.ProductPrice,
		ProductCurrency: input.ProductCurrency,
		ProductURL:      input.ProductURL,
		ExternalUserID:  input.ExternalUserID,
		OriginDomain:    prov.OriginDomain,
		UserAgent:       prov.UserAgent,
		IPAddress:       prov.IPAddress,
		ExpiresAt:       time.Now().UTC().Add(models.SessionTTL),
	}
	if err := s.sessions.Create(ctx, session); err != nil {
		return nil, err
	}

	s.recordEvent(ctx, account.ID, session.ID, "session_created", map[string]any{
		"product_id": input.ProductID,
		"origin":     prov.OriginDomain,
	})
	s.webhooks.Trigger(ctx, account.ID, models.EventSessionCreated, SessionEventData(session))

	return session, nil
}

// Get returns the account's session, rejecting cross-account access and
// expired sessions.
func (s *SessionService) Get(ctx context.Context, account *models.Account, id string) (*models.WidgetSession, error) {
	session, err := s.sessions.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if session == nil {
		return nil, ErrSessionNotFound
	}
	if session.AccountID != account.ID {
		return nil, ErrAccessDenied
	}
	if session.Expired(time.Now().UTC()) {
		return nil, ErrSessionExpired
	}
	return session, nil
}

// SubmitTryOn accepts the shopper's photo and starts generation. The
// provider call runs in the background; callers poll Get or subscribe to
// webhooks for the outcome.
func (s *SessionService) SubmitTryOn(ctx context.Context, account *models.Account, sessionID string, input SubmitTryOnInput) (*models.WidgetSession, error) {
	if input.UserImage == "" {
		return nil, ValidationError("user_image is required")
	}

	session, err := s.sessions.GetByID(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if session == nil {
		return nil, ErrSessionNotFound
	}
	if session.AccountID != account.ID {
		return nil, ErrAccessDenied
	}
	if session.Expired(time.Now().UTC()) {
		return nil, ErrSessionExpired
	}

	switch session.Status {
	case models.SessionCompleted:
		return nil, ErrSessionCompleted
	case models.SessionProcessing:
		return nil, ErrSessionProcessing
	case models.SessionFailed:
		return nil, ErrSessionCompleted
	}

	// Conditional claim: concurrent duplicate submissions race safely,
	// exactly one proceeds.
	claimed, err := s.sessions.ClaimPending(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if !claimed {
		return nil, ErrSessionProcessing
	}

	session.Status = models.SessionProcessing
	session.UserImage = input.UserImage
	if input.ExternalUserID != "" {
		session.ExternalUserID = input.ExternalUserID
	}
	if err := s.sessions.Update(ctx, session); err != nil {
		return nil, err
	}

	s.webhooks.Trigger(ctx, account.ID, models.EventTryOnProcessing, SessionEventData(session))

	go s.process(*session)

	return session, nil
}

// process runs the provider call and records the outcome. Detached from
// the submitting request so a slow provider never holds the HTTP
// response open.
func (s *SessionService) process(session models.WidgetSession) {
	ctx, cancel := context.WithTimeout(context.Background(), s.providerTimeout)
	defer cancel()

	start := time.Now()
	output, err := s.provider.GenerateTryOn(ctx, TryOnRequest{
		PersonImage:  session.UserImage,
		GarmentImage: session.ProductImage,
		Category:     session.ProductCategory,
	})
	if err != nil {
		s.fail(&session, "PROCESSING_FAILED", "Try-on generation failed")
		s.logger.Error("provider call failed", "session_id", session.ID, "error", err)
		return
	}

	resultURL, thumbURL, err := s.storeResult(ctx, session.ID, output)
	if err != nil {
		s.fail(&session, "PROCESSING_FAILED", "Failed to store try-on result")
		s.logger.Error("result storage failed", "session_id", session.ID, "error", err)
		return
	}

	now := time.Now().UTC()
	session.Status = models.SessionCompleted
	session.ResultImage = resultURL
	session.ResultThumbnail = thumbURL
	session.ProcessingTimeMs = time.Since(start).Milliseconds()
	session.CompletedAt = &now

	if err := s.sessions.Update(ctx, &session); err != nil {
		s.logger.Error("failed to persist result", "session_id", session.ID, "error", err)
		return
	}
	if err := s.accounts.IncrementWidgetQuota(ctx, session.AccountID); err != nil {
		s.logger.Error("failed to increment quota", "account_id", session.AccountID, "error", err)
	}

	s.recordEvent(ctx, session.AccountID, session.ID, "tryon_completed", map[string]any{
		"processing_time_ms": session.ProcessingTimeMs,
	})
	s.webhooks.Trigger(ctx, session.AccountID, models.EventTryOnCompleted, SessionEventData(&session))
}

func (s *SessionService) fail(session *models.WidgetSession, code, message string) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	now := time.Now().UTC()
	session.Status = models.SessionFailed
	session.ErrorCode = code
	session.ErrorMessage = message
	session.CompletedAt = &now

	if err := s.sessions.Update(ctx, session); err != nil {
		s.logger.Error("failed to persist failure", "session_id", session.ID, "error", err)
	}
	s.recordEvent(ctx, session.AccountID, session.ID, "tryon_failed", map[string]any{"code": code})
	s.webhooks.Trigger(ctx, session.AccountID, models.EventTryOnFailed, SessionEventData(session))
}

func (s *SessionService) storeResult(ctx context.Context, sessionID string, output *TryOnOutput) (string, string, error) {
	if s.storage == nil || !s.storage.IsEnabled() {
		// Without object storage the image is served inline from the
		// provider response; nothing durable to link.
		return "", "", nil
	}
	resultURL, err := s.storage.PutResult(ctx, sessionID, output.Image, output.ContentType)
	if err != nil {
		return "", "", err
	}
	// Thumbnailing is handled by the CDN's image transforms.
	return resultURL, resultURL, nil
}

// Cancel marks a pending session expired. Terminal sessions are left
// untouched.
func (s *SessionService) Cancel(ctx context.Context, account *models.Account, id string) (*models.WidgetSession, error) {
	session, err := s.sessions.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if session == nil {
		return nil, ErrSessionNotFound
	}
	if session.AccountID != account.ID {
		return nil, ErrAccessDenied
	}
	switch session.Status {
	case models.SessionCompleted, models.SessionFailed:
		return nil, ErrSessionCompleted
	}

	session.Status = models.SessionExpired
	if err := s.sessions.Update(ctx, session); err != nil {
		return nil, err
	}
	s.recordEvent(ctx, account.ID, session.ID, "session_cancelled", nil)
	return session, nil
}

func (s *SessionService) recordEvent(ctx context.Context, accountID, sessionID, eventType string, data map[string]any) {
	err := s.analytics.Create(ctx, &models.AnalyticsEvent{
		AccountID: accountID,
		SessionID: sessionID,
		EventType: eventType,
		EventData: data,
	})
	if err != nil {
		s.logger.Warn("failed to record analytics event", "event", eventType, "error", err)
	}
}
