package service

import (
	"fmt"
	"log/slog"

	"github.com/stylemirror/tryon-api/internal/config"
	"github.com/stylemirror/tryon-api/internal/crypto"
	"github.com/stylemirror/tryon-api/internal/repository"
)

// Services holds all service instances.
type Services struct {
	Webhook *WebhookService
	Session *SessionService
	Account *AccountService
	Storage *StorageService
}

// NewServices creates all service instances. The try-on provider is
// injected so deployments can swap generation backends.
func NewServices(cfg *config.Config, repos *repository.Repositories, provider TryOnProvider, logger *slog.Logger) (*Services, error) {
	encryptor, err := crypto.NewEncryptor(cfg.EncryptionKey)
	if err != nil {
		return nil, fmt.Errorf("failed to create encryptor: %w", err)
	}

	storageSvc, err := NewStorageService(cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create storage service: %w", err)
	}

	webhookSvc := NewWebhookService(repos.Account, encryptor, cfg.WebhookQueueSize, cfg.WebhookConcurrency, logger)
	sessionSvc := NewSessionService(repos, webhookSvc, storageSvc, provider, cfg.ProviderTimeout, logger)
	accountSvc := NewAccountService(repos, encryptor, storageSvc, logger)

	return &Services{
		Webhook: webhookSvc,
		Session: sessionSvc,
		Account: accountSvc,
		Storage: storageSvc,
	}, nil
}
