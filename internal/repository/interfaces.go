// Package repository defines repository interfaces for data access.
package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/stylemirror/tryon-api/internal/models"
)

// AccountRepository defines methods for account data access.
// This is the account store the widget auth pipeline consumes.
type AccountRepository interface {
	Create(ctx context.Context, account *models.Account) error
	GetByID(ctx context.Context, id string) (*models.Account, error)
	GetByAPIKey(ctx context.Context, key string) (*models.Account, error)
	GetByStripeCustomer(ctx context.Context, customerID string) (*models.Account, error)
	Update(ctx context.Context, account *models.Account) error

	// ResetQuota zeroes quota_used and schedules the next monthly reset.
	ResetQuota(ctx context.Context, accountID string, nextResetAt time.Time) error
	// IncrementQuota bumps the combined counter only.
	IncrementQuota(ctx context.Context, accountID string) error
	// IncrementStudioQuota / IncrementWidgetQuota bump the per-surface
	// counter and the shared combined counter.
	IncrementStudioQuota(ctx context.Context, accountID string) error
	IncrementWidgetQuota(ctx context.Context, accountID string) error

	// Named key management. GetByAPIKey also resolves keys created here.
	CreateKey(ctx context.Context, key *models.APIKey) error
	GetKeys(ctx context.Context, accountID string) ([]*models.APIKey, error)
	GetKeyByValue(ctx context.Context, key string) (*models.APIKey, error)
	RevokeKey(ctx context.Context, accountID, keyID string) error
	TouchKey(ctx context.Context, keyID string, usedAt time.Time) error
}

// SessionRepository defines methods for widget session data access.
type SessionRepository interface {
	Create(ctx context.Context, session *models.WidgetSession) error
	GetByID(ctx context.Context, id string) (*models.WidgetSession, error)
	Update(ctx context.Context, session *models.WidgetSession) error
	// ClaimPending transitions pending -> processing with a conditional
	// update so concurrent duplicate submissions race safely. Returns
	// false when the session was not in pending state.
	ClaimPending(ctx context.Context, id string) (bool, error)
	// DeleteByAccountID removes all sessions for an account and returns
	// the result image URLs that were attached, so stored objects can be
	// cleaned up too.
	DeleteByAccountID(ctx context.Context, accountID string) ([]string, error)
}

// AnalyticsRepository appends usage events.
type AnalyticsRepository interface {
	Create(ctx context.Context, event *models.AnalyticsEvent) error
	DeleteByAccountID(ctx context.Context, accountID string) error
}

// Repositories bundles all repositories for dependency injection.
type Repositories struct {
	Account   AccountRepository
	Session   SessionRepository
	Analytics AnalyticsRepository
}

// NewRepositories creates SQLite-backed repositories.
func NewRepositories(db *sql.DB) *Repositories {
	return &Repositories{
		Account:   NewSQLiteAccountRepository(db),
		Session:   NewSQLiteSessionRepository(db),
		Analytics: NewSQLiteAnalyticsRepository(db),
	}
}
