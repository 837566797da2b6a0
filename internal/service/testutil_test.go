package service

import (
	"context"
	"sync"
	"time"

	"github.com/stylemirror/tryon-api/internal/models"
)

// fakeAccounts is an in-memory AccountRepository for service tests.
type fakeAccounts struct {
	mu         sync.Mutex
	byID       map[string]*models.Account
	keys       map[string]*models.APIKey // by key id
	resets     []string
	widgetIncs []string
	studioIncs []string
}

func newFakeAccounts(accounts ...*models.Account) *fakeAccounts {
	f := &fakeAccounts{
		byID: make(map[string]*models.Account),
		keys: make(map[string]*models.APIKey),
	}
	for _, a := range accounts {
		f.byID[a.ID] = a
	}
	return f
}

func (f *fakeAccounts) Create(_ context.Context, account *models.Account) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.byID[account.ID] = account
	return nil
}

func (f *fakeAccounts) GetByID(_ context.Context, id string) (*models.Account, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.byID[id], nil
}

func (f *fakeAccounts) GetByAPIKey(_ context.Context, key string) (*models.Account, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, a := range f.byID {
		if a.LiveKey == key || a.TestKey == key {
			return a, nil
		}
		for i := range a.Keys {
			if a.Keys[i].Key == key && !a.Keys[i].Revoked() {
				return a, nil
			}
		}
	}
	return nil, nil
}

func (f *fakeAccounts) GetByStripeCustomer(_ context.Context, customerID string) (*models.Account, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, a := range f.byID {
		if a.StripeCustomer == customerID {
			return a, nil
		}
	}
	return nil, nil
}

func (f *fakeAccounts) Update(_ context.Context, account *models.Account) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.byID[account.ID] = account
	return nil
}

func (f *fakeAccounts) ResetQuota(_ context.Context, accountID string, nextResetAt time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.resets = append(f.resets, accountID)
	if a := f.byID[accountID]; a != nil {
		a.QuotaUsed = 0
		a.QuotaResetAt = &nextResetAt
	}
	return nil
}

func (f *fakeAccounts) IncrementQuota(_ context.Context, accountID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if a := f.byID[accountID]; a != nil {
		a.QuotaUsed++
	}
	return nil
}

func (f *fakeAccounts) IncrementStudioQuota(_ context.Context, accountID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.studioIncs = append(f.studioIncs, accountID)
	if a := f.byID[accountID]; a != nil {
		a.QuotaUsed++
		a.StudioUsed++
	}
	return nil
}

func (f *fakeAccounts) IncrementWidgetQuota(_ context.Context, accountID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.widgetIncs = append(f.widgetIncs, accountID)
	if a := f.byID[accountID]; a != nil {
		a.QuotaUsed++
		a.WidgetUsed++
	}
	return nil
}

func (f *fakeAccounts) CreateKey(_ context.Context, key *models.APIKey) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.keys[key.ID] = key
	if a := f.byID[key.AccountID]; a != nil {
		a.Keys = append(a.Keys, *key)
	}
	return nil
}

func (f *fakeAccounts) GetKeys(_ context.Context, accountID string) ([]*models.APIKey, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*models.APIKey
	for _, k := range f.keys {
		if k.AccountID == accountID {
			out = append(out, k)
		}
	}
	return out, nil
}

func (f *fakeAccounts) GetKeyByValue(_ context.Context, key string) (*models.APIKey, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, k := range f.keys {
		if k.Key == key {
			return k, nil
		}
	}
	return nil, nil
}

func (f *fakeAccounts) RevokeKey(_ context.Context, accountID, keyID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	now := time.Now().UTC()
	if k := f.keys[keyID]; k != nil && k.AccountID == accountID {
		k.RevokedAt = &now
	}
	if a := f.byID[accountID]; a != nil {
		for i := range a.Keys {
			if a.Keys[i].ID == keyID {
				a.Keys[i].RevokedAt = &now
			}
		}
	}
	return nil
}

func (f *fakeAccounts) TouchKey(_ context.Context, keyID string, usedAt time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if k := f.keys[keyID]; k != nil {
		k.LastUsedAt = &usedAt
	}
	return nil
}

// fakeSessions is an in-memory SessionRepository.
type fakeSessions struct {
	mu      sync.Mutex
	byID    map[string]*models.WidgetSession
	deleted []string
}

func newFakeSessions() *fakeSessions {
	return &fakeSessions{byID: make(map[string]*models.WidgetSession)}
}

func (f *fakeSessions) Create(_ context.Context, session *models.WidgetSession) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	now := time.Now().UTC()
	session.CreatedAt = now
	session.UpdatedAt = now
	cp := *session
	f.byID[session.ID] = &cp
	return nil
}

func (f *fakeSessions) GetByID(_ context.Context, id string) (*models.WidgetSession, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.byID[id]
	if !ok {
		return nil, nil
	}
	cp := *s
	return &cp, nil
}

func (f *fakeSessions) Update(_ context.Context, session *models.WidgetSession) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	session.UpdatedAt = time.Now().UTC()
	cp := *session
	f.byID[session.ID] = &cp
	return nil
}

func (f *fakeSessions) ClaimPending(_ context.Context, id string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.byID[id]
	if !ok || s.Status != models.SessionPending {
		return false, nil
	}
	s.Status = models.SessionProcessing
	return true, nil
}

func (f *fakeSessions) DeleteByAccountID(_ context.Context, accountID string) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var images []string
	for id, s := range f.byID {
		if s.AccountID == accountID {
			if s.ResultImage != "" {
				images = append(images, s.ResultImage)
			}
			if s.ResultThumbnail != "" {
				images = append(images, s.ResultThumbnail)
			}
			delete(f.byID, id)
			f.deleted = append(f.deleted, id)
		}
	}
	return images, nil
}

// fakeAnalytics is an in-memory AnalyticsRepository.
type fakeAnalytics struct {
	mu     sync.Mutex
	events []*models.AnalyticsEvent
}

func (f *fakeAnalytics) Create(_ context.Context, event *models.AnalyticsEvent) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, event)
	return nil
}

func (f *fakeAnalytics) DeleteByAccountID(_ context.Context, accountID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	var kept []*models.AnalyticsEvent
	for _, e := range f.events {
		if e.AccountID != accountID {
			kept = append(kept, e)
		}
	}
	f.events = kept
	return nil
}
