package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/stylemirror/tryon-api/internal/models"
)

// SQLiteAccountRepository implements AccountRepository for SQLite/libsql.
type SQLiteAccountRepository struct {
	db *sql.DB
}

// NewSQLiteAccountRepository creates a new SQLite account repository.
func NewSQLiteAccountRepository(db *sql.DB) *SQLiteAccountRepository {
	return &SQLiteAccountRepository{db: db}
}

const accountColumns = `id, email, plan, live_key, test_key, allowed_domains,
	monthly_quota, total_quota, quota_used, studio_used, widget_used,
	quota_reset_at, status, email_verified, webhook_url,
	webhook_secret_encrypted, settings, stripe_customer_id, created_at, updated_at`

// Create inserts a new account.
func (r *SQLiteAccountRepository) Create(ctx context.Context, account *models.Account) error {
	now := time.Now().UTC()
	if account.ID == "" {
		account.ID = ulid.Make().String()
	}
	account.CreatedAt = now
	account.UpdatedAt = now

	domainsJSON, err := json.Marshal(account.AllowedDomains)
	if err != nil {
		return err
	}
	settingsJSON, err := marshalSettings(account.Settings)
	if err != nil {
		return err
	}

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO accounts (`+accountColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		account.ID, account.Email, string(account.Plan),
		nullString(account.LiveKey), nullString(account.TestKey), string(domainsJSON),
		nullInt(account.MonthlyQuota), account.TotalQuota, account.QuotaUsed,
		account.StudioUsed, account.WidgetUsed, nullTime(account.QuotaResetAt),
		string(account.Status), account.EmailVerified,
		nullString(account.WebhookURL), nullString(account.WebhookSecret),
		settingsJSON, nullString(account.StripeCustomer),
		now.Format(time.RFC3339), now.Format(time.RFC3339),
	)
	return err
}

// GetByID retrieves an account by ID.
func (r *SQLiteAccountRepository) GetByID(ctx context.Context, id string) (*models.Account, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+accountColumns+` FROM accounts WHERE id = ?`, id)
	return r.scanAccount(ctx, row)
}

// GetByAPIKey resolves an account from any of its credentials: the
// canonical live/test pair or an unrevoked named key.
func (r *SQLiteAccountRepository) GetByAPIKey(ctx context.Context, key string) (*models.Account, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+accountColumns+` FROM accounts WHERE live_key = ? OR test_key = ?`, key, key)
	account, err := r.scanAccount(ctx, row)
	if err != nil || account != nil {
		return account, err
	}

	// Fall back to the named key table.
	namedKey, err := r.GetKeyByValue(ctx, key)
	if err != nil || namedKey == nil || namedKey.Revoked() {
		return nil, err
	}
	return r.GetByID(ctx, namedKey.AccountID)
}

// GetByStripeCustomer retrieves an account by its Stripe customer ID.
func (r *SQLiteAccountRepository) GetByStripeCustomer(ctx context.Context, customerID string) (*models.Account, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+accountColumns+` FROM accounts WHERE stripe_customer_id = ?`, customerID)
	return r.scanAccount(ctx, row)
}

// Update persists mutable account fields.
func (r *SQLiteAccountRepository) Update(ctx context.Context, account *models.Account) error {
	account.UpdatedAt = time.Now().UTC()

	domainsJSON, err := json.Marshal(account.AllowedDomains)
	if err != nil {
		return err
	}
	settingsJSON, err := marshalSettings(account.Settings)
	if err != nil {
		return err
	}

	_, err = r.db.ExecContext(ctx, `
		UPDATE accounts
		SET email = ?, plan = ?, live_key = ?, test_key = ?, allowed_domains = ?,
			monthly_quota = ?, total_quota = ?, quota_used = ?, studio_used = ?,
			widget_used = ?, quota_reset_at = ?, status = ?, email_verified = ?,
			webhook_url = ?, webhook_secret_encrypted = ?, settings = ?,
			stripe_customer_id = ?, updated_at = ?
		WHERE id = ?
	`,
		account.Email, string(account.Plan),
		nullString(account.LiveKey), nullString(account.TestKey), string(domainsJSON),
		nullInt(account.MonthlyQuota), account.TotalQuota, account.QuotaUsed,
		account.StudioUsed, account.WidgetUsed, nullTime(account.QuotaResetAt),
		string(account.Status), account.EmailVerified,
		nullString(account.WebhookURL), nullString(account.WebhookSecret),
		settingsJSON, nullString(account.StripeCustomer),
		account.UpdatedAt.Format(time.RFC3339), account.ID,
	)
	return err
}

// ResetQuota zeroes the combined counter and schedules the next reset.
func (r *SQLiteAccountRepository) ResetQuota(ctx context.Context, accountID string, nextResetAt time.Time) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE accounts
		SET quota_used = 0, quota_reset_at = ?, updated_at = ?
		WHERE id = ?
	`, nextResetAt.UTC().Format(time.RFC3339), time.Now().UTC().Format(time.RFC3339), accountID)
	return err
}

// IncrementQuota bumps the combined usage counter.
func (r *SQLiteAccountRepository) IncrementQuota(ctx context.Context, accountID string) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE accounts SET quota_used = quota_used + 1, updated_at = ? WHERE id = ?`,
		time.Now().UTC().Format(time.RFC3339), accountID)
	return err
}

// IncrementStudioQuota bumps the studio counter and the combined counter.
func (r *SQLiteAccountRepository) IncrementStudioQuota(ctx context.Context, accountID string) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE accounts SET studio_used = studio_used + 1, quota_used = quota_used + 1, updated_at = ? WHERE id = ?`,
		time.Now().UTC().Format(time.RFC3339), accountID)
	return err
}

// IncrementWidgetQuota bumps the widget counter and the combined counter.
func (r *SQLiteAccountRepository) IncrementWidgetQuota(ctx context.Context, accountID string) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE accounts SET widget_used = widget_used + 1, quota_used = quota_used + 1, updated_at = ? WHERE id = ?`,
		time.Now().UTC().Format(time.RFC3339), accountID)
	return err
}

// CreateKey inserts a named API key.
func (r *SQLiteAccountRepository) CreateKey(ctx context.Context, key *models.APIKey) error {
	if key.ID == "" {
		key.ID = ulid.Make().String()
	}
	key.CreatedAt = time.Now().UTC()

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO api_keys (id, account_id, name, key, key_prefix, test_mode, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, key.ID, key.AccountID, key.Name, key.Key, key.KeyPrefix, key.TestMode,
		key.CreatedAt.Format(time.RFC3339))
	return err
}

// GetKeys lists an account's named keys, newest first.
func (r *SQLiteAccountRepository) GetKeys(ctx context.Context, accountID string) ([]*models.APIKey, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, account_id, name, key, key_prefix, test_mode, created_at, last_used_at, revoked_at
		FROM api_keys
		WHERE account_id = ?
		ORDER BY created_at DESC
	`, accountID)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var keys []*models.APIKey
	for rows.Next() {
		key, err := scanAPIKey(rows)
		if err != nil {
			return nil, err
		}
		keys = append(keys, key)
	}
	return keys, rows.Err()
}

// GetKeyByValue looks up a named key by its full value.
func (r *SQLiteAccountRepository) GetKeyByValue(ctx context.Context, key string) (*models.APIKey, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, account_id, name, key, key_prefix, test_mode, created_at, last_used_at, revoked_at
		FROM api_keys
		WHERE key = ?
	`, key)
	apiKey, err := scanAPIKey(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return apiKey, err
}

// RevokeKey marks a named key revoked. Scoped to the owning account so a
// merchant cannot revoke another tenant's key by ID.
func (r *SQLiteAccountRepository) RevokeKey(ctx context.Context, accountID, keyID string) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE api_keys SET revoked_at = ? WHERE id = ? AND account_id = ? AND revoked_at IS NULL`,
		time.Now().UTC().Format(time.RFC3339), keyID, accountID)
	return err
}

// TouchKey records when a named key was last used.
func (r *SQLiteAccountRepository) TouchKey(ctx context.Context, keyID string, usedAt time.Time) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE api_keys SET last_used_at = ? WHERE id = ?`,
		usedAt.UTC().Format(time.RFC3339), keyID)
	return err
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAPIKey(row rowScanner) (*models.APIKey, error) {
	var key models.APIKey
	var createdAt string
	var lastUsedAt, revokedAt sql.NullString

	err := row.Scan(&key.ID, &key.AccountID, &key.Name, &key.Key, &key.KeyPrefix,
		&key.TestMode, &createdAt, &lastUsedAt, &revokedAt)
	if err != nil {
		return nil, err
	}

	key.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
	key.LastUsedAt = parseNullTime(lastUsedAt)
	key.RevokedAt = parseNullTime(revokedAt)
	return &key, nil
}

func (r *SQLiteAccountRepository) scanAccount(ctx context.Context, row *sql.Row) (*models.Account, error) {
	var account models.Account
	var plan, status string
	var liveKey, testKey, quotaResetAt, webhookURL, webhookSecret sql.NullString
	var settingsJSON, stripeCustomer sql.NullString
	var domainsJSON, createdAt, updatedAt string
	var monthlyQuota sql.NullInt64

	err := row.Scan(
		&account.ID, &account.Email, &plan, &liveKey, &testKey, &domainsJSON,
		&monthlyQuota, &account.TotalQuota, &account.QuotaUsed,
		&account.StudioUsed, &account.WidgetUsed, &quotaResetAt,
		&status, &account.EmailVerified, &webhookURL, &webhookSecret,
		&settingsJSON, &stripeCustomer, &createdAt, &updatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	account.Plan = models.Plan(plan)
	account.Status = models.AccountStatus(status)
	account.LiveKey = liveKey.String
	account.TestKey = testKey.String
	account.WebhookURL = webhookURL.String
	account.WebhookSecret = webhookSecret.String
	account.StripeCustomer = stripeCustomer.String

	if err := json.Unmarshal([]byte(domainsJSON), &account.AllowedDomains); err != nil {
		return nil, err
	}
	if settingsJSON.Valid && settingsJSON.String != "" {
		if err := json.Unmarshal([]byte(settingsJSON.String), &account.Settings); err != nil {
			return nil, err
		}
	}
	if monthlyQuota.Valid {
		v := int(monthlyQuota.Int64)
		account.MonthlyQuota = &v
	}
	account.QuotaResetAt = parseNullTime(quotaResetAt)
	account.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
	account.UpdatedAt, _ = time.Parse(time.RFC3339, updatedAt)

	keys, err := r.GetKeys(ctx, account.ID)
	if err != nil {
		return nil, err
	}
	for _, k := range keys {
		account.Keys = append(account.Keys, *k)
	}

	return &account, nil
}

func marshalSettings(settings map[string]string) (*string, error) {
	if len(settings) == 0 {
		return nil, nil
	}
	data, err := json.Marshal(settings)
	if err != nil {
		return nil, err
	}
	s := string(data)
	return &s, nil
}

func nullString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func nullInt(v *int) *int64 {
	if v == nil {
		return nil
	}
	n := int64(*v)
	return &n
}

func nullTime(t *time.Time) *string {
	if t == nil {
		return nil
	}
	s := t.UTC().Format(time.RFC3339)
	return &s
}

func parseNullTime(s sql.NullString) *time.Time {
	if !s.Valid || s.String == "" {
		return nil
	}
	t, err := time.Parse(time.RFC3339, s.String)
	if err != nil {
		return nil
	}
	return &t
}
