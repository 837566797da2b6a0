package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/stylemirror/tryon-api/internal/models"
)

// SQLiteAnalyticsRepository implements AnalyticsRepository for SQLite/libsql.
type SQLiteAnalyticsRepository struct {
	db *sql.DB
}

// NewSQLiteAnalyticsRepository creates a new SQLite analytics repository.
func NewSQLiteAnalyticsRepository(db *sql.DB) *SQLiteAnalyticsRepository {
	return &SQLiteAnalyticsRepository{db: db}
}

// Create appends a usage event.
func (r *SQLiteAnalyticsRepository) Create(ctx context.Context, event *models.AnalyticsEvent) error {
	if event.ID == "" {
		event.ID = ulid.Make().String()
	}
	event.CreatedAt = time.Now().UTC()

	var dataJSON *string
	if len(event.EventData) > 0 {
		data, err := json.Marshal(event.EventData)
		if err != nil {
			return err
		}
		s := string(data)
		dataJSON = &s
	}

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO analytics_events (id, account_id, session_id, event_type, event_data, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, event.ID, event.AccountID, nullString(event.SessionID), event.EventType,
		dataJSON, event.CreatedAt.Format(time.RFC3339))
	return err
}

// DeleteByAccountID removes all events for an account (cascading delete).
func (r *SQLiteAnalyticsRepository) DeleteByAccountID(ctx context.Context, accountID string) error {
	_, err := r.db.ExecContext(ctx,
		`DELETE FROM analytics_events WHERE account_id = ?`, accountID)
	return err
}
