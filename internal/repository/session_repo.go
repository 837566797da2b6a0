package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/stylemirror/tryon-api/internal/models"
)

// SQLiteSessionRepository implements SessionRepository for SQLite/libsql.
type SQLiteSessionRepository struct {
	db *sql.DB
}

// NewSQLiteSessionRepository creates a new SQLite session repository.
func NewSQLiteSessionRepository(db *sql.DB) *SQLiteSessionRepository {
	return &SQLiteSessionRepository{db: db}
}

const sessionColumns = `id, account_id, status, product_image, product_name,
	product_id, product_category, product_price, product_currency, product_url,
	external_user_id, user_image, origin_domain, user_agent, ip_address,
	result_image, result_thumbnail, processing_time_ms, error_code,
	error_message, expires_at, completed_at, created_at, updated_at`

// Create inserts a new widget session.
func (r *SQLiteSessionRepository) Create(ctx context.Context, session *models.WidgetSession) error {
	now := time.Now().UTC()
	session.CreatedAt = now
	session.UpdatedAt = now

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO widget_sessions (`+sessionColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		session.ID, session.AccountID, string(session.Status),
		session.ProductImage, nullString(session.ProductName),
		nullString(session.ProductID), nullString(session.ProductCategory),
		session.ProductPrice, nullString(session.ProductCurrency),
		nullString(session.ProductURL), nullString(session.ExternalUserID),
		nullString(session.UserImage), nullString(session.OriginDomain),
		nullString(session.UserAgent), nullString(session.IPAddress),
		nullString(session.ResultImage), nullString(session.ResultThumbnail),
		session.ProcessingTimeMs, nullString(session.ErrorCode),
		nullString(session.ErrorMessage),
		session.ExpiresAt.UTC().Format(time.RFC3339),
		nullTime(session.CompletedAt),
		now.Format(time.RFC3339), now.Format(time.RFC3339),
	)
	return err
}

// GetByID retrieves a widget session by ID.
func (r *SQLiteSessionRepository) GetByID(ctx context.Context, id string) (*models.WidgetSession, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+sessionColumns+` FROM widget_sessions WHERE id = ?`, id)
	return scanSession(row)
}

// Update persists mutable session fields.
func (r *SQLiteSessionRepository) Update(ctx context.Context, session *models.WidgetSession) error {
	session.UpdatedAt = time.Now().UTC()

	_, err := r.db.ExecContext(ctx, `
		UPDATE widget_sessions
		SET status = ?, result_image = ?, result_thumbnail = ?,
			processing_time_ms = ?, error_code = ?, error_message = ?,
			completed_at = ?, updated_at = ?
		WHERE id = ?
	`,
		string(session.Status),
		nullString(session.ResultImage), nullString(session.ResultThumbnail),
		session.ProcessingTimeMs, nullString(session.ErrorCode),
		nullString(session.ErrorMessage), nullTime(session.CompletedAt),
		session.UpdatedAt.Format(time.RFC3339), session.ID,
	)
	return err
}

// ClaimPending atomically transitions a session from pending to
// processing. The conditional WHERE means concurrent duplicate
// submissions can claim at most once.
func (r *SQLiteSessionRepository) ClaimPending(ctx context.Context, id string) (bool, error) {
	res, err := r.db.ExecContext(ctx, `
		UPDATE widget_sessions
		SET status = ?, updated_at = ?
		WHERE id = ? AND status = ?
	`, string(models.SessionProcessing), time.Now().UTC().Format(time.RFC3339),
		id, string(models.SessionPending))
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

// DeleteByAccountID removes all of an account's sessions and returns the
// stored result image URLs for object cleanup.
func (r *SQLiteSessionRepository) DeleteByAccountID(ctx context.Context, accountID string) ([]string, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT result_image, result_thumbnail
		FROM widget_sessions
		WHERE account_id = ? AND result_image IS NOT NULL
	`, accountID)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var images []string
	for rows.Next() {
		var image, thumb sql.NullString
		if err := rows.Scan(&image, &thumb); err != nil {
			return nil, err
		}
		if image.Valid && image.String != "" {
			images = append(images, image.String)
		}
		if thumb.Valid && thumb.String != "" {
			images = append(images, thumb.String)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	if _, err := r.db.ExecContext(ctx,
		`DELETE FROM widget_sessions WHERE account_id = ?`, accountID); err != nil {
		return nil, err
	}
	return images, nil
}

func scanSession(row *sql.Row) (*models.WidgetSession, error) {
	var s models.WidgetSession
	var status, expiresAt, createdAt, updatedAt string
	var productName, productID, productCategory, productCurrency, productURL sql.NullString
	var externalUserID, userImage, originDomain, userAgent, ipAddress sql.NullString
	var resultImage, resultThumbnail, errorCode, errorMessage, completedAt sql.NullString
	var productPrice sql.NullFloat64
	var processingTime sql.NullInt64

	err := row.Scan(
		&s.ID, &s.AccountID, &status, &s.ProductImage, &productName,
		&productID, &productCategory, &productPrice, &productCurrency,
		&productURL, &externalUserID, &userImage, &originDomain, &userAgent,
		&ipAddress, &resultImage, &resultThumbnail, &processingTime,
		&errorCode, &errorMessage, &expiresAt, &completedAt,
		&createdAt, &updatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	s.Status = models.SessionStatus(status)
	s.ProductName = productName.String
	s.ProductID = productID.String
	s.ProductCategory = productCategory.String
	s.ProductPrice = productPrice.Float64
	s.ProductCurrency = productCurrency.String
	s.ProductURL = productURL.String
	s.ExternalUserID = externalUserID.String
	s.UserImage = userImage.String
	s.OriginDomain = originDomain.String
	s.UserAgent = userAgent.String
	s.IPAddress = ipAddress.String
	s.ResultImage = resultImage.String
	s.ResultThumbnail = resultThumbnail.String
	s.ProcessingTimeMs = processingTime.Int64
	s.ErrorCode = errorCode.String
	s.ErrorMessage = errorMessage.String

	s.ExpiresAt, _ = time.Parse(time.RFC3339, expiresAt)
	s.CompletedAt = parseNullTime(completedAt)
	s.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
	s.UpdatedAt, _ = time.Parse(time.RFC3339, updatedAt)

	return &s, nil
}
