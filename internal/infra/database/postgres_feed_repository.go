package database

import (
	"context"
	"database/sql"
	"fmt"

	"notification_reconciler/internal/domain/notification"
)

// PostgresFeedRepository answers the two predicate-scoped feed queries.
type PostgresFeedRepository struct {
	db *sql.DB
}

func NewPostgresFeedRepository(db *sql.DB) *PostgresFeedRepository {
	return &PostgresFeedRepository{db: db}
}

func (r *PostgresFeedRepository) ListPendingInvites(ctx context.Context, email string) ([]notification.Row, error) {
	query := `SELECT id::text, title, body, invitee_email, created_at
               FROM invitations
               WHERE invitee_email = $1 AND status = 'pending'
               ORDER BY created_at, id`
	rows, err := r.db.QueryContext(ctx, query, email)
	if err != nil {
		return nil, fmt.Errorf("error querying pending invitations: %w", err)
	}
	defer rows.Close()
	return scanFeedRows(rows)
}

func (r *PostgresFeedRepository) ListUnreadNotifications(ctx context.Context, userID string) ([]notification.Row, error) {
	query := `SELECT id::text, title, body, user_id, created_at
               FROM notifications
               WHERE user_id = $1 AND NOT read
               ORDER BY created_at, id`
	rows, err := r.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("error querying unread notifications: %w", err)
	}
	defer rows.Close()
	return scanFeedRows(rows)
}

func scanFeedRows(rows *sql.Rows) ([]notification.Row, error) {
	result := make([]notification.Row, 0)
	for rows.Next() {
		var row notification.Row
		if err := rows.Scan(&row.ID, &row.Title, &row.Body, &row.Recipient, &row.CreatedAt); err != nil {
			return nil, fmt.Errorf("error scanning feed row: %w", err)
		}
		result = append(result, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating feed rows: %w", err)
	}
	return result, nil
}
