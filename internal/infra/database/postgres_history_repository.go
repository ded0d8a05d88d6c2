package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"notification_reconciler/internal/domain/notification"
)

// PostgresHistoryRepository appends every delivery, silent or audible, to delivery_history.
type PostgresHistoryRepository struct {
	db *sql.DB
}

func NewPostgresHistoryRepository(db *sql.DB) *PostgresHistoryRepository {
	return &PostgresHistoryRepository{db: db}
}

func (r *PostgresHistoryRepository) RecordDelivery(ctx context.Context, recipientID string, d notification.Delivery, at time.Time) error {
	query := `INSERT INTO delivery_history
               (recipient_id, candidate_id, title, body, target_screen, category, silent, delivered_at)
               VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`
	_, err := r.db.ExecContext(ctx, query, recipientID, d.CandidateID, d.Title, d.Body, d.TargetScreen, string(d.Category), d.Silent, at)
	if err != nil {
		return fmt.Errorf("error recording delivery %s: %w", d.CandidateID, err)
	}
	return nil
}
