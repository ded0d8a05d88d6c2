package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"notification_reconciler/internal/domain/recipient"
)

// ErrRecipientNotFound aliases the domain error so callers can match either.
var ErrRecipientNotFound = recipient.ErrNotFound

type PostgresRecipientRepository struct {
	db *sql.DB
}

func NewPostgresRecipientRepository(db *sql.DB) *PostgresRecipientRepository {
	return &PostgresRecipientRepository{db: db}
}

func (r *PostgresRecipientRepository) GetByID(ctx context.Context, id string) (*recipient.Recipient, error) {
	query := `SELECT id, email, telegram_chat_id, display_name, created_at, updated_at
               FROM recipients WHERE id = $1`
	rec := &recipient.Recipient{}
	err := r.db.QueryRowContext(ctx, query, id).Scan(&rec.ID, &rec.Email, &rec.TelegramChatID, &rec.DisplayName, &rec.CreatedAt, &rec.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrRecipientNotFound
		}
		return nil, fmt.Errorf("error getting recipient by ID: %w", err)
	}
	return rec, nil
}

func (r *PostgresRecipientRepository) GetByTelegramChatID(ctx context.Context, chatID int64) (*recipient.Recipient, error) {
	query := `SELECT id, email, telegram_chat_id, display_name, created_at, updated_at
               FROM recipients WHERE telegram_chat_id = $1`
	rec := &recipient.Recipient{}
	err := r.db.QueryRowContext(ctx, query, chatID).Scan(&rec.ID, &rec.Email, &rec.TelegramChatID, &rec.DisplayName, &rec.CreatedAt, &rec.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrRecipientNotFound
		}
		return nil, fmt.Errorf("error getting recipient by Telegram chat ID: %w", err)
	}
	return rec, nil
}
