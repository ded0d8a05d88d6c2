package recipient

import (
	"context"
	"errors"
)

// ErrNotFound is returned by repositories when no recipient matches.
var ErrNotFound = errors.New("recipient not found")

// Repository defines the operations for retrieving Recipient entities.
type Repository interface {
	GetByID(ctx context.Context, id string) (*Recipient, error)
	GetByTelegramChatID(ctx context.Context, chatID int64) (*Recipient, error)
}
