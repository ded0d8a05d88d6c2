// internal/domain/notification/repository.go
package notification

import (
	"context"
	"time"
)

// Row is a single record returned by a feed query.
type Row struct {
	ID        string
	Title     string
	Body      string
	Recipient string
	CreatedAt time.Time
}

// FeedRepository is the predicate-scoped query interface over the two logical collections.
type FeedRepository interface {
	// ListPendingInvites returns pending invitations addressed to email.
	ListPendingInvites(ctx context.Context, email string) ([]Row, error)
	// ListUnreadNotifications returns unread notifications addressed to userID.
	ListUnreadNotifications(ctx context.Context, userID string) ([]Row, error)
}

// KV is the key-value persistence interface used for dedup history and preferences.
type KV interface {
	// Get returns the stored value and whether the key exists.
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string) error
	Close() error
}

// Sink receives the engine's surviving deliveries.
type Sink interface {
	Deliver(ctx context.Context, d Delivery) error
}

// HistoryRepository records every delivery, silent or not.
type HistoryRepository interface {
	RecordDelivery(ctx context.Context, recipientID string, d Delivery, at time.Time) error
}
