package recipient

import (
	"database/sql"
	"time"
)

// Recipient is the user a notification session is scoped to.
type Recipient struct {
	ID             string // user id; scopes unread notifications
	Email          string // scopes pending invitations
	TelegramChatID int64
	DisplayName    sql.NullString
	CreatedAt      time.Time
	UpdatedAt      time.Time
}
