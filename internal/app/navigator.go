package app

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"notification_reconciler/internal/domain/notification"
	"notification_reconciler/internal/domain/recipient"
)

var ErrUnknownScreen = errors.New("unknown screen")

// maxScreenRows caps the number of rows rendered in one reply.
const maxScreenRows = 10

// ScreenNavigator resolves the tap payload of a delivered notification into the screen's
// current content.
type ScreenNavigator struct {
	feed notification.FeedRepository
}

func NewScreenNavigator(feed notification.FeedRepository) *ScreenNavigator {
	return &ScreenNavigator{feed: feed}
}

// Render returns a text view of screen for r.
func (n *ScreenNavigator) Render(ctx context.Context, r *recipient.Recipient, screen string) (string, error) {
	var (
		rows  []notification.Row
		err   error
		empty string
	)
	switch screen {
	case notification.ScreenInvitations:
		rows, err = n.feed.ListPendingInvites(ctx, r.Email)
		empty = "No pending invitations."
	case notification.ScreenNotifications:
		rows, err = n.feed.ListUnreadNotifications(ctx, r.ID)
		empty = "No unread notifications."
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownScreen, screen)
	}
	if err != nil {
		return "", fmt.Errorf("failed to load %s: %w", screen, err)
	}
	if len(rows) == 0 {
		return empty, nil
	}

	var b strings.Builder
	fmt.Fprintf(&b, "%s (%d)\n", screen, len(rows))
	for i, row := range rows {
		if i == maxScreenRows {
			fmt.Fprintf(&b, "…and %d more", len(rows)-maxScreenRows)
			break
		}
		fmt.Fprintf(&b, "\n• %s", row.Title)
		if row.Body != "" {
			fmt.Fprintf(&b, "\n  %s", row.Body)
		}
	}
	return strings.TrimRight(b.String(), "\n"), nil
}
