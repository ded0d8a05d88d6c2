package app

import (
	"context"
	"errors"
	"fmt"

	"notification_reconciler/internal/domain/recipient"
)

var ErrNotAuthorized = errors.New("chat is not linked to the monitored recipient")

// AccessService decides which chats may use the bot: only the chat of the configured recipient.
type AccessService struct {
	recipients  recipient.Repository
	recipientID string
}

func NewAccessService(recipients recipient.Repository, recipientID string) *AccessService {
	return &AccessService{
		recipients:  recipients,
		recipientID: recipientID,
	}
}

// Recipient loads the configured recipient.
func (s *AccessService) Recipient(ctx context.Context) (*recipient.Recipient, error) {
	r, err := s.recipients.GetByID(ctx, s.recipientID)
	if err != nil {
		return nil, fmt.Errorf("failed to load recipient %q: %w", s.recipientID, err)
	}
	return r, nil
}

// Authorize resolves chatID to the configured recipient or returns ErrNotAuthorized.
func (s *AccessService) Authorize(ctx context.Context, chatID int64) (*recipient.Recipient, error) {
	r, err := s.recipients.GetByTelegramChatID(ctx, chatID)
	if err != nil {
		if errors.Is(err, recipient.ErrNotFound) {
			return nil, ErrNotAuthorized
		}
		return nil, fmt.Errorf("failed to check chat %d: %w", chatID, err)
	}
	if r.ID != s.recipientID {
		return nil, ErrNotAuthorized
	}
	return r, nil
}
