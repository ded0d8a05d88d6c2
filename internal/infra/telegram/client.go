// internal/infra/telegram/client.go
package telegram

import (
	"context"
	"errors"
	"fmt"

	tgdomain "notification_reconciler/internal/domain/telegram"

	"gopkg.in/telebot.v3"
)

// chatGoneErrors are the Bot API answers after which a chat never accepts messages again.
var chatGoneErrors = []error{
	telebot.ErrBlockedByUser,
	telebot.ErrChatNotFound,
	telebot.ErrUserIsDeactivated,
	telebot.ErrKickedFromGroup,
}

// BotSender sends messages through a telebot.Bot.
type BotSender struct {
	bot *telebot.Bot
}

func NewBotSender(b *telebot.Bot) *BotSender {
	return &BotSender{bot: b}
}

// Send posts m as plain text without link previews.
func (s *BotSender) Send(ctx context.Context, m tgdomain.Message) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	opts := &telebot.SendOptions{
		ReplyMarkup:           m.Markup,
		DisableWebPagePreview: true,
	}
	if _, err := s.bot.Send(telebot.ChatID(m.ChatID), m.Text, opts); err != nil {
		return classifySendError(err)
	}
	return nil
}

func classifySendError(err error) error {
	for _, gone := range chatGoneErrors {
		if errors.Is(err, gone) {
			return fmt.Errorf("%w: %v", tgdomain.ErrChatUnreachable, err)
		}
	}
	return err
}
