package telegram

import (
	"context"
	"errors"

	"gopkg.in/telebot.v3"
)

// ErrChatUnreachable means the chat can no longer receive messages: the bot was blocked, the
// chat was deleted or the account deactivated. Resending will not help.
var ErrChatUnreachable = errors.New("telegram chat unreachable")

// Message is one outgoing chat message. Markup is optional.
type Message struct {
	ChatID int64
	Text   string
	Markup *telebot.ReplyMarkup
}

type Sender interface {
	Send(ctx context.Context, m Message) error
}
