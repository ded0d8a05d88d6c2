// internal/infra/telegram/delivery_sink.go
package telegram

import (
	"context"
	"errors"
	"fmt"
	"time"

	"notification_reconciler/internal/domain/notification"
	"notification_reconciler/internal/domain/recipient"
	tgdomain "notification_reconciler/internal/domain/telegram"

	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"
	"gopkg.in/telebot.v3"
)

// OpenScreenUnique is the callback id of the inline button attached to every delivered message.
// Its payload is the target screen.
const OpenScreenUnique = "open"

// DeliverySink delivers to a recipient's Telegram chat. Silent deliveries are only written to
// history; audible ones are sent with an "Open <screen>" button and then written to history.
type DeliverySink struct {
	sender    tgdomain.Sender
	history   notification.HistoryRepository
	recipient recipient.Recipient
	limiter   *rate.Limiter
	now       func() time.Time
	logger    *logrus.Entry
}

// NewDeliverySink returns a sink for r. perSecond <= 0 disables throttling.
func NewDeliverySink(
	sender tgdomain.Sender,
	history notification.HistoryRepository,
	r recipient.Recipient,
	perSecond float64,
	logger *logrus.Entry,
) *DeliverySink {
	limit := rate.Inf
	if perSecond > 0 {
		limit = rate.Limit(perSecond)
	}
	return &DeliverySink{
		sender:    sender,
		history:   history,
		recipient: r,
		limiter:   rate.NewLimiter(limit, 1),
		now:       time.Now,
		logger:    logger.WithField("chat_id", r.TelegramChatID),
	}
}

func (s *DeliverySink) Deliver(ctx context.Context, d notification.Delivery) error {
	if d.Silent {
		if err := s.history.RecordDelivery(ctx, s.recipient.ID, d, s.now()); err != nil {
			return fmt.Errorf("failed to record silent delivery: %w", err)
		}
		return nil
	}

	if err := s.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("delivery throttle: %w", err)
	}
	msg := tgdomain.Message{
		ChatID: s.recipient.TelegramChatID,
		Text:   FormatDelivery(d),
		Markup: OpenScreenMarkup(d.TargetScreen),
	}
	if err := s.sender.Send(ctx, msg); err != nil {
		if errors.Is(err, tgdomain.ErrChatUnreachable) {
			s.logger.WithError(err).Warn("Recipient chat is unreachable; check that the bot is not blocked")
		}
		return fmt.Errorf("failed to send message to chat %d: %w", s.recipient.TelegramChatID, err)
	}

	if err := s.history.RecordDelivery(ctx, s.recipient.ID, d, s.now()); err != nil {
		// The message is already out.
		s.logger.WithError(err).WithField("candidate_id", d.CandidateID).Warn("Failed to record delivery history")
	}
	return nil
}

// FormatDelivery renders the message text.
func FormatDelivery(d notification.Delivery) string {
	if d.Body == "" {
		return d.Title
	}
	return d.Title + "\n\n" + d.Body
}

// OpenScreenMarkup builds the inline keyboard carrying screen as tap metadata.
func OpenScreenMarkup(screen string) *telebot.ReplyMarkup {
	markup := &telebot.ReplyMarkup{}
	if screen == "" {
		return markup
	}
	btn := markup.Data("Open "+screen, OpenScreenUnique, screen)
	markup.Inline(markup.Row(btn))
	return markup
}
