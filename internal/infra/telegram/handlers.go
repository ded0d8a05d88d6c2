// internal/infra/telegram/handlers.go
package telegram

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"notification_reconciler/internal/app"
	"notification_reconciler/internal/domain/notification"
	"notification_reconciler/internal/domain/recipient"

	"github.com/sirupsen/logrus"
	"gopkg.in/telebot.v3"
)

const notLinkedText = "This chat is not linked to the monitored account."

// Navigator renders a screen named by a notification's tap payload.
type Navigator interface {
	Render(ctx context.Context, r *recipient.Recipient, screen string) (string, error)
}

// Handlers answers bot commands and inline button taps. Each method returns the reply text so
// the logic can be exercised without a live bot.
type Handlers struct {
	access *app.AccessService
	prefs  *app.PreferencesService
	nav    Navigator
	logger *logrus.Entry
}

func NewHandlers(access *app.AccessService, prefs *app.PreferencesService, nav Navigator, logger *logrus.Entry) *Handlers {
	return &Handlers{
		access: access,
		prefs:  prefs,
		nav:    nav,
		logger: logger,
	}
}

// Register installs the command and callback handlers on b.
func (h *Handlers) Register(ctx context.Context, b *telebot.Bot) {
	b.Handle("/start", func(c telebot.Context) error {
		return c.Send(h.Start(ctx, c.Chat().ID, c.Sender().FirstName))
	})
	b.Handle("/help", func(c telebot.Context) error {
		return c.Send(h.Help(ctx, c.Chat().ID))
	})
	b.Handle("/settings", func(c telebot.Context) error {
		return c.Send(h.Settings(ctx, c.Chat().ID))
	})
	b.Handle("/toggle", func(c telebot.Context) error {
		return c.Send(h.Toggle(ctx, c.Chat().ID, c.Args()))
	})

	openBtn := telebot.Btn{Unique: OpenScreenUnique}
	b.Handle(&openBtn, func(c telebot.Context) error {
		text, alert := h.OpenScreen(ctx, c.Chat().ID, c.Callback().Data)
		if alert {
			return c.Respond(&telebot.CallbackResponse{Text: text, ShowAlert: true})
		}
		if err := c.Respond(); err != nil {
			h.logger.WithError(err).Debug("Failed to acknowledge callback")
		}
		return c.Send(text)
	})
}

func (h *Handlers) authorize(ctx context.Context, log *logrus.Entry, chatID int64) (*recipient.Recipient, string) {
	r, err := h.access.Authorize(ctx, chatID)
	if err == nil {
		return r, ""
	}
	if errors.Is(err, app.ErrNotAuthorized) {
		log.Warn("Unauthorized access attempt")
		return nil, notLinkedText
	}
	log.WithError(err).Error("Failed to resolve chat")
	return nil, "Something went wrong while checking your account. Please try again later."
}

func (h *Handlers) Start(ctx context.Context, chatID int64, firstName string) string {
	log := h.logger.WithFields(logrus.Fields{"command": "/start", "chat_id": chatID})
	log.Info("Processing /start command")

	r, reply := h.authorize(ctx, log, chatID)
	if r == nil {
		return reply
	}
	name := firstName
	if r.DisplayName.Valid && r.DisplayName.String != "" {
		name = r.DisplayName.String
	}
	return fmt.Sprintf("Hi %s! Notifications for %s will be delivered here. Use /help to see the commands.", name, r.Email)
}

func (h *Handlers) Help(ctx context.Context, chatID int64) string {
	log := h.logger.WithFields(logrus.Fields{"command": "/help", "chat_id": chatID})
	if r, reply := h.authorize(ctx, log, chatID); r == nil {
		return reply
	}

	var b strings.Builder
	b.WriteString("Available commands:\n\n")
	b.WriteString("/settings - show which notifications are enabled\n")
	b.WriteString("/toggle <push|budget|device|tips> - switch a notification type on or off\n")
	b.WriteString("/help - show this message\n\n")
	b.WriteString("Tap the button under a notification to open its screen.")
	return b.String()
}

func (h *Handlers) Settings(ctx context.Context, chatID int64) string {
	log := h.logger.WithFields(logrus.Fields{"command": "/settings", "chat_id": chatID})
	if r, reply := h.authorize(ctx, log, chatID); r == nil {
		return reply
	}

	cfg, err := h.prefs.Get(ctx)
	if err != nil {
		log.WithError(err).Error("Failed to load preferences")
		return "Could not load your settings. Please try again later."
	}
	return FormatPreferences(cfg)
}

func (h *Handlers) Toggle(ctx context.Context, chatID int64, args []string) string {
	log := h.logger.WithFields(logrus.Fields{"command": "/toggle", "chat_id": chatID})
	if r, reply := h.authorize(ctx, log, chatID); r == nil {
		return reply
	}
	if len(args) != 1 {
		return "Usage: /toggle <push|budget|device|tips>"
	}

	key := notification.PreferenceKey(strings.ToLower(strings.TrimSpace(args[0])))
	cfg, err := h.prefs.Toggle(ctx, key)
	if err != nil {
		if errors.Is(err, app.ErrUnknownPreference) {
			return fmt.Sprintf("Unknown setting %q. Use one of: push, budget, device, tips.", args[0])
		}
		log.WithError(err).Error("Failed to toggle preference")
		return "Could not save your settings. Please try again later."
	}

	v, _ := cfg.Value(key)
	log.WithFields(logrus.Fields{"preference": key, "enabled": v}).Info("Preference changed")
	return FormatPreferences(cfg)
}

// OpenScreen handles a tap on a delivered notification. The bool result asks the caller to show
// the text as a callback alert instead of a message.
func (h *Handlers) OpenScreen(ctx context.Context, chatID int64, screen string) (string, bool) {
	log := h.logger.WithFields(logrus.Fields{"callback": OpenScreenUnique, "chat_id": chatID, "screen": screen})

	r, reply := h.authorize(ctx, log, chatID)
	if r == nil {
		return reply, true
	}
	text, err := h.nav.Render(ctx, r, screen)
	if err != nil {
		if errors.Is(err, app.ErrUnknownScreen) {
			log.Warn("Tap for unknown screen")
			return "Unknown action.", true
		}
		log.WithError(err).Error("Failed to render screen")
		return "Could not open this screen right now.", true
	}
	return text, false
}

// FormatPreferences renders the toggles in display order.
func FormatPreferences(cfg notification.SuppressionConfig) string {
	labels := map[notification.PreferenceKey]string{
		notification.PreferencePush:   "All notifications",
		notification.PreferenceBudget: "Budget alerts",
		notification.PreferenceDevice: "Device status",
		notification.PreferenceTips:   "Tips & news",
	}
	var b strings.Builder
	b.WriteString("Notification settings:\n")
	for _, k := range notification.PreferenceKeys {
		v, _ := cfg.Value(k)
		state := "off"
		if v {
			state = "on"
		}
		fmt.Fprintf(&b, "\n%s (%s): %s", labels[k], k, state)
	}
	return b.String()
}
