package telegram

import (
	"context"
	"database/sql"
	"errors"
	"sync"
	"testing"
	"time"

	"notification_reconciler/internal/app"
	"notification_reconciler/internal/domain/notification"
	"notification_reconciler/internal/domain/recipient"
	tgdomain "notification_reconciler/internal/domain/telegram"
	"notification_reconciler/internal/infra/kv"
	"notification_reconciler/internal/infra/logger"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/telebot.v3"
)

type fakeSender struct {
	mu   sync.Mutex
	sent []tgdomain.Message
	err  error
}

func (f *fakeSender) Send(_ context.Context, m tgdomain.Message) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.sent = append(f.sent, m)
	return nil
}

type historyEntry struct {
	recipientID string
	delivery    notification.Delivery
}

type fakeHistory struct {
	mu      sync.Mutex
	entries []historyEntry
	err     error
}

func (f *fakeHistory) RecordDelivery(_ context.Context, recipientID string, d notification.Delivery, _ time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.entries = append(f.entries, historyEntry{recipientID: recipientID, delivery: d})
	return nil
}

var testRecipient = recipient.Recipient{
	ID:             "user-1",
	Email:          "user@example.com",
	TelegramChatID: 1001,
	DisplayName:    sql.NullString{String: "Dana", Valid: true},
}

func TestDeliverySinkAudible(t *testing.T) {
	sender := &fakeSender{}
	history := &fakeHistory{}
	sink := NewDeliverySink(sender, history, testRecipient, 0, logger.Discard())

	d := notification.Delivery{
		CandidateID:  "invitations:1",
		Title:        "New Invitation",
		Body:         "You have a pending invite",
		TargetScreen: notification.ScreenInvitations,
	}
	require.NoError(t, sink.Deliver(context.Background(), d))

	require.Len(t, sender.sent, 1)
	msg := sender.sent[0]
	assert.Equal(t, int64(1001), msg.ChatID)
	assert.Equal(t, "New Invitation\n\nYou have a pending invite", msg.Text)

	require.NotNil(t, msg.Markup)
	require.Len(t, msg.Markup.InlineKeyboard, 1)
	btn := msg.Markup.InlineKeyboard[0][0]
	assert.Equal(t, "Open Invitations", btn.Text)
	assert.Equal(t, OpenScreenUnique, btn.Unique)
	assert.Contains(t, btn.Data, notification.ScreenInvitations)

	require.Len(t, history.entries, 1)
	assert.Equal(t, "user-1", history.entries[0].recipientID)
	assert.False(t, history.entries[0].delivery.Silent)
}

func TestDeliverySinkSilentOnlyRecordsHistory(t *testing.T) {
	sender := &fakeSender{}
	history := &fakeHistory{}
	sink := NewDeliverySink(sender, history, testRecipient, 0, logger.Discard())

	d := notification.Delivery{CandidateID: "notifications:3", Title: "Security Alert", Silent: true}
	require.NoError(t, sink.Deliver(context.Background(), d))

	assert.Empty(t, sender.sent)
	require.Len(t, history.entries, 1)
	assert.True(t, history.entries[0].delivery.Silent)
}

func TestDeliverySinkErrors(t *testing.T) {
	sender := &fakeSender{err: errors.New("telegram: Forbidden")}
	history := &fakeHistory{}
	sink := NewDeliverySink(sender, history, testRecipient, 0, logger.Discard())

	err := sink.Deliver(context.Background(), notification.Delivery{CandidateID: "x", Title: "t"})
	require.Error(t, err)
	assert.Empty(t, history.entries, "nothing is recorded when the send fails")

	// Audible delivery succeeds even when history is down.
	sender.err = nil
	history.err = errors.New("db down")
	assert.NoError(t, sink.Deliver(context.Background(), notification.Delivery{CandidateID: "y", Title: "t"}))

	// Silent delivery has nothing but history, so its failure is reported.
	assert.Error(t, sink.Deliver(context.Background(), notification.Delivery{CandidateID: "z", Title: "t", Silent: true}))
}

func TestDeliverySinkThrottleHonoursContext(t *testing.T) {
	sink := NewDeliverySink(&fakeSender{}, &fakeHistory{}, testRecipient, 0.001, logger.Discard())
	require.NoError(t, sink.Deliver(context.Background(), notification.Delivery{CandidateID: "a", Title: "t"}))

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	assert.Error(t, sink.Deliver(ctx, notification.Delivery{CandidateID: "b", Title: "t"}))
}

func TestFormatDeliveryWithoutBody(t *testing.T) {
	assert.Equal(t, "Invite Accepted", FormatDelivery(notification.Delivery{Title: "Invite Accepted"}))
}

type fakeRecipients struct {
	byChat map[int64]*recipient.Recipient
	err    error
}

func (f *fakeRecipients) GetByID(_ context.Context, id string) (*recipient.Recipient, error) {
	for _, r := range f.byChat {
		if r.ID == id {
			return r, nil
		}
	}
	return nil, recipient.ErrNotFound
}

func (f *fakeRecipients) GetByTelegramChatID(_ context.Context, chatID int64) (*recipient.Recipient, error) {
	if f.err != nil {
		return nil, f.err
	}
	r, ok := f.byChat[chatID]
	if !ok {
		return nil, recipient.ErrNotFound
	}
	return r, nil
}

type fakeNavigator struct {
	screens map[string]string
	err     error
}

func (f *fakeNavigator) Render(_ context.Context, _ *recipient.Recipient, screen string) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	text, ok := f.screens[screen]
	if !ok {
		return "", app.ErrUnknownScreen
	}
	return text, nil
}

func newTestHandlers(t *testing.T) (*Handlers, *fakeRecipients, *fakeNavigator) {
	t.Helper()
	other := recipient.Recipient{ID: "user-2", TelegramChatID: 2002}
	repo := &fakeRecipients{byChat: map[int64]*recipient.Recipient{
		testRecipient.TelegramChatID: &testRecipient,
		other.TelegramChatID:         &other,
	}}
	nav := &fakeNavigator{screens: map[string]string{notification.ScreenInvitations: "Invitations (1)"}}
	prefs := app.NewPreferencesService(app.NewPreferencesStore(kv.NewMemoryStore()))
	access := app.NewAccessService(repo, testRecipient.ID)
	return NewHandlers(access, prefs, nav, logger.Discard()), repo, nav
}

func TestHandlersRejectUnlinkedChats(t *testing.T) {
	h, _, _ := newTestHandlers(t)
	ctx := context.Background()

	assert.Equal(t, notLinkedText, h.Start(ctx, 9999, "Eve"))
	assert.Equal(t, notLinkedText, h.Settings(ctx, 2002), "a known chat of another recipient is not linked")

	text, alert := h.OpenScreen(ctx, 9999, notification.ScreenInvitations)
	assert.True(t, alert)
	assert.Equal(t, notLinkedText, text)
}

func TestHandlersRepositoryFailure(t *testing.T) {
	h, repo, _ := newTestHandlers(t)
	repo.err = errors.New("db down")
	assert.Contains(t, h.Help(context.Background(), 1001), "try again later")
}

func TestHandlersStartAndHelp(t *testing.T) {
	h, _, _ := newTestHandlers(t)
	ctx := context.Background()

	assert.Equal(t, "Hi Dana! Notifications for user@example.com will be delivered here. Use /help to see the commands.", h.Start(ctx, 1001, "D"))
	assert.Contains(t, h.Help(ctx, 1001), "/toggle <push|budget|device|tips>")
}

func TestHandlersSettingsAndToggle(t *testing.T) {
	h, _, _ := newTestHandlers(t)
	ctx := context.Background()

	assert.Contains(t, h.Settings(ctx, 1001), "Budget alerts (budget): on")

	out := h.Toggle(ctx, 1001, []string{"Budget"})
	assert.Contains(t, out, "Budget alerts (budget): off")
	assert.Contains(t, out, "All notifications (push): on")
	assert.Contains(t, h.Settings(ctx, 1001), "Budget alerts (budget): off", "toggle is persisted")

	assert.Contains(t, h.Toggle(ctx, 1001, []string{"volume"}), "Unknown setting")
	assert.Contains(t, h.Toggle(ctx, 1001, nil), "Usage:")
}

func TestHandlersOpenScreen(t *testing.T) {
	h, _, nav := newTestHandlers(t)
	ctx := context.Background()

	text, alert := h.OpenScreen(ctx, 1001, notification.ScreenInvitations)
	assert.False(t, alert)
	assert.Equal(t, "Invitations (1)", text)

	text, alert = h.OpenScreen(ctx, 1001, "Settings")
	assert.True(t, alert)
	assert.Equal(t, "Unknown action.", text)

	nav.err = errors.New("timeout")
	_, alert = h.OpenScreen(ctx, 1001, notification.ScreenInvitations)
	assert.True(t, alert)
}

func TestDeliverySinkReportsUnreachableChat(t *testing.T) {
	sender := &fakeSender{err: classifySendError(telebot.ErrBlockedByUser)}
	history := &fakeHistory{}
	sink := NewDeliverySink(sender, history, testRecipient, 0, logger.Discard())

	err := sink.Deliver(context.Background(), notification.Delivery{CandidateID: "x", Title: "t"})
	assert.ErrorIs(t, err, tgdomain.ErrChatUnreachable)
	assert.Empty(t, history.entries)
}

func TestClassifySendError(t *testing.T) {
	for _, gone := range chatGoneErrors {
		assert.ErrorIs(t, classifySendError(gone), tgdomain.ErrChatUnreachable, gone.Error())
	}

	transient := errors.New("telegram: Too Many Requests: retry after 3")
	got := classifySendError(transient)
	assert.Same(t, transient, got)
	assert.NotErrorIs(t, got, tgdomain.ErrChatUnreachable)
}
