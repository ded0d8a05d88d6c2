package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"notification_reconciler/internal/app"
	"notification_reconciler/internal/domain/notification"
	"notification_reconciler/internal/infra/database"

	"github.com/lib/pq"
	"github.com/sirupsen/logrus"
)

var ErrNoChannels = errors.New("scope has neither email nor user id; nothing to listen on")

// Listener is the subset of *pq.Listener the source uses.
type Listener interface {
	Listen(channel string) error
	NotificationChannel() <-chan *pq.Notification
	Close() error
}

// ListenerFactory opens a listener that reports connection events to cb.
type ListenerFactory func(cb pq.EventCallbackType) Listener

// PQListenerFactory returns a factory for lib/pq listeners on dsn.
func PQListenerFactory(dsn string, minReconnect, maxReconnect time.Duration) ListenerFactory {
	return func(cb pq.EventCallbackType) Listener {
		return pq.NewListener(dsn, minReconnect, maxReconnect, cb)
	}
}

// Source is the realtime candidate source. It LISTENs on the per-recipient channels the insert
// triggers publish to, so filtering by email / user id happens in the database.
type Source struct {
	newListener ListenerFactory
	onReconnect func()
	logger      *logrus.Entry
}

func NewSource(newListener ListenerFactory, logger *logrus.Entry) *Source {
	return &Source{
		newListener: newListener,
		onReconnect: func() {},
		logger:      logger,
	}
}

// SetReconnectHook registers fn to run after the listener re-establishes a lost connection.
// Events published while disconnected are not replayed, so fn usually forces a poll.
func (s *Source) SetReconnectHook(fn func()) {
	if fn == nil {
		fn = func() {}
	}
	s.onReconnect = fn
}

func (s *Source) Name() string { return string(notification.SourceRealtime) }

func (s *Source) Start(ctx context.Context, scope notification.Scope, emit notification.EmitFunc) (app.SourceHandle, error) {
	channels := make(map[string]notification.Collection)
	for _, col := range notification.Collections {
		if key := col.ScopeKey(scope); key != "" {
			channels[database.ChannelName(col, key)] = col
		}
	}
	if len(channels) == 0 {
		return nil, ErrNoChannels
	}

	log := s.logger.WithField("user_id", scope.UserID)
	l := s.newListener(func(ev pq.ListenerEventType, err error) {
		switch ev {
		case pq.ListenerEventDisconnected:
			log.WithError(err).Warn("Realtime connection lost; polling covers the gap")
		case pq.ListenerEventConnectionAttemptFailed:
			log.WithError(err).Debug("Realtime reconnect attempt failed")
		case pq.ListenerEventReconnected:
			log.Info("Realtime connection re-established")
		}
	})

	for ch, col := range channels {
		if err := l.Listen(ch); err != nil {
			l.Close()
			return nil, fmt.Errorf("failed to listen for %s: %w", col, err)
		}
	}

	sctx, cancel := context.WithCancel(ctx)
	sub := &Subscription{
		listener: l,
		cancel:   cancel,
		done:     make(chan struct{}),
		logger:   log,
	}
	go sub.run(sctx, channels, emit, s.onReconnect)

	log.WithField("channels", len(channels)).Info("Realtime source started")
	return sub, nil
}

// Subscription is the handle of a started realtime source.
type Subscription struct {
	listener Listener
	cancel   context.CancelFunc
	done     chan struct{}
	logger   *logrus.Entry
	stopOnce sync.Once
}

// Stop unsubscribes and waits for the receive loop. No candidate is emitted after Stop returns.
func (s *Subscription) Stop() {
	s.stopOnce.Do(func() {
		s.cancel()
		<-s.done
		if err := s.listener.Close(); err != nil {
			s.logger.WithError(err).Warn("Failed to close realtime listener")
		}
		s.logger.Info("Realtime source stopped")
	})
}

func (s *Subscription) run(ctx context.Context, channels map[string]notification.Collection, emit notification.EmitFunc, onReconnect func()) {
	defer close(s.done)
	in := s.listener.NotificationChannel()
	for {
		select {
		case <-ctx.Done():
			return
		case n, ok := <-in:
			if !ok {
				return
			}
			if n == nil {
				// lib/pq sends nil after a reconnect.
				onReconnect()
				continue
			}
			col, known := channels[n.Channel]
			if !known {
				continue
			}
			row, err := decodePayload(n.Extra)
			if err != nil {
				s.logger.WithError(err).WithField("channel", n.Channel).Warn("Dropping malformed realtime payload")
				continue
			}
			if ctx.Err() != nil {
				return
			}
			emit(col.Candidate(row, notification.SourceRealtime))
		}
	}
}

type insertPayload struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	Body      string    `json:"body"`
	Recipient string    `json:"recipient"`
	CreatedAt time.Time `json:"created_at"`
}

func decodePayload(extra string) (notification.Row, error) {
	var p insertPayload
	if err := json.Unmarshal([]byte(extra), &p); err != nil {
		return notification.Row{}, fmt.Errorf("failed to decode insert payload: %w", err)
	}
	return notification.Row{
		ID:        p.ID,
		Title:     p.Title,
		Body:      p.Body,
		Recipient: p.Recipient,
		CreatedAt: p.CreatedAt,
	}, nil
}
