// internal/app/session.go
package app

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"notification_reconciler/internal/domain/notification"
	"notification_reconciler/internal/domain/recipient"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

var (
	ErrNoActiveSession = errors.New("no active session")
	ErrSessionAborted  = errors.New("session stopped or replaced while starting")
)

// CandidateSource is a producer of candidates (polling or realtime). Start must not block;
// after the returned handle's Stop returns, the source must not call emit again.
type CandidateSource interface {
	Name() string
	Start(ctx context.Context, scope notification.Scope, emit notification.EmitFunc) (SourceHandle, error)
}

// SourceHandle stops a started source.
type SourceHandle interface {
	Stop()
}

// SinkFactory builds the delivery sink for a recipient.
type SinkFactory func(r *recipient.Recipient) notification.Sink

// SessionSettings holds per-session timing.
type SessionSettings struct {
	GraceWindow  time.Duration
	PollInterval time.Duration // used for the staleness contract only
	QueueSize    int
}

// Session is one signed-in period for a recipient. It owns the sources, the grace window and
// the engine loop.
type Session struct {
	ID        string
	Recipient recipient.Recipient
	StartedAt time.Time

	grace     *GraceWindow
	engine    *Engine
	staleness time.Duration
	logger    *logrus.Entry

	cancel   context.CancelFunc
	handles  []SourceHandle
	done     chan struct{}
	stopOnce sync.Once
}

// GraceActive reports whether own-action security events are still forced silent.
func (s *Session) GraceActive() bool {
	return s.grace.IsActive()
}

// MaxStaleness is the longest an event missed by the realtime channel can wait before the
// polling channel picks it up: one poll interval (plus query latency).
func (s *Session) MaxStaleness() time.Duration {
	return s.staleness
}

// Stop cancels both sources and the engine loop and waits for them. It is idempotent.
func (s *Session) Stop() {
	s.stopOnce.Do(func() {
		s.cancel()
		for i := len(s.handles) - 1; i >= 0; i-- {
			s.handles[i].Stop()
		}
		<-s.done
		s.logger.Info("Session stopped")
	})
}

// SessionManager starts and replaces sessions. At most one session is active.
type SessionManager struct {
	dedup    *DedupStore
	prefs    PreferencesProvider
	sinks    SinkFactory
	sources  []CandidateSource
	settings SessionSettings
	recorder OutcomeRecorder
	now      func() time.Time
	logger   *logrus.Entry

	mu         sync.Mutex
	current    *Session
	generation uint64 // bumped by every Start and Stop; a stale Start discards its session
	pending    int    // Starts whose sources are still coming up
}

func NewSessionManager(
	dedup *DedupStore,
	prefs PreferencesProvider,
	sinks SinkFactory,
	sources []CandidateSource,
	settings SessionSettings,
	logger *logrus.Entry,
) *SessionManager {
	if settings.GraceWindow <= 0 {
		settings.GraceWindow = DefaultGraceWindow
	}
	if settings.QueueSize <= 0 {
		settings.QueueSize = 256
	}
	return &SessionManager{
		dedup:    dedup,
		prefs:    prefs,
		sinks:    sinks,
		sources:  sources,
		settings: settings,
		recorder: nopRecorder{},
		now:      time.Now,
		logger:   logger,
	}
}

// SetRecorder installs an outcome recorder for sessions started afterwards.
func (m *SessionManager) SetRecorder(r OutcomeRecorder) {
	m.mu.Lock()
	m.recorder = r
	m.mu.Unlock()
}

// SetClock overrides the clock used by grace windows. Tests only.
func (m *SessionManager) SetClock(now func() time.Time) {
	m.mu.Lock()
	m.now = now
	m.mu.Unlock()
}

// Start begins a session for r, stopping any current one first so the subscriptions are
// re-established for the new identity. A source that fails to start is logged and skipped.
// Sources are started without holding the manager lock, so Status and Stop stay responsive
// while a source is slow to connect.
func (m *SessionManager) Start(ctx context.Context, r recipient.Recipient) (*Session, error) {
	if r.ID == "" && r.Email == "" {
		return nil, fmt.Errorf("recipient has neither user id nor email")
	}

	m.mu.Lock()
	m.generation++
	m.pending++
	gen := m.generation
	prev := m.current
	m.current = nil
	now, recorder := m.now, m.recorder
	m.mu.Unlock()

	if prev != nil {
		prev.Stop()
	}

	s := &Session{
		ID:        uuid.NewString(),
		Recipient: r,
		StartedAt: now(),
		staleness: m.settings.PollInterval,
		done:      make(chan struct{}),
	}
	s.logger = m.logger.WithFields(logrus.Fields{
		"session_id":   s.ID,
		"recipient_id": r.ID,
	})

	s.grace = NewGraceWindow(now)
	s.grace.Arm(m.settings.GraceWindow)

	s.engine = NewEngine(m.dedup, m.prefs, s.grace, m.sinks(&r), s.logger.WithField("component", "engine"))
	s.engine.SetRecorder(recorder)

	sctx, cancel := context.WithCancel(ctx)
	s.cancel = cancel

	candidates := make(chan notification.Candidate, m.settings.QueueSize)
	go func() {
		defer close(s.done)
		s.engine.Run(sctx, candidates)
	}()

	emit := func(c notification.Candidate) {
		select {
		case candidates <- c:
		case <-sctx.Done():
		}
	}

	scope := notification.Scope{UserID: r.ID, Email: r.Email}
	for _, src := range m.sources {
		h, err := src.Start(sctx, scope, emit)
		if err != nil {
			s.logger.WithError(err).WithField("source", src.Name()).Error("Failed to start candidate source; continuing without it")
			continue
		}
		s.handles = append(s.handles, h)
	}

	m.mu.Lock()
	m.pending--
	if m.generation != gen {
		m.mu.Unlock()
		s.Stop()
		s.logger.Warn("Session aborted while its sources were starting")
		return nil, ErrSessionAborted
	}
	m.current = s
	m.mu.Unlock()

	s.logger.WithFields(logrus.Fields{
		"sources":       len(s.handles),
		"grace_until":   s.grace.Deadline().Format(time.RFC3339),
		"max_staleness": s.staleness.String(),
	}).Info("Session started")
	return s, nil
}

// Stop ends the current session, if any. A session still starting is aborted.
func (m *SessionManager) Stop() error {
	m.mu.Lock()
	m.generation++
	cur := m.current
	m.current = nil
	starting := m.pending > 0
	m.mu.Unlock()

	if cur == nil {
		if starting {
			return nil
		}
		return ErrNoActiveSession
	}
	cur.Stop()
	return nil
}

// Current returns the active session or nil.
func (m *SessionManager) Current() *Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.current
}

// Status is a point-in-time view used by the ops server.
type Status struct {
	Active         bool      `json:"active"`
	SessionID      string    `json:"session_id,omitempty"`
	RecipientID    string    `json:"recipient_id,omitempty"`
	StartedAt      time.Time `json:"started_at,omitempty"`
	GraceActive    bool      `json:"grace_active"`
	MaxStaleness   string    `json:"max_staleness,omitempty"`
	ProcessedCount int       `json:"processed_count"`
}

func (m *SessionManager) Status() Status {
	st := Status{ProcessedCount: m.dedup.Count()}
	s := m.Current()
	if s == nil {
		return st
	}
	st.Active = true
	st.SessionID = s.ID
	st.RecipientID = s.Recipient.ID
	st.StartedAt = s.StartedAt
	st.GraceActive = s.GraceActive()
	st.MaxStaleness = s.MaxStaleness().String()
	return st
}
