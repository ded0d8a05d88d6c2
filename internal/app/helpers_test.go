package app

import (
	"context"
	"errors"
	"sync"
	"time"

	"notification_reconciler/internal/domain/notification"
)

// memKV is an in-memory KV whose reads and writes can be made to fail.
type memKV struct {
	mu      sync.Mutex
	data    map[string]string
	getErr  error
	setErr  error
	setCall int
}

func newMemKV() *memKV {
	return &memKV{data: map[string]string{}}
}

func (m *memKV) Get(_ context.Context, key string) (string, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.getErr != nil {
		return "", false, m.getErr
	}
	v, ok := m.data[key]
	return v, ok, nil
}

func (m *memKV) Set(_ context.Context, key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.setCall++
	if m.setErr != nil {
		return m.setErr
	}
	m.data[key] = value
	return nil
}

func (m *memKV) Close() error { return nil }

func (m *memKV) raw(key string) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.data[key]
}

// recordingSink captures deliveries.
type recordingSink struct {
	mu         sync.Mutex
	deliveries []notification.Delivery
	err        error
}

func (s *recordingSink) Deliver(_ context.Context, d notification.Delivery) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.deliveries = append(s.deliveries, d)
	return s.err
}

func (s *recordingSink) all() []notification.Delivery {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]notification.Delivery(nil), s.deliveries...)
}

type failingPrefs struct{}

func (failingPrefs) Load(context.Context) (notification.SuppressionConfig, error) {
	return notification.SuppressionConfig{}, errors.New("storage unavailable")
}

// fakeClock is a manually advanced clock.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}
