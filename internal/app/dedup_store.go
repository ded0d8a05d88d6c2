package app

import (
	"context"
	"encoding/json"
	"sync"

	"notification_reconciler/internal/domain/notification"

	"github.com/sirupsen/logrus"
)

// ProcessedIDsKey holds the JSON array of processed candidate ids.
const ProcessedIDsKey = "processed_ids"

// DedupStore is the persisted set of candidate ids that have been delivered or deliberately
// suppressed. Ids are kept in insertion order so an optional cap can evict the oldest.
//
// With maxEntries == 0 an id is never removed once marked.
type DedupStore struct {
	kv         notification.KV
	logger     *logrus.Entry
	maxEntries int

	mu    sync.Mutex
	seen  map[string]struct{}
	order []string

	// evicted remembers up to maxEntries ids dropped by the cap so a re-delivery is visible.
	evicted      map[string]struct{}
	evictedOrder []string
	readmitted   int

	// persistMu serializes writes so a later snapshot is never overwritten by an earlier one.
	persistMu sync.Mutex
}

// NewDedupStore loads the persisted history. A read failure or corrupt value is logged and
// the store starts empty; the process keeps running.
func NewDedupStore(ctx context.Context, kv notification.KV, maxEntries int, logger *logrus.Entry) *DedupStore {
	s := &DedupStore{
		kv:         kv,
		logger:     logger,
		maxEntries: maxEntries,
		seen:       map[string]struct{}{},
		evicted:    map[string]struct{}{},
	}

	raw, ok, err := kv.Get(ctx, ProcessedIDsKey)
	if err != nil {
		logger.WithError(err).Error("Failed to load processed id history; starting empty")
		return s
	}
	if !ok || raw == "" {
		return s
	}

	var ids []string
	if err := json.Unmarshal([]byte(raw), &ids); err != nil {
		logger.WithError(err).Error("Processed id history is corrupt; starting empty")
		return s
	}
	for _, id := range ids {
		if _, dup := s.seen[id]; dup || id == "" {
			continue
		}
		s.seen[id] = struct{}{}
		s.order = append(s.order, id)
	}
	s.trimLocked()
	logger.WithField("processed_count", len(s.order)).Debug("Processed id history loaded")
	return s
}

// HasProcessed reports whether id has been marked.
func (s *DedupStore) HasProcessed(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.seen[id]
	return ok
}

// MarkProcessed marks id and persists immediately. It is idempotent.
func (s *DedupStore) MarkProcessed(ctx context.Context, id string) {
	s.CheckAndMark(ctx, id)
}

// CheckAndMark atomically marks id and reports whether this call was the first to do so.
// The in-memory mark is made before persisting, so a concurrent duplicate is rejected even
// while the write is in flight. Persistence failures are logged and swallowed.
func (s *DedupStore) CheckAndMark(ctx context.Context, id string) bool {
	s.mu.Lock()
	if _, ok := s.seen[id]; ok {
		s.mu.Unlock()
		return false
	}
	s.seen[id] = struct{}{}
	s.order = append(s.order, id)
	_, wasEvicted := s.evicted[id]
	if wasEvicted {
		s.forgetEvictedLocked(id)
		s.readmitted++
	}
	s.mu.Unlock()

	if wasEvicted {
		s.logger.WithFields(logrus.Fields{
			"candidate_id": id,
			"max_entries":  s.maxEntries,
		}).Warn("Candidate re-admitted after eviction by the retention cap; it will be delivered again")
	}
	s.persist(ctx)
	return true
}

// Readmitted returns how many ids were marked again after the retention cap evicted them.
func (s *DedupStore) Readmitted() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.readmitted
}

// Count returns the number of ids currently held.
func (s *DedupStore) Count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.order)
}

func (s *DedupStore) persist(ctx context.Context) {
	s.persistMu.Lock()
	defer s.persistMu.Unlock()

	s.mu.Lock()
	evicted := s.trimLocked()
	snapshot := make([]string, len(s.order))
	copy(snapshot, s.order)
	s.mu.Unlock()

	if evicted > 0 {
		s.logger.WithField("evicted", evicted).Debug("Processed id history trimmed to cap")
	}

	b, err := json.Marshal(snapshot)
	if err != nil {
		s.logger.WithError(err).Error("Failed to encode processed id history")
		return
	}
	if err := s.kv.Set(ctx, ProcessedIDsKey, string(b)); err != nil {
		// Durability is lost for this write; the in-memory mark still holds for this process.
		s.logger.WithError(err).WithField("processed_count", len(snapshot)).Error("Failed to persist processed id history")
	}
}

// trimLocked applies the retention cap, evicting the oldest ids. Caller holds s.mu.
func (s *DedupStore) trimLocked() int {
	if s.maxEntries <= 0 || len(s.order) <= s.maxEntries {
		return 0
	}
	n := len(s.order) - s.maxEntries
	for _, id := range s.order[:n] {
		delete(s.seen, id)
		s.rememberEvictedLocked(id)
	}
	s.order = append([]string(nil), s.order[n:]...)
	return n
}

func (s *DedupStore) rememberEvictedLocked(id string) {
	if _, ok := s.evicted[id]; ok {
		return
	}
	s.evicted[id] = struct{}{}
	s.evictedOrder = append(s.evictedOrder, id)
	if len(s.evictedOrder) > s.maxEntries {
		delete(s.evicted, s.evictedOrder[0])
		s.evictedOrder = append([]string(nil), s.evictedOrder[1:]...)
	}
}

func (s *DedupStore) forgetEvictedLocked(id string) {
	delete(s.evicted, id)
	for i, v := range s.evictedOrder {
		if v == id {
			s.evictedOrder = append(s.evictedOrder[:i], s.evictedOrder[i+1:]...)
			return
		}
	}
}
