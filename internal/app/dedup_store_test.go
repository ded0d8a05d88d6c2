package app

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"notification_reconciler/internal/infra/logger"

	"github.com/sirupsen/logrus"
	logtest "github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDedupStoreMarkAndPersist(t *testing.T) {
	ctx := context.Background()
	kv := newMemKV()
	s := NewDedupStore(ctx, kv, 0, logger.Discard())

	assert.False(t, s.HasProcessed("a"))
	assert.True(t, s.CheckAndMark(ctx, "a"))
	assert.False(t, s.CheckAndMark(ctx, "a"))
	s.MarkProcessed(ctx, "b")
	s.MarkProcessed(ctx, "b")

	assert.True(t, s.HasProcessed("a"))
	assert.True(t, s.HasProcessed("b"))
	assert.Equal(t, 2, s.Count())
	assert.JSONEq(t, `["a","b"]`, kv.raw(ProcessedIDsKey))
}

func TestDedupStoreSurvivesRestart(t *testing.T) {
	ctx := context.Background()
	kv := newMemKV()
	first := NewDedupStore(ctx, kv, 0, logger.Discard())
	first.MarkProcessed(ctx, "invitations:1")

	restarted := NewDedupStore(ctx, kv, 0, logger.Discard())
	assert.True(t, restarted.HasProcessed("invitations:1"))
	assert.False(t, restarted.CheckAndMark(ctx, "invitations:1"))
}

func TestDedupStorePersistFailureIsSwallowed(t *testing.T) {
	ctx := context.Background()
	kv := newMemKV()
	kv.setErr = errors.New("disk full")
	s := NewDedupStore(ctx, kv, 0, logger.Discard())

	assert.True(t, s.CheckAndMark(ctx, "a"))
	assert.True(t, s.HasProcessed("a"), "in-memory mark is kept for the process lifetime")
	assert.False(t, s.CheckAndMark(ctx, "a"))

	restarted := NewDedupStore(ctx, kv, 0, logger.Discard())
	assert.False(t, restarted.HasProcessed("a"), "durability is lost when the write failed")
}

func TestDedupStoreLoadFailures(t *testing.T) {
	ctx := context.Background()

	unreadable := newMemKV()
	unreadable.getErr = errors.New("connection reset")
	assert.Equal(t, 0, NewDedupStore(ctx, unreadable, 0, logger.Discard()).Count())

	corrupt := newMemKV()
	corrupt.data[ProcessedIDsKey] = `{not json`
	s := NewDedupStore(ctx, corrupt, 0, logger.Discard())
	assert.Equal(t, 0, s.Count())
	assert.True(t, s.CheckAndMark(ctx, "a"))
}

func TestDedupStoreRetentionCap(t *testing.T) {
	ctx := context.Background()
	kv := newMemKV()
	s := NewDedupStore(ctx, kv, 3, logger.Discard())

	for i := 1; i <= 5; i++ {
		s.MarkProcessed(ctx, fmt.Sprintf("id-%d", i))
	}
	assert.Equal(t, 3, s.Count())
	assert.False(t, s.HasProcessed("id-1"), "oldest ids are evicted first")
	assert.False(t, s.HasProcessed("id-2"))
	assert.True(t, s.HasProcessed("id-5"))
	assert.JSONEq(t, `["id-3","id-4","id-5"]`, kv.raw(ProcessedIDsKey))

	reloaded := NewDedupStore(ctx, kv, 2, logger.Discard())
	assert.Equal(t, 2, reloaded.Count(), "a smaller cap applies on load")
}

func TestDedupStoreWarnsWhenEvictedIDReturns(t *testing.T) {
	ctx := context.Background()
	log, hook := logtest.NewNullLogger()
	s := NewDedupStore(ctx, newMemKV(), 2, logrus.NewEntry(log))

	for _, id := range []string{"invitations:1", "invitations:2", "invitations:3"} {
		require.True(t, s.CheckAndMark(ctx, id))
	}
	require.False(t, s.HasProcessed("invitations:1"))
	assert.Equal(t, 0, s.Readmitted())

	// The pending invitation comes back on the next poll.
	assert.True(t, s.CheckAndMark(ctx, "invitations:1"))
	assert.Equal(t, 1, s.Readmitted())

	var warned []*logrus.Entry
	for _, e := range hook.AllEntries() {
		if e.Level == logrus.WarnLevel {
			warned = append(warned, e)
		}
	}
	require.Len(t, warned, 1)
	assert.Equal(t, "invitations:1", warned[0].Data["candidate_id"])

	assert.True(t, s.CheckAndMark(ctx, "invitations:4"), "a never-seen id is not a re-admission")
	assert.Equal(t, 1, s.Readmitted())
}

func TestDedupStoreConcurrentCheckAndMark(t *testing.T) {
	ctx := context.Background()
	s := NewDedupStore(ctx, newMemKV(), 0, logger.Discard())

	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		wins int
	)
	for i := 0; i < 64; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if s.CheckAndMark(ctx, "same") {
				mu.Lock()
				wins++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	require.Equal(t, 1, wins)
}
