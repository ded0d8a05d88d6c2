package app

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"notification_reconciler/internal/domain/notification"
	"notification_reconciler/internal/infra/logger"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingRecorder struct {
	mu       sync.Mutex
	outcomes map[notification.Outcome]int
}

func (r *countingRecorder) RecordOutcome(_ notification.Source, o notification.Outcome) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.outcomes == nil {
		r.outcomes = map[notification.Outcome]int{}
	}
	r.outcomes[o]++
}

type engineFixture struct {
	engine *Engine
	sink   *recordingSink
	kv     *memKV
	grace  *GraceWindow
	clock  *fakeClock
	prefs  *PreferencesService
}

func newEngineFixture(t *testing.T) *engineFixture {
	t.Helper()
	ctx := context.Background()
	kv := newMemKV()
	clock := newFakeClock()
	store := NewPreferencesStore(kv)
	f := &engineFixture{
		sink:  &recordingSink{},
		kv:    kv,
		grace: NewGraceWindow(clock.Now),
		clock: clock,
		prefs: NewPreferencesService(store),
	}
	f.engine = NewEngine(NewDedupStore(ctx, kv, 0, logger.Discard()), store, f.grace, f.sink, logger.Discard())
	return f
}

var inv1 = notification.Candidate{
	ID:           "inv-1",
	Title:        "New Invitation",
	Body:         "You have a pending invite",
	TargetScreen: notification.ScreenInvitations,
}

func TestEngineSameEventFromBothSourcesDeliveredOnce(t *testing.T) {
	f := newEngineFixture(t)
	ctx := context.Background()

	fromPoll := inv1
	fromPoll.Source = notification.SourcePoll
	fromRealtime := inv1
	fromRealtime.Source = notification.SourceRealtime

	var wg sync.WaitGroup
	outcomes := make([]notification.Outcome, 2)
	for i, c := range []notification.Candidate{fromPoll, fromRealtime} {
		wg.Add(1)
		go func(i int, c notification.Candidate) {
			defer wg.Done()
			outcomes[i] = f.engine.Process(ctx, c)
		}(i, c)
	}
	wg.Wait()

	assert.ElementsMatch(t, []notification.Outcome{notification.OutcomeDelivered, notification.OutcomeDuplicate}, outcomes)
	require.Len(t, f.sink.all(), 1)
	assert.Equal(t, notification.Delivery{
		CandidateID:  "inv-1",
		Title:        "New Invitation",
		Body:         "You have a pending invite",
		TargetScreen: notification.ScreenInvitations,
		Silent:       false,
		Category:     notification.CategoryGeneric,
	}, f.sink.all()[0])
}

func TestEngineAtMostOncePerID(t *testing.T) {
	f := newEngineFixture(t)
	ctx := context.Background()
	ids := []string{"a", "b", "c", "a", "b", "a", "c", "c"}

	var wg sync.WaitGroup
	for round := 0; round < 8; round++ {
		for i, id := range ids {
			wg.Add(1)
			src := notification.SourcePoll
			if i%2 == 0 {
				src = notification.SourceRealtime
			}
			go func(id string, src notification.Source) {
				defer wg.Done()
				f.engine.Process(ctx, notification.Candidate{ID: id, Title: "Hello " + id, Source: src})
			}(id, src)
		}
	}
	wg.Wait()

	perID := map[string]int{}
	for _, d := range f.sink.all() {
		perID[d.CandidateID]++
	}
	assert.Equal(t, map[string]int{"a": 1, "b": 1, "c": 1}, perID)
}

func TestEngineRejectsMalformedWithoutMarking(t *testing.T) {
	f := newEngineFixture(t)
	ctx := context.Background()

	assert.Equal(t, notification.OutcomeRejected, f.engine.Process(ctx, notification.Candidate{Title: "No id"}))
	assert.Equal(t, notification.OutcomeRejected, f.engine.Process(ctx, notification.Candidate{ID: "n-1", Title: "   "}))
	assert.Empty(t, f.sink.all())

	// The corrected event is processed normally.
	assert.Equal(t, notification.OutcomeDelivered, f.engine.Process(ctx, notification.Candidate{ID: "n-1", Title: "Fixed"}))
}

func TestEngineSuppressedIsIdempotent(t *testing.T) {
	f := newEngineFixture(t)
	ctx := context.Background()
	_, err := f.prefs.Set(ctx, notification.PreferencePush, false)
	require.NoError(t, err)

	assert.Equal(t, notification.OutcomeSilenced, f.engine.Process(ctx, inv1))
	assert.Equal(t, notification.OutcomeDuplicate, f.engine.Process(ctx, inv1))

	require.Len(t, f.sink.all(), 1)
	assert.True(t, f.sink.all()[0].Silent)
}

func TestEngineSuppressionByCategory(t *testing.T) {
	f := newEngineFixture(t)
	ctx := context.Background()
	_, err := f.prefs.Set(ctx, notification.PreferenceBudget, false)
	require.NoError(t, err)

	assert.Equal(t, notification.OutcomeSilenced, f.engine.Process(ctx, notification.Candidate{ID: "1", Title: "Alert", Body: "Budget limit exceeded"}))
	assert.Equal(t, notification.OutcomeDelivered, f.engine.Process(ctx, notification.Candidate{ID: "2", Title: "Alert", Body: "Hub is now online"}))
}

func TestEngineGraceWindowSilencesOwnLogin(t *testing.T) {
	f := newEngineFixture(t)
	ctx := context.Background()
	f.grace.Arm(15 * time.Second)

	f.clock.Advance(10 * time.Second)
	assert.Equal(t, notification.OutcomeSilenced, f.engine.Process(ctx, notification.Candidate{ID: "s-1", Title: "Login Successful", Body: "ignored"}))

	// Non-security events are not affected by the window.
	assert.Equal(t, notification.OutcomeDelivered, f.engine.Process(ctx, notification.Candidate{ID: "g-1", Title: "Invite accepted"}))

	f.clock.Advance(10 * time.Second)
	assert.Equal(t, notification.OutcomeDelivered, f.engine.Process(ctx, notification.Candidate{ID: "s-2", Title: "Login Successful", Body: "ignored"}))

	all := f.sink.all()
	require.Len(t, all, 3)
	assert.True(t, all[0].Silent)
	assert.Equal(t, SecurityAlertTitle, all[0].Title)
	assert.Equal(t, notification.CategorySecurity, all[0].Category)
	assert.Equal(t, InviteAcceptedTitle, all[1].Title)
	assert.False(t, all[2].Silent)
}

func TestEngineGraceWindowAfterExpiryDefersToPreferences(t *testing.T) {
	f := newEngineFixture(t)
	ctx := context.Background()
	f.grace.Arm(15 * time.Second)
	f.clock.Advance(20 * time.Second)
	_, err := f.prefs.Set(ctx, notification.PreferencePush, false)
	require.NoError(t, err)

	assert.Equal(t, notification.OutcomeSilenced, f.engine.Process(ctx, notification.Candidate{ID: "s-1", Title: "New device signed in"}))
}

func TestEngineSinkFailureKeepsMark(t *testing.T) {
	f := newEngineFixture(t)
	ctx := context.Background()
	f.sink.err = errors.New("telegram unavailable")

	assert.Equal(t, notification.OutcomeFailed, f.engine.Process(ctx, inv1))
	f.sink.err = nil
	assert.Equal(t, notification.OutcomeDuplicate, f.engine.Process(ctx, inv1))
	assert.Len(t, f.sink.all(), 1)
}

func TestEngineConfigReadFailureFailsOpen(t *testing.T) {
	ctx := context.Background()
	sink := &recordingSink{}
	e := NewEngine(NewDedupStore(ctx, newMemKV(), 0, logger.Discard()), failingPrefs{}, NewGraceWindow(nil), sink, logger.Discard())

	assert.Equal(t, notification.OutcomeDelivered, e.Process(ctx, notification.Candidate{ID: "1", Title: "Alert", Body: "Budget limit exceeded"}))
	require.Len(t, sink.all(), 1)
	assert.False(t, sink.all()[0].Silent)
}

func TestEngineRecordsOutcomes(t *testing.T) {
	f := newEngineFixture(t)
	rec := &countingRecorder{}
	f.engine.SetRecorder(rec)
	ctx := context.Background()

	f.engine.Process(ctx, inv1)
	f.engine.Process(ctx, inv1)
	f.engine.Process(ctx, notification.Candidate{ID: "x"})

	assert.Equal(t, map[notification.Outcome]int{
		notification.OutcomeDelivered: 1,
		notification.OutcomeDuplicate: 1,
		notification.OutcomeRejected:  1,
	}, rec.outcomes)
}

func TestEngineRunConsumesUntilCancelled(t *testing.T) {
	f := newEngineFixture(t)
	ctx, cancel := context.WithCancel(context.Background())
	in := make(chan notification.Candidate)
	done := make(chan struct{})
	go func() {
		f.engine.Run(ctx, in)
		close(done)
	}()

	in <- inv1
	in <- inv1
	in <- notification.Candidate{ID: "n-2", Title: "Tip: smart scenes"}
	require.Eventually(t, func() bool { return len(f.sink.all()) == 2 }, time.Second, 5*time.Millisecond)

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not return after cancel")
	}
}
