package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"notification_reconciler/internal/app"
	"notification_reconciler/internal/domain/notification"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
)

const defaultQueryTimeout = 10 * time.Second

// Poller is the polling candidate source: every interval it re-reads both feeds for the session
// scope and emits one candidate per row. Rows already delivered are dropped by the engine.
type Poller struct {
	feed         notification.FeedRepository
	interval     time.Duration
	queryTimeout time.Duration
	logger       *logrus.Entry

	mu      sync.Mutex
	current *PollJob
}

func NewPoller(feed notification.FeedRepository, interval time.Duration, logger *logrus.Entry) *Poller {
	return &Poller{
		feed:         feed,
		interval:     interval,
		queryTimeout: defaultQueryTimeout,
		logger:       logger,
	}
}

func (p *Poller) Name() string { return string(notification.SourcePoll) }

// Interval is the fixed time between scheduled polls.
func (p *Poller) Interval() time.Duration { return p.interval }

// Start schedules the poll job and runs the first poll immediately.
func (p *Poller) Start(ctx context.Context, scope notification.Scope, emit notification.EmitFunc) (app.SourceHandle, error) {
	if p.interval < time.Second {
		return nil, fmt.Errorf("poll interval %s is below the one second cron resolution", p.interval)
	}

	jctx, cancel := context.WithCancel(ctx)
	j := &PollJob{
		poller:  p,
		ctx:     jctx,
		cancel:  cancel,
		scope:   scope,
		emit:    emit,
		trigger: make(chan struct{}, 1),
		logger:  p.logger.WithField("interval", p.interval.String()),
	}
	j.cron = cron.New(
		cron.WithLogger(cron.PrintfLogger(j.logger)),
		cron.WithChain(cron.SkipIfStillRunning(cron.PrintfLogger(j.logger))),
	)
	j.cron.Schedule(cron.Every(p.interval), cron.FuncJob(j.poll))

	j.wg.Add(1)
	go j.triggerLoop()
	j.cron.Start()

	p.mu.Lock()
	p.current = j
	p.mu.Unlock()

	j.logger.Info("Polling source started")
	return j, nil
}

// TriggerNow requests an out-of-schedule poll on the running job, if any. Requests made while
// one is pending are coalesced.
func (p *Poller) TriggerNow() {
	p.mu.Lock()
	j := p.current
	p.mu.Unlock()
	if j != nil {
		j.TriggerNow()
	}
}

func (p *Poller) release(j *PollJob) {
	p.mu.Lock()
	if p.current == j {
		p.current = nil
	}
	p.mu.Unlock()
}

// PollJob is the handle of one started polling source.
type PollJob struct {
	poller *Poller
	cron   *cron.Cron
	ctx    context.Context
	cancel context.CancelFunc
	scope  notification.Scope
	emit   notification.EmitFunc
	logger *logrus.Entry

	trigger  chan struct{}
	pollMu   sync.Mutex
	wg       sync.WaitGroup
	stopOnce sync.Once
}

func (j *PollJob) TriggerNow() {
	select {
	case j.trigger <- struct{}{}:
	default:
	}
}

// Stop cancels the schedule and waits for any poll in progress. No candidate is emitted after
// Stop returns.
func (j *PollJob) Stop() {
	j.stopOnce.Do(func() {
		j.cancel()
		<-j.cron.Stop().Done()
		j.wg.Wait()
		j.poller.release(j)
		j.logger.Info("Polling source stopped")
	})
}

func (j *PollJob) triggerLoop() {
	defer j.wg.Done()
	j.poll()
	for {
		select {
		case <-j.ctx.Done():
			return
		case <-j.trigger:
			j.poll()
		}
	}
}

func (j *PollJob) poll() {
	j.pollMu.Lock()
	defer j.pollMu.Unlock()

	for _, col := range notification.Collections {
		if j.ctx.Err() != nil {
			return
		}
		key := col.ScopeKey(j.scope)
		if key == "" {
			continue
		}

		rows, err := j.query(col, key)
		if err != nil {
			if j.ctx.Err() != nil {
				return
			}
			j.logger.WithError(err).WithField("collection", col).Warn("Poll query failed; retrying on next tick")
			continue
		}

		for _, row := range rows {
			if j.ctx.Err() != nil {
				return
			}
			j.emit(col.Candidate(row, notification.SourcePoll))
		}
		j.logger.WithFields(logrus.Fields{"collection": col, "rows": len(rows)}).Debug("Poll completed")
	}
}

func (j *PollJob) query(col notification.Collection, key string) ([]notification.Row, error) {
	ctx, cancel := context.WithTimeout(j.ctx, j.poller.queryTimeout)
	defer cancel()
	if col == notification.CollectionInvitations {
		return j.poller.feed.ListPendingInvites(ctx, key)
	}
	return j.poller.feed.ListUnreadNotifications(ctx, key)
}
