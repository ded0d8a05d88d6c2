// internal/app/engine.go
package app

import (
	"context"
	"strings"

	"notification_reconciler/internal/domain/notification"

	"github.com/sirupsen/logrus"
)

// PreferencesProvider supplies the current suppression config.
type PreferencesProvider interface {
	Load(ctx context.Context) (notification.SuppressionConfig, error)
}

// OutcomeRecorder observes every processed candidate.
type OutcomeRecorder interface {
	RecordOutcome(source notification.Source, outcome notification.Outcome)
}

type nopRecorder struct{}

func (nopRecorder) RecordOutcome(notification.Source, notification.Outcome) {}

// Engine merges candidates from every source and pushes the survivors to the sink:
// validate → dedup gate → classify → suppression + grace window → deliver.
type Engine struct {
	dedup    *DedupStore
	prefs    PreferencesProvider
	grace    *GraceWindow
	sink     notification.Sink
	recorder OutcomeRecorder
	logger   *logrus.Entry
}

func NewEngine(
	dedup *DedupStore,
	prefs PreferencesProvider,
	grace *GraceWindow,
	sink notification.Sink,
	logger *logrus.Entry,
) *Engine {
	return &Engine{
		dedup:    dedup,
		prefs:    prefs,
		grace:    grace,
		sink:     sink,
		recorder: nopRecorder{},
		logger:   logger,
	}
}

// SetRecorder installs an outcome recorder (metrics).
func (e *Engine) SetRecorder(r OutcomeRecorder) {
	if r == nil {
		r = nopRecorder{}
	}
	e.recorder = r
}

// Run consumes candidates until ctx is cancelled. A candidate already being processed when
// ctx is cancelled is finished; buffered ones are left unprocessed (and unmarked).
func (e *Engine) Run(ctx context.Context, in <-chan notification.Candidate) {
	for {
		select {
		case <-ctx.Done():
			return
		case c := <-in:
			if ctx.Err() != nil {
				return
			}
			e.Process(context.WithoutCancel(ctx), c)
		}
	}
}

// Process runs a single candidate through the pipeline. It is safe for concurrent use.
func (e *Engine) Process(ctx context.Context, c notification.Candidate) notification.Outcome {
	outcome := e.process(ctx, c)
	e.recorder.RecordOutcome(c.Source, outcome)
	return outcome
}

func (e *Engine) process(ctx context.Context, c notification.Candidate) notification.Outcome {
	log := e.logger.WithFields(logrus.Fields{
		"candidate_id": c.ID,
		"source":       c.Source,
	})

	// Whitespace-only counts as missing.
	if strings.TrimSpace(c.ID) == "" || strings.TrimSpace(c.Title) == "" {
		log.WithField("target_screen", c.TargetScreen).Warn("Candidate rejected: missing id or title")
		return notification.OutcomeRejected
	}

	// Marked before anything else so a duplicate arriving mid-processing is dropped.
	if !e.dedup.CheckAndMark(ctx, c.ID) {
		log.Debug("Candidate dropped: already processed")
		return notification.OutcomeDuplicate
	}

	cl := ClassifyCandidate(c)
	log = log.WithField("category", cl.Category)

	var reason string
	cfg, err := e.prefs.Load(ctx)
	if err != nil {
		// Fail open.
		log.WithError(err).Warn("Suppression config unavailable; not suppressing")
	} else {
		reason = suppressionReason(cl, cfg)
	}
	if reason == "" && cl.Category == notification.CategorySecurity && e.grace.IsActive() {
		reason = "grace-window"
	}
	silent := reason != ""

	d := notification.Delivery{
		CandidateID:  c.ID,
		Title:        cl.RefinedTitle,
		Body:         cl.RefinedBody,
		TargetScreen: c.TargetScreen,
		Silent:       silent,
		Category:     cl.Category,
	}
	if err := e.sink.Deliver(ctx, d); err != nil {
		log.WithError(err).Error("Delivery failed; candidate stays processed")
		return notification.OutcomeFailed
	}

	if silent {
		log.WithField("reason", reason).Info("Candidate delivered silently")
		return notification.OutcomeSilenced
	}
	log.Info("Candidate delivered")
	return notification.OutcomeDelivered
}
