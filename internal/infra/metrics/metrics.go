package metrics

import (
	"net/http"

	"notification_reconciler/internal/domain/notification"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Recorder counts candidates per source and engine outcomes.
type Recorder struct {
	registry *prometheus.Registry

	candidatesTotal *prometheus.CounterVec
	outcomesTotal   *prometheus.CounterVec
}

// NewRecorder registers the notifier metrics, plus Go and process collectors, on a fresh registry.
func NewRecorder() *Recorder {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	factory := promauto.With(reg)

	return &Recorder{
		registry: reg,
		candidatesTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "notifier_candidates_total",
				Help: "Candidates received by the reconciliation engine, by source.",
			},
			[]string{"source"},
		),
		outcomesTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "notifier_outcomes_total",
				Help: "Terminal outcome of each processed candidate.",
			},
			[]string{"outcome"},
		),
	}
}

func (r *Recorder) RecordOutcome(source notification.Source, outcome notification.Outcome) {
	r.candidatesTotal.WithLabelValues(string(source)).Inc()
	r.outcomesTotal.WithLabelValues(string(outcome)).Inc()
}

// Handler serves the registry in the Prometheus exposition format.
func (r *Recorder) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{Registry: r.registry})
}
