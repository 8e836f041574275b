package sinks

import (
	"context"
	"fmt"
	"sync"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/JakeFAU/coursebot/internal/progress"
)

// PrometheusSink turns progress events into enrollment collectors: events by
// stage, selections started/completed/in flight, selection latency and
// captcha rounds.
type PrometheusSink struct {
	events              *prometheus.CounterVec
	selectionsStarted   prometheus.Counter
	selectionsCompleted *prometheus.CounterVec
	selectionsInFlight  prometheus.Gauge
	selectionDuration   *prometheus.HistogramVec
	captchaRounds       prometheus.Counter

	tracker *selectionTracker
}

// NewPrometheusSink registers the collectors against the provided registry.
func NewPrometheusSink(reg prometheus.Registerer) (*PrometheusSink, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	s := &PrometheusSink{
		events: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "coursebot_progress_events_total",
			Help: "Progress events partitioned by stage.",
		}, []string{"stage"}),
		selectionsStarted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "coursebot_selections_started_total",
			Help: "Selections that have started.",
		}),
		selectionsCompleted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "coursebot_selections_completed_total",
			Help: "Selections completed partitioned by result.",
		}, []string{"result"}),
		selectionsInFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "coursebot_selections_in_flight",
			Help: "Selections currently running.",
		}),
		selectionDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "coursebot_selection_duration_seconds",
			Help:    "Wall time per completed selection.",
			Buckets: []float64{0.5, 1, 2, 5, 10, 20, 30, 60, 120},
		}, []string{"result"}),
		captchaRounds: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "coursebot_captcha_rounds_total",
			Help: "Captcha images presented during selection.",
		}),
		tracker: newSelectionTracker(),
	}
	for _, collector := range []prometheus.Collector{
		s.events,
		s.selectionsStarted,
		s.selectionsCompleted,
		s.selectionsInFlight,
		s.selectionDuration,
		s.captchaRounds,
	} {
		if err := reg.Register(collector); err != nil {
			return nil, fmt.Errorf("register progress collector: %w", err)
		}
	}
	return s, nil
}

// Consume updates the collectors from the batch.
func (s *PrometheusSink) Consume(_ context.Context, batch []progress.Event) error {
	for _, evt := range batch {
		s.events.WithLabelValues(string(evt.Stage)).Inc()
		switch evt.Stage {
		case progress.StageSelectStart:
			s.selectionsStarted.Inc()
			if s.tracker.start(evt.CourseID) {
				s.selectionsInFlight.Inc()
			}
		case progress.StageCaptcha:
			s.captchaRounds.Inc()
		case progress.StageSelectDone:
			s.complete(evt, "success")
		case progress.StageSelectError:
			s.complete(evt, "error")
		}
	}
	return nil
}

func (s *PrometheusSink) complete(evt progress.Event, result string) {
	s.selectionsCompleted.WithLabelValues(result).Inc()
	if evt.Dur > 0 {
		s.selectionDuration.WithLabelValues(result).Observe(evt.Dur.Seconds())
	}
	if s.tracker.complete(evt.CourseID) {
		s.selectionsInFlight.Dec()
	}
}

// Close implements the Sink interface; it performs no action.
func (s *PrometheusSink) Close(context.Context) error {
	return nil
}

type selectionTracker struct {
	mu      sync.Mutex
	running map[string]struct{}
}

func newSelectionTracker() *selectionTracker {
	return &selectionTracker{running: make(map[string]struct{})}
}

func (t *selectionTracker) start(courseID string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.running[courseID]; ok {
		return false
	}
	t.running[courseID] = struct{}{}
	return true
}

func (t *selectionTracker) complete(courseID string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.running[courseID]; !ok {
		return false
	}
	delete(t.running, courseID)
	return true
}
