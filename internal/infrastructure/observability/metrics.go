// Package observability holds the engine's Prometheus metrics and the
// OpenTelemetry tracer setup.
package observability

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// ══════════════════════════════════════════════════════════════════════════════
// METRICS
// ══════════════════════════════════════════════════════════════════════════════

// Metrics are the engine's collectors. A nil *Metrics is valid and records
// nothing, so tests and library callers can skip wiring it.
type Metrics struct {
	registry *prometheus.Registry

	activitiesTotal   *prometheus.CounterVec
	grantsTotal       *prometheus.CounterVec
	viewsTotal        *prometheus.CounterVec
	ratingsTotal      prometheus.Counter
	eventsTotal       *prometheus.CounterVec
	handlerFailures   *prometheus.CounterVec
	commandDuration   *prometheus.HistogramVec
	lockWaitDuration  *prometheus.HistogramVec
	journalBytesTotal prometheus.Counter
	jobDuration       *prometheus.HistogramVec
	deadLetters       prometheus.Gauge
}

// NewMetrics registers the collectors on a fresh registry.
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,

		activitiesTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "heritage_activities_total",
			Help: "Recorded activities by kind and whether they changed progress",
		}, []string{"kind", "changed"}),

		grantsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "heritage_achievements_granted_total",
			Help: "Achievements granted by rarity",
		}, []string{"rarity"}),

		viewsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "heritage_content_views_total",
			Help: "Content views by whether they were counted",
		}, []string{"counted"}),

		ratingsTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "heritage_content_ratings_total",
			Help: "Content ratings recorded",
		}),

		eventsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "heritage_events_published_total",
			Help: "Domain events published by type",
		}, []string{"type"}),

		handlerFailures: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "heritage_event_handler_failures_total",
			Help: "Event handler failures by event type",
		}, []string{"type"}),

		commandDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "heritage_command_duration_seconds",
			Help:    "Duration of command handlers",
			Buckets: []float64{0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1},
		}, []string{"command", "outcome"}),

		lockWaitDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "heritage_lock_wait_seconds",
			Help:    "Time spent waiting for keyed locks",
			Buckets: []float64{0.0001, 0.001, 0.01, 0.05, 0.1, 0.5, 1, 5},
		}, []string{"scope"}),

		journalBytesTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "heritage_journal_bytes_total",
			Help: "Uncompressed bytes appended to the activity journal",
		}),

		jobDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "heritage_job_duration_seconds",
			Help:    "Duration of background jobs",
			Buckets: []float64{0.001, 0.01, 0.1, 0.5, 1, 5, 30},
		}, []string{"job", "outcome"}),

		deadLetters: factory.NewGauge(prometheus.GaugeOpts{
			Name: "heritage_dead_letters",
			Help: "Events waiting in the dead letter queue",
		}),
	}
}

// Registry returns the registry the collectors live in.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// ActivityRecorded counts one accepted activity.
func (m *Metrics) ActivityRecorded(kind string, changed bool) {
	if m == nil {
		return
	}
	m.activitiesTotal.WithLabelValues(kind, boolLabel(changed)).Inc()
}

// AchievementGranted counts one grant.
func (m *Metrics) AchievementGranted(rarity string) {
	if m == nil {
		return
	}
	m.grantsTotal.WithLabelValues(rarity).Inc()
}

// ContentViewed counts one view call.
func (m *Metrics) ContentViewed(counted bool) {
	if m == nil {
		return
	}
	m.viewsTotal.WithLabelValues(boolLabel(counted)).Inc()
}

// ContentRated counts one rating.
func (m *Metrics) ContentRated() {
	if m == nil {
		return
	}
	m.ratingsTotal.Inc()
}

// EventPublished counts one published event.
func (m *Metrics) EventPublished(eventType string) {
	if m == nil {
		return
	}
	m.eventsTotal.WithLabelValues(eventType).Inc()
}

// HandlerFailed counts one failed event handler.
func (m *Metrics) HandlerFailed(eventType string) {
	if m == nil {
		return
	}
	m.handlerFailures.WithLabelValues(eventType).Inc()
}

// ObserveCommand records how long a command took.
func (m *Metrics) ObserveCommand(command string, d time.Duration, err error) {
	if m == nil {
		return
	}
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	m.commandDuration.WithLabelValues(command, outcome).Observe(d.Seconds())
}

// ObserveLockWait records time spent acquiring a lock of the given scope
// ("user", "content").
func (m *Metrics) ObserveLockWait(scope string, d time.Duration) {
	if m == nil {
		return
	}
	m.lockWaitDuration.WithLabelValues(scope).Observe(d.Seconds())
}

// JournalWritten adds n to the journal byte counter.
func (m *Metrics) JournalWritten(n int) {
	if m == nil {
		return
	}
	m.journalBytesTotal.Add(float64(n))
}

// ObserveJob records one background job run.
func (m *Metrics) ObserveJob(job string, d time.Duration, err error) {
	if m == nil {
		return
	}
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	m.jobDuration.WithLabelValues(job, outcome).Observe(d.Seconds())
}

// SetDeadLetters reports the dead letter queue size.
func (m *Metrics) SetDeadLetters(n int) {
	if m == nil {
		return
	}
	m.deadLetters.Set(float64(n))
}

func boolLabel(b bool) string {
	if b {
		return "true"
	}
	return "false"
}
