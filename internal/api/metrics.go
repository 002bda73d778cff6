package api

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/AaronLay10/FoleySim/internal/events"
	"github.com/AaronLay10/FoleySim/internal/orchestrator"
	"github.com/AaronLay10/FoleySim/internal/scene"
	"github.com/AaronLay10/FoleySim/internal/version"
)

// Metrics exports simulator counters to Prometheus. It observes the
// sequencer, so it must be registered as one of its observers.
type Metrics struct {
	orchestrator.NopObserver

	registry *prometheus.Registry

	stepsEntered  *prometheus.CounterVec
	gatesOpened   *prometheus.CounterVec
	feedbackShown *prometheus.CounterVec
	compositions  *prometheus.CounterVec
	grabs         prometheus.Counter
	stepDuration  *prometheus.HistogramVec
	currentStep   prometheus.Gauge

	mu        sync.Mutex
	step      int
	stepSince time.Time
	now       func() time.Time
}

// NewMetrics creates the collectors on a private registry.
func NewMetrics(roomID string, ready *Readiness) *Metrics {
	constLabels := prometheus.Labels{"room": roomID}
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		stepsEntered: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name:        "foleysim_steps_entered_total",
			Help:        "Number of times each step was entered.",
			ConstLabels: constLabels,
		}, []string{"step"}),
		gatesOpened: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name:        "foleysim_gates_opened_total",
			Help:        "Number of times each step's gate opened.",
			ConstLabels: constLabels,
		}, []string{"step"}),
		feedbackShown: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name:        "foleysim_feedback_total",
			Help:        "Feedback panels shown, by kind.",
			ConstLabels: constLabels,
		}, []string{"kind"}),
		compositions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name:        "foleysim_compositions_total",
			Help:        "Composite objects produced, by output.",
			ConstLabels: constLabels,
		}, []string{"output"}),
		grabs: prometheus.NewCounter(prometheus.CounterOpts{
			Name:        "foleysim_grabs_total",
			Help:        "Accepted grab-starts.",
			ConstLabels: constLabels,
		}),
		stepDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:        "foleysim_step_duration_seconds",
			Help:        "Time spent on a step before leaving it.",
			ConstLabels: constLabels,
			Buckets:     []float64{5, 15, 30, 60, 120, 300, 600},
		}, []string{"step"}),
		currentStep: prometheus.NewGauge(prometheus.GaugeOpts{
			Name:        "foleysim_current_step",
			Help:        "Ordinal of the active step.",
			ConstLabels: constLabels,
		}),
		step: -1,
		now:  time.Now,
	}

	start := time.Now()
	m.registry.MustRegister(
		m.stepsEntered,
		m.gatesOpened,
		m.feedbackShown,
		m.compositions,
		m.grabs,
		m.stepDuration,
		m.currentStep,
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Name:        "foleysim_uptime_seconds",
			Help:        "Seconds since the process started.",
			ConstLabels: prometheus.Labels{"room": roomID, "version": version.Version},
		}, func() float64 { return time.Since(start).Seconds() }),
		prometheus.NewCounterFunc(prometheus.CounterOpts{
			Name:        "foleysim_events_total",
			Help:        "Events emitted since startup.",
			ConstLabels: constLabels,
		}, func() float64 { return float64(events.TotalCount()) }),
		prometheus.NewCounterFunc(prometheus.CounterOpts{
			Name:        "foleysim_events_dropped_total",
			Help:        "Event deliveries skipped for slow stream subscribers.",
			ConstLabels: constLabels,
		}, func() float64 { return float64(events.DroppedCount()) }),
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Name:        "foleysim_ws_clients",
			Help:        "Active WebSocket event subscribers.",
			ConstLabels: constLabels,
		}, func() float64 { return float64(events.SubscriberCount()) }),
	)
	if ready != nil {
		m.registry.MustRegister(
			prometheus.NewGaugeFunc(prometheus.GaugeOpts{
				Name:        "foleysim_mqtt_connected",
				Help:        "Whether the MQTT broker is connected (1) or not (0).",
				ConstLabels: constLabels,
			}, func() float64 { return boolGauge(ready.MQTTConnected()) }),
			prometheus.NewGaugeFunc(prometheus.GaugeOpts{
				Name:        "foleysim_postgres_connected",
				Help:        "Whether PostgreSQL is connected (1) or not (0).",
				ConstLabels: constLabels,
			}, func() float64 { return boolGauge(ready.PostgresConnected()) }),
		)
	}
	return m
}

func boolGauge(b bool) float64 {
	if b {
		return 1
	}
	return 0
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) StepChanged(ordinal int, _ string) {
	m.mu.Lock()
	now := m.now()
	if m.step >= 0 {
		m.stepDuration.WithLabelValues(strconv.Itoa(m.step)).Observe(now.Sub(m.stepSince).Seconds())
	}
	m.step = ordinal
	m.stepSince = now
	m.mu.Unlock()

	m.stepsEntered.WithLabelValues(strconv.Itoa(ordinal)).Inc()
	m.currentStep.Set(float64(ordinal))
}

func (m *Metrics) GateOpened(ordinal int) {
	m.gatesOpened.WithLabelValues(strconv.Itoa(ordinal)).Inc()
}

func (m *Metrics) Feedback(_ string, isError bool) {
	kind := "success"
	if isError {
		kind = "error"
	}
	m.feedbackShown.WithLabelValues(kind).Inc()
}

func (m *Metrics) Composed(output scene.ObjectID) {
	m.compositions.WithLabelValues(output.String()).Inc()
}

func (m *Metrics) Grab(_ scene.ControllerID, _ scene.ObjectID, started bool) {
	if started {
		m.grabs.Inc()
	}
}
