package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "breakbot"

// RuntimeSnapshot contains aggregated counters for intake, resolution and channel sends.
type RuntimeSnapshot struct {
	UpdatedAt  time.Time       `json:"updated_at"`
	Intake     IntakeStats     `json:"intake"`
	Resolution ResolutionStats `json:"resolution"`
	Channel    ChannelStats    `json:"channel"`
}

// IntakeStats tracks how intake sessions end.
type IntakeStats struct {
	Started   int64 `json:"started"`
	Submitted int64 `json:"submitted"`
	Cancelled int64 `json:"cancelled"`
	TimedOut  int64 `json:"timed_out"`
	Failed    int64 `json:"failed"`
	Restarted int64 `json:"restarted"`
	Reprompts int64 `json:"reprompts"`
	Active    int64 `json:"active"`
}

// ResolutionStats tracks approver action outcomes.
type ResolutionStats struct {
	Approved        int64 `json:"approved"`
	Ignored         int64 `json:"ignored"`
	AlreadyResolved int64 `json:"already_resolved"`
	Malformed       int64 `json:"malformed"`
}

// ChannelStats tracks outbound channel send metrics.
type ChannelStats struct {
	SendAttempts int64 `json:"send_attempts"`
	SendFailures int64 `json:"send_failures"`
}

// FailureRatio returns failures/attempts in [0,1].
func (c ChannelStats) FailureRatio() float64 {
	if c.SendAttempts <= 0 {
		return 0
	}
	return float64(c.SendFailures) / float64(c.SendAttempts)
}

// HasData reports whether any runtime metrics were recorded.
func (s RuntimeSnapshot) HasData() bool {
	return s.Intake.Started > 0 || s.Channel.SendAttempts > 0 ||
		s.Resolution.Approved+s.Resolution.Ignored+s.Resolution.AlreadyResolved+s.Resolution.Malformed > 0
}

// RuntimeMetrics records counters both as Prometheus collectors and as an
// in-memory snapshot. A nil *RuntimeMetrics is a valid no-op recorder.
type RuntimeMetrics struct {
	intakeEvents   *prometheus.CounterVec
	activeSessions prometheus.Gauge
	resolutions    *prometheus.CounterVec
	sends          *prometheus.CounterVec
	sendLatency    *prometheus.HistogramVec
	breakerState   prometheus.Gauge

	mu   sync.Mutex
	snap RuntimeSnapshot
}

// NewRuntimeMetrics registers collectors on reg. A nil reg gets a private registry.
func NewRuntimeMetrics(reg prometheus.Registerer) *RuntimeMetrics {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	factory := promauto.With(reg)
	return &RuntimeMetrics{
		intakeEvents: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "intake_events_total",
			Help:      "Intake session events by kind.",
		}, []string{"event"}),
		activeSessions: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "intake_active_sessions",
			Help:      "Intake sessions currently in progress.",
		}),
		resolutions: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "resolutions_total",
			Help:      "Approver actions by outcome.",
		}, []string{"outcome"}),
		sends: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "channel_sends_total",
			Help:      "Outbound channel calls by operation and result.",
		}, []string{"op", "result"}),
		sendLatency: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "channel_send_duration_seconds",
			Help:      "Outbound channel call latency including retries.",
			Buckets:   []float64{.01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10, 30},
		}, []string{"op"}),
		breakerState: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "channel_breaker_open",
			Help:      "Channel circuit breaker state (0=closed, 0.5=half-open, 1=open).",
		}),
	}
}

// Snapshot returns the latest in-memory snapshot.
func (m *RuntimeMetrics) Snapshot() RuntimeSnapshot {
	if m == nil {
		return RuntimeSnapshot{}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.snap
}

// Intake event kinds.
const (
	IntakeStarted   = "started"
	IntakeSubmitted = "submitted"
	IntakeCancelled = "cancelled"
	IntakeTimedOut  = "timed_out"
	IntakeFailed    = "failed"
	IntakeRestarted = "restarted"
	IntakeReprompt  = "reprompt"
)

// RecordIntake counts an intake event and keeps the active session gauge in step.
func (m *RuntimeMetrics) RecordIntake(event string) {
	if m == nil {
		return
	}
	m.intakeEvents.WithLabelValues(event).Inc()

	m.mu.Lock()
	defer m.mu.Unlock()
	m.snap.UpdatedAt = time.Now().UTC()
	s := &m.snap.Intake
	switch event {
	case IntakeStarted:
		s.Started++
		s.Active++
	case IntakeSubmitted:
		s.Submitted++
		s.Active--
	case IntakeCancelled:
		s.Cancelled++
		s.Active--
	case IntakeTimedOut:
		s.TimedOut++
		s.Active--
	case IntakeFailed:
		s.Failed++
		s.Active--
	case IntakeRestarted:
		s.Restarted++
		s.Active--
	case IntakeReprompt:
		s.Reprompts++
	}
	if s.Active < 0 {
		s.Active = 0
	}
	m.activeSessions.Set(float64(s.Active))
}

// Resolution outcomes.
const (
	ResolutionApproved        = "approved"
	ResolutionIgnored         = "ignored"
	ResolutionAlreadyResolved = "already_resolved"
	ResolutionMalformed       = "malformed"
)

// RecordResolution counts an approver action outcome.
func (m *RuntimeMetrics) RecordResolution(outcome string) {
	if m == nil {
		return
	}
	m.resolutions.WithLabelValues(outcome).Inc()

	m.mu.Lock()
	defer m.mu.Unlock()
	m.snap.UpdatedAt = time.Now().UTC()
	switch outcome {
	case ResolutionApproved:
		m.snap.Resolution.Approved++
	case ResolutionIgnored:
		m.snap.Resolution.Ignored++
	case ResolutionAlreadyResolved:
		m.snap.Resolution.AlreadyResolved++
	case ResolutionMalformed:
		m.snap.Resolution.Malformed++
	}
}

// RecordChannelSend updates outbound channel send metrics.
func (m *RuntimeMetrics) RecordChannelSend(op string, duration time.Duration, success bool) RuntimeSnapshot {
	if m == nil {
		return RuntimeSnapshot{}
	}
	result := "ok"
	if !success {
		result = "error"
	}
	m.sends.WithLabelValues(op, result).Inc()
	m.sendLatency.WithLabelValues(op).Observe(duration.Seconds())

	m.mu.Lock()
	defer m.mu.Unlock()
	m.snap.UpdatedAt = time.Now().UTC()
	m.snap.Channel.SendAttempts++
	if !success {
		m.snap.Channel.SendFailures++
	}
	return m.snap
}

// SetBreakerState publishes the channel breaker state as a gauge value.
func (m *RuntimeMetrics) SetBreakerState(value float64) {
	if m == nil {
		return
	}
	m.breakerState.Set(value)
}
