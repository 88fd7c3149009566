package telemetry

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "gpiobell"

// Trigger results.
const (
	ResultStarted = "started"
	ResultUnknown = "unknown"
	ResultClosed  = "closed"
	ResultBusy    = "busy"
)

// Playback outcomes.
const (
	OutcomeFinished  = "finished"
	OutcomeFailed    = "failed"
	OutcomePreempted = "preempted"
)

// Metrics holds the process collectors. A nil *Metrics is valid and records nothing.
type Metrics struct {
	registry *prometheus.Registry

	triggers    *prometheus.CounterVec
	playbacks   *prometheus.CounterVec
	preemptions prometheus.Counter
	violations  prometheus.Counter
	playing     prometheus.Gauge
}

// New creates metrics on a private registry.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		triggers: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "triggers_total",
			Help:      "Trigger calls by line and result.",
		}, []string{"line", "result"}),
		playbacks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "playbacks_total",
			Help:      "Finished playback units by outcome.",
		}, []string{"outcome"}),
		preemptions: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "preemptions_total",
			Help:      "Playback units terminated by a newer trigger.",
		}),
		violations: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "stop_timeouts_total",
			Help:      "Playback units that ignored cancellation past the stop timeout.",
		}),
		playing: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "playing",
			Help:      "1 while a clip is playing.",
		}),
	}

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.triggers,
		m.playbacks,
		m.preemptions,
		m.violations,
		m.playing,
	)
	return m
}

func (m *Metrics) Trigger(line, result string) {
	if m == nil {
		return
	}
	m.triggers.WithLabelValues(line, result).Inc()
}

func (m *Metrics) PlaybackEnded(outcome string) {
	if m == nil {
		return
	}
	m.playbacks.WithLabelValues(outcome).Inc()
}

func (m *Metrics) Preempted() {
	if m == nil {
		return
	}
	m.preemptions.Inc()
}

func (m *Metrics) StopTimeout() {
	if m == nil {
		return
	}
	m.violations.Inc()
}

func (m *Metrics) SetPlaying(playing bool) {
	if m == nil {
		return
	}
	if playing {
		m.playing.Set(1)
		return
	}
	m.playing.Set(0)
}

// Handler exposes the metrics endpoint.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
