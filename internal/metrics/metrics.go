package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the counters the voice and history layers report.
// All methods are safe to call on a nil receiver so tests can pass
// nil instead of wiring a registry.
type Metrics struct {
	flushes          prometheus.Counter
	reentrantFlushes prometheus.Counter
	bargeIns         prometheus.Counter
	turns            prometheus.Counter
	remoteErrors     prometheus.Counter
	evictions        prometheus.Counter
}

// New registers the counters with the given registerer.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		flushes: factory.NewCounter(prometheus.CounterOpts{
			Name: "voicecore_flushes_total",
			Help: "Utterance flushes handed to the exchange pipeline.",
		}),
		reentrantFlushes: factory.NewCounter(prometheus.CounterOpts{
			Name: "voicecore_reentrant_flushes_total",
			Help: "Flush triggers suppressed because one was already in flight.",
		}),
		bargeIns: factory.NewCounter(prometheus.CounterOpts{
			Name: "voicecore_barge_ins_total",
			Help: "Playback interruptions caused by sustained user speech.",
		}),
		turns: factory.NewCounter(prometheus.CounterOpts{
			Name: "voicecore_turns_total",
			Help: "Conversation turn pairs recorded to history.",
		}),
		remoteErrors: factory.NewCounter(prometheus.CounterOpts{
			Name: "voicecore_remote_errors_total",
			Help: "Failed remote exchange or synthesize calls.",
		}),
		evictions: factory.NewCounter(prometheus.CounterOpts{
			Name: "voicecore_history_evictions_total",
			Help: "Quota-triggered history evictions.",
		}),
	}
}

func (m *Metrics) IncFlush() {
	if m != nil {
		m.flushes.Inc()
	}
}

func (m *Metrics) IncReentrantFlush() {
	if m != nil {
		m.reentrantFlushes.Inc()
	}
}

func (m *Metrics) IncBargeIn() {
	if m != nil {
		m.bargeIns.Inc()
	}
}

func (m *Metrics) IncTurn() {
	if m != nil {
		m.turns.Inc()
	}
}

func (m *Metrics) IncRemoteError() {
	if m != nil {
		m.remoteErrors.Inc()
	}
}

func (m *Metrics) IncEviction() {
	if m != nil {
		m.evictions.Inc()
	}
}
