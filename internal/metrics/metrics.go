// Package metrics exposes the coordinator's Prometheus collectors.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "discovery"

// Metrics holds the coordinator collectors.
//
// Every collector is registered on the registerer passed to New, so tests can
// use a private prometheus.Registry and the process can use the default one.
type Metrics struct {
	// ToolCalls counts dispatcher invocations.
	// Labels: service, tool, status (OK|PERMISSION_DENIED|NOT_FOUND|NETWORK_ERROR|UNKNOWN)
	ToolCalls *prometheus.CounterVec

	// ToolCallDuration measures invocation latency including retries, in seconds.
	// Labels: service, tool
	ToolCallDuration *prometheus.HistogramVec

	// ToolRetries counts attempts beyond the first.
	// Labels: service, tool
	ToolRetries *prometheus.CounterVec

	// RoutingDecisions counts routing outcomes.
	// Labels: specialist, strategy, fallback (true|false)
	RoutingDecisions *prometheus.CounterVec

	// Turns counts completed query turns.
	// Labels: specialist
	Turns *prometheus.CounterVec

	// ActiveSessions tracks live sessions in the store
	ActiveSessions prometheus.Gauge

	// BindingState is 1 when a tool host binding is initialized and 0 otherwise.
	// Labels: server
	BindingState *prometheus.GaugeVec
}

// New creates the collectors and registers them on reg
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		ToolCalls: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "dispatch",
				Name:      "tool_calls_total",
				Help:      "Tool invocations by service, tool and result status",
			},
			[]string{"service", "tool", "status"},
		),
		ToolCallDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "dispatch",
				Name:      "tool_call_duration_seconds",
				Help:      "Tool invocation latency including retries",
				Buckets:   []float64{0.01, 0.05, 0.1, 0.5, 1, 2, 5, 10, 30, 60},
			},
			[]string{"service", "tool"},
		),
		ToolRetries: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "dispatch",
				Name:      "tool_retries_total",
				Help:      "Tool invocation attempts beyond the first",
			},
			[]string{"service", "tool"},
		),
		RoutingDecisions: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "router",
				Name:      "decisions_total",
				Help:      "Routing decisions by specialist and strategy",
			},
			[]string{"specialist", "strategy", "fallback"},
		),
		Turns: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "coordinator",
				Name:      "turns_total",
				Help:      "Completed query turns by specialist",
			},
			[]string{"specialist"},
		),
		ActiveSessions: f.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: "sessions",
				Name:      "active",
				Help:      "Sessions currently held by the store",
			},
		),
		BindingState: f.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: "registry",
				Name:      "binding_initialized",
				Help:      "Whether the binding to a tool host is initialized",
			},
			[]string{"server"},
		),
	}
}

// ObserveToolCall records one dispatcher invocation
func (m *Metrics) ObserveToolCall(service, tool, status string, attempts int, elapsed time.Duration) {
	m.ToolCalls.WithLabelValues(service, tool, status).Inc()
	m.ToolCallDuration.WithLabelValues(service, tool).Observe(elapsed.Seconds())
	if attempts > 1 {
		m.ToolRetries.WithLabelValues(service, tool).Add(float64(attempts - 1))
	}
}

// ObserveRouting records a routing decision
func (m *Metrics) ObserveRouting(specialist, strategy string, fallback bool) {
	fb := "false"
	if fallback {
		fb = "true"
	}
	m.RoutingDecisions.WithLabelValues(specialist, strategy, fb).Inc()
}

// ObserveTurn records a completed turn
func (m *Metrics) ObserveTurn(specialist string) {
	m.Turns.WithLabelValues(specialist).Inc()
}

// SetActiveSessions sets the live session gauge
func (m *Metrics) SetActiveSessions(n int) {
	m.ActiveSessions.Set(float64(n))
}

// SetBindingInitialized flips the binding gauge for server
func (m *Metrics) SetBindingInitialized(server string, initialized bool) {
	v := 0.0
	if initialized {
		v = 1
	}
	m.BindingState.WithLabelValues(server).Set(v)
}
