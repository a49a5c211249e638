// Package metrics exposes Prometheus collectors for commands, remote calls,
// and rate limiter waits.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "record_gateway"

// Metrics implements the observers used by the dispatcher, the remote
// client, and the rate limiter. A nil *Metrics is a valid no-op.
type Metrics struct {
	commands        *prometheus.CounterVec
	commandDuration *prometheus.HistogramVec
	remoteRequests  *prometheus.CounterVec
	rateLimitWait   prometheus.Histogram
	reg             prometheus.Registerer
}

// MustNewMetrics registers the collectors with reg (the default registerer
// when nil). Registration errors panic, like the promauto helpers.
func MustNewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	m := &Metrics{
		commands: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "commands_total",
			Help:      "Dispatched commands by name and outcome.",
		}, []string{"command", "outcome"}),
		commandDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "command_duration_seconds",
			Help:      "End-to-end dispatch latency, including rate limiter waits.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"command"}),
		remoteRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "remote_requests_total",
			Help:      "Requests issued to the remote table service by HTTP method and outcome.",
		}, []string{"method", "outcome"}),
		rateLimitWait: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "ratelimit_wait_seconds",
			Help:      "Time callers spent paced by the outbound rate limiter.",
			Buckets:   []float64{0, .01, .05, .1, .2, .5, 1, 2, 5},
		}),
		reg: reg,
	}
	reg.MustRegister(m.commands, m.commandDuration, m.remoteRequests, m.rateLimitWait)
	return m
}

// ObserveCommand records one dispatch.
func (m *Metrics) ObserveCommand(command, outcome string, d time.Duration) {
	if m == nil {
		return
	}
	m.commands.WithLabelValues(command, outcome).Inc()
	m.commandDuration.WithLabelValues(command).Observe(d.Seconds())
}

// ObserveRemote records one remote request.
func (m *Metrics) ObserveRemote(method, outcome string, _ time.Duration) {
	if m == nil {
		return
	}
	m.remoteRequests.WithLabelValues(method, outcome).Inc()
}

// ObserveWait records a rate limiter wait.
func (m *Metrics) ObserveWait(d time.Duration) {
	if m == nil {
		return
	}
	m.rateLimitWait.Observe(d.Seconds())
}

// RegisterInFlight exports the current number of in-flight limiter
// acquisitions as a gauge.
func (m *Metrics) RegisterInFlight(fn func() int64) {
	if m == nil {
		return
	}
	m.reg.MustRegister(prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "ratelimit_in_flight",
		Help:      "Callers currently holding a rate limiter slot.",
	}, func() float64 { return float64(fn()) }))
}
