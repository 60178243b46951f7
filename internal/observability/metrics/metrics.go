// Package metrics exposes the bot's Prometheus collectors and the optional
// HTTP server that serves them (plus pprof when enabled).
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

// Metrics groups the domain collectors. A nil *Metrics is valid and records nothing.
type Metrics struct {
	reg *prometheus.Registry

	deliveries *prometheus.CounterVec
	votes      *prometheus.CounterVec
	recipients *prometheus.CounterVec
	pushRuns   *prometheus.CounterVec
}

func New() *Metrics {
	m := &Metrics{
		reg: prometheus.NewRegistry(),
		deliveries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "memebot_deliveries_total",
			Help: "Content delivery attempts by kind, origin and result",
		}, []string{"kind", "origin", "result"}),
		votes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "memebot_votes_total",
			Help: "Vote attempts by kind, vote and result",
		}, []string{"kind", "vote", "result"}),
		recipients: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "memebot_broadcast_recipients_total",
			Help: "Broadcast sends by result",
		}, []string{"result"}),
		pushRuns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "memebot_push_runs_total",
			Help: "Scheduled push runs by result",
		}, []string{"result"}),
	}
	m.reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.deliveries, m.votes, m.recipients, m.pushRuns,
	)
	return m
}

// Registry returns the registry served on /metrics.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.reg
}

func (m *Metrics) Delivery(kind, origin, result string) {
	if m == nil {
		return
	}
	m.deliveries.WithLabelValues(kind, origin, result).Inc()
}

func (m *Metrics) Vote(kind, vote, result string) {
	if m == nil {
		return
	}
	m.votes.WithLabelValues(kind, vote, result).Inc()
}

func (m *Metrics) BroadcastRecipient(result string) {
	if m == nil {
		return
	}
	m.recipients.WithLabelValues(result).Inc()
}

func (m *Metrics) PushRun(result string) {
	if m == nil {
		return
	}
	m.pushRuns.WithLabelValues(result).Inc()
}
