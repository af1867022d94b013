// Package metrics provides a Prometheus collector for gate events. Wire it
// into a Gate with x402.WithEventCallback(collector.Callback()).
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	x402 "github.com/itsA-D/Bindu"
)

// Collector counts gate outcomes for Prometheus scraping.
type Collector struct {
	challenges prometheus.Counter
	grants     prometheus.Counter
	denials    *prometheus.CounterVec
	replays    prometheus.Counter
	duration   prometheus.Histogram
}

// NewCollector creates a Collector and registers its metrics with reg.
// Replays get a dedicated counter on top of the per-reason denial counter:
// they signal races or double-spend attempts and must never blend into
// ordinary rejections.
func NewCollector(reg prometheus.Registerer) *Collector {
	factory := promauto.With(reg)
	return &Collector{
		challenges: factory.NewCounter(prometheus.CounterOpts{
			Name: "x402_challenges_issued_total",
			Help: "Number of payment challenges issued.",
		}),
		grants: factory.NewCounter(prometheus.CounterOpts{
			Name: "x402_grants_total",
			Help: "Number of proofs accepted and responses released.",
		}),
		denials: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "x402_denials_total",
			Help: "Number of proofs denied, by reason.",
		}, []string{"reason"}),
		replays: factory.NewCounter(prometheus.CounterOpts{
			Name: "x402_replays_detected_total",
			Help: "Number of denials caused by an already-consumed nonce.",
		}),
		duration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "x402_redeem_duration_seconds",
			Help:    "Time spent processing proof submissions.",
			Buckets: prometheus.DefBuckets,
		}),
	}
}

// Callback returns an event callback feeding this collector.
func (c *Collector) Callback() x402.EventCallback {
	return c.observe
}

func (c *Collector) observe(ev x402.Event) {
	switch ev.Type {
	case x402.EventChallenge:
		c.challenges.Inc()
	case x402.EventGrant:
		c.grants.Inc()
		c.duration.Observe(ev.Duration.Seconds())
	case x402.EventDeny:
		c.denials.WithLabelValues(string(ev.Reason)).Inc()
		if ev.Replay {
			c.replays.Inc()
		}
		if ev.Duration > 0 {
			c.duration.Observe(ev.Duration.Seconds())
		}
	}
}
