// Package metrics exposes request and session counters for Prometheus.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/joeblew999/plat-servicearea/internal/orchestrator"
)

type Collector struct {
	reg *prometheus.Registry

	Requests           *prometheus.CounterVec // kind label: metadata|solve|search
	RequestsSuperseded *prometheus.CounterVec
	RequestsFailed     *prometheus.CounterVec

	RequestDuration *prometheus.HistogramVec

	SessionsActive prometheus.Gauge
	SolveOutcomes  *prometheus.CounterVec // status label: ready|info

	NATSPublished   prometheus.Counter
	NATSPublishErrs prometheus.Counter
	NATSConnected   prometheus.Gauge
	HistoryErrs     prometheus.Counter
}

func NewCollector() *Collector {
	reg := prometheus.NewRegistry()

	c := &Collector{
		reg: reg,
		Requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "servicearea_requests_total",
			Help: "Requests issued to the service area and geocode services.",
		}, []string{"kind"}),
		RequestsSuperseded: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "servicearea_requests_superseded_total",
			Help: "Requests cancelled by a newer request of the same kind or by teardown.",
		}, []string{"kind"}),
		RequestsFailed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "servicearea_requests_failed_total",
			Help: "Requests that completed with an error.",
		}, []string{"kind"}),
		RequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "servicearea_request_duration_seconds",
			Help:    "Duration of successful requests.",
			Buckets: prometheus.ExponentialBuckets(0.01, 2, 12),
		}, []string{"kind"}),
		SessionsActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "servicearea_sessions_active",
			Help: "Number of live widget sessions.",
		}),
		SolveOutcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "servicearea_solve_outcomes_total",
			Help: "Finished solves by resulting status.",
		}, []string{"status"}),
		NATSPublished: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "servicearea_nats_published_total",
			Help: "Total NATS messages published.",
		}),
		NATSPublishErrs: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "servicearea_nats_publish_errors_total",
			Help: "Total NATS publish errors.",
		}),
		NATSConnected: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "servicearea_nats_connected",
			Help: "1 if NATS connection is established, 0 otherwise.",
		}),
		HistoryErrs: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "servicearea_history_errors_total",
			Help: "Solve outcomes that could not be recorded.",
		}),
	}

	reg.MustRegister(
		c.Requests, c.RequestsSuperseded, c.RequestsFailed, c.RequestDuration,
		c.SessionsActive, c.SolveOutcomes,
		c.NATSPublished, c.NATSPublishErrs, c.NATSConnected, c.HistoryErrs,
	)

	// Pre-create the label sets so dashboards see zeros.
	for _, k := range orchestrator.Kinds {
		c.Requests.WithLabelValues(string(k))
		c.RequestsSuperseded.WithLabelValues(string(k))
		c.RequestsFailed.WithLabelValues(string(k))
	}
	return c
}

func (c *Collector) Handler() http.Handler { return promhttp.HandlerFor(c.reg, promhttp.HandlerOpts{}) }

// Registry exposes the private registry, mainly for tests.
func (c *Collector) Registry() *prometheus.Registry { return c.reg }

// Observer implements orchestrator.Observer.
func (c *Collector) Issued(kind orchestrator.Kind) { c.Requests.WithLabelValues(string(kind)).Inc() }

func (c *Collector) Superseded(kind orchestrator.Kind) {
	c.RequestsSuperseded.WithLabelValues(string(kind)).Inc()
}

func (c *Collector) Failed(kind orchestrator.Kind, _ error) {
	c.RequestsFailed.WithLabelValues(string(kind)).Inc()
}

func (c *Collector) Completed(kind orchestrator.Kind, elapsed time.Duration) {
	c.RequestDuration.WithLabelValues(string(kind)).Observe(elapsed.Seconds())
}

// SolveFinished counts a solve outcome by status.
func (c *Collector) SolveFinished(status string) { c.SolveOutcomes.WithLabelValues(status).Inc() }

// Publisher metrics, see publisher.PublisherMetrics.
func (c *Collector) NATSPublishedInc()  { c.NATSPublished.Inc() }
func (c *Collector) NATSPublishErrInc() { c.NATSPublishErrs.Inc() }

func (c *Collector) NATSSetConnected(connected bool) {
	if connected {
		c.NATSConnected.Set(1)
		return
	}
	c.NATSConnected.Set(0)
}

// HistoryErrInc counts a failed history write.
func (c *Collector) HistoryErrInc() { c.HistoryErrs.Inc() }
