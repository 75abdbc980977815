package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the analytics service.
type Metrics struct {
	// Query metrics
	QueryDuration *prometheus.HistogramVec
	QueryErrors   *prometheus.CounterVec

	// Access metrics
	ScopeResolutions *prometheus.CounterVec
	AccessDenials    *prometheus.CounterVec

	// Write metrics
	EventsIngested   *prometheus.CounterVec
	SyntheticEvents  *prometheus.CounterVec
	StreamPublishErr prometheus.Counter

	// Cache metrics
	CampaignCache *prometheus.CounterVec

	// Rate limiting metrics
	RateLimitHits *prometheus.CounterVec
}

// NewMetrics creates the metrics and registers them with reg. Passing nil
// registers with the Prometheus default registry.
func NewMetrics(namespace string, reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)

	return &Metrics{
		QueryDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "query_duration_seconds",
				Help:      "Analytics operation latency in seconds",
				Buckets:   []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
			},
			[]string{"operation", "status"},
		),
		QueryErrors: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "query_errors_total",
				Help:      "Failed analytics operations by error kind",
			},
			[]string{"operation", "kind"},
		),
		ScopeResolutions: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "scope_resolutions_total",
				Help:      "Access scopes resolved by requester role",
			},
			[]string{"role"},
		),
		AccessDenials: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "access_denials_total",
				Help:      "Requests rejected by campaign authorization",
			},
			[]string{"reason"},
		),
		EventsIngested: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "events_ingested_total",
				Help:      "Events accepted through the ingest operation",
			},
			[]string{"event_type"},
		),
		SyntheticEvents: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "synthetic_events_total",
				Help:      "Synthetic events written by the generator",
			},
			[]string{"event_type"},
		),
		StreamPublishErr: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "stream_publish_errors_total",
				Help:      "Ingested events that could not be mirrored to the stream",
			},
		),
		CampaignCache: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "campaign_cache_requests_total",
				Help:      "Campaign cache lookups by result",
			},
			[]string{"result"}, // hit, miss, error
		),
		RateLimitHits: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "rate_limit_hits_total",
				Help:      "Rate limit rejections",
			},
			[]string{"endpoint"},
		),
	}
}

// Handler returns the Prometheus metrics HTTP handler for the given gatherer.
func Handler(g prometheus.Gatherer) http.Handler {
	if g == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}

// Recording methods are no-ops on a nil *Metrics.

// ObserveQuery records the latency of an analytics operation.
func (m *Metrics) ObserveQuery(operation string, err error, latency time.Duration) {
	if m == nil {
		return
	}
	status := "ok"
	if err != nil {
		status = "error"
	}
	m.QueryDuration.WithLabelValues(operation, status).Observe(latency.Seconds())
}

// RecordQueryError records a failed operation.
func (m *Metrics) RecordQueryError(operation, kind string) {
	if m == nil {
		return
	}
	m.QueryErrors.WithLabelValues(operation, kind).Inc()
}

// RecordScopeResolution records a resolved access scope.
func (m *Metrics) RecordScopeResolution(role string) {
	if m == nil {
		return
	}
	m.ScopeResolutions.WithLabelValues(role).Inc()
}

// RecordAccessDenial records a rejected campaign access.
func (m *Metrics) RecordAccessDenial(reason string) {
	if m == nil {
		return
	}
	m.AccessDenials.WithLabelValues(reason).Inc()
}

// RecordIngest records an ingested event.
func (m *Metrics) RecordIngest(eventType string) {
	if m == nil {
		return
	}
	m.EventsIngested.WithLabelValues(eventType).Inc()
}

// RecordSynthetic records generated events of one type.
func (m *Metrics) RecordSynthetic(eventType string, n int) {
	if m == nil {
		return
	}
	m.SyntheticEvents.WithLabelValues(eventType).Add(float64(n))
}

// RecordStreamError records a failed stream publish.
func (m *Metrics) RecordStreamError() {
	if m == nil {
		return
	}
	m.StreamPublishErr.Inc()
}

// RecordCacheResult records a campaign cache lookup.
func (m *Metrics) RecordCacheResult(result string) {
	if m == nil {
		return
	}
	m.CampaignCache.WithLabelValues(result).Inc()
}

// RecordRateLimitHit records a rate limit hit.
func (m *Metrics) RecordRateLimitHit(endpoint string) {
	if m == nil {
		return
	}
	m.RateLimitHits.WithLabelValues(endpoint).Inc()
}
