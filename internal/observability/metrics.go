// Package observability provides Prometheus metrics and logging setup.
package observability

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the application.
type Metrics struct {
	// Scrape metrics
	ScrapesTotal   *prometheus.CounterVec
	ScrapeDuration *prometheus.HistogramVec
	CacheLookups   *prometheus.CounterVec

	// Vote metrics
	VotesCast           *prometheus.CounterVec
	RateLimitRejections *prometheus.CounterVec
	StoreRetries        *prometheus.CounterVec

	// Stream metrics
	Subscribers       prometheus.Gauge
	EventsBroadcast   prometheus.Counter
	EventsDropped     prometheus.Counter
	MutationsObserved *prometheus.CounterVec
	BridgeErrors      prometheus.Counter

	// Database metrics
	DBQueryDuration *prometheus.HistogramVec
	DBQueryErrors   *prometheus.CounterVec

	// HTTP metrics
	HTTPRequests *prometheus.CounterVec
}

// NewMetrics creates a new Metrics instance registered with reg.
// A nil reg uses the default registerer.
func NewMetrics(namespace string, reg prometheus.Registerer) *Metrics {
	if namespace == "" {
		namespace = "kol_scoreboard"
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)

	return &Metrics{
		// Scrape metrics
		ScrapesTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "scrape",
			Name:      "total",
			Help:      "Total number of wallet scrapes by outcome and failure reason",
		}, []string{"outcome", "reason"}),
		ScrapeDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "scrape",
			Name:      "duration_seconds",
			Help:      "Wallet scrape duration in seconds",
			Buckets:   []float64{1, 2.5, 5, 10, 20, 30, 45, 60, 75},
		}, []string{"outcome"}),
		CacheLookups: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "scrape",
			Name:      "cache_lookups_total",
			Help:      "Scrape cache lookups by result",
		}, []string{"result"}),

		// Vote metrics
		VotesCast: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "votes",
			Name:      "cast_total",
			Help:      "Total number of votes cast by resulting action",
		}, []string{"action"}),
		RateLimitRejections: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "votes",
			Name:      "rate_limited_total",
			Help:      "Total number of requests rejected by the rate limiter",
		}, []string{"route"}),
		StoreRetries: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "votes",
			Name:      "store_retries_total",
			Help:      "Total number of vote writes retried after contention",
		}, []string{"backend"}),

		// Stream metrics
		Subscribers: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "stream",
			Name:      "subscribers",
			Help:      "Current number of live stream subscribers",
		}),
		EventsBroadcast: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "stream",
			Name:      "events_broadcast_total",
			Help:      "Total number of events published to subscribers",
		}),
		EventsDropped: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "stream",
			Name:      "events_dropped_total",
			Help:      "Total number of per-subscriber deliveries dropped on a full buffer",
		}),
		MutationsObserved: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "stream",
			Name:      "mutations_observed_total",
			Help:      "Total number of vote mutations observed by the change bridge",
		}, []string{"op"}),
		BridgeErrors: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "stream",
			Name:      "bridge_errors_total",
			Help:      "Total number of change stream failures",
		}),

		// Database metrics
		DBQueryDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "database",
			Name:      "query_duration_seconds",
			Help:      "Database query duration in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"database", "operation"}),
		DBQueryErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "database",
			Name:      "query_errors_total",
			Help:      "Total number of database query errors",
		}, []string{"database", "operation"}),

		// HTTP metrics
		HTTPRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests by route and status code",
		}, []string{"route", "code"}),
	}
}

// Handler returns an HTTP handler for the /metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}

// DefaultMetrics is the default metrics instance.
var DefaultMetrics = NewMetrics("", nil)

// RecordScrape records a completed scrape.
func RecordScrape(outcome, reason string, seconds float64) {
	DefaultMetrics.ScrapesTotal.WithLabelValues(outcome, reason).Inc()
	DefaultMetrics.ScrapeDuration.WithLabelValues(outcome).Observe(seconds)
}

// RecordCacheLookup records a scrape cache hit or miss.
func RecordCacheLookup(hit bool) {
	result := "miss"
	if hit {
		result = "hit"
	}
	DefaultMetrics.CacheLookups.WithLabelValues(result).Inc()
}

// RecordVote records a cast vote by its resulting action.
func RecordVote(action string) {
	DefaultMetrics.VotesCast.WithLabelValues(action).Inc()
}

// RecordRateLimited records a rejected request.
func RecordRateLimited(route string) {
	DefaultMetrics.RateLimitRejections.WithLabelValues(route).Inc()
}

// RecordStoreRetry records a vote write retried after contention.
func RecordStoreRetry(backend string) {
	DefaultMetrics.StoreRetries.WithLabelValues(backend).Inc()
}

// UpdateSubscribers sets the live subscriber gauge.
func UpdateSubscribers(n int) {
	DefaultMetrics.Subscribers.Set(float64(n))
}

// RecordBroadcast records one published event and how many deliveries were dropped.
func RecordBroadcast(dropped int) {
	DefaultMetrics.EventsBroadcast.Inc()
	if dropped > 0 {
		DefaultMetrics.EventsDropped.Add(float64(dropped))
	}
}

// RecordMutation records a mutation observed by the change bridge.
func RecordMutation(op string) {
	DefaultMetrics.MutationsObserved.WithLabelValues(op).Inc()
}

// RecordBridgeError records a change stream failure.
func RecordBridgeError() {
	DefaultMetrics.BridgeErrors.Inc()
}

// RecordDBQuery records database query metrics.
func RecordDBQuery(database, operation string, seconds float64, err error) {
	DefaultMetrics.DBQueryDuration.WithLabelValues(database, operation).Observe(seconds)
	if err != nil {
		DefaultMetrics.DBQueryErrors.WithLabelValues(database, operation).Inc()
	}
}

// RecordHTTPRequest records a served request.
func RecordHTTPRequest(route string, code int) {
	DefaultMetrics.HTTPRequests.WithLabelValues(route, statusText(code)).Inc()
}

func statusText(code int) string {
	switch {
	case code >= 500:
		return "5xx"
	case code >= 400:
		return "4xx"
	case code >= 300:
		return "3xx"
	default:
		return "2xx"
	}
}
