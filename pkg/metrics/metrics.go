package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all application metrics
type Metrics struct {
	// Availability cache metrics
	CacheHits           prometheus.Counter
	CacheMisses         prometheus.Counter
	CacheInvalidations  prometheus.Counter
	FetchesCoalesced    prometheus.Counter
	StaleResultsDropped prometheus.Counter

	// Booking metrics
	Bookings         *prometheus.CounterVec
	BookingConflicts prometheus.Counter

	// Refresh metrics
	PollCycles     prometheus.Counter
	PollFailures   prometheus.Counter
	RefreshSignals prometheus.Counter

	// Gateway metrics
	GatewayCalls   *prometheus.CounterVec
	GatewayLatency *prometheus.HistogramVec
}

// NewMetrics creates and registers all application metrics
func NewMetrics(namespace string) *Metrics {
	return &Metrics{
		CacheHits: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "availability_cache_hits_total",
			Help:      "Total number of availability cache hits",
		}),
		CacheMisses: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "availability_cache_misses_total",
			Help:      "Total number of availability cache misses",
		}),
		CacheInvalidations: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "availability_cache_invalidations_total",
			Help:      "Total number of wholesale cache invalidations",
		}),
		FetchesCoalesced: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "availability_fetches_coalesced_total",
			Help:      "Number of fetch requests absorbed by the debounce window",
		}),
		StaleResultsDropped: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "availability_stale_results_dropped_total",
			Help:      "Superseded fetch results discarded instead of applied",
		}),
		Bookings: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "bookings_total",
			Help:      "Booking attempts by outcome",
		}, []string{"outcome"}),
		BookingConflicts: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "booking_conflicts_total",
			Help:      "Bookings rejected by the backend with a conflict status",
		}),
		PollCycles: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "refresh_poll_cycles_total",
			Help:      "Background availability poll cycles",
		}),
		PollFailures: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "refresh_poll_failures_total",
			Help:      "Background poll cycles that failed",
		}),
		RefreshSignals: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "refresh_signals_total",
			Help:      "External refresh signals received",
		}),
		GatewayCalls: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "gateway_calls_total",
			Help:      "Calls to the appointment backend",
		}, []string{"operation", "status"}),
		GatewayLatency: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "gateway_call_duration_seconds",
			Help:      "Duration of appointment backend calls",
			Buckets:   []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5},
		}, []string{"operation"}),
	}
}
