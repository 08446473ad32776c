package observability

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	registry *prometheus.Registry

	// HTTP request rate by route template and status class.
	HTTPRequestsTotal *prometheus.CounterVec

	// HTTP request latency per route template.
	HTTPRequestDuration *prometheus.HistogramVec

	// Concurrent requests in flight.
	HTTPRequestsInFlight prometheus.Gauge

	// Requests rejected by the inbound token bucket.
	RateLimitDeniedTotal prometheus.Counter

	// Provider calls by endpoint and status. status=offline means the call was refused locally.
	ProviderCallsTotal *prometheus.CounterVec

	// Provider latency per request. Watch for: p95 > 2s (upstream degradation).
	ProviderDuration *prometheus.HistogramVec

	// Provider retry attempts by endpoint. High values = unstable upstream.
	ProviderRetriesTotal *prometheus.CounterVec

	// Provider failures by client.ErrorCategory.
	ProviderErrorsTotal *prometheus.CounterVec

	// Location loads by location kind and outcome (loaded, network, gps, general).
	LocationLoadsTotal *prometheus.CounterVec

	// Location load latency including geolocation.
	LocationLoadDuration *prometheus.HistogramVec

	// Forecast fetches that failed after a successful weather load.
	ForecastDroppedTotal prometheus.Counter

	// Automatic retries fired when connectivity came back.
	ReconnectRetriesTotal prometheus.Counter

	// Number of saved favorites.
	FavoritesCount prometheus.Gauge

	// Circuit breaker state per component (0 closed, 1 open, 2 half-open).
	CircuitBreakerState *prometheus.GaugeVec

	// Circuit breaker transitions.
	CircuitBreakerTransitionsTotal *prometheus.CounterVec
)

func init() {
	registry = prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		collectors.NewGoCollector(),
	)

	HTTPRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "httpRequestsTotal", Help: "Total number of HTTP requests"},
		[]string{"method", "route", "statusCode"},
	)
	HTTPRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "httpRequestDurationSeconds",
			Help:    "HTTP request latency in seconds (per request)",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route"},
	)
	HTTPRequestsInFlight = prometheus.NewGauge(
		prometheus.GaugeOpts{Name: "httpRequestsInFlight", Help: "Number of HTTP requests currently being served"},
	)
	RateLimitDeniedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{Name: "rateLimitDeniedTotal", Help: "Requests denied by the inbound rate limiter"},
	)
	ProviderCallsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "weatherApiCallsTotal", Help: "Total number of weather provider calls"},
		[]string{"endpoint", "status"},
	)
	ProviderDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "weatherApiDurationSeconds",
			Help:    "Weather provider latency in seconds (per request)",
			Buckets: []float64{.1, .25, .5, 1, 2.5, 5, 10},
		},
		[]string{"endpoint", "status"},
	)
	ProviderRetriesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "weatherApiRetriesTotal", Help: "Total number of retry attempts for weather provider calls"},
		[]string{"endpoint"},
	)
	ProviderErrorsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "weatherApiErrorsTotal", Help: "Weather provider failures by category"},
		[]string{"category"},
	)
	LocationLoadsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "locationLoadsTotal", Help: "Location loads by kind and outcome"},
		[]string{"kind", "outcome"},
	)
	LocationLoadDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "locationLoadDurationSeconds",
			Help:    "Location load latency in seconds, geolocation included",
			Buckets: []float64{.1, .25, .5, 1, 2.5, 5, 10, 15},
		},
		[]string{"kind"},
	)
	ForecastDroppedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{Name: "forecastDroppedTotal", Help: "Forecast fetches that failed after weather loaded"},
	)
	ReconnectRetriesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{Name: "reconnectRetriesTotal", Help: "Automatic retries triggered by connectivity restore"},
	)
	FavoritesCount = prometheus.NewGauge(
		prometheus.GaugeOpts{Name: "favoritesCount", Help: "Number of saved favorite cities"},
	)
	CircuitBreakerState = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{Name: "circuitBreakerState", Help: "Circuit breaker state (0 closed, 1 open, 2 half-open)"},
		[]string{"component"},
	)
	CircuitBreakerTransitionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "circuitBreakerTransitionsTotal", Help: "Circuit breaker state transitions"},
		[]string{"component", "from", "to"},
	)

	registry.MustRegister(
		HTTPRequestsTotal, HTTPRequestDuration, HTTPRequestsInFlight, RateLimitDeniedTotal,
		ProviderCallsTotal, ProviderDuration, ProviderRetriesTotal, ProviderErrorsTotal,
		LocationLoadsTotal, LocationLoadDuration, ForecastDroppedTotal, ReconnectRetriesTotal,
		FavoritesCount,
		CircuitBreakerState, CircuitBreakerTransitionsTotal,
	)
}

// RecordCircuitBreakerTransition records a breaker state change and updates the state gauge.
func RecordCircuitBreakerTransition(component, from, to string, toValue int) {
	CircuitBreakerTransitionsTotal.WithLabelValues(component, from, to).Inc()
	CircuitBreakerState.WithLabelValues(component).Set(float64(toValue))
}

// MetricsHandler returns an http.Handler that serves application and runtime metrics.
func MetricsHandler() http.Handler {
	return promhttp.HandlerFor(registry, promhttp.HandlerOpts{})
}
