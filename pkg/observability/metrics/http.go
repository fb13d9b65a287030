package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const unmatchedRoute = "unmatched"

var (
	requestLabels = []string{"method", "route", "status"}

	requestSeconds = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "offlinequeue_management_request_duration_seconds",
		Help:    "Time spent serving management API requests.",
		Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5},
	}, requestLabels)

	requestsServed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "offlinequeue_management_requests_total",
		Help: "Management API requests served.",
	}, requestLabels)

	requestsActive = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "offlinequeue_management_requests_in_flight",
		Help: "Management API requests currently being served.",
	})
)

// httpCollectors are registered on every Registry.
func httpCollectors() []prometheus.Collector {
	return []prometheus.Collector{requestSeconds, requestsServed, requestsActive}
}

// ObserveRequest records one served request. route is the matched route
// template; an empty route is reported as "unmatched".
func ObserveRequest(method, route string, status int, elapsed time.Duration) {
	if route == "" {
		route = unmatchedRoute
	}
	labels := prometheus.Labels{"method": method, "route": route, "status": strconv.Itoa(status)}
	requestSeconds.With(labels).Observe(elapsed.Seconds())
	requestsServed.With(labels).Inc()
}

// TrackInFlight raises the in-flight gauge and returns the call that lowers it.
func TrackInFlight() (done func()) {
	requestsActive.Inc()
	return requestsActive.Dec
}
