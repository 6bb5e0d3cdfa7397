package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/no-abramov/todoapi/pkg/logger"
)

const unmatchedRoute = "unmatched"

type metrics struct {
	requests *prometheus.CounterVec
	duration *prometheus.HistogramVec
	inFlight prometheus.Gauge
}

func newMetrics(reg prometheus.Registerer) *metrics {
	m := metrics{
		requests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "todoapi",
				Name:      "http_requests_total",
				Help:      "Total number of HTTP requests",
			},
			[]string{"method", "route", "status"},
		),
		duration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "todoapi",
				Name:      "http_request_duration_seconds",
				Help:      "Duration of HTTP requests in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"method", "route"},
		),
		inFlight: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: "todoapi",
				Name:      "http_in_flight_requests",
				Help:      "Current number of in-flight HTTP requests",
			},
		),
	}
	reg.MustRegister(m.requests, m.duration, m.inFlight)

	return &m
}

// routeLabel returns the mux path template serving r, so that ids do not
// blow up label cardinality.
func (api *API) routeLabel(r *http.Request) string {
	var match mux.RouteMatch
	if !api.r.Match(r, &match) || match.Route == nil {
		return unmatchedRoute
	}

	tpl, err := match.Route.GetPathTemplate()
	if err != nil {
		return unmatchedRoute
	}
	return tpl
}

func (api *API) metricsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		api.metrics.inFlight.Inc()
		defer api.metrics.inFlight.Dec()

		route := api.routeLabel(r)
		start := time.Now()
		lw := logger.New(w)

		next.ServeHTTP(lw, r)

		status := strconv.Itoa(lw.Status())
		api.metrics.requests.WithLabelValues(r.Method, route, status).Inc()
		api.metrics.duration.WithLabelValues(r.Method, route).Observe(time.Since(start).Seconds())
	})
}
