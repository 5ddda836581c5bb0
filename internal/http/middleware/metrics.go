package middleware

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/pribylovaa/nihongo-study/pkg/metrics"
)

// Metrics считает запросы и их длительность по шаблону маршрута chi.
// reg == nil - метрики создаются, но нигде не регистрируются.
// Повторный вызов с тем же reg использует уже зарегистрированные коллекторы.
func Metrics(reg prometheus.Registerer) Middleware {
	requests := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "auth",
		Name:      "http_requests_total",
		Help:      "HTTP requests by route and status.",
	}, []string{"method", "route", "status"})

	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "auth",
		Name:      "http_request_duration_seconds",
		Help:      "HTTP request latency by route.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"method", "route"})

	var errReq, errDur error
	requests, errReq = metrics.Register(reg, requests)
	duration, errDur = metrics.Register(reg, duration)
	if err := errors.Join(errReq, errDur); err != nil {
		slog.Default().Warn("http_metrics_register_failed", slog.String("err", err.Error()))
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			sw := newStatusWriter(w)
			start := time.Now()
			next.ServeHTTP(sw, r)

			route := routePattern(r)
			requests.WithLabelValues(r.Method, route, strconv.Itoa(sw.Status())).Inc()
			duration.WithLabelValues(r.Method, route).Observe(time.Since(start).Seconds())
		})
	}
}

// routePattern берёт шаблон маршрута, чтобы не раздувать кардинальность путями.
func routePattern(r *http.Request) string {
	if rc := chi.RouteContext(r.Context()); rc != nil {
		if p := rc.RoutePattern(); p != "" {
			return p
		}
	}
	return "unmatched"
}
