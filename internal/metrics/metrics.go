// AngelaMos | 2026
// metrics.go

package metrics

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "eternal_vault"

// Collector owns a private registry with HTTP and coin economy series.
type Collector struct {
	registry *prometheus.Registry

	httpInFlight prometheus.Gauge
	httpRequests *prometheus.CounterVec
	httpDuration *prometheus.HistogramVec

	capsulesCreated *prometheus.CounterVec
	coinsDebited    *prometheus.CounterVec
	rewardsCredited prometheus.Counter
	rewardCoins     prometheus.Counter
	rewardFailures  prometheus.Counter
	notifications   *prometheus.CounterVec
}

func NewCollector() *Collector {
	c := &Collector{
		registry: prometheus.NewRegistry(),

		httpInFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "inflight_requests",
			Help:      "Current number of in-flight HTTP requests.",
		}),
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests handled.",
		}, []string{"method", "route", "status"}),
		httpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "Duration of HTTP requests.",
			Buckets:   prometheus.ExponentialBuckets(0.005, 2, 10),
		}, []string{"method", "route"}),

		capsulesCreated: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "capsules",
			Name:      "created_total",
			Help:      "Capsules created, by type.",
		}, []string{"kind"}),
		coinsDebited: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "coins",
			Name:      "debited_total",
			Help:      "Coins charged to accounts, by reason.",
		}, []string{"reason"}),
		rewardsCredited: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "rewards",
			Name:      "credited_total",
			Help:      "View rewards credited to creators.",
		}),
		rewardCoins: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "coins",
			Name:      "rewarded_total",
			Help:      "Coins paid out as view rewards.",
		}),
		rewardFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "rewards",
			Name:      "failures_total",
			Help:      "View rewards that could not be credited.",
		}),
		notifications: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "notify",
			Name:      "notices_total",
			Help:      "Unlock notices attempted, by result.",
		}, []string{"result"}),
	}

	c.registry.MustRegister(
		c.httpInFlight,
		c.httpRequests,
		c.httpDuration,
		c.capsulesCreated,
		c.coinsDebited,
		c.rewardsCredited,
		c.rewardCoins,
		c.rewardFailures,
		c.notifications,
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		collectors.NewGoCollector(),
	)

	return c
}

func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}

// Middleware records request metrics labelled by chi route pattern so that
// path parameters do not explode cardinality.
func (c *Collector) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/metrics" {
			next.ServeHTTP(w, r)
			return
		}

		ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()

		c.httpInFlight.Inc()
		defer c.httpInFlight.Dec()

		next.ServeHTTP(ww, r)

		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		route := routePattern(r)
		method := strings.ToUpper(r.Method)

		c.httpRequests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
		c.httpDuration.WithLabelValues(method, route).Observe(time.Since(start).Seconds())
	})
}

func routePattern(r *http.Request) string {
	if rctx := chi.RouteContext(r.Context()); rctx != nil {
		if pattern := rctx.RoutePattern(); pattern != "" {
			return pattern
		}
	}
	return "unmatched"
}

func (c *Collector) CapsuleCreated(kind string) {
	c.capsulesCreated.WithLabelValues(kind).Inc()
}

func (c *Collector) CoinsDebited(reason string, amount int) {
	c.coinsDebited.WithLabelValues(reason).Add(float64(amount))
}

func (c *Collector) RewardCredited(amount int) {
	c.rewardsCredited.Inc()
	c.rewardCoins.Add(float64(amount))
}

func (c *Collector) RewardFailed() {
	c.rewardFailures.Inc()
}

func (c *Collector) NotificationSent(result string) {
	c.notifications.WithLabelValues(result).Inc()
}
