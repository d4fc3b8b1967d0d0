package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Metrics struct {
	registry      *prometheus.Registry
	checkouts     *prometheus.CounterVec
	otps          *prometheus.CounterVec
	gateway       *prometheus.HistogramVec
	notifications *prometheus.CounterVec
	requests      *prometheus.HistogramVec
}

func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		checkouts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "storefront",
			Name:      "checkouts_total",
			Help:      "Checkouts by payment method and outcome.",
		}, []string{"method", "outcome"}),
		otps: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "storefront",
			Name:      "otp_submissions_total",
			Help:      "OTP submissions by outcome.",
		}, []string{"outcome"}),
		gateway: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "storefront",
			Name:      "gateway_request_duration_seconds",
			Help:      "Payment gateway round trips.",
			Buckets:   []float64{.05, .1, .25, .5, 1, 2.5, 5, 10, 30},
		}, []string{"op", "result"}),
		notifications: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "storefront",
			Name:      "notifications_total",
			Help:      "Notification send attempts by channel and result.",
		}, []string{"channel", "result"}),
		requests: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "storefront",
			Name:      "http_request_duration_seconds",
			Help:      "HTTP requests by route and status.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route", "status"}),
	}
	m.registry.MustRegister(
		m.checkouts, m.otps, m.gateway, m.notifications, m.requests,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

func (m *Metrics) ObserveCheckout(method, outcome string) {
	m.checkouts.WithLabelValues(method, outcome).Inc()
}

func (m *Metrics) ObserveOTP(outcome string) {
	m.otps.WithLabelValues(outcome).Inc()
}

func (m *Metrics) ObserveGateway(op, result string, d time.Duration) {
	m.gateway.WithLabelValues(op, result).Observe(d.Seconds())
}

func (m *Metrics) ObserveNotification(channel, result string) {
	m.notifications.WithLabelValues(channel, result).Inc()
}

func (m *Metrics) ObserveRequest(method, route, status string, d time.Duration) {
	m.requests.WithLabelValues(method, route, status).Observe(d.Seconds())
}

func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}
