package api

import (
	"context"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/dmitrijs2005/rtmp-auth/internal/server/models"
)

// Publish results used as the "result" label.
const (
	ResultOK           = "ok"
	ResultUnauthorized = "unauthorized"
	ResultBlocked      = "blocked"
	ResultAlreadyLive  = "already_live"
	ResultInvalid      = "invalid"
	ResultError        = "error"
)

const snapshotTimeout = 2 * time.Second

// Metrics holds the collectors exported on /metrics. Each Metrics has its own
// registry so several routers can coexist in one process.
type Metrics struct {
	registry  *prometheus.Registry
	publish   *prometheus.CounterVec
	unpublish *prometheus.CounterVec
}

// NewMetrics registers the callback counters and stream gauges. The gauges
// read the state through snapshot on every scrape.
func NewMetrics(snapshot func(ctx context.Context) (*models.State, error)) *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		publish: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "rtmp_auth_publish_total",
			Help: "Publish callbacks by result",
		}, []string{"result"}),
		unpublish: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "rtmp_auth_unpublish_total",
			Help: "Unpublish callbacks by result",
		}, []string{"result"}),
	}

	count := func(filter func(*models.Stream) bool) func() float64 {
		return func() float64 {
			ctx, cancel := context.WithTimeout(context.Background(), snapshotTimeout)
			defer cancel()
			state, err := snapshot(ctx)
			if err != nil {
				return 0
			}
			n := 0
			for _, s := range state.Streams {
				if filter(s) {
					n++
				}
			}
			return float64(n)
		}
	}

	m.registry.MustRegister(
		m.publish,
		m.unpublish,
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Name: "rtmp_auth_streams",
			Help: "Configured streams",
		}, count(func(*models.Stream) bool { return true })),
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Name: "rtmp_auth_active_streams",
			Help: "Streams with a live publisher",
		}, count(func(s *models.Stream) bool { return s.Active })),
	)
	return m
}

func (m *Metrics) observePublish(result string) {
	m.publish.WithLabelValues(result).Inc()
}

func (m *Metrics) observeUnpublish(result string) {
	m.unpublish.WithLabelValues(result).Inc()
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() gin.HandlerFunc {
	return gin.WrapH(promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{}))
}

// Registry exposes the underlying registry, e.g. for tests.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}
