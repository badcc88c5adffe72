package metrics

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "droneroutes"

var (
	httpRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "http",
		Name:      "requests_total",
		Help:      "Total HTTP requests processed",
	}, []string{"method", "path", "status"})

	DispatchRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "dispatch",
		Name:      "requests_total",
		Help:      "Dispatch submissions by outcome",
	}, []string{"outcome"})

	DispatchDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "dispatch",
		Name:      "duration_seconds",
		Help:      "Time from submission to applied render, planner call included",
		Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
	})

	// EntriesSkipped counts malformed plan entries the parser dropped.
	EntriesSkipped = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "plan",
		Name:      "entries_skipped_total",
		Help:      "Malformed drone paths, deliveries and points dropped while parsing",
	}, []string{"kind"})

	Overlays = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "map",
		Name:      "overlays",
		Help:      "Overlays currently drawn on the map view",
	}, []string{"kind"})
)

// Middleware records a request counter for every route gin matched.
func Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		path := c.FullPath()
		if path == "" {
			path = "unmatched"
		}
		httpRequestsTotal.WithLabelValues(c.Request.Method, path, strconv.Itoa(c.Writer.Status())).Inc()
	}
}

// Handler serves the default registry for /metrics.
func Handler() gin.HandlerFunc {
	return gin.WrapH(promhttp.Handler())
}

func ObserveDispatch(outcome string, elapsed time.Duration) {
	DispatchRequests.WithLabelValues(outcome).Inc()
	DispatchDuration.Observe(elapsed.Seconds())
}

func RecordSkipped(dronePaths, deliveries, points int) {
	if dronePaths > 0 {
		EntriesSkipped.WithLabelValues("drone_path").Add(float64(dronePaths))
	}
	if deliveries > 0 {
		EntriesSkipped.WithLabelValues("delivery").Add(float64(deliveries))
	}
	if points > 0 {
		EntriesSkipped.WithLabelValues("point").Add(float64(points))
	}
}

func SetOverlays(lines, markers int) {
	Overlays.WithLabelValues("line").Set(float64(lines))
	Overlays.WithLabelValues("marker").Set(float64(markers))
}
