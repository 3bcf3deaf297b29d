package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Registry holds the application-specific Prometheus collectors.
var Registry = prometheus.NewRegistry()

var (
	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "choosewine",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests handled.",
		},
		[]string{"method", "route", "status"},
	)

	httpDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "choosewine",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "Duration of HTTP requests.",
			Buckets:   prometheus.ExponentialBuckets(0.005, 2, 10), // 5ms to ~5s
		},
		[]string{"method", "route"},
	)

	ratingRecomputes = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "choosewine",
			Subsystem: "ratings",
			Name:      "recomputes_total",
			Help:      "Wine aggregate recomputations by triggering mutation and outcome.",
		},
		[]string{"trigger", "outcome"},
	)

	recommendationCalls = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "choosewine",
			Subsystem: "recommendations",
			Name:      "upstream_calls_total",
			Help:      "Calls to the recommendation service by outcome.",
		},
		[]string{"outcome"},
	)

	recommendationDropped = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "choosewine",
			Subsystem: "recommendations",
			Name:      "dropped_ids_total",
			Help:      "Recommended wine IDs that no longer resolve to a wine.",
		},
	)
)

func init() {
	Registry.MustRegister(
		httpRequests,
		httpDuration,
		ratingRecomputes,
		recommendationCalls,
		recommendationDropped,
	)
}

// Handler exposes the registry in the Prometheus text format.
func Handler() http.Handler {
	return promhttp.HandlerFor(Registry, promhttp.HandlerOpts{})
}

// InstrumentHTTP records request counts and latency keyed by chi route pattern,
// which keeps label cardinality bounded.
func InstrumentHTTP(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		route := "unmatched"
		if rctx := chi.RouteContext(r.Context()); rctx != nil {
			if pattern := rctx.RoutePattern(); pattern != "" {
				route = pattern
			}
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		httpRequests.WithLabelValues(r.Method, route, strconv.Itoa(status)).Inc()
		httpDuration.WithLabelValues(r.Method, route).Observe(time.Since(start).Seconds())
	})
}

// RecordRecompute counts a rating aggregate recomputation.
func RecordRecompute(trigger string, err error) {
	ratingRecomputes.WithLabelValues(trigger, outcome(err)).Inc()
}

// RecordRecommendationCall counts a recommendation service call.
func RecordRecommendationCall(err error) {
	recommendationCalls.WithLabelValues(outcome(err)).Inc()
}

// RecordDroppedRecommendations counts unresolved recommended IDs.
func RecordDroppedRecommendations(n int) {
	if n > 0 {
		recommendationDropped.Add(float64(n))
	}
}

// RegisterPoolStats exports connection pool gauges read from stats on every
// scrape. It must be called at most once per process.
func RegisterPoolStats(stats func() *pgxpool.Stat) {
	gauge := func(name, help string, read func(*pgxpool.Stat) float64) prometheus.Collector {
		return prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: "choosewine",
			Subsystem: "db_pool",
			Name:      name,
			Help:      help,
		}, func() float64 {
			st := stats()
			if st == nil {
				return 0
			}
			return read(st)
		})
	}
	Registry.MustRegister(
		gauge("total_conns", "Connections currently open.", func(st *pgxpool.Stat) float64 { return float64(st.TotalConns()) }),
		gauge("acquired_conns", "Connections checked out of the pool.", func(st *pgxpool.Stat) float64 { return float64(st.AcquiredConns()) }),
		gauge("idle_conns", "Idle connections in the pool.", func(st *pgxpool.Stat) float64 { return float64(st.IdleConns()) }),
		gauge("max_conns", "Configured pool size.", func(st *pgxpool.Stat) float64 { return float64(st.MaxConns()) }),
	)
}

func outcome(err error) string {
	if err != nil {
		return "error"
	}
	return "success"
}
