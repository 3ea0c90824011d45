package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	BuildInfo = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "sdp_ingest_gateway_build_info",
			Help: "Build information of the ingest gateway",
		},
		[]string{"version", "commit", "date"},
	)

	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sdp_ingest_gateway_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "sdp_ingest_gateway_http_request_duration_seconds",
			Help:    "Duration of HTTP requests in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	HTTPRequestsInFlight = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "sdp_ingest_gateway_http_requests_in_flight",
			Help: "Number of HTTP requests currently being processed",
		},
	)

	DecodesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sdp_ingest_gateway_decodes_total",
			Help: "Total number of file decode attempts",
		},
		[]string{"format", "status"},
	)

	DecodeDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "sdp_ingest_gateway_decode_duration_seconds",
			Help:    "Duration of file decodes in seconds",
			Buckets: prometheus.ExponentialBuckets(0.01, 2, 12), // 10ms to ~41s
		},
	)

	UploadsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sdp_ingest_gateway_uploads_total",
			Help: "Total number of ingestion uploads",
		},
		[]string{"environment", "status"},
	)

	UploadBytes = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "sdp_ingest_gateway_upload_bytes_total",
			Help: "Total bytes of uploaded source files",
		},
	)

	WarehouseQueriesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sdp_ingest_gateway_warehouse_queries_total",
			Help: "Total number of warehouse schema and load operations",
		},
		[]string{"operation", "status"},
	)

	WarehouseQueryDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "sdp_ingest_gateway_warehouse_query_duration_seconds",
			Help:    "Duration of warehouse operations in seconds",
			Buckets: prometheus.ExponentialBuckets(0.01, 2, 12), // 10ms to ~41s
		},
	)

	PipelineRunsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sdp_ingest_gateway_pipeline_runs_total",
			Help: "Total number of workflow pipeline triggers",
		},
		[]string{"status"},
	)
)

// Middleware returns a chi middleware that records HTTP metrics.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		HTTPRequestsInFlight.Inc()
		defer HTTPRequestsInFlight.Dec()

		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		// Use the route pattern if available, otherwise use the path
		path := chi.RouteContext(r.Context()).RoutePattern()
		if path == "" {
			path = r.URL.Path
		}

		status := strconv.Itoa(ww.Status())
		duration := time.Since(start).Seconds()

		HTTPRequestsTotal.WithLabelValues(r.Method, path, status).Inc()
		HTTPRequestDuration.WithLabelValues(r.Method, path).Observe(duration)
	})
}

// RecordDecode records metrics for one file decode attempt.
func RecordDecode(format string, duration time.Duration, err error) {
	status := "success"
	if err != nil {
		status = "error"
	}
	DecodesTotal.WithLabelValues(format, status).Inc()
	DecodeDuration.Observe(duration.Seconds())
}

// RecordUpload records metrics for one ingestion upload.
func RecordUpload(environment string, sourceBytes int, err error) {
	status := "success"
	if err != nil {
		status = "error"
	}
	UploadsTotal.WithLabelValues(environment, status).Inc()
	if err == nil && sourceBytes > 0 {
		UploadBytes.Add(float64(sourceBytes))
	}
}

// RecordWarehouseQuery records metrics for a schema fetch or load.
func RecordWarehouseQuery(operation string, duration time.Duration, err error) {
	status := "success"
	if err != nil {
		status = "error"
	}
	WarehouseQueriesTotal.WithLabelValues(operation, status).Inc()
	WarehouseQueryDuration.Observe(duration.Seconds())
}

// RecordPipelineRun records metrics for a workflow trigger.
func RecordPipelineRun(err error) {
	status := "success"
	if err != nil {
		status = "error"
	}
	PipelineRunsTotal.WithLabelValues(status).Inc()
}
