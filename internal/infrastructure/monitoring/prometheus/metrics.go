package prometheus

import (
	"strconv"
	"time"

	"github.com/turtacn/kgeval/internal/domain/scoring"
)

// Namespace prefixes every kgeval metric.
const Namespace = "kgeval"

// Default Buckets
var (
	DefaultBatchDurationBuckets = []float64{.001, .005, .01, .05, .1, .5, 1, 5, 10, 30}
	DefaultHTTPDurationBuckets  = []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10}
	DefaultRPCDurationBuckets   = []float64{.0005, .001, .0025, .005, .01, .025, .05, .1, .5, 1}
)

// EvalMetrics holds the evaluation metrics.  It is a scoring.Observer.
type EvalMetrics struct {
	TriplesScored        CounterVec
	BatchScoreDuration   HistogramVec
	CacheRequests        CounterVec
	RelationBestAccuracy GaugeVec
	RelationBestMargin   GaugeVec
	RunAccuracy          GaugeVec
	RelationsSkipped     CounterVec
	RunsCompleted        CounterVec

	HTTPRequestsTotal   CounterVec
	HTTPRequestDuration HistogramVec

	RPCsHandled     CounterVec
	RPCHandleLength HistogramVec
}

var _ scoring.Observer = (*EvalMetrics)(nil)

// NewEvalMetrics registers all metrics on collector.
func NewEvalMetrics(collector MetricsCollector) *EvalMetrics {
	m := &EvalMetrics{}

	m.TriplesScored = collector.RegisterCounter("triples_scored_total", "Examples scored", "label")
	m.BatchScoreDuration = collector.RegisterHistogram("batch_score_duration_seconds", "Duration of one scoring batch", DefaultBatchDurationBuckets)
	m.CacheRequests = collector.RegisterCounter("cache_requests_total", "Distance cache lookups", "result")
	m.RelationBestAccuracy = collector.RegisterGauge("relation_best_accuracy", "Best accuracy of a relation in the last run", "relation")
	m.RelationBestMargin = collector.RegisterGauge("relation_best_margin", "Chosen margin of a relation in the last run", "relation")
	m.RunAccuracy = collector.RegisterGauge("run_accuracy", "Overall accuracy of the last run", "dataset", "net_name")
	m.RelationsSkipped = collector.RegisterCounter("relations_skipped_total", "Relations without validation examples")
	m.RunsCompleted = collector.RegisterCounter("runs_completed_total", "Completed validation runs", "dataset")

	m.HTTPRequestsTotal = collector.RegisterCounter("http_requests_total", "Total HTTP requests", "method", "path", "status_code")
	m.HTTPRequestDuration = collector.RegisterHistogram("http_request_duration_seconds", "HTTP request duration", DefaultHTTPDurationBuckets, "method", "path")

	m.RPCsHandled = collector.RegisterCounter("grpc_handled_total", "Embedding RPCs served", "method", "code")
	m.RPCHandleLength = collector.RegisterHistogram("grpc_handling_seconds", "Embedding RPC latency", DefaultRPCDurationBuckets, "method")

	return m
}

// BatchScored implements scoring.Observer.
func (m *EvalMetrics) BatchScored(size int, elapsed time.Duration) {
	m.BatchScoreDuration.WithLabelValues().Observe(elapsed.Seconds())
	m.TriplesScored.WithLabelValues("all").Add(float64(size))
}

// CacheLookup implements scoring.Observer.
func (m *EvalMetrics) CacheLookup(hit bool) {
	result := "miss"
	if hit {
		result = "hit"
	}
	m.CacheRequests.WithLabelValues(result).Inc()
}

// ExamplesLoaded counts examples by label, positive or negative.
func (m *EvalMetrics) ExamplesLoaded(positive, negative int) {
	m.TriplesScored.WithLabelValues("positive").Add(float64(positive))
	m.TriplesScored.WithLabelValues("negative").Add(float64(negative))
}

// RelationResult records the chosen margin of one relation.
func (m *EvalMetrics) RelationResult(relation string, margin int, accuracy float64) {
	m.RelationBestAccuracy.WithLabelValues(relation).Set(accuracy)
	m.RelationBestMargin.WithLabelValues(relation).Set(float64(margin))
}

// RunResult records the overall outcome of a run.
func (m *EvalMetrics) RunResult(dataset, netName string, accuracy float64, skipped int) {
	m.RunAccuracy.WithLabelValues(dataset, netName).Set(accuracy)
	m.RelationsSkipped.WithLabelValues().Add(float64(skipped))
	m.RunsCompleted.WithLabelValues(dataset).Inc()
}

// ResetRelations clears per-relation gauges before a new run.
func (m *EvalMetrics) ResetRelations() {
	m.RelationBestAccuracy.Reset()
	m.RelationBestMargin.Reset()
}

// RecordHTTPRequest records one served HTTP request.
func (m *EvalMetrics) RecordHTTPRequest(method, path string, statusCode int, duration time.Duration) {
	m.HTTPRequestsTotal.WithLabelValues(method, path, strconv.Itoa(statusCode)).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
}

// RecordRPC records one served embedding RPC.
func (m *EvalMetrics) RecordRPC(method, code string, elapsed time.Duration) {
	m.RPCsHandled.WithLabelValues(method, code).Inc()
	m.RPCHandleLength.WithLabelValues(method).Observe(elapsed.Seconds())
}
