// Package prometheus exposes evaluation telemetry through a private registry.
package prometheus

import (
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/turtacn/kgeval/internal/infrastructure/monitoring/logging"
)

// MetricsCollector registers metrics on its own registry.
type MetricsCollector interface {
	RegisterCounter(name, help string, labels ...string) CounterVec
	RegisterGauge(name, help string, labels ...string) GaugeVec
	RegisterHistogram(name, help string, buckets []float64, labels ...string) HistogramVec
	Handler() http.Handler
	Gatherer() prometheus.Gatherer
	WriteToTextfile(path string) error
}

// CounterVec wraps prometheus.CounterVec.
type CounterVec interface {
	WithLabelValues(lvs ...string) Counter
}

// Counter wraps prometheus.Counter.
type Counter interface {
	Inc()
	Add(delta float64)
}

// GaugeVec wraps prometheus.GaugeVec.
type GaugeVec interface {
	WithLabelValues(lvs ...string) Gauge
	Reset()
}

// Gauge wraps prometheus.Gauge.
type Gauge interface {
	Set(value float64)
}

// HistogramVec wraps prometheus.HistogramVec.
type HistogramVec interface {
	WithLabelValues(lvs ...string) Histogram
}

// Histogram wraps prometheus.Observer.
type Histogram interface {
	Observe(value float64)
}

// CollectorConfig holds configuration for the collector.
type CollectorConfig struct {
	Namespace               string
	Subsystem               string
	EnableProcessMetrics    bool
	EnableGoMetrics         bool
	DefaultHistogramBuckets []float64
	ConstLabels             map[string]string
}

type prometheusCollector struct {
	registry          *prometheus.Registry
	config            CollectorConfig
	registeredMetrics map[string]prometheus.Collector
	mu                sync.Mutex
	logger            logging.Logger
}

// NewMetricsCollector creates a collector with a fresh registry.
func NewMetricsCollector(cfg CollectorConfig, logger logging.Logger) (MetricsCollector, error) {
	if cfg.Namespace == "" {
		return nil, fmt.Errorf("namespace is required")
	}
	if logger == nil {
		logger = logging.NewNopLogger()
	}

	registry := prometheus.NewRegistry()
	if cfg.EnableProcessMetrics {
		registry.MustRegister(prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{Namespace: cfg.Namespace}))
	}
	if cfg.EnableGoMetrics {
		registry.MustRegister(prometheus.NewGoCollector())
	}
	if cfg.DefaultHistogramBuckets == nil {
		cfg.DefaultHistogramBuckets = prometheus.DefBuckets
	}

	return &prometheusCollector{
		registry:          registry,
		config:            cfg,
		registeredMetrics: make(map[string]prometheus.Collector),
		logger:            logger,
	}, nil
}

func (c *prometheusCollector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{EnableOpenMetrics: true})
}

func (c *prometheusCollector) Gatherer() prometheus.Gatherer { return c.registry }

// WriteToTextfile writes the registry in node-exporter textfile format.
func (c *prometheusCollector) WriteToTextfile(path string) error {
	if err := prometheus.WriteToTextfile(path, c.registry); err != nil {
		return fmt.Errorf("write metrics textfile %s: %w", path, err)
	}
	return nil
}

// vecOpts fills the identity fields shared by every metric family.
func (c *prometheusCollector) vecOpts(name, help string) prometheus.Opts {
	return prometheus.Opts{
		Namespace:   c.config.Namespace,
		Subsystem:   c.config.Subsystem,
		Name:        name,
		Help:        help,
		ConstLabels: c.config.ConstLabels,
	}
}

// lookupOrRegister returns the vector already registered under name, or
// registers fresh. ok is false when registration failed or the existing
// family has a different type.
func lookupOrRegister[V prometheus.Collector](c *prometheusCollector, kind, name string, fresh V) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	var zero V
	fq := prometheus.BuildFQName(c.config.Namespace, c.config.Subsystem, name)
	if existing, found := c.registeredMetrics[fq]; found {
		v, ok := existing.(V)
		if !ok {
			c.logger.Warn("metric type mismatch", logging.String("name", fq), logging.String("type", kind))
		}
		return v, ok
	}
	if err := c.registry.Register(fresh); err != nil {
		c.logger.Error("failed to register "+kind, logging.String("name", fq), logging.Err(err))
		return zero, false
	}
	c.registeredMetrics[fq] = fresh
	return fresh, true
}

func (c *prometheusCollector) RegisterCounter(name, help string, labels ...string) CounterVec {
	v, ok := lookupOrRegister(c, "counter", name,
		prometheus.NewCounterVec(prometheus.CounterOpts(c.vecOpts(name, help)), labels))
	if !ok {
		return noopCounterVec{}
	}
	return &promCounterVec{vec: v}
}

func (c *prometheusCollector) RegisterGauge(name, help string, labels ...string) GaugeVec {
	v, ok := lookupOrRegister(c, "gauge", name,
		prometheus.NewGaugeVec(prometheus.GaugeOpts(c.vecOpts(name, help)), labels))
	if !ok {
		return noopGaugeVec{}
	}
	return &promGaugeVec{vec: v}
}

func (c *prometheusCollector) RegisterHistogram(name, help string, buckets []float64, labels ...string) HistogramVec {
	if buckets == nil {
		buckets = c.config.DefaultHistogramBuckets
	}
	o := c.vecOpts(name, help)
	v, ok := lookupOrRegister(c, "histogram", name, prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace:   o.Namespace,
		Subsystem:   o.Subsystem,
		Name:        o.Name,
		Help:        o.Help,
		ConstLabels: o.ConstLabels,
		Buckets:     buckets,
	}, labels))
	if !ok {
		return noopHistogramVec{}
	}
	return &promHistogramVec{vec: v}
}

// Wrappers

type promCounterVec struct{ vec *prometheus.CounterVec }

func (v *promCounterVec) WithLabelValues(lvs ...string) Counter { return v.vec.WithLabelValues(lvs...) }

type promGaugeVec struct{ vec *prometheus.GaugeVec }

func (v *promGaugeVec) WithLabelValues(lvs ...string) Gauge { return v.vec.WithLabelValues(lvs...) }
func (v *promGaugeVec) Reset()                              { v.vec.Reset() }

type promHistogramVec struct{ vec *prometheus.HistogramVec }

func (v *promHistogramVec) WithLabelValues(lvs ...string) Histogram {
	return v.vec.WithLabelValues(lvs...)
}

// No-op implementations

type noopCounterVec struct{}

func (noopCounterVec) WithLabelValues(...string) Counter { return noopMetric{} }

type noopGaugeVec struct{}

func (noopGaugeVec) WithLabelValues(...string) Gauge { return noopMetric{} }
func (noopGaugeVec) Reset()                          {}

type noopHistogramVec struct{}

func (noopHistogramVec) WithLabelValues(...string) Histogram { return noopMetric{} }

type noopMetric struct{}

func (noopMetric) Inc()            {}
func (noopMetric) Add(float64)     {}
func (noopMetric) Set(float64)     {}
func (noopMetric) Observe(float64) {}

// Timer observes the elapsed time into a histogram.
type Timer struct {
	histogram Histogram
	start     time.Time
}

func NewTimer(histogram Histogram) *Timer {
	return &Timer{histogram: histogram, start: time.Now()}
}

func (t *Timer) ObserveDuration() {
	if t.histogram == nil {
		return
	}
	t.histogram.Observe(time.Since(t.start).Seconds())
}
