package prometheus

import (
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/turtacn/kgeval/internal/infrastructure/monitoring/logging"
)

func newTestCollector(t *testing.T) MetricsCollector {
	t.Helper()
	c, err := NewMetricsCollector(CollectorConfig{Namespace: "test", Subsystem: "unit"}, logging.NewNopLogger())
	require.NoError(t, err)
	return c
}

func scrapeMetrics(t *testing.T, collector MetricsCollector) string {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	w := httptest.NewRecorder()
	collector.Handler().ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)
	return w.Body.String()
}

// metricValue returns the value of the sample of name whose labels include
// every pair in labels.
func metricValue(t *testing.T, collector MetricsCollector, name string, labels map[string]string) float64 {
	t.Helper()
	families, err := collector.Gatherer().Gather()
	require.NoError(t, err)
	for _, mf := range families {
		if mf.GetName() != name {
			continue
		}
		for _, m := range mf.GetMetric() {
			if !hasLabels(m, labels) {
				continue
			}
			switch {
			case m.Counter != nil:
				return m.GetCounter().GetValue()
			case m.Gauge != nil:
				return m.GetGauge().GetValue()
			case m.Histogram != nil:
				return float64(m.GetHistogram().GetSampleCount())
			}
		}
	}
	t.Fatalf("metric %s%v not found", name, labels)
	return 0
}

func hasLabels(m *dto.Metric, want map[string]string) bool {
	got := make(map[string]string, len(m.GetLabel()))
	for _, lp := range m.GetLabel() {
		got[lp.GetName()] = lp.GetValue()
	}
	for k, v := range want {
		if got[k] != v {
			return false
		}
	}
	return true
}

func TestNewMetricsCollector_EmptyNamespace(t *testing.T) {
	_, err := NewMetricsCollector(CollectorConfig{Subsystem: "unit"}, nil)
	assert.Error(t, err)
}

func TestNewMetricsCollector_WithProcessMetrics(t *testing.T) {
	c, err := NewMetricsCollector(CollectorConfig{Namespace: "test", EnableProcessMetrics: true}, nil)
	require.NoError(t, err)
	assert.Contains(t, scrapeMetrics(t, c), "test_process_")
}

func TestRegisterCounter_WithLabels(t *testing.T) {
	c := newTestCollector(t)
	c.RegisterCounter("http_requests", "HTTP requests", "method").WithLabelValues("GET").Add(5)

	assert.Contains(t, scrapeMetrics(t, c), `test_unit_http_requests{method="GET"} 5`)
}

func TestRegisterCounter_DuplicateSharesVector(t *testing.T) {
	c := newTestCollector(t)
	c.RegisterCounter("dup_counter", "help").WithLabelValues().Inc()
	c.RegisterCounter("dup_counter", "help").WithLabelValues().Inc()

	assert.Equal(t, 2.0, metricValue(t, c, "test_unit_dup_counter", nil))
}

func TestRegister_TypeMismatchIsNoop(t *testing.T) {
	c := newTestCollector(t)
	c.RegisterCounter("clash", "help")
	g := c.RegisterGauge("clash", "help")
	assert.IsType(t, noopGaugeVec{}, g)
	g.WithLabelValues().Set(3)
}

func TestRegisterGaugeAndReset(t *testing.T) {
	c := newTestCollector(t)
	g := c.RegisterGauge("relation_acc", "acc", "relation")
	g.WithLabelValues("r0").Set(0.75)
	assert.Equal(t, 0.75, metricValue(t, c, "test_unit_relation_acc", map[string]string{"relation": "r0"}))

	g.Reset()
	assert.NotContains(t, scrapeMetrics(t, c), `relation="r0"`)
}

func TestRegisterHistogram_DefaultBuckets(t *testing.T) {
	c := newTestCollector(t)
	h := c.RegisterHistogram("latency", "Latency", nil)
	h.WithLabelValues().Observe(0.1)

	assert.Contains(t, scrapeMetrics(t, c), "test_unit_latency_bucket")
	assert.Equal(t, 1.0, metricValue(t, c, "test_unit_latency", nil))
}

func TestWriteToTextfile(t *testing.T) {
	c := newTestCollector(t)
	c.RegisterGauge("answer", "help").WithLabelValues().Set(42)

	path := filepath.Join(t.TempDir(), "kgeval.prom")
	require.NoError(t, c.WriteToTextfile(path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "test_unit_answer 42")
}

func TestWriteToTextfile_BadPath(t *testing.T) {
	c := newTestCollector(t)
	assert.Error(t, c.WriteToTextfile(filepath.Join(t.TempDir(), "missing", "x.prom")))
}

func TestTimer(t *testing.T) {
	c := newTestCollector(t)
	h := c.RegisterHistogram("timed", "help", nil)
	NewTimer(h.WithLabelValues()).ObserveDuration()
	NewTimer(nil).ObserveDuration()
	assert.Equal(t, 1.0, metricValue(t, c, "test_unit_timed", nil))
}
