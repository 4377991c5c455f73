package testsupport

import (
	"sort"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// GetMetricValue reads a counter, gauge or histogram sample count from the
// default gatherer, summing every series that carries labels. Missing
// metrics read as 0.
func GetMetricValue(t *testing.T, name string, labels map[string]string) float64 {
	t.Helper()

	families, err := prometheus.DefaultGatherer.Gather()
	require.NoError(t, err, "failed to gather metrics")

	// Families come back sorted by name.
	idx := sort.Search(len(families), func(i int) bool {
		return families[i].GetName() >= name
	})
	if idx == len(families) || families[idx].GetName() != name {
		return 0
	}

	var total float64
	for _, m := range families[idx].GetMetric() {
		if !hasLabels(m, labels) {
			continue
		}
		switch {
		case m.GetCounter() != nil:
			total += m.GetCounter().GetValue()
		case m.GetGauge() != nil:
			total += m.GetGauge().GetValue()
		case m.GetHistogram() != nil:
			total += float64(m.GetHistogram().GetSampleCount())
		}
	}
	return total
}

func hasLabels(m *dto.Metric, want map[string]string) bool {
	if len(want) == 0 {
		return true
	}
	got := make(map[string]string, len(m.GetLabel()))
	for _, pair := range m.GetLabel() {
		got[pair.GetName()] = pair.GetValue()
	}
	for k, v := range want {
		if got[k] != v {
			return false
		}
	}
	return true
}

// MetricProbe remembers the value of a metric series at one point so a test
// can assert on what happened since.
type MetricProbe struct {
	name    string
	labels  map[string]string
	initial float64
}

// ProbeMetric records the current value of name{labels}.
func ProbeMetric(t *testing.T, name string, labels map[string]string) *MetricProbe {
	t.Helper()
	return &MetricProbe{name: name, labels: labels, initial: GetMetricValue(t, name, labels)}
}

// Delta returns the change since the probe was taken.
func (p *MetricProbe) Delta(t *testing.T) float64 {
	t.Helper()
	return GetMetricValue(t, p.name, p.labels) - p.initial
}

// AssertDelta checks that the metric changed by exactly want.
func (p *MetricProbe) AssertDelta(t *testing.T, want float64) {
	t.Helper()
	assert.Equal(t, want, p.Delta(t), "metric %s%v delta mismatch", p.name, p.labels)
}

// EventuallyAtLeast waits for the metric to grow by at least want. Use it
// for background workers such as the change notifier or the syncer.
func (p *MetricProbe) EventuallyAtLeast(t *testing.T, want float64) {
	t.Helper()
	require.Eventually(t, func() bool {
		return GetMetricValue(t, p.name, p.labels)-p.initial >= want
	}, 5*time.Second, 50*time.Millisecond, "metric %s%v did not grow by %.0f", p.name, p.labels, want)
}
