package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewAgentMetricsRegisters(t *testing.T) {
	reg := prometheus.NewRegistry()
	f := NewMetricFactory(NewPromRegistry(reg))
	m := f.NewAgentMetrics()

	m.PollsterErrors.WithLabelValues("host.cpu").Inc()
	m.PollsterErrors.WithLabelValues("host.cpu").Inc()
	m.PublishedSamples.WithLabelValues("src:sink").Add(3)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.PollsterErrors.WithLabelValues("host.cpu")))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.PublishedSamples.WithLabelValues("src:sink")))

	n, err := testutil.GatherAndCount(reg, "polling_pollster_errors_total", "pipeline_published_samples_total")
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestFactoryReusesAlreadyRegistered(t *testing.T) {
	f := NewMetricFactory(NewPromRegistry(prometheus.NewRegistry()))
	first := f.NewAgentMetrics()
	second := f.NewAgentMetrics()

	first.DiscoveryErrors.WithLabelValues("local_host").Inc()
	assert.Equal(t, 1.0, testutil.ToFloat64(second.DiscoveryErrors.WithLabelValues("local_host")))
}

func TestAlarmMetrics(t *testing.T) {
	f := NewNopFactory()
	m := f.NewAlarmMetrics()
	m.IsMaster.Set(1)
	m.AssignedAlarms.Set(4)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.IsMaster))
	assert.Equal(t, 4.0, testutil.ToFloat64(m.AssignedAlarms))
}
