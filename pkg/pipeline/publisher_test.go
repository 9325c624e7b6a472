package pipeline

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/polling-agent/pkg/metrics"
	"github.com/polling-agent/pkg/sample"
)

func TestHTTPPublisher(t *testing.T) {
	var received []sample.Sample
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/samples", r.URL.Path)
		assert.Empty(t, r.URL.Query().Get("timeout"))
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&received))
		w.WriteHeader(http.StatusAccepted)
	}))
	defer srv.Close()

	u, err := url.Parse(srv.URL + "/samples?timeout=2s")
	require.NoError(t, err)
	pub, err := newHTTPPublisher(u)
	require.NoError(t, err)

	require.NoError(t, pub.PublishSamples(context.Background(), []sample.Sample{newTestSample("a")}))
	require.Len(t, received, 1)
	assert.Equal(t, "a", received[0].Name)
	assert.Equal(t, "test_resource", received[0].ResourceID)
}

func TestHTTPPublisherErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "nope", http.StatusInternalServerError)
	}))
	defer srv.Close()

	u, _ := url.Parse(srv.URL)
	pub, err := newHTTPPublisher(u)
	require.NoError(t, err)
	assert.ErrorContains(t, pub.PublishSamples(context.Background(), []sample.Sample{newTestSample("a")}), "500")

	bad, _ := url.Parse("http://example.com?timeout=soon")
	_, err = newHTTPPublisher(bad)
	assert.Error(t, err)
	noHost, _ := url.Parse("http:///path")
	_, err = newHTTPPublisher(noHost)
	assert.Error(t, err)
}

func TestPrometheusPublisher(t *testing.T) {
	reg := prometheus.NewRegistry()
	f := metrics.NewMetricFactory(metrics.NewPromRegistry(reg))
	pub, err := BuiltinPublishers(f)["prometheus"](&url.URL{Scheme: "prometheus"})
	require.NoError(t, err)

	s := newTestSample("host.load")
	s.Volume = 0.75
	require.NoError(t, pub.PublishSamples(context.Background(), []sample.Sample{s}))

	gauge := f.NewSampleVolumeGauge()
	assert.Equal(t, 0.75, testutil.ToFloat64(gauge.WithLabelValues("host.load", "test_resource", "B", "gauge")))
}

func TestLogPublisher(t *testing.T) {
	for _, raw := range []string{"log://", "log://?level=debug"} {
		u, _ := url.Parse(raw)
		pub, err := newLogPublisher(u)
		require.NoError(t, err)
		assert.NoError(t, pub.PublishSamples(context.Background(), []sample.Sample{newTestSample("a")}))
	}
	u, _ := url.Parse("log://?level=trace")
	_, err := newLogPublisher(u)
	assert.Error(t, err)
}
