package pipeline

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/polling-agent/pkg/sample"
)

func TestUnitConversion(t *testing.T) {
	ctx := context.Background()
	tr, err := newUnitConversion(map[string]any{
		"source": map[string]any{"name": "host.memory.usage"},
		"target": map[string]any{"name": "host.memory.usage.mb", "unit": "MB", "scale": "0.000001"},
	})
	require.NoError(t, err)

	in := newTestSample("host.memory.usage")
	in.Volume = 2_000_000
	out, err := tr.HandleSample(ctx, in)
	require.NoError(t, err)
	require.NotNil(t, out)
	assert.Equal(t, "host.memory.usage.mb", out.Name)
	assert.Equal(t, "MB", out.Unit)
	assert.InDelta(t, 2.0, out.Volume, 1e-9)
	assert.Equal(t, 2_000_000.0, in.Volume)

	other := newTestSample("host.cpu")
	out, err = tr.HandleSample(ctx, other)
	require.NoError(t, err)
	assert.Equal(t, other, *out, "other meters pass through")

	_, err = newUnitConversion(map[string]any{"target": map[string]any{"type": "histogram"}})
	assert.Error(t, err)
	_, err = newUnitConversion(map[string]any{"unknown": 1})
	assert.Error(t, err)
}

func TestRateOfChange(t *testing.T) {
	ctx := context.Background()
	tr, err := newRateOfChange(map[string]any{"target": map[string]any{"name": "host.cpu.util", "unit": "%", "scale": 100}})
	require.NoError(t, err)

	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	at := func(v float64, sec int) sample.Sample {
		s := newTestSample("host.cpu")
		s.Type = sample.TypeCumulative
		s.Volume = v
		s.Timestamp = base.Add(time.Duration(sec) * time.Second)
		return s
	}

	out, err := tr.HandleSample(ctx, at(10, 0))
	require.NoError(t, err)
	assert.Nil(t, out, "first point only primes the state")

	out, err = tr.HandleSample(ctx, at(15, 10))
	require.NoError(t, err)
	require.NotNil(t, out)
	assert.Equal(t, "host.cpu.util", out.Name)
	assert.Equal(t, sample.TypeGauge, out.Type)
	assert.InDelta(t, 50.0, out.Volume, 1e-9)

	out, err = tr.HandleSample(ctx, at(2, 20))
	require.NoError(t, err)
	assert.InDelta(t, 20.0, out.Volume, 1e-9, "counter reset counts from zero")

	_, err = tr.HandleSample(ctx, at(3, 20))
	assert.Error(t, err, "same timestamp")

	other := at(100, 0)
	other.ResourceID = "another"
	out, err = tr.HandleSample(ctx, other)
	require.NoError(t, err)
	assert.Nil(t, out, "state is kept per resource")
}

func TestRateOfChangeDefaultUnit(t *testing.T) {
	ctx := context.Background()
	tr, err := newRateOfChange(nil)
	require.NoError(t, err)
	s := newTestSample("net.bytes")
	_, _ = tr.HandleSample(ctx, s)
	s.Timestamp = s.Timestamp.Add(time.Second)
	s.Volume = 11
	out, err := tr.HandleSample(ctx, s)
	require.NoError(t, err)
	assert.Equal(t, "B/s", out.Unit)
	assert.Equal(t, "net.bytes", out.Name)
}

func TestAccumulator(t *testing.T) {
	ctx := context.Background()
	tr, err := newAccumulator(map[string]any{"size": 3})
	require.NoError(t, err)

	for i := 0; i < 2; i++ {
		out, err := tr.HandleSample(ctx, newTestSample("a"))
		require.NoError(t, err)
		assert.Nil(t, out)
	}
	assert.Empty(t, tr.Flush(ctx))
	_, _ = tr.HandleSample(ctx, newTestSample("a"))
	assert.Len(t, tr.Flush(ctx), 3)
	assert.Empty(t, tr.Flush(ctx))

	def, err := newAccumulator(nil)
	require.NoError(t, err)
	_, _ = def.HandleSample(ctx, newTestSample("a"))
	assert.Len(t, def.Flush(ctx), 1)

	_, err = newAccumulator(map[string]any{"size": 0})
	assert.Error(t, err)
}

func TestFlushOutputRunsThroughLaterTransformers(t *testing.T) {
	ctx := context.Background()
	u, rec := recorder(t, "test")
	def := baseDefinition(u)
	def.Sinks[0].Transformers = []TransformerDefinition{
		{Name: "accumulator", Parameters: map[string]any{"size": 1}},
		{Name: "update"},
	}
	m := newManager(t, def)
	publishOnce(ctx, m.Publisher(), newTestSample("a"))

	got := rec.Samples()
	require.Len(t, got, 1)
	assert.Equal(t, "a_update", got[0].Name)
}
