package polling

import (
	"context"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/polling-agent/pkg/pipeline"
	"github.com/polling-agent/pkg/sample"
)

func TestResolutionPrefersSourceResources(t *testing.T) {
	hosts := &fakeDiscoverer{name: "hosts", resources: []string{"host-1"}}
	p := &fakePollster{name: "cpu", discovery: "hosts"}
	f := newFixture(t, []*fakePollster{p}, hosts)
	sink, rec := memorySink(t, "sink")
	m := f.manager(t, &pipeline.Definition{
		Sources: []pipeline.SourceDefinition{{
			Name: "src", Interval: 60, Meters: []string{"*"}, Resources: []string{"vm-1"}, Sinks: []string{"sink"},
		}},
		Sinks: []pipeline.SinkDefinition{sink},
	})

	tasks := m.SetupPollingTasks()
	require.Len(t, tasks, 1)
	tasks[time.Minute].PollAndPublish(context.Background())

	assert.Equal(t, [][]string{{"vm-1"}}, p.Calls())
	assert.Empty(t, hosts.Params(), "pollster default discovery is not consulted when the source resolves")
	assert.Equal(t, []string{"cpu@vm-1"}, sampleNames(rec.Samples()))
}

func TestResolutionFallsBackToPollsterThenAgentDefault(t *testing.T) {
	hosts := &fakeDiscoverer{name: "hosts", resources: []string{"host-1"}}
	agentWide := &fakeDiscoverer{name: "everything", resources: []string{"any-1"}}
	withDefault := &fakePollster{name: "cpu", discovery: "hosts"}
	withoutDefault := &fakePollster{name: "mem"}
	f := newFixture(t, []*fakePollster{withDefault, withoutDefault}, hosts, agentWide)
	sink, rec := memorySink(t, "sink")
	m := f.manager(t, &pipeline.Definition{
		Sources: []pipeline.SourceDefinition{{Name: "src", Interval: 60, Meters: []string{"*"}, Sinks: []string{"sink"}}},
		Sinks:   []pipeline.SinkDefinition{sink},
	}, func(o *Options) { o.DefaultDiscovery = []string{"everything"} })

	m.SetupPollingTasks()[time.Minute].PollAndPublish(context.Background())

	assert.Equal(t, [][]string{{"host-1"}}, withDefault.Calls())
	assert.Equal(t, [][]string{{"any-1"}}, withoutDefault.Calls())
	assert.ElementsMatch(t, []string{"cpu@host-1", "mem@any-1"}, sampleNames(rec.Samples()))
	assert.Len(t, agentWide.Params(), 1)
}

func TestPollsterWithoutResourcesIsSkipped(t *testing.T) {
	p := &fakePollster{name: "cpu"}
	f := newFixture(t, []*fakePollster{p})
	sink, rec := memorySink(t, "sink")
	m := f.manager(t, &pipeline.Definition{
		Sources: []pipeline.SourceDefinition{{Name: "src", Interval: 60, Meters: []string{"*"}, Sinks: []string{"sink"}}},
		Sinks:   []pipeline.SinkDefinition{sink},
	})

	m.SetupPollingTasks()[time.Minute].PollAndPublish(context.Background())
	assert.Empty(t, p.Calls())
	assert.Equal(t, 0, rec.Calls())
}

func TestFaultIsolation(t *testing.T) {
	failing := &fakePollster{name: "a", fn: func(context.Context, []string) ([]sample.Sample, error) {
		return nil, errBoom
	}}
	panicking := &fakePollster{name: "b", fn: func(context.Context, []string) ([]sample.Sample, error) {
		panic("pollster crashed")
	}}
	good := &fakePollster{name: "c", fn: func(context.Context, []string) ([]sample.Sample, error) {
		return []sample.Sample{newSample("sample_x", "vm-1")}, nil
	}}
	f := newFixture(t, []*fakePollster{failing, panicking, good})
	sink1, rec1 := memorySink(t, "sink1")
	sink2, rec2 := memorySink(t, "sink2")
	m := f.manager(t, &pipeline.Definition{
		Sources: []pipeline.SourceDefinition{{
			Name: "src", Interval: 60, Meters: []string{"*"}, Resources: []string{"vm-1"}, Sinks: []string{"sink1", "sink2"},
		}},
		Sinks: []pipeline.SinkDefinition{sink1, sink2},
	})

	task := m.SetupPollingTasks()[time.Minute]
	require.NotPanics(t, func() { task.PollAndPublish(context.Background()) })

	for _, rec := range []*pipeline.MemoryPublisher{rec1, rec2} {
		assert.Equal(t, []string{"sample_x@vm-1"}, sampleNames(rec.Samples()))
		assert.Equal(t, 1, rec.Calls())
	}
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.PollsterErrors.WithLabelValues("a")))
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.PollsterErrors.WithLabelValues("b")))
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.PollsterSamples.WithLabelValues("c")))
}

func TestBenignErrorsAreNotCounted(t *testing.T) {
	missing := &fakePollster{name: "a", fn: func(context.Context, []string) ([]sample.Sample, error) {
		return nil, errNotFound
	}}
	f := newFixture(t, []*fakePollster{missing})
	sink, _ := memorySink(t, "sink")
	m := f.manager(t, &pipeline.Definition{
		Sources: []pipeline.SourceDefinition{{Name: "src", Interval: 60, Meters: []string{"*"}, Resources: []string{"vm-1"}, Sinks: []string{"sink"}}},
		Sinks:   []pipeline.SinkDefinition{sink},
	})

	m.SetupPollingTasks()[time.Minute].PollAndPublish(context.Background())
	assert.Equal(t, 0.0, testutil.ToFloat64(f.metrics.PollsterErrors.WithLabelValues("a")))
}

func TestPollsterTimeout(t *testing.T) {
	stuck := &fakePollster{name: "a", fn: func(ctx context.Context, _ []string) ([]sample.Sample, error) {
		<-ctx.Done()
		time.Sleep(50 * time.Millisecond)
		return []sample.Sample{newSample("late", "vm-1")}, nil
	}}
	good := &fakePollster{name: "b"}
	f := newFixture(t, []*fakePollster{stuck, good})
	sink, rec := memorySink(t, "sink")
	m := f.manager(t, &pipeline.Definition{
		Sources: []pipeline.SourceDefinition{{Name: "src", Interval: 60, Meters: []string{"*"}, Resources: []string{"vm-1"}, Sinks: []string{"sink"}}},
		Sinks:   []pipeline.SinkDefinition{sink},
	}, func(o *Options) { o.PollsterTimeout = 20 * time.Millisecond })

	m.SetupPollingTasks()[time.Minute].PollAndPublish(context.Background())
	assert.Equal(t, []string{"b@vm-1"}, sampleNames(rec.Samples()))
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.PollsterErrors.WithLabelValues("a")))
}

func TestDiscovererCalledOncePerURLPerCycle(t *testing.T) {
	local := &fakeDiscoverer{name: "local", resources: []string{"host-1"}}
	broken := &fakeDiscoverer{name: "broken", err: errBoom}
	p1 := &fakePollster{name: "cpu"}
	p2 := &fakePollster{name: "mem"}
	f := newFixture(t, []*fakePollster{p1, p2}, local, broken)
	sink, _ := memorySink(t, "sink")
	m := f.manager(t, &pipeline.Definition{
		Sources: []pipeline.SourceDefinition{{
			Name: "src", Interval: 60, Meters: []string{"*"},
			Discovery: []string{"local:foo", "broken"}, Sinks: []string{"sink"},
		}},
		Sinks: []pipeline.SinkDefinition{sink},
	})

	task := m.SetupPollingTasks()[time.Minute]
	task.PollAndPublish(context.Background())

	assert.Equal(t, []string{"foo"}, local.Params())
	assert.Len(t, broken.Params(), 1, "failed URLs are not retried within the cycle")
	assert.Equal(t, [][]string{{"host-1"}}, p1.Calls())
	assert.Equal(t, [][]string{{"host-1"}}, p2.Calls())

	task.PollAndPublish(context.Background())
	assert.Len(t, local.Params(), 2, "cache does not survive the cycle")
}

func TestAddIsIdempotentPerSource(t *testing.T) {
	p := &fakePollster{name: "cpu"}
	f := newFixture(t, []*fakePollster{p})
	sink1, rec1 := memorySink(t, "sink1")
	sink2, rec2 := memorySink(t, "sink2")
	m := f.manager(t, &pipeline.Definition{
		Sources: []pipeline.SourceDefinition{{
			Name: "src", Interval: 60, Meters: []string{"*"}, Resources: []string{"vm-1"}, Sinks: []string{"sink1", "sink2"},
		}},
		Sinks: []pipeline.SinkDefinition{sink1, sink2},
	})
	pipelines := m.pipelines.Pipelines()

	task := newPollingTask(m, time.Minute)
	task.Add(p, pipelines[0])
	task.Add(p, pipelines[0])
	task.Add(p, pipelines[1])

	assert.Len(t, task.matches["src"], 1)
	assert.Len(t, task.publishers, 2)
	assert.Len(t, task.resources, 1)

	task.PollAndPublish(context.Background())
	assert.Len(t, p.Calls(), 1)
	assert.Len(t, rec1.Samples(), 1)
	assert.Len(t, rec2.Samples(), 1)

	assert.Panics(t, func() { task.Add(p, pipelines[0]) })
}

func TestSinkFiltersByMeter(t *testing.T) {
	cpu := &fakePollster{name: "cpu"}
	mem := &fakePollster{name: "mem"}
	f := newFixture(t, []*fakePollster{cpu, mem})
	cpuSink, cpuRec := memorySink(t, "cpu_sink")
	allSink, allRec := memorySink(t, "all_sink")
	m := f.manager(t, &pipeline.Definition{
		Sources: []pipeline.SourceDefinition{
			{Name: "cpu_src", Interval: 60, Meters: []string{"cpu"}, Resources: []string{"vm-1"}, Sinks: []string{"cpu_sink"}},
			{Name: "all_src", Interval: 60, Meters: []string{"*"}, Resources: []string{"vm-2"}, Sinks: []string{"all_sink"}},
		},
		Sinks: []pipeline.SinkDefinition{cpuSink, allSink},
	})

	m.SetupPollingTasks()[time.Minute].PollAndPublish(context.Background())

	assert.ElementsMatch(t, []string{"cpu@vm-1", "cpu@vm-2"}, sampleNames(cpuRec.Samples()),
		"every sink sees the whole cycle, filtered by its own meters")
	assert.ElementsMatch(t, []string{"cpu@vm-1", "cpu@vm-2", "mem@vm-2"}, sampleNames(allRec.Samples()))
}
