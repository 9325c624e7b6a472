package polling

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/polling-agent/pkg/metrics"
	"github.com/polling-agent/pkg/pipeline"
	"github.com/polling-agent/pkg/plugin"
	"github.com/polling-agent/pkg/sample"
)

type fakePollster struct {
	name      string
	discovery string
	fn        func(ctx context.Context, resources []string) ([]sample.Sample, error)

	mu    sync.Mutex
	calls [][]string
}

func (p *fakePollster) Name() string             { return p.name }
func (p *fakePollster) DefaultDiscovery() string { return p.discovery }
func (p *fakePollster) GetSamples(ctx context.Context, _ *plugin.Cache, resources []string) ([]sample.Sample, error) {
	p.mu.Lock()
	p.calls = append(p.calls, resources)
	p.mu.Unlock()
	if p.fn != nil {
		return p.fn(ctx, resources)
	}
	out := make([]sample.Sample, 0, len(resources))
	for _, r := range resources {
		out = append(out, newSample(p.name, r))
	}
	return out, nil
}

func (p *fakePollster) Calls() [][]string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([][]string(nil), p.calls...)
}

type fakeDiscoverer struct {
	name      string
	group     string
	resources []string
	err       error

	mu     sync.Mutex
	params []string
}

func (d *fakeDiscoverer) Name() string    { return d.name }
func (d *fakeDiscoverer) GroupID() string { return d.group }
func (d *fakeDiscoverer) Discover(_ context.Context, param string) ([]string, error) {
	d.mu.Lock()
	d.params = append(d.params, param)
	d.mu.Unlock()
	return d.resources, d.err
}

func (d *fakeDiscoverer) Params() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]string(nil), d.params...)
}

type fakeCoordinator struct {
	active bool
	subset func(group string, universe []string) []string
	err    error

	mu         sync.Mutex
	joined     []string
	heartbeats int
}

func (c *fakeCoordinator) JoinGroup(_ context.Context, group string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.joined = append(c.joined, group)
	return nil
}

func (c *fakeCoordinator) ExtractMySubset(_ context.Context, group string, universe []string) ([]string, error) {
	if group == "" {
		return universe, nil
	}
	if c.err != nil {
		return nil, c.err
	}
	if c.subset != nil {
		return c.subset(group, universe), nil
	}
	return universe, nil
}

func (c *fakeCoordinator) IsActive() bool { return c.active }

func (c *fakeCoordinator) Heartbeat(context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.heartbeats++
	return nil
}

func (c *fakeCoordinator) Heartbeats() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.heartbeats
}

var errBoom = errors.New("boom")

func newSample(name, resource string) sample.Sample {
	return sample.Sample{
		Name:       name,
		Type:       sample.TypeGauge,
		Unit:       "B",
		Volume:     1,
		ResourceID: resource,
		Timestamp:  time.Now().UTC(),
	}
}

type fixture struct {
	registry *plugin.Registry
	coord    *fakeCoordinator
	metrics  *metrics.AgentMetrics
}

func newFixture(t *testing.T, pollsters []*fakePollster, discoverers ...*fakeDiscoverer) *fixture {
	t.Helper()
	r := plugin.NewRegistry()
	for _, p := range pollsters {
		p := p
		require.NoError(t, r.RegisterPollster("central", p.name, func() (plugin.Pollster, error) { return p, nil }))
	}
	for _, d := range discoverers {
		d := d
		require.NoError(t, r.RegisterDiscoverer(d.name, func() (plugin.Discoverer, error) { return d, nil }))
	}
	return &fixture{
		registry: r,
		coord:    &fakeCoordinator{},
		metrics:  metrics.NewNopFactory().NewAgentMetrics(),
	}
}

func (f *fixture) manager(t *testing.T, def *pipeline.Definition, mutate ...func(*Options)) *Manager {
	t.Helper()
	pm, err := pipeline.NewManager(def, pipeline.Options{Metrics: f.metrics})
	require.NoError(t, err)
	opts := Options{
		Namespace:       "central",
		Registry:        f.registry,
		Coordinator:     f.coord,
		Pipelines:       pm,
		PollsterTimeout: time.Second,
		Metrics:         f.metrics,
	}
	for _, fn := range mutate {
		fn(&opts)
	}
	m, err := NewManager(opts)
	require.NoError(t, err)
	return m
}

// memorySink 返回一个使用独立 memory:// 记录器的 sink 定义
func memorySink(t *testing.T, name string) (pipeline.SinkDefinition, *pipeline.MemoryPublisher) {
	t.Helper()
	key := strings.NewReplacer("/", "-", " ", "-").Replace(t.Name()) + "-" + name
	rec := pipeline.MemoryRecorder(key)
	rec.Reset()
	return pipeline.SinkDefinition{Name: name, Publishers: []string{"memory://" + key}}, rec
}

func sampleNames(samples []sample.Sample) []string {
	out := make([]string, 0, len(samples))
	for _, s := range samples {
		out = append(out, s.Name+"@"+s.ResourceID)
	}
	return out
}

var errNotFound = plugin.ErrResourceNotFound
