package polling

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/polling-agent/pkg/logger"
	"github.com/polling-agent/pkg/pipeline"
	"github.com/polling-agent/pkg/plugin"
	"github.com/polling-agent/pkg/sample"
)

// PollingTask 同一采集周期的全部 (source, pollster) 组合。
// setup 阶段通过 Add 组装，第一次 PollAndPublish 后只读
type PollingTask struct {
	manager  *Manager
	interval time.Duration

	sources    []string
	matches    map[string][]plugin.Pollster
	resources  map[string]*ResourceSet
	publishers []*pipeline.PublishContext
	bound      map[string]struct{}

	sealed atomic.Bool
}

func newPollingTask(m *Manager, interval time.Duration) *PollingTask {
	return &PollingTask{
		manager:   m,
		interval:  interval,
		matches:   make(map[string][]plugin.Pollster),
		resources: make(map[string]*ResourceSet),
		bound:     make(map[string]struct{}),
	}
}

func (t *PollingTask) Interval() time.Duration { return t.interval }

// Add 记录 pollster 与 pipeline source 的匹配，同一 source 下同名 pollster 只保留一个；
// 建立/更新该组合的 ResourceSet，并为 pipeline 绑定发布上下文（按名称只绑定一次）
func (t *PollingTask) Add(p plugin.Pollster, pl *pipeline.Pipeline) {
	if t.sealed.Load() {
		panic(fmt.Sprintf("polling task %s: add after first poll", t.interval))
	}
	src := pl.SourceName()

	matched, ok := t.matches[src]
	if !ok {
		t.sources = append(t.sources, src)
	}
	if !containsPollster(matched, p.Name()) {
		t.matches[src] = append(matched, p)
	}

	t.resourceSet(resourceKey(src, p.Name())).Setup(pl)

	if _, ok := t.bound[pl.Name()]; !ok {
		t.bound[pl.Name()] = struct{}{}
		t.publishers = append(t.publishers, pipeline.NewPublishContext(pl))
	}
}

// resourceSet 取得或创建 key 对应的 ResourceSet
func (t *PollingTask) resourceSet(key string) *ResourceSet {
	rs, ok := t.resources[key]
	if !ok {
		rs = newResourceSet(t.manager)
		t.resources[key] = rs
	}
	return rs
}

func containsPollster(ps []plugin.Pollster, name string) bool {
	for _, p := range ps {
		if p.Name() == name {
			return true
		}
	}
	return false
}

// PollAndPublish 执行一个周期：先依次调用全部 pollster，再把全部样本交给每个绑定的 pipeline。
// 周期内的错误只记录日志和指标，不会向外返回
func (t *PollingTask) PollAndPublish(ctx context.Context) {
	t.sealed.Store(true)
	m := t.manager
	start := m.clock.Now()

	cache := plugin.NewCache()
	discoveryCache := make(DiscoveryCache)

	var (
		agentResources []string
		agentResolved  bool
	)
	agentDefault := func() []string {
		if !agentResolved {
			agentResources = m.Discover(ctx, nil, discoveryCache)
			agentResolved = true
		}
		return agentResources
	}

	var collected []sample.Sample
	for _, src := range t.sources {
		for _, p := range t.matches[src] {
			resources := t.resources[resourceKey(src, p.Name())].Get(ctx, discoveryCache)
			if len(resources) == 0 && p.DefaultDiscovery() != "" {
				resources = m.Discover(ctx, []string{p.DefaultDiscovery()}, discoveryCache)
			}
			if len(resources) == 0 {
				resources = agentDefault()
			}
			if len(resources) == 0 {
				logger.Debug("skip pollster, no resources found",
					zap.String("pollster", p.Name()), zap.String("source", src))
				continue
			}

			logger.Debug("polling pollster",
				zap.String("pollster", p.Name()),
				zap.String("source", src),
				zap.Int("resources", len(resources)))
			collected = append(collected, m.poll(ctx, p, cache, resources)...)
		}
	}

	for _, pc := range t.publishers {
		t.publish(ctx, pc, collected)
	}

	elapsed := m.clock.Since(start)
	m.metrics.CycleDuration.WithLabelValues(t.interval.String()).Observe(elapsed.Seconds())
	logger.Debug("poll cycle finished",
		zap.Duration("interval", t.interval),
		zap.Int("samples", len(collected)),
		zap.Duration("elapsed", elapsed))
}

// publish 打开作用域、投递、在任何退出路径上关闭
func (t *PollingTask) publish(ctx context.Context, pc *pipeline.PublishContext, samples []sample.Sample) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error("publishing panicked", zap.Duration("interval", t.interval), zap.Any("panic", r))
		}
	}()
	scope := pc.Open()
	defer scope.Close(ctx)
	scope.Publish(ctx, samples)
}

// poll 调用单个 pollster，失败不影响其他 pollster
func (m *Manager) poll(ctx context.Context, p plugin.Pollster, cache *plugin.Cache, resources []string) []sample.Sample {
	samples, err := callWithTimeout(ctx, m.pollsterTimeout, func(ctx context.Context) ([]sample.Sample, error) {
		return p.GetSamples(ctx, cache, resources)
	})
	switch {
	case errors.Is(err, plugin.ErrResourceNotFound):
		logger.Debug("pollster resource not found", zap.String("pollster", p.Name()), zap.Error(err))
		return nil
	case errors.Is(err, plugin.ErrNotImplemented):
		logger.Debug("pollster not implemented", zap.String("pollster", p.Name()), zap.Error(err))
		return nil
	case err != nil:
		logger.Warn("continue after error from pollster", zap.String("pollster", p.Name()), zap.Error(err))
		m.metrics.PollsterErrors.WithLabelValues(p.Name()).Inc()
		return nil
	}
	m.metrics.PollsterSamples.WithLabelValues(p.Name()).Add(float64(len(samples)))
	return samples
}
