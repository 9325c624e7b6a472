package pipeline

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/polling-agent/pkg/logger"
	"github.com/polling-agent/pkg/sample"
)

// PublishContext 一组绑定的 pipeline（按名称去重）。每次发布通过 Open 获得一个作用域
type PublishContext struct {
	mu        sync.Mutex
	pipelines []*Pipeline
	names     map[string]struct{}
}

func NewPublishContext(pipelines ...*Pipeline) *PublishContext {
	c := &PublishContext{names: make(map[string]struct{})}
	for _, p := range pipelines {
		c.Add(p)
	}
	return c
}

// Add 绑定 pipeline，已绑定的同名 pipeline 忽略
func (c *PublishContext) Add(p *Pipeline) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.names[p.Name()]; ok {
		return
	}
	c.names[p.Name()] = struct{}{}
	c.pipelines = append(c.pipelines, p)
}

func (c *PublishContext) Pipelines() []*Pipeline {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]*Pipeline, len(c.pipelines))
	copy(out, c.pipelines)
	return out
}

// Open 进入发布作用域。调用方必须 defer scope.Close(ctx)
func (c *PublishContext) Open() *PublishScope {
	pipelines := c.Pipelines()
	return &PublishScope{
		pipelines: pipelines,
		buffered:  make([][]sample.Sample, len(pipelines)),
	}
}

// PublishScope 一次发布作用域：Publish 逐条经过 transformer 链并缓存输出，
// Close 对有状态 transformer 做一次 flush 后整体交给 publishers
type PublishScope struct {
	mu        sync.Mutex
	pipelines []*Pipeline
	buffered  [][]sample.Sample
	closed    bool
}

func (s *PublishScope) Publish(ctx context.Context, samples []sample.Sample) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		logger.Warn("publish on closed scope ignored", zap.Int("samples", len(samples)))
		return
	}
	for i, p := range s.pipelines {
		supported := make([]sample.Sample, 0, len(samples))
		for _, smp := range samples {
			if p.SupportMeter(smp.Name) {
				supported = append(supported, smp)
			}
		}
		if len(supported) == 0 {
			continue
		}
		p.sink.mu.Lock()
		out := p.transform(ctx, 0, supported)
		p.sink.mu.Unlock()
		s.buffered[i] = append(s.buffered[i], out...)
	}
}

// Close 幂等，重复调用为空操作
func (s *PublishScope) Close(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	for i, p := range s.pipelines {
		p.sink.mu.Lock()
		out := append(s.buffered[i], p.flush(ctx)...)
		p.sink.mu.Unlock()
		s.buffered[i] = nil
		p.publish(ctx, out)
	}
}
