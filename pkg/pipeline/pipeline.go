// Package pipeline 实现 source -> transformer 链 -> publishers 的样本处理流水线
package pipeline

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/polling-agent/pkg/logger"
	"github.com/polling-agent/pkg/metrics"
	"github.com/polling-agent/pkg/sample"
)

// Source pipeline 的采集选择部分
type Source struct {
	Name      string
	Interval  time.Duration
	Resources []string
	Discovery []string
	meters    *meterMatcher
}

type namedTransformer struct {
	name string
	Transformer
}

type namedPublisher struct {
	url string
	Publisher
}

// Sink transformer 链 + publishers。多个 source 引用同一个 sink 时共享实例（有状态 transformer 共享状态）
type Sink struct {
	Name         string
	mu           sync.Mutex
	transformers []namedTransformer
	publishers   []namedPublisher
}

// Pipeline 一个 (source, sink) 组合
type Pipeline struct {
	source  *Source
	sink    *Sink
	metrics *metrics.AgentMetrics
}

// Name source:sink
func (p *Pipeline) Name() string { return p.source.Name + ":" + p.sink.Name }

func (p *Pipeline) String() string { return p.Name() }

func (p *Pipeline) SourceName() string { return p.source.Name }

func (p *Pipeline) SinkName() string { return p.sink.Name }

func (p *Pipeline) Interval() time.Duration { return p.source.Interval }

// Resources 静态资源（副本）
func (p *Pipeline) Resources() []string { return slices.Clone(p.source.Resources) }

// Discovery 发现 URL（副本）
func (p *Pipeline) Discovery() []string { return slices.Clone(p.source.Discovery) }

// SupportMeter source 是否选择了该 meter
func (p *Pipeline) SupportMeter(name string) bool { return p.source.meters.match(name) }

// transform 从第 start 个 transformer 开始逐条处理样本
func (p *Pipeline) transform(ctx context.Context, start int, samples []sample.Sample) []sample.Sample {
	out := make([]sample.Sample, 0, len(samples))
	for _, s := range samples {
		cur := &s
		for _, t := range p.sink.transformers[start:] {
			cur = p.handle(ctx, t, *cur)
			if cur == nil {
				break
			}
		}
		if cur != nil {
			out = append(out, *cur)
		}
	}
	return out
}

func (p *Pipeline) handle(ctx context.Context, t namedTransformer, s sample.Sample) (out *sample.Sample) {
	defer func() {
		if r := recover(); r != nil {
			p.transformFailed(t.name, s, fmt.Errorf("panic: %v", r))
			out = nil
		}
	}()
	res, err := t.HandleSample(ctx, s)
	if err != nil {
		p.transformFailed(t.name, s, err)
		return nil
	}
	return res
}

func (p *Pipeline) transformFailed(name string, s sample.Sample, err error) {
	logger.Warn("transformer dropped sample",
		zap.String("pipeline", p.Name()),
		zap.String("transformer", name),
		zap.String("sample", s.Name),
		zap.Error(err))
	p.metrics.TransformErrors.WithLabelValues(p.Name(), name).Inc()
}

// flush 依次 flush 每个 transformer，输出交给后续 transformer 处理
func (p *Pipeline) flush(ctx context.Context) []sample.Sample {
	var out []sample.Sample
	for i, t := range p.sink.transformers {
		flushed := p.flushOne(ctx, t)
		if len(flushed) == 0 {
			continue
		}
		out = append(out, p.transform(ctx, i+1, flushed)...)
	}
	return out
}

func (p *Pipeline) flushOne(ctx context.Context, t namedTransformer) (out []sample.Sample) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error("transformer flush panicked",
				zap.String("pipeline", p.Name()), zap.String("transformer", t.name), zap.Any("panic", r))
			p.metrics.TransformErrors.WithLabelValues(p.Name(), t.name).Inc()
			out = nil
		}
	}()
	return t.Flush(ctx)
}

// publish 丢弃不完整样本后写入每个 publisher，单个 publisher 失败不影响其他
func (p *Pipeline) publish(ctx context.Context, samples []sample.Sample) {
	valid := samples[:0:0]
	for _, s := range samples {
		if err := s.Validate(); err != nil {
			logger.Warn("dropping invalid sample", zap.String("pipeline", p.Name()), zap.Error(err))
			continue
		}
		valid = append(valid, s)
	}
	if len(valid) == 0 {
		return
	}
	for _, pub := range p.sink.publishers {
		if err := p.publishOne(ctx, pub, valid); err != nil {
			logger.Error("publisher failed",
				zap.String("pipeline", p.Name()),
				zap.String("publisher", pub.url),
				zap.Int("samples", len(valid)),
				zap.Error(err))
			p.metrics.PublishErrors.WithLabelValues(p.Name(), pub.url).Inc()
			continue
		}
		p.metrics.PublishedSamples.WithLabelValues(p.Name()).Add(float64(len(valid)))
	}
}

func (p *Pipeline) publishOne(ctx context.Context, pub namedPublisher, samples []sample.Sample) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return pub.PublishSamples(ctx, slices.Clone(samples))
}
