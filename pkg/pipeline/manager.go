package pipeline

import (
	"errors"
	"fmt"
	"net/url"
	"time"

	"go.uber.org/zap"

	"github.com/polling-agent/pkg/logger"
	"github.com/polling-agent/pkg/metrics"
)

// ErrConfig pipeline 定义结构错误，构造时同步返回
var ErrConfig = errors.New("pipeline: invalid configuration")

// Options 构造 Manager 的可选依赖，nil 字段使用内置实现
type Options struct {
	Transformers map[string]TransformerFactory
	Publishers   map[string]PublisherFactory
	Factory      *metrics.MetricFactory
	Metrics      *metrics.AgentMetrics
}

// Manager 由定义构建的全部 pipeline，构造后只读
type Manager struct {
	pipelines []*Pipeline
}

// NewManager 校验定义并为每个 (source, sink) 构建一个 pipeline。任何结构错误都不返回 Manager
func NewManager(def *Definition, opts Options) (*Manager, error) {
	if opts.Factory == nil {
		opts.Factory = metrics.NewNopFactory()
	}
	if opts.Metrics == nil {
		opts.Metrics = opts.Factory.NewAgentMetrics()
	}
	if opts.Transformers == nil {
		opts.Transformers = BuiltinTransformers()
	}
	if opts.Publishers == nil {
		opts.Publishers = BuiltinPublishers(opts.Factory)
	}

	if def == nil || len(def.Sources) == 0 {
		return nil, configErr("no sources defined")
	}
	if len(def.Sinks) == 0 {
		return nil, configErr("no sinks defined")
	}

	sinks := make(map[string]*Sink, len(def.Sinks))
	for _, sd := range def.Sinks {
		if sd.Name == "" {
			return nil, configErr("sink without name")
		}
		if _, dup := sinks[sd.Name]; dup {
			return nil, configErr("duplicated sink %s", sd.Name)
		}
		sink, err := buildSink(sd, opts)
		if err != nil {
			return nil, err
		}
		sinks[sd.Name] = sink
	}

	var (
		m          = &Manager{}
		sourceSeen = make(map[string]struct{}, len(def.Sources))
		sinkUsed   = make(map[string]struct{}, len(def.Sinks))
	)
	for _, sd := range def.Sources {
		src, err := buildSource(sd)
		if err != nil {
			return nil, err
		}
		if _, dup := sourceSeen[src.Name]; dup {
			return nil, configErr("duplicated source %s", src.Name)
		}
		sourceSeen[src.Name] = struct{}{}

		for _, name := range sd.Sinks {
			sink, ok := sinks[name]
			if !ok {
				return nil, configErr("source %s references unknown sink %s", src.Name, name)
			}
			sinkUsed[name] = struct{}{}
			m.pipelines = append(m.pipelines, &Pipeline{source: src, sink: sink, metrics: opts.Metrics})
		}
	}
	for _, sd := range def.Sinks {
		if _, ok := sinkUsed[sd.Name]; !ok {
			return nil, configErr("sink %s is not referenced by any source", sd.Name)
		}
	}

	logger.Info("pipelines loaded", zap.Int("pipelines", len(m.pipelines)),
		zap.Int("sources", len(def.Sources)), zap.Int("sinks", len(def.Sinks)))
	return m, nil
}

func buildSource(sd SourceDefinition) (*Source, error) {
	if sd.Name == "" {
		return nil, configErr("source without name")
	}
	if sd.Interval <= 0 {
		return nil, configErr("source %s: interval must be a positive number of seconds, got %d", sd.Name, sd.Interval)
	}
	if len(sd.Sinks) == 0 {
		return nil, configErr("source %s has no sinks", sd.Name)
	}
	meters, err := newMeterMatcher(sd.Meters)
	if err != nil {
		return nil, configErr("source %s: %v", sd.Name, err)
	}
	return &Source{
		Name:      sd.Name,
		Interval:  time.Duration(sd.Interval) * time.Second,
		Resources: sd.Resources,
		Discovery: sd.Discovery,
		meters:    meters,
	}, nil
}

func buildSink(sd SinkDefinition, opts Options) (*Sink, error) {
	if len(sd.Publishers) == 0 {
		return nil, configErr("sink %s has no publishers", sd.Name)
	}
	sink := &Sink{Name: sd.Name}
	for _, td := range sd.Transformers {
		factory, ok := opts.Transformers[td.Name]
		if !ok {
			return nil, configErr("sink %s: unknown transformer %s", sd.Name, td.Name)
		}
		t, err := factory(td.Parameters)
		if err != nil {
			return nil, configErr("sink %s: %v", sd.Name, err)
		}
		sink.transformers = append(sink.transformers, namedTransformer{name: td.Name, Transformer: t})
	}
	for _, raw := range sd.Publishers {
		u, err := url.Parse(raw)
		if err != nil || u.Scheme == "" {
			return nil, configErr("sink %s: bad publisher url %q", sd.Name, raw)
		}
		factory, ok := opts.Publishers[u.Scheme]
		if !ok {
			return nil, configErr("sink %s: unknown publisher scheme %s", sd.Name, u.Scheme)
		}
		pub, err := factory(u)
		if err != nil {
			return nil, configErr("sink %s: %v", sd.Name, err)
		}
		name := raw
		if u.User != nil {
			name = u.Redacted()
		}
		sink.publishers = append(sink.publishers, namedPublisher{url: name, Publisher: pub})
	}
	return sink, nil
}

func configErr(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrConfig, fmt.Sprintf(format, args...))
}

// Pipelines 按定义顺序返回全部 pipeline
func (m *Manager) Pipelines() []*Pipeline {
	out := make([]*Pipeline, len(m.pipelines))
	copy(out, m.pipelines)
	return out
}

// Publisher 绑定全部 pipeline 的发布上下文
func (m *Manager) Publisher() *PublishContext {
	return NewPublishContext(m.pipelines...)
}
