package pipeline

import (
	"context"
	"fmt"
	"net/url"
	"slices"
	"sync"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/polling-agent/pkg/logger"
	"github.com/polling-agent/pkg/metrics"
	"github.com/polling-agent/pkg/sample"
)

// Publisher 把一批样本写到外部。失败只影响自己
type Publisher interface {
	PublishSamples(ctx context.Context, samples []sample.Sample) error
}

// PublisherFactory 按 URL scheme 创建 publisher
type PublisherFactory func(u *url.URL) (Publisher, error)

// BuiltinPublishers log://、memory://、prometheus://、http(s)://
func BuiltinPublishers(factory *metrics.MetricFactory) map[string]PublisherFactory {
	httpFactory := func(u *url.URL) (Publisher, error) { return newHTTPPublisher(u) }
	return map[string]PublisherFactory{
		"log":    newLogPublisher,
		"memory": func(u *url.URL) (Publisher, error) { return MemoryRecorder(u.Host + u.Path), nil },
		"prometheus": func(*url.URL) (Publisher, error) {
			return &prometheusPublisher{volume: factory.NewSampleVolumeGauge()}, nil
		},
		"http":  httpFactory,
		"https": httpFactory,
	}
}

// logPublisher 每个样本一条日志
type logPublisher struct {
	debug bool
}

func newLogPublisher(u *url.URL) (Publisher, error) {
	level := u.Query().Get("level")
	switch level {
	case "", "info":
		return &logPublisher{}, nil
	case "debug":
		return &logPublisher{debug: true}, nil
	default:
		return nil, fmt.Errorf("log publisher: unsupported level %q", level)
	}
}

func (p *logPublisher) PublishSamples(_ context.Context, samples []sample.Sample) error {
	log := logger.Info
	if p.debug {
		log = logger.Debug
	}
	for _, s := range samples {
		log("sample",
			zap.String("name", s.Name),
			zap.String("type", string(s.Type)),
			zap.String("unit", s.Unit),
			zap.Float64("volume", s.Volume),
			zap.String("resource_id", s.ResourceID),
			zap.String("project_id", s.ProjectID),
			zap.Time("timestamp", s.Timestamp))
	}
	return nil
}

var memoryPublishers sync.Map

// MemoryPublisher 进程内记录器，memory://<name> 按名称共享同一实例
type MemoryPublisher struct {
	mu      sync.Mutex
	samples []sample.Sample
	calls   int
}

// MemoryRecorder 按名称取得（不存在则创建）内存 publisher
func MemoryRecorder(name string) *MemoryPublisher {
	v, _ := memoryPublishers.LoadOrStore(name, &MemoryPublisher{})
	return v.(*MemoryPublisher)
}

func (m *MemoryPublisher) PublishSamples(_ context.Context, samples []sample.Sample) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	m.samples = append(m.samples, samples...)
	return nil
}

func (m *MemoryPublisher) Samples() []sample.Sample {
	m.mu.Lock()
	defer m.mu.Unlock()
	return slices.Clone(m.samples)
}

func (m *MemoryPublisher) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

func (m *MemoryPublisher) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.samples, m.calls = nil, 0
}

// prometheusPublisher 以 gauge 形式导出每个 (meter, resource) 的最新值，经 /metrics 抓取
type prometheusPublisher struct {
	volume *prometheus.GaugeVec
}

func (p *prometheusPublisher) PublishSamples(_ context.Context, samples []sample.Sample) error {
	for _, s := range samples {
		p.volume.WithLabelValues(s.Name, s.ResourceID, s.Unit, string(s.Type)).Set(s.Volume)
	}
	return nil
}

// httpPublisher 以 JSON 数组 POST 到目标地址
type httpPublisher struct {
	client *resty.Client
	target string
}

func newHTTPPublisher(u *url.URL) (*httpPublisher, error) {
	if u.Host == "" {
		return nil, fmt.Errorf("http publisher: missing host in %s", u.Redacted())
	}
	timeout := 5 * time.Second
	q := u.Query()
	if raw := q.Get("timeout"); raw != "" {
		d, err := time.ParseDuration(raw)
		if err != nil || d <= 0 {
			return nil, fmt.Errorf("http publisher: bad timeout %q", raw)
		}
		timeout = d
		q.Del("timeout")
	}
	target := *u
	target.RawQuery = q.Encode()

	return &httpPublisher{
		client: resty.New().SetTimeout(timeout),
		target: target.String(),
	}, nil
}

func (p *httpPublisher) PublishSamples(ctx context.Context, samples []sample.Sample) error {
	resp, err := p.client.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetBody(samples).
		Post(p.target)
	if err != nil {
		return fmt.Errorf("post samples: %w", err)
	}
	if resp.IsError() {
		return fmt.Errorf("server returned status %d: %s", resp.StatusCode(), resp.String())
	}
	return nil
}
