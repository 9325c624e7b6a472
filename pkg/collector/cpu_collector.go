package collector

import (
	"context"
	"fmt"
	"sync"

	"github.com/shirou/gopsutil/v3/cpu"
	"go.uber.org/zap"

	"github.com/polling-agent/pkg/logger"
	"github.com/polling-agent/pkg/plugin"
	"github.com/polling-agent/pkg/sample"
)

// CPUTimes 存储CPU各模式的累计时间（秒）
type CPUTimes struct {
	User    float64
	Nice    float64
	System  float64
	Idle    float64
	Iowait  float64
	Irq     float64
	Softirq float64
	Steal   float64
}

func fromStat(s cpu.TimesStat) CPUTimes {
	return CPUTimes{
		User:    s.User,
		Nice:    s.Nice,
		System:  s.System,
		Idle:    s.Idle,
		Iowait:  s.Iowait,
		Irq:     s.Irq,
		Softirq: s.Softirq,
		Steal:   s.Steal,
	}
}

func (t CPUTimes) Total() float64 {
	return t.User + t.Nice + t.System + t.Idle + t.Iowait + t.Irq + t.Softirq + t.Steal
}

// Busy 非空闲时间
func (t CPUTimes) Busy() float64 {
	return t.Total() - t.Idle - t.Iowait
}

const cpuTimesCacheKey = "collector.cpu.times"

// cpuTimes 同一周期内 host.cpu 与 host.cpu.util 共用一次读取
func cpuTimes(ctx context.Context, insp *Inspector, cache *plugin.Cache) (CPUTimes, error) {
	v, err := cache.GetOrCompute(cpuTimesCacheKey, func() (any, error) {
		stats, err := insp.CPUTimes(ctx)
		if err != nil {
			return nil, err
		}
		if len(stats) == 0 {
			return nil, fmt.Errorf("cpu times: %w", plugin.ErrNotImplemented)
		}
		return fromStat(stats[0]), nil
	})
	if err != nil {
		return CPUTimes{}, err
	}
	return v.(CPUTimes), nil
}

// localResources 过滤出本机资源；其他主机的资源无法在本机采集
func localResources(ctx context.Context, insp *Inspector, resources []string) ([]string, error) {
	local, err := insp.ResourceID(ctx)
	if err != nil {
		return nil, err
	}
	var out []string
	for _, r := range resources {
		if r == local {
			out = append(out, r)
			continue
		}
		logger.Debug("skip non-local host resource", zap.String("resource", r), zap.String("local", local))
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("%w: no local host among %d resources", plugin.ErrResourceNotFound, len(resources))
	}
	return out, nil
}

// CPUTimePollster host.cpu：累计 CPU 忙时间（纳秒）
type CPUTimePollster struct {
	insp *Inspector
}

func NewCPUTimePollster(insp *Inspector) *CPUTimePollster {
	return &CPUTimePollster{insp: insp}
}

func (p *CPUTimePollster) Name() string             { return "host.cpu" }
func (p *CPUTimePollster) DefaultDiscovery() string { return LocalHostDiscovery }

func (p *CPUTimePollster) GetSamples(ctx context.Context, cache *plugin.Cache, resources []string) ([]sample.Sample, error) {
	hosts, err := localResources(ctx, p.insp, resources)
	if err != nil {
		return nil, err
	}
	times, err := cpuTimes(ctx, p.insp, cache)
	if err != nil {
		return nil, err
	}
	meta := map[string]string{}
	if n, err := p.insp.CPUCounts(ctx); err == nil {
		meta["cpu_number"] = fmt.Sprint(n)
	}

	out := make([]sample.Sample, 0, len(hosts))
	for _, h := range hosts {
		logger.Debug("host cpu time", zap.String("hostname", Hostname(h)), zap.Float64("busy_seconds", times.Busy()))
		out = append(out, newSample(p.Name(), sample.TypeCumulative, "ns", times.Busy()*1e9, h, meta))
	}
	return out, nil
}

// CPUUtilPollster host.cpu.util：两次采集之间的 CPU 使用率（%），首次采集只记录基准
type CPUUtilPollster struct {
	insp *Inspector

	mu   sync.Mutex
	last map[string]CPUTimes
}

func NewCPUUtilPollster(insp *Inspector) *CPUUtilPollster {
	return &CPUUtilPollster{insp: insp, last: make(map[string]CPUTimes)}
}

func (p *CPUUtilPollster) Name() string             { return "host.cpu.util" }
func (p *CPUUtilPollster) DefaultDiscovery() string { return LocalHostDiscovery }

func (p *CPUUtilPollster) GetSamples(ctx context.Context, cache *plugin.Cache, resources []string) ([]sample.Sample, error) {
	hosts, err := localResources(ctx, p.insp, resources)
	if err != nil {
		return nil, err
	}
	times, err := cpuTimes(ctx, p.insp, cache)
	if err != nil {
		return nil, err
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	var out []sample.Sample
	for _, h := range hosts {
		prev, exists := p.last[h]
		p.last[h] = times
		if !exists {
			logger.Debug("first collect CPU times (skip usage calc)", zap.String("resource", h))
			continue
		}
		deltaTotal := times.Total() - prev.Total()
		if deltaTotal <= 0 {
			logger.Debug("CPU total time not changed (skip usage calc)", zap.String("resource", h))
			continue
		}
		deltaIdle := (times.Idle + times.Iowait) - (prev.Idle + prev.Iowait)
		util := (deltaTotal - deltaIdle) / deltaTotal * 100
		out = append(out, newSample(p.Name(), sample.TypeGauge, "%", util, h, nil))
	}
	return out, nil
}
