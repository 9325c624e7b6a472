package collector

import (
	"context"
	"fmt"
	"runtime"
	"strconv"

	"github.com/polling-agent/pkg/plugin"
	"github.com/polling-agent/pkg/sample"
)

// LoadPollster host.load：1 分钟平均负载，5/15 分钟放在 metadata
type LoadPollster struct {
	insp *Inspector
	goos string
}

func NewLoadPollster(insp *Inspector) *LoadPollster {
	return &LoadPollster{insp: insp, goos: runtime.GOOS}
}

func (p *LoadPollster) Name() string             { return "host.load" }
func (p *LoadPollster) DefaultDiscovery() string { return LocalHostDiscovery }

func (p *LoadPollster) GetSamples(ctx context.Context, _ *plugin.Cache, resources []string) ([]sample.Sample, error) {
	if p.goos == "windows" {
		return nil, fmt.Errorf("load average on %s: %w", p.goos, plugin.ErrNotImplemented)
	}
	hosts, err := localResources(ctx, p.insp, resources)
	if err != nil {
		return nil, err
	}
	avg, err := p.insp.LoadAvg(ctx)
	if err != nil {
		return nil, fmt.Errorf("read load average: %w", err)
	}
	meta := map[string]string{
		"load5":  strconv.FormatFloat(avg.Load5, 'f', 2, 64),
		"load15": strconv.FormatFloat(avg.Load15, 'f', 2, 64),
	}
	out := make([]sample.Sample, 0, len(hosts))
	for _, h := range hosts {
		out = append(out, newSample(p.Name(), sample.TypeGauge, "process", avg.Load1, h, meta))
	}
	return out, nil
}
