package collector

import (
	"context"
	"fmt"

	"github.com/polling-agent/pkg/plugin"
	"github.com/polling-agent/pkg/sample"
)

// MemoryUsagePollster host.memory.usage：内存使用率（%）
type MemoryUsagePollster struct {
	insp *Inspector
}

func NewMemoryUsagePollster(insp *Inspector) *MemoryUsagePollster {
	return &MemoryUsagePollster{insp: insp}
}

func (p *MemoryUsagePollster) Name() string             { return "host.memory.usage" }
func (p *MemoryUsagePollster) DefaultDiscovery() string { return LocalHostDiscovery }

func (p *MemoryUsagePollster) GetSamples(ctx context.Context, _ *plugin.Cache, resources []string) ([]sample.Sample, error) {
	hosts, err := localResources(ctx, p.insp, resources)
	if err != nil {
		return nil, err
	}
	vm, err := p.insp.VirtualMemory(ctx)
	if err != nil {
		return nil, fmt.Errorf("read memory usage: %w", err)
	}
	meta := map[string]string{
		"total_bytes": fmt.Sprint(vm.Total),
		"used_bytes":  fmt.Sprint(vm.Used),
	}
	out := make([]sample.Sample, 0, len(hosts))
	for _, h := range hosts {
		out = append(out, newSample(p.Name(), sample.TypeGauge, "%", vm.UsedPercent, h, meta))
	}
	return out, nil
}
