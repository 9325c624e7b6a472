package collector

import (
	"context"
	"time"

	"github.com/polling-agent/pkg/sample"
)

// LocalHostDiscovery 本机发现插件名
const LocalHostDiscovery = "local_host"

// LocalHostDiscoverer 返回本机资源ID。分组为空：每个代理只负责自己所在的主机
type LocalHostDiscoverer struct {
	insp *Inspector
}

func NewLocalHostDiscoverer(insp *Inspector) *LocalHostDiscoverer {
	return &LocalHostDiscoverer{insp: insp}
}

func (d *LocalHostDiscoverer) Name() string    { return LocalHostDiscovery }
func (d *LocalHostDiscoverer) GroupID() string { return "" }

func (d *LocalHostDiscoverer) Discover(ctx context.Context, _ string) ([]string, error) {
	id, err := d.insp.ResourceID(ctx)
	if err != nil {
		return nil, err
	}
	return []string{id}, nil
}

func newSample(name string, typ sample.Type, unit string, volume float64, resource string, meta map[string]string) sample.Sample {
	s := sample.Sample{
		Name:       name,
		Type:       typ,
		Unit:       unit,
		Volume:     volume,
		ResourceID: resource,
		Timestamp:  time.Now().UTC(),
	}
	s.ResourceMetadata = make(map[string]string, len(meta)+1)
	for k, v := range meta {
		s.ResourceMetadata[k] = v
	}
	s.ResourceMetadata["host"] = Hostname(resource)
	return s
}
