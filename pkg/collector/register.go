package collector

import (
	"errors"

	"github.com/polling-agent/pkg/plugin"
)

// Register 在命名空间下注册本机 pollster，并注册 local_host 发现插件
func Register(reg *plugin.Registry, namespace string, insp *Inspector) error {
	pollsters := []plugin.Pollster{
		NewCPUTimePollster(insp),
		NewCPUUtilPollster(insp),
		NewMemoryUsagePollster(insp),
		NewLoadPollster(insp),
	}
	var errs []error
	for _, p := range pollsters {
		p := p
		errs = append(errs, reg.RegisterPollster(namespace, p.Name(), func() (plugin.Pollster, error) { return p, nil }))
	}
	errs = append(errs, reg.RegisterDiscoverer(LocalHostDiscovery, func() (plugin.Discoverer, error) {
		return NewLocalHostDiscoverer(insp), nil
	}))
	return errors.Join(errs...)
}
