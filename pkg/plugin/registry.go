package plugin

import (
	"fmt"
	"sort"
	"sync"
)

type (
	PollsterFactory   func() (Pollster, error)
	DiscovererFactory func() (Discoverer, error)
)

// Registry 名称 -> 工厂 的能力表，启动时填充，运行时只读
type Registry struct {
	mu          sync.RWMutex
	pollsters   map[string]map[string]PollsterFactory
	discoverers map[string]DiscovererFactory
}

func NewRegistry() *Registry {
	return &Registry{
		pollsters:   make(map[string]map[string]PollsterFactory),
		discoverers: make(map[string]DiscovererFactory),
	}
}

// RegisterPollster 在命名空间下注册 pollster，同名重复注册返回错误
func (r *Registry) RegisterPollster(namespace, name string, f PollsterFactory) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	ns, ok := r.pollsters[namespace]
	if !ok {
		ns = make(map[string]PollsterFactory)
		r.pollsters[namespace] = ns
	}
	if _, dup := ns[name]; dup {
		return fmt.Errorf("pollster %s already registered in namespace %s", name, namespace)
	}
	ns[name] = f
	return nil
}

func (r *Registry) RegisterDiscoverer(name string, f DiscovererFactory) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, dup := r.discoverers[name]; dup {
		return fmt.Errorf("discoverer %s already registered", name)
	}
	r.discoverers[name] = f
	return nil
}

// HasNamespace 命名空间下是否注册过 pollster
func (r *Registry) HasNamespace(namespace string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.pollsters[namespace]
	return ok
}

// Pollsters 按名称排序实例化命名空间下的全部 pollster
func (r *Registry) Pollsters(namespace string) ([]Pollster, error) {
	r.mu.RLock()
	ns := r.pollsters[namespace]
	names := make([]string, 0, len(ns))
	for name := range ns {
		names = append(names, name)
	}
	factories := make([]PollsterFactory, 0, len(ns))
	sort.Strings(names)
	for _, name := range names {
		factories = append(factories, ns[name])
	}
	r.mu.RUnlock()

	out := make([]Pollster, 0, len(factories))
	for i, f := range factories {
		p, err := f()
		if err != nil {
			return nil, fmt.Errorf("load pollster %s: %w", names[i], err)
		}
		out = append(out, p)
	}
	return out, nil
}

// Discoverers 实例化全部 discoverer，按名称索引
func (r *Registry) Discoverers() (map[string]Discoverer, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(map[string]Discoverer, len(r.discoverers))
	for name, f := range r.discoverers {
		d, err := f()
		if err != nil {
			return nil, fmt.Errorf("load discoverer %s: %w", name, err)
		}
		out[name] = d
	}
	return out, nil
}
