// Package polling 轮询编排：资源解析、按周期分组的采集任务、代理生命周期
package polling

import (
	"context"
	"slices"

	"github.com/polling-agent/pkg/coordination"
	"github.com/polling-agent/pkg/pipeline"
)

// DiscoveryCache 单周期内 URL -> 已分区资源列表，周期结束即丢弃
type DiscoveryCache map[string][]string

// PartitionCoordinator 分区协调能力，coordination.Coordinator 实现
type PartitionCoordinator interface {
	JoinGroup(ctx context.Context, group string) error
	ExtractMySubset(ctx context.Context, group string, universe []string) ([]string, error)
	IsActive() bool
	Heartbeat(ctx context.Context) error
}

// agent ResourceSet 依赖的代理能力
type agent interface {
	Discover(ctx context.Context, urls []string, cache DiscoveryCache) []string
	ConstructGroupID(id string) string
	// partition 协调失败时已记录日志和指标，返回 nil
	partition(ctx context.Context, group string, universe []string) []string
}

// ResourceSet 一个 (source, pollster) 组合的静态资源与发现 URL
type ResourceSet struct {
	agent     agent
	resources []string
	discovery []string
}

func newResourceSet(a agent) *ResourceSet {
	return &ResourceSet{agent: a}
}

// resourceKey <source>-<pollster>
func resourceKey(source, pollster string) string {
	return source + "-" + pollster
}

// Setup 记录 source 的静态资源和发现 URL，重复调用结果相同
func (r *ResourceSet) Setup(p *pipeline.Pipeline) {
	r.resources = p.Resources()
	r.discovery = p.Discovery()
}

// Get 本周期的资源：本代理拥有的静态资源在前，发现的资源在后，两者之间不去重
func (r *ResourceSet) Get(ctx context.Context, cache DiscoveryCache) []string {
	var discovered []string
	if len(r.discovery) > 0 {
		discovered = r.agent.Discover(ctx, r.discovery, cache)
	}

	var static []string
	if len(r.resources) > 0 {
		group := r.agent.ConstructGroupID(coordination.HashOfSet(r.resources))
		static = r.agent.partition(ctx, group, slices.Clone(r.resources))
	}
	return append(static, discovered...)
}
