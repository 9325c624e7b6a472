package polling

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"github.com/polling-agent/pkg/logger"
	"github.com/polling-agent/pkg/plugin"
)

// parseDiscoveryURL <scheme>[:<parameter>]，也接受 scheme://parameter
func parseDiscoveryURL(raw string) (name, param string) {
	name, param, found := strings.Cut(raw, ":")
	if !found {
		return raw, ""
	}
	return name, strings.TrimPrefix(param, "//")
}

// Discover 依次解析每个 URL：命中缓存直接复用，否则调用 discoverer 并按其分组分区后写入缓存。
// 未知 scheme 和调用失败只记录日志，结果按空缓存，本周期不再重试。urls 为 nil 时使用代理默认发现
func (m *Manager) Discover(ctx context.Context, urls []string, cache DiscoveryCache) []string {
	if urls == nil {
		urls = m.defaultDiscovery
	}
	var out []string
	for _, u := range urls {
		if cache != nil {
			if cached, ok := cache[u]; ok {
				out = append(out, cached...)
				continue
			}
		}
		resources := m.discoverOne(ctx, u)
		if cache != nil {
			cache[u] = resources
		}
		out = append(out, resources...)
	}
	return out
}

func (m *Manager) discoverOne(ctx context.Context, url string) []string {
	name, param := parseDiscoveryURL(url)
	d, ok := m.discoverers[name]
	if !ok {
		logger.Warn("unknown discovery extension", zap.String("name", name), zap.String("url", url))
		m.metrics.DiscoveryErrors.WithLabelValues(name).Inc()
		return []string{}
	}

	m.metrics.DiscoveryCalls.WithLabelValues(name).Inc()
	discovered, err := callWithTimeout(ctx, m.pollsterTimeout, func(ctx context.Context) ([]string, error) {
		return d.Discover(ctx, param)
	})
	if err != nil {
		if plugin.IsBenign(err) {
			logger.Debug("discovery returned nothing", zap.String("url", url), zap.Error(err))
		} else {
			logger.Error("unable to discover resources", zap.String("url", url), zap.Error(err))
			m.metrics.DiscoveryErrors.WithLabelValues(name).Inc()
		}
		return []string{}
	}

	partitioned := m.partition(ctx, m.ConstructGroupID(d.GroupID()), discovered)
	if partitioned == nil {
		return []string{}
	}
	return partitioned
}
