// Package plugin 定义 pollster/discoverer 能力接口和按名称查找的注册表
package plugin

import (
	"context"
	"errors"

	"github.com/polling-agent/pkg/sample"
)

var (
	// ErrNotImplemented pollster 不支持当前环境，属于良性错误（debug 日志）
	ErrNotImplemented = errors.New("plugin: not implemented")
	// ErrResourceNotFound 资源已不存在，属于良性错误（debug 日志）
	ErrResourceNotFound = errors.New("plugin: resource not found")
)

// Pollster 为一类资源产出样本
type Pollster interface {
	Name() string
	// DefaultDiscovery 返回默认发现URL，为空表示没有
	DefaultDiscovery() string
	GetSamples(ctx context.Context, cache *Cache, resources []string) ([]sample.Sample, error)
}

// Discoverer 动态枚举资源
type Discoverer interface {
	Name() string
	// GroupID 分区组ID，为空表示不参与分区（每个代理都拥有全部结果）
	GroupID() string
	Discover(ctx context.Context, param string) ([]string, error)
}

// IsBenign 判断错误是否为良性错误
func IsBenign(err error) bool {
	return errors.Is(err, ErrNotImplemented) || errors.Is(err, ErrResourceNotFound)
}
