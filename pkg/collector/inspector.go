// Package collector 本机 pollster（CPU/内存/负载）与 local_host 发现，基于 gopsutil
package collector

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/host"
	"github.com/shirou/gopsutil/v3/load"
	"github.com/shirou/gopsutil/v3/mem"
)

// Inspector 读取本机状态。字段可替换，测试中注入固定数据
type Inspector struct {
	CPUTimes      func(ctx context.Context) ([]cpu.TimesStat, error)
	CPUCounts     func(ctx context.Context) (int, error)
	VirtualMemory func(ctx context.Context) (*mem.VirtualMemoryStat, error)
	LoadAvg       func(ctx context.Context) (*load.AvgStat, error)
	HostInfo      func(ctx context.Context) (*host.InfoStat, error)

	mu         sync.Mutex
	resourceID string
}

// NewInspector gopsutil 实现
func NewInspector() *Inspector {
	return &Inspector{
		CPUTimes: func(ctx context.Context) ([]cpu.TimesStat, error) {
			return cpu.TimesWithContext(ctx, false)
		},
		CPUCounts: func(ctx context.Context) (int, error) {
			return cpu.CountsWithContext(ctx, true)
		},
		VirtualMemory: mem.VirtualMemoryWithContext,
		LoadAvg:       load.AvgWithContext,
		HostInfo:      host.InfoWithContext,
	}
}

// ResourceID 本机资源ID：<hostname>_<hostid>，首次成功后缓存，失败不缓存
func (i *Inspector) ResourceID(ctx context.Context) (string, error) {
	i.mu.Lock()
	defer i.mu.Unlock()
	if i.resourceID != "" {
		return i.resourceID, nil
	}
	info, err := i.HostInfo(ctx)
	if err != nil {
		return "", fmt.Errorf("read host info: %w", err)
	}
	id := info.Hostname
	if info.HostID != "" {
		id += "_" + info.HostID
	}
	i.resourceID = id
	return id, nil
}

// Hostname 资源ID中的主机名部分
func Hostname(resourceID string) string {
	name, _, _ := strings.Cut(resourceID, "_")
	return name
}
