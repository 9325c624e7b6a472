package agent

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"

	"github.com/polling-agent/internal/server"
	"github.com/polling-agent/pkg/config"
	"github.com/polling-agent/pkg/coordination"
	"github.com/polling-agent/pkg/logger"
	"github.com/polling-agent/pkg/membership"
)

// newPromRegistry 独立 registry：进程指标 + Go 运行时指标，业务指标由 MetricFactory 注册
func newPromRegistry() (*prometheus.Registry, error) {
	reg := prometheus.NewRegistry()
	for _, c := range []prometheus.Collector{
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		collectors.NewGoCollector(),
	} {
		if err := reg.Register(c); err != nil {
			return nil, fmt.Errorf("register runtime collector: %w", err)
		}
	}
	return reg, nil
}

// newCoordinator 按配置构造分区协调器。
// memory 后端同时把成员服务挂到本进程的 HTTP 服务上，其他代理可用 http 后端指向它
func newCoordinator(cfg config.CoordinationConfig) (*coordination.Coordinator, []server.RouteRegistrar) {
	memberID := cfg.MemberID
	if memberID == "" {
		memberID = uuid.NewString()
	}

	switch cfg.Backend {
	case "memory":
		store := membership.NewStore(cfg.MemberTTL, clockwork.NewRealClock())
		logger.Info("using in-process membership store", zap.String("member_id", memberID), zap.Duration("ttl", cfg.MemberTTL))
		return coordination.New(store, memberID), []server.RouteRegistrar{membershipRoutes(store)}
	case "http":
		logger.Info("using remote membership service", zap.String("member_id", memberID), zap.String("url", cfg.URL))
		return coordination.New(coordination.NewHTTPBackend(cfg.URL, cfg.Timeout), memberID), nil
	default:
		logger.Info("coordination disabled, running as the only agent")
		return coordination.New(nil, ""), nil
	}
}

// leaveAll 退出时离开已加入的分组，其他成员无需等待 TTL 过期
func leaveAll(ctx context.Context, c *coordination.Coordinator) {
	for _, g := range c.Groups() {
		if err := c.LeaveGroup(ctx, g); err != nil {
			logger.Warn("leave group failed", zap.String("group", g), zap.Error(err))
		}
	}
}
