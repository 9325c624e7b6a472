package agent

import (
	"context"
	"fmt"
	"os"
	"time"

	"go.uber.org/zap"

	"github.com/polling-agent/internal/server"
	"github.com/polling-agent/pkg/collector"
	"github.com/polling-agent/pkg/config"
	"github.com/polling-agent/pkg/logger"
	"github.com/polling-agent/pkg/metrics"
	"github.com/polling-agent/pkg/pipeline"
	"github.com/polling-agent/pkg/plugin"
	"github.com/polling-agent/pkg/polling"
	"github.com/polling-agent/pkg/signal"
	"github.com/polling-agent/pkg/util"
)

const shutdownTimeout = 30 * time.Second

func runAgent(ctx context.Context, cfg *config.Config) error {
	if err := logger.Init(cfg.Log); err != nil {
		return fmt.Errorf("日志初始化失败: %w", err)
	}
	logger.SetDefaultComponent("agent")
	defer func() { _ = logger.Sync() }()

	util.PrintBanner(os.Stdout, "polling agent", "namespace="+cfg.Polling.Namespace, "cyan")

	promReg, err := newPromRegistry()
	if err != nil {
		return err
	}
	factory := metrics.NewMetricFactory(metrics.NewPromRegistry(promReg))
	agentMetrics := factory.NewAgentMetrics()

	plugins := plugin.NewRegistry()
	if err := collector.Register(plugins, cfg.Polling.Namespace, collector.NewInspector()); err != nil {
		return fmt.Errorf("register host pollsters: %w", err)
	}

	def, err := pipeline.LoadDefinition(cfg.Polling.PipelineFile)
	if err != nil {
		return err
	}
	pipelines, err := pipeline.NewManager(def, pipeline.Options{Factory: factory, Metrics: agentMetrics})
	if err != nil {
		return err
	}

	coord, routes := newCoordinator(cfg.Coordination)
	mgr, err := polling.NewManager(polling.Options{
		Namespace:        cfg.Polling.Namespace,
		GroupPrefix:      cfg.Polling.GroupPrefix,
		DefaultDiscovery: cfg.Polling.DefaultDiscovery,
		Registry:         plugins,
		Coordinator:      coord,
		Pipelines:        pipelines,
		Heartbeat:        cfg.Coordination.Heartbeat,
		PollsterTimeout:  cfg.Polling.PollsterTimeout,
		Metrics:          agentMetrics,
	})
	if err != nil {
		return err
	}

	httpServer := server.NewHTTPServer(cfg.Server, promReg, routes...)
	if err := httpServer.Start(); err != nil {
		return fmt.Errorf("start HTTP server failed: %w", err)
	}
	if err := mgr.Start(ctx); err != nil {
		_ = httpServer.Shutdown()
		return err
	}
	logger.Info("polling agent running",
		zap.String("member_id", coord.MemberID()),
		zap.Strings("groups", mgr.PartitioningGroups()),
		zap.String("http", httpServer.Addr()))

	return signal.WaitForShutdown(ctx, shutdownTimeout, func() error {
		// 关闭顺序：轮询任务 → 离开分组 → HTTP服务
		mgr.Stop()
		leaveAll(context.Background(), coord)
		if err := httpServer.Shutdown(); err != nil {
			return fmt.Errorf("shutdown HTTP server failed: %w", err)
		}
		logger.Info("all services shutdown successfully")
		return nil
	})
}
