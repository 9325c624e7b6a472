package agent

import (
	"context"
	"fmt"
	"os"

	"github.com/go-chi/chi"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/polling-agent/internal/server"
	"github.com/polling-agent/pkg/alarm"
	"github.com/polling-agent/pkg/alarm/partition"
	"github.com/polling-agent/pkg/alarm/rpc"
	"github.com/polling-agent/pkg/config"
	"github.com/polling-agent/pkg/logger"
	"github.com/polling-agent/pkg/metrics"
	"github.com/polling-agent/pkg/signal"
	"github.com/polling-agent/pkg/util"
)

var alarmCmd = &cobra.Command{
	Use:   "alarm-evaluator",
	Short: "Evaluate alarms, assigned by singleton, coordinated or partitioned strategy",
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, err := config.LoadConfigWithCli(cmd)
		if err != nil {
			return fmt.Errorf("load config (check --config): %w", err)
		}
		return runAlarmEvaluator(cmd.Context(), cfg)
	},
}

func runAlarmEvaluator(ctx context.Context, cfg *config.Config) error {
	if err := logger.Init(cfg.Log); err != nil {
		return fmt.Errorf("日志初始化失败: %w", err)
	}
	logger.SetDefaultComponent("alarm-evaluator")
	defer func() { _ = logger.Sync() }()

	util.PrintBanner(os.Stdout, "alarm evaluator", "mode="+cfg.Alarm.Mode, "yellow")

	promReg, err := newPromRegistry()
	if err != nil {
		return err
	}
	alarmMetrics := metrics.NewMetricFactory(metrics.NewPromRegistry(promReg)).NewAlarmMetrics()
	lister := alarm.FileLister{Path: cfg.Alarm.DefinitionFile}
	interval := cfg.Alarm.EvaluationInterval

	opts := alarm.ServiceOptions{
		Evaluators: alarm.BuiltinEvaluators(),
		Interval:   interval,
		Metrics:    alarmMetrics,
	}
	var (
		routes  []server.RouteRegistrar
		cleanup = func() {}
	)

	switch cfg.Alarm.Mode {
	case "coordinated":
		coord, extra := newCoordinator(cfg.Coordination)
		routes = append(routes, extra...)
		assigner := alarm.Coordinated{Lister: lister, Coordinator: coord}
		assigner.Join(ctx)
		opts.Assigner = assigner
		// 给协调留出时间
		opts.DelayStart = coord.IsActive()
		if coord.IsActive() {
			opts.Timers = append(opts.Timers, alarm.Timer{
				Name:     "heartbeat",
				Interval: min(cfg.Coordination.Heartbeat, interval/4),
				Run: func(ctx context.Context) {
					if err := coord.Heartbeat(ctx); err != nil {
						logger.Error("coordination heartbeat failed", zap.Error(err))
					}
				},
			})
		}
		cleanup = func() { leaveAll(context.Background(), coord) }
	case "partitioned":
		pc, err := partition.New(partition.Options{
			Notifier: rpc.NewHTTPNotifier(cfg.Alarm.Peers, cfg.Coordination.Timeout),
			Lister:   lister,
			Interval: interval,
			Metrics:  alarmMetrics,
		})
		if err != nil {
			return err
		}
		logger.Info("partition identity", zap.Stringer("identity", pc.Identity()))
		routes = append(routes, func(r chi.Router) { rpc.Routes(r, pc) })
		opts.Assigner = pc
		opts.DelayStart = true
		opts.Timers = append(opts.Timers,
			alarm.Timer{Name: "presence", Interval: interval / 4, Run: pc.ReportPresence},
			alarm.Timer{
				Name:         "mastership",
				Interval:     interval / 2,
				InitialDelay: interval,
				Run:          func(ctx context.Context) { pc.CheckMastership(ctx) },
			})
	default:
		opts.Assigner = alarm.Singleton{Lister: lister}
	}

	svc, err := alarm.NewService(opts)
	if err != nil {
		return err
	}
	httpServer := server.NewHTTPServer(cfg.Server, promReg, routes...)
	if err := httpServer.Start(); err != nil {
		return fmt.Errorf("start HTTP server failed: %w", err)
	}
	if err := svc.Start(ctx); err != nil {
		_ = httpServer.Shutdown()
		return err
	}

	return signal.WaitForShutdown(ctx, shutdownTimeout, func() error {
		svc.Stop()
		cleanup()
		return httpServer.Shutdown()
	})
}
