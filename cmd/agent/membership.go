package agent

import (
	"fmt"

	"github.com/go-chi/chi"
	"github.com/jonboulle/clockwork"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/polling-agent/internal/server"
	"github.com/polling-agent/pkg/config"
	"github.com/polling-agent/pkg/logger"
	"github.com/polling-agent/pkg/membership"
	"github.com/polling-agent/pkg/signal"
)

var membershipCmd = &cobra.Command{
	Use:   "membership",
	Short: "Run the TTL membership service used by the http coordination backend",
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, err := config.LoadConfigWithCli(cmd)
		if err != nil {
			return fmt.Errorf("load config (check --config): %w", err)
		}
		if err := logger.Init(cfg.Log); err != nil {
			return fmt.Errorf("日志初始化失败: %w", err)
		}
		logger.SetDefaultComponent("membership")
		defer func() { _ = logger.Sync() }()

		promReg, err := newPromRegistry()
		if err != nil {
			return err
		}
		store := membership.NewStore(cfg.Coordination.MemberTTL, clockwork.NewRealClock())
		httpServer := server.NewHTTPServer(cfg.Server, promReg, membershipRoutes(store))
		if err := httpServer.Start(); err != nil {
			return fmt.Errorf("start HTTP server failed: %w", err)
		}
		logger.Info("membership service running",
			zap.String("http", httpServer.Addr()),
			zap.Duration("member_ttl", cfg.Coordination.MemberTTL))

		return signal.WaitForShutdown(cmd.Context(), shutdownTimeout, httpServer.Shutdown)
	},
}

func membershipRoutes(store *membership.Store) server.RouteRegistrar {
	return func(r chi.Router) {
		membership.Routes(r, store)
	}
}
