// Package signal 进程退出信号处理
package signal

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/polling-agent/pkg/logger"
)

// WaitForShutdown 阻塞直到收到 SIGINT/SIGTERM 或 ctx 结束，然后在 timeout 内执行 shutdownFunc。
// 超时返回错误，关闭流程仍在后台继续
func WaitForShutdown(ctx context.Context, timeout time.Duration, shutdownFunc func() error) error {
	sigCtx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger.Info("service is running, waiting for shutdown signal (SIGINT/SIGTERM)")
	<-sigCtx.Done()
	logger.Info("shutdown requested", zap.NamedError("cause", context.Cause(sigCtx)))

	done := make(chan error, 1)
	go func() {
		done <- shutdownFunc()
	}()

	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case err := <-done:
		if err != nil {
			logger.Error("graceful shutdown failed", zap.Error(err))
			return err
		}
		logger.Info("graceful shutdown completed")
		return nil
	case <-timer.C:
		logger.Error("graceful shutdown timed out", zap.Duration("timeout", timeout))
		return fmt.Errorf("shutdown timed out after %s", timeout)
	}
}
