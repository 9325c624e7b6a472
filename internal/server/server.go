// Package server HTTP服务：/metrics 指标暴露、/health 健康检查，
// 以及由调用方挂载的业务路由（membership API、告警分区 RPC）
package server

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/polling-agent/pkg/config"
	"github.com/polling-agent/pkg/logger"
)

// RouteRegistrar 向路由挂载额外的处理器
type RouteRegistrar func(r chi.Router)

// HTTPServer HTTP服务实例
type HTTPServer struct {
	addr     string
	server   *http.Server
	listener net.Listener
}

// statusWriter 包装 http.ResponseWriter，捕获响应状态码
type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(statusCode int) {
	w.status = statusCode
	w.ResponseWriter.WriteHeader(statusCode)
}

// httpShutdownTimeout 优雅关闭超时时间
const httpShutdownTimeout = 5 * time.Second

// NewHTTPServer 创建HTTP服务
//
//	cfg: 监听地址与读/写/空闲超时
//	gatherer: /metrics 暴露的指标来源
//	routes: 额外挂载的业务路由
func NewHTTPServer(cfg config.ServerConfig, gatherer prometheus.Gatherer, routes ...RouteRegistrar) *HTTPServer {
	r := chi.NewRouter()
	r.Use(recoverPanics)
	r.Use(logRequests)

	r.Get("/", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		_, _ = w.Write([]byte("polling agent: see /metrics and /health\n"))
	})
	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})
	r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{
		ErrorLog: zap.NewStdLog(logger.GetLogger()),
	}))
	for _, register := range routes {
		register(r)
	}

	return &HTTPServer{
		addr: cfg.Addr,
		server: &http.Server{
			Addr:         cfg.Addr,
			Handler:      r,
			ReadTimeout:  cfg.ReadTimeout,
			WriteTimeout: cfg.WriteTimeout,
			IdleTimeout:  cfg.IdleTimeout,
		},
	}
}

// logRequests 记录请求方法、路径、客户端地址、状态码与耗时
func logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(ww, r)
		logger.Debug("http request handled",
			zap.String("method", r.Method),
			zap.String("url", r.URL.String()),
			zap.String("remote", r.RemoteAddr),
			zap.Int("status", ww.status),
			zap.Duration("duration", time.Since(start)))
	})
}

// recoverPanics 处理器 panic 时记录堆栈并返回 500
func recoverPanics(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			rec := recover()
			if rec == nil {
				return
			}
			if rec == http.ErrAbortHandler {
				panic(rec)
			}
			logger.Error("http handler panicked",
				zap.Any("panic", rec),
				zap.String("method", r.Method),
				zap.String("url", r.URL.String()),
				zap.Stack("stack"))
			w.WriteHeader(http.StatusInternalServerError)
		}()
		next.ServeHTTP(w, r)
	})
}

// Handler 路由，测试中直接配合 httptest 使用
func (s *HTTPServer) Handler() http.Handler {
	return s.server.Handler
}

// Start 同步监听（端口占用等错误直接返回），在子 goroutine 中处理请求
func (s *HTTPServer) Start() error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return err
	}
	s.listener = ln
	logger.Info("starting HTTP server",
		zap.String("listen_addr", ln.Addr().String()),
		zap.Duration("read_timeout", s.server.ReadTimeout),
		zap.Duration("write_timeout", s.server.WriteTimeout),
		zap.Duration("idle_timeout", s.server.IdleTimeout))

	go func() {
		if err := s.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("HTTP server stopped unexpectedly", zap.Error(err), zap.String("listen_addr", s.addr))
		}
	}()
	return nil
}

// Addr 实际监听地址（配置 :0 时可取得随机端口）
func (s *HTTPServer) Addr() string {
	if s.listener != nil {
		return s.listener.Addr().String()
	}
	return s.addr
}

// Shutdown 优雅关闭，超时视为关闭完成
func (s *HTTPServer) Shutdown() error {
	logger.Info("starting graceful shutdown of HTTP server", zap.String("listen_addr", s.addr))

	shutdownCtx, cancel := context.WithTimeout(context.Background(), httpShutdownTimeout)
	defer cancel()

	if err := s.server.Shutdown(shutdownCtx); err != nil {
		if errors.Is(shutdownCtx.Err(), context.DeadlineExceeded) {
			return nil
		}
		logger.Error("HTTP server shutdown failed", zap.Error(err), zap.String("listen_addr", s.addr))
		return err
	}
	logger.Info("HTTP server shutdown successfully", zap.String("listen_addr", s.addr))
	return nil
}
