package alarm

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"

	"github.com/polling-agent/pkg/logger"
	"github.com/polling-agent/pkg/metrics"
)

// EvaluateAssigned 一次评估周期：取分配到的告警，逐条交给对应类型的评估器。
// 不支持的类型跳过，单条失败不影响其他告警，错误只记录
func EvaluateAssigned(ctx context.Context, assigner Assigner, evaluators Evaluators, m *metrics.AlarmMetrics) {
	if m == nil {
		m = metrics.NewNopFactory().NewAlarmMetrics()
	}
	alarms, err := assigner.AssignedAlarms(ctx)
	if err != nil {
		logger.Error("alarm evaluation cycle failed", zap.Error(err))
		return
	}
	m.AssignedAlarms.Set(float64(len(alarms)))
	logger.Info("initiating evaluation cycle", zap.Int("alarms", len(alarms)))

	for _, a := range alarms {
		ev, ok := evaluators[a.Type]
		if !ok {
			logger.Debug("skipping alarm: type unsupported", zap.String("alarm_id", a.ID), zap.String("type", a.Type))
			continue
		}
		logger.Debug("evaluating alarm", zap.String("alarm_id", a.ID))
		m.Evaluations.WithLabelValues(a.Type).Inc()
		if err := evaluate(ctx, ev, a); err != nil {
			logger.Error("alarm evaluation failed", zap.String("alarm_id", a.ID), zap.Error(err))
			m.EvaluationErrors.WithLabelValues(a.Type).Inc()
		}
	}
}

func evaluate(ctx context.Context, ev Evaluator, a Alarm) (err error) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error("alarm evaluator panic", zap.Any("panic", r), zap.Stack("stack"))
			err = errors.New("evaluator panicked")
		}
	}()
	return ev.Evaluate(ctx, a)
}

// Timer 随服务启动的周期任务（presence/mastership/heartbeat）
type Timer struct {
	Name         string
	Interval     time.Duration
	InitialDelay time.Duration
	Run          func(ctx context.Context)
}

// ServiceOptions 评估服务依赖
type ServiceOptions struct {
	Assigner   Assigner
	Evaluators Evaluators
	Interval   time.Duration
	// DelayStart 为 true 时第一次评估推迟一个周期
	DelayStart bool
	Timers     []Timer
	Metrics    *metrics.AlarmMetrics
	Clock      clockwork.Clock
}

// Service 定时评估分配给本进程的告警
type Service struct {
	opts ServiceOptions

	mu     sync.Mutex
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewService(opts ServiceOptions) (*Service, error) {
	if opts.Assigner == nil {
		return nil, errors.New("alarm: assigner is required")
	}
	if opts.Interval <= 0 {
		return nil, errors.New("alarm: evaluation interval must be positive")
	}
	for _, t := range opts.Timers {
		if t.Interval <= 0 || t.Run == nil {
			return nil, errors.New("alarm: timer " + t.Name + " needs a positive interval and a func")
		}
	}
	if opts.Metrics == nil {
		opts.Metrics = metrics.NewNopFactory().NewAlarmMetrics()
	}
	if opts.Clock == nil {
		opts.Clock = clockwork.NewRealClock()
	}
	return &Service{opts: opts}, nil
}

// Start 启动评估定时器和附加定时器。没有评估器时不调度评估
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		return errors.New("alarm: service already started")
	}
	runCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel

	if len(s.opts.Evaluators) > 0 {
		var delay time.Duration
		if s.opts.DelayStart {
			delay = s.opts.Interval
		}
		s.spawn(runCtx, Timer{
			Name:         "evaluation",
			Interval:     s.opts.Interval,
			InitialDelay: delay,
			Run: func(ctx context.Context) {
				EvaluateAssigned(ctx, s.opts.Assigner, s.opts.Evaluators, s.opts.Metrics)
			},
		})
	} else {
		logger.Warn("no alarm evaluators loaded, evaluation disabled")
	}
	for _, t := range s.opts.Timers {
		s.spawn(runCtx, t)
	}
	logger.Info("alarm evaluation service started",
		zap.Duration("interval", s.opts.Interval),
		zap.Strings("types", s.opts.Evaluators.Types()),
		zap.Int("timers", len(s.opts.Timers)))
	return nil
}

func (s *Service) Stop() {
	s.mu.Lock()
	cancel := s.cancel
	s.mu.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	s.wg.Wait()
	logger.Info("alarm evaluation service stopped")
}

func (s *Service) spawn(ctx context.Context, t Timer) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		if t.InitialDelay > 0 {
			select {
			case <-ctx.Done():
				return
			case <-s.opts.Clock.After(t.InitialDelay):
			}
		}
		ticker := s.opts.Clock.NewTicker(t.Interval)
		defer ticker.Stop()
		for {
			logger.Debug("alarm timer fired", zap.String("timer", t.Name))
			t.Run(context.WithoutCancel(ctx))
			select {
			case <-ctx.Done():
				return
			case <-ticker.Chan():
			}
		}
	}()
}
