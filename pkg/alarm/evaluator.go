package alarm

import (
	"context"
	"sort"
	"sync"

	"go.uber.org/zap"

	"github.com/polling-agent/pkg/logger"
)

// Evaluator 评估一条告警
type Evaluator interface {
	Evaluate(ctx context.Context, a Alarm) error
}

type EvaluatorFunc func(ctx context.Context, a Alarm) error

func (f EvaluatorFunc) Evaluate(ctx context.Context, a Alarm) error { return f(ctx, a) }

// Evaluators 告警类型 -> 评估器
type Evaluators map[string]Evaluator

// Types 支持的告警类型（排序）
func (e Evaluators) Types() []string {
	out := make([]string, 0, len(e))
	for t := range e {
		out = append(out, t)
	}
	sort.Strings(out)
	return out
}

// LogEvaluator 只记录评估，用于验证分配与调度
type LogEvaluator struct {
	mu        sync.Mutex
	evaluated []string
}

func (l *LogEvaluator) Evaluate(_ context.Context, a Alarm) error {
	logger.Info("alarm evaluated", zap.String("alarm_id", a.ID), zap.String("name", a.Name), zap.Any("rule", a.Rule))
	l.mu.Lock()
	l.evaluated = append(l.evaluated, a.ID)
	l.mu.Unlock()
	return nil
}

// Evaluated 已评估的告警ID（按评估顺序）
func (l *LogEvaluator) Evaluated() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]string, len(l.evaluated))
	copy(out, l.evaluated)
	return out
}

// BuiltinEvaluators 内置评估器
func BuiltinEvaluators() Evaluators {
	return Evaluators{"log": &LogEvaluator{}}
}
