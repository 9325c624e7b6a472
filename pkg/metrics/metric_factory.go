package metrics

import (
	"errors"

	"github.com/prometheus/client_golang/prometheus"
)

// MetricFactory 指标工厂，用于统一创建指标（counter/gauge/histogram）。
type MetricFactory struct {
	reg Registers
}

// NewMetricFactory 创建指标工厂
func NewMetricFactory(reg Registers) *MetricFactory {
	return &MetricFactory{reg: reg}
}

// Registerer 返回底层注册器（prometheus publisher 使用）
func (m *MetricFactory) Registerer() prometheus.Registerer {
	return m.reg
}

// registerOrExisting 注册指标；同名指标已存在时复用已注册的实例
// 同一进程内 alarm-evaluator 与 agent 共享 registry 时不会 panic
func registerOrExisting[T prometheus.Collector](reg Registers, c T) T {
	if err := reg.Register(c); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			if existing, ok := are.ExistingCollector.(T); ok {
				return existing
			}
		}
		panic(err)
	}
	return c
}
