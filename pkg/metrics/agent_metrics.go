package metrics

import "github.com/prometheus/client_golang/prometheus"

// AgentMetrics 轮询代理自身监控指标
type AgentMetrics struct {
	CycleDuration      *prometheus.HistogramVec // 一次 poll_and_publish 耗时
	PollsterErrors     *prometheus.CounterVec   // pollster 采集失败次数
	PollsterSamples    *prometheus.CounterVec   // pollster 产出样本数
	DiscoveryErrors    *prometheus.CounterVec   // 发现失败次数（含未知 scheme）
	DiscoveryCalls     *prometheus.CounterVec   // discoverer 实际调用次数
	CoordinationErrors *prometheus.CounterVec   // 分区协调失败次数
	PublishedSamples   *prometheus.CounterVec   // 写入 publisher 的样本数
	PublishErrors      *prometheus.CounterVec   // publisher 失败次数
	TransformErrors    *prometheus.CounterVec   // transformer 丢弃样本次数
}

// NewAgentMetrics 创建并注册轮询代理指标
func (m *MetricFactory) NewAgentMetrics() *AgentMetrics {
	return &AgentMetrics{
		CycleDuration: registerOrExisting(m.reg, prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "polling_cycle_duration_seconds",
			Help:    "Duration of one poll and publish cycle per interval",
			Buckets: prometheus.ExponentialBuckets(0.01, 2, 12), // 0.01s ~ 20.48s
		}, []string{"interval"})),
		PollsterErrors: registerOrExisting(m.reg, prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "polling_pollster_errors_total",
			Help: "Total pollster failures",
		}, []string{"pollster"})),
		PollsterSamples: registerOrExisting(m.reg, prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "polling_pollster_samples_total",
			Help: "Total samples gathered per pollster",
		}, []string{"pollster"})),
		DiscoveryErrors: registerOrExisting(m.reg, prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "polling_discovery_errors_total",
			Help: "Total discovery failures per discoverer scheme",
		}, []string{"discoverer"})),
		DiscoveryCalls: registerOrExisting(m.reg, prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "polling_discovery_calls_total",
			Help: "Total discoverer invocations",
		}, []string{"discoverer"})),
		CoordinationErrors: registerOrExisting(m.reg, prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "coordination_errors_total",
			Help: "Total partition coordination failures per group",
		}, []string{"group"})),
		PublishedSamples: registerOrExisting(m.reg, prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "pipeline_published_samples_total",
			Help: "Total samples handed to publishers per pipeline",
		}, []string{"pipeline"})),
		PublishErrors: registerOrExisting(m.reg, prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "pipeline_publish_errors_total",
			Help: "Total publisher failures",
		}, []string{"pipeline", "publisher"})),
		TransformErrors: registerOrExisting(m.reg, prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "pipeline_transform_errors_total",
			Help: "Total samples dropped by a failing transformer",
		}, []string{"pipeline", "transformer"})),
	}
}

// AlarmMetrics 告警评估服务指标
type AlarmMetrics struct {
	Evaluations      *prometheus.CounterVec // 评估次数
	EvaluationErrors *prometheus.CounterVec // 评估失败次数
	AssignedAlarms   prometheus.Gauge       // 当前分配到本进程的告警数
	IsMaster         prometheus.Gauge       // partitioned 模式下是否为 master
}

// NewAlarmMetrics 创建并注册告警评估指标
func (m *MetricFactory) NewAlarmMetrics() *AlarmMetrics {
	return &AlarmMetrics{
		Evaluations: registerOrExisting(m.reg, prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "alarm_evaluations_total",
			Help: "Total alarm evaluations per alarm type",
		}, []string{"type"})),
		EvaluationErrors: registerOrExisting(m.reg, prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "alarm_evaluation_errors_total",
			Help: "Total failed alarm evaluations per alarm type",
		}, []string{"type"})),
		AssignedAlarms: registerOrExisting(m.reg, prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "alarm_assigned_alarms",
			Help: "Number of alarms assigned to this evaluator in the last cycle",
		})),
		IsMaster: registerOrExisting(m.reg, prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "alarm_partition_is_master",
			Help: "1 if this evaluator believes it is the partition master",
		})),
	}
}

// NewNopFactory 使用独立 registry 的工厂，测试与未暴露 /metrics 的场景使用
func NewNopFactory() *MetricFactory {
	return NewMetricFactory(NewPromRegistry(prometheus.NewRegistry()))
}

// NewSampleVolumeGauge prometheus:// publisher 导出样本最新值
func (m *MetricFactory) NewSampleVolumeGauge() *prometheus.GaugeVec {
	return registerOrExisting(m.reg, prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "polling_sample_volume",
		Help: "Latest published sample volume",
	}, []string{"name", "resource_id", "unit", "type"}))
}
