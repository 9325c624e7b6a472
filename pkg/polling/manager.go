package polling

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"

	"github.com/polling-agent/pkg/coordination"
	"github.com/polling-agent/pkg/logger"
	"github.com/polling-agent/pkg/metrics"
	"github.com/polling-agent/pkg/pipeline"
	"github.com/polling-agent/pkg/plugin"
)

// Options 构造 Manager 所需依赖
type Options struct {
	Namespace        string
	GroupPrefix      string
	DefaultDiscovery []string
	Registry         *plugin.Registry
	Coordinator      PartitionCoordinator // nil 表示单代理模式
	Pipelines        *pipeline.Manager
	Heartbeat        time.Duration
	PollsterTimeout  time.Duration
	Metrics          *metrics.AgentMetrics
	Clock            clockwork.Clock
}

// Manager 轮询代理：加载命名空间下的插件，加入分区组，按周期调度 PollingTask
type Manager struct {
	namespace        string
	groupPrefix      string
	defaultDiscovery []string
	pollsters        []plugin.Pollster
	discoverers      map[string]plugin.Discoverer
	coordinator      PartitionCoordinator
	pipelines        *pipeline.Manager
	heartbeat        time.Duration
	pollsterTimeout  time.Duration
	metrics          *metrics.AgentMetrics
	clock            clockwork.Clock

	mu     sync.Mutex
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewManager 构造期错误同步返回，不会返回半初始化的 Manager
func NewManager(opts Options) (*Manager, error) {
	if opts.Namespace == "" {
		return nil, errors.New("polling: namespace is required")
	}
	if opts.Registry == nil {
		return nil, errors.New("polling: plugin registry is required")
	}
	if opts.Pipelines == nil {
		return nil, errors.New("polling: pipeline manager is required")
	}
	if !opts.Registry.HasNamespace(opts.Namespace) {
		return nil, fmt.Errorf("polling: no pollsters registered in namespace %s", opts.Namespace)
	}
	pollsters, err := opts.Registry.Pollsters(opts.Namespace)
	if err != nil {
		return nil, fmt.Errorf("polling: %w", err)
	}
	discoverers, err := opts.Registry.Discoverers()
	if err != nil {
		return nil, fmt.Errorf("polling: %w", err)
	}

	if opts.Coordinator == nil {
		opts.Coordinator = coordination.New(nil, "")
	}
	if opts.Heartbeat <= 0 {
		opts.Heartbeat = time.Second
	}
	if opts.PollsterTimeout <= 0 {
		opts.PollsterTimeout = 30 * time.Second
	}
	if opts.Metrics == nil {
		opts.Metrics = metrics.NewNopFactory().NewAgentMetrics()
	}
	if opts.Clock == nil {
		opts.Clock = clockwork.NewRealClock()
	}

	groupPrefix := opts.Namespace
	if opts.GroupPrefix != "" {
		groupPrefix = opts.Namespace + "-" + opts.GroupPrefix
	}

	return &Manager{
		namespace:        opts.Namespace,
		groupPrefix:      groupPrefix,
		defaultDiscovery: opts.DefaultDiscovery,
		pollsters:        pollsters,
		discoverers:      discoverers,
		coordinator:      opts.Coordinator,
		pipelines:        opts.Pipelines,
		heartbeat:        opts.Heartbeat,
		pollsterTimeout:  opts.PollsterTimeout,
		metrics:          opts.Metrics,
		clock:            opts.Clock,
	}, nil
}

// ConstructGroupID <namespace>[-<group_prefix>]-<id>，id 为空返回空组
func (m *Manager) ConstructGroupID(id string) string {
	return coordination.ConstructGroupID(m.groupPrefix, id)
}

// PartitioningGroups 启动前需要加入的全部分组（已排序）：
// 每个不同的 discoverer 分组 + 每组不同的静态资源集合
func (m *Manager) PartitioningGroups() []string {
	groups := make(map[string]struct{})
	for _, d := range m.discoverers {
		if g := m.ConstructGroupID(d.GroupID()); g != "" {
			groups[g] = struct{}{}
		}
	}
	for _, p := range m.pipelines.Pipelines() {
		if res := p.Resources(); len(res) > 0 {
			groups[m.ConstructGroupID(coordination.HashOfSet(res))] = struct{}{}
		}
	}
	out := make([]string, 0, len(groups))
	for g := range groups {
		out = append(out, g)
	}
	sort.Strings(out)
	return out
}

// JoinPartitioningGroups 加入全部分组，返回所有失败的合并错误
func (m *Manager) JoinPartitioningGroups(ctx context.Context) error {
	var errs []error
	for _, g := range m.PartitioningGroups() {
		if err := m.coordinator.JoinGroup(ctx, g); err != nil {
			m.metrics.CoordinationErrors.WithLabelValues(g).Inc()
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// SetupPollingTasks pipelines × pollsters 的匹配按周期分组，每个周期一个任务
func (m *Manager) SetupPollingTasks() map[time.Duration]*PollingTask {
	tasks := make(map[time.Duration]*PollingTask)
	for _, pl := range m.pipelines.Pipelines() {
		for _, p := range m.pollsters {
			if !pl.SupportMeter(p.Name()) {
				continue
			}
			task, ok := tasks[pl.Interval()]
			if !ok {
				task = newPollingTask(m, pl.Interval())
				tasks[pl.Interval()] = task
			}
			task.Add(p, pl)
		}
	}
	return tasks
}

// Start 加入分区组并启动定时器。协调激活时每个周期的第一次采集推迟一个完整周期，
// 等成员视图稳定后再做归属判断
func (m *Manager) Start(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.cancel != nil {
		return errors.New("polling: manager already started")
	}

	if err := m.JoinPartitioningGroups(ctx); err != nil {
		logger.Error("failed to join partitioning groups, will retry on demand", zap.Error(err))
	}

	runCtx, cancel := context.WithCancel(ctx)
	m.cancel = cancel

	delayStart := m.coordinator.IsActive()
	tasks := m.SetupPollingTasks()
	for interval, task := range tasks {
		logger.Info("scheduling polling task",
			zap.Duration("interval", interval),
			zap.Bool("delay_start", delayStart))
		m.wg.Add(1)
		go m.runTask(runCtx, task, delayStart)
	}
	if m.coordinator.IsActive() {
		m.wg.Add(1)
		go m.runHeartbeat(runCtx)
	}

	logger.Info("polling agent started",
		zap.String("namespace", m.namespace),
		zap.Int("pollsters", len(m.pollsters)),
		zap.Int("tasks", len(tasks)),
		zap.Bool("coordinated", m.coordinator.IsActive()))
	return nil
}

// Stop 停止定时器并等待进行中的周期（含发布 flush）结束
func (m *Manager) Stop() {
	m.mu.Lock()
	cancel := m.cancel
	m.mu.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	m.wg.Wait()
	logger.Info("polling agent stopped", zap.String("namespace", m.namespace))
}

// runTask 单 goroutine 驱动一个任务，上一次周期结束前不会开始下一次；错过的 tick 被丢弃
func (m *Manager) runTask(ctx context.Context, task *PollingTask, delay bool) {
	defer m.wg.Done()
	if delay {
		select {
		case <-ctx.Done():
			return
		case <-m.clock.After(task.interval):
		}
	}

	ticker := m.clock.NewTicker(task.interval)
	defer ticker.Stop()
	for {
		// 关闭信号不打断进行中的周期，让发布完成 flush
		task.PollAndPublish(context.WithoutCancel(ctx))
		select {
		case <-ctx.Done():
			return
		case <-ticker.Chan():
		}
	}
}

func (m *Manager) runHeartbeat(ctx context.Context) {
	defer m.wg.Done()
	ticker := m.clock.NewTicker(m.heartbeat)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.Chan():
			if err := m.coordinator.Heartbeat(ctx); err != nil {
				logger.Error("coordination heartbeat failed", zap.Error(err))
				m.metrics.CoordinationErrors.WithLabelValues("heartbeat").Inc()
			}
		}
	}
}

// Pollsters 命名空间下加载的全部 pollster
func (m *Manager) Pollsters() []plugin.Pollster {
	out := make([]plugin.Pollster, len(m.pollsters))
	copy(out, m.pollsters)
	return out
}

// partition 分区失败时记录并计数，本周期该部分为空
func (m *Manager) partition(ctx context.Context, group string, universe []string) []string {
	subset, err := m.coordinator.ExtractMySubset(ctx, group, universe)
	if err != nil {
		logger.Error("partition coordination failed, skipping group this cycle",
			zap.String("group", group), zap.Int("universe", len(universe)), zap.Error(err))
		m.metrics.CoordinationErrors.WithLabelValues(group).Inc()
		return nil
	}
	return subset
}
