// Package partition 无外部成员服务时告警评估进程之间的分区协议：
// 周期性广播 presence，按 (priority, uuid) 最小者选出 master，
// master 通过 assign 全量分配、allocate 增量分配告警
package partition

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"

	"github.com/polling-agent/pkg/alarm"
	"github.com/polling-agent/pkg/logger"
	"github.com/polling-agent/pkg/metrics"
)

// Identity 评估进程身份。Priority 越小越优先，默认是启动时间戳，最早启动的进程当选
type Identity struct {
	UUID     string  `json:"uuid"`
	Priority float64 `json:"priority"`
}

// Less 先比较 priority，相同时比较 uuid
func (i Identity) Less(o Identity) bool {
	if i.Priority != o.Priority {
		return i.Priority < o.Priority
	}
	return i.UUID < o.UUID
}

func (i Identity) String() string {
	return fmt.Sprintf("%s/%.6f", i.UUID, i.Priority)
}

// NewIdentity 随机 uuid + 当前时间作为 priority
func NewIdentity(clock clockwork.Clock) Identity {
	return Identity{
		UUID:     uuid.NewString(),
		Priority: float64(clock.Now().UnixNano()) / 1e9,
	}
}

// Notifier 单向广播给所有评估进程
type Notifier interface {
	Presence(ctx context.Context, uuid string, priority float64) error
	Assign(ctx context.Context, uuid string, alarms []string) error
	Allocate(ctx context.Context, uuid string, alarms []string) error
}

// Options 构造 Coordinator 所需依赖
type Options struct {
	Identity Identity // 零值时自动生成
	Notifier Notifier
	Lister   alarm.Lister
	// Interval 评估周期：presence 超过 2×Interval 视为失联，启动后 2×Interval 内不竞选 master
	Interval time.Duration
	Metrics  *metrics.AlarmMetrics
	Clock    clockwork.Clock
}

// Coordinator 实现 presence/assign/allocate 协议，同时是 alarm.Assigner
type Coordinator struct {
	this     Identity
	notifier Notifier
	lister   alarm.Lister
	interval time.Duration
	metrics  *metrics.AlarmMetrics
	clock    clockwork.Clock
	start    time.Time

	mu              sync.Mutex
	reports         map[Identity]time.Time
	isMaster        bool
	presenceChanged bool
	lastAlarms      map[string]struct{}
	deleted         map[string]struct{}
	assignment      []string
}

func New(opts Options) (*Coordinator, error) {
	if opts.Notifier == nil {
		return nil, fmt.Errorf("partition: notifier is required")
	}
	if opts.Lister == nil {
		return nil, fmt.Errorf("partition: alarm lister is required")
	}
	if opts.Interval <= 0 {
		return nil, fmt.Errorf("partition: interval must be positive")
	}
	if opts.Clock == nil {
		opts.Clock = clockwork.NewRealClock()
	}
	if opts.Metrics == nil {
		opts.Metrics = metrics.NewNopFactory().NewAlarmMetrics()
	}
	if opts.Identity.UUID == "" {
		opts.Identity = NewIdentity(opts.Clock)
	}
	return &Coordinator{
		this:       opts.Identity,
		notifier:   opts.Notifier,
		lister:     opts.Lister,
		interval:   opts.Interval,
		metrics:    opts.Metrics,
		clock:      opts.Clock,
		start:      opts.Clock.Now(),
		reports:    make(map[Identity]time.Time),
		lastAlarms: make(map[string]struct{}),
		deleted:    make(map[string]struct{}),
	}, nil
}

func (c *Coordinator) Identity() Identity { return c.this }

func (c *Coordinator) IsMaster() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.isMaster
}

// Assignment 当前分配到本进程的告警ID
func (c *Coordinator) Assignment() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, len(c.assignment))
	copy(out, c.assignment)
	return out
}

// Presence 收到其他进程的存活报告，自己的报告忽略
func (c *Coordinator) Presence(id string, priority float64) {
	report := Identity{UUID: id, Priority: priority}
	if report == c.this {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, known := c.reports[report]; !known {
		c.presenceChanged = true
	}
	c.reports[report] = c.clock.Now()
	logger.Debug("evaluator presence received", zap.Stringer("this", c.this), zap.Stringer("reporter", report))
}

// Assign 全量替换本进程的分配；发给其他进程的消息忽略
func (c *Coordinator) Assign(id string, alarms []string) {
	if id != c.this.UUID {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.assignment = appendUnique(nil, alarms)
	logger.Debug("alarms assigned", zap.Stringer("this", c.this), zap.Int("alarms", len(c.assignment)))
}

// Allocate 追加分配，已有的告警不重复追加
func (c *Coordinator) Allocate(id string, alarms []string) {
	if id != c.this.UUID {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.assignment = appendUnique(c.assignment, alarms)
	logger.Debug("alarms allocated", zap.Stringer("this", c.this), zap.Strings("alarms", alarms))
}

// ReportPresence 广播自己的存活
func (c *Coordinator) ReportPresence(ctx context.Context) {
	if err := c.notifier.Presence(ctx, c.this.UUID, c.this.Priority); err != nil {
		logger.Warn("report presence failed", zap.Stringer("this", c.this), zap.Error(err))
	}
}

// CheckMastership 判断自己是否为 master，是则按需分配告警。返回检查后的 master 状态
func (c *Coordinator) CheckMastership(ctx context.Context) bool {
	logger.Debug("checking mastership status", zap.Stringer("this", c.this))

	c.mu.Lock()
	assuming := !c.isMaster
	master := c.electLocked(c.clock.Now())
	c.mu.Unlock()

	if master {
		ahead, err := c.masterRole(ctx, assuming)
		if err != nil {
			logger.Error("mastership check failed", zap.Stringer("this", c.this), zap.Error(err))
			return c.IsMaster()
		}
		master = ahead
	}

	c.mu.Lock()
	c.isMaster = master
	c.presenceChanged = false
	c.mu.Unlock()

	if master {
		c.metrics.IsMaster.Set(1)
	} else {
		c.metrics.IsMaster.Set(0)
	}
	return master
}

// electLocked 清理过期报告；预热期内或存在更优先的进程时返回 false
func (c *Coordinator) electLocked(now time.Time) bool {
	if now.Sub(c.start) < 2*c.interval {
		logger.Debug("evaluator still warming up", zap.Stringer("this", c.this))
		return false
	}
	master := true
	for id, last := range c.reports {
		if now.Sub(last) > 2*c.interval {
			delete(c.reports, id)
			c.presenceChanged = true
			logger.Info("stale evaluator detected", zap.Stringer("this", c.this), zap.Stringer("stale", id))
			continue
		}
		if id.Less(c.this) {
			master = false
			logger.Info("older potential master seen", zap.Stringer("this", c.this), zap.Stringer("older", id))
		}
	}
	logger.Info("mastership decided", zap.Stringer("this", c.this), zap.Bool("is_master", master))
	return master
}

// masterRole 刚成为 master、成员变化或删除过多时全量重分配，否则只分配新建告警
func (c *Coordinator) masterRole(ctx context.Context, assuming bool) (bool, error) {
	all, err := c.lister.List(ctx)
	if err != nil {
		return false, fmt.Errorf("list alarms: %w", err)
	}
	alarms := alarm.IDs(all)

	c.mu.Lock()
	var created []string
	for _, id := range alarms {
		if _, ok := c.lastAlarms[id]; !ok {
			created = append(created, id)
		}
	}
	// 删除计数每个周期都要累计，不能被前面的条件短路
	deletionRebalance := c.deletionRequiresRebalanceLocked(alarms)
	rebalance := assuming || c.presenceChanged || deletionRebalance
	c.mu.Unlock()

	var ahead bool
	switch {
	case rebalance:
		ahead = c.distribute(ctx, alarms, true)
	case len(created) > 0:
		ahead = c.distribute(ctx, created, false)
	default:
		ahead = !c.overtaken()
	}

	c.mu.Lock()
	c.lastAlarms = make(map[string]struct{}, len(alarms))
	for _, id := range alarms {
		c.lastAlarms[id] = struct{}{}
	}
	c.mu.Unlock()
	logger.Info("master not overtaken", zap.Stringer("this", c.this), zap.Bool("still_ahead", ahead))
	return ahead, nil
}

// deletionRequiresRebalanceLocked 累计删除超过当前告警数的 1/5 时需要全量重分配
func (c *Coordinator) deletionRequiresRebalanceLocked(alarms []string) bool {
	current := make(map[string]struct{}, len(alarms))
	for _, id := range alarms {
		current[id] = struct{}{}
	}
	for id := range c.lastAlarms {
		if _, ok := current[id]; !ok {
			c.deleted[id] = struct{}{}
		}
	}
	if len(c.deleted)*5 > len(alarms) {
		logger.Debug("alarm deletion activity requires rebalance", zap.Int("deleted", len(c.deleted)))
		c.deleted = make(map[string]struct{})
		return true
	}
	return false
}

// distribute 每个其他进程分 ceil(n/(k+1)) 条，剩余归 master，小批量时偏向非 master。
// 分配过程中发现更优先的进程则放弃
func (c *Coordinator) distribute(ctx context.Context, alarms []string, rebalance bool) bool {
	verb, send := "allocate", c.notifier.Allocate
	if rebalance {
		verb, send = "assign", c.notifier.Assign
	}

	c.mu.Lock()
	evaluators := make([]Identity, 0, len(c.reports))
	for id := range c.reports {
		evaluators = append(evaluators, id)
	}
	c.mu.Unlock()
	sort.Slice(evaluators, func(i, j int) bool { return evaluators[i].Less(evaluators[j]) })

	per := (len(alarms) + len(evaluators)) / (len(evaluators) + 1)
	logger.Debug("distributing alarms",
		zap.String("verb", verb),
		zap.Int("alarms", len(alarms)),
		zap.Int("evaluators", len(evaluators)+1),
		zap.Int("per_evaluator", per))

	offset := 0
	for _, ev := range evaluators {
		if c.overtaken() {
			logger.Warn("bailing on distribution cycle as older partition detected", zap.Stringer("this", c.this))
			return false
		}
		lo, hi := min(offset, len(alarms)), min(offset+per, len(alarms))
		// 全量分配时空切片也要发送，清空对方旧的分配
		if rebalance || lo < hi {
			if err := send(ctx, ev.UUID, alarms[lo:hi]); err != nil {
				logger.Warn("alarm distribution message failed",
					zap.String("verb", verb), zap.Stringer("evaluator", ev), zap.Error(err))
			}
		}
		offset += per
	}

	rest := alarms[min(offset, len(alarms)):]
	c.mu.Lock()
	if rebalance {
		c.assignment = appendUnique(nil, rest)
	} else {
		c.assignment = appendUnique(c.assignment, rest)
	}
	c.mu.Unlock()
	logger.Debug("master taking alarms for self", zap.Stringer("this", c.this), zap.Int("alarms", len(rest)))
	return true
}

// overtaken 是否有未过期的更优先进程
func (c *Coordinator) overtaken() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := c.clock.Now()
	for id, last := range c.reports {
		if now.Sub(last) <= 2*c.interval && id.Less(c.this) {
			return true
		}
	}
	return false
}

// AssignedAlarms 分配到本进程且仍然启用的告警
func (c *Coordinator) AssignedAlarms(ctx context.Context) ([]alarm.Alarm, error) {
	ids := c.Assignment()
	if len(ids) == 0 {
		logger.Debug("no assigned alarms to evaluate", zap.Stringer("this", c.this))
		return nil, nil
	}
	all, err := c.lister.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("assignment retrieval failed: %w", err)
	}
	return alarm.Select(alarm.Enabled(all), ids), nil
}

func appendUnique(dst, src []string) []string {
	seen := make(map[string]struct{}, len(dst)+len(src))
	for _, id := range dst {
		seen[id] = struct{}{}
	}
	for _, id := range src {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		dst = append(dst, id)
	}
	return dst
}
