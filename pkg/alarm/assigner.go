package alarm

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/polling-agent/pkg/logger"
)

// PartitionGroup 协调模式下告警评估进程加入的分组
const PartitionGroup = "alarm_evaluator"

// Assigner 分配策略：返回本进程负责评估的告警
type Assigner interface {
	AssignedAlarms(ctx context.Context) ([]Alarm, error)
}

// Singleton 单进程评估全部启用的告警
type Singleton struct {
	Lister Lister
}

func (s Singleton) AssignedAlarms(ctx context.Context) ([]Alarm, error) {
	all, err := s.Lister.List(ctx)
	if err != nil {
		return nil, err
	}
	return Enabled(all), nil
}

// GroupCoordinator 成员服务分区协调（coordination.Coordinator 满足该接口）
type GroupCoordinator interface {
	JoinGroup(ctx context.Context, group string) error
	ExtractMySubset(ctx context.Context, group string, universe []string) ([]string, error)
	IsActive() bool
	Heartbeat(ctx context.Context) error
}

// Coordinated 按告警ID在 alarm_evaluator 组内分区
type Coordinated struct {
	Lister      Lister
	Coordinator GroupCoordinator
}

// Join 启动时加入分组，失败只记录，后续分区时会重新加入
func (c Coordinated) Join(ctx context.Context) {
	if err := c.Coordinator.JoinGroup(ctx, PartitionGroup); err != nil {
		logger.Error("failed to join alarm evaluator group", zap.Error(err))
	}
}

func (c Coordinated) AssignedAlarms(ctx context.Context) ([]Alarm, error) {
	all, err := c.Lister.List(ctx)
	if err != nil {
		return nil, err
	}
	enabled := Enabled(all)
	mine, err := c.Coordinator.ExtractMySubset(ctx, PartitionGroup, IDs(enabled))
	if err != nil {
		return nil, fmt.Errorf("partition alarms: %w", err)
	}
	return Select(enabled, mine), nil
}

// Select 按ID集合挑选告警，保持 alarms 的顺序
func Select(alarms []Alarm, ids []string) []Alarm {
	set := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		set[id] = struct{}{}
	}
	var out []Alarm
	for _, a := range alarms {
		if _, ok := set[a.ID]; ok {
			out = append(out, a)
		}
	}
	return out
}
