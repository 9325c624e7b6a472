// Package coordination 基于共享成员视图的分区协调：每个成员独立计算自己拥有的子集
package coordination

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sort"
	"sync"

	"go.uber.org/zap"

	"github.com/polling-agent/pkg/logger"
	"github.com/polling-agent/pkg/membership"
)

// ErrNotInGroup 重新加入后成员仍不在分组中
var ErrNotInGroup = errors.New("coordination: member not in group")

// Backend 成员视图后端（membership.Store 或 HTTPBackend）
type Backend interface {
	Join(ctx context.Context, group, member string) error
	Leave(ctx context.Context, group, member string) error
	Heartbeat(ctx context.Context, member string) error
	Members(ctx context.Context, group string) ([]string, error)
}

// Coordinator 分区协调器，backend 为 nil 时处于非激活状态（单代理模式，拥有全部）
type Coordinator struct {
	backend  Backend
	memberID string

	mu     sync.Mutex
	groups map[string]struct{}
}

func New(backend Backend, memberID string) *Coordinator {
	return &Coordinator{
		backend:  backend,
		memberID: memberID,
		groups:   make(map[string]struct{}),
	}
}

func (c *Coordinator) MemberID() string { return c.memberID }

func (c *Coordinator) IsActive() bool { return c.backend != nil }

// JoinGroup 加入分组。空分组和非激活状态下为空操作
func (c *Coordinator) JoinGroup(ctx context.Context, group string) error {
	if !c.IsActive() || group == "" {
		return nil
	}
	if err := c.backend.Join(ctx, group, c.memberID); err != nil {
		return fmt.Errorf("join group %s: %w", group, err)
	}
	c.mu.Lock()
	c.groups[group] = struct{}{}
	c.mu.Unlock()
	logger.Debug("joined partitioning group", zap.String("group", group), zap.String("member", c.memberID))
	return nil
}

func (c *Coordinator) LeaveGroup(ctx context.Context, group string) error {
	if !c.IsActive() || group == "" {
		return nil
	}
	c.mu.Lock()
	delete(c.groups, group)
	c.mu.Unlock()
	if err := c.backend.Leave(ctx, group, c.memberID); err != nil {
		return fmt.Errorf("leave group %s: %w", group, err)
	}
	return nil
}

// Groups 已加入的分组（已排序）
func (c *Coordinator) Groups() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, 0, len(c.groups))
	for g := range c.groups {
		out = append(out, g)
	}
	sort.Strings(out)
	return out
}

// Heartbeat 刷新存活时间。后端不认识本成员（重启或已过期）时重新加入全部已加入分组
func (c *Coordinator) Heartbeat(ctx context.Context) error {
	if !c.IsActive() {
		return nil
	}
	err := c.backend.Heartbeat(ctx, c.memberID)
	if err == nil {
		return nil
	}
	if !errors.Is(err, membership.ErrUnknownMember) {
		return fmt.Errorf("heartbeat: %w", err)
	}

	groups := c.Groups()
	logger.Warn("member unknown to backend, rejoining groups",
		zap.String("member", c.memberID), zap.Int("groups", len(groups)))
	var errs []error
	for _, g := range groups {
		if err := c.backend.Join(ctx, g, c.memberID); err != nil {
			errs = append(errs, fmt.Errorf("rejoin %s: %w", g, err))
		}
	}
	return errors.Join(errs...)
}

// ExtractMySubset 返回 universe 中归本成员所有的元素，保持原顺序。
// 后端故障时返回错误，不会静默返回空集
func (c *Coordinator) ExtractMySubset(ctx context.Context, group string, universe []string) ([]string, error) {
	if !c.IsActive() || group == "" {
		return slices.Clone(universe), nil
	}
	members, err := c.members(ctx, group)
	if err != nil {
		return nil, err
	}

	ring := NewHashRing(members)
	out := make([]string, 0, len(universe)/max(ring.Len(), 1)+1)
	for _, item := range universe {
		if ring.Owner(item) == c.memberID {
			out = append(out, item)
		}
	}
	logger.Debug("extracted partition subset",
		zap.String("group", group),
		zap.Int("members", ring.Len()),
		zap.Int("universe", len(universe)),
		zap.Int("owned", len(out)))
	return out, nil
}

// members 读取成员列表，本成员缺席时重新加入一次
func (c *Coordinator) members(ctx context.Context, group string) ([]string, error) {
	members, err := c.backend.Members(ctx, group)
	if err != nil {
		return nil, fmt.Errorf("members of %s: %w", group, err)
	}
	if slices.Contains(members, c.memberID) {
		return members, nil
	}

	logger.Warn("member absent from group, rejoining", zap.String("group", group), zap.String("member", c.memberID))
	if err := c.JoinGroup(ctx, group); err != nil {
		return nil, err
	}
	members, err = c.backend.Members(ctx, group)
	if err != nil {
		return nil, fmt.Errorf("members of %s: %w", group, err)
	}
	if !slices.Contains(members, c.memberID) {
		return nil, fmt.Errorf("%w: %s", ErrNotInGroup, group)
	}
	return members, nil
}
