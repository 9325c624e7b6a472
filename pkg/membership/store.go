// Package membership 提供带 TTL 的分组成员表，既可进程内作为协调后端，也可通过 HTTP 对外服务
package membership

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"

	"github.com/polling-agent/pkg/logger"
)

var (
	// ErrUnknownMember 成员不存在（从未加入或已过期），调用方应重新加入分组
	ErrUnknownMember = errors.New("membership: unknown member")
	ErrInvalidName   = errors.New("membership: empty group or member")
)

// Store 成员表：group -> members，member -> 最后心跳时间。过期成员在读取时剔除
type Store struct {
	mu       sync.Mutex
	clock    clockwork.Clock
	ttl      time.Duration
	groups   map[string]map[string]struct{}
	lastSeen map[string]time.Time
}

func NewStore(ttl time.Duration, clock clockwork.Clock) *Store {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Store{
		clock:    clock,
		ttl:      ttl,
		groups:   make(map[string]map[string]struct{}),
		lastSeen: make(map[string]time.Time),
	}
}

// Join 加入分组并刷新心跳，重复加入是幂等的
func (s *Store) Join(_ context.Context, group, member string) error {
	if group == "" || member == "" {
		return ErrInvalidName
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.expireLocked()

	g, ok := s.groups[group]
	if !ok {
		g = make(map[string]struct{})
		s.groups[group] = g
	}
	if _, exists := g[member]; !exists {
		logger.Info("member joined group", zap.String("group", group), zap.String("member", member))
	}
	g[member] = struct{}{}
	s.lastSeen[member] = s.clock.Now()
	return nil
}

func (s *Store) Leave(_ context.Context, group, member string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	g, ok := s.groups[group]
	if !ok {
		return nil
	}
	delete(g, member)
	if len(g) == 0 {
		delete(s.groups, group)
	}
	if !s.inAnyGroupLocked(member) {
		delete(s.lastSeen, member)
	}
	logger.Info("member left group", zap.String("group", group), zap.String("member", member))
	return nil
}

// Heartbeat 刷新成员在所有分组中的存活时间
func (s *Store) Heartbeat(_ context.Context, member string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.expireLocked()
	if _, ok := s.lastSeen[member]; !ok {
		return fmt.Errorf("%w: %s", ErrUnknownMember, member)
	}
	s.lastSeen[member] = s.clock.Now()
	return nil
}

// Members 返回分组内存活成员（已排序）
func (s *Store) Members(_ context.Context, group string) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.expireLocked()
	g := s.groups[group]
	out := make([]string, 0, len(g))
	for m := range g {
		out = append(out, m)
	}
	sort.Strings(out)
	return out, nil
}

// Groups 返回当前全部分组名（已排序）
func (s *Store) Groups() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.expireLocked()
	out := make([]string, 0, len(s.groups))
	for g := range s.groups {
		out = append(out, g)
	}
	sort.Strings(out)
	return out
}

func (s *Store) expireLocked() {
	if s.ttl <= 0 {
		return
	}
	now := s.clock.Now()
	for member, seen := range s.lastSeen {
		if now.Sub(seen) <= s.ttl {
			continue
		}
		delete(s.lastSeen, member)
		for name, g := range s.groups {
			delete(g, member)
			if len(g) == 0 {
				delete(s.groups, name)
			}
		}
		logger.Warn("member expired", zap.String("member", member), zap.Duration("ttl", s.ttl))
	}
}

func (s *Store) inAnyGroupLocked(member string) bool {
	for _, g := range s.groups {
		if _, ok := g[member]; ok {
			return true
		}
	}
	return false
}
