// Package rpc 告警分区协议的传输：HTTP 广播（resty 客户端 + chi 处理器）与进程内总线
package rpc

import (
	"context"
	"errors"
	"sync"
)

// Receiver 协议消息的接收方（partition.Coordinator 满足该接口）
type Receiver interface {
	Presence(uuid string, priority float64)
	Assign(uuid string, alarms []string)
	Allocate(uuid string, alarms []string)
}

// PresenceMessage POST /v1/alarm/partition/presence
type PresenceMessage struct {
	UUID     string  `json:"uuid"`
	Priority float64 `json:"priority"`
}

// AssignmentMessage POST /v1/alarm/partition/{assign,allocate}
type AssignmentMessage struct {
	UUID   string   `json:"uuid"`
	Alarms []string `json:"alarms"`
}

var ErrNoUUID = errors.New("rpc: message has no uuid")

// Bus 进程内广播，同步投递给全部订阅者
type Bus struct {
	mu        sync.RWMutex
	receivers []Receiver
}

func NewBus() *Bus {
	return &Bus{}
}

func (b *Bus) Subscribe(r Receiver) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.receivers = append(b.receivers, r)
}

func (b *Bus) snapshot() []Receiver {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make([]Receiver, len(b.receivers))
	copy(out, b.receivers)
	return out
}

func (b *Bus) Presence(_ context.Context, uuid string, priority float64) error {
	for _, r := range b.snapshot() {
		r.Presence(uuid, priority)
	}
	return nil
}

func (b *Bus) Assign(_ context.Context, uuid string, alarms []string) error {
	for _, r := range b.snapshot() {
		r.Assign(uuid, cloneIDs(alarms))
	}
	return nil
}

func (b *Bus) Allocate(_ context.Context, uuid string, alarms []string) error {
	for _, r := range b.snapshot() {
		r.Allocate(uuid, cloneIDs(alarms))
	}
	return nil
}

func cloneIDs(ids []string) []string {
	out := make([]string, len(ids))
	copy(out, ids)
	return out
}
