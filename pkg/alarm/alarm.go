// Package alarm 告警评估：告警模型、评估器注册、三种分配策略与定时评估服务
package alarm

import (
	"context"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Alarm 一条告警定义，Type 决定由哪个评估器处理
type Alarm struct {
	ID      string         `yaml:"id" json:"alarm_id"`
	Name    string         `yaml:"name" json:"name"`
	Type    string         `yaml:"type" json:"type"`
	Enabled bool           `yaml:"enabled" json:"enabled"`
	Rule    map[string]any `yaml:"rule" json:"rule,omitempty"`
}

// Lister 告警来源
type Lister interface {
	List(ctx context.Context) ([]Alarm, error)
}

// Enabled 过滤出启用的告警，保持顺序
func Enabled(alarms []Alarm) []Alarm {
	out := make([]Alarm, 0, len(alarms))
	for _, a := range alarms {
		if a.Enabled {
			out = append(out, a)
		}
	}
	return out
}

// IDs 告警ID列表
func IDs(alarms []Alarm) []string {
	out := make([]string, len(alarms))
	for i, a := range alarms {
		out[i] = a.ID
	}
	return out
}

// StaticLister 固定列表
type StaticLister []Alarm

func (l StaticLister) List(context.Context) ([]Alarm, error) {
	out := make([]Alarm, len(l))
	copy(out, l)
	return out, nil
}

// FileLister 每次 List 重新读取 YAML 文件，修改文件即可增删告警
type FileLister struct {
	Path string
}

type alarmFile struct {
	Alarms []Alarm `yaml:"alarms"`
}

func (l FileLister) List(context.Context) ([]Alarm, error) {
	data, err := os.ReadFile(l.Path)
	if err != nil {
		return nil, fmt.Errorf("read alarm definitions: %w", err)
	}
	return ParseAlarms(data)
}

// ParseAlarms 解析告警定义，ID 与 type 必填且 ID 不可重复
func ParseAlarms(data []byte) ([]Alarm, error) {
	var f alarmFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse alarm definitions: %w", err)
	}
	seen := make(map[string]struct{}, len(f.Alarms))
	for i, a := range f.Alarms {
		if a.ID == "" {
			return nil, fmt.Errorf("alarm #%d has no id", i)
		}
		if a.Type == "" {
			return nil, fmt.Errorf("alarm %s has no type", a.ID)
		}
		if _, dup := seen[a.ID]; dup {
			return nil, fmt.Errorf("duplicate alarm id %s", a.ID)
		}
		seen[a.ID] = struct{}{}
	}
	return f.Alarms, nil
}
