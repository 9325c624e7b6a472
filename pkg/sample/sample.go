// Package sample 定义采集样本数据模型
package sample

import (
	"errors"
	"fmt"
	"maps"
	"math"
	"time"
)

// Type 样本类型
type Type string

const (
	TypeGauge      Type = "gauge"
	TypeCumulative Type = "cumulative"
	TypeDelta      Type = "delta"
)

// ParseType 解析样本类型
func ParseType(s string) (Type, error) {
	switch t := Type(s); t {
	case TypeGauge, TypeCumulative, TypeDelta:
		return t, nil
	default:
		return "", fmt.Errorf("unknown sample type %q", s)
	}
}

// Sample 一条测量记录。按值传递，transformer 通过 With* 生成新样本而不是修改原样本
type Sample struct {
	Name             string            `json:"counter_name" yaml:"name"`
	Type             Type              `json:"counter_type" yaml:"type"`
	Unit             string            `json:"counter_unit" yaml:"unit"`
	Volume           float64           `json:"counter_volume" yaml:"volume"`
	UserID           string            `json:"user_id,omitempty" yaml:"user_id"`
	ProjectID        string            `json:"project_id,omitempty" yaml:"project_id"`
	ResourceID       string            `json:"resource_id" yaml:"resource_id"`
	Timestamp        time.Time         `json:"timestamp" yaml:"timestamp"`
	ResourceMetadata map[string]string `json:"resource_metadata,omitempty" yaml:"resource_metadata"`
}

var (
	ErrNoResourceID = errors.New("sample has no resource_id")
	ErrNoTimestamp  = errors.New("sample has no timestamp")
	ErrBadVolume    = errors.New("sample volume is not a number")
)

// Validate 发布前的完整性检查：resource_id、timestamp、volume 必须有效
func (s Sample) Validate() error {
	if s.ResourceID == "" {
		return fmt.Errorf("%s: %w", s.Name, ErrNoResourceID)
	}
	if s.Timestamp.IsZero() {
		return fmt.Errorf("%s: %w", s.Name, ErrNoTimestamp)
	}
	if math.IsNaN(s.Volume) || math.IsInf(s.Volume, 0) {
		return fmt.Errorf("%s: %w", s.Name, ErrBadVolume)
	}
	return nil
}

// Clone 深拷贝（metadata map 不共享）
func (s Sample) Clone() Sample {
	s.ResourceMetadata = maps.Clone(s.ResourceMetadata)
	return s
}

func (s Sample) WithName(name string) Sample {
	c := s.Clone()
	c.Name = name
	return c
}

func (s Sample) WithVolume(v float64) Sample {
	c := s.Clone()
	c.Volume = v
	return c
}

func (s Sample) WithUnit(unit string) Sample {
	c := s.Clone()
	c.Unit = unit
	return c
}

func (s Sample) WithType(t Type) Sample {
	c := s.Clone()
	c.Type = t
	return c
}

func (s Sample) String() string {
	return fmt.Sprintf("%s(%s)=%g%s@%s", s.Name, s.ResourceID, s.Volume, s.Unit, s.Timestamp.Format(time.RFC3339))
}
