package pipeline

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/go-viper/mapstructure/v2"

	"github.com/polling-agent/pkg/sample"
)

// Transformer 逐条处理样本。返回 nil 表示丢弃；返回错误只丢弃该样本
type Transformer interface {
	HandleSample(ctx context.Context, s sample.Sample) (*sample.Sample, error)
	// Flush 在发布作用域结束时调用一次，返回缓存的样本
	Flush(ctx context.Context) []sample.Sample
}

// TransformerFactory 根据定义文件中的 parameters 创建 transformer
type TransformerFactory func(params map[string]any) (Transformer, error)

// BuiltinTransformers 内置 transformer：unit_conversion、rate_of_change、accumulator
func BuiltinTransformers() map[string]TransformerFactory {
	return map[string]TransformerFactory{
		"unit_conversion": newUnitConversion,
		"rate_of_change":  newRateOfChange,
		"accumulator":     newAccumulator,
	}
}

func decodeParams(params map[string]any, out any) error {
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           out,
		WeaklyTypedInput: true,
		ErrorUnused:      true,
	})
	if err != nil {
		return err
	}
	return dec.Decode(params)
}

type target struct {
	Name  string   `mapstructure:"name"`
	Unit  string   `mapstructure:"unit"`
	Type  string   `mapstructure:"type"`
	Scale *float64 `mapstructure:"scale"`
}

func (t target) scale() float64 {
	if t.Scale == nil {
		return 1
	}
	return *t.Scale
}

// apply 按 target 生成新样本，未配置的字段沿用原值
func (t target) apply(s sample.Sample, volume float64) sample.Sample {
	out := s.WithVolume(volume)
	if t.Name != "" {
		out.Name = t.Name
	}
	if t.Unit != "" {
		out.Unit = t.Unit
	}
	if t.Type != "" {
		out.Type = sample.Type(t.Type)
	}
	return out
}

func (t target) validate() error {
	if t.Type == "" {
		return nil
	}
	_, err := sample.ParseType(t.Type)
	return err
}

type conversionParams struct {
	Source struct {
		Name string `mapstructure:"name"`
	} `mapstructure:"source"`
	Target target `mapstructure:"target"`
}

// unitConversion volume*scale，并改写 name/unit/type
type unitConversion struct {
	sourceName string
	target     target
}

func newUnitConversion(params map[string]any) (Transformer, error) {
	var p conversionParams
	if err := decodeParams(params, &p); err != nil {
		return nil, fmt.Errorf("unit_conversion: %w", err)
	}
	if err := p.Target.validate(); err != nil {
		return nil, fmt.Errorf("unit_conversion: %w", err)
	}
	return &unitConversion{sourceName: p.Source.Name, target: p.Target}, nil
}

func (u *unitConversion) HandleSample(_ context.Context, s sample.Sample) (*sample.Sample, error) {
	if u.sourceName != "" && s.Name != u.sourceName {
		return &s, nil
	}
	out := u.target.apply(s, s.Volume*u.target.scale())
	return &out, nil
}

func (u *unitConversion) Flush(context.Context) []sample.Sample { return nil }

type rateParams struct {
	Target target `mapstructure:"target"`
}

type prevPoint struct {
	volume float64
	ts     time.Time
}

// rateOfChange 累计值转速率（每秒），按 (meter, resource) 记录上一次的值。
// 第一次见到的资源只记录不输出；计数器回绕时按从零开始计算
type rateOfChange struct {
	target target
	prev   map[string]prevPoint
}

func newRateOfChange(params map[string]any) (Transformer, error) {
	var p rateParams
	if err := decodeParams(params, &p); err != nil {
		return nil, fmt.Errorf("rate_of_change: %w", err)
	}
	if p.Target.Type == "" {
		p.Target.Type = string(sample.TypeGauge)
	}
	if err := p.Target.validate(); err != nil {
		return nil, fmt.Errorf("rate_of_change: %w", err)
	}
	return &rateOfChange{target: p.Target, prev: make(map[string]prevPoint)}, nil
}

func (r *rateOfChange) HandleSample(_ context.Context, s sample.Sample) (*sample.Sample, error) {
	key := s.Name + "\x00" + s.ResourceID
	prev, seen := r.prev[key]
	r.prev[key] = prevPoint{volume: s.Volume, ts: s.Timestamp}
	if !seen {
		return nil, nil
	}

	elapsed := s.Timestamp.Sub(prev.ts).Seconds()
	if elapsed <= 0 {
		return nil, fmt.Errorf("non-increasing timestamp for %s/%s", s.Name, s.ResourceID)
	}
	delta := s.Volume - prev.volume
	if delta < 0 {
		delta = s.Volume
	}
	rate := delta / elapsed * r.target.scale()
	if math.IsNaN(rate) || math.IsInf(rate, 0) {
		return nil, fmt.Errorf("invalid rate for %s/%s", s.Name, s.ResourceID)
	}
	out := r.target.apply(s, rate)
	if r.target.Unit == "" {
		out.Unit = s.Unit + "/s"
	}
	return &out, nil
}

func (r *rateOfChange) Flush(context.Context) []sample.Sample { return nil }

type accumulatorParams struct {
	Size int `mapstructure:"size"`
}

// accumulator 缓存样本，达到 size 后在 Flush 时整批释放
type accumulator struct {
	size    int
	samples []sample.Sample
}

func newAccumulator(params map[string]any) (Transformer, error) {
	p := accumulatorParams{Size: 1}
	if err := decodeParams(params, &p); err != nil {
		return nil, fmt.Errorf("accumulator: %w", err)
	}
	if p.Size <= 0 {
		return nil, fmt.Errorf("accumulator: size must be positive, got %d", p.Size)
	}
	return &accumulator{size: p.Size}, nil
}

func (a *accumulator) HandleSample(_ context.Context, s sample.Sample) (*sample.Sample, error) {
	a.samples = append(a.samples, s)
	return nil, nil
}

func (a *accumulator) Flush(context.Context) []sample.Sample {
	if len(a.samples) < a.size {
		return nil
	}
	out := a.samples
	a.samples = nil
	return out
}
