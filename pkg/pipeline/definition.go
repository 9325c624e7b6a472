package pipeline

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Definition pipeline 定义文件
type Definition struct {
	Sources []SourceDefinition `yaml:"sources"`
	Sinks   []SinkDefinition   `yaml:"sinks"`
}

// SourceDefinition 数据源：选择 meter 与资源，引用一个或多个 sink
type SourceDefinition struct {
	Name      string   `yaml:"name"`
	Interval  int      `yaml:"interval"` // 秒
	Meters    []string `yaml:"meters"`
	Resources []string `yaml:"resources"`
	Discovery []string `yaml:"discovery"`
	Sinks     []string `yaml:"sinks"`
}

// SinkDefinition transformer 链 + publishers
type SinkDefinition struct {
	Name         string                  `yaml:"name"`
	Transformers []TransformerDefinition `yaml:"transformers"`
	Publishers   []string                `yaml:"publishers"`
}

type TransformerDefinition struct {
	Name       string         `yaml:"name"`
	Parameters map[string]any `yaml:"parameters"`
}

// LoadDefinition 读取 YAML 定义文件
func LoadDefinition(path string) (*Definition, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read pipeline definition %s: %w", path, err)
	}
	return ParseDefinition(data)
}

func ParseDefinition(data []byte) (*Definition, error) {
	var def Definition
	if err := yaml.Unmarshal(data, &def); err != nil {
		return nil, fmt.Errorf("%w: parse pipeline definition: %v", ErrConfig, err)
	}
	return &def, nil
}
