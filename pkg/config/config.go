package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var valid = validator.New()

// Config 全局配置结构体（聚合所有核心模块）
type Config struct {
	Server       ServerConfig       `yaml:"server" mapstructure:"server" comment:"HTTP服务配置"`
	Polling      PollingConfig      `yaml:"polling" mapstructure:"polling" comment:"轮询代理配置"`
	Coordination CoordinationConfig `yaml:"coordination" mapstructure:"coordination" comment:"分区协调配置"`
	Alarm        AlarmConfig        `yaml:"alarm" mapstructure:"alarm" comment:"告警评估配置"`
	Log          ZapLogConfig       `yaml:"log" mapstructure:"log" comment:"日志配置"`
}

// ServerConfig HTTP服务配置（超时统一为time.Duration，支持"30s"解析）
type ServerConfig struct {
	Addr         string        `yaml:"addr" mapstructure:"addr" env:"HTTP_ADDR" validate:"required,hostname_port" comment:"HTTP监听地址（格式：ip:port）"`
	ReadTimeout  time.Duration `yaml:"read_timeout" mapstructure:"read_timeout" env:"HTTP_READ_TIMEOUT" validate:"required,gt=0" comment:"读取超时时间（如30s）"`
	WriteTimeout time.Duration `yaml:"write_timeout" mapstructure:"write_timeout" env:"HTTP_WRITE_TIMEOUT" validate:"required,gt=0" comment:"写入超时时间（如30s）"`
	IdleTimeout  time.Duration `yaml:"idle_timeout" mapstructure:"idle_timeout" env:"HTTP_IDLE_TIMEOUT" validate:"required,gt=0" comment:"空闲连接超时时间（如60s）"`
}

// PollingConfig 轮询代理配置
type PollingConfig struct {
	Namespace        string        `yaml:"namespace" mapstructure:"namespace" env:"POLLING_NAMESPACE" validate:"required" comment:"pollster 命名空间（如 central/compute）"`
	GroupPrefix      string        `yaml:"group_prefix" mapstructure:"group_prefix" env:"POLLING_GROUP_PREFIX" comment:"分区组前缀，多套代理共享协调后端时区分"`
	PipelineFile     string        `yaml:"pipeline_file" mapstructure:"pipeline_file" env:"POLLING_PIPELINE_FILE" validate:"required" comment:"pipeline 定义文件路径"`
	DefaultDiscovery []string      `yaml:"default_discovery" mapstructure:"default_discovery" env:"POLLING_DEFAULT_DISCOVERY" comment:"代理级默认发现URL"`
	PollsterTimeout  time.Duration `yaml:"pollster_timeout" mapstructure:"pollster_timeout" env:"POLLING_POLLSTER_TIMEOUT" validate:"required,gt=0" comment:"单个pollster/discoverer调用超时"`
}

// CoordinationConfig 分区协调配置，backend 为空表示单代理模式
type CoordinationConfig struct {
	Backend   string        `yaml:"backend" mapstructure:"backend" env:"COORDINATION_BACKEND" validate:"omitempty,oneof=memory http" comment:"协调后端（空/memory/http）"`
	URL       string        `yaml:"url" mapstructure:"url" env:"COORDINATION_URL" validate:"omitempty,url" comment:"membership 服务地址"`
	MemberID  string        `yaml:"member_id" mapstructure:"member_id" env:"COORDINATION_MEMBER_ID" comment:"成员ID，为空时自动生成"`
	Heartbeat time.Duration `yaml:"heartbeat" mapstructure:"heartbeat" env:"COORDINATION_HEARTBEAT" validate:"required,gt=0" comment:"心跳间隔"`
	MemberTTL time.Duration `yaml:"member_ttl" mapstructure:"member_ttl" env:"COORDINATION_MEMBER_TTL" validate:"required,gt=0" comment:"成员存活时间（membership服务端）"`
	Timeout   time.Duration `yaml:"timeout" mapstructure:"timeout" env:"COORDINATION_TIMEOUT" validate:"required,gt=0" comment:"http 后端/告警对端请求超时"`
}

// AlarmConfig 告警评估服务配置
type AlarmConfig struct {
	Mode               string        `yaml:"mode" mapstructure:"mode" env:"ALARM_MODE" validate:"required,oneof=singleton coordinated partitioned" comment:"分配策略"`
	EvaluationInterval time.Duration `yaml:"evaluation_interval" mapstructure:"evaluation_interval" env:"ALARM_EVALUATION_INTERVAL" validate:"required,gt=0" comment:"评估周期"`
	DefinitionFile     string        `yaml:"definition_file" mapstructure:"definition_file" env:"ALARM_DEFINITION_FILE" comment:"告警定义文件"`
	Peers              []string      `yaml:"peers" mapstructure:"peers" env:"ALARM_PEERS" validate:"dive,url" comment:"partitioned 模式下的对端地址"`
}

// ZapLogConfig 日志配置
type ZapLogConfig struct {
	Level     string `yaml:"level" mapstructure:"level" env:"LOG_LEVEL" validate:"required,oneof=debug info warn error dpanic panic fatal" comment:"日志级别" default:"info"`
	Format    string `yaml:"format" mapstructure:"format" env:"LOG_FORMAT" validate:"required,oneof=json console" comment:"日志格式（json/console）" default:"json"`
	Path      string `yaml:"path" mapstructure:"path" env:"LOG_PATH" validate:"required" comment:"日志存储路径" default:"./logs"`
	MaxSize   int    `yaml:"max_size" mapstructure:"max_size" env:"LOG_MAX_SIZE" validate:"required,gt=0" comment:"单个日志文件最大大小（MB）" default:"100"`
	MaxBackup int    `yaml:"max_backup" mapstructure:"max_backup" env:"LOG_MAX_BACKUP" validate:"gte=0" comment:"保留的日志文件数，>0 时优先于 max_age" default:"30"`
	MaxAge    int    `yaml:"max_age" mapstructure:"max_age" env:"LOG_MAX_AGE" validate:"gte=0" comment:"日志文件最大保存天数（max_backup 为 0 时生效）" default:"7"`
}

// NewDefaultConfig 创建默认配置（所有字段兜底，避免空指针/非法值）
func NewDefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Addr:         "0.0.0.0:8080",
			ReadTimeout:  30 * time.Second,
			WriteTimeout: 30 * time.Second,
			IdleTimeout:  60 * time.Second,
		},
		Polling: PollingConfig{
			Namespace:        "central",
			PipelineFile:     "configs/pipeline.yaml",
			DefaultDiscovery: []string{},
			PollsterTimeout:  30 * time.Second,
		},
		Coordination: CoordinationConfig{
			Backend:   "",
			Heartbeat: time.Second,
			MemberTTL: 30 * time.Second,
			Timeout:   5 * time.Second,
		},
		Alarm: AlarmConfig{
			Mode:               "singleton",
			EvaluationInterval: 60 * time.Second,
			DefinitionFile:     "configs/alarms.yaml",
			Peers:              []string{},
		},
		Log: ZapLogConfig{
			Level:     "info",
			Format:    "json",
			Path:      "./logs",
			MaxSize:   100,
			MaxBackup: 30,
			MaxAge:    7,
		},
	}
}

// LoadConfigWithCli 支持 time.Duration，(Flags + YAML + ENV)
func LoadConfigWithCli(cmd *cobra.Command) (*Config, error) {
	v := viper.New()

	// 1. 绑定 Cobra Flags → Viper
	if err := v.BindPFlags(cmd.Flags()); err != nil {
		return nil, fmt.Errorf("bind flags: %w", err)
	}

	// 2. 解析配置文件 (--config)
	configFile, _ := cmd.Flags().GetString("config")
	return load(v, configFile)
}

// LoadFile 仅从文件（+ENV）加载配置，测试和子进程使用
func LoadFile(path string) (*Config, error) {
	return load(viper.New(), path)
}

func load(v *viper.Viper, configFile string) (*Config, error) {
	cfg := NewDefaultConfig()

	if configFile != "" {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config file %s: %w", configFile, err)
		}
	}

	// 3. 绑定环境变量 ENV -> Viper （POLLING_NAMESPACE -> polling.namespace）
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	// 4. 解码反序列化到结构体（支持 time.Duration）
	decoderConfig := &mapstructure.DecoderConfig{
		Metadata:         nil,
		Result:           cfg,
		WeaklyTypedInput: true,
		DecodeHook: mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
		),
	}

	decoder, err := mapstructure.NewDecoder(decoderConfig)
	if err != nil {
		return nil, fmt.Errorf("new decoder: %w", err)
	}

	if err := decoder.Decode(v.AllSettings()); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}

	// 5. 校验配置
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	return cfg, nil
}

// Validate 配置校验
func (c *Config) Validate() error {
	if err := valid.Struct(c); err != nil {
		return err
	}
	// 	1,校验Server服务配置
	if err := c.Server.Validate(); err != nil {
		return err
	}
	// 	2，校验轮询配置
	if err := c.Polling.Validate(); err != nil {
		return err
	}
	// 	3，校验协调配置
	if err := c.Coordination.Validate(); err != nil {
		return err
	}
	//	4，校验告警配置
	if err := c.Alarm.Validate(); err != nil {
		return err
	}
	// 	5，校验日志配置
	if err := c.Log.Validate(); err != nil {
		return err
	}
	return nil
}
