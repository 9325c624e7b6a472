package logger

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	rotatelogs "github.com/lestrrat-go/file-rotatelogs"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/polling-agent/pkg/config"
	"github.com/polling-agent/pkg/goid"
)

type Logger = zap.Logger

var (
	// Init 之前使用 Nop，库代码和测试无需先初始化日志
	baseLogger    = zap.NewNop()
	defaultFields = struct {
		Component string
	}{}
	loggerInitOnce sync.Once
	mu             sync.RWMutex
)

// Init 初始化全局日志：控制台彩色输出 + 按天切分的 JSON 文件
func Init(cfg config.ZapLogConfig) error {
	var err error
	loggerInitOnce.Do(func() {
		var l *zap.Logger
		l, err = build(cfg)
		if err != nil {
			return
		}
		SetLogger(l)
	})
	return err
}

func build(cfg config.ZapLogConfig) (*zap.Logger, error) {
	level := parseLevel(cfg.Level)

	if err := os.MkdirAll(cfg.Path, 0755); err != nil {
		return nil, err
	}

	writer, err := rotatelogs.New(
		filepath.Join(cfg.Path, "agent-%Y%m%d.log"),
		rotationOptions(cfg)...,
	)
	if err != nil {
		return nil, fmt.Errorf("create rotate writer: %w", err)
	}

	// 控制台彩色时间
	customTimeEncoderConsole := func(t time.Time, enc zapcore.PrimitiveArrayEncoder) {
		enc.AppendString(fmt.Sprintf("\033[34m%s\033[0m", t.Format("2006-01-02 15:04:05.000 -07:00")))
	}

	// JSON 日志纯文本时间
	customTimeEncoderJSON := func(t time.Time, enc zapcore.PrimitiveArrayEncoder) {
		enc.AppendString(t.Format("2006-01-02 15:04:05.000 -07:00"))
	}

	coloredLevelEncoder := func(level zapcore.Level, enc zapcore.PrimitiveArrayEncoder) {
		var levelStr string
		switch level {
		case zapcore.DebugLevel:
			levelStr = "\033[36mDEBUG\033[0m"
		case zapcore.InfoLevel:
			levelStr = "\033[32mINFO \033[0m"
		case zapcore.WarnLevel:
			levelStr = "\033[33mWARN \033[0m"
		case zapcore.ErrorLevel:
			levelStr = "\033[31mERROR\033[0m"
		default:
			levelStr = "\033[35m" + level.CapitalString() + "\033[0m"
		}
		enc.AppendString(levelStr)
	}

	consoleEncoderCfg := zap.NewDevelopmentEncoderConfig()
	consoleEncoderCfg.ConsoleSeparator = " "
	consoleEncoderCfg.EncodeLevel = coloredLevelEncoder
	consoleEncoderCfg.EncodeTime = customTimeEncoderConsole

	// Caller 两级路径
	consoleEncoderCfg.EncodeCaller = func(c zapcore.EntryCaller, enc zapcore.PrimitiveArrayEncoder) {
		rel := filepath.Join(filepath.Base(filepath.Dir(c.File)), filepath.Base(c.File))
		enc.AppendString(fmt.Sprintf("%s:%d", rel, c.Line))
	}

	jsonCfg := zap.NewProductionEncoderConfig()
	jsonCfg.TimeKey = "timestamp"
	jsonCfg.EncodeTime = customTimeEncoderJSON
	jsonCfg.EncodeLevel = zapcore.LowercaseLevelEncoder

	// format 决定控制台输出格式，文件始终为 JSON
	var stdoutEncoder zapcore.Encoder
	if cfg.Format == "json" {
		stdoutEncoder = zapcore.NewJSONEncoder(jsonCfg)
	} else {
		stdoutEncoder = zapcore.NewConsoleEncoder(consoleEncoderCfg)
	}

	core := zapcore.NewTee(
		zapcore.NewCore(stdoutEncoder, zapcore.AddSync(os.Stdout), level),
		zapcore.NewCore(zapcore.NewJSONEncoder(jsonCfg), zapcore.AddSync(writer), level),
	)

	return zap.New(core, zap.AddCaller(), zap.AddCallerSkip(2), zap.AddStacktrace(zapcore.ErrorLevel)), nil
}

// rotationOptions max_backup > 0 时按文件数保留，否则按天数保留（rotatelogs 不允许两者同时设置）
func rotationOptions(cfg config.ZapLogConfig) []rotatelogs.Option {
	opts := []rotatelogs.Option{
		rotatelogs.WithRotationTime(24 * time.Hour),
		rotatelogs.WithRotationSize(int64(cfg.MaxSize) * 1024 * 1024),
	}
	if cfg.MaxBackup > 0 {
		return append(opts, rotatelogs.WithRotationCount(uint(cfg.MaxBackup)))
	}
	maxAge := time.Duration(cfg.MaxAge) * 24 * time.Hour
	if maxAge <= 0 {
		maxAge = 7 * 24 * time.Hour
	}
	return append(opts, rotatelogs.WithMaxAge(maxAge))
}

func parseLevel(s string) zapcore.Level {
	switch strings.ToLower(s) {
	case "dbg", "debug":
		return zapcore.DebugLevel
	case "war", "warn":
		return zapcore.WarnLevel
	case "err", "error":
		return zapcore.ErrorLevel
	case "pan", "panic":
		return zapcore.PanicLevel
	case "fat", "fatal":
		return zapcore.FatalLevel
	default:
		return zapcore.InfoLevel
	}
}

// SetLogger 替换全局 logger（测试中注入 observer）
func SetLogger(l *zap.Logger) {
	mu.Lock()
	defer mu.Unlock()
	baseLogger = l
}

// SetDefaultComponent 设置默认 component 字段（agent/alarm-evaluator/membership）
func SetDefaultComponent(component string) {
	mu.Lock()
	defer mu.Unlock()
	defaultFields.Component = component
}

func GetDefaultComponent() string {
	mu.RLock()
	defer mu.RUnlock()
	return defaultFields.Component
}

func log(level zapcore.Level, msg string, fields ...zapcore.Field) {
	mu.RLock()
	l := baseLogger
	component := defaultFields.Component
	mu.RUnlock()

	ce := l.Check(level, msg)
	if ce == nil {
		return
	}
	merged := make([]zapcore.Field, 0, len(fields)+2)
	merged = append(merged,
		zap.String("component", component),
		zap.String("goid", strconv.FormatUint(goid.GetGID(), 10)),
	)
	merged = append(merged, fields...)
	ce.Write(merged...)
}

func Debug(msg string, fields ...zapcore.Field) { log(zap.DebugLevel, msg, fields...) }
func Info(msg string, fields ...zapcore.Field)  { log(zap.InfoLevel, msg, fields...) }
func Warn(msg string, fields ...zapcore.Field)  { log(zap.WarnLevel, msg, fields...) }
func Error(msg string, fields ...zapcore.Field) { log(zap.ErrorLevel, msg, fields...) }
func Fatal(msg string, fields ...zapcore.Field) { log(zap.FatalLevel, msg, fields...) }

func Sync() error {
	mu.RLock()
	defer mu.RUnlock()
	return baseLogger.Sync()
}

// GetLogger 返回底层 zap.Logger（promhttp ErrorLog 等场景）
func GetLogger() *zap.Logger {
	mu.RLock()
	defer mu.RUnlock()
	return baseLogger
}
