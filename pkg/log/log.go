// Package log 持有进程级 zap SugaredLogger，并能从 context 中带出 trace 信息。
package log

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"smartdoc-go/internal/config"

	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

const logFileName = "smartdoc.log"

// Init 之前为 nop logger，测试与 CLI 子命令无需初始化即可调用。
var sugar = zap.NewNop().Sugar()

// Init 按配置构建 logger。format 为 console 时输出彩色文本，否则为 json。
func Init(cfg config.LogConfig) error {
	level := zap.NewAtomicLevelAt(zap.InfoLevel)
	if cfg.Level != "" {
		if err := level.UnmarshalText([]byte(cfg.Level)); err != nil {
			return fmt.Errorf("invalid log level %q: %w", cfg.Level, err)
		}
	}

	zc := zap.NewProductionConfig()
	if cfg.Format == "console" {
		zc = zap.NewDevelopmentConfig()
		zc.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	}
	zc.Level = level
	zc.EncoderConfig.TimeKey = "ts"
	zc.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	zc.OutputPaths = []string{"stdout"}
	if cfg.OutputPath != "" {
		if err := os.MkdirAll(cfg.OutputPath, 0o755); err != nil {
			return fmt.Errorf("create log dir: %w", err)
		}
		zc.OutputPaths = append(zc.OutputPaths, filepath.Join(cfg.OutputPath, logFileName))
	}

	logger, err := zc.Build(zap.AddCallerSkip(1))
	if err != nil {
		return fmt.Errorf("build logger: %w", err)
	}
	sugar = logger.Sugar()
	return nil
}

// Replace 替换全局 logger 并返回恢复函数。
func Replace(l *zap.Logger) (restore func()) {
	prev := sugar
	sugar = l.Sugar()
	return func() { sugar = prev }
}

// Ctx 返回附带 trace_id/span_id 的 logger；ctx 中没有有效 span 时返回全局 logger。
func Ctx(ctx context.Context) *zap.SugaredLogger {
	l := sugar.WithOptions(zap.AddCallerSkip(-1))
	sc := trace.SpanContextFromContext(ctx)
	if !sc.IsValid() {
		return l
	}
	return l.With("trace_id", sc.TraceID().String(), "span_id", sc.SpanID().String())
}

func Info(msg string) {
	sugar.Info(msg)
}

func Infof(template string, args ...interface{}) {
	sugar.Infof(template, args...)
}

func Infow(msg string, keysAndValues ...interface{}) {
	sugar.Infow(msg, keysAndValues...)
}

func Warnf(template string, args ...interface{}) {
	sugar.Warnf(template, args...)
}

// Error 以结构化字段 error 记录错误。
func Error(msg string, err error) {
	sugar.Errorw(msg, "error", err)
}

func Errorf(template string, args ...interface{}) {
	sugar.Errorf(template, args...)
}

// Sync 刷新缓冲区，进程退出前调用。
func Sync() {
	_ = sugar.Sync()
}
