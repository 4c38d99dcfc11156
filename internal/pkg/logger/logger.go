// internal/pkg/logger/logger.go
package logger

import (
	"context"
	"os"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/trace"
)

// base 是进程级别的根 logger，Init 之前使用默认配置，保证测试中也能直接调用 Ctx。
var base = zerolog.New(os.Stdout).With().Timestamp().Logger()

// Init 初始化全局 logger，只应在 main 中调用一次。
func Init(serviceName, level string) {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil || level == "" {
		lvl = zerolog.InfoLevel
	}
	zerolog.TimeFieldFormat = time.RFC3339Nano
	base = zerolog.New(os.Stdout).
		Level(lvl).
		With().
		Timestamp().
		Str("service", serviceName).
		Logger()
}

// Ctx 返回携带链路信息的 logger。
// 如果 ctx 中有活跃的 Span，日志会自动带上 trace_id 和 span_id，方便在 Jaeger 中跳转。
func Ctx(ctx context.Context) *zerolog.Logger {
	l := base
	spanCtx := trace.SpanContextFromContext(ctx)
	if spanCtx.HasTraceID() {
		l = l.With().
			Str("trace_id", spanCtx.TraceID().String()).
			Str("span_id", spanCtx.SpanID().String()).
			Logger()
	}
	return &l
}

// L 返回不带请求上下文的根 logger，用于启动和关停阶段。
func L() *zerolog.Logger {
	l := base
	return &l
}
