// internal/pkg/logger/logger.go
package logger

import (
	"context"
	"os"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel/trace"
)

// Init 初始化全局 Logger。每个服务在启动时调用一次。
func Init(serviceName string) {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = zerolog.New(os.Stderr).With().
		Timestamp().
		Str("service", serviceName).
		Logger()
}

// Ctx 返回一个绑定了当前 trace_id 的 Logger，用于业务日志与链路的关联。
// 如果上下文中没有有效的 Span，则退回全局 Logger。
func Ctx(ctx context.Context) *zerolog.Logger {
	if sc := trace.SpanContextFromContext(ctx); sc.IsValid() {
		l := log.With().Str("trace_id", sc.TraceID().String()).Logger()
		return &l
	}
	return &log.Logger
}
