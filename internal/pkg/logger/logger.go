// internal/pkg/logger/logger.go
package logger

import (
	"context"
	"io"
	"net/http"
	"os"
	"strings"

	"github.com/rs/zerolog"
	zlog "github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel/trace"
)

// Init 配置全局 zerolog，所有日志都带上 service 字段。
func Init(serviceName, level string) {
	InitWithWriter(serviceName, level, os.Stdout)
}

// InitWithWriter 与 Init 相同，但允许测试替换输出。
func InitWithWriter(serviceName, level string, w io.Writer) {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	lvl, err := zerolog.ParseLevel(strings.ToLower(level))
	if err != nil || level == "" {
		lvl = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(lvl)
	zlog.Logger = zerolog.New(w).With().Timestamp().Str("service", serviceName).Logger()
	// 没有注入 logger 的 context 回落到全局 logger
	zerolog.DefaultContextLogger = &zlog.Logger
}

// Ctx returns the request-scoped logger, falling back to the global one.
func Ctx(ctx context.Context) *zerolog.Logger {
	l := zerolog.Ctx(ctx)
	if l.GetLevel() == zerolog.Disabled && zerolog.DefaultContextLogger == nil {
		return &zlog.Logger
	}
	return l
}

// WithTraceID 把 trace_id 绑定到 context 中的 logger 上。
func WithTraceID(ctx context.Context) context.Context {
	spanCtx := trace.SpanContextFromContext(ctx)
	if !spanCtx.HasTraceID() {
		return ctx
	}
	l := Ctx(ctx).With().Str("trace_id", spanCtx.TraceID().String()).Logger()
	return l.WithContext(ctx)
}

// Middleware 为每个请求注入带 trace_id 的 logger。
// 必须放在提取追踪上下文的中间件之后。
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		next.ServeHTTP(w, r.WithContext(WithTraceID(r.Context())))
	})
}
