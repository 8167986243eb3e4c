package http

import (
	"context"
	"time"

	nethttp "net/http"

	"github.com/go-chi/chi/v5/middleware"

	"github.com/mind-engage/coursetrack/internal/logger"
)

type ctxKey string

const ctxKeyLogger ctxKey = "logger"

func loggerFrom(ctx context.Context) *logger.Logger {
	if l, ok := ctx.Value(ctxKeyLogger).(*logger.Logger); ok {
		return l
	}
	return logger.Nop()
}

// RequestLogger stores a request scoped logger in the context and writes one
// access line per request.
func RequestLogger(log *logger.Logger) func(nethttp.Handler) nethttp.Handler {
	return func(next nethttp.Handler) nethttp.Handler {
		return nethttp.HandlerFunc(func(w nethttp.ResponseWriter, r *nethttp.Request) {
			start := time.Now()
			reqLog := log.With("request_id", middleware.GetReqID(r.Context()))
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r.WithContext(context.WithValue(r.Context(), ctxKeyLogger, reqLog)))

			kv := []interface{}{
				"method", r.Method,
				"path", r.URL.Path,
				"status", ww.Status(),
				"bytes", ww.BytesWritten(),
				"duration_ms", time.Since(start).Milliseconds(),
			}
			if ww.Status() >= 500 {
				reqLog.Warn("request", kv...)
				return
			}
			reqLog.Info("request", kv...)
		})
	}
}
