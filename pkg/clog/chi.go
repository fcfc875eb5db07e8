package clog

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5/middleware"
)

// RequestLogger logs one line per request at a level derived from the
// response status, and arms the context so handlers can attach extra
// attributes to that line. Mount chi's RequestID middleware first to get
// a request_id attribute.
func RequestLogger() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		fn := func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

			ctx := NewContext(r.Context())
			AddAttributes(ctx, map[string]any{
				"method": r.Method,
				"path":   r.URL.Path,
				"proto":  r.Proto,
			})
			if id := middleware.GetReqID(ctx); id != "" {
				AddAttribute(ctx, "request_id", id)
			}

			next.ServeHTTP(ww, r.WithContext(ctx))

			AddAttributes(ctx, map[string]any{
				"status":        ww.Status(),
				"bytes_written": ww.BytesWritten(),
				"duration":      time.Since(start),
			})
			logStatus(ctx, ww.Status())
		}
		return http.HandlerFunc(fn)
	}
}

func logStatus(ctx context.Context, status int) {
	msg := http.StatusText(status)
	switch HTTPStatusToLevel(status) {
	case LevelError:
		slog.ErrorContext(ctx, msg)
	case LevelWarn:
		slog.WarnContext(ctx, msg)
	case LevelDebug:
		slog.DebugContext(ctx, msg)
	default:
		slog.InfoContext(ctx, msg)
	}
}
