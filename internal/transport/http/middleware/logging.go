package httpmw

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/1f916-ai/chat-service/pkg/logger"

	chimw "github.com/go-chi/chi/v5/middleware"
)

// LoggingMiddleware emits one record per request with trace correlation
// attributes when a span is active.
func LoggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)

		next.ServeHTTP(ww, r)

		attrs := []slog.Attr{
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
			slog.Int("status", ww.Status()),
			slog.Duration("took", time.Since(start)),
		}
		attrs = append(attrs, logger.AttrsFromCtx(r.Context())...)
		logger.L().LogAttrs(r.Context(), slog.LevelInfo, "http request", attrs...)
	})
}
