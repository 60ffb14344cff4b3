package httpmw

import (
	"context"
	"net/http"
	"strings"
)

type ctxKey string

const (
	ctxKeyToken   ctxKey = "token"
	ctxKeyAgentID ctxKey = "agent_id"
)

// AuthMiddleware requires a Bearer token and picks up the optional
// X-Agent-ID header. The token itself is not validated here; upstream
// infrastructure terminates real auth.
func AuthMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		auth := r.Header.Get("Authorization")
		if !strings.HasPrefix(auth, "Bearer ") || len(auth) <= 7 {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusUnauthorized)
			_, _ = w.Write([]byte(`{"error":"missing bearer token"}`))
			return
		}

		ctx := context.WithValue(r.Context(), ctxKeyToken, strings.TrimSpace(auth[7:]))
		if aid := r.Header.Get("X-Agent-ID"); aid != "" {
			ctx = context.WithValue(ctx, ctxKeyAgentID, aid)
		}
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func AgentIDFromCtx(ctx context.Context) string {
	if v := ctx.Value(ctxKeyAgentID); v != nil {
		if id, ok := v.(string); ok {
			return id
		}
	}
	return ""
}
