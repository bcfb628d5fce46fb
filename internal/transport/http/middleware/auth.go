package httpmw

import (
	"context"
	"net/http"
	"strings"
)

type ctxKey string

const ctxKeyToken ctxKey = "token"

// AuthMiddleware gates operational endpoints behind a Bearer token. It
// only requires presence; verification happens at the websocket identify
// step, not here.
func AuthMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		auth := r.Header.Get("Authorization")
		if !strings.HasPrefix(auth, "Bearer ") || len(auth) <= 7 {
			w.WriteHeader(http.StatusUnauthorized)
			_, _ = w.Write([]byte(`{"error":"missing bearer token"}`))
			return
		}

		ctx := context.WithValue(r.Context(), ctxKeyToken, strings.TrimSpace(auth[7:]))
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func TokenFromCtx(ctx context.Context) string {
	if v := ctx.Value(ctxKeyToken); v != nil {
		if t, ok := v.(string); ok {
			return t
		}
	}
	return ""
}
