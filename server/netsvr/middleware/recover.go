package middleware

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	chimid "github.com/go-chi/chi/v5/middleware"
)

// Recover 攔截 handler 的 panic：先以 log 記錄（帶 req_id），再交給 chi 的 Recoverer 回 500。
// http.ErrAbortHandler 是刻意中止連線，不記錄。log 為 nil 時只有 chi 的行為。
func Recover(log *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if log == nil {
			return chimid.Recoverer(next)
		}
		logged := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if v := recover(); v != nil {
					if err, ok := v.(error); !ok || !errors.Is(err, http.ErrAbortHandler) {
						log.LogAttrs(r.Context(), slog.LevelError, "http.panic",
							slog.String("method", r.Method),
							slog.String("path", r.URL.Path),
							slog.String("panic", fmt.Sprint(v)),
						)
					}
					panic(v)
				}
			}()
			next.ServeHTTP(w, r)
		})
		return chimid.Recoverer(logged)
	}
}
