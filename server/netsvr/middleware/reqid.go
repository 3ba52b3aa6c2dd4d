package middleware

import (
	"log/slog"
	"net/http"

	chimid "github.com/go-chi/chi/v5/middleware"
	"github.com/zintix-labs/acdc/server/logger"
)

// RequestID 為每個請求產生 X-Request-Id（沿用 chi 的格式），並放進 log context，
// 之後這個請求裡的所有 log 都會帶 req_id。回應 header 也回傳同一個 id。
func RequestID(next http.Handler) http.Handler {
	return chimid.RequestID(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := GetReqId(r)
		if id != "" {
			w.Header().Set(chimid.RequestIDHeader, id)
			r = r.WithContext(logger.AppendCtx(r.Context(), slog.String("req_id", id)))
		}
		next.ServeHTTP(w, r)
	}))
}

func GetReqId(r *http.Request) string {
	return chimid.GetReqID(r.Context())
}
