// Copyright 2025 Zintix Labs
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package middleware

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/zintix-labs/acdc/server/logger"
)

type statusRecorder struct {
	http.ResponseWriter
	status int
	bytes  int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (r *statusRecorder) Write(b []byte) (int, error) {
	n, err := r.ResponseWriter.Write(b)
	r.bytes += n
	return n, err
}

// AccessLog 每個請求輸出一筆結構化 access log（method/path/status/latency/bytes）。
// req_id 由 RequestID 放進 context，經 logger.ContextHandler 帶出。
//
//   - 只記錄請求外層訊號，不記錄取樣結果內容。
//   - 非同步與緩衝由呼叫端組裝的 slog.Handler 決定（例如 AsyncHandler）。
//   - 帶有 rid 查詢參數時一併記錄，方便依 run 聚合。
//
// log 為 nil 時為 no-op。
func AccessLog(log *slog.Logger) func(http.Handler) http.Handler {
	if log == nil {
		return func(next http.Handler) http.Handler { return next }
	}

	log = logger.WithContext(log)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			rw := &statusRecorder{
				ResponseWriter: w,
				status:         http.StatusOK, // default 200
			}

			next.ServeHTTP(rw, r)

			status := rw.status
			lvl := levelByStatus(status)

			// 訊息固定為 http.access，供以 log 聚合指標
			attrs := []slog.Attr{
				slog.Int("status", status),
				slog.String("method", r.Method),
				slog.String("path", r.URL.Path),
				slog.Duration("latency", time.Since(start)),
				slog.Int("bytes", rw.bytes),
			}
			if rid := r.URL.Query().Get("rid"); rid != "" {
				attrs = append(attrs, slog.String("rid", rid))
			}
			log.LogAttrs(r.Context(), lvl, "http.access", attrs...)
		})
	}
}

func levelByStatus(status int) slog.Level {
	switch {
	case status >= 500:
		return slog.LevelError
	case status >= 400:
		return slog.LevelWarn
	default:
		return slog.LevelInfo
	}
}
