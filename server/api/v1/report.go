package v1

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/zintix-labs/acdc/errs"
	"github.com/zintix-labs/acdc/server/httperr"
	"github.com/zintix-labs/acdc/stats"
)

// writeReport 依 ?format= 輸出報表；json（預設）另附耗時，yaml / table 直接輸出報表本體
func writeReport(w http.ResponseWriter, q *http.Request, st *stats.StatReport, used time.Duration) {
	// 內部結構 不影響外部 也不被外部使用
	type SimResponse struct {
		Stats    *stats.StatReport `json:"stats"`
		UsedTime int64             `json:"used_ms"`
	}
	format := q.URL.Query().Get("format")
	if format == "" || format == "json" {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(SimResponse{Stats: st, UsedTime: used.Milliseconds()})
		return
	}
	render, err := stats.RenderOf(format)
	if err != nil {
		httperr.Errs(w, errs.NewWarn(err.Error()))
		return
	}
	if format == "table" {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	} else {
		w.Header().Set("Content-Type", "application/yaml")
	}
	if err := st.WriteWith(w, render); err != nil {
		httperr.Errs(w, err)
	}
}
