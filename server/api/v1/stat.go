package v1

import (
	"encoding/json"
	"net/http"

	"github.com/zintix-labs/acdc/errs"
	"github.com/zintix-labs/acdc/recorder"
	"github.com/zintix-labs/acdc/server/httperr"
)

// Stat 合併外部收集的多份紀錄（例如分散在多台機器上的模擬），重新輸出統計報表
func Stat(w http.ResponseWriter, r *http.Request) {
	// Post方法限定
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	// 嘗試解析
	r.Body = http.MaxBytesReader(w, r.Body, 5<<20)
	recs := make([]*recorder.GenRecorder, 0, 4)
	if err := json.NewDecoder(r.Body).Decode(&recs); err != nil {
		httperr.Errs(w, errs.NewWarn("invalid json: "+err.Error()))
		return
	}
	if len(recs) == 0 {
		httperr.Errs(w, errs.NewWarn("at least one record is required"))
		return
	}
	for _, rec := range recs {
		if rec == nil {
			httperr.Errs(w, errs.NewWarn("null record"))
			return
		}
		if err := rec.Valid(); err != nil {
			httperr.Errs(w, err)
			return
		}
	}
	merged, err := recorder.MergeGenRecorder(recs)
	if err != nil {
		// 合併失敗屬於請求內容不一致
		httperr.Errs(w, errs.NewWarn(err.Error()))
		return
	}
	writeReport(w, r, merged.Done(), 0)
}
