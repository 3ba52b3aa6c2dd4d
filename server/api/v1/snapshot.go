package v1

import (
	"net/http"
	"strconv"

	"github.com/zintix-labs/acdc"
	"github.com/zintix-labs/acdc/corefmt"
	"github.com/zintix-labs/acdc/dto"
	"github.com/zintix-labs/acdc/errs"
	"github.com/zintix-labs/acdc/server/httperr"
)

// Snapshot 以新的取樣器 warmup 後回傳其完整狀態（blob frame，可由 cmd/run -load 讀入）。
// 參數同 /v1/tree，fn 不使用。內容已是 zstd 壓縮，回應不再壓縮。
func (sh *SimHandler) Snapshot(w http.ResponseWriter, q *http.Request) {
	if q.Method != http.MethodGet && q.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	req, err := dto.DecodeTreeRequest(q)
	if err != nil {
		httperr.Errs(w, err)
		return
	}
	if _, ok := sh.Lab.EntryByID(req.RunID); !ok {
		httperr.Errs(w, errs.NewWarn("rid not found"))
		return
	}
	var e *acdc.Engine
	if req.Seed != nil {
		e, err = sh.Lab.NewEngineWithSeed(req.RunID, *req.Seed)
	} else {
		e, err = sh.Lab.NewEngine(req.RunID)
	}
	if err != nil {
		httperr.Errs(w, errs.Wrap(err, "build engine err"))
		return
	}
	e.Warmup(req.Warmup)
	snap, err := e.Snapshot()
	if err != nil {
		httperr.Errs(w, errs.Wrap(err, "snapshot err"))
		return
	}
	frame := corefmt.EncodeBlobFrame(snap)
	w.Header().Set("Content-Type", "application/octet-stream")
	w.Header().Set("Content-Length", strconv.Itoa(len(frame)))
	w.Header().Set("Content-Disposition", "attachment; filename=\"acdc-"+strconv.FormatUint(uint64(req.RunID), 10)+".snap\"")
	_, _ = w.Write(frame)
}
