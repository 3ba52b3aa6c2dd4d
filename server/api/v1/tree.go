package v1

import (
	"encoding/json"
	"net/http"

	"github.com/zintix-labs/acdc"
	"github.com/zintix-labs/acdc/dto"
	"github.com/zintix-labs/acdc/errs"
	"github.com/zintix-labs/acdc/server/httperr"
)

// Tree 以新的取樣器 warmup 後回傳指定函數的切割樹（葉格子的盒子、高估值、積分）
func (sh *SimHandler) Tree(w http.ResponseWriter, q *http.Request) {
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
	res, err := e.Tree(req.Function, req.Warmup)
	if err != nil {
		httperr.Errs(w, err)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(res)
}

// Catalog 回傳已註冊 run 的摘要
func (sh *SimHandler) Catalog(w http.ResponseWriter, q *http.Request) {
	if q.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	sum, err := sh.Lab.Summary()
	if err != nil {
		httperr.Errs(w, err)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(sum)
}
