package v1

import (
	"fmt"
	"net/http"
	"time"

	"github.com/zintix-labs/acdc"
	"github.com/zintix-labs/acdc/dto"
	"github.com/zintix-labs/acdc/errs"
	"github.com/zintix-labs/acdc/server/httperr"
	"github.com/zintix-labs/acdc/stats"
)

type SimHandler struct {
	Lab *acdc.Lab
}

func NewSimHandler(lab *acdc.Lab) (*SimHandler, error) {
	if lab == nil {
		return nil, errs.NewFatal("lab is required")
	}
	return &SimHandler{Lab: lab}, nil
}

// Sim 以全新的取樣器跑 trials 次嘗試（workers > 1 時平行執行並合併），回傳統計報表
func (sh *SimHandler) Sim(w http.ResponseWriter, q *http.Request) {
	if q.Method != http.MethodGet && q.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	req, err := dto.DecodeSimRequest(q)
	if err != nil {
		httperr.Errs(w, err)
		return
	}
	// 業務檢驗
	if _, ok := sh.Lab.EntryByID(req.RunID); !ok {
		httperr.Errs(w, errs.NewWarn("rid not found"))
		return
	}
	var sim *acdc.Simulator
	if req.Seed != nil {
		sim, err = sh.Lab.NewSimulatorWithSeed(req.RunID, *req.Seed)
	} else {
		sim, err = sh.Lab.NewSimulator(req.RunID)
	}
	if err != nil {
		// 這裡的錯誤是來自 lab 尊重錯誤分級
		httperr.Errs(w, errs.Wrap(err, fmt.Sprintf("build simulator err: %d", req.RunID)))
		return
	}
	st, used, err := runSim(sim, req.Trials, req.Workers)
	if err != nil {
		// 這裡的錯誤來自simulator 尊重錯誤分級
		httperr.Errs(w, errs.Wrap(err, "simulate err"))
		return
	}
	writeReport(w, q, st, used)
}

func runSim(sim *acdc.Simulator, trials, workers int) (*stats.StatReport, time.Duration, error) {
	if workers <= 1 {
		return sim.Sim(trials, false)
	}
	return sim.SimMP(trials, workers, false)
}
