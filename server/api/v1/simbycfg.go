package v1

import (
	"encoding/json"
	"net/http"

	"github.com/zintix-labs/acdc"
	"github.com/zintix-labs/acdc/dto"
	"github.com/zintix-labs/acdc/errs"
	"github.com/zintix-labs/acdc/server/httperr"
)

// SetByJson 傳入 JSON設定格式 以及希望模擬的次數（調參用，設定不需事先註冊）
func (sh *SimHandler) SetByJson(w http.ResponseWriter, r *http.Request) {
	type SimRequestByJson struct {
		Trials     int             `json:"trials"`
		Workers    int             `json:"workers"`
		RunSetting json.RawMessage `json:"cfg"`
		Seed       *int64          `json:"seed,omitempty"`
	}
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	// 1. decode request
	req := new(SimRequestByJson)
	r.Body = http.MaxBytesReader(w, r.Body, 5<<20) // 5MB
	if err := json.NewDecoder(r.Body).Decode(req); err != nil {
		httperr.Errs(w, errs.NewWarn("json decode failed: "+err.Error()))
		return
	}

	// 2. valid trials / workers（與 /v1/sim 相同上限）
	sr := &dto.SimRequest{Trials: req.Trials, Workers: req.Workers}
	if err := sr.Valid(); err != nil {
		httperr.Errs(w, err)
		return
	}
	if len(req.RunSetting) == 0 {
		httperr.Errs(w, errs.NewWarn("cfg is required"))
		return
	}
	if req.Seed == nil {
		v := acdc.RandomSeed()
		req.Seed = &v
	}

	// 3. NewSimulator
	sim, err := sh.Lab.NewSimulatorByJSON(req.RunSetting, *req.Seed)
	if err != nil {
		httperr.Errs(w, err)
		return
	}
	result, used, err := runSim(sim, sr.Trials, sr.Workers)
	if err != nil {
		httperr.Errs(w, err)
		return
	}
	writeReport(w, r, result, used)
}
