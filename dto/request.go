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

package dto

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/zintix-labs/acdc/corefmt"
	"github.com/zintix-labs/acdc/errs"
	"github.com/zintix-labs/acdc/spec"
)

// 單次請求上限
const (
	MaxSampleCount = 10_000
	MaxSimTrials   = 50_000_000
	MaxSimWorkers  = 64
	maxBody        = 1 << 20
)

// SampleRequest 向指定 run 取得 count 個被接受的點。
type SampleRequest struct {
	RunID      spec.RunID  `json:"rid"`                   // catalog 中的 run 編號
	RunName    string      `json:"run,omitempty"`         // 可選：用於核對
	Count      int         `json:"count"`                 // 要取得的點數（預設 1）
	WithCell   bool        `json:"with_cell,omitempty"`   // 是否回傳每個點所在的格子
	StartState *StartState `json:"start_state,omitempty"` // 可選：由呼叫端帶入的取樣器狀態
}

// StartState 是呼叫端帶入的「取樣器可恢復狀態」（可選）。
//
//   - 缺省：由池中的取樣器接續其自身狀態取樣。
//   - start_b64u 有值：先以該快照還原取樣器（含切割樹、補償堆疊與亂數狀態），再開始取樣。
//     把上一次回應的 after_b64u 帶回即可延續同一條取樣流水，帶回 start_b64u 則可重現同一批點。
type StartState struct {
	StartSnapB64U string `json:"start_b64u,omitempty"`
}

func (ss *StartState) HasPayload() bool {
	return ss != nil && ss.StartSnapB64U != ""
}

// StartSnap 解碼起始快照；沒有帶入時回傳 nil。
func (sr *SampleRequest) StartSnap() ([]byte, error) {
	if !sr.StartState.HasPayload() {
		return nil, nil
	}
	snap, err := corefmt.DecodeBase64URL(sr.StartState.StartSnapB64U)
	if err != nil {
		return nil, errs.NewWarn("start snap decode failed " + err.Error())
	}
	return snap, nil
}

// Valid 補上預設值並檢查範圍
func (sr *SampleRequest) Valid() error {
	if sr.Count == 0 {
		sr.Count = 1
	}
	if sr.Count < 0 || sr.Count > MaxSampleCount {
		return errs.NewWarn(fmt.Sprintf("count must be between 1 and %d", MaxSampleCount))
	}
	return nil
}

// DecodeSampleRequest 會把 HTTP 請求解碼成 SampleRequest。
//
// 支援：
//   - GET：從 query string 讀取 rid/run/count/with_cell。帶入狀態請用 POST。
//   - POST：從 JSON body 反序列化（支援 start_state），body 上限 1MiB，未知欄位直接拒絕。
//
// 這裡只負責解碼與型別轉換；rid 是否存在由 Runtime 決定。
func DecodeSampleRequest(r *http.Request) (*SampleRequest, error) {
	if r == nil {
		return nil, errs.NewWarn("nil request")
	}
	req := new(SampleRequest)
	switch r.Method {
	case http.MethodGet:
		q := r.URL.Query()
		req.RunName = q.Get("run")
		id, err := queryUint(q.Get("rid"), "rid")
		if err != nil {
			return nil, err
		}
		req.RunID = spec.RunID(id)
		if req.Count, err = queryInt(q.Get("count"), "count"); err != nil {
			return nil, err
		}
		if s := q.Get("with_cell"); s != "" {
			v, err := strconv.ParseBool(s)
			if err != nil {
				return nil, errs.NewWarn("invalid with_cell value " + err.Error())
			}
			req.WithCell = v
		}
	case http.MethodPost:
		if err := decodeJSON(r.Body, req); err != nil {
			return nil, err
		}
	default:
		return nil, errs.NewWarn("method not allowed")
	}
	return req, req.Valid()
}

// SimRequest 對指定 run 做一次大量模擬並回傳統計報表。
type SimRequest struct {
	RunID   spec.RunID `json:"rid"`
	Trials  int        `json:"trials"`         // 每個 worker 的嘗試次數
	Workers int        `json:"workers"`        // 併發 worker 數（預設 1）
	Seed    *int64     `json:"seed,omitempty"` // 可選：固定初始 seed 以重現
}

func (sr *SimRequest) Valid() error {
	if sr.Workers == 0 {
		sr.Workers = 1
	}
	if sr.Workers < 0 || sr.Workers > MaxSimWorkers {
		return errs.NewWarn(fmt.Sprintf("workers must be between 1 and %d", MaxSimWorkers))
	}
	if sr.Trials < 1 || sr.Trials*sr.Workers > MaxSimTrials {
		return errs.NewWarn(fmt.Sprintf("trials * workers must be between 1 and %d", MaxSimTrials))
	}
	return nil
}

// DecodeSimRequest 解碼 SimRequest（GET query：rid/trials/workers/seed，或 POST JSON）
func DecodeSimRequest(r *http.Request) (*SimRequest, error) {
	if r == nil {
		return nil, errs.NewWarn("nil request")
	}
	req := new(SimRequest)
	switch r.Method {
	case http.MethodGet:
		q := r.URL.Query()
		id, err := queryUint(q.Get("rid"), "rid")
		if err != nil {
			return nil, err
		}
		req.RunID = spec.RunID(id)
		if req.Trials, err = queryInt(q.Get("trials"), "trials"); err != nil {
			return nil, err
		}
		if req.Workers, err = queryInt(q.Get("workers"), "workers"); err != nil {
			return nil, err
		}
		if s := q.Get("seed"); s != "" {
			v, err := strconv.ParseInt(s, 10, 64)
			if err != nil {
				return nil, errs.NewWarn(fmt.Sprintf("invalid seed: %v", err))
			}
			req.Seed = &v
		}
	case http.MethodPost:
		if err := decodeJSON(r.Body, req); err != nil {
			return nil, err
		}
	default:
		return nil, errs.NewWarn("method not allowed")
	}
	return req, req.Valid()
}

// TreeRequest 先以 warmup 次嘗試訓練一個新的取樣器，再回傳第 fn 個函數的切割樹。
type TreeRequest struct {
	RunID    spec.RunID `json:"rid"`
	Function int        `json:"fn"`
	Warmup   int        `json:"warmup"`
	Seed     *int64     `json:"seed,omitempty"`
}

func (tr *TreeRequest) Valid() error {
	if tr.Function < 0 {
		return errs.NewWarn("fn must be >= 0")
	}
	if tr.Warmup < 0 || tr.Warmup > MaxSimTrials {
		return errs.NewWarn(fmt.Sprintf("warmup must be between 0 and %d", MaxSimTrials))
	}
	return nil
}

// DecodeTreeRequest 解碼 TreeRequest（GET query：rid/fn/warmup/seed，或 POST JSON）
func DecodeTreeRequest(r *http.Request) (*TreeRequest, error) {
	if r == nil {
		return nil, errs.NewWarn("nil request")
	}
	req := new(TreeRequest)
	switch r.Method {
	case http.MethodGet:
		q := r.URL.Query()
		id, err := queryUint(q.Get("rid"), "rid")
		if err != nil {
			return nil, err
		}
		req.RunID = spec.RunID(id)
		if req.Function, err = queryInt(q.Get("fn"), "fn"); err != nil {
			return nil, err
		}
		if req.Warmup, err = queryInt(q.Get("warmup"), "warmup"); err != nil {
			return nil, err
		}
		if s := q.Get("seed"); s != "" {
			v, err := strconv.ParseInt(s, 10, 64)
			if err != nil {
				return nil, errs.NewWarn(fmt.Sprintf("invalid seed: %v", err))
			}
			req.Seed = &v
		}
	case http.MethodPost:
		if err := decodeJSON(r.Body, req); err != nil {
			return nil, err
		}
	default:
		return nil, errs.NewWarn("method not allowed")
	}
	return req, req.Valid()
}

func decodeJSON(body io.Reader, v any) error {
	dec := json.NewDecoder(io.LimitReader(body, maxBody))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return errs.NewWarn(fmt.Sprintf("invalid json: %v", err))
	}
	return nil
}

func queryInt(s, name string) (int, error) {
	if s == "" {
		return 0, nil
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return 0, errs.NewWarn(fmt.Sprintf("invalid %s: %v", name, err))
	}
	return v, nil
}

func queryUint(s, name string) (uint64, error) {
	if s == "" {
		return 0, nil
	}
	v, err := strconv.ParseUint(s, 10, 0)
	if err != nil {
		return 0, errs.NewWarn(fmt.Sprintf("invalid %s: %v", name, err))
	}
	return v, nil
}
