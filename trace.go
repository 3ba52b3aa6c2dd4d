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

package acdc

import (
	"slices"

	"github.com/zintix-labs/acdc/corefmt"
	"github.com/zintix-labs/acdc/errs"
)

// 單次追蹤的嘗試次數上限
const maxTraceTrials = 5000

// Tracer 是除錯用的單線追蹤器：逐次回傳每一次嘗試的細節，並附上前後快照，重點在可審計、可重現。
type Tracer struct {
	e *Engine
}

// TrialRecord 為單次嘗試的紀錄
type TrialRecord struct {
	Fn           int       `json:"fn"`
	X            []float64 `json:"x"`
	F            float64   `json:"f"`
	G            float64   `json:"g"` // 取點所在葉格子的高估值
	Accepted     bool      `json:"accepted"`
	Compensating bool      `json:"compensating"` // 嘗試當下是否處於補償狀態
}

type TraceReport struct {
	Before        string        `json:"start_b64u"`
	After         string        `json:"after_b64u"`
	Trials        int           `json:"trials"`
	Accepted      int           `json:"accepted"`
	Compensations int           `json:"compensations"` // 本次追蹤期間新增的補償次數
	Integral      float64       `json:"integral"`
	IntegralErr   float64       `json:"integral_err"`
	Records       []TrialRecord `json:"records"`
}

// Trace 從目前狀態做 trials 次嘗試
func (t *Tracer) Trace(trials int) (TraceReport, error) {
	if trials < 1 || trials > maxTraceTrials {
		return TraceReport{}, errs.Warnf("trials must be between 1 and %d", maxTraceTrials)
	}
	e := t.e
	e.mu.Lock()
	defer e.mu.Unlock()
	g := e.gen

	before, err := g.Snapshot()
	if err != nil {
		return TraceReport{}, err
	}
	comp0 := g.Compensations()
	rep := TraceReport{Trials: trials, Records: make([]TrialRecord, 0, trials)}
	for range trials {
		comp := g.Compensating()
		ok, idx := g.Try()
		rep.Records = append(rep.Records, TrialRecord{
			Fn:           idx,
			X:            slices.Clone(g.lastPoint),
			F:            g.lastF,
			G:            g.lastCell.G(),
			Accepted:     ok,
			Compensating: comp,
		})
		if ok {
			rep.Accepted++
		}
	}
	after, err := g.Snapshot()
	if err != nil {
		return TraceReport{}, err
	}
	rep.Before = corefmt.EncodeBase64URL(before)
	rep.After = corefmt.EncodeBase64URL(after)
	rep.Compensations = g.Compensations() - comp0
	rep.Integral = g.Integral()
	rep.IntegralErr = g.IntegralErr()
	return rep, nil
}

// RestoreTrace 先還原 before64 指向的狀態再追蹤；同一個 before64 + trials 必得到相同的紀錄。
func (t *Tracer) RestoreTrace(before64 string, trials int) (TraceReport, error) {
	be, err := corefmt.DecodeBase64URL(before64)
	if err != nil {
		return TraceReport{}, errs.Wrap(err, "decode snapshot failed")
	}
	if err := t.e.Restore(be); err != nil {
		return TraceReport{}, errs.Wrap(err, "restore tracer failed")
	}
	return t.Trace(trials)
}
