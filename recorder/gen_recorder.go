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

package recorder

import (
	"fmt"
	"slices"

	"github.com/zintix-labs/acdc/errs"
	"github.com/zintix-labs/acdc/spec"
	"github.com/zintix-labs/acdc/stats"
)

// Source 為紀錄員讀取產生器狀態所需的最小介面（*acdc.Generator 即滿足）
type Source interface {
	N() int64
	NAcc() int64
	MaxInt() float64
	Compensating() bool
	Compensations() int
	NBins() int
	Depth() int
	NFunctions() int
	Name(i int) string
	NOf(i int) int64
	NAttemptedOf(i int) int64
	MaxIntOf(i int) float64
	CompensationsOf(i int) int
}

// GenRecorder 取樣紀錄員
//
// 每個 worker 持有一個 GenRecorder，逐次紀錄嘗試結果，結束時以 Finish 擷取產生器的最終狀態；
// 多個 worker 以 MergeGenRecorder 合併後由 Done 輸出統計報表。
type GenRecorder struct {
	RunName string
	RunID   spec.RunID
	Names   []string
	Exact   *float64
	Basic   *BasicRecord
	Workers []stats.WorkerSample
}

// BasicRecord 逐次紀錄的計數（與產生器自身計數獨立，用於交叉檢查）
type BasicRecord struct {
	Trials     int64
	Accepted   int64
	CompTrials int64   // 嘗試當下處於補償狀態
	Picked     []int64 // 各函數被選中次數
}

func NewGenRecorder(name string, id spec.RunID, names []string) (*GenRecorder, error) {
	if len(names) == 0 {
		return nil, errs.NewFatal("gen recorder needs at least one function")
	}
	return &GenRecorder{
		RunName: name,
		RunID:   id,
		Names:   slices.Clone(names),
		Basic:   &BasicRecord{Picked: make([]int64, len(names))},
	}, nil
}

// SetExact 設定已知的真值，報表會附上 pull
func (r *GenRecorder) SetExact(v float64) { r.Exact = &v }

// Record 紀錄單次嘗試
func (r *GenRecorder) Record(idx int, accepted, compensating bool) {
	b := r.Basic
	b.Trials++
	if accepted {
		b.Accepted++
	}
	if compensating {
		b.CompTrials++
	}
	if idx >= 0 && idx < len(b.Picked) {
		b.Picked[idx]++
	}
}

// Finish 擷取產生器的最終狀態作為一個 worker 的樣本
func (r *GenRecorder) Finish(src Source) error {
	if src.NFunctions() != len(r.Names) {
		return errs.NewFatal(fmt.Sprintf("gen recorder expects %d functions, source has %d", len(r.Names), src.NFunctions()))
	}
	w := stats.WorkerSample{
		MaxInt:        src.MaxInt(),
		Attempted:     src.N(),
		Accepted:      src.NAcc(),
		CompTrials:    r.Basic.CompTrials,
		Compensations: src.Compensations(),
		Compensating:  src.Compensating(),
		Bins:          src.NBins(),
		Depth:         src.Depth(),
		Functions:     make([]stats.FunctionSample, len(r.Names)),
	}
	for i := range r.Names {
		w.Functions[i] = stats.FunctionSample{
			Attempted:     src.NAttemptedOf(i),
			Accepted:      src.NOf(i),
			MaxInt:        src.MaxIntOf(i),
			Compensations: src.CompensationsOf(i),
		}
	}
	r.Workers = append(r.Workers, w)
	return nil
}

// Valid 檢查由外部（例如 JSON）還原的紀錄是否一致
func (r *GenRecorder) Valid() error {
	if len(r.Names) == 0 {
		return errs.NewWarn("gen recorder needs at least one function")
	}
	if r.Basic == nil || len(r.Basic.Picked) != len(r.Names) {
		return errs.NewWarn("gen recorder basic record does not match functions")
	}
	for _, w := range r.Workers {
		if len(w.Functions) != len(r.Names) {
			return errs.NewWarn(fmt.Sprintf("gen recorder worker has %d functions, want %d", len(w.Functions), len(r.Names)))
		}
		if w.Attempted < w.Accepted || w.Accepted < 0 || w.MaxInt < 0 {
			return errs.NewWarn("gen recorder worker counts are inconsistent")
		}
	}
	return nil
}

// MergeGenRecorder 合併多個 worker 的紀錄
func MergeGenRecorder(r []*GenRecorder) (*GenRecorder, error) {
	if len(r) == 0 {
		return nil, errs.NewFatal("merge gen record err : empty")
	}
	r0 := r[0]
	s, err := NewGenRecorder(r0.RunName, r0.RunID, r0.Names)
	if err != nil {
		return nil, err
	}
	s.Exact = r0.Exact
	for _, v := range r {
		if v.RunName != r0.RunName || v.RunID != r0.RunID {
			return nil, errs.NewFatal("merge gen record err : different run")
		}
		if !slices.Equal(v.Names, r0.Names) {
			return nil, errs.NewFatal("merge gen record err : different functions")
		}
		s.Basic.Trials += v.Basic.Trials
		s.Basic.Accepted += v.Basic.Accepted
		s.Basic.CompTrials += v.Basic.CompTrials
		for i, p := range v.Basic.Picked {
			s.Basic.Picked[i] += p
		}
		s.Workers = append(s.Workers, v.Workers...)
	}
	return s, nil
}

// Done 輸出統計報表
func (r *GenRecorder) Done() *stats.StatReport {
	rep := stats.NewStatReport(r.RunName, r.RunID, r.Names, r.Workers, r.Exact)
	rep.Done()
	return rep
}
