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
	"slices"

	"github.com/zintix-labs/acdc/corefmt"
	"github.com/zintix-labs/acdc/sdk/cell"
	"github.com/zintix-labs/acdc/spec"
)

// SampleResult 為一次 Sample 的對外輸出。
type SampleResult struct {
	RunName      string      `json:"run"`
	RunID        spec.RunID  `json:"rid"`
	Points       []Point     `json:"points"`
	Attempted    int64       `json:"attempted"` // 取樣器累計嘗試次數
	Accepted     int64       `json:"accepted"`  // 取樣器累計接受次數
	Integral     float64     `json:"integral"`
	IntegralErr  float64     `json:"integral_err"`
	Compensating bool        `json:"compensating"` // 為 true 時積分估計仍在修正中
	State        SampleState `json:"sample_state"`
}

// Point 為一個被接受的點
type Point struct {
	Fn   int       `json:"fn"`   // 函數索引
	Name string    `json:"name"` // 函數名稱
	X    []float64 `json:"x"`
	F    float64   `json:"f"`
	Cell *cell.Box `json:"cell,omitempty"` // 取點所在的葉格子（with_cell 時回傳）
}

// NewPoint 複製 x 與 box，呼叫端可以繼續重用自己的 buffer
func NewPoint(fn int, name string, x []float64, f float64, box *cell.Box) Point {
	p := Point{Fn: fn, Name: name, X: slices.Clone(x), F: f}
	if box != nil {
		b := box.Clone()
		p.Cell = &b
	}
	return p
}

type SampleState struct {
	StartSnapB64U string `json:"start_b64u"` // 必回
	AfterSnapB64U string `json:"after_b64u"` // 必回
}

func NewSampleState(start, after []byte) SampleState {
	return SampleState{
		StartSnapB64U: corefmt.EncodeBase64URL(start),
		AfterSnapB64U: corefmt.EncodeBase64URL(after),
	}
}

// TreeResult 為單一函數的切割樹（前序展開）
type TreeResult struct {
	RunID    spec.RunID    `json:"rid"`
	Function int           `json:"fn"`
	Name     string        `json:"name"`
	Dim      int           `json:"dim"`
	Warmup   int           `json:"warmup"`
	Bins     int           `json:"bins"`
	Depth    int           `json:"depth"`
	MaxInt   float64       `json:"max_int"`
	Cells    []cell.Record `json:"cells"`
}
