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

// Package sampler 提供依權重挑選索引的工具。
//
// 本檔案 (cumtable.go) 實作累積權重表 (CumTable)，用於依各函數的高估積分挑選函數。
//
// 演算法原理：
//   - 建表：cum[i] = w[0] + ... + w[i]（gonum floats.CumSum）。
//   - 抽樣：u*total 在 cum 上二分搜尋，O(log N)。
//   - 殘值：選中 i 後，(u*total - cum[i-1]) / w[i] 在 [0,1) 內仍為均勻，可再利用。
//
// 特性：
//   - 權重為浮點數，可隨時整表重建（高估積分會在補償後改變）。
//   - 權重為 0 的索引永不被選中。
package sampler

import (
	"sort"

	"github.com/zintix-labs/acdc/errs"
	"gonum.org/v1/gonum/floats"
)

type CumTable struct {
	w   []float64
	cum []float64
}

// BuildCumTable 以權重建表。權重需非負且總和為正，否則回傳錯誤。
func BuildCumTable[T Numbers](weights []T) (*CumTable, error) {
	t := &CumTable{}
	if err := Rebuild(t, weights); err != nil {
		return nil, err
	}
	return t, nil
}

// Rebuild 以新權重就地重建表格，失敗時保留原內容。
func Rebuild[T Numbers](t *CumTable, weights []T) error {
	if len(weights) == 0 {
		return errs.NewWarn("empty weights")
	}
	w := make([]float64, len(weights))
	for i, x := range weights {
		f := float64(x)
		if !(f >= 0) {
			return errs.Warnf("invalid weight at %d: %v", i, f)
		}
		w[i] = f
	}
	cum := make([]float64, len(w))
	floats.CumSum(cum, w)
	if !(cum[len(cum)-1] > 0) {
		return errs.NewWarn("total weight must be positive")
	}
	t.w, t.cum = w, cum
	return nil
}

func (t *CumTable) Len() int { return len(t.w) }

func (t *CumTable) Total() float64 { return t.cum[len(t.cum)-1] }

// Weight 回傳第 i 個權重
func (t *CumTable) Weight(i int) float64 { return t.w[i] }

// Share 回傳第 i 個權重佔總和的比例
func (t *CumTable) Share(i int) float64 { return t.w[i] / t.Total() }

// Pick 以 u∈[0,1) 挑選索引，並回傳可再利用的殘值 residual∈[0,1)。
func (t *CumTable) Pick(u float64) (idx int, residual float64) {
	target := u * t.Total()
	idx = sort.Search(len(t.cum), func(i int) bool { return t.cum[i] > target })
	if idx == len(t.cum) {
		// u 極接近 1 時的浮點誤差，退回最後一個正權重
		idx = len(t.cum) - 1
		for idx > 0 && t.w[idx] == 0 {
			idx--
		}
		return idx, 0
	}
	base := 0.0
	if idx > 0 {
		base = t.cum[idx-1]
	}
	residual = (target - base) / t.w[idx]
	return idx, min(max(residual, 0), 1)
}
