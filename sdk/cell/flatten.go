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

package cell

import (
	"fmt"
	"math"

	"github.com/zintix-labs/acdc/errs"
)

// Record 是攤平後的單一節點。Lower/Upper 為同一陣列中的索引，葉節點為 -1。
type Record struct {
	G     float64   `json:"g"`
	V     float64   `json:"v"`
	Lo    []float64 `json:"lo"`
	Up    []float64 `json:"up"`
	Dim   int       `json:"dim"`
	Div   float64   `json:"div"`
	Lower int       `json:"lower"`
	Upper int       `json:"upper"`
}

// Flatten 以前序（lower 先於 upper）輸出整棵樹，根節點為索引 0。
func (c *Cell) Flatten(dim int) []Record {
	out := make([]Record, 0, 2*c.CountLeaves()-1)
	var rec func(n *Cell, box Box) int
	rec = func(n *Cell, box Box) int {
		idx := len(out)
		b := box.Clone()
		out = append(out, Record{
			G: n.g, V: n.v,
			Lo: b.Lo, Up: b.Up,
			Dim: n.splitDim, Div: n.div,
			Lower: -1, Upper: -1,
		})
		if n.IsLeaf() {
			return idx
		}
		d := n.splitDim
		lb := box.Clone()
		lb.Up[d] = n.div
		l := rec(n.lower, lb)
		ub := box.Clone()
		ub.Lo[d] = n.div
		u := rec(n.upper, ub)
		out[idx].Lower, out[idx].Upper = l, u
		return idx
	}
	rec(c, UnitBox(dim))
	return out
}

// Unflatten 由 Flatten 的輸出重建樹，並檢查索引只指向後方且每個節點只被引用一次。
func Unflatten(recs []Record) (*Cell, error) {
	if len(recs) == 0 {
		return nil, errs.NewWarn("empty cell records")
	}
	used := make([]bool, len(recs))
	var build func(i int) (*Cell, error)
	build = func(i int) (*Cell, error) {
		if used[i] {
			return nil, errs.Warnf("cell record %d referenced twice", i)
		}
		used[i] = true
		r := recs[i]
		if !validValue(r.G) || !validValue(r.V) || r.V > 1 {
			return nil, errs.Warnf("bad cell record %d: g=%v v=%v", i, r.G, r.V)
		}
		n := &Cell{g: r.G, v: r.V, splitDim: -1}
		if r.Lower < 0 && r.Upper < 0 {
			return n, nil
		}
		if !(r.Div > 0 && r.Div < 1) {
			return nil, errs.Warnf("bad division at record %d: %v", i, r.Div)
		}
		if r.Lower <= i || r.Upper <= i || r.Lower >= len(recs) || r.Upper >= len(recs) || r.Dim < 0 {
			return nil, errs.NewWarn(fmt.Sprintf("bad child index at record %d: lower=%d upper=%d", i, r.Lower, r.Upper))
		}
		var err error
		if n.lower, err = build(r.Lower); err != nil {
			return nil, err
		}
		if n.upper, err = build(r.Upper); err != nil {
			return nil, err
		}
		n.splitDim, n.div = r.Dim, r.Div
		return n, nil
	}
	root, err := build(0)
	if err != nil {
		return nil, err
	}
	for i, u := range used {
		if !u {
			return nil, errs.Warnf("cell record %d unreachable", i)
		}
	}
	return root, nil
}

// validValue 為有限且非負
func validValue(v float64) bool { return v >= 0 && !math.IsInf(v, 0) }
