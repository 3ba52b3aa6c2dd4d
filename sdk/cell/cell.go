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

// Package cell 實作 ACDC 的二元空間切割樹。
//
// 每個節點代表 [0,1]^D 內的一個軸對齊格子：
//   - 葉節點：g 為格子內函數最大值的高估，v 為體積（根節點 v=1）。
//   - 內部節點：沿 splitDim 在 div 處切成 lower/upper，g 為子節點密度的體積加權平均。
//
// 節點只會由葉轉為內部（Split），永不合併。邊界不存在節點中，
// 下降時由呼叫端帶著 Box 一路縮小。
package cell

import (
	"math"

	"github.com/zintix-labs/acdc/errs"
)

// tMax 是小於 1 的最大 float64
var tMax = math.Nextafter(1, 0)

// Random 是下降時需要的亂數能力，*core.Core 即滿足。
type Random interface {
	Uniform() float64
	UniformIn(lo, hi float64) float64
}

type Cell struct {
	g        float64
	v        float64
	splitDim int
	div      float64
	lower    *Cell
	upper    *Cell
}

// NewRoot 建立體積為 1 的葉節點
func NewRoot(g float64) *Cell {
	return &Cell{g: g, v: 1, splitDim: -1}
}

func (c *Cell) G() float64 { return c.g }
func (c *Cell) V() float64 { return c.v }

// SetG 設定葉節點的高估值，內部節點的 g 只能由 RecomputeMaxInt 推導。
func (c *Cell) SetG(g float64) {
	if c.IsLeaf() {
		c.g = g
	}
}

func (c *Cell) IsLeaf() bool      { return c.lower == nil }
func (c *Cell) Lower() *Cell      { return c.lower }
func (c *Cell) Upper() *Cell      { return c.upper }
func (c *Cell) SplitDim() int     { return c.splitDim }
func (c *Cell) Division() float64 { return c.div }

// MaxInt 回傳 g*v（內部節點需先 RecomputeMaxInt 才可信）
func (c *Cell) MaxInt() float64 { return c.g * c.v }

// Split 把葉節點沿 dim 在 div 處切開；lo/up 為此格子在 dim 上的邊界。
// 兩個子格子各自的寬度都必須 >= eps，否則回傳 ErrTooNarrow 且不做任何修改。
// 子格子繼承父節點的 g 作為初始高估。
func (c *Cell) Split(lo, div, up float64, dim int, eps float64) error {
	if !c.IsLeaf() {
		return errs.NewWarn("split on internal cell")
	}
	if dim < 0 {
		return errs.Wrap(errs.ErrBadDim, "negative split dim")
	}
	if !(div-lo >= eps && up-div >= eps) || !(up > lo) {
		return errs.ErrTooNarrow
	}
	frac := (div - lo) / (up - lo)
	lv := c.v * frac
	c.lower = &Cell{g: c.g, v: lv, splitDim: -1}
	c.upper = &Cell{g: c.g, v: c.v - lv, splitDim: -1}
	c.splitDim = dim
	c.div = div
	return nil
}

// RecomputeMaxInt 由下而上重算 g，回傳此子樹的高估積分。
func (c *Cell) RecomputeMaxInt() float64 {
	if c.IsLeaf() {
		return c.g * c.v
	}
	sum := c.lower.RecomputeMaxInt() + c.upper.RecomputeMaxInt()
	if c.v > 0 {
		c.g = sum / c.v
	}
	return sum
}

// ExcessInt 回傳子樹中超出 base 的高估積分 sum(v*(g-base)^+)。
func (c *Cell) ExcessInt(base float64) float64 {
	if c.IsLeaf() {
		return c.v * math.Max(c.g-base, 0)
	}
	return c.lower.ExcessInt(base) + c.upper.ExcessInt(base)
}

// Generate 依 g*v 比例往下挑一個葉節點。
//
// box 進入時為 c 的邊界，返回時被就地縮小為葉節點的邊界；x 寫入葉節點內的一個點。
// cheap=true 時每層各抽一個新亂數，最後再於葉節點內均勻取點；
// cheap=false 時先在 box 內取一個點，每層依選到的子格子把該座標重新縮放，
// 這個點最後就是葉節點內的均勻點，總共只用 D 個亂數。
func (c *Cell) Generate(r Random, box Box, x []float64, cheap bool) *Cell {
	return c.descend(r, box, x, cheap, (*Cell).MaxInt)
}

// GenerateExcess 與 Generate 相同，但權重改為超出 base 的部分（補償期間使用）。
// 整棵子樹的超額為 0 時退回均勻挑選。
func (c *Cell) GenerateExcess(r Random, box Box, x []float64, cheap bool, base float64) *Cell {
	return c.descend(r, box, x, cheap, func(n *Cell) float64 { return n.ExcessInt(base) })
}

func (c *Cell) descend(r Random, box Box, x []float64, cheap bool, weight func(*Cell) float64) *Cell {
	if !cheap {
		for d := range x {
			x[d] = r.UniformIn(box.Lo[d], box.Up[d])
		}
	}
	cur := c
	for !cur.IsLeaf() {
		d := cur.splitDim
		lo, up := box.Lo[d], box.Up[d]
		p := lowerProb(weight(cur.lower), weight(cur.upper))
		if cheap {
			if r.Uniform() < p {
				box.Up[d] = cur.div
				cur = cur.lower
			} else {
				box.Lo[d] = cur.div
				cur = cur.upper
			}
			continue
		}
		// t 夾在 [0,1) 內；p 為 0 或 1 時只走權重為正的一側
		t := min(max((x[d]-lo)/(up-lo), 0), tMax)
		if p >= 1 || (p > 0 && t < p) {
			x[d] = lo + (t/p)*(cur.div-lo)
			box.Up[d] = cur.div
			cur = cur.lower
		} else {
			x[d] = cur.div + ((t-p)/(1-p))*(up-cur.div)
			box.Lo[d] = cur.div
			cur = cur.upper
		}
	}
	if cheap {
		for d := range x {
			x[d] = r.UniformIn(box.Lo[d], box.Up[d])
		}
	} else {
		box.Clamp(x)
	}
	return cur
}

// lowerProb 回傳選 lower 的機率；權重相等或總和非正時為 1/2。
func lowerProb(wl, wu float64) float64 {
	s := wl + wu
	if !(s > 0) || math.IsInf(s, 0) || wl == wu {
		return 0.5
	}
	return wl / s
}

// Locate 找出包含 x 的葉節點，box 就地縮小為該葉節點邊界。
// x 剛好落在分割點上時歸入 upper。
func (c *Cell) Locate(x []float64, box Box) *Cell {
	cur := c
	for !cur.IsLeaf() {
		d := cur.splitDim
		if x[d] < cur.div {
			box.Up[d] = cur.div
			cur = cur.lower
		} else {
			box.Lo[d] = cur.div
			cur = cur.upper
		}
	}
	return cur
}

// CountLeaves 回傳葉節點數
func (c *Cell) CountLeaves() int {
	if c.IsLeaf() {
		return 1
	}
	return c.lower.CountLeaves() + c.upper.CountLeaves()
}

// Depth 回傳最深的切割層數，單一葉節點為 0。
func (c *Cell) Depth() int {
	if c.IsLeaf() {
		return 0
	}
	return 1 + max(c.lower.Depth(), c.upper.Depth())
}

// Walk 以前序（lower 先）走訪，fn 回傳 false 時停止往下。
func (c *Cell) Walk(box Box, fn func(n *Cell, box Box) bool) {
	if !fn(c, box) || c.IsLeaf() {
		return
	}
	d := c.splitDim
	lb := box.Clone()
	lb.Up[d] = c.div
	c.lower.Walk(lb, fn)
	ub := box.Clone()
	ub.Lo[d] = c.div
	c.upper.Walk(ub, fn)
}
