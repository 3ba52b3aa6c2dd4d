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

// Package slicer 在補償時細分違規的葉節點。
//
// 給定一個葉節點、其邊界、違規點 xsel 與其函數值 fsel，
// 沿每一維由 xsel 往兩側二分搜尋函數降回舊高估值 gOld 以下的位置，
// 依可切掉的體積比例由大到小逐刀切下，留下包住 xsel 的最小格子，
// 其 g 設為 fsel*margin。被切下的剩餘格子保留 gOld（或探測到的更高值），
// 若其靠近 xsel 的角落仍超出 gOld（checkdiag），則對該剩餘格子遞迴細分。
//
// 寬度低於 eps 的方向不再切割，此時接受現有估計（刻意的近似）。
package slicer

import (
	"cmp"
	"math"
	"slices"

	"github.com/zintix-labs/acdc/sdk/cell"
)

// Func 為被取樣的函數，需回傳非負值。
type Func func(x []float64) float64

const (
	defaultMaxBisect  = 8
	defaultMaxRestart = 8
	defaultMaxNested  = 4
)

// Result 紀錄一次細分的結果
type Result struct {
	Leaf     *cell.Cell // 最終包住違規點的葉節點
	Box      cell.Box   // Leaf 的邊界
	Point    []float64  // 最終的違規點（shiftmaxmin 可能移動它）
	FMax     float64    // 最終違規點的函數值
	Cuts     int
	Evals    int
	Restarts int // 所有層級（含巢狀）的重新搜尋總數
}

// Slicer 是一次性的細分程序，不保留跨呼叫的狀態。
type Slicer struct {
	f          Func
	eps        float64
	margin     float64
	maxBisect  int
	maxRestart int
	maxNested  int

	res *Result
	pt  []float64 // 試算點的暫存
}

type Option func(*Slicer)

// WithMaxBisect 設定每一側二分搜尋的最多次數
func WithMaxBisect(n int) Option {
	return func(s *Slicer) {
		if n > 0 {
			s.maxBisect = n
		}
	}
}

// WithMaxRestart 設定找到更高點時重新搜尋的最多次數
func WithMaxRestart(n int) Option {
	return func(s *Slicer) {
		if n >= 0 {
			s.maxRestart = n
		}
	}
}

func New(f Func, eps, margin float64, opts ...Option) *Slicer {
	s := &Slicer{
		f:          f,
		eps:        eps,
		margin:     margin,
		maxBisect:  defaultMaxBisect,
		maxRestart: defaultMaxRestart,
		maxNested:  defaultMaxNested,
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Slice 細分 leaf（邊界為 box）使 xsel 附近的高估值不低於 fsel*margin。
// 呼叫端之後需對整棵樹 RecomputeMaxInt。box 與 xsel 不會被修改。
func (s *Slicer) Slice(leaf *cell.Cell, box cell.Box, xsel []float64, fsel float64) *Result {
	s.res = &Result{Point: slices.Clone(xsel), FMax: fsel}
	s.pt = make([]float64, len(xsel))
	leaf, box = s.slice(leaf, box.Clone(), s.res.Point, fsel, 0)
	s.res.Leaf, s.res.Box = leaf, box
	res := s.res
	s.res, s.pt = nil, nil
	return res
}

// cut 是某一維某一側的候選切割
type cut struct {
	dim   int
	upper bool    // true 表示切掉 [pos, up]
	pos   float64 // 切割位置
	frac  float64 // 切掉的體積比例
	fOut  float64 // pos 處量到的函數值
}

// slice 細分 c，回傳最後包住 xsel 的葉節點與其邊界。xsel 可能被就地移動。
func (s *Slicer) slice(c *cell.Cell, box cell.Box, xsel []float64, fsel float64, nested int) (*cell.Cell, cell.Box) {
	gOld := c.G()
	restarts := 0 // 每次 slice 各自計算，巢狀細分不佔用外層額度
	for {
		cuts, higher, fHigh := s.search(box, xsel, fsel, gOld)
		if higher == nil {
			c, box = s.apply(c, box, cuts, xsel, gOld, nested)
			higher, fHigh = s.shiftMaxMin(box, xsel, fsel)
		}
		if higher == nil {
			break
		}
		copy(xsel, higher)
		fsel = fHigh
		if nested == 0 {
			s.res.FMax = fsel
		}
		if restarts >= s.maxRestart {
			break
		}
		restarts++
		s.res.Restarts++
		gOld = c.G()
	}
	c.SetG(max(c.G(), fsel*s.margin))
	return c, box
}

// search 在每一維的兩側找出候選切割。途中若量到比 fsel 更高的點，立刻回傳該點。
func (s *Slicer) search(box cell.Box, xsel []float64, fsel, gOld float64) ([]cut, []float64, float64) {
	var cuts []cut
	for d := range xsel {
		w := box.Width(d)
		if w < 2*s.eps {
			continue
		}
		for _, upper := range []bool{false, true} {
			edge := box.Lo[d]
			if upper {
				edge = box.Up[d]
			}
			pos, fOut, hit, fHit := s.bisect(xsel, d, edge, fsel, gOld)
			if hit {
				p := slices.Clone(xsel)
				p[d] = pos
				return nil, p, fHit
			}
			var frac float64
			if upper {
				frac = (box.Up[d] - pos) / w
			} else {
				frac = (pos - box.Lo[d]) / w
			}
			if frac <= 0 {
				continue
			}
			cuts = append(cuts, cut{dim: d, upper: upper, pos: pos, frac: frac, fOut: fOut})
		}
	}
	// 切掉越多體積的先切
	slices.SortStableFunc(cuts, func(a, b cut) int { return cmp.Compare(b.frac, a.frac) })
	return cuts, nil, 0
}

// bisect 沿第 d 維由 xsel 往 edge 搜尋函數降到 gOld 以下的位置。
// 回傳最靠近 xsel 且 f<=gOld 的位置；edge 本身都超過 gOld 時回傳 edge（不切）。
// hit 為 true 表示量到比 fsel 更高的值，pos 為該點座標。
func (s *Slicer) bisect(xsel []float64, d int, edge, fsel, gOld float64) (pos, fOut float64, hit bool, fHit float64) {
	in := xsel[d]
	out := edge
	fe := s.eval(xsel, d, out)
	if fe > fsel {
		return out, 0, true, fe
	}
	if fe > gOld {
		return edge, fe, false, 0
	}
	fOut = fe
	for i := 0; i < s.maxBisect; i++ {
		if math.Abs(in-out) < s.eps {
			break
		}
		mid := 0.5 * (in + out)
		fm := s.eval(xsel, d, mid)
		switch {
		case fm > fsel:
			return mid, 0, true, fm
		case fm > gOld:
			in = mid
		default:
			out = mid
			fOut = fm
		}
	}
	return out, fOut, false, 0
}

func (s *Slicer) eval(xsel []float64, d int, v float64) float64 {
	copy(s.pt, xsel)
	s.pt[d] = v
	s.res.Evals++
	return s.f(s.pt)
}

// apply 依序執行候選切割，回傳包住 xsel 的葉節點與邊界。
func (s *Slicer) apply(c *cell.Cell, box cell.Box, cuts []cut, xsel []float64, gOld float64, nested int) (*cell.Cell, cell.Box) {
	for _, ct := range cuts {
		d := ct.dim
		lo, up := box.Lo[d], box.Up[d]
		if ct.pos <= lo || ct.pos >= up {
			continue
		}
		if err := c.Split(lo, ct.pos, up, d, s.eps); err != nil {
			continue
		}
		s.res.Cuts++
		rest, keep := c.Lower(), c.Upper()
		restBox := box.Clone()
		if ct.upper {
			rest, keep = c.Upper(), c.Lower()
			restBox.Lo[d] = ct.pos
			box.Up[d] = ct.pos
		} else {
			restBox.Up[d] = ct.pos
			box.Lo[d] = ct.pos
		}
		rest.SetG(max(gOld, ct.fOut*s.margin))
		s.checkDiag(rest, restBox, xsel, nested)
		c = keep
	}
	return c, box
}

// checkDiag 量測剩餘格子中最靠近 xsel 的角落；若超出該格子的 g，
// 表示高值區沿對角方向延伸進剩餘格子，對其遞迴細分。
func (s *Slicer) checkDiag(rest *cell.Cell, restBox cell.Box, xsel []float64, nested int) {
	if nested >= s.maxNested {
		return
	}
	corner := make([]float64, len(xsel))
	restBox.NearestCorner(xsel, corner)
	s.res.Evals++
	fc := s.f(corner)
	if fc <= rest.G() {
		return
	}
	s.slice(rest, restBox, corner, fc, nested+1)
}

// shiftMaxMin 在新格子內、xsel 與每個邊界的中點探測，回傳比 fsel 更高的點。
func (s *Slicer) shiftMaxMin(box cell.Box, xsel []float64, fsel float64) ([]float64, float64) {
	var best []float64
	fBest := fsel
	for d := range xsel {
		if box.Width(d) < 2*s.eps {
			continue
		}
		for _, edge := range [2]float64{box.Lo[d], box.Up[d]} {
			v := 0.5 * (xsel[d] + edge)
			if f := s.eval(xsel, d, v); f > fBest {
				fBest = f
				best = slices.Clone(s.pt)
			}
		}
	}
	return best, fBest
}
