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
	"math"
	"slices"

	"github.com/zintix-labs/acdc/sdk/cell"
)

// N 回傳嘗試次數（含補償期間的嘗試）
func (g *Generator) N() int64 { return g.attempted }

// NAcc 回傳接受次數（扣除 Reject）
func (g *Generator) NAcc() int64 { return g.accepted }

// Efficiency 回傳 n/N；尚未嘗試時為 0。
func (g *Generator) Efficiency() float64 {
	if g.attempted == 0 {
		return 0
	}
	return float64(g.accepted) / float64(g.attempted)
}

// MaxInt 回傳所有函數的高估積分總和（每棵樹的根體積為 1）
func (g *Generator) MaxInt() float64 {
	if g.table == nil {
		return 0
	}
	return g.table.Total()
}

// Integral 回傳積分估計 MaxInt * Efficiency。補償進行中時為暫定值。
func (g *Generator) Integral() float64 {
	return g.MaxInt() * g.Efficiency()
}

// IntegralErr 回傳 Integral 的二項標準誤差
func (g *Generator) IntegralErr() float64 {
	if g.attempted == 0 {
		return 0
	}
	e := g.Efficiency()
	return g.MaxInt() * math.Sqrt(e*(1-e)/float64(g.attempted))
}

// NFunctions 回傳已註冊的函數數量
func (g *Generator) NFunctions() int { return len(g.fns) }

// Name 回傳第 i 個函數的名稱
func (g *Generator) Name(i int) string { return g.fns[i].name }

// Dim 回傳第 i 個函數的維度
func (g *Generator) Dim(i int) int { return g.fns[i].dim }

// NOf 回傳第 i 個函數的接受次數
func (g *Generator) NOf(i int) int64 { return g.fns[i].nAcc }

// NAttemptedOf 回傳選中第 i 個函數的嘗試次數
func (g *Generator) NAttemptedOf(i int) int64 { return g.fns[i].nAtt }

// CompensationsOf 回傳第 i 個函數的補償次數
func (g *Generator) CompensationsOf(i int) int { return g.fns[i].nComp }

// MaxIntOf 回傳第 i 個函數目前的高估積分
func (g *Generator) MaxIntOf(i int) float64 { return g.fns[i].root.MaxInt() }

// IntegralOf 回傳第 i 個函數的積分估計 MaxInt * n_i / N；所有函數加總等於 Integral。
func (g *Generator) IntegralOf(i int) float64 {
	if g.attempted == 0 {
		return 0
	}
	return g.MaxInt() * float64(g.fns[i].nAcc) / float64(g.attempted)
}

// NBins 回傳所有切割樹的葉節點總數
func (g *Generator) NBins() int {
	n := 0
	for _, fn := range g.fns {
		n += fn.root.CountLeaves()
	}
	return n
}

// Depth 回傳所有切割樹中最深的層數
func (g *Generator) Depth() int {
	d := 0
	for _, fn := range g.fns {
		d = max(d, fn.root.Depth())
	}
	return d
}

// Tree 回傳第 i 個函數的切割樹根節點（唯讀用途）
func (g *Generator) Tree(i int) *cell.Cell { return g.fns[i].root }

// Flatten 回傳第 i 個函數切割樹的攤平紀錄
func (g *Generator) Flatten(i int) []cell.Record { return g.fns[i].root.Flatten(g.fns[i].dim) }

// Last 回傳最近一次嘗試選中的函數索引；尚未嘗試時為 -1。
func (g *Generator) Last() int { return g.lastIdx }

// LastAccepted 回傳最近一次嘗試是否被接受（Reject 後為 false）
func (g *Generator) LastAccepted() bool { return g.lastAccepted }

// LastPoint 回傳最近一次嘗試的點（複本）
func (g *Generator) LastPoint() []float64 { return slices.Clone(g.lastPoint) }

// LastF 回傳最近一次嘗試的函數值
func (g *Generator) LastF() float64 { return g.lastF }

// LastCell 回傳最近一次嘗試所在的葉節點
func (g *Generator) LastCell() *cell.Cell { return g.lastCell }

// LastCellBox 回傳最近一次嘗試所在葉節點的邊界（複本）
func (g *Generator) LastCellBox() cell.Box {
	if g.lastPoint == nil {
		return cell.Box{}
	}
	return g.lastBox.Clone()
}
