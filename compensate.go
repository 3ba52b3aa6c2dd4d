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
	"log/slog"
	"math"

	"github.com/zintix-labs/acdc/sdk/cell"
	"github.com/zintix-labs/acdc/sdk/slicer"
)

// maxExtraRatio 是單層補償的嘗試次數上限（相對於已做的嘗試數）
const maxExtraRatio = 16

// level 是一層進行中的補償。cell 只是指向樹中節點的參照（節點永不合併，參照一直有效）。
type level struct {
	fn     int
	cell   *cell.Cell
	prevG  float64
	box    cell.Box
	expiry int64 // attempted 達到此值時退場
}

// compensate 在 f 超過所在葉節點的 g 時呼叫：
//  1. 以 Locate 找到 x 所在的葉節點與邊界。
//  2. 以 Slicer 細分該葉節點，並重算整棵樹與函數挑選表。
//  3. 推入一層補償：之後的 extra 次嘗試只從新增的超額區域取點，
//     extra = ceil(attempted * ΔI / I_old)，等同於若一開始就用新的高估值時，
//     超額區域應分到的嘗試次數。較舊的補償層也一併延後 extra 次。
//  4. extra 超過 maxExtraRatio*attempted 時改為 reset：丟棄既有計數與所有補償層，
//     只保留本次嘗試。種子點全落在尾端時 I_old 接近 0，補償層會長到無法退場。
func (g *Generator) compensate(i int, x []float64, f float64) {
	fn := g.fns[i]
	box := cell.UnitBox(fn.dim)
	leaf := fn.root.Locate(x, box)
	prevG := leaf.G()
	iOld := g.table.Total()

	res := slicer.New(fn.f.Eval, g.eps, g.margin).Slice(leaf, box, x, f)
	fn.root.RecomputeMaxInt()
	if err := g.rebuildTable(); err != nil {
		// 高估值只增不減，總和不可能變成非正
		g.log.Error("rebuild selection table failed", slog.Any("err", err))
		return
	}
	fn.nComp++
	g.nComp++

	dI := g.table.Total() - iOld
	if !(dI > 0) || !(iOld > 0) {
		return
	}
	extra := math.Ceil(float64(g.attempted) * dI / iOld)
	if extra > maxExtraRatio*float64(g.attempted) {
		g.reset(i, prevG, res.FMax)
		return
	}
	if extra < 1 {
		return
	}
	for k := range g.levels {
		g.levels[k].expiry += int64(extra)
	}
	g.levels = append(g.levels, level{
		fn:     i,
		cell:   leaf,
		prevG:  prevG,
		box:    box,
		expiry: g.attempted + int64(extra),
	})
	g.log.Debug("compensation started",
		slog.String("fn", fn.name),
		slog.Float64("prev_g", prevG),
		slog.Float64("new_g", res.Leaf.G()),
		slog.Float64("f", res.FMax),
		slog.Int64("expiry", g.attempted+int64(extra)),
		slog.Int("depth", len(g.levels)),
		slog.Int("cuts", res.Cuts),
	)
}

// reset 丟棄以錯誤高估值累積的計數，之後的估計只來自修正後的樹。
// 本次嘗試（第 i 個函數）仍計入，接受與否由呼叫端的 record 補上。
func (g *Generator) reset(i int, prevG, f float64) {
	dropped := g.attempted
	for _, fn := range g.fns {
		fn.nAtt, fn.nAcc = 0, 0
	}
	g.fns[i].nAtt = 1
	g.attempted, g.accepted = 1, 0
	g.levels = g.levels[:0]
	g.lastAccepted = false
	g.nReset++
	g.log.Info("counters reset after compensation",
		slog.String("fn", g.fns[i].name),
		slog.Float64("prev_g", prevG),
		slog.Float64("f", f),
		slog.Int64("dropped", dropped),
	)
}

// retire 移除已到期的補償層。只看最上層：較舊層的到期值一定不小於上層。
func (g *Generator) retire() {
	for n := len(g.levels); n > 0 && g.levels[n-1].expiry <= g.attempted; n = len(g.levels) {
		lv := g.levels[n-1]
		g.levels = g.levels[:n-1]
		g.log.Debug("compensation retired",
			slog.String("fn", g.fns[lv.fn].name),
			slog.Int64("attempted", g.attempted),
			slog.Int("depth", len(g.levels)),
		)
	}
}

// Compensating 為 true 時，Integral / Efficiency 的值仍在修正中，只能視為暫定值。
func (g *Generator) Compensating() bool { return len(g.levels) > 0 }

// Levels 回傳目前補償堆疊的深度
func (g *Generator) Levels() int { return len(g.levels) }

// Compensations 回傳累計的補償次數
func (g *Generator) Compensations() int { return g.nComp }

// Resets 回傳因補償代價過高而重置計數的次數
func (g *Generator) Resets() int { return g.nReset }
