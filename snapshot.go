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
	"bytes"
	"encoding/json"
	"fmt"
	"io"

	"github.com/klauspost/compress/zstd"
	"github.com/zintix-labs/acdc/errs"
	"github.com/zintix-labs/acdc/sdk/cell"
	"github.com/zintix-labs/acdc/sdk/sampler"
	"github.com/zintix-labs/acdc/spec"
)

const snapshotVersion = 1

// restorable 由可保存狀態的亂數源實作（*core.Core 即是）
type restorable interface {
	Snapshot() ([]byte, error)
	Restore([]byte) error
}

type genState struct {
	Version       int                 `json:"version"`
	Setting       spec.SamplerSetting `json:"setting"`
	Attempted     int64               `json:"attempted"`
	Accepted      int64               `json:"accepted"`
	Compensations int                 `json:"compensations"`
	Resets        int                 `json:"resets,omitempty"`
	Functions     []fnState           `json:"functions"`
	Levels        []levelState        `json:"levels,omitempty"`
	RNG           []byte              `json:"rng,omitempty"`
}

type fnState struct {
	Name  string        `json:"name"`
	Dim   int           `json:"dim"`
	NAtt  int64         `json:"n_att"`
	NAcc  int64         `json:"n_acc"`
	NComp int           `json:"n_comp"`
	Cells []cell.Record `json:"cells"`
}

type levelState struct {
	Fn     int      `json:"fn"`
	Cell   int      `json:"cell"` // 在 Cells 中的索引
	PrevG  float64  `json:"prev_g"`
	Box    cell.Box `json:"box"`
	Expiry int64    `json:"expiry"`
}

// Snapshot 把切割樹、計數、補償堆疊（以及亂數源狀態，若可保存）序列化成 JSON 並以 zstd 壓縮。
// 函數本身不會被保存：Restore 時需要以同樣的順序與維度註冊好函數。
func (g *Generator) Snapshot() ([]byte, error) {
	st := genState{
		Version:       snapshotVersion,
		Setting:       g.Setting(),
		Attempted:     g.attempted,
		Accepted:      g.accepted,
		Compensations: g.nComp,
		Resets:        g.nReset,
		Functions:     make([]fnState, len(g.fns)),
	}
	for i, fn := range g.fns {
		st.Functions[i] = fnState{
			Name:  fn.name,
			Dim:   fn.dim,
			NAtt:  fn.nAtt,
			NAcc:  fn.nAcc,
			NComp: fn.nComp,
			Cells: fn.root.Flatten(fn.dim),
		}
	}
	for _, lv := range g.levels {
		idx := indexOf(g.fns[lv.fn].root, lv.cell, g.fns[lv.fn].dim)
		if idx < 0 {
			return nil, errs.NewFatal("compensation cell not found in tree")
		}
		st.Levels = append(st.Levels, levelState{Fn: lv.fn, Cell: idx, PrevG: lv.prevG, Box: lv.box.Clone(), Expiry: lv.expiry})
	}
	if r, ok := g.rnd.(restorable); ok {
		raw, err := r.Snapshot()
		if err != nil {
			return nil, errs.Wrap(err, "snapshot random source failed")
		}
		st.RNG = raw
	}

	raw, err := json.Marshal(st)
	if err != nil {
		return nil, errs.Wrap(err, "marshal generator state failed")
	}
	var buf bytes.Buffer
	zw, err := zstd.NewWriter(&buf)
	if err != nil {
		return nil, errs.Wrap(err, "create zstd writer failed")
	}
	if _, err := zw.Write(raw); err != nil {
		zw.Close()
		return nil, errs.Wrap(err, "zstd compress failed")
	}
	if err := zw.Close(); err != nil {
		return nil, errs.Wrap(err, "zstd compress failed")
	}
	return buf.Bytes(), nil
}

// Restore 從 Snapshot 的輸出還原。已註冊函數的數量與維度必須與快照一致；
// 失敗時 Generator 保持原狀。
func (g *Generator) Restore(data []byte) error {
	zr, err := zstd.NewReader(bytes.NewReader(data))
	if err != nil {
		return errs.Wrap(err, "create zstd reader failed")
	}
	defer zr.Close()
	raw, err := io.ReadAll(zr)
	if err != nil {
		return errs.NewWarn("read decompressed snapshot failed: " + err.Error())
	}
	var st genState
	if err := json.Unmarshal(raw, &st); err != nil {
		return errs.NewWarn("unmarshal generator state failed: " + err.Error())
	}
	if st.Version != snapshotVersion {
		return errs.Warnf("unsupported snapshot version %d", st.Version)
	}
	if err := st.Setting.Valid(); err != nil {
		return errs.Wrap(err, "snapshot setting")
	}
	if st.Attempted < st.Accepted || st.Accepted < 0 {
		return errs.Warnf("snapshot counters inconsistent: attempted=%d accepted=%d", st.Attempted, st.Accepted)
	}
	if len(st.Functions) != len(g.fns) {
		return errs.Warnf("snapshot has %d functions, generator has %d", len(st.Functions), len(g.fns))
	}

	roots := make([]*cell.Cell, len(st.Functions))
	for i, fs := range st.Functions {
		if fs.Dim != g.fns[i].dim {
			return errs.Wrap(errs.ErrBadDim, fmt.Sprintf("function %d: snapshot dim %d, registered dim %d", i, fs.Dim, g.fns[i].dim))
		}
		root, err := cell.Unflatten(fs.Cells)
		if err != nil {
			return errs.Wrap(err, fmt.Sprintf("function %d tree", i))
		}
		roots[i] = root
	}
	levels := make([]level, 0, len(st.Levels))
	for _, ls := range st.Levels {
		if ls.Fn < 0 || ls.Fn >= len(roots) {
			return errs.Warnf("level function index %d out of range", ls.Fn)
		}
		node := nodeAt(roots[ls.Fn], ls.Cell, g.fns[ls.Fn].dim)
		if node == nil {
			return errs.Warnf("level cell index %d out of range", ls.Cell)
		}
		if err := ls.Box.Validate(); err != nil || ls.Box.Dim() != g.fns[ls.Fn].dim {
			return errs.Wrap(errs.ErrBadDim, "level box")
		}
		levels = append(levels, level{fn: ls.Fn, cell: node, prevG: ls.PrevG, box: ls.Box, expiry: ls.Expiry})
	}
	w := make([]float64, len(roots))
	for i, root := range roots {
		w[i] = root.MaxInt()
	}
	table, err := sampler.BuildCumTable(w)
	if err != nil {
		return errs.Wrap(err, "snapshot selection table")
	}
	// 亂數源放在最後一個可能失敗的步驟，之後只剩賦值
	if len(st.RNG) > 0 {
		if r, ok := g.rnd.(restorable); ok {
			if err := r.Restore(st.RNG); err != nil {
				return errs.Wrap(err, "restore random source failed")
			}
		}
	}

	for i, fs := range st.Functions {
		fn := g.fns[i]
		fn.root, fn.nAtt, fn.nAcc, fn.nComp = roots[i], fs.NAtt, fs.NAcc, fs.NComp
	}
	g.table = table
	g.levels = levels
	g.attempted, g.accepted, g.nComp, g.nReset = st.Attempted, st.Accepted, st.Compensations, st.Resets
	g.eps, g.margin, g.nTry, g.maxTry, g.cheapRandom = st.Setting.Eps, st.Setting.Margin, st.Setting.NTry, st.Setting.MaxTry, st.Setting.CheapRandom
	g.lastIdx, g.lastCell, g.lastPoint, g.lastF, g.lastAccepted = -1, nil, nil, 0, false
	return nil
}

// indexOf 回傳 target 在前序走訪（與 Flatten 相同順序）中的索引
func indexOf(root, target *cell.Cell, dim int) int {
	idx, found := 0, -1
	root.Walk(cell.UnitBox(dim), func(n *cell.Cell, _ cell.Box) bool {
		if found >= 0 {
			return false
		}
		if n == target {
			found = idx
			return false
		}
		idx++
		return true
	})
	return found
}

func nodeAt(root *cell.Cell, i, dim int) *cell.Cell {
	idx := 0
	var out *cell.Cell
	root.Walk(cell.UnitBox(dim), func(n *cell.Cell, _ cell.Box) bool {
		if out != nil {
			return false
		}
		if idx == i {
			out = n
			return false
		}
		idx++
		return true
	})
	return out
}
