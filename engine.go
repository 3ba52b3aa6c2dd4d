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
	"crypto/rand"
	"fmt"
	"io"
	"log/slog"
	"math"
	"math/big"
	"sync"

	"github.com/zintix-labs/acdc/dto"
	"github.com/zintix-labs/acdc/errs"
	"github.com/zintix-labs/acdc/sdk/core"
	"github.com/zintix-labs/acdc/sdk/integrand"
	"github.com/zintix-labs/acdc/spec"
)

// Engine 封裝一個「可對外提供 Sample」的取樣器。
//
// 你可以把 Engine 視為 Generator 的外殼（shell）：
//   - 對外：提供 Sample / Tree 入口（HTTP 與模擬器只操作 Engine）。
//   - 對內：持有 RNG（Core）與依 RunSetting 組裝好的 Generator。
//
// 並發語意：Engine 以互斥鎖保護 Generator 與 Core，同一台 Engine 的 Sample 會被序列化。
// 需要併發時由更高層建立多台 Engine（EnginePool / Simulator）。
type Engine struct {
	runName  string
	runID    spec.RunID
	rs       *spec.RunSetting
	core     *core.Core
	gen      *Generator
	exact    *float64 // 所有函數都有解析積分時才有值
	mu       sync.Mutex
	initseed int64 // 出生 seed（便於追溯；完整重現請用 Snapshot/Restore）
}

// newEngine 以 crypto/rand 產生的 seed 建立 Engine
func newEngine(rs *spec.RunSetting, reg *integrand.Registry, cf core.PRNGFactory, log *slog.Logger) (*Engine, error) {
	seed, err := rand.Int(rand.Reader, big.NewInt(math.MaxInt64))
	if err != nil {
		return nil, errs.Wrap(err, "new crypto seed error in go std lib")
	}
	return newEngineWithSeed(rs, reg, cf, seed.Int64(), log)
}

// newEngineWithSeed 以指定 seed 建立 Engine。
//
// 建立流程：
//  1. core.New(cf.New(seed)) 建出 RNG 核心
//  2. 依 RunSetting.Sampler 建出 Generator
//  3. 依序以 Registry 建出每個函數並註冊；退化函數（找不到正值點）會被略過並記錄
//
// 同一份 RunSetting + 同一個 seed + 同一個 PRNG 實作，會得到完全相同的取樣序列。
func newEngineWithSeed(rs *spec.RunSetting, reg *integrand.Registry, cf core.PRNGFactory, seed int64, log *slog.Logger) (*Engine, error) {
	if log == nil {
		log = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	log = log.With(slog.String("run", rs.RunName), slog.Uint64("rid", uint64(rs.RunID)))
	e := &Engine{
		runName:  rs.RunName,
		runID:    rs.RunID,
		rs:       rs,
		core:     core.New(cf.New(seed)),
		initseed: seed,
	}
	gen, err := NewGenerator(e.core, WithSetting(rs.Sampler), WithLogger(log))
	if err != nil {
		return nil, err
	}
	e.gen = gen

	exact, allExact := 0.0, true
	for i := range rs.Functions {
		fs := &rs.Functions[i]
		f, err := reg.Build(fs)
		if err != nil {
			return nil, err
		}
		ok, err := gen.AddNamedFunction(fs.Name, fs.Dim, f)
		if err != nil {
			return nil, err
		}
		if !ok {
			log.Warn("function skipped", slog.String("fn", fs.Name))
			continue
		}
		if ex, isExact := f.(integrand.Exact); isExact {
			exact += ex.Integral()
		} else {
			allExact = false
		}
	}
	if gen.NFunctions() == 0 {
		return nil, errs.WrapWithExtra(errs.ErrNoFunction, "all functions are degenerate", rs.RunName)
	}
	if allExact {
		e.exact = &exact
	}
	return e, nil
}

func (e *Engine) RunName() string { return e.runName }

func (e *Engine) RunID() spec.RunID { return e.runID }

func (e *Engine) InitSeed() int64 { return e.initseed }

// Exact 回傳已知的真實積分（所有函數都提供解析解時）
func (e *Engine) Exact() (float64, bool) {
	if e.exact == nil {
		return 0, false
	}
	return *e.exact, true
}

// Names 回傳實際註冊的函數名稱（退化函數不在其中）
func (e *Engine) Names() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	names := make([]string, e.gen.NFunctions())
	for i := range names {
		names[i] = e.gen.Name(i)
	}
	return names
}

// Sample 為主要公開入口：驗證請求、（可選）還原起始狀態、取得 count 個被接受的點。
//
// 回應一律帶回起始與結束快照；把 after_b64u 帶回下一次請求即可接續同一條取樣流水。
// Generator 用盡 maxTry 時回傳 Fatal 錯誤，上層會把這台 Engine 視為不可信並補機。
func (e *Engine) Sample(req *dto.SampleRequest) (dto.SampleResult, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := e.valid(req); err != nil {
		return dto.SampleResult{}, err
	}
	start, err := req.StartSnap()
	if err != nil {
		return dto.SampleResult{}, err
	}
	if start != nil {
		if err := e.gen.Restore(start); err != nil {
			return dto.SampleResult{}, errs.NewWarn("restore generator err " + err.Error())
		}
	} else {
		if start, err = e.gen.Snapshot(); err != nil {
			return dto.SampleResult{}, errs.NewFatal("before snapshot error " + err.Error())
		}
	}

	pts := make([]dto.Point, 0, req.Count)
	for range req.Count {
		idx, err := e.gen.Generate()
		if err != nil {
			return dto.SampleResult{}, err
		}
		if req.WithCell {
			box := e.gen.lastBox
			pts = append(pts, dto.NewPoint(idx, e.gen.Name(idx), e.gen.lastPoint, e.gen.lastF, &box))
		} else {
			pts = append(pts, dto.NewPoint(idx, e.gen.Name(idx), e.gen.lastPoint, e.gen.lastF, nil))
		}
	}

	after, err := e.gen.Snapshot()
	if err != nil {
		return dto.SampleResult{}, errs.NewFatal("after snapshot error " + err.Error())
	}
	return dto.SampleResult{
		RunName:      e.runName,
		RunID:        e.runID,
		Points:       pts,
		Attempted:    e.gen.N(),
		Accepted:     e.gen.NAcc(),
		Integral:     e.gen.Integral(),
		IntegralErr:  e.gen.IntegralErr(),
		Compensating: e.gen.Compensating(),
		State:        dto.NewSampleState(start, after),
	}, nil
}

// Tree 先做 warmup 次嘗試，再回傳第 fn 個函數的切割樹
func (e *Engine) Tree(fn int, warmup int) (dto.TreeResult, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if fn < 0 || fn >= e.gen.NFunctions() {
		return dto.TreeResult{}, errs.NewWarn(fmt.Sprintf("fn %d out of range [0,%d)", fn, e.gen.NFunctions()))
	}
	for range warmup {
		e.gen.Try()
	}
	root := e.gen.Tree(fn)
	return dto.TreeResult{
		RunID:    e.runID,
		Function: fn,
		Name:     e.gen.Name(fn),
		Dim:      e.gen.Dim(fn),
		Warmup:   warmup,
		Bins:     root.CountLeaves(),
		Depth:    root.Depth(),
		MaxInt:   root.MaxInt(),
		Cells:    e.gen.Flatten(fn),
	}, nil
}

// Warmup 執行 n 次嘗試以訓練切割樹，不產生事件
func (e *Engine) Warmup(n int) {
	e.mu.Lock()
	defer e.mu.Unlock()
	for range n {
		e.gen.Try()
	}
}

// Snapshot 保存取樣器完整狀態（含亂數）
func (e *Engine) Snapshot() ([]byte, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.gen.Snapshot()
}

// Restore 還原 Snapshot 的結果；失敗時 Engine 狀態不變。
func (e *Engine) Restore(data []byte) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.gen.Restore(data)
}

func (e *Engine) valid(req *dto.SampleRequest) error {
	if req == nil {
		return errs.NewWarn("nil sample request")
	}
	if req.RunID != e.runID {
		return errs.NewWarn(fmt.Sprintf("run id mismatch: want %d, got %d", e.runID, req.RunID))
	}
	if req.RunName != "" && req.RunName != e.runName {
		return errs.NewWarn(fmt.Sprintf("run name mismatch: want %s, got %s", e.runName, req.RunName))
	}
	return req.Valid()
}
