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

// Package acdc 實作 ACDC（Auto Compensating Divide-and-Conquer）自適應重要性取樣器，
// 並提供把取樣器組裝成可服務、可模擬的 runtime 的入口。
//
// 核心型別：
//   - Generator：取樣器本體。依各函數的高估積分挑選函數，沿二元切割樹取點做接受/拒絕；
//     發現高估值錯誤時細分格子並進入補償狀態，使接受點的分佈維持正確。
//   - Engine / EnginePool / Runtime：對外服務用的外殼、池與 data-plane。
//   - Simulator / Tracer：大量模擬與單線追蹤。
//
// Lab 把三個地基組裝在一起：
//  1. Catalog：run 目錄，定義有哪些 run、各自對應的設定檔。
//  2. integrand.Registry：依 LogicKey 建出被取樣函數的 builders。
//  3. PRNGFactory：亂數核心工廠，保證可重現。
package acdc

import (
	"crypto/rand"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"math"
	"math/big"
	"path/filepath"
	"strings"

	"github.com/zintix-labs/acdc/catalog"
	"github.com/zintix-labs/acdc/errs"
	"github.com/zintix-labs/acdc/sdk/core"
	"github.com/zintix-labs/acdc/sdk/integrand"
	"github.com/zintix-labs/acdc/spec"
)

// Configs 把一或多個設定檔來源打包成 New() 的參數（go:embed、os.DirFS 皆可）
func Configs(cfgs ...fs.FS) []fs.FS {
	return cfgs
}

// Integrands 把一或多個函數註冊表打包成 New() 的參數；重複的 LogicKey 會在 New() 失敗。
func Integrands(regs ...*integrand.Registry) []*integrand.Registry {
	return regs
}

// Lab 是組裝器（assembler）與運行入口。
//
// 使用流程分成兩階段：
//   - 註冊階段：建立 catalog、合併 registries、RegisterAll 掃描設定檔。
//   - 執行階段：Freeze 之後依 run ID 建立 Engine / Simulator / Runtime。
//
//	lab, _ := acdc.NewAuto(core.Default(), acdc.Configs(cfgFS), acdc.Integrands(reg))
//	sim, _ := lab.NewSimulator(1)
//	rep, used, _ := sim.SimMP(1_000_000, 8, true)
type Lab struct {
	cat *catalog.Catalog
	reg *integrand.Registry
	cf  core.PRNGFactory
	log *slog.Logger
	sum []catalog.Summary
}

// LabOption 設定 Lab
type LabOption func(*Lab)

// WithLabLogger 設定 Lab 建出的所有 Engine 使用的 logger
func WithLabLogger(log *slog.Logger) LabOption { return func(l *Lab) { l.log = log } }

// New 建立 Lab（註冊階段）。cf 不能為 nil；cfgs 與 regs 至少各一個。
func New(cf core.PRNGFactory, cfgs []fs.FS, regs []*integrand.Registry, opts ...LabOption) (*Lab, error) {
	if cf == nil {
		return nil, errs.NewFatal("prng factory required")
	}
	if len(cfgs) == 0 {
		return nil, errs.NewFatal("configs required")
	}
	if len(regs) == 0 {
		return nil, errs.NewFatal("integrand registry required")
	}
	cat, err := catalog.New(cfgs...)
	if err != nil {
		return nil, err
	}
	reg, err := integrand.MergeRegistry(regs...)
	if err != nil {
		return nil, err
	}
	lab := &Lab{cat: cat, reg: reg, cf: cf}
	for _, o := range opts {
		o(lab)
	}
	if lab.log == nil {
		lab.log = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return lab, nil
}

// NewAuto 建立 Lab 並直接進入執行階段（RegisterAll + Freeze）
func NewAuto(cf core.PRNGFactory, cfgs []fs.FS, regs []*integrand.Registry, opts ...LabOption) (*Lab, error) {
	lab, err := New(cf, cfgs, regs, opts...)
	if err != nil {
		return nil, err
	}
	if err := lab.RegisterAll(); err != nil {
		return nil, err
	}
	lab.Freeze()
	return lab, nil
}

func (l *Lab) Register(ents ...catalog.Entry) error {
	return l.cat.Register(ents...)
}

// RegisterAll 掃描所有設定檔來源，把每個 .yaml/.yml/.json 解析成 RunSetting 並批次註冊。
//
//  1. Fail-fast：任何一個檔案讀取、解析或檢查失敗都立刻回傳 error。
//  2. 原子性：全部通過才呼叫一次 Register，catalog 不會停在半完成狀態。
//  3. 每個函數的 LogicKey 都必須已在 registry 註冊。
func (l *Lab) RegisterAll() error {
	sources := l.cat.Cfg().Sources()
	if len(sources) == 0 {
		return errs.NewFatal("configs required")
	}

	entries := make([]catalog.Entry, 0, 64)
	seenID := map[spec.RunID]string{}
	seenName := map[string]string{}

	for _, src := range sources {
		walkErr := fs.WalkDir(src, ".", func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if d.IsDir() {
				if path == "." {
					return nil
				}
				return errs.NewFatal(fmt.Sprintf("configs must be flat (no subdir): %q", path))
			}
			base := filepath.Base(path)
			if strings.HasPrefix(base, ".") {
				return nil
			}
			ext := strings.ToLower(filepath.Ext(base))
			if ext != ".yaml" && ext != ".yml" && ext != ".json" {
				return nil
			}

			raw, rerr := fs.ReadFile(src, path)
			if rerr != nil {
				return errs.NewFatal(fmt.Sprintf("read config failed: %s", base))
			}
			rs, perr := catalog.ParseRunSettingByExt(base, raw)
			if perr != nil {
				return errs.WrapWithExtra(perr, "parse run setting failed", base)
			}

			name := strings.ToLower(strings.TrimSpace(rs.RunName))
			if prev, ok := seenID[rs.RunID]; ok {
				return errs.NewFatal(fmt.Sprintf("duplicate run id: %d (config=%s and %s)", rs.RunID, prev, base))
			}
			if _, ok := l.cat.GetByID(rs.RunID); ok {
				return errs.NewFatal(fmt.Sprintf("run id already registered: %d (config=%s)", rs.RunID, base))
			}
			seenID[rs.RunID] = base
			if prev, ok := seenName[name]; ok {
				return errs.NewFatal(fmt.Sprintf("duplicate run name: %s (config=%s and %s)", name, prev, base))
			}
			if _, ok := l.cat.GetByName(name); ok {
				return errs.NewFatal(fmt.Sprintf("run name already registered: %s (config=%s)", name, base))
			}
			seenName[name] = base

			if err := l.validFunctions(rs); err != nil {
				return errs.WrapWithExtra(err, "invalid functions", base)
			}
			entries = append(entries, catalog.Entry{RID: rs.RunID, Name: name, ConfigName: base})
			return nil
		})
		if walkErr != nil {
			return walkErr
		}
	}
	if len(entries) == 0 {
		return errs.NewFatal("no config files found to register")
	}
	return l.cat.Register(entries...)
}

func (l *Lab) Freeze() {
	l.cat.Freeze()
}

func (l *Lab) EntryByID(id spec.RunID) (catalog.Entry, bool) {
	return l.cat.GetByID(id)
}

func (l *Lab) EntryByName(name string) (catalog.Entry, bool) {
	return l.cat.GetByName(name)
}

func (l *Lab) IDs() []spec.RunID {
	return l.cat.IDs()
}

func (l *Lab) All() []catalog.Entry {
	return l.cat.All()
}

// Summary 回傳所有 run 的摘要（結果會快取）
func (l *Lab) Summary() ([]catalog.Summary, error) {
	if !l.cat.IsFrozen() {
		return nil, errs.NewFatal("catalog is not frozen yet")
	}
	if l.sum != nil {
		return l.sum, nil
	}
	ids := l.cat.IDs()
	cs := make([]catalog.Summary, 0, len(ids))
	for _, id := range ids {
		rs, err := l.cat.RunSettingByID(id)
		if err != nil {
			return nil, err
		}
		cs = append(cs, catalog.NewSummary(rs))
	}
	l.sum = cs
	return l.sum, nil
}

// RunSetting 依 ID 讀出設定（執行階段）
func (l *Lab) RunSetting(id spec.RunID) (*spec.RunSetting, error) {
	if !l.cat.IsFrozen() {
		return nil, errs.NewFatal("catalog is not frozen yet")
	}
	return l.cat.RunSettingByID(id)
}

// NewEngine 依 run ID 建立 Engine（seed 由 crypto/rand 產生）
func (l *Lab) NewEngine(id spec.RunID) (*Engine, error) {
	rs, err := l.RunSetting(id)
	if err != nil {
		return nil, err
	}
	return newEngine(rs, l.reg, l.cf, l.log)
}

// NewEngineWithSeed 同 NewEngine，由呼叫端指定 seed 以重現
func (l *Lab) NewEngineWithSeed(id spec.RunID, seed int64) (*Engine, error) {
	rs, err := l.RunSetting(id)
	if err != nil {
		return nil, err
	}
	return newEngineWithSeed(rs, l.reg, l.cf, seed, l.log)
}

// NewEngineByYAML 以外部設定建立 Engine；設定不需在 catalog 中，但 LogicKey 必須已註冊。
func (l *Lab) NewEngineByYAML(raw []byte, seed int64) (*Engine, error) {
	rs, err := spec.GetRunSettingByYAML(raw)
	if err != nil {
		return nil, err
	}
	if err := l.validFunctions(rs); err != nil {
		return nil, err
	}
	return newEngineWithSeed(rs, l.reg, l.cf, seed, l.log)
}

func (l *Lab) NewEngineByJSON(raw []byte, seed int64) (*Engine, error) {
	rs, err := spec.GetRunSettingByJSON(raw)
	if err != nil {
		return nil, err
	}
	if err := l.validFunctions(rs); err != nil {
		return nil, err
	}
	return newEngineWithSeed(rs, l.reg, l.cf, seed, l.log)
}

func (l *Lab) NewSimulator(id spec.RunID) (*Simulator, error) {
	return l.NewSimulatorWithSeed(id, cryptoSeed())
}

func (l *Lab) NewSimulatorWithSeed(id spec.RunID, seed int64) (*Simulator, error) {
	rs, err := l.RunSetting(id)
	if err != nil {
		return nil, err
	}
	return newSimulatorWithSeed(rs, l.reg, l.cf, seed, l.log)
}

// NewSimulatorByYAML 以外部設定建立模擬器（調參用）
func (l *Lab) NewSimulatorByYAML(raw []byte, seed int64) (*Simulator, error) {
	rs, err := spec.GetRunSettingByYAML(raw)
	if err != nil {
		return nil, err
	}
	if err := l.validFunctions(rs); err != nil {
		return nil, err
	}
	return newSimulatorWithSeed(rs, l.reg, l.cf, seed, l.log)
}

func (l *Lab) NewSimulatorByJSON(raw []byte, seed int64) (*Simulator, error) {
	rs, err := spec.GetRunSettingByJSON(raw)
	if err != nil {
		return nil, err
	}
	if err := l.validFunctions(rs); err != nil {
		return nil, err
	}
	return newSimulatorWithSeed(rs, l.reg, l.cf, seed, l.log)
}

// NewTracer 建立單線追蹤器；同一個 seed 會得到相同的追蹤紀錄。
func (l *Lab) NewTracer(id spec.RunID, seed int64) (*Tracer, error) {
	e, err := l.NewEngineWithSeed(id, seed)
	if err != nil {
		return nil, err
	}
	return &Tracer{e: e}, nil
}

// BuildRuntime 凍結 catalog，並為每個 run 建立容量 poolSize 的 EnginePool（全部建好才回傳）。
func (l *Lab) BuildRuntime(poolSize int) (*Runtime, error) {
	l.Freeze()
	ids := l.cat.IDs()
	if len(ids) == 0 {
		return nil, errs.NewFatal("no runs registered")
	}
	rt := &Runtime{
		lab:      l,
		pools:    make(map[spec.RunID]*EnginePool, len(ids)),
		ids:      ids,
		done:     make(chan struct{}),
		poolSize: max(1, poolSize),
	}
	rt.reason.Store("")
	for _, id := range ids {
		rs, err := l.cat.RunSettingByID(id)
		if err != nil {
			return nil, err
		}
		p, err := newEnginePool(rt.poolSize, rs, l.reg, l.cf, cryptoSeed(), l.log)
		if err != nil {
			return nil, err
		}
		rt.pools[id] = p
	}
	return rt, nil
}

func (l *Lab) validFunctions(rs *spec.RunSetting) error {
	for _, f := range rs.Functions {
		if !l.reg.IsExist(f.LogicKey) {
			return errs.NewWarn(fmt.Sprintf("integrand not registered: logic_key=%s (fn=%s)", f.LogicKey, f.Name))
		}
	}
	return nil
}

// RandomSeed 以 crypto/rand 產生非負 seed
func RandomSeed() int64 { return cryptoSeed() }

func cryptoSeed() int64 {
	seed, err := rand.Int(rand.Reader, big.NewInt(math.MaxInt64))
	if err != nil {
		return 0
	}
	return seed.Int64()
}
