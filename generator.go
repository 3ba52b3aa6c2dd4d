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
	"fmt"
	"io"
	"log/slog"
	"math"

	"github.com/zintix-labs/acdc/errs"
	"github.com/zintix-labs/acdc/sdk/cell"
	"github.com/zintix-labs/acdc/sdk/integrand"
	"github.com/zintix-labs/acdc/sdk/sampler"
	"github.com/zintix-labs/acdc/spec"
)

// Random 是 Generator 需要的亂數能力，*core.Core 即滿足。
// Generator 只借用它，不管理其生命週期；同一個 Random 不可同時給兩個併發的 Generator。
type Random interface {
	Uniform() float64
	UniformIn(lo, hi float64) float64
	FillUniform(dst []float64)
	Bool(p float64) bool
	BoolOdds(p1, p2 float64) bool
	IntN(n int) int
}

// function 為一個已註冊的被取樣函數與它的切割樹
type function struct {
	name  string
	dim   int
	f     integrand.Func
	root  *cell.Cell
	nAtt  int64 // 選中此函數的嘗試次數
	nAcc  int64 // 接受次數
	nComp int   // 補償次數
	x     []float64
	box   cell.Box
}

// Generator 是 ACDC 取樣器：依各函數的高估積分挑選函數，沿切割樹取點並做接受/拒絕，
// 發現高估值錯誤時細分該格子並進入補償狀態。
//
// 並發語意：Generator 沒有內部鎖，同一個實例不可被多個 goroutine 同時使用。
// 需要併發時請為每個 worker 建立獨立的 Generator 與 Random（參考 Simulator / GeneratorPool）。
type Generator struct {
	rnd    Random
	fns    []*function
	table  *sampler.CumTable
	levels []level

	attempted int64
	accepted  int64
	nComp     int
	nReset    int

	// 最近一次嘗試
	lastIdx      int
	lastCell     *cell.Cell
	lastBox      cell.Box
	lastPoint    []float64
	lastF        float64
	lastAccepted bool

	eps         float64
	margin      float64
	nTry        int
	maxTry      int
	cheapRandom bool
	log         *slog.Logger
}

// Option 設定 Generator
type Option func(*Generator)

// WithEps 設定最小格子寬度
func WithEps(eps float64) Option { return func(g *Generator) { g.eps = eps } }

// WithMargin 設定新量到最大值的安全倍率（>= 1）
func WithMargin(m float64) Option { return func(g *Generator) { g.margin = m } }

func WithNTry(n int) Option { return func(g *Generator) { g.nTry = n } }

func WithMaxTry(n int) Option { return func(g *Generator) { g.maxTry = n } }

// WithCheapRandom 設定下降時是否每層都抽新的亂數
func WithCheapRandom(cheap bool) Option { return func(g *Generator) { g.cheapRandom = cheap } }

func WithLogger(log *slog.Logger) Option { return func(g *Generator) { g.log = log } }

// WithSetting 一次套用整組設定（通常來自 spec.RunSetting）
func WithSetting(s spec.SamplerSetting) Option {
	return func(g *Generator) {
		g.eps, g.margin, g.nTry, g.maxTry, g.cheapRandom = s.Eps, s.Margin, s.NTry, s.MaxTry, s.CheapRandom
	}
}

// NewGenerator 建立沒有任何函數的 Generator。參數超出範圍時回傳 Fatal 錯誤。
func NewGenerator(rnd Random, opts ...Option) (*Generator, error) {
	if rnd == nil {
		return nil, errs.NewFatal("random source required")
	}
	def := spec.DefaultSamplerSetting()
	g := &Generator{
		rnd:         rnd,
		lastIdx:     -1,
		eps:         def.Eps,
		margin:      def.Margin,
		nTry:        def.NTry,
		maxTry:      def.MaxTry,
		cheapRandom: def.CheapRandom,
	}
	for _, o := range opts {
		o(g)
	}
	if g.log == nil {
		g.log = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if err := g.Setting().Valid(); err != nil {
		return nil, err
	}
	return g, nil
}

// Setting 回傳目前的取樣器參數
func (g *Generator) Setting() spec.SamplerSetting {
	return spec.SamplerSetting{
		Eps:         g.eps,
		Margin:      g.margin,
		NTry:        g.nTry,
		MaxTry:      g.maxTry,
		CheapRandom: g.cheapRandom,
	}
}

func (g *Generator) apply(s spec.SamplerSetting) error {
	if err := s.Valid(); err != nil {
		return err
	}
	g.eps, g.margin, g.nTry, g.maxTry, g.cheapRandom = s.Eps, s.Margin, s.NTry, s.MaxTry, s.CheapRandom
	return nil
}

// 執行期間也可調整參數，只影響之後的細分與取點。
func (g *Generator) SetEps(eps float64) error {
	s := g.Setting()
	s.Eps = eps
	return g.apply(s)
}

func (g *Generator) SetMargin(m float64) error {
	s := g.Setting()
	s.Margin = m
	return g.apply(s)
}

func (g *Generator) SetNTry(n int) error {
	s := g.Setting()
	s.NTry = n
	return g.apply(s)
}

func (g *Generator) SetMaxTry(n int) error {
	s := g.Setting()
	s.MaxTry = n
	return g.apply(s)
}

func (g *Generator) SetCheapRandom(cheap bool) {
	g.cheapRandom = cheap
}

// AddFunction 註冊一個定義在 [0,1]^dim 上的函數。
//
// 最多取 maxTry 個均勻點，直到找到 nTry 個正值點；觀察到的最大值乘上 margin 成為根節點的 g。
// 找不到任何正值點時回傳 (false, nil)，函數不會被註冊（退化函數是合法結果，由呼叫端決定如何處理）。
// 參數錯誤、或已經開始取樣時回傳錯誤。
func (g *Generator) AddFunction(dim int, f integrand.Func) (bool, error) {
	return g.AddNamedFunction(fmt.Sprintf("f%d", len(g.fns)), dim, f)
}

// AddNamedFunction 同 AddFunction，另指定名稱（報表與日誌用）。
func (g *Generator) AddNamedFunction(name string, dim int, f integrand.Func) (bool, error) {
	if dim < 1 {
		return false, errs.Wrap(errs.ErrBadDim, fmt.Sprintf("function %s dim=%d", name, dim))
	}
	if f == nil {
		return false, errs.NewWarn("nil function")
	}
	if g.attempted > 0 {
		return false, errs.NewWarn("can not add function after generation started")
	}
	x := make([]float64, dim)
	found := 0
	fmax := 0.0
	for t := 0; t < g.maxTry && found < g.nTry; t++ {
		g.rnd.FillUniform(x)
		if v := f.Eval(x); v > 0 {
			found++
			fmax = max(fmax, v)
		}
	}
	if found == 0 || math.IsInf(fmax, 0) {
		g.log.Warn("degenerate function", slog.String("fn", name), slog.Int("dim", dim), slog.Int("max_try", g.maxTry))
		return false, nil
	}
	fn := &function{
		name: name,
		dim:  dim,
		f:    f,
		root: cell.NewRoot(fmax * g.margin),
		x:    x,
		box:  cell.UnitBox(dim),
	}
	g.fns = append(g.fns, fn)
	if err := g.rebuildTable(); err != nil {
		g.fns = g.fns[:len(g.fns)-1]
		return false, err
	}
	g.log.Debug("function added", slog.String("fn", name), slog.Int("dim", dim), slog.Float64("g", fn.root.G()), slog.Int("positive", found))
	return true, nil
}

func (g *Generator) rebuildTable() error {
	w := make([]float64, len(g.fns))
	for i, fn := range g.fns {
		w[i] = fn.root.MaxInt()
	}
	if g.table == nil {
		t, err := sampler.BuildCumTable(w)
		if err != nil {
			return err
		}
		g.table = t
		return nil
	}
	return sampler.Rebuild(g.table, w)
}

// Try 執行一次嘗試，回傳是否接受以及選中的函數索引；沒有任何函數時回傳 (false, -1)。
func (g *Generator) Try() (accepted bool, idx int) {
	if len(g.fns) == 0 {
		return false, -1
	}
	if len(g.levels) > 0 {
		return g.tryCompensating()
	}

	i, residual := g.table.Pick(g.rnd.Uniform())
	fn := g.fns[i]
	fn.box.Reset()
	leaf := fn.root.Generate(g.rnd, fn.box, fn.x, g.cheapRandom)
	f := fn.f.Eval(fn.x)
	g.attempted++
	fn.nAtt++

	w := weight(f, leaf.G())
	if w > 1 {
		g.compensate(i, fn.x, f)
		accepted = true
	} else {
		u := residual
		if g.cheapRandom {
			u = g.rnd.Uniform()
		}
		accepted = u < w
	}
	g.retire()
	g.record(i, leaf, fn, f, accepted)
	return accepted, i
}

// tryCompensating 從最上層補償區域依超額 (g - previousG)^+ 取點，
// 以 (f - previousG)^+ / (g - previousG) 接受，補回補償前少取的部分。
func (g *Generator) tryCompensating() (bool, int) {
	top := &g.levels[len(g.levels)-1]
	i := top.fn
	fn := g.fns[i]
	fn.box.CopyFrom(top.box)
	leaf := top.cell.GenerateExcess(g.rnd, fn.box, fn.x, g.cheapRandom, top.prevG)
	f := fn.f.Eval(fn.x)
	g.attempted++
	fn.nAtt++

	accepted := false
	gl := leaf.G()
	switch {
	case f > gl:
		g.compensate(i, fn.x, f)
		accepted = true
	case f > top.prevG && gl > top.prevG:
		accepted = g.rnd.Uniform()*(gl-top.prevG) < f-top.prevG
	}
	g.retire()
	g.record(i, leaf, fn, f, accepted)
	return accepted, i
}

func (g *Generator) record(i int, leaf *cell.Cell, fn *function, f float64, accepted bool) {
	g.lastIdx = i
	g.lastCell = leaf
	g.lastF = f
	g.lastAccepted = accepted
	if len(g.lastPoint) != fn.dim {
		g.lastPoint = make([]float64, fn.dim)
		g.lastBox = cell.UnitBox(fn.dim)
	}
	copy(g.lastPoint, fn.x)
	g.lastBox.CopyFrom(fn.box)
	if accepted {
		g.accepted++
		fn.nAcc++
	}
}

// weight 回傳 f/g；g 為 0 時只要 f > 0 就視為違規。
func weight(f, g float64) float64 {
	if g > 0 {
		return f / g
	}
	if f > 0 {
		return math.Inf(1)
	}
	return 0
}

// Generate 重複 Try 直到接受，回傳函數索引。
// 連續 maxTry 次都未接受時回傳 errs.ErrExhausted（Fatal），由呼叫端決定是否中止。
func (g *Generator) Generate() (int, error) {
	if len(g.fns) == 0 {
		return -1, errs.ErrNoFunction
	}
	for t := 0; t < g.maxTry; t++ {
		if ok, i := g.Try(); ok {
			return i, nil
		}
	}
	g.log.Warn("generation exhausted", slog.Int("max_try", g.maxTry), slog.Int64("attempted", g.attempted))
	return -1, errs.WrapWithExtra(errs.ErrExhausted, "generate", fmt.Sprintf("max_try=%d", g.maxTry))
}

// Reject 撤銷最近一次被接受的點（呼叫端基於外部條件否決）。
// 只影響接受數，不動嘗試數、最後一點與切割樹；同一個點重複呼叫不會重複扣除。
func (g *Generator) Reject() {
	if !g.lastAccepted || g.accepted == 0 {
		return
	}
	g.accepted--
	g.fns[g.lastIdx].nAcc--
	g.lastAccepted = false
}
