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

package demo_integrand

import (
	"fmt"
	"math"

	"github.com/zintix-labs/acdc/errs"
	"github.com/zintix-labs/acdc/sdk/integrand"
	"github.com/zintix-labs/acdc/spec"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat/distuv"
)

// ============================================================
// ** const：f = value **
// ============================================================

type constParams struct {
	Value float64 `yaml:"value"`
}

type constFunc struct{ v float64 }

func buildConst(fs *spec.FunctionSetting) (integrand.Func, error) {
	p := constParams{Value: 1}
	if err := spec.DecodeParams(fs, &p); err != nil {
		return nil, err
	}
	if p.Value < 0 {
		return nil, errs.NewWarn(fmt.Sprintf("const %s: value must be >= 0", fs.Name))
	}
	return &constFunc{v: p.Value}, nil
}

func (c *constFunc) Eval([]float64) float64 { return c.v }
func (c *constFunc) Integral() float64      { return c.v }

// ============================================================
// ** gauss：f = scale * Π N(x_d; mu, sigma) **
// ============================================================

type gaussParams struct {
	Mu    float64 `yaml:"mu"`
	Sigma float64 `yaml:"sigma"`
	Scale float64 `yaml:"scale"`
}

type gaussFunc struct {
	n     distuv.Normal
	scale float64
	exact float64
}

func buildGauss(fs *spec.FunctionSetting) (integrand.Func, error) {
	p := gaussParams{Mu: 0.5, Sigma: 0.1, Scale: 1}
	if err := spec.DecodeParams(fs, &p); err != nil {
		return nil, err
	}
	if !(p.Sigma > 0) || p.Scale < 0 {
		return nil, errs.NewWarn(fmt.Sprintf("gauss %s: sigma must be > 0 and scale >= 0", fs.Name))
	}
	n := distuv.Normal{Mu: p.Mu, Sigma: p.Sigma}
	return &gaussFunc{
		n:     n,
		scale: p.Scale,
		exact: p.Scale * math.Pow(n.CDF(1)-n.CDF(0), float64(fs.Dim)),
	}, nil
}

func (g *gaussFunc) Eval(x []float64) float64 {
	v := g.scale
	for _, xi := range x {
		v *= g.n.Prob(xi)
	}
	return v
}

func (g *gaussFunc) Integral() float64 { return g.exact }

// ============================================================
// ** spike：f = base + height（當 x 全部落在以 center 為中心、寬 width 的方塊內）**
// ============================================================

type spikeParams struct {
	Base   float64 `yaml:"base"`
	Height float64 `yaml:"height"`
	Width  float64 `yaml:"width"`
	Center float64 `yaml:"center"`
}

type spikeFunc struct {
	p     spikeParams
	exact float64
}

func buildSpike(fs *spec.FunctionSetting) (integrand.Func, error) {
	p := spikeParams{Base: 1, Height: 1000, Width: 0.001, Center: 0.5}
	if err := spec.DecodeParams(fs, &p); err != nil {
		return nil, err
	}
	lo, up := p.Center-p.Width/2, p.Center+p.Width/2
	if p.Base < 0 || p.Height < 0 || !(p.Width > 0) || lo < 0 || up > 1 {
		return nil, errs.NewWarn(fmt.Sprintf("spike %s: spike must lie inside [0,1] with non-negative values", fs.Name))
	}
	return &spikeFunc{p: p, exact: p.Base + p.Height*math.Pow(p.Width, float64(fs.Dim))}, nil
}

func (s *spikeFunc) Eval(x []float64) float64 {
	h := s.p.Width / 2
	for _, xi := range x {
		if math.Abs(xi-s.p.Center) >= h {
			return s.p.Base
		}
	}
	return s.p.Base + s.p.Height
}

func (s *spikeFunc) Integral() float64 { return s.exact }

// ============================================================
// ** corner：f = base + height（當所有 x_d > edge）**
// ============================================================

type cornerParams struct {
	Base   float64 `yaml:"base"`
	Height float64 `yaml:"height"`
	Edge   float64 `yaml:"edge"`
}

type cornerFunc struct {
	p     cornerParams
	exact float64
}

func buildCorner(fs *spec.FunctionSetting) (integrand.Func, error) {
	p := cornerParams{Base: 1, Height: 10, Edge: 0.9}
	if err := spec.DecodeParams(fs, &p); err != nil {
		return nil, err
	}
	if p.Base < 0 || p.Height < 0 || p.Edge < 0 || p.Edge >= 1 {
		return nil, errs.NewWarn(fmt.Sprintf("corner %s: edge must be in [0,1)", fs.Name))
	}
	return &cornerFunc{p: p, exact: p.Base + p.Height*math.Pow(1-p.Edge, float64(fs.Dim))}, nil
}

func (c *cornerFunc) Eval(x []float64) float64 {
	if floats.Min(x) > c.p.Edge {
		return c.p.Base + c.p.Height
	}
	return c.p.Base
}

func (c *cornerFunc) Integral() float64 { return c.exact }

// ============================================================
// ** power：f = Π (a+1) x_d^a，積分為 1 **
// ============================================================

type powerParams struct {
	A float64 `yaml:"a"`
}

type powerFunc struct{ a float64 }

func buildPower(fs *spec.FunctionSetting) (integrand.Func, error) {
	p := powerParams{A: 2}
	if err := spec.DecodeParams(fs, &p); err != nil {
		return nil, err
	}
	if p.A < 0 {
		return nil, errs.NewWarn(fmt.Sprintf("power %s: a must be >= 0", fs.Name))
	}
	return &powerFunc{a: p.A}, nil
}

func (p *powerFunc) Eval(x []float64) float64 {
	v := 1.0
	for _, xi := range x {
		v *= (p.a + 1) * math.Pow(xi, p.a)
	}
	return v
}

func (p *powerFunc) Integral() float64 { return 1 }

// ============================================================
// ** ridge：沿對角線 Σx_d = level 的高斯脊，無解析積分 **
// ============================================================

type ridgeParams struct {
	Level float64 `yaml:"level"`
	Sigma float64 `yaml:"sigma"`
}

type ridgeFunc struct {
	level float64
	n     distuv.Normal
}

func buildRidge(fs *spec.FunctionSetting) (integrand.Func, error) {
	p := ridgeParams{Level: float64(fs.Dim) / 2, Sigma: 0.05}
	if err := spec.DecodeParams(fs, &p); err != nil {
		return nil, err
	}
	if !(p.Sigma > 0) {
		return nil, errs.NewWarn(fmt.Sprintf("ridge %s: sigma must be > 0", fs.Name))
	}
	return &ridgeFunc{level: p.Level, n: distuv.Normal{Mu: 0, Sigma: p.Sigma}}, nil
}

func (r *ridgeFunc) Eval(x []float64) float64 {
	return r.n.Prob(floats.Sum(x) - r.level)
}

// ============================================================
// ** vanish：恆為 0 的退化函數 **
// ============================================================

type vanishFunc struct{}

func buildVanish(*spec.FunctionSetting) (integrand.Func, error) { return vanishFunc{}, nil }

func (vanishFunc) Eval([]float64) float64 { return 0 }
func (vanishFunc) Integral() float64      { return 0 }
