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
	"math"
	"testing"

	"github.com/zintix-labs/acdc/sdk/core"
	"github.com/zintix-labs/acdc/sdk/integrand"
	"github.com/zintix-labs/acdc/spec"
	"gonum.org/v1/gonum/stat"
)

func build(t *testing.T, key spec.LogicKey, dim int, params map[string]any) integrand.Func {
	t.Helper()
	f, err := Integrands.Build(&spec.FunctionSetting{Name: string(key), LogicKey: key, Dim: dim, Params: params})
	if err != nil {
		t.Fatalf("build %s: %v", key, err)
	}
	return f
}

// mcCheck 以一般均勻取樣估計積分，確認解析值落在 6 個標準誤差內
func mcCheck(t *testing.T, f integrand.Func, dim int, n int) {
	t.Helper()
	ex, ok := f.(integrand.Exact)
	if !ok {
		t.Fatalf("%T has no exact integral", f)
	}
	c := core.New(core.Default().New(2024))
	x := make([]float64, dim)
	vs := make([]float64, n)
	for i := range vs {
		c.FillUniform(x)
		vs[i] = f.Eval(x)
	}
	mean, std := stat.MeanStdDev(vs, nil)
	se := std / math.Sqrt(float64(n))
	if math.Abs(mean-ex.Integral()) > 6*se+1e-12 {
		t.Fatalf("%T: mc %v ± %v, exact %v", f, mean, se, ex.Integral())
	}
}

func TestRegistryKeys(t *testing.T) {
	for _, k := range []spec.LogicKey{"const", "gauss", "spike", "corner", "power", "ridge", "vanish"} {
		if !Integrands.IsExist(k) {
			t.Fatalf("missing %s", k)
		}
	}
}

func TestExactIntegrals(t *testing.T) {
	mcCheck(t, build(t, "const", 3, map[string]any{"value": 2.5}), 3, 1000)
	mcCheck(t, build(t, "gauss", 2, map[string]any{"mu": 0.3, "sigma": 0.2}), 2, 200000)
	mcCheck(t, build(t, "corner", 2, map[string]any{"edge": 0.7}), 2, 200000)
	mcCheck(t, build(t, "power", 2, map[string]any{"a": 1}), 2, 200000)
	mcCheck(t, build(t, "spike", 1, map[string]any{"height": 10, "width": 0.2}), 1, 200000)

	g := build(t, "gauss", 1, nil).(integrand.Exact)
	// mu 0.5 sigma 0.1：幾乎全部質量都在 [0,1]
	if math.Abs(g.Integral()-1) > 1e-6 {
		t.Fatalf("gauss integral = %v", g.Integral())
	}
	s := build(t, "spike", 2, nil).(integrand.Exact)
	if math.Abs(s.Integral()-(1+1000*1e-6)) > 1e-12 {
		t.Fatalf("spike integral = %v", s.Integral())
	}
}

func TestEval(t *testing.T) {
	sp := build(t, "spike", 2, nil)
	if v := sp.Eval([]float64{0.5, 0.5}); v != 1001 {
		t.Fatalf("spike center = %v", v)
	}
	if v := sp.Eval([]float64{0.5, 0.6}); v != 1 {
		t.Fatalf("spike outside = %v", v)
	}
	co := build(t, "corner", 3, nil)
	if v := co.Eval([]float64{0.95, 0.95, 0.95}); v != 11 {
		t.Fatalf("corner inside = %v", v)
	}
	if v := co.Eval([]float64{0.95, 0.5, 0.95}); v != 1 {
		t.Fatalf("corner outside = %v", v)
	}
	ri := build(t, "ridge", 2, nil)
	if ri.Eval([]float64{0.5, 0.5}) <= ri.Eval([]float64{0.1, 0.1}) {
		t.Fatal("ridge must peak on the diagonal level")
	}
	if _, ok := ri.(integrand.Exact); ok {
		t.Fatal("ridge has no closed form")
	}
	if build(t, "vanish", 4, nil).Eval([]float64{0.1, 0.2, 0.3, 0.4}) != 0 {
		t.Fatal("vanish must be 0")
	}
}

func TestBadParams(t *testing.T) {
	cases := []struct {
		key    spec.LogicKey
		params map[string]any
	}{
		{"const", map[string]any{"value": -1}},
		{"gauss", map[string]any{"sigma": 0}},
		{"spike", map[string]any{"center": 0.9999, "width": 0.01}},
		{"corner", map[string]any{"edge": 1}},
		{"power", map[string]any{"a": -0.5}},
		{"ridge", map[string]any{"sigma": -1}},
		{"const", map[string]any{"valu": 1}},
	}
	for _, c := range cases {
		_, err := Integrands.Build(&spec.FunctionSetting{Name: "x", LogicKey: c.key, Dim: 1, Params: c.params})
		if err == nil {
			t.Fatalf("%s %v: want error", c.key, c.params)
		}
	}
}
