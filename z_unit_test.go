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
	"errors"
	"io"
	"math"
	"testing"

	"github.com/klauspost/compress/zstd"
	"github.com/stretchr/testify/require"
	"github.com/zintix-labs/acdc/errs"
	"github.com/zintix-labs/acdc/sdk/cell"
	"github.com/zintix-labs/acdc/sdk/core"
	"github.com/zintix-labs/acdc/sdk/integrand"
	"gonum.org/v1/gonum/floats/scalar"
)

// scriptedRand 在 fixed 為 true 時讓 FillUniform 固定回傳 at，
// 用來控制 AddFunction 的種子點（例如確保沒有踩到尖峰）。
type scriptedRand struct {
	*core.Core
	fixed bool
	at    float64
}

func (s *scriptedRand) FillUniform(dst []float64) {
	if !s.fixed {
		s.Core.FillUniform(dst)
		return
	}
	for i := range dst {
		dst[i] = s.at
	}
}

func newCore(seed int64) *core.Core { return core.New(core.Default().New(seed)) }

func constant(v float64) integrand.Func {
	return integrand.FuncOf(func(x []float64) float64 { return v })
}

// spike 在 0.5 附近寬 2*halfWidth 的區間內為 1+height，其餘為 1；積分為 1 + height*2*halfWidth。
func spike(height, halfWidth float64) integrand.Func {
	return integrand.FuncOf(func(x []float64) float64 {
		if math.Abs(x[0]-0.5) < halfWidth {
			return 1 + height
		}
		return 1
	})
}

func newSpikeGenerator(t *testing.T, seed int64, opts ...Option) *Generator {
	t.Helper()
	rnd := &scriptedRand{Core: newCore(seed), fixed: true, at: 0.1}
	g, err := NewGenerator(rnd, opts...)
	require.NoError(t, err)
	ok, err := g.AddFunction(1, spike(1000, 0.001))
	require.NoError(t, err)
	require.True(t, ok)
	rnd.fixed = false
	require.InDelta(t, 1.1, g.MaxInt(), 1e-12)
	return g
}

func checkTree(t *testing.T, root *cell.Cell, dim int) {
	t.Helper()
	root.Walk(cell.UnitBox(dim), func(n *cell.Cell, _ cell.Box) bool {
		if n.IsLeaf() {
			return true
		}
		l, u := n.Lower(), n.Upper()
		require.True(t, scalar.EqualWithinAbsOrRel(n.V(), l.V()+u.V(), 1e-12, 1e-9))
		require.True(t, scalar.EqualWithinAbsOrRel(n.G()*n.V(), l.G()*l.V()+u.G()*u.V(), 1e-12, 1e-9))
		return true
	})
}

func TestNewGeneratorValidation(t *testing.T) {
	_, err := NewGenerator(nil)
	require.Error(t, err)
	_, err = NewGenerator(newCore(1), WithMargin(0.9))
	require.Error(t, err)
	_, err = NewGenerator(newCore(1), WithNTry(0))
	require.Error(t, err)
	_, err = NewGenerator(newCore(1), WithNTry(10), WithMaxTry(5))
	require.Error(t, err)
	_, err = NewGenerator(newCore(1), WithEps(0))
	require.Error(t, err)

	g, err := NewGenerator(newCore(1))
	require.NoError(t, err)
	s := g.Setting()
	require.Equal(t, 1.1, s.Margin)
	require.Equal(t, 100, s.NTry)
	require.Equal(t, 10000, s.MaxTry)
	require.False(t, s.CheapRandom)

	require.Error(t, g.SetMargin(0.5))
	require.Equal(t, 1.1, g.Setting().Margin, "failed setter must not change the setting")
	require.NoError(t, g.SetMargin(1.3))
	require.NoError(t, g.SetEps(1e-9))
	require.NoError(t, g.SetNTry(20))
	require.NoError(t, g.SetMaxTry(200))
	g.SetCheapRandom(true)
	require.Equal(t, 1.3, g.Setting().Margin)
	require.True(t, g.Setting().CheapRandom)
}

func TestAddFunctionDegenerate(t *testing.T) {
	g, err := NewGenerator(newCore(2), WithNTry(5), WithMaxTry(500))
	require.NoError(t, err)

	calls := 0
	zero := integrand.FuncOf(func(x []float64) float64 { calls++; return 0 })
	ok, err := g.AddFunction(3, zero)
	require.NoError(t, err)
	require.False(t, ok)
	require.Equal(t, 500, calls, "must stop after max try")
	require.Zero(t, g.NFunctions())

	_, err = g.AddFunction(0, constant(1))
	require.True(t, errors.Is(err, errs.ErrBadDim))

	_, err = g.Generate()
	require.True(t, errors.Is(err, errs.ErrNoFunction))
	ok, idx := g.Try()
	require.False(t, ok)
	require.Equal(t, -1, idx)
}

func TestAddFunctionAfterGenerationFails(t *testing.T) {
	g, err := NewGenerator(newCore(3))
	require.NoError(t, err)
	ok, err := g.AddFunction(1, constant(1))
	require.NoError(t, err)
	require.True(t, ok)
	_, err = g.Generate()
	require.NoError(t, err)
	_, err = g.AddFunction(1, constant(1))
	require.Error(t, err)
}

func TestConstantConverges(t *testing.T) {
	for _, cheap := range []bool{false, true} {
		g, err := NewGenerator(newCore(11), WithCheapRandom(cheap))
		require.NoError(t, err)
		ok, err := g.AddFunction(1, constant(1))
		require.NoError(t, err)
		require.True(t, ok)
		require.InDelta(t, 1.1, g.MaxInt(), 1e-12)

		for i := 0; i < 200000; i++ {
			g.Try()
			require.False(t, g.Compensating())
		}
		require.Equal(t, int64(200000), g.N())
		require.InDelta(t, 1.0, g.Integral(), 5*g.IntegralErr()+1e-3, "cheap=%v", cheap)
		require.InDelta(t, 1/1.1, g.Efficiency(), 0.005)
		require.Zero(t, g.Compensations())
		require.Equal(t, 1, g.NBins())
		require.Equal(t, 0, g.Depth())
	}
}

func TestBoundsAndEfficiency(t *testing.T) {
	g, err := NewGenerator(newCore(5))
	require.NoError(t, err)
	prod := integrand.FuncOf(func(x []float64) float64 { return 8 * x[0] * x[1] * x[2] })
	ok, err := g.AddFunction(3, prod)
	require.NoError(t, err)
	require.True(t, ok)
	ok, err = g.AddFunction(2, constant(0.5))
	require.NoError(t, err)
	require.True(t, ok)

	for i := 0; i < 20000; i++ {
		idx, err := g.Generate()
		require.NoError(t, err)
		x := g.LastPoint()
		require.Len(t, x, g.Dim(idx))
		for _, xd := range x {
			require.True(t, xd >= 0 && xd <= 1, "point out of unit cube: %v", x)
		}
		require.True(t, g.LastCellBox().Contains(x))
		e := g.Efficiency()
		require.True(t, e >= 0 && e <= 1)
	}
	require.InDelta(t, g.Integral(), g.IntegralOf(0)+g.IntegralOf(1), 1e-9)
	require.Equal(t, g.NAcc(), g.NOf(0)+g.NOf(1))
	require.Equal(t, g.N(), g.NAttemptedOf(0)+g.NAttemptedOf(1))
	for i := 0; i < g.NFunctions(); i++ {
		checkTree(t, g.Tree(i), g.Dim(i))
	}
	require.InDelta(t, 1.5, g.Integral(), 0.08)
}

func TestRejectIdempotent(t *testing.T) {
	g, err := NewGenerator(newCore(7))
	require.NoError(t, err)
	_, err = g.AddFunction(2, constant(1))
	require.NoError(t, err)

	for i := 0; i < 100; i++ {
		_, err := g.Generate()
		require.NoError(t, err)
	}
	n, bigN := g.NAcc(), g.N()
	point := g.LastPoint()
	_, err = g.Generate()
	require.NoError(t, err)
	require.Equal(t, n+1, g.NAcc())
	bigN2 := g.N()
	require.GreaterOrEqual(t, bigN2, bigN+1)
	last := g.LastPoint()

	g.Reject()
	require.Equal(t, n, g.NAcc())
	require.Equal(t, bigN2, g.N())
	require.Equal(t, last, g.LastPoint())
	require.NotEqual(t, point, last)

	g.Reject()
	require.Equal(t, n, g.NAcc(), "second reject of the same point must be a no-op")
	require.Equal(t, n, g.NOf(0))
}

func TestMultiFunctionSelection(t *testing.T) {
	g, err := NewGenerator(newCore(13))
	require.NoError(t, err)
	_, err = g.AddFunction(1, constant(1))
	require.NoError(t, err)
	_, err = g.AddFunction(2, constant(3))
	require.NoError(t, err)

	n := 100000
	first := 0
	for i := 0; i < n; i++ {
		idx, err := g.Generate()
		require.NoError(t, err)
		require.Equal(t, idx, g.Last())
		if idx == 0 {
			first++
		}
	}
	require.InDelta(t, 0.25, float64(first)/float64(n), 0.006)
	require.InDelta(t, 1.0, g.IntegralOf(0), 0.03)
	require.InDelta(t, 3.0, g.IntegralOf(1), 0.05)
}

func TestGenerateExhausted(t *testing.T) {
	g, err := NewGenerator(newCore(17), WithNTry(5), WithMaxTry(50))
	require.NoError(t, err)
	calls := 0
	// 初始化時為正，之後恆為 0
	fading := integrand.FuncOf(func(x []float64) float64 {
		calls++
		if calls <= 5 {
			return 1
		}
		return 0
	})
	ok, err := g.AddFunction(1, fading)
	require.NoError(t, err)
	require.True(t, ok)

	idx, err := g.Generate()
	require.Equal(t, -1, idx)
	require.True(t, errors.Is(err, errs.ErrExhausted))
	require.Equal(t, errs.Fatal, errs.Level(err))
	require.Equal(t, int64(50), g.N())
	require.Zero(t, g.NAcc())
}

func TestSpikeCompensation(t *testing.T) {
	const truth = 1 + 1000*0.002
	g := newSpikeGenerator(t, 21)

	before := 0.0
	for i := 0; i < 1_000_000 && !g.Compensating(); i++ {
		before = g.Integral()
		g.Try()
	}
	require.True(t, g.Compensating(), "the spike must be hit eventually")
	require.Greater(t, g.LastF(), 1000.0, "compensation starts at the call that lands in the spike")
	require.True(t, g.LastAccepted())
	require.Equal(t, 1, g.Compensations())
	require.Greater(t, g.MaxInt(), 1.1+1000*0.002)
	require.Greater(t, g.NBins(), 1)
	checkTree(t, g.Tree(0), 1)

	for i := 0; i < 1_000_000 && g.Compensating(); i++ {
		g.Try()
	}
	require.False(t, g.Compensating(), "compensation must retire")

	for g.N() < 400000 {
		g.Try()
		require.False(t, g.Compensating(), "flat spike is fully covered after one compensation")
	}
	after := g.Integral()
	require.Less(t, math.Abs(after-truth), math.Abs(before-truth))
	require.InDelta(t, truth, after, 0.06)
	require.Equal(t, 1, g.CompensationsOf(0))
}

func TestSnapshotRestore(t *testing.T) {
	a := newSpikeGenerator(t, 31)
	for i := 0; i < 3000; i++ {
		a.Try()
	}
	snap, err := a.Snapshot()
	require.NoError(t, err)

	b := newSpikeGenerator(t, 99)
	require.NoError(t, b.Restore(snap))
	require.Equal(t, a.N(), b.N())
	require.Equal(t, a.NAcc(), b.NAcc())
	require.Equal(t, a.NBins(), b.NBins())
	require.Equal(t, a.Levels(), b.Levels())
	require.InDelta(t, a.MaxInt(), b.MaxInt(), 1e-12)
	require.Equal(t, a.Flatten(0), b.Flatten(0))

	for i := 0; i < 2000; i++ {
		okA, _ := a.Try()
		okB, _ := b.Try()
		require.Equal(t, okA, okB)
		require.Equal(t, a.LastPoint(), b.LastPoint())
	}
	require.Equal(t, a.Compensating(), b.Compensating())

	c, err := NewGenerator(newCore(1))
	require.NoError(t, err)
	_, err = c.AddFunction(2, constant(1))
	require.NoError(t, err)
	require.Error(t, c.Restore(snap), "dimension mismatch")
	require.Error(t, c.Restore([]byte("not zstd")))
}

// patchSnapshot 解開快照、修改狀態後重新壓縮
func patchSnapshot(t *testing.T, snap []byte, patch func(st *genState)) []byte {
	t.Helper()
	zr, err := zstd.NewReader(bytes.NewReader(snap))
	require.NoError(t, err)
	defer zr.Close()
	raw, err := io.ReadAll(zr)
	require.NoError(t, err)
	var st genState
	require.NoError(t, json.Unmarshal(raw, &st))
	patch(&st)
	raw, err = json.Marshal(st)
	require.NoError(t, err)
	zw, err := zstd.NewWriter(nil)
	require.NoError(t, err)
	defer zw.Close()
	return zw.EncodeAll(raw, nil)
}

func TestRestoreFailureKeepsState(t *testing.T) {
	a := newSpikeGenerator(t, 31)
	for i := 0; i < 500; i++ {
		a.Try()
	}
	snap, err := a.Snapshot()
	require.NoError(t, err)

	bad := map[string][]byte{
		"negative g": patchSnapshot(t, snap, func(st *genState) {
			st.Functions[0].Cells[0].G = -5
			st.Attempted = 42
		}),
		"zero total": patchSnapshot(t, snap, func(st *genState) {
			st.Functions[0].Cells = []cell.Record{{G: 0, V: 1, Dim: -1, Lower: -1, Upper: -1}}
			st.Attempted = 42
		}),
		"counters": patchSnapshot(t, snap, func(st *genState) {
			st.Accepted = st.Attempted + 1
		}),
		"random source": patchSnapshot(t, snap, func(st *genState) {
			st.RNG = []byte{1, 2, 3}
			st.Attempted = 42
		}),
	}
	for name, data := range bad {
		b := newSpikeGenerator(t, 99)
		ref := newSpikeGenerator(t, 99)
		for i := 0; i < 10; i++ {
			b.Try()
			ref.Try()
		}
		n, acc, maxInt, tree := b.N(), b.NAcc(), b.MaxInt(), b.Flatten(0)

		require.Error(t, b.Restore(data), name)
		require.Equal(t, n, b.N(), name)
		require.Equal(t, acc, b.NAcc(), name)
		require.Equal(t, maxInt, b.MaxInt(), name)
		require.Equal(t, tree, b.Flatten(0), name)
		require.InDelta(t, b.Tree(0).MaxInt(), b.MaxInt(), 1e-12, name)

		// 亂數源也不可被動到
		for i := 0; i < 200; i++ {
			okB, _ := b.Try()
			okR, _ := ref.Try()
			require.Equal(t, okR, okB, name)
			require.Equal(t, ref.LastPoint(), b.LastPoint(), name)
		}
	}
}

func TestTailSeedResetsInsteadOfEndlessCompensation(t *testing.T) {
	const sigma = 0.01
	truth := sigma * math.Sqrt(2*math.Pi)
	gauss := integrand.FuncOf(func(x []float64) float64 {
		d := (x[0] - 0.5) / sigma
		return math.Exp(-0.5 * d * d)
	})
	for _, cheap := range []bool{false, true} {
		// 種子點全落在尾端 x=0.45，根節點的 g 只有 ~4e-6
		rnd := &scriptedRand{Core: newCore(41), fixed: true, at: 0.45}
		g, err := NewGenerator(rnd, WithNTry(5), WithCheapRandom(cheap))
		require.NoError(t, err)
		ok, err := g.AddFunction(1, gauss)
		require.NoError(t, err)
		require.True(t, ok)
		rnd.fixed = false
		require.Less(t, g.MaxInt(), 1e-5)

		for i := 0; i < 200000; i++ {
			g.Try()
			require.LessOrEqual(t, g.NAcc(), g.N())
		}
		require.GreaterOrEqual(t, g.Resets(), 1, "cheap=%v", cheap)
		for i := 0; i < 5_000_000 && g.Compensating(); i++ {
			g.Try()
		}
		require.False(t, g.Compensating(), "cheap=%v", cheap)
		require.InDelta(t, truth, g.Integral(), 0.1*truth, "cheap=%v", cheap)
	}
}
