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

package slicer

import (
	"math"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/zintix-labs/acdc/sdk/cell"
	"gonum.org/v1/gonum/floats/scalar"
)

const (
	eps    = 1e-10
	margin = 1.1
)

func spike1D(x []float64) float64 {
	if math.Abs(x[0]-0.5) < 0.05 {
		return 10
	}
	return 1
}

func requireConsistent(t *testing.T, root *cell.Cell, dim int, gOld float64) {
	t.Helper()
	root.RecomputeMaxInt()
	root.Walk(cell.UnitBox(dim), func(n *cell.Cell, box cell.Box) bool {
		if n.IsLeaf() {
			require.GreaterOrEqual(t, n.G(), gOld, "slicing must never lower an overestimate")
			return true
		}
		l, u := n.Lower(), n.Upper()
		require.True(t, scalar.EqualWithinAbsOrRel(n.V(), l.V()+u.V(), 1e-12, 1e-9))
		require.True(t, scalar.EqualWithinAbsOrRel(n.G()*n.V(), l.G()*l.V()+u.G()*u.V(), 1e-12, 1e-9))
		return true
	})
}

func TestSliceIsolatesSpike(t *testing.T) {
	root := cell.NewRoot(1.1)
	s := New(spike1D, eps, margin)
	res := s.Slice(root, cell.UnitBox(1), []float64{0.5}, 10)

	require.Equal(t, 2, res.Cuts)
	require.Zero(t, res.Restarts)
	require.InDelta(t, 11.0, res.Leaf.G(), 1e-12)
	require.LessOrEqual(t, res.Box.Lo[0], 0.45)
	require.GreaterOrEqual(t, res.Box.Up[0], 0.55)
	require.Less(t, res.Box.Width(0), 0.12)
	require.True(t, res.Box.Contains(res.Point))
	require.Equal(t, 3, root.CountLeaves())
	requireConsistent(t, root, 1, 1.1)

	// 樹上每個點的高估值都應蓋過函數值
	for i := 0; i <= 1000; i++ {
		x := []float64{float64(i) / 1000}
		leaf := root.Locate(x, cell.UnitBox(1))
		require.GreaterOrEqual(t, leaf.G(), spike1D(x), "x=%v", x[0])
	}
}

func TestSliceRestartsOnHigherPoint(t *testing.T) {
	peak := func(x []float64) float64 {
		return 1 + 9*math.Max(1-math.Abs(x[0]-0.7)/0.1, 0)
	}
	root := cell.NewRoot(1.1)
	x0 := []float64{0.65}
	f0 := peak(x0)
	res := New(peak, eps, margin).Slice(root, cell.UnitBox(1), x0, f0)

	require.GreaterOrEqual(t, res.Restarts, 1)
	require.Greater(t, res.FMax, f0)
	require.InDelta(t, peak(res.Point), res.FMax, 1e-12)
	require.True(t, res.Box.Contains(res.Point))
	require.InDelta(t, res.FMax*margin, res.Leaf.G(), 1e-12)
	require.Equal(t, []float64{0.65}, x0, "input point must not be modified")
	requireConsistent(t, root, 1, 1.1)
}

func TestRestartBudgetPerSlice(t *testing.T) {
	peak := func(x []float64) float64 {
		return 1 + 9*math.Max(1-math.Abs(x[0]-0.7)/0.1, 0)
	}
	s := New(peak, eps, margin, WithMaxRestart(2))
	x := []float64{0.65}
	f0 := peak(x)
	// 巢狀細分已累計 2 次重新搜尋，外層仍有自己的額度
	s.res = &Result{Point: x, FMax: f0, Restarts: 2}
	s.pt = make([]float64, 1)
	root := cell.NewRoot(1.1)
	leaf, box := s.slice(root, cell.UnitBox(1), x, f0, 0)

	require.Greater(t, s.res.Restarts, 2)
	require.Greater(t, s.res.FMax, f0)
	require.True(t, box.Contains(x))
	require.InDelta(t, s.res.FMax*margin, leaf.G(), 1e-12)
	requireConsistent(t, root, 1, 1.1)
}

func TestSliceDiagonalCorner(t *testing.T) {
	corner := func(x []float64) float64 {
		if x[0]+x[1] > 1.6 {
			return 10
		}
		return 1
	}
	root := cell.NewRoot(1.1)
	res := New(corner, eps, margin).Slice(root, cell.UnitBox(2), []float64{0.9, 0.9}, 10)

	require.GreaterOrEqual(t, res.Cuts, 4, "cuts of the nested remainders are counted too")
	require.Greater(t, root.CountLeaves(), 3, "the diagonal remainder must be sliced further")
	requireConsistent(t, root, 2, 1.1)

	for _, x := range [][]float64{{0.9, 0.9}, {0.68, 0.98}, {0.98, 0.68}} {
		leaf := root.Locate(x, cell.UnitBox(2))
		require.InDelta(t, 11.0, leaf.G(), 1e-12, "x=%v", x)
	}
	leaf := root.Locate([]float64{0.1, 0.1}, cell.UnitBox(2))
	require.InDelta(t, 1.1, leaf.G(), 1e-12)
}

func TestSliceBelowEps(t *testing.T) {
	root := cell.NewRoot(1)
	require.NoError(t, root.Split(0, 0.5, 0.5+1e-9, 0, 1e-12))
	root.RecomputeMaxInt()
	box := cell.Box{Lo: []float64{0.5}, Up: []float64{0.5 + 1e-9}}
	leaf := root.Upper()

	res := New(spike1D, 1e-6, margin).Slice(leaf, box, []float64{0.5 + 5e-10}, 10)
	require.Zero(t, res.Cuts)
	require.Same(t, leaf, res.Leaf)
	require.InDelta(t, 11.0, leaf.G(), 1e-12)
}

func TestOptions(t *testing.T) {
	s := New(spike1D, eps, margin, WithMaxBisect(3), WithMaxRestart(0), WithMaxBisect(-1))
	require.Equal(t, 3, s.maxBisect)
	require.Equal(t, 0, s.maxRestart)
}
