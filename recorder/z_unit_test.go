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

package recorder_test

import (
	"math"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/zintix-labs/acdc/recorder"
)

// fakeSource 固定回傳值的產生器狀態
type fakeSource struct {
	n, acc  int64
	maxInt  float64
	fnAcc   []int64
	compens int
}

func (f *fakeSource) N() int64                  { return f.n }
func (f *fakeSource) NAcc() int64               { return f.acc }
func (f *fakeSource) MaxInt() float64           { return f.maxInt }
func (f *fakeSource) Compensating() bool        { return false }
func (f *fakeSource) Compensations() int        { return f.compens }
func (f *fakeSource) NBins() int                { return 5 }
func (f *fakeSource) Depth() int                { return 3 }
func (f *fakeSource) NFunctions() int           { return len(f.fnAcc) }
func (f *fakeSource) Name(i int) string         { return "f" }
func (f *fakeSource) NOf(i int) int64           { return f.fnAcc[i] }
func (f *fakeSource) NAttemptedOf(i int) int64  { return f.n / int64(len(f.fnAcc)) }
func (f *fakeSource) MaxIntOf(i int) float64    { return f.maxInt / float64(len(f.fnAcc)) }
func (f *fakeSource) CompensationsOf(i int) int { return 0 }

func TestRecordAndDone(t *testing.T) {
	r, err := recorder.NewGenRecorder("run", 1, []string{"a", "b"})
	require.NoError(t, err)
	r.Record(0, true, false)
	r.Record(1, false, true)
	r.Record(-1, false, false)
	require.Equal(t, int64(3), r.Basic.Trials)
	require.Equal(t, int64(1), r.Basic.Accepted)
	require.Equal(t, int64(1), r.Basic.CompTrials)
	require.Equal(t, []int64{1, 1}, r.Basic.Picked)

	require.NoError(t, r.Finish(&fakeSource{n: 100, acc: 40, maxInt: 2.5, fnAcc: []int64{10, 30}, compens: 2}))
	rep := r.Done()
	require.InDelta(t, 1.0, rep.Summary.Integral, 1e-12)
	require.Equal(t, 2, rep.Summary.Compensations)
	require.InDelta(t, 0.75, rep.Functions[1].Share, 1e-12)
	require.Equal(t, 5, rep.Tree.Bins)
}

func TestFinishMismatch(t *testing.T) {
	r, err := recorder.NewGenRecorder("run", 1, []string{"a"})
	require.NoError(t, err)
	require.Error(t, r.Finish(&fakeSource{n: 1, fnAcc: []int64{0, 0}}))

	_, err = recorder.NewGenRecorder("run", 1, nil)
	require.Error(t, err)
}

func TestMerge(t *testing.T) {
	mk := func(maxInt float64, acc int64) *recorder.GenRecorder {
		r, err := recorder.NewGenRecorder("run", 1, []string{"a"})
		require.NoError(t, err)
		r.SetExact(1)
		r.Record(0, true, false)
		require.NoError(t, r.Finish(&fakeSource{n: 1000, acc: acc, maxInt: maxInt, fnAcc: []int64{acc}}))
		return r
	}
	m, err := recorder.MergeGenRecorder([]*recorder.GenRecorder{mk(2, 500), mk(2, 520)})
	require.NoError(t, err)
	require.Len(t, m.Workers, 2)
	require.Equal(t, int64(2), m.Basic.Trials)

	rep := m.Done()
	require.InDelta(t, 1.02, rep.Summary.Integral, 1e-12)
	require.NotNil(t, rep.Workers)
	require.NotNil(t, rep.Summary.Pull)
	require.False(t, math.IsNaN(*rep.Summary.Pull))

	other, err := recorder.NewGenRecorder("other", 1, []string{"a"})
	require.NoError(t, err)
	_, err = recorder.MergeGenRecorder([]*recorder.GenRecorder{mk(1, 1), other})
	require.Error(t, err)

	_, err = recorder.MergeGenRecorder(nil)
	require.Error(t, err)
}

func TestValid(t *testing.T) {
	r, err := recorder.NewGenRecorder("run", 1, []string{"a", "b"})
	require.NoError(t, err)
	require.NoError(t, r.Finish(&fakeSource{n: 10, acc: 4, maxInt: 1, fnAcc: []int64{1, 3}}))
	require.NoError(t, r.Valid())

	r.Basic = nil
	require.Error(t, r.Valid())

	bad := &recorder.GenRecorder{Names: []string{"a"}, Basic: &recorder.BasicRecord{Picked: []int64{0}}}
	require.NoError(t, bad.Valid())
	bad.Workers = append(bad.Workers, r.Workers...)
	require.Error(t, bad.Valid())
}
