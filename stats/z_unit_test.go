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

package stats_test

import (
	"bytes"
	"encoding/json"
	"math"
	"strings"
	"testing"

	"github.com/zintix-labs/acdc/spec"
	"github.com/zintix-labs/acdc/stats"
	"gopkg.in/yaml.v3"
)

func sample(maxInt float64, att, acc int64, fnAcc ...int64) stats.WorkerSample {
	w := stats.WorkerSample{MaxInt: maxInt, Attempted: att, Accepted: acc, Bins: 3, Depth: 2}
	for _, a := range fnAcc {
		w.Functions = append(w.Functions, stats.FunctionSample{Accepted: a, MaxInt: maxInt / float64(len(fnAcc))})
	}
	return w
}

func TestSingleWorker(t *testing.T) {
	r := stats.NewStatReport("t", spec.RunID(3), []string{"a", "b"}, []stats.WorkerSample{sample(2, 1000, 500, 100, 400)}, nil)
	r.Done()
	s := r.Summary
	if s.Integral != 1 {
		t.Fatalf("integral = %v, want 1", s.Integral)
	}
	wantErr := 2 * math.Sqrt(0.25/1000)
	if math.Abs(s.IntegralErr-wantErr) > 1e-12 {
		t.Fatalf("err = %v, want %v", s.IntegralErr, wantErr)
	}
	if s.Efficiency != 0.5 {
		t.Fatalf("efficiency = %v", s.Efficiency)
	}
	if !(s.EfficiencyCI.Lo < 0.5 && s.EfficiencyCI.Hi > 0.5) {
		t.Fatalf("efficiency CI %+v does not cover 0.5", s.EfficiencyCI)
	}
	if !(s.IntegralCI.Lo < 1 && s.IntegralCI.Hi > 1) {
		t.Fatalf("integral CI %+v does not cover 1", s.IntegralCI)
	}
	if r.Workers != nil {
		t.Fatalf("single worker should not report spread")
	}
	if got := r.Functions[0].Integral + r.Functions[1].Integral; math.Abs(got-1) > 1e-12 {
		t.Fatalf("function integrals sum to %v", got)
	}
	if r.Functions[1].Share != 0.8 {
		t.Fatalf("share = %v", r.Functions[1].Share)
	}
	if s.Pull != nil {
		t.Fatalf("pull without exact value")
	}
}

func TestMultiWorker(t *testing.T) {
	exact := 1.0
	r := stats.NewStatReport("t", 0, []string{"a"}, []stats.WorkerSample{
		sample(2, 1000, 500, 500),
		sample(4, 1000, 300, 300),
	}, &exact)
	r.Done()
	r.Done() // 重複呼叫不可重算
	s := r.Summary
	if math.Abs(s.Integral-1.1) > 1e-12 {
		t.Fatalf("integral = %v, want 1.1", s.Integral)
	}
	if s.Attempted != 2000 || s.Accepted != 800 {
		t.Fatalf("counts = %d/%d", s.Accepted, s.Attempted)
	}
	if s.MaxInt != 3 {
		t.Fatalf("max int = %v", s.MaxInt)
	}
	if r.Workers == nil || r.Workers.Workers != 2 || r.Workers.IntegralStd <= 0 {
		t.Fatalf("worker spread = %+v", r.Workers)
	}
	if s.Pull == nil || *s.Pull <= 0 {
		t.Fatalf("pull = %v", s.Pull)
	}
	if r.Tree.Bins != 3 || r.Tree.Depth != 2 {
		t.Fatalf("tree = %+v", r.Tree)
	}
}

func TestEmptyReport(t *testing.T) {
	r := stats.NewStatReport("t", 0, nil, nil, nil)
	r.Done()
	if r.Summary.Integral != 0 || r.Summary.EfficiencyCI.Hi != 1 {
		t.Fatalf("empty report = %+v", r.Summary)
	}
}

func TestEfficiencyBounds(t *testing.T) {
	r := stats.NewStatReport("t", 0, nil, []stats.WorkerSample{sample(1, 100, 100)}, nil)
	r.Done()
	if r.Summary.EfficiencyCI.Hi != 1 || r.Summary.EfficiencyCI.Lo >= 1 {
		t.Fatalf("ci = %+v", r.Summary.EfficiencyCI)
	}
	r = stats.NewStatReport("t", 0, nil, []stats.WorkerSample{sample(1, 100, 0)}, nil)
	r.Done()
	if r.Summary.EfficiencyCI.Lo != 0 || r.Summary.EfficiencyCI.Hi <= 0 {
		t.Fatalf("ci = %+v", r.Summary.EfficiencyCI)
	}
}

func TestRenders(t *testing.T) {
	r := stats.NewStatReport("render", 1, []string{"f"}, []stats.WorkerSample{sample(1, 10, 5, 5)}, nil)

	var buf bytes.Buffer
	if err := r.WriteWith(&buf, &stats.JsonStatReportRender{}); err != nil {
		t.Fatal(err)
	}
	var back stats.StatReport
	if err := json.Unmarshal(buf.Bytes(), &back); err != nil {
		t.Fatal(err)
	}
	if back.Summary.RunName != "render" || back.Summary.Accepted != 5 {
		t.Fatalf("json = %+v", back.Summary)
	}

	buf.Reset()
	yr, err := stats.RenderOf("yaml")
	if err != nil {
		t.Fatal(err)
	}
	if err := r.WriteWith(&buf, yr); err != nil {
		t.Fatal(err)
	}
	var m map[string]any
	if err := yaml.Unmarshal(buf.Bytes(), &m); err != nil {
		t.Fatal(err)
	}
	if _, ok := m["summary"]; !ok {
		t.Fatalf("yaml missing summary:\n%s", buf.String())
	}

	buf.Reset()
	tr, _ := stats.RenderOf("table")
	if err := r.WriteWith(&buf, tr); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(buf.String(), "Efficiency") {
		t.Fatalf("table:\n%s", buf.String())
	}

	if _, err := stats.RenderOf("xml"); err == nil {
		t.Fatal("want error for unknown format")
	}
}

func TestWriteYAMLFlowLists(t *testing.T) {
	v := struct {
		Lo []float64 `yaml:"lo"`
	}{Lo: []float64{0, 0.5}}
	var buf bytes.Buffer
	if err := stats.WriteYAML(&buf, &v); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(buf.String(), "[0, 0.5]") {
		t.Fatalf("want flow list, got:\n%s", buf.String())
	}
}
