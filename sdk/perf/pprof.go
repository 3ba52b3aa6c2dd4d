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

// Package perf 以 pprof 包住一次執行（cmd/run 的 -p 旗標）。
package perf

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"runtime/pprof"

	"github.com/zintix-labs/acdc/errs"
)

// DefaultDir pprof 檔案寫入路徑
const DefaultDir = "build/profiling"

// RunPProf 依 mode 決定執行哪種 profiling：""（不做）、cpu、heap、allocs
func RunPProf(exe func(), mode string) error {
	return RunPProfTo(DefaultDir, exe, mode)
}

// RunPProfTo 同 RunPProf，輸出到 dir
func RunPProfTo(dir string, exe func(), mode string) error {
	switch mode {
	case "":
		exe()
		return nil
	case "cpu":
		return PProfCPU(dir, exe)
	case "heap":
		return PProfHeap(dir, exe)
	case "allocs":
		return PProfAllocs(dir, exe)
	default:
		return errs.NewWarn(fmt.Sprintf("unknown pprof mode %q", mode))
	}
}

// PProfCPU 對 exe 做 CPU profiling，輸出 dir/cpu.pprof
//
// 可以作性能分析，也可以拿來做構建時給pgo的優化blueprint
//
//	go run ./cmd/run -run 2 -p cpu
func PProfCPU(dir string, exe func()) error {
	f, err := create(dir, "cpu.pprof")
	if err != nil {
		return err
	}
	defer f.Close()
	if err := pprof.StartCPUProfile(f); err != nil {
		return errs.Wrap(err, "failed to start pprof")
	}
	defer pprof.StopCPUProfile()

	exe()
	return nil
}

// PProfHeap 在 exe() 執行完後寫出一次 Heap Snapshot（in-use memory），輸出 dir/heap.pprof
// 寫出前先 runtime.GC()，讓 Live Objects 貼近最新狀態。
func PProfHeap(dir string, exe func()) error {
	exe()

	runtime.GC()

	f, err := create(dir, "heap.pprof")
	if err != nil {
		return err
	}
	defer f.Close()
	if err := pprof.WriteHeapProfile(f); err != nil {
		return errs.Wrap(err, "failed to write heap profile")
	}
	return nil
}

// PProfAllocs 在 exe() 後寫出累積配置 Profile（-alloc_space / -alloc_objects），輸出 dir/allocs.pprof
func PProfAllocs(dir string, exe func()) error {
	exe()

	f, err := create(dir, "allocs.pprof")
	if err != nil {
		return err
	}
	defer f.Close()
	if prof := pprof.Lookup("allocs"); prof != nil {
		if err := prof.WriteTo(f, 0); err != nil {
			return errs.Wrap(err, "failed to write allocs profile")
		}
	}
	return nil
}

func create(dir, name string) (*os.File, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, errs.Wrap(err, "failed to create pprof dir")
	}
	f, err := os.Create(filepath.Join(dir, name))
	if err != nil {
		return nil, errs.Wrap(err, "failed to create "+name)
	}
	return f, nil
}
