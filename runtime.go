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
	"context"
	"sync"
	"sync/atomic"

	"github.com/zintix-labs/acdc/dto"
	"github.com/zintix-labs/acdc/errs"
	"github.com/zintix-labs/acdc/spec"
)

// Runtime 是服務用的 data-plane：每個 run 一個 EnginePool。
type Runtime struct {
	lab   *Lab
	pools map[spec.RunID]*EnginePool
	ids   []spec.RunID // 固定順序，用於觀測/列舉

	done      chan struct{}
	closeOnce sync.Once
	closed    atomic.Bool
	reason    atomic.Value // string

	poolSize int
}

// Sample 依 req.RunID 轉給對應的池
func (rt *Runtime) Sample(ctx context.Context, req *dto.SampleRequest) (dto.SampleResult, error) {
	select {
	case <-ctx.Done():
		return dto.SampleResult{}, errs.NewWarn("sample canceled/timeout: " + ctx.Err().Error())
	case <-rt.done:
		rt.closed.Store(true)
		return dto.SampleResult{}, errs.NewFatal("runtime closed: " + rt.ClosedReason())
	default:
	}
	if req == nil {
		return dto.SampleResult{}, errs.NewWarn("nil sample request")
	}
	p, ok := rt.pools[req.RunID]
	if !ok {
		return dto.SampleResult{}, errs.NewWarn("run id not found")
	}
	return p.Sample(ctx, req)
}

// Lab 回傳建立此 Runtime 的 Lab（sim / tree 等非池化操作用）
func (rt *Runtime) Lab() *Lab { return rt.lab }

func (rt *Runtime) IDs() []spec.RunID { return append([]spec.RunID(nil), rt.ids...) }

// Metrics 依 IDs 順序回傳各池的觀測快照
func (rt *Runtime) Metrics() []EnginePoolMetrics {
	ms := make([]EnginePoolMetrics, 0, len(rt.ids))
	for _, id := range rt.ids {
		ms = append(ms, rt.pools[id].Metrics())
	}
	return ms
}

// Close 關閉 runtime 與所有池，可重複呼叫。
func (rt *Runtime) Close() {
	rt.closeWithReason("closed")
}

func (rt *Runtime) closeWithReason(reason string) {
	rt.closeOnce.Do(func() {
		if reason == "" {
			reason = "closed"
		}
		rt.reason.Store(reason)
		rt.closed.Store(true)
		close(rt.done)
		for _, p := range rt.pools {
			p.closeWithReason(reason)
		}
	})
}

// Done 在 runtime 關閉後被 close
func (rt *Runtime) Done() <-chan struct{} { return rt.done }

func (rt *Runtime) Closed() bool {
	return rt.closed.Load()
}

func (rt *Runtime) ClosedReason() string {
	if s, ok := rt.reason.Load().(string); ok {
		return s
	}
	return ""
}
