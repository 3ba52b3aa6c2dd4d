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
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/zintix-labs/acdc/dto"
	"github.com/zintix-labs/acdc/errs"
	"github.com/zintix-labs/acdc/sdk/core"
	"github.com/zintix-labs/acdc/sdk/integrand"
	"github.com/zintix-labs/acdc/spec"
)

// EnginePool 管理「某一個 run」的所有 Engine 實例。
// 它透過兩個通道管理 Engine 生命週期：
//  1. pool：健康且可用的 Engine，供 Sample() 借出 / 歸還。
//  2. broken：發生 panic 或 fatal error（例如 maxTry 用盡）的 Engine，送往此通道後丟棄。
//
// 壞掉的 Engine 會立即以新 seed 補上一台，維持容量。
// 注意：池中每台 Engine 各自持有一棵切割樹，彼此不共享補償狀態。
type EnginePool struct {
	runName       string
	runID         spec.RunID
	rs            *spec.RunSetting
	reg           *integrand.Registry
	cf            core.PRNGFactory
	log           *slog.Logger
	seedMaker     *seedMaker
	pool          chan *Engine
	broken        chan *Engine
	done          chan struct{}
	closeOnce     sync.Once
	poolsize      int
	rebuild       atomic.Int32 // 補機次數
	inflight      atomic.Int32 // 使用中
	panics        atomic.Int32
	fatals        atomic.Int32
	closeReason   atomic.Value // string
	closeInflight atomic.Int32 // 關閉當下 inflight（快照）
	closeAvail    atomic.Int32
	closeBroken   atomic.Int32
}

// newEnginePool 建立指定 run 的池，預先建立 n 台（至少 1 台）Engine。
func newEnginePool(n int, rs *spec.RunSetting, reg *integrand.Registry, cf core.PRNGFactory, seed int64, log *slog.Logger) (*EnginePool, error) {
	n = max(1, n)
	p := &EnginePool{
		runName:   rs.RunName,
		runID:     rs.RunID,
		rs:        rs,
		reg:       reg,
		cf:        cf,
		log:       log,
		seedMaker: newSeedMaker(seed),
		pool:      make(chan *Engine, n),
		broken:    make(chan *Engine, 100),
		done:      make(chan struct{}),
		poolsize:  n,
	}
	p.closeReason.Store("")
	p.closeInflight.Store(-1)
	p.closeAvail.Store(-1)
	p.closeBroken.Store(-1)

	for i := 0; i < n; i++ {
		e, err := newEngineWithSeed(rs, reg, cf, p.seedMaker.next(), log)
		if err != nil {
			return nil, err
		}
		p.pool <- e
	}
	return p, nil
}

// Close 進入關閉狀態，之後所有 Sample() 直接回 error
func (p *EnginePool) Close() {
	p.closeWithReason("closed")
}

// Closed 回報池是否已進入關閉狀態。
func (p *EnginePool) Closed() bool {
	select {
	case <-p.done:
		return true
	default:
		return false
	}
}

// closeWithReason 進入關閉狀態並記錄原因（reason 只會被寫入一次）
func (p *EnginePool) closeWithReason(reason string) {
	p.closeOnce.Do(func() {
		if reason == "" {
			reason = "closed"
		}
		p.closeReason.Store(reason)
		p.closeInflight.Store(p.inflight.Load())
		p.closeAvail.Store(int32(len(p.pool)))
		p.closeBroken.Store(int32(len(p.broken)))
		close(p.done)
		p.log.Info("engine pool closed", slog.String("run", p.runName), slog.String("reason", reason))
	})
}

// isFatalErr 判斷本次錯誤是否代表 Engine 狀態不可信。
// request/validation 類錯誤（Warn）不淘汰 Engine；只有 Fatal 才淘汰。
func isFatalErr(err error) bool {
	return err != nil && errs.Level(err) == errs.Fatal
}

// Sample 借出一台 Engine 執行取樣並歸還
func (p *EnginePool) Sample(ctx context.Context, req *dto.SampleRequest) (res dto.SampleResult, err error) {
	var e *Engine
	// 關閉後 done 與 pool 可能同時就緒，先確認 done
	if p.Closed() {
		return res, errs.NewFatal("engine pool closed: " + p.ClosedReason())
	}
	select {
	case <-p.done:
		return res, errs.NewFatal("engine pool closed: " + p.ClosedReason())
	case <-ctx.Done():
		return res, errs.NewWarn("sample canceled/timeout: " + ctx.Err().Error())
	case e = <-p.pool:
		p.inflight.Add(1)
	}
	if e == nil {
		return res, errs.NewFatal("engine pool got nil engine")
	}

	defer func() {
		p.inflight.Add(-1)
		isPanic := false
		if r := recover(); r != nil {
			isPanic = true
			p.panics.Add(1)
			err = errs.NewFatal(fmt.Sprintf("engine %s panic : %v", e.runName, r))
		}
		if p.Closed() {
			return
		}
		if isPanic || isFatalErr(err) {
			if !isPanic {
				p.fatals.Add(1)
			}
			p.replace(e, err)
			return
		}
		select {
		case <-p.done:
		case p.pool <- e:
		}
	}()

	return e.Sample(req)
}

// replace 送修壞機並補上一台新 Engine；補機失敗或 broken 滿載時關閉整個池。
func (p *EnginePool) replace(bad *Engine, cause error) {
	p.log.Warn("engine broken", slog.String("run", p.runName), slog.Int64("seed", bad.initseed), slog.Any("err", cause))
	select {
	case p.broken <- bad:
	default:
		p.closeWithReason("overwhelmed_by_failures")
		return
	}
	fresh, err := newEngineWithSeed(p.rs, p.reg, p.cf, p.seedMaker.next(), p.log)
	p.rebuild.Add(1)
	if err != nil {
		p.closeWithReason("rebuild_failed")
		return
	}
	select {
	case <-p.done:
	case p.pool <- fresh:
	}
}

func (p *EnginePool) PoolSize() int { return p.poolsize }

func (p *EnginePool) Inflight() int { return int(p.inflight.Load()) }

func (p *EnginePool) Available() int { return len(p.pool) }

func (p *EnginePool) ClosedReason() string {
	if s, ok := p.closeReason.Load().(string); ok {
		return s
	}
	return ""
}

// EnginePoolMetrics 是拉取式（pull）的觀測快照；Available / BrokenBacklog 來自 len(chan)，高併發下為近似值。
type EnginePoolMetrics struct {
	RunName       string     `json:"run_name"`
	RunID         spec.RunID `json:"run_id"`
	PoolSize      int        `json:"pool_size"`
	Available     int        `json:"available"`
	Inflight      int        `json:"inflight"`
	BrokenBacklog int        `json:"broken_backlog"`
	Rebuild       int        `json:"rebuild"`
	Panics        int        `json:"panics"`
	Fatals        int        `json:"fatals"`
	Closed        bool       `json:"closed"`
	CloseReason   string     `json:"close_reason"`
	CloseInflight int        `json:"close_inflight"` // -1 表示尚未關閉
	CloseAvail    int        `json:"close_avail"`
	CloseBroken   int        `json:"close_broken"`
}

func (p *EnginePool) Metrics() EnginePoolMetrics {
	return EnginePoolMetrics{
		RunName:       p.runName,
		RunID:         p.runID,
		PoolSize:      p.poolsize,
		Available:     len(p.pool),
		Inflight:      int(p.inflight.Load()),
		BrokenBacklog: len(p.broken),
		Rebuild:       int(p.rebuild.Load()),
		Panics:        int(p.panics.Load()),
		Fatals:        int(p.fatals.Load()),
		Closed:        p.Closed(),
		CloseReason:   p.ClosedReason(),
		CloseInflight: int(p.closeInflight.Load()),
		CloseAvail:    int(p.closeAvail.Load()),
		CloseBroken:   int(p.closeBroken.Load()),
	}
}
