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
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cheggaaa/pb/v3"
	"github.com/zintix-labs/acdc/errs"
	"github.com/zintix-labs/acdc/recorder"
	"github.com/zintix-labs/acdc/sdk/core"
	"github.com/zintix-labs/acdc/sdk/integrand"
	"github.com/zintix-labs/acdc/spec"
	"github.com/zintix-labs/acdc/stats"
)

const capPrepare int = 64

// Simulator 對單一 run 做大量嘗試並統計積分、效率與補償。
//
// 每個 worker 持有獨立的 Engine（各自的 seed、切割樹與補償狀態），結束後合併報表。
// Engine 會跨呼叫保留，連續呼叫 Sim 會接續訓練同一批切割樹。
type Simulator struct {
	RunName   string
	RunID     spec.RunID
	rs        *spec.RunSetting
	reg       *integrand.Registry
	cf        core.PRNGFactory
	log       *slog.Logger
	initSeed  int64
	seedmaker *seedMaker
	eBuf      []*Engine
	rBuf      []*recorder.GenRecorder
}

func newSimulatorWithSeed(rs *spec.RunSetting, reg *integrand.Registry, cf core.PRNGFactory, seed int64, log *slog.Logger) (*Simulator, error) {
	s := &Simulator{
		RunName:   rs.RunName,
		RunID:     rs.RunID,
		rs:        rs,
		reg:       reg,
		cf:        cf,
		log:       log,
		initSeed:  seed,
		seedmaker: newSeedMaker(seed),
		eBuf:      make([]*Engine, 1, capPrepare),
		rBuf:      make([]*recorder.GenRecorder, 0, capPrepare),
	}
	// 第一台 Engine 直接使用初始 seed，單線模擬可由 seed 完全重現
	e, err := newEngineWithSeed(rs, reg, cf, seed, log)
	if err != nil {
		return nil, err
	}
	s.eBuf[0] = e
	return s, nil
}

// Engine 回傳第一台（單線模擬使用的）Engine
func (s *Simulator) Engine() *Engine { return s.eBuf[0] }

// Sim 單線模擬：以一台 Engine 連續做 trials 次嘗試，回傳統計結果與用時
func (s *Simulator) Sim(trials int, showpb bool) (*stats.StatReport, time.Duration, error) {
	defer s.reset()
	if trials < 1 {
		return nil, 0, errs.NewWarn("trials must > 0")
	}
	r, err := s.newRecorder(s.eBuf[0])
	if err != nil {
		return nil, 0, err
	}
	s.rBuf = append(s.rBuf, r)

	bar := pb.StartNew(trials)
	if !showpb {
		bar.SetWriter(io.Discard)
	}
	if err := runTrials(s.eBuf[0], r, trials, bar); err != nil {
		return nil, 0, err
	}
	used := time.Since(bar.StartTime())
	bar.Finish()
	return r.Done(), used, nil
}

// SimMP 平行執行 mp 台 Engine，每台 trials 次嘗試，合併統計結果後回傳
func (s *Simulator) SimMP(trials int, mp int, showpb bool) (*stats.StatReport, time.Duration, error) {
	defer s.reset()
	if mp <= 0 {
		return nil, 0, errs.NewWarn("workers must > 0")
	}
	if trials < 1 {
		return nil, 0, errs.NewWarn("trials must > 0")
	}
	for len(s.eBuf) < mp {
		e, err := newEngineWithSeed(s.rs, s.reg, s.cf, s.seedmaker.next(), s.log)
		if err != nil {
			return nil, 0, err
		}
		s.eBuf = append(s.eBuf, e)
	}
	for i := 0; i < mp; i++ {
		r, err := s.newRecorder(s.eBuf[i])
		if err != nil {
			return nil, 0, err
		}
		s.rBuf = append(s.rBuf, r)
	}

	wg := new(sync.WaitGroup)
	wg.Add(mp)
	bar := pb.StartNew(trials * mp)
	if !showpb {
		bar.SetWriter(io.Discard)
	}
	var (
		errOnce sync.Once
		simErr  error
	)
	for i := 0; i < mp; i++ {
		go func(i int) {
			defer wg.Done()
			if err := runTrials(s.eBuf[i], s.rBuf[i], trials, bar); err != nil {
				errOnce.Do(func() { simErr = err })
			}
		}(i)
	}
	wg.Wait()
	used := time.Since(bar.StartTime())
	bar.Finish()
	if simErr != nil {
		return nil, 0, simErr
	}

	merged, err := recorder.MergeGenRecorder(s.rBuf)
	if err != nil {
		return nil, 0, err
	}
	return merged.Done(), used, nil
}

func (s *Simulator) newRecorder(e *Engine) (*recorder.GenRecorder, error) {
	r, err := recorder.NewGenRecorder(s.RunName, s.RunID, e.Names())
	if err != nil {
		return nil, err
	}
	if v, ok := e.Exact(); ok {
		r.SetExact(v)
	}
	return r, nil
}

// runTrials 佔用 Engine 做 trials 次 Try，逐次紀錄並在結束時擷取最終狀態
func runTrials(e *Engine, r *recorder.GenRecorder, trials int, bar *pb.ProgressBar) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	g := e.gen
	for t := 0; t < trials; t++ {
		comp := g.Compensating()
		ok, idx := g.Try()
		r.Record(idx, ok, comp)
		bar.Increment()
	}
	return r.Finish(g)
}

func (s *Simulator) reset() {
	s.rBuf = s.rBuf[:0]
}

const mask63 = uint64(1<<63) - 1

type seedMaker struct {
	state atomic.Uint64 // always in [0, 2^63)
}

func newSeedMaker(seed int64) *seedMaker {
	s := &seedMaker{}
	s.state.Store(uint64(seed) & mask63)
	return s
}

// next 以全週期 LCG（mod 2^63）推進 state，再用可逆的 mix63 打散。
// 可能被多個 goroutine 同時呼叫（EnginePool 補機），因此以 CAS 推進。
func (s *seedMaker) next() int64 {
	for {
		old := s.state.Load()
		next := (old*6364136223846793005 + 1442695040888963407) & mask63
		if s.state.CompareAndSwap(old, next) {
			return int64(mix63(next))
		}
	}
}

// mix63：只用可逆的 bit 操作 + 乘奇數（mod 2^63）
func mix63(x uint64) uint64 {
	x &= mask63
	x ^= x >> 30
	x = (x * 0xBF58476D1CE4E5B9) & mask63
	x ^= x >> 27
	x = (x * 0x94D049BB133111EB) & mask63
	x ^= x >> 31
	return x & mask63
}
