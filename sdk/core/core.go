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

// Package core 提供取樣器使用的亂數核心。
//
// 取樣器只依賴少數幾個亂數原語（見 Core 的方法）：
//   - Uniform：(0,1) 開區間均勻亂數
//   - UniformIn：(lo,hi) 均勻亂數
//   - FillUniform：一次填滿 D 維均勻亂數
//   - Bool / BoolOdds：依機率 / 依賠率回傳布林
//   - IntN：[0,n) 整數
//
// 亂數來源本身（PRNG）由外部注入，Core 不持有其生命週期之外的任何全域狀態。
package core

import "math"

// PRNG 定義 Core 所需的亂數來源，需同時支援取樣與狀態保存/還原。
type PRNG interface {
	RAND
	Restorable
}

// Restorable 定義可快照與還原的狀態介面。
type Restorable interface {
	// Snapshot 回傳可用於還原的序列化狀態。
	Snapshot() ([]byte, error)
	// Restore 依序列化狀態還原 PRNG 內部狀態。
	Restore([]byte) error
}

// RAND 定義核心亂數取樣能力。
//
// Float64 的精度（32-bit 或 53-bit）由 PRNG 自行決定；IntN 的 bounded 策略亦同。
type RAND interface {
	// Uint64 回傳非負 uint64 亂數。
	Uint64() uint64
	// Float64 回傳 [0,1) 的浮點亂數。
	Float64() float64
	// IntN 回傳 [0,max) 的 int 亂數，若 max <= 0 回傳 -1。
	IntN(int) int
}

// PRNGFactory 以 seed 建立 PRNG。
//
// 合約：相同實作、相同 seed 必須產生相同的輸出序列（可重現）。
type PRNGFactory interface {
	New(int64) PRNG
}

// DefaultPRNG 預設工廠（PCG64）。
type DefaultPRNG struct{}

func (d *DefaultPRNG) New(seed int64) PRNG {
	return newPCG64WithSeed(seed)
}

func Default() *DefaultPRNG {
	return &DefaultPRNG{}
}

// Factory 依名稱取得 PRNG 工廠：pcg64（預設）、pcg32、mt19937。
func Factory(name string) (PRNGFactory, bool) {
	switch name {
	case "", "pcg64":
		return Default(), true
	case "pcg32":
		return &PCG32PRNG{}, true
	case "mt19937":
		return &MT19937PRNG{}, true
	default:
		return nil, false
	}
}

// Core 封裝 PRNG，並提供取樣器需要的亂數原語。
//
// Core 不是併發安全的；每個 Generator 應獨佔一個 Core。
type Core struct {
	PRNG
}

// New 允許使用外部自實現的 PRNG 建立 Core。
func New(rng PRNG) *Core {
	return &Core{rng}
}

// Uniform 回傳 (0,1) 開區間的均勻亂數（52-bit 格點取中點，永不為 0 或 1）。
// 最大值為 1-2^-53，可精確表示。
func (c *Core) Uniform() float64 {
	return (float64(c.Uint64()>>12) + 0.5) * 0x1p-52
}

// UniformIn 回傳 (lo,hi) 的均勻亂數。
func (c *Core) UniformIn(lo, hi float64) float64 {
	return lo + (hi-lo)*c.Uniform()
}

// FillUniform 以 (0,1) 均勻亂數填滿 dst。
func (c *Core) FillUniform(dst []float64) {
	for i := range dst {
		dst[i] = c.Uniform()
	}
}

// Bool 以機率 p 回傳 true。p <= 0 必為 false，p >= 1 必為 true。
func (c *Core) Bool(p float64) bool {
	return c.Uniform() < p
}

// BoolOdds 回傳 true 的機率為 p1/(p1+p2)。
// 兩者皆為 0（或總和非正）時平分機率，避免除以零。
func (c *Core) BoolOdds(p1, p2 float64) bool {
	sum := p1 + p2
	if !(sum > 0) || math.IsInf(sum, 0) {
		return c.IntN(2) == 0
	}
	return c.Bool(p1 / sum)
}
