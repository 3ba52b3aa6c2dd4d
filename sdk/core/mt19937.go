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

package core

import (
	"math/bits"

	"gonum.org/v1/gonum/mathext/prng"
)

// MT19937PRNG 是 Mersenne Twister 的工廠（gonum mathext/prng）。
//
// 主要用於與其他 Monte Carlo 程式對照結果；一般模擬請用預設 PCG64。
type MT19937PRNG struct{}

func (m *MT19937PRNG) New(seed int64) PRNG {
	src := prng.NewMT19937()
	src.Seed(uint64(seed))
	return &MT19937{src: src}
}

// MT19937 將 gonum 的 MT19937 包成 PRNG。
type MT19937 struct {
	src *prng.MT19937
}

func (m *MT19937) Uint64() uint64 {
	return m.src.Uint64()
}

func (m *MT19937) Float64() float64 {
	return float64(m.src.Uint64()<<11>>11) / (1 << 53)
}

func (m *MT19937) IntN(max int) int {
	if max <= 0 {
		return -1
	}
	n := uint64(max)
	hi, lo := bits.Mul64(m.src.Uint64(), n)
	if lo < n {
		thresh := -n % n
		for lo < thresh {
			hi, lo = bits.Mul64(m.src.Uint64(), n)
		}
	}
	return int(hi)
}

func (m *MT19937) Snapshot() ([]byte, error) {
	return m.src.MarshalBinary()
}

func (m *MT19937) Restore(data []byte) error {
	return m.src.UnmarshalBinary(data)
}
