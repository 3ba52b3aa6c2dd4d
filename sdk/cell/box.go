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

package cell

import (
	"slices"

	"github.com/zintix-labs/acdc/errs"
)

// Box 是超立方體內的一個軸對齊區間 [Lo, Up]。
type Box struct {
	Lo []float64 `json:"lo"`
	Up []float64 `json:"up"`
}

// UnitBox 回傳 [0,1]^dim
func UnitBox(dim int) Box {
	b := Box{Lo: make([]float64, dim), Up: make([]float64, dim)}
	for d := range b.Up {
		b.Up[d] = 1
	}
	return b
}

func (b Box) Dim() int { return len(b.Lo) }

// Clone 深拷貝，下降過程會就地修改邊界，呼叫端需要保留原值時使用。
func (b Box) Clone() Box {
	return Box{Lo: slices.Clone(b.Lo), Up: slices.Clone(b.Up)}
}

// CopyFrom 將 src 的邊界寫入 b（長度需一致），避免重複配置。
func (b Box) CopyFrom(src Box) {
	copy(b.Lo, src.Lo)
	copy(b.Up, src.Up)
}

// Reset 就地把 b 設回單位超立方體
func (b Box) Reset() {
	for d := range b.Lo {
		b.Lo[d], b.Up[d] = 0, 1
	}
}

func (b Box) Width(d int) float64 { return b.Up[d] - b.Lo[d] }

// Volume 回傳相對於單位超立方體的體積
func (b Box) Volume() float64 {
	v := 1.0
	for d := range b.Lo {
		v *= b.Up[d] - b.Lo[d]
	}
	return v
}

func (b Box) Contains(x []float64) bool {
	if len(x) != len(b.Lo) {
		return false
	}
	for d, xd := range x {
		if xd < b.Lo[d] || xd > b.Up[d] {
			return false
		}
	}
	return true
}

// Clamp 將 x 夾回 box 之內（浮點縮放後可能超出一個 ulp）。
func (b Box) Clamp(x []float64) {
	for d := range x {
		x[d] = min(max(x[d], b.Lo[d]), b.Up[d])
	}
}

// NearestCorner 寫入 dst：每一維取離 x 較近的那一側邊界。
func (b Box) NearestCorner(x, dst []float64) {
	for d := range dst {
		if x[d]-b.Lo[d] <= b.Up[d]-x[d] {
			dst[d] = b.Lo[d]
		} else {
			dst[d] = b.Up[d]
		}
	}
}

// Validate 檢查 box 落在單位超立方體內且每一維 Lo <= Up。
func (b Box) Validate() error {
	if len(b.Lo) == 0 || len(b.Lo) != len(b.Up) {
		return errs.Wrap(errs.ErrBadDim, "box dimension mismatch")
	}
	for d := range b.Lo {
		if !(b.Lo[d] >= 0 && b.Lo[d] <= b.Up[d] && b.Up[d] <= 1) {
			return errs.Warnf("box out of unit cube at dim %d: [%v, %v]", d, b.Lo[d], b.Up[d])
		}
	}
	return nil
}
