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

// Package integrand 定義被取樣函數的介面與名稱註冊表。
package integrand

import (
	"fmt"

	"github.com/zintix-labs/acdc/errs"
	"github.com/zintix-labs/acdc/spec"
)

// Func 是被取樣的函數，x 的長度等於宣告的維度，回傳值需非負且對同一點結果固定。
type Func interface {
	Eval(x []float64) float64
}

// FuncOf 讓一般函數滿足 Func
type FuncOf func(x []float64) float64

func (f FuncOf) Eval(x []float64) float64 { return f(x) }

// Exact 由已知解析積分的函數實作（demo 與測試用來比對估計值）。
type Exact interface {
	Integral() float64
}

// Builder 依設定建立函數。每次呼叫都需回傳新的實例（不同 Generator 不共享狀態）。
type Builder func(fs *spec.FunctionSetting) (Func, error)

type Registry struct {
	builders map[spec.LogicKey]Builder
}

func NewRegistry() *Registry {
	return &Registry{
		builders: make(map[spec.LogicKey]Builder, 16),
	}
}

func (r *Registry) Register(lkey spec.LogicKey, b Builder) error {
	if b == nil {
		return errs.NewFatal(fmt.Sprintf("nil builder: %s", lkey))
	}
	if _, ok := r.builders[lkey]; ok {
		return errs.NewFatal(fmt.Sprintf("duplicate integrand builder: %s", lkey))
	}
	r.builders[lkey] = b
	return nil
}

func (r *Registry) Build(fs *spec.FunctionSetting) (Func, error) {
	b, ok := r.builders[fs.LogicKey]
	if !ok {
		return nil, errs.NewFatal(fmt.Sprintf("integrand is not exist: %s", fs.LogicKey))
	}
	f, err := b(fs)
	if err != nil {
		return nil, errs.Wrap(err, fmt.Sprintf("build integrand %s", fs.LogicKey))
	}
	return f, nil
}

func (r *Registry) IsExist(lkey spec.LogicKey) bool {
	_, ok := r.builders[lkey]
	return ok
}

// Keys 回傳已註冊的 key（不保證順序）
func (r *Registry) Keys() []spec.LogicKey {
	out := make([]spec.LogicKey, 0, len(r.builders))
	for k := range r.builders {
		out = append(out, k)
	}
	return out
}

// MergeRegistry 合併多個註冊表；重複的 key 一律視為錯誤。
func MergeRegistry(regs ...*Registry) (*Registry, error) {
	out := NewRegistry()
	origin := make(map[spec.LogicKey]int, 16)
	for i, r := range regs {
		if r == nil {
			continue
		}
		for lkey, b := range r.builders {
			if _, ok := out.builders[lkey]; ok {
				return nil, errs.NewFatal(fmt.Sprintf("duplicate logic key %s (registry #%d and #%d)", lkey, origin[lkey], i))
			}
			out.builders[lkey] = b
			origin[lkey] = i
		}
	}
	return out, nil
}
