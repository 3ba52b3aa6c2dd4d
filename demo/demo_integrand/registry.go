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

// Package demo_integrand 提供示範用的被取樣函數，全部定義在 [0,1]^dim 上且多數具有解析積分，
// 方便比對取樣器的積分估計。
package demo_integrand

import (
	"log"

	"github.com/zintix-labs/acdc/sdk/integrand"
	"github.com/zintix-labs/acdc/spec"
)

// Integrands 為示範函數的註冊表
var Integrands = integrand.NewRegistry()

func init() {
	builders := map[spec.LogicKey]integrand.Builder{
		"const":  buildConst,
		"gauss":  buildGauss,
		"spike":  buildSpike,
		"corner": buildCorner,
		"power":  buildPower,
		"ridge":  buildRidge,
		"vanish": buildVanish,
	}
	for k, b := range builders {
		if err := Integrands.Register(k, b); err != nil {
			log.Fatalf("%s register failed: %v", k, err)
		}
	}
}
