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

// Package demo 把內建的示範設定檔與示範函數組裝成可直接使用的 Lab 與伺服器設定。
package demo

import (
	"github.com/zintix-labs/acdc"
	"github.com/zintix-labs/acdc/catalog"
	"github.com/zintix-labs/acdc/demo/demo_configs"
	"github.com/zintix-labs/acdc/demo/demo_integrand"
	"github.com/zintix-labs/acdc/errs"
	"github.com/zintix-labs/acdc/sdk/core"
	"github.com/zintix-labs/acdc/server/logger"
	"github.com/zintix-labs/acdc/server/svrcfg"
)

func New() (*catalog.Catalog, error) {
	return catalog.New(demo_configs.FS)
}

func NewServerConfig() (*svrcfg.SvrCfg, error) {
	log := logger.NewDefaultAsyncLogger(logger.ModeDev)
	lab, err := acdc.NewAuto(
		core.Default(),
		acdc.Configs(demo_configs.FS),
		acdc.Integrands(demo_integrand.Integrands),
		acdc.WithLabLogger(log),
	)
	if err != nil {
		return nil, errs.NewFatal("new lab failed:" + err.Error())
	}
	scfg := &svrcfg.SvrCfg{
		Log:        log,
		EngineSize: 1,
		Lab:        lab,
	}
	return scfg, nil
}

func NewLab(cf core.PRNGFactory) (*acdc.Lab, error) {
	return acdc.NewAuto(
		cf,
		acdc.Configs(demo_configs.FS),
		acdc.Integrands(demo_integrand.Integrands),
	)
}
