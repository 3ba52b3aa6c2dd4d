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

package api

import (
	"log/slog"

	"github.com/zintix-labs/acdc/server/api/dev"
	"github.com/zintix-labs/acdc/server/api/index"
	v1 "github.com/zintix-labs/acdc/server/api/v1"
	"github.com/zintix-labs/acdc/server/app"
	"github.com/zintix-labs/acdc/server/netsvr"
	"github.com/zintix-labs/acdc/server/netsvr/middleware"
	"github.com/zintix-labs/acdc/server/svrcfg"
)

// RegisterRoutes 註冊所有 routes；回傳的 Component 持有常駐取樣的 Runtime，需交給 app 管理生命週期。
func RegisterRoutes(svr netsvr.NetRouter, sCfg *svrcfg.SvrCfg) (app.Component, error) {
	registerMiddleware(svr, sCfg.Log) // 1. 註冊 middleware
	registerIndex(svr)                // 2. 註冊主頁
	dev.Register(svr, sCfg)           // 3. 開發者工具頁
	return registerV1API(svr, sCfg)   // 4. 註冊 v1 api
}

// 註冊 middleware
func registerMiddleware(svr netsvr.NetRouter, log *slog.Logger) {
	svr.Use(middleware.RequestID)
	svr.Use(middleware.AccessLog(log))
	svr.Use(middleware.Recover(log))
	svr.Use(middleware.Compression)
}

// 註冊主頁
func registerIndex(svr netsvr.NetRouter) {
	svr.Get("/", index.IndexHandlerFn)
}

// 註冊 v1 api
func registerV1API(svr netsvr.NetRouter, sCfg *svrcfg.SvrCfg) (app.Component, error) {
	r, err := v1.NewSampleHandler(sCfg)
	if err != nil {
		return nil, err
	}
	s, err := v1.NewSimHandler(sCfg.Lab)
	if err != nil {
		return nil, err
	}
	svr.Group("/v1", func(vOne netsvr.NetRouter) {
		vOne.Get("/catalog", s.Catalog)
		vOne.Get("/metrics", r.Metrics)

		vOne.Get("/sample", r.Sample)
		vOne.Get("/sim", s.Sim)
		vOne.Get("/tree", s.Tree)
		vOne.Get("/snapshot", s.Snapshot)

		vOne.Post("/sample", r.Sample)
		vOne.Post("/sim", s.Sim)
		vOne.Post("/tree", s.Tree)
		vOne.Post("/snapshot", s.Snapshot)
		vOne.Post("/simbycfg", s.SetByJson)
		vOne.Post("/stat", v1.Stat)
	})
	return r, nil
}
