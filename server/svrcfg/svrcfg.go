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

package svrcfg

import (
	"log/slog"
	"time"

	"github.com/zintix-labs/acdc"
	"github.com/zintix-labs/acdc/errs"
	"github.com/zintix-labs/acdc/server/logger"
)

// DefaultSampleTimeout 是單次取樣請求的預設上限時間
const DefaultSampleTimeout = 5 * time.Second

type SvrCfg struct {
	Log           *slog.Logger
	EngineSize    int           // 每個 run 的 Engine 池容量
	SampleTimeout time.Duration // 0 = DefaultSampleTimeout
	Lab           *acdc.Lab
}

func (sc *SvrCfg) Vaild() error {
	if sc.Log != nil {
		h := sc.Log.Handler()
		if ch, ok := h.(*logger.ContextHandler); ok {
			h = ch.Unwrap()
		}
		if ah, ok := h.(*logger.AsyncHandler); ok && !ah.Ready() {
			return errs.NewFatal("nil default log handler: async handler is nil")
		}
		// handler 的 log 需要帶出 req_id / rid
		sc.Log = logger.WithContext(sc.Log)
	} else {
		// 保持安靜、合法
		sc.Log, _ = logger.NewAsync(1024, logger.ModeDev)
	}

	// 1 <= sc.EngineSize <= 10
	sc.EngineSize = min(10, max(1, sc.EngineSize))
	if sc.SampleTimeout <= 0 {
		sc.SampleTimeout = DefaultSampleTimeout
	}
	if sc.Lab == nil {
		return errs.NewFatal("lab is required")
	}
	return nil
}
