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

package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/zintix-labs/acdc"
	"github.com/zintix-labs/acdc/demo/demo_configs"
	"github.com/zintix-labs/acdc/demo/demo_integrand"
	"github.com/zintix-labs/acdc/sdk/core"
	"github.com/zintix-labs/acdc/server"
	"github.com/zintix-labs/acdc/server/logger"
	"github.com/zintix-labs/acdc/server/svrcfg"
)

// 示範用的取樣伺服器：載入內建的 demo 設定與函數，開啟所有 endpoints（含 /dev）。
func main() {
	cfg, err := loadConfigFromFlags()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	server.Run(cfg)
}

type config struct {
	LogMode    string
	EngineSize int
	PRNG       string
}

func loadConfigFromFlags() (*svrcfg.SvrCfg, error) {
	cfg := new(config)
	flag.StringVar(&cfg.LogMode, "log-mode", "ModeDev", "log mode: ModeDev|ModeProd|ModeSilence")
	flag.IntVar(&cfg.EngineSize, "engines", 3, "number of sampler instances per run")
	flag.StringVar(&cfg.PRNG, "prng", "pcg64", "prng: pcg64, pcg32, mt19937")

	flag.Parse()

	log, _ := logger.NewAsync(4096, cfg.norm())

	cf, ok := core.Factory(cfg.PRNG)
	if !ok {
		return nil, fmt.Errorf("unknown prng %q", cfg.PRNG)
	}
	lab, err := acdc.NewAuto(
		cf,
		acdc.Configs(demo_configs.FS),
		acdc.Integrands(demo_integrand.Integrands),
		acdc.WithLabLogger(log),
	)
	if err != nil {
		return nil, err
	}
	sCfg := &svrcfg.SvrCfg{
		Log:        log,
		EngineSize: cfg.EngineSize,
		Lab:        lab,
	}
	return sCfg, nil
}

func (cfg *config) norm() logger.LogMode {
	switch cfg.LogMode {
	case "ModeDev":
		return logger.ModeDev
	case "ModeProd":
		return logger.ModeProd
	case "ModeSilence":
		return logger.ModeSilence
	default:
		return logger.ModeDev
	}
}
