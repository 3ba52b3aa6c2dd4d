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

// Package app 提供應用程式生命週期管理（App），負責統一啟動與關閉多個 Component。
package app

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"
)

// DefaultGrace 為優雅關閉的預設期限。
const DefaultGrace = 5 * time.Second

// App 是一個簡單的生命週期管理器，負責啟動所有註冊的 Component，並在收到 OS 信號或任一 Component 發生錯誤時，協調優雅關閉。
// 它確保所有元件能夠被統一管理其啟動與關閉流程。
type App struct {
	comps []Component
	log   *slog.Logger
	grace time.Duration
}

// New 建立一個新的 App 實例。
func New() *App { return &App{log: slog.Default(), grace: DefaultGrace} }

// NewWith 是 New 的語法糖，允許在建立時直接註冊多個 Component。
func NewWith(copms ...Component) *App {
	app := New()
	for _, c := range copms {
		app.Register(c)
	}
	return app
}

// WithLogger 設定生命週期 log；nil 時不變。
func (a *App) WithLogger(log *slog.Logger) *App {
	if log != nil {
		a.log = log
	}
	return a
}

// WithGrace 設定優雅關閉期限；非正值時不變。
func (a *App) WithGrace(d time.Duration) *App {
	if d > 0 {
		a.grace = d
	}
	return a
}

// Register 將一個 Component 註冊到 App 中，該 Component 將在 Run 時被管理。
func (a *App) Register(c Component) {
	a.comps = append(a.comps, c)
}

// Run 啟動所有註冊的 Component，並使用 goroutine 並行執行。
// 本方法會阻塞直到收到 OS 終止信號（SIGINT/SIGTERM）或任一 Component 的 Run 返回。
// - 當收到 OS 終止信號時，觸發優雅關閉；回傳關閉過程的錯誤（正常為 nil）。
// - 當任一 Component Run 返回時，觸發優雅關閉並回傳該錯誤（合併關閉錯誤）。
// 假設每個 Component.Run 是阻塞調用，代表該元件的生命週期。
func (a *App) Run() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return a.RunContext(ctx)
}

// RunContext 同 Run，但以 ctx 結束取代 OS 信號。
func (a *App) RunContext(ctx context.Context) error {
	type exit struct {
		name string
		err  error
	}
	// exitCh 用於收集任一 Component 首次返回的結果
	exitCh := make(chan exit, len(a.comps))
	for _, c := range a.comps {
		a.log.Info("app.start", slog.String("component", NameOf(c)))
		go func(c Component) {
			exitCh <- exit{name: NameOf(c), err: c.Run()}
		}(c)
	}

	// select 等待兩種退出路徑：ctx 結束或 Component 返回
	select {
	case <-ctx.Done():
		a.log.Info("app.stop", slog.String("reason", context.Cause(ctx).Error()))
		return a.gracefulShutdown()
	case ex := <-exitCh:
		a.log.Error("app.component_exit", slog.String("component", ex.name), slog.Any("err", ex.err))
		return errors.Join(ex.err, a.gracefulShutdown())
	}
}

// gracefulShutdown 在 grace 期限內依序呼叫所有 Component.Shutdown，回傳合併的錯誤。
// 若某些實作無法在期限內關閉，由實作者決定是否強制中止／忽略錯誤。
func (a *App) gracefulShutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), a.grace)
	defer cancel()
	var all []error
	for _, c := range a.comps {
		if err := c.Shutdown(ctx); err != nil {
			a.log.Warn("app.shutdown_failed", slog.String("component", NameOf(c)), slog.Any("err", err))
			all = append(all, err)
		}
	}
	return errors.Join(all...)
}
