// Package app 定義應用程式根目錄用以管理長期運行元件的最小生命週期抽象。
package app

import (
	"context"
	"fmt"
)

// Component 抽象任何「可啟動 / 可關閉」的長生命週期元件。
// - Run() 應該是阻塞呼叫，直到元件停止為止（正常或錯誤）。
// - Shutdown(ctx) 用於要求優雅關閉；實作方應該尊重 ctx deadline/cancel。
// 典型實例：HTTP Server、常駐取樣 Runtime、Background Worker 等。
type Component interface {
	Run() error
	Shutdown(ctx context.Context) error
}

// Named 為選配介面：元件可提供名稱，出現在生命週期 log 中。
type Named interface {
	Name() string
}

// NameOf 回傳元件名稱；未實作 Named 時以型別名代替。
func NameOf(c Component) string {
	if n, ok := c.(Named); ok {
		return n.Name()
	}
	return fmt.Sprintf("%T", c)
}
