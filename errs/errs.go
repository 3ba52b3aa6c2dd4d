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

// Package errs 定義 acdc 全域統一的錯誤型別與錯誤分級。
//
// 取樣器的錯誤分成幾類（呼叫端依此決定是否中止）：
//   - ErrDegenerate：函數在 maxTry 次內找不到正值點（合法結果，非例外）。
//   - ErrExhausted：Generate 連續 maxTry 次皆未接受（本次產生請求失敗）。
//   - ErrBadDim / ErrNoFunction：呼叫參數錯誤。
//   - ErrTooNarrow：格子寬度已低於 eps，不再切割（刻意的近似，不視為失敗）。
package errs

import (
	"errors"
	"fmt"
)

// ErrLevel : Error 分級，使最上層理解問題嚴重程度
type ErrLevel uint8

const (
	None ErrLevel = iota
	Fatal
	Warn
	Log
)

var errLvMap = map[ErrLevel]string{
	None:  "",
	Fatal: "fatal",
	Warn:  "warn",
	Log:   "log",
}

func ErrLv(errlv ErrLevel) string {
	if str, ok := errLvMap[errlv]; ok {
		return str
	}
	return ""
}

// 取樣器的錯誤種類（sentinel）。以 errors.Is 判斷，Wrap 後仍可命中。
var (
	ErrDegenerate = NewWarn("degenerate function: no positive value found within max try")
	ErrExhausted  = NewFatal("generation exhausted: no point accepted within max try")
	ErrBadDim     = NewWarn("invalid dimension")
	ErrNoFunction = NewWarn("no function registered")
	ErrTooNarrow  = NewLog("cell width below eps")
)

// E 是統一的錯誤型別。
// Message 為主訊息；Extra 為呼叫端可追加的額外上下文；
// Cause 可串接下層錯誤（wrap）；ErrLv 表示嚴重度。
type E struct {
	Message string
	Extra   string
	Cause   error
	ErrLv   ErrLevel
}

// Error 實作 error 介面並回傳格式化後的錯誤訊息。
func (e *E) Error() string {
	base := fmt.Sprintf("errlv=%s %s", ErrLv(e.ErrLv), e.Message)
	if e.Extra != "" {
		base += " | extra: " + e.Extra
	}
	if e.Cause != nil {
		base += fmt.Sprintf(" (cause: %v)", e.Cause)
	}
	return base
}

// Unwrap 讓 errors.Is / errors.As 能夠向下展開。
func (e *E) Unwrap() error { return e.Cause }

func New(errLv ErrLevel, msg string) *E {
	return &E{Message: msg, ErrLv: errLv}
}

func NewFatal(msg string) *E {
	return &E{Message: msg, ErrLv: Fatal}
}

func NewWarn(msg string) *E {
	return &E{Message: msg, ErrLv: Warn}
}

func NewLog(msg string) *E {
	return &E{Message: msg, ErrLv: Log}
}

func Fatalf(format string, a ...any) *E {
	return NewFatal(fmt.Sprintf(format, a...))
}

func Warnf(format string, a ...any) *E {
	return NewWarn(fmt.Sprintf(format, a...))
}

// NewWithExtra 與 New 相同，但可附加額外上下文字串（不影響主訊息）。
func NewWithExtra(errLv ErrLevel, msg string, extra string) *E {
	e := New(errLv, msg)
	e.Extra = extra
	return e
}

// Wrap 使用給定訊息包裝底層錯誤，建立一個 *E。
//
// ErrLevel 規則：
//   - 若 cause 已經是 *E，則沿用其 ErrLv（保持原本嚴重度）。
//   - 若 cause 不是本包定義的 *E（多半是標準庫或三方依賴錯誤），則 ErrLv 一律視為 Fatal。
func Wrap(cause error, msg string) *E {
	var e *E
	errLv := Fatal
	if errors.As(cause, &e) {
		errLv = e.ErrLv
	}
	r := New(errLv, msg)
	r.Cause = cause
	return r
}

// WrapWithExtra 同 Wrap，另附上下文字串。
func WrapWithExtra(cause error, msg string, extra string) *E {
	r := Wrap(cause, msg)
	r.Extra = extra
	return r
}

func AsErr(err error) (*E, bool) {
	var e *E
	if errors.As(err, &e) {
		return e, true
	}
	return e, false
}

// Level 回傳 err 的嚴重度；非 *E 一律視為 Fatal，nil 回傳 None。
func Level(err error) ErrLevel {
	if err == nil {
		return None
	}
	if e, ok := AsErr(err); ok {
		return e.ErrLv
	}
	return Fatal
}
