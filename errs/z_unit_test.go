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

package errs

import (
	"errors"
	"fmt"
	"strings"
	"testing"
)

func TestWrapKeepsLevelAndKind(t *testing.T) {
	err := Wrap(ErrExhausted, "generate run 3")
	if !errors.Is(err, ErrExhausted) {
		t.Fatalf("wrapped error should match ErrExhausted")
	}
	if errors.Is(err, ErrDegenerate) {
		t.Fatalf("wrapped error must not match ErrDegenerate")
	}
	if err.ErrLv != Fatal {
		t.Fatalf("expected fatal level, got %s", ErrLv(err.ErrLv))
	}

	w := Wrap(ErrDegenerate, "add function")
	if w.ErrLv != Warn {
		t.Fatalf("expected warn level, got %s", ErrLv(w.ErrLv))
	}
}

func TestWrapForeignErrorIsFatal(t *testing.T) {
	err := Wrap(fmt.Errorf("io broken"), "read config")
	if Level(err) != Fatal {
		t.Fatalf("foreign cause should be fatal")
	}
	if !strings.Contains(err.Error(), "io broken") {
		t.Fatalf("cause missing in message: %s", err.Error())
	}
}

func TestLevel(t *testing.T) {
	if Level(nil) != None {
		t.Fatalf("nil error should be None")
	}
	if Level(errors.New("x")) != Fatal {
		t.Fatalf("plain error should be Fatal")
	}
	if Level(WrapWithExtra(ErrBadDim, "dim", "dim=0")) != Warn {
		t.Fatalf("bad dim should stay Warn")
	}
}
