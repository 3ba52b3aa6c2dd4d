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

package app

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type fakeComp struct {
	name    string
	stop    chan error
	shutErr error
	shut    atomic.Int32
}

func newFake(name string) *fakeComp {
	return &fakeComp{name: name, stop: make(chan error, 1)}
}

func (f *fakeComp) Name() string { return f.name }
func (f *fakeComp) Run() error   { return <-f.stop }

func (f *fakeComp) Shutdown(ctx context.Context) error {
	f.shut.Add(1)
	select {
	case f.stop <- nil:
	default:
	}
	return f.shutErr
}

func TestComponentExitShutsDownAll(t *testing.T) {
	var buf bytes.Buffer
	a, b := newFake("http"), newFake("runtime")
	app := NewWith(a, b).WithLogger(slog.New(slog.NewJSONHandler(&buf, nil))).WithGrace(time.Second)

	boom := errors.New("runtime closed")
	b.stop <- boom
	err := app.RunContext(context.Background())
	require.ErrorIs(t, err, boom)
	require.EqualValues(t, 1, a.shut.Load())
	require.EqualValues(t, 1, b.shut.Load())
	require.Contains(t, buf.String(), `"component":"runtime"`)
}

func TestContextCancelJoinsShutdownErrors(t *testing.T) {
	a, b := newFake("http"), newFake("runtime")
	shutErr := errors.New("listener busy")
	a.shutErr = shutErr
	app := NewWith(a, b).WithLogger(slog.New(slog.DiscardHandler))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := app.RunContext(ctx)
	require.ErrorIs(t, err, shutErr)
	require.EqualValues(t, 1, b.shut.Load())

	c := newFake("ok")
	ctx, cancel = context.WithCancel(context.Background())
	cancel()
	require.NoError(t, NewWith(c).WithLogger(slog.New(slog.DiscardHandler)).RunContext(ctx))
}

func TestNameOf(t *testing.T) {
	require.Equal(t, "http", NameOf(newFake("http")))
	type anon struct{ Component }
	require.Equal(t, "app.anon", NameOf(anon{}))
}
