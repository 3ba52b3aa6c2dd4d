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

package httperr

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/zintix-labs/acdc/errs"
	"github.com/zintix-labs/acdc/server/logger"
)

func TestStatusCode(t *testing.T) {
	cases := []struct {
		err  error
		want int
	}{
		{errs.NewWarn("bad rid"), http.StatusBadRequest},
		{errs.NewFatal("pool closed"), http.StatusInternalServerError},
		{errs.NewLog("cell too narrow"), http.StatusUnprocessableEntity},
		{errs.Wrap(errs.ErrBadDim, "fn"), http.StatusBadRequest},
		{errs.Wrap(errs.ErrExhausted, "sample"), http.StatusServiceUnavailable},
		{errs.Wrap(errs.ErrDegenerate, "fn 0"), http.StatusUnprocessableEntity},
		{fmt.Errorf("wrapped: %w", context.DeadlineExceeded), http.StatusGatewayTimeout},
		{context.Canceled, http.StatusRequestTimeout},
		{errors.New("plain"), http.StatusInternalServerError},
	}
	for _, c := range cases {
		if got := StatusCode(c.err); got != c.want {
			t.Fatalf("StatusCode(%v) = %d, want %d", c.err, got, c.want)
		}
	}
}

func TestErrs(t *testing.T) {
	rec := httptest.NewRecorder()
	Errs(rec, errs.NewWarn("rid not found"))
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("code = %d", rec.Code)
	}
	rec = httptest.NewRecorder()
	Errs(rec, nil)
	if rec.Code != http.StatusOK || rec.Body.Len() != 0 {
		t.Fatal("nil error must not write")
	}
}

func TestLogCarriesContextAttrs(t *testing.T) {
	var buf bytes.Buffer
	log := slog.New(logger.NewContextHandler(slog.NewJSONHandler(&buf, nil)))
	ctx := logger.AppendCtx(context.Background(), slog.String("req_id", "abc-1"))

	Log(ctx, log, "sample failed", errs.Wrap(errs.ErrExhausted, "sample"))
	out := buf.String()
	for _, want := range []string{`"level":"ERROR"`, `"req_id":"abc-1"`, `"status":503`} {
		if !bytes.Contains([]byte(out), []byte(want)) {
			t.Fatalf("log %q missing %s", out, want)
		}
	}

	buf.Reset()
	Log(ctx, log, "sample failed", errs.NewWarn("bad rid"))
	if buf.Len() != 0 {
		t.Fatalf("400 must not be logged: %s", buf.String())
	}

	buf.Reset()
	Log(ctx, log, "sample failed", errs.Wrap(errs.ErrDegenerate, "fn 0"))
	if !bytes.Contains(buf.Bytes(), []byte(`"level":"WARN"`)) {
		t.Fatalf("422 must warn: %s", buf.String())
	}
}
