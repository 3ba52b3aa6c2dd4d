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

package api_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/zintix-labs/acdc"
	"github.com/zintix-labs/acdc/catalog"
	"github.com/zintix-labs/acdc/corefmt"
	"github.com/zintix-labs/acdc/demo"
	"github.com/zintix-labs/acdc/dto"
	"github.com/zintix-labs/acdc/sdk/core"
	"github.com/zintix-labs/acdc/server/api"
	"github.com/zintix-labs/acdc/server/netsvr"
	"github.com/zintix-labs/acdc/server/svrcfg"
)

func newHandler(t *testing.T) http.Handler {
	t.Helper()
	lab, err := demo.NewLab(core.Default())
	require.NoError(t, err)
	cfg := &svrcfg.SvrCfg{Lab: lab, EngineSize: 2}
	require.NoError(t, cfg.Vaild())

	svr := netsvr.NewChiServer(":0")
	comp, err := api.RegisterRoutes(svr, cfg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = comp.Shutdown(context.Background()) })
	return svr.Handler()
}

func do(t *testing.T, h http.Handler, method, target string, body []byte) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body != nil {
		req = httptest.NewRequest(method, target, bytes.NewReader(body))
	} else {
		req = httptest.NewRequest(method, target, nil)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestIndexAndCatalog(t *testing.T) {
	h := newHandler(t)

	rec := do(t, h, http.MethodGet, "/", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), "/v1/sample")

	rec = do(t, h, http.MethodGet, "/v1/catalog", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var sums []catalog.Summary
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &sums))
	require.NotEmpty(t, sums)
}

func TestSampleReplay(t *testing.T) {
	h := newHandler(t)

	rec := do(t, h, http.MethodGet, "/v1/sample?rid=1&count=5&with_cell=true", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var first dto.SampleResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &first))
	require.Len(t, first.Points, 5)
	require.NotNil(t, first.Points[0].Cell)
	require.NotEmpty(t, first.State.StartSnapB64U)

	// 帶回 start_b64u 必得到同一批點
	body, err := json.Marshal(dto.SampleRequest{
		RunID:      1,
		Count:      5,
		StartState: &dto.StartState{StartSnapB64U: first.State.StartSnapB64U},
	})
	require.NoError(t, err)
	rec = do(t, h, http.MethodPost, "/v1/sample", body)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var again dto.SampleResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &again))
	for i := range first.Points {
		require.Equal(t, first.Points[i].X, again.Points[i].X)
	}
	require.Equal(t, first.State.AfterSnapB64U, again.State.AfterSnapB64U)
}

func TestSampleBadRequest(t *testing.T) {
	h := newHandler(t)
	require.Equal(t, http.StatusBadRequest, do(t, h, http.MethodGet, "/v1/sample?rid=999", nil).Code)
	require.Equal(t, http.StatusBadRequest, do(t, h, http.MethodGet, "/v1/sample?rid=x", nil).Code)
	require.Equal(t, http.StatusBadRequest, do(t, h, http.MethodPost, "/v1/sample", []byte(`{"rid":1,"bogus":1}`)).Code)
}

func TestSim(t *testing.T) {
	h := newHandler(t)

	rec := do(t, h, http.MethodGet, "/v1/sim?rid=1&trials=2000&seed=7", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var resp struct {
		Stats struct {
			Summary struct {
				Attempted int64   `json:"Attempted"`
				Integral  float64 `json:"Integral"`
			} `json:"Summary"`
		} `json:"stats"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Equal(t, int64(2000), resp.Stats.Summary.Attempted)
	require.Greater(t, resp.Stats.Summary.Integral, 0.0)

	rec = do(t, h, http.MethodGet, "/v1/sim?rid=2&trials=500&workers=2&seed=7&format=table", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	require.True(t, strings.HasPrefix(rec.Header().Get("Content-Type"), "text/plain"))

	require.Equal(t, http.StatusBadRequest, do(t, h, http.MethodGet, "/v1/sim?rid=1&trials=10&format=xml", nil).Code)
	require.Equal(t, http.StatusBadRequest, do(t, h, http.MethodGet, "/v1/sim?rid=1&trials=0", nil).Code)
	require.Equal(t, http.StatusBadRequest, do(t, h, http.MethodGet, "/v1/sim?rid=404&trials=10", nil).Code)
}

func TestSimByCfg(t *testing.T) {
	h := newHandler(t)
	body := []byte(`{"trials":1000,"seed":3,"cfg":{"run_name":"adhoc","run_id":77,"functions":[{"name":"c","logic_key":"const","dim":2}]}}`)
	rec := do(t, h, http.MethodPost, "/v1/simbycfg", body)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	require.Contains(t, rec.Body.String(), "adhoc")

	body = []byte(`{"trials":10,"cfg":{"run_name":"x","run_id":78,"functions":[{"name":"c","logic_key":"nope","dim":1}]}}`)
	require.Equal(t, http.StatusBadRequest, do(t, h, http.MethodPost, "/v1/simbycfg", body).Code)
}

func TestTree(t *testing.T) {
	h := newHandler(t)
	rec := do(t, h, http.MethodGet, "/v1/tree?rid=2&fn=0&warmup=2000&seed=1", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var tr dto.TreeResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &tr))
	require.GreaterOrEqual(t, tr.Bins, 1)
	require.NotEmpty(t, tr.Cells)

	require.Equal(t, http.StatusBadRequest, do(t, h, http.MethodGet, "/v1/tree?rid=2&fn=9", nil).Code)
}

func TestStat(t *testing.T) {
	h := newHandler(t)
	body := []byte(`[{"RunName":"r","RunID":1,"Names":["a"],"Basic":{"Trials":10,"Accepted":5,"Picked":[10]},
		"Workers":[{"MaxInt":2,"Attempted":10,"Accepted":5,"Functions":[{"Attempted":10,"Accepted":5,"MaxInt":2}]}]}]`)
	rec := do(t, h, http.MethodPost, "/v1/stat?format=yaml", body)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	require.Contains(t, rec.Body.String(), "integral: 1")

	require.Equal(t, http.StatusBadRequest, do(t, h, http.MethodPost, "/v1/stat", []byte(`[]`)).Code)
	require.Equal(t, http.StatusBadRequest, do(t, h, http.MethodPost, "/v1/stat", []byte(`[{"Names":["a"]}]`)).Code)
}

func TestDevTrace(t *testing.T) {
	h := newHandler(t)

	rec := do(t, h, http.MethodPost, "/dev/trace", []byte(`{"run":"gauss_peak","trials":50,"seed":"11"}`))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var first acdc.TraceReport
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &first))
	require.Len(t, first.Records, 50)

	body, err := json.Marshal(map[string]any{"rid": 2, "trials": 50, "snap": first.Before})
	require.NoError(t, err)
	rec = do(t, h, http.MethodPost, "/dev/trace", body)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var again acdc.TraceReport
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &again))
	require.Equal(t, first.Records, again.Records)

	require.Equal(t, http.StatusBadRequest, do(t, h, http.MethodPost, "/dev/trace", []byte(`{"run":"nope","trials":1}`)).Code)
	require.Equal(t, http.StatusOK, do(t, h, http.MethodGet, "/dev", nil).Code)
}

func TestMetricsAndCompression(t *testing.T) {
	h := newHandler(t)
	rec := do(t, h, http.MethodGet, "/v1/metrics", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var m struct {
		Closed bool                     `json:"closed"`
		Pools  []acdc.EnginePoolMetrics `json:"pools"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &m))
	require.False(t, m.Closed)
	require.NotEmpty(t, m.Pools)
	require.Equal(t, 2, m.Pools[0].PoolSize)

	req := httptest.NewRequest(http.MethodGet, "/v1/catalog", nil)
	req.Header.Set("Accept-Encoding", "gzip")
	out := httptest.NewRecorder()
	h.ServeHTTP(out, req)
	require.Equal(t, "gzip", out.Header().Get("Content-Encoding"))
}

func TestSnapshotDownload(t *testing.T) {
	h := newHandler(t)
	req := httptest.NewRequest(http.MethodGet, "/v1/snapshot?rid=2&warmup=2000&seed=1", nil)
	req.Header.Set("Accept-Encoding", "gzip, zstd")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	require.Equal(t, "application/octet-stream", rec.Header().Get("Content-Type"))
	require.Empty(t, rec.Header().Get("Content-Encoding"), "snapshot blob is already compressed")

	snap, err := corefmt.DecodeBlobFrame(rec.Body.Bytes())
	require.NoError(t, err)

	lab, err := demo.NewLab(core.Default())
	require.NoError(t, err)
	want, err := lab.NewEngineWithSeed(2, 1)
	require.NoError(t, err)
	want.Warmup(2000)
	got, err := lab.NewEngineWithSeed(2, 99)
	require.NoError(t, err)
	require.NoError(t, got.Restore(snap))

	a, err := want.Tree(0, 0)
	require.NoError(t, err)
	b, err := got.Tree(0, 0)
	require.NoError(t, err)
	require.Equal(t, a.Cells, b.Cells)

	require.Equal(t, http.StatusBadRequest, do(t, h, http.MethodGet, "/v1/snapshot?rid=999", nil).Code)
}
