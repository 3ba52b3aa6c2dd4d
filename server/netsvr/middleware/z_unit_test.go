package middleware

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	chimid "github.com/go-chi/chi/v5/middleware"
	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
	"github.com/stretchr/testify/require"
	"github.com/zintix-labs/acdc/server/logger"
)

func serve(h http.Handler, accept string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, "/v1/x", nil)
	if accept != "" {
		req.Header.Set("Accept-Encoding", accept)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestCompressionByContentType(t *testing.T) {
	payload := bytes.Repeat([]byte(`{"x":0.5,"f":1.25}`), 64)
	blob := append([]byte{0x28, 0xb5, 0x2f, 0xfd}, bytes.Repeat([]byte{0x01, 0x00, 0xff}, 64)...)

	jsonH := Compression(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write(payload)
	}))
	rec := serve(jsonH, "gzip")
	require.Equal(t, "gzip", rec.Header().Get("Content-Encoding"))
	gr, err := gzip.NewReader(rec.Body)
	require.NoError(t, err)
	got, err := io.ReadAll(gr)
	require.NoError(t, err)
	require.Equal(t, payload, got)

	rec = serve(jsonH, "zstd, gzip")
	require.Equal(t, "zstd", rec.Header().Get("Content-Encoding"))
	zr, err := zstd.NewReader(rec.Body)
	require.NoError(t, err)
	got, err = io.ReadAll(zr)
	zr.Close()
	require.NoError(t, err)
	require.Equal(t, payload, got)

	rec = serve(jsonH, "")
	require.Empty(t, rec.Header().Get("Content-Encoding"))
	require.Equal(t, payload, rec.Body.Bytes())

	// 已壓縮的二進位內容原樣送出
	blobH := Compression(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/octet-stream")
		w.Header().Set("Content-Length", "196")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write(blob)
	}))
	rec = serve(blobH, "gzip")
	require.Empty(t, rec.Header().Get("Content-Encoding"))
	require.Equal(t, "196", rec.Header().Get("Content-Length"))
	require.Equal(t, blob, rec.Body.Bytes())

	// 未設 Content-Type 時以嗅探結果判斷
	sniffH := Compression(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write(blob)
	}))
	rec = serve(sniffH, "zstd")
	require.Empty(t, rec.Header().Get("Content-Encoding"))
	require.Equal(t, blob, rec.Body.Bytes())

	noBody := Compression(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))
	rec = serve(noBody, "gzip")
	require.Equal(t, http.StatusNoContent, rec.Code)
	require.Empty(t, rec.Header().Get("Content-Encoding"))
	require.Zero(t, rec.Body.Len())
}

func TestRequestIDInLogContext(t *testing.T) {
	var buf bytes.Buffer
	log := slog.New(slog.NewJSONHandler(&buf, nil))

	var seen []slog.Attr
	h := RequestID(AccessLog(log)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = logger.CtxAttrs(r.Context())
		w.WriteHeader(http.StatusAccepted)
	})))
	req := httptest.NewRequest(http.MethodGet, "/v1/sample?rid=2", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	id := rec.Header().Get(chimid.RequestIDHeader)
	require.NotEmpty(t, id)
	require.Len(t, seen, 1)
	require.Equal(t, "req_id", seen[0].Key)
	require.Equal(t, id, seen[0].Value.String())

	var m map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &m), buf.String())
	require.Equal(t, "http.access", m["msg"])
	require.Equal(t, id, m["req_id"])
	require.Equal(t, "2", m["rid"])
	require.EqualValues(t, http.StatusAccepted, m["status"])
}

func TestRecoverLogsPanic(t *testing.T) {
	var buf bytes.Buffer
	log := logger.NewLogger(slog.NewJSONHandler(&buf, nil))

	h := RequestID(Recover(log)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("boom")
	})))
	rec := serve(h, "")
	require.Equal(t, http.StatusInternalServerError, rec.Code)

	var m map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &m), buf.String())
	require.Equal(t, "http.panic", m["msg"])
	require.Equal(t, "boom", m["panic"])
	require.Equal(t, rec.Header().Get(chimid.RequestIDHeader), m["req_id"])

	// 沒有 log 時仍回 500
	rec = serve(Recover(nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("boom")
	})), "")
	require.Equal(t, http.StatusInternalServerError, rec.Code)
}
