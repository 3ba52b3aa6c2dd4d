package middleware

import (
	"bufio"
	"errors"
	"io"
	"net"
	"net/http"
	"strings"
	"sync"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
)

func isWebSocketUpgrade(r *http.Request) bool {
	return strings.Contains(strings.ToLower(r.Header.Get("Connection")), "upgrade") ||
		r.Header.Get("Upgrade") != ""
}

func isNoBodyStatus(code int) bool {
	// 204 No Content, 304 Not Modified, 1xx Informational
	return (code >= 100 && code < 200) || code == http.StatusNoContent || code == http.StatusNotModified
}

// CompressConfig 壓縮參數。SkipTypes 為不壓縮的 Content-Type 前綴（已壓縮或二進位內容）。
type CompressConfig struct {
	GzipLevel int
	ZstdLevel zstd.EncoderLevel
	SkipTypes []string
}

var DefaultCompressConfig = CompressConfig{
	GzipLevel: gzip.DefaultCompression,
	ZstdLevel: zstd.SpeedFastest,
	SkipTypes: []string{
		"application/octet-stream", // snapshot blob 本身已是 zstd frame
		"application/zstd",
		"application/gzip",
		"application/x-gzip",
		"application/zip",
		"image/",
		"video/",
		"audio/",
	},
}

// Compression 以預設參數建立的壓縮 middleware。
var Compression = NewCompression(DefaultCompressConfig)

type compressor struct {
	cfg      CompressConfig
	gzipPool sync.Pool
	zstdPool sync.Pool
}

// NewCompression 依 Accept-Encoding 選 zstd 或 gzip 壓縮回應。
// 是否壓縮延到第一次 WriteHeader / Write / Flush 才決定，
// 這時 handler 已設好 Content-Type 與狀態碼。
func NewCompression(cfg CompressConfig) func(http.Handler) http.Handler {
	c := &compressor{cfg: cfg}
	return c.handler
}

func (c *compressor) skip(contentType string) bool {
	ct := strings.ToLower(strings.TrimSpace(contentType))
	for _, p := range c.cfg.SkipTypes {
		if strings.HasPrefix(ct, p) {
			return true
		}
	}
	return false
}

// --- Zstd Logic ---
func (c *compressor) getZstdWriter(w io.Writer) *zstd.Encoder {
	if v := c.zstdPool.Get(); v != nil {
		zw := v.(*zstd.Encoder)
		zw.Reset(w)
		return zw
	}
	zw, err := zstd.NewWriter(w,
		zstd.WithEncoderLevel(c.cfg.ZstdLevel),
		zstd.WithEncoderConcurrency(1),
	)
	if err != nil {
		panic(err)
	}
	return zw
}

// --- Gzip Logic ---
func (c *compressor) getGzipWriter(w io.Writer) *gzip.Writer {
	if v := c.gzipPool.Get(); v != nil {
		gw := v.(*gzip.Writer)
		gw.Reset(w)
		return gw
	}
	gw, err := gzip.NewWriterLevel(w, c.cfg.GzipLevel)
	if err != nil {
		gw = gzip.NewWriter(w)
	}
	return gw
}

func (c *compressor) release(w io.WriteCloser) {
	_ = w.Close()
	switch v := w.(type) {
	case *zstd.Encoder:
		c.zstdPool.Put(v)
	case *gzip.Writer:
		c.gzipPool.Put(v)
	}
}

// --- ResponseWriter Wrapper ---

type compressResponseWriter struct {
	http.ResponseWriter
	c        *compressor
	encoding string
	w        io.WriteCloser // gzip.Writer 或 zstd.Encoder；不壓縮時為 nil
	decided  bool
}

// decide 只執行一次；之後 header 已送出，不能再改。
func (cw *compressResponseWriter) decide(code int) {
	if cw.decided {
		return
	}
	cw.decided = true

	h := cw.Header()
	if isNoBodyStatus(code) || h.Get("Content-Encoding") != "" || cw.c.skip(h.Get("Content-Type")) {
		return
	}

	h.Del("Content-Length")
	h.Set("Content-Encoding", cw.encoding)
	h.Add("Vary", "Accept-Encoding")
	switch cw.encoding {
	case "zstd":
		cw.w = cw.c.getZstdWriter(cw.ResponseWriter)
	default:
		cw.w = cw.c.getGzipWriter(cw.ResponseWriter)
	}
}

func (cw *compressResponseWriter) WriteHeader(code int) {
	cw.decide(code)
	cw.ResponseWriter.WriteHeader(code)
}

func (cw *compressResponseWriter) Write(b []byte) (int, error) {
	if !cw.decided {
		// 嗅探 Content-Type，讓二進位內容走不壓縮路徑
		if cw.Header().Get("Content-Type") == "" {
			cw.Header().Set("Content-Type", http.DetectContentType(b))
		}
		cw.decide(http.StatusOK)
	}
	if cw.w == nil {
		return cw.ResponseWriter.Write(b)
	}
	return cw.w.Write(b)
}

func (cw *compressResponseWriter) Flush() {
	cw.decide(http.StatusOK)
	if f, ok := cw.w.(interface{ Flush() error }); ok {
		_ = f.Flush()
	}
	if f, ok := cw.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

// close 寫出壓縮尾端並歸還 encoder；未壓縮時不寫任何東西。
func (cw *compressResponseWriter) close() {
	if cw.w != nil {
		cw.c.release(cw.w)
		cw.w = nil
	}
}

func (cw *compressResponseWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	hj, ok := cw.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, errors.New("underlying response writer does not support Hijacker")
	}
	return hj.Hijack()
}

func (cw *compressResponseWriter) Push(target string, opts *http.PushOptions) error {
	if p, ok := cw.ResponseWriter.(http.Pusher); ok {
		return p.Push(target, opts)
	}
	return errors.New("underlying response writer does not support Pusher")
}

// --- Middleware 入口 ---

func (c *compressor) handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// [Guard 1] WebSocket / Head
		if r.Method == http.MethodHead || isWebSocketUpgrade(r) {
			next.ServeHTTP(w, r)
			return
		}

		// [Guard 2] 避免二次壓縮
		if w.Header().Get("Content-Encoding") != "" {
			next.ServeHTTP(w, r)
			return
		}

		accept := r.Header.Get("Accept-Encoding")
		var encoding string
		switch {
		case strings.Contains(accept, "zstd"):
			encoding = "zstd"
		case strings.Contains(accept, "gzip"):
			encoding = "gzip"
		default:
			next.ServeHTTP(w, r)
			return
		}

		cw := &compressResponseWriter{ResponseWriter: w, c: c, encoding: encoding}
		defer cw.close()
		next.ServeHTTP(cw, r)
	})
}
