package v1

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/zintix-labs/acdc"
	"github.com/zintix-labs/acdc/dto"
	"github.com/zintix-labs/acdc/errs"
	"github.com/zintix-labs/acdc/server/httperr"
	"github.com/zintix-labs/acdc/server/logger"
	"github.com/zintix-labs/acdc/server/svrcfg"
)

func (c *SampleHandler) Sample(w http.ResponseWriter, q *http.Request) {
	// 請求方法、結構體校驗
	if q.Method != http.MethodGet && q.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	req, err := dto.DecodeSampleRequest(q)
	if err != nil {
		httperr.Errs(w, err)
		return
	}
	// 請求解析完成，設置超時 context；rid 帶進 log attrs
	ctx := logger.AppendCtx(q.Context(), slog.Uint64("rid", uint64(req.RunID)))
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	result, err := c.rt.Sample(ctx, req)
	if err != nil {
		httperr.Log(ctx, c.log, "sample failed", err)
		httperr.Errs(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(result); err != nil {
		httperr.Errs(w, err)
		return
	}
}

// Metrics 回傳各 run 的 EnginePool 狀態
func (c *SampleHandler) Metrics(w http.ResponseWriter, q *http.Request) {
	if q.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	type MetricsResponse struct {
		Closed       bool                     `json:"closed"`
		ClosedReason string                   `json:"closed_reason,omitempty"`
		Pools        []acdc.EnginePoolMetrics `json:"pools"`
	}
	resp := MetricsResponse{
		Closed:       c.rt.Closed(),
		ClosedReason: c.rt.ClosedReason(),
		Pools:        c.rt.Metrics(),
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(resp)
}

// Run 讓 SampleHandler 作為 app.Component：阻塞到 Runtime 被關閉為止
func (c *SampleHandler) Run() error {
	<-c.rt.Done()
	return errs.NewFatal("runtime closed: " + c.rt.ClosedReason())
}

func (c *SampleHandler) Name() string { return "sample runtime" }

// Shutdown 關閉底層 Runtime 與所有 EnginePool
func (c *SampleHandler) Shutdown(ctx context.Context) error {
	c.rt.Close()
	return nil
}

// ============================================================
// ** SampleHandler **
// ============================================================

type SampleHandler struct {
	rt      *acdc.Runtime
	log     *slog.Logger
	timeout time.Duration
}

func NewSampleHandler(sCfg *svrcfg.SvrCfg) (*SampleHandler, error) {
	rt, err := sCfg.Lab.BuildRuntime(sCfg.EngineSize)
	if err != nil {
		return nil, errs.Wrap(err, "build sample handler error")
	}
	timeout := sCfg.SampleTimeout
	if timeout <= 0 {
		timeout = svrcfg.DefaultSampleTimeout
	}
	return &SampleHandler{rt: rt, log: sCfg.Log, timeout: timeout}, nil
}
