// Package dev 提供取樣器的「內部 Dev Panel」HTTP endpoints。
//
// 目的：
//   - 開發期快速檢查：指定 run、Seed 或 Snap，逐次追蹤每一次嘗試（取點、函數值、高估值、是否接受、是否補償中）。
//   - 可回放（replay）：回應中的 start_b64u / after_b64u 可貼回 snap 欄位，從同一狀態重跑。
//
// 注意：
//   - 這不是 production API；錯誤處理仍走 `httperr.Errs`。
//   - Seed/Snap 同時提供時以 Snap 為準。
package dev

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"

	"github.com/zintix-labs/acdc"
	"github.com/zintix-labs/acdc/catalog"
	"github.com/zintix-labs/acdc/errs"
	"github.com/zintix-labs/acdc/server/httperr"
	"github.com/zintix-labs/acdc/server/netsvr"
	"github.com/zintix-labs/acdc/server/svrcfg"
	"github.com/zintix-labs/acdc/spec"
)

// devRequest 是 Dev Panel 的輸入 payload；rid 與 run 擇一，兩者都有時以 rid 為準。
type devRequest struct {
	RID    int64  `json:"rid"`
	Run    string `json:"run"`
	Trials int    `json:"trials"`
	Seed   string `json:"seed"`
	Snap   string `json:"snap"`
}

// Register 註冊 Dev Panel 的 routes。
//
//   - GET  /dev       ：Dev Panel HTML。
//   - GET  /dev/meta  ：回傳 catalog summary（供前端下拉選單）。
//   - POST /dev/trace ：逐次追蹤 trials 次嘗試（含 start/after snapshot）。
func Register(svr netsvr.NetRouter, cfg *svrcfg.SvrCfg) {
	svr.Get("/dev", devPage)
	svr.Get("/dev/meta", devMeta(cfg))
	svr.Post("/dev/trace", devTrace(cfg))
}

const devPageHTML = `<!doctype html>
<html lang="zh-Hant">
<head>
  <meta charset="utf-8" />
  <title>ACDC Dev</title>
  <style>
    body { font-family: -apple-system,BlinkMacSystemFont,"Segoe UI",sans-serif; background:#0f172a; color:#e2e8f0; margin:0; }
    .wrap { max-width: 980px; margin: 24px auto; padding: 16px 20px; background:#111827; border:1px solid #1f2937; border-radius:12px; }
    label { display:block; margin:8px 0 4px; font-size:13px; color:#94a3b8; }
    input, select { width:100%; padding:6px 8px; background:#0b1220; color:#e2e8f0; border:1px solid #334155; border-radius:6px; }
    button { margin-top:12px; padding:8px 16px; background:#2563eb; color:#fff; border:0; border-radius:6px; cursor:pointer; }
    pre { background:#0b1220; padding:12px; border-radius:8px; overflow:auto; max-height:480px; font-size:12px; }
  </style>
</head>
<body>
<div class="wrap">
  <h2>ACDC Trace</h2>
  <label>Run</label><select id="run"></select>
  <label>Seed（留空自動產生）</label><input id="seed" />
  <label>Snap（base64url，優先於 Seed）</label><input id="snap" />
  <label>Trials</label><input id="trials" type="number" value="100" min="1" max="5000" />
  <button id="btn">Trace</button>
  <pre id="out"></pre>
</div>
<script>
const out = document.getElementById('out');
fetch('/dev/meta').then(r => r.json()).then(list => {
  const sel = document.getElementById('run');
  for (const s of list) {
    const o = document.createElement('option');
    o.value = s.rid; o.textContent = s.rid + ' - ' + s.name;
    sel.appendChild(o);
  }
});
document.getElementById('btn').onclick = async () => {
  const body = {
    rid: Number(document.getElementById('run').value),
    seed: document.getElementById('seed').value.trim(),
    snap: document.getElementById('snap').value.trim(),
    trials: Math.min(5000, Number(document.getElementById('trials').value) || 1),
  };
  const r = await fetch('/dev/trace', { method: 'POST', body: JSON.stringify(body) });
  out.textContent = r.ok ? JSON.stringify(await r.json(), null, 2) : await r.text();
};
</script>
</body>
</html>`

func devPage(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write([]byte(devPageHTML))
}

// devMeta 回傳 catalog summary
func devMeta(cfg *svrcfg.SvrCfg) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		lab, ok := getLab(cfg)
		if !ok {
			httperr.Errs(w, errs.NewFatal("lab is required"))
			return
		}
		sum, err := lab.Summary()
		if err != nil {
			httperr.Errs(w, err)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(sum)
	}
}

// devTrace 執行「可回放」的逐次追蹤。
//
//  1. decode devRequest（JSON body）
//  2. resolve run（rid/name）
//  3. resolve seed（empty = auto）
//  4. 建立 Tracer → Trace() 或 RestoreTrace()
func devTrace(cfg *svrcfg.SvrCfg) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		req := new(devRequest)
		if err := json.NewDecoder(r.Body).Decode(req); err != nil {
			httperr.Errs(w, errs.NewWarn("invalid json:"+err.Error()))
			return
		}
		lab, ok := getLab(cfg)
		if !ok {
			httperr.Errs(w, errs.NewFatal("lab is required"))
			return
		}
		sum, err := resolveSummary(lab, req)
		if err != nil {
			httperr.Errs(w, err)
			return
		}
		if req.Trials < 1 {
			httperr.Errs(w, errs.NewWarn("trials is required"))
			return
		}
		seed, err := resolveSeed(req.Seed)
		if err != nil {
			httperr.Errs(w, err)
			return
		}
		tr, err := lab.NewTracer(sum.RID, seed)
		if err != nil {
			httperr.Errs(w, err)
			return
		}
		var report acdc.TraceReport
		if snap := strings.TrimSpace(req.Snap); snap != "" {
			report, err = tr.RestoreTrace(snap, req.Trials)
		} else {
			report, err = tr.Trace(req.Trials)
		}
		if err != nil {
			httperr.Errs(w, err)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(report)
	}
}

func getLab(cfg *svrcfg.SvrCfg) (*acdc.Lab, bool) {
	if cfg == nil || cfg.Lab == nil {
		return nil, false
	}
	return cfg.Lab, true
}

// resolveSummary：rid > 0 精準匹配；否則以 run 名稱（不分大小寫）或數字字串匹配
func resolveSummary(lab *acdc.Lab, req *devRequest) (catalog.Summary, error) {
	sums, err := lab.Summary()
	if err != nil {
		return catalog.Summary{}, err
	}
	if req.RID > 0 {
		rid := spec.RunID(req.RID)
		for _, s := range sums {
			if s.RID == rid {
				return s, nil
			}
		}
		return catalog.Summary{}, errs.NewWarn("rid not found")
	}
	name := strings.TrimSpace(req.Run)
	if name == "" {
		return catalog.Summary{}, errs.NewWarn("run is required")
	}
	for _, s := range sums {
		if strings.EqualFold(s.Name, name) {
			return s, nil
		}
	}
	if id, err := strconv.ParseUint(name, 10, 64); err == nil {
		for _, s := range sums {
			if s.RID == spec.RunID(id) {
				return s, nil
			}
		}
	}
	return catalog.Summary{}, errs.NewWarn("run not found")
}

// resolveSeed：空字串自動產生，否則必須是 int64
func resolveSeed(seed string) (int64, error) {
	seed = strings.TrimSpace(seed)
	if seed == "" {
		return acdc.RandomSeed(), nil
	}
	v, err := strconv.ParseInt(seed, 10, 64)
	if err != nil {
		return 0, errs.NewWarn("seed must be int64")
	}
	return v, nil
}
