// Package index 提供服務首頁：列出可用的 endpoints。
package index

import (
	"encoding/json"
	"net/http"
)

type route struct {
	Method string `json:"method"`
	Path   string `json:"path"`
	Desc   string `json:"desc"`
}

var routes = []route{
	{"GET", "/v1/catalog", "已註冊 run 的摘要"},
	{"GET|POST", "/v1/sample", "從常駐取樣器取出 count 個被接受的點（可帶 start_b64u 回放）"},
	{"GET|POST", "/v1/sim", "以新的取樣器模擬 trials 次嘗試並回傳統計（format=json|yaml|table）"},
	{"POST", "/v1/simbycfg", "以未註冊的 run 設定模擬"},
	{"GET|POST", "/v1/tree", "warmup 後回傳指定函數的切割樹"},
	{"GET|POST", "/v1/snapshot", "warmup 後下載取樣器快照（blob frame）"},
	{"POST", "/v1/stat", "合併外部紀錄並輸出統計"},
	{"GET", "/v1/metrics", "EnginePool 觀測快照"},
	{"GET", "/dev", "Trace Dev Panel"},
}

func IndexHandlerFn(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(struct {
		Name   string  `json:"name"`
		Routes []route `json:"routes"`
	}{Name: "acdc", Routes: routes})
}
